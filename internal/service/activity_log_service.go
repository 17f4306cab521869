package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/clinic-workflow-api/internal/dto"
	"github.com/noah-isme/clinic-workflow-api/internal/models"
	appErrors "github.com/noah-isme/clinic-workflow-api/pkg/errors"
	"github.com/noah-isme/clinic-workflow-api/pkg/export"
)

type activityLogReader interface {
	List(ctx context.Context, filter models.ActivityLogFilter) ([]models.ActivityLog, int, error)
}

// ExportFormat names a supported activity log export.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

// maxExportRows bounds a single export.
const maxExportRows = 500

// maxActivityPage keeps the row offset well inside int range.
const maxActivityPage = 100000

// ExportedFile is a rendered activity log report.
type ExportedFile struct {
	Filename    string
	ContentType string
	Content     []byte
}

// ActivityLogService lists and exports the audit trail.
type ActivityLogService struct {
	repo      activityLogReader
	renderers map[ExportFormat]export.Renderer
	logger    *zap.Logger
	now       func() time.Time
}

// NewActivityLogService constructs the reporting service.
func NewActivityLogService(repo activityLogReader, csv, pdf export.Renderer, logger *zap.Logger) *ActivityLogService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ActivityLogService{
		repo:      repo,
		renderers: map[ExportFormat]export.Renderer{ExportFormatCSV: csv, ExportFormatPDF: pdf},
		logger:    logger,
		now:       time.Now,
	}
}

// List returns a page of entries.
func (s *ActivityLogService) List(ctx context.Context, query dto.ActivityLogQuery) ([]models.ActivityLog, *models.Pagination, error) {
	filter, err := buildActivityFilter(query)
	if err != nil {
		return nil, nil, err
	}
	entries, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, persistenceError(err, "failed to list activity logs")
	}
	return entries, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// Export renders up to maxExportRows matching entries in the requested format.
func (s *ActivityLogService) Export(ctx context.Context, query dto.ActivityLogQuery, format ExportFormat) (*ExportedFile, error) {
	renderer, ok := s.renderers[ExportFormat(strings.ToLower(string(format)))]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}
	query.Page = 1
	query.PageSize = maxExportRows
	entries, _, err := s.List(ctx, query)
	if err != nil {
		return nil, err
	}

	dataset := export.Dataset{
		Title:   "Activity Log",
		Headers: []string{"ID", "Time", "Actor", "Action", "Target", "Target ID", "Details"},
		Rows:    make([][]string, 0, len(entries)),
	}
	for _, entry := range entries {
		dataset.Rows = append(dataset.Rows, []string{
			strconv.FormatInt(entry.ID, 10),
			entry.CreatedAt.UTC().Format(time.RFC3339),
			strconv.FormatInt(entry.ActorID, 10),
			entry.Action,
			entry.TargetType,
			strconv.FormatInt(entry.TargetID, 10),
			entry.Details,
		})
	}
	content, err := renderer.Render(dataset)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render activity log export")
	}
	s.logger.Info("activity log exported", zap.String("format", string(format)), zap.Int("rows", len(entries)))
	return &ExportedFile{
		Filename:    fmt.Sprintf("activity-log-%s%s", s.now().UTC().Format("20060102-150405"), renderer.Extension()),
		ContentType: renderer.ContentType(),
		Content:     content,
	}, nil
}

func buildActivityFilter(query dto.ActivityLogQuery) (models.ActivityLogFilter, error) {
	filter := models.ActivityLogFilter{
		ActorID:    query.ActorID,
		Action:     strings.TrimSpace(query.Action),
		TargetType: strings.TrimSpace(query.TargetType),
		TargetID:   query.TargetID,
		Page:       query.Page,
		PageSize:   query.PageSize,
	}
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.Page > maxActivityPage {
		return filter, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("page must not exceed %d", maxActivityPage))
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 50
	}
	if filter.PageSize > maxExportRows {
		filter.PageSize = maxExportRows
	}
	if query.From != "" {
		from, err := time.Parse(dateLayout, query.From)
		if err != nil {
			return filter, appErrors.Clone(appErrors.ErrValidation, "from must be a calendar date (YYYY-MM-DD)")
		}
		filter.From = &from
	}
	if query.To != "" {
		to, err := time.Parse(dateLayout, query.To)
		if err != nil {
			return filter, appErrors.Clone(appErrors.ErrValidation, "to must be a calendar date (YYYY-MM-DD)")
		}
		end := to.AddDate(0, 0, 1)
		filter.To = &end
	}
	if filter.From != nil && filter.To != nil && !filter.From.Before(*filter.To) {
		return filter, appErrors.Clone(appErrors.ErrValidation, "from must not be after to")
	}
	return filter, nil
}
