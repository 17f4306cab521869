package handler

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/clinic-workflow-api/internal/dto"
	"github.com/noah-isme/clinic-workflow-api/internal/middleware"
	"github.com/noah-isme/clinic-workflow-api/internal/models"
	"github.com/noah-isme/clinic-workflow-api/internal/service"
	"github.com/noah-isme/clinic-workflow-api/pkg/response"
)

type activityLogService interface {
	List(ctx context.Context, query dto.ActivityLogQuery) ([]models.ActivityLog, *models.Pagination, error)
	Export(ctx context.Context, query dto.ActivityLogQuery, format service.ExportFormat) (*service.ExportedFile, error)
}

// ActivityLogHandler serves the audit trail to administrators.
type ActivityLogHandler struct {
	service activityLogService
}

// NewActivityLogHandler constructs the handler.
func NewActivityLogHandler(service activityLogService) *ActivityLogHandler {
	return &ActivityLogHandler{service: service}
}

// List godoc
// @Summary List activity log entries
// @Tags Activity Logs
// @Produce json
// @Param actor_id query int false "Actor"
// @Param action query string false "Action label"
// @Param target_type query string false "appointment, test_result or notification"
// @Param target_id query int false "Target"
// @Param from query string false "From date (YYYY-MM-DD)"
// @Param to query string false "To date inclusive (YYYY-MM-DD)"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /activity-logs [get]
func (h *ActivityLogHandler) List(c *gin.Context) {
	query, err := activityQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	entries, pagination, err := h.service.List(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, pagination, middleware.ExtractMeta(c))
}

// Export godoc
// @Summary Export activity log entries
// @Tags Activity Logs
// @Produce text/csv
// @Produce application/pdf
// @Param format query string false "csv (default) or pdf"
// @Success 200 {file} binary
// @Router /activity-logs/export [get]
func (h *ActivityLogHandler) Export(c *gin.Context) {
	query, err := activityQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	format := service.ExportFormat(strings.TrimSpace(c.DefaultQuery("format", string(service.ExportFormatCSV))))
	file, err := h.service.Export(c.Request.Context(), query, format)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Filename))
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, file.ContentType, file.Content)
}

func activityQuery(c *gin.Context) (dto.ActivityLogQuery, error) {
	query := dto.ActivityLogQuery{
		Action:     c.Query("action"),
		TargetType: c.Query("target_type"),
		From:       strings.TrimSpace(c.Query("from")),
		To:         strings.TrimSpace(c.Query("to")),
	}
	var err error
	if query.ActorID, err = optionalQueryID(c, "actor_id"); err != nil {
		return query, err
	}
	if query.TargetID, err = optionalQueryID(c, "target_id"); err != nil {
		return query, err
	}
	if query.Page, err = queryInt(c, "page"); err != nil {
		return query, err
	}
	if query.PageSize, err = queryInt(c, "page_size"); err != nil {
		return query, err
	}
	return query, nil
}
