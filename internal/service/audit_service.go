package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/clinic-workflow-api/internal/models"
	appErrors "github.com/noah-isme/clinic-workflow-api/pkg/errors"
)

type activityLogWriter interface {
	Create(ctx context.Context, entry *models.ActivityLog) error
}

// AuditService writes activity log entries through the transaction carried
// by ctx, so an entry only survives when the surrounding operation commits.
type AuditService struct {
	repo   activityLogWriter
	logger *zap.Logger
}

// NewAuditService constructs the audit logger.
func NewAuditService(repo activityLogWriter, logger *zap.Logger) *AuditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditService{repo: repo, logger: logger}
}

// Record appends one entry. Failures are returned so the caller can roll back.
func (s *AuditService) Record(ctx context.Context, actorID int64, action, targetType string, targetID int64, details string) error {
	if strings.TrimSpace(action) == "" {
		return appErrors.Clone(appErrors.ErrValidation, "audit action is required")
	}
	entry := &models.ActivityLog{
		ActorID:    actorID,
		Action:     action,
		TargetType: targetType,
		TargetID:   targetID,
		Details:    details,
	}
	if err := s.repo.Create(ctx, entry); err != nil {
		s.logger.Warn("failed to record activity",
			zap.String("action", action),
			zap.String("target_type", targetType),
			zap.Int64("target_id", targetID),
			zap.Error(err),
		)
		return appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to record activity")
	}
	return nil
}
