package service

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/clinic-workflow-api/internal/dto"
	"github.com/noah-isme/clinic-workflow-api/internal/models"
	appErrors "github.com/noah-isme/clinic-workflow-api/pkg/errors"
)

const notificationFeedPattern = "notifications:*"

type notificationStore interface {
	Create(ctx context.Context, notification *models.Notification) error
	Update(ctx context.Context, notification *models.Notification) error
	GetByID(ctx context.Context, id int64) (*models.Notification, error)
	ListVisible(ctx context.Context, viewer models.NotificationViewer) ([]models.Notification, error)
}

type feedCache interface {
	Get(ctx context.Context, key string, dest interface{}) bool
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration)
	Invalidate(ctx context.Context, pattern string)
}

// NotificationOption customises NotificationService.
type NotificationOption func(*NotificationService)

// WithNotificationCache caches resolved feeds per viewer.
func WithNotificationCache(cache feedCache) NotificationOption {
	return func(s *NotificationService) {
		s.cache = cache
	}
}

// WithNotificationMetrics records workflow outcomes.
func WithNotificationMetrics(metrics workflowRecorder) NotificationOption {
	return func(s *NotificationService) {
		s.metrics = metrics
	}
}

// NotificationService addresses notifications and resolves viewer feeds.
type NotificationService struct {
	repo    notificationStore
	tx      txRunner
	audit   auditRecorder
	cache   feedCache
	metrics workflowRecorder
	logger  *zap.Logger

	// generation is part of every feed key and moves on each invalidation,
	// so a fill that read rows before a write lands under a dead key.
	generation atomic.Uint64
}

// NewNotificationService constructs the resolver.
func NewNotificationService(repo notificationStore, tx txRunner, audit auditRecorder, logger *zap.Logger, opts ...NotificationOption) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if tx == nil {
		tx = directTx{}
	}
	svc := &NotificationService{repo: repo, tx: tx, audit: audit, logger: logger}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Send persists one addressed notification and its "Sent Notification" entry.
func (s *NotificationService) Send(ctx context.Context, req dto.SendNotificationRequest, actor *models.Actor) (notification *models.Notification, err error) {
	defer func() { s.record("notification.send", err) }()

	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "message is required")
	}
	group, recipientID, err := models.ResolveRecipient(req.RecipientGroup, req.RecipientID)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}

	notification = &models.Notification{
		RecipientGroup: group,
		RecipientID:    recipientID,
		Title:          strings.TrimSpace(req.Title),
		Message:        message,
		CreatedBy:      actor.ID,
	}
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, notification); err != nil {
			return persistenceError(err, "failed to create notification")
		}
		return s.audit.Record(ctx, actor.ID, models.ActionSentNotification, models.TargetNotification, notification.ID, describeAddress(notification))
	})
	if err != nil {
		return nil, persistenceError(err, "failed to send notification")
	}
	s.invalidate(ctx)
	return notification, nil
}

// Update edits an existing notification. A new recipient intent goes through
// the same mapping as Send.
func (s *NotificationService) Update(ctx context.Context, id int64, req dto.UpdateNotificationRequest, actor *models.Actor) (notification *models.Notification, err error) {
	defer func() { s.record("notification.update", err) }()

	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if req.RecipientGroup == nil && req.RecipientID == nil && req.Title == nil && req.Message == nil {
		return nil, appErrors.Clone(appErrors.ErrNoOp, "at least one of recipient_group, recipient_id, title, message is required")
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		current, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return notFoundOr(err, "notification")
		}
		if req.RecipientGroup != nil || req.RecipientID != nil {
			intent := string(current.RecipientGroup)
			if req.RecipientGroup != nil {
				intent = *req.RecipientGroup
			}
			recipientID := req.RecipientID
			if recipientID == nil && strings.EqualFold(strings.TrimSpace(intent), string(models.NotificationGroupIndividual)) {
				recipientID = current.RecipientID
			}
			group, resolvedID, err := models.ResolveRecipient(intent, recipientID)
			if err != nil {
				return appErrors.Clone(appErrors.ErrValidation, err.Error())
			}
			current.RecipientGroup = group
			current.RecipientID = resolvedID
		}
		if req.Title != nil {
			current.Title = strings.TrimSpace(*req.Title)
		}
		if req.Message != nil {
			current.Message = strings.TrimSpace(*req.Message)
			if current.Message == "" {
				return appErrors.Clone(appErrors.ErrValidation, "message is required")
			}
		}
		if err := s.repo.Update(ctx, current); err != nil {
			return notFoundOr(err, "notification")
		}
		if err := s.audit.Record(ctx, actor.ID, models.ActionUpdatedNotification, models.TargetNotification, id, describeAddress(current)); err != nil {
			return err
		}
		notification = current
		return nil
	})
	if err != nil {
		return nil, persistenceError(err, "failed to update notification")
	}
	s.invalidate(ctx)
	return notification, nil
}

// ResolveVisible returns the notifications visible to viewer, newest first.
// Admins and viewers without a role see every notification.
func (s *NotificationService) ResolveVisible(ctx context.Context, viewer models.NotificationViewer) ([]models.Notification, error) {
	if viewer.Role != "" {
		role, ok := models.ParseRole(string(viewer.Role))
		if !ok {
			return nil, appErrors.Clone(appErrors.ErrValidation, "role must be one of admin, staff, doctor, patient")
		}
		viewer.Role = role
	}
	if viewer.SeesEverything() {
		viewer.ID = 0
	}
	key := feedKey(s.generation.Load(), viewer)
	var cached []models.Notification
	if s.cache != nil && s.cache.Get(ctx, key, &cached) {
		return cached, nil
	}
	items, err := s.repo.ListVisible(ctx, viewer)
	if err != nil {
		return nil, persistenceError(err, "failed to list notifications")
	}
	if s.cache != nil {
		s.cache.Set(ctx, key, items, 0)
	}
	return items, nil
}

func (s *NotificationService) invalidate(ctx context.Context) {
	if s.cache != nil {
		s.generation.Add(1)
		s.cache.Invalidate(ctx, notificationFeedPattern)
	}
}

func (s *NotificationService) record(operation string, err error) {
	if s.metrics != nil {
		s.metrics.RecordWorkflow(operation, outcomeOf(err))
	}
	if err != nil && appErrors.FromError(err).Status >= 500 {
		s.logger.Error("notification workflow failed", zap.String("operation", operation), zap.Error(err))
	}
}

func feedKey(generation uint64, viewer models.NotificationViewer) string {
	role := string(viewer.Role)
	if role == "" {
		role = string(models.RoleAdmin)
	}
	return fmt.Sprintf("notifications:%d:%s:%d", generation, role, viewer.ID)
}

func describeAddress(n *models.Notification) string {
	if n.RecipientID != nil {
		return fmt.Sprintf("recipient_group=%s, recipient_id=%d", n.RecipientGroup, *n.RecipientID)
	}
	return "recipient_group=" + string(n.RecipientGroup)
}
