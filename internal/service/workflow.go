package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/noah-isme/clinic-workflow-api/internal/repository"
	appErrors "github.com/noah-isme/clinic-workflow-api/pkg/errors"
)

// txRunner runs fn inside a transaction bound to the context it receives.
type txRunner interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// auditRecorder appends one activity entry per successful mutation.
type auditRecorder interface {
	Record(ctx context.Context, actorID int64, action, targetType string, targetID int64, details string) error
}

// workflowRecorder counts workflow outcomes; MetricsService satisfies it.
type workflowRecorder interface {
	RecordWorkflow(operation, outcome string)
}

// directTx runs fn without a transaction; used when no manager is wired.
type directTx struct{}

func (directTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func persistenceError(err error, message string) error {
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, message)
}

func notFoundOr(err error, entity string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("%s not found", entity))
	}
	return persistenceError(err, fmt.Sprintf("failed to load %s", entity))
}

func staleOr(err error, message string) error {
	if errors.Is(err, repository.ErrStaleWrite) {
		return appErrors.Clone(appErrors.ErrConflict, "record was modified concurrently, reload and retry")
	}
	return persistenceError(err, message)
}

func outcomeOf(err error) string {
	if err == nil {
		return "success"
	}
	return appErrors.FromError(err).Code
}
