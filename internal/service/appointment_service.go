package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/clinic-workflow-api/internal/dto"
	"github.com/noah-isme/clinic-workflow-api/internal/models"
	appErrors "github.com/noah-isme/clinic-workflow-api/pkg/errors"
)

type appointmentStore interface {
	Create(ctx context.Context, appointment *models.Appointment) error
	GetByID(ctx context.Context, id int64) (*models.Appointment, error)
	Update(ctx context.Context, id int64, expected models.AppointmentStatus, patch models.AppointmentPatch) error
	MarkCompleted(ctx context.Context, id int64) error
}

// AppointmentServiceConfig holds lifecycle toggles.
type AppointmentServiceConfig struct {
	// EnforceTransitions rejects writes on terminal appointments and status
	// edges outside the lifecycle table.
	EnforceTransitions bool
}

// AppointmentOption customises AppointmentService.
type AppointmentOption func(*AppointmentService)

// WithAppointmentMetrics records workflow outcomes.
func WithAppointmentMetrics(metrics workflowRecorder) AppointmentOption {
	return func(s *AppointmentService) {
		s.metrics = metrics
	}
}

// AppointmentService owns the appointment state machine.
type AppointmentService struct {
	repo      appointmentStore
	tx        txRunner
	audit     auditRecorder
	validator *validator.Validate
	metrics   workflowRecorder
	logger    *zap.Logger
	cfg       AppointmentServiceConfig
}

// NewAppointmentService constructs the lifecycle manager.
func NewAppointmentService(repo appointmentStore, tx txRunner, audit auditRecorder, validate *validator.Validate, logger *zap.Logger, cfg AppointmentServiceConfig, opts ...AppointmentOption) *AppointmentService {
	if validate == nil {
		validate = NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if tx == nil {
		tx = directTx{}
	}
	svc := &AppointmentService{repo: repo, tx: tx, audit: audit, validator: validate, logger: logger, cfg: cfg}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Create books a new appointment in pending state. Authenticated bookings
// leave a "Booked Appointment" entry; anonymous ones do not.
func (s *AppointmentService) Create(ctx context.Context, req dto.CreateAppointmentRequest, actor *models.Actor) (appointment *models.Appointment, err error) {
	defer func() { s.record("appointment.create", err) }()

	req.Name = strings.TrimSpace(req.Name)
	req.Phone = strings.TrimSpace(req.Phone)
	req.LocationType = strings.ToLower(strings.TrimSpace(req.LocationType))
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err)
	}

	appointment = &models.Appointment{
		PatientID:    req.PatientID,
		Name:         req.Name,
		Email:        req.Email,
		Phone:        req.Phone,
		Date:         req.Date,
		Time:         req.Time,
		LocationType: models.LocationType(req.LocationType),
		BranchID:     req.BranchID,
		TestID:       req.TestID,
		Status:       models.AppointmentPending,
	}
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, appointment); err != nil {
			return persistenceError(err, "failed to create appointment")
		}
		if actor == nil {
			return nil
		}
		details := fmt.Sprintf("name=%s, date=%s, location_type=%s", appointment.Name, appointment.Date, appointment.LocationType)
		return s.audit.Record(ctx, actor.ID, models.ActionBookedAppointment, models.TargetAppointment, appointment.ID, details)
	})
	if err != nil {
		return nil, persistenceError(err, "failed to create appointment")
	}
	return appointment, nil
}

// Get returns a single appointment.
func (s *AppointmentService) Get(ctx context.Context, id int64) (*models.Appointment, error) {
	appointment, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "appointment")
	}
	return appointment, nil
}

// Update applies a partial patch. Every present field is written in one
// statement and one activity entry is recorded, labelled by the most
// significant field in the patch.
func (s *AppointmentService) Update(ctx context.Context, id int64, req dto.UpdateAppointmentRequest, actor *models.Actor) (updated *models.Appointment, err error) {
	defer func() { s.record("appointment.update", err) }()

	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if req.Status != nil {
		normalised := strings.ToLower(strings.TrimSpace(*req.Status))
		req.Status = &normalised
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err)
	}
	patch := patchFromRequest(req)
	if patch.Empty() {
		return nil, appErrors.Clone(appErrors.ErrNoOp, "at least one of status, date, time, staff_id, branch_id is required")
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		current, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return notFoundOr(err, "appointment")
		}
		if err := s.guardTransition(current, patch); err != nil {
			return err
		}
		if err := s.repo.Update(ctx, id, current.Status, patch); err != nil {
			return staleOr(err, "failed to update appointment")
		}
		if err := s.audit.Record(ctx, actor.ID, appointmentAction(patch), models.TargetAppointment, id, describePatch(patch)); err != nil {
			return err
		}
		updated, err = s.repo.GetByID(ctx, id)
		if err != nil {
			return notFoundOr(err, "appointment")
		}
		return nil
	})
	if err != nil {
		return nil, persistenceError(err, "failed to update appointment")
	}
	return updated, nil
}

// CompleteFromResult marks the appointment completed after its result was
// verified. It runs inside the caller's transaction when one is bound to ctx,
// ignores the current status and is safe to call repeatedly.
func (s *AppointmentService) CompleteFromResult(ctx context.Context, appointmentID, actorID int64) error {
	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.repo.MarkCompleted(ctx, appointmentID); err != nil {
			return notFoundOr(err, "appointment")
		}
		return s.audit.Record(ctx, actorID, models.ActionVerifiedResult, models.TargetAppointment, appointmentID, "status=completed")
	})
}

func (s *AppointmentService) guardTransition(current *models.Appointment, patch models.AppointmentPatch) error {
	if !s.cfg.EnforceTransitions {
		return nil
	}
	if current.Status.Terminal() {
		return appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("appointment is %s and can no longer change", current.Status))
	}
	if patch.Status != nil && !current.Status.CanTransitionTo(*patch.Status) {
		return appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("cannot move appointment from %s to %s", current.Status, *patch.Status))
	}
	return nil
}

func (s *AppointmentService) record(operation string, err error) {
	if s.metrics != nil {
		s.metrics.RecordWorkflow(operation, outcomeOf(err))
	}
	if err != nil && appErrors.FromError(err).Status >= 500 {
		s.logger.Error("appointment workflow failed", zap.String("operation", operation), zap.Error(err))
	}
}

func patchFromRequest(req dto.UpdateAppointmentRequest) models.AppointmentPatch {
	patch := models.AppointmentPatch{
		Date:     req.Date,
		Time:     req.Time,
		StaffID:  req.StaffID,
		BranchID: req.BranchID,
	}
	if req.Status != nil {
		status := models.AppointmentStatus(*req.Status)
		patch.Status = &status
	}
	return patch
}

// appointmentAction picks the audit label: status beats schedule, schedule
// beats staff, and a branch-only patch comes last.
func appointmentAction(patch models.AppointmentPatch) string {
	switch {
	case patch.Status != nil:
		return models.ActionUpdatedAppointmentState
	case patch.Date != nil || patch.Time != nil:
		return models.ActionRescheduledAppointment
	case patch.StaffID != nil:
		return models.ActionAssignedStaff
	default:
		return models.ActionUpdatedAppointmentBranch
	}
}

func describePatch(patch models.AppointmentPatch) string {
	parts := make([]string, 0, 5)
	if patch.Status != nil {
		parts = append(parts, "status="+string(*patch.Status))
	}
	if patch.Date != nil {
		parts = append(parts, "date="+*patch.Date)
	}
	if patch.Time != nil {
		parts = append(parts, "time="+*patch.Time)
	}
	if patch.StaffID != nil {
		parts = append(parts, fmt.Sprintf("staff_id=%d", *patch.StaffID))
	}
	if patch.BranchID != nil {
		parts = append(parts, fmt.Sprintf("branch_id=%d", *patch.BranchID))
	}
	return strings.Join(parts, ", ")
}
