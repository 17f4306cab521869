package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/clinic-workflow-api/internal/dto"
	"github.com/noah-isme/clinic-workflow-api/internal/models"
	"github.com/noah-isme/clinic-workflow-api/internal/repository"
	appErrors "github.com/noah-isme/clinic-workflow-api/pkg/errors"
	"github.com/noah-isme/clinic-workflow-api/pkg/storage"
)

type resultStore interface {
	Create(ctx context.Context, result *models.TestResult) error
	GetByID(ctx context.Context, id int64) (*models.TestResult, error)
	UpdateDecision(ctx context.Context, decision models.ResultDecision) error
}

type appointmentLookup interface {
	GetByID(ctx context.Context, id int64) (*models.Appointment, error)
}

type patientChecker interface {
	Exists(ctx context.Context, id int64) (bool, error)
}

type appointmentCompleter interface {
	CompleteFromResult(ctx context.Context, appointmentID, actorID int64) error
}

type downloadSigner interface {
	Generate(resourceID, key string) (string, time.Time, error)
	Parse(token string) (*storage.DownloadGrant, error)
}

// allowedResultTypes maps accepted extensions to the sniffed MIME type they must match.
var allowedResultTypes = map[string]string{
	".pdf":  "application/pdf",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
}

// ResultUpload carries the uploaded file stream and its client metadata.
type ResultUpload struct {
	Filename string
	Size     int64
	Content  io.ReadSeeker
}

// ResultDownload bundles an open result file for streaming.
type ResultDownload struct {
	File     io.ReadCloser
	Filename string
	MimeType string
}

// ResultServiceConfig holds upload limits and review toggles.
type ResultServiceConfig struct {
	MaxFileSize int64
	// AllowRedecision lets a verified or rejected result be decided again,
	// overwriting the earlier decision.
	AllowRedecision bool
	APIPrefix       string
}

// ResultOption customises ResultService.
type ResultOption func(*ResultService)

// WithResultMetrics records workflow outcomes.
func WithResultMetrics(metrics workflowRecorder) ResultOption {
	return func(s *ResultService) {
		s.metrics = metrics
	}
}

// ResultService owns the test result state machine and its stored files.
type ResultService struct {
	repo         resultStore
	appointments appointmentLookup
	completer    appointmentCompleter
	patients     patientChecker
	files        storage.FileStore
	signer       downloadSigner
	tx           txRunner
	audit        auditRecorder
	validator    *validator.Validate
	metrics      workflowRecorder
	logger       *zap.Logger
	cfg          ResultServiceConfig
	newKey       func(ext string) string
	now          func() time.Time
}

// NewResultService constructs the result workflow manager.
func NewResultService(repo resultStore, appointments appointmentLookup, completer appointmentCompleter, patients patientChecker, files storage.FileStore, signer downloadSigner, tx txRunner, audit auditRecorder, logger *zap.Logger, cfg ResultServiceConfig, opts ...ResultOption) *ResultService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if tx == nil {
		tx = directTx{}
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = 10 * 1024 * 1024
	}
	if cfg.APIPrefix == "" {
		cfg.APIPrefix = "/api/v1"
	}
	svc := &ResultService{
		repo:         repo,
		appointments: appointments,
		completer:    completer,
		patients:     patients,
		files:        files,
		signer:       signer,
		tx:           tx,
		audit:        audit,
		validator:    NewValidator(),
		logger:       logger,
		cfg:          cfg,
		newKey: func(ext string) string {
			return uuid.NewString() + ext
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Upload validates the file, stores a pending result row with its activity
// entry and moves the file into result storage. Row and file either both
// exist afterwards or neither does.
func (s *ResultService) Upload(ctx context.Context, req dto.UploadResultRequest, upload ResultUpload, actor *models.Actor) (result *models.TestResult, err error) {
	defer func() { s.record("result.upload", err) }()

	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err)
	}
	if upload.Content == nil || upload.Size <= 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "file is required")
	}
	if upload.Size > s.cfg.MaxFileSize {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("file exceeds %d bytes limit", s.cfg.MaxFileSize))
	}
	ext, mimeType, err := detectResultType(upload)
	if err != nil {
		return nil, err
	}

	appointment, err := s.appointments.GetByID(ctx, req.AppointmentID)
	if err != nil {
		return nil, notFoundOr(err, "appointment")
	}
	exists, err := s.patients.Exists(ctx, req.PatientID)
	if err != nil {
		return nil, persistenceError(err, "failed to load patient")
	}
	if !exists {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "patient not found")
	}
	if appointment.PatientID != nil && *appointment.PatientID != req.PatientID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "patient does not match the appointment")
	}

	key := s.newKey(ext)
	result = &models.TestResult{
		AppointmentID: req.AppointmentID,
		PatientID:     req.PatientID,
		FilePath:      key,
		MimeType:      mimeType,
		TechnicianID:  actor.ID,
		Status:        models.ResultPending,
	}
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, result); err != nil {
			return persistenceError(err, "failed to create test result")
		}
		details := fmt.Sprintf("appointment_id=%d, file=%s", result.AppointmentID, key)
		if err := s.audit.Record(ctx, actor.ID, models.ActionUploadedResult, models.TargetTestResult, result.ID, details); err != nil {
			return err
		}
		if err := s.files.Put(ctx, key, upload.Content, mimeType); err != nil {
			return appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to store result file")
		}
		return nil
	})
	if err != nil {
		if delErr := s.files.Delete(context.WithoutCancel(ctx), key); delErr != nil {
			s.logger.Warn("failed to remove orphaned result file", zap.String("key", key), zap.Error(delErr))
		}
		return nil, persistenceError(err, "failed to save test result")
	}
	return result, nil
}

// Verify records the clinical decision. A verified result completes its
// appointment in the same transaction; a rejected one leaves it untouched.
func (s *ResultService) Verify(ctx context.Context, id int64, req dto.VerifyResultRequest, actor *models.Actor) (result *models.TestResult, err error) {
	defer func() { s.record("result.verify", err) }()

	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	decision, ok := models.ParseResultDecision(strings.ToLower(strings.TrimSpace(req.Status)))
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, "status must be one of verified, rejected")
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		current, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return notFoundOr(err, "test result")
		}
		if !s.cfg.AllowRedecision && current.Status != models.ResultPending {
			return appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("test result is already %s", current.Status))
		}
		err = s.repo.UpdateDecision(ctx, models.ResultDecision{
			ResultID:    id,
			Status:      decision,
			VerifiedBy:  actor.ID,
			VerifiedAt:  s.now().UTC(),
			Comments:    req.Comments,
			OnlyPending: !s.cfg.AllowRedecision,
		})
		if errors.Is(err, repository.ErrStaleWrite) {
			return appErrors.Clone(appErrors.ErrInvalidTransition, "test result was decided concurrently")
		}
		if err != nil {
			return notFoundOr(err, "test result")
		}

		action := models.ActionRejectedResult
		if decision == models.ResultVerified {
			if err := s.completer.CompleteFromResult(ctx, current.AppointmentID, actor.ID); err != nil {
				return err
			}
			action = models.ActionVerifiedResult
		}
		details := fmt.Sprintf("appointment_id=%d, status=%s", current.AppointmentID, decision)
		if err := s.audit.Record(ctx, actor.ID, action, models.TargetTestResult, id, details); err != nil {
			return err
		}
		result, err = s.repo.GetByID(ctx, id)
		if err != nil {
			return notFoundOr(err, "test result")
		}
		return nil
	})
	if err != nil {
		return nil, persistenceError(err, "failed to record result decision")
	}
	return result, nil
}

// Get returns result metadata.
func (s *ResultService) Get(ctx context.Context, id int64) (*models.TestResult, error) {
	result, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "test result")
	}
	return result, nil
}

// DownloadURL issues a signed, time limited download link for the result file.
func (s *ResultService) DownloadURL(ctx context.Context, id int64) (*dto.ResultDownloadResponse, error) {
	if s.signer == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "download signer unavailable")
	}
	result, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	token, expiresAt, err := s.signer.Generate(strconv.FormatInt(result.ID, 10), result.FilePath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate download token")
	}
	base := strings.TrimRight(s.cfg.APIPrefix, "/")
	return &dto.ResultDownloadResponse{
		TestResult:  *result,
		DownloadURL: fmt.Sprintf("%s/results/%d/download?token=%s", base, result.ID, token),
		ExpiresAt:   expiresAt.UTC().Format(time.RFC3339),
	}, nil
}

// Download validates token against the result and opens its file.
func (s *ResultService) Download(ctx context.Context, id int64, token string) (*ResultDownload, error) {
	if s.signer == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "download signer unavailable")
	}
	result, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	grant, err := s.signer.Parse(token)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired token")
	}
	if grant.ResourceID != strconv.FormatInt(result.ID, 10) || grant.Key != result.FilePath {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "token mismatch")
	}
	file, err := s.files.Open(ctx, result.FilePath)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "result file not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to open result file")
	}
	return &ResultDownload{File: file, Filename: filepath.Base(result.FilePath), MimeType: result.MimeType}, nil
}

func (s *ResultService) record(operation string, err error) {
	if s.metrics != nil {
		s.metrics.RecordWorkflow(operation, outcomeOf(err))
	}
	if err != nil && appErrors.FromError(err).Status >= 500 {
		s.logger.Error("result workflow failed", zap.String("operation", operation), zap.Error(err))
	}
}

// detectResultType checks the extension against the sniffed content and
// rewinds the stream. Only pdf, jpg/jpeg and png pass.
func detectResultType(upload ResultUpload) (string, string, error) {
	ext := strings.ToLower(filepath.Ext(upload.Filename))
	expected, ok := allowedResultTypes[ext]
	if !ok {
		return "", "", appErrors.Clone(appErrors.ErrValidation, "file type must be pdf, jpg or png")
	}
	if _, err := upload.Content.Seek(0, io.SeekStart); err != nil {
		return "", "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read upload")
	}
	detected, err := mimetype.DetectReader(upload.Content)
	if err != nil {
		return "", "", appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "failed to inspect file")
	}
	if !detected.Is(expected) {
		return "", "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("file content %s does not match %s", detected.String(), ext))
	}
	if _, err := upload.Content.Seek(0, io.SeekStart); err != nil {
		return "", "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to rewind upload")
	}
	return ext, expected, nil
}
