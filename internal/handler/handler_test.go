package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/clinic-workflow-api/internal/dto"
	"github.com/noah-isme/clinic-workflow-api/internal/models"
	"github.com/noah-isme/clinic-workflow-api/internal/service"
	appErrors "github.com/noah-isme/clinic-workflow-api/pkg/errors"
)

type stubTokens map[string]*models.JWTClaims

func (s stubTokens) ValidateToken(token string) (*models.JWTClaims, error) {
	if claims, ok := s[token]; ok {
		return claims, nil
	}
	return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
}

var tokens = stubTokens{
	"admin":   {UserID: 1, Role: models.RoleAdmin},
	"staff":   {UserID: 2, Role: models.RoleStaff},
	"doctor":  {UserID: 3, Role: models.RoleDoctor},
	"patient": {UserID: 5, Role: models.RolePatient},
}

type stubAuth struct{}

func (stubAuth) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	if req.Password != "secret" {
		return nil, appErrors.ErrInvalidCredentials
	}
	return &models.LoginResponse{AccessToken: "admin"}, nil
}

type stubAppointments struct {
	createActor *models.Actor
	created     dto.CreateAppointmentRequest
	patch       dto.UpdateAppointmentRequest
	err         error
}

func (s *stubAppointments) Create(ctx context.Context, req dto.CreateAppointmentRequest, actor *models.Actor) (*models.Appointment, error) {
	s.created, s.createActor = req, actor
	if s.err != nil {
		return nil, s.err
	}
	return &models.Appointment{ID: 10, Name: req.Name, Status: models.AppointmentPending}, nil
}

func (s *stubAppointments) Get(ctx context.Context, id int64) (*models.Appointment, error) {
	if id != 10 {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "appointment not found")
	}
	return &models.Appointment{ID: 10, Status: models.AppointmentPending}, nil
}

func (s *stubAppointments) Update(ctx context.Context, id int64, req dto.UpdateAppointmentRequest, actor *models.Actor) (*models.Appointment, error) {
	s.patch = req
	if s.err != nil {
		return nil, s.err
	}
	return &models.Appointment{ID: id, Status: models.AppointmentConfirmed}, nil
}

type stubResults struct {
	upload   service.ResultUpload
	content  []byte
	req      dto.UploadResultRequest
	verified dto.VerifyResultRequest
	token    string
}

func (s *stubResults) Upload(ctx context.Context, req dto.UploadResultRequest, upload service.ResultUpload, actor *models.Actor) (*models.TestResult, error) {
	s.req, s.upload = req, upload
	s.content, _ = io.ReadAll(upload.Content)
	return &models.TestResult{ID: 20, AppointmentID: req.AppointmentID, Status: models.ResultPending}, nil
}

func (s *stubResults) Verify(ctx context.Context, id int64, req dto.VerifyResultRequest, actor *models.Actor) (*models.TestResult, error) {
	s.verified = req
	if req.Status == "approved" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "status must be verified or rejected")
	}
	return &models.TestResult{ID: id, Status: models.ResultStatus(req.Status)}, nil
}

func (s *stubResults) DownloadURL(ctx context.Context, id int64) (*dto.ResultDownloadResponse, error) {
	return &dto.ResultDownloadResponse{TestResult: models.TestResult{ID: id}, DownloadURL: "/api/v1/results/20/download?token=t"}, nil
}

func (s *stubResults) Download(ctx context.Context, id int64, token string) (*service.ResultDownload, error) {
	s.token = token
	if token != "good" {
		return nil, appErrors.ErrForbidden
	}
	return &service.ResultDownload{File: io.NopCloser(strings.NewReader("%PDF-1.4")), Filename: "scan.pdf", MimeType: "application/pdf"}, nil
}

type stubNotifications struct {
	viewer models.NotificationViewer
	sent   dto.SendNotificationRequest
}

func (s *stubNotifications) Send(ctx context.Context, req dto.SendNotificationRequest, actor *models.Actor) (*models.Notification, error) {
	s.sent = req
	return &models.Notification{ID: 30, RecipientGroup: models.NotificationGroupDoctor, Message: req.Message}, nil
}

func (s *stubNotifications) Update(ctx context.Context, id int64, req dto.UpdateNotificationRequest, actor *models.Actor) (*models.Notification, error) {
	return &models.Notification{ID: id}, nil
}

func (s *stubNotifications) ResolveVisible(ctx context.Context, viewer models.NotificationViewer) ([]models.Notification, error) {
	s.viewer = viewer
	return []models.Notification{{ID: 30}}, nil
}

type stubActivity struct {
	query  dto.ActivityLogQuery
	format service.ExportFormat
}

func (s *stubActivity) List(ctx context.Context, query dto.ActivityLogQuery) ([]models.ActivityLog, *models.Pagination, error) {
	s.query = query
	return []models.ActivityLog{{ID: 1, Action: models.ActionBookedAppointment}}, &models.Pagination{Page: 1, PageSize: 50, TotalCount: 1}, nil
}

func (s *stubActivity) Export(ctx context.Context, query dto.ActivityLogQuery, format service.ExportFormat) (*service.ExportedFile, error) {
	s.query, s.format = query, format
	return &service.ExportedFile{Filename: "activity-log.csv", ContentType: "text/csv", Content: []byte("ID\n1\n")}, nil
}

type fixture struct {
	router        *gin.Engine
	appointments  *stubAppointments
	results       *stubResults
	notifications *stubNotifications
	activity      *stubActivity
}

func newFixture() *fixture {
	gin.SetMode(gin.TestMode)
	f := &fixture{
		appointments:  &stubAppointments{},
		results:       &stubResults{},
		notifications: &stubNotifications{},
		activity:      &stubActivity{},
	}
	f.router = gin.New()
	RegisterRoutes(f.router, f.router.Group("/api/v1"), Handlers{
		Auth:          NewAuthHandler(stubAuth{}),
		Appointments:  NewAppointmentHandler(f.appointments),
		Results:       NewResultHandler(f.results),
		Notifications: NewNotificationHandler(f.notifications),
		ActivityLogs:  NewActivityLogHandler(f.activity),
		Metrics:       NewMetricsHandler(service.NewMetricsService(), nil),
	}, tokens)
	return f
}

func (f *fixture) do(method, path, token string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *fixture) json(method, path, token, body string) *httptest.ResponseRecorder {
	return f.do(method, path, token, strings.NewReader(body), "application/json")
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code string `json:"code"`
	} `json:"error"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return env
}

func TestLogin(t *testing.T) {
	f := newFixture()
	w := f.json(http.MethodPost, "/api/v1/auth/login", "", `{"email":"a@clinic.test","password":"secret"}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = f.json(http.MethodPost, "/api/v1/auth/login", "", `{"email":"a@clinic.test","password":"nope"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.json(http.MethodPost, "/api/v1/auth/login", "", `{"email":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateAppointmentAnonymousAndAuthenticated(t *testing.T) {
	f := newFixture()
	body := `{"name":"Jane","phone":"0812","date":"2026-03-05","location_type":"branch","branch_id":2}`

	w := f.json(http.MethodPost, "/api/v1/appointments", "", body)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Nil(t, f.appointments.createActor)
	assert.Equal(t, "Jane", f.appointments.created.Name)
	require.NotNil(t, f.appointments.created.BranchID)
	assert.Equal(t, int64(2), *f.appointments.created.BranchID)

	w = f.json(http.MethodPost, "/api/v1/appointments", "staff", body)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, &models.Actor{ID: 2, Role: models.RoleStaff}, f.appointments.createActor)
}

func TestCreateAppointmentValidationError(t *testing.T) {
	f := newFixture()
	f.appointments.err = appErrors.Clone(appErrors.ErrValidation, "date is required")
	w := f.json(http.MethodPost, "/api/v1/appointments", "", `{"name":"Jane"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	env := decode(t, w)
	assert.False(t, env.Success)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
}

func TestUpdateAppointmentRoutes(t *testing.T) {
	f := newFixture()
	for _, method := range []string{http.MethodPost, http.MethodPatch} {
		w := f.json(method, "/api/v1/appointments/10", "staff", `{"status":"confirmed","staff_id":7}`)
		require.Equal(t, http.StatusOK, w.Code, method)
		require.NotNil(t, f.appointments.patch.Status)
		assert.Equal(t, "confirmed", *f.appointments.patch.Status)
	}

	assert.Equal(t, http.StatusUnauthorized, f.json(http.MethodPatch, "/api/v1/appointments/10", "", `{}`).Code)
	assert.Equal(t, http.StatusForbidden, f.json(http.MethodPatch, "/api/v1/appointments/10", "patient", `{}`).Code)
	assert.Equal(t, http.StatusBadRequest, f.json(http.MethodPatch, "/api/v1/appointments/abc", "staff", `{}`).Code)

	f.appointments.err = appErrors.Clone(appErrors.ErrInvalidTransition, "appointment is completed")
	w := f.json(http.MethodPatch, "/api/v1/appointments/10", "admin", `{"status":"pending"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "INVALID_TRANSITION", decode(t, w).Error.Code)
}

func TestGetAppointment(t *testing.T) {
	f := newFixture()
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/v1/appointments/10", "doctor", nil, "").Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/api/v1/appointments/11", "doctor", nil, "").Code)
}

func multipartBody(t *testing.T, fields map[string]string, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	buf := &bytes.Buffer{}
	writer := multipart.NewWriter(buf)
	for k, v := range fields {
		require.NoError(t, writer.WriteField(k, v))
	}
	if filename != "" {
		part, err := writer.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())
	return buf, writer.FormDataContentType()
}

func TestUploadResult(t *testing.T) {
	f := newFixture()
	body, contentType := multipartBody(t, map[string]string{"appointment_id": "10", "patient_id": "5"}, "scan.pdf", []byte("%PDF-1.4 body"))

	w := f.do(http.MethodPost, "/api/v1/results", "staff", body, contentType)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, int64(10), f.results.req.AppointmentID)
	assert.Equal(t, int64(5), f.results.req.PatientID)
	assert.Equal(t, "scan.pdf", f.results.upload.Filename)
	assert.Equal(t, "%PDF-1.4 body", string(f.results.content))
}

func TestUploadResultRequiresFileAndRole(t *testing.T) {
	f := newFixture()
	body, contentType := multipartBody(t, map[string]string{"appointment_id": "10", "patient_id": "5"}, "", nil)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/api/v1/results", "staff", body, contentType).Code)

	body, contentType = multipartBody(t, map[string]string{"appointment_id": "10"}, "scan.pdf", []byte("%PDF"))
	assert.Equal(t, http.StatusForbidden, f.do(http.MethodPost, "/api/v1/results", "doctor", body, contentType).Code)
}

func TestVerifyResult(t *testing.T) {
	f := newFixture()
	w := f.json(http.MethodPost, "/api/v1/results/20/verify", "doctor", `{"status":"verified","comments":"ok"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "result verified", decode(t, w).Message)

	w = f.json(http.MethodPost, "/api/v1/results/20/verify", "doctor", `{"status":"approved"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.json(http.MethodPost, "/api/v1/results/20/verify", "staff", `{"status":"verified"}`)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestResultDownload(t *testing.T) {
	f := newFixture()
	w := f.do(http.MethodGet, "/api/v1/results/20", "staff", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "download_url")

	w = f.do(http.MethodGet, "/api/v1/results/20/download?token=good", "patient", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="scan.pdf"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "%PDF-1.4", w.Body.String())

	assert.Equal(t, http.StatusForbidden, f.do(http.MethodGet, "/api/v1/results/20/download?token=bad", "patient", nil, "").Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/api/v1/results/20/download", "patient", nil, "").Code)
}

func TestSendNotificationAdminOnly(t *testing.T) {
	f := newFixture()
	body := `{"recipient_group":"all_doctors","message":"Lab closed"}`
	w := f.json(http.MethodPost, "/api/v1/notifications", "admin", body)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "all_doctors", f.notifications.sent.RecipientGroup)

	assert.Equal(t, http.StatusForbidden, f.json(http.MethodPost, "/api/v1/notifications", "doctor", body).Code)
	assert.Equal(t, http.StatusOK, f.json(http.MethodPut, "/api/v1/notifications/30", "admin", `{"title":"x"}`).Code)
}

func TestListNotificationsViewer(t *testing.T) {
	f := newFixture()

	w := f.do(http.MethodGet, "/api/v1/notifications", "doctor", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.NotificationViewer{Role: models.RoleDoctor, ID: 3}, f.notifications.viewer)

	w = f.do(http.MethodGet, "/api/v1/notifications?role=patient&user_id=1", "admin", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.NotificationViewer{Role: models.RolePatient, ID: 1}, f.notifications.viewer)

	w = f.do(http.MethodGet, "/api/v1/notifications", "admin", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.NotificationViewer{}, f.notifications.viewer)

	assert.Equal(t, http.StatusForbidden, f.do(http.MethodGet, "/api/v1/notifications?role=admin", "patient", nil, "").Code)
	assert.Equal(t, http.StatusForbidden, f.do(http.MethodGet, "/api/v1/notifications?user_id=9", "patient", nil, "").Code)
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/v1/notifications?role=patient&user_id=5", "patient", nil, "").Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/api/v1/notifications?user_id=x", "admin", nil, "").Code)
	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodGet, "/api/v1/notifications", "", nil, "").Code)
}

func TestActivityLogs(t *testing.T) {
	f := newFixture()
	w := f.do(http.MethodGet, "/api/v1/activity-logs?actor_id=3&target_type=test_result&from=2026-03-01&page=2", "admin", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, f.activity.query.ActorID)
	assert.Equal(t, int64(3), *f.activity.query.ActorID)
	assert.Equal(t, "test_result", f.activity.query.TargetType)
	assert.Equal(t, 2, f.activity.query.Page)
	assert.Contains(t, w.Body.String(), `"pagination"`)

	w = f.do(http.MethodGet, "/api/v1/activity-logs/export", "admin", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, service.ExportFormatCSV, f.activity.format)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "activity-log.csv")

	assert.Equal(t, http.StatusForbidden, f.do(http.MethodGet, "/api/v1/activity-logs", "staff", nil, "").Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/api/v1/activity-logs?page=-1", "admin", nil, "").Code)
}

func TestHealthEndpoints(t *testing.T) {
	f := newFixture()
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/health", "", nil, "").Code)
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/ready", "", nil, "").Code)

	w := f.do(http.MethodGet, "/metrics", "", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "goroutines_total")
}

func TestReadyReportsFailingDependency(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewMetricsHandler(nil, map[string]Pinger{
		"postgres": PingFunc(func(ctx context.Context) error { return nil }),
		"redis":    PingFunc(func(ctx context.Context) error { return appErrors.ErrInternal }),
	})
	r := gin.New()
	r.GET("/ready", h.Ready)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), `"postgres":"ok"`)
}
