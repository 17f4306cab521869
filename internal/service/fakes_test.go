package service

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/noah-isme/clinic-workflow-api/internal/models"
	"github.com/noah-isme/clinic-workflow-api/internal/repository"
	"github.com/noah-isme/clinic-workflow-api/pkg/storage"
)

type txDepthKey struct{}

// clinicStore is an in-memory entity store whose WithinTx snapshots every
// table and restores it when the unit of work fails.
type clinicStore struct {
	mu            sync.Mutex
	appointments  map[int64]models.Appointment
	results       map[int64]models.TestResult
	notifications map[int64]models.Notification
	logs          []models.ActivityLog
	patients      map[int64]bool
	nextID        int64
	clock         time.Time

	failActivity error
	failCommit   error
	commits      int
}

func newClinicStore() *clinicStore {
	return &clinicStore{
		appointments:  map[int64]models.Appointment{},
		results:       map[int64]models.TestResult{},
		notifications: map[int64]models.Notification{},
		patients:      map[int64]bool{},
		clock:         time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC),
	}
}

type clinicSnapshot struct {
	appointments  map[int64]models.Appointment
	results       map[int64]models.TestResult
	notifications map[int64]models.Notification
	logs          []models.ActivityLog
}

func (s *clinicStore) snapshot() clinicSnapshot {
	snap := clinicSnapshot{
		appointments:  make(map[int64]models.Appointment, len(s.appointments)),
		results:       make(map[int64]models.TestResult, len(s.results)),
		notifications: make(map[int64]models.Notification, len(s.notifications)),
		logs:          append([]models.ActivityLog(nil), s.logs...),
	}
	for k, v := range s.appointments {
		snap.appointments[k] = v
	}
	for k, v := range s.results {
		snap.results[k] = v
	}
	for k, v := range s.notifications {
		snap.notifications[k] = v
	}
	return snap
}

func (s *clinicStore) restore(snap clinicSnapshot) {
	s.appointments = snap.appointments
	s.results = snap.results
	s.notifications = snap.notifications
	s.logs = snap.logs
}

func (s *clinicStore) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txDepthKey{}) != nil {
		return fn(ctx)
	}
	s.mu.Lock()
	snap := s.snapshot()
	s.mu.Unlock()

	err := fn(context.WithValue(ctx, txDepthKey{}, true))
	if err == nil && s.failCommit != nil {
		err = s.failCommit
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.restore(snap)
		return err
	}
	s.commits++
	return nil
}

func (s *clinicStore) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *clinicStore) tick() time.Time {
	s.clock = s.clock.Add(time.Minute)
	return s.clock
}

func (s *clinicStore) logsFor(targetType string, targetID int64) []models.ActivityLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.ActivityLog, 0)
	for _, l := range s.logs {
		if l.TargetType == targetType && l.TargetID == targetID {
			out = append(out, l)
		}
	}
	return out
}

type fakeAppointments struct{ *clinicStore }

func (f fakeAppointments) Create(_ context.Context, a *models.Appointment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a.ID = f.id()
	a.CreatedAt = f.tick()
	a.UpdatedAt = a.CreatedAt
	f.appointments[a.ID] = *a
	return nil
}

func (f fakeAppointments) GetByID(_ context.Context, id int64) (*models.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.appointments[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &a, nil
}

func (f fakeAppointments) Update(_ context.Context, id int64, expected models.AppointmentStatus, patch models.AppointmentPatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.appointments[id]
	if !ok || a.Status != expected {
		return repository.ErrStaleWrite
	}
	if patch.Status != nil {
		a.Status = *patch.Status
	}
	if patch.Date != nil {
		a.Date = *patch.Date
	}
	if patch.Time != nil {
		t := *patch.Time
		a.Time = &t
	}
	if patch.StaffID != nil {
		v := *patch.StaffID
		a.StaffID = &v
	}
	if patch.BranchID != nil {
		v := *patch.BranchID
		a.BranchID = &v
	}
	a.UpdatedAt = f.tick()
	f.appointments[id] = a
	return nil
}

func (f fakeAppointments) MarkCompleted(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.appointments[id]
	if !ok {
		return sql.ErrNoRows
	}
	a.Status = models.AppointmentCompleted
	f.appointments[id] = a
	return nil
}

type fakeResults struct{ *clinicStore }

func (f fakeResults) Create(_ context.Context, r *models.TestResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r.ID = f.id()
	r.CreatedAt = f.tick()
	f.results[r.ID] = *r
	return nil
}

func (f fakeResults) GetByID(_ context.Context, id int64) (*models.TestResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.results[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &r, nil
}

func (f fakeResults) UpdateDecision(_ context.Context, d models.ResultDecision) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.results[d.ResultID]
	if !ok {
		return sql.ErrNoRows
	}
	if d.OnlyPending && r.Status != models.ResultPending {
		return repository.ErrStaleWrite
	}
	r.Status = d.Status
	by := d.VerifiedBy
	at := d.VerifiedAt
	r.VerifiedBy = &by
	r.VerifiedAt = &at
	r.Comments = d.Comments
	f.results[d.ResultID] = r
	return nil
}

type fakeNotifications struct{ *clinicStore }

func (f fakeNotifications) Create(_ context.Context, n *models.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	n.ID = f.id()
	n.CreatedAt = f.tick()
	f.notifications[n.ID] = *n
	return nil
}

func (f fakeNotifications) Update(_ context.Context, n *models.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.notifications[n.ID]; !ok {
		return sql.ErrNoRows
	}
	f.notifications[n.ID] = *n
	return nil
}

func (f fakeNotifications) GetByID(_ context.Context, id int64) (*models.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.notifications[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &n, nil
}

func (f fakeNotifications) ListVisible(_ context.Context, viewer models.NotificationViewer) ([]models.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.Notification, 0, len(f.notifications))
	for _, n := range f.notifications {
		visible := viewer.SeesEverything() ||
			(n.RecipientGroup == models.NotificationGroup(viewer.Role) && n.RecipientID == nil) ||
			(n.RecipientGroup == models.NotificationGroupIndividual && n.RecipientID != nil && *n.RecipientID == viewer.ID) ||
			n.RecipientGroup == models.NotificationGroupAll
		if visible {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

type fakeActivity struct{ *clinicStore }

func (f fakeActivity) Create(_ context.Context, entry *models.ActivityLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failActivity != nil {
		return f.failActivity
	}
	entry.ID = f.id()
	entry.CreatedAt = f.tick()
	f.logs = append(f.logs, *entry)
	return nil
}

type fakePatients struct{ *clinicStore }

func (f fakePatients) Exists(_ context.Context, id int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.patients[id], nil
}

// memoryFiles is a FileStore kept in memory.
type memoryFiles struct {
	mu      sync.Mutex
	files   map[string][]byte
	putErr  error
	deleted []string
}

func newMemoryFiles() *memoryFiles {
	return &memoryFiles{files: map[string][]byte{}}
}

func (m *memoryFiles) Put(_ context.Context, key string, r io.Reader, _ string) error {
	if m.putErr != nil {
		return m.putErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[key] = data
	return nil
}

func (m *memoryFiles) Open(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memoryFiles) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, key)
	m.deleted = append(m.deleted, key)
	return nil
}

func (m *memoryFiles) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.files)
}

type workflowCounter struct {
	mu       sync.Mutex
	outcomes map[string][]string
}

func (w *workflowCounter) RecordWorkflow(operation, outcome string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.outcomes == nil {
		w.outcomes = map[string][]string{}
	}
	w.outcomes[operation] = append(w.outcomes[operation], outcome)
}

var errBoom = errors.New("boom")

// clinic wires every service over one clinicStore.
type clinic struct {
	store         *clinicStore
	files         *memoryFiles
	appointments  *AppointmentService
	results       *ResultService
	notifications *NotificationService
}

func newClinic(enforce, allowRedecision bool, opts ...NotificationOption) *clinic {
	store := newClinicStore()
	files := newMemoryFiles()
	audit := NewAuditService(fakeActivity{store}, nil)
	appointments := NewAppointmentService(fakeAppointments{store}, store, audit, nil, nil,
		AppointmentServiceConfig{EnforceTransitions: enforce})
	signer := storage.NewSignedURLSigner("test-secret", time.Minute)
	results := NewResultService(fakeResults{store}, fakeAppointments{store}, appointments, fakePatients{store},
		files, signer, store, audit, nil, ResultServiceConfig{AllowRedecision: allowRedecision})
	notifications := NewNotificationService(fakeNotifications{store}, store, audit, nil, opts...)
	return &clinic{store: store, files: files, appointments: appointments, results: results, notifications: notifications}
}
