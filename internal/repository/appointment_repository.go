package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/clinic-workflow-api/internal/models"
	"github.com/noah-isme/clinic-workflow-api/pkg/database"
)

const appointmentColumns = `id, patient_id, name, email, phone,
	to_char(appointment_date, 'YYYY-MM-DD') AS appointment_date,
	to_char(appointment_time, 'HH24:MI') AS appointment_time,
	location_type, branch_id, test_id, staff_id, status, created_at, updated_at`

// AppointmentRepository persists appointments.
type AppointmentRepository struct {
	db *sqlx.DB
}

// NewAppointmentRepository constructs the repository.
func NewAppointmentRepository(db *sqlx.DB) *AppointmentRepository {
	return &AppointmentRepository{db: db}
}

// Create inserts a new appointment and fills the store assigned columns.
func (r *AppointmentRepository) Create(ctx context.Context, appointment *models.Appointment) error {
	if appointment.Status == "" {
		appointment.Status = models.AppointmentPending
	}
	const query = `INSERT INTO appointments
	(patient_id, name, email, phone, appointment_date, appointment_time, location_type, branch_id, test_id, staff_id, status)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	RETURNING id, created_at, updated_at`
	row := database.Conn(ctx, r.db).QueryRowxContext(ctx, query,
		appointment.PatientID, appointment.Name, appointment.Email, appointment.Phone,
		appointment.Date, appointment.Time, appointment.LocationType, appointment.BranchID,
		appointment.TestID, appointment.StaffID, appointment.Status)
	if err := row.Scan(&appointment.ID, &appointment.CreatedAt, &appointment.UpdatedAt); err != nil {
		return fmt.Errorf("create appointment: %w", err)
	}
	return nil
}

// GetByID fetches an appointment. sql.ErrNoRows is returned unwrapped.
func (r *AppointmentRepository) GetByID(ctx context.Context, id int64) (*models.Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE id = $1`
	var appointment models.Appointment
	if err := sqlx.GetContext(ctx, database.Conn(ctx, r.db), &appointment, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	return &appointment, nil
}

// Update writes every field present in the patch with a single statement. The
// write only applies while the row still has the expected status; otherwise
// ErrStaleWrite is returned.
func (r *AppointmentRepository) Update(ctx context.Context, id int64, expected models.AppointmentStatus, patch models.AppointmentPatch) error {
	params := map[string]interface{}{
		"id":              id,
		"expected_status": expected,
	}
	setParts := make([]string, 0, 6)
	if patch.Status != nil {
		setParts = append(setParts, "status = :status")
		params["status"] = *patch.Status
	}
	if patch.Date != nil {
		setParts = append(setParts, "appointment_date = :appointment_date")
		params["appointment_date"] = *patch.Date
	}
	if patch.Time != nil {
		setParts = append(setParts, "appointment_time = :appointment_time")
		params["appointment_time"] = *patch.Time
	}
	if patch.StaffID != nil {
		setParts = append(setParts, "staff_id = :staff_id")
		params["staff_id"] = *patch.StaffID
	}
	if patch.BranchID != nil {
		setParts = append(setParts, "branch_id = :branch_id")
		params["branch_id"] = *patch.BranchID
	}
	if len(setParts) == 0 {
		return fmt.Errorf("update appointment %d: empty patch", id)
	}
	setParts = append(setParts, "updated_at = NOW()")

	query := fmt.Sprintf("UPDATE appointments SET %s WHERE id = :id AND status = :expected_status", strings.Join(setParts, ", "))
	res, err := sqlx.NamedExecContext(ctx, database.Conn(ctx, r.db), query, params)
	if err != nil {
		return fmt.Errorf("update appointment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update appointment rows affected: %w", err)
	}
	if affected == 0 {
		return ErrStaleWrite
	}
	return nil
}

// MarkCompleted moves an appointment to completed regardless of its current
// status. Completing an already completed appointment is a no-op write.
func (r *AppointmentRepository) MarkCompleted(ctx context.Context, id int64) error {
	const query = `UPDATE appointments SET status = $2, updated_at = NOW() WHERE id = $1`
	res, err := database.Conn(ctx, r.db).ExecContext(ctx, query, id, models.AppointmentCompleted)
	if err != nil {
		return fmt.Errorf("complete appointment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("complete appointment rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
