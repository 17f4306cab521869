package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/clinic-workflow-api/internal/models"
	"github.com/noah-isme/clinic-workflow-api/pkg/database"
)

// TestResultRepository persists uploaded diagnostic results.
type TestResultRepository struct {
	db *sqlx.DB
}

// NewTestResultRepository constructs the repository.
func NewTestResultRepository(db *sqlx.DB) *TestResultRepository {
	return &TestResultRepository{db: db}
}

// Create inserts a result row.
func (r *TestResultRepository) Create(ctx context.Context, result *models.TestResult) error {
	if result.Status == "" {
		result.Status = models.ResultPending
	}
	const query = `INSERT INTO test_results (appointment_id, patient_id, file_path, mime_type, technician_id, status)
	VALUES ($1, $2, $3, $4, $5, $6)
	RETURNING id, created_at`
	row := database.Conn(ctx, r.db).QueryRowxContext(ctx, query,
		result.AppointmentID, result.PatientID, result.FilePath, result.MimeType, result.TechnicianID, result.Status)
	if err := row.Scan(&result.ID, &result.CreatedAt); err != nil {
		return fmt.Errorf("create test result: %w", err)
	}
	return nil
}

// GetByID fetches a result. sql.ErrNoRows is returned unwrapped.
func (r *TestResultRepository) GetByID(ctx context.Context, id int64) (*models.TestResult, error) {
	const query = `SELECT id, appointment_id, patient_id, file_path, mime_type, technician_id, status,
	verified_by, verified_at, comments, created_at
	FROM test_results WHERE id = $1`
	var result models.TestResult
	if err := sqlx.GetContext(ctx, database.Conn(ctx, r.db), &result, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get test result: %w", err)
	}
	return &result, nil
}

// UpdateDecision records the review outcome. With OnlyPending set the write
// is guarded by status = 'pending' and ErrStaleWrite signals a decided row.
func (r *TestResultRepository) UpdateDecision(ctx context.Context, decision models.ResultDecision) error {
	query := `UPDATE test_results
	SET status = :status, verified_by = :verified_by, verified_at = :verified_at, comments = :comments
	WHERE id = :id`
	if decision.OnlyPending {
		query += " AND status = 'pending'"
	}
	params := map[string]interface{}{
		"id":          decision.ResultID,
		"status":      decision.Status,
		"verified_by": decision.VerifiedBy,
		"verified_at": decision.VerifiedAt,
		"comments":    decision.Comments,
	}
	res, err := sqlx.NamedExecContext(ctx, database.Conn(ctx, r.db), query, params)
	if err != nil {
		return fmt.Errorf("update test result decision: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update test result rows affected: %w", err)
	}
	if affected == 0 {
		if decision.OnlyPending {
			return ErrStaleWrite
		}
		return sql.ErrNoRows
	}
	return nil
}
