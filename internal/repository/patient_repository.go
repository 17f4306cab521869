package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/clinic-workflow-api/pkg/database"
)

// PatientRepository answers existence checks against the patients table.
type PatientRepository struct {
	db *sqlx.DB
}

// NewPatientRepository constructs the repository.
func NewPatientRepository(db *sqlx.DB) *PatientRepository {
	return &PatientRepository{db: db}
}

// Exists reports whether a patient row with id is present.
func (r *PatientRepository) Exists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	const query = `SELECT EXISTS(SELECT 1 FROM patients WHERE id = $1)`
	if err := sqlx.GetContext(ctx, database.Conn(ctx, r.db), &exists, query, id); err != nil {
		return false, fmt.Errorf("check patient exists: %w", err)
	}
	return exists, nil
}
