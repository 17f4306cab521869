package models

import "time"

// ResultStatus is the clinical review state of an uploaded result.
type ResultStatus string

const (
	ResultPending  ResultStatus = "pending"
	ResultVerified ResultStatus = "verified"
	ResultRejected ResultStatus = "rejected"
)

// ParseResultDecision accepts only the two review outcomes.
func ParseResultDecision(raw string) (ResultStatus, bool) {
	switch s := ResultStatus(raw); s {
	case ResultVerified, ResultRejected:
		return s, true
	default:
		return "", false
	}
}

// TestResult is an uploaded diagnostic report awaiting or past review.
type TestResult struct {
	ID            int64        `db:"id" json:"id"`
	AppointmentID int64        `db:"appointment_id" json:"appointment_id"`
	PatientID     int64        `db:"patient_id" json:"patient_id"`
	FilePath      string       `db:"file_path" json:"file_path"`
	MimeType      string       `db:"mime_type" json:"mime_type"`
	TechnicianID  int64        `db:"technician_id" json:"technician_id"`
	Status        ResultStatus `db:"status" json:"status"`
	VerifiedBy    *int64       `db:"verified_by" json:"verified_by,omitempty"`
	VerifiedAt    *time.Time   `db:"verified_at" json:"verified_at,omitempty"`
	Comments      *string      `db:"comments" json:"comments,omitempty"`
	CreatedAt     time.Time    `db:"created_at" json:"created_at"`
}

// ResultDecision is the review outcome written by Verify.
type ResultDecision struct {
	ResultID   int64
	Status     ResultStatus
	VerifiedBy int64
	VerifiedAt time.Time
	Comments   *string
	// OnlyPending restricts the write to results that are still pending.
	OnlyPending bool
}
