package models

import (
	"encoding/json"
	"time"
)

// AppointmentStatus is the lifecycle state of an appointment.
type AppointmentStatus string

const (
	AppointmentPending   AppointmentStatus = "pending"
	AppointmentConfirmed AppointmentStatus = "confirmed"
	AppointmentCompleted AppointmentStatus = "completed"
	AppointmentCancelled AppointmentStatus = "cancelled"
)

var appointmentTransitions = map[AppointmentStatus][]AppointmentStatus{
	AppointmentPending:   {AppointmentPending, AppointmentConfirmed, AppointmentCancelled, AppointmentCompleted},
	AppointmentConfirmed: {AppointmentConfirmed, AppointmentCancelled, AppointmentCompleted},
}

// ParseAppointmentStatus validates a raw status value.
func ParseAppointmentStatus(raw string) (AppointmentStatus, bool) {
	switch s := AppointmentStatus(raw); s {
	case AppointmentPending, AppointmentConfirmed, AppointmentCompleted, AppointmentCancelled:
		return s, true
	default:
		return "", false
	}
}

// Terminal reports whether no further transition is allowed.
func (s AppointmentStatus) Terminal() bool {
	return s == AppointmentCompleted || s == AppointmentCancelled
}

// CanTransitionTo reports whether the lifecycle allows moving from s to next.
// Completion through a patch is the staff override; result verification
// completes appointments through a separate path.
func (s AppointmentStatus) CanTransitionTo(next AppointmentStatus) bool {
	for _, allowed := range appointmentTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// LocationType is where the sample is collected.
type LocationType string

const (
	LocationBranch LocationType = "branch"
	LocationHome   LocationType = "home"
)

// Appointment is a booked diagnostic test.
type Appointment struct {
	ID           int64             `db:"id" json:"id"`
	PatientID    *int64            `db:"patient_id" json:"patient_id,omitempty"`
	Name         string            `db:"name" json:"name"`
	Email        *string           `db:"email" json:"email,omitempty"`
	Phone        string            `db:"phone" json:"phone"`
	Date         string            `db:"appointment_date" json:"date"`
	Time         *string           `db:"appointment_time" json:"time,omitempty"`
	LocationType LocationType      `db:"location_type" json:"location_type"`
	BranchID     *int64            `db:"branch_id" json:"branch_id,omitempty"`
	TestID       *int64            `db:"test_id" json:"test_id,omitempty"`
	StaffID      *int64            `db:"staff_id" json:"staff_id,omitempty"`
	Status       AppointmentStatus `db:"status" json:"status"`
	CreatedAt    time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time         `db:"updated_at" json:"updated_at"`
}

// PrimaryBranchID returns the branch acting as collection point. Home visits
// have none; a branch on a home appointment only services the visit.
func (a *Appointment) PrimaryBranchID() *int64 {
	if a == nil || a.LocationType == LocationHome {
		return nil
	}
	return a.BranchID
}

// MarshalJSON adds collection_branch_id, the branch the sample is taken at.
func (a Appointment) MarshalJSON() ([]byte, error) {
	type plain Appointment
	return json.Marshal(struct {
		plain
		CollectionBranchID *int64 `json:"collection_branch_id,omitempty"`
	}{plain: plain(a), CollectionBranchID: a.PrimaryBranchID()})
}

// AppointmentPatch carries the columns an update may touch. Nil fields are
// left unchanged.
type AppointmentPatch struct {
	Status   *AppointmentStatus
	Date     *string
	Time     *string
	StaffID  *int64
	BranchID *int64
}

// Empty reports whether the patch carries no field.
func (p AppointmentPatch) Empty() bool {
	return p.Status == nil && p.Date == nil && p.Time == nil && p.StaffID == nil && p.BranchID == nil
}
