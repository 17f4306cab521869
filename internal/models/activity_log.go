package models

import "time"

// Activity actions recorded by the workflow.
const (
	ActionBookedAppointment        = "Booked Appointment"
	ActionUpdatedAppointmentState  = "Updated Appointment Status"
	ActionRescheduledAppointment   = "Rescheduled Appointment"
	ActionAssignedStaff            = "Assigned Staff"
	ActionUpdatedAppointmentBranch = "Updated Appointment Branch"
	ActionUploadedResult           = "Uploaded Result"
	ActionVerifiedResult           = "Verified Result"
	ActionRejectedResult           = "Rejected Result"
	ActionSentNotification         = "Sent Notification"
	ActionUpdatedNotification      = "Updated Notification"
)

// Activity target types.
const (
	TargetAppointment  = "appointment"
	TargetTestResult   = "test_result"
	TargetNotification = "notification"
)

// ActivityLog is an append-only audit record.
type ActivityLog struct {
	ID         int64     `db:"id" json:"id"`
	ActorID    int64     `db:"actor_id" json:"actor_id"`
	Action     string    `db:"action" json:"action"`
	TargetType string    `db:"target_type" json:"target_type"`
	TargetID   int64     `db:"target_id" json:"target_id"`
	Details    string    `db:"details" json:"details"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// ActivityLogFilter constrains activity log listings.
type ActivityLogFilter struct {
	ActorID    *int64
	Action     string
	TargetType string
	TargetID   *int64
	From       *time.Time
	To         *time.Time
	Page       int
	PageSize   int
}
