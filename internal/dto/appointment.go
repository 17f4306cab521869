package dto

// CreateAppointmentRequest is the booking payload.
type CreateAppointmentRequest struct {
	Name         string  `json:"name" validate:"required"`
	Email        *string `json:"email" validate:"omitempty,email"`
	Phone        string  `json:"phone" validate:"required"`
	Date         string  `json:"date" validate:"required,calendardate"`
	Time         *string `json:"time" validate:"omitempty,clocktime"`
	LocationType string  `json:"location_type" validate:"required,locationtype"`
	BranchID     *int64  `json:"branch_id" validate:"omitempty,gt=0"`
	TestID       *int64  `json:"test_id" validate:"omitempty,gt=0"`
	PatientID    *int64  `json:"patient_id" validate:"omitempty,gt=0"`
}

// UpdateAppointmentRequest is a partial patch; absent fields stay unchanged.
type UpdateAppointmentRequest struct {
	Status   *string `json:"status" validate:"omitempty,appointmentstatus"`
	Date     *string `json:"date" validate:"omitempty,calendardate"`
	Time     *string `json:"time" validate:"omitempty,clocktime"`
	StaffID  *int64  `json:"staff_id" validate:"omitempty,gt=0"`
	BranchID *int64  `json:"branch_id" validate:"omitempty,gt=0"`
}
