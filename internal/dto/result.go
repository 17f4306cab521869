package dto

import "github.com/noah-isme/clinic-workflow-api/internal/models"

// UploadResultRequest holds the form fields sent with a result file.
type UploadResultRequest struct {
	AppointmentID int64 `form:"appointment_id" json:"appointment_id" validate:"required,gt=0"`
	PatientID     int64 `form:"patient_id" json:"patient_id" validate:"required,gt=0"`
}

// VerifyResultRequest carries the clinical review decision.
type VerifyResultRequest struct {
	Status   string  `json:"status" validate:"required"`
	Comments *string `json:"comments"`
}

// ResultDownloadResponse enriches result metadata with a signed download URL.
type ResultDownloadResponse struct {
	models.TestResult
	DownloadURL string `json:"download_url"`
	ExpiresAt   string `json:"expires_at"`
}
