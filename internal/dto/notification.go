package dto

// SendNotificationRequest addresses a message to a recipient intent such as
// "all_patients" or "individual".
type SendNotificationRequest struct {
	RecipientGroup string `json:"recipient_group"`
	RecipientID    *int64 `json:"recipient_id"`
	Title          string `json:"title"`
	Message        string `json:"message"`
}

// UpdateNotificationRequest edits an existing notification. Absent fields keep
// their stored values; a new recipient intent is mapped like on send.
type UpdateNotificationRequest struct {
	RecipientGroup *string `json:"recipient_group"`
	RecipientID    *int64  `json:"recipient_id"`
	Title          *string `json:"title"`
	Message        *string `json:"message"`
}
