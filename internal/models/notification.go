package models

import (
	"errors"
	"strings"
	"time"
)

// NotificationGroup is the stored addressing tag of a notification.
type NotificationGroup string

const (
	NotificationGroupAdmin      NotificationGroup = "admin"
	NotificationGroupStaff      NotificationGroup = "staff"
	NotificationGroupDoctor     NotificationGroup = "doctor"
	NotificationGroupPatient    NotificationGroup = "patient"
	NotificationGroupAll        NotificationGroup = "all"
	NotificationGroupIndividual NotificationGroup = "individual"
)

var (
	// ErrRecipientRequired is returned when no recipient intent was given.
	ErrRecipientRequired = errors.New("recipient_group is required")
	// ErrRecipientUnknown is returned for intents outside the known set.
	ErrRecipientUnknown = errors.New("recipient_group is not recognised")
	// ErrRecipientIDRequired is returned for individual intents without a recipient id.
	ErrRecipientIDRequired = errors.New("recipient_id is required for individual notifications")
	// ErrRecipientIDNotAllowed is returned when a broadcast intent carries a recipient id.
	ErrRecipientIDNotAllowed = errors.New("recipient_id is only allowed for individual notifications")
)

var recipientAliases = map[string]NotificationGroup{
	"all_patients": NotificationGroupPatient,
	"all_doctors":  NotificationGroupDoctor,
	"all_staff":    NotificationGroupStaff,
	"all_admins":   NotificationGroupAdmin,
	"all":          NotificationGroupAll,
	"everyone":     NotificationGroupAll,
	"admin":        NotificationGroupAdmin,
	"staff":        NotificationGroupStaff,
	"doctor":       NotificationGroupDoctor,
	"patient":      NotificationGroupPatient,
}

// ResolveRecipient maps a user facing recipient intent to the stored
// (group, recipient id) pair. Broadcast groups never carry a recipient id and
// asking for one is an error.
func ResolveRecipient(intent string, recipientID *int64) (NotificationGroup, *int64, error) {
	key := strings.ToLower(strings.TrimSpace(intent))
	if key == "" {
		return "", nil, ErrRecipientRequired
	}
	if key == string(NotificationGroupIndividual) {
		if recipientID == nil || *recipientID <= 0 {
			return "", nil, ErrRecipientIDRequired
		}
		id := *recipientID
		return NotificationGroupIndividual, &id, nil
	}
	group, ok := recipientAliases[key]
	if !ok {
		return "", nil, ErrRecipientUnknown
	}
	if recipientID != nil {
		return "", nil, ErrRecipientIDNotAllowed
	}
	return group, nil, nil
}

// Notification is an administrative message addressed to a group or a single user.
type Notification struct {
	ID             int64             `db:"id" json:"id"`
	RecipientGroup NotificationGroup `db:"recipient_group" json:"recipient_group"`
	RecipientID    *int64            `db:"recipient_id" json:"recipient_id,omitempty"`
	Title          string            `db:"title" json:"title"`
	Message        string            `db:"message" json:"message"`
	CreatedBy      int64             `db:"created_by" json:"created_by"`
	CreatedAt      time.Time         `db:"created_at" json:"created_at"`
}

// NotificationViewer identifies who is reading the notification feed.
type NotificationViewer struct {
	Role UserRole
	ID   int64
}

// SeesEverything reports whether the viewer gets the unfiltered audit view.
func (v NotificationViewer) SeesEverything() bool {
	return v.Role == "" || v.Role == RoleAdmin
}
