package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/clinic-workflow-api/internal/models"
	"github.com/noah-isme/clinic-workflow-api/pkg/database"
)

const notificationColumns = `id, recipient_group, recipient_id, title, message, created_by, created_at`

// NotificationRepository persists addressed notifications.
type NotificationRepository struct {
	db *sqlx.DB
}

// NewNotificationRepository constructs the repository.
func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create inserts a notification row.
func (r *NotificationRepository) Create(ctx context.Context, notification *models.Notification) error {
	const query = `INSERT INTO notifications (recipient_group, recipient_id, title, message, created_by)
	VALUES ($1, $2, $3, $4, $5)
	RETURNING id, created_at`
	row := database.Conn(ctx, r.db).QueryRowxContext(ctx, query,
		notification.RecipientGroup, notification.RecipientID, notification.Title, notification.Message, notification.CreatedBy)
	if err := row.Scan(&notification.ID, &notification.CreatedAt); err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	return nil
}

// Update rewrites the addressing and content of an existing notification.
func (r *NotificationRepository) Update(ctx context.Context, notification *models.Notification) error {
	const query = `UPDATE notifications
	SET recipient_group = :recipient_group, recipient_id = :recipient_id, title = :title, message = :message
	WHERE id = :id`
	res, err := sqlx.NamedExecContext(ctx, database.Conn(ctx, r.db), query, notification)
	if err != nil {
		return fmt.Errorf("update notification: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update notification rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// GetByID fetches a notification. sql.ErrNoRows is returned unwrapped.
func (r *NotificationRepository) GetByID(ctx context.Context, id int64) (*models.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE id = $1`
	var notification models.Notification
	if err := sqlx.GetContext(ctx, database.Conn(ctx, r.db), &notification, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get notification: %w", err)
	}
	return &notification, nil
}

// ListVisible returns the notifications the viewer may read, newest first.
// Admins and viewers without a role get every row.
func (r *NotificationRepository) ListVisible(ctx context.Context, viewer models.NotificationViewer) ([]models.Notification, error) {
	var (
		query string
		args  []interface{}
	)
	if viewer.SeesEverything() {
		query = `SELECT ` + notificationColumns + ` FROM notifications ORDER BY created_at DESC, id DESC`
	} else {
		query = `SELECT ` + notificationColumns + ` FROM notifications
	WHERE (recipient_group = $1 AND recipient_id IS NULL)
	   OR (recipient_group = $2 AND recipient_id = $3)
	   OR recipient_group = $4
	ORDER BY created_at DESC, id DESC`
		args = []interface{}{string(viewer.Role), models.NotificationGroupIndividual, viewer.ID, models.NotificationGroupAll}
	}
	notifications := make([]models.Notification, 0)
	if err := sqlx.SelectContext(ctx, database.Conn(ctx, r.db), &notifications, query, args...); err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return notifications, nil
}
