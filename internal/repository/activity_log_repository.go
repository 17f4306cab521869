package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/clinic-workflow-api/internal/models"
	"github.com/noah-isme/clinic-workflow-api/pkg/database"
)

// ActivityLogRepository appends and lists audit entries. It never updates or
// deletes rows.
type ActivityLogRepository struct {
	db *sqlx.DB
}

// NewActivityLogRepository constructs the repository.
func NewActivityLogRepository(db *sqlx.DB) *ActivityLogRepository {
	return &ActivityLogRepository{db: db}
}

// Create appends an entry through the transaction bound to ctx, if any.
func (r *ActivityLogRepository) Create(ctx context.Context, entry *models.ActivityLog) error {
	const query = `INSERT INTO activity_logs (actor_id, action, target_type, target_id, details)
	VALUES ($1, $2, $3, $4, $5)
	RETURNING id, created_at`
	row := database.Conn(ctx, r.db).QueryRowxContext(ctx, query,
		entry.ActorID, entry.Action, entry.TargetType, entry.TargetID, entry.Details)
	if err := row.Scan(&entry.ID, &entry.CreatedAt); err != nil {
		return fmt.Errorf("create activity log: %w", err)
	}
	return nil
}

// List returns entries matching the filter, newest first, plus the total count.
func (r *ActivityLogRepository) List(ctx context.Context, filter models.ActivityLogFilter) ([]models.ActivityLog, int, error) {
	conditions := make([]string, 0, 6)
	args := make([]interface{}, 0, 8)
	if filter.ActorID != nil {
		args = append(args, *filter.ActorID)
		conditions = append(conditions, fmt.Sprintf("actor_id = $%d", len(args)))
	}
	if filter.Action != "" {
		args = append(args, filter.Action)
		conditions = append(conditions, fmt.Sprintf("action = $%d", len(args)))
	}
	if filter.TargetType != "" {
		args = append(args, filter.TargetType)
		conditions = append(conditions, fmt.Sprintf("target_type = $%d", len(args)))
	}
	if filter.TargetID != nil {
		args = append(args, *filter.TargetID)
		conditions = append(conditions, fmt.Sprintf("target_id = $%d", len(args)))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		conditions = append(conditions, fmt.Sprintf("created_at < $%d", len(args)))
	}
	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	conn := database.Conn(ctx, r.db)
	var total int
	if err := sqlx.GetContext(ctx, conn, &total, "SELECT COUNT(*) FROM activity_logs"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count activity logs: %w", err)
	}

	page := filter.Page
	if page <= 0 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 500 {
		size = 50
	}
	query := fmt.Sprintf(`SELECT id, actor_id, action, target_type, target_id, details, created_at
	FROM activity_logs%s ORDER BY created_at DESC, id DESC LIMIT %d OFFSET %d`, where, size, (page-1)*size)

	entries := make([]models.ActivityLog, 0)
	if err := sqlx.SelectContext(ctx, conn, &entries, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list activity logs: %w", err)
	}
	return entries, total, nil
}
