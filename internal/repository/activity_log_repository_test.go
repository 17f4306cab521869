package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/clinic-workflow-api/internal/models"
)

func TestActivityLogRepositoryCreate(t *testing.T) {
	db, mock := newRepoMock(t)
	repo := NewActivityLogRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO activity_logs")).
		WithArgs(int64(4), models.ActionAssignedStaff, models.TargetAppointment, int64(5), "staff_id=7").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(1, time.Now()))

	entry := &models.ActivityLog{ActorID: 4, Action: models.ActionAssignedStaff, TargetType: models.TargetAppointment, TargetID: 5, Details: "staff_id=7"}
	require.NoError(t, repo.Create(context.Background(), entry))
	assert.Equal(t, int64(1), entry.ID)
}

func TestActivityLogRepositoryListFilters(t *testing.T) {
	db, mock := newRepoMock(t)
	repo := NewActivityLogRepository(db)
	target := int64(5)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM activity_logs WHERE target_type = $1 AND target_id = $2")).
		WithArgs("appointment", int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY created_at DESC, id DESC LIMIT 20 OFFSET 20")).
		WithArgs("appointment", int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "actor_id", "action", "target_type", "target_id", "details", "created_at"}).
			AddRow(1, 4, "Assigned Staff", "appointment", 5, "", time.Now()))

	entries, total, err := repo.List(context.Background(), models.ActivityLogFilter{
		TargetType: models.TargetAppointment, TargetID: &target, Page: 2, PageSize: 20,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, entries, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}
