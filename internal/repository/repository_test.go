package repository_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-assessment-api/internal/database"
	"github.com/noah-isme/gema-assessment-api/internal/models"
	"github.com/noah-isme/gema-assessment-api/internal/repository"
)

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	return db
}

func TestOutboxEnqueueSkipsDuplicateKeys(t *testing.T) {
	repo := repository.NewOutboxRepository(setupDB(t))
	ctx := context.Background()

	ids, err := repo.Enqueue(ctx, []models.NotificationOutbox{
		{StudentID: 1, SubmissionID: 10, Message: "graded", DedupKey: "submission:10:graded:1"},
		{StudentID: 2, SubmissionID: 11, Message: "graded", DedupKey: "submission:11:graded:1"},
	})
	require.NoError(t, err)
	require.Len(t, ids, 2)

	again, err := repo.Enqueue(ctx, []models.NotificationOutbox{
		{StudentID: 1, SubmissionID: 10, Message: "graded", DedupKey: "submission:10:graded:1"},
	})
	require.NoError(t, err)
	require.Equal(t, ids[:1], again)

	require.NoError(t, repo.MarkDispatched(ctx, ids[0], time.Now()))

	pending, err := repo.ListPending(ctx, nil, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, uint(11), pending[0].SubmissionID)

	none, err := repo.ListPending(ctx, []uint{}, 10)
	require.NoError(t, err)
	require.Empty(t, none)
}

func TestOutboxMarkFailedStopsAfterMaxAttempts(t *testing.T) {
	db := setupDB(t)
	repo := repository.NewOutboxRepository(db)
	ctx := context.Background()

	ids, err := repo.Enqueue(ctx, []models.NotificationOutbox{
		{StudentID: 3, SubmissionID: 12, Message: "graded", DedupKey: "submission:12:graded:1"},
	})
	require.NoError(t, err)

	require.NoError(t, repo.MarkFailed(ctx, ids[0], "inbox unavailable", 2))
	var entry models.NotificationOutbox
	require.NoError(t, db.First(&entry, ids[0]).Error)
	require.Equal(t, models.OutboxStatusPending, entry.Status)
	require.Equal(t, 1, entry.Attempts)

	require.NoError(t, repo.MarkFailed(ctx, ids[0], "inbox unavailable", 2))
	require.NoError(t, db.First(&entry, ids[0]).Error)
	require.Equal(t, models.OutboxStatusFailed, entry.Status)
	require.Equal(t, "inbox unavailable", entry.LastError)

	pending, err := repo.ListPending(ctx, ids, 10)
	require.NoError(t, err)
	require.Empty(t, pending)
}

func TestNotificationMarkReadIsScopedToOwner(t *testing.T) {
	repo := repository.NewNotificationRepository(setupDB(t))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, repo.Create(ctx, &models.Notification{UserID: "7", Type: models.NotificationTypeGrade, Message: fmt.Sprintf("grade %d", i)}))
	}

	inbox, err := repo.ListByUser(ctx, "7", 2, 0)
	require.NoError(t, err)
	require.Len(t, inbox, 2)
	require.Equal(t, "grade 2", inbox[0].Message)

	_, err = repo.MarkRead(ctx, inbox[0].ID, "8")
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)

	read, err := repo.MarkRead(ctx, inbox[0].ID, "7")
	require.NoError(t, err)
	require.True(t, read.Read)

	reloaded, err := repo.ListByUser(ctx, "7", 1, 0)
	require.NoError(t, err)
	require.True(t, reloaded[0].Read)
}

func TestActivityLogListFiltersAndPages(t *testing.T) {
	repo := repository.NewActivityLogRepository(setupDB(t))
	ctx := context.Background()

	entity := uint(4)
	for i := 0; i < 5; i++ {
		require.NoError(t, repo.Create(ctx, &models.ActivityLog{
			ActorID:    9,
			ActorRole:  "instructor",
			Action:     models.ActivityBulkGraded,
			EntityType: "assessment",
			EntityID:   &entity,
		}))
	}
	require.NoError(t, repo.Create(ctx, &models.ActivityLog{ActorID: 1, ActorRole: "admin", Action: models.ActivityAssessmentCreate, EntityType: "assessment"}))

	actor := uint(9)
	page, total, err := repo.List(ctx, repository.ActivityLogFilter{ActorID: &actor, Page: 3, PageSize: 2})
	require.NoError(t, err)
	require.EqualValues(t, 5, total)
	require.Len(t, page, 1)

	all, total, err := repo.List(ctx, repository.ActivityLogFilter{Action: models.ActivityAssessmentCreate})
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	require.Len(t, all, 1)
	require.Nil(t, all[0].EntityID)

	missing := uint(99)
	empty, total, err := repo.List(ctx, repository.ActivityLogFilter{EntityID: &missing})
	require.NoError(t, err)
	require.Zero(t, total)
	require.Empty(t, empty)
}
