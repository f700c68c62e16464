package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-assessment-api/internal/dto"
	"github.com/noah-isme/gema-assessment-api/internal/models"
	"github.com/noah-isme/gema-assessment-api/internal/repository"
)

type memoryActivityRepo struct {
	entries []models.ActivityLog
	err     error
}

func (m *memoryActivityRepo) Create(ctx context.Context, entry *models.ActivityLog) error {
	if m.err != nil {
		return m.err
	}
	entry.ID = uint(len(m.entries) + 1)
	entry.CreatedAt = time.Now()
	m.entries = append(m.entries, *entry)
	return nil
}

func (m *memoryActivityRepo) List(ctx context.Context, filter repository.ActivityLogFilter) ([]models.ActivityLog, int64, error) {
	return append([]models.ActivityLog(nil), m.entries...), int64(len(m.entries)), nil
}

func TestActivityServiceRecordMasksEmail(t *testing.T) {
	repo := &memoryActivityRepo{}
	svc := NewActivityService(repo, testLogger())

	entry, err := svc.Record(context.Background(), ActivityEntry{
		ActorID:    1,
		ActorRole:  "Admin",
		Action:     models.ActivitySubmissionGraded,
		EntityType: "Submission",
		EntityID:   ptrUint(5),
		Metadata: map[string]interface{}{
			"student_email": "student@example.com",
			"final_score":   7.5,
		},
	})
	require.NoError(t, err)
	require.Equal(t, "***", entry.Metadata["student_email"])
	require.Equal(t, 7.5, entry.Metadata["final_score"])
	require.Equal(t, "admin", entry.ActorRole)
	require.Equal(t, "submission", entry.EntityType)
}

func TestActivityServiceRecordRequiresAction(t *testing.T) {
	svc := NewActivityService(&memoryActivityRepo{}, testLogger())

	_, err := svc.Record(context.Background(), ActivityEntry{EntityType: "assessment"})
	require.Error(t, err)

	_, err = svc.Record(context.Background(), ActivityEntry{Action: models.ActivityBulkGraded})
	require.Error(t, err)
}

func TestActivityServiceListPaginates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := f.activity.Record(ctx, ActivityEntry{ActorID: 7, ActorRole: RoleTeacher, Action: models.ActivityBulkGraded, EntityType: "assessment", EntityID: ptrUint(uint(i + 1))})
		require.NoError(t, err)
	}
	_, err := f.activity.Record(ctx, ActivityEntry{ActorID: 8, ActorRole: RoleAdmin, Action: models.ActivityAssessmentCreate, EntityType: "assessment"})
	require.NoError(t, err)

	page, err := f.activity.List(ctx, dto.ActivityListRequest{Page: 1, PageSize: 2, ActorID: 7})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	require.EqualValues(t, 3, page.Pagination.TotalItems)
	require.Equal(t, 2, page.Pagination.TotalPages)

	created, err := f.activity.List(ctx, dto.ActivityListRequest{Action: models.ActivityAssessmentCreate})
	require.NoError(t, err)
	require.Len(t, created.Items, 1)
	require.Equal(t, uint(8), created.Items[0].ActorID)
}

func TestRecordActivitySwallowsFailures(t *testing.T) {
	repo := &memoryActivityRepo{err: errors.New("disk full")}
	svc := NewActivityService(repo, testLogger())

	require.NotPanics(t, func() {
		recordActivity(context.Background(), svc, testLogger(), ActivityEntry{Action: "x", EntityType: "y"})
		recordActivity(context.Background(), nil, testLogger(), ActivityEntry{})
	})
	require.Empty(t, repo.entries)
}
