package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-assessment-api/internal/models"
)

func newStatisticsFixture(t *testing.T) (*fixture, *miniredis.Miniredis, StatisticsService) {
	t.Helper()

	server, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(server.Close)

	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	f := newFixture(t)
	svc := NewStatisticsService(f.assessments, f.submissions, f.courses, client, time.Minute, testLogger())
	return f, server, svc
}

func TestComputeAssessmentStatistics(t *testing.T) {
	final := 9.0
	submissions := []models.Submission{
		{Score: 4, FinalScore: &final, Percentage: 90, Passed: true, TimeSpent: 100},
		{Score: 3, Percentage: 30, Passed: false, TimeSpent: 200},
		{Score: 6, Percentage: 60, Passed: true, TimeSpent: 301},
	}

	stats := computeAssessmentStatistics(7, submissions)
	require.Equal(t, uint(7), stats.AssessmentID)
	require.Equal(t, 3, stats.TotalSubmissions)
	require.InDelta(t, 6, stats.AverageScore, 1e-9)
	require.InDelta(t, 60, stats.AveragePercentage, 1e-9)
	require.InDelta(t, 66.67, stats.PassRate, 1e-9)
	require.InDelta(t, 200.33, stats.AverageTimeSpent, 1e-9)
}

func TestComputeAssessmentStatisticsEmpty(t *testing.T) {
	stats := computeAssessmentStatistics(3, nil)
	require.Equal(t, uint(3), stats.AssessmentID)
	require.Zero(t, stats.TotalSubmissions)
	require.Zero(t, stats.AverageScore)
	require.Zero(t, stats.PassRate)
}

func TestComputeInstructorStatistics(t *testing.T) {
	assessments := []models.Assessment{
		{ID: 1, Title: "Quiz", GradedCount: 1},
		{ID: 2, Title: "Exam"},
		{ID: 3, Title: "Empty"},
	}
	submissions := []models.Submission{
		{AssessmentID: 1, Score: 8, Passed: true, Status: models.SubmissionStatusGraded},
		{AssessmentID: 1, Score: 4, Passed: false, Status: models.SubmissionStatusSubmitted},
		{AssessmentID: 2, Score: 6, Passed: true, Status: models.SubmissionStatusReturned},
		{AssessmentID: 2, Score: 2, Passed: false, Status: models.SubmissionStatusResubmitted},
	}

	stats := computeInstructorStatistics(100, assessments, submissions)
	require.Equal(t, uint(100), stats.InstructorID)
	require.Len(t, stats.Assessments, 3)
	require.Equal(t, "Quiz", stats.Assessments[0].Title)
	require.Equal(t, 2, stats.Assessments[0].TotalSubmissions)
	require.InDelta(t, 6, stats.Assessments[0].AverageScore, 1e-9)
	require.Equal(t, 1, stats.Assessments[0].GradedCount)
	require.Zero(t, stats.Assessments[2].TotalSubmissions)

	require.Equal(t, 3, stats.Totals.TotalAssessments)
	require.Equal(t, 4, stats.Totals.TotalSubmissions)
	require.InDelta(t, 5, stats.Totals.AverageScore, 1e-9)
	require.InDelta(t, 50, stats.Totals.CompletionRate, 1e-9)
	require.InDelta(t, 50, stats.Totals.PassRate, 1e-9)
}

func TestAssessmentStatisticsAreCachedUntilInvalidated(t *testing.T) {
	f, server, svc := newStatisticsFixture(t)
	quiz := f.seedQuiz(t, nil)
	ana := f.seedStudent(t, "Ana")
	ben := f.seedStudent(t, "Ben")
	f.seedSubmission(t, quiz, ana, time.Now().UTC())
	ctx := context.Background()

	first, err := svc.AssessmentStatistics(ctx, quiz.ID, instructor(quiz))
	require.NoError(t, err)
	require.False(t, first.CacheHit)
	require.Equal(t, 1, first.TotalSubmissions)
	require.True(t, server.Exists(assessmentStatsKey(quiz.ID)))

	f.seedSubmission(t, quiz, ben, time.Now().UTC())

	cached, err := svc.AssessmentStatistics(ctx, quiz.ID, instructor(quiz))
	require.NoError(t, err)
	require.True(t, cached.CacheHit)
	require.Equal(t, 1, cached.TotalSubmissions)

	svc.Invalidate(ctx, quiz.ID, quiz.InstructorID)
	require.False(t, server.Exists(assessmentStatsKey(quiz.ID)))

	fresh, err := svc.AssessmentStatistics(ctx, quiz.ID, instructor(quiz))
	require.NoError(t, err)
	require.False(t, fresh.CacheHit)
	require.Equal(t, 2, fresh.TotalSubmissions)
}

func TestAssessmentStatisticsAccess(t *testing.T) {
	f, _, svc := newStatisticsFixture(t)
	quiz := f.seedQuiz(t, nil)
	ctx := context.Background()

	_, err := svc.AssessmentStatistics(ctx, quiz.ID, Actor{ID: 7, Role: RoleStudent})
	require.ErrorIs(t, err, ErrForbidden)

	_, err = svc.AssessmentStatistics(ctx, 9999, Actor{ID: 1, Role: RoleAdmin})
	require.ErrorIs(t, err, ErrAssessmentNotFound)

	empty, err := svc.AssessmentStatistics(ctx, quiz.ID, Actor{ID: 1, Role: RoleAdmin})
	require.NoError(t, err)
	require.Zero(t, empty.TotalSubmissions)
}

func TestInstructorStatistics(t *testing.T) {
	f, server, svc := newStatisticsFixture(t)
	quiz := f.seedQuiz(t, nil)
	f.seedQuiz(t, func(a *models.Assessment) { a.Title = "Quiz 2" })
	f.seedQuiz(t, func(a *models.Assessment) { a.InstructorID = 300 })
	ana := f.seedStudent(t, "Ana")
	f.seedSubmission(t, quiz, ana, time.Now().UTC())
	ctx := context.Background()

	stats, err := svc.InstructorStatistics(ctx, 100, Actor{ID: 100, Role: RoleInstructor})
	require.NoError(t, err)
	require.Equal(t, 2, stats.Totals.TotalAssessments)
	require.Equal(t, 1, stats.Totals.TotalSubmissions)
	require.Zero(t, stats.Totals.CompletionRate)
	require.True(t, server.Exists(instructorStatsKey(100)))

	_, err = svc.InstructorStatistics(ctx, 100, Actor{ID: 300, Role: RoleInstructor})
	require.ErrorIs(t, err, ErrForbidden)

	_, err = svc.InstructorStatistics(ctx, 100, Actor{ID: 100, Role: RoleStudent})
	require.ErrorIs(t, err, ErrForbidden)

	cached, err := svc.InstructorStatistics(ctx, 100, Actor{ID: 1, Role: RoleAdmin})
	require.NoError(t, err)
	require.True(t, cached.CacheHit)

	svc.Invalidate(ctx, quiz.ID, 100)
	require.False(t, server.Exists(instructorStatsKey(100)))
}

func TestGradingInvalidatesCachedStatistics(t *testing.T) {
	f, server, stats := newStatisticsFixture(t)
	quiz := f.seedQuiz(t, nil)
	ana := f.seedStudent(t, "Ana")
	submission := f.seedSubmission(t, quiz, ana, time.Now().UTC())
	ctx := context.Background()

	_, err := stats.AssessmentStatistics(ctx, quiz.ID, instructor(quiz))
	require.NoError(t, err)
	require.True(t, server.Exists(assessmentStatsKey(quiz.ID)))

	grading := NewGradingService(GradingDependencies{
		Assessments: f.assessments,
		Submissions: f.submissions,
		Courses:     f.courses,
		Outbox:      f.outbox,
		Transactor:  f.transactor,
		Dispatcher:  f.dispatcher,
		Stats:       stats,
	}, f.validate, GradingConfig{}, testLogger())

	_, err = grading.Grade(ctx, submission.ID, instructor(quiz), dtoGrade(10))
	require.NoError(t, err)
	require.False(t, server.Exists(assessmentStatsKey(quiz.ID)))

	after, err := stats.AssessmentStatistics(ctx, quiz.ID, instructor(quiz))
	require.NoError(t, err)
	require.InDelta(t, 10, after.AverageScore, 1e-9)
}
