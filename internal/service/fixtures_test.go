package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-assessment-api/internal/database"
	"github.com/noah-isme/gema-assessment-api/internal/models"
	"github.com/noah-isme/gema-assessment-api/internal/repository"
	"github.com/noah-isme/gema-assessment-api/internal/scoring"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func newTestDB(t *testing.T) *gorm.DB {
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

type recordingNotifier struct {
	mu       sync.Mutex
	messages map[uint][]string
	err      error
}

func (n *recordingNotifier) Notify(ctx context.Context, studentID uint, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	if n.messages == nil {
		n.messages = make(map[uint][]string)
	}
	n.messages[studentID] = append(n.messages[studentID], message)
	return nil
}

func (n *recordingNotifier) For(studentID uint) []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.messages[studentID]...)
}

type countingInvalidator struct {
	mu    sync.Mutex
	calls []uint
}

func (c *countingInvalidator) Invalidate(ctx context.Context, assessmentID, instructorID uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, assessmentID)
}

type fixture struct {
	db          *gorm.DB
	assessments repository.AssessmentRepository
	submissions repository.SubmissionRepository
	courses     repository.CourseRepository
	outbox      repository.OutboxRepository
	transactor  repository.Transactor
	notifier    *recordingNotifier
	stats       *countingInvalidator
	activity    ActivityService
	dispatcher  NotificationDispatcher
	validate    *validator.Validate
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := newTestDB(t)
	f := &fixture{
		db:          db,
		assessments: repository.NewAssessmentRepository(db),
		submissions: repository.NewSubmissionRepository(db),
		courses:     repository.NewCourseRepository(db),
		outbox:      repository.NewOutboxRepository(db),
		transactor:  repository.NewTransactor(db),
		notifier:    &recordingNotifier{},
		stats:       &countingInvalidator{},
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
	f.activity = NewActivityService(repository.NewActivityLogRepository(db), testLogger())
	f.dispatcher = NewNotificationDispatcher(f.outbox, f.notifier, DispatcherConfig{MaxAttempts: 2}, testLogger())
	return f
}

func (f *fixture) submissionService() *submissionService {
	return NewSubmissionService(f.assessments, f.submissions, f.courses, f.transactor, f.stats, f.validate, testLogger()).(*submissionService)
}

func (f *fixture) gradingService() *gradingService {
	return NewGradingService(GradingDependencies{
		Assessments: f.assessments,
		Submissions: f.submissions,
		Courses:     f.courses,
		Outbox:      f.outbox,
		Transactor:  f.transactor,
		Dispatcher:  f.dispatcher,
		Stats:       f.stats,
		Activity:    f.activity,
	}, f.validate, GradingConfig{MaxBulkEntries: 5}, testLogger()).(*gradingService)
}

func (f *fixture) seedStudent(t *testing.T, name string) models.Student {
	t.Helper()
	student := models.Student{Name: name, Email: fmt.Sprintf("%s@example.com", uuid.NewString()[:8])}
	require.NoError(t, f.db.Create(&student).Error)
	return student
}

func (f *fixture) seedCourse(t *testing.T, instructorID uint) models.Course {
	t.Helper()
	course := models.Course{Title: "Algorithms", InstructorID: instructorID}
	require.NoError(t, f.db.Create(&course).Error)
	return course
}

// seedQuiz stores a ten point quiz owned by instructor 100 with one question of every
// kind: single choice (2), true/false (1), multi select (3) and essay (4).
func (f *fixture) seedQuiz(t *testing.T, mutate func(*models.Assessment)) models.Assessment {
	t.Helper()

	course := f.seedCourse(t, 100)
	assessment := models.Assessment{
		Title:        "Quiz 1",
		Kind:         models.AssessmentKindQuiz,
		CourseID:     course.ID,
		InstructorID: 100,
		TotalPoints:  10,
		PassingScore: 50,
		Attachments:  datatypes.JSONSlice[string]{},
		Questions: []models.Question{
			{Text: "Pick B", Kind: models.QuestionKindSingleChoice, Points: 2, Position: 1, Options: datatypes.JSONSlice[string]{"A", "B", "C"}, CorrectAnswer: datatypes.NewJSONType(models.SingleChoice("B"))},
			{Text: "Go is compiled", Kind: models.QuestionKindTrueFalse, Points: 1, Position: 2, CorrectAnswer: datatypes.NewJSONType(models.TrueFalse(true))},
			{Text: "Pick A and C", Kind: models.QuestionKindMultiSelect, Points: 3, Position: 3, Options: datatypes.JSONSlice[string]{"A", "B", "C"}, CorrectAnswer: datatypes.NewJSONType(models.MultiSelect("A", "C"))},
			{Text: "Explain", Kind: models.QuestionKindEssay, Points: 4, Position: 4, CorrectAnswer: datatypes.NewJSONType(models.AnswerValue{Kind: models.QuestionKindEssay})},
		},
	}
	if mutate != nil {
		mutate(&assessment)
	}
	require.NoError(t, f.assessments.Create(context.Background(), &assessment))

	stored, err := f.assessments.GetByID(context.Background(), assessment.ID)
	require.NoError(t, err)
	return stored
}

// seedSubmission stores a submitted attempt directly, bypassing the lifecycle manager.
func (f *fixture) seedSubmission(t *testing.T, assessment models.Assessment, student models.Student, submittedAt time.Time) models.Submission {
	t.Helper()

	var count int64
	require.NoError(t, f.db.Model(&models.Submission{}).Where("assessment_id = ? AND student_id = ?", assessment.ID, student.ID).Count(&count).Error)

	daysLate := scoring.DaysLate(assessment.DueDate, submittedAt)

	submission := models.Submission{
		AssessmentID:  assessment.ID,
		StudentID:     student.ID,
		AttemptNumber: int(count) + 1,
		Score:         5,
		Percentage:    50,
		Passed:        true,
		TimeSpent:     600,
		SubmittedAt:   submittedAt,
		Status:        models.SubmissionStatusSubmitted,
		IsLate:        daysLate > 0,
		DaysLate:      daysLate,
	}
	require.NoError(t, f.submissions.Create(context.Background(), &submission))
	return submission
}

func (f *fixture) reloadSubmission(t *testing.T, id uint) models.Submission {
	t.Helper()
	submission, err := f.submissions.GetByID(context.Background(), id)
	require.NoError(t, err)
	return submission
}

func (f *fixture) outboxEntries(t *testing.T) []models.NotificationOutbox {
	t.Helper()
	var entries []models.NotificationOutbox
	require.NoError(t, f.db.Order("id ASC").Find(&entries).Error)
	return entries
}

// steppingClock returns a clock that advances one second per call.
func steppingClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	current := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		current = current.Add(time.Second)
		return current
	}
}

var errDeliveryDown = errors.New("delivery unavailable")

func ptrUint(v uint) *uint {
	return &v
}

func ptrFloat(v float64) *float64 {
	return &v
}

func ptrInt(v int) *int {
	return &v
}

func ptrString(v string) *string {
	return &v
}
