package handler_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/noah-isme/gema-assessment-api/internal/config"
	"github.com/noah-isme/gema-assessment-api/internal/database"
	"github.com/noah-isme/gema-assessment-api/internal/handler"
	"github.com/noah-isme/gema-assessment-api/internal/middleware"
	"github.com/noah-isme/gema-assessment-api/internal/models"
	"github.com/noah-isme/gema-assessment-api/internal/repository"
	"github.com/noah-isme/gema-assessment-api/internal/router"
	"github.com/noah-isme/gema-assessment-api/internal/service"
)

const testJWTSecret = "handler-test-secret"

type testEnv struct {
	app           *fiber.App
	db            *gorm.DB
	notifications service.NotificationService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, database.Migrate(db))

	logger := zerolog.New(io.Discard)
	validate := validator.New(validator.WithRequiredStructEnabled())

	assessments := repository.NewAssessmentRepository(db)
	submissions := repository.NewSubmissionRepository(db)
	courses := repository.NewCourseRepository(db)
	outbox := repository.NewOutboxRepository(db)
	transactor := repository.NewTransactor(db)

	activity := service.NewActivityService(repository.NewActivityLogRepository(db), logger)
	stats := service.NewStatisticsService(assessments, submissions, courses, nil, time.Minute, logger)
	notifications := service.NewNotificationService(repository.NewNotificationRepository(db), nil, "", nil, validate, logger)
	dispatcher := service.NewNotificationDispatcher(outbox, notifications, service.DispatcherConfig{MaxAttempts: 3}, logger)
	grading := service.NewGradingService(service.GradingDependencies{
		Assessments: assessments,
		Submissions: submissions,
		Courses:     courses,
		Outbox:      outbox,
		Transactor:  transactor,
		Dispatcher:  dispatcher,
		Stats:       stats,
		Activity:    activity,
	}, validate, service.GradingConfig{MaxBulkEntries: 50}, logger)

	cfg := config.Config{
		AppName:          "GEMA Assessment API",
		AppEnv:           "test",
		JWTSecret:        testJWTSecret,
		SubmitRateLimit:  100,
		SubmitRateWindow: time.Minute,
	}

	app := fiber.New()
	app.Use(middleware.CorrelationID())
	router.Register(app, cfg, router.Dependencies{
		AssessmentHandler:   handler.NewAssessmentHandler(service.NewAssessmentService(assessments, courses, validate, nil, activity, logger), logger),
		SubmissionHandler:   handler.NewSubmissionHandler(service.NewSubmissionService(assessments, submissions, courses, transactor, stats, validate, logger), logger),
		GradingHandler:      handler.NewGradingHandler(grading, logger),
		StatisticsHandler:   handler.NewStatisticsHandler(stats, logger),
		NotificationHandler: handler.NewNotificationHandler(notifications, logger, time.Second),
		ActivityHandler:     handler.NewActivityHandler(activity, logger),
	})

	return &testEnv{app: app, db: db, notifications: notifications}
}

func bearer(t *testing.T, userID uint, role string) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  strconv.FormatUint(uint64(userID), 10),
		"role": role,
		"exp":  time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testJWTSecret))
	require.NoError(t, err)
	return "Bearer " + signed
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}, auth string) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	if auth != "" {
		req.Header.Set(fiber.HeaderAuthorization, auth)
	}

	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func (e *testEnv) seedCourse(t *testing.T, instructorID uint) models.Course {
	t.Helper()
	course := models.Course{Title: "Programming 101", InstructorID: instructorID}
	require.NoError(t, e.db.Create(&course).Error)
	return course
}

func (e *testEnv) seedStudent(t *testing.T, name string) models.Student {
	t.Helper()
	student := models.Student{Name: name, Email: uuid.NewString() + "@school.test"}
	require.NoError(t, e.db.Create(&student).Error)
	return student
}

// createQuiz posts a four question quiz worth 10 points through the API.
func (e *testEnv) createQuiz(t *testing.T, courseID, instructorID uint, mutate func(map[string]interface{})) uint {
	t.Helper()

	payload := map[string]interface{}{
		"title":         "Week 3 quiz",
		"kind":          "quiz",
		"course_id":     courseID,
		"total_points":  10,
		"passing_score": 60,
		"questions": []map[string]interface{}{
			{"text": "Pick B", "kind": "single_choice", "points": 4, "options": []string{"A", "B"}, "correct_answer": "B"},
			{"text": "Sky is blue", "kind": "true_false", "points": 2, "correct_answer": true},
			{"text": "Primes", "kind": "multi_select", "points": 3, "options": []string{"2", "3", "4"}, "correct_answer": []string{"2", "3"}},
			{"text": "Discuss", "kind": "essay", "points": 1},
		},
	}
	if mutate != nil {
		mutate(payload)
	}

	resp := e.do(t, http.MethodPost, "/api/v1/assessments", payload, bearer(t, instructorID, "instructor"))
	require.Equal(t, fiber.StatusCreated, resp.StatusCode, readBody(t, resp))

	var body envelope[struct {
		ID        uint `json:"id"`
		Questions []struct {
			ID uint `json:"id"`
		} `json:"questions"`
	}]
	decodeResponse(t, resp, &body)
	require.Len(t, body.Data.Questions, 4)
	return body.Data.ID
}

// answers builds a submission answering the quiz questions in order.
func (e *testEnv) answers(t *testing.T, assessmentID uint, raw ...string) map[string]interface{} {
	t.Helper()

	var questions []models.Question
	require.NoError(t, e.db.Where("assessment_id = ?", assessmentID).Order("position ASC, id ASC").Find(&questions).Error)

	items := make([]map[string]interface{}, 0, len(raw))
	for i, value := range raw {
		if value == "" {
			continue
		}
		items = append(items, map[string]interface{}{
			"question_id": questions[i].ID,
			"answer":      json.RawMessage(value),
			"time_spent":  20,
		})
	}
	return map[string]interface{}{"answers": items, "time_spent": 300}
}

type envelope[T any] struct {
	Success bool              `json:"success"`
	Message string            `json:"message"`
	Data    T                 `json:"data"`
	Details map[string]string `json:"details"`
}

func decodeResponse(t *testing.T, resp *http.Response, target interface{}) {
	t.Helper()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.NoError(t, json.Unmarshal(data, target), string(data))
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body = io.NopCloser(bytes.NewReader(data))
	return string(data)
}
