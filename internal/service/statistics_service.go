package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-assessment-api/internal/dto"
	"github.com/noah-isme/gema-assessment-api/internal/models"
	"github.com/noah-isme/gema-assessment-api/internal/observability"
	"github.com/noah-isme/gema-assessment-api/internal/repository"
	"github.com/noah-isme/gema-assessment-api/internal/scoring"
)

// StatisticsInvalidator drops cached statistics after submissions change.
type StatisticsInvalidator interface {
	Invalidate(ctx context.Context, assessmentID, instructorID uint)
}

// StatisticsService aggregates stored submissions into summary metrics.
type StatisticsService interface {
	StatisticsInvalidator
	AssessmentStatistics(ctx context.Context, assessmentID uint, actor Actor) (dto.AssessmentStatisticsResponse, error)
	InstructorStatistics(ctx context.Context, instructorID uint, actor Actor) (dto.InstructorStatisticsResponse, error)
}

type statisticsService struct {
	assessments repository.AssessmentRepository
	submissions repository.SubmissionRepository
	access      assessmentAccess
	cache       *redis.Client
	cacheTTL    time.Duration
	logger      zerolog.Logger
	now         func() time.Time
}

// NewStatisticsService builds the statistics aggregator. A nil cache disables caching.
func NewStatisticsService(assessments repository.AssessmentRepository, submissions repository.SubmissionRepository, courses repository.CourseRepository, cache *redis.Client, ttl time.Duration, logger zerolog.Logger) StatisticsService {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	return &statisticsService{
		assessments: assessments,
		submissions: submissions,
		access:      assessmentAccess{courses: courses},
		cache:       cache,
		cacheTTL:    ttl,
		logger:      logger.With().Str("component", "statistics_service").Logger(),
		now:         time.Now,
	}
}

func assessmentStatsKey(assessmentID uint) string {
	return fmt.Sprintf("stats:assessment:%d", assessmentID)
}

func instructorStatsKey(instructorID uint) string {
	return fmt.Sprintf("stats:instructor:%d", instructorID)
}

func (s *statisticsService) AssessmentStatistics(ctx context.Context, assessmentID uint, actor Actor) (dto.AssessmentStatisticsResponse, error) {
	tracer := otel.Tracer("github.com/noah-isme/gema-assessment-api/internal/service/statistics")
	ctx, span := tracer.Start(ctx, "statistics.assessment")
	span.SetAttributes(attribute.Int64("statistics.assessment_id", int64(assessmentID)))
	defer span.End()

	assessment, err := s.assessments.GetByID(ctx, assessmentID)
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			span.SetStatus(codes.Error, "assessment_not_found")
			return dto.AssessmentStatisticsResponse{}, ErrAssessmentNotFound
		}
		span.SetStatus(codes.Error, "assessment_lookup_failed")
		return dto.AssessmentStatisticsResponse{}, err
	}

	if err := s.access.authorize(ctx, assessment, actor); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "forbidden")
		return dto.AssessmentStatisticsResponse{}, err
	}

	key := assessmentStatsKey(assessmentID)
	var cached dto.AssessmentStatisticsResponse
	if s.readCache(ctx, key, &cached) {
		cached.CacheHit = true
		span.SetAttributes(attribute.Bool("statistics.cache_hit", true))
		return cached, nil
	}

	submissions, err := s.submissions.List(ctx, repository.SubmissionFilter{AssessmentID: &assessmentID})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "submission_lookup_failed")
		return dto.AssessmentStatisticsResponse{}, err
	}

	response := computeAssessmentStatistics(assessmentID, submissions)
	response.GeneratedAt = s.now().UTC()
	s.writeCache(ctx, key, response)

	return response, nil
}

func (s *statisticsService) InstructorStatistics(ctx context.Context, instructorID uint, actor Actor) (dto.InstructorStatisticsResponse, error) {
	tracer := otel.Tracer("github.com/noah-isme/gema-assessment-api/internal/service/statistics")
	ctx, span := tracer.Start(ctx, "statistics.instructor")
	span.SetAttributes(attribute.Int64("statistics.instructor_id", int64(instructorID)))
	defer span.End()

	if !actor.IsAdmin() && (actor.ID != instructorID || !actor.IsStaff()) {
		span.SetStatus(codes.Error, "forbidden")
		return dto.InstructorStatisticsResponse{}, ErrForbidden
	}

	key := instructorStatsKey(instructorID)
	var cached dto.InstructorStatisticsResponse
	if s.readCache(ctx, key, &cached) {
		cached.CacheHit = true
		span.SetAttributes(attribute.Bool("statistics.cache_hit", true))
		return cached, nil
	}

	assessments, err := s.assessments.ListByInstructor(ctx, instructorID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "assessment_lookup_failed")
		return dto.InstructorStatisticsResponse{}, err
	}

	ids := make([]uint, 0, len(assessments))
	for _, assessment := range assessments {
		ids = append(ids, assessment.ID)
	}

	submissions, err := s.submissions.ListByAssessments(ctx, ids)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "submission_lookup_failed")
		return dto.InstructorStatisticsResponse{}, err
	}

	response := computeInstructorStatistics(instructorID, assessments, submissions)
	response.GeneratedAt = s.now().UTC()
	s.writeCache(ctx, key, response)

	return response, nil
}

func (s *statisticsService) Invalidate(ctx context.Context, assessmentID, instructorID uint) {
	if s.cache == nil {
		return
	}

	keys := []string{assessmentStatsKey(assessmentID)}
	if instructorID != 0 {
		keys = append(keys, instructorStatsKey(instructorID))
	}

	if err := s.cache.Del(ctx, keys...).Err(); err != nil {
		s.logger.Warn().Err(err).Uint("assessment_id", assessmentID).Msg("failed to invalidate statistics cache")
	}
}

func (s *statisticsService) readCache(ctx context.Context, key string, target interface{}) bool {
	if s.cache == nil {
		return false
	}

	cached, err := s.cache.Get(ctx, key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn().Err(err).Str("key", key).Msg("failed to read statistics cache")
		}
		observability.StatisticsCacheMisses().Inc()
		return false
	}

	if err := json.Unmarshal([]byte(cached), target); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("discarding corrupt statistics cache entry")
		observability.StatisticsCacheMisses().Inc()
		return false
	}

	observability.StatisticsCacheHits().Inc()
	return true
}

func (s *statisticsService) writeCache(ctx context.Context, key string, value interface{}) {
	if s.cache == nil {
		return
	}

	payload, err := json.Marshal(value)
	if err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("failed to encode statistics")
		return
	}

	if err := s.cache.Set(ctx, key, payload, s.cacheTTL).Err(); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("failed to store statistics cache")
	}
}

// computeAssessmentStatistics summarizes the submissions of one assessment. An empty set
// yields zeroed metrics.
func computeAssessmentStatistics(assessmentID uint, submissions []models.Submission) dto.AssessmentStatisticsResponse {
	response := dto.AssessmentStatisticsResponse{AssessmentID: assessmentID}
	if len(submissions) == 0 {
		return response
	}

	var scoreSum, percentageSum, timeSum float64
	passed := 0
	for _, submission := range submissions {
		scoreSum += submission.EffectiveScore()
		percentageSum += submission.Percentage
		timeSum += float64(submission.TimeSpent)
		if submission.Passed {
			passed++
		}
	}

	total := float64(len(submissions))
	response.TotalSubmissions = len(submissions)
	response.AverageScore = scoring.Round(scoreSum / total)
	response.AveragePercentage = scoring.Round(percentageSum / total)
	response.PassRate = scoring.Round(float64(passed) / total * 100)
	response.AverageTimeSpent = scoring.Round(timeSum / total)
	return response
}

// computeInstructorStatistics builds the per-assessment lines and the instructor totals.
// Averages in the totals are taken over submissions, not over assessments.
func computeInstructorStatistics(instructorID uint, assessments []models.Assessment, submissions []models.Submission) dto.InstructorStatisticsResponse {
	byAssessment := make(map[uint][]models.Submission, len(assessments))
	for _, submission := range submissions {
		byAssessment[submission.AssessmentID] = append(byAssessment[submission.AssessmentID], submission)
	}

	response := dto.InstructorStatisticsResponse{
		InstructorID: instructorID,
		Assessments:  make([]dto.InstructorAssessmentSummary, 0, len(assessments)),
	}

	var scoreSum float64
	var passed, completed, total int
	for _, assessment := range assessments {
		items := byAssessment[assessment.ID]
		summary := computeAssessmentStatistics(assessment.ID, items)
		response.Assessments = append(response.Assessments, dto.InstructorAssessmentSummary{
			AssessmentID:     assessment.ID,
			Title:            assessment.Title,
			TotalSubmissions: summary.TotalSubmissions,
			AverageScore:     summary.AverageScore,
			PassRate:         summary.PassRate,
			GradedCount:      assessment.GradedCount,
		})

		for _, submission := range items {
			total++
			scoreSum += submission.EffectiveScore()
			if submission.Passed {
				passed++
			}
			if submission.Status == models.SubmissionStatusGraded || submission.Status == models.SubmissionStatusReturned {
				completed++
			}
		}
	}

	response.Totals.TotalAssessments = len(assessments)
	response.Totals.TotalSubmissions = total
	if total > 0 {
		response.Totals.AverageScore = scoring.Round(scoreSum / float64(total))
		response.Totals.CompletionRate = scoring.Round(float64(completed) / float64(total) * 100)
		response.Totals.PassRate = scoring.Round(float64(passed) / float64(total) * 100)
	}

	return response
}
