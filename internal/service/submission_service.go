package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-assessment-api/internal/dto"
	"github.com/noah-isme/gema-assessment-api/internal/models"
	"github.com/noah-isme/gema-assessment-api/internal/observability"
	"github.com/noah-isme/gema-assessment-api/internal/repository"
	"github.com/noah-isme/gema-assessment-api/internal/scoring"
)

// SubmissionService runs the submission lifecycle: attempt limits, automatic scoring and
// persistence of student attempts.
type SubmissionService interface {
	Submit(ctx context.Context, assessmentID, studentID uint, payload dto.SubmissionCreateRequest) (dto.SubmissionResponse, error)
	Resubmit(ctx context.Context, submissionID, studentID uint, payload dto.SubmissionCreateRequest) (dto.SubmissionResponse, error)
	List(ctx context.Context, filter dto.SubmissionFilter, actor Actor) ([]dto.SubmissionResponse, error)
	Get(ctx context.Context, id uint, actor Actor) (dto.SubmissionResponse, error)
}

type submissionService struct {
	assessments repository.AssessmentRepository
	submissions repository.SubmissionRepository
	transactor  repository.Transactor
	access      assessmentAccess
	stats       StatisticsInvalidator
	validator   *validator.Validate
	logger      zerolog.Logger
	now         func() time.Time
}

// NewSubmissionService constructs a SubmissionService instance.
func NewSubmissionService(assessments repository.AssessmentRepository, submissions repository.SubmissionRepository, courses repository.CourseRepository, transactor repository.Transactor, stats StatisticsInvalidator, validate *validator.Validate, logger zerolog.Logger) SubmissionService {
	return &submissionService{
		assessments: assessments,
		submissions: submissions,
		transactor:  transactor,
		access:      assessmentAccess{courses: courses},
		stats:       stats,
		validator:   validate,
		logger:      logger.With().Str("component", "submission_service").Logger(),
		now:         time.Now,
	}
}

func (s *submissionService) Submit(ctx context.Context, assessmentID, studentID uint, payload dto.SubmissionCreateRequest) (dto.SubmissionResponse, error) {
	tracer := otel.Tracer("github.com/noah-isme/gema-assessment-api/internal/service/submission")
	ctx, span := tracer.Start(ctx, "submissions.submit")
	span.SetAttributes(
		attribute.Int64("submission.assessment_id", int64(assessmentID)),
		attribute.Int64("submission.student_id", int64(studentID)),
	)
	defer span.End()

	if err := s.validator.Struct(payload); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation_failed")
		observability.Submissions().WithLabelValues("invalid").Inc()
		return dto.SubmissionResponse{}, err
	}
	if studentID == 0 {
		return dto.SubmissionResponse{}, validationError("student id is required")
	}

	assessment, err := s.loadAssessment(ctx, assessmentID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "assessment_lookup_failed")
		return dto.SubmissionResponse{}, err
	}

	answers, err := buildAnswers(assessment, payload.Answers)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation_failed")
		observability.Submissions().WithLabelValues("invalid").Inc()
		return dto.SubmissionResponse{}, err
	}

	submittedAt := s.now().UTC()
	submission := models.Submission{
		AssessmentID: assessment.ID,
		StudentID:    studentID,
		TimeSpent:    payload.TimeSpent,
		SubmittedAt:  submittedAt,
		Status:       models.SubmissionStatusSubmitted,
	}
	applyScore(&submission, assessment, answers)

	err = s.transactor.WithinTransaction(ctx, func(tx *gorm.DB) error {
		assessments := s.assessments.WithTx(tx)
		submissions := s.submissions.WithTx(tx)

		if _, err := assessments.GetForUpdate(ctx, assessment.ID); err != nil {
			return err
		}

		count, err := submissions.CountAttempts(ctx, assessment.ID, studentID)
		if err != nil {
			return err
		}
		if assessment.HasAttemptLimit() && count >= int64(*assessment.AttemptsAllowed) {
			return ErrAttemptsExceeded
		}

		submission.AttemptNumber = int(count) + 1
		if err := submissions.Create(ctx, &submission); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				if assessment.HasAttemptLimit() && submission.AttemptNumber >= *assessment.AttemptsAllowed {
					return ErrAttemptsExceeded
				}
				return fmt.Errorf("%w: attempt %d was recorded concurrently", ErrConflict, submission.AttemptNumber)
			}
			return err
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "submission_persist_failed")
		if errors.Is(err, ErrAttemptsExceeded) {
			observability.Submissions().WithLabelValues("attempts_exceeded").Inc()
		}
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SubmissionResponse{}, ErrAssessmentNotFound
		}
		return dto.SubmissionResponse{}, err
	}

	observability.Submissions().WithLabelValues("accepted").Inc()
	if s.stats != nil {
		s.stats.Invalidate(ctx, assessment.ID, assessment.InstructorID)
	}

	s.logger.Info().
		Uint("submission_id", submission.ID).
		Uint("assessment_id", assessment.ID).
		Uint("student_id", studentID).
		Int("attempt", submission.AttemptNumber).
		Float64("score", submission.Score).
		Bool("late", submission.IsLate).
		Msg("submission recorded")

	span.SetAttributes(
		attribute.Int("submission.attempt", submission.AttemptNumber),
		attribute.Float64("submission.score", submission.Score),
	)

	assessment.Questions = nil
	submission.Assessment = assessment
	return dto.NewSubmissionResponse(submission), nil
}

func (s *submissionService) Resubmit(ctx context.Context, submissionID, studentID uint, payload dto.SubmissionCreateRequest) (dto.SubmissionResponse, error) {
	tracer := otel.Tracer("github.com/noah-isme/gema-assessment-api/internal/service/submission")
	ctx, span := tracer.Start(ctx, "submissions.resubmit")
	span.SetAttributes(
		attribute.Int64("submission.id", int64(submissionID)),
		attribute.Int64("submission.student_id", int64(studentID)),
	)
	defer span.End()

	if err := s.validator.Struct(payload); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation_failed")
		return dto.SubmissionResponse{}, err
	}

	existing, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			span.SetStatus(codes.Error, "submission_not_found")
			return dto.SubmissionResponse{}, ErrSubmissionNotFound
		}
		span.SetStatus(codes.Error, "submission_lookup_failed")
		return dto.SubmissionResponse{}, err
	}
	if existing.StudentID != studentID {
		span.SetStatus(codes.Error, "forbidden")
		return dto.SubmissionResponse{}, ErrForbidden
	}

	assessment, err := s.loadAssessment(ctx, existing.AssessmentID)
	if err != nil {
		span.RecordError(err)
		return dto.SubmissionResponse{}, err
	}

	answers, err := buildAnswers(assessment, payload.Answers)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation_failed")
		return dto.SubmissionResponse{}, err
	}

	err = s.transactor.WithinTransaction(ctx, func(tx *gorm.DB) error {
		assessments := s.assessments.WithTx(tx)
		submissions := s.submissions.WithTx(tx)

		locked, err := assessments.GetForUpdate(ctx, assessment.ID)
		if err != nil {
			return err
		}
		current, err := submissions.GetForUpdate(ctx, submissionID)
		if err != nil {
			return err
		}

		if !locked.AllowResubmission {
			return fmt.Errorf("%w: assessment %d does not accept resubmissions", ErrConflict, locked.ID)
		}
		if !current.Status.CanTransitionTo(models.SubmissionStatusResubmitted) {
			return fmt.Errorf("%w: submission %d is %s and cannot be resubmitted", ErrConflict, current.ID, current.Status)
		}

		current.TimeSpent = payload.TimeSpent
		current.SubmittedAt = s.now().UTC()
		current.Status = models.SubmissionStatusResubmitted
		current.FinalScore = nil
		current.OriginalScore = nil
		applyScore(&current, locked, answers)

		if err := submissions.Update(ctx, &current); err != nil {
			return err
		}
		return submissions.ReplaceAnswers(ctx, current.ID, answers)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "resubmission_failed")
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SubmissionResponse{}, ErrSubmissionNotFound
		}
		return dto.SubmissionResponse{}, err
	}

	if s.stats != nil {
		s.stats.Invalidate(ctx, assessment.ID, assessment.InstructorID)
	}

	updated, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		return dto.SubmissionResponse{}, err
	}

	s.logger.Info().Uint("submission_id", submissionID).Float64("score", updated.Score).Msg("submission resubmitted")

	return dto.NewSubmissionResponse(updated), nil
}

func (s *submissionService) List(ctx context.Context, filter dto.SubmissionFilter, actor Actor) ([]dto.SubmissionResponse, error) {
	if err := s.validator.Struct(filter); err != nil {
		return nil, err
	}

	repoFilter := repository.SubmissionFilter{
		AssessmentID: filter.AssessmentID,
		StudentID:    filter.StudentID,
	}
	if filter.Status != nil {
		status := models.SubmissionStatus(*filter.Status)
		repoFilter.Status = &status
	}

	switch {
	case actor.IsAdmin():
	case actor.IsStaff():
		if filter.AssessmentID == nil {
			return nil, validationError("assessment_id is required")
		}
		assessment, err := s.loadAssessment(ctx, *filter.AssessmentID)
		if err != nil {
			return nil, err
		}
		if err := s.access.authorize(ctx, assessment, actor); err != nil {
			return nil, err
		}
	default:
		studentID := actor.ID
		repoFilter.StudentID = &studentID
	}

	submissions, err := s.submissions.List(ctx, repoFilter)
	if err != nil {
		return nil, err
	}

	return dto.NewSubmissionResponseSlice(submissions), nil
}

func (s *submissionService) Get(ctx context.Context, id uint, actor Actor) (dto.SubmissionResponse, error) {
	submission, err := s.submissions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SubmissionResponse{}, ErrSubmissionNotFound
		}
		return dto.SubmissionResponse{}, err
	}

	if !actor.IsStaff() {
		if submission.StudentID != actor.ID {
			return dto.SubmissionResponse{}, ErrForbidden
		}
		return dto.NewSubmissionResponse(submission), nil
	}

	if err := s.access.authorize(ctx, submission.Assessment, actor); err != nil {
		return dto.SubmissionResponse{}, err
	}

	return dto.NewSubmissionResponse(submission), nil
}

func (s *submissionService) loadAssessment(ctx context.Context, id uint) (models.Assessment, error) {
	assessment, err := s.assessments.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Assessment{}, ErrAssessmentNotFound
		}
		return models.Assessment{}, err
	}
	return assessment, nil
}

// buildAnswers decodes raw answers against the assessment's questions. Unknown question
// ids and values that do not fit the question kind are rejected.
func buildAnswers(assessment models.Assessment, payload []dto.SubmitAnswerRequest) ([]models.Answer, error) {
	questions := make(map[uint]models.Question, len(assessment.Questions))
	for _, question := range assessment.Questions {
		questions[question.ID] = question
	}

	answers := make([]models.Answer, 0, len(payload))
	for _, item := range payload {
		question, ok := questions[item.QuestionID]
		if !ok {
			return nil, fmt.Errorf("%w: answer references %w (id %d)", ErrValidation, ErrQuestionNotFound, item.QuestionID)
		}

		value, err := dto.ParseAnswerValue(question.Kind, item.Answer)
		if err != nil {
			return nil, fmt.Errorf("%w: question %d: %w", ErrValidation, question.ID, err)
		}

		answers = append(answers, models.Answer{
			QuestionID: question.ID,
			Value:      datatypes.NewJSONType(value),
			TimeSpent:  item.TimeSpent,
		})
	}

	return answers, nil
}

// applyScore runs the scoring engine over answers and stores the derived score,
// percentage, pass flag and lateness on the submission.
func applyScore(submission *models.Submission, assessment models.Assessment, answers []models.Answer) {
	result := scoring.Score(assessment.Questions, answers)
	for i := range answers {
		answers[i].AwardedPoints = result.Awarded(answers[i].QuestionID)
	}

	submission.Answers = answers
	submission.Score = scoring.Clamp(result.Total, assessment.TotalPoints)
	submission.Percentage = scoring.Percentage(submission.Score, assessment.TotalPoints)
	submission.Passed = scoring.Passed(submission.Percentage, assessment.PassingScore)
	submission.DaysLate = scoring.DaysLate(assessment.DueDate, submission.SubmittedAt)
	submission.IsLate = submission.DaysLate > 0
}
