package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-assessment-api/internal/dto"
	"github.com/noah-isme/gema-assessment-api/internal/gradebook"
	"github.com/noah-isme/gema-assessment-api/internal/models"
	"github.com/noah-isme/gema-assessment-api/internal/observability"
	"github.com/noah-isme/gema-assessment-api/internal/repository"
	"github.com/noah-isme/gema-assessment-api/internal/scoring"
)

const defaultMaxBulkEntries = 200

// GradingConfig bounds grading requests.
type GradingConfig struct {
	MaxBulkEntries int
}

// GradingService encapsulates instructor grading workflows.
type GradingService interface {
	Grade(ctx context.Context, submissionID uint, actor Actor, payload dto.GradeSubmissionRequest) (dto.SubmissionResponse, error)
	BulkGrade(ctx context.Context, assessmentID uint, actor Actor, payload dto.BulkGradeRequest) (dto.BulkGradeResponse, error)
	Export(ctx context.Context, assessmentID uint, actor Actor) ([]dto.GradeExportRow, error)
	Import(ctx context.Context, assessmentID uint, actor Actor, template io.Reader, returnToStudents bool) (dto.BulkGradeResponse, error)
}

// GradingDependencies groups the collaborators of the grading service.
type GradingDependencies struct {
	Assessments repository.AssessmentRepository
	Submissions repository.SubmissionRepository
	Courses     repository.CourseRepository
	Outbox      repository.OutboxRepository
	Transactor  repository.Transactor
	Dispatcher  NotificationDispatcher
	Stats       StatisticsInvalidator
	Activity    ActivityRecorder
}

type gradingService struct {
	assessments repository.AssessmentRepository
	submissions repository.SubmissionRepository
	outbox      repository.OutboxRepository
	transactor  repository.Transactor
	access      assessmentAccess
	dispatcher  NotificationDispatcher
	stats       StatisticsInvalidator
	activity    ActivityRecorder
	validator   *validator.Validate
	cfg         GradingConfig
	logger      zerolog.Logger
	now         func() time.Time
}

// NewGradingService constructs the grading service.
func NewGradingService(deps GradingDependencies, validate *validator.Validate, cfg GradingConfig, logger zerolog.Logger) GradingService {
	if cfg.MaxBulkEntries <= 0 {
		cfg.MaxBulkEntries = defaultMaxBulkEntries
	}

	return &gradingService{
		assessments: deps.Assessments,
		submissions: deps.Submissions,
		outbox:      deps.Outbox,
		transactor:  deps.Transactor,
		access:      assessmentAccess{courses: deps.Courses},
		dispatcher:  deps.Dispatcher,
		stats:       deps.Stats,
		activity:    deps.Activity,
		validator:   validate,
		cfg:         cfg,
		logger:      logger.With().Str("component", "grading_service").Logger(),
		now:         time.Now,
	}
}

// Grade records an instructor decision on one submission. A manual score becomes the
// submission grade and its final score; the automatic score is never rewritten. Repeating
// the current grade and feedback as the same grader is a no-op that keeps the existing
// gradedAt and adds no history entry or notification.
func (s *gradingService) Grade(ctx context.Context, submissionID uint, actor Actor, payload dto.GradeSubmissionRequest) (dto.SubmissionResponse, error) {
	tracer := otel.Tracer("github.com/noah-isme/gema-assessment-api/internal/service/grading")
	ctx, span := tracer.Start(ctx, "grading.single")
	span.SetAttributes(
		attribute.Int64("grading.submission_id", int64(submissionID)),
		attribute.Int64("grading.actor_id", int64(actor.ID)),
	)
	defer span.End()

	if err := s.validator.Struct(payload); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation_failed")
		observability.GradingOperations().WithLabelValues("single", "invalid").Inc()
		return dto.SubmissionResponse{}, err
	}

	submission, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			span.SetStatus(codes.Error, "submission_not_found")
			return dto.SubmissionResponse{}, ErrSubmissionNotFound
		}
		span.SetStatus(codes.Error, "submission_lookup_failed")
		return dto.SubmissionResponse{}, err
	}

	if err := s.access.authorize(ctx, submission.Assessment, actor); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "forbidden")
		return dto.SubmissionResponse{}, err
	}

	var (
		assessment models.Assessment
		outboxIDs  []uint
		idempotent bool
		firstGrade bool
	)

	err = s.transactor.WithinTransaction(ctx, func(tx *gorm.DB) error {
		assessments := s.assessments.WithTx(tx)
		submissions := s.submissions.WithTx(tx)

		var err error
		assessment, err = assessments.GetForUpdate(ctx, submission.AssessmentID)
		if err != nil {
			return err
		}
		current, err := submissions.GetForUpdate(ctx, submissionID)
		if err != nil {
			return err
		}

		if payload.ManualScore != nil && *payload.ManualScore > assessment.TotalPoints {
			return validationError("manual score %s exceeds total points %s", formatPoints(*payload.ManualScore), formatPoints(assessment.TotalPoints))
		}
		if !current.Status.CanTransitionTo(models.SubmissionStatusGraded) {
			return fmt.Errorf("%w: submission %d cannot move from %s to %s", ErrConflict, current.ID, current.Status, models.SubmissionStatusGraded)
		}

		feedback := current.Feedback
		if payload.Feedback != nil {
			feedback = *payload.Feedback
		}

		final := current.Score
		switch {
		case payload.ManualScore != nil:
			final = *payload.ManualScore
		case current.FinalScore != nil:
			final = *current.FinalScore
		}

		if current.Status == models.SubmissionStatusGraded &&
			current.FinalScore != nil && math.Abs(*current.FinalScore-final) < 1e-6 &&
			current.Feedback == feedback &&
			current.GradedBy != nil && *current.GradedBy == actor.ID {
			idempotent = true
			return nil
		}

		firstGrade = !current.IsGraded()
		gradedAt := s.now().UTC()
		gradedBy := actor.ID

		if payload.ManualScore != nil {
			current.Grade = &final
			current.OriginalScore = nil
		}
		current.FinalScore = &final
		current.Percentage = scoring.Percentage(final, assessment.TotalPoints)
		current.Passed = scoring.Passed(current.Percentage, assessment.PassingScore)
		current.Feedback = feedback
		current.Status = models.SubmissionStatusGraded
		current.GradedAt = &gradedAt
		current.GradedBy = &gradedBy

		if err := submissions.Update(ctx, &current); err != nil {
			return err
		}
		if err := submissions.CreateHistory(ctx, historyFor(current)); err != nil {
			return err
		}
		if firstGrade {
			if err := assessments.IncrementGradedCount(ctx, assessment.ID, 1); err != nil {
				return err
			}
		}

		outboxIDs, err = s.outbox.WithTx(tx).Enqueue(ctx, []models.NotificationOutbox{gradeNotification(assessment, current)})
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "grading_failed")
		observability.GradingOperations().WithLabelValues("single", "failed").Inc()
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SubmissionResponse{}, ErrSubmissionNotFound
		}
		return dto.SubmissionResponse{}, err
	}

	if idempotent {
		span.SetAttributes(attribute.Bool("grading.idempotent", true))
		observability.GradingOperations().WithLabelValues("single", "unchanged").Inc()
		return dto.NewSubmissionResponse(submission), nil
	}

	s.afterCommit(ctx, assessment, outboxIDs)
	observability.GradingOperations().WithLabelValues("single", "graded").Inc()

	updated, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		return dto.SubmissionResponse{}, err
	}

	finalScore := updated.EffectiveScore()
	recordActivity(ctx, s.activity, s.logger, ActivityEntry{
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		Action:     models.ActivitySubmissionGraded,
		EntityType: "submission",
		EntityID:   &updated.ID,
		Metadata: map[string]interface{}{
			"submission_id": updated.ID,
			"assessment_id": updated.AssessmentID,
			"student_id":    updated.StudentID,
			"final_score":   finalScore,
			"first_grade":   firstGrade,
		},
	})

	span.SetAttributes(
		attribute.Float64("grading.final_score", finalScore),
		attribute.String("grading.status", string(updated.Status)),
	)

	s.logger.Info().
		Uint("submission_id", updated.ID).
		Uint("grader_id", actor.ID).
		Float64("final_score", finalScore).
		Msg("submission graded")

	return dto.NewSubmissionResponse(updated), nil
}

func (s *gradingService) BulkGrade(ctx context.Context, assessmentID uint, actor Actor, payload dto.BulkGradeRequest) (dto.BulkGradeResponse, error) {
	return s.bulkGrade(ctx, "bulk", models.ActivityBulkGraded, assessmentID, actor, payload)
}

func (s *gradingService) Import(ctx context.Context, assessmentID uint, actor Actor, template io.Reader, returnToStudents bool) (dto.BulkGradeResponse, error) {
	entries, err := gradebook.Parse(template)
	if err != nil {
		observability.GradingOperations().WithLabelValues("import", "invalid").Inc()
		return dto.BulkGradeResponse{}, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	if len(entries) == 0 {
		observability.GradingOperations().WithLabelValues("import", "invalid").Inc()
		return dto.BulkGradeResponse{}, validationError("the template contains no new grades")
	}

	return s.bulkGrade(ctx, "import", models.ActivityGradesImported, assessmentID, actor, dto.BulkGradeRequest{
		Entries:          entries,
		ReturnToStudents: returnToStudents,
	})
}

func (s *gradingService) bulkGrade(ctx context.Context, mode, action string, assessmentID uint, actor Actor, payload dto.BulkGradeRequest) (dto.BulkGradeResponse, error) {
	tracer := otel.Tracer("github.com/noah-isme/gema-assessment-api/internal/service/grading")
	ctx, span := tracer.Start(ctx, "grading."+mode)
	span.SetAttributes(
		attribute.Int64("grading.assessment_id", int64(assessmentID)),
		attribute.Int64("grading.actor_id", int64(actor.ID)),
		attribute.Int("grading.entries", len(payload.Entries)),
	)
	defer span.End()

	if err := s.validator.Struct(payload); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation_failed")
		observability.GradingOperations().WithLabelValues(mode, "invalid").Inc()
		return dto.BulkGradeResponse{}, err
	}
	if len(payload.Entries) > s.cfg.MaxBulkEntries {
		span.SetStatus(codes.Error, "validation_failed")
		observability.GradingOperations().WithLabelValues(mode, "invalid").Inc()
		return dto.BulkGradeResponse{}, validationError("at most %d entries can be graded at once, got %d", s.cfg.MaxBulkEntries, len(payload.Entries))
	}
	observability.GradingBatchSize().Observe(float64(len(payload.Entries)))

	assessment, err := s.assessments.GetByID(ctx, assessmentID)
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			span.SetStatus(codes.Error, "assessment_not_found")
			return dto.BulkGradeResponse{}, ErrAssessmentNotFound
		}
		span.SetStatus(codes.Error, "assessment_lookup_failed")
		return dto.BulkGradeResponse{}, err
	}

	if err := s.access.authorize(ctx, assessment, actor); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "forbidden")
		return dto.BulkGradeResponse{}, err
	}

	status := models.SubmissionStatusGraded
	if payload.ReturnToStudents {
		status = models.SubmissionStatusReturned
	}

	ids := make([]uint, 0, len(payload.Entries))
	for _, entry := range payload.Entries {
		ids = append(ids, entry.SubmissionID)
	}

	var (
		response  dto.BulkGradeResponse
		outboxIDs []uint
	)

	err = s.transactor.WithinTransaction(ctx, func(tx *gorm.DB) error {
		assessments := s.assessments.WithTx(tx)
		submissions := s.submissions.WithTx(tx)

		locked, err := assessments.GetForUpdate(ctx, assessmentID)
		if err != nil {
			return err
		}
		assessment = locked

		resolved, err := submissions.ListForGrading(ctx, assessmentID, ids)
		if err != nil {
			return err
		}
		if len(resolved) != len(ids) {
			return validationError("%d of %d submissions do not belong to assessment %d: %v", len(ids)-len(resolved), len(ids), assessmentID, missingIDs(ids, resolved))
		}

		for _, entry := range payload.Entries {
			if *entry.Grade > assessment.TotalPoints {
				return validationError("grade %s for submission %d exceeds total points %s", formatPoints(*entry.Grade), entry.SubmissionID, formatPoints(assessment.TotalPoints))
			}
		}

		byID := make(map[uint]models.Submission, len(resolved))
		for _, submission := range resolved {
			byID[submission.ID] = submission
		}

		gradedAt := s.now().UTC()
		gradedBy := actor.ID
		results := make([]dto.BulkGradeEntryResult, 0, len(payload.Entries))
		intents := make([]models.NotificationOutbox, 0, len(payload.Entries))
		stats := dto.BulkGradeStats{}

		for _, entry := range payload.Entries {
			submission := byID[entry.SubmissionID]
			if !submission.Status.CanTransitionTo(status) {
				return fmt.Errorf("%w: submission %d cannot move from %s to %s", ErrConflict, submission.ID, submission.Status, status)
			}

			adjustment := scoring.AdjustForLateness(*entry.Grade, assessment, submission)
			original := adjustment.Original
			final := adjustment.Final
			if adjustment.Applied {
				submission.OriginalScore = &original
				stats.WithLatePenalty++
			} else {
				submission.OriginalScore = nil
			}

			if !submission.IsGraded() {
				stats.NewlyGraded++
			}

			submission.Grade = &original
			submission.FinalScore = &final
			submission.Percentage = scoring.Percentage(final, assessment.TotalPoints)
			submission.Passed = scoring.Passed(submission.Percentage, assessment.PassingScore)
			if entry.Feedback != nil {
				submission.Feedback = *entry.Feedback
			}
			submission.Status = status
			submission.GradedAt = &gradedAt
			submission.GradedBy = &gradedBy

			if err := submissions.Update(ctx, &submission); err != nil {
				return err
			}
			if err := submissions.CreateHistory(ctx, historyFor(submission)); err != nil {
				return err
			}

			intents = append(intents, gradeNotification(assessment, submission))
			results = append(results, dto.BulkGradeEntryResult{
				SubmissionID:       submission.ID,
				StudentName:        submission.Student.Name,
				OriginalGrade:      original,
				FinalGrade:         final,
				LatePenaltyApplied: adjustment.Applied,
				Success:            true,
			})
			stats.TotalGraded++
		}

		if err := assessments.IncrementGradedCount(ctx, assessmentID, stats.NewlyGraded); err != nil {
			return err
		}

		outboxIDs, err = s.outbox.WithTx(tx).Enqueue(ctx, intents)
		if err != nil {
			return err
		}

		response = dto.BulkGradeResponse{Results: results, Stats: stats}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "grading_failed")
		observability.GradingOperations().WithLabelValues(mode, "failed").Inc()
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.BulkGradeResponse{}, ErrAssessmentNotFound
		}
		return dto.BulkGradeResponse{}, err
	}

	s.afterCommit(ctx, assessment, outboxIDs)
	observability.GradingOperations().WithLabelValues(mode, "graded").Inc()
	observability.LatePenalties().Add(float64(response.Stats.WithLatePenalty))

	recordActivity(ctx, s.activity, s.logger, ActivityEntry{
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		Action:     action,
		EntityType: "assessment",
		EntityID:   &assessment.ID,
		Metadata: map[string]interface{}{
			"assessment_id":      assessment.ID,
			"total_graded":       response.Stats.TotalGraded,
			"newly_graded":       response.Stats.NewlyGraded,
			"with_late_penalty":  response.Stats.WithLatePenalty,
			"return_to_students": payload.ReturnToStudents,
		},
	})

	span.SetAttributes(
		attribute.Int("grading.total_graded", response.Stats.TotalGraded),
		attribute.Int("grading.newly_graded", response.Stats.NewlyGraded),
		attribute.Int("grading.late_penalties", response.Stats.WithLatePenalty),
	)

	s.logger.Info().
		Str("mode", mode).
		Uint("assessment_id", assessment.ID).
		Uint("grader_id", actor.ID).
		Int("total_graded", response.Stats.TotalGraded).
		Int("newly_graded", response.Stats.NewlyGraded).
		Int("with_late_penalty", response.Stats.WithLatePenalty).
		Msg("submissions graded")

	return response, nil
}

func (s *gradingService) Export(ctx context.Context, assessmentID uint, actor Actor) ([]dto.GradeExportRow, error) {
	assessment, err := s.assessments.GetByID(ctx, assessmentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAssessmentNotFound
		}
		return nil, err
	}

	if err := s.access.authorize(ctx, assessment, actor); err != nil {
		return nil, err
	}

	submissions, err := s.submissions.ListByAssessments(ctx, []uint{assessmentID})
	if err != nil {
		return nil, err
	}

	rows := make([]dto.GradeExportRow, 0, len(submissions))
	for _, submission := range submissions {
		row := dto.GradeExportRow{
			SubmissionID:  submission.ID,
			StudentName:   submission.Student.Name,
			StudentEmail:  submission.Student.Email,
			AttemptNumber: submission.AttemptNumber,
			Feedback:      submission.Feedback,
			Status:        string(submission.Status),
			SubmittedAt:   submission.SubmittedAt,
			IsLate:        submission.IsLate,
			DaysLate:      submission.DaysLate,
		}
		if submission.IsGraded() {
			current := submission.EffectiveScore()
			row.CurrentGrade = &current
		}
		rows = append(rows, row)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].StudentName != rows[j].StudentName {
			return rows[i].StudentName < rows[j].StudentName
		}
		return rows[i].AttemptNumber < rows[j].AttemptNumber
	})

	return rows, nil
}

// afterCommit delivers the committed notification intents and drops cached statistics.
// Neither step can fail the grading operation.
func (s *gradingService) afterCommit(ctx context.Context, assessment models.Assessment, outboxIDs []uint) {
	if s.stats != nil {
		s.stats.Invalidate(ctx, assessment.ID, assessment.InstructorID)
	}
	if s.dispatcher != nil && len(outboxIDs) > 0 {
		s.dispatcher.Dispatch(context.WithoutCancel(ctx), outboxIDs)
	}
}

func historyFor(submission models.Submission) *models.SubmissionGradeHistory {
	return &models.SubmissionGradeHistory{
		SubmissionID:  submission.ID,
		Score:         submission.EffectiveScore(),
		OriginalScore: submission.OriginalScore,
		Feedback:      submission.Feedback,
		GradedBy:      *submission.GradedBy,
		GradedAt:      *submission.GradedAt,
	}
}

// gradeNotification builds the outbox intent for a graded submission. The dedup key is
// tied to the grading timestamp so each grading pass notifies exactly once.
func gradeNotification(assessment models.Assessment, submission models.Submission) models.NotificationOutbox {
	return models.NotificationOutbox{
		StudentID:    submission.StudentID,
		SubmissionID: submission.ID,
		Message: fmt.Sprintf("Your submission for %s was graded: %s/%s",
			assessment.Title, formatPoints(submission.EffectiveScore()), formatPoints(assessment.TotalPoints)),
		DedupKey: fmt.Sprintf("submission:%d:graded:%d", submission.ID, submission.GradedAt.UnixNano()),
		Status:   models.OutboxStatusPending,
	}
}

func missingIDs(requested []uint, resolved []models.Submission) []uint {
	found := make(map[uint]struct{}, len(resolved))
	for _, submission := range resolved {
		found[submission.ID] = struct{}{}
	}

	missing := make([]uint, 0)
	for _, id := range requested {
		if _, ok := found[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing
}

func formatPoints(value float64) string {
	return strconv.FormatFloat(scoring.Round(value), 'f', -1, 64)
}
