package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-assessment-api/internal/dto"
	"github.com/noah-isme/gema-assessment-api/internal/models"
	"github.com/noah-isme/gema-assessment-api/internal/repository"
)

const maxAttachmentSize int64 = 10 << 20

var allowedAttachmentTypes = []string{
	"application/pdf",
	"application/zip",
	"application/x-zip-compressed",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"image/png",
	"image/jpeg",
	"text/plain",
}

// FileUploader abstracts uploading binary data and returning a URL.
type FileUploader interface {
	Upload(ctx context.Context, name string, reader io.Reader) (string, error)
}

// AssessmentService manages the assessment catalog.
type AssessmentService interface {
	Create(ctx context.Context, actor Actor, payload dto.AssessmentCreateRequest, attachments []*multipart.FileHeader) (dto.AssessmentResponse, error)
	Get(ctx context.Context, id uint, actor Actor) (dto.AssessmentResponse, error)
	ListByInstructor(ctx context.Context, instructorID uint) ([]dto.AssessmentResponse, error)
}

type assessmentService struct {
	repo      repository.AssessmentRepository
	access    assessmentAccess
	validator *validator.Validate
	uploader  FileUploader
	activity  ActivityRecorder
	logger    zerolog.Logger
	now       func() time.Time
}

// NewAssessmentService builds the assessment catalog service. A nil uploader rejects
// requests that carry attachments.
func NewAssessmentService(repo repository.AssessmentRepository, courses repository.CourseRepository, validate *validator.Validate, uploader FileUploader, activity ActivityRecorder, logger zerolog.Logger) AssessmentService {
	return &assessmentService{
		repo:      repo,
		access:    assessmentAccess{courses: courses},
		validator: validate,
		uploader:  uploader,
		activity:  activity,
		logger:    logger.With().Str("component", "assessment_service").Logger(),
		now:       time.Now,
	}
}

func (s *assessmentService) Create(ctx context.Context, actor Actor, payload dto.AssessmentCreateRequest, attachments []*multipart.FileHeader) (dto.AssessmentResponse, error) {
	tracer := otel.Tracer("github.com/noah-isme/gema-assessment-api/internal/service/assessment")
	ctx, span := tracer.Start(ctx, "assessments.create")
	span.SetAttributes(
		attribute.Int64("assessment.course_id", int64(payload.CourseID)),
		attribute.Int("assessment.questions", len(payload.Questions)),
		attribute.Int("assessment.attachments", len(attachments)),
	)
	defer span.End()

	if err := s.validator.Struct(payload); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation_failed")
		return dto.AssessmentResponse{}, err
	}

	if !actor.IsStaff() {
		span.SetStatus(codes.Error, "forbidden")
		return dto.AssessmentResponse{}, ErrForbidden
	}
	if !actor.IsAdmin() {
		if s.access.courses == nil {
			return dto.AssessmentResponse{}, ErrForbidden
		}
		allowed, err := s.access.courses.IsInstructor(ctx, payload.CourseID, actor.ID)
		if err != nil {
			span.RecordError(err)
			return dto.AssessmentResponse{}, err
		}
		if !allowed {
			span.SetStatus(codes.Error, "forbidden")
			return dto.AssessmentResponse{}, ErrForbidden
		}
	}

	questions, err := buildQuestions(payload.Questions)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation_failed")
		return dto.AssessmentResponse{}, err
	}

	assessment := models.Assessment{
		Title:                    strings.TrimSpace(payload.Title),
		Kind:                     models.AssessmentKind(payload.Kind),
		CourseID:                 payload.CourseID,
		InstructorID:             actor.ID,
		TotalPoints:              payload.TotalPoints,
		PassingScore:             payload.PassingScore,
		TimeLimitMinutes:         payload.TimeLimitMinutes,
		AttemptsAllowed:          payload.AttemptsAllowed,
		DueDate:                  payload.DueDate,
		LatePenaltyPercentPerDay: payload.LatePenaltyPercentPerDay,
		AllowResubmission:        payload.AllowResubmission,
		Attachments:              datatypes.JSONSlice[string]{},
		Questions:                questions,
	}

	if sum := assessment.QuestionPoints(); sum > assessment.TotalPoints+1e-9 {
		span.SetStatus(codes.Error, "validation_failed")
		return dto.AssessmentResponse{}, validationError("question points add up to %s which exceeds total points %s", formatPoints(sum), formatPoints(assessment.TotalPoints))
	}

	for _, file := range attachments {
		url, err := s.uploadAttachment(ctx, file)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "attachment_failed")
			return dto.AssessmentResponse{}, err
		}
		assessment.Attachments = append(assessment.Attachments, url)
	}

	if err := s.repo.Create(ctx, &assessment); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "assessment_persist_failed")
		return dto.AssessmentResponse{}, err
	}

	recordActivity(ctx, s.activity, s.logger, ActivityEntry{
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		Action:     models.ActivityAssessmentCreate,
		EntityType: "assessment",
		EntityID:   &assessment.ID,
		Metadata: map[string]interface{}{
			"course_id": assessment.CourseID,
			"questions": len(assessment.Questions),
			"kind":      string(assessment.Kind),
		},
	})

	s.logger.Info().Uint("assessment_id", assessment.ID).Uint("course_id", assessment.CourseID).Msg("assessment created")

	return dto.NewAssessmentResponse(assessment, true), nil
}

func (s *assessmentService) Get(ctx context.Context, id uint, actor Actor) (dto.AssessmentResponse, error) {
	assessment, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.AssessmentResponse{}, ErrAssessmentNotFound
		}
		return dto.AssessmentResponse{}, err
	}

	withKeys, err := s.access.canManage(ctx, assessment, actor)
	if err != nil {
		return dto.AssessmentResponse{}, err
	}

	return dto.NewAssessmentResponse(assessment, withKeys), nil
}

func (s *assessmentService) ListByInstructor(ctx context.Context, instructorID uint) ([]dto.AssessmentResponse, error) {
	assessments, err := s.repo.ListByInstructor(ctx, instructorID)
	if err != nil {
		return nil, err
	}

	return dto.NewAssessmentResponseSlice(assessments), nil
}

func (s *assessmentService) uploadAttachment(ctx context.Context, file *multipart.FileHeader) (string, error) {
	if s.uploader == nil {
		return "", validationError("attachments are not accepted")
	}
	if file.Size > maxAttachmentSize {
		return "", validationError("attachment %q exceeds %d bytes", file.Filename, maxAttachmentSize)
	}

	src, err := file.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open attachment: %w", err)
	}
	defer src.Close()

	data, err := io.ReadAll(io.LimitReader(src, maxAttachmentSize+1))
	if err != nil {
		return "", fmt.Errorf("failed to read attachment: %w", err)
	}
	if int64(len(data)) > maxAttachmentSize {
		return "", validationError("attachment %q exceeds %d bytes", file.Filename, maxAttachmentSize)
	}

	mime := mimetype.Detect(data)
	if !isAllowedAttachment(mime) {
		return "", validationError("attachment %q has unsupported type %s", file.Filename, mime.String())
	}

	url, err := s.uploader.Upload(ctx, file.Filename, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to upload attachment: %w", err)
	}

	return url, nil
}

func isAllowedAttachment(mime *mimetype.MIME) bool {
	for current := mime; current != nil; current = current.Parent() {
		for _, allowed := range allowedAttachmentTypes {
			if current.Is(allowed) {
				return true
			}
		}
	}
	return false
}

// buildQuestions converts the request into models and checks the grading data of each
// kind: choice kinds need a correct answer, multi select needs a non-empty set without
// repeats, and declared options must contain the correct answer.
func buildQuestions(payload []dto.QuestionCreateRequest) ([]models.Question, error) {
	questions := make([]models.Question, 0, len(payload))
	for i, item := range payload {
		kind := models.QuestionKind(item.Kind)
		key, err := dto.ParseAnswerValue(kind, item.CorrectAnswer)
		if err != nil {
			return nil, fmt.Errorf("%w: question %d: %w", ErrValidation, i+1, err)
		}

		options := make([]string, 0, len(item.Options))
		for _, option := range item.Options {
			options = append(options, strings.TrimSpace(option))
		}

		switch kind {
		case models.QuestionKindSingleChoice, models.QuestionKindTrueFalse:
			if strings.TrimSpace(key.Choice) == "" {
				return nil, validationError("question %d: a correct answer is required", i+1)
			}
			if len(options) > 0 && !containsOption(options, key.Choice) {
				return nil, validationError("question %d: correct answer %q is not one of the options", i+1, key.Choice)
			}
		case models.QuestionKindMultiSelect:
			if len(key.Choices) == 0 {
				return nil, validationError("question %d: at least one correct option is required", i+1)
			}
			seen := make(map[string]struct{}, len(key.Choices))
			for _, choice := range key.Choices {
				normalized := strings.ToLower(strings.TrimSpace(choice))
				if normalized == "" {
					return nil, validationError("question %d: correct options must not be blank", i+1)
				}
				if _, dup := seen[normalized]; dup {
					return nil, validationError("question %d: correct option %q is repeated", i+1, choice)
				}
				seen[normalized] = struct{}{}
				if len(options) > 0 && !containsOption(options, choice) {
					return nil, validationError("question %d: correct option %q is not one of the options", i+1, choice)
				}
			}
		default:
			key = models.AnswerValue{Kind: kind}
		}

		position := item.Position
		if position == 0 {
			position = i + 1
		}

		questions = append(questions, models.Question{
			Text:          strings.TrimSpace(item.Text),
			Kind:          kind,
			Points:        item.Points,
			Position:      position,
			Options:       datatypes.JSONSlice[string](options),
			CorrectAnswer: datatypes.NewJSONType(key),
		})
	}

	return questions, nil
}

func containsOption(options []string, value string) bool {
	target := strings.ToLower(strings.TrimSpace(value))
	for _, option := range options {
		if strings.ToLower(option) == target {
			return true
		}
	}
	return false
}
