package dto

import (
	"encoding/json"
	"time"

	"github.com/noah-isme/gema-assessment-api/internal/models"
)

// QuestionCreateRequest describes one question of a new assessment.
type QuestionCreateRequest struct {
	Text          string          `json:"text" validate:"required,min=1,max=5000"`
	Kind          string          `json:"kind" validate:"required,oneof=single_choice true_false multi_select short_answer essay"`
	Points        float64         `json:"points" validate:"gte=0"`
	Position      int             `json:"position" validate:"gte=0"`
	Options       []string        `json:"options" validate:"omitempty,unique,dive,required,max=500"`
	CorrectAnswer json.RawMessage `json:"correct_answer"`
}

// AssessmentCreateRequest is the payload accepted when an instructor creates an assessment.
type AssessmentCreateRequest struct {
	Title                    string                  `json:"title" validate:"required,min=3,max=255"`
	Kind                     string                  `json:"kind" validate:"required,oneof=quiz exam assignment survey practice"`
	CourseID                 uint                    `json:"course_id" validate:"required,gt=0"`
	TotalPoints              float64                 `json:"total_points" validate:"gt=0"`
	PassingScore             float64                 `json:"passing_score" validate:"gte=0,lte=100"`
	TimeLimitMinutes         *int                    `json:"time_limit_minutes" validate:"omitempty,gt=0"`
	AttemptsAllowed          *int                    `json:"attempts_allowed" validate:"omitempty,gt=0"`
	DueDate                  *time.Time              `json:"due_date"`
	LatePenaltyPercentPerDay *float64                `json:"late_penalty_percent_per_day" validate:"omitempty,gte=0,lte=100"`
	AllowResubmission        bool                    `json:"allow_resubmission"`
	Questions                []QuestionCreateRequest `json:"questions" validate:"required,min=1,dive"`
}

// QuestionResponse serializes a question. CorrectAnswer is only set for staff viewers.
type QuestionResponse struct {
	ID            uint                `json:"id"`
	Text          string              `json:"text"`
	Kind          string              `json:"kind"`
	Points        float64             `json:"points"`
	Position      int                 `json:"position"`
	Options       []string            `json:"options"`
	CorrectAnswer *models.AnswerValue `json:"correct_answer,omitempty"`
}

// AssessmentResponse is the serialized representation of an assessment.
type AssessmentResponse struct {
	ID                       uint               `json:"id"`
	Title                    string             `json:"title"`
	Kind                     string             `json:"kind"`
	CourseID                 uint               `json:"course_id"`
	InstructorID             uint               `json:"instructor_id"`
	TotalPoints              float64            `json:"total_points"`
	PassingScore             float64            `json:"passing_score"`
	TimeLimitMinutes         *int               `json:"time_limit_minutes"`
	AttemptsAllowed          *int               `json:"attempts_allowed"`
	DueDate                  *time.Time         `json:"due_date"`
	LatePenaltyPercentPerDay *float64           `json:"late_penalty_percent_per_day"`
	AllowResubmission        bool               `json:"allow_resubmission"`
	GradedCount              int                `json:"graded_count"`
	Attachments              []string           `json:"attachments"`
	Questions                []QuestionResponse `json:"questions,omitempty"`
	CreatedAt                time.Time          `json:"created_at"`
	UpdatedAt                time.Time          `json:"updated_at"`
}

// AssessmentLite summarizes an assessment inside submission responses.
type AssessmentLite struct {
	ID          uint       `json:"id"`
	Title       string     `json:"title"`
	TotalPoints float64    `json:"total_points"`
	DueDate     *time.Time `json:"due_date"`
}

// NewAssessmentResponse converts a model into a DTO. Answer keys are included only when
// withKeys is set.
func NewAssessmentResponse(model models.Assessment, withKeys bool) AssessmentResponse {
	response := AssessmentResponse{
		ID:                       model.ID,
		Title:                    model.Title,
		Kind:                     string(model.Kind),
		CourseID:                 model.CourseID,
		InstructorID:             model.InstructorID,
		TotalPoints:              model.TotalPoints,
		PassingScore:             model.PassingScore,
		TimeLimitMinutes:         model.TimeLimitMinutes,
		AttemptsAllowed:          model.AttemptsAllowed,
		DueDate:                  model.DueDate,
		LatePenaltyPercentPerDay: model.LatePenaltyPercentPerDay,
		AllowResubmission:        model.AllowResubmission,
		GradedCount:              model.GradedCount,
		Attachments:              append([]string{}, model.Attachments...),
		CreatedAt:                model.CreatedAt,
		UpdatedAt:                model.UpdatedAt,
	}

	if len(model.Questions) > 0 {
		questions := make([]QuestionResponse, 0, len(model.Questions))
		for _, question := range model.Questions {
			item := QuestionResponse{
				ID:       question.ID,
				Text:     question.Text,
				Kind:     string(question.Kind),
				Points:   question.Points,
				Position: question.Position,
				Options:  append([]string{}, question.Options...),
			}
			if withKeys {
				key := question.AnswerKey()
				item.CorrectAnswer = &key
			}
			questions = append(questions, item)
		}
		response.Questions = questions
	}

	return response
}

// NewAssessmentResponseSlice converts assessments without their questions.
func NewAssessmentResponseSlice(items []models.Assessment) []AssessmentResponse {
	out := make([]AssessmentResponse, 0, len(items))
	for _, item := range items {
		item.Questions = nil
		out = append(out, NewAssessmentResponse(item, false))
	}
	return out
}
