package dto

import (
	"encoding/json"
	"time"

	"github.com/noah-isme/gema-assessment-api/internal/models"
)

// SubmitAnswerRequest carries a student's answer to one question. Answer is decoded
// against the question kind on the server.
type SubmitAnswerRequest struct {
	QuestionID uint            `json:"question_id" validate:"required,gt=0"`
	Answer     json.RawMessage `json:"answer"`
	TimeSpent  int             `json:"time_spent" validate:"gte=0"`
}

// SubmissionCreateRequest is the payload for submitting or resubmitting an assessment.
type SubmissionCreateRequest struct {
	Answers   []SubmitAnswerRequest `json:"answers" validate:"unique=QuestionID,dive"`
	TimeSpent int                   `json:"time_spent" validate:"gte=0"`
}

// SubmissionFilter describes query string filters for listing submissions.
type SubmissionFilter struct {
	AssessmentID *uint   `query:"assessment_id"`
	StudentID    *uint   `query:"student_id"`
	Status       *string `query:"status" validate:"omitempty,oneof=submitted graded returned resubmitted"`
}

// AnswerResponse serializes a stored answer.
type AnswerResponse struct {
	QuestionID    uint               `json:"question_id"`
	Value         models.AnswerValue `json:"value"`
	TimeSpent     int                `json:"time_spent"`
	AwardedPoints float64            `json:"awarded_points"`
}

// SubmissionGradeHistoryResponse serializes grading history entries.
type SubmissionGradeHistoryResponse struct {
	Score         float64   `json:"score"`
	OriginalScore *float64  `json:"original_score"`
	Feedback      string    `json:"feedback"`
	GradedBy      uint      `json:"graded_by"`
	GradedAt      time.Time `json:"graded_at"`
}

// StudentLite summarizes a student without exposing full profile data.
type StudentLite struct {
	ID    uint   `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// SubmissionResponse is returned to API clients when viewing submissions.
type SubmissionResponse struct {
	ID            uint                             `json:"id"`
	AssessmentID  uint                             `json:"assessment_id"`
	StudentID     uint                             `json:"student_id"`
	AttemptNumber int                              `json:"attempt_number"`
	Score         float64                          `json:"score"`
	Percentage    float64                          `json:"percentage"`
	Passed        bool                             `json:"passed"`
	TimeSpent     int                              `json:"time_spent"`
	SubmittedAt   time.Time                        `json:"submitted_at"`
	Status        string                           `json:"status"`
	Feedback      string                           `json:"feedback"`
	GradedBy      *uint                            `json:"graded_by"`
	GradedAt      *time.Time                       `json:"graded_at"`
	IsLate        bool                             `json:"is_late"`
	DaysLate      int                              `json:"days_late"`
	Grade         *float64                         `json:"grade"`
	OriginalScore *float64                         `json:"original_score"`
	FinalScore    *float64                         `json:"final_score"`
	Answers       []AnswerResponse                 `json:"answers,omitempty"`
	History       []SubmissionGradeHistoryResponse `json:"history,omitempty"`
	Assessment    *AssessmentLite                  `json:"assessment,omitempty"`
	Student       *StudentLite                     `json:"student,omitempty"`
	CreatedAt     time.Time                        `json:"created_at"`
	UpdatedAt     time.Time                        `json:"updated_at"`
}

// NewSubmissionResponse converts a Submission model into a DTO.
func NewSubmissionResponse(model models.Submission) SubmissionResponse {
	response := SubmissionResponse{
		ID:            model.ID,
		AssessmentID:  model.AssessmentID,
		StudentID:     model.StudentID,
		AttemptNumber: model.AttemptNumber,
		Score:         model.Score,
		Percentage:    model.Percentage,
		Passed:        model.Passed,
		TimeSpent:     model.TimeSpent,
		SubmittedAt:   model.SubmittedAt,
		Status:        string(model.Status),
		Feedback:      model.Feedback,
		GradedBy:      model.GradedBy,
		GradedAt:      model.GradedAt,
		IsLate:        model.IsLate,
		DaysLate:      model.DaysLate,
		Grade:         model.Grade,
		OriginalScore: model.OriginalScore,
		FinalScore:    model.FinalScore,
		CreatedAt:     model.CreatedAt,
		UpdatedAt:     model.UpdatedAt,
	}

	if model.Assessment.ID != 0 {
		response.Assessment = &AssessmentLite{
			ID:          model.Assessment.ID,
			Title:       model.Assessment.Title,
			TotalPoints: model.Assessment.TotalPoints,
			DueDate:     model.Assessment.DueDate,
		}
	}

	if model.Student.ID != 0 {
		response.Student = &StudentLite{
			ID:    model.Student.ID,
			Name:  model.Student.Name,
			Email: model.Student.Email,
		}
	}

	if len(model.Answers) > 0 {
		answers := make([]AnswerResponse, 0, len(model.Answers))
		for _, answer := range model.Answers {
			answers = append(answers, AnswerResponse{
				QuestionID:    answer.QuestionID,
				Value:         answer.Value.Data(),
				TimeSpent:     answer.TimeSpent,
				AwardedPoints: answer.AwardedPoints,
			})
		}
		response.Answers = answers
	}

	if len(model.History) > 0 {
		history := make([]SubmissionGradeHistoryResponse, 0, len(model.History))
		for _, entry := range model.History {
			history = append(history, SubmissionGradeHistoryResponse{
				Score:         entry.Score,
				OriginalScore: entry.OriginalScore,
				Feedback:      entry.Feedback,
				GradedBy:      entry.GradedBy,
				GradedAt:      entry.GradedAt,
			})
		}
		response.History = history
	}

	return response
}

// NewSubmissionResponseSlice converts submission models into DTOs.
func NewSubmissionResponseSlice(items []models.Submission) []SubmissionResponse {
	responses := make([]SubmissionResponse, 0, len(items))
	for _, submission := range items {
		responses = append(responses, NewSubmissionResponse(submission))
	}

	return responses
}
