package models

import (
	"time"

	"gorm.io/datatypes"
)

// AssessmentKind classifies an assessment.
type AssessmentKind string

const (
	AssessmentKindQuiz       AssessmentKind = "quiz"
	AssessmentKindExam       AssessmentKind = "exam"
	AssessmentKindAssignment AssessmentKind = "assignment"
	AssessmentKindSurvey     AssessmentKind = "survey"
	AssessmentKindPractice   AssessmentKind = "practice"
)

// Assessment is a gradable unit owned by a course.
type Assessment struct {
	ID                       uint                        `gorm:"primaryKey" json:"id"`
	Title                    string                      `gorm:"size:255;not null" json:"title"`
	Kind                     AssessmentKind              `gorm:"size:32;not null" json:"kind"`
	CourseID                 uint                        `gorm:"not null;index" json:"course_id"`
	InstructorID             uint                        `gorm:"not null;index" json:"instructor_id"`
	TotalPoints              float64                     `gorm:"not null" json:"total_points"`
	PassingScore             float64                     `gorm:"not null" json:"passing_score"`
	TimeLimitMinutes         *int                        `json:"time_limit_minutes"`
	AttemptsAllowed          *int                        `json:"attempts_allowed"`
	DueDate                  *time.Time                  `json:"due_date"`
	LatePenaltyPercentPerDay *float64                    `json:"late_penalty_percent_per_day"`
	AllowResubmission        bool                        `gorm:"not null;default:false" json:"allow_resubmission"`
	GradedCount              int                         `gorm:"not null;default:0" json:"graded_count"`
	Attachments              datatypes.JSONSlice[string] `json:"attachments"`
	CreatedAt                time.Time                   `json:"created_at"`
	UpdatedAt                time.Time                   `json:"updated_at"`
	Questions                []Question                  `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"questions"`
}

// HasAttemptLimit reports whether the number of submissions per student is capped.
func (a Assessment) HasAttemptLimit() bool {
	return a.AttemptsAllowed != nil && *a.AttemptsAllowed > 0
}

// HasLatePenalty reports whether late submissions lose points per day.
func (a Assessment) HasLatePenalty() bool {
	return a.LatePenaltyPercentPerDay != nil && *a.LatePenaltyPercentPerDay > 0
}

// QuestionPoints sums the points of every question.
func (a Assessment) QuestionPoints() float64 {
	var total float64
	for _, question := range a.Questions {
		total += question.Points
	}
	return total
}
