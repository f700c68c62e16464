package models

import "time"

// SubmissionStatus is the grading state of a submission.
type SubmissionStatus string

const (
	// SubmissionStatusSubmitted indicates the submission has been received but not graded.
	SubmissionStatusSubmitted SubmissionStatus = "submitted"
	// SubmissionStatusGraded indicates an instructor has graded the submission.
	SubmissionStatusGraded SubmissionStatus = "graded"
	// SubmissionStatusReturned indicates the graded submission was released to the student.
	SubmissionStatusReturned SubmissionStatus = "returned"
	// SubmissionStatusResubmitted indicates a returned submission was answered again.
	SubmissionStatusResubmitted SubmissionStatus = "resubmitted"
)

var submissionTransitions = map[SubmissionStatus][]SubmissionStatus{
	SubmissionStatusSubmitted:   {SubmissionStatusGraded, SubmissionStatusReturned},
	SubmissionStatusGraded:      {SubmissionStatusGraded, SubmissionStatusReturned},
	SubmissionStatusReturned:    {SubmissionStatusGraded, SubmissionStatusReturned, SubmissionStatusResubmitted},
	SubmissionStatusResubmitted: {SubmissionStatusGraded, SubmissionStatusReturned},
}

// Valid reports whether the status is a known value.
func (s SubmissionStatus) Valid() bool {
	_, ok := submissionTransitions[s]
	return ok
}

// CanTransitionTo reports whether moving from s to next is allowed.
func (s SubmissionStatus) CanTransitionTo(next SubmissionStatus) bool {
	for _, allowed := range submissionTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// AwaitingGrade reports whether the submission still needs an instructor decision.
func (s SubmissionStatus) AwaitingGrade() bool {
	return s == SubmissionStatusSubmitted || s == SubmissionStatusResubmitted
}

// Submission is one student's attempt at an assessment.
type Submission struct {
	ID            uint                     `gorm:"primaryKey" json:"id"`
	AssessmentID  uint                     `gorm:"not null;uniqueIndex:idx_submission_attempt,priority:1" json:"assessment_id"`
	StudentID     uint                     `gorm:"not null;uniqueIndex:idx_submission_attempt,priority:2" json:"student_id"`
	AttemptNumber int                      `gorm:"not null;uniqueIndex:idx_submission_attempt,priority:3" json:"attempt_number"`
	Score         float64                  `gorm:"not null;default:0" json:"score"`
	Percentage    float64                  `gorm:"not null;default:0" json:"percentage"`
	Passed        bool                     `gorm:"not null;default:false" json:"passed"`
	TimeSpent     int                      `gorm:"not null;default:0" json:"time_spent"`
	SubmittedAt   time.Time                `gorm:"not null" json:"submitted_at"`
	Status        SubmissionStatus         `gorm:"size:32;not null;index" json:"status"`
	Feedback      string                   `gorm:"type:text" json:"feedback"`
	GradedBy      *uint                    `json:"graded_by"`
	GradedAt      *time.Time               `json:"graded_at"`
	IsLate        bool                     `gorm:"not null;default:false" json:"is_late"`
	DaysLate      int                      `gorm:"not null;default:0" json:"days_late"`
	Grade         *float64                 `json:"grade"`
	OriginalScore *float64                 `json:"original_score"`
	FinalScore    *float64                 `json:"final_score"`
	CreatedAt     time.Time                `json:"created_at"`
	UpdatedAt     time.Time                `json:"updated_at"`
	Answers       []Answer                 `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"answers"`
	Assessment    Assessment               `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"assessment"`
	Student       Student                  `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"student"`
	History       []SubmissionGradeHistory `json:"history"`
}

// IsGraded reports whether the submission has been graded at least once.
func (s Submission) IsGraded() bool {
	return s.GradedAt != nil
}

// EffectiveScore returns the authoritative score: the final score once graded, otherwise
// the automatically computed one.
func (s Submission) EffectiveScore() float64 {
	if s.FinalScore != nil {
		return *s.FinalScore
	}
	return s.Score
}

// SubmissionGradeHistory records one grading pass over a submission.
type SubmissionGradeHistory struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	SubmissionID  uint      `gorm:"not null;index" json:"submission_id"`
	Score         float64   `gorm:"not null" json:"score"`
	OriginalScore *float64  `json:"original_score"`
	Feedback      string    `gorm:"type:text" json:"feedback"`
	GradedBy      uint      `gorm:"not null" json:"graded_by"`
	GradedAt      time.Time `gorm:"not null" json:"graded_at"`
}
