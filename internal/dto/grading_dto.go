package dto

import "time"

// GradeSubmissionRequest captures payloads for grading a single submission.
type GradeSubmissionRequest struct {
	Feedback    *string  `json:"feedback" validate:"omitempty,max=5000"`
	ManualScore *float64 `json:"manual_score" validate:"omitempty,gte=0"`
}

// BulkGradeEntry is one instructor decision inside a bulk grading request.
type BulkGradeEntry struct {
	SubmissionID uint     `json:"submission_id" validate:"required,gt=0"`
	Grade        *float64 `json:"grade" validate:"required,gte=0"`
	Feedback     *string  `json:"feedback" validate:"omitempty,max=5000"`
}

// BulkGradeRequest grades many submissions of one assessment at once.
type BulkGradeRequest struct {
	Entries          []BulkGradeEntry `json:"entries" validate:"required,min=1,unique=SubmissionID,dive"`
	ReturnToStudents bool             `json:"return_to_students"`
}

// BulkGradeEntryResult reports the outcome for one graded submission.
type BulkGradeEntryResult struct {
	SubmissionID       uint    `json:"submission_id"`
	StudentName        string  `json:"student_name"`
	OriginalGrade      float64 `json:"original_grade"`
	FinalGrade         float64 `json:"final_grade"`
	LatePenaltyApplied bool    `json:"late_penalty_applied"`
	Success            bool    `json:"success"`
}

// BulkGradeStats summarizes a bulk grading pass.
type BulkGradeStats struct {
	TotalGraded     int `json:"total_graded"`
	NewlyGraded     int `json:"newly_graded"`
	WithLatePenalty int `json:"with_late_penalty"`
}

// BulkGradeResponse is returned after a successful bulk grading pass.
type BulkGradeResponse struct {
	Results []BulkGradeEntryResult `json:"results"`
	Stats   BulkGradeStats         `json:"stats"`
}

// GradeExportRow is one line of the grading template.
type GradeExportRow struct {
	SubmissionID  uint      `json:"submission_id"`
	StudentName   string    `json:"student_name"`
	StudentEmail  string    `json:"student_email"`
	AttemptNumber int       `json:"attempt_number"`
	CurrentGrade  *float64  `json:"current_grade"`
	NewGrade      string    `json:"new_grade"`
	Feedback      string    `json:"feedback"`
	Status        string    `json:"status"`
	SubmittedAt   time.Time `json:"submitted_at"`
	IsLate        bool      `json:"is_late"`
	DaysLate      int       `json:"days_late"`
}
