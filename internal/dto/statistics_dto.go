package dto

import "time"

// AssessmentStatisticsResponse aggregates the submissions of one assessment.
type AssessmentStatisticsResponse struct {
	AssessmentID      uint      `json:"assessment_id"`
	TotalSubmissions  int       `json:"total_submissions"`
	AverageScore      float64   `json:"average_score"`
	AveragePercentage float64   `json:"average_percentage"`
	PassRate          float64   `json:"pass_rate"`
	AverageTimeSpent  float64   `json:"average_time_spent"`
	GeneratedAt       time.Time `json:"generated_at"`
	CacheHit          bool      `json:"cache_hit"`
}

// InstructorAssessmentSummary is the per-assessment line of an instructor report.
type InstructorAssessmentSummary struct {
	AssessmentID     uint    `json:"assessment_id"`
	Title            string  `json:"title"`
	TotalSubmissions int     `json:"total_submissions"`
	AverageScore     float64 `json:"average_score"`
	PassRate         float64 `json:"pass_rate"`
	GradedCount      int     `json:"graded_count"`
}

// InstructorTotals aggregates every submission across an instructor's assessments.
type InstructorTotals struct {
	TotalAssessments int     `json:"total_assessments"`
	TotalSubmissions int     `json:"total_submissions"`
	AverageScore     float64 `json:"average_score"`
	CompletionRate   float64 `json:"completion_rate"`
	PassRate         float64 `json:"pass_rate"`
}

// InstructorStatisticsResponse is the instructor-wide statistics report.
type InstructorStatisticsResponse struct {
	InstructorID uint                          `json:"instructor_id"`
	Assessments  []InstructorAssessmentSummary `json:"assessments"`
	Totals       InstructorTotals              `json:"totals"`
	GeneratedAt  time.Time                     `json:"generated_at"`
	CacheHit     bool                          `json:"cache_hit"`
}
