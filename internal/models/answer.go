package models

import (
	"strconv"
	"time"

	"gorm.io/datatypes"
)

// AnswerValue is a tagged value keyed by question kind. Single choice and true/false use
// Choice, multi select uses Choices, short answer and essay use Text.
type AnswerValue struct {
	Kind    QuestionKind `json:"kind"`
	Choice  string       `json:"choice,omitempty"`
	Choices []string     `json:"choices,omitempty"`
	Text    string       `json:"text,omitempty"`
}

// SingleChoice builds a single choice value.
func SingleChoice(choice string) AnswerValue {
	return AnswerValue{Kind: QuestionKindSingleChoice, Choice: choice}
}

// TrueFalse builds a true/false value.
func TrueFalse(value bool) AnswerValue {
	return AnswerValue{Kind: QuestionKindTrueFalse, Choice: strconv.FormatBool(value)}
}

// MultiSelect builds a multi select value.
func MultiSelect(choices ...string) AnswerValue {
	return AnswerValue{Kind: QuestionKindMultiSelect, Choices: choices}
}

// FreeText builds a short answer or essay value.
func FreeText(kind QuestionKind, text string) AnswerValue {
	return AnswerValue{Kind: kind, Text: text}
}

// IsEmpty reports whether the value carries no response.
func (v AnswerValue) IsEmpty() bool {
	return v.Choice == "" && len(v.Choices) == 0 && v.Text == ""
}

// Answer is a student's response to one question inside a submission.
type Answer struct {
	ID            uint                            `gorm:"primaryKey" json:"id"`
	SubmissionID  uint                            `gorm:"not null;index" json:"submission_id"`
	QuestionID    uint                            `gorm:"not null;index" json:"question_id"`
	Value         datatypes.JSONType[AnswerValue] `json:"value"`
	TimeSpent     int                             `gorm:"not null;default:0" json:"time_spent"`
	AwardedPoints float64                         `gorm:"not null;default:0" json:"awarded_points"`
	CreatedAt     time.Time                       `json:"created_at"`
	UpdatedAt     time.Time                       `json:"updated_at"`
}
