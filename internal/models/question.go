package models

import (
	"time"

	"gorm.io/datatypes"
)

// QuestionKind identifies how a question is answered and scored.
type QuestionKind string

const (
	QuestionKindSingleChoice QuestionKind = "single_choice"
	QuestionKindTrueFalse    QuestionKind = "true_false"
	QuestionKindMultiSelect  QuestionKind = "multi_select"
	QuestionKindShortAnswer  QuestionKind = "short_answer"
	QuestionKindEssay        QuestionKind = "essay"
)

// Valid reports whether the kind is one of the supported question kinds.
func (k QuestionKind) Valid() bool {
	switch k {
	case QuestionKindSingleChoice, QuestionKindTrueFalse, QuestionKindMultiSelect, QuestionKindShortAnswer, QuestionKindEssay:
		return true
	}
	return false
}

// AutoScored reports whether answers of this kind can be checked by machine.
func (k QuestionKind) AutoScored() bool {
	switch k {
	case QuestionKindSingleChoice, QuestionKindTrueFalse, QuestionKindMultiSelect:
		return true
	}
	return false
}

// Question is a single gradable item of an assessment.
type Question struct {
	ID            uint                            `gorm:"primaryKey" json:"id"`
	AssessmentID  uint                            `gorm:"not null;index" json:"assessment_id"`
	Text          string                          `gorm:"type:text;not null" json:"text"`
	Kind          QuestionKind                    `gorm:"size:32;not null" json:"kind"`
	Points        float64                         `gorm:"not null" json:"points"`
	Position      int                             `gorm:"not null;default:0" json:"position"`
	Options       datatypes.JSONSlice[string]     `json:"options"`
	CorrectAnswer datatypes.JSONType[AnswerValue] `json:"correct_answer"`
	CreatedAt     time.Time                       `json:"created_at"`
	UpdatedAt     time.Time                       `json:"updated_at"`
}

// AnswerKey returns the stored grading data of the question.
func (q Question) AnswerKey() AnswerValue {
	return q.CorrectAnswer.Data()
}
