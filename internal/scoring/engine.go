// Package scoring holds the pure grading rules: automatic per-question scoring, late
// penalties and the percentage/pass derivation. Nothing in here touches storage.
package scoring

import (
	"strings"

	"github.com/noah-isme/gema-assessment-api/internal/models"
)

// QuestionScore is the outcome for one question.
type QuestionScore struct {
	QuestionID uint    `json:"question_id"`
	Awarded    float64 `json:"awarded"`
	Possible   float64 `json:"possible"`
	Answered   bool    `json:"answered"`
	AutoScored bool    `json:"auto_scored"`
}

// Result aggregates the per-question outcomes of a submission.
type Result struct {
	Total     float64         `json:"total"`
	Possible  float64         `json:"possible"`
	Questions []QuestionScore `json:"questions"`
}

// Awarded returns the points awarded for a question, zero when it is unknown.
func (r Result) Awarded(questionID uint) float64 {
	for _, question := range r.Questions {
		if question.QuestionID == questionID {
			return question.Awarded
		}
	}
	return 0
}

// NeedsManualGrading reports whether any answered question cannot be scored automatically.
func (r Result) NeedsManualGrading() bool {
	for _, question := range r.Questions {
		if question.Answered && !question.AutoScored {
			return true
		}
	}
	return false
}

// Score evaluates answers against the questions of an assessment. Questions without an
// answer, answers for unknown questions and answers tagged with another kind earn nothing.
func Score(questions []models.Question, answers []models.Answer) Result {
	byQuestion := make(map[uint]models.AnswerValue, len(answers))
	for _, answer := range answers {
		if _, seen := byQuestion[answer.QuestionID]; seen {
			continue
		}
		byQuestion[answer.QuestionID] = answer.Value.Data()
	}

	result := Result{Questions: make([]QuestionScore, 0, len(questions))}
	for _, question := range questions {
		possible := nonNegative(question.Points)
		value, answered := byQuestion[question.ID]

		awarded := 0.0
		if answered {
			awarded = ScoreQuestion(question, value)
		}

		result.Total += awarded
		result.Possible += possible
		result.Questions = append(result.Questions, QuestionScore{
			QuestionID: question.ID,
			Awarded:    awarded,
			Possible:   possible,
			Answered:   answered && !value.IsEmpty(),
			AutoScored: question.Kind.AutoScored(),
		})
	}

	result.Total = Round(result.Total)
	return result
}

// ScoreQuestion awards full points for an exact match and zero otherwise. Free text kinds
// always score zero and are left for the instructor.
func ScoreQuestion(question models.Question, answer models.AnswerValue) float64 {
	if answer.Kind != question.Kind {
		return 0
	}

	key := question.AnswerKey()
	points := nonNegative(question.Points)

	switch question.Kind {
	case models.QuestionKindSingleChoice, models.QuestionKindTrueFalse:
		if answer.Choice == "" || key.Choice == "" {
			return 0
		}
		if normalize(answer.Choice) == normalize(key.Choice) {
			return points
		}
		return 0
	case models.QuestionKindMultiSelect:
		if equalSet(answer.Choices, key.Choices) {
			return points
		}
		return 0
	default:
		return 0
	}
}

// equalSet reports whether selected holds exactly the members of correct. Repeated
// selections count as a mismatch.
func equalSet(selected, correct []string) bool {
	if len(correct) == 0 || len(selected) != len(correct) {
		return false
	}

	want := make(map[string]struct{}, len(correct))
	for _, item := range correct {
		want[normalize(item)] = struct{}{}
	}

	seen := make(map[string]struct{}, len(selected))
	for _, item := range selected {
		key := normalize(item)
		if _, ok := want[key]; !ok {
			return false
		}
		if _, dup := seen[key]; dup {
			return false
		}
		seen[key] = struct{}{}
	}

	return len(seen) == len(want)
}

func normalize(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func nonNegative(value float64) float64 {
	if value < 0 {
		return 0
	}
	return value
}
