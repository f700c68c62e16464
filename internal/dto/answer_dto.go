package dto

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/noah-isme/gema-assessment-api/internal/models"
)

// ErrInvalidAnswer is returned when a raw answer does not fit the question kind.
var ErrInvalidAnswer = errors.New("invalid answer value")

// ParseAnswerValue decodes a raw JSON answer and tags it with the question kind. Strings
// are accepted for choice and free text kinds, booleans or "true"/"false" strings for
// true/false and string arrays for multi select. A missing or null value yields an
// empty answer of the given kind.
func ParseAnswerValue(kind models.QuestionKind, raw json.RawMessage) (models.AnswerValue, error) {
	if !kind.Valid() {
		return models.AnswerValue{}, fmt.Errorf("%w: unknown question kind %q", ErrInvalidAnswer, kind)
	}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return models.AnswerValue{Kind: kind}, nil
	}

	switch kind {
	case models.QuestionKindSingleChoice:
		var choice string
		if err := json.Unmarshal(trimmed, &choice); err != nil {
			return models.AnswerValue{}, fmt.Errorf("%w: %s expects a string", ErrInvalidAnswer, kind)
		}
		return models.SingleChoice(choice), nil
	case models.QuestionKindTrueFalse:
		var flag bool
		if err := json.Unmarshal(trimmed, &flag); err == nil {
			return models.TrueFalse(flag), nil
		}
		var text string
		if err := json.Unmarshal(trimmed, &text); err != nil {
			return models.AnswerValue{}, fmt.Errorf("%w: %s expects a boolean", ErrInvalidAnswer, kind)
		}
		parsed, err := strconv.ParseBool(strings.TrimSpace(text))
		if err != nil {
			return models.AnswerValue{}, fmt.Errorf("%w: %s expects a boolean", ErrInvalidAnswer, kind)
		}
		return models.TrueFalse(parsed), nil
	case models.QuestionKindMultiSelect:
		var choices []string
		if err := json.Unmarshal(trimmed, &choices); err != nil {
			return models.AnswerValue{}, fmt.Errorf("%w: %s expects a list of strings", ErrInvalidAnswer, kind)
		}
		return models.MultiSelect(choices...), nil
	default:
		var text string
		if err := json.Unmarshal(trimmed, &text); err != nil {
			return models.AnswerValue{}, fmt.Errorf("%w: %s expects text", ErrInvalidAnswer, kind)
		}
		return models.FreeText(kind, text), nil
	}
}
