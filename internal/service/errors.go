package service

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks requests rejected before any state changed.
	ErrValidation = errors.New("validation failed")
	// ErrAssessmentNotFound indicates the assessment does not exist.
	ErrAssessmentNotFound = errors.New("assessment not found")
	// ErrSubmissionNotFound indicates the submission does not exist.
	ErrSubmissionNotFound = errors.New("submission not found")
	// ErrQuestionNotFound indicates an answer referenced a question outside the assessment.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrNotificationNotFound indicates the inbox entry does not exist for the user.
	ErrNotificationNotFound = errors.New("notification not found")
	// ErrForbidden indicates the caller may not act on the resource.
	ErrForbidden = errors.New("forbidden")
	// ErrAttemptsExceeded indicates the student used every allowed attempt.
	ErrAttemptsExceeded = errors.New("attempts exceeded")
	// ErrConflict indicates the requested state change is not allowed from the current state.
	ErrConflict = errors.New("conflict")
)

func validationError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
