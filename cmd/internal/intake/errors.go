package intake

import (
	"errors"
	"fmt"
)

// Public, stable errors for callers.
var (
	ErrInvitationNotFound = errors.New("invitation not found")
	ErrInvitationUsed     = errors.New("invitation already used")
	ErrInvitationExpired  = errors.New("invitation expired")
	ErrSessionNotFound    = errors.New("session not found")
	ErrSessionExists      = errors.New("session already exists for invitation")
	ErrSessionCompleted   = errors.New("session already completed")
	ErrSurveyNotFound     = errors.New("survey not found")
	ErrSurveyNotActive    = errors.New("survey not active")
	ErrResponseNotFound   = errors.New("response not found")
	ErrInvalidInput       = errors.New("invalid input")
	ErrValidation         = errors.New("validation failed")
)

// ValidationError pinpoints the first failing answer.
type ValidationError struct {
	QuestionCode string
	Reason       string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s: %s", e.QuestionCode, e.Reason)
}

// Unwrap lets callers match with errors.Is(err, ErrValidation).
func (e *ValidationError) Unwrap() error { return ErrValidation }
