package shared

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates input rejected by a business rule.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidState indicates an action not allowed for the document status.
	ErrInvalidState = errors.New("invalid state transition")
	// ErrConflict indicates a concurrent or duplicate operation.
	ErrConflict = errors.New("conflict")
	// ErrForbidden indicates missing permission.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// UserError carries a message that is safe to show to the end user while
// still matching its Kind through errors.Is.
type UserError struct {
	Kind    error
	Message string
}

func (e *UserError) Error() string {
	return e.Message
}

func (e *UserError) Unwrap() error {
	return e.Kind
}

// Userf builds a UserError of the given kind.
func Userf(kind error, format string, args ...any) error {
	return &UserError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// UserSafeMessage converts err into text suitable for API consumers.
func UserSafeMessage(err error) string {
	if err == nil {
		return ""
	}
	var userErr *UserError
	if errors.As(err, &userErr) {
		return userErr.Message
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return "record not found"
	case errors.Is(err, ErrValidation):
		return "invalid input"
	case errors.Is(err, ErrInvalidState):
		return "action not allowed in the current document status"
	case errors.Is(err, ErrConflict):
		return "another request is processing the same document, please retry"
	case errors.Is(err, ErrForbidden):
		return "you do not have permission to perform this action"
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid email or password"
	default:
		return "an unexpected error occurred"
	}
}
