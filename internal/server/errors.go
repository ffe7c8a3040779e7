package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jonathan/purchase-tracker/internal/db"
	"github.com/jonathan/purchase-tracker/internal/jobs"
	"github.com/jonathan/purchase-tracker/internal/pricing"
)

// ErrUsernameTaken indicates the username is already registered
type ErrUsernameTaken struct {
	Username string
}

func (e *ErrUsernameTaken) Error() string {
	return fmt.Sprintf("username already registered: %s", e.Username)
}

// ErrInvalidCredentials indicates invalid login credentials
type ErrInvalidCredentials struct{}

func (e *ErrInvalidCredentials) Error() string {
	return "invalid username or password"
}

// ErrPasswordMismatch indicates current password is incorrect
type ErrPasswordMismatch struct{}

func (e *ErrPasswordMismatch) Error() string {
	return "current password is incorrect"
}

// ErrValidation indicates request validation failure
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	if e.Field == "" {
		return "validation error: " + e.Message
	}
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// ErrNotFound indicates the resource does not exist for the caller
type ErrNotFound struct {
	Resource string
}

func (e *ErrNotFound) Error() string {
	return e.Resource + " not found"
}

// ErrForbidden indicates the caller may not access the resource
type ErrForbidden struct {
	Reason string
}

func (e *ErrForbidden) Error() string {
	return e.Reason
}

// ErrConflict indicates the request collides with current state
type ErrConflict struct {
	Message string
}

func (e *ErrConflict) Error() string {
	return e.Message
}

// HTTPStatus returns the appropriate HTTP status code for an error.
func HTTPStatus(err error) int {
	var (
		taken     *ErrUsernameTaken
		invalid   *ErrInvalidCredentials
		mismatch  *ErrPasswordMismatch
		validErr  *ErrValidation
		notFound  *ErrNotFound
		forbidden *ErrForbidden
		conflict  *ErrConflict
	)
	switch {
	case errors.As(err, &taken), errors.As(err, &conflict),
		errors.Is(err, jobs.ErrConflict), errors.Is(err, pricing.ErrDuplicate), errors.Is(err, db.ErrUsernameTaken):
		return http.StatusConflict
	case errors.As(err, &invalid), errors.As(err, &mismatch):
		return http.StatusUnauthorized
	case errors.As(err, &forbidden), errors.Is(err, db.ErrRegistrationClosed):
		return http.StatusForbidden
	case errors.As(err, &notFound), errors.Is(err, jobs.ErrNotFound), errors.Is(err, pricing.ErrNotFound),
		errors.Is(err, db.ErrUserNotFound):
		return http.StatusNotFound
	case errors.As(err, &validErr), errors.Is(err, pricing.ErrInvalidName), errors.Is(err, jobs.ErrNotActive),
		errors.Is(err, jobs.ErrStillActive):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
