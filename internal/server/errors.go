// Package server provides the HTTP REST API for the talent manager.
package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jonathan/teamgr/internal/chat"
	"github.com/jonathan/teamgr/internal/llm"
	"github.com/jonathan/teamgr/internal/store"
)

// ErrInvalidCredentials indicates a wrong access password.
type ErrInvalidCredentials struct{}

func (e *ErrInvalidCredentials) Error() string {
	return "invalid access password"
}

// ErrValidation indicates request validation failure.
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// HTTPStatus returns the appropriate HTTP status code for an error.
func HTTPStatus(err error) int {
	var validationErr *ErrValidation
	var credentialsErr *ErrInvalidCredentials
	switch {
	case errors.As(err, &validationErr):
		return http.StatusBadRequest
	case errors.As(err, &credentialsErr):
		return http.StatusUnauthorized
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrVersionConflict):
		return http.StatusConflict
	case errors.Is(err, chat.ErrNoRelevantDimensions):
		return http.StatusUnprocessableEntity
	case llm.IsModelError(err):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
