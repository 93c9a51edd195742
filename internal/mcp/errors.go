package mcp

import (
	"errors"
	"fmt"

	"github.com/rpggio/folio/internal/repository"
)

// APIError represents an MCP tool error.
type APIError struct {
	Code         string `json:"code"`
	Message      string `json:"message"`
	RecoveryHint string `json:"recovery_hint,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// MapError maps domain errors to MCP error codes.
func MapError(err error) *APIError {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return &APIError{Code: "NOT_FOUND", Message: err.Error(), RecoveryHint: "List the collection to find valid ids"}
	case errors.Is(err, repository.ErrInvalidInput):
		return &APIError{Code: "INVALID_INPUT", Message: err.Error(), RecoveryHint: "Check the arguments"}
	case errors.Is(err, repository.ErrIOFailure):
		return &APIError{Code: "UNAVAILABLE", Message: "storage is unavailable", RecoveryHint: "Retry later"}
	default:
		return &APIError{Code: "INTERNAL", Message: "internal error"}
	}
}
