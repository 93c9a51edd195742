package content

import (
	"fmt"

	"github.com/rpggio/folio/internal/repository"
)

var (
	// ErrUnknownCollection indicates the collection has no registered schema.
	ErrUnknownCollection = fmt.Errorf("unknown collection: %w", repository.ErrNotFound)
	// ErrUnknownField indicates a write carried a field outside the kind's allowed set.
	ErrUnknownField = fmt.Errorf("field not allowed: %w", repository.ErrInvalidInput)
	// ErrInvalidStatus indicates a status other than draft or published.
	ErrInvalidStatus = fmt.Errorf("invalid status: %w", repository.ErrInvalidInput)
)
