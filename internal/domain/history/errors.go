package history

import (
	"fmt"

	"github.com/rpggio/folio/internal/repository"
)

var (
	// ErrEntryNotFound indicates the history entry doesn't exist.
	ErrEntryNotFound = fmt.Errorf("history entry %w", repository.ErrNotFound)
	// ErrInvalidEntry indicates a record request is missing required fields.
	ErrInvalidEntry = fmt.Errorf("invalid history entry: %w", repository.ErrInvalidInput)
)
