package document

import (
	"fmt"

	"github.com/rpggio/folio/internal/repository"
)

var (
	// ErrEntityNotFound indicates the id is not present in the collection.
	ErrEntityNotFound = fmt.Errorf("entity %w", repository.ErrNotFound)
	// ErrVersionMismatch indicates the caller wrote against a stale version.
	ErrVersionMismatch = fmt.Errorf("version mismatch: %w", repository.ErrConflict)
	// ErrDuplicateID indicates a bulk replace carried the same id twice.
	ErrDuplicateID = fmt.Errorf("duplicate id: %w", repository.ErrInvalidInput)
	// ErrDuplicateKey indicates another entity already holds the natural key.
	ErrDuplicateKey = fmt.Errorf("natural key taken: %w", repository.ErrConflict)
)
