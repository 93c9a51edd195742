package page

import (
	"fmt"

	"github.com/rpggio/folio/internal/repository"
)

var (
	// ErrPageNotFound indicates no page has the slug.
	ErrPageNotFound = fmt.Errorf("page %w", repository.ErrNotFound)
	// ErrInvalidPage indicates a malformed page write.
	ErrInvalidPage = fmt.Errorf("invalid page: %w", repository.ErrInvalidInput)
)
