package analytics

import (
	"fmt"

	"github.com/rpggio/folio/internal/repository"
)

// MaxEventBytes caps the encoded size of one event. Line-oriented backends
// size their read buffers from it.
const MaxEventBytes = 64 << 10

var (
	// ErrInvalidEvent indicates an event without a type.
	ErrInvalidEvent = fmt.Errorf("invalid analytics event: %w", repository.ErrInvalidInput)
	// ErrEventTooLarge indicates an event whose encoding exceeds MaxEventBytes.
	ErrEventTooLarge = fmt.Errorf("analytics event too large: %w", repository.ErrInvalidInput)
)
