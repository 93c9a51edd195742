package mutation

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidSnapshot indicates the history entry cannot be rolled back to.
	ErrInvalidSnapshot = errors.New("history entry has no usable snapshot")
	// ErrInUse indicates a delete was blocked by references from other entities.
	ErrInUse = errors.New("entity is in use")
)

// InUseError lists the references that block a delete.
type InUseError struct {
	Usages []Usage
}

func (e *InUseError) Error() string {
	refs := make([]string, 0, len(e.Usages))
	for _, u := range e.Usages {
		refs = append(refs, u.String())
	}
	return fmt.Sprintf("%s: referenced by %s", ErrInUse, strings.Join(refs, ", "))
}

func (e *InUseError) Unwrap() error {
	return ErrInUse
}
