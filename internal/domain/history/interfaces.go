package history

import "context"

// Repository persists ledger entries.
type Repository interface {
	// Append stores entries, given oldest first, ahead of every existing entry
	// and evicts the oldest entries beyond retain. The batch is all-or-nothing.
	Append(ctx context.Context, entries []*Entry, retain int) error
	Get(ctx context.Context, id string) (*Entry, error)
	List(ctx context.Context, opts ListOptions) ([]Entry, error)
}
