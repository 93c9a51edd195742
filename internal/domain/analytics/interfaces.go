package analytics

import "context"

// Repository is the append-only event log. List returns events in append order.
type Repository interface {
	Append(ctx context.Context, event *Event) error
	List(ctx context.Context, opts ListOptions) ([]Event, error)
}
