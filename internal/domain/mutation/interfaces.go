package mutation

import "context"

// UsageChecker reports references to an entity held by other entities. It is
// consulted before every delete.
type UsageChecker interface {
	Usages(ctx context.Context, collection, id string) ([]Usage, error)
}

// Observer is told about every committed mutation. It must not block.
type Observer interface {
	Committed(ctx context.Context, change Change)
}
