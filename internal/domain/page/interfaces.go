package page

import "context"

// Notifier tells the rendering layer to drop its cached render of path.
type Notifier interface {
	Invalidate(ctx context.Context, path string) error
}
