package page

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rpggio/folio/internal/domain/content"
	"github.com/rpggio/folio/internal/domain/mutation"
)

// DefaultInvalidationTimeout bounds a single notification.
const DefaultInvalidationTimeout = 5 * time.Second

// Invalidator observes page mutations and asks the rendering layer to drop
// cached renders whose public content changed. Notifications are sent in the
// background; a failure is logged and never reaches the writer.
type Invalidator struct {
	notifier Notifier
	timeout  time.Duration
	logger   *slog.Logger
	wg       sync.WaitGroup
}

// NewInvalidator creates an observer that sends through notifier.
func NewInvalidator(notifier Notifier, timeout time.Duration, logger *slog.Logger) *Invalidator {
	if timeout <= 0 {
		timeout = DefaultInvalidationTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Invalidator{notifier: notifier, timeout: timeout, logger: logger}
}

// Committed implements mutation.Observer.
func (i *Invalidator) Committed(ctx context.Context, change mutation.Change) {
	if change.Kind != content.KindPage || i.notifier == nil {
		return
	}
	for _, path := range changedPaths(change.Before, change.After) {
		i.dispatch(ctx, path)
	}
}

// Touch sends a notification for path regardless of any change.
func (i *Invalidator) Touch(ctx context.Context, path string) {
	if i.notifier == nil {
		return
	}
	i.dispatch(ctx, path)
}

// Wait blocks until every dispatched notification has finished.
func (i *Invalidator) Wait() {
	i.wg.Wait()
}

func (i *Invalidator) dispatch(ctx context.Context, path string) {
	i.wg.Add(1)
	go func() {
		defer i.wg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), i.timeout)
		defer cancel()
		if err := i.notifier.Invalidate(ctx, path); err != nil {
			i.logger.Warn("cache invalidation failed", "path", path, "error", err)
			return
		}
		i.logger.Debug("cache invalidated", "path", path)
	}()
}

// changedPaths returns the paths whose public render differs between before
// and after.
func changedPaths(before, after *content.Entity) []string {
	was, wasPath := public(before)
	now, nowPath := public(after)

	switch {
	case was == nil && now == nil:
		return nil
	case was == nil:
		return []string{nowPath}
	case now == nil:
		return []string{wasPath}
	case wasPath != nowPath:
		return []string{wasPath, nowPath}
	case content.SameContent(*was, *now):
		return nil
	default:
		return []string{nowPath}
	}
}

// public reduces a page to what its rendered path depends on: status and
// the published state of its content.
func public(e *content.Entity) (*content.Entity, string) {
	if e == nil {
		return nil, ""
	}
	slug, ok := e.StringField(SlugField)
	if !ok || slug == "" {
		slug = e.ID
	}
	view := e.Clone()
	if view.Fields == nil {
		view.Fields = make(content.Fields)
	}
	if pc, _, err := content.PageContentOf(*e); err == nil {
		view.Fields[content.PageContentField] = pc.Published
	}
	return &view, Path(slug)
}
