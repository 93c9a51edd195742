package document

import (
	"context"

	"github.com/rpggio/folio/internal/domain/content"
)

// Backend persists whole collections. Implementations must make Save
// all-or-nothing: after a failed Save, Load returns the previous contents.
type Backend interface {
	// Load returns the stored entities in listing order. A collection that was
	// never written loads as empty.
	Load(ctx context.Context, collection string) ([]content.Entity, error)
	// Save replaces the collection with entities.
	Save(ctx context.Context, collection string, entities []content.Entity) error
}
