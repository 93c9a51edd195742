// Package usage finds references to an entity id held inside other entities.
package usage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"

	"github.com/rpggio/folio/internal/domain/document"
	"github.com/rpggio/folio/internal/domain/mutation"
)

// Index scans stored entities for string values equal to an id. It is the
// delete precondition hook used by the mutation service.
type Index struct {
	store  *document.Store
	logger *slog.Logger
}

// NewIndex creates a usage index over store.
func NewIndex(store *document.Store, logger *slog.Logger) *Index {
	if logger == nil {
		logger = slog.Default()
	}
	return &Index{store: store, logger: logger}
}

// Usages implements mutation.UsageChecker.
func (i *Index) Usages(ctx context.Context, collection, id string) ([]mutation.Usage, error) {
	var usages []mutation.Usage
	for _, name := range i.store.Registry().Collections() {
		entities, err := i.store.GetAll(ctx, name, true)
		if err != nil {
			return nil, fmt.Errorf("scanning %s: %w", name, err)
		}
		for _, e := range entities {
			if name == collection && e.ID == id {
				continue
			}
			for field, raw := range e.Fields {
				if references(raw, id) {
					usages = append(usages, mutation.Usage{Collection: name, EntityID: e.ID, Field: field})
				}
			}
		}
	}
	if len(usages) > 0 {
		i.logger.Debug("usages found", "collection", collection, "id", id, "count", len(usages))
	}
	sortUsages(usages)
	return usages, nil
}

func references(raw json.RawMessage, id string) bool {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return false
	}
	return contains(v, id)
}

func contains(v any, id string) bool {
	switch t := v.(type) {
	case string:
		return t == id
	case []any:
		for _, item := range t {
			if contains(item, id) {
				return true
			}
		}
	case map[string]any:
		for _, item := range t {
			if contains(item, id) {
				return true
			}
		}
	}
	return false
}

func sortUsages(usages []mutation.Usage) {
	sort.Slice(usages, func(a, b int) bool {
		x, y := usages[a], usages[b]
		if x.Collection != y.Collection {
			return x.Collection < y.Collection
		}
		if x.EntityID != y.EntityID {
			return x.EntityID < y.EntityID
		}
		return x.Field < y.Field
	})
}

var _ mutation.UsageChecker = (*Index)(nil)
