package document

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rpggio/folio/internal/domain/content"
)

// Store serializes access to named collections held by a Backend. Every write
// is a read-modify-write of the whole collection under that collection's
// write lock; reads share the read lock. Writers also share a store-wide
// gate that Exclusive takes alone.
type Store struct {
	backend  Backend
	registry *content.Registry
	gate     sync.RWMutex
	locks    *keyedLock
	logger   *slog.Logger
	now      func() time.Time
	newID    func() string
}

// NewStore creates a document store.
func NewStore(backend Backend, registry *content.Registry, logger *slog.Logger, opts ...Option) *Store {
	if registry == nil {
		registry = content.DefaultRegistry()
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		backend:  backend,
		registry: registry,
		locks:    newKeyedLock(),
		logger:   logger,
		now:      defaultNow,
		newID:    defaultID,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Registry returns the schemas the store validates against.
func (s *Store) Registry() *content.Registry {
	return s.registry
}

// Schema resolves a collection name or kind.
func (s *Store) Schema(collection string) (content.Schema, error) {
	return s.registry.Lookup(collection)
}

// Update runs fn with exclusive access to collection. If fn returns nil and
// staged changes exist, the collection is saved and the OnCommit hooks run
// while the lock is still held.
func (s *Store) Update(ctx context.Context, collection string, fn func(*Tx) error) error {
	s.gate.RLock()
	defer s.gate.RUnlock()
	return s.update(ctx, collection, fn)
}

// Exclusive runs check while no collection is being written, then applies fn
// to collection before any other writer may start. check may read any
// collection, including this one. fn is skipped when check fails.
func (s *Store) Exclusive(ctx context.Context, collection string, check func(context.Context) error, fn func(*Tx) error) error {
	s.gate.Lock()
	defer s.gate.Unlock()
	if err := check(ctx); err != nil {
		return err
	}
	return s.update(ctx, collection, fn)
}

func (s *Store) update(ctx context.Context, collection string, fn func(*Tx) error) error {
	schema, err := s.registry.Lookup(collection)
	if err != nil {
		return err
	}

	unlock := s.locks.Lock(schema.Collection)
	defer unlock()

	current, err := s.backend.Load(ctx, schema.Collection)
	if err != nil {
		return fmt.Errorf("loading %s: %w", schema.Collection, err)
	}

	tx := &Tx{store: s, schema: schema, items: cloneAll(current)}
	if err := fn(tx); err != nil {
		return err
	}
	if !tx.dirty {
		return nil
	}

	if err := s.backend.Save(ctx, schema.Collection, tx.items); err != nil {
		return fmt.Errorf("saving %s: %w", schema.Collection, err)
	}

	for _, hook := range tx.hooks {
		if err := hook(ctx); err != nil {
			return s.revert(ctx, schema.Collection, current, err)
		}
	}
	return nil
}

// revert writes previous back after a failed commit hook.
func (s *Store) revert(ctx context.Context, collection string, previous []content.Entity, cause error) error {
	if err := s.backend.Save(context.WithoutCancel(ctx), collection, previous); err != nil {
		s.logger.Error("failed to restore collection after commit hook error",
			"collection", collection, "hook_error", cause, "error", err)
		return errors.Join(cause, fmt.Errorf("restoring %s: %w", collection, err))
	}
	s.logger.Warn("collection restored after commit hook error", "collection", collection, "error", cause)
	return cause
}

// GetAll lists a collection in stored order. Without includeNonPublished only
// published entities are returned. An empty collection yields an empty slice.
func (s *Store) GetAll(ctx context.Context, collection string, includeNonPublished bool) ([]content.Entity, error) {
	schema, items, err := s.read(ctx, collection)
	if err != nil {
		return nil, err
	}

	out := make([]content.Entity, 0, len(items))
	for _, e := range items {
		if !includeNonPublished && e.Status != content.StatusPublished {
			continue
		}
		normalized, err := schema.ForRead(e)
		if err != nil {
			return nil, err
		}
		out = append(out, normalized)
	}
	return out, nil
}

// GetByID returns one entity.
func (s *Store) GetByID(ctx context.Context, collection, id string) (content.Entity, error) {
	schema, items, err := s.read(ctx, collection)
	if err != nil {
		return content.Entity{}, err
	}
	for _, e := range items {
		if e.ID == id {
			return schema.ForRead(e)
		}
	}
	return content.Entity{}, fmt.Errorf("%s %s: %w", schema.Kind, id, ErrEntityNotFound)
}

// GetByField returns the first entity whose string field equals value,
// regardless of status. Callers enforce visibility.
func (s *Store) GetByField(ctx context.Context, collection, field, value string) (content.Entity, error) {
	schema, items, err := s.read(ctx, collection)
	if err != nil {
		return content.Entity{}, err
	}
	for _, e := range items {
		if v, ok := e.StringField(field); ok && v == value {
			return schema.ForRead(e)
		}
	}
	return content.Entity{}, fmt.Errorf("%s with %s=%q: %w", schema.Kind, field, value, ErrEntityNotFound)
}

// GetStoredByField is GetByField without read normalization: the entity is
// returned exactly as persisted.
func (s *Store) GetStoredByField(ctx context.Context, collection, field, value string) (content.Entity, error) {
	schema, items, err := s.read(ctx, collection)
	if err != nil {
		return content.Entity{}, err
	}
	for _, e := range items {
		if v, ok := e.StringField(field); ok && v == value {
			return e.Clone(), nil
		}
	}
	return content.Entity{}, fmt.Errorf("%s with %s=%q: %w", schema.Kind, field, value, ErrEntityNotFound)
}

// Put creates or merges entity. The prior snapshot is nil on create.
func (s *Store) Put(ctx context.Context, collection string, entity content.Entity) (content.Entity, *content.Entity, error) {
	var saved content.Entity
	var prior *content.Entity
	err := s.Update(ctx, collection, func(tx *Tx) error {
		var err error
		saved, prior, err = tx.Put(entity)
		if err != nil {
			return err
		}
		saved, err = tx.Schema().ForRead(saved)
		return err
	})
	if err != nil {
		return content.Entity{}, nil, err
	}
	return saved, prior, nil
}

// PutAll replaces the whole collection with entities.
func (s *Store) PutAll(ctx context.Context, collection string, entities []content.Entity) ([]content.Entity, error) {
	var saved []content.Entity
	err := s.Update(ctx, collection, func(tx *Tx) error {
		var err error
		saved, err = tx.ReplaceAll(entities)
		return err
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

// Delete removes one entity.
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	return s.Update(ctx, collection, func(tx *Tx) error {
		_, err := tx.Delete(id)
		return err
	})
}

func (s *Store) read(ctx context.Context, collection string) (content.Schema, []content.Entity, error) {
	schema, err := s.registry.Lookup(collection)
	if err != nil {
		return content.Schema{}, nil, err
	}

	unlock := s.locks.RLock(schema.Collection)
	defer unlock()

	items, err := s.backend.Load(ctx, schema.Collection)
	if err != nil {
		return content.Schema{}, nil, fmt.Errorf("loading %s: %w", schema.Collection, err)
	}
	return schema, items, nil
}

func cloneAll(items []content.Entity) []content.Entity {
	out := make([]content.Entity, len(items))
	for i, e := range items {
		out[i] = e.Clone()
	}
	return out
}
