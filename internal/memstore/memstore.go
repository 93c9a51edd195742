// Package memstore keeps collections, history and analytics in process memory.
// It backs sandbox sessions and tests; nothing survives a restart.
package memstore

import (
	"context"
	"sync"

	"github.com/rpggio/folio/internal/domain/analytics"
	"github.com/rpggio/folio/internal/domain/content"
	"github.com/rpggio/folio/internal/domain/history"
	"github.com/rpggio/folio/internal/repository"
)

// Documents is an in-memory document.Backend.
type Documents struct {
	mu          sync.RWMutex
	collections map[string][]content.Entity
}

// NewDocuments creates an empty backend.
func NewDocuments() *Documents {
	return &Documents{collections: make(map[string][]content.Entity)}
}

// Load returns a copy of the collection.
func (d *Documents) Load(_ context.Context, collection string) ([]content.Entity, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return cloneEntities(d.collections[collection]), nil
}

// Save replaces the collection with a copy of entities.
func (d *Documents) Save(_ context.Context, collection string, entities []content.Entity) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.collections[collection] = cloneEntities(entities)
	return nil
}

func cloneEntities(in []content.Entity) []content.Entity {
	out := make([]content.Entity, len(in))
	for i, e := range in {
		out[i] = e.Clone()
	}
	return out
}

// History is an in-memory history.Repository. Entries are held newest first.
type History struct {
	mu      sync.RWMutex
	entries []history.Entry
}

// NewHistory creates an empty ledger repository.
func NewHistory() *History {
	return &History{}
}

// Append prepends entries and trims the tail beyond retain.
func (h *History) Append(_ context.Context, entries []*history.Entry, retain int) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	head := make([]history.Entry, 0, len(entries)+len(h.entries))
	for i := len(entries) - 1; i >= 0; i-- {
		head = append(head, cloneEntry(*entries[i]))
	}
	h.entries = append(head, h.entries...)
	if retain > 0 && len(h.entries) > retain {
		h.entries = h.entries[:retain:retain]
	}
	return nil
}

// Get returns a copy of one entry.
func (h *History) Get(_ context.Context, id string) (*history.Entry, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, e := range h.entries {
		if e.ID == id {
			out := cloneEntry(e)
			return &out, nil
		}
	}
	return nil, repository.ErrNotFound
}

// List returns matching entries newest first.
func (h *History) List(_ context.Context, opts history.ListOptions) ([]history.Entry, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]history.Entry, 0, len(h.entries))
	for _, e := range h.entries {
		if opts.EntityID != "" && e.EntityID != opts.EntityID {
			continue
		}
		out = append(out, cloneEntry(e))
		if opts.Limit > 0 && len(out) == opts.Limit {
			break
		}
	}
	return out, nil
}

func cloneEntry(e history.Entry) history.Entry {
	if e.Snapshot != nil {
		snap := e.Snapshot.Clone()
		e.Snapshot = &snap
	}
	return e
}

// Analytics is an in-memory analytics.Repository.
type Analytics struct {
	mu     sync.RWMutex
	events []analytics.Event
}

// NewAnalytics creates an empty event log.
func NewAnalytics() *Analytics {
	return &Analytics{}
}

// Append adds event to the end of the log.
func (a *Analytics) Append(_ context.Context, event *analytics.Event) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, *event)
	return nil
}

// List returns matching events in append order.
func (a *Analytics) List(_ context.Context, opts analytics.ListOptions) ([]analytics.Event, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]analytics.Event, 0, len(a.events))
	for _, e := range a.events {
		if !opts.Matches(e) {
			continue
		}
		out = append(out, e)
		if opts.Limit > 0 && len(out) == opts.Limit {
			break
		}
	}
	return out, nil
}
