package document

import (
	"context"
	"fmt"
	"time"

	"github.com/rpggio/folio/internal/domain/content"
)

// Tx is an exclusive view of one collection inside Store.Update. Changes are
// staged in memory and committed as a whole when the update func returns nil.
type Tx struct {
	store  *Store
	schema content.Schema
	items  []content.Entity
	dirty  bool
	hooks  []func(context.Context) error
}

// Schema returns the schema of the collection being updated.
func (tx *Tx) Schema() content.Schema {
	return tx.schema
}

// All returns a copy of the staged collection in listing order.
func (tx *Tx) All() []content.Entity {
	out := make([]content.Entity, len(tx.items))
	for i, e := range tx.items {
		out[i] = e.Clone()
	}
	return out
}

// Get returns the staged entity with id.
func (tx *Tx) Get(id string) (content.Entity, bool) {
	i := tx.indexOf(id)
	if i < 0 {
		return content.Entity{}, false
	}
	return tx.items[i].Clone(), true
}

// FindBy returns the first staged entity whose string field equals value.
func (tx *Tx) FindBy(field, value string) (content.Entity, bool) {
	i := tx.indexByField(field, value)
	if i < 0 {
		return content.Entity{}, false
	}
	return tx.items[i].Clone(), true
}

// OnCommit registers fn to run after the collection is saved. If fn fails the
// previous contents are written back and Update returns the error.
func (tx *Tx) OnCommit(fn func(context.Context) error) {
	tx.hooks = append(tx.hooks, fn)
}

// Put creates or merges incoming and returns the saved entity and, for an
// update, the state it replaced.
func (tx *Tx) Put(incoming content.Entity) (content.Entity, *content.Entity, error) {
	if err := tx.schema.Validate(incoming); err != nil {
		return content.Entity{}, nil, err
	}

	idx := tx.resolve(incoming)
	var prior *content.Entity
	if idx >= 0 {
		p := tx.items[idx].Clone()
		prior = &p
		if incoming.Version != 0 && incoming.Version != prior.Version {
			return content.Entity{}, nil, fmt.Errorf("%w: %s %s is at version %d, write was based on %d",
				ErrVersionMismatch, tx.schema.Kind, prior.ID, prior.Version, incoming.Version)
		}
	}

	if tx.schema.Prepare != nil {
		prepared, err := tx.schema.Prepare(prior, incoming)
		if err != nil {
			return content.Entity{}, nil, fmt.Errorf("preparing %s write: %w", tx.schema.Kind, err)
		}
		incoming = prepared
	}

	now := tx.store.now()
	if prior == nil {
		saved := content.Merge(content.Entity{}, incoming)
		saved.ID = tx.newID()
		if saved.Status == "" {
			saved.Status = content.StatusDraft
		}
		saved.Version = 1
		saved.CreatedAt = now
		saved.UpdatedAt = now
		if err := tx.checkKey(saved, -1); err != nil {
			return content.Entity{}, nil, err
		}
		tx.insertHead(saved)
		return saved.Clone(), nil, nil
	}

	saved := content.Merge(*prior, incoming)
	saved.Version = prior.Version + 1
	saved.UpdatedAt = later(now, prior.UpdatedAt)
	if err := tx.checkKey(saved, idx); err != nil {
		return content.Entity{}, nil, err
	}
	tx.items[idx] = saved
	tx.dirty = true
	return saved.Clone(), prior, nil
}

// Create inserts e as a new entity exactly as given, without the schema's
// Prepare rule. Id, version and timestamps are assigned by the store.
func (tx *Tx) Create(e content.Entity) (content.Entity, error) {
	if err := tx.schema.Validate(e); err != nil {
		return content.Entity{}, err
	}
	now := tx.store.now()
	saved := content.Merge(content.Entity{}, e)
	saved.ID = tx.newID()
	if saved.Status == "" {
		saved.Status = content.StatusDraft
	}
	saved.Version = 1
	saved.CreatedAt = now
	saved.UpdatedAt = now
	if tx.indexOf(saved.ID) >= 0 {
		return content.Entity{}, fmt.Errorf("%w: %s", ErrDuplicateID, saved.ID)
	}
	if err := tx.checkKey(saved, -1); err != nil {
		return content.Entity{}, err
	}
	tx.insertHead(saved)
	return saved.Clone(), nil
}

// Replace overwrites the entity with snapshot.ID wholesale, keeping only its
// createdAt. An absent entity is re-created under the same id.
func (tx *Tx) Replace(snapshot content.Entity) (content.Entity, *content.Entity, error) {
	if snapshot.ID == "" {
		return content.Entity{}, nil, fmt.Errorf("replace %s: %w", tx.schema.Kind, ErrEntityNotFound)
	}
	if err := tx.schema.Validate(snapshot); err != nil {
		return content.Entity{}, nil, err
	}

	now := tx.store.now()
	saved := snapshot.Clone()
	if saved.Status == "" {
		saved.Status = content.StatusDraft
	}

	idx := tx.indexOf(snapshot.ID)
	if err := tx.checkKey(saved, idx); err != nil {
		return content.Entity{}, nil, err
	}
	if idx < 0 {
		saved.Version = snapshot.Version + 1
		if saved.CreatedAt.IsZero() {
			saved.CreatedAt = now
		}
		saved.UpdatedAt = later(now, snapshot.UpdatedAt)
		tx.insertHead(saved)
		return saved.Clone(), nil, nil
	}

	prior := tx.items[idx].Clone()
	saved.CreatedAt = prior.CreatedAt
	saved.Version = prior.Version + 1
	saved.UpdatedAt = later(now, prior.UpdatedAt)
	tx.items[idx] = saved
	tx.dirty = true
	return saved.Clone(), &prior, nil
}

// Delete removes id and returns the removed entity.
func (tx *Tx) Delete(id string) (content.Entity, error) {
	idx := tx.indexOf(id)
	if idx < 0 {
		return content.Entity{}, fmt.Errorf("%s %s: %w", tx.schema.Kind, id, ErrEntityNotFound)
	}
	removed := tx.items[idx]
	tx.items = append(tx.items[:idx:idx], tx.items[idx+1:]...)
	tx.dirty = true
	return removed, nil
}

// ReplaceAll swaps the staged collection for entities, in the given order.
// Entities keep their createdAt; changed ones get a new version. The schema's
// Prepare rule applies to every entity, and natural keys must stay unique.
func (tx *Tx) ReplaceAll(entities []content.Entity) ([]content.Entity, error) {
	now := tx.store.now()
	seen := make(map[string]struct{}, len(entities))
	keys := make(map[string]string, len(entities))
	out := make([]content.Entity, 0, len(entities))

	for _, in := range entities {
		if err := tx.schema.Validate(in); err != nil {
			return nil, err
		}
		e := in.Clone()
		if tx.schema.SingletonID != "" {
			e.ID = tx.schema.SingletonID
		}
		if e.ID == "" {
			e.ID = tx.uniqueID(seen)
		}
		if _, dup := seen[e.ID]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateID, e.ID)
		}
		seen[e.ID] = struct{}{}

		prior, exists := tx.Get(e.ID)
		if e.Status == "" {
			e.Status = content.StatusDraft
			if exists {
				e.Status = prior.Status
			}
		}
		if tx.schema.Prepare != nil {
			var p *content.Entity
			if exists {
				p = &prior
			}
			prepared, err := tx.schema.Prepare(p, e)
			if err != nil {
				return nil, fmt.Errorf("preparing %s write: %w", tx.schema.Kind, err)
			}
			e = prepared
		}
		if key, ok := tx.naturalKey(e); ok {
			if holder, taken := keys[key]; taken {
				return nil, fmt.Errorf("%w: %s and %s share %s %q", ErrDuplicateKey, holder, e.ID, tx.schema.NaturalKey, key)
			}
			keys[key] = e.ID
		}
		switch {
		case !exists:
			e.Version = 1
			e.CreatedAt = now
			e.UpdatedAt = now
		case content.SameContent(prior, e):
			e.CreatedAt = prior.CreatedAt
			e.Version = prior.Version
			e.UpdatedAt = prior.UpdatedAt
		default:
			e.CreatedAt = prior.CreatedAt
			e.Version = prior.Version + 1
			e.UpdatedAt = later(now, prior.UpdatedAt)
		}
		out = append(out, e)
	}

	tx.items = out
	tx.dirty = true
	return tx.All(), nil
}

func (tx *Tx) resolve(incoming content.Entity) int {
	if tx.schema.SingletonID != "" {
		return tx.indexOf(tx.schema.SingletonID)
	}
	if incoming.ID != "" {
		if i := tx.indexOf(incoming.ID); i >= 0 {
			return i
		}
	}
	if tx.schema.NaturalKey != "" {
		if key, ok := incoming.StringField(tx.schema.NaturalKey); ok && key != "" {
			return tx.indexByField(tx.schema.NaturalKey, key)
		}
	}
	return -1
}

func (tx *Tx) naturalKey(e content.Entity) (string, bool) {
	if tx.schema.NaturalKey == "" {
		return "", false
	}
	key, ok := e.StringField(tx.schema.NaturalKey)
	return key, ok && key != ""
}

// checkKey rejects e when a staged entity other than the one at self already
// holds its natural key.
func (tx *Tx) checkKey(e content.Entity, self int) error {
	key, ok := tx.naturalKey(e)
	if !ok {
		return nil
	}
	for i := range tx.items {
		if i == self {
			continue
		}
		if v, ok := tx.items[i].StringField(tx.schema.NaturalKey); ok && v == key {
			return fmt.Errorf("%w: %s %q belongs to %s", ErrDuplicateKey, tx.schema.NaturalKey, key, tx.items[i].ID)
		}
	}
	return nil
}

func (tx *Tx) indexOf(id string) int {
	for i := range tx.items {
		if tx.items[i].ID == id {
			return i
		}
	}
	return -1
}

func (tx *Tx) indexByField(field, value string) int {
	for i := range tx.items {
		if v, ok := tx.items[i].StringField(field); ok && v == value {
			return i
		}
	}
	return -1
}

func (tx *Tx) insertHead(e content.Entity) {
	tx.items = append([]content.Entity{e}, tx.items...)
	tx.dirty = true
}

func (tx *Tx) newID() string {
	if tx.schema.SingletonID != "" {
		return tx.schema.SingletonID
	}
	return tx.uniqueID(nil)
}

// uniqueID draws ids until one is unused by the staged collection and reserved.
func (tx *Tx) uniqueID(reserved map[string]struct{}) string {
	for {
		id := tx.store.newID()
		if _, taken := reserved[id]; taken {
			continue
		}
		if tx.indexOf(id) < 0 {
			return id
		}
	}
}

// later keeps updatedAt monotonic when the clock steps backwards.
func later(now, prev time.Time) time.Time {
	if now.After(prev) {
		return now
	}
	return prev
}
