package mutation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/rpggio/folio/internal/domain/content"
	"github.com/rpggio/folio/internal/domain/document"
	"github.com/rpggio/folio/internal/domain/history"
	"github.com/rpggio/folio/internal/repository"
)

// Service is the write path for every caller. Each mutation is applied to the
// document store and recorded in the ledger under the collection's write lock;
// the ledger write runs only after the store write succeeded, and a failed
// ledger write undoes the store write.
type Service struct {
	store     *document.Store
	ledger    *history.Ledger
	usages    UsageChecker
	observers []Observer
	logger    *slog.Logger
}

// NewService creates a new mutation service.
func NewService(store *document.Store, ledger *history.Ledger, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{store: store, ledger: ledger, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Put creates entity or merges it into the existing record it resolves to.
// A non-zero entity.Version must match the stored version.
func (s *Service) Put(ctx context.Context, user, collection string, entity content.Entity) (content.Entity, error) {
	var saved content.Entity
	var change Change
	err := s.store.Update(ctx, collection, func(tx *document.Tx) error {
		out, prior, err := tx.Put(entity)
		if err != nil {
			return err
		}
		if saved, err = tx.Schema().ForRead(out); err != nil {
			return err
		}
		change = newChange(tx.Schema(), user, prior, &out)
		s.recordOnCommit(tx, change.request(describePut(entity, prior)))
		return nil
	})
	if err != nil {
		return content.Entity{}, fmt.Errorf("putting %s: %w", collection, err)
	}

	s.committed(ctx, change)
	return saved, nil
}

// PutAll replaces a whole collection. Every created, changed or dropped
// entity gets its own history entry.
func (s *Service) PutAll(ctx context.Context, user, collection string, entities []content.Entity) ([]content.Entity, error) {
	var saved []content.Entity
	var changes []Change
	err := s.store.Update(ctx, collection, func(tx *document.Tx) error {
		before := tx.All()
		after, err := tx.ReplaceAll(entities)
		if err != nil {
			return err
		}

		byID := make(map[string]content.Entity, len(before))
		for _, e := range before {
			byID[e.ID] = e
		}
		var reqs []history.RecordRequest
		for i := range after {
			e := after[i]
			prior, existed := byID[e.ID]
			delete(byID, e.ID)
			switch {
			case !existed:
				changes = append(changes, newChange(tx.Schema(), user, nil, &e))
			case prior.Version != e.Version:
				changes = append(changes, newChange(tx.Schema(), user, &prior, &e))
			default:
				continue
			}
			reqs = append(reqs, changes[len(changes)-1].request("bulk replace"))
		}
		for _, e := range before {
			if removed, ok := byID[e.ID]; ok {
				changes = append(changes, newChange(tx.Schema(), user, &removed, nil))
				reqs = append(reqs, changes[len(changes)-1].request("bulk replace"))
			}
		}
		s.recordOnCommit(tx, reqs...)

		saved = make([]content.Entity, 0, len(after))
		for _, e := range after {
			normalized, err := tx.Schema().ForRead(e)
			if err != nil {
				return err
			}
			saved = append(saved, normalized)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("replacing %s: %w", collection, err)
	}

	for _, change := range changes {
		s.committed(ctx, change)
	}
	return saved, nil
}

// Modify runs fn against the raw current state of the targeted entity (nil
// when absent) and writes the entity it returns in full, bypassing field
// merge and the schema's write rule. Returning the current state unchanged is
// a no-op.
func (s *Service) Modify(ctx context.Context, user, collection string, target Target, changes string,
	fn func(current *content.Entity) (content.Entity, error)) (content.Entity, error) {
	var saved content.Entity
	var change *Change
	err := s.store.Update(ctx, collection, func(tx *document.Tx) error {
		var current *content.Entity
		if e, ok := locate(tx, target); ok {
			current = &e
		}

		next, err := fn(current)
		if err != nil {
			return err
		}

		var out content.Entity
		var prior *content.Entity
		if current == nil {
			if out, err = tx.Create(next); err != nil {
				return err
			}
		} else {
			next.ID = current.ID
			if next.Status == "" {
				next.Status = current.Status
			}
			if content.SameContent(*current, next) {
				saved, err = tx.Schema().ForRead(*current)
				return err
			}
			if out, prior, err = tx.Replace(next); err != nil {
				return err
			}
		}

		if saved, err = tx.Schema().ForRead(out); err != nil {
			return err
		}
		c := newChange(tx.Schema(), user, prior, &out)
		change = &c
		s.recordOnCommit(tx, c.request(changes))
		return nil
	})
	if err != nil {
		return content.Entity{}, fmt.Errorf("modifying %s %s: %w", collection, target, err)
	}

	if change != nil {
		s.committed(ctx, *change)
	}
	return saved, nil
}

// CheckDeletable returns the usages that would block deleting ids.
func (s *Service) CheckDeletable(ctx context.Context, collection string, ids []string) ([]Usage, error) {
	if s.usages == nil {
		return nil, nil
	}
	schema, err := s.store.Schema(collection)
	if err != nil {
		return nil, err
	}

	var usages []Usage
	for _, id := range ids {
		found, err := s.usages.Usages(ctx, schema.Collection, id)
		if err != nil {
			return nil, fmt.Errorf("checking usages of %s: %w", id, err)
		}
		for _, u := range found {
			u.Target = id
			usages = append(usages, u)
		}
	}
	return usages, nil
}

// Delete removes ids from collection. The batch fails as a whole when any id
// is missing or referenced elsewhere.
func (s *Service) Delete(ctx context.Context, user, collection string, ids []string) ([]content.Entity, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: no ids to delete", repository.ErrInvalidInput)
	}

	var checkErr error
	check := func(ctx context.Context) error {
		usages, err := s.CheckDeletable(ctx, collection, ids)
		if err != nil {
			checkErr = err
		} else if len(usages) > 0 {
			checkErr = &InUseError{Usages: usages}
		}
		return checkErr
	}

	var removed []content.Entity
	var changes []Change
	err := s.store.Exclusive(ctx, collection, check, func(tx *document.Tx) error {
		reqs := make([]history.RecordRequest, 0, len(ids))
		for _, id := range ids {
			e, err := tx.Delete(id)
			if err != nil {
				return err
			}
			removed = append(removed, e)
			c := newChange(tx.Schema(), user, &e, nil)
			changes = append(changes, c)
			reqs = append(reqs, c.request("deleted"))
		}
		s.recordOnCommit(tx, reqs...)
		return nil
	})
	if checkErr != nil {
		return nil, checkErr
	}
	if err != nil {
		return nil, fmt.Errorf("deleting from %s: %w", collection, err)
	}

	for _, change := range changes {
		s.committed(ctx, change)
	}
	return removed, nil
}

// Rollback restores entityID to the snapshot held by history entry entryID.
// The restore is a full overwrite and is itself recorded as an update.
func (s *Service) Rollback(ctx context.Context, user, entityID, entryID string) (content.Entity, error) {
	entry, err := s.ledger.Get(ctx, entryID)
	if err != nil {
		return content.Entity{}, err
	}
	if entry.EntityID != entityID {
		return content.Entity{}, fmt.Errorf("%w: %s does not belong to %s", history.ErrEntryNotFound, entryID, entityID)
	}
	if entry.Snapshot == nil || entry.Action != history.ActionUpdate {
		return content.Entity{}, fmt.Errorf("%w: %s entry %s", ErrInvalidSnapshot, entry.Action, entryID)
	}
	if entry.Snapshot.ID != entityID {
		return content.Entity{}, fmt.Errorf("%w: snapshot id %q", ErrInvalidSnapshot, entry.Snapshot.ID)
	}

	schema, err := s.store.Schema(entry.EntityType)
	if err != nil {
		return content.Entity{}, fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}

	var saved content.Entity
	var change Change
	err = s.store.Update(ctx, schema.Collection, func(tx *document.Tx) error {
		out, prior, err := tx.Replace(*entry.Snapshot)
		if err != nil {
			return err
		}
		if saved, err = tx.Schema().ForRead(out); err != nil {
			return err
		}
		change = newChange(tx.Schema(), user, prior, &out)
		change.Action = history.ActionUpdate
		if prior == nil {
			change.Action = history.ActionCreate
		}
		s.recordOnCommit(tx, change.request("rolled back to "+entryID))
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrInvalidInput) {
			return content.Entity{}, fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
		}
		return content.Entity{}, fmt.Errorf("rolling back %s: %w", entityID, err)
	}

	s.logger.Info("entity rolled back", "entity_id", entityID, "history_entry", entryID, "user", user, "version", saved.Version)
	s.committed(ctx, change)
	return saved, nil
}

func (s *Service) recordOnCommit(tx *document.Tx, reqs ...history.RecordRequest) {
	if len(reqs) == 0 {
		return
	}
	tx.OnCommit(func(ctx context.Context) error {
		_, err := s.ledger.RecordAll(ctx, reqs)
		return err
	})
}

func (s *Service) committed(ctx context.Context, change Change) {
	id := ""
	if change.After != nil {
		id = change.After.ID
	} else if change.Before != nil {
		id = change.Before.ID
	}
	s.logger.Debug("mutation committed", "kind", change.Kind, "action", change.Action, "entity_id", id, "user", change.User)
	for _, o := range s.observers {
		o.Committed(ctx, change)
	}
}

func newChange(schema content.Schema, user string, before, after *content.Entity) Change {
	c := Change{Kind: schema.Kind, User: user}
	switch {
	case before == nil:
		c.Action = history.ActionCreate
	case after == nil:
		c.Action = history.ActionDelete
	default:
		c.Action = history.ActionUpdate
	}
	if before != nil {
		b := before.Clone()
		c.Before = &b
	}
	if after != nil {
		a := after.Clone()
		c.After = &a
	}
	return c
}

func (c Change) request(changes string) history.RecordRequest {
	req := history.RecordRequest{
		Action:     c.Action,
		EntityType: string(c.Kind),
		User:       c.User,
		Changes:    changes,
		Snapshot:   c.Before,
	}
	if c.After != nil {
		req.EntityID = c.After.ID
	} else if c.Before != nil {
		req.EntityID = c.Before.ID
	}
	return req
}

func locate(tx *document.Tx, target Target) (content.Entity, bool) {
	if target.ID != "" {
		return tx.Get(target.ID)
	}
	return tx.FindBy(target.Field, target.Value)
}

func describePut(incoming content.Entity, prior *content.Entity) string {
	if prior == nil {
		return "created"
	}
	names := make([]string, 0, len(incoming.Fields)+1)
	for k := range incoming.Fields {
		names = append(names, k)
	}
	sort.Strings(names)
	if incoming.Status != "" && incoming.Status != prior.Status {
		names = append(names, "status")
	}
	if len(names) == 0 {
		return "updated"
	}
	return "updated " + strings.Join(names, ", ")
}
