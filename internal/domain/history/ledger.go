package history

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/rpggio/folio/internal/repository"
)

// Ledger is the append-only mutation log.
type Ledger struct {
	repo      Repository
	logger    *slog.Logger
	retention int
	now       func() time.Time
}

// NewLedger creates a ledger keeping at most retention entries. A
// non-positive retention uses DefaultRetention.
func NewLedger(repo Repository, retention int, logger *slog.Logger) *Ledger {
	if retention <= 0 {
		retention = DefaultRetention
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{
		repo:      repo,
		logger:    logger,
		retention: retention,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Retention returns the configured bound.
func (l *Ledger) Retention() int {
	return l.retention
}

// Record appends a new entry at the head of the ledger.
func (l *Ledger) Record(ctx context.Context, req RecordRequest) (*Entry, error) {
	entries, err := l.RecordAll(ctx, []RecordRequest{req})
	if err != nil {
		return nil, err
	}
	return &entries[0], nil
}

// RecordAll appends several entries in one write. The last request becomes the
// newest entry.
func (l *Ledger) RecordAll(ctx context.Context, reqs []RecordRequest) ([]Entry, error) {
	if len(reqs) == 0 {
		return nil, nil
	}

	now := l.now()
	batch := make([]*Entry, 0, len(reqs))
	for _, req := range reqs {
		entry, err := newEntry(req, now)
		if err != nil {
			return nil, err
		}
		batch = append(batch, entry)
	}

	if err := l.repo.Append(ctx, batch, l.retention); err != nil {
		return nil, fmt.Errorf("appending history: %w", err)
	}

	out := make([]Entry, len(batch))
	for i, entry := range batch {
		l.logger.Debug("history recorded",
			"entry_id", entry.ID, "action", entry.Action,
			"entity_type", entry.EntityType, "entity_id", entry.EntityID, "user", entry.User)
		out[i] = *entry
	}
	return out, nil
}

func newEntry(req RecordRequest, now time.Time) (*Entry, error) {
	switch req.Action {
	case ActionCreate, ActionUpdate, ActionDelete:
	default:
		return nil, fmt.Errorf("%w: action %q", ErrInvalidEntry, req.Action)
	}
	if req.EntityType == "" || req.EntityID == "" {
		return nil, fmt.Errorf("%w: entity type and id are required", ErrInvalidEntry)
	}

	entry := &Entry{
		ID:         uuid.NewString(),
		Timestamp:  now,
		User:       req.User,
		Action:     req.Action,
		EntityType: req.EntityType,
		EntityID:   req.EntityID,
		Changes:    req.Changes,
	}
	if req.Snapshot != nil {
		snap := req.Snapshot.Clone()
		entry.Snapshot = &snap
	}
	return entry, nil
}

// Get fetches one entry.
func (l *Ledger) Get(ctx context.Context, id string) (*Entry, error) {
	entry, err := l.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, id)
		}
		return nil, fmt.Errorf("getting history entry: %w", err)
	}
	return entry, nil
}

// ListByEntity returns the entries of one entity, newest first.
func (l *Ledger) ListByEntity(ctx context.Context, entityID string) ([]Entry, error) {
	if entityID == "" {
		return nil, fmt.Errorf("%w: entity id is required", ErrInvalidEntry)
	}
	entries, err := l.repo.List(ctx, ListOptions{EntityID: entityID})
	if err != nil {
		return nil, fmt.Errorf("listing history: %w", err)
	}
	return entries, nil
}

// ListAll returns every retained entry, newest first.
func (l *Ledger) ListAll(ctx context.Context) ([]Entry, error) {
	entries, err := l.repo.List(ctx, ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("listing history: %w", err)
	}
	return entries, nil
}
