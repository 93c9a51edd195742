package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rpggio/folio/internal/domain/history"
	"github.com/rpggio/folio/internal/repository"
)

// HistoryRepository implements history.Repository for SQLite
type HistoryRepository struct {
	db *DB
}

// NewHistoryRepository creates a new HistoryRepository
func NewHistoryRepository(db *DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// Append inserts entries oldest first and trims the ledger to retain
func (r *HistoryRepository) Append(ctx context.Context, entries []*history.Entry, retain int) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return repository.IOFailure("appending history", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, entry := range entries {
		body, mErr := json.Marshal(entry)
		if mErr != nil {
			err = fmt.Errorf("encoding history entry: %w", mErr)
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO history (id, entity_id, entity_type, action, created_at, body)
			VALUES (?, ?, ?, ?, ?, ?)
		`, entry.ID, entry.EntityID, entry.EntityType, string(entry.Action), entry.Timestamp.UnixNano(), string(body))
		if err != nil {
			return repository.IOFailure("appending history", err)
		}
	}

	if retain > 0 {
		_, err = tx.ExecContext(ctx, `
			DELETE FROM history WHERE seq NOT IN (
				SELECT seq FROM history ORDER BY seq DESC LIMIT ?
			)
		`, retain)
		if err != nil {
			return repository.IOFailure("trimming history", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return repository.IOFailure("committing history", err)
	}
	return nil
}

// Get returns a single entry by id
func (r *HistoryRepository) Get(ctx context.Context, id string) (*history.Entry, error) {
	var body string
	err := r.db.QueryRowContext(ctx, `SELECT body FROM history WHERE id = ?`, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, repository.IOFailure("getting history entry", err)
	}
	var entry history.Entry
	if err := json.Unmarshal([]byte(body), &entry); err != nil {
		return nil, repository.IOFailure("decoding history entry", err)
	}
	return &entry, nil
}

// List returns entries newest first
func (r *HistoryRepository) List(ctx context.Context, opts history.ListOptions) ([]history.Entry, error) {
	query := `SELECT body FROM history`
	args := []interface{}{}
	if opts.EntityID != "" {
		query += ` WHERE entity_id = ?`
		args = append(args, opts.EntityID)
	}
	query += ` ORDER BY seq DESC`
	if opts.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, repository.IOFailure("listing history", err)
	}
	defer rows.Close()

	entries := []history.Entry{}
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, repository.IOFailure("scanning history", err)
		}
		var entry history.Entry
		if err := json.Unmarshal([]byte(body), &entry); err != nil {
			return nil, repository.IOFailure("decoding history entry", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, repository.IOFailure("listing history", err)
	}
	return entries, nil
}
