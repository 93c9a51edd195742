package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/rpggio/folio/internal/domain/analytics"
	"github.com/rpggio/folio/internal/repository"
)

// AnalyticsRepository implements analytics.Repository for SQLite
type AnalyticsRepository struct {
	db *DB
}

// NewAnalyticsRepository creates a new AnalyticsRepository
func NewAnalyticsRepository(db *DB) *AnalyticsRepository {
	return &AnalyticsRepository{db: db}
}

// Append inserts a new event
func (r *AnalyticsRepository) Append(ctx context.Context, event *analytics.Event) error {
	var data sql.NullString
	if len(event.Data) > 0 {
		data = sql.NullString{String: string(event.Data), Valid: true}
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO analytics_events (id, session_id, type, path, occurred_at, data)
		VALUES (?, ?, ?, ?, ?, ?)
	`, event.ID, event.SessionID, event.Type, event.Path, event.Timestamp.UnixNano(), data)
	if err != nil {
		return repository.IOFailure("appending event", err)
	}
	return nil
}

// List returns events matching the given filters in append order
func (r *AnalyticsRepository) List(ctx context.Context, opts analytics.ListOptions) ([]analytics.Event, error) {
	query := `
		SELECT id, session_id, type, path, occurred_at, data
		FROM analytics_events
	`

	args := []interface{}{}
	conditions := []string{}

	if !opts.Since.IsZero() {
		conditions = append(conditions, "occurred_at >= ?")
		args = append(args, opts.Since.UnixNano())
	}
	if !opts.Until.IsZero() {
		conditions = append(conditions, "occurred_at < ?")
		args = append(args, opts.Until.UnixNano())
	}
	if opts.SessionID != "" {
		conditions = append(conditions, "session_id = ?")
		args = append(args, opts.SessionID)
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY seq"
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, repository.IOFailure("listing events", err)
	}
	defer rows.Close()

	events := []analytics.Event{}
	for rows.Next() {
		var e analytics.Event
		var at int64
		var data sql.NullString
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Type, &e.Path, &at, &data); err != nil {
			return nil, repository.IOFailure("scanning event", err)
		}
		e.Timestamp = time.Unix(0, at).UTC()
		if data.Valid {
			e.Data = []byte(data.String)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, repository.IOFailure("listing events", err)
	}
	return events, nil
}
