package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/rpggio/folio/internal/domain/content"
	"github.com/rpggio/folio/internal/repository"
)

// DocumentRepository implements document.Backend for SQLite
type DocumentRepository struct {
	db *DB
}

// NewDocumentRepository creates a new DocumentRepository
func NewDocumentRepository(db *DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// Load returns a collection in stored order
func (r *DocumentRepository) Load(ctx context.Context, collection string) ([]content.Entity, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT body FROM documents WHERE collection = ? ORDER BY position`, collection)
	if err != nil {
		return nil, repository.IOFailure("loading "+collection, err)
	}
	defer rows.Close()

	entities := []content.Entity{}
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, repository.IOFailure("scanning "+collection, err)
		}
		var e content.Entity
		if err := json.Unmarshal([]byte(body), &e); err != nil {
			return nil, repository.IOFailure("decoding "+collection, err)
		}
		entities = append(entities, e)
	}
	if err := rows.Err(); err != nil {
		return nil, repository.IOFailure("loading "+collection, err)
	}
	return entities, nil
}

// Save replaces a collection in one transaction
func (r *DocumentRepository) Save(ctx context.Context, collection string, entities []content.Entity) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return repository.IOFailure("saving "+collection, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM documents WHERE collection = ?`, collection); err != nil {
		return repository.IOFailure("saving "+collection, err)
	}
	for i, e := range entities {
		if err = insertDocument(ctx, tx, collection, i, e); err != nil {
			return err
		}
	}
	if err = tx.Commit(); err != nil {
		return repository.IOFailure("committing "+collection, err)
	}
	return nil
}

func insertDocument(ctx context.Context, tx *sql.Tx, collection string, position int, e content.Entity) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encoding %s %s: %w", collection, e.ID, err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO documents (collection, id, position, status, version, body)
		VALUES (?, ?, ?, ?, ?, ?)
	`, collection, e.ID, position, string(e.Status), e.Version, string(body))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: duplicate id %s in %s", repository.ErrInvalidInput, e.ID, collection)
		}
		return repository.IOFailure("saving "+collection, err)
	}
	return nil
}
