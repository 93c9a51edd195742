package sqlite

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsUniqueViolation(t *testing.T) {
	db := NewTestDB(t)

	_, err := db.Exec(`INSERT INTO documents (collection, id, position, status, version, body) VALUES ('photos', 'p1', 0, 'draft', 1, '{}')`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO documents (collection, id, position, status, version, body) VALUES ('photos', 'p1', 1, 'draft', 1, '{}')`)
	require.Error(t, err)
	require.True(t, isUniqueViolation(err))
	require.True(t, isUniqueViolation(fmt.Errorf("saving: %w", err)))

	require.False(t, isUniqueViolation(nil))
	require.False(t, isUniqueViolation(errors.New("disk I/O error")))
	require.True(t, isUniqueViolation(errors.New("UNIQUE constraint failed: documents.collection, documents.id")))
}
