package history

import (
	"time"

	"github.com/rpggio/folio/internal/domain/content"
)

// Action is the kind of mutation an entry records.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Entry is one ledger record. Snapshot is the full entity as it was before the
// mutation; it is nil for creates.
type Entry struct {
	ID         string          `json:"id"`
	Timestamp  time.Time       `json:"timestamp"`
	User       string          `json:"user"`
	Action     Action          `json:"action"`
	EntityType string          `json:"entityType"`
	EntityID   string          `json:"entityId"`
	Changes    string          `json:"changes,omitempty"`
	Snapshot   *content.Entity `json:"snapshot"`
}

// RecordRequest carries the inputs of Ledger.Record.
type RecordRequest struct {
	Action     Action
	EntityType string
	EntityID   string
	User       string
	Changes    string
	Snapshot   *content.Entity
}
