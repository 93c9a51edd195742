package mutation

import (
	"fmt"

	"github.com/rpggio/folio/internal/domain/content"
	"github.com/rpggio/folio/internal/domain/history"
)

// Usage is a reference from one entity to another, reported by a UsageChecker.
type Usage struct {
	Target     string `json:"target"`
	Collection string `json:"collection"`
	EntityID   string `json:"entityId"`
	Field      string `json:"field"`
}

func (u Usage) String() string {
	return fmt.Sprintf("%s/%s.%s", u.Collection, u.EntityID, u.Field)
}

// Change describes a committed mutation to observers. Before is nil for a
// create and After is nil for a delete.
type Change struct {
	Kind   content.Kind
	Action history.Action
	User   string
	Before *content.Entity
	After  *content.Entity
}

// Target selects the entity a Modify call works on.
type Target struct {
	ID    string
	Field string
	Value string
}

// ByID targets an entity by id.
func ByID(id string) Target {
	return Target{ID: id}
}

// ByField targets the first entity whose string field equals value.
func ByField(field, value string) Target {
	return Target{Field: field, Value: value}
}

func (t Target) String() string {
	if t.ID != "" {
		return t.ID
	}
	return fmt.Sprintf("%s=%q", t.Field, t.Value)
}
