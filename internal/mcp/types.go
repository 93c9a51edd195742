package mcp

import (
	"time"

	"github.com/rpggio/folio/internal/domain/content"
	"github.com/rpggio/folio/internal/domain/history"
)

type ListEntitiesParams struct {
	Collection string `json:"collection" jsonschema:"one of projects, photos, pages, settings"`
}

type GetEntityParams struct {
	Collection string `json:"collection" jsonschema:"collection the entity belongs to"`
	ID         string `json:"id" jsonschema:"entity id"`
}

type GetPageParams struct {
	Slug string `json:"slug" jsonschema:"page slug, home for the landing page"`
}

type ListHistoryParams struct {
	EntityID string `json:"entityId,omitempty" jsonschema:"only entries of this entity"`
	Limit    int    `json:"limit,omitempty" jsonschema:"maximum number of entries"`
}

type ListEntitiesResult struct {
	Collection string           `json:"collection"`
	Entities   []content.Entity `json:"entities"`
}

type ListHistoryResult struct {
	Entries []HistoryEntry `json:"entries"`
}

// HistoryEntry is a history entry without its snapshot. Snapshots hold
// prior states, drafts included, so they stay off the retrieval surface.
type HistoryEntry struct {
	ID         string         `json:"id"`
	Timestamp  time.Time      `json:"timestamp"`
	User       string         `json:"user"`
	Action     history.Action `json:"action"`
	EntityType string         `json:"entityType"`
	EntityID   string         `json:"entityId"`
	Changes    string         `json:"changes,omitempty"`
}

func summarizeHistory(entries []history.Entry) []HistoryEntry {
	out := make([]HistoryEntry, len(entries))
	for i, e := range entries {
		out[i] = HistoryEntry{
			ID:         e.ID,
			Timestamp:  e.Timestamp,
			User:       e.User,
			Action:     e.Action,
			EntityType: e.EntityType,
			EntityID:   e.EntityID,
			Changes:    e.Changes,
		}
	}
	return out
}
