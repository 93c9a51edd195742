package analytics

import (
	"encoding/json"
	"time"
)

// Event is an opaque analytics record. Data is stored as received.
type Event struct {
	ID        string          `json:"id"`
	SessionID string          `json:"sessionId"`
	Type      string          `json:"type"`
	Path      string          `json:"path"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// ListOptions selects a range of the log. Zero values leave a bound open.
type ListOptions struct {
	Since     time.Time
	Until     time.Time
	SessionID string
	Limit     int
}

// Matches reports whether e falls inside the range.
func (o ListOptions) Matches(e Event) bool {
	if !o.Since.IsZero() && e.Timestamp.Before(o.Since) {
		return false
	}
	if !o.Until.IsZero() && !e.Timestamp.Before(o.Until) {
		return false
	}
	if o.SessionID != "" && e.SessionID != o.SessionID {
		return false
	}
	return true
}
