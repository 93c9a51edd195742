package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Service appends and reads analytics events.
type Service struct {
	repo   Repository
	logger *slog.Logger
}

// NewService creates a new analytics service.
func NewService(repo Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger}
}

// Append stores event, filling id and timestamp when missing.
func (s *Service) Append(ctx context.Context, event *Event) error {
	if event == nil || strings.TrimSpace(event.Type) == "" {
		return ErrInvalidEvent
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	encoded, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	if len(encoded) > MaxEventBytes {
		return fmt.Errorf("%w: %d bytes, limit is %d", ErrEventTooLarge, len(encoded), MaxEventBytes)
	}
	if err := s.repo.Append(ctx, event); err != nil {
		return fmt.Errorf("appending analytics event: %w", err)
	}
	s.logger.Debug("analytics event appended", "event_id", event.ID, "type", event.Type, "session_id", event.SessionID)
	return nil
}

// List returns events in append order.
func (s *Service) List(ctx context.Context, opts ListOptions) ([]Event, error) {
	events, err := s.repo.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("listing analytics events: %w", err)
	}
	return events, nil
}
