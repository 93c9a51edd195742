// Package sandbox keeps disposable, session-scoped content stores for demo
// and preview visitors. Nothing written to a sandbox reaches durable storage.
package sandbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rpggio/folio/internal/app"
	"github.com/rpggio/folio/internal/domain/content"
	"github.com/rpggio/folio/internal/domain/document"
	"github.com/rpggio/folio/internal/repository"
)

const (
	// DefaultTTL is how long an idle session is kept.
	DefaultTTL = 30 * time.Minute
	// DefaultMaxSessions bounds the live sessions of a manager.
	DefaultMaxSessions = 256
)

var (
	// ErrSessionRequired indicates a sandbox request without a session id.
	ErrSessionRequired = fmt.Errorf("sandbox session id is required: %w", repository.ErrInvalidInput)
	// ErrSessionLimit indicates every sandbox slot is taken by a live session.
	ErrSessionLimit = errors.New("too many sandbox sessions")
)

type session struct {
	services *app.Services
	lastSeen time.Time
}

// Manager owns the live sandbox sessions.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*session
	ttl      time.Duration
	max      int
	now      func() time.Time
	seed     *document.Store
	logger   *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the time source used for expiry.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// WithSeed copies the published content of store into each new session.
// Drafts never leave the durable store.
func WithSeed(store *document.Store) Option {
	return func(m *Manager) {
		m.seed = store
	}
}

// WithMaxSessions bounds the number of live sessions.
func WithMaxSessions(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.max = n
		}
	}
}

// NewManager creates a manager expiring sessions idle for longer than ttl.
func NewManager(ttl time.Duration, logger *slog.Logger, opts ...Option) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		sessions: make(map[string]*session),
		ttl:      ttl,
		max:      DefaultMaxSessions,
		now:      time.Now,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Services returns the services of session id, creating the session on first
// use. Seeding runs outside the manager lock; when two requests race to create
// the same session the first one stored wins.
func (m *Manager) Services(ctx context.Context, id string) (*app.Services, error) {
	if id == "" {
		return nil, ErrSessionRequired
	}

	if s, err := m.lookup(id); s != nil || err != nil {
		return s, err
	}

	backends := app.MemoryBackends()
	if m.seed != nil {
		if err := copyPublished(ctx, m.seed, backends.Documents); err != nil {
			return nil, fmt.Errorf("seeding sandbox: %w", err)
		}
	}
	services := app.New(backends, app.Options{Registry: m.registry(), Logger: m.logger.With("sandbox_session", id)})

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		s.lastSeen = m.now()
		return s.services, nil
	}
	if err := m.reserveLocked(); err != nil {
		return nil, err
	}
	m.sessions[id] = &session{services: services, lastSeen: m.now()}
	m.logger.Info("sandbox session started", "sandbox_session", id)
	return services, nil
}

// lookup returns the live session id, or ErrSessionLimit when a new session
// could not be admitted.
func (m *Manager) lookup(id string) (*app.Services, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		s.lastSeen = m.now()
		return s.services, nil
	}
	return nil, m.reserveLocked()
}

// reserveLocked makes room for one more session, expiring idle ones first.
func (m *Manager) reserveLocked() error {
	if len(m.sessions) < m.max {
		return nil
	}
	m.sweepLocked()
	if len(m.sessions) < m.max {
		return nil
	}
	m.logger.Warn("sandbox session limit reached", "max", m.max)
	return fmt.Errorf("%w: limit is %d", ErrSessionLimit, m.max)
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Drop discards a session.
func (m *Manager) Drop(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}

// Sweep discards sessions idle for longer than the ttl and returns how many.
func (m *Manager) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sweepLocked()
}

func (m *Manager) sweepLocked() int {
	cutoff := m.now().Add(-m.ttl)
	removed := 0
	for id, s := range m.sessions {
		if s.lastSeen.Before(cutoff) {
			delete(m.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		m.logger.Info("sandbox sessions expired", "count", removed)
	}
	return removed
}

// Run sweeps periodically until ctx is done.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.ttl / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}

func (m *Manager) registry() *content.Registry {
	if m.seed == nil {
		return nil
	}
	return m.seed.Registry()
}

// copyPublished copies the published entities of src into dst. Pages carry
// their published content as both states.
func copyPublished(ctx context.Context, src *document.Store, dst document.Backend) error {
	for _, name := range src.Registry().Collections() {
		schema, err := src.Schema(name)
		if err != nil {
			return err
		}
		entities, err := src.GetAll(ctx, name, false)
		if err != nil {
			return err
		}
		if schema.Kind == content.KindPage {
			for i := range entities {
				if entities[i], err = publishedOnly(entities[i]); err != nil {
					return err
				}
			}
		}
		if err := dst.Save(ctx, name, entities); err != nil {
			return err
		}
	}
	return nil
}

func publishedOnly(page content.Entity) (content.Entity, error) {
	pc, _, err := content.PageContentOf(page)
	if err != nil {
		return content.Entity{}, err
	}
	draft := json.RawMessage(append([]byte(nil), pc.Published...))
	return content.WithPageContent(page, content.PageContent{Draft: draft, Published: pc.Published})
}
