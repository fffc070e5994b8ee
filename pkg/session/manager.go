package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/finverse/finverse/pkg/canvas"
	"github.com/finverse/finverse/pkg/domain"
	"github.com/finverse/finverse/pkg/gate"
	"github.com/finverse/finverse/pkg/storage"
)

// Config sizes new sessions and bounds their idle lifetime.
type Config struct {
	Width        int
	Height       int
	UndoCapacity int
	LineWidth    float64
	IdleTTL      time.Duration
}

// DefaultConfig returns the stock canvas geometry.
func DefaultConfig() Config {
	return Config{
		Width:        400,
		Height:       300,
		UndoCapacity: canvas.DefaultHistoryCapacity,
		LineWidth:    canvas.DefaultLineWidth,
		IdleTTL:      30 * time.Minute,
	}
}

// Manager owns the live sessions.
type Manager struct {
	sessions map[string]*Session
	mu       sync.RWMutex
	config   Config
	gate     *gate.Gate
	store    storage.ClientStore
	logger   *slog.Logger
	hooks    Hooks
	now      func() time.Time
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) { m.logger = logger }
}

// WithHooks installs metric hooks on the manager and every session it creates.
func WithHooks(h Hooks) ManagerOption {
	return func(m *Manager) { m.hooks = h }
}

// WithClock replaces time.Now for activity tracking.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a session manager. store may be nil, in which case gate
// results are not persisted.
func NewManager(cfg Config, g *gate.Gate, store storage.ClientStore, opts ...ManagerOption) *Manager {
	def := DefaultConfig()
	if cfg.Width <= 0 || cfg.Height <= 0 {
		cfg.Width, cfg.Height = def.Width, def.Height
	}
	if cfg.UndoCapacity <= 0 {
		cfg.UndoCapacity = def.UndoCapacity
	}
	if cfg.LineWidth <= 0 {
		cfg.LineWidth = def.LineWidth
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = def.IdleTTL
	}

	m := &Manager{
		sessions: make(map[string]*Session),
		config:   cfg,
		gate:     g,
		store:    store,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Config returns the session configuration.
func (m *Manager) Config() Config { return m.config }

// Create starts a session for clientID. An empty clientID gets a fresh one.
func (m *Manager) Create(clientID string) (*Session, error) {
	if clientID == "" {
		clientID = uuid.NewString()
	}
	id, err := uuid.NewRandom()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	c := canvas.New(m.config.Width, m.config.Height,
		canvas.WithHistoryCapacity(m.config.UndoCapacity),
		canvas.WithLineWidth(m.config.LineWidth),
		canvas.WithLogger(m.logger),
	)
	s := newSession(id.String(), clientID, c, m.gate, m.store, m.logger, m.hooks, m.now)

	m.mu.Lock()
	m.sessions[s.id] = s
	n := len(m.sessions)
	m.mu.Unlock()

	m.logger.Info("Session created", "session_id", s.id, "client_id", clientID)
	m.reportActive(n)
	return s, nil
}

// Get returns the session with the given ID.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrSessionNotFound, id)
	}
	return s, nil
}

// Delete drops a session.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	n := len(m.sessions)
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrSessionNotFound, id)
	}
	m.logger.Info("Session closed",
		"session_id", id,
		"duration", m.now().Sub(s.CreatedAt()),
	)
	m.reportActive(n)
	return nil
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Sweep removes sessions idle for longer than the configured TTL and returns
// how many were removed.
func (m *Manager) Sweep() int {
	now := m.now()

	m.mu.Lock()
	var expired []string
	for id, s := range m.sessions {
		if now.Sub(s.LastActivity()) > m.config.IdleTTL {
			expired = append(expired, id)
		}
	}
	for _, id := range expired {
		delete(m.sessions, id)
		m.logger.Info("Session expired and cleaned up", "session_id", id)
	}
	n := len(m.sessions)
	m.mu.Unlock()

	if len(expired) > 0 {
		m.logger.Info("Cleanup completed", "expired_sessions", len(expired))
		m.reportActive(n)
	}
	return len(expired)
}

// Run sweeps idle sessions every interval until ctx is done.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Sweep()
		case <-ctx.Done():
			m.logger.Info("Cleanup routine stopped")
			return
		}
	}
}

func (m *Manager) reportActive(n int) {
	if m.hooks.Active != nil {
		m.hooks.Active(n)
	}
}
