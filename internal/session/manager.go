package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-storefront/internal/cart"
	"github.com/noah-isme/toko-storefront/internal/obs"
	"github.com/noah-isme/toko-storefront/internal/wishlist"
)

// ErrNoSession is returned when a request carries no resolved session.
var ErrNoSession = errors.New("session not resolved")

// Session is the per-visitor container.
type Session struct {
	ID       string
	Cart     *cart.Store
	Wishlist *wishlist.Store

	lastSeen time.Time
}

// Config wires a Manager.
type Config struct {
	// NewCart builds an empty cart with its collaborators injected.
	NewCart   func() *cart.Store
	Snapshots SnapshotStore
	// TTL is the idle period after which a session leaves memory. Zero
	// disables eviction.
	TTL    time.Duration
	Logger *zerolog.Logger
	Now    func() time.Time
}

// Manager is the explicit registry of live sessions.
type Manager struct {
	cfg Config

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager constructs a Manager.
func NewManager(cfg Config) *Manager {
	if cfg.Snapshots == nil {
		cfg.Snapshots = NopSnapshots{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		nop := zerolog.Nop()
		cfg.Logger = &nop
	}
	return &Manager{cfg: cfg, sessions: make(map[string]*Session)}
}

// Get returns the session for id, creating it and restoring any persisted
// snapshot on first use.
func (m *Manager) Get(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, ErrNoSession
	}
	now := m.cfg.Now()
	m.mu.Lock()
	if s, ok := m.sessions[id]; ok {
		s.lastSeen = now
		m.mu.Unlock()
		return s, nil
	}
	m.mu.Unlock()

	s := m.build(id, now)
	snap, found, err := m.cfg.Snapshots.Load(ctx, id)
	if err != nil {
		m.cfg.Logger.Warn().Err(err).Str("session_id", id).Msg("session_restore_failed")
	} else if found {
		s.Cart.Restore(snap.Cart)
		s.Wishlist.Restore(snap.Wishlist)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.sessions[id]; ok {
		existing.lastSeen = now
		return existing, nil
	}
	m.sessions[id] = s
	obs.SetSessionsActive(len(m.sessions))
	return s, nil
}

func (m *Manager) build(id string, now time.Time) *Session {
	var c *cart.Store
	if m.cfg.NewCart != nil {
		c = m.cfg.NewCart()
	}
	if c == nil {
		c = cart.NewStore(cart.Config{})
	}
	return &Session{ID: id, Cart: c, Wishlist: wishlist.NewStore(), lastSeen: now}
}

// Save persists the session's current state.
func (m *Manager) Save(ctx context.Context, id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return nil
	}
	return m.cfg.Snapshots.Save(ctx, id, Snapshot{
		Cart:     s.Cart.Snapshot(),
		Wishlist: s.Wishlist.Snapshot(),
		SavedAt:  m.cfg.Now().UTC(),
	})
}

// Forget drops a session from memory and from the snapshot store.
func (m *Manager) Forget(ctx context.Context, id string) error {
	m.mu.Lock()
	delete(m.sessions, id)
	obs.SetSessionsActive(len(m.sessions))
	m.mu.Unlock()
	return m.cfg.Snapshots.Delete(ctx, id)
}

// Len returns the number of sessions held in memory.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Sweep evicts sessions idle for longer than the TTL and returns how many
// were removed. Evicted sessions can still be restored from snapshots.
func (m *Manager) Sweep() int {
	if m.cfg.TTL <= 0 {
		return 0
	}
	cutoff := m.cfg.Now().Add(-m.cfg.TTL)
	m.mu.Lock()
	defer m.mu.Unlock()
	evicted := 0
	for id, s := range m.sessions {
		if s.lastSeen.Before(cutoff) {
			delete(m.sessions, id)
			evicted++
		}
	}
	obs.SetSessionsActive(len(m.sessions))
	obs.CountSessionEvictions(evicted)
	return evicted
}

// Run sweeps idle sessions every interval until ctx is cancelled.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.Sweep(); n > 0 {
				m.cfg.Logger.Debug().Int("evicted", n).Msg("session_sweep")
			}
		}
	}
}
