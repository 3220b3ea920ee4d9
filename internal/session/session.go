// Package session binds visitors to their own cart. Each session owns one
// cart.Store for as long as it is active; sessions idle past the configured
// timeout are ended and their carts discarded.
package session

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/xenking/paperpen-storefront/internal/domain/cart"
)

// ErrNoStore is returned by NewManager when no cart factory is provided.
var ErrNoStore = errors.New("session: cart store factory is required")

const (
	DefaultCookieName  = "storefront_session"
	DefaultIdleTimeout = 30 * time.Minute
)

// Config controls session cookies and lifetime.
type Config struct {
	CookieName  string
	IdleTimeout time.Duration
	// Secure marks the session cookie as HTTPS-only.
	Secure bool
}

type entry struct {
	store    *cart.Store
	lastSeen time.Time
}

// Manager is an in-memory session registry.
type Manager struct {
	cfg      Config
	newStore func(id string) *cart.Store
	now      func() time.Time

	mu       sync.Mutex
	sessions map[string]*entry
}

// NewManager creates a Manager. newStore is called once per new session with
// the session ID and must return a fresh cart.
func NewManager(cfg Config, newStore func(id string) *cart.Store) (*Manager, error) {
	if newStore == nil {
		return nil, ErrNoStore
	}
	if cfg.CookieName == "" {
		cfg.CookieName = DefaultCookieName
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	return &Manager{
		cfg:      cfg,
		newStore: newStore,
		now:      time.Now,
		sessions: make(map[string]*entry),
	}, nil
}

// Cart returns the cart of the session identified by the request cookie,
// starting a new session (and setting its cookie on w) when the cookie is
// missing, malformed or refers to an ended session.
func (m *Manager) Cart(w http.ResponseWriter, r *http.Request) (string, *cart.Store) {
	if id, s, ok := m.find(r); ok {
		return id, s
	}

	id, s := m.start()
	http.SetCookie(w, &http.Cookie{
		Name:     m.cfg.CookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   m.cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	return id, s
}

// Find returns the cart of the session identified by the request cookie.
// Unlike Cart it never starts a session, so read-only requests from
// cookie-less clients cost no server-side state.
func (m *Manager) Find(r *http.Request) (*cart.Store, bool) {
	_, s, ok := m.find(r)
	return s, ok
}

func (m *Manager) find(r *http.Request) (string, *cart.Store, bool) {
	c, err := r.Cookie(m.cfg.CookieName)
	if err != nil {
		return "", nil, false
	}
	id, ok := parseID(c.Value)
	if !ok {
		return "", nil, false
	}
	s, ok := m.touch(id)
	return id, s, ok
}

// Lookup returns the cart of an active session without touching it.
func (m *Manager) Lookup(id string) (*cart.Store, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	return e.store, true
}

// End discards the session and its cart. Ending an unknown session is a
// no-op.
func (m *Manager) End(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}

// Len returns the number of active sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Sweep ends every session idle for at least the idle timeout and returns
// how many were ended.
func (m *Manager) Sweep(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for id, e := range m.sessions {
		if now.Sub(e.lastSeen) >= m.cfg.IdleTimeout {
			delete(m.sessions, id)
			n++
		}
	}
	return n
}

// Run sweeps idle sessions every half idle timeout until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.IdleTimeout / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			m.Sweep(now)
		}
	}
}

func (m *Manager) touch(id string) (*cart.Store, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	e.lastSeen = m.now()
	return e.store, true
}

func (m *Manager) start() (string, *cart.Store) {
	id := uuid.New().String()
	s := m.newStore(id)

	m.mu.Lock()
	m.sessions[id] = &entry{store: s, lastSeen: m.now()}
	m.mu.Unlock()
	return id, s
}

func parseID(v string) (string, bool) {
	id, err := uuid.Parse(v)
	if err != nil {
		return "", false
	}
	return id.String(), true
}
