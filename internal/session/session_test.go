package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/paperpen-storefront/internal/domain/cart"
	"github.com/xenking/paperpen-storefront/internal/domain/product"
)

func newTestManager(t *testing.T, cfg Config) *Manager {
	t.Helper()
	m, err := NewManager(cfg, func(string) *cart.Store { return cart.New() })
	require.NoError(t, err)
	return m
}

func sessionCookie(t *testing.T, w *httptest.ResponseRecorder, name string) *http.Cookie {
	t.Helper()
	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("cookie %q not set", name)
	return nil
}

func TestNewManager_RequiresFactory(t *testing.T) {
	_, err := NewManager(Config{}, nil)
	require.ErrorIs(t, err, ErrNoStore)
}

func TestCart_StartsSession(t *testing.T) {
	m := newTestManager(t, Config{Secure: true})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()

	id, s := m.Cart(w, req)
	require.NotNil(t, s)
	assert.NotEmpty(t, id)
	assert.Equal(t, 1, m.Len())

	c := sessionCookie(t, w, DefaultCookieName)
	assert.Equal(t, id, c.Value)
	assert.True(t, c.HttpOnly)
	assert.True(t, c.Secure)
	assert.Equal(t, "/", c.Path)
	assert.Equal(t, http.SameSiteLaxMode, c.SameSite)
}

func TestCart_ReusesSessionFromCookie(t *testing.T) {
	m := newTestManager(t, Config{})

	w := httptest.NewRecorder()
	id, s := m.Cart(w, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, s.Add(product.Product{ID: "a", Name: "A", Price: decimal.NewFromInt(1)}))

	req := httptest.NewRequest(http.MethodGet, "/cart", nil)
	req.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: id})
	w2 := httptest.NewRecorder()

	id2, s2 := m.Cart(w2, req)
	assert.Equal(t, id, id2)
	assert.Same(t, s, s2)
	assert.Equal(t, 1, s2.TotalItems())
	assert.Empty(t, w2.Result().Cookies(), "existing session must not be re-issued")
	assert.Equal(t, 1, m.Len())
}

func TestCart_InvalidOrUnknownCookie(t *testing.T) {
	m := newTestManager(t, Config{CookieName: "sid"})

	for _, value := range []string{"not-a-uuid", "6f1c1c3e-3f0a-4d59-9c55-2b1a3c8f0e11"} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: "sid", Value: value})
		w := httptest.NewRecorder()

		id, _ := m.Cart(w, req)
		assert.NotEqual(t, value, id)
		assert.Equal(t, id, sessionCookie(t, w, "sid").Value)
	}
	assert.Equal(t, 2, m.Len())
}

func TestFind_NeverStartsSession(t *testing.T) {
	m := newTestManager(t, Config{})

	for _, cookie := range []string{"", "not-a-uuid", "0b7e4c1a-2f7e-4d43-9a51-3f0c9e6f2a10"} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if cookie != "" {
			req.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: cookie})
		}
		s, ok := m.Find(req)
		assert.False(t, ok, cookie)
		assert.Nil(t, s, cookie)
	}
	assert.Equal(t, 0, m.Len())

	w := httptest.NewRecorder()
	_, started := m.Cart(w, httptest.NewRequest(http.MethodPost, "/cart/add", nil))
	req := httptest.NewRequest(http.MethodGet, "/cart", nil)
	req.AddCookie(sessionCookie(t, w, DefaultCookieName))

	s, ok := m.Find(req)
	require.True(t, ok)
	assert.Same(t, started, s)
	assert.Equal(t, 1, m.Len())
}

func TestSessionsAreIsolated(t *testing.T) {
	m := newTestManager(t, Config{})

	_, s1 := m.Cart(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	_, s2 := m.Cart(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	require.NoError(t, s1.Add(product.Product{ID: "a", Name: "A", Price: decimal.NewFromInt(3)}))

	assert.NotSame(t, s1, s2)
	assert.Equal(t, 0, s2.TotalItems())
}

func TestLookupAndEnd(t *testing.T) {
	m := newTestManager(t, Config{})
	id, s := m.Cart(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	got, ok := m.Lookup(id)
	require.True(t, ok)
	assert.Same(t, s, got)

	m.End(id)
	m.End(id)

	_, ok = m.Lookup(id)
	assert.False(t, ok)
	assert.Equal(t, 0, m.Len())
}

func TestSweep(t *testing.T) {
	m := newTestManager(t, Config{IdleTimeout: time.Minute})
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := base
	m.now = func() time.Time { return now }

	oldID, _ := m.Cart(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	now = base.Add(40 * time.Second)
	freshID, _ := m.Cart(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, 1, m.Sweep(base.Add(70*time.Second)))

	_, ok := m.Lookup(oldID)
	assert.False(t, ok)
	_, ok = m.Lookup(freshID)
	assert.True(t, ok)
}

func TestSweep_TouchExtendsLifetime(t *testing.T) {
	m := newTestManager(t, Config{IdleTimeout: time.Minute})
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := base
	m.now = func() time.Time { return now }

	id, _ := m.Cart(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	now = base.Add(50 * time.Second)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: id})
	m.Cart(httptest.NewRecorder(), req)

	assert.Equal(t, 0, m.Sweep(base.Add(90*time.Second)))
	assert.Equal(t, 1, m.Sweep(base.Add(110*time.Second)))
}

func TestRun_StopsOnCancel(t *testing.T) {
	m := newTestManager(t, Config{IdleTimeout: 20 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	m.Cart(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.Eventually(t, func() bool { return m.Len() == 0 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
