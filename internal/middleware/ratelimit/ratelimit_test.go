package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestLimiter(t *testing.T, perMinute int) (*Limiter, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC)}
	rl := NewLimiter(Config{RequestsPerMinute: perMinute})
	rl.now = clock.now
	t.Cleanup(rl.Stop)
	return rl, clock
}

func TestLimiter_Allow(t *testing.T) {
	rl, clock := newTestLimiter(t, 3)

	for i := 0; i < 3; i++ {
		require.True(t, rl.Allow("10.0.0.1"), "request %d", i+1)
	}
	assert.False(t, rl.Allow("10.0.0.1"))
	assert.True(t, rl.Allow("10.0.0.2"), "other clients are independent")

	clock.advance(time.Minute)
	assert.True(t, rl.Allow("10.0.0.1"), "new window")

	m := rl.GetMetrics()
	assert.Equal(t, int64(1), m.TotalHits)
	assert.Equal(t, int64(2), m.ClientCount)
}

func TestLimiter_WindowDoesNotSlide(t *testing.T) {
	rl, clock := newTestLimiter(t, 2)

	require.True(t, rl.Allow("ip"))
	clock.advance(40 * time.Second)
	require.True(t, rl.Allow("ip"))
	clock.advance(10 * time.Second)
	assert.False(t, rl.Allow("ip"))
	clock.advance(10 * time.Second)
	assert.True(t, rl.Allow("ip"))
}

func TestLimiter_CleanupStaleEntries(t *testing.T) {
	rl, clock := newTestLimiter(t, 5)
	rl.Allow("old")
	clock.advance(11 * time.Minute)
	rl.Allow("fresh")

	rl.cleanupStaleEntries()
	assert.Equal(t, 1, rl.ActiveClients())
}

func TestLimiter_Middleware(t *testing.T) {
	rl, _ := newTestLimiter(t, 1)
	ip := func(*http.Request) string { return "10.0.0.1" }
	onLimit := func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"rate limit exceeded"}`))
	}
	h := rl.Middleware(ip, false, onLimit)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	serve := func(method string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(method, "/api/users", nil))
		return rec
	}

	assert.Equal(t, http.StatusNoContent, serve(http.MethodPost).Code)
	limited := serve(http.MethodPost)
	assert.Equal(t, http.StatusTooManyRequests, limited.Code)
	assert.Equal(t, "60", limited.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"error":"rate limit exceeded"}`, limited.Body.String())

	assert.Equal(t, http.StatusNoContent, serve(http.MethodGet).Code, "reads are not limited")
}

func TestLimiter_StopIsIdempotent(t *testing.T) {
	rl := NewLimiter(Config{})
	rl.Stop()
	rl.Stop()
	assert.Equal(t, 60, rl.requestsPerMinute)
}
