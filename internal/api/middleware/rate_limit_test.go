package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/zoobzio/clockz"
)

type fakeClock interface {
	clockz.Clock
	Advance(time.Duration)
}

func TestRateLimiterRefills(t *testing.T) {
	var clock fakeClock = clockz.NewFakeClock()
	rl := NewRateLimiter(clock)

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow("k", 3))
	}
	assert.False(t, rl.Allow("k", 3))

	// Three per minute refills one token every twenty seconds.
	clock.Advance(20 * time.Second)
	assert.True(t, rl.Allow("k", 3))
	assert.False(t, rl.Allow("k", 3))

	clock.Advance(time.Hour)
	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow("k", 3))
	}
	assert.False(t, rl.Allow("k", 3))
}

func TestRateLimiterKeysAreIndependent(t *testing.T) {
	rl := NewRateLimiter(clockz.NewFakeClock())

	assert.True(t, rl.Allow("a", 1))
	assert.False(t, rl.Allow("a", 1))
	assert.True(t, rl.Allow("b", 1))
}

func TestRateLimiterCleanup(t *testing.T) {
	var clock fakeClock = clockz.NewFakeClock()
	rl := NewRateLimiter(clock)

	rl.Allow("old", 5)
	clock.Advance(11 * time.Minute)
	rl.Allow("fresh", 5)

	assert.Equal(t, 1, rl.Cleanup())
	assert.Equal(t, 0, rl.Cleanup())
}

func TestLimitMiddleware(t *testing.T) {
	rl := NewRateLimiter(clockz.NewFakeClock())
	ok := func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) }
	h := rl.Limit("public", 1)(ok)

	serve := func(remote string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = remote
		rec := httptest.NewRecorder()
		h(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusNoContent, serve("10.0.0.1:1000"))
	// Same client from another port shares the bucket.
	assert.Equal(t, http.StatusTooManyRequests, serve("10.0.0.1:2000"))
	assert.Equal(t, http.StatusNoContent, serve("10.0.0.2:1000"))
}

func TestLimitDisabled(t *testing.T) {
	rl := NewRateLimiter(nil)
	ok := func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) }
	h := rl.Limit("public", 0)(ok)

	for i := 0; i < 100; i++ {
		rec := httptest.NewRecorder()
		h(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusNoContent, rec.Code)
	}
}
