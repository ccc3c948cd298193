package middleware

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/zoobzio/clockz"

	apierrors "memberpay/internal/pkg/errors"
)

const bucketIdle = 10 * time.Minute

// RateLimiter is a per-key token bucket refilled at limit tokens per minute.
type RateLimiter struct {
	clock clockz.Clock
	store sync.Map // map[string]*bucket
}

type bucket struct {
	mu         sync.Mutex
	tokens     int
	lastRefill time.Time
	lastAccess time.Time
}

func NewRateLimiter(clock clockz.Clock) *RateLimiter {
	if clock == nil {
		clock = clockz.RealClock
	}
	return &RateLimiter{clock: clock}
}

func (rl *RateLimiter) Allow(key string, limit int) bool {
	now := rl.clock.Now()

	val, _ := rl.store.LoadOrStore(key, &bucket{
		tokens:     limit,
		lastRefill: now,
		lastAccess: now,
	})

	b := val.(*bucket)
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastAccess = now

	refill := int(now.Sub(b.lastRefill).Seconds() * float64(limit) / 60.0)
	if refill > 0 {
		b.tokens += refill
		if b.tokens > limit {
			b.tokens = limit
		}
		b.lastRefill = now
	}

	if b.tokens > 0 {
		b.tokens--
		return true
	}
	return false
}

// Cleanup drops buckets idle for longer than ten minutes and reports how many
// it removed.
func (rl *RateLimiter) Cleanup() int {
	now := rl.clock.Now()
	removed := 0
	rl.store.Range(func(key, value interface{}) bool {
		b := value.(*bucket)
		b.mu.Lock()
		idle := now.Sub(b.lastAccess) > bucketIdle
		b.mu.Unlock()
		if idle {
			rl.store.Delete(key)
			removed++
		}
		return true
	})
	return removed
}

// Limit keys requests by client IP and route name. A limit of zero or less
// disables limiting.
func (rl *RateLimiter) Limit(route string, perMinute int) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		if perMinute <= 0 {
			return next
		}
		return func(w http.ResponseWriter, r *http.Request) {
			if !rl.Allow(clientIP(r)+":"+route, perMinute) {
				w.Header().Set("Retry-After", strconv.Itoa(60/perMinute+1))
				apierrors.WriteError(w, http.StatusTooManyRequests, apierrors.ErrCodeRateLimitExceeded, "Rate limit exceeded", nil)
				return
			}
			next(w, r)
		}
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
