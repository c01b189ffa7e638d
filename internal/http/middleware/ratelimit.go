package middleware

import (
	"net/http"
	"sync"
	"time"
)

// Sweep cadence for idle client buckets. A chat widget polls at human speed,
// so anything silent for ten minutes is a finished conversation.
const (
	sweepInterval = 5 * time.Minute
	idleEviction  = 10 * time.Minute
)

// RateLimiter throttles inbound chat messages per client IP with token
// buckets. Accepting a message is cheap but each one fans out to LLM calls
// and a slot search, so the limiter guards the message route rather than the
// whole API.
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string]*clientBucket
	rate    float64
	burst   float64
	now     func() time.Time
}

type clientBucket struct {
	tokens float64
	seen   time.Time
}

func (b *clientBucket) refill(now time.Time, rate, burst float64) {
	b.tokens += now.Sub(b.seen).Seconds() * rate
	if b.tokens > burst {
		b.tokens = burst
	}
	b.seen = now
}

// NewRateLimiter allows rate messages per second with the given burst per
// client, and sweeps idle clients in the background.
func NewRateLimiter(rate float64, burst int) *RateLimiter {
	rl := &RateLimiter{
		clients: make(map[string]*clientBucket),
		rate:    rate,
		burst:   float64(burst),
		now:     time.Now,
	}
	go rl.sweep()
	return rl
}

// Allow reports whether the client identified by key may send another message.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	b, ok := rl.clients[key]
	if !ok {
		b = &clientBucket{tokens: rl.burst, seen: now}
		rl.clients[key] = b
	}
	b.refill(now, rl.rate, rl.burst)

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

func (rl *RateLimiter) sweep() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for range ticker.C {
		rl.mu.Lock()
		cutoff := rl.now().Add(-idleEviction)
		for key, b := range rl.clients {
			if b.seen.Before(cutoff) {
				delete(rl.clients, key)
			}
		}
		rl.mu.Unlock()
	}
}

// RateLimit returns middleware that answers 429 when a client exceeds the
// configured message rate. Clients are keyed by X-Real-Ip when chi's RealIP
// middleware has set it, otherwise by RemoteAddr.
func RateLimit(rate float64, burst int) func(http.Handler) http.Handler {
	limiter := NewRateLimiter(rate, burst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.RemoteAddr
			if xri := r.Header.Get("X-Real-Ip"); xri != "" {
				key = xri
			}
			if !limiter.Allow(key) {
				http.Error(w, "too many messages, please wait a moment", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
