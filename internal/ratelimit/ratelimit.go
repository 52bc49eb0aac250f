// Package ratelimit bounds how fast, and how many at a time, a single
// client may run commands. Every execution acquires a slot up front and
// releases it when the command finishes, so a long-running streamed
// execution counts against its client for its whole lifetime, not just at
// submit. Thread-safe; no background goroutines — tokens refill lazily.
package ratelimit

import (
	"errors"
	"sync"
	"time"
)

var (
	// ErrRateLimited is returned when a client submits executions faster
	// than its refill rate allows.
	ErrRateLimited = errors.New("execution rate limit exceeded")

	// ErrTooManyActive is returned when a client already has the maximum
	// number of executions in flight.
	ErrTooManyActive = errors.New("too many concurrent executions")
)

// Config configures per-client execution limiting.
type Config struct {
	ExecutionsPerMinute int // Sustained submit rate. 0 = unlimited.
	BurstSize           int // Bucket capacity. 0 = defaults to ExecutionsPerMinute.
	MaxConcurrent       int // In-flight executions per client. 0 = unlimited.
}

// Limiter tracks a token bucket and an in-flight count per client.
// Each client is independent; one client cannot exhaust another's quota.
type Limiter struct {
	mu      sync.Mutex
	rate    float64 // tokens per second
	burst   float64
	maxConc int
	clients map[string]*clientState
}

type clientState struct {
	tokens     float64
	lastRefill time.Time
	inFlight   int
}

// NewLimiter creates a limiter with the given configuration.
func NewLimiter(cfg Config) *Limiter {
	burst := cfg.BurstSize
	if burst <= 0 {
		burst = cfg.ExecutionsPerMinute
	}
	if burst <= 0 {
		burst = 1 // safety floor
	}
	return &Limiter{
		rate:    float64(cfg.ExecutionsPerMinute) / 60.0,
		burst:   float64(burst),
		maxConc: cfg.MaxConcurrent,
		clients: make(map[string]*clientState),
	}
}

// Acquire reserves one execution slot for the client, consuming one token
// from its bucket. The returned release must be called when the execution
// finishes; calling it more than once is safe.
func (l *Limiter) Acquire(clientID string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	st, ok := l.clients[clientID]
	if !ok {
		// First execution: start with a full bucket.
		st = &clientState{tokens: l.burst, lastRefill: now}
		l.clients[clientID] = st
	}

	// Refill tokens based on elapsed time.
	if l.rate > 0 {
		st.tokens += now.Sub(st.lastRefill).Seconds() * l.rate
		if st.tokens > l.burst {
			st.tokens = l.burst
		}
	}
	st.lastRefill = now

	// Concurrency is checked before the bucket so a rejected execution
	// does not burn a token.
	if l.maxConc > 0 && st.inFlight >= l.maxConc {
		return nil, ErrTooManyActive
	}
	if l.rate > 0 {
		if st.tokens < 1 {
			return nil, ErrRateLimited
		}
		st.tokens--
	}

	st.inFlight++
	var once sync.Once
	release := func() {
		once.Do(func() {
			l.mu.Lock()
			st.inFlight--
			l.mu.Unlock()
		})
	}
	return release, nil
}

// InFlight reports how many executions the client currently has running.
func (l *Limiter) InFlight(clientID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if st, ok := l.clients[clientID]; ok {
		return st.inFlight
	}
	return 0
}
