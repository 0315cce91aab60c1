package connector

import (
	"sync"
	"time"

	"github.com/campaignexpress/controlplane/internal/clock"
	"github.com/campaignexpress/controlplane/internal/errs"
)

// RateLimitConfig configures a RateLimiter's capacity and refill cadence.
type RateLimitConfig struct {
	// Capacity is the maximum number of calls allowed per refill period.
	// Must be >= 1.
	Capacity int
	// RefillPeriod is how often the bucket refills to full Capacity.
	// Must be > 0.
	RefillPeriod time.Duration
}

// DefaultRateLimitConfig mirrors the upstream connector's defaults: 50
// calls per second.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{Capacity: 50, RefillPeriod: time.Second}
}

// Validate rejects configurations that would make the bucket meaningless.
func (c RateLimitConfig) Validate() error {
	if c.Capacity < 1 {
		return errs.Configurationf("rate_limit capacity must be >= 1, got %d", c.Capacity)
	}
	if c.RefillPeriod <= 0 {
		return errs.Configurationf("rate_limit refill_period must be > 0, got %s", c.RefillPeriod)
	}
	return nil
}

// RateLimiter is a token bucket gating outbound call volume for a single
// connector, independently of the circuit breaker's failure-based gating.
// Unlike a ticker-driven bucket, refill is computed lazily from elapsed
// clock time on each Allow call, so it observes the same injected clock.Clock
// as the rest of the runtime and needs no background goroutine.
type RateLimiter struct {
	config RateLimitConfig
	clock  clock.Clock

	mu         sync.Mutex
	tokens     int
	lastRefill time.Time
}

// NewRateLimiter constructs a RateLimiter starting at full capacity.
func NewRateLimiter(cfg RateLimitConfig, c clock.Clock) (*RateLimiter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &RateLimiter{
		config:     cfg,
		clock:      c,
		tokens:     cfg.Capacity,
		lastRefill: c.Now(),
	}, nil
}

// refillLocked brings the bucket up to date for elapsed whole refill
// periods. Must be called with mu held.
func (l *RateLimiter) refillLocked() {
	now := l.clock.Now()
	elapsed := now.Sub(l.lastRefill)
	if elapsed < l.config.RefillPeriod {
		return
	}
	periods := elapsed / l.config.RefillPeriod
	l.tokens = l.config.Capacity
	l.lastRefill = l.lastRefill.Add(periods * l.config.RefillPeriod)
}

// Allow attempts to consume one token. Returns true if a token was
// available, false if the connector's call rate is currently exhausted.
func (l *RateLimiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refillLocked()
	if l.tokens <= 0 {
		return false
	}
	l.tokens--
	return true
}

// Remaining returns the current token count.
func (l *RateLimiter) Remaining() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refillLocked()
	return l.tokens
}
