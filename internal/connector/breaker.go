// Package connector implements the Connector Runtime: a circuit breaker,
// exponential-backoff retry policy, bounded dead-letter queue, and
// per-connector metric aggregation fronting every outbound or cross-tier
// call.
package connector

import (
	"sync"
	"time"

	"github.com/campaignexpress/controlplane/internal/clock"
	"github.com/campaignexpress/controlplane/internal/errs"
)

// CircuitState is one of the three states a CircuitBreaker can be in.
type CircuitState uint8

const (
	Closed CircuitState = iota
	Open
	HalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// BreakerConfig configures a CircuitBreaker.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive Closed-state failures
	// before the breaker opens. Must be >= 1.
	FailureThreshold uint64
	// OpenDuration is how long the breaker stays Open before a single
	// observer transitions it to HalfOpen.
	OpenDuration time.Duration
	// HalfOpenSuccesses is the number of consecutive successes in
	// HalfOpen required to close the breaker. Must be >= 1.
	HalfOpenSuccesses uint64
}

// DefaultBreakerConfig returns the standard breaker tuning applied to every
// connector unless overridden: 5 consecutive failures to open, a 30s open
// window, and 3 consecutive half-open successes to close.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold:  5,
		OpenDuration:      30 * time.Second,
		HalfOpenSuccesses: 3,
	}
}

// Validate rejects configurations that would make the state machine
// meaningless, per the Configuration error kind.
func (c BreakerConfig) Validate() error {
	if c.FailureThreshold < 1 {
		return errs.Configurationf("failure_threshold must be >= 1, got %d", c.FailureThreshold)
	}
	if c.HalfOpenSuccesses < 1 {
		return errs.Configurationf("half_open_successes must be >= 1, got %d", c.HalfOpenSuccesses)
	}
	return nil
}

// CircuitBreaker implements the Closed/Open/HalfOpen state machine fronting
// a connector's calls. AllowRequest is the sole place that observes elapsed
// time and performs the Open->HalfOpen transition; the transition decision
// is guarded by mu so concurrent callers see exactly one such transition.
// failureCount and successCount are plain fields, read and mutated only
// while mu is held, alongside the state variant itself.
type CircuitBreaker struct {
	config BreakerConfig
	clock  clock.Clock

	mu            sync.Mutex
	state         CircuitState
	failureCount  uint64
	successCount  uint64
	openedAt      time.Time
	lastFailureAt time.Time
	hasOpenedAt   bool
	hasFailedAt   bool
}

// NewCircuitBreaker constructs a breaker in the Closed state. c must be a
// valid non-nil clock.
func NewCircuitBreaker(config BreakerConfig, c clock.Clock) (*CircuitBreaker, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &CircuitBreaker{config: config, clock: c, state: Closed}, nil
}

// AllowRequest gates an attempt. It is the only method that can observe the
// Open->HalfOpen transition.
func (b *CircuitBreaker) AllowRequest() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case Closed:
		return true
	case HalfOpen:
		return true
	case Open:
		if b.hasOpenedAt && b.clock.Now().Sub(b.openedAt) >= b.config.OpenDuration {
			b.state = HalfOpen
			b.successCount = 0
			return true
		}
		return false
	default:
		return false
	}
}

// RecordSuccess updates the breaker after a successful call.
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case HalfOpen:
		b.successCount++
		if b.successCount >= b.config.HalfOpenSuccesses {
			b.state = Closed
			b.failureCount = 0
			b.successCount = 0
		}
	case Closed:
		b.failureCount = 0
	case Open:
		// stale success from an in-flight call; no state change.
	}
}

// RecordFailure updates the breaker after a failed call.
func (b *CircuitBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastFailureAt = b.clock.Now()
	b.hasFailedAt = true
	switch b.state {
	case Closed:
		b.failureCount++
		if b.failureCount >= b.config.FailureThreshold {
			b.state = Open
			b.openedAt = b.lastFailureAt
			b.hasOpenedAt = true
		}
	case HalfOpen:
		b.state = Open
		b.openedAt = b.lastFailureAt
		b.hasOpenedAt = true
		b.successCount = 0
	case Open:
		// already open; nothing to do.
	}
}

// State returns the breaker's current state.
func (b *CircuitBreaker) State() CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
