package connector

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/campaignexpress/controlplane/internal/clock"
	"github.com/campaignexpress/controlplane/internal/errs"
)

// defaultDLQCapacity is the default bounded dead-letter queue size per
// connector.
const defaultDLQCapacity = 10_000

// Metrics is a point-in-time snapshot of a Runtime. avg_latency_ms is
// sum/success or 0; p99_latency_ms is reported as the observed maximum
// latency, a known approximation — a real quantile estimator (t-digest,
// HDR histogram) may replace it without changing this contract.
type Metrics struct {
	ConnectorName      string
	RequestsTotal      uint64
	RequestsOK         uint64
	RequestsFail       uint64
	AvgLatencyMs       float64
	P99LatencyMs       float64
	CircuitState       CircuitState
	DLQDepth           int
	RateLimitRemaining int
	LastSuccessAt      time.Time
	LastFailureAt      time.Time
}

// Runtime combines a CircuitBreaker, RetryPolicy, and DeadLetterQueue for a
// single upstream connector, plus the request/latency counters that feed
// Metrics.
type Runtime struct {
	Name    string
	Breaker *CircuitBreaker
	Policy  RetryPolicy
	DLQ     *DeadLetterQueue
	Limiter *RateLimiter

	clock clock.Clock

	requestsTotal atomic.Uint64
	requestsOK    atomic.Uint64
	requestsFail  atomic.Uint64
	latencySumMs  atomic.Uint64
	latencyMaxMs  atomic.Uint64

	mu            sync.Mutex
	lastSuccessAt time.Time
	lastFailureAt time.Time
}

// NewRuntime constructs a Runtime for connector name, with the default
// rate limit and DLQ capacity.
func NewRuntime(name string, breakerConfig BreakerConfig, policy RetryPolicy, c clock.Clock) (*Runtime, error) {
	return NewRuntimeWithLimits(name, breakerConfig, policy, DefaultRateLimitConfig(), defaultDLQCapacity, c)
}

// NewRuntimeWithLimits constructs a Runtime with an explicit rate limit
// and DLQ capacity, for callers wiring config.ConnectorConfig through
// from the control plane's configuration.
func NewRuntimeWithLimits(name string, breakerConfig BreakerConfig, policy RetryPolicy, rateLimit RateLimitConfig, dlqCapacity int, c clock.Clock) (*Runtime, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	breaker, err := NewCircuitBreaker(breakerConfig, c)
	if err != nil {
		return nil, err
	}
	limiter, err := NewRateLimiter(rateLimit, c)
	if err != nil {
		return nil, err
	}
	return &Runtime{
		Name:    name,
		Breaker: breaker,
		Policy:  policy,
		DLQ:     NewDeadLetterQueue(dlqCapacity),
		Limiter: limiter,
		clock:   c,
	}, nil
}

// AllowRequest gates an attempt through the circuit breaker and the
// per-connector rate limiter. Both must allow the call; the breaker is
// checked first since an open breaker is a more actionable signal than a
// momentarily exhausted rate budget.
func (r *Runtime) AllowRequest() bool {
	if !r.Breaker.AllowRequest() {
		return false
	}
	return r.Limiter.Allow()
}

// RecordSuccess updates the breaker, counters, and last_success_at for a
// successful call that took latency to complete.
func (r *Runtime) RecordSuccess(latency time.Duration) {
	r.requestsTotal.Add(1)
	r.requestsOK.Add(1)
	ms := uint64(latency.Milliseconds())
	r.latencySumMs.Add(ms)
	for {
		cur := r.latencyMaxMs.Load()
		if ms <= cur || r.latencyMaxMs.CompareAndSwap(cur, ms) {
			break
		}
	}
	now := r.clock.Now()
	r.mu.Lock()
	r.lastSuccessAt = now
	r.mu.Unlock()
	r.Breaker.RecordSuccess()
}

// RecordFailure updates the breaker and counters for a failed call and
// returns a Transient error classifying it. If attempt has reached the
// policy's max_retries and payload is non-nil, the payload is also pushed
// to the DLQ and the returned error's message notes that retries are
// exhausted; the Kind is still Transient, since the failure itself
// originated upstream rather than in the runtime.
func (r *Runtime) RecordFailure(errMsg string, payload any, attempt uint32) error {
	r.requestsTotal.Add(1)
	r.requestsFail.Add(1)
	now := r.clock.Now()
	r.mu.Lock()
	r.lastFailureAt = now
	r.mu.Unlock()
	r.Breaker.RecordFailure()

	if payload != nil && attempt >= r.Policy.MaxRetries {
		r.DLQ.Enqueue(DeadLetterRecord{
			ID:            uuid.New(),
			ConnectorName: r.Name,
			Payload:       payload,
			Error:         errMsg,
			AttemptCount:  attempt,
			FirstFailedAt: now,
			LastFailedAt:  now,
			Retryable:     true,
		})
		return errs.Transientf("connector %s: %s (retries exhausted after %d attempts, sent to DLQ)", r.Name, errMsg, attempt)
	}
	return errs.Transientf("connector %s: %s (attempt %d of %d)", r.Name, errMsg, attempt, r.Policy.MaxRetries)
}

// BackoffForAttempt delegates to the runtime's retry policy.
func (r *Runtime) BackoffForAttempt(attempt uint32) time.Duration {
	return r.Policy.BackoffForAttempt(attempt)
}

// Metrics returns a snapshot of the runtime's counters and breaker state.
func (r *Runtime) Metrics() Metrics {
	total := r.requestsTotal.Load()
	ok := r.requestsOK.Load()
	fail := r.requestsFail.Load()
	sumMs := r.latencySumMs.Load()
	maxMs := r.latencyMaxMs.Load()

	avg := 0.0
	if ok > 0 {
		avg = float64(sumMs) / float64(ok)
	}

	r.mu.Lock()
	lastSuccess := r.lastSuccessAt
	lastFailure := r.lastFailureAt
	r.mu.Unlock()

	return Metrics{
		ConnectorName:      r.Name,
		RequestsTotal:      total,
		RequestsOK:         ok,
		RequestsFail:       fail,
		AvgLatencyMs:       avg,
		P99LatencyMs:       float64(maxMs),
		CircuitState:       r.Breaker.State(),
		DLQDepth:           r.DLQ.Depth(),
		RateLimitRemaining: r.Limiter.Remaining(),
		LastSuccessAt:      lastSuccess,
		LastFailureAt:      lastFailure,
	}
}
