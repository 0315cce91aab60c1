package connector

import (
	"github.com/campaignexpress/controlplane/internal/clock"
	"github.com/campaignexpress/controlplane/internal/errs"
	"github.com/campaignexpress/controlplane/internal/sharded"
)

// Registry owns one Runtime per upstream connector name, backed by a
// lock-striped table so unrelated connectors never contend on the same
// lock.
type Registry struct {
	clock   clock.Clock
	runtime *sharded.Table[*Runtime]
}

// NewRegistry constructs an empty Registry.
func NewRegistry(c clock.Clock) *Registry {
	return &Registry{clock: c, runtime: sharded.New[*Runtime]()}
}

// Register creates and stores a Runtime for name, using the default rate
// limit. It returns an InvalidState error if name is already registered.
func (r *Registry) Register(name string, breakerConfig BreakerConfig, policy RetryPolicy) (*Runtime, error) {
	rt, err := NewRuntime(name, breakerConfig, policy, r.clock)
	if err != nil {
		return nil, err
	}
	return r.store(name, rt)
}

// RegisterWithLimits creates and stores a Runtime for name with an
// explicit rate limit and DLQ capacity, for callers threading
// config.ConnectorConfig through from the control plane's configuration.
func (r *Registry) RegisterWithLimits(name string, breakerConfig BreakerConfig, policy RetryPolicy, rateLimit RateLimitConfig, dlqCapacity int) (*Runtime, error) {
	rt, err := NewRuntimeWithLimits(name, breakerConfig, policy, rateLimit, dlqCapacity, r.clock)
	if err != nil {
		return nil, err
	}
	return r.store(name, rt)
}

func (r *Registry) store(name string, rt *Runtime) (*Runtime, error) {
	if !r.runtime.SetIfAbsent(name, rt) {
		return nil, errs.InvalidStatef("connector %q already registered", name)
	}
	return rt, nil
}

// Get returns the Runtime for name, if registered.
func (r *Registry) Get(name string) (*Runtime, bool) {
	return r.runtime.Get(name)
}

// AllMetrics returns a metrics snapshot for every registered connector.
func (r *Registry) AllMetrics() map[string]Metrics {
	all := r.runtime.All()
	out := make(map[string]Metrics, len(all))
	for name, rt := range all {
		out[name] = rt.Metrics()
	}
	return out
}

// SeedDemo registers the small demo set of upstream connectors used by the
// composition root to exercise the runtime end to end, using package
// default breaker, retry, and rate-limit settings.
func (r *Registry) SeedDemo() error {
	return r.SeedDemoWithLimits(DefaultBreakerConfig(), DefaultRetryPolicy(), DefaultRateLimitConfig(), defaultDLQCapacity)
}

// SeedDemoWithLimits registers the same demo connector set as SeedDemo,
// but with breaker, retry, rate-limit, and DLQ settings supplied by the
// caller (typically derived from config.ConnectorConfig).
func (r *Registry) SeedDemoWithLimits(breakerConfig BreakerConfig, policy RetryPolicy, rateLimit RateLimitConfig, dlqCapacity int) error {
	names := []string{"salesforce", "adobe", "segment", "tealium", "hightouch"}
	for _, name := range names {
		if _, err := r.RegisterWithLimits(name, breakerConfig, policy, rateLimit, dlqCapacity); err != nil {
			return err
		}
	}
	return nil
}
