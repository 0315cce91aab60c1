// Package config provides configuration loading, validation, and defaults
// for the control plane.
//
// Configuration file: ./config.yaml (default), overridable via the
// -config flag on cmd/controlplane.
// Schema version: 1
//
// Validation:
//   - All required fields must be present.
//   - Numeric ranges enforced (e.g., weights >= 0, thresholds ordered).
//   - Invalid config on startup: the process refuses to start.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/campaignexpress/controlplane/internal/tenant"
)

// Version, GitCommit, BuildTime are injected by the Makefile via -ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// Config is the root configuration structure for the control plane.
// All fields have defaults; see Defaults() for values.
type Config struct {
	// SchemaVersion must be "1". Future versions will trigger migration.
	SchemaVersion string `yaml:"schema_version"`

	// NodeID is a unique identifier for this control-plane process. Used
	// in logging fields (audit event IDs are random UUIDs and do not
	// include it). Default: hostname.
	NodeID string `yaml:"node_id"`

	// Connector configures the Connector Runtime's default breaker and
	// retry policy, applied to every connector registered without an
	// explicit override.
	Connector ConnectorConfig `yaml:"connector"`

	// SLO configures the SLO/Incident Engine's tracked services and
	// anomaly detection thresholds.
	SLO SLOConfig `yaml:"slo"`

	// Tenant holds a pricing-tier override table. It is checked by
	// Validate but not applied: tenant settings always come from the
	// built-in tier table.
	Tenant TenantConfig `yaml:"tenant"`

	// Decision configures the Decision Engine's exploration term.
	Decision DecisionConfig `yaml:"decision"`

	// Observability configures metrics and logging.
	Observability ObservabilityConfig `yaml:"observability"`

	// Snapshot configures the optional bbolt-backed snapshot store.
	Snapshot SnapshotConfig `yaml:"snapshot"`
}

// ConnectorConfig holds the default breaker and retry policy applied to
// every registered connector.
type ConnectorConfig struct {
	// FailureThreshold is the number of consecutive Closed-state failures
	// before a breaker opens. Must be >= 1. Default: 5.
	FailureThreshold uint64 `yaml:"failure_threshold"`

	// OpenDuration is how long a breaker stays Open before transitioning
	// to HalfOpen. Default: 30s.
	OpenDuration time.Duration `yaml:"open_duration"`

	// HalfOpenSuccesses is the number of consecutive HalfOpen successes
	// required to close a breaker. Must be >= 1. Default: 3.
	HalfOpenSuccesses uint64 `yaml:"half_open_successes"`

	// MaxRetries is the maximum retry attempts per call. Default: 3.
	MaxRetries uint32 `yaml:"max_retries"`

	// InitialBackoff is the first retry's backoff duration. Default: 100ms.
	InitialBackoff time.Duration `yaml:"initial_backoff"`

	// MaxBackoff caps the exponential backoff growth. Default: 30s.
	MaxBackoff time.Duration `yaml:"max_backoff"`

	// BackoffMultiplier must be > 1. Default: 2.0.
	BackoffMultiplier float64 `yaml:"backoff_multiplier"`

	// Jitter enables deterministic jitter on each backoff. Default: true.
	Jitter bool `yaml:"jitter"`

	// DLQCapacity is the bounded dead-letter queue size per connector.
	// Default: 10000.
	DLQCapacity int `yaml:"dlq_capacity"`

	// RateLimitCapacity is the token bucket capacity applied per connector,
	// gating outbound call volume independently of the circuit breaker's
	// failure-based gating. Default: 50.
	RateLimitCapacity int `yaml:"rate_limit_capacity"`

	// RateLimitRefillPeriod is how often the bucket refills to full
	// capacity. Default: 1s.
	RateLimitRefillPeriod time.Duration `yaml:"rate_limit_refill_period"`
}

// SLOConfig holds the default SLO target and anomaly detection tuning
// shared by every tracked service.
type SLOConfig struct {
	// TargetPct is the default uptime target (e.g. 99.9). Default: 99.9.
	TargetPct float64 `yaml:"target_pct"`

	// WindowDays is the rolling uptime window. Default: 30.
	WindowDays int `yaml:"window_days"`

	// BurnThreshold1h, BurnThreshold6h, BurnThreshold24h are the
	// multi-window burn-rate alert thresholds. Defaults: 14.4, 6.0, 3.0.
	BurnThreshold1h  float64 `yaml:"burn_threshold_1h"`
	BurnThreshold6h  float64 `yaml:"burn_threshold_6h"`
	BurnThreshold24h float64 `yaml:"burn_threshold_24h"`

	// TrendProximityPct is how close (as a percentage of distance to a
	// registered soft ceiling) a monotonic run must get before
	// TrendTowardLimit fires. Default: 10.0.
	TrendProximityPct float64 `yaml:"trend_proximity_pct"`

	// VarianceShiftRatio is the short-window/long-window std_dev ratio
	// that triggers a VarianceShift anomaly. Default: 2.0.
	VarianceShiftRatio float64 `yaml:"variance_shift_ratio"`
}

// TenantConfig holds a pricing-tier override table. Validate checks it
// for completeness, but neither cmd/controlplane nor tenant.Store reads
// it: tenant settings are always derived from the built-in tier table
// (internal/tenant.TierLimits).
type TenantConfig struct {
	// TierOverrides, if non-empty, must provide an entry for every tier
	// in internal/tenant (free, starter, professional,
	// enterprise_custom) — a partial override table is rejected by
	// Validate, since an unlisted tier would silently fall back to the
	// built-in defaults while its siblings were customized.
	TierOverrides map[tenant.Tier]tenant.Settings `yaml:"tier_overrides"`
}

// DecisionConfig holds Decision Engine tuning.
type DecisionConfig struct {
	// ExplorationScale scales the injected epsilon term added to each
	// offer's blended score. Default: 0.01.
	ExplorationScale float64 `yaml:"exploration_scale"`
}

// ObservabilityConfig holds metrics and logging parameters.
type ObservabilityConfig struct {
	// MetricsAddr is the Prometheus metrics HTTP bind address.
	// Default: 127.0.0.1:9091.
	MetricsAddr string `yaml:"metrics_addr"`

	// LogLevel controls the minimum log level (debug, info, warn, error).
	// Default: info.
	LogLevel string `yaml:"log_level"`

	// LogFormat controls the log output format (json, console).
	// Default: json.
	LogFormat string `yaml:"log_format"`
}

// SnapshotConfig holds the optional bbolt-backed snapshot store settings.
type SnapshotConfig struct {
	// Enabled controls whether cmd/controlplane opens a snapshot store at
	// startup. Default: false (pure in-memory).
	Enabled bool `yaml:"enabled"`

	// DBPath is the bbolt database file path. Default: ./controlplane.db.
	DBPath string `yaml:"db_path"`
}

// Defaults returns a Config populated with all default values.
func Defaults() Config {
	hostname, _ := os.Hostname()
	return Config{
		SchemaVersion: "1",
		NodeID:        hostname,
		Connector: ConnectorConfig{
			FailureThreshold:  5,
			OpenDuration:      30 * time.Second,
			HalfOpenSuccesses: 3,
			MaxRetries:        3,
			InitialBackoff:    100 * time.Millisecond,
			MaxBackoff:        30 * time.Second,
			BackoffMultiplier: 2.0,
			Jitter:                true,
			DLQCapacity:           10_000,
			RateLimitCapacity:     50,
			RateLimitRefillPeriod: time.Second,
		},
		SLO: SLOConfig{
			TargetPct:          99.9,
			WindowDays:         30,
			BurnThreshold1h:    14.4,
			BurnThreshold6h:    6.0,
			BurnThreshold24h:   3.0,
			TrendProximityPct:  10.0,
			VarianceShiftRatio: 2.0,
		},
		Tenant: TenantConfig{
			TierOverrides: nil,
		},
		Decision: DecisionConfig{
			ExplorationScale: 0.01,
		},
		Observability: ObservabilityConfig{
			MetricsAddr: "127.0.0.1:9091",
			LogLevel:    "info",
			LogFormat:   "json",
		},
		Snapshot: SnapshotConfig{
			Enabled: false,
			DBPath:  "./controlplane.db",
		},
	}
}

// Load reads and validates a config file from the given path.
// Returns the merged config (defaults overridden by file values).
// Returns an error if the file cannot be read, parsed, or validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse %q: %w", path, err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("config.Load: validation failed: %w", err)
	}

	return &cfg, nil
}

// allTiers is the complete set of pricing tiers a partial TierOverrides
// table is checked against.
var allTiers = []tenant.Tier{tenant.Free, tenant.Starter, tenant.Professional, tenant.EnterpriseCustom}

// Validate checks all config fields for correctness.
// Returns a descriptive error listing all violations found.
func Validate(cfg *Config) error {
	var errs []string

	if cfg.SchemaVersion != "1" {
		errs = append(errs, fmt.Sprintf("schema_version must be \"1\", got %q", cfg.SchemaVersion))
	}
	if cfg.NodeID == "" {
		errs = append(errs, "node_id must not be empty")
	}

	if cfg.Connector.FailureThreshold < 1 {
		errs = append(errs, fmt.Sprintf("connector.failure_threshold must be >= 1, got %d", cfg.Connector.FailureThreshold))
	}
	if cfg.Connector.HalfOpenSuccesses < 1 {
		errs = append(errs, fmt.Sprintf("connector.half_open_successes must be >= 1, got %d", cfg.Connector.HalfOpenSuccesses))
	}
	if cfg.Connector.BackoffMultiplier <= 1 {
		errs = append(errs, fmt.Sprintf("connector.backoff_multiplier must be > 1, got %v", cfg.Connector.BackoffMultiplier))
	}
	if cfg.Connector.InitialBackoff <= 0 {
		errs = append(errs, fmt.Sprintf("connector.initial_backoff must be > 0, got %s", cfg.Connector.InitialBackoff))
	}
	if cfg.Connector.MaxBackoff < cfg.Connector.InitialBackoff {
		errs = append(errs, "connector.max_backoff must be >= connector.initial_backoff")
	}
	if cfg.Connector.DLQCapacity < 1 {
		errs = append(errs, fmt.Sprintf("connector.dlq_capacity must be >= 1, got %d", cfg.Connector.DLQCapacity))
	}
	if cfg.Connector.RateLimitCapacity < 1 {
		errs = append(errs, fmt.Sprintf("connector.rate_limit_capacity must be >= 1, got %d", cfg.Connector.RateLimitCapacity))
	}
	if cfg.Connector.RateLimitRefillPeriod <= 0 {
		errs = append(errs, fmt.Sprintf("connector.rate_limit_refill_period must be > 0, got %s", cfg.Connector.RateLimitRefillPeriod))
	}

	if cfg.SLO.TargetPct <= 0 || cfg.SLO.TargetPct > 100 {
		errs = append(errs, fmt.Sprintf("slo.target_pct must be in (0, 100], got %f", cfg.SLO.TargetPct))
	}
	if cfg.SLO.WindowDays < 1 {
		errs = append(errs, fmt.Sprintf("slo.window_days must be >= 1, got %d", cfg.SLO.WindowDays))
	}
	if cfg.SLO.TrendProximityPct <= 0 || cfg.SLO.TrendProximityPct > 100 {
		errs = append(errs, fmt.Sprintf("slo.trend_proximity_pct must be in (0, 100], got %f", cfg.SLO.TrendProximityPct))
	}
	if cfg.SLO.VarianceShiftRatio <= 1 {
		errs = append(errs, fmt.Sprintf("slo.variance_shift_ratio must be > 1, got %f", cfg.SLO.VarianceShiftRatio))
	}

	if len(cfg.Tenant.TierOverrides) > 0 {
		for _, tier := range allTiers {
			if _, ok := cfg.Tenant.TierOverrides[tier]; !ok {
				errs = append(errs, fmt.Sprintf("tenant.tier_overrides is set but missing an entry for tier %q: a partial override table is rejected", tier))
			}
		}
	}

	if cfg.Decision.ExplorationScale < 0 {
		errs = append(errs, fmt.Sprintf("decision.exploration_scale must be >= 0, got %f", cfg.Decision.ExplorationScale))
	}

	if cfg.Observability.MetricsAddr == "" {
		errs = append(errs, "observability.metrics_addr must not be empty")
	}
	switch cfg.Observability.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("observability.log_level must be one of debug/info/warn/error, got %q", cfg.Observability.LogLevel))
	}
	switch cfg.Observability.LogFormat {
	case "json", "console":
	default:
		errs = append(errs, fmt.Sprintf("observability.log_format must be json or console, got %q", cfg.Observability.LogFormat))
	}

	if cfg.Snapshot.Enabled && cfg.Snapshot.DBPath == "" {
		errs = append(errs, "snapshot.db_path must not be empty when snapshot.enabled is true")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", joinStrings(errs, "\n  - "))
	}
	return nil
}

// joinStrings joins a slice of strings with a separator.
func joinStrings(ss []string, sep string) string {
	if len(ss) == 0 {
		return ""
	}
	result := ss[0]
	for _, s := range ss[1:] {
		result += sep + s
	}
	return result
}
