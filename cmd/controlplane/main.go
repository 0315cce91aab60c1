// Package main — cmd/controlplane/main.go
//
// Control plane entrypoint.
//
// Startup sequence:
//  1. Load and validate config from ./config.yaml (or -config).
//  2. Initialise structured logger (zap).
//  3. Construct every engine in dependency order: Shared Primitives →
//     Tenant/Quota → Audit Log → Connector Runtime → SLO/Incident Engine →
//     Decision Engine. The connector registry is seeded with the demo
//     connector set here.
//  4. Open the snapshot store, if enabled.
//  5. Start the Prometheus metrics server.
//  6. Seed demo tenants and start the metrics report loop.
//  7. Block on SIGINT/SIGTERM for graceful shutdown.
//
// Shutdown sequence (on SIGINT/SIGTERM):
//  1. Cancel the root context (stops the metrics server).
//  2. Close the snapshot store, if open.
//  3. Flush the logger.
//  4. Exit 0.
//
// On config validation failure: exit 1 immediately.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/campaignexpress/controlplane/internal/audit"
	"github.com/campaignexpress/controlplane/internal/clock"
	"github.com/campaignexpress/controlplane/internal/config"
	"github.com/campaignexpress/controlplane/internal/connector"
	"github.com/campaignexpress/controlplane/internal/decision"
	"github.com/campaignexpress/controlplane/internal/observability"
	"github.com/campaignexpress/controlplane/internal/slo"
	"github.com/campaignexpress/controlplane/internal/snapshotstore"
	"github.com/campaignexpress/controlplane/internal/tenant"
)

func main() {
	configPath := flag.String("config", "./config.yaml", "Path to config.yaml")
	version := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *version {
		fmt.Printf("controlplane %s (commit=%s built=%s)\n",
			config.Version, config.GitCommit, config.BuildTime)
		os.Exit(0)
	}

	// ── Step 1: Load config ───────────────────────────────────────────────────
	cfg, err := loadConfigOrDefaults(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: config load failed: %v\n", err)
		os.Exit(1)
	}

	// ── Step 2: Initialise logger ─────────────────────────────────────────────
	log, err := buildLogger(cfg.Observability.LogLevel, cfg.Observability.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync() //nolint:errcheck

	log.Info("control plane starting",
		zap.String("version", config.Version),
		zap.String("commit", config.GitCommit),
		zap.String("built", config.BuildTime),
		zap.String("node_id", cfg.NodeID),
		zap.String("config", *configPath),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sysClock := clock.System{}

	// ── Step 3: Construct engines in dependency order ────────────────────────
	// Shared Primitives (sysClock, internal/sharded) have no construction
	// step of their own; they're passed to every engine below.

	tenants := tenant.NewStore(sysClock)
	log.Info("tenant store constructed")

	auditLog := audit.NewLog(sysClock, log)
	routeGate := audit.NewRouteGate()
	log.Info("audit log constructed")

	connectors := connector.NewRegistry(sysClock)
	if err := connectors.SeedDemoWithLimits(
		connector.BreakerConfig{
			FailureThreshold:  cfg.Connector.FailureThreshold,
			OpenDuration:      cfg.Connector.OpenDuration,
			HalfOpenSuccesses: cfg.Connector.HalfOpenSuccesses,
		},
		connector.RetryPolicy{
			MaxRetries:        cfg.Connector.MaxRetries,
			InitialBackoff:    cfg.Connector.InitialBackoff,
			MaxBackoff:        cfg.Connector.MaxBackoff,
			BackoffMultiplier: cfg.Connector.BackoffMultiplier,
			Jitter:            cfg.Connector.Jitter,
		},
		connector.RateLimitConfig{
			Capacity:     cfg.Connector.RateLimitCapacity,
			RefillPeriod: cfg.Connector.RateLimitRefillPeriod,
		},
		cfg.Connector.DLQCapacity,
	); err != nil {
		log.Fatal("connector registry seed failed", zap.Error(err))
	}
	log.Info("connector registry constructed", zap.Int("connectors", len(connectors.AllMetrics())))

	sloTracker := slo.NewTracker(sysClock)
	sloDetector := slo.NewDetector(sysClock, sloTracker)
	sloTracker.RegisterTarget(slo.SloDefinition{
		Name:             "decision-api",
		TargetPct:        cfg.SLO.TargetPct,
		WindowDays:       cfg.SLO.WindowDays,
		BurnThreshold1h:  cfg.SLO.BurnThreshold1h,
		BurnThreshold6h:  cfg.SLO.BurnThreshold6h,
		BurnThreshold24h: cfg.SLO.BurnThreshold24h,
	})
	sloDetector.SetTrendProximityPct(cfg.SLO.TrendProximityPct)
	sloDetector.SetVarianceShiftRatio(cfg.SLO.VarianceShiftRatio)
	log.Info("SLO tracker and detector constructed")

	explorer := decision.DefaultExplorer{Scale: cfg.Decision.ExplorationScale}
	decisionEngine := decision.NewEngine(sysClock, explorer)
	log.Info("decision engine constructed")

	// ── Step 4: Optional snapshot store ──────────────────────────────────────
	var snapStore *snapshotstore.DB
	if cfg.Snapshot.Enabled {
		snapStore, err = snapshotstore.Open(cfg.Snapshot.DBPath)
		if err != nil {
			log.Fatal("snapshot store open failed", zap.Error(err), zap.String("path", cfg.Snapshot.DBPath))
		}
		defer snapStore.Close() //nolint:errcheck
		log.Info("snapshot store opened", zap.String("path", cfg.Snapshot.DBPath))
	} else {
		log.Info("snapshot store disabled (pure in-memory)")
	}

	// ── Step 5: Prometheus metrics ────────────────────────────────────────────
	metrics := observability.NewMetrics()
	go func() {
		if err := metrics.ServeMetrics(ctx, cfg.Observability.MetricsAddr); err != nil {
			log.Error("metrics server error", zap.Error(err))
		}
	}()
	log.Info("metrics server started", zap.String("addr", cfg.Observability.MetricsAddr))

	// ── Step 6: Seed demo data ────────────────────────────────────────────────
	tenants.SeedDemo()
	log.Info("demo tenants seeded", zap.Int("tenants", len(tenants.ListTenants())))

	// routeGate, decisionEngine, and sloDetector are driven by request
	// traffic and metric observations arriving through an HTTP router and
	// upstream connector calls that this binary does not itself build.
	// reportLoop is the one caller in this binary that reads every
	// engine's value-typed summary and feeds it to the metrics registry.
	go reportLoop(ctx, tenants, connectors, sloTracker, auditLog, metrics, log)
	_ = routeGate
	_ = decisionEngine

	// ── Step 7: Block on shutdown signal ─────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info("shutdown signal received", zap.String("signal", sig.String()))

	cancel()
	log.Info("control plane shutdown complete")
}

// reportLoop periodically reads each engine's value-typed summary and
// feeds it into the metrics registry, until ctx is cancelled.
func reportLoop(
	ctx context.Context,
	tenants *tenant.Store,
	connectors *connector.Registry,
	sloTracker *slo.Tracker,
	auditLog *audit.Log,
	metrics *observability.Metrics,
	log *zap.Logger,
) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	report := func() {
		byStatus := map[tenant.Status]int{}
		for _, t := range tenants.ListTenants() {
			byStatus[t.Status]++
		}
		for status, count := range byStatus {
			metrics.TenantsActive.WithLabelValues(string(status)).Set(float64(count))
		}

		for name, m := range connectors.AllMetrics() {
			metrics.ConnectorCircuitState.WithLabelValues(name).Set(float64(m.CircuitState))
			metrics.ConnectorDLQDepth.WithLabelValues(name).Set(float64(m.DLQDepth))
			metrics.ConnectorRateLimitRemaining.WithLabelValues(name).Set(float64(m.RateLimitRemaining))
		}

		for _, def := range sloTracker.Definitions() {
			if budget, ok := sloTracker.ErrorBudget(def.Name); ok {
				metrics.SLOErrorBudgetRemainingPct.WithLabelValues(def.Name).Set(100 - budget.ConsumedPct)
			}
		}

		if v := auditLog.VerifyChain(); !v.ChainIntact {
			log.Error("audit chain integrity check failed", zap.Error(v.Err()),
				zap.Int("total", v.Total), zap.Int("valid", v.Valid), zap.Int("tampered", len(v.Tampered)))
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report()
		}
	}
}

// loadConfigOrDefaults loads path if it exists, otherwise falls back to
// Defaults() — the composition root is runnable with zero configuration.
func loadConfigOrDefaults(path string) (*config.Config, error) {
	if _, err := os.Stat(path); err != nil {
		cfg := config.Defaults()
		return &cfg, nil
	}
	return config.Load(path)
}

// buildLogger constructs a zap.Logger with the given level and format.
func buildLogger(level, format string) (*zap.Logger, error) {
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	var cfg zap.Config
	if format == "console" {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)

	return cfg.Build()
}
