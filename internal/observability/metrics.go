// Package observability — metrics.go
//
// Prometheus metrics for the control plane.
//
// Endpoint: GET /metrics on 127.0.0.1:9091 (configurable).
// Format: Prometheus text exposition format (OpenMetrics compatible).
//
// Metric naming convention: controlplane_<subsystem>_<name>_<unit>
//
// All metrics are registered on a dedicated prometheus.Registry (not the
// default global registry) so a second *Metrics in the same process (e.g.
// in a test) never collides with the first.
package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metric descriptors for the control plane's
// engines.
type Metrics struct {
	registry *prometheus.Registry

	// ─── Connector Runtime ──────────────────────────────────────────────────

	// ConnectorRequestsTotal counts requests attempted through a connector
	// runtime. Labels: connector, outcome (success, failure).
	ConnectorRequestsTotal *prometheus.CounterVec

	// ConnectorCircuitState reports the current breaker state as a gauge
	// (0=closed, 1=open, 2=half_open). Labels: connector.
	ConnectorCircuitState *prometheus.GaugeVec

	// ConnectorLatencyHistogram records observed call latency.
	// Labels: connector.
	ConnectorLatencyHistogram *prometheus.HistogramVec

	// ConnectorDLQDepth is the current dead-letter queue depth.
	// Labels: connector.
	ConnectorDLQDepth *prometheus.GaugeVec

	// ConnectorRateLimitRemaining is the current rate-limit token budget
	// remaining. Labels: connector.
	ConnectorRateLimitRemaining *prometheus.GaugeVec

	// ─── SLO / Incident Engine ──────────────────────────────────────────────

	// SLOErrorBudgetRemainingPct is the current error-budget remaining, as
	// a percentage. Labels: service.
	SLOErrorBudgetRemainingPct *prometheus.GaugeVec

	// SLOAnomaliesDetectedTotal counts anomalies emitted by detect().
	// Labels: type (spike, drop, trend_toward_limit, variance_shift,
	// burn_rate_alert, correlated_failure), severity.
	SLOAnomaliesDetectedTotal *prometheus.CounterVec

	// SLOBurnRateAlertsTotal counts burn-rate alerts raised.
	// Labels: service, window (1h, 6h, 24h).
	SLOBurnRateAlertsTotal *prometheus.CounterVec

	// ─── Decision Engine ─────────────────────────────────────────────────────

	// DecisionsTotal counts Decide calls. Labels: simulate (true, false).
	DecisionsTotal *prometheus.CounterVec

	// DecisionLatencyHistogram records Decide call latency.
	DecisionLatencyHistogram prometheus.Histogram

	// DecisionOffersReturnedHistogram records how many ranked offers a
	// Decide call returned.
	DecisionOffersReturnedHistogram prometheus.Histogram

	// ─── Audit Log ───────────────────────────────────────────────────────────

	// AuditEventsLoggedTotal counts hash-chained events appended.
	AuditEventsLoggedTotal prometheus.Counter

	// AuditChainTamperedTotal counts sequences VerifyChain has ever flagged
	// as tampered, across every call since process start.
	AuditChainTamperedTotal prometheus.Counter

	// AuditRouteDeniedTotal counts RBAC denials. Labels: route.
	AuditRouteDeniedTotal *prometheus.CounterVec

	// ─── Tenant / Quota ──────────────────────────────────────────────────────

	// TenantsActive is the current count of tenants by status.
	// Labels: status (active, suspended, trial, cancelled).
	TenantsActive *prometheus.GaugeVec

	// TenantQuotaExceededTotal counts CheckQuota calls that returned false.
	// Labels: resource (campaigns, offers, api_calls, users).
	TenantQuotaExceededTotal *prometheus.CounterVec

	// ─── Process ─────────────────────────────────────────────────────────────

	// UptimeSeconds is the number of seconds since the process started.
	UptimeSeconds prometheus.Gauge

	startTime time.Time
}

// NewMetrics creates and registers every control-plane Prometheus metric on
// a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),

		ConnectorRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "controlplane",
			Subsystem: "connector",
			Name:      "requests_total",
			Help:      "Total requests attempted through a connector runtime, by outcome.",
		}, []string{"connector", "outcome"}),

		ConnectorCircuitState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "controlplane",
			Subsystem: "connector",
			Name:      "circuit_state",
			Help:      "Current breaker state per connector (0=closed, 1=open, 2=half_open).",
		}, []string{"connector"}),

		ConnectorLatencyHistogram: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "controlplane",
			Subsystem: "connector",
			Name:      "latency_ms",
			Help:      "Observed connector call latency in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"connector"}),

		ConnectorDLQDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "controlplane",
			Subsystem: "connector",
			Name:      "dlq_depth",
			Help:      "Current dead-letter queue depth per connector.",
		}, []string{"connector"}),

		ConnectorRateLimitRemaining: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "controlplane",
			Subsystem: "connector",
			Name:      "rate_limit_remaining",
			Help:      "Current rate-limit token budget remaining per connector.",
		}, []string{"connector"}),

		SLOErrorBudgetRemainingPct: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "controlplane",
			Subsystem: "slo",
			Name:      "error_budget_remaining_pct",
			Help:      "Current error budget remaining, as a percentage, per service.",
		}, []string{"service"}),

		SLOAnomaliesDetectedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "controlplane",
			Subsystem: "slo",
			Name:      "anomalies_detected_total",
			Help:      "Total anomalies emitted by detect(), by type and severity.",
		}, []string{"type", "severity"}),

		SLOBurnRateAlertsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "controlplane",
			Subsystem: "slo",
			Name:      "burn_rate_alerts_total",
			Help:      "Total burn-rate alerts raised, by service and window.",
		}, []string{"service", "window"}),

		DecisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "controlplane",
			Subsystem: "decision",
			Name:      "decisions_total",
			Help:      "Total Decide calls, by whether they ran in simulation mode.",
		}, []string{"simulate"}),

		DecisionLatencyHistogram: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "controlplane",
			Subsystem: "decision",
			Name:      "latency_ms",
			Help:      "Decide call latency in milliseconds.",
			Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 250},
		}),

		DecisionOffersReturnedHistogram: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "controlplane",
			Subsystem: "decision",
			Name:      "offers_returned",
			Help:      "Number of ranked offers returned per Decide call.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13},
		}),

		AuditEventsLoggedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "controlplane",
			Subsystem: "audit",
			Name:      "events_logged_total",
			Help:      "Total hash-chained audit events appended.",
		}),

		AuditChainTamperedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "controlplane",
			Subsystem: "audit",
			Name:      "chain_tampered_total",
			Help:      "Total sequences flagged as tampered by any VerifyChain call.",
		}),

		AuditRouteDeniedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "controlplane",
			Subsystem: "audit",
			Name:      "route_denied_total",
			Help:      "Total RBAC denials, by route.",
		}, []string{"route"}),

		TenantsActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "controlplane",
			Subsystem: "tenant",
			Name:      "tenants",
			Help:      "Current tenant count, by status.",
		}, []string{"status"}),

		TenantQuotaExceededTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "controlplane",
			Subsystem: "tenant",
			Name:      "quota_exceeded_total",
			Help:      "Total CheckQuota calls that returned false, by resource.",
		}, []string{"resource"}),

		UptimeSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "controlplane",
			Subsystem: "process",
			Name:      "uptime_seconds",
			Help:      "Number of seconds since the process started.",
		}),
	}

	reg.MustRegister(
		m.ConnectorRequestsTotal,
		m.ConnectorCircuitState,
		m.ConnectorLatencyHistogram,
		m.ConnectorDLQDepth,
		m.ConnectorRateLimitRemaining,
		m.SLOErrorBudgetRemainingPct,
		m.SLOAnomaliesDetectedTotal,
		m.SLOBurnRateAlertsTotal,
		m.DecisionsTotal,
		m.DecisionLatencyHistogram,
		m.DecisionOffersReturnedHistogram,
		m.AuditEventsLoggedTotal,
		m.AuditChainTamperedTotal,
		m.AuditRouteDeniedTotal,
		m.TenantsActive,
		m.TenantQuotaExceededTotal,
		m.UptimeSeconds,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)

	return m
}

// ServeMetrics starts the Prometheus HTTP metrics server on the given
// address. Blocks until ctx is cancelled or the server fails. Serves
// GET /metrics and GET /healthz.
func (m *Metrics) ServeMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go m.updateUptime(ctx)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("metrics server on %s: %w", addr, err)
	}
	return nil
}

// updateUptime periodically updates the UptimeSeconds gauge.
func (m *Metrics) updateUptime(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.UptimeSeconds.Set(time.Since(m.startTime).Seconds())
		case <-ctx.Done():
			return
		}
	}
}
