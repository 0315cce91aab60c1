package slo

import (
	"testing"
	"time"

	"github.com/campaignexpress/controlplane/internal/clock"
)

// TestRollingUptimeAndBudget checks that 99 healthy + 1 unhealthy samples
// yields uptime ~= 99.0%, and a nonzero, non-exhausted error budget at a
// 99.9% target.
func TestRollingUptimeAndBudget(t *testing.T) {
	fake := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	tracker := NewTracker(fake)
	tracker.RegisterTarget(DefaultSloDefinition("api-gateway", 99.9, 30))

	for i := 0; i < 99; i++ {
		tracker.RecordUptime("api-gateway", true)
	}
	tracker.RecordUptime("api-gateway", false)

	uptime := tracker.Uptime("api-gateway", 30)
	if diff := uptime - 99.0; diff < -0.1 || diff > 0.1 {
		t.Fatalf("uptime = %.4f, want ~99.0", uptime)
	}

	budget, ok := tracker.ErrorBudget("api-gateway")
	if !ok {
		t.Fatalf("expected a registered error budget")
	}
	if budget.ConsumedMinutes <= 0 {
		t.Fatalf("consumed_minutes = %v, want > 0", budget.ConsumedMinutes)
	}
	if budget.ConsumedMinutes >= budget.BudgetMinutes {
		t.Fatalf("consumed_minutes (%v) should be < budget_minutes (%v) for 99.9%% target",
			budget.ConsumedMinutes, budget.BudgetMinutes)
	}
	if budget.Exhausted {
		t.Fatalf("budget should not be exhausted")
	}
}

func TestUptimeWithNoSamplesIs100(t *testing.T) {
	tracker := NewTracker(clock.System{})
	if got := tracker.Uptime("unseen-service", 30); got != 100.0 {
		t.Fatalf("uptime for unseen service = %v, want 100", got)
	}
}

func TestDetectMetricAnomaly(t *testing.T) {
	fake := clock.NewFake(time.Unix(0, 0))
	tracker := NewTracker(fake)
	d := NewDetector(fake, tracker)

	for i := 0; i < 50; i++ {
		d.RecordMetric("api_latency", 3.0)
	}
	// std_dev is 0 for a constant stream, so inject a little spread first.
	for _, v := range []float64{2.8, 3.2, 2.9, 3.1, 3.0, 2.95, 3.05, 2.97, 3.03, 3.0} {
		d.RecordMetric("api_latency", v)
	}

	if _, ok := d.CheckMetric("api_latency", 3.0); ok {
		t.Fatalf("a value near the mean should not be anomalous")
	}

	anomaly, ok := d.CheckMetric("api_latency", 500.0)
	if !ok {
		t.Fatalf("expected an anomaly for a wildly out-of-range value")
	}
	if anomaly.Type != Spike {
		t.Fatalf("anomaly type = %v, want Spike", anomaly.Type)
	}
}

func TestDetectCorrelatedFailure(t *testing.T) {
	fake := clock.NewFake(time.Unix(0, 0))
	tracker := NewTracker(fake)
	d := NewDetector(fake, tracker)

	report := d.Detect(DetectionInput{
		ComponentHealth: map[string]bool{
			"cache": false,
			"nats":  false,
			"api":   true,
		},
	})

	found := false
	for _, a := range report.Anomalies {
		if a.Type == CorrelatedFailure {
			found = true
			if a.Severity != Emergency {
				t.Fatalf("correlated failure severity = %v, want Emergency", a.Severity)
			}
		}
	}
	if !found {
		t.Fatalf("expected a CorrelatedFailure anomaly for 2 unhealthy components")
	}
	if report.HighestSeverity != Emergency {
		t.Fatalf("highest_severity = %v, want Emergency", report.HighestSeverity)
	}
}

func TestCheckTrendTowardLimit(t *testing.T) {
	fake := clock.NewFake(time.Unix(0, 0))
	tracker := NewTracker(fake)
	d := NewDetector(fake, tracker)
	d.RegisterSoftCeiling("queue_depth", 100.0)

	for _, v := range []float64{80, 85, 90, 93, 96} {
		d.RecordMetric("queue_depth", v)
	}

	anomaly, ok := d.CheckTrend("queue_depth")
	if !ok {
		t.Fatalf("expected a TrendTowardLimit anomaly for a monotonic run approaching the ceiling")
	}
	if anomaly.Type != TrendTowardLimit {
		t.Fatalf("anomaly type = %v, want TrendTowardLimit", anomaly.Type)
	}
	if anomaly.DeviationPct > defaultTrendProximityPct {
		t.Fatalf("deviation_pct = %.2f, want <= %.2f", anomaly.DeviationPct, defaultTrendProximityPct)
	}
}

func TestCheckTrendNotMonotonicIsNoAnomaly(t *testing.T) {
	fake := clock.NewFake(time.Unix(0, 0))
	tracker := NewTracker(fake)
	d := NewDetector(fake, tracker)
	d.RegisterSoftCeiling("queue_depth", 100.0)

	for _, v := range []float64{80, 95, 85, 97, 91} {
		d.RecordMetric("queue_depth", v)
	}

	if _, ok := d.CheckTrend("queue_depth"); ok {
		t.Fatalf("a non-monotonic run should not trigger TrendTowardLimit")
	}
}

func TestCheckVarianceShift(t *testing.T) {
	fake := clock.NewFake(time.Unix(0, 0))
	tracker := NewTracker(fake)
	d := NewDetector(fake, tracker)

	for i := 0; i < 30; i++ {
		v := 10.0
		if i%2 == 0 {
			v = 10.2
		} else {
			v = 9.8
		}
		d.RecordMetric("checkout_latency_ms", v)
	}
	for _, v := range []float64{4.0, 16.0, 2.0, 18.0, 5.0} {
		d.RecordMetric("checkout_latency_ms", v)
	}

	anomaly, ok := d.CheckVarianceShift("checkout_latency_ms")
	if !ok {
		t.Fatalf("expected a VarianceShift anomaly when recent volatility dwarfs the long-window baseline")
	}
	if anomaly.Type != VarianceShift {
		t.Fatalf("anomaly type = %v, want VarianceShift", anomaly.Type)
	}
}

func TestDetectSlosAtRisk(t *testing.T) {
	fake := clock.NewFake(time.Unix(0, 0))
	tracker := NewTracker(fake)
	tracker.RegisterTarget(DefaultSloDefinition("flaky-service", 99.9, 1))
	d := NewDetector(fake, tracker)

	// Fifty samples, half of them failing, exhaust the budget for a tight SLO.
	for i := 0; i < 50; i++ {
		tracker.RecordUptime("flaky-service", i%2 == 0)
	}

	report := d.Detect(DetectionInput{})
	if report.SlosAtRisk == 0 {
		t.Fatalf("expected at least one at-risk SLO for a heavily degraded service")
	}
}
