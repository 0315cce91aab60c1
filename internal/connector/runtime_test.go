package connector

import (
	"testing"
	"time"

	"github.com/campaignexpress/controlplane/internal/clock"
	"github.com/campaignexpress/controlplane/internal/errs"
)

func TestRuntimeMetricsAverageLatency(t *testing.T) {
	rt, err := NewRuntime("demo", DefaultBreakerConfig(), DefaultRetryPolicy(), clock.System{})
	if err != nil {
		t.Fatalf("NewRuntime: %v", err)
	}
	rt.RecordSuccess(10 * time.Millisecond)
	rt.RecordSuccess(20 * time.Millisecond)
	rt.RecordFailure("boom", nil, 0)

	m := rt.Metrics()
	if m.RequestsTotal != 3 {
		t.Fatalf("requests_total = %d, want 3", m.RequestsTotal)
	}
	if m.RequestsOK != 2 {
		t.Fatalf("requests_success = %d, want 2", m.RequestsOK)
	}
	if m.RequestsFail != 1 {
		t.Fatalf("requests_failed = %d, want 1", m.RequestsFail)
	}
	if m.AvgLatencyMs != 15.0 {
		t.Fatalf("avg_latency_ms = %v, want 15.0", m.AvgLatencyMs)
	}
	if m.P99LatencyMs != 20.0 {
		t.Fatalf("p99_latency_ms (max proxy) = %v, want 20.0", m.P99LatencyMs)
	}
	if m.DLQDepth != 0 {
		t.Fatalf("dlq_depth = %d, want 0 (no payload on failure)", m.DLQDepth)
	}
}

func TestRuntimeDLQsOnExhaustedRetriesWithPayload(t *testing.T) {
	policy := DefaultRetryPolicy()
	policy.MaxRetries = 2
	rt, err := NewRuntime("demo", DefaultBreakerConfig(), policy, clock.System{})
	if err != nil {
		t.Fatalf("NewRuntime: %v", err)
	}
	rt.RecordFailure("boom", map[string]string{"payload": "x"}, 0)
	if got := rt.DLQ.Depth(); got != 0 {
		t.Fatalf("depth = %d before exhausting retries, want 0", got)
	}
	rt.RecordFailure("boom", map[string]string{"payload": "x"}, 2)
	if got := rt.DLQ.Depth(); got != 1 {
		t.Fatalf("depth = %d after attempt >= max_retries, want 1", got)
	}
}

func TestRuntimeNoPayloadNeverDLQs(t *testing.T) {
	policy := DefaultRetryPolicy()
	policy.MaxRetries = 0
	rt, err := NewRuntime("demo", DefaultBreakerConfig(), policy, clock.System{})
	if err != nil {
		t.Fatalf("NewRuntime: %v", err)
	}
	rt.RecordFailure("boom", nil, 5)
	if got := rt.DLQ.Depth(); got != 0 {
		t.Fatalf("depth = %d, want 0 (no payload supplied)", got)
	}
}

func TestRuntimeRecordFailureReturnsTransient(t *testing.T) {
	rt, err := NewRuntime("demo", DefaultBreakerConfig(), DefaultRetryPolicy(), clock.System{})
	if err != nil {
		t.Fatalf("NewRuntime: %v", err)
	}
	got := rt.RecordFailure("boom", nil, 0)
	if kind, ok := errs.KindOf(got); !ok || kind != errs.Transient {
		t.Fatalf("KindOf(RecordFailure) = (%v, %v), want (Transient, true)", kind, ok)
	}
}
