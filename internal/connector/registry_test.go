package connector

import (
	"testing"
	"time"

	"github.com/campaignexpress/controlplane/internal/clock"
)

func TestRegistrySeedDemoAndMetrics(t *testing.T) {
	reg := NewRegistry(clock.System{})
	if err := reg.SeedDemo(); err != nil {
		t.Fatalf("SeedDemo: %v", err)
	}
	rt, ok := reg.Get("salesforce")
	if !ok {
		t.Fatalf("expected salesforce to be registered")
	}
	rt.RecordSuccess(5 * time.Millisecond)
	metrics := reg.AllMetrics()
	if len(metrics) != 5 {
		t.Fatalf("AllMetrics() returned %d connectors, want 5", len(metrics))
	}
	if metrics["salesforce"].RequestsTotal != 1 {
		t.Fatalf("salesforce requests_total = %d, want 1", metrics["salesforce"].RequestsTotal)
	}
}

func TestRegistryRejectsDuplicateName(t *testing.T) {
	reg := NewRegistry(clock.System{})
	if _, err := reg.Register("dup", DefaultBreakerConfig(), DefaultRetryPolicy()); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	if _, err := reg.Register("dup", DefaultBreakerConfig(), DefaultRetryPolicy()); err == nil {
		t.Fatalf("second Register with the same name should fail")
	}
}
