package connector

import (
	"testing"
	"time"

	"github.com/campaignexpress/controlplane/internal/clock"
)

func TestRateLimiterExhaustsAndRefills(t *testing.T) {
	fake := clock.NewFake(time.Unix(0, 0))
	l, err := NewRateLimiter(RateLimitConfig{Capacity: 3, RefillPeriod: time.Second}, fake)
	if err != nil {
		t.Fatalf("NewRateLimiter: %v", err)
	}

	for i := 0; i < 3; i++ {
		if !l.Allow() {
			t.Fatalf("Allow() call %d = false, want true within capacity", i)
		}
	}
	if l.Allow() {
		t.Fatalf("Allow() = true after exhausting capacity, want false")
	}

	fake.Advance(time.Second)
	if !l.Allow() {
		t.Fatalf("Allow() = false after a full refill period, want true")
	}
	if got := l.Remaining(); got != 2 {
		t.Fatalf("Remaining() = %d after one consume post-refill, want 2", got)
	}
}

func TestRateLimiterRejectsInvalidConfig(t *testing.T) {
	if _, err := NewRateLimiter(RateLimitConfig{Capacity: 0, RefillPeriod: time.Second}, clock.System{}); err == nil {
		t.Fatalf("NewRateLimiter with capacity=0 = nil error, want error")
	}
	if _, err := NewRateLimiter(RateLimitConfig{Capacity: 1, RefillPeriod: 0}, clock.System{}); err == nil {
		t.Fatalf("NewRateLimiter with refill_period=0 = nil error, want error")
	}
}

func TestRuntimeAllowRequestRespectsRateLimit(t *testing.T) {
	fake := clock.NewFake(time.Unix(0, 0))
	rt, err := NewRuntimeWithLimits("demo", DefaultBreakerConfig(), DefaultRetryPolicy(),
		RateLimitConfig{Capacity: 1, RefillPeriod: time.Minute}, defaultDLQCapacity, fake)
	if err != nil {
		t.Fatalf("NewRuntimeWithLimits: %v", err)
	}
	if !rt.AllowRequest() {
		t.Fatalf("AllowRequest() first call = false, want true")
	}
	if rt.AllowRequest() {
		t.Fatalf("AllowRequest() second call = true, want false (rate budget exhausted, breaker still closed)")
	}
}
