package slo

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/campaignexpress/controlplane/internal/clock"
	"github.com/campaignexpress/controlplane/internal/sharded"
)

// Tracker implements rolling uptime, error-budget accounting, and
// multi-window burn-rate alerting. Burn rate is computed by scanning the
// retained samples in each alerting window directly rather than
// maintaining a running approximation, trading memory for exactness (see
// DESIGN.md's Open Question decisions).
type Tracker struct {
	clock       clock.Clock
	definitions *sharded.Table[SloDefinition]
	records     *sharded.Table[*recordStore]
}

type recordStore struct {
	mu      sync.RWMutex
	samples []UptimeSample
}

// NewTracker constructs an empty Tracker.
func NewTracker(c clock.Clock) *Tracker {
	return &Tracker{
		clock:       c,
		definitions: sharded.New[SloDefinition](),
		records:     sharded.New[*recordStore](),
	}
}

// RegisterTarget registers (or replaces) the SloDefinition for a service.
func (t *Tracker) RegisterTarget(def SloDefinition) {
	t.definitions.Set(def.Name, def)
}

// Definitions returns every registered SloDefinition.
func (t *Tracker) Definitions() []SloDefinition {
	all := t.definitions.All()
	out := make([]SloDefinition, 0, len(all))
	for _, d := range all {
		out = append(out, d)
	}
	return out
}

// RecordUptime appends a health observation for service.
func (t *Tracker) RecordUptime(service string, isHealthy bool) {
	store := t.storeFor(service)
	store.mu.Lock()
	defer store.mu.Unlock()
	store.samples = append(store.samples, UptimeSample{
		Service:    service,
		IsHealthy:  isHealthy,
		ObservedAt: t.clock.Now(),
	})
}

func (t *Tracker) storeFor(service string) *recordStore {
	store, ok := t.records.Get(service)
	if ok {
		return store
	}
	store = &recordStore{}
	if !t.records.SetIfAbsent(service, store) {
		store, _ = t.records.Get(service)
	}
	return store
}

// samplesSince returns the samples for service observed at or after cutoff.
func (t *Tracker) samplesSince(service string, cutoff time.Time) []UptimeSample {
	store := t.storeFor(service)
	store.mu.RLock()
	defer store.mu.RUnlock()
	out := make([]UptimeSample, 0, len(store.samples))
	for _, s := range store.samples {
		if !s.ObservedAt.Before(cutoff) {
			out = append(out, s)
		}
	}
	return out
}

// Uptime computes the rolling uptime percentage for service over windowDays.
// With no samples in the window, it reports 100%: missing data is not an
// error.
func (t *Tracker) Uptime(service string, windowDays int) float64 {
	cutoff := t.clock.Now().AddDate(0, 0, -windowDays)
	samples := t.samplesSince(service, cutoff)
	if len(samples) == 0 {
		return 100.0
	}
	healthy := 0
	for _, s := range samples {
		if s.IsHealthy {
			healthy++
		}
	}
	return 100.0 * float64(healthy) / float64(len(samples))
}

// ErrorBudget computes the budget accounting for a registered service.
// Returns the zero value and false if service has no registered
// SloDefinition.
func (t *Tracker) ErrorBudget(service string) (ErrorBudget, bool) {
	def, ok := t.definitions.Get(service)
	if !ok {
		return ErrorBudget{}, false
	}
	cutoff := t.clock.Now().AddDate(0, 0, -def.WindowDays)
	samples := t.samplesSince(service, cutoff)

	totalMinutes := float64(def.WindowDays) * 24 * 60
	budgetMinutes := totalMinutes * (1 - def.TargetPct/100)

	failureRatio := 0.0
	if len(samples) > 0 {
		failures := 0
		for _, s := range samples {
			if !s.IsHealthy {
				failures++
			}
		}
		failureRatio = float64(failures) / float64(len(samples))
	}
	consumedMinutes := totalMinutes * failureRatio
	remaining := math.Max(0, budgetMinutes-consumedMinutes)
	consumedPct := 0.0
	if budgetMinutes > 0 {
		consumedPct = math.Min(100, consumedMinutes/budgetMinutes*100)
	}

	return ErrorBudget{
		Service:          service,
		TargetPct:        def.TargetPct,
		WindowDays:       def.WindowDays,
		TotalMinutes:     totalMinutes,
		BudgetMinutes:    budgetMinutes,
		ConsumedMinutes:  consumedMinutes,
		RemainingMinutes: remaining,
		ConsumedPct:      consumedPct,
		Exhausted:        remaining <= 0,
	}, true
}

var burnWindows = []struct {
	hours    float64
	severity Severity
}{
	{1, Emergency}, // PageNow maps onto this module's Emergency severity.
	{6, Critical},
	{24, Warning},
}

// CheckBurnRate computes the multi-window burn-rate alerts for service.
// Returns nil if service has no registered SloDefinition, or if its target
// implies no allowed error rate.
func (t *Tracker) CheckBurnRate(service string) []BurnRateAlert {
	def, ok := t.definitions.Get(service)
	if !ok {
		return nil
	}
	allowedErrorRate := 1 - def.TargetPct/100
	if allowedErrorRate <= 0 {
		return nil
	}

	thresholds := map[float64]float64{1: def.BurnThreshold1h, 6: def.BurnThreshold6h, 24: def.BurnThreshold24h}
	now := t.clock.Now()

	var alerts []BurnRateAlert
	for _, w := range burnWindows {
		cutoff := now.Add(-time.Duration(w.hours * float64(time.Hour)))
		samples := t.samplesSince(service, cutoff)
		if len(samples) == 0 {
			continue
		}
		failures := 0
		for _, s := range samples {
			if !s.IsHealthy {
				failures++
			}
		}
		observedErrorRate := float64(failures) / float64(len(samples))
		burnRate := observedErrorRate / allowedErrorRate
		threshold := thresholds[w.hours]
		if threshold <= 0 {
			threshold = 1
		}
		if burnRate >= threshold {
			alerts = append(alerts, BurnRateAlert{
				Service:     service,
				Severity:    w.severity,
				BurnRate:    burnRate,
				WindowHours: w.hours,
				Message:     burnRateMessage(service, w.hours, burnRate, threshold),
				TriggeredAt: now,
			})
		}
	}
	return alerts
}

func burnRateMessage(service string, windowHours, burnRate, threshold float64) string {
	return fmt.Sprintf("burn rate %.2fx over %gh window exceeds threshold %.1fx for %s",
		burnRate, windowHours, threshold, service)
}
