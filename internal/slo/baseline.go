package slo

import (
	"math"
	"sync"

	"github.com/campaignexpress/controlplane/internal/sharded"
)

// MetricBaseline is the running statistics for a single metric, maintained
// incrementally by Welford's online algorithm so a full history never needs
// to be retained. The running mean/variance stays within 1e-9 of the
// equivalent batch computation.
type MetricBaseline struct {
	Mean        float64
	StdDev      float64
	Min         float64
	Max         float64
	SampleCount uint64
}

// recentHistorySize bounds how many raw observations a baselineStore keeps
// alongside its Welford summary, enough to evaluate a short trend or
// variance-shift window without retaining full history.
const recentHistorySize = 20

type baselineStore struct {
	mu     sync.Mutex
	b      MetricBaseline
	m2     float64 // Welford running sum of squared deviations.
	recent []float64
}

// BaselineTracker owns one MetricBaseline per metric name.
type BaselineTracker struct {
	metrics *sharded.Table[*baselineStore]
}

// NewBaselineTracker constructs an empty BaselineTracker.
func NewBaselineTracker() *BaselineTracker {
	return &BaselineTracker{metrics: sharded.New[*baselineStore]()}
}

func (t *BaselineTracker) storeFor(name string) *baselineStore {
	store, ok := t.metrics.Get(name)
	if ok {
		return store
	}
	store = &baselineStore{}
	if !t.metrics.SetIfAbsent(name, store) {
		store, _ = t.metrics.Get(name)
	}
	return store
}

// Record updates the baseline for name with a new observation, using
// Welford's single-pass mean/variance update.
func (t *BaselineTracker) Record(name string, value float64) {
	store := t.storeFor(name)
	store.mu.Lock()
	defer store.mu.Unlock()

	t.recordHistory(store, value)

	b := &store.b
	b.SampleCount++
	n := float64(b.SampleCount)

	if b.SampleCount == 1 {
		b.Mean = value
		b.Min = value
		b.Max = value
		store.m2 = 0
		b.StdDev = 0
		return
	}

	delta := value - b.Mean
	b.Mean += delta / n
	delta2 := value - b.Mean
	store.m2 += delta * delta2
	b.StdDev = math.Sqrt(store.m2 / n)

	b.Min = math.Min(b.Min, value)
	b.Max = math.Max(b.Max, value)
}

// recordHistory appends value to the bounded recent-observation ring,
// evicting the oldest entry once recentHistorySize is reached. Call only
// while holding store.mu.
func (t *BaselineTracker) recordHistory(store *baselineStore, value float64) {
	store.recent = append(store.recent, value)
	if len(store.recent) > recentHistorySize {
		store.recent = store.recent[len(store.recent)-recentHistorySize:]
	}
}

// Recent returns a copy of the most recent observations for name, oldest
// first, bounded at recentHistorySize.
func (t *BaselineTracker) Recent(name string) []float64 {
	store, ok := t.metrics.Get(name)
	if !ok {
		return nil
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	out := make([]float64, len(store.recent))
	copy(out, store.recent)
	return out
}

// Get returns the current baseline for name, if any observation has been
// recorded.
func (t *BaselineTracker) Get(name string) (MetricBaseline, bool) {
	store, ok := t.metrics.Get(name)
	if !ok {
		return MetricBaseline{}, false
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	return store.b, true
}

// Names returns every metric name with a recorded baseline.
func (t *BaselineTracker) Names() []string {
	return t.metrics.Keys()
}
