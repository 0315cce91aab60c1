package slo

import (
	"fmt"
	"math"

	"github.com/campaignexpress/controlplane/internal/clock"
	"github.com/campaignexpress/controlplane/internal/sharded"
)

// minSamplesForAnomaly is the sample count below which a baseline is
// considered too young to judge.
const minSamplesForAnomaly = 10

// trendWindowSize is the number of trailing observations CheckTrend
// examines for a monotonic run toward a configured soft ceiling.
const trendWindowSize = 5

// shortVarianceWindowSize is the number of trailing observations
// CheckVarianceShift treats as the "short window" baseline.
const shortVarianceWindowSize = 5

// defaultTrendProximityPct and defaultVarianceShiftRatio are the default
// tunables for trend-toward-ceiling and variance-shift anomaly detection.
const (
	defaultTrendProximityPct  = 10.0
	defaultVarianceShiftRatio = 2.0
)

// Detector composes rolling uptime, error-budget, burn-rate, metric
// anomaly, trend/variance-shift, and correlated-failure detection into a
// single report.
type Detector struct {
	clock     clock.Clock
	tracker   *Tracker
	baselines *BaselineTracker

	ceilings *sharded.Table[float64]

	trendProximityPct  float64
	varianceShiftRatio float64
}

// NewDetector constructs a Detector over an existing Tracker and a fresh
// BaselineTracker, with the default trend-proximity and variance-shift
// tunables.
func NewDetector(c clock.Clock, tracker *Tracker) *Detector {
	return &Detector{
		clock:              c,
		tracker:            tracker,
		baselines:          NewBaselineTracker(),
		ceilings:           sharded.New[float64](),
		trendProximityPct:  defaultTrendProximityPct,
		varianceShiftRatio: defaultVarianceShiftRatio,
	}
}

// RegisterSoftCeiling declares a soft ceiling for metric, enabling
// CheckTrend to watch for a monotonic run toward it.
func (d *Detector) RegisterSoftCeiling(metric string, ceiling float64) {
	d.ceilings.Set(metric, ceiling)
}

// SetTrendProximityPct overrides the default 10% "how close to the ceiling
// counts as trending toward it" tunable.
func (d *Detector) SetTrendProximityPct(pct float64) {
	d.trendProximityPct = pct
}

// SetVarianceShiftRatio overrides the default 2x "how much noisier than the
// long-window baseline counts as a variance shift" tunable.
func (d *Detector) SetVarianceShiftRatio(ratio float64) {
	d.varianceShiftRatio = ratio
}

// RecordMetric feeds a metric observation into the online baseline.
func (d *Detector) RecordMetric(name string, value float64) {
	d.baselines.Record(name, value)
}

// Baseline returns the current baseline for a metric, if established.
func (d *Detector) Baseline(name string) (MetricBaseline, bool) {
	return d.baselines.Get(name)
}

// CheckMetric evaluates a single observed value against its baseline and
// returns an Anomaly if the z-score exceeds 3. It does not mutate the
// baseline; call RecordMetric separately.
func (d *Detector) CheckMetric(name string, value float64) (Anomaly, bool) {
	baseline, ok := d.baselines.Get(name)
	if !ok || baseline.SampleCount < minSamplesForAnomaly || baseline.StdDev <= 0 {
		return Anomaly{}, false
	}

	z := (value - baseline.Mean) / baseline.StdDev
	if math.Abs(z) <= 3 {
		return Anomaly{}, false
	}

	anomalyType := Spike
	if z < 0 {
		anomalyType = Drop
	}

	severity := Warning
	if math.Abs(z) > 5 {
		severity = Critical
	}

	deviationPct := 0.0
	if baseline.Mean != 0 {
		deviationPct = math.Abs((value - baseline.Mean) / baseline.Mean * 100)
	}

	return Anomaly{
		Type:         anomalyType,
		Severity:     severity,
		MetricName:   name,
		Current:      value,
		ExpectedLow:  baseline.Mean - 2*baseline.StdDev,
		ExpectedHigh: baseline.Mean + 2*baseline.StdDev,
		DeviationPct: deviationPct,
		Message: fmt.Sprintf("%s: %.2f is %.1f std devs from mean %.2f",
			name, value, z, baseline.Mean),
		SuggestedAction: fmt.Sprintf("investigate %s change, check recent deployments", name),
		DetectedAt:      d.clock.Now(),
	}, true
}

// CheckTrend evaluates whether name's recent observations are monotonically
// closing in on a registered soft ceiling, within trendProximityPct of it.
// Returns false if no ceiling is registered for name or there aren't yet
// trendWindowSize observations.
func (d *Detector) CheckTrend(name string) (Anomaly, bool) {
	ceiling, ok := d.ceilings.Get(name)
	if !ok || ceiling == 0 {
		return Anomaly{}, false
	}
	recent := d.baselines.Recent(name)
	if len(recent) < trendWindowSize {
		return Anomaly{}, false
	}
	window := recent[len(recent)-trendWindowSize:]

	ascending := window[0] <= ceiling
	monotonic := true
	for i := 1; i < len(window); i++ {
		if ascending {
			if window[i] < window[i-1] {
				monotonic = false
				break
			}
		} else if window[i] > window[i-1] {
			monotonic = false
			break
		}
	}
	if !monotonic {
		return Anomaly{}, false
	}

	current := window[len(window)-1]
	deviationPct := math.Abs((ceiling-current)/ceiling) * 100
	if deviationPct > d.trendProximityPct {
		return Anomaly{}, false
	}

	severity := Warning
	if deviationPct <= d.trendProximityPct/2 {
		severity = Critical
	}

	return Anomaly{
		Type:            TrendTowardLimit,
		Severity:        severity,
		MetricName:      name,
		Current:         current,
		ExpectedLow:     window[0],
		ExpectedHigh:    ceiling,
		DeviationPct:    deviationPct,
		Message:         fmt.Sprintf("%s: monotonic run toward soft ceiling %.2f, now %.2f (%.1f%% away)", name, ceiling, current, deviationPct),
		SuggestedAction: fmt.Sprintf("plan capacity for %s before it reaches its configured limit", name),
		DetectedAt:      d.clock.Now(),
	}, true
}

// CheckVarianceShift evaluates whether name's short-window volatility has
// grown past varianceShiftRatio times its long-window baseline std_dev,
// even when the mean hasn't moved enough to trip CheckMetric's z-score
// test.
func (d *Detector) CheckVarianceShift(name string) (Anomaly, bool) {
	baseline, ok := d.baselines.Get(name)
	if !ok || baseline.SampleCount < minSamplesForAnomaly || baseline.StdDev <= 0 {
		return Anomaly{}, false
	}
	recent := d.baselines.Recent(name)
	if len(recent) < shortVarianceWindowSize {
		return Anomaly{}, false
	}
	window := recent[len(recent)-shortVarianceWindowSize:]

	var sum float64
	for _, v := range window {
		sum += v
	}
	shortMean := sum / float64(len(window))
	var sq float64
	for _, v := range window {
		d := v - shortMean
		sq += d * d
	}
	shortStdDev := math.Sqrt(sq / float64(len(window)))

	ratio := shortStdDev / baseline.StdDev
	if ratio < d.varianceShiftRatio {
		return Anomaly{}, false
	}

	severity := Warning
	if ratio >= 2*d.varianceShiftRatio {
		severity = Critical
	}

	return Anomaly{
		Type:            VarianceShift,
		Severity:        severity,
		MetricName:      name,
		Current:         shortStdDev,
		ExpectedLow:     0,
		ExpectedHigh:    baseline.StdDev * d.varianceShiftRatio,
		DeviationPct:    (ratio - 1) * 100,
		Message:         fmt.Sprintf("%s: short-window std_dev %.2f is %.1fx the long-window std_dev %.2f", name, shortStdDev, ratio, baseline.StdDev),
		SuggestedAction: fmt.Sprintf("investigate %s for increased noise, not just a shifted mean", name),
		DetectedAt:      d.clock.Now(),
	}, true
}

// CorrelatedFailure reports an Emergency anomaly when 2 or more of the
// named components are simultaneously unhealthy. unhealthy lists only the
// components currently failing.
func (d *Detector) CorrelatedFailure(unhealthy []string) (Anomaly, bool) {
	if len(unhealthy) < 2 {
		return Anomaly{}, false
	}
	return Anomaly{
		Type:            CorrelatedFailure,
		Severity:        Emergency,
		MetricName:      "correlated_failures",
		Current:         float64(len(unhealthy)),
		ExpectedLow:     0,
		ExpectedHigh:    1,
		DeviationPct:    100,
		Message:         fmt.Sprintf("correlated failures across: %v", unhealthy),
		SuggestedAction: "check shared dependencies (network, DNS, control plane)",
		DetectedAt:      d.clock.Now(),
	}, true
}

// DetectionInput carries the per-call inputs a collaborator supplies to
// Detect beyond what the Tracker/BaselineTracker already hold: the current
// value of every watched metric plus the health of every watched component
// (for correlated-failure detection).
type DetectionInput struct {
	MetricValues    map[string]float64
	ComponentHealth map[string]bool
}

// Detect runs the full incident-detection pass: SLO status + burn-rate
// alerts for every registered service, metric anomalies for every metric in
// input.MetricValues, and correlated-failure detection over
// input.ComponentHealth. An SLO counts as "at risk" once its remaining
// error budget drops below 30%.
func (d *Detector) Detect(input DetectionInput) IncidentDetectionReport {
	now := d.clock.Now()

	var statuses []SloStatus
	slosAtRisk := 0
	highest := Info

	for _, def := range d.tracker.Definitions() {
		budget, ok := d.tracker.ErrorBudget(def.Name)
		if !ok {
			continue
		}
		remainingPct := 100.0
		if budget.BudgetMinutes > 0 {
			remainingPct = 100 * budget.RemainingMinutes / budget.BudgetMinutes
		}
		alerts := d.tracker.CheckBurnRate(def.Name)
		atRisk := remainingPct < 30
		if atRisk {
			slosAtRisk++
		}
		for _, a := range alerts {
			highest = maxSeverity(highest, a.Severity)
		}
		statuses = append(statuses, SloStatus{
			Name:         def.Name,
			TargetPct:    def.TargetPct,
			CurrentPct:   d.tracker.Uptime(def.Name, def.WindowDays),
			Budget:       budget,
			BurnAlerts:   alerts,
			RemainingPct: remainingPct,
			AtRisk:       atRisk,
		})
	}

	var anomalies []Anomaly
	for name, value := range input.MetricValues {
		if a, ok := d.CheckMetric(name, value); ok {
			anomalies = append(anomalies, a)
			highest = maxSeverity(highest, a.Severity)
		}
		if a, ok := d.CheckTrend(name); ok {
			anomalies = append(anomalies, a)
			highest = maxSeverity(highest, a.Severity)
		}
		if a, ok := d.CheckVarianceShift(name); ok {
			anomalies = append(anomalies, a)
			highest = maxSeverity(highest, a.Severity)
		}
	}

	var unhealthy []string
	for name, healthy := range input.ComponentHealth {
		if !healthy {
			unhealthy = append(unhealthy, name)
		}
	}
	if a, ok := d.CorrelatedFailure(unhealthy); ok {
		anomalies = append(anomalies, a)
		highest = maxSeverity(highest, a.Severity)
	}

	for _, status := range statuses {
		for _, alert := range status.BurnAlerts {
			anomalies = append(anomalies, Anomaly{
				Type:            BurnRateAlertType,
				Severity:        alert.Severity,
				MetricName:      status.Name + "_error_budget",
				Current:         alert.BurnRate,
				ExpectedLow:     0,
				ExpectedHigh:    1,
				DeviationPct:    (alert.BurnRate - 1) * 100,
				Message:         alert.Message,
				SuggestedAction: "investigate root cause, consider rollback",
				DetectedAt:      alert.TriggeredAt,
			})
		}
	}

	return IncidentDetectionReport{
		SloStatuses:     statuses,
		Anomalies:       anomalies,
		SlosAtRisk:      slosAtRisk,
		ActiveAnomalies: len(anomalies),
		HighestSeverity: highest,
		GeneratedAt:     now,
	}
}
