package decision

import (
	"sort"

	"github.com/google/uuid"

	"github.com/campaignexpress/controlplane/internal/clock"
	"github.com/campaignexpress/controlplane/internal/sharded"
)

const modelVersion = "v1.0.0"

// defaultObjectiveScore is used when an offer's base_scores map has no
// entry for a requested objective metric.
const defaultObjectiveScore = 0.5

// Engine is the real-time Decision Engine: an in-memory offer catalog plus
// a decision log, scored synchronously against a Request.
type Engine struct {
	clock    clock.Clock
	explorer Explorer
	rules    BusinessRules

	offers      *sharded.Table[OfferCandidate]
	decisionLog *sharded.Table[Response]
}

// NewEngine constructs an empty Engine with no business-rule constraints.
func NewEngine(c clock.Clock, explorer Explorer) *Engine {
	return &Engine{
		clock:       c,
		explorer:    explorer,
		offers:      sharded.New[OfferCandidate](),
		decisionLog: sharded.New[Response](),
	}
}

// SetBusinessRules replaces the eligibility constraints Decide enforces
// ahead of scoring.
func (e *Engine) SetBusinessRules(rules BusinessRules) {
	e.rules = rules
}

func (r BusinessRules) segmentBlocked(segment int) bool {
	for _, s := range r.BlockedSegments {
		if s == segment {
			return true
		}
	}
	return false
}

func (r BusinessRules) channelBlocked(channel string) bool {
	for _, c := range r.BlockedChannels {
		if c == channel {
			return true
		}
	}
	return false
}

// effectiveSegments returns o.EligibleSegments with any business-rule
// blocked segment removed, and whether the removal actually narrowed
// anything (i.e. at least one configured segment was in play).
func effectiveSegments(o OfferCandidate, rules BusinessRules) (segments []int, narrowed bool) {
	if len(o.EligibleSegments) == 0 {
		return nil, false
	}
	for _, s := range o.EligibleSegments {
		if rules.segmentBlocked(s) {
			narrowed = true
			continue
		}
		segments = append(segments, s)
	}
	return segments, narrowed
}

// RegisterOffer adds or replaces an offer in the catalog.
func (e *Engine) RegisterOffer(o OfferCandidate) {
	e.offers.Set(o.OfferID, o)
}

// scoredCandidate is the intermediate per-offer scoring state before
// ranking.
type scoredCandidate struct {
	offer             OfferCandidate
	objectiveScores   map[ObjectiveMetric]float64
	blended           float64
	exploration       float64
	rulesNarrowedElig bool
}

// eligible reports whether o can be scored for req, and whether the
// business rules narrowed its targeting segments in the process (even if
// it remained eligible through an unblocked segment).
func eligible(o OfferCandidate, req Request, rules BusinessRules) (ok bool, narrowed bool) {
	if !o.Active || o.Channel != req.Channel || rules.channelBlocked(o.Channel) {
		return false, false
	}

	segments, narrowed := effectiveSegments(o, rules)
	if len(o.EligibleSegments) == 0 {
		return true, narrowed
	}
	if len(segments) == 0 {
		// Every configured segment for this offer was business-rule
		// blocked: no unblocked path to eligibility remains.
		return false, narrowed
	}

	userSegments := make(map[int]struct{}, len(req.Context.UserSegments))
	for _, s := range req.Context.UserSegments {
		userSegments[s] = struct{}{}
	}
	for _, s := range segments {
		if _, ok := userSegments[s]; ok {
			return true, narrowed
		}
	}
	return false, narrowed
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// scoreObjective computes s_o for a single candidate/objective pair: the
// offer's configured base score, adjusted by a deterministic function of
// context (segment-overlap ratio and a recency feature), clamped to [0,1].
func scoreObjective(o OfferCandidate, metric ObjectiveMetric, ctx Context) float64 {
	base, ok := o.BaseScores[metric]
	if !ok {
		base = defaultObjectiveScore
	}

	var adjustment float64
	if len(o.EligibleSegments) > 0 {
		overlap := 0
		for _, s := range o.EligibleSegments {
			for _, u := range ctx.UserSegments {
				if s == u {
					overlap++
					break
				}
			}
		}
		adjustment += 0.1 * (float64(overlap) / float64(len(o.EligibleSegments)))
	}
	if recency, ok := ctx.UserFeatures["recency_score"]; ok {
		adjustment += 0.05 * recency
	}

	return clamp01(base + adjustment)
}

func (e *Engine) score(o OfferCandidate, req Request, rulesNarrowed bool) scoredCandidate {
	objScores := make(map[ObjectiveMetric]float64, len(req.Objectives))
	var blended float64
	for _, obj := range req.Objectives {
		s := scoreObjective(o, obj.Metric, req.Context)
		objScores[obj.Metric] = s
		blended += obj.Weight * s
	}
	exploration := e.explorer.Epsilon(req.RequestID, o.OfferID)
	blended += exploration

	return scoredCandidate{
		offer:             o,
		objectiveScores:   objScores,
		blended:           blended,
		exploration:       exploration,
		rulesNarrowedElig: rulesNarrowed,
	}
}

func (e *Engine) buildExplanation(s scoredCandidate, ctx Context) *Explanation {
	var factors []ExplanationFactor
	// Stable order: iterate objectives in the order the map-less caller
	// cannot guarantee, so we sort by metric name for determinism.
	metrics := make([]ObjectiveMetric, 0, len(s.objectiveScores))
	for m := range s.objectiveScores {
		metrics = append(metrics, m)
	}
	sort.Slice(metrics, func(i, j int) bool { return metrics[i] < metrics[j] })
	for _, m := range metrics {
		score := s.objectiveScores[m]
		factors = append(factors, ExplanationFactor{
			Name:         string(m),
			Category:     ModelPrediction,
			Contribution: score,
			Description:  "predicted score for " + string(m),
		})
	}

	if len(ctx.UserSegments) > 0 {
		factors = append(factors, ExplanationFactor{
			Name:         "segment_match",
			Category:     SegmentMembership,
			Contribution: 0.1,
			Description:  "user belongs to matching segments",
		})
	}
	if recency, ok := ctx.UserFeatures["recency_score"]; ok {
		factors = append(factors, ExplanationFactor{
			Name:         "recency_score",
			Category:     BehavioralSignal,
			Contribution: 0.05 * recency,
			Description:  "recency-weighted behavioral signal",
		})
	}
	if s.rulesNarrowedElig {
		factors = append(factors, ExplanationFactor{
			Name:         "business_rule_segment_restriction",
			Category:     BusinessRule,
			Contribution: 0,
			Description:  "one or more of this offer's targeting segments is blocked by a configured business rule",
		})
	}

	factors = append(factors, ExplanationFactor{
		Name:         "exploration_bonus",
		Category:     ExplorationBonus,
		Contribution: s.exploration,
		Description:  "random exploration term injected for this offer",
	})

	return &Explanation{
		Factors:          factors,
		ModelConfidence:  0.85,
		ExplorationBonus: s.exploration,
	}
}

// Decide scores every eligible offer in the catalog and returns the top
// num_offers, ranked by blended score descending (ties broken by offer_id).
// When request.Simulate is true, the response is not appended to the
// decision log, so simulation calls never mutate state visible to
// non-simulation callers.
func (e *Engine) Decide(req Request) Response {
	start := e.clock.Now()

	type eligibleCandidate struct {
		offer    OfferCandidate
		narrowed bool
	}
	var candidates []eligibleCandidate
	for _, o := range e.offers.All() {
		if ok, narrowed := eligible(o, req, e.rules); ok {
			candidates = append(candidates, eligibleCandidate{offer: o, narrowed: narrowed})
		}
	}

	scored := make([]scoredCandidate, 0, len(candidates))
	for _, c := range candidates {
		scored = append(scored, e.score(c.offer, req, c.narrowed))
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].blended != scored[j].blended {
			return scored[i].blended > scored[j].blended
		}
		return scored[i].offer.OfferID < scored[j].offer.OfferID
	})

	n := int(req.NumOffers)
	if n > len(scored) {
		n = len(scored)
	}

	offers := make([]Offer, 0, n)
	for i := 0; i < n; i++ {
		s := scored[i]
		var explanation *Explanation
		if req.Explain {
			explanation = e.buildExplanation(s, req.Context)
		}
		offers = append(offers, Offer{
			OfferID:     s.offer.OfferID,
			Score:       s.blended,
			Rank:        uint32(i + 1),
			CreativeID:  s.offer.CreativeID,
			Explanation: explanation,
		})
	}

	end := e.clock.Now()
	resp := Response{
		DecisionID:   uuid.New().String(),
		RequestID:    req.RequestID,
		UserID:       req.UserID,
		Offers:       offers,
		LatencyMs:    uint64(end.Sub(start).Milliseconds()),
		ModelVersion: modelVersion,
		IsSimulation: req.Simulate,
		DecidedAt:    end,
	}

	if !req.Simulate {
		e.decisionLog.Set(resp.DecisionID, resp)
	}
	return resp
}

// GetDecision looks up a past decision by id. Simulated decisions are never
// retrievable, by construction of Decide.
func (e *Engine) GetDecision(decisionID string) (Response, bool) {
	return e.decisionLog.Get(decisionID)
}

// maxSimulationSamples caps a single Simulate call's fan-out so a large
// requested sample_size cannot blow up a single synchronous call.
const maxSimulationSamples = 100

// Simulate runs scenario.SampleSize (capped at maxSimulationSamples)
// independent simulated decisions from baseRequest and aggregates their
// outcome. None of the constituent Decide calls are logged: Simulate always
// forces Simulate=true on every derived request regardless of the base
// request's own flag.
func (e *Engine) Simulate(scenario Scenario, baseRequest Request) SimulationResult {
	count := scenario.SampleSize
	if count > maxSimulationSamples {
		count = maxSimulationSamples
	}

	decisions := make([]Response, 0, count)
	var totalScore float64
	offerSet := make(map[string]struct{})

	for i := uint32(0); i < count; i++ {
		req := baseRequest
		req.Simulate = true
		req.RequestID = uuid.New().String()

		resp := e.Decide(req)
		for _, o := range resp.Offers {
			totalScore += o.Score
			offerSet[o.OfferID] = struct{}{}
		}
		decisions = append(decisions, resp)
	}

	totalOffers := e.offers.Len()
	if totalOffers == 0 {
		totalOffers = 1
	}

	denom := float64(len(decisions)) * float64(baseRequest.NumOffers)
	avgScore := 0.0
	if denom > 0 {
		avgScore = totalScore / denom
	}

	diversity := float64(len(offerSet)) / float64(totalOffers)

	return SimulationResult{
		SimulationID: uuid.New().String(),
		Scenario:     scenario,
		Decisions:    decisions,
		AggregateMetrics: SimulationMetrics{
			AvgScore:                avgScore,
			PredictedCTR:            avgScore * 0.05,
			PredictedConversionRate: avgScore * 0.02,
			PredictedRevenue:        avgScore * 10.0,
			OfferDiversity:          diversity,
			CoveragePercent:         diversity * 100.0,
		},
		RanAt: e.clock.Now(),
	}
}
