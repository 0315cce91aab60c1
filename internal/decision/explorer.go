package decision

import (
	"hash/fnv"
	"math/rand"
)

// Explorer produces the exploration term ε added to each offer's blended
// score. Its seeding is injectable for tests, and in simulation mode ε
// must be reproducible given the same inputs.
type Explorer interface {
	// Epsilon returns the exploration bonus for a single (requestID,
	// offerID) pair. Implementations must be deterministic in that pair:
	// the same requestID and offerID must always yield the same value, so
	// that Decide is reproducible given an identical request and catalog.
	Epsilon(requestID, offerID string) float64
}

// DefaultExplorer derives ε from a hash of (requestID, offerID) seeding a
// per-call PRNG, scaled by Scale. This satisfies the determinism
// requirement without a shared mutable RNG state: distinct offers in the
// same request get distinct, but individually reproducible, bonuses.
type DefaultExplorer struct {
	Scale float64
}

// NewDefaultExplorer returns a DefaultExplorer with the canonical
// exploration scale of 0.01.
func NewDefaultExplorer() DefaultExplorer {
	return DefaultExplorer{Scale: 0.01}
}

// Epsilon implements Explorer.
func (e DefaultExplorer) Epsilon(requestID, offerID string) float64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(requestID))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(offerID))
	seed := int64(h.Sum64())
	r := rand.New(rand.NewSource(seed))
	return e.Scale * r.Float64()
}

// ZeroExplorer always returns 0, useful for tests that need byte-identical
// responses without reasoning about the exploration term.
type ZeroExplorer struct{}

// Epsilon implements Explorer.
func (ZeroExplorer) Epsilon(string, string) float64 { return 0 }
