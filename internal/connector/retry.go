package connector

import (
	"encoding/binary"
	"hash/fnv"
	"math"
	"time"

	"github.com/campaignexpress/controlplane/internal/errs"
)

// RetryPolicy configures exponential backoff with an optional deterministic
// jitter.
type RetryPolicy struct {
	MaxRetries        uint32
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
	Jitter            bool
}

// DefaultRetryPolicy mirrors the upstream connector's defaults.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:        3,
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            true,
	}
}

// Validate rejects policies that cannot produce a sane backoff sequence.
func (p RetryPolicy) Validate() error {
	if p.BackoffMultiplier <= 1 {
		return errs.Configurationf("backoff_multiplier must be > 1, got %v", p.BackoffMultiplier)
	}
	if p.InitialBackoff <= 0 {
		return errs.Configurationf("initial_backoff must be > 0, got %v", p.InitialBackoff)
	}
	if p.MaxBackoff < p.InitialBackoff {
		return errs.Configurationf("max_backoff must be >= initial_backoff")
	}
	return nil
}

// BackoffForAttempt is pure: equal (attempt, policy) pairs always yield the
// same duration. base = initial * multiplier^attempt, clamped to
// [0, max_backoff]. With jitter enabled, a deterministic factor in
// [0.75, 1.25] derived from the low bits of an FNV-1a hash of the attempt
// number and the policy's own parameters is applied for an evenly
// distributed spread. The jittered value is clamped to max_backoff again,
// so the result never exceeds max_backoff with or without jitter.
func (p RetryPolicy) BackoffForAttempt(attempt uint32) time.Duration {
	base := float64(p.InitialBackoff) * math.Pow(p.BackoffMultiplier, float64(attempt))
	capped := math.Min(base, float64(p.MaxBackoff))
	if !p.Jitter {
		return time.Duration(capped)
	}
	factor := jitterFactor(attempt, p)
	return time.Duration(math.Min(capped*factor, float64(p.MaxBackoff)))
}

// jitterFactor derives a deterministic value in [0.75, 1.25] from the
// attempt number and the policy's own shape, so two identical policies
// always produce the same jittered backoff for the same attempt.
func jitterFactor(attempt uint32, p RetryPolicy) float64 {
	h := fnv.New64a()
	var buf [8]byte
	binary.BigEndian.PutUint32(buf[:4], attempt)
	binary.BigEndian.PutUint32(buf[4:], uint32(p.InitialBackoff))
	_, _ = h.Write(buf[:])
	_, _ = h.Write([]byte{byte(p.MaxRetries)})
	sum := h.Sum64()
	// low 16 bits give a uniform [0,1) fraction, scaled into [0.75, 1.25].
	fraction := float64(sum&0xFFFF) / float64(0x10000)
	return 0.75 + 0.5*fraction
}
