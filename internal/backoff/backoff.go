// Package backoff provides exponential backoff with full jitter and a
// generic retry wrapper for transient provider failures.
package backoff

import (
	"math"
	"time"
)

// Policy defines the exponential backoff parameters.
type Policy struct {
	// Initial is the base delay before the first retry.
	Initial time.Duration
	// Max caps the delay regardless of attempt count.
	Max time.Duration
	// Factor is the exponential growth factor per attempt.
	Factor float64
}

// DefaultPolicy returns the retry policy used for provider calls:
// 1s initial, 30s cap, doubling per attempt.
func DefaultPolicy() Policy {
	return Policy{
		Initial: time.Second,
		Max:     30 * time.Second,
		Factor:  2,
	}
}

// Delay computes the full-jitter delay before retry number attempt+1:
// rnd * min(Initial * Factor^attempt, Max). rnd must be in [0, 1);
// passing it explicitly keeps tests deterministic. Attempts are
// zero-indexed.
func Delay(p Policy, attempt int, rnd float64) time.Duration {
	exp := math.Max(float64(attempt), 0)
	base := float64(p.Initial) * math.Pow(p.Factor, exp)
	capped := math.Min(base, float64(p.Max))
	return time.Duration(rnd * capped)
}
