package dispatch

import (
	"math"
	"math/rand"
	"time"
)

// FullJitterBackoff computes the exponential-backoff-with-full-jitter
// delay before attempt (1-indexed), per spec §4.5: "base 2s, max 10
// min". No backoff/jitter library exists anywhere in the retrieved
// pack, so this is a documented stdlib exception (see DESIGN.md): the
// classic AWS full-jitter formula, `random(0, min(max, base*2^n))`.
func FullJitterBackoff(attempt int, base, max time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	capped := float64(base) * math.Pow(2, float64(attempt-1))
	if capped > float64(max) {
		capped = float64(max)
	}
	if capped <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(capped) + 1))
}
