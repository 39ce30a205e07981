package proxy

import (
	"math"
	"math/rand"
	"time"

	"gatewaycred/internal/constants"
)

// nextBackoff computes B * factor^attempt plus up to 50% jitter (the wait is
// never shorter than B * factor^attempt), the exponential schedule shared by
// the 429 and 5xx retry paths (independent attempt counters per outcome
// kind; same base-interval/exponent computation).
func nextBackoff(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = time.Second
	}
	dur := float64(base) * math.Pow(constants.RetryBackoffFactor, float64(attempt))
	jitter := 1 + 0.5*rand.Float64()
	return time.Duration(dur * jitter)
}

// credentialErrorDelay is the short fixed delay before retrying a
// 401/400/404/403-class credential error on the (possibly rotated) credential.
const credentialErrorDelay = 500 * time.Millisecond
