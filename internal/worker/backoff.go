package worker

import (
	"math/rand"
	"time"
)

// BackoffFunc computes the delay before retry attempt n (1-indexed). It is
// a seam so tests can supply a deterministic function instead of waiting
// on real jittered delays.
type BackoffFunc func(attempt int) time.Duration

// ExponentialBackoff is the default retry delay (§4.7's Retrying state),
// doubling per attempt up to a ceiling with +/-20% jitter so many
// simultaneously-retrying tasks don't all wake up on the same tick.
// NewHandle installs it as Deps.Backoff, but Run never calls Deps.Backoff:
// a Retrying task is not delayed by the worker.
func ExponentialBackoff(attempt int) time.Duration {
	const base = 500 * time.Millisecond
	const ceiling = 30 * time.Second

	delay := base << uint(minInt(attempt-1, 10))
	if delay > ceiling || delay <= 0 {
		delay = ceiling
	}

	jitter := time.Duration(rand.Int63n(int64(delay) / 5 * 2)) - delay/5
	return delay + jitter
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
