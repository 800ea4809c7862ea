package worker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestExponentialBackoffGrowsWithAttempt(t *testing.T) {
	d1 := ExponentialBackoff(1)
	d5 := ExponentialBackoff(5)
	require.Greater(t, d5, d1/2)
	require.LessOrEqual(t, d1, 700*time.Millisecond)
}

func TestExponentialBackoffRespectsCeiling(t *testing.T) {
	for attempt := 1; attempt <= 30; attempt++ {
		d := ExponentialBackoff(attempt)
		require.LessOrEqual(t, d, 36*time.Second)
		require.Greater(t, d, time.Duration(0))
	}
}
