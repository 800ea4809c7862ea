package worker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCongestionControllerSlowStart(t *testing.T) {
	cc := NewCongestionController(2, 8)
	require.Equal(t, 2, cc.IdealConcurrency("example.com"))
}

func TestCongestionControllerAdditiveIncrease(t *testing.T) {
	cc := NewCongestionController(1, 4)
	cc.RecordOutcome("example.com", 10*time.Millisecond, nil)
	require.Equal(t, 1, cc.IdealConcurrency("example.com"))

	cc.RecordOutcome("example.com", 10*time.Millisecond, nil)
	cc.RecordOutcome("example.com", 10*time.Millisecond, nil)
	require.Equal(t, 2, cc.IdealConcurrency("example.com"))
}

func TestCongestionControllerMultiplicativeDecrease(t *testing.T) {
	cc := NewCongestionController(1, 8)
	for i := 0; i < 3; i++ {
		cc.RecordOutcome("example.com", 10*time.Millisecond, nil)
		cc.IdealConcurrency("example.com")
	}
	before := cc.IdealConcurrency("example.com")
	require.Greater(t, before, 1)

	cc.RecordOutcome("example.com", 10*time.Millisecond, errors.New("timeout"))
	after := cc.IdealConcurrency("example.com")
	require.Less(t, after, before)
}
