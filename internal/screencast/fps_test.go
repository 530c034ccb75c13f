package screencast

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFPSLimiterDisabledWhenMaxFPSZeroOrNegative(t *testing.T) {
	f := NewFPSLimiter(0)
	require.False(t, f.Enabled())
	require.Equal(t, time.Duration(0), f.NextDelay(time.Now()))

	f2 := NewFPSLimiter(-5)
	require.False(t, f2.Enabled())
}

func TestFPSLimiterFirstFrameHasNoDelay(t *testing.T) {
	f := NewFPSLimiter(30)
	require.Equal(t, time.Duration(0), f.NextDelay(time.Now()))
}

func TestFPSLimiterDelaysWhenTooFast(t *testing.T) {
	f := NewFPSLimiter(30) // ~33ms min interval
	now := time.Now()
	f.RecordFrame(now)

	delay := f.NextDelay(now.Add(5 * time.Millisecond))
	require.Greater(t, delay, time.Duration(0))
	require.LessOrEqual(t, delay, 34*time.Millisecond)
}

func TestFPSLimiterNoDelayAfterIntervalElapsed(t *testing.T) {
	f := NewFPSLimiter(30)
	now := time.Now()
	f.RecordFrame(now)

	delay := f.NextDelay(now.Add(100 * time.Millisecond))
	require.Equal(t, time.Duration(0), delay)
}
