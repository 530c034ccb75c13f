package screencast

import (
	"time"

	"github.com/bnema/xdg-desktop-portal-wlr/internal/logger"
)

// fpsLogInterval matches spec §4.E "averaged FPS is logged every five
// seconds".
const fpsLogInterval = 5 * time.Second

// FPSLimiter tracks frame cadence and, when max_fps > 0, delays the
// next capture via an event-loop timer (spec §4.E "FPS limiter").
// max_fps ≤ 0 disables limiting entirely (spec §7 "Round-trip /
// idempotence").
type FPSLimiter struct {
	maxFPS float64

	lastFrame    time.Time
	lastMeasure  time.Time
	framesInWindow int
}

// NewFPSLimiter builds a limiter for the given configured max_fps.
func NewFPSLimiter(maxFPS float64) *FPSLimiter {
	return &FPSLimiter{maxFPS: maxFPS, lastMeasure: time.Now()}
}

// Enabled reports whether frame pacing is active.
func (f *FPSLimiter) Enabled() bool { return f.maxFPS > 0 }

// NextDelay returns how long to wait before capturing the next frame,
// given now. Zero means capture immediately.
func (f *FPSLimiter) NextDelay(now time.Time) time.Duration {
	if !f.Enabled() {
		return 0
	}
	if f.lastFrame.IsZero() {
		return 0
	}
	minInterval := time.Duration(float64(time.Second) / f.maxFPS)
	elapsed := now.Sub(f.lastFrame)
	if elapsed >= minInterval {
		return 0
	}
	return minInterval - elapsed
}

// RecordFrame marks a frame as completed at now and logs the averaged
// rate every fpsLogInterval.
func (f *FPSLimiter) RecordFrame(now time.Time) {
	f.lastFrame = now
	f.framesInWindow++

	if f.lastMeasure.IsZero() {
		f.lastMeasure = now
		return
	}
	if elapsed := now.Sub(f.lastMeasure); elapsed >= fpsLogInterval {
		avg := float64(f.framesInWindow) / elapsed.Seconds()
		logger.Debugf("screencast: averaged %.2f fps over %s", avg, elapsed.Round(time.Second))
		f.framesInWindow = 0
		f.lastMeasure = now
	}
}
