// Package filter smooths pose streams between the centering and mapping
// stages. The EWMA filter adapts its time constant to motion speed: slow
// drift is smoothed hard, fast deliberate motion passes through with
// little added latency.
package filter

import (
	"time"

	"github.com/skyrookie/opentrack/internal/pose"
)

// EWMAConfig tunes the adaptive smoother.
type EWMAConfig struct {
	// MinSmoothing is the time constant applied during fast motion.
	MinSmoothing time.Duration
	// MaxSmoothing is the time constant applied when nearly still.
	MaxSmoothing time.Duration
	// Responsiveness is the per-cycle delta, in output units, at which
	// smoothing has fully ramped from max down to min.
	Responsiveness float64

	// Clock overrides the time source for tests.
	Clock func() time.Time
}

// EWMA is an exponentially weighted moving average with a
// speed-dependent time constant. Not safe for concurrent use; the
// pipeline calls it from its single worker goroutine.
type EWMA struct {
	cfg EWMAConfig
	now func() time.Time

	primed bool
	last   time.Time
	state  pose.Pose
}

// NewEWMA builds the filter, applying defaults for zero config fields.
func NewEWMA(cfg EWMAConfig) *EWMA {
	if cfg.MinSmoothing <= 0 {
		cfg.MinSmoothing = 10 * time.Millisecond
	}
	if cfg.MaxSmoothing <= 0 {
		cfg.MaxSmoothing = 150 * time.Millisecond
	}
	if cfg.Responsiveness <= 0 {
		cfg.Responsiveness = 0.5
	}
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	return &EWMA{cfg: cfg, now: now}
}

// Filter smooths one sample. The first sample after construction or
// centering passes through unchanged and seeds the state.
func (f *EWMA) Filter(in pose.Pose) pose.Pose {
	t := f.now()
	if !f.primed {
		f.primed = true
		f.last = t
		f.state = in
		return in
	}

	dt := t.Sub(f.last).Seconds()
	f.last = t
	if dt <= 0 {
		return f.state
	}

	for i := range in {
		delta := in[i] - f.state[i]

		// Ramp the RC from MaxSmoothing at rest to MinSmoothing once
		// the per-cycle delta reaches the responsiveness threshold.
		speed := delta / f.cfg.Responsiveness
		if speed < 0 {
			speed = -speed
		}
		if speed > 1 {
			speed = 1
		}
		rc := f.cfg.MaxSmoothing.Seconds() +
			speed*(f.cfg.MinSmoothing.Seconds()-f.cfg.MaxSmoothing.Seconds())

		alpha := dt / (dt + rc)
		f.state[i] += alpha * delta
	}
	return f.state
}

// Center drops the accumulated state so the next sample seeds it fresh.
// Without this, the output would slew from the pre-center pose toward
// the re-centered one.
func (f *EWMA) Center() {
	f.primed = false
}
