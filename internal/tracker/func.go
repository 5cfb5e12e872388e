package tracker

import (
	"math"
	"time"

	"github.com/skyrookie/opentrack/internal/pose"
)

// Func adapts a plain function into a pose source. Used by tests and
// the demo mode.
type Func struct {
	DataFn  func() pose.Pose
	OwnsCtr bool
}

func (f *Func) Data() pose.Pose {
	if f.DataFn == nil {
		return pose.Pose{}
	}
	return f.DataFn()
}

func (f *Func) Center() bool { return f.OwnsCtr }

// NewDemo returns a source tracing slow sinusoidal head motion, for
// running the pipeline without hardware.
func NewDemo() *Func {
	start := time.Now()
	return &Func{DataFn: func() pose.Pose {
		t := time.Since(start).Seconds()
		return pose.Pose{
			3 * math.Sin(t/3),
			2 * math.Sin(t/5),
			1.5 * math.Cos(t/4),
			40 * math.Sin(t/2),
			15 * math.Sin(t/7),
			5 * math.Cos(t/6),
		}
	}}
}
