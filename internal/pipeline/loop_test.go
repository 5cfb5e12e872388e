package pipeline

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/skyrookie/opentrack/internal/mapping"
	"github.com/skyrookie/opentrack/internal/pose"
)

// trackingCurve records the last tracking-active hint it received.
type trackingCurve struct {
	mu     sync.Mutex
	active bool
}

func (c *trackingCurve) Value(x float64) float64 { return x }

func (c *trackingCurve) SetTrackingActive(active bool) {
	c.mu.Lock()
	c.active = active
	c.mu.Unlock()
}

func (c *trackingCurve) isActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

func TestNextSleepSteadyState(t *testing.T) {
	p := newTestPipeline(t, Config{Tracker: &stubTracker{}})

	if got := p.nextSleep(cyclePeriod); got != cyclePeriod {
		t.Errorf("on-time cycle: sleep = %v, want %v", got, cyclePeriod)
	}
	if p.backlog != 0 {
		t.Errorf("on-time cycle left backlog %v", p.backlog)
	}
}

func TestNextSleepCompensatesStall(t *testing.T) {
	p := newTestPipeline(t, Config{Tracker: &stubTracker{}})

	// A 54ms cycle leaves 50ms of backlog: no sleep at all.
	if got := p.nextSleep(54 * time.Millisecond); got != 0 {
		t.Fatalf("stalled cycle: sleep = %v, want 0", got)
	}

	// Instant cycles drain the backlog one period at a time; the sleep
	// must come back within a bounded number of cycles.
	recovered := false
	for i := 0; i < 20; i++ {
		if p.nextSleep(0) > 0 {
			recovered = true
			break
		}
	}
	if !recovered {
		t.Errorf("backlog never drained, still %v", p.backlog)
	}
}

func TestNextSleepClampedToMax(t *testing.T) {
	p := newTestPipeline(t, Config{Tracker: &stubTracker{}})
	p.backlog = -20 * time.Millisecond

	if got := p.nextSleep(cyclePeriod); got != maxSleep {
		t.Errorf("deep negative backlog: sleep = %v, want %v", got, maxSleep)
	}
}

func TestNextSleepBacklogOverflowResets(t *testing.T) {
	var buf bytes.Buffer
	SetLogWriters(LogWriters{Ops: &buf})
	defer SetLogWriters(LogWriters{})

	p := newTestPipeline(t, Config{Tracker: &stubTracker{}})
	p.backlog = backlogLimit + 500*time.Millisecond

	if got := p.nextSleep(cyclePeriod); got != cyclePeriod {
		t.Errorf("after overflow reset: sleep = %v, want %v", got, cyclePeriod)
	}
	if p.backlog != 0 {
		t.Errorf("backlog not reset: %v", p.backlog)
	}
	if got := strings.Count(buf.String(), "backlog interval overflow"); got != 1 {
		t.Errorf("expected 1 overflow log line, got %d:\n%s", got, buf.String())
	}
}

func TestRunDeliversNeutralPoseOnShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	maps := mapping.NewIdentityMappings()
	curves := make([]*trackingCurve, pose.NumAxes)
	for i := range curves {
		curves[i] = &trackingCurve{}
		maps[i] = mapping.NewMap(mapping.AxisOptions{Source: i}, curves[i], nil)
	}

	var cycles int
	trk := &stubTracker{dataFn: func() pose.Pose {
		cycles++
		if cycles >= 3 {
			cancel()
		}
		return pose.Pose{1, 2, 3, 0, 0, 0}
	}}

	sink := &captureProtocol{}
	lg := &memLogger{}
	p := newTestPipeline(t, Config{
		Tracker:  trk,
		Protocol: sink,
		Mappings: maps,
		Logger:   lg,
		Sleep:    func(time.Duration) {},
	})

	p.Run(ctx)

	if cycles < 3 {
		t.Fatalf("loop ran %d cycles, want at least 3", cycles)
	}
	if len(lg.header) != 25 {
		t.Errorf("header not written before the loop: %d columns", len(lg.header))
	}
	if got := sink.last(); got != (pose.Pose{}) {
		t.Errorf("final delivered pose not neutral: %v", got)
	}
	for i, c := range curves {
		if c.isActive() {
			t.Errorf("curve %s still tracking-active after shutdown", pose.AxisNames[i])
		}
	}
}
