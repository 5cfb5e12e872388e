package pipeline

import (
	"context"
	"runtime"
	"time"

	"github.com/skyrookie/opentrack/internal/pose"
)

const (
	// cyclePeriod is the target cadence, ~250 Hz.
	cyclePeriod = 4 * time.Millisecond
	// maxSleep bounds a single inter-cycle sleep.
	maxSleep = 10 * time.Millisecond
	// backlogLimit resets drift accumulation after a pathological
	// scheduler stall instead of letting it compound.
	backlogLimit = 3 * time.Second
)

// Run drives the per-cycle step until ctx is cancelled. It must be the
// only goroutine executing pipeline logic. On exit it delivers one
// neutral pose, since the filter may keep the output away from exact
// origin, and deactivates the mapping-curve tracking hints.
func (p *Pipeline) Run(ctx context.Context) {
	// The loop owns its OS thread: cycle timing degrades when the
	// runtime migrates or preempts it mid-sleep.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if p.logger != nil {
		if err := p.logger.WriteHeader(headerColumns()); err != nil {
			Opsf("cycle log header write failed: %v", err)
		}
	}

	Opsf("pipeline loop starting, period %v", cyclePeriod)

	last := p.now()
	for ctx.Err() == nil {
		start := p.now()
		p.runCycle(start.Sub(last))
		last = start

		elapsed := p.now().Sub(start)
		p.sleep(p.nextSleep(elapsed))
	}

	p.protocol.Pose(pose.Pose{})
	for i := range p.maps {
		p.maps[i].Deactivate()
	}
	Opsf("pipeline loop stopped")
}

// nextSleep computes the drift-compensated inter-cycle sleep. The
// signed backlog accumulates (elapsed - target) so oversleeping
// shortens future sleeps and undersleeping lengthens them, clamped to
// [0, maxSleep].
func (p *Pipeline) nextSleep(elapsed time.Duration) time.Duration {
	if p.backlog > backlogLimit || p.backlog < -backlogLimit {
		Opsf("backlog interval overflow: %v", p.backlog)
		p.backlog = 0
	}
	p.backlog += elapsed - cyclePeriod

	s := cyclePeriod - p.backlog
	if s < 0 {
		s = 0
	} else if s > maxSleep {
		s = maxSleep
	}
	return s
}
