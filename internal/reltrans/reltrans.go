// Package reltrans implements relative translation compensation: while
// the head is turned away from the neutral viewing direction, raw
// translations are rotated into the rotated head frame and the
// correction is eased in and out through a staged low-pass interpolator
// so the view does not jump when the zone boundary is crossed.
package reltrans

import (
	"math"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/skyrookie/opentrack/internal/geom"
	"github.com/skyrookie/opentrack/internal/pose"
)

// Mode selects when translation compensation applies.
type Mode int

const (
	// Disabled passes translations through untouched.
	Disabled Mode = iota
	// AlwaysActive compensates on every cycle.
	AlwaysActive
	// NonCenterOnly compensates only while the view is turned away
	// from center, as decided by the yaw/pitch zone test.
	NonCenterOnly
)

// rcStages is the RC constant ladder (seconds) for the adaptive
// low-pass. Interpolation starts slow and tightens as stages advance.
var rcStages = [5]float64{2, 1, 0.5, 0.1, 0.05}

// rcStageDurations holds how long each stage lasts (seconds) before the
// next one takes over. The final stage is terminal.
var rcStageDurations = [4]float64{1, 0.25, 0.25, 2}

// convergenceEps is the L1 residual below which interpolation stops.
const convergenceEps = 0.01

// Compensator owns the interpolation state. It is confined to the
// pipeline worker; none of its methods are safe for concurrent use.
type Compensator struct {
	interpPos     geom.Euler3
	inZone        bool
	interpolating bool
	lastSample    time.Time
	stageEntered  time.Time
	stage         int

	now func() time.Time
}

// New returns a Compensator in the not-interpolating state.
func New() *Compensator {
	return &Compensator{now: time.Now}
}

// NewWithClock returns a Compensator using the given clock. Tests use
// this to drive stage timing deterministically.
func NewWithClock(now func() time.Time) *Compensator {
	return &Compensator{now: now}
}

// OnCenter resets the smoothed offset and leaves the zone, so a
// centering event never triggers a spurious interpolation start.
func (c *Compensator) OnCenter() {
	c.interpPos = geom.Euler3{}
	c.inZone = false
	c.interpolating = false
}

// InZone reports whether the last Apply call found the view inside the
// compensation zone.
func (c *Compensator) InZone() bool { return c.inZone }

// Interpolating reports whether the staged interpolator is running.
func (c *Compensator) Interpolating() bool { return c.interpolating }

// Stage returns the current RC ladder index.
func (c *Compensator) Stage() int { return c.stage }

// SmoothedOffset returns the current smoothed translation.
func (c *Compensator) SmoothedOffset() geom.Euler3 { return c.interpPos }

// Rotate applies R to the translation with the axis remap between the
// pose frame and the rotation frame. TY carries the yaw axis, so the
// components are fed in as (z, -x, -y); the sign changes encode the
// handedness difference between the two coordinate systems. Axes marked
// disabled keep their input values.
func (c *Compensator) Rotate(r *mat.Dense, in geom.Euler3, disabled [3]bool) geom.Euler3 {
	const (
		tbZ = 0
		tbX = 1
		tbY = 2
	)

	ret := geom.RotateVec(r, geom.Euler3{in[pose.TZ], -in[pose.TX], -in[pose.TY]})

	var out geom.Euler3
	if disabled[pose.TZ] {
		out[pose.TZ] = in[pose.TZ]
	} else {
		out[pose.TZ] = ret[tbZ]
	}
	if disabled[pose.TY] {
		out[pose.TY] = in[pose.TY]
	} else {
		out[pose.TY] = -ret[tbY]
	}
	if disabled[pose.TX] {
		out[pose.TX] = in[pose.TX]
	} else {
		out[pose.TX] = -ret[tbX]
	}
	return out
}

// Apply runs one compensation cycle on value and returns the pose with
// the translation replaced by the compensated one. Rotation components
// pass through unchanged. The disabled mask covers all six axes: the
// first three suppress translation output axes, the last three exclude
// rotation sources from the compensation rotation.
//
// Inputs are assumed finite; the orchestrator's fault checks run first.
func (c *Compensator) Apply(mode Mode, value pose.Pose, disabled pose.DisabledMask, neckEnabled bool, neckLength float64) pose.Pose {
	rel := geom.Euler3{value[pose.TX], value[pose.TY], value[pose.TZ]}

	if mode == Disabled {
		c.interpolating = false
		c.inZone = false
		return value
	}

	inZone := true
	if mode == NonCenterOnly {
		lookingAhead := value[pose.Pitch] < 20
		if lookingAhead {
			inZone = math.Abs(value[pose.Yaw]) > 35
		} else {
			inZone = math.Abs(value[pose.Yaw]) > 65
		}
	}

	if !c.interpolating && c.inZone != inZone {
		c.interpolating = true
		c.lastSample = c.now()
		c.stageEntered = c.lastSample
		c.stage = 0
	}

	c.inZone = inZone

	if inZone {
		r := geom.EulerToRotation(geom.Euler3{
			value[pose.Yaw] * geom.Deg2Rad * b2f(!disabled[pose.Yaw]),
			value[pose.Pitch] * geom.Deg2Rad * b2f(!disabled[pose.Pitch]),
			value[pose.Roll] * geom.Deg2Rad * b2f(!disabled[pose.Roll]),
		})

		rel = c.Rotate(r, rel, [3]bool{disabled[pose.TX], disabled[pose.TY], disabled[pose.TZ]})

		// Dynamic neck: the head rotates about a pivot behind the
		// sensor, not the sensor itself. The enable condition is kept
		// exactly as the reference behaviour defines it, even though
		// the second operand is always false when mode is
		// NonCenterOnly inside the zone.
		if neckEnabled && (mode != NonCenterOnly || !inZone) {
			neck := c.applyNeck(r, -neckLength, disabled[pose.TZ])
			rel = geom.Add(rel, neck)
		}
	}

	if c.interpolating {
		now := c.now()
		dt := now.Sub(c.lastSample).Seconds()
		c.lastSample = now

		if c.stage+1 < len(rcStages) &&
			now.Sub(c.stageEntered).Seconds() > rcStageDurations[c.stage] {
			c.stage++
			c.stageEntered = now
		}

		rc := rcStages[c.stage]
		alpha := dt / (dt + rc)

		c.interpPos = geom.Add(geom.Scale(1-alpha, c.interpPos), geom.Scale(alpha, rel))

		residual := geom.Sub(rel, c.interpPos)
		rel = c.interpPos

		if geom.L1Norm(residual) < convergenceEps {
			c.interpolating = false
		}
	} else {
		c.interpPos = rel
	}

	value[pose.TX] = rel[0]
	value[pose.TY] = rel[1]
	value[pose.TZ] = rel[2]
	return value
}

// applyNeck models the head pivot: rotate the neck vector (0,0,nz),
// then remove the static part so only the rotation-induced displacement
// remains. With TZ disabled the z correction is dropped entirely.
func (c *Compensator) applyNeck(r *mat.Dense, nz float64, disableTZ bool) geom.Euler3 {
	neck := c.Rotate(r, geom.Euler3{0, 0, nz}, [3]bool{})
	neck[pose.TZ] -= nz

	if disableTZ {
		neck[pose.TZ] = 0
	}
	return neck
}

func b2f(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
