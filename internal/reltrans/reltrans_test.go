package reltrans

import (
	"math"
	"testing"
	"time"

	"github.com/skyrookie/opentrack/internal/geom"
	"github.com/skyrookie/opentrack/internal/pose"
)

// fakeClock advances only when told to, making stage timing exact.
type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Unix(1000, 0)}
}

func (f *fakeClock) now() time.Time { return f.t }

func (f *fakeClock) advance(d time.Duration) { f.t = f.t.Add(d) }

func inZonePose() pose.Pose {
	// Pitch below 20 and |yaw| above 35 puts the view in the zone.
	return pose.Pose{10, 5, -3, 70, 10, 0}
}

func centeredPose() pose.Pose {
	return pose.Pose{10, 5, -3, 0, 0, 0}
}

func TestDisabledModePassesThrough(t *testing.T) {
	clk := newFakeClock()
	c := NewWithClock(clk.now)

	in := inZonePose()
	out := c.Apply(Disabled, in, pose.DisabledMask{}, false, 0)

	if out != in {
		t.Errorf("disabled mode changed pose: %v", out)
	}
	if c.InZone() || c.Interpolating() {
		t.Error("disabled mode left flags set")
	}
}

func TestZoneMembership(t *testing.T) {
	tests := []struct {
		name       string
		yaw, pitch float64
		want       bool
	}{
		{"straight ahead", 0, 0, false},
		{"small yaw", 30, 0, false},
		{"large yaw low pitch", 70, 10, true},
		{"negative large yaw", -70, 10, true},
		{"boundary yaw low pitch", 35, 10, false},
		{"large yaw high pitch below threshold", 50, 25, false},
		{"very large yaw high pitch", 70, 25, true},
		{"boundary yaw high pitch", 65, 25, false},
		{"pitch exactly twenty uses high threshold", 50, 20, false},
	}

	for _, tt := range tests {
		clk := newFakeClock()
		c := NewWithClock(clk.now)
		p := pose.Pose{0, 0, 0, tt.yaw, tt.pitch, 0}
		c.Apply(NonCenterOnly, p, pose.DisabledMask{}, false, 0)
		if c.InZone() != tt.want {
			t.Errorf("%s: yaw=%v pitch=%v: inZone=%v, want %v",
				tt.name, tt.yaw, tt.pitch, c.InZone(), tt.want)
		}
	}
}

func TestZoneFlipStartsStageZero(t *testing.T) {
	clk := newFakeClock()
	c := NewWithClock(clk.now)

	c.Apply(NonCenterOnly, inZonePose(), pose.DisabledMask{}, false, 0)

	if !c.Interpolating() {
		t.Fatal("zone entry did not start interpolation")
	}
	if c.Stage() != 0 {
		t.Errorf("stage = %d, want 0", c.Stage())
	}
	if rcStages[0] != 2.0 {
		t.Errorf("first RC constant = %v, want 2.0", rcStages[0])
	}
}

func TestStageAdvanceIsMonotonicAndCapped(t *testing.T) {
	clk := newFakeClock()
	c := NewWithClock(clk.now)

	// Drive with a distant target so the residual never converges.
	far := pose.Pose{500, 500, 500, 70, 10, 0}
	c.Apply(NonCenterOnly, far, pose.DisabledMask{}, false, 0)

	prev := c.Stage()
	for i := 0; i < 3000; i++ {
		clk.advance(4 * time.Millisecond)
		c.Apply(NonCenterOnly, far, pose.DisabledMask{}, false, 0)
		if !c.Interpolating() {
			t.Fatalf("interpolation converged unexpectedly at iteration %d", i)
		}
		if c.Stage() < prev {
			t.Fatalf("stage went backward: %d -> %d", prev, c.Stage())
		}
		prev = c.Stage()
	}

	if prev != len(rcStages)-1 {
		t.Errorf("stage after 12s = %d, want terminal %d", prev, len(rcStages)-1)
	}
}

func TestStageTimingLadder(t *testing.T) {
	clk := newFakeClock()
	c := NewWithClock(clk.now)
	far := pose.Pose{500, 500, 500, 70, 10, 0}
	c.Apply(NonCenterOnly, far, pose.DisabledMask{}, false, 0)

	// Stage 0 lasts 1s, then 0.25s, 0.25s, 2s.
	wantAfter := []struct {
		elapsed time.Duration
		stage   int
	}{
		{500 * time.Millisecond, 0},
		{600 * time.Millisecond, 1}, // total 1.1s
		{200 * time.Millisecond, 1}, // 1.3s, stage 1 since 1.1s
		{100 * time.Millisecond, 2}, // 1.4s
		{300 * time.Millisecond, 3}, // 1.7s
		{1900 * time.Millisecond, 3},
		{200 * time.Millisecond, 4},
		{10 * time.Second, 4}, // terminal
	}

	for i, step := range wantAfter {
		clk.advance(step.elapsed)
		c.Apply(NonCenterOnly, far, pose.DisabledMask{}, false, 0)
		if c.Stage() != step.stage {
			t.Fatalf("step %d: stage = %d, want %d", i, c.Stage(), step.stage)
		}
	}
}

func TestConvergenceStopsInterpolation(t *testing.T) {
	clk := newFakeClock()
	c := NewWithClock(clk.now)

	in := inZonePose()
	c.Apply(NonCenterOnly, in, pose.DisabledMask{}, false, 0)

	var prevResidual = math.Inf(1)
	converged := false
	for i := 0; i < 100000; i++ {
		clk.advance(4 * time.Millisecond)
		out := c.Apply(NonCenterOnly, in, pose.DisabledMask{}, false, 0)

		target := c.Rotate(
			geom.EulerToRotation(geom.Euler3{70 * geom.Deg2Rad, 10 * geom.Deg2Rad, 0}),
			geom.Euler3{in[pose.TX], in[pose.TY], in[pose.TZ]},
			[3]bool{},
		)
		residual := geom.L1Norm(geom.Sub(target, geom.Euler3{out[pose.TX], out[pose.TY], out[pose.TZ]}))
		if residual > prevResidual+1e-9 {
			t.Fatalf("residual increased for constant input: %v -> %v", prevResidual, residual)
		}
		prevResidual = residual

		if !c.Interpolating() {
			converged = true
			break
		}
	}

	if !converged {
		t.Fatal("interpolation never converged for constant input")
	}
	if prevResidual >= convergenceEps {
		t.Errorf("residual at convergence = %v, want < %v", prevResidual, convergenceEps)
	}
}

func TestOnCenterSuppressesSpuriousStart(t *testing.T) {
	clk := newFakeClock()
	c := NewWithClock(clk.now)

	// Get into the zone and interpolating.
	c.Apply(NonCenterOnly, inZonePose(), pose.DisabledMask{}, false, 0)
	if !c.InZone() {
		t.Fatal("setup: expected in zone")
	}

	c.OnCenter()

	if c.InZone() || c.Interpolating() {
		t.Fatal("OnCenter did not clear state")
	}

	// Next sample is back at center: same zone membership, so no
	// transition fires and the fresh value passes straight through.
	clk.advance(4 * time.Millisecond)
	in := centeredPose()
	out := c.Apply(NonCenterOnly, in, pose.DisabledMask{}, false, 0)

	if c.Interpolating() {
		t.Error("centering alone triggered interpolation")
	}
	if out != in {
		t.Errorf("pose changed outside zone: %v, want %v", out, in)
	}
}

func TestZoneExitContinuesUntilConverged(t *testing.T) {
	clk := newFakeClock()
	c := NewWithClock(clk.now)

	// Enter the zone, accumulate some offset.
	for i := 0; i < 50; i++ {
		c.Apply(NonCenterOnly, inZonePose(), pose.DisabledMask{}, false, 0)
		clk.advance(4 * time.Millisecond)
	}

	// Leave the zone; interpolation keeps easing back toward the raw
	// translation instead of snapping.
	out := c.Apply(NonCenterOnly, centeredPose(), pose.DisabledMask{}, false, 0)
	if !c.Interpolating() {
		t.Skip("already converged before zone exit")
	}
	raw := centeredPose()
	if out[pose.TX] == raw[pose.TX] && out[pose.TY] == raw[pose.TY] && out[pose.TZ] == raw[pose.TZ] {
		t.Error("zone exit snapped instead of interpolating")
	}
}

func TestRotateIdentity(t *testing.T) {
	c := New()
	in := geom.Euler3{1, 2, 3}
	got := c.Rotate(geom.Identity(), in, [3]bool{})
	for i := 0; i < 3; i++ {
		if math.Abs(got[i]-in[i]) > 1e-12 {
			t.Errorf("identity rotate changed component %d: %v", i, got[i])
		}
	}
}

func TestRotateDisabledAxesPreserved(t *testing.T) {
	c := New()
	r := geom.EulerToRotation(geom.Euler3{1.2, -0.4, 0.8})
	in := geom.Euler3{1, 2, 3}

	got := c.Rotate(r, in, [3]bool{true, true, true})
	if got != in {
		t.Errorf("fully disabled rotate changed input: %v", got)
	}

	got = c.Rotate(r, in, [3]bool{false, true, false})
	if got[pose.TY] != in[pose.TY] {
		t.Errorf("disabled TY changed: %v", got[pose.TY])
	}
	if got[pose.TX] == in[pose.TX] && got[pose.TZ] == in[pose.TZ] {
		t.Error("enabled axes did not rotate")
	}
}

func TestNeckZeroAtIdentityRotation(t *testing.T) {
	c := New()
	neck := c.applyNeck(geom.Identity(), -12, false)
	if geom.L1Norm(neck) > 1e-12 {
		t.Errorf("neck offset at identity rotation = %v, want zero", neck)
	}
}

func TestNeckCorrectionAppliedInAlwaysActive(t *testing.T) {
	clk := newFakeClock()
	withNeck := NewWithClock(clk.now)
	withoutNeck := NewWithClock(clk.now)

	in := pose.Pose{0, 0, 0, 45, 0, 0}
	withNeck.Apply(AlwaysActive, in, pose.DisabledMask{}, true, 10)
	withoutNeck.Apply(AlwaysActive, in, pose.DisabledMask{}, false, 0)

	// A large step drives both interpolators to their targets.
	clk.advance(time.Hour)
	a := withNeck.Apply(AlwaysActive, in, pose.DisabledMask{}, true, 10)
	b := withoutNeck.Apply(AlwaysActive, in, pose.DisabledMask{}, false, 0)

	if a == b {
		t.Error("neck model had no effect under AlwaysActive with rotated head")
	}
}

func TestNeckSuppressedInZoneForNonCenterOnly(t *testing.T) {
	clk := newFakeClock()
	withNeck := NewWithClock(clk.now)
	withoutNeck := NewWithClock(clk.now)

	in := inZonePose()
	a := withNeck.Apply(NonCenterOnly, in, pose.DisabledMask{}, true, 10)
	b := withoutNeck.Apply(NonCenterOnly, in, pose.DisabledMask{}, false, 0)

	if a != b {
		t.Error("neck applied inside zone under NonCenterOnly; enable condition requires it off")
	}
}

func TestDisabledRotationSourcesExcluded(t *testing.T) {
	clk := newFakeClock()
	c := NewWithClock(clk.now)

	// With all rotation sources disabled the compensation rotation is
	// identity, so the emitted translation equals the raw one.
	in := inZonePose()
	mask := pose.DisabledMask{}
	mask[pose.Yaw] = true
	mask[pose.Pitch] = true
	mask[pose.Roll] = true

	c.Apply(AlwaysActive, in, mask, false, 0)
	clk.advance(time.Hour)
	c.Apply(AlwaysActive, in, mask, false, 0)
	if c.Interpolating() {
		t.Fatal("interpolator did not converge after a large step")
	}

	clk.advance(4 * time.Millisecond)
	out := c.Apply(AlwaysActive, in, mask, false, 0)
	if out != in {
		t.Errorf("identity compensation changed pose: %v", out)
	}
}
