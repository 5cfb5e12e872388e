package pose

import "math"

// Axis indices into a Pose. The first three components are translations
// in centimetres, the last three rotations in degrees.
const (
	TX = iota
	TY
	TZ
	Yaw
	Pitch
	Roll
	NumAxes
)

// SourceDisabled is the axis source index meaning "no source, emit zero".
const SourceDisabled = 6

// AxisNames maps axis indices to their conventional short names.
var AxisNames = [NumAxes]string{"TX", "TY", "TZ", "Yaw", "Pitch", "Roll"}

// Pose is a six-component state vector: TX, TY, TZ in centimetres
// followed by Yaw, Pitch, Roll in degrees.
type Pose [NumAxes]float64

// DisabledMask marks axes excluded from a given transform stage.
// Each stage interprets its own mask; the axis-selection mask and the
// relative-translation mask are independent.
type DisabledMask [NumAxes]bool

// IsFinite reports whether every component is a finite number.
// NaN or infinity anywhere makes the whole pose unusable downstream.
func (p Pose) IsFinite() bool {
	for _, v := range p {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// ClampRotations normalises the rotation components into [-180, 180]
// degrees. Values overshooting the range by more than 0.01 degrees wrap
// to the complementary angle; anything left outside is clamped.
// Serial and UDP trackers can deliver accumulated angles well past 360.
func ClampRotations(p Pose) Pose {
	for i := Yaw; i <= Roll; i++ {
		v := math.Mod(p[i], 360)
		if math.Abs(v)-1e-2 > 180 {
			v = math.Mod(v+math.Copysign(180, v), 360) - math.Copysign(180, v)
		}
		p[i] = clamp(v, -180, 180)
	}
	return p
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
