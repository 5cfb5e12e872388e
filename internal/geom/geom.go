// Package geom provides the Euler-angle and rotation-matrix conversions
// used by the centering and relative-translation stages.
//
// Convention: EulerToRotation builds R = Rz(yaw) * Ry(pitch) * Rx(roll)
// with angles in radians, applied right to left. RotationToEuler is its
// inverse away from the pitch = ±90° singularity; near the singularity
// roll collapses to zero and yaw absorbs the remaining rotation.
package geom

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

const (
	// Rad2Deg converts radians to degrees.
	Rad2Deg = 180 / math.Pi
	// Deg2Rad converts degrees to radians.
	Deg2Rad = math.Pi / 180
)

// Euler3 holds three angles (yaw, pitch, roll) in radians, or a plain
// 3-vector when used as a translation.
type Euler3 [3]float64

// Identity returns the 3x3 identity rotation.
func Identity() *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		1, 0, 0,
		0, 1, 0,
		0, 0, 1,
	})
}

// EulerToRotation builds the rotation matrix Rz(yaw)*Ry(pitch)*Rx(roll).
func EulerToRotation(e Euler3) *mat.Dense {
	c1, s1 := math.Cos(e[0]), math.Sin(e[0])
	c2, s2 := math.Cos(e[1]), math.Sin(e[1])
	c3, s3 := math.Cos(e[2]), math.Sin(e[2])

	return mat.NewDense(3, 3, []float64{
		c1 * c2, c1*s2*s3 - c3*s1, s1*s3 + c1*c3*s2,
		c2 * s1, c1*c3 + s1*s2*s3, c3*s1*s2 - c1*s3,
		-s2, c2 * s3, c2 * c3,
	})
}

// RotationToEuler recovers (yaw, pitch, roll) in radians from a rotation
// matrix produced by EulerToRotation. At gimbal lock (|cos(pitch)| below
// 1e-10) roll is reported as zero.
func RotationToEuler(r *mat.Dense) Euler3 {
	cy := math.Hypot(r.At(2, 1), r.At(2, 2))
	if cy > 1e-10 {
		return Euler3{
			math.Atan2(r.At(1, 0), r.At(0, 0)),
			math.Atan2(-r.At(2, 0), cy),
			math.Atan2(r.At(2, 1), r.At(2, 2)),
		}
	}
	return Euler3{
		math.Atan2(-r.At(0, 1), r.At(1, 1)),
		math.Atan2(-r.At(2, 0), cy),
		0,
	}
}

// Transpose returns the transpose of r, which for an orthonormal
// rotation matrix is its inverse.
func Transpose(r *mat.Dense) *mat.Dense {
	var out mat.Dense
	out.CloneFrom(r.T())
	return &out
}

// Multiply returns a*b.
func Multiply(a, b *mat.Dense) *mat.Dense {
	var out mat.Dense
	out.Mul(a, b)
	return &out
}

// RotateVec returns r*v.
func RotateVec(r *mat.Dense, v Euler3) Euler3 {
	var out mat.VecDense
	out.MulVec(r, mat.NewVecDense(3, v[:]))
	return Euler3{out.AtVec(0), out.AtVec(1), out.AtVec(2)}
}

// Scale returns v scaled componentwise by k.
func Scale(k float64, v Euler3) Euler3 {
	return Euler3{k * v[0], k * v[1], k * v[2]}
}

// Add returns a+b componentwise.
func Add(a, b Euler3) Euler3 {
	return Euler3{a[0] + b[0], a[1] + b[1], a[2] + b[2]}
}

// Sub returns a-b componentwise.
func Sub(a, b Euler3) Euler3 {
	return Euler3{a[0] - b[0], a[1] - b[1], a[2] - b[2]}
}

// L1Norm returns |v0|+|v1|+|v2|.
func L1Norm(v Euler3) float64 {
	return math.Abs(v[0]) + math.Abs(v[1]) + math.Abs(v[2])
}
