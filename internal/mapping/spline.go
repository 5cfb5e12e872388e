package mapping

import (
	"fmt"
	"sync"

	"gonum.org/v1/gonum/interp"
)

// Spline is a piecewise-linear response curve over a fixed input range.
// Inputs outside the range clamp to the nearest endpoint. The last
// evaluated value and the tracking-active hint are retained for UI
// display and may be read from other goroutines.
type Spline struct {
	pl         interp.PiecewiseLinear
	xmin, xmax float64

	mu     sync.Mutex
	active bool
	last   float64
}

// NewSpline fits a curve through the given control points. The xs must
// be strictly increasing and at least two points long.
func NewSpline(xs, ys []float64) (*Spline, error) {
	if len(xs) < 2 {
		return nil, fmt.Errorf("spline needs at least 2 control points, got %d", len(xs))
	}
	s := &Spline{xmin: xs[0], xmax: xs[len(xs)-1]}
	if err := s.pl.Fit(xs, ys); err != nil {
		return nil, fmt.Errorf("fit spline: %w", err)
	}
	return s, nil
}

// MustSpline is NewSpline for statically known control points.
func MustSpline(xs, ys []float64) *Spline {
	s, err := NewSpline(xs, ys)
	if err != nil {
		panic(err)
	}
	return s
}

// Value evaluates the curve at x, clamping x into the control range.
func (s *Spline) Value(x float64) float64 {
	if x < s.xmin {
		x = s.xmin
	} else if x > s.xmax {
		x = s.xmax
	}
	v := s.pl.Predict(x)

	s.mu.Lock()
	s.last = v
	s.mu.Unlock()
	return v
}

// SetTrackingActive records whether this curve is the live one of its
// primary/alternate pair.
func (s *Spline) SetTrackingActive(active bool) {
	s.mu.Lock()
	s.active = active
	s.mu.Unlock()
}

// TrackingState returns the active hint and the last evaluated value.
func (s *Spline) TrackingState() (active bool, last float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active, s.last
}
