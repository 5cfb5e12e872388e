// Package mapping evaluates per-axis response curves. Each axis carries
// a primary and an alternate curve; the alternate can take over for
// negative inputs so asymmetric responses (lean left vs lean right) are
// possible without a single curve crossing zero awkwardly.
package mapping

import "github.com/skyrookie/opentrack/internal/pose"

// Curve evaluates an axis response curve. SetTrackingActive hints which
// curve of a primary/alternate pair is currently live; UI layers use it
// to highlight the active curve.
type Curve interface {
	Value(x float64) float64
	SetTrackingActive(active bool)
}

// AxisOptions is the per-axis configuration surface read once per cycle.
type AxisOptions struct {
	// Source selects which raw pose component feeds this output axis:
	// 0-5 pick a component, pose.SourceDisabled means no source.
	Source int
	// Invert negates the axis. Rotation axes are negated during
	// centering, before the relative-translation stage; translation
	// axes after it.
	Invert bool
	// AltOnNegative routes negative inputs through the alternate curve.
	AltOnNegative bool
	// ZeroOffset is added to the final output, sign-flipped when the
	// axis is inverted.
	ZeroOffset float64
}

// Map binds one output axis to its options and curve pair.
type Map struct {
	Opts AxisOptions
	main Curve
	alt  Curve
}

// NewMap builds a Map. A nil alt falls back to the main curve.
func NewMap(opts AxisOptions, main, alt Curve) *Map {
	if alt == nil {
		alt = main
	}
	return &Map{Opts: opts, main: main, alt: alt}
}

// Value routes x through the primary or alternate curve and updates the
// tracking-active hints on both.
func (m *Map) Value(x float64) float64 {
	useAlt := x < 0 && m.Opts.AltOnNegative
	m.main.SetTrackingActive(!useAlt)
	m.alt.SetTrackingActive(useAlt)
	if useAlt {
		return m.alt.Value(x)
	}
	return m.main.Value(x)
}

// Deactivate clears the tracking-active hint on both curves. Called
// once at shutdown.
func (m *Map) Deactivate() {
	m.main.SetTrackingActive(false)
	m.alt.SetTrackingActive(false)
}

// Mappings holds one Map per pose axis.
type Mappings [pose.NumAxes]*Map

// NewIdentityMappings returns mappings where every axis passes its own
// raw component through unchanged. Translation axes span ±100 cm,
// rotation axes ±180°.
func NewIdentityMappings() *Mappings {
	var ms Mappings
	for i := range ms {
		limit := 100.0
		if i >= pose.Yaw {
			limit = 180
		}
		ms[i] = NewMap(AxisOptions{Source: i}, MustSpline(
			[]float64{-limit, limit},
			[]float64{-limit, limit},
		), nil)
	}
	return &ms
}
