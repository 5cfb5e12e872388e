package config

import (
	"fmt"

	"github.com/skyrookie/opentrack/internal/mapping"
	"github.com/skyrookie/opentrack/internal/pose"
)

// BuildMappings turns the profile's axis sections into response
// mappings. Axes the profile does not mention keep identity curves.
func (p *Profile) BuildMappings() (*mapping.Mappings, error) {
	maps := mapping.NewIdentityMappings()

	for key, idx := range axisKeys {
		ax := p.Axes[key]
		if ax == nil {
			continue
		}

		opts := maps[idx].Opts
		if ax.Source != nil {
			opts.Source = *ax.Source
		}
		if ax.Invert != nil {
			opts.Invert = *ax.Invert
		}
		if ax.AltOnNegative != nil {
			opts.AltOnNegative = *ax.AltOnNegative
		}
		if ax.ZeroOffset != nil {
			opts.ZeroOffset = *ax.ZeroOffset
		}

		main := mapping.Curve(nil)
		if len(ax.CurveX) > 0 {
			s, err := mapping.NewSpline(ax.CurveX, ax.CurveY)
			if err != nil {
				return nil, fmt.Errorf("axis %s: %w", key, err)
			}
			main = s
		}
		var alt mapping.Curve
		if len(ax.AltCurveX) > 0 {
			s, err := mapping.NewSpline(ax.AltCurveX, ax.AltCurveY)
			if err != nil {
				return nil, fmt.Errorf("axis %s alt curve: %w", key, err)
			}
			alt = s
		}

		if main == nil {
			// Keep the identity curve, rebind the options.
			maps[idx].Opts = opts
			if alt != nil {
				maps[idx] = mapping.NewMap(opts, identityCurve(idx), alt)
			}
			continue
		}
		maps[idx] = mapping.NewMap(opts, main, alt)
	}
	return maps, nil
}

// identityCurve builds the default passthrough curve for one axis,
// matching the ranges NewIdentityMappings uses.
func identityCurve(idx int) mapping.Curve {
	limit := 100.0
	if idx >= pose.Yaw {
		limit = 180
	}
	return mapping.MustSpline([]float64{-limit, limit}, []float64{-limit, limit})
}
