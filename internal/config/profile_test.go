package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/skyrookie/opentrack/internal/pose"
	"github.com/skyrookie/opentrack/internal/reltrans"
)

func writeProfile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "profile.json")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestEmptyProfileDefaults(t *testing.T) {
	p := EmptyProfile()

	if !p.GetCenterAtStartup() {
		t.Error("center_at_startup should default to true")
	}
	if p.GetRelMode() != reltrans.Disabled {
		t.Error("rel_mode should default to disabled")
	}
	if p.GetNeckLengthCm() != 10 {
		t.Errorf("neck_length_cm default = %v", p.GetNeckLengthCm())
	}
	if p.GetFilterMaxSmoothing() != 150*time.Millisecond {
		t.Errorf("filter_max_smoothing default = %v", p.GetFilterMaxSmoothing())
	}
	if p.GetTrackerUDPAddress() != "0.0.0.0:4242" {
		t.Errorf("tracker_udp_address default = %v", p.GetTrackerUDPAddress())
	}
	if p.GetSerialPort() != "" || p.GetOutputUDPAddress() != "" {
		t.Error("optional addresses should default to empty")
	}
	if p.GetRelDisabled() != (pose.DisabledMask{}) {
		t.Error("rel disables should default to all false")
	}
}

func TestLoadProfile(t *testing.T) {
	path := writeProfile(t, `{
		"center_at_startup": false,
		"rel_mode": "non-center",
		"neck_enabled": true,
		"neck_length_cm": 12.5,
		"filter_min_smoothing": "5ms",
		"tracker_udp_address": "127.0.0.1:5555",
		"axes": {
			"yaw": {"invert": true, "rel_disabled": true},
			"tx": {"source": 6}
		}
	}`)

	p, err := LoadProfile(path)
	if err != nil {
		t.Fatal(err)
	}

	if p.GetCenterAtStartup() {
		t.Error("center_at_startup not read")
	}
	if p.GetRelMode() != reltrans.NonCenterOnly {
		t.Error("rel_mode not read")
	}
	if !p.GetNeckEnabled() || p.GetNeckLengthCm() != 12.5 {
		t.Error("neck settings not read")
	}
	if p.GetFilterMinSmoothing() != 5*time.Millisecond {
		t.Errorf("filter_min_smoothing = %v", p.GetFilterMinSmoothing())
	}
	if p.GetTrackerUDPAddress() != "127.0.0.1:5555" {
		t.Error("tracker address not read")
	}

	mask := p.GetRelDisabled()
	if !mask[pose.Yaw] || mask[pose.Pitch] {
		t.Errorf("rel disables = %v", mask)
	}
	if ax := p.Axis(pose.TX); ax == nil || ax.Source == nil || *ax.Source != pose.SourceDisabled {
		t.Error("tx axis section not read")
	}
	if p.Axis(pose.TY) != nil {
		t.Error("unmentioned axis should have nil section")
	}
}

func TestLoadProfileRejectsBadInput(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"bad rel mode", `{"rel_mode": "sometimes"}`},
		{"negative neck", `{"neck_length_cm": -1}`},
		{"bad duration", `{"filter_min_smoothing": "fast"}`},
		{"unknown axis", `{"axes": {"sway": {}}}`},
		{"source out of range", `{"axes": {"tx": {"source": 7}}}`},
		{"curve length mismatch", `{"axes": {"tx": {"curve_x": [0, 1], "curve_y": [0]}}}`},
		{"curve not increasing", `{"axes": {"tx": {"curve_x": [0, 0], "curve_y": [0, 1]}}}`},
		{"single point curve", `{"axes": {"tx": {"curve_x": [0], "curve_y": [0]}}}`},
		{"not json", `rel_mode = "always"`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := LoadProfile(writeProfile(t, tc.body)); err == nil {
				t.Error("expected load error")
			}
		})
	}
}

func TestLoadProfileRequiresJSONExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.yaml")
	if err := os.WriteFile(path, []byte("{}"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadProfile(path); err == nil {
		t.Error("expected error for non-JSON extension")
	}
}

func TestBuildMappings(t *testing.T) {
	path := writeProfile(t, `{
		"axes": {
			"yaw": {
				"invert": true,
				"curve_x": [-180, 0, 180],
				"curve_y": [-90, 0, 90],
				"alt_on_negative": true,
				"alt_curve_x": [-180, 180],
				"alt_curve_y": [-45, 45]
			},
			"tz": {"zero_offset": 2.5}
		}
	}`)

	p, err := LoadProfile(path)
	if err != nil {
		t.Fatal(err)
	}
	maps, err := p.BuildMappings()
	if err != nil {
		t.Fatal(err)
	}

	yaw := maps[pose.Yaw]
	if !yaw.Opts.Invert || !yaw.Opts.AltOnNegative {
		t.Error("yaw options not applied")
	}
	// Positive input takes the main half-gain curve.
	if got := yaw.Value(100); got != 50 {
		t.Errorf("yaw curve Value(100) = %v, want 50", got)
	}
	// Negative input routes through the quarter-gain alternate.
	if got := yaw.Value(-100); got != -25 {
		t.Errorf("yaw alt curve Value(-100) = %v, want -25", got)
	}

	if maps[pose.TZ].Opts.ZeroOffset != 2.5 {
		t.Error("tz zero offset not applied")
	}
	// Unmentioned axes keep identity curves.
	if got := maps[pose.TX].Value(42); got != 42 {
		t.Errorf("tx identity Value(42) = %v", got)
	}
}
