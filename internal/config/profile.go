// Package config loads the head-tracking profile. All fields are
// pointers so partial JSON files are safe: the Get* accessors fall back
// to defaults for anything the file omits.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/skyrookie/opentrack/internal/pose"
	"github.com/skyrookie/opentrack/internal/reltrans"
)

// AxisProfile holds the per-axis tuning surface. Curve points, when
// present, define the piecewise-linear response; X values must be
// strictly increasing.
type AxisProfile struct {
	Source        *int     `json:"source,omitempty"`
	Invert        *bool    `json:"invert,omitempty"`
	AltOnNegative *bool    `json:"alt_on_negative,omitempty"`
	ZeroOffset    *float64 `json:"zero_offset,omitempty"`
	RelDisabled   *bool    `json:"rel_disabled,omitempty"`

	CurveX    []float64 `json:"curve_x,omitempty"`
	CurveY    []float64 `json:"curve_y,omitempty"`
	AltCurveX []float64 `json:"alt_curve_x,omitempty"`
	AltCurveY []float64 `json:"alt_curve_y,omitempty"`
}

// Profile is the root configuration document.
type Profile struct {
	CenterAtStartup *bool `json:"center_at_startup,omitempty"`

	// RelMode is one of "disabled", "always", "non-center".
	RelMode      *string  `json:"rel_mode,omitempty"`
	NeckEnabled  *bool    `json:"neck_enabled,omitempty"`
	NeckLengthCm *float64 `json:"neck_length_cm,omitempty"`

	// Filter params
	FilterEnabled        *bool    `json:"filter_enabled,omitempty"`
	FilterMinSmoothing   *string  `json:"filter_min_smoothing,omitempty"` // duration string like "10ms"
	FilterMaxSmoothing   *string  `json:"filter_max_smoothing,omitempty"` // duration string like "150ms"
	FilterResponsiveness *float64 `json:"filter_responsiveness,omitempty"`

	// Tracker params
	TrackerUDPAddress *string `json:"tracker_udp_address,omitempty"`
	SerialPort        *string `json:"serial_port,omitempty"`
	SerialBaud        *int    `json:"serial_baud,omitempty"`

	// Output params
	OutputUDPAddress *string `json:"output_udp_address,omitempty"`
	MQTTBroker       *string `json:"mqtt_broker,omitempty"`
	MQTTTopic        *string `json:"mqtt_topic,omitempty"`
	HTTPAddress      *string `json:"http_address,omitempty"`

	// Persistence params
	CycleLogPath *string `json:"cycle_log_path,omitempty"`
	RecorderPath *string `json:"recorder_path,omitempty"`

	// Axes is keyed by lower-case axis name: tx, ty, tz, yaw, pitch,
	// roll. Missing axes keep identity behaviour.
	Axes map[string]*AxisProfile `json:"axes,omitempty"`
}

// axisKeys maps the JSON axis keys to pose indices.
var axisKeys = map[string]int{
	"tx": pose.TX, "ty": pose.TY, "tz": pose.TZ,
	"yaw": pose.Yaw, "pitch": pose.Pitch, "roll": pose.Roll,
}

// EmptyProfile returns a Profile with every field unset.
func EmptyProfile() *Profile {
	return &Profile{}
}

// LoadProfile reads and validates a JSON profile. Fields omitted from
// the file keep their defaults, so partial profiles are safe.
func LoadProfile(path string) (*Profile, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("profile must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat profile: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("profile too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile: %w", err)
	}

	p := EmptyProfile()
	if err := json.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("failed to parse profile JSON: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid profile: %w", err)
	}
	return p, nil
}

// Validate checks field values and axis curve shapes.
func (p *Profile) Validate() error {
	if p.RelMode != nil {
		switch *p.RelMode {
		case "disabled", "always", "non-center":
		default:
			return fmt.Errorf("rel_mode must be disabled, always or non-center, got %q", *p.RelMode)
		}
	}
	if p.NeckLengthCm != nil && *p.NeckLengthCm < 0 {
		return fmt.Errorf("neck_length_cm must be non-negative, got %f", *p.NeckLengthCm)
	}
	if p.SerialBaud != nil && *p.SerialBaud <= 0 {
		return fmt.Errorf("serial_baud must be positive, got %d", *p.SerialBaud)
	}
	for _, field := range []struct {
		name  string
		value *string
	}{
		{"filter_min_smoothing", p.FilterMinSmoothing},
		{"filter_max_smoothing", p.FilterMaxSmoothing},
	} {
		if field.value != nil && *field.value != "" {
			if _, err := time.ParseDuration(*field.value); err != nil {
				return fmt.Errorf("invalid %s %q: %w", field.name, *field.value, err)
			}
		}
	}
	if p.FilterResponsiveness != nil && *p.FilterResponsiveness <= 0 {
		return fmt.Errorf("filter_responsiveness must be positive, got %f", *p.FilterResponsiveness)
	}

	for key, ax := range p.Axes {
		if _, ok := axisKeys[key]; !ok {
			return fmt.Errorf("unknown axis %q", key)
		}
		if ax == nil {
			continue
		}
		if ax.Source != nil && (*ax.Source < 0 || *ax.Source > pose.SourceDisabled) {
			return fmt.Errorf("axis %s: source must be 0..%d, got %d", key, pose.SourceDisabled, *ax.Source)
		}
		if err := validateCurve(key, "curve", ax.CurveX, ax.CurveY); err != nil {
			return err
		}
		if err := validateCurve(key, "alt_curve", ax.AltCurveX, ax.AltCurveY); err != nil {
			return err
		}
	}
	return nil
}

func validateCurve(axis, name string, xs, ys []float64) error {
	if len(xs) == 0 && len(ys) == 0 {
		return nil
	}
	if len(xs) != len(ys) {
		return fmt.Errorf("axis %s: %s_x has %d points, %s_y has %d", axis, name, len(xs), name, len(ys))
	}
	if len(xs) < 2 {
		return fmt.Errorf("axis %s: %s needs at least 2 points", axis, name)
	}
	for i := 1; i < len(xs); i++ {
		if xs[i] <= xs[i-1] {
			return fmt.Errorf("axis %s: %s_x must be strictly increasing", axis, name)
		}
	}
	return nil
}

// Axis returns the profile for a pose axis index, or nil when the
// profile doesn't mention it.
func (p *Profile) Axis(i int) *AxisProfile {
	for key, idx := range axisKeys {
		if idx == i {
			return p.Axes[key]
		}
	}
	return nil
}

// GetCenterAtStartup returns the center_at_startup value or the default.
func (p *Profile) GetCenterAtStartup() bool {
	if p.CenterAtStartup == nil {
		return true
	}
	return *p.CenterAtStartup
}

// GetRelMode returns the parsed relative-translation mode.
func (p *Profile) GetRelMode() reltrans.Mode {
	if p.RelMode == nil {
		return reltrans.Disabled
	}
	switch *p.RelMode {
	case "always":
		return reltrans.AlwaysActive
	case "non-center":
		return reltrans.NonCenterOnly
	default:
		return reltrans.Disabled
	}
}

// GetRelDisabled collects the per-axis rel_disabled flags.
func (p *Profile) GetRelDisabled() pose.DisabledMask {
	var mask pose.DisabledMask
	for key, idx := range axisKeys {
		if ax := p.Axes[key]; ax != nil && ax.RelDisabled != nil {
			mask[idx] = *ax.RelDisabled
		}
	}
	return mask
}

// GetNeckEnabled returns the neck_enabled value or the default.
func (p *Profile) GetNeckEnabled() bool {
	if p.NeckEnabled == nil {
		return false
	}
	return *p.NeckEnabled
}

// GetNeckLengthCm returns the neck_length_cm value or the default.
func (p *Profile) GetNeckLengthCm() float64 {
	if p.NeckLengthCm == nil {
		return 10
	}
	return *p.NeckLengthCm
}

// GetFilterEnabled returns the filter_enabled value or the default.
func (p *Profile) GetFilterEnabled() bool {
	if p.FilterEnabled == nil {
		return true
	}
	return *p.FilterEnabled
}

// GetFilterMinSmoothing parses filter_min_smoothing or returns the default.
func (p *Profile) GetFilterMinSmoothing() time.Duration {
	return durationOr(p.FilterMinSmoothing, 10*time.Millisecond)
}

// GetFilterMaxSmoothing parses filter_max_smoothing or returns the default.
func (p *Profile) GetFilterMaxSmoothing() time.Duration {
	return durationOr(p.FilterMaxSmoothing, 150*time.Millisecond)
}

// GetFilterResponsiveness returns the filter_responsiveness value or the default.
func (p *Profile) GetFilterResponsiveness() float64 {
	if p.FilterResponsiveness == nil {
		return 0.5
	}
	return *p.FilterResponsiveness
}

// GetTrackerUDPAddress returns the tracker listen address or the default.
func (p *Profile) GetTrackerUDPAddress() string {
	if p.TrackerUDPAddress == nil {
		return "0.0.0.0:4242"
	}
	return *p.TrackerUDPAddress
}

// GetSerialPort returns the serial device path, empty when unset.
func (p *Profile) GetSerialPort() string {
	if p.SerialPort == nil {
		return ""
	}
	return *p.SerialPort
}

// GetSerialBaud returns the serial_baud value or the default.
func (p *Profile) GetSerialBaud() int {
	if p.SerialBaud == nil {
		return 115200
	}
	return *p.SerialBaud
}

// GetOutputUDPAddress returns the UDP sink address, empty when unset.
func (p *Profile) GetOutputUDPAddress() string {
	if p.OutputUDPAddress == nil {
		return ""
	}
	return *p.OutputUDPAddress
}

// GetMQTTBroker returns the MQTT broker URL, empty when unset.
func (p *Profile) GetMQTTBroker() string {
	if p.MQTTBroker == nil {
		return ""
	}
	return *p.MQTTBroker
}

// GetMQTTTopic returns the mqtt_topic value or the default.
func (p *Profile) GetMQTTTopic() string {
	if p.MQTTTopic == nil {
		return "headtrack/pose"
	}
	return *p.MQTTTopic
}

// GetHTTPAddress returns the http_address value or the default.
func (p *Profile) GetHTTPAddress() string {
	if p.HTTPAddress == nil {
		return "127.0.0.1:8077"
	}
	return *p.HTTPAddress
}

// GetCycleLogPath returns the CSV log path, empty when unset.
func (p *Profile) GetCycleLogPath() string {
	if p.CycleLogPath == nil {
		return ""
	}
	return *p.CycleLogPath
}

// GetRecorderPath returns the SQLite recorder path, empty when unset.
func (p *Profile) GetRecorderPath() string {
	if p.RecorderPath == nil {
		return ""
	}
	return *p.RecorderPath
}

func durationOr(s *string, def time.Duration) time.Duration {
	if s == nil || *s == "" {
		return def
	}
	d, err := time.ParseDuration(*s)
	if err != nil {
		return def
	}
	return d
}
