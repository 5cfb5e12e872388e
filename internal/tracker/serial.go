package tracker

import (
	"bufio"
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"go.bug.st/serial"

	"github.com/skyrookie/opentrack/internal/monitoring"
	"github.com/skyrookie/opentrack/internal/pose"
)

// SerialConfig configures the serial tracker backend.
type SerialConfig struct {
	// Port is the device path, e.g. "/dev/ttyUSB0".
	Port string
	// Baud defaults to 115200 when zero.
	Baud int
}

// SerialTracker reads pose lines from a serial head-tracker. Each line
// carries translations and rotations in the form
//
//	T=1.5,0.0,-2.0;R=10.0,5.0,0.0
//
// Malformed lines are logged and skipped.
type SerialTracker struct {
	port serial.Port

	mu     sync.Mutex
	latest pose.Pose
}

// NewSerialTracker opens the port.
func NewSerialTracker(cfg SerialConfig) (*SerialTracker, error) {
	baud := cfg.Baud
	if baud == 0 {
		baud = 115200
	}
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: 1,
	}

	port, err := serial.Open(cfg.Port, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", cfg.Port, err)
	}
	return &SerialTracker{port: port}, nil
}

// Run reads lines until ctx is cancelled or the port fails.
func (t *SerialTracker) Run(ctx context.Context) error {
	defer t.port.Close()
	monitoring.Logf("tracker: serial reader started")

	// Serial reads have no deadline; closing the port is the only way
	// to unblock a Scan stuck on a silent device.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			t.port.Close()
		case <-done:
		}
	}()

	scan := bufio.NewScanner(t.port)
	for scan.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		p, err := parsePoseLine(scan.Text())
		if err != nil {
			monitoring.Logf("tracker: dropping serial line: %v", err)
			continue
		}

		t.mu.Lock()
		t.latest = p
		t.mu.Unlock()
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return scan.Err()
}

// Data returns the most recent valid sample.
func (t *SerialTracker) Data() pose.Pose {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.latest
}

// Center reports whether the backend handles centering itself.
func (t *SerialTracker) Center() bool { return false }

// Close closes the port, unblocking a Run stuck in a read.
func (t *SerialTracker) Close() error { return t.port.Close() }

// parsePoseLine decodes one `T=x,y,z;R=yaw,pitch,roll` line.
func parsePoseLine(line string) (pose.Pose, error) {
	var p pose.Pose

	line = strings.TrimSpace(line)
	parts := strings.Split(line, ";")
	if len(parts) != 2 {
		return p, fmt.Errorf("expected two ';'-separated groups in %q", line)
	}

	groups := [2]struct {
		prefix string
		base   int
	}{
		{"T=", pose.TX},
		{"R=", pose.Yaw},
	}
	for i, g := range groups {
		body, ok := strings.CutPrefix(parts[i], g.prefix)
		if !ok {
			return p, fmt.Errorf("group %d missing %q prefix in %q", i, g.prefix, line)
		}
		vals := strings.Split(body, ",")
		if len(vals) != 3 {
			return p, fmt.Errorf("group %q has %d values, want 3", g.prefix, len(vals))
		}
		for j, s := range vals {
			v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
			if err != nil {
				return p, fmt.Errorf("bad value %q: %w", s, err)
			}
			p[g.base+j] = v
		}
	}

	if !p.IsFinite() {
		return p, fmt.Errorf("non-finite pose in %q", line)
	}
	return p, nil
}
