// Package tracker provides pose sources for the pipeline: a UDP
// datagram listener, a serial line reader and a function-backed source
// for tests and demos. Backends cache the latest good sample so the
// 250 Hz loop reads without blocking on transport.
package tracker

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/skyrookie/opentrack/internal/monitoring"
	"github.com/skyrookie/opentrack/internal/pose"
)

// UDPConfig configures the UDP tracker backend.
type UDPConfig struct {
	// Address is the listen address, e.g. "0.0.0.0:4242".
	Address string
	// ReadBuffer sizes the socket receive buffer; zero keeps the OS
	// default.
	ReadBuffer int
}

// UDPTracker receives 48-byte pose datagrams (six little-endian
// float64 components) and caches the most recent valid one.
type UDPTracker struct {
	conn *net.UDPConn

	mu     sync.Mutex
	latest pose.Pose
}

// NewUDPTracker binds the listen socket immediately so the local
// address is known before Run starts.
func NewUDPTracker(cfg UDPConfig) (*UDPTracker, error) {
	addr, err := net.ResolveUDPAddr("udp", cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve UDP address: %w", err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on UDP address: %w", err)
	}
	if cfg.ReadBuffer > 0 {
		if err := conn.SetReadBuffer(cfg.ReadBuffer); err != nil {
			monitoring.Logf("tracker: failed to set UDP receive buffer to %d: %v", cfg.ReadBuffer, err)
		}
	}
	return &UDPTracker{conn: conn}, nil
}

// LocalAddr returns the bound listen address.
func (t *UDPTracker) LocalAddr() net.Addr { return t.conn.LocalAddr() }

// Run receives datagrams until ctx is cancelled. Short, long or
// non-finite datagrams are dropped; the cached sample keeps its last
// good value.
func (t *UDPTracker) Run(ctx context.Context) error {
	defer t.conn.Close()
	monitoring.Logf("tracker: UDP listener started on %s", t.conn.LocalAddr())

	buf := make([]byte, 128)
	for {
		if ctx.Err() != nil {
			monitoring.Logf("tracker: UDP listener stopping")
			return ctx.Err()
		}

		// Short deadline so context cancellation is noticed promptly.
		t.conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
		n, _, err := t.conn.ReadFromUDP(buf)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			monitoring.Logf("tracker: UDP read error: %v", err)
			continue
		}

		var p pose.Pose
		if err := p.UnmarshalBinary(buf[:n]); err != nil {
			monitoring.Logf("tracker: dropping datagram: %v", err)
			continue
		}
		if !p.IsFinite() {
			continue
		}

		t.mu.Lock()
		t.latest = p
		t.mu.Unlock()
	}
}

// Data returns the most recent valid sample, or the zero pose before
// the first datagram arrives.
func (t *UDPTracker) Data() pose.Pose {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.latest
}

// Center reports whether the backend handles centering itself. UDP
// senders deliver absolute poses, so centering stays in the pipeline.
func (t *UDPTracker) Center() bool { return false }

// Close releases the socket. Run's deferred close makes this redundant
// when Run was started; it exists for construction-then-abort paths.
func (t *UDPTracker) Close() error { return t.conn.Close() }
