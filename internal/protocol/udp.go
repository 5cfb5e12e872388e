// Package protocol delivers final poses to consumers. Sinks absorb and
// log their own transport errors: the pipeline loop calls Pose once per
// cycle and must never block or fail on delivery.
package protocol

import (
	"fmt"
	"net"

	"github.com/skyrookie/opentrack/internal/monitoring"
	"github.com/skyrookie/opentrack/internal/pose"
)

// UDPSink sends each pose as one 48-byte datagram to a fixed peer.
type UDPSink struct {
	conn net.Conn
}

// NewUDPSink connects the datagram socket.
func NewUDPSink(address string) (*UDPSink, error) {
	conn, err := net.Dial("udp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to dial UDP sink: %w", err)
	}
	return &UDPSink{conn: conn}, nil
}

// Pose sends one datagram. Send errors are logged and dropped; UDP
// gives no delivery guarantee anyway.
func (s *UDPSink) Pose(p pose.Pose) {
	data, err := p.MarshalBinary()
	if err != nil {
		monitoring.Logf("protocol: encode failed: %v", err)
		return
	}
	if _, err := s.conn.Write(data); err != nil {
		monitoring.Logf("protocol: UDP send failed: %v", err)
	}
}

// Close releases the socket.
func (s *UDPSink) Close() error { return s.conn.Close() }
