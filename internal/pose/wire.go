package pose

import (
	"encoding/binary"
	"fmt"
	"math"
)

// WireSize is the length of a pose datagram: six little-endian float64
// components in axis order.
const WireSize = NumAxes * 8

// MarshalBinary encodes the pose into its 48-byte wire form.
func (p Pose) MarshalBinary() ([]byte, error) {
	buf := make([]byte, WireSize)
	for i, v := range p {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	return buf, nil
}

// UnmarshalBinary decodes a 48-byte wire datagram into the pose.
func (p *Pose) UnmarshalBinary(data []byte) error {
	if len(data) != WireSize {
		return fmt.Errorf("pose datagram must be %d bytes, got %d", WireSize, len(data))
	}
	for i := range p {
		p[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[i*8:]))
	}
	return nil
}
