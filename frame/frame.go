// Package frame decodes the 33-byte data packets streamed by the
// OpenBCI Cyton board.
//
// Packet layout:
//
//	byte  0      header, always 0xA0
//	byte  1      sample index, 0-255, wraps
//	bytes 2-25   8 channels x 3 bytes, big-endian two's complement
//	bytes 26-31  auxiliary data, 3 axes x 2 bytes
//	byte  32     footer, not validated
package frame

import (
	"fmt"
	"strconv"
)

const (
	Header      = 0xA0 // first byte of every packet
	Size        = 33   // total packet length
	MaxChannels = 8    // channel slots in one packet
	AuxSize     = 6    // auxiliary bytes in one packet
	BoundaryIdx = 255  // last sample index before wraparound
)

// Offsets inside a packet
const (
	offIndex   = 1
	offChannel = 2
	offAux     = offChannel + MaxChannels*3
	offFooter  = offAux + AuxSize
)

// Sample is a decoded packet
type Sample struct {
	Index    uint8
	Channels []int32
	Aux      [AuxSize]byte
	Footer   byte
}

// clampChannels limits the channel count to what one packet carries
func clampChannels(n int) int {
	if n <= 0 || n > MaxChannels {
		return MaxChannels
	}
	return n
}

// Decode decodes one complete packet.
// Only the first channels channel slots are kept.
func Decode(b []byte, channels int) (Sample, error) {
	if len(b) != Size {
		return Sample{}, fmt.Errorf("packet length %d, expected %d", len(b), Size)
	}
	if b[0] != Header {
		return Sample{}, fmt.Errorf("bad packet header 0x%02x", b[0])
	}
	channels = clampChannels(channels)

	s := Sample{
		Index:    b[offIndex],
		Channels: make([]int32, channels),
		Footer:   b[offFooter],
	}
	for i := 0; i < channels; i++ {
		off := offChannel + i*3
		s.Channels[i] = int24(b[off : off+3])
	}
	copy(s.Aux[:], b[offAux:offAux+AuxSize])
	return s, nil
}

// Encode builds a packet from the sample.
// Missing channels are zero; values are truncated to 24 bits.
func Encode(s Sample) []byte {
	b := make([]byte, Size)
	b[0] = Header
	b[offIndex] = s.Index
	for i := 0; i < len(s.Channels) && i < MaxChannels; i++ {
		off := offChannel + i*3
		putInt24(b[off:off+3], s.Channels[i])
	}
	copy(b[offAux:], s.Aux[:])
	b[offFooter] = s.Footer
	return b
}

// int24 sign-extends a 24-bit big-endian value
func int24(b []byte) int32 {
	v := int32(b[0])<<16 | int32(b[1])<<8 | int32(b[2])
	if v&0x800000 != 0 {
		v -= 1 << 24
	}
	return v
}

func putInt24(b []byte, v int32) {
	b[0] = byte(v >> 16)
	b[1] = byte(v >> 8)
	b[2] = byte(v)
}

// AppendText appends the text record of the sample to dst:
// index, channel values and aux bytes separated by spaces, one line.
func (s Sample) AppendText(dst []byte) []byte {
	dst = strconv.AppendUint(dst, uint64(s.Index), 10)
	for _, v := range s.Channels {
		dst = append(dst, ' ')
		dst = strconv.AppendInt(dst, int64(v), 10)
	}
	for _, a := range s.Aux {
		dst = append(dst, ' ')
		dst = strconv.AppendUint(dst, uint64(a), 10)
	}
	return append(dst, '\n')
}

// String returns the text record without the newline
func (s Sample) String() string {
	b := s.AppendText(nil)
	return string(b[:len(b)-1])
}
