package frame

import (
	"errors"
)

var (
	// ErrTimeout means no complete packet arrived before the read timeout.
	// Any partial packet has been dropped.
	ErrTimeout = errors.New("packet timeout")

	// ErrResync means bytes were discarded while hunting for a header
	// and no header was found in this call.
	ErrResync = errors.New("packet resync")

	// ErrBoundary accompanies a valid sample whose index is 255,
	// when the decoder was asked to report it.
	ErrBoundary = errors.New("sample index boundary")
)

// Reader is the read side of a transport.
// ReadExact returns a short count, with nil error, on timeout.
type Reader interface {
	ReadExact(p []byte) (int, error)
}

// Decoder finds and decodes packets in a byte stream.
// No state is carried between calls to Next.
type Decoder struct {
	r        Reader
	channels int

	// EagerStop makes Next return ErrBoundary along with a sample
	// whose index is 255.
	EagerStop bool

	// Abort, if set, is polled for each discarded byte while hunting
	// for a header. Returning true ends the call with ErrResync.
	Abort func() bool

	hdr  [1]byte
	body [Size - 1]byte
}

// NewDecoder returns a decoder reading from r and keeping
// the first channels channel values of each packet.
func NewDecoder(r Reader, channels int) *Decoder {
	return &Decoder{
		r:        r,
		channels: clampChannels(channels),
	}
}

// Next reads bytes until a header, then the rest of the packet, and
// decodes it. Read errors other than timeouts are returned unchanged.
//
// The header hunt is bounded only by the transport timeout: a link that
// keeps sending non-header bytes holds Next until Abort reports true.
func (d *Decoder) Next() (Sample, error) {
	discarded := 0
	for {
		n, err := d.r.ReadExact(d.hdr[:])
		if err != nil {
			return Sample{}, err
		}
		if n == 0 {
			if discarded > 0 {
				return Sample{}, ErrResync
			}
			return Sample{}, ErrTimeout
		}
		if d.hdr[0] == Header {
			break
		}
		discarded++
		if d.Abort != nil && d.Abort() {
			return Sample{}, ErrResync
		}
	}

	n, err := d.r.ReadExact(d.body[:])
	if err != nil {
		return Sample{}, err
	}
	if n < len(d.body) {
		return Sample{}, ErrTimeout
	}

	var packet [Size]byte
	packet[0] = Header
	copy(packet[1:], d.body[:])
	s, err := Decode(packet[:], d.channels)
	if err != nil {
		return Sample{}, err
	}
	if d.EagerStop && s.Index == BoundaryIdx {
		return s, ErrBoundary
	}
	return s, nil
}
