package transport

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.bug.st/serial"
)

// Transport is a duplex byte channel to the board.
//
// Reads never fail on timeout: ReadExact returns the bytes that arrived
// before the deadline (possibly none) with a nil error, and ReadLine
// returns whatever part of a line arrived. Callers treat a short read as
// "not yet", not as a fault.
type Transport interface {
	ReadExact(p []byte) (int, error)
	ReadLine() ([]byte, error)
	Write(p []byte) (int, error)
	Close() error
}

// Opener opens a transport to the named endpoint.
type Opener func(endpoint string, baud int, timeout time.Duration) (Transport, error)

// Serial wraps a serial port connection to the board
type Serial struct {
	port    serial.Port
	name    string
	timeout time.Duration
}

// Open opens the serial port 8N1 at the given baud rate.
// The timeout bounds each ReadExact and ReadLine call as a whole.
func Open(endpoint string, baud int, timeout time.Duration) (*Serial, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(endpoint, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", endpoint, describe(err))
	}

	// Drop whatever the board sent before we got here
	if err := port.ResetInputBuffer(); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to reset input buffer on %s: %w", endpoint, err)
	}

	log.Debug().Str("port", endpoint).Int("baud", baud).Dur("timeout", timeout).Msg("serial port opened")
	return &Serial{
		port:    port,
		name:    endpoint,
		timeout: timeout,
	}, nil
}

// OpenSerial is an Opener backed by Open.
func OpenSerial(endpoint string, baud int, timeout time.Duration) (Transport, error) {
	s, err := Open(endpoint, baud, timeout)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Name returns the endpoint the port was opened on
func (s *Serial) Name() string {
	return s.name
}

// ReadExact fills p unless the timeout expires first.
// Returns the number of bytes read; a short count means timeout.
func (s *Serial) ReadExact(p []byte) (int, error) {
	deadline := time.Now().Add(s.timeout)
	n := 0
	for n < len(p) {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		if err := s.port.SetReadTimeout(remaining); err != nil {
			return n, fmt.Errorf("failed to set read timeout: %w", err)
		}
		m, err := s.port.Read(p[n:])
		n += m
		if err != nil {
			return n, fmt.Errorf("failed to read from %s: %w", s.name, describe(err))
		}
		if m == 0 {
			break
		}
	}
	return n, nil
}

// ReadLine reads up to and including the next '\n'.
// On timeout the partial line is returned.
func (s *Serial) ReadLine() ([]byte, error) {
	var line []byte
	buf := make([]byte, 1)
	for {
		n, err := s.ReadExact(buf)
		if err != nil {
			return line, err
		}
		if n == 0 {
			return line, nil
		}
		line = append(line, buf[0])
		if buf[0] == '\n' {
			return line, nil
		}
	}
}

// Write sends p to the board
func (s *Serial) Write(p []byte) (int, error) {
	n, err := s.port.Write(p)
	if err != nil {
		return n, fmt.Errorf("failed to write to %s: %w", s.name, describe(err))
	}
	return n, nil
}

// Close closes the serial port connection.
// A read blocked in another goroutine returns with an error.
func (s *Serial) Close() error {
	log.Debug().Str("port", s.name).Msg("serial port closed")
	return s.port.Close()
}

// describe adds a readable reason to serial library errors
func describe(err error) error {
	var portErr *serial.PortError
	if !errors.As(err, &portErr) {
		return err
	}
	switch portErr.Code() {
	case serial.PortBusy:
		return fmt.Errorf("port busy: %w", err)
	case serial.PortNotFound:
		return fmt.Errorf("port not found: %w", err)
	case serial.PermissionDenied:
		return fmt.Errorf("permission denied: %w", err)
	case serial.PortClosed:
		return fmt.Errorf("port closed: %w", err)
	}
	return err
}
