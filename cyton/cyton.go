package cyton

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sergev/cyton/transport"
)

const (
	DefaultBaudRate = 115200
	DefaultTimeout  = time.Second
	DefaultChannels = 8
	MaxChannels     = 16 // with Daisy module
)

// Sampling rates, fixed by board configuration
const (
	SampleRate      = 250 // Hz
	SampleRateDaisy = 125 // Hz
)

// Command bytes
const (
	CMD_START_STREAM  = 'b'
	CMD_STOP_STREAM   = 's'
	CMD_VERSION       = 'v'
	CMD_TIMESTAMP_ON  = '<'
	CMD_TIMESTAMP_OFF = '>'
	CMD_CHANNEL_SET   = 'x'
	CMD_CHANNEL_LATCH = 'X'
)

var (
	ErrNoDeviceFound    = errors.New("no OpenBCI board detected")
	ErrNotRecognized    = errors.New("not an OpenBCI board")
	ErrBannerTimeout    = errors.New("timed out waiting for end of startup banner")
	ErrNotConnected     = errors.New("board not connected")
	ErrAlreadyConnected = errors.New("board already connected")
	ErrBusy             = errors.New("board is busy streaming")
	ErrInvalidChannels  = errors.New("invalid channel count")
)

// ConnectError reports a failure to open the transport to an endpoint
type ConnectError struct {
	Endpoint string
	Err      error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("failed to connect to %s: %v", e.Endpoint, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// Config describes one board connection
type Config struct {
	Channels int           // channels in use, 1-16
	Daisy    bool          // Daisy module attached
	BaudRate int           // 0 means DefaultBaudRate
	Timeout  time.Duration // read timeout, 0 means DefaultTimeout

	// Transport hooks, default to the serial port implementation
	Open  transport.Opener
	Ports transport.Enumerator
}

// Device is a logical connection to a Cyton board
type Device struct {
	channels int
	daisy    bool
	baud     int
	timeout  time.Duration
	open     transport.Opener
	ports    transport.Enumerator

	mu       sync.Mutex
	endpoint string              // explicit port, empty for discovery
	t        transport.Transport // bound transport, nil until connected
	port     string              // port of the bound transport
	banner   []string            // startup text from last handshake
	firmware string
	busy     bool // a session is streaming
}

// New creates a board client. Nothing is opened until Connect.
func New(cfg Config) (*Device, error) {
	if cfg.Channels <= 0 || cfg.Channels > MaxChannels {
		return nil, fmt.Errorf("%w: %d (must be 1-%d)", ErrInvalidChannels, cfg.Channels, MaxChannels)
	}
	d := &Device{
		channels: cfg.Channels,
		daisy:    cfg.Daisy,
		baud:     cfg.BaudRate,
		timeout:  cfg.Timeout,
		open:     cfg.Open,
		ports:    cfg.Ports,
	}
	if d.baud == 0 {
		d.baud = DefaultBaudRate
	}
	if d.timeout <= 0 {
		d.timeout = DefaultTimeout
	}
	if d.open == nil {
		d.open = transport.OpenSerial
	}
	if d.ports == nil {
		d.ports = transport.Ports
	}
	return d, nil
}

// Channels returns the number of channels in use
func (d *Device) Channels() int {
	return d.channels
}

// Daisy reports whether the Daisy module is attached
func (d *Device) Daisy() bool {
	return d.daisy
}

// BaudRate returns the serial speed
func (d *Device) BaudRate() int {
	return d.baud
}

// Timeout returns the read timeout
func (d *Device) Timeout() time.Duration {
	return d.timeout
}

// SampleRate returns the sampling rate in Hz.
// The Daisy module halves it.
func (d *Device) SampleRate() int {
	if d.daisy {
		return SampleRateDaisy
	}
	return SampleRate
}

// Port returns the port the board is connected on, or empty string
func (d *Device) Port() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.port
}

// Firmware returns the firmware version reported during handshake
func (d *Device) Firmware() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.firmware
}

// Banner returns the startup text received during handshake
func (d *Device) Banner() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.banner...)
}

// Connected reports whether a transport is bound
func (d *Device) Connected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.t != nil
}

// SetEndpoint selects an explicit port instead of discovery.
// The name must have the platform's format and be currently available.
func (d *Device) SetEndpoint(name string) error {
	available, err := d.ports()
	if err != nil {
		return fmt.Errorf("failed to list serial ports: %w", err)
	}
	if err := transport.ValidateEndpoint(name, available); err != nil {
		return err
	}
	d.mu.Lock()
	d.endpoint = name
	d.mu.Unlock()
	return nil
}

// Connect opens the transport and identifies the board.
// Without an explicit endpoint every available port is probed in order.
func (d *Device) Connect() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.t != nil {
		return ErrAlreadyConnected
	}
	if d.endpoint != "" {
		return d.connectTo(d.endpoint)
	}
	return d.discover()
}

// connectTo opens and identifies one explicit endpoint
func (d *Device) connectTo(endpoint string) error {
	t, err := d.open(endpoint, d.baud, d.timeout)
	if err != nil {
		return &ConnectError{Endpoint: endpoint, Err: err}
	}
	if err := d.identify(t); err != nil {
		t.Close()
		return fmt.Errorf("port %s: %w", endpoint, err)
	}
	d.bind(t, endpoint)
	return nil
}

// discover probes every available port, stopping at the first board
func (d *Device) discover() error {
	ports, err := d.ports()
	if err != nil {
		return fmt.Errorf("failed to list serial ports: %w", err)
	}

	for _, port := range ports {
		t, err := d.open(port, d.baud, d.timeout)
		if err != nil {
			log.Debug().Err(err).Str("port", port).Msg("cannot open port, skipping")
			continue // Try next port
		}
		if err := d.identify(t); err != nil {
			log.Debug().Err(err).Str("port", port).Msg("handshake failed, skipping")
			t.Close()
			continue
		}
		d.bind(t, port)
		return nil
	}

	return fmt.Errorf("%w (probed %d ports)", ErrNoDeviceFound, len(ports))
}

// bind attaches the identified transport; d.mu must be held
func (d *Device) bind(t transport.Transport, port string) {
	d.t = t
	d.port = port
	log.Info().Str("port", port).Str("firmware", d.firmware).Msg("OpenBCI connection established")
}

// Disconnect closes the transport.
// A streaming session must be stopped first.
func (d *Device) Disconnect() error {
	d.mu.Lock()
	busy := d.busy
	d.mu.Unlock()
	if busy {
		return ErrBusy
	}
	return d.closeTransport()
}

// closeTransport closes and unbinds the transport regardless of sessions
func (d *Device) closeTransport() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.t == nil {
		return nil
	}
	err := d.t.Close()
	d.t = nil
	d.port = ""
	if err != nil {
		return fmt.Errorf("failed to close port: %w", err)
	}
	return nil
}

// acquire claims the transport for a streaming session
func (d *Device) acquire() (transport.Transport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.t == nil {
		return nil, ErrNotConnected
	}
	if d.busy {
		return nil, ErrBusy
	}
	d.busy = true
	return d.t, nil
}

// release ends the streaming claim
func (d *Device) release() {
	d.mu.Lock()
	d.busy = false
	d.mu.Unlock()
}
