package cyton

import (
	"errors"
	"runtime"
	"testing"
	"time"

	"github.com/sergev/cyton/transport"
)

func TestConnectClean(t *testing.T) {
	board := newFakeBoard(50 * time.Millisecond)
	ports := &fakePorts{
		names:  []string{"/dev/ttyUSB0"},
		boards: map[string]*fakeBoard{"/dev/ttyUSB0": board},
	}
	d := newTestDevice(ports, false)

	if err := d.Connect(); err != nil {
		t.Fatalf("Connect() returned error: %v", err)
	}
	if !d.Connected() {
		t.Errorf("Connected() = false after Connect()")
	}
	if d.Port() != "/dev/ttyUSB0" {
		t.Errorf("Port() = %q, expected /dev/ttyUSB0", d.Port())
	}
	if d.Firmware() != "v3.1.2" {
		t.Errorf("Firmware() = %q, expected v3.1.2", d.Firmware())
	}
	if got := len(d.Banner()); got != 4 {
		t.Errorf("Banner() has %d lines, expected 4", got)
	}
	if string(board.sent()) != "v" {
		t.Errorf("sent %q, expected \"v\"", board.sent())
	}

	// Banner must be fully drained
	board.mu.Lock()
	left := len(board.in)
	board.mu.Unlock()
	if left != 0 {
		t.Errorf("%d banner bytes left unread", left)
	}

	if err := d.Connect(); !errors.Is(err, ErrAlreadyConnected) {
		t.Errorf("second Connect() = %v, expected ErrAlreadyConnected", err)
	}

	if err := d.Disconnect(); err != nil {
		t.Fatalf("Disconnect() returned error: %v", err)
	}
	if !board.isClosed() {
		t.Errorf("transport not closed by Disconnect()")
	}
	if d.Connected() {
		t.Errorf("Connected() = true after Disconnect()")
	}
}

func TestDiscoverySkipsOtherDevices(t *testing.T) {
	modem := newFakeBoard(20 * time.Millisecond)
	modem.reply = []string{"OK\r\n"}
	board := newFakeBoard(20 * time.Millisecond)

	ports := &fakePorts{
		names: []string{"/dev/ttyS0", "/dev/ttyS1", "/dev/ttyUSB0"},
		boards: map[string]*fakeBoard{
			// ttyS1 fails to open
			"/dev/ttyS0":   modem,
			"/dev/ttyUSB0": board,
		},
	}
	d := newTestDevice(ports, false)

	if err := d.Connect(); err != nil {
		t.Fatalf("Connect() returned error: %v", err)
	}
	if d.Port() != "/dev/ttyUSB0" {
		t.Errorf("Port() = %q, expected /dev/ttyUSB0", d.Port())
	}
	if !modem.isClosed() {
		t.Errorf("rejected port left open")
	}
	if board.isClosed() {
		t.Errorf("board port closed after successful discovery")
	}
}

func TestNoDeviceFound(t *testing.T) {
	a := newFakeBoard(20 * time.Millisecond)
	a.reply = []string{"hello\n"}
	b := newFakeBoard(20 * time.Millisecond)
	b.reply = nil // silent

	ports := &fakePorts{
		names:  []string{"/dev/ttyS0", "/dev/ttyS1"},
		boards: map[string]*fakeBoard{"/dev/ttyS0": a, "/dev/ttyS1": b},
	}
	d := newTestDevice(ports, false)

	err := d.Connect()
	if !errors.Is(err, ErrNoDeviceFound) {
		t.Fatalf("Connect() = %v, expected ErrNoDeviceFound", err)
	}
	if len(ports.opens) != 2 {
		t.Errorf("opened %d ports, expected 2", len(ports.opens))
	}
	if !a.isClosed() || !b.isClosed() {
		t.Errorf("probed transports not closed: %v %v", a.isClosed(), b.isClosed())
	}
	if d.Connected() {
		t.Errorf("Connected() = true after failed discovery")
	}
}

func TestExplicitEndpoint(t *testing.T) {
	name := "/dev/ttyUSB3"
	if runtime.GOOS == "windows" {
		name = "COM3"
	}
	board := newFakeBoard(20 * time.Millisecond)
	ports := &fakePorts{
		names:  []string{name},
		boards: map[string]*fakeBoard{name: board},
	}
	d := newTestDevice(ports, false)

	if err := d.SetEndpoint(name); err != nil {
		t.Fatalf("SetEndpoint(%q) returned error: %v", name, err)
	}
	if err := d.Connect(); err != nil {
		t.Fatalf("Connect() returned error: %v", err)
	}
	if d.Port() != name {
		t.Errorf("Port() = %q, expected %q", d.Port(), name)
	}
}

func TestMalformedEndpoint(t *testing.T) {
	ports := &fakePorts{
		names:  []string{"4"},
		boards: map[string]*fakeBoard{"4": newFakeBoard(20 * time.Millisecond)},
	}
	d := newTestDevice(ports, false)

	if err := d.SetEndpoint("4"); !errors.Is(err, transport.ErrInvalidEndpoint) {
		t.Errorf("SetEndpoint(\"4\") = %v, expected ErrInvalidEndpoint", err)
	}
	if len(ports.opens) != 0 {
		t.Errorf("transport opened %d times during validation", len(ports.opens))
	}
}

func TestEndpointNotAvailable(t *testing.T) {
	ports := &fakePorts{}
	d := newTestDevice(ports, false)
	name := "/dev/ttyUSB9"
	if runtime.GOOS == "windows" {
		name = "COM9"
	}
	if err := d.SetEndpoint(name); !errors.Is(err, transport.ErrInvalidEndpoint) {
		t.Errorf("SetEndpoint(%q) = %v, expected ErrInvalidEndpoint", name, err)
	}
}

func TestConnectError(t *testing.T) {
	name := "/dev/ttyUSB0"
	if runtime.GOOS == "windows" {
		name = "COM1"
	}
	ports := &fakePorts{names: []string{name}}
	d := newTestDevice(ports, false)
	if err := d.SetEndpoint(name); err != nil {
		t.Fatalf("SetEndpoint() returned error: %v", err)
	}

	err := d.Connect()
	var cerr *ConnectError
	if !errors.As(err, &cerr) {
		t.Fatalf("Connect() = %v, expected *ConnectError", err)
	}
	if cerr.Endpoint != name {
		t.Errorf("ConnectError.Endpoint = %q, expected %q", cerr.Endpoint, name)
	}
	if len(ports.opens) != 1 {
		t.Errorf("opened %d times, expected no retry", len(ports.opens))
	}
}

func TestNotRecognized(t *testing.T) {
	board := newFakeBoard(20 * time.Millisecond)
	board.reply = []string{"Arduino\n"}
	d := newTestDevice(&fakePorts{}, false)

	d.mu.Lock()
	err := d.identify(board)
	d.mu.Unlock()
	if !errors.Is(err, ErrNotRecognized) {
		t.Errorf("identify() = %v, expected ErrNotRecognized", err)
	}
}

func TestBannerTimeout(t *testing.T) {
	board := newFakeBoard(20 * time.Millisecond)
	board.reply = []string{"OpenBCI V3 8-16 channel\n", "Firmware: v3.1.2\n"}
	d := newTestDevice(&fakePorts{}, false)

	d.mu.Lock()
	err := d.identify(board)
	d.mu.Unlock()
	if !errors.Is(err, ErrBannerTimeout) {
		t.Errorf("identify() = %v, expected ErrBannerTimeout", err)
	}
}

func TestSampleRate(t *testing.T) {
	if got := newTestDevice(&fakePorts{}, false).SampleRate(); got != 250 {
		t.Errorf("SampleRate() without Daisy = %d, expected 250", got)
	}
	if got := newTestDevice(&fakePorts{}, true).SampleRate(); got != 125 {
		t.Errorf("SampleRate() with Daisy = %d, expected 125", got)
	}
}

func TestNewValidatesChannels(t *testing.T) {
	for _, n := range []int{0, -1, 17} {
		if _, err := New(Config{Channels: n}); !errors.Is(err, ErrInvalidChannels) {
			t.Errorf("New(Channels=%d) = %v, expected ErrInvalidChannels", n, err)
		}
	}
	d, err := New(Config{Channels: 16, Daisy: true})
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}
	if d.BaudRate() != DefaultBaudRate || d.Timeout() != DefaultTimeout {
		t.Errorf("defaults not applied: baud=%d timeout=%v", d.BaudRate(), d.Timeout())
	}
}
