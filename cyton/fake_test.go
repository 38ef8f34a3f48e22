package cyton

import (
	"bytes"
	"errors"
	"sync"
	"time"

	"github.com/sergev/cyton/frame"
	"github.com/sergev/cyton/transport"
)

var errFakeClosed = errors.New("fake port closed")

var cytonBanner = []string{
	"OpenBCI V3 8-16 channel\n",
	"On Board ADS1299 Device ID: 0x3E\n",
	"Firmware: v3.1.2\n",
	"$$$",
}

// fakeBoard emulates a Cyton board behind a transport.
// Reads poll the pending input until it holds enough bytes or the
// timeout expires, like a serial port with a read timeout.
type fakeBoard struct {
	timeout time.Duration
	reply   []string      // answer to 'v'
	period  time.Duration // packet interval while streaming, 0 for none
	noise   []byte        // sent before the first packet of a stream
	readErr error         // returned by reads once set
	hang    bool          // reads block until Close

	mu        sync.Mutex
	in        []byte
	written   []byte
	streaming bool
	started   time.Time
	emitted   int
	index     byte
	closed    bool
	closedCh  chan struct{}
}

func newFakeBoard(timeout time.Duration) *fakeBoard {
	return &fakeBoard{
		timeout:  timeout,
		reply:    cytonBanner,
		closedCh: make(chan struct{}),
	}
}

// generate appends the packets due since streaming started; mu held
func (f *fakeBoard) generate() {
	if !f.streaming || f.period == 0 {
		return
	}
	due := int(time.Since(f.started) / f.period)
	for ; f.emitted < due; f.emitted++ {
		s := frame.Sample{
			Index:    f.index,
			Channels: []int32{int32(f.emitted), -int32(f.emitted)},
			Footer:   0xC0,
		}
		f.in = append(f.in, frame.Encode(s)...)
		f.index++
	}
}

func (f *fakeBoard) ReadExact(p []byte) (int, error) {
	if f.hang {
		<-f.closedCh
		return 0, errFakeClosed
	}
	deadline := time.Now().Add(f.timeout)
	n := 0
	for {
		f.mu.Lock()
		if f.closed {
			f.mu.Unlock()
			return n, errFakeClosed
		}
		if f.readErr != nil {
			err := f.readErr
			f.mu.Unlock()
			return n, err
		}
		f.generate()
		m := copy(p[n:], f.in)
		f.in = f.in[m:]
		n += m
		f.mu.Unlock()

		if n == len(p) || time.Now().After(deadline) {
			return n, nil
		}
		time.Sleep(time.Millisecond)
	}
}

func (f *fakeBoard) ReadLine() ([]byte, error) {
	var line []byte
	buf := make([]byte, 1)
	for {
		n, err := f.ReadExact(buf)
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

func (f *fakeBoard) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return 0, errFakeClosed
	}
	f.written = append(f.written, p...)
	for _, c := range p {
		switch c {
		case CMD_VERSION:
			for _, line := range f.reply {
				f.in = append(f.in, line...)
			}
		case CMD_START_STREAM:
			f.streaming = true
			f.started = time.Now()
			f.emitted = 0
			f.in = append(f.in, f.noise...)
		case CMD_STOP_STREAM:
			f.generate()
			f.streaming = false
		}
	}
	return len(p), nil
}

func (f *fakeBoard) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.closed {
		f.closed = true
		close(f.closedCh)
	}
	return nil
}

func (f *fakeBoard) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeBoard) sent() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return bytes.Clone(f.written)
}

// feed queues raw bytes for reading
func (f *fakeBoard) feed(b []byte) {
	f.mu.Lock()
	f.in = append(f.in, b...)
	f.mu.Unlock()
}

func (f *fakeBoard) failReads(err error) {
	f.mu.Lock()
	f.readErr = err
	f.mu.Unlock()
}

// fakePorts maps endpoint names to fake boards
type fakePorts struct {
	names  []string
	boards map[string]*fakeBoard
	opens  []string
}

func (p *fakePorts) list() ([]string, error) {
	return p.names, nil
}

func (p *fakePorts) open(endpoint string, baud int, timeout time.Duration) (transport.Transport, error) {
	p.opens = append(p.opens, endpoint)
	b, ok := p.boards[endpoint]
	if !ok {
		return nil, errors.New("no such port")
	}
	return b, nil
}

// newTestDevice returns a device wired to the fake ports
func newTestDevice(ports *fakePorts, daisy bool) *Device {
	d, err := New(Config{
		Channels: 8,
		Daisy:    daisy,
		Timeout:  50 * time.Millisecond,
		Open:     ports.open,
		Ports:    ports.list,
	})
	if err != nil {
		panic(err)
	}
	return d
}

// connectedDevice returns a device connected to one fake board
func connectedDevice(board *fakeBoard) *Device {
	ports := &fakePorts{
		names:  []string{"/dev/ttyUSB0"},
		boards: map[string]*fakeBoard{"/dev/ttyUSB0": board},
	}
	d := newTestDevice(ports, false)
	if err := d.Connect(); err != nil {
		panic(err)
	}
	return d
}

// memSink collects recording output
type memSink struct {
	bytes.Buffer
	closed bool
}

func (m *memSink) Close() error {
	m.closed = true
	return nil
}
