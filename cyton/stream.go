package cyton

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	"github.com/sergev/cyton/frame"
	"github.com/sergev/cyton/transport"
)

var (
	ErrNotStopped  = errors.New("stream not stopped")
	ErrFaulted     = errors.New("stream session faulted")
	ErrForcedClose = errors.New("stream forcibly closed")
)

// State of a stream session
type State int32

const (
	Idle State = iota
	Streaming
	Stopped
	Faulted
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Streaming:
		return "streaming"
	case Stopped:
		return "stopped"
	case Faulted:
		return "faulted"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Session runs the background decode loop on a connected board.
//
// While streaming, the loop owns its text buffer exclusively. When the
// loop exits the buffer is handed to the session, and Drain returns it.
// Stopping is cooperative: the loop checks the run flag once per packet,
// so it notices a stop within one transport timeout.
type Session struct {
	dev *Device

	// EagerStop ends the stream after the sample with index 255
	EagerStop bool

	running atomic.Bool
	forced  atomic.Bool

	mu      sync.Mutex
	state   State
	ready   chan struct{} // closed when the loop is running
	done    chan struct{} // closed when the loop has exited
	t       transport.Transport
	pending []byte
	err     error
}

// NewSession creates an idle stream session on the board
func (d *Device) NewSession() *Session {
	done := make(chan struct{})
	close(done)
	return &Session{
		dev:   d,
		ready: make(chan struct{}),
		done:  done,
	}
}

// State returns the current state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the error that ended the last run, if any
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Ready returns a channel closed once the loop of the current run started
func (s *Session) Ready() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

// Done returns a channel closed once the loop of the current run exited
func (s *Session) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Start sends the start command and launches the decode loop.
// It is a no-op on a streaming session. A stopped session may be
// started again once its previous loop has exited.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case Streaming:
		return nil
	case Faulted:
		return fmt.Errorf("%w: %v", ErrFaulted, s.err)
	}
	select {
	case <-s.done:
	default:
		return ErrBusy // previous loop still winding down
	}

	t, err := s.dev.acquire()
	if err != nil {
		return err
	}
	if _, err := t.Write([]byte{CMD_START_STREAM}); err != nil {
		s.dev.release()
		return fmt.Errorf("failed to send start command: %w", err)
	}

	s.t = t
	s.ready = make(chan struct{})
	s.done = make(chan struct{})
	s.forced.Store(false)
	s.running.Store(true)
	s.state = Streaming
	go s.loop(t, s.ready, s.done)

	log.Debug().Str("port", s.dev.Port()).Msg("streaming started")
	return nil
}

// Stop sends the stop command and clears the run flag.
// It does not wait for the loop; use Wait or Done for that.
func (s *Session) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Streaming {
		return nil
	}
	s.running.Store(false)
	s.state = Stopped
	if _, err := s.t.Write([]byte{CMD_STOP_STREAM}); err != nil {
		return fmt.Errorf("failed to send stop command: %w", err)
	}
	log.Debug().Msg("streaming stopped")
	return nil
}

// Wait blocks until the loop of the current run exits or ctx is done.
// Returns the error that ended the run.
func (s *Session) Wait(ctx context.Context) error {
	done := s.Done()
	select {
	case <-done:
		return s.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ForceClose closes the transport under a loop that does not exit.
// The session ends Faulted and the board is left disconnected.
func (s *Session) ForceClose() error {
	s.mu.Lock()
	select {
	case <-s.done:
		s.mu.Unlock()
		return nil
	default:
	}
	s.forced.Store(true)
	s.running.Store(false)
	s.mu.Unlock()

	log.Warn().Str("port", s.dev.Port()).Msg("forcing stream closed")
	return s.dev.closeTransport()
}

// Drain returns the text of all samples decoded so far and clears it.
// Only valid once the session is stopped (or faulted) and its loop exited.
func (s *Session) Drain() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Stopped && s.state != Faulted {
		return nil, fmt.Errorf("%w: session is %s", ErrNotStopped, s.state)
	}
	select {
	case <-s.done:
	default:
		return nil, fmt.Errorf("%w: stream loop still running", ErrNotStopped)
	}
	out := s.pending
	s.pending = nil
	return out, nil
}

// loop decodes packets while the run flag is set
func (s *Session) loop(t transport.Transport, ready, done chan struct{}) {
	defer close(done)

	dec := frame.NewDecoder(t, s.dev.channels)
	dec.EagerStop = s.EagerStop
	dec.Abort = func() bool { return !s.running.Load() }

	var buf []byte
	var loopErr error
	samples, timeouts, resyncs := 0, 0, 0

	close(ready)
	for s.running.Load() {
		sample, err := dec.Next()
		switch {
		case err == nil:
			buf = sample.AppendText(buf)
			samples++
		case errors.Is(err, frame.ErrBoundary):
			buf = sample.AppendText(buf)
			samples++
			log.Debug().Msg("sample index boundary reached")
			if err := s.Stop(); err != nil {
				loopErr = err
			}
		case errors.Is(err, frame.ErrTimeout):
			timeouts++
			log.Debug().Msg("no complete packet before timeout")
		case errors.Is(err, frame.ErrResync):
			resyncs++
			log.Debug().Msg("discarded bytes while looking for packet header")
		default:
			loopErr = err
			s.running.Store(false)
		}
	}

	if s.forced.Load() {
		if loopErr != nil {
			loopErr = fmt.Errorf("%w: %v", ErrForcedClose, loopErr)
		} else {
			loopErr = ErrForcedClose
		}
	}
	s.dev.release()

	s.mu.Lock()
	s.pending = append(s.pending, buf...)
	if loopErr != nil {
		s.err = loopErr
		s.state = Faulted
	}
	s.mu.Unlock()

	log.Debug().Int("samples", samples).Int("timeouts", timeouts).Int("resyncs", resyncs).
		AnErr("error", loopErr).Msg("stream loop exited")
}
