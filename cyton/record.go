package cyton

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// SettleMargin is added after the stop trigger so that the packet
// in flight is not cut short.
const SettleMargin = 800 * time.Millisecond

var ErrInvalidDuration = errors.New("recording duration must be a positive whole number of seconds")

// errStreamEnded means the loop stopped on its own without error
var errStreamEnded = errors.New("stream ended")

// Trigger blocks until recording should stop.
// It must return when ctx is done.
type Trigger func(ctx context.Context) error

// Recorder drives a stream session through one recording at a time
// and hands the decoded text to an output sink.
type Recorder struct {
	Session *Session
	Settle  time.Duration // wait after the trigger before stopping
	Grace   time.Duration // wait for the loop to exit before forcing it
}

// NewRecorder returns a recorder with a fresh session on the board
func (d *Device) NewRecorder() *Recorder {
	return &Recorder{
		Session: d.NewSession(),
		Settle:  SettleMargin,
		Grace:   2*d.timeout + time.Second,
	}
}

// ValidateDuration checks a fixed recording duration
func ValidateDuration(d time.Duration) error {
	if d <= 0 || d%time.Second != 0 {
		return fmt.Errorf("%w (got %v)", ErrInvalidDuration, d)
	}
	return nil
}

// Record streams for a fixed duration, then writes the samples to sink.
// The sink is closed in all cases.
// Returns the number of samples written.
func (r *Recorder) Record(ctx context.Context, sink io.WriteCloser, d time.Duration) (int, error) {
	if err := ValidateDuration(d); err != nil {
		sink.Close()
		return 0, err
	}
	return r.run(ctx, sink, func(ctx context.Context) error {
		return sleep(ctx, d)
	})
}

// RecordUntil streams until trigger returns, then writes the samples to sink.
// The sink is closed in all cases.
// Returns the number of samples written.
func (r *Recorder) RecordUntil(ctx context.Context, sink io.WriteCloser, trigger Trigger) (int, error) {
	return r.run(ctx, sink, trigger)
}

func (r *Recorder) run(ctx context.Context, sink io.WriteCloser, trigger Trigger) (n int, err error) {
	defer func() {
		if cerr := sink.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close output: %w", cerr)
		}
	}()

	s := r.Session
	if err := s.Start(); err != nil {
		return 0, fmt.Errorf("failed to start streaming: %w", err)
	}

	var waitErr error
	select {
	case <-s.Ready():
		waitErr = r.wait(ctx, trigger)
	case <-ctx.Done():
		waitErr = ctx.Err()
	}
	if errors.Is(waitErr, errStreamEnded) {
		waitErr = nil
	} else if waitErr == nil {
		waitErr = sleep(ctx, r.Settle)
	}

	stopErr := s.Stop()
	joinErr := r.join()

	text, drainErr := s.Drain()
	var writeErr error
	if len(text) > 0 {
		if _, err := sink.Write(text); err != nil {
			writeErr = fmt.Errorf("failed to write output: %w", err)
		}
	}
	n = bytes.Count(text, []byte{'\n'})
	log.Debug().Int("samples", n).Msg("recording finished")

	for _, err := range []error{waitErr, joinErr, stopErr, drainErr, writeErr} {
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

// wait blocks until the trigger fires or the stream ends early
func (r *Recorder) wait(ctx context.Context, trigger Trigger) error {
	s := r.Session
	done := s.Done()
	fired := make(chan struct{})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(fired)
		return trigger(gctx)
	})
	g.Go(func() error {
		select {
		case <-done:
			if err := s.Err(); err != nil {
				return err
			}
			return errStreamEnded
		case <-fired:
			return nil
		}
	})
	return g.Wait()
}

// join waits for the loop to exit, forcing the transport closed
// when it does not exit within the grace period.
func (r *Recorder) join() error {
	ctx, cancel := context.WithTimeout(context.Background(), r.Grace)
	defer cancel()

	s := r.Session
	select {
	case <-s.Done():
		return s.Err()
	case <-ctx.Done():
	}

	log.Warn().Dur("grace", r.Grace).Msg("stream loop did not stop in time")
	if err := s.ForceClose(); err != nil {
		log.Warn().Err(err).Msg("forced close failed")
	}
	<-s.Done()
	return s.Err()
}

// sleep waits for d or until ctx is done
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
