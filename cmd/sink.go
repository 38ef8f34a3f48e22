package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/sergev/cyton/cyton"
)

// zstdFile is a recording file written through a zstd encoder
type zstdFile struct {
	*zstd.Encoder
	f *os.File
}

func (z *zstdFile) Close() error {
	err := z.Encoder.Close()
	if cerr := z.f.Close(); err == nil {
		err = cerr
	}
	return err
}

// fileSink is the output file of one recording.
// A file that received no samples is removed on Close.
type fileSink struct {
	name    string
	w       io.WriteCloser
	written int64
}

func (s *fileSink) Write(p []byte) (int, error) {
	n, err := s.w.Write(p)
	s.written += int64(n)
	return n, err
}

func (s *fileSink) Close() error {
	err := s.w.Close()
	if s.written == 0 {
		if rerr := os.Remove(s.name); rerr != nil && err == nil {
			err = fmt.Errorf("failed to remove empty output file: %w", rerr)
		}
	}
	return err
}

// openSink creates the output file for a recording.
// Names ending in .zst are written zstd-compressed.
func openSink(filename string) (*fileSink, error) {
	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}
	if !strings.HasSuffix(filename, ".zst") {
		return &fileSink{name: filename, w: f}, nil
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		f.Close()
		os.Remove(filename)
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	return &fileSink{name: filename, w: &zstdFile{Encoder: enc, f: f}}, nil
}

// defaultFilename names a recording by its start time
func defaultFilename(now time.Time) string {
	return "recording_" + now.Format("20060102-15-04-05") + ".txt"
}

// studyFilename names the recording of one study task
func studyFilename(subject, day, file string) string {
	return subject + "_Day" + day + "_" + file + ".txt"
}

// console delivers operator input line by line.
// A single reader goroutine owns the input so that no line is lost
// between prompts.
type console struct {
	lines chan string
}

func newConsole(in io.Reader) *console {
	c := &console{lines: make(chan string)}
	go func() {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			c.lines <- scanner.Text()
		}
		close(c.lines)
	}()
	return c
}

var errInputClosed = errors.New("input closed")

// waitEnter blocks until the operator presses Enter
func (c *console) waitEnter(ctx context.Context) error {
	select {
	case _, ok := <-c.lines:
		if !ok {
			return errInputClosed
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// trigger stops an open-ended recording on Enter.
// End of input also stops it, so piped sessions terminate.
func (c *console) trigger(prompt string) cyton.Trigger {
	return func(ctx context.Context) error {
		fmt.Println(prompt)
		err := c.waitEnter(ctx)
		if errors.Is(err, errInputClosed) {
			return nil
		}
		return err
	}
}
