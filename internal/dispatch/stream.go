package dispatch

import (
	"bufio"
	"context"
	"errors"
	"io"
	"iter"
	"os"
	"os/exec"
	"time"
)

const maxLineSize = 1024 * 1024

// Stream is a started subprocess whose stdout and stderr share one pipe.
type Stream struct {
	cmd    *exec.Cmd
	reader *os.File
	used   bool
	err    error
}

// StartStream starts cmd with combined output redirected into the stream.
func StartStream(cmd *exec.Cmd) (*Stream, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, err
	}

	cmd.Stdout = w
	cmd.Stderr = w

	if err := cmd.Start(); err != nil {
		r.Close()
		w.Close()
		return nil, err
	}

	// The child holds its own copy; ours must go so EOF arrives on exit.
	w.Close()

	return &Stream{cmd: cmd, reader: r}, nil
}

// Lines yields output lines as the child produces them. A line longer than
// maxLineSize is yielded in maxLineSize pieces. The sequence can be consumed
// once; later calls yield nothing. Output left unread when the consumer
// stops early is drained so the child never blocks or sees a closed pipe.
func (s *Stream) Lines() iter.Seq[string] {
	return func(yield func(string) bool) {
		if s.used {
			return
		}
		s.used = true
		defer s.drain()

		r := bufio.NewReaderSize(s.reader, 64*1024)
		var line []byte
		for {
			chunk, isPrefix, err := r.ReadLine()
			if err != nil {
				if len(line) > 0 {
					yield(string(line))
				}
				if !errors.Is(err, io.EOF) {
					s.err = err
				}
				return
			}

			line = append(line, chunk...)
			if isPrefix && len(line) < maxLineSize {
				continue
			}
			if !yield(string(line)) {
				return
			}
			line = line[:0]
		}
	}
}

// Wait drains unread output and waits for the child to exit.
func (s *Stream) Wait() error {
	if !s.used {
		s.used = true
		s.drain()
	}

	if err := s.cmd.Wait(); err != nil {
		return err
	}
	return s.err
}

func (s *Stream) drain() {
	if _, err := io.Copy(io.Discard, s.reader); err != nil && s.err == nil {
		s.err = err
	}
	s.reader.Close()
}

// command builds an exec.Cmd that receives SIGINT, not SIGKILL, when ctx is
// cancelled, and is killed only after grace.
func command(ctx context.Context, grace time.Duration, name string, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Cancel = func() error {
		return cmd.Process.Signal(os.Interrupt)
	}
	cmd.WaitDelay = grace
	return cmd
}

// exitCode extracts the exit status from a Wait error. ok is false when the
// error is not an exit status.
func exitCode(err error) (code int, ok bool) {
	if err == nil {
		return 0, true
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), true
	}
	return 0, false
}
