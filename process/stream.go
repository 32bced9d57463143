package process

import (
	"context"
	"sync"
)

// DefaultStreamBuffer is the number of lines a LineStream holds before the
// read loop blocks and the child is back-pressured through the pipe.
const DefaultStreamBuffer = 64

// LineStream is a pull-based view of one run: a finite sequence of lines
// followed by an exit code. It cannot be restarted.
type LineStream struct {
	r         *Runner
	lines     chan string
	closed    chan struct{}
	closeOnce sync.Once
}

// Stream starts cmd and returns its output as a LineStream. Start errors
// are returned synchronously.
func Stream(ctx context.Context, cmd Command, opts ...Option) (*LineStream, error) {
	s := &LineStream{
		lines:  make(chan string, DefaultStreamBuffer),
		closed: make(chan struct{}),
	}
	s.r = NewRunner(Callbacks{
		OnLine: func(line string) {
			select {
			case s.lines <- line:
			case <-s.closed:
			}
		},
		OnFinished: func(int) { close(s.lines) },
	}, opts...)

	if err := s.r.Start(ctx, cmd); err != nil {
		return nil, err
	}
	return s, nil
}

// Next returns the next line. ok is false once the stream is exhausted or
// closed; err is ctx.Err() if ctx ends first.
func (s *LineStream) Next(ctx context.Context) (line string, ok bool, err error) {
	select {
	case <-s.closed:
		return "", false, nil
	default:
	}
	select {
	case line, ok = <-s.lines:
		return line, ok, nil
	case <-s.closed:
		return "", false, nil
	case <-ctx.Done():
		return "", false, ctx.Err()
	}
}

// ExitCode reports the exit code once the run has finished.
func (s *LineStream) ExitCode() (int, bool) {
	res, ok := s.r.Result()
	return res.ExitCode, ok
}

// Result reports the full outcome once the run has finished.
func (s *LineStream) Result() (Result, bool) {
	return s.r.Result()
}

// Done is closed when the underlying run has finished.
func (s *LineStream) Done() <-chan struct{} {
	return s.r.Done()
}

// Close cancels the run if it is still going and discards undelivered
// lines. It is safe to call more than once.
func (s *LineStream) Close() {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.r.Cancel()
	})
}
