package bootstrap

import (
	"context"
	"errors"
	"os"
	"syscall"
)

// SignalError is the cancellation cause of a RunTask context interrupted
// by a signal.
type SignalError struct {
	Signal os.Signal
}

func (e *SignalError) Error() string {
	return "interrupted by " + e.Signal.String()
}

// ExitCode follows the shell convention of 128 plus the signal number.
func (e *SignalError) ExitCode() int {
	if s, ok := e.Signal.(syscall.Signal); ok {
		return 128 + int(s)
	}
	return 1
}

// SignalFrom reports the signal that cancelled ctx, if any.
func SignalFrom(ctx context.Context) (os.Signal, bool) {
	var se *SignalError
	if errors.As(context.Cause(ctx), &se) {
		return se.Signal, true
	}
	return nil, false
}
