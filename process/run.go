package process

import (
	"context"
	"fmt"
)

// Run executes cmd, collects every line into Result.Output and waits for
// it to complete. A non-zero exit returns the result with an *ExitError.
// Cancelling ctx terminates the process tree (SIGTERM, then SIGKILL after
// the grace period) and returns an error wrapping ctx.Err().
func Run(ctx context.Context, cmd Command, opts ...Option) (*Result, error) {
	var output []string
	r := NewRunner(Callbacks{
		OnLine: func(line string) { output = append(output, line) },
	}, opts...)

	if err := r.Start(ctx, cmd); err != nil {
		return nil, err
	}
	<-r.Done()

	res, _ := r.Result()
	res.Output = output

	if res.State == StateCancelled {
		return &res, fmt.Errorf("process: killed by context: %w", context.Cause(ctx))
	}
	if res.ExitCode != 0 {
		return &res, &ExitError{Code: res.ExitCode, Signal: res.Signal}
	}
	return &res, nil
}
