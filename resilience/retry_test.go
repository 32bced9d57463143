package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	apperrors "github.com/kbukum/mmrunner/errors"
)

func fastConfig(attempts int) RetryConfig {
	return RetryConfig{MaxAttempts: attempts, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond}
}

func TestRetry_SucceedsOnFirstAttempt(t *testing.T) {
	calls := 0
	result, err := Retry(context.Background(), DefaultRetryConfig(), func() (string, error) {
		calls++
		return "ok", nil
	})
	if err != nil || result != "ok" || calls != 1 {
		t.Errorf("got %q, %v after %d calls", result, err, calls)
	}
}

func TestRetry_SucceedsAfterRetry(t *testing.T) {
	calls := 0
	var retried []int
	cfg := fastConfig(3)
	cfg.OnRetry = func(attempt int, _ error, _ time.Duration) { retried = append(retried, attempt) }

	result, err := Retry(context.Background(), cfg, func() (int, error) {
		calls++
		if calls < 3 {
			return 0, errors.New("connection refused")
		}
		return calls, nil
	})
	if err != nil || result != 3 {
		t.Fatalf("got %d, %v", result, err)
	}
	if len(retried) != 2 || retried[0] != 1 || retried[1] != 2 {
		t.Errorf("OnRetry attempts = %v", retried)
	}
}

func TestRetry_ExceedsMaxAttempts(t *testing.T) {
	calls := 0
	testErr := errors.New("persistent")
	err := RetryFunc(context.Background(), fastConfig(3), func() error {
		calls++
		return testErr
	})
	if !errors.Is(err, testErr) || calls != 3 {
		t.Errorf("got %v after %d calls", err, calls)
	}
}

func TestRetry_RetryIf(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantCalls int
	}{
		{"plain error", errors.New("eof"), 3},
		{"retryable app error", apperrors.ServiceUnavailable("runner"), 3},
		{"permanent app error", apperrors.InvalidState("running", "idle"), 1},
		{"unauthorized", apperrors.Unauthorized("no token"), 1},
		{"canceled", context.Canceled, 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			calls := 0
			_ = RetryFunc(context.Background(), fastConfig(3), func() error {
				calls++
				return tc.err
			})
			if calls != tc.wantCalls {
				t.Errorf("calls = %d, want %d", calls, tc.wantCalls)
			}
		})
	}
}

func TestRetry_RespectsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := RetryConfig{MaxAttempts: 10, InitialBackoff: time.Hour, MaxBackoff: time.Hour}
	calls := 0

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	err := RetryFunc(ctx, cfg, func() error {
		calls++
		return errors.New("down")
	})
	if !errors.Is(err, context.Canceled) || calls != 1 {
		t.Errorf("got %v after %d calls", err, calls)
	}
}

func TestBackoff(t *testing.T) {
	cfg := RetryConfig{InitialBackoff: 100 * time.Millisecond, MaxBackoff: time.Second, BackoffFactor: 2}
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{5, time.Second},
	}
	for _, tc := range tests {
		if got := Backoff(tc.attempt, cfg); got != tc.want {
			t.Errorf("Backoff(%d) = %v, want %v", tc.attempt, got, tc.want)
		}
	}

	cfg.Jitter = 0.5
	for range 20 {
		if got := Backoff(1, cfg); got < 50*time.Millisecond || got > 150*time.Millisecond {
			t.Fatalf("jittered backoff %v outside [50ms, 150ms]", got)
		}
	}
}
