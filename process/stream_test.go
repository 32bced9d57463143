package process_test

import (
	"context"
	"slices"
	"testing"
	"time"

	"github.com/kbukum/mmrunner/errors"
	"github.com/kbukum/mmrunner/process"
)

func TestStreamLinesThenExit(t *testing.T) {
	ctx := context.Background()
	s, err := process.Stream(ctx, sh("echo a; echo b; exit 3"), quiet)
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	defer s.Close()

	var got []string
	for {
		line, ok, err := s.Next(ctx)
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if !ok {
			break
		}
		got = append(got, line)
	}
	if !slices.Equal(got, []string{"a", "b"}) {
		t.Errorf("lines = %q, want [a b]", got)
	}

	<-s.Done()
	code, ok := s.ExitCode()
	if !ok || code != 3 {
		t.Errorf("ExitCode() = %d, %v; want 3, true", code, ok)
	}

	// Exhausted streams stay exhausted.
	if _, ok, _ := s.Next(ctx); ok {
		t.Error("expected no more lines")
	}
}

func TestStreamSpawnFailure(t *testing.T) {
	_, err := process.Stream(context.Background(), process.Command{Argv: []string{"mmrunner-no-such-tool-xyz"}}, quiet)
	if !errors.HasCode(err, errors.ErrCodeSpawnFailed) {
		t.Fatalf("expected SPAWN_FAILED, got %v", err)
	}
}

func TestStreamCloseStopsProducer(t *testing.T) {
	ctx := context.Background()
	s, err := process.Stream(ctx, process.Command{Argv: []string{"yes"}}, quiet)
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if line, ok, _ := s.Next(ctx); !ok || line != "y" {
		t.Fatalf("expected first line y, got %q %v", line, ok)
	}

	s.Close()
	s.Close()
	select {
	case <-s.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("closed stream did not finish")
	}
	res, _ := s.Result()
	if res.State != process.StateCancelled {
		t.Errorf("state = %s, want cancelled", res.State)
	}
	if _, ok, _ := s.Next(ctx); ok {
		t.Error("expected closed stream to yield nothing")
	}
}

func TestStreamNextContext(t *testing.T) {
	s, err := process.Stream(context.Background(), process.Command{Argv: []string{"sleep", "5"}}, quiet)
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, _, err := s.Next(ctx); err != context.DeadlineExceeded {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}
