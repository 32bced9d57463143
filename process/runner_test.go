package process_test

import (
	"context"
	stderrors "errors"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strconv"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/kbukum/mmrunner/errors"
	"github.com/kbukum/mmrunner/logger"
	"github.com/kbukum/mmrunner/process"
)

// recorder captures callbacks and checks their ordering.
type recorder struct {
	mu       sync.Mutex
	lines    []string
	finished []int
	lateLine bool
	first    chan struct{}
	once     sync.Once
}

func newRecorder() *recorder {
	return &recorder{first: make(chan struct{})}
}

func (rec *recorder) callbacks() process.Callbacks {
	return process.Callbacks{
		OnLine: func(line string) {
			rec.mu.Lock()
			defer rec.mu.Unlock()
			if len(rec.finished) > 0 {
				rec.lateLine = true
			}
			rec.lines = append(rec.lines, line)
			rec.once.Do(func() { close(rec.first) })
		},
		OnFinished: func(code int) {
			rec.mu.Lock()
			defer rec.mu.Unlock()
			rec.finished = append(rec.finished, code)
		},
	}
}

func (rec *recorder) snapshot() ([]string, []int) {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return slices.Clone(rec.lines), slices.Clone(rec.finished)
}

func newRunner(rec *recorder, opts ...process.Option) *process.Runner {
	opts = append([]process.Option{process.WithLogger(logger.Nop())}, opts...)
	return process.NewRunner(rec.callbacks(), opts...)
}

func sh(script string) process.Command {
	return process.Command{Argv: []string{"sh", "-c", script}}
}

func waitDone(t *testing.T, r *process.Runner, within time.Duration) {
	t.Helper()
	select {
	case <-r.Done():
	case <-time.After(within):
		t.Fatalf("run did not finish within %v (state %s)", within, r.State())
	}
}

func TestRunnerEchoHello(t *testing.T) {
	rec := newRecorder()
	r := newRunner(rec)

	if err := r.Start(context.Background(), process.Command{Argv: []string{"echo", "hello"}}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitDone(t, r, 5*time.Second)

	lines, finished := rec.snapshot()
	if !slices.Equal(lines, []string{"hello"}) {
		t.Errorf("lines = %q, want [hello]", lines)
	}
	if !slices.Equal(finished, []int{0}) {
		t.Errorf("finished = %v, want [0]", finished)
	}
	if r.State() != process.StateFinished {
		t.Errorf("state = %s, want finished", r.State())
	}
	res, ok := r.Result()
	if !ok || !res.Succeeded() || res.Lines != 1 {
		t.Errorf("unexpected result %+v (ok=%v)", res, ok)
	}
}

func TestRunnerNoOutput(t *testing.T) {
	rec := newRecorder()
	r := newRunner(rec)

	if err := r.Start(context.Background(), process.Command{Argv: []string{"true"}}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitDone(t, r, 5*time.Second)

	lines, finished := rec.snapshot()
	if len(lines) != 0 {
		t.Errorf("expected no lines, got %q", lines)
	}
	if len(finished) != 1 {
		t.Errorf("expected exactly one OnFinished, got %v", finished)
	}
}

func TestRunnerExitCode(t *testing.T) {
	tests := []struct {
		name string
		cmd  process.Command
		want int
	}{
		{"false", process.Command{Argv: []string{"false"}}, 1},
		{"exit 42", sh("exit 42"), 42},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := newRecorder()
			r := newRunner(rec)
			if err := r.Start(context.Background(), tc.cmd); err != nil {
				t.Fatalf("Start: %v", err)
			}
			waitDone(t, r, 5*time.Second)

			_, finished := rec.snapshot()
			if !slices.Equal(finished, []int{tc.want}) {
				t.Errorf("finished = %v, want [%d]", finished, tc.want)
			}
			if r.State() != process.StateFinished {
				t.Errorf("state = %s, want finished", r.State())
			}
		})
	}
}

func TestRunnerSpawnFailure(t *testing.T) {
	notExec := filepath.Join(t.TempDir(), "script")
	if err := os.WriteFile(notExec, []byte("#!/bin/sh\necho hi\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		cmd    process.Command
		reason string
		is     error
	}{
		{"missing binary", process.Command{Argv: []string{"/nonexistent/definitely-not-here"}}, process.ReasonNotFound, nil},
		{"not on PATH", process.Command{Argv: []string{"mmrunner-no-such-tool-xyz"}}, process.ReasonNotFound, exec.ErrNotFound},
		{"bad directory", process.Command{Argv: []string{"true"}, Dir: "/nonexistent/dir"}, process.ReasonBadDirectory, nil},
		{"not executable", process.Command{Argv: []string{notExec}}, process.ReasonPermissionDenied, nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := newRecorder()
			r := newRunner(rec)

			err := r.Start(context.Background(), tc.cmd)
			if !errors.HasCode(err, errors.ErrCodeSpawnFailed) {
				t.Fatalf("expected SPAWN_FAILED, got %v", err)
			}
			appErr, _ := errors.AsAppError(err)
			if appErr.Details["reason"] != tc.reason {
				t.Errorf("reason = %v, want %s", appErr.Details["reason"], tc.reason)
			}
			if tc.is != nil && !stderrors.Is(err, tc.is) {
				t.Errorf("expected errors.Is(%v)", tc.is)
			}
			if r.State() != process.StateIdle {
				t.Errorf("state = %s, want idle", r.State())
			}

			time.Sleep(50 * time.Millisecond)
			lines, finished := rec.snapshot()
			if len(lines) != 0 || len(finished) != 0 {
				t.Errorf("expected no callbacks, got lines=%q finished=%v", lines, finished)
			}
		})
	}
}

func TestRunnerInvalidInput(t *testing.T) {
	r := newRunner(newRecorder())
	for _, argv := range [][]string{nil, {}, {"  "}} {
		err := r.Start(context.Background(), process.Command{Argv: argv})
		if !errors.HasCode(err, errors.ErrCodeInvalidInput) {
			t.Errorf("argv %q: expected INVALID_INPUT, got %v", argv, err)
		}
	}
	if r.State() != process.StateIdle {
		t.Errorf("state = %s, want idle", r.State())
	}
}

func TestRunnerStartWhileRunning(t *testing.T) {
	rec := newRecorder()
	r := newRunner(rec)

	if err := r.Start(context.Background(), sh("echo first; sleep 0.3")); err != nil {
		t.Fatalf("Start: %v", err)
	}
	pid := r.Pid()

	err := r.Start(context.Background(), process.Command{Argv: []string{"echo", "second"}})
	if !errors.HasCode(err, errors.ErrCodeInvalidState) {
		t.Fatalf("expected INVALID_STATE, got %v", err)
	}
	if r.Pid() != pid {
		t.Error("expected the running process to be unaffected")
	}

	waitDone(t, r, 5*time.Second)
	lines, finished := rec.snapshot()
	if !slices.Equal(lines, []string{"first"}) {
		t.Errorf("lines = %q, want [first]", lines)
	}
	if len(finished) != 1 {
		t.Errorf("expected one OnFinished, got %v", finished)
	}
}

func TestRunnerSingleUse(t *testing.T) {
	rec := newRecorder()
	r := newRunner(rec)
	if err := r.Start(context.Background(), process.Command{Argv: []string{"true"}}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitDone(t, r, 5*time.Second)

	err := r.Start(context.Background(), process.Command{Argv: []string{"true"}})
	if !errors.HasCode(err, errors.ErrCodeInvalidState) {
		t.Fatalf("expected INVALID_STATE after finish, got %v", err)
	}
}

func TestRunnerCancelNoop(t *testing.T) {
	rec := newRecorder()
	r := newRunner(rec)

	r.Cancel()
	if r.State() != process.StateIdle {
		t.Fatalf("Cancel before Start changed state to %s", r.State())
	}

	if err := r.Start(context.Background(), process.Command{Argv: []string{"echo", "x"}}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitDone(t, r, 5*time.Second)

	r.Cancel()
	if r.State() != process.StateFinished {
		t.Errorf("Cancel after finish changed state to %s", r.State())
	}
	_, finished := rec.snapshot()
	if len(finished) != 1 {
		t.Errorf("expected one OnFinished, got %v", finished)
	}
}

func TestRunnerCancelSleep(t *testing.T) {
	rec := newRecorder()
	r := newRunner(rec)

	start := time.Now()
	if err := r.Start(context.Background(), process.Command{Argv: []string{"sleep", "5"}}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	r.Cancel()
	if r.State() != process.StateCancelled {
		t.Errorf("state right after Cancel = %s, want cancelled", r.State())
	}

	waitDone(t, r, 3*time.Second)
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("cancelled run took %v", elapsed)
	}

	_, finished := rec.snapshot()
	if !slices.Equal(finished, []int{process.ExitCodeUnknown}) {
		t.Errorf("finished = %v, want [%d]", finished, process.ExitCodeUnknown)
	}
	res, _ := r.Result()
	if res.State != process.StateCancelled || res.Signal != "SIGTERM" {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestRunnerCancelConcurrent(t *testing.T) {
	rec := newRecorder()
	r := newRunner(rec)
	if err := r.Start(context.Background(), process.Command{Argv: []string{"sleep", "5"}}); err != nil {
		t.Fatalf("Start: %v", err)
	}

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Cancel()
		}()
	}
	wg.Wait()
	waitDone(t, r, 3*time.Second)

	_, finished := rec.snapshot()
	if len(finished) != 1 {
		t.Errorf("expected one OnFinished, got %v", finished)
	}
	if r.State() != process.StateCancelled {
		t.Errorf("state = %s, want cancelled", r.State())
	}
}

func TestRunnerCancelledIsAuthoritative(t *testing.T) {
	rec := newRecorder()
	r := newRunner(rec)

	// The child ignores SIGTERM and exits 0 on its own shortly after.
	if err := r.Start(context.Background(), sh(`trap "" TERM; echo ready; sleep 0.2; exit 0`)); err != nil {
		t.Fatalf("Start: %v", err)
	}
	<-rec.first
	r.Cancel()
	waitDone(t, r, 5*time.Second)

	res, _ := r.Result()
	if res.State != process.StateCancelled {
		t.Errorf("state = %s, want cancelled", res.State)
	}
	if res.ExitCode != 0 {
		t.Errorf("exit code = %d, want the child's own 0", res.ExitCode)
	}
}

func TestRunnerKillEscalation(t *testing.T) {
	rec := newRecorder()
	r := newRunner(rec)

	cmd := sh(`trap "" TERM; echo ready; sleep 30`)
	cmd.GracePeriod = 200 * time.Millisecond
	start := time.Now()
	if err := r.Start(context.Background(), cmd); err != nil {
		t.Fatalf("Start: %v", err)
	}
	<-rec.first
	r.Cancel()
	waitDone(t, r, 5*time.Second)

	if elapsed := time.Since(start); elapsed > 4*time.Second {
		t.Errorf("escalation took %v", elapsed)
	}
	res, _ := r.Result()
	if res.Signal != "SIGKILL" || res.ExitCode != process.ExitCodeUnknown {
		t.Errorf("expected SIGKILL and unknown exit code, got %+v", res)
	}
}

func TestRunnerContextCancel(t *testing.T) {
	rec := newRecorder()
	r := newRunner(rec)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := r.Start(ctx, process.Command{Argv: []string{"sleep", "5"}}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	cancel()
	waitDone(t, r, 3*time.Second)

	if r.State() != process.StateCancelled {
		t.Errorf("state = %s, want cancelled", r.State())
	}
}

func TestRunnerMergedOrdering(t *testing.T) {
	rec := newRecorder()
	r := newRunner(rec)

	if err := r.Start(context.Background(), sh("echo out1; echo err1 >&2; echo out2; echo err2 >&2")); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitDone(t, r, 5*time.Second)

	lines, _ := rec.snapshot()
	want := []string{"out1", "err1", "out2", "err2"}
	if !slices.Equal(lines, want) {
		t.Errorf("lines = %q, want %q", lines, want)
	}
	if rec.lateLine {
		t.Error("OnLine called after OnFinished")
	}
}

func TestRunnerLineTerminators(t *testing.T) {
	tests := []struct {
		name   string
		script string
		want   []string
	}{
		{"crlf and lone cr", `printf 'a\r\nb\rc\n'`, []string{"a", "b", "c"}},
		{"empty lines kept", `printf 'x\n\n\ny\n'`, []string{"x", "", "", "y"}},
		{"final fragment", `printf 'one\ntwo'`, []string{"one", "two"}},
		{"invalid utf-8", `printf '\377ok\n'`, []string{"�ok"}},
		{"progress bar", `printf '10%%\r50%%\r100%%\ndone\n'`, []string{"10%", "50%", "100%", "done"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := newRecorder()
			r := newRunner(rec)
			if err := r.Start(context.Background(), sh(tc.script)); err != nil {
				t.Fatalf("Start: %v", err)
			}
			waitDone(t, r, 5*time.Second)

			lines, _ := rec.snapshot()
			if !slices.Equal(lines, tc.want) {
				t.Errorf("lines = %q, want %q", lines, tc.want)
			}
		})
	}
}

func TestRunnerOverlongLineDrains(t *testing.T) {
	rec := newRecorder()
	r := newRunner(rec, process.WithLineBuffer(16))

	// 200 KiB after the long line would block the child on a full pipe if
	// the remainder were not drained.
	script := `printf 'short\n'; head -c 300000 /dev/zero | tr '\0' 'x'; printf '\nafter\n'; exit 7`
	if err := r.Start(context.Background(), sh(script)); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitDone(t, r, 5*time.Second)

	lines, finished := rec.snapshot()
	if !slices.Equal(lines, []string{"short"}) {
		t.Errorf("lines = %q, want only [short]", lines)
	}
	if !slices.Equal(finished, []int{7}) {
		t.Errorf("finished = %v, want [7]", finished)
	}
	if r.State() != process.StateFinished {
		t.Errorf("state = %s, want finished", r.State())
	}
}

func TestRunnerArgvCopied(t *testing.T) {
	rec := newRecorder()
	r := newRunner(rec)

	argv := []string{"echo", "original"}
	if err := r.Start(context.Background(), process.Command{Argv: argv}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	argv[1] = "mutated"
	waitDone(t, r, 5*time.Second)

	res, _ := r.Result()
	if res.Argv[1] != "original" {
		t.Errorf("result argv mutated: %q", res.Argv)
	}
}

func TestRunnerEnvAndDir(t *testing.T) {
	rec := newRecorder()
	r := newRunner(rec)

	dir := t.TempDir()
	cmd := sh(`echo "$MMRUNNER_TEST"; pwd`)
	cmd.Env = []string{"MMRUNNER_TEST=from-env"}
	cmd.Dir = dir
	if err := r.Start(context.Background(), cmd); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitDone(t, r, 5*time.Second)

	lines, _ := rec.snapshot()
	if len(lines) != 2 || lines[0] != "from-env" {
		t.Fatalf("unexpected lines %q", lines)
	}
}

func TestRunnerWait(t *testing.T) {
	r := newRunner(newRecorder())

	if _, err := r.Wait(context.Background()); !errors.HasCode(err, errors.ErrCodeInvalidState) {
		t.Errorf("expected INVALID_STATE waiting on idle runner, got %v", err)
	}

	if err := r.Start(context.Background(), process.Command{Argv: []string{"sleep", "5"}}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := r.Wait(ctx)
	if !errors.HasCode(err, errors.ErrCodeTimeout) {
		t.Errorf("expected TIMEOUT, got %v", err)
	}
	if !stderrors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded cause, got %v", err)
	}

	cctx, ccancel := context.WithCancel(context.Background())
	ccancel()
	if _, err := r.Wait(cctx); !stderrors.Is(err, context.Canceled) || errors.HasCode(err, errors.ErrCodeTimeout) {
		t.Errorf("expected plain context.Canceled, got %v", err)
	}

	r.Cancel()
	res, err := r.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if res.State != process.StateCancelled {
		t.Errorf("state = %s, want cancelled", res.State)
	}
}

// detached starts script, whose first line is the PID of a sleep that left
// the process group but still holds the output pipe, and kills that sleep
// when the test ends.
func detached(t *testing.T, r *process.Runner, rec *recorder, script string, grace time.Duration) {
	t.Helper()
	if _, err := exec.LookPath("setsid"); err != nil {
		t.Skip("setsid not available")
	}
	cmd := sh(script)
	cmd.GracePeriod = grace
	if err := r.Start(context.Background(), cmd); err != nil {
		t.Fatalf("Start: %v", err)
	}
	<-rec.first
	lines, _ := rec.snapshot()
	pid, err := strconv.Atoi(lines[0])
	if err != nil {
		t.Fatalf("expected pid as first line, got %q", lines[0])
	}
	t.Cleanup(func() { _ = syscall.Kill(pid, syscall.SIGKILL) })
}

func TestRunnerCancelWithDetachedDescendant(t *testing.T) {
	rec := newRecorder()
	r := newRunner(rec)
	detached(t, r, rec, `setsid sleep 20 & echo $!; sleep 30`, 200*time.Millisecond)

	r.Cancel()
	waitDone(t, r, 5*time.Second)

	_, finished := rec.snapshot()
	if len(finished) != 1 {
		t.Fatalf("OnFinished calls = %d, want 1", len(finished))
	}
	if r.State() != process.StateCancelled {
		t.Errorf("state = %s, want cancelled", r.State())
	}
}

func TestRunnerExitWithDetachedDescendant(t *testing.T) {
	rec := newRecorder()
	r := newRunner(rec)
	detached(t, r, rec, `setsid sleep 20 & echo $!; echo done`, 200*time.Millisecond)

	waitDone(t, r, 5*time.Second)

	lines, finished := rec.snapshot()
	if !slices.Equal(finished, []int{0}) {
		t.Errorf("finished = %v, want [0]", finished)
	}
	if len(lines) != 2 || lines[1] != "done" {
		t.Errorf("lines = %q", lines)
	}
	if r.State() != process.StateFinished {
		t.Errorf("state = %s, want finished", r.State())
	}
}

func TestRunnerCancelAfterLeaderExit(t *testing.T) {
	rec := newRecorder()
	r := newRunner(rec)

	cmd := sh(`(sleep 0.5; echo late) & echo started`)
	cmd.GracePeriod = 3 * time.Second
	if err := r.Start(context.Background(), cmd); err != nil {
		t.Fatalf("Start: %v", err)
	}
	<-rec.first
	time.Sleep(150 * time.Millisecond)

	// The leader is gone; its group must not be signalled.
	r.Cancel()
	waitDone(t, r, 5*time.Second)

	lines, finished := rec.snapshot()
	if !slices.Equal(lines, []string{"started", "late"}) {
		t.Errorf("lines = %q, want [started late]", lines)
	}
	if len(finished) != 1 {
		t.Errorf("OnFinished calls = %d, want 1", len(finished))
	}
	if r.State() != process.StateCancelled {
		t.Errorf("state = %s, want cancelled", r.State())
	}
}
