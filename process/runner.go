package process

import (
	"bufio"
	"context"
	stderrors "errors"
	"io"
	"os"
	"os/exec"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sys/unix"

	"github.com/kbukum/mmrunner/errors"
	"github.com/kbukum/mmrunner/logger"
	"github.com/kbukum/mmrunner/observability"
)

// Callbacks receive a run's output from the runner's goroutines: OnLine
// once per line in order, then OnFinished exactly once after the last
// line. Either may be nil.
type Callbacks struct {
	OnLine     func(line string)
	OnFinished func(exitCode int)
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the runner logger.
func WithLogger(l *logger.Logger) Option {
	return func(r *Runner) { r.log = l }
}

// WithMetrics records run metrics.
func WithMetrics(m *observability.RunnerMetrics) Option {
	return func(r *Runner) { r.metrics = m }
}

// WithLineBuffer sets the maximum length of a single line.
func WithLineBuffer(max int) Option {
	return func(r *Runner) {
		if max > 0 {
			r.maxLine = max
		}
	}
}

// Runner launches one external command, streams its merged stdout and
// stderr line by line and reports the exit status. A Runner is single-use:
// Idle -> Running -> Finished or Cancelled.
type Runner struct {
	cb      Callbacks
	log     *logger.Logger
	metrics *observability.RunnerMetrics
	maxLine int

	done chan struct{}

	mu        sync.Mutex
	state     State
	cmd       *exec.Cmd
	argv      []string
	grace     time.Duration
	exited    bool
	killTimer *time.Timer
	stopCtx   func() bool
	startedAt time.Time
	result    Result
	hasResult bool
}

// NewRunner creates an idle runner.
func NewRunner(cb Callbacks, opts ...Option) *Runner {
	r := &Runner{
		cb:      cb,
		log:     logger.Get("process"),
		maxLine: DefaultMaxLineLength,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start spawns cmd and returns once the process exists. Output is delivered
// from a background goroutine. Cancelling ctx has the same effect as
// Cancel.
func (r *Runner) Start(ctx context.Context, cmd Command) error {
	if err := cmd.validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StateIdle {
		return errors.InvalidState(r.state.String(), StateIdle.String())
	}

	argv := slices.Clone(cmd.Argv)
	log := r.log.WithContext(ctx).WithFields(logger.Fields(logger.FieldCommand, cmd.String()))
	spanCtx, span := observability.StartSpan(ctx, observability.SpanProcessRun, trace.WithAttributes(
		attribute.String(observability.AttrExecutable, argv[0]),
		attribute.Int(observability.AttrArgCount, len(argv)-1),
	))
	// Metrics and the span outlive ctx cancellation.
	bg := context.WithoutCancel(spanCtx)

	pr, pw, err := os.Pipe()
	if err != nil {
		return r.spawnFailed(bg, span, log, argv[0], ReasonPipe, err)
	}

	c := exec.Command(argv[0], argv[1:]...) //nolint:gosec // running the configured argv is the purpose of this package
	c.Dir = cmd.Dir
	c.Env = mergeEnv(cmd.Env)
	c.Stdout = pw
	c.Stderr = pw
	c.SysProcAttr = procAttr()

	if err := c.Start(); err != nil {
		pr.Close()
		pw.Close()
		return r.spawnFailed(bg, span, log, argv[0], spawnReason(err, cmd.Dir), err)
	}
	// The child holds its own copy of the write end; EOF arrives when every
	// process in the tree has closed it.
	pw.Close()

	r.state = StateRunning
	r.cmd = c
	r.argv = argv
	r.grace = cmd.gracePeriod()
	r.startedAt = time.Now()
	span.SetAttributes(attribute.Int(observability.AttrPID, c.Process.Pid))
	r.metrics.RunStarted(bg, argv[0])
	log.Debug("run started", logger.Fields(logger.FieldPID, c.Process.Pid))

	if ctx.Done() != nil {
		r.stopCtx = context.AfterFunc(ctx, r.Cancel)
	}

	go r.supervise(bg, span, log, pr)
	return nil
}

func (r *Runner) spawnFailed(ctx context.Context, span trace.Span, log *logger.Logger, exe, reason string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, reason)
	span.End()
	r.metrics.SpawnFailed(ctx, exe, reason)
	log.Warn("spawn failed", logger.Fields(logger.FieldError, err.Error(), "reason", reason))
	return errors.SpawnFailed(exe, err).WithDetail("reason", reason)
}

// supervise collects output and the exit status and finishes the run.
func (r *Runner) supervise(ctx context.Context, span trace.Span, log *logger.Logger, pr *os.File) {
	out := &outputReader{f: pr, idle: r.pipeDelay()}
	read := make(chan int, 1)
	go func() { read <- r.readLines(log, out) }()

	waitErr := r.reap()
	out.leaderExited()
	lines := <-read
	_ = pr.Close()

	r.finish(ctx, span, log, lines, waitErr)
}

// readLines delivers lines until EOF or until the pipe goes idle after
// the leader exited.
func (r *Runner) readLines(log *logger.Logger, out *outputReader) int {
	sc := bufio.NewScanner(out)
	sc.Buffer(make([]byte, 0, min(64*1024, r.maxLine)), r.maxLine)
	sc.Split(ScanLines)

	lines := 0
	for sc.Scan() {
		lines++
		if r.cb.OnLine != nil {
			r.cb.OnLine(decodeLine(sc.Bytes()))
		}
	}
	switch err := sc.Err(); {
	case err == nil:
	case stderrors.Is(err, os.ErrDeadlineExceeded):
		log.Warn("output still open after exit, closing pipe", logger.Fields("idle", out.idle.String()))
	default:
		log.Warn("output stream read failed, discarding remainder", logger.Fields(logger.FieldError, err.Error()))
		// Keep the pipe drained so the child cannot block on a full buffer.
		_, _ = io.Copy(io.Discard, out)
	}
	return lines
}

// outputReader reads the merged output pipe. Once the leader has exited,
// every read waits at most idle for data: a descendant that left the
// process group can hold the write end open indefinitely.
type outputReader struct {
	f      *os.File
	idle   time.Duration
	exited atomic.Bool
}

func (o *outputReader) Read(p []byte) (int, error) {
	if o.exited.Load() {
		_ = o.f.SetReadDeadline(time.Now().Add(o.idle))
	}
	return o.f.Read(p)
}

func (o *outputReader) leaderExited() {
	o.exited.Store(true)
	_ = o.f.SetReadDeadline(time.Now().Add(o.idle))
}

// reap waits for the leader to exit. Where possible the exited flag is set
// while the process is still a zombie, so no signal can reach a reused PID.
func (r *Runner) reap() error {
	if waitExited(r.cmd.Process.Pid) {
		r.markExited()
		return r.cmd.Wait()
	}
	err := r.cmd.Wait()
	r.markExited()
	return err
}

func (r *Runner) markExited() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.exited = true
	if r.killTimer != nil {
		r.killTimer.Stop()
	}
}

func (r *Runner) pipeDelay() time.Duration {
	if r.grace > 0 {
		return r.grace
	}
	return DefaultGracePeriod
}

func (r *Runner) finish(ctx context.Context, span trace.Span, log *logger.Logger, lines int, waitErr error) {
	exitCode, sig := exitStatus(r.cmd.ProcessState)

	r.mu.Lock()
	if r.stopCtx != nil {
		r.stopCtx()
	}
	if r.state != StateCancelled {
		r.state = StateFinished
	}
	res := Result{
		Argv:      r.argv,
		State:     r.state,
		ExitCode:  exitCode,
		Signal:    sig,
		Lines:     lines,
		StartedAt: r.startedAt,
		Duration:  time.Since(r.startedAt),
	}
	r.result = res
	r.hasResult = true
	pid := r.cmd.Process.Pid
	r.mu.Unlock()

	fields := logger.MergeWithDuration(logger.Fields(
		logger.FieldPID, pid,
		logger.FieldExitCode, exitCode,
		logger.FieldState, res.State.String(),
		"lines", lines,
	), res.Duration)
	if sig != "" {
		fields["signal"] = sig
	}
	if waitErr != nil && exitCode == ExitCodeUnknown && sig == "" {
		fields[logger.FieldError] = waitErr.Error()
	}
	log.Info("run finished", fields)

	r.metrics.LinesDelivered(ctx, r.argv[0], lines)
	r.metrics.RunFinished(ctx, r.argv[0], res.State.String(), exitCode, res.Duration)
	span.SetAttributes(
		attribute.Int(observability.AttrExitCode, exitCode),
		attribute.String(observability.AttrRunState, res.State.String()),
		attribute.Int(observability.AttrLines, lines),
	)
	if !res.Succeeded() && res.State == StateFinished {
		span.SetStatus(codes.Error, "non-zero exit")
	}
	span.End()

	if r.cb.OnFinished != nil {
		r.cb.OnFinished(exitCode)
	}
	close(r.done)
}

// Cancel requests termination of a running process. It sends SIGTERM to
// the process tree, arms SIGKILL after the grace period and returns
// without waiting. It does nothing unless the runner is Running.
func (r *Runner) Cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StateRunning {
		return
	}
	r.state = StateCancelled
	if r.exited {
		return
	}
	if err := signalTree(r.cmd.Process, unix.SIGTERM); err != nil {
		r.log.Debug("terminate signal failed", logger.Fields(logger.FieldPID, r.cmd.Process.Pid, logger.FieldError, err.Error()))
	}
	if r.grace > 0 {
		r.killTimer = time.AfterFunc(r.grace, r.kill)
	}
}

func (r *Runner) kill() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.exited {
		return
	}
	r.log.Warn("grace period elapsed, killing process group", logger.Fields(logger.FieldPID, r.cmd.Process.Pid))
	if err := signalTree(r.cmd.Process, unix.SIGKILL); err != nil {
		r.log.Debug("kill signal failed", logger.Fields(logger.FieldPID, r.cmd.Process.Pid, logger.FieldError, err.Error()))
	}
}

// State returns the current lifecycle state.
func (r *Runner) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Pid returns the process ID, or 0 before a successful Start.
func (r *Runner) Pid() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cmd == nil || r.cmd.Process == nil {
		return 0
	}
	return r.cmd.Process.Pid
}

// Done is closed after OnFinished returns.
func (r *Runner) Done() <-chan struct{} {
	return r.done
}

// Result returns the outcome once the run reached a terminal state.
func (r *Runner) Result() (Result, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.result, r.hasResult
}

// Wait blocks until the run is done or ctx ends. Waiting on a runner that
// was never started is an INVALID_STATE error; a ctx deadline is a TIMEOUT
// error wrapping context.DeadlineExceeded.
func (r *Runner) Wait(ctx context.Context) (Result, error) {
	if r.State() == StateIdle {
		return Result{}, errors.InvalidState(StateIdle.String(), StateRunning.String())
	}
	select {
	case <-r.done:
		res, _ := r.Result()
		return res, nil
	case <-ctx.Done():
		if stderrors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Result{}, errors.Timeout("wait for run").WithCause(ctx.Err())
		}
		return Result{}, ctx.Err()
	}
}
