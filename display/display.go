package display

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kbukum/mmrunner/errors"
	"github.com/kbukum/mmrunner/logger"
	"github.com/kbukum/mmrunner/process"
	"github.com/kbukum/mmrunner/validation"
)

// Button labels for the run control.
const (
	LabelRun     = "Run Command"
	LabelRunning = "Running..."
)

// DefaultHistory is the number of recent lines kept for late viewers.
const DefaultHistory = 200

// RunRequest selects what to install.
type RunRequest struct {
	// Release is empty or "latest" for the newest build, otherwise a
	// YYYYMMDD release tag.
	Release string `json:"release" validate:"release"`
}

// Snapshot is a consistent copy of the display state.
type Snapshot struct {
	RunID         string   `json:"run_id,omitempty"`
	Command       string   `json:"command"`
	LastLine      string   `json:"last_line"`
	Lines         int      `json:"lines"`
	Running       bool     `json:"running"`
	RunEnabled    bool     `json:"run_enabled"`
	CancelEnabled bool     `json:"cancel_enabled"`
	RunLabel      string   `json:"run_label"`
	State         string   `json:"state"`
	ExitCode      *int     `json:"exit_code,omitempty"`
	Cancelled     bool     `json:"cancelled"`
	Succeeded     bool     `json:"succeeded"`
	History       []string `json:"history"`
}

// Option configures a Display.
type Option func(*Display)

// WithLogger sets the display logger.
func WithLogger(l *logger.Logger) Option {
	return func(d *Display) { d.log = l }
}

// WithPublisher adds event subscribers.
func WithPublisher(p ...Publisher) Option {
	return func(d *Display) { d.pubs = append(d.pubs, p...) }
}

// WithRunnerOptions passes options to every runner the display creates.
func WithRunnerOptions(opts ...process.Option) Option {
	return func(d *Display) { d.runnerOpts = append(d.runnerOpts, opts...) }
}

// WithHistory sets how many recent lines a snapshot carries.
func WithHistory(n int) Option {
	return func(d *Display) {
		if n > 0 {
			d.history = n
		}
	}
}

// Display owns the installer runner and the view state around it: the
// latest line, the run and cancel controls and the final outcome. One
// run is active at a time; each Run uses a fresh process.Runner.
type Display struct {
	base       process.Command
	log        *logger.Logger
	pubs       []Publisher
	runnerOpts []process.Option
	history    int

	// pubMu orders published events across Run and the callbacks.
	pubMu sync.Mutex

	mu       sync.Mutex
	runner   *process.Runner
	runID    string
	command  string
	lastLine string
	lines    int
	recent   []string
	running  bool
	state    process.State
	exitCode *int
}

// New creates an idle display for the base command.
func New(base process.Command, opts ...Option) *Display {
	d := &Display{
		base:    base,
		log:     logger.Get("display"),
		history: DefaultHistory,
		command: base.String(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// CommandFor returns the argv run for req.
func (d *Display) CommandFor(req RunRequest) process.Command {
	if req.Release == "" || req.Release == validation.LatestRelease {
		return d.base.WithArgs()
	}
	return d.base.WithArgs("--release", req.Release)
}

// Run starts a new installer run and returns its ID. It fails with
// INVALID_STATE while a run is active and with SPAWN_FAILED when the
// command cannot be launched. ctx governs the run: cancelling it cancels
// the process.
func (d *Display) Run(ctx context.Context, req RunRequest) (string, error) {
	if err := validation.Validate(req); err != nil {
		return "", err
	}

	d.pubMu.Lock()
	defer d.pubMu.Unlock()

	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return "", errors.InvalidState(process.StateRunning.String(), process.StateIdle.String())
	}

	runID := uuid.NewString()
	cmd := d.CommandFor(req)
	r := process.NewRunner(process.Callbacks{
		OnLine:     func(line string) { d.onLine(runID, line) },
		OnFinished: func(code int) { d.onFinished(runID, code) },
	}, d.runnerOpts...)

	if err := r.Start(logger.ContextWithRunID(ctx, runID), cmd); err != nil {
		d.mu.Unlock()
		d.log.Warn("run rejected", logger.Fields(logger.FieldRunID, runID, logger.FieldError, err.Error()))
		return "", err
	}

	d.runner = r
	d.runID = runID
	d.command = cmd.String()
	d.lastLine = ""
	d.lines = 0
	d.recent = d.recent[:0]
	d.running = true
	d.state = process.StateRunning
	d.exitCode = nil
	ev := Event{Type: EventStarted, RunID: runID, Command: d.command, State: d.state.String(), Time: time.Now()}
	d.mu.Unlock()

	d.log.Info("run started", logger.Fields(logger.FieldRunID, runID, logger.FieldCommand, ev.Command))
	d.publish(ev)
	return runID, nil
}

// Cancel requests termination of the active run. It is a no-op when
// nothing is running.
func (d *Display) Cancel() {
	d.mu.Lock()
	r, runID, running := d.runner, d.runID, d.running
	d.mu.Unlock()

	if !running {
		return
	}
	d.log.Info("cancel requested", logger.Fields(logger.FieldRunID, runID))
	r.Cancel()
}

// Wait blocks until the most recent run completes.
func (d *Display) Wait(ctx context.Context) (process.Result, error) {
	d.mu.Lock()
	r := d.runner
	d.mu.Unlock()

	if r == nil {
		return process.Result{}, errors.InvalidState(process.StateIdle.String(), process.StateRunning.String())
	}
	return r.Wait(ctx)
}

// RunID returns the ID of the current or last run.
func (d *Display) RunID() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.runID
}

// Snapshot returns a copy of the display state.
func (d *Display) Snapshot() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()

	s := Snapshot{
		RunID:         d.runID,
		Command:       d.command,
		LastLine:      d.lastLine,
		Lines:         d.lines,
		Running:       d.running,
		RunEnabled:    !d.running,
		CancelEnabled: d.running,
		RunLabel:      LabelRun,
		State:         d.state.String(),
		History:       slices.Clone(d.recent),
	}
	if d.running {
		s.RunLabel = LabelRunning
	}
	if d.exitCode != nil {
		code := *d.exitCode
		s.ExitCode = &code
		s.Cancelled = d.state == process.StateCancelled
		s.Succeeded = d.state == process.StateFinished && code == 0
	}
	if s.History == nil {
		s.History = []string{}
	}
	return s
}

func (d *Display) onLine(runID, line string) {
	d.pubMu.Lock()
	defer d.pubMu.Unlock()

	d.mu.Lock()
	d.lastLine = line
	d.lines++
	d.recent = append(d.recent, line)
	if len(d.recent) > d.history {
		d.recent = slices.Delete(d.recent, 0, len(d.recent)-d.history)
	}
	ev := Event{Type: EventLine, RunID: runID, Line: line, Seq: d.lines, State: d.state.String(), Time: time.Now()}
	d.mu.Unlock()

	d.publish(ev)
}

func (d *Display) onFinished(runID string, code int) {
	d.pubMu.Lock()
	defer d.pubMu.Unlock()

	d.mu.Lock()
	state := process.StateFinished
	if res, ok := d.runner.Result(); ok {
		state = res.State
	}
	d.running = false
	d.state = state
	d.exitCode = &code
	ev := Event{
		Type:      EventFinished,
		RunID:     runID,
		ExitCode:  &code,
		State:     state.String(),
		Cancelled: state == process.StateCancelled,
		Succeeded: state == process.StateFinished && code == 0,
		Time:      time.Now(),
	}
	d.mu.Unlock()

	d.publish(ev)
}

func (d *Display) publish(ev Event) {
	for _, p := range d.pubs {
		p.Publish(ev)
	}
}
