package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kbukum/mmrunner/display"
	"github.com/kbukum/mmrunner/errors"
)

// Controller is the part of display.Display the model drives.
type Controller interface {
	Run(ctx context.Context, req display.RunRequest) (string, error)
	Cancel()
	Snapshot() display.Snapshot
}

var _ Controller = (*display.Display)(nil)

// Status lines.
const (
	StatusIdle      = "Press r to run"
	StatusRunning   = display.LabelRunning
	StatusCancelled = "Cancelled"
)

// runResultMsg reports the outcome of Controller.Run.
type runResultMsg struct {
	runID string
	err   error
}

// Model is the bubbletea model of the runner screen.
type Model struct {
	ctx     context.Context
	ctrl    Controller
	req     display.RunRequest
	title   string
	spinner spinner.Model
	width   int

	command   string
	lastLine  string
	lines     int
	starting  bool
	running   bool
	exitCode  *int
	cancelled bool
	err       error
	quitting  bool
}

// NewModel creates a model reflecting ctrl's current snapshot. ctx is the
// parent of every run started from the keyboard.
func NewModel(ctx context.Context, ctrl Controller, title string, req display.RunRequest) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = runningStyle

	snap := ctrl.Snapshot()
	return Model{
		ctx:       ctx,
		ctrl:      ctrl,
		req:       req,
		title:     title,
		spinner:   s,
		command:   snap.Command,
		lastLine:  snap.LastLine,
		lines:     snap.Lines,
		running:   snap.Running,
		exitCode:  snap.ExitCode,
		cancelled: snap.Cancelled,
	}
}

// Init starts the spinner.
func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update handles keys, display events and run results.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case runResultMsg:
		m.starting = false
		if msg.err != nil {
			m.err = msg.err
		}
		return m, nil

	case eventMsg:
		m.apply(display.Event(msg))
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		m.quitting = true
		if m.running {
			m.ctrl.Cancel()
		}
		return m, tea.Quit

	case "r":
		if !m.RunEnabled() {
			return m, nil
		}
		m.starting = true
		m.err = nil
		ctrl, ctx, req := m.ctrl, m.ctx, m.req
		return m, func() tea.Msg {
			id, err := ctrl.Run(ctx, req)
			return runResultMsg{runID: id, err: err}
		}

	case "c":
		if m.running {
			m.ctrl.Cancel()
		}
		return m, nil
	}
	return m, nil
}

func (m *Model) apply(ev display.Event) {
	switch ev.Type {
	case display.EventStarted:
		m.command = ev.Command
		m.lastLine = ""
		m.lines = 0
		m.running = true
		m.exitCode = nil
		m.cancelled = false
	case display.EventLine:
		m.lastLine = ev.Line
		m.lines = ev.Seq
	case display.EventFinished:
		m.running = false
		m.exitCode = ev.ExitCode
		m.cancelled = ev.Cancelled
	}
}

// RunEnabled reports whether r starts a run.
func (m Model) RunEnabled() bool {
	return !m.running && !m.starting
}

// Status returns the status line text.
func (m Model) Status() string {
	switch {
	case m.err != nil:
		return "Error: " + describeError(m.err)
	case m.running || m.starting:
		return StatusRunning
	case m.cancelled:
		return StatusCancelled
	case m.exitCode == nil:
		return StatusIdle
	case *m.exitCode == 0:
		return "Done (exit 0)"
	default:
		return fmt.Sprintf("Failed (exit %d)", *m.exitCode)
	}
}

// Quitting reports whether the user asked to leave.
func (m Model) Quitting() bool { return m.quitting }

// View renders the screen.
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render(m.title))
	b.WriteString("\n")
	b.WriteString(commandStyle.Render("$ " + m.command))
	b.WriteString("\n")

	line := m.lastLine
	if line == "" {
		line = " "
	}
	box := lineBox
	if m.width > 4 {
		box = box.Width(m.width - 2)
		line = truncate(line, m.width-6)
	}
	b.WriteString(box.Render(line))
	b.WriteString("\n")

	b.WriteString(m.renderStatus())
	b.WriteString("\n\n")
	b.WriteString(m.renderHelp())
	b.WriteString("\n")
	return b.String()
}

func (m Model) renderStatus() string {
	status := m.Status()
	switch {
	case m.err != nil:
		return failedStyle.Render("✗ " + status)
	case m.running || m.starting:
		return m.spinner.View() + " " + runningStyle.Render(status) + mutedStyle.Render(fmt.Sprintf(" (%d lines)", m.lines))
	case m.cancelled:
		return warnStyle.Render("⚠ " + status)
	case m.exitCode == nil:
		return mutedStyle.Render(status)
	case *m.exitCode == 0:
		return doneStyle.Render("✓ " + status)
	default:
		return failedStyle.Render("✗ " + status)
	}
}

func (m Model) renderHelp() string {
	key := func(k, label string, enabled bool) string {
		if !enabled {
			return mutedStyle.Render(k + " " + label)
		}
		return keyStyle.Render(k) + " " + label
	}
	return lipgloss.JoinHorizontal(lipgloss.Top,
		key("r", display.LabelRun, m.RunEnabled()), mutedStyle.Render(" • "),
		key("c", "Cancel", m.running), mutedStyle.Render(" • "),
		key("q", "Quit", true),
	)
}

func describeError(err error) string {
	if appErr, ok := errors.AsAppError(err); ok {
		return appErr.Message
	}
	return err.Error()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 1 || len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
