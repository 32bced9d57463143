package tui

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/kbukum/mmrunner/display"
)

// Run shows the runner screen until the user quits or ctx ends. The
// bridge must be one of d's publishers. A run still active on exit is
// cancelled; waiting for it is left to the caller.
func Run(ctx context.Context, d *display.Display, bridge *Bridge, title string, req display.RunRequest, opts ...tea.ProgramOption) error {
	opts = append([]tea.ProgramOption{tea.WithContext(ctx)}, opts...)
	p := tea.NewProgram(NewModel(ctx, d, title, req), opts...)
	bridge.Attach(p)
	defer bridge.Attach(nil)

	_, err := p.Run()
	d.Cancel()
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("tui: %w", err)
	}
	return nil
}
