package commands

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/kbukum/mmrunner/bootstrap"
	"github.com/kbukum/mmrunner/display"
	"github.com/kbukum/mmrunner/errors"
	"github.com/kbukum/mmrunner/logger"
	"github.com/kbukum/mmrunner/process"
	"github.com/kbukum/mmrunner/tui"
)

func tuiCmd(opts *rootOptions) *cobra.Command {
	var release string

	cmd := &cobra.Command{
		Use:   "tui",
		Short: "Interactive installer screen",
		Long: `Shows the command, its latest output line and the run state.

Keys:
  r        run (when no run is active)
  c        cancel the active run
  q        cancel and quit`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !term.IsTerminal(int(os.Stdout.Fd())) {
				return fmt.Errorf("tui needs a terminal; use \"mmrunner run\" for plain output")
			}
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			return runTUI(cmd.Context(), cfg, display.RunRequest{Release: release})
		},
	}

	cmd.Flags().StringVar(&release, "release", "", `Release to install: "latest" or YYYYMMDD`)
	return cmd
}

func runTUI(ctx context.Context, cfg *Config, req display.RunRequest) error {
	if ctx == nil {
		ctx = context.Background()
	}
	// The screen owns the terminal; logs go nowhere.
	cfg.ApplyDefaults()
	log := logger.NewWithWriter(&cfg.Logging, cfg.Name, io.Discard)
	logger.SetGlobalLogger(log)

	app, err := bootstrap.NewApp(cfg, bootstrap.WithLogger(log), bootstrap.WithSummaryWriter(nil))
	if err != nil {
		return err
	}

	return app.RunTask(ctx, func(ctx context.Context) error {
		bridge := tui.NewBridge()
		d, err := cfg.NewDisplay(log, bridge)
		if err != nil {
			return err
		}

		runErr := tui.Run(ctx, d, bridge, cfg.Display.Title, req, tea.WithAltScreen())
		return stderrors.Join(runErr, waitIdle(d, cfg.Command().GracePeriod))
	})
}

// waitIdle waits for a cancelled run to exit. The wait is bounded by the
// grace period plus a margin for the kill to land.
func waitIdle(d *display.Display, grace time.Duration) error {
	if grace <= 0 {
		grace = process.DefaultGracePeriod
	}
	ctx, cancel := context.WithTimeout(context.Background(), grace+2*time.Second)
	defer cancel()

	d.Cancel()
	_, err := d.Wait(ctx)
	if err == nil || isIdle(err) {
		return nil
	}
	return fmt.Errorf("waiting for run to exit: %w", err)
}

// isIdle reports a Wait on a display that never started a run.
func isIdle(err error) bool {
	return errors.HasCode(err, errors.ErrCodeInvalidState)
}
