package commands

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/spf13/cobra"

	"github.com/kbukum/mmrunner/bootstrap"
	"github.com/kbukum/mmrunner/display"
	"github.com/kbukum/mmrunner/observability"
	"github.com/kbukum/mmrunner/process"
)

func runCmd(opts *rootOptions) *cobra.Command {
	var release string

	cmd := &cobra.Command{
		Use:   "run [-- argv...]",
		Short: "Run the installer and print its output",
		Long: `Runs the configured command (runner.command) and prints every output line
to stdout. Arguments after "--" replace the configured command.

mmrunner exits with the command's exit code, or 130 when interrupted.

Examples:
  mmrunner run
  mmrunner run --release 20240601
  mmrunner run -- ./fake-installer.sh --slow`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			if len(args) > 0 {
				cfg.Runner.Command = args
			}

			code, err := runOnce(cmd.Context(), cfg, display.RunRequest{Release: release}, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			if code != 0 {
				return &ExitError{Code: code}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&release, "release", "", `Release to install: "latest" or YYYYMMDD`)
	return cmd
}

// runOnce performs a single run under the bootstrap lifecycle and returns
// the exit code mmrunner should end with.
func runOnce(ctx context.Context, cfg *Config, req display.RunRequest, out io.Writer) (int, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	app, err := bootstrap.NewApp(cfg, bootstrap.WithSummaryWriter(nil))
	if err != nil {
		return 1, err
	}

	providers := observability.NewProviders(cfg.Observability, app.Name, app.Version, cfg.Environment)
	if err := app.RegisterComponent(providers.Component()); err != nil {
		return 1, err
	}

	code := 0
	err = app.RunTask(ctx, func(ctx context.Context) error {
		d, err := cfg.NewDisplay(app.Logger, linePrinter(out))
		if err != nil {
			return err
		}
		if _, err := d.Run(ctx, req); err != nil {
			return err
		}
		// Escalation guarantees the run ends once ctx is cancelled.
		res, err := d.Wait(context.WithoutCancel(ctx))
		if err != nil {
			return err
		}
		code = exitCode(ctx, res)
		return nil
	})
	if err != nil {
		return 1, err
	}
	return code, nil
}

func exitCode(ctx context.Context, res process.Result) int {
	if res.State == process.StateCancelled {
		if sig, ok := bootstrap.SignalFrom(ctx); ok {
			return (&bootstrap.SignalError{Signal: sig}).ExitCode()
		}
		return 130
	}
	if res.ExitCode == process.ExitCodeUnknown {
		return 1
	}
	return res.ExitCode
}

// linePrinter writes each output line to w.
func linePrinter(w io.Writer) display.Publisher {
	var mu sync.Mutex
	return display.PublisherFunc(func(ev display.Event) {
		if ev.Type != display.EventLine {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintln(w, ev.Line)
	})
}
