package commands

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kbukum/mmrunner/auth"
	"github.com/kbukum/mmrunner/client"
	"github.com/kbukum/mmrunner/display"
	"github.com/kbukum/mmrunner/logger"
)

type watchOptions struct {
	url     string
	token   string
	run     bool
	release string
}

func watchCmd(opts *rootOptions) *cobra.Command {
	wo := &watchOptions{}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow a run on a remote \"mmrunner serve\"",
		Long: `Connects to the event stream of a running server and prints output lines
until the current or next run finishes, then exits with its exit code.

With --run a new run is started after connecting. Without --token a token
is minted from auth.secret when the config enables auth.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			cfg.ApplyDefaults()
			if err := cfg.Validate(); err != nil {
				return err
			}
			logger.Init(&cfg.Logging)

			if wo.url == "" {
				wo.url = "http://" + cfg.Server.Address()
			}
			if wo.token == "" && cfg.Auth.Enabled {
				svc, err := auth.NewService(cfg.Auth)
				if err != nil {
					return err
				}
				if wo.token, err = svc.Generate("mmrunner-watch"); err != nil {
					return err
				}
			}

			c, err := client.New(wo.url, client.WithToken(wo.token))
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			code, err := watch(ctx, c, wo, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			if code != 0 {
				return &ExitError{Code: code}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&wo.url, "url", "", "Server URL (default: http://<server.host>:<server.port>)")
	cmd.Flags().StringVar(&wo.token, "token", "", "Bearer token")
	cmd.Flags().BoolVar(&wo.run, "run", false, "Start a run after connecting")
	cmd.Flags().StringVar(&wo.release, "release", "", `Release for --run: "latest" or YYYYMMDD`)
	return cmd
}

// watch prints the lines of one run and returns the exit code to end
// with. The run followed is the one active when connecting, the one
// started by --run, or else the next one to start.
func watch(ctx context.Context, c *client.Client, wo *watchOptions, out io.Writer) (int, error) {
	stream, err := c.Events(ctx)
	if err != nil {
		return 1, err
	}
	defer stream.Close()
	stop := context.AfterFunc(ctx, func() { _ = stream.Close() })
	defer stop()

	runID := ""
	for {
		msg, err := stream.Next()
		if err != nil {
			if ctx.Err() != nil {
				return 130, nil
			}
			if stderrors.Is(err, io.EOF) {
				return 1, fmt.Errorf("event stream closed by server")
			}
			return 1, err
		}

		switch {
		case msg.Snapshot != nil:
			snap := msg.Snapshot
			if snap.Running {
				runID = snap.RunID
				if len(snap.History) > 0 {
					fmt.Fprintln(out, strings.Join(snap.History, "\n"))
				}
			} else if wo.run {
				if runID, err = c.Run(ctx, wo.release); err != nil {
					return 1, err
				}
			}

		case msg.Event != nil:
			ev := msg.Event
			if runID == "" && ev.Type == display.EventStarted {
				runID = ev.RunID
			}
			if ev.RunID != runID {
				continue
			}
			switch ev.Type {
			case display.EventLine:
				fmt.Fprintln(out, ev.Line)
			case display.EventFinished:
				return finishedCode(ev), nil
			}
		}
	}
}

func finishedCode(ev *display.Event) int {
	switch {
	case ev.Cancelled:
		return 130
	case ev.ExitCode == nil || *ev.ExitCode < 0:
		return 1
	default:
		return *ev.ExitCode
	}
}
