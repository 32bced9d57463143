package commands

import (
	stderrors "errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kbukum/mmrunner/version"
)

type rootOptions struct {
	configFile string
	envFile    string
	logLevel   string
}

// ExitError ends the process with Code without printing anything.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// RootCmd creates the mmrunner command tree.
func RootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "mmrunner",
		Short: "Run the MMCore installer and follow its output",
		Long: `mmrunner launches the MMCore installer, streams its output line by line
and reports how it ended. The same runner backs three front-ends:

  mmrunner run     plain output on stdout, exits with the installer's code
  mmrunner tui     interactive terminal screen
  mmrunner serve   HTTP control API with a live event stream
  mmrunner watch   follow a run on a remote serve`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "", "Config file (default: first config.yml on the search path)")
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", "", "Environment file loaded before the config is read")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Override logging.level (debug, info, warn, error)")

	cmd.AddCommand(runCmd(opts))
	cmd.AddCommand(tuiCmd(opts))
	cmd.AddCommand(serveCmd(opts))
	cmd.AddCommand(watchCmd(opts))
	cmd.AddCommand(tokenCmd(opts))
	cmd.AddCommand(versionCmd())

	return cmd
}

// Execute runs the command tree and returns the process exit code.
func Execute() int {
	err := RootCmd().Execute()
	if err == nil {
		return 0
	}
	var exitErr *ExitError
	if stderrors.As(err, &exitErr) {
		return exitErr.Code
	}
	fmt.Fprintln(os.Stderr, "Error:", err)
	return 1
}
