package process

import (
	"os"
	"slices"
	"strings"
	"time"

	"github.com/kbukum/mmrunner/errors"
)

// DefaultGracePeriod is the wait between SIGTERM and SIGKILL after Cancel.
const DefaultGracePeriod = 5 * time.Second

// Command configures a subprocess to execute.
type Command struct {
	// Argv is the executable (resolved via PATH) followed by its arguments.
	// It is passed to exec directly; no shell is involved.
	Argv []string
	// Dir is the working directory. If empty, uses the current directory.
	Dir string
	// Env is additional environment variables (key=value). Merged with os.Environ.
	Env []string
	// GracePeriod is how long to wait after SIGTERM before SIGKILL.
	// Zero means DefaultGracePeriod; negative disables escalation.
	GracePeriod time.Duration
}

// String renders argv for logs and displays. It is not shell-quoted.
func (c Command) String() string {
	return strings.Join(c.Argv, " ")
}

// WithArgs returns a copy of c with extra arguments appended.
func (c Command) WithArgs(args ...string) Command {
	c.Argv = append(slices.Clone(c.Argv), args...)
	c.Env = slices.Clone(c.Env)
	return c
}

func (c Command) validate() error {
	if len(c.Argv) == 0 {
		return errors.InvalidInput("argv", "command must not be empty")
	}
	if strings.TrimSpace(c.Argv[0]) == "" {
		return errors.InvalidInput("argv", "executable must not be blank")
	}
	return nil
}

func (c Command) gracePeriod() time.Duration {
	if c.GracePeriod == 0 {
		return DefaultGracePeriod
	}
	return c.GracePeriod
}

// mergeEnv merges additional env vars with the current environment.
func mergeEnv(extra []string) []string {
	if len(extra) == 0 {
		return nil // inherit parent env
	}
	return append(os.Environ(), extra...)
}
