package commands

import (
	"fmt"
	"time"

	"github.com/kbukum/mmrunner/auth"
	"github.com/kbukum/mmrunner/config"
	"github.com/kbukum/mmrunner/display"
	"github.com/kbukum/mmrunner/logger"
	"github.com/kbukum/mmrunner/observability"
	"github.com/kbukum/mmrunner/process"
	"github.com/kbukum/mmrunner/server"
	"github.com/kbukum/mmrunner/util"
	"github.com/kbukum/mmrunner/validation"
)

// ServiceName is the config file and service name.
const ServiceName = "mmrunner"

// DefaultCommand is the installer invocation run when none is configured.
var DefaultCommand = []string{"mmcore", "install", "--plain-output"}

// RunnerConfig describes the command the runner launches.
type RunnerConfig struct {
	Command       []string      `yaml:"command" mapstructure:"command"`
	Dir           string        `yaml:"dir" mapstructure:"dir"`
	Env           []string      `yaml:"env" mapstructure:"env"`
	GracePeriod   time.Duration `yaml:"grace_period" mapstructure:"grace_period"`
	MaxLineLength string        `yaml:"max_line_length" mapstructure:"max_line_length"` // e.g. "1MB"
}

// DisplayConfig configures the view state shared by every front-end.
type DisplayConfig struct {
	Title   string `yaml:"title" mapstructure:"title"`
	History int    `yaml:"history" mapstructure:"history"`
}

// Config is the mmrunner configuration file.
type Config struct {
	config.ServiceConfig `yaml:",inline" mapstructure:",squash"`

	Runner        RunnerConfig         `yaml:"runner" mapstructure:"runner"`
	Display       DisplayConfig        `yaml:"display" mapstructure:"display"`
	Server        server.Config        `yaml:"server" mapstructure:"server"`
	Auth          auth.Config          `yaml:"auth" mapstructure:"auth"`
	Observability observability.Config `yaml:"observability" mapstructure:"observability"`
}

// ApplyDefaults fills unset fields of every section.
func (c *Config) ApplyDefaults() {
	c.ServiceConfig.ApplyDefaults()
	if len(c.Runner.Command) == 0 {
		c.Runner.Command = append([]string(nil), DefaultCommand...)
	}
	if c.Runner.MaxLineLength == "" {
		c.Runner.MaxLineLength = "1MB"
	}
	if c.Display.Title == "" {
		c.Display.Title = "MMCore Installer"
	}
	if c.Display.History == 0 {
		c.Display.History = display.DefaultHistory
	}
	c.Server.ApplyDefaults()
	if c.Auth.Issuer == "" {
		c.Auth.Issuer = c.Name
	}
	c.Auth.ApplyDefaults()
	c.Observability.ApplyDefaults()
}

// Validate checks every section.
func (c *Config) Validate() error {
	if err := c.ServiceConfig.Validate(); err != nil {
		return err
	}

	v := validation.New().
		Argv("runner.command", c.Runner.Command).
		Custom(c.Display.History > 0, "display.history", "must be positive")
	if _, err := util.ParseSize(c.Runner.MaxLineLength); err != nil {
		v.AddError("runner.max_line_length", err.Error())
	}
	if appErr := v.Validate(); appErr != nil {
		return appErr
	}

	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	return c.Observability.Validate()
}

// Command returns the configured base command.
func (c *Config) Command() process.Command {
	return process.Command{
		Argv:        c.Runner.Command,
		Dir:         c.Runner.Dir,
		Env:         c.Runner.Env,
		GracePeriod: c.Runner.GracePeriod,
	}
}

// RunnerOptions returns the process options every runner is built with.
func (c *Config) RunnerOptions(log *logger.Logger) ([]process.Option, error) {
	opts := []process.Option{process.WithLogger(log.WithComponent("process"))}

	if n, err := util.ParseSize(c.Runner.MaxLineLength); err == nil && n > 0 {
		opts = append(opts, process.WithLineBuffer(int(n)))
	}

	if c.Observability.Enabled {
		metrics, err := observability.NewRunnerMetrics(observability.Meter(ServiceName))
		if err != nil {
			return nil, fmt.Errorf("runner metrics: %w", err)
		}
		opts = append(opts, process.WithMetrics(metrics))
	}
	return opts, nil
}

// NewDisplay builds the display for the configured command.
func (c *Config) NewDisplay(log *logger.Logger, pubs ...display.Publisher) (*display.Display, error) {
	runnerOpts, err := c.RunnerOptions(log)
	if err != nil {
		return nil, err
	}
	return display.New(c.Command(),
		display.WithLogger(log.WithComponent("display")),
		display.WithHistory(c.Display.History),
		display.WithRunnerOptions(runnerOpts...),
		display.WithPublisher(pubs...),
	), nil
}

func loadConfig(opts *rootOptions) (*Config, error) {
	var loaderOpts []config.LoaderOption
	if opts.configFile != "" {
		loaderOpts = append(loaderOpts, config.WithConfigFile(opts.configFile))
	}
	if opts.envFile != "" {
		loaderOpts = append(loaderOpts, config.WithEnvFile(opts.envFile))
	}

	cfg := &Config{}
	if err := config.LoadConfig(ServiceName, cfg, loaderOpts...); err != nil {
		return nil, err
	}
	if opts.logLevel != "" {
		cfg.Logging.Level = opts.logLevel
	}
	return cfg, nil
}
