package bootstrap

import (
	"io"
	"os"
	"time"

	"github.com/kbukum/mmrunner/logger"
)

// Option configures the App during creation.
// Options are non-generic so they can be used with any config type.
type Option func(*appOptions)

// appOptions collects all option values before applying to App.
type appOptions struct {
	logger          *logger.Logger
	gracefulTimeout *time.Duration
	summaryOut      io.Writer
	summarySet      bool
	signals         []os.Signal
}

// resolveOptions applies all options and returns the collected values.
func resolveOptions(opts []Option) *appOptions {
	o := &appOptions{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithLogger sets a custom logger for the application.
// If not set, the logger is auto-initialized from the config's Logging field.
func WithLogger(l *logger.Logger) Option {
	return func(o *appOptions) {
		o.logger = l
	}
}

// WithGracefulTimeout sets the maximum duration for graceful shutdown.
func WithGracefulTimeout(d time.Duration) Option {
	return func(o *appOptions) {
		o.gracefulTimeout = &d
	}
}

// WithSummaryWriter sets where the startup summary is written. Nil
// disables it; "mmrunner run" does so to keep stdout for installer output.
func WithSummaryWriter(w io.Writer) Option {
	return func(o *appOptions) {
		o.summaryOut = w
		o.summarySet = true
	}
}

// WithSignals replaces the shutdown signals (default SIGINT and SIGTERM).
func WithSignals(sigs ...os.Signal) Option {
	return func(o *appOptions) {
		o.signals = sigs
	}
}
