// Package bootstrap runs mmrunner's front-ends with a uniform lifecycle:
// typed config defaults and validation, logger setup, component
// registration, startup and shutdown hooks and signal handling.
//
// # Quick Start
//
//	app, err := bootstrap.NewApp(&cfg)
//	if err != nil {
//	    return err
//	}
//	app.RegisterComponent(serverComponent)
//	return app.Run(ctx)
//
// Long-running services call Run, which blocks until SIGINT/SIGTERM.
// Finite work such as a single installer run uses RunTask; its context is
// cancelled by the first signal and SignalFrom reports which one.
package bootstrap
