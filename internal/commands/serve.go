package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/kbukum/mmrunner/api"
	"github.com/kbukum/mmrunner/auth"
	"github.com/kbukum/mmrunner/bootstrap"
	"github.com/kbukum/mmrunner/component"
	"github.com/kbukum/mmrunner/observability"
	"github.com/kbukum/mmrunner/server"
	"github.com/kbukum/mmrunner/sse"
)

func serveCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the runner control API and event stream",
		Long: `Starts the HTTP server:

  GET  /health                  component health
  GET  /version                 build information
  GET  /api/v1/runner           current state
  POST /api/v1/runner/run       start a run ({"release": "..."})
  POST /api/v1/runner/cancel    cancel the active run
  GET  /api/v1/runner/events    server-sent events

On SIGINT or SIGTERM the active run is cancelled before the server stops.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			app, err := newServeApp(cfg)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return app.Run(ctx)
		},
	}
}

// newServeApp wires telemetry, the event hub and the HTTP server into one
// application. Components start in that order and stop in reverse.
func newServeApp(cfg *Config) (*bootstrap.App[*Config], error) {
	app, err := bootstrap.NewApp(cfg)
	if err != nil {
		return nil, err
	}

	providers := observability.NewProviders(cfg.Observability, app.Name, app.Version, cfg.Environment)
	if err := app.RegisterComponent(providers.Component()); err != nil {
		return nil, err
	}

	events := sse.NewComponent(api.BasePath + "/events")
	events.Hub().SetLogger(app.Logger.WithComponent("sse"))
	if err := app.RegisterComponent(events); err != nil {
		return nil, err
	}

	d, err := cfg.NewDisplay(app.Logger, events.Publisher())
	if err != nil {
		return nil, err
	}

	apiOpts := []api.Option{
		api.WithLogger(app.Logger.WithComponent("api")),
		api.WithRateLimit(cfg.Server.RateLimit),
	}
	if cfg.Auth.Enabled {
		svc, err := auth.NewService(cfg.Auth)
		if err != nil {
			return nil, err
		}
		apiOpts = append(apiOpts, api.WithAuth(svc))
	}
	if err := app.RegisterComponent(component.NewFunc("auth", nil, nil).
		WithDescription(component.Description{Name: "Auth", Type: "auth", Details: cfg.Auth.Describe()})); err != nil {
		return nil, err
	}

	srv := server.New(cfg.Server, app.Logger.WithComponent("server"))
	srv.ApplyMiddleware()
	handler := api.NewHandler(d, events.Handler(sse.WithSnapshot(func() any { return d.Snapshot() })), apiOpts...)
	handler.Register(srv, app.Name, app.Components.HealthAll)
	if err := app.RegisterComponent(server.NewComponent(srv)); err != nil {
		return nil, err
	}

	app.OnStop(func(ctx context.Context) error {
		d.Cancel()
		_, err := d.Wait(ctx)
		if err != nil && !isIdle(err) {
			return err
		}
		return nil
	})
	return app, nil
}
