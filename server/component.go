package server

import (
	"context"
	"fmt"

	"github.com/kbukum/mmrunner/component"
)

const componentName = "http-server"

var (
	_ component.Component     = (*Component)(nil)
	_ component.Describable   = (*Component)(nil)
	_ component.RouteProvider = (*Component)(nil)
)

// Component wraps Server for the bootstrap registry.
type Component struct {
	server *Server
}

// NewComponent returns a lifecycle component backed by s.
func NewComponent(s *Server) *Component {
	return &Component{server: s}
}

// Name returns the component name used for registration.
func (sc *Component) Name() string { return componentName }

// Start starts the underlying HTTP server.
func (sc *Component) Start(ctx context.Context) error {
	return sc.server.Start(ctx)
}

// Stop gracefully shuts down the underlying HTTP server.
func (sc *Component) Stop(ctx context.Context) error {
	return sc.server.Stop(ctx)
}

// Health reports whether the server is accepting connections.
func (sc *Component) Health(ctx context.Context) component.Health {
	if sc.server.Running() {
		return component.Health{Name: componentName, Status: component.StatusHealthy}
	}
	return component.Health{
		Name:    componentName,
		Status:  component.StatusUnhealthy,
		Message: "HTTP server not running",
	}
}

// Describe returns the startup summary entry.
func (sc *Component) Describe() component.Description {
	return component.Description{
		Name:    "HTTP Server",
		Type:    "server",
		Details: fmt.Sprintf("%s h2c", sc.server.Addr()),
	}
}

// Routes lists the registered routes for the startup summary.
func (sc *Component) Routes() []component.Route {
	return sc.server.Routes()
}
