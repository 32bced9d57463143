package sse

import (
	"context"
	"fmt"
	"sync"

	"github.com/kbukum/mmrunner/component"
)

// Component runs the event hub under the serve lifecycle and hands out the
// publisher and HTTP handler bound to it.
type Component struct {
	hub     *Hub
	path    string
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

var (
	_ component.Component   = (*Component)(nil)
	_ component.Describable = (*Component)(nil)
)

// NewComponent creates a component with a fresh Hub serving path.
func NewComponent(path string) *Component {
	return &Component{hub: NewHub(), path: path}
}

// Hub returns the underlying Hub.
func (c *Component) Hub() *Hub { return c.hub }

// Path returns the route the stream is served on.
func (c *Component) Path() string { return c.path }

// Publisher returns a display.Publisher broadcasting to runner clients.
func (c *Component) Publisher() *HubPublisher { return NewHubPublisher(c.hub) }

// Handler returns an HTTP handler for the stream.
func (c *Component) Handler(opts ...HandlerOption) *Handler { return NewHandler(c.hub, opts...) }

// Name returns the component name.
func (c *Component) Name() string { return "sse" }

// Start launches the Hub's event loop in a background goroutine.
func (c *Component) Start(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return nil
	}

	c.running = true
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.hub.Run()
	}()
	return nil
}

// Stop closes every client stream and waits for the hub loop to return.
func (c *Component) Stop(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.hub.Stop()
	c.wg.Wait()
	c.running = false
	return nil
}

// Health reports the connected client count.
func (c *Component) Health(_ context.Context) component.Health {
	c.mu.Lock()
	running := c.running
	c.mu.Unlock()

	if !running {
		return component.Health{Name: c.Name(), Status: component.StatusUnhealthy, Message: "hub not running"}
	}
	return component.Health{
		Name:    c.Name(),
		Status:  component.StatusHealthy,
		Message: fmt.Sprintf("%d clients connected", c.hub.GetClientCount()),
	}
}

// Describe returns the startup summary entry.
func (c *Component) Describe() component.Description {
	return component.Description{
		Name:    "Event stream",
		Type:    "events",
		Details: fmt.Sprintf("GET %s", c.path),
	}
}
