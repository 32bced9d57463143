package bootstrap

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/kbukum/mmrunner/component"
)

// Summary renders the startup report of "mmrunner serve".
type Summary struct {
	serviceName     string
	version         string
	startupDuration time.Duration
}

// NewSummary creates a new bootstrap summary.
func NewSummary(serviceName, version string) *Summary {
	return &Summary{serviceName: serviceName, version: version}
}

// SetStartupDuration records the total startup time.
func (s *Summary) SetStartupDuration(d time.Duration) {
	s.startupDuration = d
}

// Write prints the summary: infrastructure from components implementing
// component.Describable, routes from component.RouteProvider and live
// health from the registry.
func (s *Summary) Write(ctx context.Context, w io.Writer, registry *component.Registry) {
	version := s.version
	if version == "" {
		version = "dev"
	}
	fmt.Fprintf(w, "\n🚀 %s %s started in %.2fs\n", s.serviceName, version, s.startupDuration.Seconds())

	if registry == nil {
		fmt.Fprintf(w, "   └── No components registered\n\n")
		return
	}

	var (
		infra  []component.Description
		routes []component.Route
	)
	for _, c := range registry.All() {
		if d, ok := c.(component.Describable); ok {
			desc := d.Describe()
			if desc.Name == "" {
				desc.Name = c.Name()
			}
			infra = append(infra, desc)
		}
		if rp, ok := c.(component.RouteProvider); ok {
			routes = append(routes, rp.Routes()...)
		}
	}

	if len(infra) > 0 {
		fmt.Fprintf(w, "\n📊 Infrastructure\n")
		for i, d := range infra {
			line := d.Name
			if d.Details != "" {
				line += ": " + d.Details
			}
			if d.Type != "" {
				line += " [" + d.Type + "]"
			}
			fmt.Fprintf(w, "   %s %s\n", treePrefix(i, len(infra)), line)
		}
	}

	if len(routes) > 0 {
		fmt.Fprintf(w, "\n🌐 Routes (%d)\n", len(routes))
		for i, r := range routes {
			fmt.Fprintf(w, "   %s %-7s %s → %s\n", treePrefix(i, len(routes)), r.Method, r.Path, r.Handler)
		}
	}

	health := registry.HealthAll(ctx)
	if len(health) == 0 {
		fmt.Fprintf(w, "   └── No components registered\n\n")
		return
	}

	fmt.Fprintf(w, "\n🏥 Health Check\n")
	healthy := 0
	for i, h := range health {
		msg := ""
		if h.Message != "" {
			msg = " (" + h.Message + ")"
		}
		if h.Status == component.StatusHealthy {
			healthy++
		}
		fmt.Fprintf(w, "   %s %s %s: %s%s\n", treePrefix(i, len(health)), healthStatusIcon(h.Status), h.Name, strings.ToLower(string(h.Status)), msg)
	}
	if healthy == len(health) {
		fmt.Fprintf(w, "\n✅ All components healthy (%d/%d)\n\n", healthy, len(health))
	} else {
		fmt.Fprintf(w, "\n⚠️  Some components have issues (%d/%d healthy)\n\n", healthy, len(health))
	}
}

func treePrefix(i, n int) string {
	if i == n-1 {
		return "└──"
	}
	return "├──"
}

func healthStatusIcon(status component.HealthStatus) string {
	switch status {
	case component.StatusHealthy:
		return "✅"
	case component.StatusDegraded:
		return "⚠️"
	case component.StatusUnhealthy:
		return "❌"
	default:
		return "❓"
	}
}
