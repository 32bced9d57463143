package server

import (
	"sort"
	"strings"
	"unicode"

	"github.com/kbukum/mmrunner/component"
)

// systemPaths are probe routes; the summary lists them after the API.
var systemPaths = map[string]bool{
	"/health":  true,
	"/version": true,
}

// Routes returns the Gin routes sorted API first, then probes, with
// readable handler names.
func (s *Server) Routes() []component.Route {
	ginRoutes := s.engine.Routes()

	sort.Slice(ginRoutes, func(i, j int) bool {
		iSys := systemPaths[ginRoutes[i].Path]
		jSys := systemPaths[ginRoutes[j].Path]
		if iSys != jSys {
			return !iSys
		}
		if ginRoutes[i].Path != ginRoutes[j].Path {
			return ginRoutes[i].Path < ginRoutes[j].Path
		}
		return methodOrder(ginRoutes[i].Method) < methodOrder(ginRoutes[j].Method)
	})

	routes := make([]component.Route, 0, len(ginRoutes))
	for _, r := range ginRoutes {
		routes = append(routes, component.Route{
			Method:  r.Method,
			Path:    r.Path,
			Handler: formatHandlerName(r.Handler),
		})
	}
	return routes
}

// formatHandlerName extracts a clean handler name from Gin's full handler path.
// Gin stores handlers like:
//
//	"github.com/kbukum/mmrunner/api.(*Handler).run-fm"
//
// We extract: "Handler.run"
func formatHandlerName(fullPath string) string {
	// Remove -fm suffix Gin adds to method values
	name := strings.TrimSuffix(fullPath, "-fm")

	if idx := strings.LastIndex(name, "/"); idx >= 0 {
		name = name[idx+1:]
	}

	name = strings.ReplaceAll(name, "(*", "")
	name = strings.ReplaceAll(name, ")", "")

	// Closures such as "endpoint.Health.func1" become "health".
	if strings.Contains(name, ".func") {
		parts := strings.Split(name, ".")
		for i := len(parts) - 1; i >= 0; i-- {
			if !strings.HasPrefix(parts[i], "func") {
				name = strings.ToLower(parts[i])
				break
			}
		}
	}

	// Drop a lowercase package prefix: "api.Handler.run" -> "Handler.run".
	pkg, rest, ok := strings.Cut(name, ".")
	if ok && rest != "" && !strings.ContainsFunc(pkg, unicode.IsUpper) {
		name = rest
	}
	return name
}

// methodOrder returns a sort key for HTTP methods (GET first).
func methodOrder(method string) int {
	switch method {
	case "GET":
		return 0
	case "POST":
		return 1
	case "PUT":
		return 2
	case "PATCH":
		return 3
	case "DELETE":
		return 4
	default:
		return 5
	}
}
