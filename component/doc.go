// Package component defines lifecycle-managed parts of the mmrunner serve
// process and a registry that starts them in order and stops them in
// reverse.
//
// Implement Component directly, or wrap start/stop functions with NewFunc:
//
//	reg := component.NewRegistry()
//	reg.Register(component.NewFunc("telemetry", startTelemetry, stopTelemetry))
//	reg.Register(srv)
//	err := reg.StartAll(ctx)
package component
