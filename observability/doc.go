// Package observability wires OpenTelemetry tracing and metrics into
// mmrunner.
//
// Providers export over OTLP/HTTP when enabled in config:
//
//	p := observability.NewProviders(cfg.Observability, "mmrunner", version.Version, cfg.Environment)
//	registry.Register(p.Component())
//
// Runners record through RunnerMetrics, which is nil-safe:
//
//	m, err := observability.NewRunnerMetrics(observability.Meter("mmrunner"))
//	r := process.NewRunner(cb, process.WithMetrics(m))
//
// Each run is traced as a process.run span.
package observability
