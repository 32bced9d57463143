package observability

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/kbukum/mmrunner/logger"
)

// MeterConfig configures the OpenTelemetry meter provider.
type MeterConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	// Endpoint is the OTLP HTTP endpoint host:port (e.g., "localhost:4318").
	Endpoint string
	Insecure bool
	// Interval is the metric export interval.
	Interval time.Duration
}

// InitMeter initializes the global meter provider. The caller shuts the
// returned provider down on exit.
func InitMeter(ctx context.Context, config MeterConfig) (*sdkmetric.MeterProvider, error) {
	opts := []otlpmetrichttp.Option{
		otlpmetrichttp.WithEndpoint(config.Endpoint),
	}
	if config.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}

	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating metric exporter: %w", err)
	}

	res, err := newResource(config.ServiceName, config.ServiceVersion, config.Environment)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	var readerOpts []sdkmetric.PeriodicReaderOption
	if config.Interval > 0 {
		readerOpts = append(readerOpts, sdkmetric.WithInterval(config.Interval))
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, readerOpts...)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	logger.Get("observability").Info("meter initialized", logger.Fields(
		"endpoint", config.Endpoint,
		"interval", config.Interval.String(),
	))
	return mp, nil
}

// Meter returns a named meter from the global provider.
func Meter(name string) metric.Meter {
	return otel.Meter(name)
}

// RunnerMetrics holds the instruments recorded by process runners. A nil
// *RunnerMetrics records nothing.
type RunnerMetrics struct {
	runsStarted  metric.Int64Counter
	runsFinished metric.Int64Counter
	runsActive   metric.Int64UpDownCounter
	lines        metric.Int64Counter
	duration     metric.Float64Histogram
	spawnErrors  metric.Int64Counter
}

// NewRunnerMetrics creates the runner instruments on meter.
func NewRunnerMetrics(meter metric.Meter) (*RunnerMetrics, error) {
	runsStarted, err := meter.Int64Counter("runner.runs.started",
		metric.WithDescription("Processes started by a runner"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating runner.runs.started counter: %w", err)
	}

	runsFinished, err := meter.Int64Counter("runner.runs.finished",
		metric.WithDescription("Runs that reached a terminal state, by state and exit code"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating runner.runs.finished counter: %w", err)
	}

	runsActive, err := meter.Int64UpDownCounter("runner.runs.active",
		metric.WithDescription("Runs currently in the running or cancelling phase"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating runner.runs.active gauge: %w", err)
	}

	lines, err := meter.Int64Counter("runner.lines",
		metric.WithDescription("Output lines delivered to listeners"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating runner.lines counter: %w", err)
	}

	duration, err := meter.Float64Histogram("runner.run.duration",
		metric.WithDescription("Wall time from spawn to exit"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating runner.run.duration histogram: %w", err)
	}

	spawnErrors, err := meter.Int64Counter("runner.spawn.errors",
		metric.WithDescription("Start calls that failed to create a process"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating runner.spawn.errors counter: %w", err)
	}

	return &RunnerMetrics{
		runsStarted:  runsStarted,
		runsFinished: runsFinished,
		runsActive:   runsActive,
		lines:        lines,
		duration:     duration,
		spawnErrors:  spawnErrors,
	}, nil
}

// RunStarted records a successful spawn.
func (m *RunnerMetrics) RunStarted(ctx context.Context, executable string) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String(AttrExecutable, executable))
	m.runsStarted.Add(ctx, 1, attrs)
	m.runsActive.Add(ctx, 1, attrs)
}

// RunFinished records a terminal state.
func (m *RunnerMetrics) RunFinished(ctx context.Context, executable, state string, exitCode int, d time.Duration) {
	if m == nil {
		return
	}
	exe := attribute.String(AttrExecutable, executable)
	m.runsActive.Add(ctx, -1, metric.WithAttributes(exe))
	m.runsFinished.Add(ctx, 1, metric.WithAttributes(
		exe,
		attribute.String("state", state),
		attribute.String("exit_code", strconv.Itoa(exitCode)),
	))
	m.duration.Record(ctx, d.Seconds(), metric.WithAttributes(exe, attribute.String("state", state)))
}

// LinesDelivered records n delivered lines.
func (m *RunnerMetrics) LinesDelivered(ctx context.Context, executable string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.lines.Add(ctx, int64(n), metric.WithAttributes(attribute.String(AttrExecutable, executable)))
}

// SpawnFailed records a failed spawn.
func (m *RunnerMetrics) SpawnFailed(ctx context.Context, executable, reason string) {
	if m == nil {
		return
	}
	m.spawnErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrExecutable, executable),
		attribute.String("reason", reason),
	))
}
