package observability

import (
	"context"
	"errors"
	"fmt"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/kbukum/mmrunner/component"
)

// Providers owns the tracer and meter providers for one process.
type Providers struct {
	cfg         Config
	service     string
	version     string
	environment string

	tp *sdktrace.TracerProvider
	mp *sdkmetric.MeterProvider
}

// NewProviders prepares providers for cfg. Nothing is exported until Start.
func NewProviders(cfg Config, service, version, environment string) *Providers {
	cfg.ApplyDefaults()
	return &Providers{cfg: cfg, service: service, version: version, environment: environment}
}

// Start initializes the tracer and meter when enabled.
func (p *Providers) Start(ctx context.Context) error {
	if !p.cfg.Enabled {
		return nil
	}
	tp, err := InitTracer(ctx, p.cfg.TracerConfig(p.service, p.version, p.environment))
	if err != nil {
		return err
	}
	mp, err := InitMeter(ctx, p.cfg.MeterConfig(p.service, p.version, p.environment))
	if err != nil {
		return errors.Join(err, tp.Shutdown(ctx))
	}
	p.tp, p.mp = tp, mp
	return nil
}

// Stop flushes and shuts both providers down.
func (p *Providers) Stop(ctx context.Context) error {
	var errs []error
	if p.mp != nil {
		errs = append(errs, p.mp.Shutdown(ctx))
		p.mp = nil
	}
	if p.tp != nil {
		errs = append(errs, p.tp.Shutdown(ctx))
		p.tp = nil
	}
	return errors.Join(errs...)
}

// Component wraps the providers for the lifecycle registry.
func (p *Providers) Component() component.Component {
	details := "disabled"
	if p.cfg.Enabled {
		details = fmt.Sprintf("otlp/http %s sample=%g", p.cfg.Endpoint, p.cfg.SampleRate)
	}
	return component.NewFunc("telemetry", p.Start, p.Stop).
		WithDescription(component.Description{Name: "OpenTelemetry", Type: "telemetry", Details: details})
}
