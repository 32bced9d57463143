package component

import (
	"context"
	"sync"
)

// Func adapts plain functions to Component. Nil functions are no-ops and a
// nil health function reports healthy once started.
type Func struct {
	name   string
	start  func(context.Context) error
	stop   func(context.Context) error
	health func(context.Context) Health
	desc   Description

	mu      sync.RWMutex
	started bool
	err     error
}

// NewFunc creates a function-backed component.
func NewFunc(name string, start, stop func(context.Context) error) *Func {
	return &Func{name: name, start: start, stop: stop}
}

// WithHealth sets a custom health function.
func (f *Func) WithHealth(fn func(context.Context) Health) *Func {
	f.health = fn
	return f
}

// WithDescription sets the startup summary entry.
func (f *Func) WithDescription(d Description) *Func {
	f.desc = d
	return f
}

// Name returns the component name.
func (f *Func) Name() string { return f.name }

// Start runs the start function once.
func (f *Func) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.started {
		return nil
	}
	if f.start != nil {
		if err := f.start(ctx); err != nil {
			f.err = err
			return err
		}
	}
	f.started = true
	f.err = nil
	return nil
}

// Stop runs the stop function if the component was started.
func (f *Func) Stop(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.started {
		return nil
	}
	f.started = false
	if f.stop != nil {
		return f.stop(ctx)
	}
	return nil
}

// Health reports the custom health, or started/not started.
func (f *Func) Health(ctx context.Context) Health {
	f.mu.RLock()
	started, err := f.started, f.err
	f.mu.RUnlock()

	if f.health != nil && started {
		return f.health(ctx)
	}
	h := Health{Name: f.name, Status: StatusHealthy}
	switch {
	case err != nil:
		h.Status, h.Message = StatusUnhealthy, err.Error()
	case !started:
		h.Status, h.Message = StatusUnhealthy, "not started"
	}
	return h
}

// Describe implements Describable.
func (f *Func) Describe() Description {
	d := f.desc
	if d.Name == "" {
		d.Name = f.name
	}
	return d
}
