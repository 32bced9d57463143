package logger

import (
	"sync"
)

// registry holds loggers registered by component name. Components that are
// not registered get the global logger tagged with their name.
var registry sync.Map

// Register stores a named logger in the registry.
func Register(name string, l *Logger) {
	registry.Store(name, l)
}

// Unregister removes a named logger from the registry.
func Unregister(name string) {
	registry.Delete(name)
}

// Get retrieves a named logger. If the name is not registered it returns the
// global logger tagged with the requested component name.
func Get(name string) *Logger {
	if l, ok := registry.Load(name); ok {
		return l.(*Logger)
	}
	return GetGlobalLogger().WithComponent(name)
}
