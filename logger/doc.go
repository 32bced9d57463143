// Package logger provides structured logging for mmrunner using zerolog.
//
// It supports JSON and console output, level configuration, and
// component-scoped loggers with map-style structured fields.
//
// # Configuration
//
//	logging:
//	  level: "info"
//	  format: "json"
//	  output: "stderr"
//
// # Usage
//
//	log := logger.Get("runner")
//	log.Info("run finished", logger.Fields("exit_code", 0, "lines", 12))
//
// The default output is stderr so that the plain CLI can reserve stdout for the
// streamed command output.
package logger
