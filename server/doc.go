// Package server provides the HTTP server behind "mmrunner serve": Gin
// with h2c support, wrapped in net/http middleware so the stack also covers
// the event stream.
//
// # Middleware
//
// Built-in middleware (server/middleware):
//
//   - Recovery: panic recovery with structured logging
//   - RequestID: request ID generation and propagation into the log context
//   - CORS: cross-origin resource sharing for browser dashboards
//   - BodySizeLimit: request body size limits
//   - RequestLogger: request logging with duration tracking
//   - RateLimit: per-client sliding window for the control routes (Gin)
//
// # Endpoints
//
// Built-in endpoints (server/endpoint):
//
//   - /health: component health aggregation
//   - /version: build version information
package server
