// Package errors provides the structured error type used across mmrunner.
// Every failure that crosses a package boundary is an *AppError carrying a
// machine-readable code, an HTTP status mapping for the control API, and the
// underlying cause so that errors.Is / errors.As keep working.
package errors
