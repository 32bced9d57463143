// Package util holds small helpers shared by the config and server
// packages: human-readable size parsing and secret masking for logs.
package util
