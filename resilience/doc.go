// Package resilience retries operations with exponential backoff. The
// control API client uses it to reach a server that is still starting and
// to reconnect the event stream.
package resilience
