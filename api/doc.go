// Package api is the HTTP control surface of "mmrunner serve". It mounts
// the runner routes on a server.Server:
//
//	GET  /api/v1/runner          current display snapshot
//	POST /api/v1/runner/run      start a run, body {"release": "20250310"}
//	POST /api/v1/runner/cancel   cancel the active run
//	GET  /api/v1/runner/events   server-sent event stream
//
// Errors use the errors.ErrorResponse body: 409 INVALID_STATE while a run is
// active, 400 INVALID_INPUT for a malformed release and 502 SPAWN_FAILED when
// the installer cannot be launched.
package api
