// Package sse streams runner events to HTTP clients as Server-Sent Events.
//
// # Architecture
//
//   - Hub: routes frames to registered clients by glob pattern on client ID
//   - Client: a buffered frame queue; a full queue drops frames
//   - Handler: the HTTP endpoint, which sends a connected event, an
//     optional snapshot event and then every broadcast frame
//   - HubPublisher: a display.Publisher that JSON-encodes display events
//     onto the hub
//
// # Usage
//
//	comp := sse.NewComponent("/api/v1/runner/events")
//	d := display.New(cmd, display.WithPublisher(sse.NewHubPublisher(comp.Hub())))
//	h := sse.NewHandler(comp.Hub(), sse.WithSnapshot(func() any { return d.Snapshot() }))
//	router.GET("/api/v1/runner/events", gin.WrapH(h))
package sse
