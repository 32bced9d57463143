package sse

// SSE event names written on the "event:" line. Frames without an event
// name carry runner events and use the default "message" type.
const (
	// EventTypeConnected is sent when a client successfully connects.
	EventTypeConnected = "connected"

	// EventTypeSnapshot carries the display state right after connecting.
	EventTypeSnapshot = "snapshot"

	// EventTypeKeepAlive is used for keep-alive comments.
	EventTypeKeepAlive = "keepalive"

	// EventTypeMessage is the default event type of runner events.
	EventTypeMessage = "message"
)

// ClientPrefix namespaces runner stream clients. Events are broadcast to
// ClientPrefix + "*".
const ClientPrefix = "runner:"
