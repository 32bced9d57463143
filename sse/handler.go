package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/kbukum/mmrunner/logger"
)

// DefaultKeepAlive is the interval between keep-alive comments. It stays
// below common proxy idle timeouts.
const DefaultKeepAlive = 30 * time.Second

// ConnectedEvent is sent when a client successfully connects.
type ConnectedEvent struct {
	ClientID string            `json:"client_id"`
	Subject  string            `json:"subject,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithSnapshot sets the function whose result is sent as the snapshot
// event to every new client.
func WithSnapshot(fn func() any) HandlerOption {
	return func(h *Handler) { h.snapshot = fn }
}

// WithKeepAlive overrides the keep-alive interval.
func WithKeepAlive(d time.Duration) HandlerOption {
	return func(h *Handler) {
		if d > 0 {
			h.keepAlive = d
		}
	}
}

// WithClientOptions applies opts to every client the handler registers.
func WithClientOptions(opts ...ClientOption) HandlerOption {
	return func(h *Handler) { h.clientOpts = append(h.clientOpts, opts...) }
}

// Handler serves the runner event stream.
type Handler struct {
	hub        *Hub
	snapshot   func() any
	keepAlive  time.Duration
	clientOpts []ClientOption
	log        *logger.Logger
}

// NewHandler creates an SSE handler backed by hub.
func NewHandler(hub *Hub, opts ...HandlerOption) *Handler {
	h := &Handler{hub: hub, keepAlive: DefaultKeepAlive, log: logger.Get("sse")}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ServeHTTP registers a new runner client and streams to it until the
// request ends or the hub stops.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.Serve(w, r, ClientPrefix+uuid.NewString())
}

// Serve handles an SSE connection for a specific client. Extra options are
// applied after the handler's own client options.
func (h *Handler) Serve(w http.ResponseWriter, r *http.Request, clientID string, opts ...ClientOption) {
	log := h.log.WithContext(r.Context()).WithFields(logger.Fields("client_id", clientID))

	// Check SSE support (requires http.Flusher interface)
	flusher, ok := w.(http.Flusher)
	if !ok {
		log.Error("streaming not supported")
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	// SSE connections are long-lived and must not hit the server's
	// WriteTimeout.
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		log.Debug("could not disable write deadline", logger.Fields(logger.FieldError, err.Error()))
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	// Register before taking the snapshot so no event falls in between.
	client := NewClient(clientID, append(h.clientOpts, opts...)...)
	if !h.hub.Register(client) {
		http.Error(w, "event stream shutting down", http.StatusServiceUnavailable)
		return
	}
	defer h.hub.Unregister(client)

	w.WriteHeader(http.StatusOK)
	writeEvent(w, EventTypeConnected, ConnectedEvent{
		ClientID: clientID,
		Subject:  client.Subject(),
		Metadata: client.Metadata(),
	})
	if h.snapshot != nil {
		writeEvent(w, EventTypeSnapshot, h.snapshot())
	}
	flusher.Flush()

	log.Debug("client connected", logger.Fields("remote_addr", r.RemoteAddr))

	keepAlive := time.NewTicker(h.keepAlive)
	defer keepAlive.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			log.Debug("client disconnected", logger.Fields("reason", ctx.Err().Error()))
			return

		case event, ok := <-client.Events():
			if !ok {
				log.Debug("events channel closed")
				return
			}
			_, _ = fmt.Fprintf(w, "data: %s\n\n", event)
			flusher.Flush()

		case <-keepAlive.C:
			// Lines starting with ':' are comments and ignored by clients.
			_, _ = fmt.Fprintf(w, ": %s %d\n\n", EventTypeKeepAlive, time.Now().Unix())
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, name string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		data = []byte("{}")
	}
	_, _ = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data)
}
