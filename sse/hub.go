package sse

import (
	"path/filepath"
	"sync"

	"github.com/kbukum/mmrunner/logger"
)

// DefaultClientBuffer is the number of frames a slow client may lag behind
// before frames are dropped for it.
const DefaultClientBuffer = 256

// Client represents a connected SSE client.
type Client struct {
	id       string            // Unique client ID
	metadata map[string]string // Optional metadata (subject, remote address)
	events   chan []byte       // Channel for sending events to client
	dropped  int
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithMetadata adds a metadata key-value pair to the client.
func WithMetadata(key, value string) ClientOption {
	return func(c *Client) {
		if c.metadata == nil {
			c.metadata = make(map[string]string)
		}
		c.metadata[key] = value
	}
}

// WithSubject records the authenticated subject.
func WithSubject(subject string) ClientOption {
	return WithMetadata("subject", subject)
}

// WithBuffer sets the client's frame buffer size.
func WithBuffer(n int) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.events = make(chan []byte, n)
		}
	}
}

// NewClient creates a new SSE client with optional metadata.
func NewClient(id string, opts ...ClientOption) *Client {
	c := &Client{
		id:       id,
		metadata: make(map[string]string),
		events:   make(chan []byte, DefaultClientBuffer),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ID returns the client's unique identifier.
func (c *Client) ID() string {
	return c.id
}

// Metadata returns all client metadata.
func (c *Client) Metadata() map[string]string {
	return c.metadata
}

// GetMetadata returns a specific metadata value.
func (c *Client) GetMetadata(key string) string {
	return c.metadata[key]
}

// Subject returns the authenticated subject, if any.
func (c *Client) Subject() string {
	return c.metadata["subject"]
}

// Events returns the channel for receiving events.
func (c *Client) Events() <-chan []byte {
	return c.events
}

// Send queues data for the client without blocking.
// Returns false if the channel is full (client is slow).
func (c *Client) Send(data []byte) bool {
	select {
	case c.events <- data:
		return true
	default:
		c.dropped++
		return false
	}
}

// Close closes the client's event channel.
func (c *Client) Close() {
	close(c.events)
}

// Hub manages SSE client connections and message broadcasting.
type Hub struct {
	clients    map[string]*Client // client ID -> Client
	register   chan *Client       // Channel for registering clients
	unregister chan *Client       // Channel for unregistering clients
	broadcast  chan *Message      // Channel for broadcasting messages
	done       chan struct{}      // Signals the hub to stop
	stopped    bool               // Whether the hub has been stopped
	mu         sync.RWMutex       // Protects clients map for reads during matching
	log        *logger.Logger
}

// Message represents a message to broadcast.
type Message struct {
	Pattern string // Glob pattern for matching clients
	Data    []byte // Event data to send
}

// NewHub creates a new SSE hub.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *Message, 256),
		done:       make(chan struct{}),
		log:        logger.Get("sse"),
	}
}

// SetLogger replaces the hub logger.
func (h *Hub) SetLogger(l *logger.Logger) { h.log = l }

// Run starts the hub's main event loop.
// It blocks until Stop is called.
// This should be run in a goroutine.
func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			h.closeAllClients()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.id] = client
			total := len(h.clients)
			h.mu.Unlock()
			h.log.Debug("client registered", logger.Fields("client_id", client.id, "total_clients", total))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.id]; ok {
				delete(h.clients, client.id)
				client.Close()
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.log.Debug("client unregistered", logger.Fields("client_id", client.id, "total_clients", total))

		case msg := <-h.broadcast:
			h.broadcastWithPattern(msg.Pattern, msg.Data)
		}
	}
}

// Stop signals the hub to shut down. It closes all client connections
// and causes Run to return. Safe to call multiple times.
func (h *Hub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.stopped {
		h.stopped = true
		close(h.done)
	}
}

// closeAllClients disconnects all clients during shutdown.
func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, client := range h.clients {
		client.Close()
		delete(h.clients, id)
	}
	h.log.Debug("all clients closed during shutdown")
}

// Register adds a client to the hub. It reports false if the hub has
// stopped.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// Unregister removes a client from the hub.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// BroadcastToPattern sends data to all clients matching the pattern.
// Pattern uses glob-style matching (e.g., "runner:*" or "runner:abc123").
// After Stop the data is discarded.
func (h *Hub) BroadcastToPattern(pattern string, data []byte) {
	select {
	case h.broadcast <- &Message{Pattern: pattern, Data: data}:
	case <-h.done:
	}
}

// broadcastWithPattern sends data to matching clients.
// This is called from the hub's main goroutine.
func (h *Hub) broadcastWithPattern(pattern string, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	matchCount := 0
	for clientID, client := range h.clients {
		matched, err := filepath.Match(pattern, clientID)
		if err != nil {
			h.log.Error("pattern match error", logger.Fields("pattern", pattern, logger.FieldError, err.Error()))
			return
		}
		if !matched {
			continue
		}
		if client.Send(data) {
			matchCount++
			continue
		}
		h.log.Warn("client channel full, dropping message", logger.Fields("client_id", clientID, "dropped", client.dropped))
	}

	h.log.Debug("broadcast sent", logger.Fields(
		"pattern", pattern,
		"match_count", matchCount,
		"total_clients", len(h.clients),
		"data_size", len(data),
	))
}

// GetClientCount returns the number of connected clients.
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// GetClientIDs returns a list of all connected client IDs.
func (h *Hub) GetClientIDs() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ids := make([]string, 0, len(h.clients))
	for id := range h.clients {
		ids = append(ids, id)
	}
	return ids
}

// GetClient returns a client by ID, or nil if not found.
func (h *Hub) GetClient(id string) *Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.clients[id]
}

// Ensure Hub implements Broadcaster.
var _ Broadcaster = (*Hub)(nil)
