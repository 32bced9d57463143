package sse

import (
	"encoding/json"

	"github.com/kbukum/mmrunner/display"
	"github.com/kbukum/mmrunner/logger"
)

// HubPublisher forwards display events to SSE clients as JSON.
type HubPublisher struct {
	b       Broadcaster
	pattern string
	log     *logger.Logger
}

var _ display.Publisher = (*HubPublisher)(nil)

// NewHubPublisher publishes to every runner client of b.
func NewHubPublisher(b Broadcaster) *HubPublisher {
	return &HubPublisher{b: b, pattern: ClientPrefix + "*", log: logger.Get("sse")}
}

// Publish encodes and broadcasts e.
func (p *HubPublisher) Publish(e display.Event) {
	data, err := json.Marshal(e)
	if err != nil {
		p.log.Error("encode event failed", logger.Fields(logger.FieldRunID, e.RunID, logger.FieldError, err.Error()))
		return
	}
	p.b.BroadcastToPattern(p.pattern, data)
}
