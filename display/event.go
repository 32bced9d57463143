package display

import "time"

// Event types published while a run progresses.
const (
	EventStarted  = "started"
	EventLine     = "line"
	EventFinished = "finished"
)

// Event is one observable change of the display model.
type Event struct {
	Type      string    `json:"type"`
	RunID     string    `json:"run_id"`
	Command   string    `json:"command,omitempty"`
	Line      string    `json:"line,omitempty"`
	Seq       int       `json:"seq,omitempty"`
	ExitCode  *int      `json:"exit_code,omitempty"`
	State     string    `json:"state"`
	Cancelled bool      `json:"cancelled,omitempty"`
	Succeeded bool      `json:"succeeded,omitempty"`
	Time      time.Time `json:"time"`
}

// Publisher receives display events in order. Publish is called from the
// runner's goroutines and from Run; it should not call back into the
// Display that produced the event.
type Publisher interface {
	Publish(Event)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(Event)

// Publish calls f(e).
func (f PublisherFunc) Publish(e Event) { f(e) }
