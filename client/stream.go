package client

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/kbukum/mmrunner/display"
	"github.com/kbukum/mmrunner/sse"
)

// maxFrame bounds one SSE line; it covers the server's line limit plus
// the JSON envelope.
const maxFrame = 2 << 20

// Frame is one raw server-sent event.
type Frame struct {
	// Event is the "event:" field, empty for runner events.
	Event string
	// Data is the "data:" payload; multi-line data is joined with "\n".
	Data string
	// ID is the "id:" field.
	ID string
}

// Message is a decoded frame. Exactly one of Connected, Snapshot and
// Event is set.
type Message struct {
	Connected *sse.ConnectedEvent
	Snapshot  *display.Snapshot
	Event     *display.Event
}

// Stream reads the event stream of one connection.
type Stream struct {
	scanner *bufio.Scanner
	body    io.ReadCloser
}

func newStream(body io.ReadCloser) *Stream {
	sc := bufio.NewScanner(body)
	sc.Buffer(make([]byte, 0, 64<<10), maxFrame)
	return &Stream{scanner: sc, body: body}
}

// NextFrame returns the next raw frame, skipping keep-alive comments. It
// returns io.EOF when the server closes the stream.
func (s *Stream) NextFrame() (Frame, error) {
	var (
		frame   Frame
		hasData bool
	)
	for s.scanner.Scan() {
		line := s.scanner.Text()
		if line == "" {
			if hasData {
				return frame, nil
			}
			frame = Frame{}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value := parseField(line)
		switch field {
		case "data":
			if hasData {
				frame.Data += "\n" + value
			} else {
				frame.Data = value
				hasData = true
			}
		case "event":
			frame.Event = value
		case "id":
			frame.ID = value
		}
	}
	if err := s.scanner.Err(); err != nil {
		return Frame{}, err
	}
	if hasData {
		return frame, nil
	}
	return Frame{}, io.EOF
}

// Next returns the next decoded message. Unknown event names are skipped.
func (s *Stream) Next() (Message, error) {
	for {
		frame, err := s.NextFrame()
		if err != nil {
			return Message{}, err
		}

		var msg Message
		switch frame.Event {
		case sse.EventTypeConnected:
			msg.Connected = &sse.ConnectedEvent{}
			err = json.Unmarshal([]byte(frame.Data), msg.Connected)
		case sse.EventTypeSnapshot:
			msg.Snapshot = &display.Snapshot{}
			err = json.Unmarshal([]byte(frame.Data), msg.Snapshot)
		case "", sse.EventTypeMessage:
			msg.Event = &display.Event{}
			err = json.Unmarshal([]byte(frame.Data), msg.Event)
		default:
			continue
		}
		if err != nil {
			return Message{}, fmt.Errorf("client: decode %q frame: %w", frame.Event, err)
		}
		return msg, nil
	}
}

// Close ends the connection.
func (s *Stream) Close() error {
	return s.body.Close()
}

// parseField splits "field: value", dropping one space after the colon.
func parseField(line string) (field, value string) {
	field, value, ok := strings.Cut(line, ":")
	if !ok {
		return line, ""
	}
	return field, strings.TrimPrefix(value, " ")
}
