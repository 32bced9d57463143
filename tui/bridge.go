package tui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/kbukum/mmrunner/display"
)

// eventMsg carries a display event into the program.
type eventMsg display.Event

// Bridge is a display.Publisher that forwards events to a running
// program. Events published before Attach are dropped.
type Bridge struct {
	mu sync.Mutex
	p  *tea.Program
}

var _ display.Publisher = (*Bridge)(nil)

// NewBridge creates an unattached bridge.
func NewBridge() *Bridge {
	return &Bridge{}
}

// Attach binds the bridge to p.
func (b *Bridge) Attach(p *tea.Program) {
	b.mu.Lock()
	b.p = p
	b.mu.Unlock()
}

// Publish implements display.Publisher. Send blocks until the program
// takes the message and returns immediately once it has exited.
func (b *Bridge) Publish(ev display.Event) {
	b.mu.Lock()
	p := b.p
	b.mu.Unlock()
	if p != nil {
		p.Send(eventMsg(ev))
	}
}
