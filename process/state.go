package process

// State is the lifecycle phase of a Runner.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateFinished
	StateCancelled
)

var stateNames = [...]string{
	StateIdle:      "idle",
	StateRunning:   "running",
	StateFinished:  "finished",
	StateCancelled: "cancelled",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateFinished || s == StateCancelled
}

// MarshalText encodes the state by name for JSON payloads.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
