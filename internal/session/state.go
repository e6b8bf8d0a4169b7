package session

// State is a session's position in the replay lifecycle.
type State int

const (
	// StateBurst is entered on creation; Open sends the upfront burst.
	StateBurst State = iota
	// StateSteady sends one record per timer fire.
	StateSteady
	// StateIdle is terminal for delivery: no more timers are armed.
	StateIdle
	// StateClosed means the connection went away and the file is released.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateBurst:
		return "burst"
	case StateSteady:
		return "steady"
	case StateIdle:
		return "idle"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
