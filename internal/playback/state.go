package playback

import "time"

// State is the engine's playback state.
type State int

const (
	// StateIdle means nothing is playing; a loaded text may be played.
	StateIdle State = iota
	// StatePlaying means audio is being written to the device.
	StatePlaying
	// StatePaused means the loop is suspended at a block boundary.
	StatePaused
)

// String returns the lower-case state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	default:
		return "unknown"
	}
}

// Active reports whether a request is playing or paused.
func (s State) Active() bool {
	return s == StatePlaying || s == StatePaused
}

// Request is one loaded text. It is consumed by exactly one playback loop.
type Request struct {
	ID   string
	Text string
}

// EventKind classifies an Event.
type EventKind int

const (
	// EventStateChanged is published on every state transition.
	EventStateChanged EventKind = iota
	// EventCompleted is published when a request plays to its end.
	EventCompleted
	// EventError is published when synthesis or the device fails.
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventStateChanged:
		return "state_changed"
	case EventCompleted:
		return "completed"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event reports an engine transition to subscribers.
type Event struct {
	Kind      EventKind
	State     State         // state after the transition
	RequestID string        // request the event belongs to
	Offset    time.Duration // committed offset at the time of the event
	Err       error         // set for EventError
	At        time.Time
}
