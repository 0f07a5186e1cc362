package playback

import "time"

// EventKind says how a loaded track finished.
type EventKind int

const (
	EventEnded EventKind = iota
	EventFailed
)

func (k EventKind) String() string {
	if k == EventFailed {
		return "failed"
	}
	return "ended"
}

// Event is emitted by a backend when the track it was asked to play stops
// on its own. Generation matches the Load call the event belongs to, so
// events from a replaced track can be told apart.
type Event struct {
	Kind       EventKind
	Generation uint64
	Err        error
}

// Backend plays one local audio file at a time.
type Backend interface {
	// Load starts playing path, replacing whatever was playing, and returns
	// the generation assigned to it.
	Load(path string) (uint64, error)
	Pause() error
	Resume() error
	Stop() error
	// Events delivers end-of-track notifications. It is never closed.
	Events() <-chan Event
}

// Progress is implemented by backends that can report playback position.
type Progress interface {
	Position() time.Duration
	Duration() time.Duration
}
