package stream

import "time"

// Event is a normalized stream event. The set of implementations is closed:
// ContentDelta, Completed and Failed.
type Event interface {
	isEvent()
}

// ContentDelta carries an incremental fragment of agent text.
type ContentDelta struct {
	Text      string
	Timestamp time.Time
}

// Completed marks the normal end of a turn. SessionID and UserID echo the
// metadata some backends attach to the final frame; both may be empty.
type Completed struct {
	SessionID string
	UserID    string
}

// Failed marks the abnormal end of a turn.
type Failed struct {
	Reason string
}

func (ContentDelta) isEvent() {}
func (Completed) isEvent()    {}
func (Failed) isEvent()       {}

// IsTerminal reports whether no further frames should be processed for the
// current turn after ev.
func IsTerminal(ev Event) bool {
	switch ev.(type) {
	case Completed, Failed:
		return true
	default:
		return false
	}
}
