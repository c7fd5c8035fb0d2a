package session

// State is the lifecycle state of the most recent turn.
type State string

const (
	StateIdle       State = "idle"
	StateRequesting State = "requesting"
	StateStreaming  State = "streaming"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
	StateCancelled  State = "cancelled"
)

// Outcome is the terminal result of a turn: Completed, Failed or Cancelled.
type Outcome interface {
	isOutcome()
}

// Completed reports a turn that ended normally. SessionID and UserID echo
// the metadata of the final frame when the server sent any.
type Completed struct {
	SessionID string
	UserID    string
}

// Failed reports a turn that ended with a protocol error, a transport error
// or a violated pipeline invariant.
type Failed struct {
	Reason string
}

// Cancelled reports a turn stopped by the caller.
type Cancelled struct{}

func (Completed) isOutcome() {}
func (Failed) isOutcome()    {}
func (Cancelled) isOutcome() {}

func stateOf(o Outcome) State {
	switch o.(type) {
	case Completed:
		return StateCompleted
	case Failed:
		return StateFailed
	default:
		return StateCancelled
	}
}
