package transcript

import (
	"errors"
	"fmt"

	"github.com/user/chatbridge/pkg/stream"
)

// ErrNoAgentPlaceholder is returned when a content delta arrives while the
// last message is not an agent message. The caller must append the agent
// placeholder before streaming begins.
var ErrNoAgentPlaceholder = errors.New("content delta without agent placeholder")

// Reduce applies one event to t and returns the resulting transcript. It
// never modifies t and never touches user messages.
//
// ContentDelta appends to the last agent message; the first delta also moves
// the message's CreatedAt to the server-reported time. Completed is a
// lifecycle signal only and leaves the transcript unchanged, so repeating it
// is a no-op. Failed flags the last agent message with StreamingError and
// keeps whatever content was accumulated.
func Reduce(t Transcript, ev stream.Event) (Transcript, error) {
	switch ev := ev.(type) {
	case stream.ContentDelta:
		last, ok := t.Last()
		if !ok || last.Role != RoleAgent {
			return t, ErrNoAgentPlaceholder
		}
		last.Content += ev.Text
		if !last.aligned {
			if !ev.Timestamp.IsZero() {
				last.CreatedAt = ev.Timestamp
			}
			last.aligned = true
		}
		return t.withLast(last), nil

	case stream.Completed:
		return t, nil

	case stream.Failed:
		last, ok := t.Last()
		if !ok || last.Role != RoleAgent || last.StreamingError {
			return t, nil
		}
		last.StreamingError = true
		return t.withLast(last), nil

	default:
		return t, fmt.Errorf("unsupported event %T", ev)
	}
}
