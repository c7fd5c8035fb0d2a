// Package transcript holds the ordered conversation transcript and the pure
// reducer that applies stream events to it.
//
// A Transcript value is immutable: every operation that changes it returns a
// new value with its own backing array, so a snapshot handed to a renderer
// stays valid while the reducer keeps producing newer ones.
package transcript

// Transcript is an ordered sequence of messages. Insertion order is the only
// order. The zero value is an empty transcript.
type Transcript struct {
	messages []Message
}

// New returns a transcript holding a copy of msgs.
func New(msgs ...Message) Transcript {
	if len(msgs) == 0 {
		return Transcript{}
	}
	return Transcript{messages: cloneMessages(msgs)}
}

// Len returns the number of messages.
func (t Transcript) Len() int {
	return len(t.messages)
}

// At returns the i-th message.
func (t Transcript) At(i int) Message {
	return t.messages[i]
}

// Messages returns a copy of the messages in order.
func (t Transcript) Messages() []Message {
	return cloneMessages(t.messages)
}

// Last returns the most recently added message.
func (t Transcript) Last() (Message, bool) {
	if len(t.messages) == 0 {
		return Message{}, false
	}
	return t.messages[len(t.messages)-1], true
}

// Append returns a transcript with msgs added at the end.
func (t Transcript) Append(msgs ...Message) Transcript {
	out := make([]Message, 0, len(t.messages)+len(msgs))
	out = append(out, t.messages...)
	out = append(out, msgs...)
	return Transcript{messages: out}
}

func (t Transcript) withLast(m Message) Transcript {
	out := cloneMessages(t.messages)
	out[len(out)-1] = m
	return Transcript{messages: out}
}

// DropFailedTurn removes the last user and agent pair when the agent message
// is flagged with a streaming error. It reports whether anything was removed.
func DropFailedTurn(t Transcript) (Transcript, bool) {
	n := len(t.messages)
	if n < 2 {
		return t, false
	}
	agent, user := t.messages[n-1], t.messages[n-2]
	if agent.Role != RoleAgent || !agent.StreamingError || user.Role != RoleUser {
		return t, false
	}
	return Transcript{messages: cloneMessages(t.messages[:n-2])}, true
}

func cloneMessages(msgs []Message) []Message {
	if msgs == nil {
		return nil
	}
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out
}
