package transcript

import (
	"encoding/json"
	"time"
)

// Role identifies the author of a message. It never changes after creation.
type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

// Message is one transcript entry.
type Message struct {
	Role           Role              `json:"role" yaml:"role"`
	Content        string            `json:"content" yaml:"content"`
	CreatedAt      time.Time         `json:"created_at" yaml:"created_at"`
	StreamingError bool              `json:"streaming_error,omitempty" yaml:"streaming_error,omitempty"`
	ToolCalls      []json.RawMessage `json:"tool_calls,omitempty" yaml:"-"`

	// set once the first delta has aligned CreatedAt with server time
	aligned bool
}

// UserMessage returns a user message created at the given time.
func UserMessage(text string, at time.Time) Message {
	return Message{Role: RoleUser, Content: text, CreatedAt: at}
}

// AgentPlaceholder returns the empty agent message that receives a turn's
// streamed deltas.
func AgentPlaceholder(at time.Time) Message {
	return Message{Role: RoleAgent, CreatedAt: at}
}
