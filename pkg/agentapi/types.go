package agentapi

import (
	"errors"
	"fmt"
	"strings"
)

// Wire roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ErrUnknownAgent is matched (via errors.Is) by a StatusError the server
// returns for an agent ID it does not serve.
var ErrUnknownAgent = errors.New("unknown agent")

// Message is the minimal per-turn history entry sent to the agent.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the body of both the streaming and non-streaming chat calls.
type ChatRequest struct {
	Messages  []Message `json:"messages"`
	AgentID   string    `json:"agent_id,omitempty"`
	ModelID   string    `json:"model_id,omitempty"`
	UserID    string    `json:"user_id,omitempty"`
	SessionID string    `json:"session_id,omitempty"`
	TurnID    string    `json:"turn_id,omitempty"`
	Stream    bool      `json:"stream"`
}

// ChatResponse is the body of a non-streaming chat reply.
type ChatResponse struct {
	Message   Message `json:"message"`
	SessionID string  `json:"session_id"`
	UserID    string  `json:"user_id,omitempty"`
}

// Agent describes one agent served by the backend.
type Agent struct {
	AgentID     string `json:"agent_id" yaml:"agent_id"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
}

// StatusError is returned when the server answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Body)
}

func (e *StatusError) Unwrap() error {
	if e.StatusCode == 400 && strings.Contains(e.Body, "Unknown agent_id") {
		return ErrUnknownAgent
	}
	return nil
}

// NormalizeAgentID maps the hyphenated spelling of an agent ID onto the
// underscored one. Servers accept both.
func NormalizeAgentID(id string) string {
	return strings.ReplaceAll(strings.TrimSpace(id), "-", "_")
}
