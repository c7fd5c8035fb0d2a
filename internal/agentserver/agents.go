package agentserver

import (
	"context"
	"fmt"
	"strings"

	"github.com/user/chatbridge/pkg/agentapi"
	"github.com/user/chatbridge/pkg/llm"
)

// Agent produces the streamed reply to one chat request.
type Agent interface {
	Info() agentapi.Agent
	// Reply returns the reply as deltas. The channel is closed when the
	// reply is complete; a delta carrying Err ends the reply abnormally.
	Reply(ctx context.Context, req *agentapi.ChatRequest) (<-chan llm.Delta, error)
}

// Completer is implemented by agents that can answer a non-streaming chat
// request in one call. Agents without it are drained through Reply.
type Completer interface {
	Complete(ctx context.Context, req *agentapi.ChatRequest) (*llm.Response, error)
}

// Echo repeats the last user message back in fixed-size chunks.
type Echo struct {
	ChunkSize int
}

// Info implements Agent.
func (e *Echo) Info() agentapi.Agent {
	return agentapi.Agent{
		AgentID:     "echo",
		Name:        "Echo",
		Description: "Repeats the last user message, streamed in small chunks",
	}
}

// Reply implements Agent.
func (e *Echo) Reply(ctx context.Context, req *agentapi.ChatRequest) (<-chan llm.Delta, error) {
	text := lastUserMessage(req.Messages)
	if text == "" {
		return nil, fmt.Errorf("no user message")
	}

	size := e.ChunkSize
	if size <= 0 {
		size = 5
	}
	runes := []rune(text)

	ch := make(chan llm.Delta)
	go func() {
		defer close(ch)
		for i := 0; i < len(runes); i += size {
			chunk := string(runes[i:min(i+size, len(runes))])
			select {
			case ch <- llm.Delta{Content: chunk}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

// Assistant answers through an LLM provider.
type Assistant struct {
	Provider     llm.Provider
	SystemPrompt string
}

// Info implements Agent.
func (a *Assistant) Info() agentapi.Agent {
	return agentapi.Agent{
		AgentID:     "assistant",
		Name:        "Assistant",
		Description: "General-purpose assistant backed by an OpenAI-compatible model",
	}
}

var _ Completer = (*Assistant)(nil)

// Reply implements Agent.
func (a *Assistant) Reply(ctx context.Context, req *agentapi.ChatRequest) (<-chan llm.Delta, error) {
	return a.Provider.Stream(ctx, a.prompt(req))
}

// Complete implements Completer.
func (a *Assistant) Complete(ctx context.Context, req *agentapi.ChatRequest) (*llm.Response, error) {
	resp, err := a.Provider.Complete(ctx, a.prompt(req))
	if err != nil {
		return nil, fmt.Errorf("complete: %w", err)
	}
	return resp, nil
}

func (a *Assistant) prompt(req *agentapi.ChatRequest) []llm.Message {
	messages := make([]llm.Message, 0, len(req.Messages)+1)
	if a.SystemPrompt != "" {
		messages = append(messages, llm.Message{Role: "system", Content: a.SystemPrompt})
	}
	for _, m := range req.Messages {
		messages = append(messages, llm.Message{Role: m.Role, Content: m.Content})
	}
	return messages
}

func lastUserMessage(msgs []agentapi.Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == agentapi.RoleUser {
			return strings.TrimSpace(msgs[i].Content)
		}
	}
	return ""
}
