// Package history turns a transcript into the minimal role/content history
// sent with each turn.
package history

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"

	"github.com/user/chatbridge/internal/transcript"
	"github.com/user/chatbridge/pkg/agentapi"
)

// TokenCounter counts tokens in a piece of text.
type TokenCounter interface {
	Count(text string) int
}

// Builder converts transcripts to wire history.
type Builder struct {
	counter   TokenCounter
	maxTokens int
}

// Option configures a Builder.
type Option func(*Builder)

// WithTokenBudget keeps only the most recent messages whose combined token
// count fits in maxTokens. The newest message is always kept. A budget of
// zero or less disables trimming.
func WithTokenBudget(counter TokenCounter, maxTokens int) Option {
	return func(b *Builder) {
		b.counter = counter
		b.maxTokens = maxTokens
	}
}

// New creates a Builder. Without options it sends the full visible history.
func New(opts ...Option) *Builder {
	b := &Builder{}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build returns the visible history of t in order. Agent messages with no
// content, such as the placeholder of the turn being started, are skipped.
func (b *Builder) Build(t transcript.Transcript) []agentapi.Message {
	msgs := make([]agentapi.Message, 0, t.Len())
	for i := 0; i < t.Len(); i++ {
		m := t.At(i)
		switch m.Role {
		case transcript.RoleUser:
			msgs = append(msgs, agentapi.Message{Role: agentapi.RoleUser, Content: m.Content})
		case transcript.RoleAgent:
			if m.Content == "" {
				continue
			}
			msgs = append(msgs, agentapi.Message{Role: agentapi.RoleAssistant, Content: m.Content})
		}
	}
	if b.counter == nil || b.maxTokens <= 0 || len(msgs) == 0 {
		return msgs
	}
	return b.trim(msgs)
}

// trim walks from newest to oldest and drops everything older than the
// first message that would exceed the budget.
func (b *Builder) trim(msgs []agentapi.Message) []agentapi.Message {
	used := 0
	start := len(msgs)
	for i := len(msgs) - 1; i >= 0; i-- {
		n := b.counter.Count(msgs[i].Content)
		if start < len(msgs) && used+n > b.maxTokens {
			break
		}
		used += n
		start = i
	}
	return msgs[start:]
}

// Tiktoken counts tokens with a tiktoken encoding.
type Tiktoken struct {
	enc *tiktoken.Tiktoken
}

// NewTiktoken returns a counter for model, falling back to cl100k_base for
// models tiktoken does not know.
func NewTiktoken(model string) (*Tiktoken, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("get tokenizer: %w", err)
		}
	}
	return &Tiktoken{enc: enc}, nil
}

// Count implements TokenCounter.
func (t *Tiktoken) Count(text string) int {
	return len(t.enc.Encode(text, nil, nil))
}
