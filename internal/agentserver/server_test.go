package agentserver

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/user/chatbridge/pkg/agentapi"
	"github.com/user/chatbridge/pkg/llm"
)

// scripted replies with fixed deltas, optionally ending in an error.
type scripted struct {
	id      string
	deltas  []string
	failure error
	block   chan struct{}
}

func (s *scripted) Info() agentapi.Agent {
	return agentapi.Agent{AgentID: s.id, Name: s.id}
}

func (s *scripted) Reply(ctx context.Context, _ *agentapi.ChatRequest) (<-chan llm.Delta, error) {
	ch := make(chan llm.Delta, len(s.deltas)+1)
	go func() {
		defer close(ch)
		if s.block != nil {
			select {
			case <-s.block:
			case <-ctx.Done():
				return
			}
		}
		for _, d := range s.deltas {
			ch <- llm.Delta{Content: d}
		}
		if s.failure != nil {
			ch <- llm.Delta{Err: s.failure}
		}
	}()
	return ch, nil
}

func newTestServer(t *testing.T, maxConcurrent int64, agents ...Agent) (*httptest.Server, *agentapi.Client) {
	t.Helper()
	server := httptest.NewServer(NewServer(agents, maxConcurrent))
	t.Cleanup(server.Close)
	return server, agentapi.New(&agentapi.Config{BaseURL: server.URL})
}

func readStream(t *testing.T, client *agentapi.Client, req *agentapi.ChatRequest) string {
	t.Helper()
	body, err := client.OpenStream(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	defer body.Close()
	data, err := io.ReadAll(body)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func TestHealth(t *testing.T) {
	server, _ := newTestServer(t, 1)
	resp, err := http.Get(server.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
}

func TestListAgents(t *testing.T) {
	_, client := newTestServer(t, 1, &Echo{}, &scripted{id: "crypto_advisor"})

	agents, err := client.ListAgents(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(agents) != 2 {
		t.Fatalf("expected 2 agents, got %d", len(agents))
	}
	if agents[0].AgentID != "crypto_advisor" || agents[1].AgentID != "echo" {
		t.Errorf("expected agents sorted by id, got %+v", agents)
	}
}

func TestEchoStream(t *testing.T) {
	_, client := newTestServer(t, 1, &Echo{})

	body := readStream(t, client, &agentapi.ChatRequest{
		AgentID:   "echo",
		SessionID: "s1",
		Messages:  []agentapi.Message{{Role: "user", Content: "hello world"}},
	})

	want := "data: {\"content\":\"hello\"}\n\n" +
		"data: {\"content\":\" worl\"}\n\n" +
		"data: {\"content\":\"d\"}\n\n" +
		"data: {\"content\":\"\",\"done\":true,\"session_id\":\"s1\",\"user_id\":\"anonymous\"}\n\n"
	if body != want {
		t.Errorf("unexpected stream:\n%s\nwant:\n%s", body, want)
	}
}

func TestStreamNormalizesAgentID(t *testing.T) {
	_, client := newTestServer(t, 1, &scripted{id: "crypto_advisor", deltas: []string{"BTC"}})

	body := readStream(t, client, &agentapi.ChatRequest{
		AgentID:  "crypto-advisor",
		UserID:   "u1",
		Messages: []agentapi.Message{{Role: "user", Content: "price?"}},
	})
	if !strings.HasPrefix(body, "data: {\"content\":\"BTC\"}\n\n") {
		t.Errorf("unexpected stream %q", body)
	}
	if !strings.Contains(body, "\"user_id\":\"u1\"") {
		t.Errorf("expected user id echoed, got %q", body)
	}
	if !strings.Contains(body, "\"session_id\":\"") {
		t.Errorf("expected generated session id, got %q", body)
	}
}

func TestStreamAgentError(t *testing.T) {
	_, client := newTestServer(t, 1, &scripted{id: "flaky", deltas: []string{"partial"}, failure: errors.New("upstream failed")})

	body := readStream(t, client, &agentapi.ChatRequest{
		AgentID:  "flaky",
		Messages: []agentapi.Message{{Role: "user", Content: "hi"}},
	})
	want := "data: {\"content\":\"partial\"}\n\ndata: {\"error\":\"upstream failed\"}\n\n"
	if body != want {
		t.Errorf("expected %q, got %q", want, body)
	}
}

func TestUnknownAgent(t *testing.T) {
	_, client := newTestServer(t, 1, &Echo{})

	_, err := client.OpenStream(context.Background(), &agentapi.ChatRequest{
		AgentID:  "nope",
		Messages: []agentapi.Message{{Role: "user", Content: "hi"}},
	})
	if !errors.Is(err, agentapi.ErrUnknownAgent) {
		t.Errorf("expected ErrUnknownAgent, got %v", err)
	}
}

func TestChatCollectsReply(t *testing.T) {
	_, client := newTestServer(t, 1, &Echo{})

	resp, err := client.Chat(context.Background(), &agentapi.ChatRequest{
		AgentID:   "echo",
		SessionID: "s1",
		Messages:  []agentapi.Message{{Role: "user", Content: "hello world"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Message.Content != "hello world" || resp.Message.Role != "assistant" {
		t.Errorf("unexpected message %+v", resp.Message)
	}
	if resp.SessionID != "s1" || resp.UserID != "anonymous" {
		t.Errorf("unexpected identity %q / %q", resp.SessionID, resp.UserID)
	}
}

func TestConcurrencyLimit(t *testing.T) {
	block := make(chan struct{})
	_, client := newTestServer(t, 1, &scripted{id: "slow", deltas: []string{"x"}, block: block})

	req := &agentapi.ChatRequest{AgentID: "slow", Messages: []agentapi.Message{{Role: "user", Content: "hi"}}}
	first, err := client.OpenStream(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	defer first.Close()

	_, err = client.OpenStream(context.Background(), req)
	var statusErr *agentapi.StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %v", err)
	}

	close(block)
	io.ReadAll(first)
}

func TestAssistantAgent(t *testing.T) {
	var got []llm.Message
	provider := &fakeProvider{stream: func(messages []llm.Message) []llm.Delta {
		got = messages
		return []llm.Delta{{Content: "hi "}, {Content: "there"}}
	}}
	agent := &Assistant{Provider: provider, SystemPrompt: "be brief"}

	deltas, err := agent.Reply(context.Background(), &agentapi.ChatRequest{
		Messages: []agentapi.Message{{Role: "user", Content: "hello"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	var content string
	for d := range deltas {
		content += d.Content
	}
	if content != "hi there" {
		t.Errorf("expected 'hi there', got %q", content)
	}
	if len(got) != 2 || got[0].Role != "system" || got[1].Content != "hello" {
		t.Errorf("unexpected provider messages %+v", got)
	}
}

type fakeProvider struct {
	stream      func([]llm.Message) []llm.Delta
	completions atomic.Int32
	streams     atomic.Int32
}

func (f *fakeProvider) Complete(ctx context.Context, messages []llm.Message) (*llm.Response, error) {
	f.completions.Add(1)
	var content string
	for _, d := range f.stream(messages) {
		content += d.Content
	}
	return &llm.Response{Content: content, Usage: llm.Usage{InputTokens: len(messages), OutputTokens: 2}}, nil
}

func (f *fakeProvider) Stream(ctx context.Context, messages []llm.Message) (<-chan llm.Delta, error) {
	f.streams.Add(1)
	deltas := f.stream(messages)
	ch := make(chan llm.Delta, len(deltas))
	for _, d := range deltas {
		ch <- d
	}
	close(ch)
	return ch, nil
}

func TestChatUsesCompleteForAssistant(t *testing.T) {
	var mu sync.Mutex
	var got []llm.Message
	provider := &fakeProvider{stream: func(messages []llm.Message) []llm.Delta {
		mu.Lock()
		defer mu.Unlock()
		got = messages
		return []llm.Delta{{Content: "full "}, {Content: "answer"}}
	}}
	_, client := newTestServer(t, 1, &Assistant{Provider: provider, SystemPrompt: "be brief"})

	resp, err := client.Chat(context.Background(), &agentapi.ChatRequest{
		AgentID:  "assistant",
		Messages: []agentapi.Message{{Role: "user", Content: "question"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Message.Content != "full answer" {
		t.Errorf("expected 'full answer', got %q", resp.Message.Content)
	}
	if resp.Message.Role != agentapi.RoleAssistant {
		t.Errorf("expected role assistant, got %q", resp.Message.Role)
	}
	if provider.completions.Load() != 1 || provider.streams.Load() != 0 {
		t.Errorf("expected one Complete and no Stream, got %d and %d", provider.completions.Load(), provider.streams.Load())
	}
	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 || got[0].Role != "system" || got[1].Content != "question" {
		t.Errorf("unexpected provider messages %+v", got)
	}
}

func TestChatCompleteError(t *testing.T) {
	_, client := newTestServer(t, 1, &Assistant{Provider: failingProvider{}})

	_, err := client.Chat(context.Background(), &agentapi.ChatRequest{
		AgentID:  "assistant",
		Messages: []agentapi.Message{{Role: "user", Content: "question"}},
	})
	var statusErr *agentapi.StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if statusErr.StatusCode != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", statusErr.StatusCode)
	}
}

type failingProvider struct{}

func (failingProvider) Complete(context.Context, []llm.Message) (*llm.Response, error) {
	return nil, errors.New("model unavailable")
}

func (failingProvider) Stream(context.Context, []llm.Message) (<-chan llm.Delta, error) {
	return nil, errors.New("model unavailable")
}
