package llm

import (
	"context"
	"errors"
	"testing"
)

// MockProvider is a test double that satisfies the Provider interface.
type MockProvider struct {
	CompleteFunc func(ctx context.Context, messages []Message) (*Response, error)
	StreamFunc   func(ctx context.Context, messages []Message) (<-chan Delta, error)
}

func (m *MockProvider) Complete(ctx context.Context, messages []Message) (*Response, error) {
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, messages)
	}
	return &Response{Content: "mock response"}, nil
}

func (m *MockProvider) Stream(ctx context.Context, messages []Message) (<-chan Delta, error) {
	if m.StreamFunc != nil {
		return m.StreamFunc(ctx, messages)
	}
	ch := make(chan Delta, 1)
	ch <- Delta{Content: "mock stream"}
	close(ch)
	return ch, nil
}

func TestProviderInterface(t *testing.T) {
	var provider Provider = &MockProvider{}
	ctx := context.Background()
	messages := []Message{{Role: "user", Content: "test"}}

	resp, err := provider.Complete(ctx, messages)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Content == "" {
		t.Error("expected non-empty response")
	}

	stream, err := provider.Stream(ctx, messages)
	if err != nil {
		t.Fatal(err)
	}
	delta := <-stream
	if delta.Content == "" {
		t.Error("expected non-empty delta")
	}
}

func TestMockProviderCustomStream(t *testing.T) {
	mock := &MockProvider{
		StreamFunc: func(ctx context.Context, messages []Message) (<-chan Delta, error) {
			ch := make(chan Delta, 3)
			ch <- Delta{Content: "hello "}
			ch <- Delta{Content: "world"}
			ch <- Delta{Err: errors.New("cut off")}
			close(ch)
			return ch, nil
		},
	}

	stream, err := mock.Stream(context.Background(), []Message{{Role: "user", Content: "test"}})
	if err != nil {
		t.Fatal(err)
	}

	var accumulated string
	var streamErr error
	for delta := range stream {
		if delta.Err != nil {
			streamErr = delta.Err
			break
		}
		accumulated += delta.Content
	}
	if accumulated != "hello world" {
		t.Errorf("expected 'hello world', got %q", accumulated)
	}
	if streamErr == nil {
		t.Error("expected terminal error delta")
	}
}
