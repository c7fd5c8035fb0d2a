// Package agentapi is an HTTP client for agent backends that stream chat
// replies as prefix-tagged event lines.
package agentapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const maxErrorBody = 64 << 10

// Config holds the connection settings for an agent backend.
type Config struct {
	BaseURL     string
	Token       string
	MaxAttempts int
	Timeout     time.Duration
}

// Client talks to one agent backend.
type Client struct {
	config       *Config
	httpClient   *http.Client
	streamClient *http.Client
	retry        *RetryPolicy
}

// New creates a client for the given backend. Non-streaming calls use
// config.Timeout (60s when zero); streaming calls have no client timeout
// and end only when the caller's context is done or the body is closed.
func New(config *Config) *Client {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	retry := DefaultRetryPolicy()
	if config.MaxAttempts > 1 {
		retry.MaxAttempts = config.MaxAttempts
	}
	return &Client{
		config:       config,
		httpClient:   &http.Client{Timeout: timeout},
		streamClient: &http.Client{},
		retry:        retry,
	}
}

// OpenStream starts a streamed chat turn with req.AgentID and returns the
// response body. The caller must close it. Connection failures are retried
// according to the client's retry policy; nothing is retried once the body
// has been returned.
func (c *Client) OpenStream(ctx context.Context, req *ChatRequest) (io.ReadCloser, error) {
	streamReq := *req
	streamReq.Stream = true
	body, err := json.Marshal(&streamReq)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	var resp *http.Response
	err = c.retry.Execute(ctx, func() error {
		httpReq, err := c.newRequest(ctx, http.MethodPost, c.agentPath(req.AgentID, "chat/stream"), body)
		if err != nil {
			return err
		}
		httpReq.Header.Set("Accept", "text/event-stream")

		r, err := c.streamClient.Do(httpReq)
		if err != nil {
			return fmt.Errorf("sending request: %w", err)
		}
		if r.StatusCode < 200 || r.StatusCode >= 300 {
			defer r.Body.Close()
			return statusError(r)
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// Chat sends a non-streaming chat request and returns the full reply.
func (c *Client) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	chatReq := *req
	chatReq.Stream = false
	body, err := json.Marshal(&chatReq)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	var chatResp ChatResponse
	if err := c.do(ctx, http.MethodPost, c.agentPath(req.AgentID, "chat"), body, &chatResp); err != nil {
		return nil, err
	}
	return &chatResp, nil
}

// ListAgents returns the agents served by the backend.
func (c *Client) ListAgents(ctx context.Context) ([]Agent, error) {
	var resp struct {
		Agents []Agent `json:"agents"`
	}
	if err := c.do(ctx, http.MethodGet, "/agents", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Agents, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	return c.retry.Execute(ctx, func() error {
		req, err := c.newRequest(ctx, method, path, body)
		if err != nil {
			return err
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("sending request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return statusError(resp)
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("parsing response: %w", err)
		}
		return nil
	})
}

func (c *Client) newRequest(ctx context.Context, method, path string, body []byte) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(c.config.BaseURL, "/")+path, r)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.Token)
	}
	return req, nil
}

func (c *Client) agentPath(agentID, suffix string) string {
	return "/agents/" + url.PathEscape(agentID) + "/" + suffix
}

func statusError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
}
