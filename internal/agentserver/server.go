// Package agentserver is a reference agent backend. It serves the chat
// routes the bridge consumes and streams replies as data-prefixed frames.
package agentserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"

	"golang.org/x/sync/semaphore"

	"github.com/user/chatbridge/internal/types"
	"github.com/user/chatbridge/pkg/agentapi"
	"github.com/user/chatbridge/pkg/stream"
)

const anonymousUser = "anonymous"

// Server is an HTTP handler serving a fixed set of agents.
type Server struct {
	agents    map[string]Agent
	semaphore *semaphore.Weighted
	mux       *http.ServeMux
}

// NewServer creates a Server for agents. At most maxConcurrent chat
// requests run at once; further ones are answered with 429.
func NewServer(agents []Agent, maxConcurrent int64) *Server {
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	s := &Server{
		agents:    make(map[string]Agent, len(agents)),
		semaphore: semaphore.NewWeighted(maxConcurrent),
		mux:       http.NewServeMux(),
	}
	for _, a := range agents {
		s.agents[a.Info().AgentID] = a
	}
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /agents", s.handleAgents)
	s.mux.HandleFunc("POST /agents/{id}/chat", s.handleChat)
	s.mux.HandleFunc("POST /agents/{id}/chat/stream", s.handleChatStream)
	return s
}

// ServeHTTP delegates to the internal mux, implementing http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request) {
	infos := make([]agentapi.Agent, 0, len(s.agents))
	for _, a := range s.agents {
		infos = append(infos, a.Info())
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].AgentID < infos[j].AgentID })
	writeJSON(w, http.StatusOK, map[string]any{"agents": infos})
}

// prepare resolves the agent and decodes the request. It writes the error
// response itself and returns false on failure.
func (s *Server) prepare(w http.ResponseWriter, r *http.Request) (Agent, *agentapi.ChatRequest, bool) {
	id := agentapi.NormalizeAgentID(r.PathValue("id"))
	agent, ok := s.agents[id]
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "Unknown agent_id: " + id})
		return nil, nil, false
	}

	var req agentapi.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "invalid JSON"})
		return nil, nil, false
	}
	if len(req.Messages) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "messages are required"})
		return nil, nil, false
	}
	req.AgentID = id
	if req.SessionID == "" {
		req.SessionID = string(types.NewSessionID())
	}
	if req.UserID == "" {
		req.UserID = anonymousUser
	}
	return agent, &req, true
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if !s.semaphore.TryAcquire(1) {
		writeJSON(w, http.StatusTooManyRequests, map[string]string{"detail": "too many concurrent requests"})
		return
	}
	defer s.semaphore.Release(1)

	agent, req, ok := s.prepare(w, r)
	if !ok {
		return
	}

	content, err := reply(r.Context(), agent, req)
	if err != nil {
		slog.Error("agent reply failed", "agent_id", req.AgentID, "session_id", req.SessionID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, agentapi.ChatResponse{
		Message:   agentapi.Message{Role: agentapi.RoleAssistant, Content: content},
		SessionID: req.SessionID,
		UserID:    req.UserID,
	})
}

// reply returns the full reply of agent, in one call when it is a Completer
// and by draining Reply otherwise.
func reply(ctx context.Context, agent Agent, req *agentapi.ChatRequest) (string, error) {
	if c, ok := agent.(Completer); ok {
		resp, err := c.Complete(ctx, req)
		if err != nil {
			return "", err
		}
		slog.Info("agent reply completed",
			"agent_id", req.AgentID,
			"session_id", req.SessionID,
			"input_tokens", resp.Usage.InputTokens,
			"output_tokens", resp.Usage.OutputTokens,
		)
		return resp.Content, nil
	}

	deltas, err := agent.Reply(ctx, req)
	if err != nil {
		return "", err
	}
	var content strings.Builder
	for d := range deltas {
		if d.Err != nil {
			return "", d.Err
		}
		content.WriteString(d.Content)
	}
	return content.String(), nil
}

// frame is one streamed payload.
type frame struct {
	Content   *string `json:"content,omitempty"`
	Done      bool    `json:"done,omitempty"`
	Error     string  `json:"error,omitempty"`
	SessionID string  `json:"session_id,omitempty"`
	UserID    string  `json:"user_id,omitempty"`
}

func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	if !s.semaphore.TryAcquire(1) {
		writeJSON(w, http.StatusTooManyRequests, map[string]string{"detail": "too many concurrent requests"})
		return
	}
	defer s.semaphore.Release(1)

	agent, req, ok := s.prepare(w, r)
	if !ok {
		return
	}
	logger := slog.With("agent_id", req.AgentID, "session_id", req.SessionID, "turn_id", req.TurnID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	if flusher != nil {
		flusher.Flush()
	}

	write := func(f frame) error {
		data, err := json.Marshal(f)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "%s %s\n\n", stream.DataPrefix, data); err != nil {
			return err
		}
		if flusher != nil {
			flusher.Flush()
		}
		return nil
	}

	deltas, err := agent.Reply(r.Context(), req)
	if err != nil {
		logger.Error("agent reply failed", "error", err)
		write(frame{Error: err.Error()})
		return
	}

	for d := range deltas {
		if d.Err != nil {
			logger.Error("agent stream failed", "error", d.Err)
			write(frame{Error: d.Err.Error()})
			return
		}
		if d.Content == "" {
			continue
		}
		if err := write(frame{Content: &d.Content}); err != nil {
			logger.Debug("client went away", "error", err)
			return
		}
	}

	empty := ""
	write(frame{Content: &empty, Done: true, SessionID: req.SessionID, UserID: req.UserID})
	logger.Debug("stream complete")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
