// Package session drives streamed chat turns: it opens the request, feeds
// the response through the line decoder and event translator, and commits
// each event to the transcript through the reducer.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/user/chatbridge/internal/diag"
	"github.com/user/chatbridge/internal/history"
	"github.com/user/chatbridge/internal/transcript"
	"github.com/user/chatbridge/internal/types"
	"github.com/user/chatbridge/pkg/agentapi"
	"github.com/user/chatbridge/pkg/stream"
)

var (
	// ErrTurnInProgress is returned by StartTurn while another turn is
	// requesting or streaming.
	ErrTurnInProgress = errors.New("turn already in progress")
	// ErrEmptyText is returned by StartTurn for blank user text.
	ErrEmptyText = errors.New("empty message text")
)

// Transport opens the streamed response of one chat turn.
// *agentapi.Client satisfies it.
type Transport interface {
	OpenStream(ctx context.Context, req *agentapi.ChatRequest) (io.ReadCloser, error)
}

// Controller owns the turn lifecycle of one conversation. It is the only
// writer of its transcript store; renderers read snapshots through
// Transcript or the store's View.
type Controller struct {
	transport  Transport
	store      *transcript.Store
	history    *history.Builder
	sink       diag.Sink
	logger     *slog.Logger
	now        func() time.Time
	eofPolicy  EOFPolicy
	readBuffer int

	sessionID types.SessionID
	agentID   string
	modelID   string
	userID    string

	mu      sync.Mutex
	state   State
	active  *Turn
	subs    map[int]*subscriber
	nextSub int

	// called before each event is committed; tests use it to interleave Cancel
	beforeApply func(stream.Event)
}

// New creates a Controller that sends turns over transport and commits them
// to store.
func New(transport Transport, store *transcript.Store, opts ...Option) *Controller {
	c := &Controller{
		transport:  transport,
		store:      store,
		readBuffer: defaultReadBuffer,
		now:        time.Now,
		state:      StateIdle,
		subs:       make(map[int]*subscriber),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.store == nil {
		c.store = transcript.NewStore()
	}
	if c.history == nil {
		c.history = history.New()
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.sink == nil {
		c.sink = diag.NewLogger(c.logger)
	}
	if c.sessionID == "" {
		c.sessionID = types.NewSessionID()
	}
	return c
}

// SessionID returns the conversation session ID.
func (c *Controller) SessionID() types.SessionID {
	return c.sessionID
}

// Transcript returns the current transcript snapshot.
func (c *Controller) Transcript() transcript.Transcript {
	return c.store.Snapshot()
}

// View returns read-only access to the transcript for renderers.
func (c *Controller) View() transcript.View {
	return c.store
}

// State returns the lifecycle state of the most recent turn.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// StartTurn begins a turn with the given user text. A failed previous turn
// is removed from the transcript first; then the user message and an empty
// agent placeholder are appended in one commit before any network activity.
// The turn runs in the background until it completes, fails or is
// cancelled. ctx bounds the whole turn.
func (c *Controller) StartTurn(ctx context.Context, text string) (*Turn, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active != nil {
		return nil, ErrTurnInProgress
	}

	now := c.now()
	snap, err := c.store.Update(func(t transcript.Transcript) (transcript.Transcript, error) {
		t, _ = transcript.DropFailedTurn(t)
		return t.Append(transcript.UserMessage(text, now), transcript.AgentPlaceholder(now)), nil
	})
	if err != nil {
		return nil, fmt.Errorf("append turn: %w", err)
	}

	turnCtx, cancel := context.WithCancel(ctx)
	turn := &Turn{
		ID:     types.NewTurnID(),
		ctl:    c,
		ctx:    turnCtx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	context.AfterFunc(turnCtx, func() { c.cancelTurn(turn) })

	req := &agentapi.ChatRequest{
		Messages:  c.history.Build(snap),
		AgentID:   c.agentID,
		ModelID:   c.modelID,
		UserID:    c.userID,
		SessionID: string(c.sessionID),
		TurnID:    string(turn.ID),
	}

	c.active = turn
	c.state = StateRequesting
	c.logger.Info("turn started",
		"session_id", c.sessionID,
		"turn_id", turn.ID,
		"agent_id", c.agentID,
		"history", len(req.Messages),
	)

	go c.run(turn, req)
	return turn, nil
}

// Cancel stops the active turn, if any. The response body is closed at
// once and events not yet committed are discarded; the transcript keeps
// whatever the turn had reached. A new turn may start immediately.
func (c *Controller) Cancel() {
	c.mu.Lock()
	turn := c.active
	c.mu.Unlock()
	if turn != nil {
		c.cancelTurn(turn)
	}
}

func (c *Controller) cancelTurn(turn *Turn) {
	c.mu.Lock()
	if turn.cancelled || turn.finished {
		c.mu.Unlock()
		return
	}
	turn.cancelled = true
	body := turn.body
	if c.active == turn {
		c.active = nil
		c.state = StateCancelled
	}
	c.mu.Unlock()

	turn.cancel()
	if body != nil {
		body.Close()
	}
	c.logger.Info("turn cancelled", "session_id", c.sessionID, "turn_id", turn.ID)
}

func (c *Controller) run(turn *Turn, req *agentapi.ChatRequest) {
	var outcome Outcome
	defer func() {
		if r := recover(); r != nil {
			outcome = c.fail(turn, fmt.Sprintf("stream panic: %v", r))
		}
		c.finish(turn, outcome)
	}()

	body, err := c.transport.OpenStream(turn.ctx, req)
	if err != nil {
		if c.isCancelled(turn) {
			outcome = Cancelled{}
			return
		}
		outcome = c.fail(turn, "network error: "+err.Error())
		return
	}
	defer body.Close()

	c.mu.Lock()
	if turn.cancelled {
		c.mu.Unlock()
		outcome = Cancelled{}
		return
	}
	turn.body = body
	c.mu.Unlock()

	outcome = c.pump(turn, body)
}

// pump reads body chunk by chunk in arrival order. Every event derived from
// a chunk is committed before the next read.
func (c *Controller) pump(turn *Turn, body io.Reader) Outcome {
	dec := stream.NewLineDecoder()
	tr := stream.NewTranslator(
		stream.WithClock(c.now),
		stream.WithMalformedHandler(func(line string, err error) {
			c.sink.Report(&diag.Entry{
				SessionID: c.sessionID,
				TurnID:    turn.ID,
				Kind:      diag.KindMalformedFrame,
				Message:   err.Error(),
				Line:      line,
				At:        c.now(),
			})
		}),
	)

	buf := make([]byte, c.readBuffer)
	streaming := false
	for {
		if c.isCancelled(turn) {
			return Cancelled{}
		}
		n, err := body.Read(buf)
		if n > 0 {
			if !streaming {
				streaming = true
				c.setState(turn, StateStreaming)
			}
			for _, line := range dec.Feed(buf[:n]) {
				ev, ok := tr.Translate(line)
				if !ok {
					continue
				}
				if outcome, stop := c.apply(turn, ev); stop {
					return outcome
				}
			}
		}
		if err == nil {
			continue
		}
		if c.isCancelled(turn) {
			return Cancelled{}
		}
		if errors.Is(err, io.EOF) {
			if c.eofPolicy == EOFFails {
				return c.fail(turn, "network error: stream ended before completion")
			}
			outcome, _ := c.apply(turn, stream.Completed{})
			return outcome
		}
		return c.fail(turn, "network error: "+err.Error())
	}
}

// apply commits ev to the transcript and publishes it. stop is true when the
// turn is over, either because ev is terminal or because the turn was
// cancelled before ev could be committed.
func (c *Controller) apply(turn *Turn, ev stream.Event) (outcome Outcome, stop bool) {
	if c.beforeApply != nil {
		c.beforeApply(ev)
	}

	if err := c.commit(turn, ev); err != nil {
		if errors.Is(err, errCancelled) {
			return Cancelled{}, true
		}
		return c.fail(turn, "contract violation: "+err.Error()), true
	}
	c.publish(turn, ev)

	switch ev := ev.(type) {
	case stream.Completed:
		return Completed{SessionID: ev.SessionID, UserID: ev.UserID}, true
	case stream.Failed:
		c.reportFailure(turn, ev.Reason)
		return Failed{Reason: ev.Reason}, true
	default:
		return nil, false
	}
}

var errCancelled = errors.New("turn cancelled")

func (c *Controller) commit(turn *Turn, ev stream.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if turn.cancelled {
		return errCancelled
	}
	_, err := c.store.Update(func(t transcript.Transcript) (transcript.Transcript, error) {
		return transcript.Reduce(t, ev)
	})
	return err
}

// fail flags the agent message and publishes a Failed event with reason.
func (c *Controller) fail(turn *Turn, reason string) Outcome {
	ev := stream.Failed{Reason: reason}
	if err := c.commit(turn, ev); err != nil {
		return Cancelled{}
	}
	c.publish(turn, ev)
	c.reportFailure(turn, reason)
	return Failed{Reason: reason}
}

func (c *Controller) reportFailure(turn *Turn, reason string) {
	c.sink.Report(&diag.Entry{
		SessionID: c.sessionID,
		TurnID:    turn.ID,
		Kind:      diag.KindTurnFailed,
		Message:   reason,
		At:        c.now(),
	})
}

func (c *Controller) finish(turn *Turn, outcome Outcome) {
	c.mu.Lock()
	if turn.cancelled || outcome == nil {
		outcome = Cancelled{}
	}
	turn.outcome = outcome
	turn.finished = true
	turn.body = nil
	if c.active == turn {
		c.active = nil
		c.state = stateOf(outcome)
	}
	c.mu.Unlock()

	turn.cancel()
	close(turn.done)

	attrs := []any{"session_id", c.sessionID, "turn_id", turn.ID, "outcome", stateOf(outcome)}
	if f, ok := outcome.(Failed); ok {
		attrs = append(attrs, "error", f.Reason)
	}
	c.logger.Info("turn finished", attrs...)
}

func (c *Controller) setState(turn *Turn, s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == turn {
		c.state = s
	}
}

func (c *Controller) isCancelled(turn *Turn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return turn.cancelled
}
