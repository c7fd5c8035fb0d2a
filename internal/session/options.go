package session

import (
	"log/slog"
	"time"

	"github.com/user/chatbridge/internal/diag"
	"github.com/user/chatbridge/internal/history"
	"github.com/user/chatbridge/internal/types"
)

// EOFPolicy decides the outcome of a stream that ends without a done or
// error frame.
type EOFPolicy int

const (
	// EOFCompletes treats a clean end of stream as a normal completion.
	EOFCompletes EOFPolicy = iota
	// EOFFails treats it as a network error.
	EOFFails
)

const defaultReadBuffer = 4096

// Option configures a Controller.
type Option func(*Controller)

// WithSessionID sets the conversation session ID sent with every turn.
// A random one is generated otherwise.
func WithSessionID(id types.SessionID) Option {
	return func(c *Controller) { c.sessionID = id }
}

// WithAgent sets the agent that receives the turns.
func WithAgent(agentID string) Option {
	return func(c *Controller) { c.agentID = agentID }
}

// WithModel sets the model ID forwarded to the agent.
func WithModel(modelID string) Option {
	return func(c *Controller) { c.modelID = modelID }
}

// WithUser sets the user ID forwarded to the agent.
func WithUser(userID string) Option {
	return func(c *Controller) { c.userID = userID }
}

// WithEOFPolicy sets how a stream ending without a terminal frame is treated.
func WithEOFPolicy(p EOFPolicy) Option {
	return func(c *Controller) { c.eofPolicy = p }
}

// WithHistory sets the builder that turns the transcript into request history.
func WithHistory(b *history.Builder) Option {
	return func(c *Controller) { c.history = b }
}

// WithDiagnostics sets the sink for malformed frames and failure reasons.
func WithDiagnostics(sink diag.Sink) Option {
	return func(c *Controller) { c.sink = sink }
}

// WithClock sets the time source for message and delta timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithReadBuffer sets the size of the buffer used to read the response body.
func WithReadBuffer(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.readBuffer = n
		}
	}
}

// WithLogger sets the logger. slog.Default is used otherwise.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) { c.logger = logger }
}
