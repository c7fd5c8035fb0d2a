// Package diag is the diagnostic side channel of the stream pipeline.
// Malformed frames and turn failure reasons are reported here instead of
// on the event stream.
package diag

import (
	"log/slog"
	"time"

	"github.com/user/chatbridge/internal/types"
)

// Kind classifies a diagnostic entry.
type Kind string

const (
	KindMalformedFrame Kind = "malformed_frame"
	KindTurnFailed     Kind = "turn_failed"
)

// Entry is one diagnostic record.
type Entry struct {
	Seq       int64           `json:"seq"`
	SessionID types.SessionID `json:"session_id"`
	TurnID    types.TurnID    `json:"turn_id,omitempty"`
	Kind      Kind            `json:"kind"`
	Message   string          `json:"message"`
	Line      string          `json:"line,omitempty"`
	At        time.Time       `json:"at"`
}

// Sink receives diagnostic entries. Report must not block for long; it is
// called from the stream pipeline.
type Sink interface {
	Report(e *Entry)
}

// Logger reports entries through slog at WARN level.
type Logger struct {
	logger *slog.Logger
}

// NewLogger returns a Sink writing to logger, or to slog.Default when nil.
func NewLogger(logger *slog.Logger) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logger{logger: logger}
}

// Report implements Sink.
func (l *Logger) Report(e *Entry) {
	attrs := []any{
		"kind", e.Kind,
		"session_id", e.SessionID,
		"turn_id", e.TurnID,
	}
	if e.Line != "" {
		attrs = append(attrs, "line", e.Line)
	}
	l.logger.Warn(e.Message, attrs...)
}

// Multi fans an entry out to every sink in order.
type Multi []Sink

// Report implements Sink.
func (m Multi) Report(e *Entry) {
	for _, s := range m {
		s.Report(e)
	}
}
