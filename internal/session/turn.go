package session

import (
	"context"
	"io"

	"github.com/user/chatbridge/internal/types"
)

// Turn is one user message and the agent's streamed reply to it.
type Turn struct {
	ID types.TurnID

	ctl    *Controller
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	// guarded by ctl.mu
	body      io.ReadCloser
	cancelled bool
	finished  bool
	outcome   Outcome
}

// Done is closed when the turn has reached its outcome.
func (t *Turn) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the turn ends and returns its outcome. If ctx is done
// first the turn is cancelled, so a deadline on ctx bounds the turn.
func (t *Turn) Wait(ctx context.Context) Outcome {
	select {
	case <-t.done:
	case <-ctx.Done():
		t.ctl.cancelTurn(t)
		<-t.done
	}

	t.ctl.mu.Lock()
	defer t.ctl.mu.Unlock()
	return t.outcome
}
