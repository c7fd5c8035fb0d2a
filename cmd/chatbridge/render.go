package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/user/chatbridge/internal/session"
	"github.com/user/chatbridge/pkg/stream"
)

// renderTurn prints the events of turn to out as they arrive and returns
// the turn's outcome. A value on interrupt cancels the turn.
func renderTurn(ctl *session.Controller, turn *session.Turn, events <-chan stream.Event, out io.Writer, interrupt <-chan os.Signal) session.Outcome {
	for {
		select {
		case ev := <-events:
			renderEvent(out, ev)
		case <-interrupt:
			ctl.Cancel()
		case <-turn.Done():
			// Events committed before the turn ended are already buffered.
		drain:
			for {
				select {
				case ev := <-events:
					renderEvent(out, ev)
				default:
					break drain
				}
			}
			outcome := turn.Wait(context.Background())
			if _, ok := outcome.(session.Cancelled); ok {
				fmt.Fprintln(out, "\n[cancelled]")
			}
			return outcome
		}
	}
}

func renderEvent(out io.Writer, ev stream.Event) {
	switch ev := ev.(type) {
	case stream.ContentDelta:
		fmt.Fprint(out, ev.Text)
	case stream.Completed:
		fmt.Fprintln(out)
	case stream.Failed:
		fmt.Fprintf(out, "\n[error: %s] send the message again to retry\n", ev.Reason)
	}
}
