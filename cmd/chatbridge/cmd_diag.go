package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/user/chatbridge/internal/diag"
	"github.com/user/chatbridge/internal/types"
)

var diagLimit int

func init() {
	diagTailCmd.Flags().IntVarP(&diagLimit, "limit", "n", 50, "number of entries to show")
	rootCmd.AddCommand(diagCmd)
	diagCmd.AddCommand(diagListCmd, diagTailCmd)
}

var diagCmd = &cobra.Command{
	Use:   "diag",
	Short: "Inspect recorded stream diagnostics (stream.trace)",
}

var diagListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions with recorded diagnostics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rec := diag.NewRecorder(loadConfig().DiagnosticsDir())
		ctx := context.Background()

		ids, err := rec.Sessions(ctx)
		if err != nil {
			return fmt.Errorf("list sessions: %w", err)
		}
		if len(ids) == 0 {
			fmt.Println("No diagnostics recorded.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "SESSION\tENTRIES\tLAST")
		for _, id := range ids {
			entries, err := rec.Tail(ctx, id, 1)
			if err != nil || len(entries) == 0 {
				continue
			}
			last := entries[0]
			fmt.Fprintf(w, "%s\t%d\t%s\n", id, last.Seq, last.At.Format("2006-01-02 15:04:05"))
		}
		return w.Flush()
	},
}

var diagTailCmd = &cobra.Command{
	Use:   "tail <session-id>",
	Short: "Show the latest diagnostics of a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rec := diag.NewRecorder(loadConfig().DiagnosticsDir())

		entries, err := rec.Tail(context.Background(), types.SessionID(args[0]), diagLimit)
		if err != nil {
			return fmt.Errorf("tail diagnostics: %w", err)
		}
		if len(entries) == 0 {
			fmt.Println("No diagnostics recorded for this session.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "SEQ\tTIME\tTURN\tKIND\tMESSAGE\tLINE")
		for _, e := range entries {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%q\n",
				e.Seq,
				e.At.Format("15:04:05"),
				e.TurnID,
				e.Kind,
				e.Message,
				e.Line,
			)
		}
		return w.Flush()
	},
}
