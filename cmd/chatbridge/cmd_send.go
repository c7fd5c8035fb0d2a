package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/chatbridge/internal/session"
	"github.com/user/chatbridge/internal/types"
	"github.com/user/chatbridge/pkg/agentapi"
)

var (
	sendAgent    string
	sendTimeout  time.Duration
	sendNoStream bool
)

func init() {
	sendCmd.Flags().StringVarP(&sendAgent, "agent", "a", "", "agent ID (defaults to agent.id)")
	sendCmd.Flags().DurationVar(&sendTimeout, "timeout", 0, "cancel the reply after this long (0 = no limit)")
	sendCmd.Flags().BoolVar(&sendNoStream, "no-stream", false, "wait for the full reply instead of streaming")
	rootCmd.AddCommand(sendCmd)
}

var sendCmd = &cobra.Command{
	Use:   "send <message>",
	Short: "Send one message and print the streamed reply",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		setupLogging(cfg)

		agentID := cfg.Agent.ID
		if sendAgent != "" {
			agentID = sendAgent
		}
		text := strings.Join(args, " ")

		ctx := context.Background()
		if sendTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, sendTimeout)
			defer cancel()
		}

		if sendNoStream {
			resp, err := newClient(cfg).Chat(ctx, &agentapi.ChatRequest{
				Messages:  []agentapi.Message{{Role: agentapi.RoleUser, Content: text}},
				AgentID:   agentapi.NormalizeAgentID(agentID),
				ModelID:   cfg.Agent.ModelID,
				UserID:    cfg.Agent.UserID,
				SessionID: string(types.NewSessionID()),
			})
			if err != nil {
				return err
			}
			fmt.Println(resp.Message.Content)
			return nil
		}

		ctl, err := newController(cfg, agentID)
		if err != nil {
			return err
		}
		events, unsubscribe := ctl.Subscribe()
		defer unsubscribe()

		interrupt := make(chan os.Signal, 1)
		signal.Notify(interrupt, os.Interrupt)
		defer signal.Stop(interrupt)

		turn, err := ctl.StartTurn(ctx, text)
		if err != nil {
			return err
		}
		switch outcome := renderTurn(ctl, turn, events, os.Stdout, interrupt).(type) {
		case session.Failed:
			return fmt.Errorf("turn failed: %s", outcome.Reason)
		case session.Cancelled:
			return fmt.Errorf("turn cancelled")
		}
		return nil
	},
}
