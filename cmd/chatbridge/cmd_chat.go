package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/user/chatbridge/internal/session"
)

var chatAgent string

func init() {
	chatCmd.Flags().StringVarP(&chatAgent, "agent", "a", "", "agent ID (defaults to agent.id)")
	rootCmd.AddCommand(chatCmd)
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Interactive streamed conversation with an agent",
	Long: `Interactive streamed conversation with an agent.

Ctrl-C cancels the reply in progress, or exits when idle.
Commands: /transcript prints the conversation as YAML, /quit exits.`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	setupLogging(cfg)

	agentID := cfg.Agent.ID
	if chatAgent != "" {
		agentID = chatAgent
	}
	ctl, err := newController(cfg, agentID)
	if err != nil {
		return err
	}
	view := ctl.View()
	events, unsubscribe := ctl.Subscribe()
	defer unsubscribe()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	defer signal.Stop(interrupt)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	fmt.Printf("Chatting with %s (session %s). /quit to exit.\n", agentID, ctl.SessionID())
	for {
		fmt.Print("> ")

		var line string
		select {
		case <-interrupt:
			fmt.Println()
			return nil
		case l, ok := <-lines:
			if !ok {
				fmt.Println()
				return nil
			}
			line = strings.TrimSpace(l)
		}

		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/transcript":
			out, err := yaml.Marshal(view.Snapshot().Messages())
			if err != nil {
				return fmt.Errorf("marshal transcript: %w", err)
			}
			os.Stdout.Write(out)
			continue
		}

		turn, err := ctl.StartTurn(context.Background(), line)
		if err != nil {
			if errors.Is(err, session.ErrTurnInProgress) {
				fmt.Println("[a reply is still streaming]")
				continue
			}
			return err
		}
		renderTurn(ctl, turn, events, os.Stdout, interrupt)
	}
}
