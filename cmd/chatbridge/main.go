package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/user/chatbridge/internal/config"
	"github.com/user/chatbridge/internal/diag"
	"github.com/user/chatbridge/internal/history"
	"github.com/user/chatbridge/internal/session"
	"github.com/user/chatbridge/internal/transcript"
	"github.com/user/chatbridge/pkg/agentapi"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:           "chatbridge",
	Short:         "Stream chat turns from agent backends",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", filepath.Join(os.Getenv("HOME"), ".chatbridge", "config.json"), "config file path")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func loadConfig() *config.Config {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func setupLogging(cfg *config.Config) {
	var level slog.Level
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func newClient(cfg *config.Config) *agentapi.Client {
	return agentapi.New(&agentapi.Config{
		BaseURL:     cfg.Server.BaseURL,
		Token:       cfg.Server.Token,
		MaxAttempts: cfg.Server.MaxAttempts,
	})
}

// newController wires a session controller for agentID from cfg.
func newController(cfg *config.Config, agentID string) (*session.Controller, error) {
	opts := []session.Option{
		session.WithAgent(agentapi.NormalizeAgentID(agentID)),
		session.WithModel(cfg.Agent.ModelID),
		session.WithUser(cfg.Agent.UserID),
		session.WithReadBuffer(cfg.Stream.ReadBuffer),
	}
	if cfg.Stream.EOFAsFailure {
		opts = append(opts, session.WithEOFPolicy(session.EOFFails))
	}

	if cfg.History.MaxTokens > 0 {
		counter, err := history.NewTiktoken(cfg.History.Model)
		if err != nil {
			return nil, fmt.Errorf("create token counter: %w", err)
		}
		opts = append(opts, session.WithHistory(history.New(history.WithTokenBudget(counter, cfg.History.MaxTokens))))
	}

	var sink diag.Sink = diag.NewLogger(slog.Default())
	if cfg.Stream.Trace {
		sink = diag.Multi{sink, diag.NewRecorder(cfg.DiagnosticsDir())}
	}
	opts = append(opts, session.WithDiagnostics(sink))

	return session.New(newClient(cfg), transcript.NewStore(), opts...), nil
}
