package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/user/chatbridge/internal/agentserver"
	"github.com/user/chatbridge/internal/config"
	"github.com/user/chatbridge/pkg/llm"
	"github.com/user/chatbridge/pkg/llm/openai"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the reference agent server",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

// serveAgents returns the agents `serve` registers: echo always, and the
// assistant when an LLM API key is configured.
func serveAgents(cfg *config.Config) []agentserver.Agent {
	agents := []agentserver.Agent{&agentserver.Echo{}}
	if cfg.LLM.APIKey == "" {
		slog.Warn("assistant agent disabled (no llm.api_key)")
		return agents
	}
	provider := openai.New(&llm.Config{
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
	})
	return append(agents, &agentserver.Assistant{Provider: provider, SystemPrompt: cfg.LLM.SystemPrompt})
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	setupLogging(cfg)

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	pidFile, err := writePIDFile(cfg.DataDir)
	if err != nil {
		return err
	}
	defer os.Remove(pidFile)

	agents := serveAgents(cfg)

	httpServer := &http.Server{
		Addr:              cfg.HTTP.Listen,
		Handler:           agentserver.NewServer(agents, int64(cfg.HTTP.MaxConcurrent)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	restart := false
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("agent server started",
			"listen", cfg.HTTP.Listen,
			"agents", len(agents),
			"max_concurrent", cfg.HTTP.MaxConcurrent,
			"pid_file", pidFile,
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		select {
		case <-gctx.Done():
		case <-hup:
			slog.Info("received SIGHUP, restarting")
			restart = true
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	if !restart {
		slog.Info("shutting down")
		return nil
	}

	execPath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("get executable path: %w", err)
	}
	os.Remove(pidFile)
	return syscall.Exec(execPath, os.Args, os.Environ())
}
