package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(stopCmd, restartCmd)
}

var errNotRunning = errors.New("agent server is not running")

func pidPath(dataDir string) string {
	return filepath.Join(dataDir, "chatbridge.pid")
}

func writePIDFile(dataDir string) (string, error) {
	path := pidPath(dataDir)
	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0644); err != nil {
		return "", fmt.Errorf("write PID file: %w", err)
	}
	return path, nil
}

// findServer locates the `serve` process recorded in the PID file. A stale
// PID file yields errNotRunning.
func findServer() (*os.Process, error) {
	data, err := os.ReadFile(pidPath(loadConfig().DataDir))
	if errors.Is(err, os.ErrNotExist) {
		return nil, errNotRunning
	}
	if err != nil {
		return nil, fmt.Errorf("read PID file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("parse PID file: %w", err)
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return nil, fmt.Errorf("find process %d: %w", pid, err)
	}
	if proc.Signal(syscall.Signal(0)) != nil {
		return nil, fmt.Errorf("%w (stale PID %d)", errNotRunning, pid)
	}
	return proc, nil
}

func signalCmd(use, short string, sig syscall.Signal, done string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			proc, err := findServer()
			if err != nil {
				return err
			}
			if err := proc.Signal(sig); err != nil {
				return fmt.Errorf("signal PID %d: %w", proc.Pid, err)
			}
			fmt.Fprintf(os.Stdout, "%s (PID %d)\n", done, proc.Pid)
			return nil
		},
	}
}

var (
	stopCmd    = signalCmd("stop", "Stop the running agent server", syscall.SIGTERM, "Stopping agent server")
	restartCmd = signalCmd("restart", "Restart the running agent server", syscall.SIGHUP, "Restarting agent server")
)
