// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// foreman-worker hosts agent terminals in a process separate from the
// daemon. The daemon spawns it under the worker execution strategy,
// sends request frames over stdin, and receives responses and pushed
// events over stdout as self-delimiting CBOR. Logs go to stderr, which
// the daemon leaves connected to its own stderr.
//
// The worker runs a private tmux server under its state directory, so
// agent sessions never mix with the daemon's host tmux or the
// operator's. On shutdown (stdin EOF, shutdown request, or SIGTERM)
// it kills every pane and then the tmux server before exiting.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/bureau-foundation/foreman/lib/clock"
	"github.com/bureau-foundation/foreman/lib/terminal"
	"github.com/bureau-foundation/foreman/lib/tmux"
	"github.com/bureau-foundation/foreman/lib/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "foreman-worker: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		stateDir    string
		tmuxConfig  string
		showVersion bool
	)
	flag.StringVar(&stateDir, "state-dir", "", "directory for the worker's tmux socket and pipe files (required)")
	flag.StringVar(&tmuxConfig, "tmux-config", "", "optional tmux configuration file (default: none)")
	flag.BoolVar(&showVersion, "version", false, "print version information and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("foreman-worker %s\n", version.Info())
		return nil
	}
	if stateDir == "" {
		return fmt.Errorf("--state-dir is required")
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// The pipe directory must not be world-writable: the tmux side of
	// pipe-pane runs with this process's privileges.
	pipeDir := filepath.Join(stateDir, "pipes")
	if err := os.MkdirAll(pipeDir, 0o700); err != nil {
		return fmt.Errorf("creating pipe directory: %w", err)
	}

	server := tmux.NewServer(filepath.Join(stateDir, "tmux.sock"), tmuxConfig)
	runner := terminal.NewRunner(server, pipeDir, clock.Real(), logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	worker := newWorker(runner, os.Stdout, logger)
	worker.run(ctx, os.Stdin)

	// The tmux server is private to this worker; take it down too.
	if err := server.KillServer(); err != nil {
		logger.Warn("tmux server kill failed", "error", err)
	}
	logger.Info("worker exiting")
	return nil
}
