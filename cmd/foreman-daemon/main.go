// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Foreman-daemon is the long-running orchestration process. It owns the
// session manager, the coordinator, and the HTTP control surface that
// the foreman CLI talks to.
//
// On startup:
//  1. Loads configuration (--config flag or FOREMAN_CONFIG).
//  2. Builds the terminal execution strategy: an in-process tmux runner
//     or a foreman-worker subprocess, per strategy.kind.
//  3. Registers agent adapters: the built-in claude and codex adapters
//     plus any manifests in the adapter directory.
//  4. Opens the sealed credential bundle and the archive store when
//     configured.
//  5. Starts the coordinator against the configured reasoning provider
//     and serves the HTTP API until SIGINT/SIGTERM.
//
// Shutdown drains the HTTP server, closes the coordinator, stops every
// session through the manager, and kills the private tmux server when
// tmux.kill_on_exit is set.
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

	"github.com/bureau-foundation/foreman/lib/adapter"
	"github.com/bureau-foundation/foreman/lib/archive"
	"github.com/bureau-foundation/foreman/lib/clock"
	"github.com/bureau-foundation/foreman/lib/config"
	"github.com/bureau-foundation/foreman/lib/coordinator"
	"github.com/bureau-foundation/foreman/lib/httpapi"
	"github.com/bureau-foundation/foreman/lib/llm"
	"github.com/bureau-foundation/foreman/lib/rules"
	"github.com/bureau-foundation/foreman/lib/sealed"
	"github.com/bureau-foundation/foreman/lib/secret"
	"github.com/bureau-foundation/foreman/lib/session"
	"github.com/bureau-foundation/foreman/lib/stall"
	"github.com/bureau-foundation/foreman/lib/terminal"
	"github.com/bureau-foundation/foreman/lib/tmux"
	"github.com/bureau-foundation/foreman/lib/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "foreman-daemon: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath  string
		showVersion bool
	)
	flag.StringVar(&configPath, "config", "", "path to foreman.yaml (default: $FOREMAN_CONFIG)")
	flag.BoolVar(&showVersion, "version", false, "print version information and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("foreman-daemon %s\n", version.Info())
		return nil
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.EnsurePaths(); err != nil {
		return fmt.Errorf("creating data directories: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clk := clock.Real()

	// Terminal execution strategy. The in-process strategy shares the
	// daemon's lifetime and its tmux server; the worker strategy runs a
	// foreman-worker subprocess with a private state directory so the
	// terminal layer can crash without taking the daemon down.
	var strategy session.Strategy
	var tmuxServer *tmux.Server
	switch cfg.Strategy.Kind {
	case config.StrategyInProcess:
		// The pipe directory must not be world-writable: the tmux side
		// of pipe-pane runs with the daemon's privileges.
		pipeDir := filepath.Join(cfg.Paths.State, "pipes")
		if err := os.MkdirAll(pipeDir, 0o700); err != nil {
			return fmt.Errorf("creating pipe directory: %w", err)
		}
		tmuxServer = tmux.NewServer(cfg.Tmux.Socket, cfg.Tmux.ConfigFile)
		runner := terminal.NewRunner(tmuxServer, pipeDir, clk, logger)
		strategy = session.NewInProcess(runner, logger)
	case config.StrategyWorker:
		args := []string{"--state-dir", filepath.Join(cfg.Paths.State, "worker")}
		if cfg.Tmux.ConfigFile != "" {
			args = append(args, "--tmux-config", cfg.Tmux.ConfigFile)
		}
		worker, err := session.StartWorker(cfg.Strategy.WorkerBinary, args, clk, logger)
		if err != nil {
			return fmt.Errorf("starting worker %s: %w", cfg.Strategy.WorkerBinary, err)
		}
		strategy = worker
	}

	registry := adapter.Builtin()
	if cfg.Paths.Adapters != "" {
		if err := adapter.LoadDir(registry, cfg.Paths.Adapters); err != nil {
			return fmt.Errorf("loading adapter manifests from %s: %w", cfg.Paths.Adapters, err)
		}
	}

	// One provider serves both coordinator decisions and stall
	// classification. The API key stays out of the config file; only
	// the variable name is configured.
	apiKey := ""
	if cfg.Provider.APIKeyEnv != "" {
		apiKey = os.Getenv(cfg.Provider.APIKeyEnv)
		if apiKey == "" {
			logger.Warn("provider API key environment variable is empty",
				"variable", cfg.Provider.APIKeyEnv)
		}
	}
	var provider llm.Provider
	switch cfg.Provider.Kind {
	case config.ProviderAnthropic:
		provider = llm.NewAnthropic(nil, cfg.Provider.BaseURL, apiKey)
	case config.ProviderOpenAI:
		provider = llm.NewOpenAI(nil, cfg.Provider.BaseURL, apiKey)
	}

	classifier := stall.NewLLMClassifier(stall.LLMClassifierConfig{
		Provider:    provider,
		Model:       cfg.Provider.Model,
		OutputLimit: cfg.Session.StallWindow,
		Logger:      logger,
	})

	// Credential bundle, when configured. Bundle.Rules turns credential
	// names from spawn requests into once auto-response rules.
	var credentialRules func(names []string) ([]rules.Rule, error)
	if cfg.Credentials.Bundle != "" {
		bundle, err := sealed.OpenBundle(cfg.Credentials.Bundle, cfg.Credentials.Identity)
		if err != nil {
			return fmt.Errorf("opening credential bundle: %w", err)
		}
		defer bundle.Close()
		credentialRules = bundle.Rules
		logger.Info("credential bundle open",
			"path", cfg.Credentials.Bundle,
			"credentials", len(bundle.Names()))
	}

	var archiveKey *secret.Buffer
	if cfg.Archive.KeyFile != "" {
		loaded, err := archive.LoadKey(cfg.Archive.KeyFile)
		if err != nil {
			return fmt.Errorf("loading archive key: %w", err)
		}
		archiveKey = loaded
	}
	store, err := archive.NewStore(cfg.Paths.Archives, archiveKey)
	if err != nil {
		return fmt.Errorf("opening archive store: %w", err)
	}
	defer store.Close()

	// The manager's OnFinish hook reads coordinator state, and the
	// coordinator is built against the manager. The archiver bridges
	// the cycle: it captures the coordinator after construction.
	recorder := &archiver{store: store, clock: clk, logger: logger}

	manager, err := session.NewManager(session.Config{
		Strategy:        strategy,
		Adapters:        registry,
		Clock:           clk,
		Logger:          logger,
		Classifier:      classifier,
		ScrollbackLines: cfg.Session.ScrollbackLines,
		StallTimeout:    cfg.Session.StallTimeout.Std(),
		SettleDelay:     cfg.Session.SettleDelay.Std(),
		CompleteSettle:  cfg.Session.CompleteSettle.Std(),
		StopGrace:       cfg.Session.StopGrace.Std(),
		BaseRules:       cfg.Rules.Base,
		AgentRules:      cfg.Rules.Agents,
		OnFinish:        recorder.finish,
	})
	if err != nil {
		return fmt.Errorf("building session manager: %w", err)
	}
	defer manager.Close()

	supervision, err := coordinator.ParseSupervision(cfg.Coordinator.Supervision)
	if err != nil {
		return fmt.Errorf("coordinator supervision: %w", err)
	}
	coord, err := coordinator.New(coordinator.Config{
		Model:           cfg.Provider.Model,
		MaxTokens:       cfg.Provider.MaxTokens,
		IdleInterval:    cfg.Coordinator.IdleInterval.Std(),
		IdleGrowth:      cfg.Coordinator.IdleGrowth,
		MaxIdleChecks:   cfg.Coordinator.MaxIdleChecks,
		HistoryWindow:   cfg.Coordinator.HistoryWindow,
		OutputTailLines: cfg.Coordinator.OutputTailLines,
		DecisionTimeout: cfg.Coordinator.DecisionTimeout.Std(),
		Supervision:     supervision,
		Prompts:         cfg.Coordinator.Prompts,
	}, manager, provider, clk, logger)
	if err != nil {
		return fmt.Errorf("building coordinator: %w", err)
	}
	defer coord.Close()
	recorder.coordinator = coord

	server, err := httpapi.New(httpapi.Config{
		Address:           cfg.Listen.Address,
		Sessions:          manager,
		Coordinator:       coord,
		CredentialRules:   credentialRules,
		HeartbeatInterval: cfg.Listen.HeartbeatInterval.Std(),
		ShutdownTimeout:   cfg.Listen.ShutdownTimeout.Std(),
		Clock:             clk,
		Logger:            logger,
	})
	if err != nil {
		return fmt.Errorf("building HTTP server: %w", err)
	}

	logger.Info("foreman-daemon starting",
		"version", version.Short(),
		"address", cfg.Listen.Address,
		"strategy", cfg.Strategy.Kind,
		"provider", cfg.Provider.Kind,
		"model", cfg.Provider.Model,
		"supervision", string(supervision),
	)

	serveErr := server.Serve(ctx)

	// Ordered teardown: coordinator first so no reasoning call acts on
	// a dying session, then the manager (which stops every session and
	// archives them through OnFinish), then the archive drain. The
	// deferred closes above re-run as no-ops; they exist for the error
	// paths during construction.
	logger.Info("shutting down")
	if err := coord.Close(); err != nil {
		logger.Warn("coordinator close failed", "error", err)
	}
	if err := manager.Close(); err != nil {
		logger.Warn("session manager close failed", "error", err)
	}
	recorder.wait()

	if tmuxServer != nil && cfg.Tmux.KillOnExit {
		if err := tmuxServer.KillServer(); err != nil {
			logger.Warn("tmux server kill failed", "error", err)
		}
	}

	return serveErr
}
