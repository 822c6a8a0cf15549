// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"time"
)

// StrategyEventType names an event pushed by an execution strategy.
type StrategyEventType string

const (
	// StrategyOutput carries one chunk of terminal output.
	StrategyOutput StrategyEventType = "output"

	// StrategyExited reports a session's process exit.
	StrategyExited StrategyEventType = "exited"

	// StrategySessionError reports a fault that killed one session
	// without killing its strategy.
	StrategySessionError StrategyEventType = "session_error"

	// StrategyWorkerExit reports the worker process dying. The
	// strategy is unusable afterwards; every session it owned is
	// lost.
	StrategyWorkerExit StrategyEventType = "worker_exit"
)

// StrategyEvent is one push from an execution strategy. Only the
// fields for the event's type are meaningful.
type StrategyEvent struct {
	Type      StrategyEventType
	SessionID string

	// StrategyOutput.
	Text string
	Time time.Time

	// StrategyExited and StrategyWorkerExit.
	ExitCode int

	// StrategyWorkerExit. Zero when the worker exited normally.
	Signal int

	// StrategySessionError.
	Message string
}

// SpawnSpec describes one agent process for a strategy to start.
type SpawnSpec struct {
	// SessionID keys every later call and event for this session.
	SessionID string

	// Name is the terminal name (the tmux session name).
	Name string

	// Command is the agent argv.
	Command []string

	// Workdir is the process's working directory. Boot files have
	// already been written there.
	Workdir string

	// Env is extra environment for the agent process.
	Env map[string]string
}

// Strategy runs agent processes on behalf of the Manager. The two
// implementations, InProcess and Worker, emit the same event
// vocabulary so the Manager never knows which one it holds.
//
// Methods are safe for concurrent use. Events returns a channel that
// is never closed; it goes quiet after Close.
type Strategy interface {
	// Spawn starts the agent process. It returns once the process
	// handle exists, which may be before the agent is ready.
	Spawn(ctx context.Context, spec SpawnSpec) error

	// Send types text followed by Enter into the session's terminal.
	Send(ctx context.Context, sessionID, text string) error

	// SendKeys sends raw key names (tmux key syntax) to the terminal.
	SendKeys(ctx context.Context, sessionID string, keys []string) error

	// Signal delivers a numeric signal to the session's process
	// group, for graceful termination ahead of Stop.
	Signal(ctx context.Context, sessionID string, signal int) error

	// Stop kills the session's process. The strategy still emits the
	// session's exited event afterwards and then releases its
	// resources.
	Stop(ctx context.Context, sessionID string) error

	// Capture returns the session's current pane content, trailing
	// maxLines lines (zero for the whole visible history).
	Capture(ctx context.Context, sessionID string, maxLines int) (string, error)

	// Events is the strategy's push channel.
	Events() <-chan StrategyEvent

	// Close stops all sessions and releases the strategy. Idempotent.
	Close() error
}
