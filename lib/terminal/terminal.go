// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package terminal runs agent programs inside tmux panes and exposes
// each pane as a stream of plain-text output chunks plus an exit
// notification. The escape-sequence emulation itself is tmux's
// problem: foreman mirrors the pane through pipe-pane into a file,
// tails the file, and strips ANSI control sequences before anything
// downstream sees the bytes.
package terminal

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/charmbracelet/x/ansi"

	"github.com/bureau-foundation/foreman/lib/clock"
	"github.com/bureau-foundation/foreman/lib/tmux"
)

const (
	// paneWidth and paneHeight size every agent pane. Detection
	// patterns assume this fixed geometry; letting tmux pick a size
	// would make prompt wrapping depend on the daemon's own terminal.
	paneWidth  = 200
	paneHeight = 50

	// tailInterval is how often the tail goroutine re-reads the pipe
	// file after hitting EOF.
	tailInterval = 50 * time.Millisecond

	// exitPollInterval is how often the exit watcher queries pane
	// status.
	exitPollInterval = 250 * time.Millisecond

	// readBufferSize is the tail read granularity.
	readBufferSize = 32 * 1024
)

// OutputChunk is a batch of ANSI-stripped pane output. Text may end
// mid-line: TUI agents redraw prompts without trailing newlines, and
// those partial lines are exactly what prompt detection needs to see.
type OutputChunk struct {
	Text string
	Time time.Time
}

// Runner starts terminals on one tmux server. All pipe files live
// under its pipe directory, one per session.
type Runner struct {
	server  *tmux.Server
	pipeDir string
	clock   clock.Clock
	logger  *slog.Logger
}

// NewRunner creates a runner. pipeDir must exist and be writable; the
// tmux server side of pipe-pane runs `cat` with the daemon's
// privileges, so the directory should not be world-writable.
func NewRunner(server *tmux.Server, pipeDir string, clk clock.Clock, logger *slog.Logger) *Runner {
	return &Runner{
		server:  server,
		pipeDir: pipeDir,
		clock:   clk,
		logger:  logger,
	}
}

// StartSpec describes one terminal to start.
type StartSpec struct {
	// Name is the tmux session name, unique per runner.
	Name string

	// Command is the argv to run in the pane.
	Command []string

	// Workdir is the pane's working directory.
	Workdir string

	// Env is extra environment for the pane's command.
	Env map[string]string
}

// Start creates the tmux session, wires up output mirroring, and
// begins watching for process exit. The returned Terminal owns two
// goroutines (tail and exit watcher) until Cleanup is called.
func (r *Runner) Start(spec StartSpec) (*Terminal, error) {
	pipePath := filepath.Join(r.pipeDir, spec.Name+".out")

	// Create the pipe file up front so the tail can open it before
	// tmux writes the first byte.
	created, err := os.OpenFile(pipePath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, fmt.Errorf("creating pipe file: %w", err)
	}
	created.Close()

	reader, err := os.Open(pipePath)
	if err != nil {
		return nil, fmt.Errorf("opening pipe file: %w", err)
	}

	if err := r.server.NewSession(tmux.SessionSpec{
		Name:    spec.Name,
		Workdir: spec.Workdir,
		Env:     spec.Env,
		Command: spec.Command,
		Width:   paneWidth,
		Height:  paneHeight,
	}); err != nil {
		reader.Close()
		os.Remove(pipePath)
		return nil, err
	}

	// remain-on-exit keeps the dead pane around so the exit status
	// and final screen stay readable after the process ends.
	if err := r.server.SetOption(spec.Name, "remain-on-exit", "on"); err != nil {
		r.server.KillSession(spec.Name)
		reader.Close()
		os.Remove(pipePath)
		return nil, err
	}
	if err := r.server.PipePane(spec.Name, pipePath); err != nil {
		r.server.KillSession(spec.Name)
		reader.Close()
		os.Remove(pipePath)
		return nil, err
	}

	terminal := &Terminal{
		name:     spec.Name,
		server:   r.server,
		clock:    r.clock,
		logger:   r.logger.With("terminal", spec.Name),
		pipePath: pipePath,
		reader:   reader,
		output:   make(chan OutputChunk, 64),
		exited:   make(chan int, 1),
		paneDead: make(chan int, 1),
		done:     make(chan struct{}),
	}
	go terminal.tailLoop()
	go terminal.watchExit()
	return terminal, nil
}

// Terminal is one running (or exited) agent pane.
type Terminal struct {
	name     string
	server   *tmux.Server
	clock    clock.Clock
	logger   *slog.Logger
	pipePath string
	reader   *os.File

	output   chan OutputChunk
	exited   chan int
	paneDead chan int
	done     chan struct{}

	cleanupOnce sync.Once
}

// Name returns the tmux session name.
func (t *Terminal) Name() string { return t.name }

// Output returns the stream of ANSI-stripped output chunks. The
// channel is closed after the pane's final output has been delivered,
// before the exit code arrives on Exited.
func (t *Terminal) Output() <-chan OutputChunk { return t.output }

// Exited delivers the pane command's exit code exactly once, after
// Output has closed. Signal deaths follow the shell convention
// (128 + signal number).
func (t *Terminal) Exited() <-chan int { return t.exited }

// SendText types text into the pane followed by Enter.
func (t *Terminal) SendText(text string) error {
	return t.server.SendText(t.name, text)
}

// SendKeys sends raw key names to the pane.
func (t *Terminal) SendKeys(keys ...string) error {
	return t.server.SendKeys(t.name, keys...)
}

// Signal sends a signal to the pane's process for graceful shutdown.
func (t *Terminal) Signal(signal syscall.Signal) error {
	return t.server.SignalPane(t.name, signal)
}

// Capture returns the pane's current content straight from tmux,
// bypassing the pipe stream. Works on dead panes too.
func (t *Terminal) Capture(maxLines int) (string, error) {
	return t.server.CapturePane(t.name, maxLines)
}

// Kill terminates the pane's session immediately. Benign if the
// session is already gone.
func (t *Terminal) Kill() error {
	return t.server.KillSession(t.name)
}

// Cleanup stops the goroutines, closes the pipe, kills the session,
// and removes the pipe file. Idempotent.
func (t *Terminal) Cleanup() {
	t.cleanupOnce.Do(func() {
		close(t.done)
		t.server.ClosePipePane(t.name)
		t.server.KillSession(t.name)
		t.reader.Close()
		os.Remove(t.pipePath)
	})
}

// tailLoop follows the pipe file and emits stripped chunks. After the
// exit watcher reports pane death, one final drain pass runs before
// the output channel closes and the exit code is forwarded.
func (t *Terminal) tailLoop() {
	buffer := make([]byte, readBufferSize)
	ticker := t.clock.NewTicker(tailInterval)
	defer ticker.Stop()

	for {
		emitted, err := t.drain(buffer)
		if err != nil {
			t.logger.Warn("pipe read failed", "error", err)
		}

		select {
		case exitCode := <-t.paneDead:
			// Final pass: the pane flushed its last bytes before the
			// status poll saw it die, so one more drain catches them.
			if _, err := t.drain(buffer); err != nil {
				t.logger.Warn("final pipe drain failed", "error", err)
			}
			close(t.output)
			t.exited <- exitCode
			return
		case <-t.done:
			close(t.output)
			return
		default:
		}

		if !emitted {
			select {
			case <-ticker.C:
			case <-t.done:
				close(t.output)
				return
			case exitCode := <-t.paneDead:
				if _, err := t.drain(buffer); err != nil {
					t.logger.Warn("final pipe drain failed", "error", err)
				}
				close(t.output)
				t.exited <- exitCode
				return
			}
		}
	}
}

// drain reads the pipe file to EOF, emitting one chunk per read.
// Reports whether anything was emitted.
func (t *Terminal) drain(buffer []byte) (bool, error) {
	emitted := false
	for {
		n, err := t.reader.Read(buffer)
		if n > 0 {
			text := ansi.Strip(string(buffer[:n]))
			if text != "" {
				select {
				case t.output <- OutputChunk{Text: text, Time: t.clock.Now()}:
					emitted = true
				case <-t.done:
					return emitted, nil
				}
			}
		}
		if err == io.EOF {
			return emitted, nil
		}
		if err != nil {
			return emitted, err
		}
	}
}

// watchExit polls pane status until the process dies, then hands the
// exit code to the tail loop for ordered delivery.
func (t *Terminal) watchExit() {
	ticker := t.clock.NewTicker(exitPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
		}

		dead, exitCode, err := t.server.PaneStatus(t.name)
		if err != nil {
			// The session vanishing out from under us (external
			// kill-session) surfaces as a query error. Report it as a
			// signal-style death so the session manager can record an
			// error status rather than hanging.
			select {
			case <-t.done:
				return
			default:
			}
			t.logger.Warn("pane status query failed", "error", err)
			t.paneDead <- 128 + int(syscall.SIGKILL)
			return
		}
		if dead {
			t.paneDead <- exitCode
			return
		}
	}
}
