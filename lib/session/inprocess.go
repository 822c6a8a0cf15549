// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"syscall"

	"github.com/bureau-foundation/foreman/lib/terminal"
)

// InProcess runs agent terminals directly in this process through a
// terminal.Runner. It is the strategy of choice when the daemon host
// has a usable tmux; the Worker strategy exists for hosts that need
// session processes isolated from the daemon.
type InProcess struct {
	runner *terminal.Runner
	logger *slog.Logger
	events chan StrategyEvent
	closed chan struct{}

	mu        sync.Mutex
	closing   bool
	terminals map[string]*terminal.Terminal

	forwarders sync.WaitGroup
}

// NewInProcess wraps a terminal runner as an execution strategy.
func NewInProcess(runner *terminal.Runner, logger *slog.Logger) *InProcess {
	return &InProcess{
		runner:    runner,
		logger:    logger,
		events:    make(chan StrategyEvent, 256),
		closed:    make(chan struct{}),
		terminals: make(map[string]*terminal.Terminal),
	}
}

// Spawn starts the agent terminal and begins forwarding its output
// and exit as strategy events.
func (p *InProcess) Spawn(ctx context.Context, spec SpawnSpec) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	if p.closing {
		p.mu.Unlock()
		return fmt.Errorf("strategy closed")
	}
	if _, exists := p.terminals[spec.SessionID]; exists {
		p.mu.Unlock()
		return fmt.Errorf("session %s already spawned", spec.SessionID)
	}
	p.mu.Unlock()

	term, err := p.runner.Start(terminal.StartSpec{
		Name:    spec.Name,
		Command: spec.Command,
		Workdir: spec.Workdir,
		Env:     spec.Env,
	})
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.terminals[spec.SessionID] = term
	p.mu.Unlock()

	p.forwarders.Add(1)
	go p.forward(spec.SessionID, term)
	return nil
}

// forward pumps one terminal's output into the shared event channel,
// then its exit code, then releases the terminal.
func (p *InProcess) forward(sessionID string, term *terminal.Terminal) {
	defer p.forwarders.Done()

	for chunk := range term.Output() {
		p.emit(StrategyEvent{
			Type:      StrategyOutput,
			SessionID: sessionID,
			Text:      chunk.Text,
			Time:      chunk.Time,
		})
	}

	// The terminal closes its output channel and then delivers the
	// exit code, unless Close tore it down first.
	select {
	case code := <-term.Exited():
		p.emit(StrategyEvent{
			Type:      StrategyExited,
			SessionID: sessionID,
			ExitCode:  code,
		})
	case <-p.closed:
	}

	p.mu.Lock()
	delete(p.terminals, sessionID)
	p.mu.Unlock()
	term.Cleanup()
}

func (p *InProcess) emit(event StrategyEvent) {
	select {
	case p.events <- event:
	case <-p.closed:
	}
}

func (p *InProcess) terminal(sessionID string) (*terminal.Terminal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	term, ok := p.terminals[sessionID]
	if !ok {
		return nil, fmt.Errorf("no terminal for session %s", sessionID)
	}
	return term, nil
}

// Send types text plus Enter into the session's terminal.
func (p *InProcess) Send(ctx context.Context, sessionID, text string) error {
	term, err := p.terminal(sessionID)
	if err != nil {
		return err
	}
	return term.SendText(text)
}

// SendKeys sends raw key names to the session's terminal.
func (p *InProcess) SendKeys(ctx context.Context, sessionID string, keys []string) error {
	term, err := p.terminal(sessionID)
	if err != nil {
		return err
	}
	return term.SendKeys(keys...)
}

// Signal delivers a signal to the session's process group.
func (p *InProcess) Signal(ctx context.Context, sessionID string, signal int) error {
	term, err := p.terminal(sessionID)
	if err != nil {
		return err
	}
	return term.Signal(syscall.Signal(signal))
}

// Stop kills the session's terminal. The exited event still arrives
// through the forwarder, which releases the terminal afterwards.
func (p *InProcess) Stop(ctx context.Context, sessionID string) error {
	term, err := p.terminal(sessionID)
	if err != nil {
		return err
	}
	return term.Kill()
}

// Capture returns the session's current pane content.
func (p *InProcess) Capture(ctx context.Context, sessionID string, maxLines int) (string, error) {
	term, err := p.terminal(sessionID)
	if err != nil {
		return "", err
	}
	return term.Capture(maxLines)
}

// Events is the strategy's push channel. It is never closed.
func (p *InProcess) Events() <-chan StrategyEvent {
	return p.events
}

// Close tears down every terminal and stops the forwarders.
// Idempotent.
func (p *InProcess) Close() error {
	p.mu.Lock()
	if p.closing {
		p.mu.Unlock()
		return nil
	}
	p.closing = true
	terminals := make([]*terminal.Terminal, 0, len(p.terminals))
	for _, term := range p.terminals {
		terminals = append(terminals, term)
	}
	p.mu.Unlock()

	close(p.closed)
	for _, term := range terminals {
		term.Cleanup()
	}
	p.forwarders.Wait()
	return nil
}
