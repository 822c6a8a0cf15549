// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"syscall"

	"github.com/bureau-foundation/foreman/lib/codec"
	"github.com/bureau-foundation/foreman/lib/terminal"
	"github.com/bureau-foundation/foreman/lib/version"
	"github.com/bureau-foundation/foreman/lib/workerproto"
)

// worker owns the terminals and the frame channel. Requests run
// concurrently; response and event writes share one encoder behind a
// mutex, so frames never interleave on the wire.
type worker struct {
	runner *terminal.Runner
	logger *slog.Logger

	writeMu sync.Mutex
	encoder *codec.Encoder

	mu        sync.Mutex
	closing   bool
	terminals map[string]*terminal.Terminal

	forwarders sync.WaitGroup

	// quit is closed by a shutdown request. quitting is closed when
	// teardown begins, releasing forwarders stuck on their exit wait.
	quit     chan struct{}
	quitOnce sync.Once
	quitting chan struct{}

	// fatal is closed when stdout becomes unwritable: the daemon is
	// gone and the worker has nothing left to talk to.
	fatal     chan struct{}
	fatalOnce sync.Once
}

func newWorker(runner *terminal.Runner, out io.Writer, logger *slog.Logger) *worker {
	return &worker{
		runner:    runner,
		logger:    logger,
		encoder:   codec.NewEncoder(out),
		terminals: make(map[string]*terminal.Terminal),
		quit:      make(chan struct{}),
		quitting:  make(chan struct{}),
		fatal:     make(chan struct{}),
	}
}

// run announces the worker, serves requests until the stream or the
// context ends, and tears every terminal down before returning.
func (w *worker) run(ctx context.Context, in io.Reader) {
	hello, err := workerproto.NewEvent(workerproto.EventHello, workerproto.HelloEvent{
		Version: version.Short(),
		PID:     os.Getpid(),
	})
	if err == nil {
		err = w.writeFrame(hello)
	}
	if err != nil {
		w.logger.Error("hello frame failed", "error", err)
		return
	}
	w.logger.Info("worker online", "version", version.Short(), "pid", os.Getpid())

	readDone := make(chan struct{})
	go func() {
		w.readLoop(in)
		close(readDone)
	}()

	select {
	case <-ctx.Done():
		w.logger.Info("signal received; shutting down")
	case <-w.quit:
		w.logger.Info("shutdown requested; shutting down")
	case <-readDone:
		w.logger.Info("request stream ended; shutting down")
	case <-w.fatal:
		w.logger.Error("frame channel broken; shutting down")
	}
	w.teardown()
}

// readLoop decodes request frames until the stream ends. Malformed
// frames are logged and dropped; a run of consecutive decode failures
// means the stream itself is garbage and ends the loop.
func (w *worker) readLoop(in io.Reader) {
	decoder := codec.NewDecoder(in)
	consecutiveErrors := 0
	for {
		var frame workerproto.Frame
		if err := decoder.Decode(&frame); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return
			}
			consecutiveErrors++
			if consecutiveErrors > 8 {
				w.logger.Error("request stream unreadable; giving up", "error", err)
				return
			}
			w.logger.Warn("dropping undecodable frame", "error", err)
			continue
		}
		consecutiveErrors = 0

		if frame.Kind != workerproto.KindRequest {
			w.logger.Warn("dropping frame of unexpected kind", "kind", string(frame.Kind))
			continue
		}
		go w.handle(frame)
	}
}

// handle answers one request. Each request runs on its own goroutine:
// tmux calls block for tens of milliseconds and sessions should not
// serialize on each other.
func (w *worker) handle(request workerproto.Frame) {
	switch request.Action {
	case workerproto.ActionSpawn:
		var spawn workerproto.SpawnRequest
		if err := request.DecodeData(&spawn); err != nil {
			w.respondError(request.ID, err)
			return
		}
		w.respondResult(request.ID, w.spawn(spawn))

	case workerproto.ActionSend:
		var send workerproto.SendRequest
		if err := request.DecodeData(&send); err != nil {
			w.respondError(request.ID, err)
			return
		}
		w.respondResult(request.ID, w.withTerminal(send.SessionID, func(term *terminal.Terminal) error {
			return term.SendText(send.Text)
		}))

	case workerproto.ActionSendKeys:
		var keys workerproto.SendKeysRequest
		if err := request.DecodeData(&keys); err != nil {
			w.respondError(request.ID, err)
			return
		}
		w.respondResult(request.ID, w.withTerminal(keys.SessionID, func(term *terminal.Terminal) error {
			return term.SendKeys(keys.Keys...)
		}))

	case workerproto.ActionSignal:
		var sig workerproto.SignalRequest
		if err := request.DecodeData(&sig); err != nil {
			w.respondError(request.ID, err)
			return
		}
		w.respondResult(request.ID, w.withTerminal(sig.SessionID, func(term *terminal.Terminal) error {
			return term.Signal(syscall.Signal(sig.Signal))
		}))

	case workerproto.ActionStop:
		var stop workerproto.StopRequest
		if err := request.DecodeData(&stop); err != nil {
			w.respondError(request.ID, err)
			return
		}
		// Kill only: the exited event still flows through the
		// forwarder, which releases the terminal afterwards.
		w.respondResult(request.ID, w.withTerminal(stop.SessionID, func(term *terminal.Terminal) error {
			return term.Kill()
		}))

	case workerproto.ActionCapture:
		var capture workerproto.CaptureRequest
		if err := request.DecodeData(&capture); err != nil {
			w.respondError(request.ID, err)
			return
		}
		var content string
		err := w.withTerminal(capture.SessionID, func(term *terminal.Terminal) error {
			var captureErr error
			content, captureErr = term.Capture(capture.MaxLines)
			return captureErr
		})
		if err != nil {
			w.respondError(request.ID, err)
			return
		}
		w.respond(request.ID, workerproto.CaptureResponse{Content: content})

	case workerproto.ActionShutdown:
		// Acknowledge before exiting so the daemon's call completes.
		w.respond(request.ID, nil)
		w.quitOnce.Do(func() { close(w.quit) })

	default:
		w.respondError(request.ID, fmt.Errorf("unknown action %q", request.Action))
	}
}

// spawn starts one agent terminal and begins forwarding its output.
func (w *worker) spawn(request workerproto.SpawnRequest) error {
	w.mu.Lock()
	if w.closing {
		w.mu.Unlock()
		return fmt.Errorf("worker shutting down")
	}
	if _, exists := w.terminals[request.SessionID]; exists {
		w.mu.Unlock()
		return fmt.Errorf("session %s already spawned", request.SessionID)
	}
	w.mu.Unlock()

	term, err := w.runner.Start(terminal.StartSpec{
		Name:    request.Name,
		Command: request.Command,
		Workdir: request.Workdir,
		Env:     request.Env,
	})
	if err != nil {
		return err
	}

	w.mu.Lock()
	if w.closing {
		// Teardown began while the terminal was starting; it missed
		// the sweep, so take it down here.
		w.mu.Unlock()
		term.Cleanup()
		return fmt.Errorf("worker shutting down")
	}
	w.terminals[request.SessionID] = term
	w.forwarders.Add(1)
	w.mu.Unlock()

	go w.forward(request.SessionID, term)
	return nil
}

// forward pushes one terminal's output chunks and then its exit code
// to the daemon, then releases the terminal.
func (w *worker) forward(sessionID string, term *terminal.Terminal) {
	defer w.forwarders.Done()

	for chunk := range term.Output() {
		event, err := workerproto.NewEvent(workerproto.EventOutput, workerproto.OutputEvent{
			SessionID: sessionID,
			Text:      chunk.Text,
			Time:      chunk.Time,
		})
		if err != nil {
			w.logger.Error("encoding output event failed", "error", err)
			continue
		}
		w.send(event)
	}

	// The terminal closes its output channel and then delivers the
	// exit code, unless teardown got there first.
	select {
	case code := <-term.Exited():
		event, err := workerproto.NewEvent(workerproto.EventExited, workerproto.ExitedEvent{
			SessionID: sessionID,
			ExitCode:  code,
		})
		if err != nil {
			w.logger.Error("encoding exited event failed", "error", err)
		} else {
			w.send(event)
		}
	case <-w.quitting:
	}

	w.mu.Lock()
	delete(w.terminals, sessionID)
	w.mu.Unlock()
	term.Cleanup()
}

// teardown kills every terminal and waits for the forwarders.
func (w *worker) teardown() {
	w.mu.Lock()
	if w.closing {
		w.mu.Unlock()
		return
	}
	w.closing = true
	terminals := make([]*terminal.Terminal, 0, len(w.terminals))
	for _, term := range w.terminals {
		terminals = append(terminals, term)
	}
	w.mu.Unlock()

	close(w.quitting)
	for _, term := range terminals {
		term.Cleanup()
	}
	w.forwarders.Wait()
}

// withTerminal runs fn against the named session's terminal.
func (w *worker) withTerminal(sessionID string, fn func(*terminal.Terminal) error) error {
	w.mu.Lock()
	term, ok := w.terminals[sessionID]
	w.mu.Unlock()
	if !ok {
		return fmt.Errorf("no terminal for session %s", sessionID)
	}
	return fn(term)
}

func (w *worker) writeFrame(frame workerproto.Frame) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	return w.encoder.Encode(frame)
}

// send writes a frame, treating failure as loss of the daemon.
func (w *worker) send(frame workerproto.Frame) {
	if err := w.writeFrame(frame); err != nil {
		w.logger.Error("frame write failed", "error", err)
		w.fatalOnce.Do(func() { close(w.fatal) })
	}
}

func (w *worker) respond(id uint64, payload any) {
	frame, err := workerproto.NewResponse(id, payload)
	if err != nil {
		w.logger.Error("encoding response failed", "error", err)
		frame = workerproto.NewErrorResponse(id, err.Error())
	}
	w.send(frame)
}

func (w *worker) respondError(id uint64, failure error) {
	w.send(workerproto.NewErrorResponse(id, failure.Error()))
}

// respondResult maps an action's error to the ok/error response shape.
func (w *worker) respondResult(id uint64, failure error) {
	if failure != nil {
		w.respondError(id, failure)
		return
	}
	w.respond(id, nil)
}
