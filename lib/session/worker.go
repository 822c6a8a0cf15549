// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/bureau-foundation/foreman/lib/clock"
	"github.com/bureau-foundation/foreman/lib/codec"
	"github.com/bureau-foundation/foreman/lib/version"
	"github.com/bureau-foundation/foreman/lib/workerproto"
)

// ErrWorkerExited reports a call against a worker whose process has
// already exited.
var ErrWorkerExited = errors.New("worker process exited")

// shutdownGrace is how long Close waits for the worker to exit on its
// own after the shutdown request before killing it.
const shutdownGrace = 5 * time.Second

// Worker is the isolated execution strategy: agent terminals live in
// a separate foreman-worker process, and this side holds only session
// handles. Requests and responses travel as CBOR frames over the
// worker's stdin/stdout; output and exit notifications are pushed
// back as event frames.
//
// If the worker dies, the strategy emits StrategyWorkerExit and every
// call afterwards fails with ErrWorkerExited. It is not restarted
// implicitly; the operator decides whether to start a fresh daemon.
type Worker struct {
	logger *slog.Logger
	clock  clock.Clock
	cmd    *exec.Cmd
	conn   *workerConn
	events chan StrategyEvent

	// closing is closed at the start of Close so the exit watcher
	// knows the death was requested and skips the worker_exit event.
	closing   chan struct{}
	closeOnce sync.Once

	// done is closed once the worker process has been reaped.
	done chan struct{}
}

// StartWorker launches the worker binary and wires up its channel.
// The worker's stderr passes through to this process's stderr so its
// logs interleave with the daemon's.
func StartWorker(binary string, args []string, clk clock.Clock, logger *slog.Logger) (*Worker, error) {
	cmd := exec.Command(binary, args...)
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("worker stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("worker stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting worker %s: %w", binary, err)
	}

	worker := &Worker{
		logger:  logger,
		clock:   clk,
		cmd:     cmd,
		events:  make(chan StrategyEvent, 256),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
	}
	worker.conn = newWorkerConn(stdin, worker.events, worker.closing, logger)
	go worker.watch(stdout)

	logger.Info("worker started", "binary", binary, "pid", cmd.Process.Pid)
	return worker, nil
}

// watch drains the worker's stdout until the stream ends, reaps the
// process, and reports its death.
func (w *Worker) watch(stdout io.Reader) {
	defer close(w.done)

	w.conn.readLoop(stdout)

	err := w.cmd.Wait()
	exitCode, signal := exitStatus(err)
	w.conn.fail()

	select {
	case <-w.closing:
		// Requested shutdown; not a fault.
		return
	default:
	}

	w.logger.Error("worker exited unexpectedly", "exit_code", exitCode, "signal", signal)
	select {
	case w.events <- StrategyEvent{Type: StrategyWorkerExit, ExitCode: exitCode, Signal: signal}:
	case <-w.closing:
	}
}

// Spawn starts an agent terminal inside the worker.
func (w *Worker) Spawn(ctx context.Context, spec SpawnSpec) error {
	_, err := w.conn.call(ctx, workerproto.ActionSpawn, workerproto.SpawnRequest{
		SessionID: spec.SessionID,
		Name:      spec.Name,
		Command:   spec.Command,
		Workdir:   spec.Workdir,
		Env:       spec.Env,
	})
	return err
}

// Send types text plus Enter into a worker-owned terminal.
func (w *Worker) Send(ctx context.Context, sessionID, text string) error {
	_, err := w.conn.call(ctx, workerproto.ActionSend, workerproto.SendRequest{
		SessionID: sessionID,
		Text:      text,
	})
	return err
}

// SendKeys sends raw key names to a worker-owned terminal.
func (w *Worker) SendKeys(ctx context.Context, sessionID string, keys []string) error {
	_, err := w.conn.call(ctx, workerproto.ActionSendKeys, workerproto.SendKeysRequest{
		SessionID: sessionID,
		Keys:      keys,
	})
	return err
}

// Signal delivers a signal to a worker-owned terminal's process.
func (w *Worker) Signal(ctx context.Context, sessionID string, signal int) error {
	_, err := w.conn.call(ctx, workerproto.ActionSignal, workerproto.SignalRequest{
		SessionID: sessionID,
		Signal:    signal,
	})
	return err
}

// Stop kills a worker-owned terminal. The worker still pushes the
// session's exited event before releasing it.
func (w *Worker) Stop(ctx context.Context, sessionID string) error {
	_, err := w.conn.call(ctx, workerproto.ActionStop, workerproto.StopRequest{
		SessionID: sessionID,
	})
	return err
}

// Capture returns a worker-owned terminal's current pane content.
func (w *Worker) Capture(ctx context.Context, sessionID string, maxLines int) (string, error) {
	frame, err := w.conn.call(ctx, workerproto.ActionCapture, workerproto.CaptureRequest{
		SessionID: sessionID,
		MaxLines:  maxLines,
	})
	if err != nil {
		return "", err
	}
	var response workerproto.CaptureResponse
	if err := frame.DecodeData(&response); err != nil {
		return "", err
	}
	return response.Content, nil
}

// Events is the strategy's push channel. It is never closed.
func (w *Worker) Events() <-chan StrategyEvent {
	return w.events
}

// Close asks the worker to shut down, killing it if it does not exit
// within the grace period. Idempotent.
func (w *Worker) Close() error {
	w.closeOnce.Do(func() {
		close(w.closing)

		ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		if _, err := w.conn.call(ctx, workerproto.ActionShutdown, nil); err != nil {
			w.logger.Debug("worker shutdown request failed", "error", err)
		}
		cancel()

		select {
		case <-w.done:
		case <-w.clock.After(shutdownGrace):
			w.logger.Warn("worker did not exit; killing", "pid", w.cmd.Process.Pid)
			if err := w.cmd.Process.Kill(); err != nil {
				w.logger.Warn("worker kill failed", "error", err)
			}
			<-w.done
		}
	})
	return nil
}

// exitStatus maps a Wait error to (exit code, signal), using the
// shell convention 128+signal for signal deaths.
func exitStatus(err error) (exitCode, signal int) {
	if err == nil {
		return 0, 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
			return 128 + int(status.Signal()), int(status.Signal())
		}
		return exitErr.ExitCode(), 0
	}
	return -1, 0
}

// workerConn is the frame channel to one worker process: serialized
// request writes, a correlation map for responses, and event
// forwarding. It is separated from Worker so the protocol logic can
// be exercised over plain pipes.
type workerConn struct {
	logger *slog.Logger
	events chan<- StrategyEvent
	quit   <-chan struct{}

	writeMu sync.Mutex
	encoder *codec.Encoder

	pendingMu sync.Mutex
	pending   map[uint64]chan workerproto.Frame
	nextID    atomic.Uint64

	// broken is closed when the read loop ends; calls in flight and
	// all later calls fail with ErrWorkerExited.
	broken     chan struct{}
	brokenOnce sync.Once
}

func newWorkerConn(writer io.Writer, events chan<- StrategyEvent, quit <-chan struct{}, logger *slog.Logger) *workerConn {
	return &workerConn{
		logger:  logger,
		events:  events,
		quit:    quit,
		encoder: codec.NewEncoder(writer),
		pending: make(map[uint64]chan workerproto.Frame),
		broken:  make(chan struct{}),
	}
}

// call sends one request frame and waits for its response. A
// response with ok=false becomes an error carrying the worker's
// message.
func (c *workerConn) call(ctx context.Context, action string, payload any) (workerproto.Frame, error) {
	select {
	case <-c.broken:
		return workerproto.Frame{}, ErrWorkerExited
	default:
	}

	id := c.nextID.Add(1)
	request, err := workerproto.NewRequest(id, action, payload)
	if err != nil {
		return workerproto.Frame{}, err
	}

	response := make(chan workerproto.Frame, 1)
	c.pendingMu.Lock()
	c.pending[id] = response
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()

	c.writeMu.Lock()
	err = c.encoder.Encode(request)
	c.writeMu.Unlock()
	if err != nil {
		return workerproto.Frame{}, fmt.Errorf("writing %s request: %w", action, err)
	}

	select {
	case frame := <-response:
		if !frame.OK {
			return frame, fmt.Errorf("worker %s failed: %s", action, frame.Error)
		}
		return frame, nil
	case <-ctx.Done():
		return workerproto.Frame{}, ctx.Err()
	case <-c.broken:
		return workerproto.Frame{}, ErrWorkerExited
	}
}

// readLoop decodes frames from the worker until the stream ends.
// Malformed frames are logged and dropped; only a broken stream ends
// the loop.
func (c *workerConn) readLoop(reader io.Reader) {
	decoder := codec.NewDecoder(reader)
	consecutiveErrors := 0
	for {
		var frame workerproto.Frame
		if err := decoder.Decode(&frame); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return
			}
			consecutiveErrors++
			if consecutiveErrors > 8 {
				c.logger.Error("worker channel unreadable; giving up", "error", err)
				return
			}
			c.logger.Warn("dropping undecodable worker frame", "error", err)
			continue
		}
		consecutiveErrors = 0

		switch frame.Kind {
		case workerproto.KindResponse:
			c.resolve(frame)
		case workerproto.KindEvent:
			c.handleEvent(frame)
		default:
			c.logger.Warn("dropping worker frame of unknown kind", "kind", string(frame.Kind))
		}
	}
}

func (c *workerConn) resolve(frame workerproto.Frame) {
	c.pendingMu.Lock()
	waiter, ok := c.pending[frame.ID]
	c.pendingMu.Unlock()
	if !ok {
		c.logger.Warn("dropping response with no pending request", "id", frame.ID)
		return
	}
	waiter <- frame
}

func (c *workerConn) handleEvent(frame workerproto.Frame) {
	switch frame.Action {
	case workerproto.EventHello:
		var hello workerproto.HelloEvent
		if err := frame.DecodeData(&hello); err != nil {
			c.logger.Warn("dropping malformed hello event", "error", err)
			return
		}
		if hello.Version != version.Short() {
			c.logger.Warn("worker version differs from daemon",
				"worker_version", hello.Version,
				"daemon_version", version.Short())
		}
		c.logger.Info("worker online", "version", hello.Version, "worker_pid", hello.PID)

	case workerproto.EventOutput:
		var output workerproto.OutputEvent
		if err := frame.DecodeData(&output); err != nil {
			c.logger.Warn("dropping malformed output event", "error", err)
			return
		}
		c.emit(StrategyEvent{
			Type:      StrategyOutput,
			SessionID: output.SessionID,
			Text:      output.Text,
			Time:      output.Time,
		})

	case workerproto.EventExited:
		var exited workerproto.ExitedEvent
		if err := frame.DecodeData(&exited); err != nil {
			c.logger.Warn("dropping malformed exited event", "error", err)
			return
		}
		c.emit(StrategyEvent{
			Type:      StrategyExited,
			SessionID: exited.SessionID,
			ExitCode:  exited.ExitCode,
		})

	case workerproto.EventSessionError:
		var fault workerproto.SessionErrorEvent
		if err := frame.DecodeData(&fault); err != nil {
			c.logger.Warn("dropping malformed session-error event", "error", err)
			return
		}
		c.emit(StrategyEvent{
			Type:      StrategySessionError,
			SessionID: fault.SessionID,
			Message:   fault.Message,
		})

	default:
		c.logger.Warn("dropping worker event of unknown type", "event", frame.Action)
	}
}

func (c *workerConn) emit(event StrategyEvent) {
	select {
	case c.events <- event:
	case <-c.quit:
	}
}

// fail marks the channel broken, waking every in-flight call.
func (c *workerConn) fail() {
	c.brokenOnce.Do(func() {
		close(c.broken)
	})
}
