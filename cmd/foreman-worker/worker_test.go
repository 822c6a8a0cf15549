// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/bureau-foundation/foreman/lib/clock"
	"github.com/bureau-foundation/foreman/lib/codec"
	"github.com/bureau-foundation/foreman/lib/terminal"
	"github.com/bureau-foundation/foreman/lib/testutil"
	"github.com/bureau-foundation/foreman/lib/tmux"
	"github.com/bureau-foundation/foreman/lib/version"
	"github.com/bureau-foundation/foreman/lib/workerproto"
)

const frameTimeout = 15 * time.Second

// harness runs a worker over in-memory pipes, playing the daemon's
// side of the frame channel against a real tmux server.
type harness struct {
	t         *testing.T
	encoder   *codec.Encoder
	responses chan workerproto.Frame
	events    chan workerproto.Frame
	done      chan struct{}
	nextID    uint64
}

func startTestWorker(t *testing.T) *harness {
	t.Helper()
	server := tmux.NewTestServer(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	runner := terminal.NewRunner(server, t.TempDir(), clock.Real(), logger)

	stdinReader, stdinWriter := io.Pipe()
	stdoutReader, stdoutWriter := io.Pipe()

	w := newWorker(runner, stdoutWriter, logger)
	done := make(chan struct{})
	go func() {
		w.run(context.Background(), stdinReader)
		stdoutWriter.Close()
		close(done)
	}()

	h := &harness{
		t:         t,
		encoder:   codec.NewEncoder(stdinWriter),
		responses: make(chan workerproto.Frame, 16),
		events:    make(chan workerproto.Frame, 1024),
		done:      done,
	}
	go h.route(stdoutReader)

	t.Cleanup(func() {
		stdinWriter.Close()
		testutil.RequireClosed(t, done, frameTimeout, "worker did not exit on stdin close")
	})
	return h
}

// route splits the worker's stdout into responses and events. Neither
// send blocks: a wedged test must not deadlock the worker's writes
// through the synchronous pipe.
func (h *harness) route(out *io.PipeReader) {
	decoder := codec.NewDecoder(out)
	for {
		var frame workerproto.Frame
		if err := decoder.Decode(&frame); err != nil {
			return
		}
		switch frame.Kind {
		case workerproto.KindResponse:
			select {
			case h.responses <- frame:
			default:
			}
		case workerproto.KindEvent:
			select {
			case h.events <- frame:
			default:
			}
		}
	}
}

// request sends one request frame and returns its response.
func (h *harness) request(action string, payload any) workerproto.Frame {
	h.t.Helper()
	h.nextID++
	frame, err := workerproto.NewRequest(h.nextID, action, payload)
	if err != nil {
		h.t.Fatalf("building %s request: %v", action, err)
	}
	if err := h.encoder.Encode(frame); err != nil {
		h.t.Fatalf("writing %s request: %v", action, err)
	}
	response := testutil.RequireReceive(h.t, h.responses, frameTimeout, "no response to "+action)
	if response.ID != h.nextID {
		h.t.Fatalf("response ID = %d, want %d", response.ID, h.nextID)
	}
	return response
}

// spawn starts a terminal and fails the test unless it succeeds.
func (h *harness) spawn(sessionID, name string, command []string) {
	h.t.Helper()
	response := h.request(workerproto.ActionSpawn, workerproto.SpawnRequest{
		SessionID: sessionID,
		Name:      name,
		Command:   command,
	})
	if !response.OK {
		h.t.Fatalf("spawn failed: %s", response.Error)
	}
}

// awaitEvent reads pushed events until one matches name, decoding its
// payload into target.
func (h *harness) awaitEvent(name string, target any) {
	h.t.Helper()
	deadline := time.After(frameTimeout)
	for {
		select {
		case frame := <-h.events:
			if frame.Action != name {
				continue
			}
			if err := frame.DecodeData(target); err != nil {
				h.t.Fatalf("decoding %s event: %v", name, err)
			}
			return
		case <-deadline:
			h.t.Fatalf("timed out waiting for %s event", name)
		}
	}
}

// collectOutput accumulates one session's output events until the
// text contains want.
func (h *harness) collectOutput(sessionID, want string) string {
	h.t.Helper()
	var accumulated strings.Builder
	deadline := time.After(frameTimeout)
	for {
		select {
		case frame := <-h.events:
			if frame.Action != workerproto.EventOutput {
				continue
			}
			var output workerproto.OutputEvent
			if err := frame.DecodeData(&output); err != nil {
				h.t.Fatalf("decoding output event: %v", err)
			}
			if output.SessionID != sessionID {
				continue
			}
			accumulated.WriteString(output.Text)
			if strings.Contains(accumulated.String(), want) {
				return accumulated.String()
			}
		case <-deadline:
			h.t.Fatalf("timed out waiting for %q, got: %q", want, accumulated.String())
		}
	}
}

// awaitExited waits for the session's exited event.
func (h *harness) awaitExited(sessionID string) workerproto.ExitedEvent {
	h.t.Helper()
	deadline := time.After(frameTimeout)
	for {
		select {
		case frame := <-h.events:
			if frame.Action != workerproto.EventExited {
				continue
			}
			var exited workerproto.ExitedEvent
			if err := frame.DecodeData(&exited); err != nil {
				h.t.Fatalf("decoding exited event: %v", err)
			}
			if exited.SessionID == sessionID {
				return exited
			}
		case <-deadline:
			h.t.Fatalf("timed out waiting for session %s to exit", sessionID)
		}
	}
}

func TestWorkerHelloFirst(t *testing.T) {
	h := startTestWorker(t)

	var hello workerproto.HelloEvent
	h.awaitEvent(workerproto.EventHello, &hello)
	if hello.Version != version.Short() {
		t.Errorf("hello version = %q, want %q", hello.Version, version.Short())
	}
	if hello.PID != os.Getpid() {
		t.Errorf("hello pid = %d, want %d", hello.PID, os.Getpid())
	}
}

func TestWorkerSpawnStreamsOutput(t *testing.T) {
	h := startTestWorker(t)
	h.spawn("sess-1", "spawn-stream", []string{"sh", "-c", "echo stream marker; sleep infinity"})
	h.collectOutput("sess-1", "stream marker")
}

func TestWorkerSendText(t *testing.T) {
	h := startTestWorker(t)
	h.spawn("sess-send", "send-cat", []string{"cat"})

	response := h.request(workerproto.ActionSend, workerproto.SendRequest{
		SessionID: "sess-send",
		Text:      "echo-me this",
	})
	if !response.OK {
		t.Fatalf("send failed: %s", response.Error)
	}
	h.collectOutput("sess-send", "echo-me this")
}

func TestWorkerCapture(t *testing.T) {
	h := startTestWorker(t)
	h.spawn("sess-cap", "capture-me", []string{"sh", "-c", "echo capture marker; sleep infinity"})
	h.collectOutput("sess-cap", "capture marker")

	response := h.request(workerproto.ActionCapture, workerproto.CaptureRequest{
		SessionID: "sess-cap",
	})
	if !response.OK {
		t.Fatalf("capture failed: %s", response.Error)
	}
	var capture workerproto.CaptureResponse
	if err := response.DecodeData(&capture); err != nil {
		t.Fatalf("decoding capture response: %v", err)
	}
	if !strings.Contains(capture.Content, "capture marker") {
		t.Errorf("capture %q missing pane content", capture.Content)
	}
}

func TestWorkerStopDeliversExit(t *testing.T) {
	h := startTestWorker(t)
	h.spawn("sess-stop", "stop-me", []string{"sleep", "infinity"})

	response := h.request(workerproto.ActionStop, workerproto.StopRequest{
		SessionID: "sess-stop",
	})
	if !response.OK {
		t.Fatalf("stop failed: %s", response.Error)
	}

	exited := h.awaitExited("sess-stop")
	if exited.ExitCode != 137 {
		t.Errorf("ExitCode = %d, want 137 for a killed pane", exited.ExitCode)
	}

	// The forwarder releases the terminal after the exit event.
	send := h.request(workerproto.ActionSend, workerproto.SendRequest{
		SessionID: "sess-stop",
		Text:      "anyone home",
	})
	if send.OK {
		t.Error("send to a stopped session should fail")
	}
}

func TestWorkerUnknownSession(t *testing.T) {
	h := startTestWorker(t)

	response := h.request(workerproto.ActionSend, workerproto.SendRequest{
		SessionID: "ghost",
		Text:      "x",
	})
	if response.OK || !strings.Contains(response.Error, "no terminal for session ghost") {
		t.Errorf("response = %+v, want unknown-session error", response)
	}
}

func TestWorkerDuplicateSpawn(t *testing.T) {
	h := startTestWorker(t)
	h.spawn("sess-dup", "dup-one", []string{"sleep", "infinity"})

	response := h.request(workerproto.ActionSpawn, workerproto.SpawnRequest{
		SessionID: "sess-dup",
		Name:      "dup-two",
		Command:   []string{"sleep", "infinity"},
	})
	if response.OK || !strings.Contains(response.Error, "already spawned") {
		t.Errorf("response = %+v, want duplicate-spawn error", response)
	}
}

func TestWorkerUnknownAction(t *testing.T) {
	h := startTestWorker(t)

	response := h.request("defragment", nil)
	if response.OK || !strings.Contains(response.Error, `unknown action "defragment"`) {
		t.Errorf("response = %+v, want unknown-action error", response)
	}
}

func TestWorkerSurvivesMalformedFrame(t *testing.T) {
	h := startTestWorker(t)

	if err := h.encoder.Encode("not a frame"); err != nil {
		t.Fatalf("writing junk: %v", err)
	}

	response := h.request(workerproto.ActionSend, workerproto.SendRequest{
		SessionID: "ghost",
		Text:      "x",
	})
	if response.OK {
		t.Error("worker should keep serving after a malformed frame")
	}
}

func TestWorkerShutdownRequest(t *testing.T) {
	h := startTestWorker(t)

	response := h.request(workerproto.ActionShutdown, nil)
	if !response.OK {
		t.Fatalf("shutdown failed: %s", response.Error)
	}
	testutil.RequireClosed(t, h.done, frameTimeout, "worker did not exit on shutdown request")
}
