// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package workerproto defines the message channel between the daemon
// and the foreman-worker process. The worker owns the actual tmux
// sessions; the daemon holds remote handles and drives them through
// this protocol.
//
// The channel is a pair of CBOR streams over the worker's stdin and
// stdout. CBOR items are self-delimiting, so consecutive Frame values
// form the wire format directly with no length prefixes. Three frame
// kinds flow: requests (daemon to worker, correlated by ID),
// responses (worker to daemon, echoing the request ID), and events
// (worker to daemon, unsolicited, ID zero).
package workerproto

import (
	"fmt"
	"time"

	"github.com/bureau-foundation/foreman/lib/codec"
)

// Kind discriminates the three frame shapes.
type Kind string

const (
	KindRequest  Kind = "request"
	KindResponse Kind = "response"
	KindEvent    Kind = "event"
)

// Request actions.
const (
	// ActionSpawn starts an agent terminal.
	ActionSpawn = "spawn"

	// ActionSend types text plus Enter into a terminal.
	ActionSend = "send"

	// ActionSendKeys sends raw key names to a terminal.
	ActionSendKeys = "send-keys"

	// ActionSignal delivers a termination signal to the terminal's
	// process for graceful shutdown.
	ActionSignal = "signal"

	// ActionStop kills a terminal and releases its resources.
	ActionStop = "stop"

	// ActionCapture returns the terminal's current pane content.
	ActionCapture = "capture"

	// ActionShutdown asks the worker to stop all terminals and exit.
	ActionShutdown = "shutdown"
)

// Event names.
const (
	// EventHello is the worker's first frame: its version banner.
	EventHello = "hello"

	// EventOutput carries a chunk of terminal output.
	EventOutput = "output"

	// EventExited reports a terminal's process exit.
	EventExited = "exited"

	// EventSessionError reports a worker-side fault scoped to one
	// session (the session is dead, the worker is not).
	EventSessionError = "session-error"
)

// Frame is the wire unit. Exactly one of the kind-specific field sets
// is meaningful: requests carry Action+Data, responses carry
// OK/Error/Data, events carry Action (the event name) + Data.
type Frame struct {
	Kind   Kind             `cbor:"kind"`
	ID     uint64           `cbor:"id,omitempty"`
	Action string           `cbor:"action,omitempty"`
	OK     bool             `cbor:"ok,omitempty"`
	Error  string           `cbor:"error,omitempty"`
	Data   codec.RawMessage `cbor:"data,omitempty"`
}

// DecodeData unmarshals the frame's payload into target. A frame with
// no payload is an error: callers only decode when the action's
// contract promises data.
func (frame *Frame) DecodeData(target any) error {
	if len(frame.Data) == 0 {
		return fmt.Errorf("frame %s/%s has no payload", frame.Kind, frame.Action)
	}
	if err := codec.Unmarshal(frame.Data, target); err != nil {
		return fmt.Errorf("decoding %s/%s payload: %w", frame.Kind, frame.Action, err)
	}
	return nil
}

// NewRequest builds a request frame, marshaling payload into Data.
// A nil payload produces a bodyless request.
func NewRequest(id uint64, action string, payload any) (Frame, error) {
	data, err := marshalPayload(payload)
	if err != nil {
		return Frame{}, fmt.Errorf("encoding %s request: %w", action, err)
	}
	return Frame{Kind: KindRequest, ID: id, Action: action, Data: data}, nil
}

// NewResponse builds a success response for the given request ID.
func NewResponse(id uint64, payload any) (Frame, error) {
	data, err := marshalPayload(payload)
	if err != nil {
		return Frame{}, fmt.Errorf("encoding response %d: %w", id, err)
	}
	return Frame{Kind: KindResponse, ID: id, OK: true, Data: data}, nil
}

// NewErrorResponse builds a failure response for the given request ID.
func NewErrorResponse(id uint64, message string) Frame {
	return Frame{Kind: KindResponse, ID: id, Error: message}
}

// NewEvent builds an unsolicited event frame.
func NewEvent(name string, payload any) (Frame, error) {
	data, err := marshalPayload(payload)
	if err != nil {
		return Frame{}, fmt.Errorf("encoding %s event: %w", name, err)
	}
	return Frame{Kind: KindEvent, Action: name, Data: data}, nil
}

func marshalPayload(payload any) (codec.RawMessage, error) {
	if payload == nil {
		return nil, nil
	}
	return codec.Marshal(payload)
}

// --- Request payloads ---

// SpawnRequest starts one agent terminal in the worker.
type SpawnRequest struct {
	// SessionID keys every later request and event for this terminal.
	SessionID string `cbor:"session_id"`

	// Name is the tmux session name inside the worker's server.
	Name string `cbor:"name"`

	// Command is the agent argv.
	Command []string `cbor:"command"`

	// Workdir is the terminal's working directory.
	Workdir string `cbor:"workdir"`

	// Env is extra environment for the agent process.
	Env map[string]string `cbor:"env,omitempty"`
}

// SendRequest types text plus Enter into a terminal.
type SendRequest struct {
	SessionID string `cbor:"session_id"`
	Text      string `cbor:"text"`
}

// SendKeysRequest sends raw key names to a terminal.
type SendKeysRequest struct {
	SessionID string   `cbor:"session_id"`
	Keys      []string `cbor:"keys"`
}

// SignalRequest delivers a termination signal to the terminal's
// process. Signal is the numeric signal (15 for SIGTERM).
type SignalRequest struct {
	SessionID string `cbor:"session_id"`
	Signal    int    `cbor:"signal"`
}

// StopRequest kills a terminal and releases its worker-side
// resources.
type StopRequest struct {
	SessionID string `cbor:"session_id"`
}

// CaptureRequest returns a terminal's current pane content.
type CaptureRequest struct {
	SessionID string `cbor:"session_id"`

	// MaxLines limits the capture to the trailing lines; zero means
	// the whole pane history.
	MaxLines int `cbor:"max_lines,omitempty"`
}

// CaptureResponse is the payload answering ActionCapture.
type CaptureResponse struct {
	Content string `cbor:"content"`
}

// --- Event payloads ---

// HelloEvent is the worker's startup banner. The daemon logs a
// mismatch between its own version and the worker's but does not
// refuse to proceed: both binaries ship together.
type HelloEvent struct {
	Version string `cbor:"version"`
	PID     int    `cbor:"pid"`
}

// OutputEvent carries one chunk of ANSI-stripped terminal output.
type OutputEvent struct {
	SessionID string    `cbor:"session_id"`
	Text      string    `cbor:"text"`
	Time      time.Time `cbor:"time"`
}

// ExitedEvent reports the terminal process's exit. Signal deaths use
// the shell convention (128 + signal number).
type ExitedEvent struct {
	SessionID string `cbor:"session_id"`
	ExitCode  int    `cbor:"exit_code"`
}

// SessionErrorEvent reports a worker-side fault that killed one
// session without killing the worker.
type SessionErrorEvent struct {
	SessionID string `cbor:"session_id"`
	Message   string `cbor:"message"`
}
