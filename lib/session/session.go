// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package session owns the supervised agent terminal table. The
// Manager spawns agent processes through an execution Strategy,
// classifies their output with per-agent adapters, answers known
// prompts through per-session rule engines, watches for stalls, and
// publishes lifecycle events that the coordinator and the HTTP layer
// consume.
//
// The Manager is the only writer of session state. Strategy events
// for one session are processed in arrival order; there is no
// ordering guarantee across sessions.
package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/bureau-foundation/foreman/lib/adapter"
)

// Status is a session's position in its lifecycle.
type Status string

const (
	// StatusSpawning covers process start until the adapter's ready
	// signature first appears. Boot-time prompts (trust dialogs,
	// logins) surface as events while the status stays spawning.
	StatusSpawning Status = "spawning"

	// StatusReady means the agent is idle at its input prompt.
	StatusReady Status = "ready"

	// StatusBusy means the agent is working on a turn.
	StatusBusy Status = "busy"

	// StatusBlocked means the agent is waiting on input: a detected
	// interactive prompt, a login flow, or a classified stall.
	StatusBlocked Status = "blocked"

	// StatusStopped is terminal: the session was stopped on request.
	StatusStopped Status = "stopped"

	// StatusError is terminal: the process died unexpectedly, the
	// worker owning it crashed, or it was stopped before ever
	// becoming ready.
	StatusError Status = "error"
)

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	return s == StatusStopped || s == StatusError
}

// validTransitions is the session status machine. A session never
// moves from spawning straight to stopped: a stop request before the
// first ready lands on error instead, so "stopped" always means a
// session that actually ran.
var validTransitions = map[Status]map[Status]bool{
	StatusSpawning: {
		StatusReady: true,
		StatusError: true,
	},
	StatusReady: {
		StatusBusy:    true,
		StatusBlocked: true,
		StatusStopped: true,
		StatusError:   true,
	},
	StatusBusy: {
		StatusReady:   true,
		StatusBlocked: true,
		StatusStopped: true,
		StatusError:   true,
	},
	StatusBlocked: {
		StatusBusy:    true,
		StatusStopped: true,
		StatusError:   true,
	},
}

// Session is a point-in-time snapshot of one supervised terminal.
// Manager methods return copies; mutating a snapshot has no effect on
// the live session.
type Session struct {
	ID             string    `json:"id"`
	AgentType      string    `json:"agentType"`
	Name           string    `json:"name"`
	Workdir        string    `json:"workdir"`
	Status         Status    `json:"status"`
	CreatedAt      time.Time `json:"createdAt"`
	LastActivityAt time.Time `json:"lastActivityAt"`
}

// Filter narrows List results. Zero fields match everything.
type Filter struct {
	AgentType string
	Status    Status
}

func (f Filter) matches(s Session) bool {
	if f.AgentType != "" && s.AgentType != f.AgentType {
		return false
	}
	if f.Status != "" && s.Status != f.Status {
		return false
	}
	return true
}

// OutputChunk is one piece of ANSI-stripped terminal output as it
// arrived, delivered to output subscribers in order. Chunks may end
// mid-line; interactive prompts usually do.
type OutputChunk struct {
	Text string    `json:"text"`
	Time time.Time `json:"time"`
}

// EventType names a lifecycle event.
type EventType string

const (
	// EventReady fires once, on the session's first ready transition.
	EventReady EventType = "ready"

	// EventBlocked fires when the agent is waiting on input. If an
	// auto-response rule already answered the prompt, AutoResponded
	// is true and the session keeps working.
	EventBlocked EventType = "blocked"

	// EventLoginRequired fires when the agent is asking the operator
	// to complete an authentication flow.
	EventLoginRequired EventType = "login_required"

	// EventTaskComplete fires when the agent returns to its idle
	// prompt after a turn, carrying the output captured since the
	// turn's task was sent.
	EventTaskComplete EventType = "task_complete"

	// EventStopped fires when a requested stop completes.
	EventStopped EventType = "stopped"

	// EventError fires when the session dies without a stop request
	// or hits an unrecoverable fault.
	EventError EventType = "error"

	// EventWorkerExit fires when the isolated worker process exits
	// unexpectedly. It carries no session: every session the worker
	// owned gets its own EventError.
	EventWorkerExit EventType = "worker_exit"
)

// Event is one lifecycle notification. Session is a snapshot taken
// at emit time; it is nil only for EventWorkerExit.
type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"sessionId,omitempty"`
	Session   *Session  `json:"session,omitempty"`

	// EventBlocked fields.
	Prompt        *adapter.Prompt `json:"prompt,omitempty"`
	AutoResponded bool            `json:"autoResponded,omitempty"`

	// EventLoginRequired field.
	Login *adapter.Login `json:"login,omitempty"`

	// EventTaskComplete field.
	CapturedResponse string `json:"capturedResponse,omitempty"`

	// EventStopped field.
	Reason string `json:"reason,omitempty"`

	// EventError field.
	Message string `json:"message,omitempty"`

	// EventWorkerExit fields.
	ExitCode int `json:"exitCode,omitempty"`
	Signal   int `json:"signal,omitempty"`

	Time time.Time `json:"time"`
}

// FinalState is handed to Config.OnFinish when a session reaches a
// terminal status: the terminal snapshot plus everything that is about
// to be released with the live session.
type FinalState struct {
	// Session is the terminal snapshot (status stopped or error).
	Session Session

	// InitialTask is the task text the session was spawned with,
	// empty if none.
	InitialTask string

	// Transcript is the full retained scrollback at teardown.
	// Truncated reports that eviction had already discarded older
	// lines.
	Transcript string
	Truncated  bool

	// StopReason is set for requested stops, Message for error
	// terminations.
	StopReason string
	Message    string
}

// ErrSessionNotFound reports an operation against an id that is not
// in the live session table. Wrapped errors carry the id.
var ErrSessionNotFound = errors.New("session not found")

// SpawnError reports that a spawn failed before the session existed:
// unknown agent type, boot-file write failure, invalid rules, or the
// strategy refusing to start the process.
type SpawnError struct {
	AgentType string
	Err       error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawning %s session: %v", e.AgentType, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }
