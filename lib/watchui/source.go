// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package watchui

import (
	"context"
	"slices"
	"time"

	"github.com/bureau-foundation/foreman/lib/coordinator"
)

// Update is one message from the daemon's coordination feed: the
// opening snapshot or an incremental event after it. Exactly one
// field is non-nil.
type Update struct {
	Snapshot *coordinator.Snapshot
	Event    *coordinator.FeedEvent
}

// State is the dashboard's local copy of the coordination state,
// rebuilt from the feed snapshot and patched by incremental events.
type State struct {
	Supervision coordinator.Supervision
	Tasks       []coordinator.TaskContext
	Pending     []coordinator.PendingConfirmation
	Metrics     coordinator.Metrics
}

// Apply folds one feed update into the state. A snapshot replaces
// everything; events patch the affected entry. Events with a missing
// payload are ignored.
func (state *State) Apply(update Update) {
	if update.Snapshot != nil {
		snapshot := update.Snapshot
		state.Supervision = snapshot.Supervision
		state.Tasks = slices.Clone(snapshot.Tasks)
		state.Pending = slices.Clone(snapshot.Pending)
		state.Metrics = snapshot.Metrics
		return
	}
	if update.Event == nil {
		return
	}

	event := update.Event
	switch event.Type {
	case coordinator.FeedTask:
		if event.Task == nil {
			return
		}
		for index := range state.Tasks {
			if state.Tasks[index].SessionID == event.Task.SessionID {
				state.Tasks[index] = *event.Task
				return
			}
		}
		// Tasks arrive in creation order on the snapshot; appending
		// new ones preserves that ordering.
		state.Tasks = append(state.Tasks, *event.Task)

	case coordinator.FeedPending:
		if event.Pending == nil {
			return
		}
		for index := range state.Pending {
			if state.Pending[index].SessionID == event.Pending.SessionID {
				state.Pending[index] = *event.Pending
				return
			}
		}
		state.Pending = append(state.Pending, *event.Pending)

	case coordinator.FeedPendingResolved:
		state.Pending = slices.DeleteFunc(state.Pending, func(pending coordinator.PendingConfirmation) bool {
			return pending.SessionID == event.SessionID
		})

	case coordinator.FeedSupervision:
		state.Supervision = event.Supervision
	}
}

// Task returns the task context for a session, if coordinated.
func (state State) Task(sessionID string) (coordinator.TaskContext, bool) {
	for _, task := range state.Tasks {
		if task.SessionID == sessionID {
			return task, true
		}
	}
	return coordinator.TaskContext{}, false
}

// PendingFor returns the queued confirmation for a session, or nil.
func (state State) PendingFor(sessionID string) *coordinator.PendingConfirmation {
	for index := range state.Pending {
		if state.Pending[index].SessionID == sessionID {
			return &state.Pending[index]
		}
	}
	return nil
}

// Connection phases reported by [Source.ConnectionState].
const (
	// ConnectionConnecting means the source has never completed a
	// connection to the daemon.
	ConnectionConnecting = "connecting"
	// ConnectionLive means the feed is connected and events flow.
	ConnectionLive = "live"
	// ConnectionReconnecting means the feed dropped and the source is
	// backing off before the next attempt. The displayed state is the
	// last one received and may be stale.
	ConnectionReconnecting = "reconnecting"
)

// Event tells the dashboard that something changed, after the source
// has already folded the change into its state.
type Event struct {
	// Kind is the feed event type ("task", "pending",
	// "pending-resolved", "supervision"), or one of two source-level
	// kinds: "snapshot" when a full state transfer arrived and
	// "connection" when the stream phase changed.
	Kind string

	// SessionID identifies the affected session for task and pending
	// kinds. Empty otherwise.
	SessionID string
}

// Source abstracts coordination data access for the dashboard. The
// model reads state through it and hears about changes on the
// subscription channel; it never talks to the daemon directly.
type Source interface {
	// State returns a copy of the current coordination state.
	State() State

	// ConnectionState returns the current stream phase: one of
	// [ConnectionConnecting], [ConnectionLive], or
	// [ConnectionReconnecting].
	ConnectionState() string

	// LastActivity reports when the feed last carried bytes,
	// heartbeat comments included. Zero before the first connection.
	LastActivity() time.Time

	// Subscribe returns a channel that receives an Event after each
	// state change. A subscriber that stops draining has events
	// dropped, not the channel closed; the next event still reflects
	// current state because the source folds before dispatching.
	Subscribe() <-chan Event
}

// Actor is the optional interface sources provide for operator
// actions. The model checks for it via type assertion; when absent,
// the action keys are disabled. All methods are one-shot calls whose
// results arrive through the feed, so implementations must not patch
// local state directly.
type Actor interface {
	// Confirm approves or rejects a session's queued confirmation.
	Confirm(ctx context.Context, sessionID string, approved bool) error

	// SetSupervision changes the coordinator's supervision level.
	SetSupervision(ctx context.Context, level coordinator.Supervision) error

	// Send delivers operator text to a session's agent.
	Send(ctx context.Context, sessionID, text string) error
}
