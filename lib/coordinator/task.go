// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package coordinator

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// TaskStatus is a coordinated task's position in its lifecycle.
type TaskStatus string

const (
	// TaskActive means the agent is presumed to be making progress.
	TaskActive TaskStatus = "active"

	// TaskBlocked means the session reported a blocking prompt or
	// login and the coordinator (or a human) is deciding what to do.
	TaskBlocked TaskStatus = "blocked"

	// TaskIdleChecking means an idle check is in flight for the task.
	TaskIdleChecking TaskStatus = "idle-checking"

	// TaskComplete is terminal: the task was declared done.
	TaskComplete TaskStatus = "complete"

	// TaskEscalated is terminal for the coordinator: the task needs a
	// human. The session itself may still be running.
	TaskEscalated TaskStatus = "escalated"
)

// Terminal reports whether the coordinator is done with the task.
func (s TaskStatus) Terminal() bool {
	return s == TaskComplete || s == TaskEscalated
}

// TriggerKind names the situation that prompted a coordination
// decision.
type TriggerKind string

const (
	// TriggerBlocked is a session blocked event that no auto-response
	// rule answered.
	TriggerBlocked TriggerKind = "blocked"

	// TriggerIdle is a scheduled check of a task that has produced no
	// activity for its idle interval.
	TriggerIdle TriggerKind = "idle"

	// TriggerTurnComplete is the agent returning to its idle prompt
	// after a turn.
	TriggerTurnComplete TriggerKind = "turn-complete"
)

// Action is what a coordination decision does with the session.
type Action string

const (
	// ActionRespond types text or key presses into the terminal.
	ActionRespond Action = "respond"

	// ActionEscalate hands the task to a human operator.
	ActionEscalate Action = "escalate"

	// ActionIgnore leaves the session alone.
	ActionIgnore Action = "ignore"

	// ActionComplete marks the task done and stops the session.
	ActionComplete Action = "complete"
)

// Decision is one parsed coordination decision. For ActionRespond,
// exactly one of Response or Keys carries the input; ParseDecision
// rejects anything else.
type Decision struct {
	Action    Action   `json:"action"`
	Response  string   `json:"response,omitempty"`
	UseKeys   bool     `json:"useKeys,omitempty"`
	Keys      []string `json:"keys,omitempty"`
	Reasoning string   `json:"reasoning"`
}

// input renders the decision's session input for history entries and
// logs: the response text, or the key sequence in bracket form.
func (d Decision) input() string {
	if d.UseKeys {
		return "[keys] " + strings.Join(d.Keys, " ")
	}
	return d.Response
}

// Override replaces the input of a queued decision at confirmation
// time. A non-empty override turns the decision into a respond with
// the given content, whatever the model had chosen.
type Override struct {
	Response string   `json:"response,omitempty"`
	UseKeys  bool     `json:"useKeys,omitempty"`
	Keys     []string `json:"keys,omitempty"`
}

func (o *Override) empty() bool {
	return o == nil || (o.Response == "" && !o.UseKeys && len(o.Keys) == 0)
}

// Outcome records what happened to a decision after it was made.
type Outcome string

const (
	// OutcomeApplied means the decision was carried out.
	OutcomeApplied Outcome = "applied"

	// OutcomeNotified means the decision was carried out under notify
	// supervision, so the history entry doubles as the notification.
	OutcomeNotified Outcome = "notified"

	// OutcomeQueued means the decision awaits human confirmation.
	OutcomeQueued Outcome = "queued"

	// OutcomeRejected means a human discarded the queued decision.
	OutcomeRejected Outcome = "rejected"

	// OutcomeForced means the coordinator overrode or synthesized the
	// decision: the idle-check limit was hit, the reasoning call
	// failed, or its answer was unparseable.
	OutcomeForced Outcome = "forced"

	// OutcomeDropped means the session was torn down before the
	// decision could be applied; the decision became a no-op.
	OutcomeDropped Outcome = "dropped"

	// OutcomeFailed means applying the decision to the session
	// errored; the task state was left untouched.
	OutcomeFailed Outcome = "failed"
)

// DecisionEntry is one append-only line of a task's decision history.
type DecisionEntry struct {
	Trigger   TriggerKind `json:"trigger"`
	Prompt    string      `json:"promptText,omitempty"`
	Action    Action      `json:"action"`
	Response  string      `json:"response,omitempty"`
	Reasoning string      `json:"reasoning"`
	Outcome   Outcome     `json:"outcome"`
	Time      time.Time   `json:"time"`
}

// TaskContext is the coordinator's record of one coordinated session.
type TaskContext struct {
	SessionID    string     `json:"sessionId"`
	AgentType    string     `json:"agentType"`
	Label        string     `json:"label"`
	OriginalTask string     `json:"originalTask"`
	Workdir      string     `json:"workdir"`
	Status       TaskStatus `json:"status"`

	// History is append-only; queued decisions get a second entry
	// when they are confirmed or rejected.
	History []DecisionEntry `json:"history"`

	// AutoResolvedCount counts prompts the rule engine answered
	// without a reasoning call.
	AutoResolvedCount int `json:"autoResolvedCount"`

	// IdleChecks counts consecutive idle checks since the last
	// observed session activity.
	IdleChecks int `json:"idleChecks"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// PendingConfirmation is a decision held for human approval under
// confirm supervision. At most one exists per session.
type PendingConfirmation struct {
	SessionID string      `json:"sessionId"`
	Trigger   TriggerKind `json:"trigger"`
	Prompt    string      `json:"promptText,omitempty"`
	Decision  Decision    `json:"decision"`
	Task      TaskContext `json:"task"`
	CreatedAt time.Time   `json:"createdAt"`
}

// Supervision is the coordinator's decision-application policy.
type Supervision string

const (
	// SupervisionAutonomous applies decisions immediately.
	SupervisionAutonomous Supervision = "autonomous"

	// SupervisionConfirm queues every non-ignore decision for human
	// confirmation before anything touches the session.
	SupervisionConfirm Supervision = "confirm"

	// SupervisionNotify applies decisions immediately and marks the
	// history entry so observers can audit what happened.
	SupervisionNotify Supervision = "notify"
)

// ErrInvalidSupervision reports a supervision level outside the enum.
var ErrInvalidSupervision = errors.New("invalid supervision level")

// ParseSupervision validates a supervision level string.
func ParseSupervision(value string) (Supervision, error) {
	switch Supervision(value) {
	case SupervisionAutonomous, SupervisionConfirm, SupervisionNotify:
		return Supervision(value), nil
	}
	return "", fmt.Errorf("%w: %q (want autonomous, confirm, or notify)", ErrInvalidSupervision, value)
}

// ErrTaskNotFound reports a lookup for a session with no task.
var ErrTaskNotFound = errors.New("no task for session")

// ErrTaskExists reports a Coordinate call for a session that already
// has a task.
var ErrTaskExists = errors.New("session already has a task")

// ErrNoPendingConfirmation reports a confirm or reject against a
// session with nothing queued.
var ErrNoPendingConfirmation = errors.New("no pending confirmation for session")

// ErrInvalidOverride reports a confirmation override that asks for
// key input without naming any keys.
var ErrInvalidOverride = errors.New("override with useKeys carries no keys")
