// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package coordinator

import (
	"context"
	"errors"
	"fmt"

	"github.com/bureau-foundation/foreman/lib/llm"
	"github.com/bureau-foundation/foreman/lib/session"
)

// decide runs one reasoning call off the event path and resolves the
// result. A failed call or an unparseable answer becomes a forced
// escalation; the coordinator never guesses.
func (c *Coordinator) decide(sessionID string, trigger TriggerKind, promptText, prompt string, forced bool) {
	defer c.reasoning.Done()

	ctx, cancel := context.WithTimeout(c.runCtx, c.config.DecisionTimeout)
	defer cancel()

	var (
		decision    Decision
		failed      bool
		unparseable bool
	)
	response, err := c.provider.Complete(ctx, llm.Request{
		Model:     c.config.Model,
		MaxTokens: c.config.MaxTokens,
		System:    c.config.Prompts.System,
		Messages:  []llm.Message{{Role: llm.RoleUser, Content: prompt}},
	})
	if err != nil {
		failed = true
		decision = Decision{
			Action:    ActionEscalate,
			Reasoning: fmt.Sprintf("reasoning call failed: %v", err),
		}
		c.logger.Error("coordination reasoning call failed",
			"session_id", sessionID,
			"trigger", trigger,
			"error", err)
	} else {
		parsed, parseErr := ParseDecision(response.Text)
		if parseErr != nil {
			failed = true
			unparseable = true
			decision = Decision{
				Action:    ActionEscalate,
				Reasoning: fmt.Sprintf("no usable decision: %v", parseErr),
			}
			c.logger.Warn("unparseable coordination decision",
				"session_id", sessionID,
				"trigger", trigger,
				"answer", response.Text)
		} else {
			decision = parsed
		}
	}

	c.resolve(sessionID, trigger, promptText, decision, forced || failed, unparseable)
}

// resolve routes a decision according to the supervision level:
// apply, queue for confirmation, or (when forced) escalate
// immediately regardless of level. A task torn down while the model
// was thinking drops the decision without error.
func (c *Coordinator) resolve(sessionID string, trigger TriggerKind, promptText string, decision Decision, forced, unparseable bool) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	task := c.tasks[sessionID]
	if task == nil {
		c.mu.Unlock()
		return
	}
	task.deciding = false
	if unparseable {
		c.metrics.UnparseableDecisions++
	}
	if task.Status.Terminal() {
		c.mu.Unlock()
		return
	}

	if forced && decision.Action != ActionEscalate {
		decision = Decision{
			Action: ActionEscalate,
			Reasoning: fmt.Sprintf("idle check limit reached; overriding %s (%s)",
				decision.Action, decision.Reasoning),
		}
	}
	c.metrics.countDecision(decision.Action)

	outcome := OutcomeApplied
	switch {
	case forced:
		// Forced escalations exist to guarantee human visibility;
		// they bypass the confirmation queue even under confirm.
		outcome = OutcomeForced

	case c.level == SupervisionConfirm && decision.Action != ActionIgnore:
		now := c.clock.Now()
		entry := &PendingConfirmation{
			SessionID: sessionID,
			Trigger:   trigger,
			Prompt:    promptText,
			Decision:  decision,
			Task:      task.snapshot(),
			CreatedAt: now,
		}
		c.pending[sessionID] = entry
		task.record(DecisionEntry{
			Trigger:   trigger,
			Prompt:    promptText,
			Action:    decision.Action,
			Response:  decision.input(),
			Reasoning: decision.Reasoning,
			Outcome:   OutcomeQueued,
			Time:      now,
		})
		pendingCopy := *entry
		snapshot := task.snapshot()
		c.mu.Unlock()

		c.logger.Info("decision queued for confirmation",
			"session_id", sessionID,
			"trigger", trigger,
			"action", decision.Action)
		c.feed.Publish(FeedEvent{Type: FeedPending, SessionID: sessionID, Pending: &pendingCopy, Time: now})
		c.feed.Publish(FeedEvent{Type: FeedTask, SessionID: sessionID, Task: &snapshot, Time: now})
		return

	case c.level == SupervisionNotify:
		outcome = OutcomeNotified
	}
	c.mu.Unlock()

	c.perform(sessionID, trigger, promptText, decision, outcome)
}

// perform carries a decision out against the session and records the
// result. Session existence is re-checked through the manager calls
// themselves: a torn-down session turns the decision into a recorded
// no-op.
func (c *Coordinator) perform(sessionID string, trigger TriggerKind, promptText string, decision Decision, outcome Outcome) {
	ctx, cancel := context.WithTimeout(c.runCtx, applyTimeout)
	defer cancel()

	var applyErr error
	switch decision.Action {
	case ActionRespond:
		if decision.UseKeys {
			applyErr = c.sessions.SendKeys(ctx, sessionID, decision.Keys)
		} else {
			applyErr = c.sessions.Send(ctx, sessionID, decision.Response)
		}
	case ActionComplete:
		applyErr = c.sessions.Stop(ctx, sessionID, "task complete")
	case ActionEscalate, ActionIgnore:
		// No session I/O.
	}

	dropped := errors.Is(applyErr, session.ErrSessionNotFound)
	switch {
	case dropped:
		outcome = OutcomeDropped
	case applyErr != nil:
		outcome = OutcomeFailed
		c.logger.Error("applying coordination decision",
			"session_id", sessionID,
			"action", decision.Action,
			"error", applyErr)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	task := c.tasks[sessionID]
	if task == nil {
		c.mu.Unlock()
		return
	}
	now := c.clock.Now()
	task.record(DecisionEntry{
		Trigger:   trigger,
		Prompt:    promptText,
		Action:    decision.Action,
		Response:  decision.input(),
		Reasoning: decision.Reasoning,
		Outcome:   outcome,
		Time:      now,
	})

	if !task.Status.Terminal() && !dropped {
		switch {
		case applyErr != nil:
			// Task state stays put; the idle ladder keeps watching.
			c.armIdleLocked(task, c.idleIntervalLocked(task))
		case decision.Action == ActionEscalate:
			c.finishTaskLocked(task, TaskEscalated)
		case decision.Action == ActionComplete:
			c.finishTaskLocked(task, TaskComplete)
		default:
			task.Status = TaskActive
			c.armIdleLocked(task, c.idleIntervalLocked(task))
		}
	}
	snapshot := task.snapshot()
	c.mu.Unlock()

	c.logger.Info("coordination decision",
		"session_id", sessionID,
		"trigger", trigger,
		"action", decision.Action,
		"outcome", outcome,
		"reasoning", decision.Reasoning)
	c.feed.Publish(FeedEvent{Type: FeedTask, SessionID: sessionID, Task: &snapshot, Time: now})
}

// Confirm applies or discards a queued decision. An override with
// content replaces the decision's input, turning it into a respond.
// Rejection records the discard and leaves the session untouched.
func (c *Coordinator) Confirm(sessionID string, approved bool, override *Override) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errors.New("coordinator closed")
	}
	entry := c.pending[sessionID]
	if entry == nil {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNoPendingConfirmation, sessionID)
	}

	decision := entry.Decision
	if approved && !override.empty() {
		if override.UseKeys && len(override.Keys) == 0 {
			c.mu.Unlock()
			return ErrInvalidOverride
		}
		decision.Action = ActionRespond
		if len(override.Keys) > 0 {
			decision.UseKeys = true
			decision.Keys = override.Keys
			decision.Response = ""
		} else {
			decision.UseKeys = false
			decision.Keys = nil
			decision.Response = override.Response
		}
	}

	delete(c.pending, sessionID)
	task := c.tasks[sessionID]
	now := c.clock.Now()

	if !approved {
		if task != nil {
			task.record(DecisionEntry{
				Trigger:   entry.Trigger,
				Prompt:    entry.Prompt,
				Action:    decision.Action,
				Response:  decision.input(),
				Reasoning: decision.Reasoning,
				Outcome:   OutcomeRejected,
				Time:      now,
			})
			if !task.Status.Terminal() {
				// The session may still be blocked; the idle ladder
				// resumes now that nothing is queued.
				c.armIdleLocked(task, c.idleIntervalLocked(task))
			}
		}
		var snapshot TaskContext
		if task != nil {
			snapshot = task.snapshot()
		}
		c.mu.Unlock()

		c.logger.Info("queued decision rejected", "session_id", sessionID)
		c.feed.Publish(FeedEvent{Type: FeedPendingResolved, SessionID: sessionID, Time: now})
		if task != nil {
			c.feed.Publish(FeedEvent{Type: FeedTask, SessionID: sessionID, Task: &snapshot, Time: now})
		}
		return nil
	}
	c.mu.Unlock()

	c.feed.Publish(FeedEvent{Type: FeedPendingResolved, SessionID: sessionID, Time: now})
	c.perform(sessionID, entry.Trigger, entry.Prompt, decision, OutcomeApplied)
	return nil
}
