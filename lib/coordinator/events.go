// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package coordinator

import (
	"time"

	"github.com/bureau-foundation/foreman/lib/session"
)

// handleSessionEvent runs on the session manager's event path; the
// work here is bookkeeping and trigger dispatch, with reasoning calls
// pushed onto their own goroutines.
func (c *Coordinator) handleSessionEvent(event session.Event) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}

	if event.SessionID != "" && !c.seen[event.SessionID] {
		c.seen[event.SessionID] = true
		c.metrics.SessionsSpawned++
	}

	switch event.Type {
	case session.EventWorkerExit:
		c.metrics.WorkerFaults++
		c.mu.Unlock()
		return
	case session.EventBlocked:
		if event.Prompt != nil && event.Prompt.Kind == "stall" {
			c.metrics.StallClassifications++
		}
		if event.AutoResponded {
			c.metrics.AutoResponses++
		}
	}

	task := c.tasks[event.SessionID]
	if task == nil || task.Status.Terminal() {
		c.mu.Unlock()
		return
	}

	switch event.Type {
	case session.EventReady:
		task.UpdatedAt = event.Time
		if !task.deciding && c.pending[event.SessionID] == nil {
			c.resetIdleLocked(task)
		}
		c.mu.Unlock()

	case session.EventBlocked:
		c.handleBlockedLocked(task, event)

	case session.EventTaskComplete:
		c.handleTurnCompleteLocked(task, event)

	case session.EventLoginRequired:
		// A login needs a human; the dashboard shows it, and the idle
		// ladder escalates if nobody acts.
		task.Status = TaskBlocked
		task.UpdatedAt = event.Time
		snapshot := task.snapshot()
		c.mu.Unlock()
		c.feed.Publish(FeedEvent{Type: FeedTask, SessionID: event.SessionID, Task: &snapshot, Time: event.Time})

	case session.EventStopped, session.EventError:
		status := TaskComplete
		if event.Type == session.EventError {
			status = TaskEscalated
		}
		c.finishTaskLocked(task, status)
		droppedPending := c.pending[event.SessionID] != nil
		delete(c.pending, event.SessionID)
		snapshot := task.snapshot()
		c.mu.Unlock()

		if droppedPending {
			c.feed.Publish(FeedEvent{Type: FeedPendingResolved, SessionID: event.SessionID, Time: event.Time})
		}
		c.feed.Publish(FeedEvent{Type: FeedTask, SessionID: event.SessionID, Task: &snapshot, Time: event.Time})

	default:
		c.mu.Unlock()
	}
}

// handleBlockedLocked processes a blocked event for a coordinated
// task. Takes c.mu held and releases it.
func (c *Coordinator) handleBlockedLocked(task *taskState, event session.Event) {
	if event.AutoResponded {
		// The rule engine already answered; the agent keeps working.
		task.AutoResolvedCount++
		task.UpdatedAt = event.Time
		c.resetIdleLocked(task)
		snapshot := task.snapshot()
		c.mu.Unlock()
		c.feed.Publish(FeedEvent{Type: FeedTask, SessionID: event.SessionID, Task: &snapshot, Time: event.Time})
		return
	}

	task.Status = TaskBlocked
	task.UpdatedAt = event.Time

	if task.deciding || c.pending[event.SessionID] != nil {
		// A decision or a human is already engaged; just surface the
		// new blocked state.
		snapshot := task.snapshot()
		c.mu.Unlock()
		c.feed.Publish(FeedEvent{Type: FeedTask, SessionID: event.SessionID, Task: &snapshot, Time: event.Time})
		return
	}

	promptText := ""
	if event.Prompt != nil {
		promptText = event.Prompt.Text
	}

	task.deciding = true
	c.stopIdleLocked(task)
	prompt := c.buildPromptLocked(task, TriggerBlocked, promptText, "", 0)
	snapshot := task.snapshot()
	c.reasoning.Add(1)
	c.mu.Unlock()

	c.feed.Publish(FeedEvent{Type: FeedTask, SessionID: event.SessionID, Task: &snapshot, Time: event.Time})
	go c.decide(event.SessionID, TriggerBlocked, promptText, prompt, false)
}

// handleTurnCompleteLocked processes a finished turn for a
// coordinated task. Takes c.mu held and releases it.
func (c *Coordinator) handleTurnCompleteLocked(task *taskState, event session.Event) {
	task.UpdatedAt = event.Time
	if task.deciding || c.pending[event.SessionID] != nil {
		c.mu.Unlock()
		return
	}

	task.deciding = true
	c.stopIdleLocked(task)
	prompt := c.buildPromptLocked(task, TriggerTurnComplete, "", event.CapturedResponse, 0)
	c.reasoning.Add(1)
	c.mu.Unlock()

	go c.decide(event.SessionID, TriggerTurnComplete, "", prompt, false)
}

// idleFire runs when a task's idle timer elapses. Activity observed
// through the session's LastActivityAt re-arms the remainder instead
// of counting a check; a genuinely quiet task gets an idle-check
// decision, and the check that reaches the configured maximum forces
// an escalation whatever the reasoning call answers.
func (c *Coordinator) idleFire(sessionID string, generation uint64) {
	c.mu.Lock()
	task := c.tasks[sessionID]
	if c.closed || task == nil || task.idleGen != generation ||
		task.Status.Terminal() || task.deciding || c.pending[sessionID] != nil {
		c.mu.Unlock()
		return
	}

	sess, err := c.sessions.Get(sessionID)
	if err != nil {
		// Session already torn down; its final event finishes the task.
		c.mu.Unlock()
		return
	}

	interval := c.idleIntervalLocked(task)
	quiet := c.clock.Now().Sub(sess.LastActivityAt)
	if quiet < interval {
		c.armIdleLocked(task, interval-quiet)
		c.mu.Unlock()
		return
	}

	task.IdleChecks++
	forced := task.IdleChecks >= c.config.MaxIdleChecks
	task.Status = TaskIdleChecking
	task.UpdatedAt = c.clock.Now()
	task.deciding = true
	prompt := c.buildPromptLocked(task, TriggerIdle, "", "", quiet)
	snapshot := task.snapshot()
	now := task.UpdatedAt
	c.reasoning.Add(1)
	c.mu.Unlock()

	c.logger.Info("idle check",
		"session_id", sessionID,
		"check", snapshot.IdleChecks,
		"max", c.config.MaxIdleChecks,
		"quiet", quiet)
	c.feed.Publish(FeedEvent{Type: FeedTask, SessionID: sessionID, Task: &snapshot, Time: now})
	go c.decide(sessionID, TriggerIdle, "", prompt, forced)
}

// buildPromptLocked renders the reasoning prompt for a trigger.
// Caller must hold c.mu.
func (c *Coordinator) buildPromptLocked(task *taskState, trigger TriggerKind, promptText, captured string, quiet time.Duration) string {
	tail, err := c.sessions.TailOutput(task.SessionID, c.config.OutputTailLines)
	if err != nil {
		tail = ""
	}
	return buildPrompt(c.config.Prompts, promptInput{
		Task:          task.TaskContext,
		Trigger:       trigger,
		PromptText:    promptText,
		Captured:      captured,
		Quiet:         quiet,
		IdleCheck:     task.IdleChecks,
		IdleMax:       c.config.MaxIdleChecks,
		OutputTail:    tail,
		HistoryWindow: c.config.HistoryWindow,
	})
}
