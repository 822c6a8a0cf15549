// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package coordinator

import (
	"sort"
	"time"

	"github.com/bureau-foundation/foreman/lib/pubsub"
)

// FeedEventType names an incremental update on the coordination feed.
type FeedEventType string

const (
	// FeedTask carries a task context that changed.
	FeedTask FeedEventType = "task"

	// FeedPending carries a newly queued confirmation.
	FeedPending FeedEventType = "pending"

	// FeedPendingResolved announces that a session's queued
	// confirmation was applied, rejected, or dropped.
	FeedPendingResolved FeedEventType = "pending-resolved"

	// FeedSupervision announces a supervision level change.
	FeedSupervision FeedEventType = "supervision"
)

// FeedEvent is one incremental update delivered to feed observers.
type FeedEvent struct {
	Type        FeedEventType        `json:"type"`
	SessionID   string               `json:"sessionId,omitempty"`
	Task        *TaskContext         `json:"task,omitempty"`
	Pending     *PendingConfirmation `json:"pending,omitempty"`
	Supervision Supervision          `json:"supervision,omitempty"`
	Time        time.Time            `json:"time"`
}

// Snapshot is the full coordination state, delivered to a new feed
// observer before any incremental events.
type Snapshot struct {
	Supervision Supervision           `json:"supervisionLevel"`
	Tasks       []TaskContext         `json:"tasks"`
	Pending     []PendingConfirmation `json:"pending"`
	Metrics     Metrics               `json:"metrics"`
	Time        time.Time             `json:"time"`
}

// feedBuffer is each observer's channel capacity.
const feedBuffer = 64

// Subscribe registers a feed observer. Events arrive in publish order
// on a buffered channel; an observer that stops draining has its
// channel closed and must resubscribe to resynchronize. The cancel
// func unregisters the observer and closes the channel.
func (c *Coordinator) Subscribe() (<-chan FeedEvent, func()) {
	buffer := pubsub.NewBuffer[FeedEvent](feedBuffer)
	cancelHub := c.feed.Subscribe(func(event FeedEvent) {
		if buffer.Deliver(event) {
			c.logger.Warn("coordination feed observer lagged; closed its channel")
		}
	})
	return buffer.C(), func() {
		cancelHub()
		buffer.Close()
	}
}

// Snapshot assembles the current coordination state: every task
// context (by creation order) and every pending confirmation.
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	tasks := make([]TaskContext, 0, len(c.tasks))
	for _, task := range c.tasks {
		tasks = append(tasks, task.snapshot())
	}
	sort.Slice(tasks, func(i, j int) bool {
		if !tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
		}
		return tasks[i].SessionID < tasks[j].SessionID
	})

	return Snapshot{
		Supervision: c.level,
		Tasks:       tasks,
		Pending:     c.pendingLocked(),
		Metrics:     c.metrics,
		Time:        c.clock.Now(),
	}
}

func (c *Coordinator) pendingLocked() []PendingConfirmation {
	pending := make([]PendingConfirmation, 0, len(c.pending))
	for _, entry := range c.pending {
		pending = append(pending, *entry)
	}
	sort.Slice(pending, func(i, j int) bool {
		if !pending[i].CreatedAt.Equal(pending[j].CreatedAt) {
			return pending[i].CreatedAt.Before(pending[j].CreatedAt)
		}
		return pending[i].SessionID < pending[j].SessionID
	})
	return pending
}
