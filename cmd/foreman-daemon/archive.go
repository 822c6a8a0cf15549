// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/bureau-foundation/foreman/lib/archive"
	"github.com/bureau-foundation/foreman/lib/clock"
	"github.com/bureau-foundation/foreman/lib/coordinator"
	"github.com/bureau-foundation/foreman/lib/session"
)

// archiver turns terminal session states into archive records. It is
// the manager's OnFinish hook: finish runs on the session's event path
// before the terminal event publishes, so the coordinator task (which
// the terminal event will retire) is still resolvable. The record is
// assembled synchronously from in-memory state; the store write, which
// hits disk, runs on its own goroutine.
type archiver struct {
	store *archive.Store
	clock clock.Clock

	// coordinator is assigned after construction; the manager and the
	// coordinator reference each other through this hook. Nil until
	// then, which only matters if a session could finish before the
	// daemon finishes wiring, and none can: spawns arrive over HTTP,
	// which starts last.
	coordinator *coordinator.Coordinator

	logger *slog.Logger
	writes sync.WaitGroup
}

// finish implements the OnFinish contract: quick, no Manager calls.
func (a *archiver) finish(final session.FinalState) {
	record := &archive.Record{
		ID:                  final.Session.ID,
		SessionID:           final.Session.ID,
		AgentType:           final.Session.AgentType,
		Name:                final.Session.Name,
		Workdir:             final.Session.Workdir,
		InitialTask:         final.InitialTask,
		FinalStatus:         string(final.Session.Status),
		StopReason:          final.StopReason,
		SpawnedAt:           final.Session.CreatedAt,
		StoppedAt:           a.clock.Now(),
		Transcript:          final.Transcript,
		TranscriptTruncated: final.Truncated,
	}
	if record.StopReason == "" {
		record.StopReason = final.Message
	}

	if a.coordinator != nil {
		task, err := a.coordinator.Task(final.Session.ID)
		switch {
		case err == nil:
			record.Label = task.Label
			record.AutoResolved = task.AutoResolvedCount
			record.Decisions = archiveDecisions(task.History)
			if record.InitialTask == "" {
				record.InitialTask = task.OriginalTask
			}
		case !errors.Is(err, coordinator.ErrTaskNotFound):
			a.logger.Warn("task lookup for archive failed",
				"session", final.Session.ID, "error", err)
		}
	}

	a.writes.Add(1)
	go func() {
		defer a.writes.Done()
		if _, err := a.store.Write(record); err != nil {
			a.logger.Error("archiving session record failed",
				"session", record.SessionID, "error", err)
			return
		}
		a.logger.Info("session archived",
			"session", record.SessionID,
			"status", record.FinalStatus,
			"decisions", len(record.Decisions))
	}()
}

// wait blocks until every in-flight record write has completed. Called
// during shutdown after the manager has finished its last session.
func (a *archiver) wait() {
	a.writes.Wait()
}

// archiveDecisions converts the coordinator's decision history into
// the archive's storage shape.
func archiveDecisions(history []coordinator.DecisionEntry) []archive.Decision {
	if len(history) == 0 {
		return nil
	}
	decisions := make([]archive.Decision, len(history))
	for index, entry := range history {
		decisions[index] = archive.Decision{
			Trigger:   string(entry.Trigger),
			Prompt:    entry.Prompt,
			Action:    string(entry.Action),
			Response:  entry.Response,
			Reasoning: entry.Reasoning,
			Outcome:   string(entry.Outcome),
			Time:      entry.Time,
		}
	}
	return decisions
}
