// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/bureau-foundation/foreman/lib/archive"
	"github.com/bureau-foundation/foreman/lib/clock"
	"github.com/bureau-foundation/foreman/lib/coordinator"
	"github.com/bureau-foundation/foreman/lib/session"
)

func testArchiver(t *testing.T) (*archiver, *archive.Store, *clock.FakeClock) {
	t.Helper()

	store, err := archive.NewStore(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("NewStore() error: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	clk := clock.Fake(time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC))
	recorder := &archiver{
		store:  store,
		clock:  clk,
		logger: slog.New(slog.NewJSONHandler(os.Stderr, nil)),
	}
	return recorder, store, clk
}

func TestArchiverFinish(t *testing.T) {
	recorder, store, clk := testArchiver(t)

	spawned := clk.Now().Add(-45 * time.Minute)
	recorder.finish(session.FinalState{
		Session: session.Session{
			ID:        "sess-1",
			AgentType: "claude",
			Name:      "refactor",
			Workdir:   "/work/repo",
			Status:    session.StatusStopped,
			CreatedAt: spawned,
		},
		InitialTask: "refactor the parser",
		Transcript:  "$ exit\n",
		Truncated:   true,
		StopReason:  "operator stop",
	})
	recorder.wait()

	record, err := store.Read("sess-1")
	if err != nil {
		t.Fatalf("Read() error: %v", err)
	}
	if record.SessionID != "sess-1" {
		t.Errorf("SessionID = %q, want %q", record.SessionID, "sess-1")
	}
	if record.AgentType != "claude" {
		t.Errorf("AgentType = %q, want %q", record.AgentType, "claude")
	}
	if record.FinalStatus != "stopped" {
		t.Errorf("FinalStatus = %q, want %q", record.FinalStatus, "stopped")
	}
	if record.StopReason != "operator stop" {
		t.Errorf("StopReason = %q, want %q", record.StopReason, "operator stop")
	}
	if record.InitialTask != "refactor the parser" {
		t.Errorf("InitialTask = %q, want %q", record.InitialTask, "refactor the parser")
	}
	if !record.SpawnedAt.Equal(spawned) {
		t.Errorf("SpawnedAt = %v, want %v", record.SpawnedAt, spawned)
	}
	if !record.StoppedAt.Equal(clk.Now()) {
		t.Errorf("StoppedAt = %v, want %v", record.StoppedAt, clk.Now())
	}
	if record.Transcript != "$ exit\n" {
		t.Errorf("Transcript = %q, want %q", record.Transcript, "$ exit\n")
	}
	if !record.TranscriptTruncated {
		t.Error("TranscriptTruncated = false, want true")
	}
	if len(record.Decisions) != 0 {
		t.Errorf("Decisions has %d entries, want none for an uncoordinated session", len(record.Decisions))
	}
}

func TestArchiverErrorFallsBackToFaultMessage(t *testing.T) {
	recorder, store, clk := testArchiver(t)

	recorder.finish(session.FinalState{
		Session: session.Session{
			ID:        "sess-2",
			AgentType: "claude",
			Status:    session.StatusError,
			CreatedAt: clk.Now(),
		},
		Message: "process exited unexpectedly",
	})
	recorder.wait()

	record, err := store.Read("sess-2")
	if err != nil {
		t.Fatalf("Read() error: %v", err)
	}
	if record.FinalStatus != "error" {
		t.Errorf("FinalStatus = %q, want %q", record.FinalStatus, "error")
	}
	if record.StopReason != "process exited unexpectedly" {
		t.Errorf("StopReason = %q, want the fault message", record.StopReason)
	}
}

func TestArchiveDecisions(t *testing.T) {
	at := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	history := []coordinator.DecisionEntry{
		{
			Trigger:   coordinator.TriggerBlocked,
			Prompt:    "Overwrite file? [y/N]",
			Action:    coordinator.ActionRespond,
			Response:  "y",
			Reasoning: "the task requires replacing the file",
			Outcome:   coordinator.OutcomeApplied,
			Time:      at,
		},
		{
			Trigger:   coordinator.TriggerIdle,
			Action:    coordinator.ActionIgnore,
			Reasoning: "agent is mid-edit",
			Outcome:   coordinator.OutcomeApplied,
			Time:      at.Add(time.Minute),
		},
	}

	decisions := archiveDecisions(history)
	if len(decisions) != 2 {
		t.Fatalf("got %d decisions, want 2", len(decisions))
	}
	first := decisions[0]
	if first.Trigger != "blocked" || first.Action != "respond" || first.Outcome != "applied" {
		t.Errorf("first decision = %+v, want blocked/respond/applied", first)
	}
	if first.Response != "y" || first.Prompt != "Overwrite file? [y/N]" {
		t.Errorf("first decision lost prompt or response: %+v", first)
	}
	if !first.Time.Equal(at) {
		t.Errorf("first decision time = %v, want %v", first.Time, at)
	}
	if decisions[1].Trigger != "idle" {
		t.Errorf("second decision trigger = %q, want %q", decisions[1].Trigger, "idle")
	}

	if archiveDecisions(nil) != nil {
		t.Error("archiveDecisions(nil) should return nil")
	}
}
