// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package watchui

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/x/ansi"

	"github.com/bureau-foundation/foreman/lib/coordinator"
)

// detailTime returns a fixed time for deterministic relative ages.
func detailTime() time.Time {
	return time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
}

func TestHumanDuration(t *testing.T) {
	tests := []struct {
		duration time.Duration
		want     string
	}{
		{12 * time.Second, "12s"},
		{5 * time.Minute, "5m"},
		{3 * time.Hour, "3h"},
		{48 * time.Hour, "2d"},
		{-5 * time.Second, "0s"},
	}
	for _, test := range tests {
		if got := humanDuration(test.duration); got != test.want {
			t.Errorf("humanDuration(%v) = %q, want %q", test.duration, got, test.want)
		}
	}
}

func TestRenderHeaderMetaLine(t *testing.T) {
	now := detailTime()
	renderer := NewDetailRenderer(DefaultTheme, 80)
	row := Row{Task: coordinator.TaskContext{
		SessionID: "refactor-auth",
		AgentType: "claude",
		Label:     "Refactor auth middleware",
		Status:    coordinator.TaskActive,
		Workdir:   "/srv/checkout/auth",
		CreatedAt: now.Add(-2 * time.Hour),
	}}

	header := ansi.Strip(renderer.RenderHeader(row, now))

	if !strings.Contains(header, "ACTIVE") {
		t.Error("missing uppercase status")
	}
	if !strings.Contains(header, "claude") {
		t.Error("missing agent type")
	}
	if !strings.Contains(header, "refactor-auth") {
		t.Error("missing full session ID")
	}
	if !strings.Contains(header, "/srv/checkout/auth") {
		t.Error("missing workdir")
	}
	if !strings.Contains(header, "up 2h") {
		t.Errorf("missing uptime, got:\n%s", header)
	}
	if !strings.Contains(header, "Refactor auth middleware") {
		t.Error("missing label")
	}

	// The header is a fixed height so the body never shifts.
	if lines := strings.Count(header, "\n") + 1; lines != detailHeaderLines {
		t.Errorf("expected %d header lines, got %d", detailHeaderLines, lines)
	}
}

func TestRenderHeaderSignalIndicators(t *testing.T) {
	now := detailTime()
	renderer := NewDetailRenderer(DefaultTheme, 80)
	row := Row{
		Task: coordinator.TaskContext{
			SessionID:         "busy-one",
			AgentType:         "claude",
			Label:             "Port the scheduler",
			Status:            coordinator.TaskBlocked,
			AutoResolvedCount: 3,
			IdleChecks:        2,
		},
		Pending: &coordinator.PendingConfirmation{
			SessionID: "busy-one",
			CreatedAt: now.Add(-45 * time.Second),
		},
	}

	header := ansi.Strip(renderer.RenderHeader(row, now))

	if !strings.Contains(header, "▲ 45s") {
		t.Errorf("missing confirmation age indicator, got:\n%s", header)
	}
	if !strings.Contains(header, "↻3") {
		t.Error("missing auto-resolved count")
	}
	if !strings.Contains(header, "idle ×2") {
		t.Error("missing idle check count")
	}
}

func TestRenderHeaderLabelFallsBackToTask(t *testing.T) {
	now := detailTime()
	renderer := NewDetailRenderer(DefaultTheme, 80)
	row := Row{Task: coordinator.TaskContext{
		SessionID:    "no-label",
		AgentType:    "claude",
		OriginalTask: "Chase the flaky websocket test\nin the integration suite",
		Status:       coordinator.TaskActive,
	}}

	header := ansi.Strip(renderer.RenderHeader(row, now))

	if !strings.Contains(header, "Chase the flaky websocket test") {
		t.Errorf("expected first task line in header, got:\n%s", header)
	}
}

func TestRenderBodyPending(t *testing.T) {
	now := detailTime()
	renderer := NewDetailRenderer(DefaultTheme, 80)
	row := Row{
		Task: coordinator.TaskContext{
			SessionID: "refactor-auth",
			Status:    coordinator.TaskBlocked,
		},
		Pending: &coordinator.PendingConfirmation{
			SessionID: "refactor-auth",
			Trigger:   coordinator.TriggerBlocked,
			Prompt:    "Overwrite existing file? [y/N]",
			Decision: coordinator.Decision{
				Action:    coordinator.ActionRespond,
				Response:  "y",
				Reasoning: "The file is a generated artifact and safe to replace.",
			},
			CreatedAt: now.Add(-45 * time.Second),
		},
	}

	body := ansi.Strip(renderer.RenderBody(row, now))

	if !strings.Contains(body, "▲ Awaiting Confirmation") {
		t.Errorf("missing confirmation banner, got:\n%s", body)
	}
	if !strings.Contains(body, "blocked") {
		t.Error("missing trigger kind")
	}
	if !strings.Contains(body, "queued 45s ago") {
		t.Error("missing queue age")
	}
	if !strings.Contains(body, "Overwrite existing file? [y/N]") {
		t.Error("missing prompt excerpt")
	}
	if !strings.Contains(body, "respond") {
		t.Error("missing proposed action")
	}
	if !strings.Contains(body, "safe to replace") {
		t.Error("missing reasoning")
	}
	if !strings.Contains(body, "a approve · r reject") {
		t.Error("missing action hint")
	}
}

func TestRenderPromptExcerptElidesEarlierLines(t *testing.T) {
	renderer := NewDetailRenderer(DefaultTheme, 80)

	var promptLines []string
	for index := 1; index <= 12; index++ {
		promptLines = append(promptLines, fmt.Sprintf("prompt line %02d", index))
	}
	excerpt := ansi.Strip(renderer.renderPromptExcerpt(strings.Join(promptLines, "\n")))

	if !strings.Contains(excerpt, "… 4 earlier lines") {
		t.Errorf("missing elision count, got:\n%s", excerpt)
	}
	if strings.Contains(excerpt, "prompt line 01") {
		t.Error("elided line should not appear")
	}
	if !strings.Contains(excerpt, "prompt line 05") {
		t.Error("first kept line should appear")
	}
	if !strings.Contains(excerpt, "prompt line 12") {
		t.Error("last line should appear")
	}
}

func TestRenderProposedDecisionResponse(t *testing.T) {
	renderer := NewDetailRenderer(DefaultTheme, 80)

	line := ansi.Strip(renderer.renderProposedDecision(coordinator.Decision{
		Action:   coordinator.ActionRespond,
		Response: "y",
	}))

	if !strings.Contains(line, "→ respond: y") {
		t.Errorf("expected respond line, got: %q", line)
	}
}

func TestRenderProposedDecisionKeys(t *testing.T) {
	renderer := NewDetailRenderer(DefaultTheme, 80)

	line := ansi.Strip(renderer.renderProposedDecision(coordinator.Decision{
		Action:  coordinator.ActionRespond,
		UseKeys: true,
		Keys:    []string{"Down", "Enter"},
	}))

	if !strings.Contains(line, "→ respond: Down Enter") {
		t.Errorf("expected key sequence line, got: %q", line)
	}
}

func TestRenderBodyTaskSection(t *testing.T) {
	now := detailTime()
	renderer := NewDetailRenderer(DefaultTheme, 80)
	row := Row{Task: coordinator.TaskContext{
		SessionID:    "docs-pass",
		OriginalTask: "Update the **API documentation** for the new endpoints.",
		Status:       coordinator.TaskActive,
	}}

	body := ansi.Strip(renderer.RenderBody(row, now))

	if !strings.Contains(body, "Task") {
		t.Error("missing Task section header")
	}
	if !strings.Contains(body, "API documentation") {
		t.Errorf("missing task text, got:\n%s", body)
	}
}

func TestRenderHistoryNewestFirst(t *testing.T) {
	now := detailTime()
	renderer := NewDetailRenderer(DefaultTheme, 80)

	history := []coordinator.DecisionEntry{
		{Trigger: coordinator.TriggerBlocked, Action: coordinator.ActionRespond, Response: "oldest-response", Outcome: coordinator.OutcomeApplied, Time: now.Add(-3 * time.Minute)},
		{Trigger: coordinator.TriggerIdle, Action: coordinator.ActionIgnore, Response: "middle-response", Outcome: coordinator.OutcomeApplied, Time: now.Add(-2 * time.Minute)},
		{Trigger: coordinator.TriggerBlocked, Action: coordinator.ActionRespond, Response: "newest-response", Outcome: coordinator.OutcomeApplied, Time: now.Add(-1 * time.Minute)},
	}

	rendered := ansi.Strip(renderer.renderHistory(history, now))

	if !strings.Contains(rendered, "Decisions") {
		t.Error("missing Decisions header")
	}

	newestPosition := strings.Index(rendered, "newest-response")
	oldestPosition := strings.Index(rendered, "oldest-response")
	if newestPosition < 0 || oldestPosition < 0 {
		t.Fatalf("missing history entries, got:\n%s", rendered)
	}
	if newestPosition > oldestPosition {
		t.Error("history should render newest first")
	}
}

func TestRenderHistoryCapsEntries(t *testing.T) {
	now := detailTime()
	renderer := NewDetailRenderer(DefaultTheme, 80)

	var history []coordinator.DecisionEntry
	for index := 0; index < historyDisplayLimit+5; index++ {
		history = append(history, coordinator.DecisionEntry{
			Trigger: coordinator.TriggerIdle,
			Action:  coordinator.ActionIgnore,
			Outcome: coordinator.OutcomeApplied,
			Time:    now.Add(-time.Duration(index) * time.Minute),
		})
	}

	rendered := ansi.Strip(renderer.renderHistory(history, now))

	if !strings.Contains(rendered, "… 5 earlier decisions") {
		t.Errorf("missing earlier-decisions count, got:\n%s", rendered)
	}
}

func TestRenderBodyEmptySession(t *testing.T) {
	now := detailTime()
	renderer := NewDetailRenderer(DefaultTheme, 80)
	row := Row{Task: coordinator.TaskContext{
		SessionID: "bare",
		Status:    coordinator.TaskActive,
	}}

	if body := renderer.RenderBody(row, now); body != "" {
		t.Errorf("expected empty body for a bare session, got:\n%s", body)
	}
}

// longHistoryRow builds a row whose body is guaranteed to exceed a
// short viewport, for scroll tests.
func longHistoryRow(sessionID string, now time.Time) Row {
	var history []coordinator.DecisionEntry
	for index := 0; index < 15; index++ {
		history = append(history, coordinator.DecisionEntry{
			Trigger:  coordinator.TriggerBlocked,
			Action:   coordinator.ActionRespond,
			Response: fmt.Sprintf("response number %d", index),
			Outcome:  coordinator.OutcomeApplied,
			Time:     now.Add(-time.Duration(index) * time.Minute),
		})
	}
	return Row{Task: coordinator.TaskContext{
		SessionID: sessionID,
		Status:    coordinator.TaskActive,
		History:   history,
	}}
}

func TestDetailPaneScrollPreservedForSameSession(t *testing.T) {
	now := detailTime()
	pane := NewDetailPane(DefaultTheme)
	pane.SetSize(40, 12)
	pane.SetContent(longHistoryRow("session-a", now), now)

	pane.ScrollDown()
	offset := pane.viewport.YOffset
	if offset == 0 {
		t.Fatal("expected scroll to move the viewport")
	}

	// A feed-driven re-render of the same session keeps the position.
	pane.SetContent(longHistoryRow("session-a", now.Add(time.Second)), now.Add(time.Second))
	if pane.viewport.YOffset != offset {
		t.Errorf("same-session update should preserve scroll offset: got %d, want %d",
			pane.viewport.YOffset, offset)
	}

	// Selecting a different session resets to the top.
	pane.SetContent(longHistoryRow("session-b", now), now)
	if pane.viewport.YOffset != 0 {
		t.Errorf("new session should reset scroll, got offset %d", pane.viewport.YOffset)
	}
}

func TestDetailPaneClear(t *testing.T) {
	now := detailTime()
	pane := NewDetailPane(DefaultTheme)
	pane.SetSize(40, 12)
	pane.SetContent(longHistoryRow("session-a", now), now)

	pane.Clear()

	view := ansi.Strip(pane.View(false))
	if !strings.Contains(view, "Select a session to view details") {
		t.Errorf("cleared pane should show the placeholder, got:\n%s", view)
	}
}

func TestDetailPaneViewShowsHeaderAndBody(t *testing.T) {
	now := detailTime()
	pane := NewDetailPane(DefaultTheme)
	pane.SetSize(50, 20)
	pane.SetContent(Row{Task: coordinator.TaskContext{
		SessionID:    "view-session",
		AgentType:    "claude",
		Label:        "Ship the release notes",
		Status:       coordinator.TaskActive,
		OriginalTask: "Write release notes for the 1.4 cut.",
	}}, now)

	view := ansi.Strip(pane.View(true))

	if !strings.Contains(view, "ACTIVE") {
		t.Error("missing status in pane view")
	}
	if !strings.Contains(view, "Ship the release notes") {
		t.Error("missing label in pane view")
	}
	if !strings.Contains(view, "release notes for the 1.4 cut") {
		t.Errorf("missing body text, got:\n%s", view)
	}
}
