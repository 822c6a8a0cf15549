// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package watchui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/bureau-foundation/foreman/lib/coordinator"
)

// Column widths for the list table. The label column fills remaining
// space; all others are fixed.
const (
	// columnWidthSessionID is the short session ID column: the first
	// eight characters of the ID plus a trailing space.
	columnWidthSessionID = 9

	// columnWidthAgent is the agent type column plus a trailing space.
	columnWidthAgent = 11

	// maxLeftWidth is the width of the left portion before the ID
	// column: 1 (indent) + 1 (status icon) + 1 (space).
	maxLeftWidth = 3
)

// autoResolvedIndicatorWidth is the fixed width reserved for the
// auto-resolved count suffix when a task has AutoResolvedCount > 0.
// Format: " ↻NN".
const autoResolvedIndicatorWidth = 4

// Row is one session line in the dashboard list: the coordinated task
// plus its queued confirmation, when one is waiting for the operator.
type Row struct {
	Task    coordinator.TaskContext
	Pending *coordinator.PendingConfirmation
}

// rowRank orders the list so sessions needing operator attention come
// first: queued confirmations, then escalated, blocked, active,
// idle-checking, complete.
func rowRank(row Row) int {
	if row.Pending != nil {
		return 0
	}
	switch row.Task.Status {
	case coordinator.TaskEscalated:
		return 1
	case coordinator.TaskBlocked:
		return 2
	case coordinator.TaskActive:
		return 3
	case coordinator.TaskIdleChecking:
		return 4
	case coordinator.TaskComplete:
		return 5
	}
	return 6
}

// buildRows pairs every coordinated task with its queued confirmation
// and orders the result for display: attention rank first, then task
// age, session ID as the final tiebreak so reorderings are stable
// across refreshes.
func buildRows(state State) []Row {
	rows := make([]Row, 0, len(state.Tasks))
	for _, task := range state.Tasks {
		rows = append(rows, Row{Task: task, Pending: state.PendingFor(task.SessionID)})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		rankI, rankJ := rowRank(rows[i]), rowRank(rows[j])
		if rankI != rankJ {
			return rankI < rankJ
		}
		if !rows[i].Task.CreatedAt.Equal(rows[j].Task.CreatedAt) {
			return rows[i].Task.CreatedAt.Before(rows[j].Task.CreatedAt)
		}
		return rows[i].Task.SessionID < rows[j].Task.SessionID
	})
	return rows
}

// statusIconString returns a single-glyph icon for a task status.
func statusIconString(status coordinator.TaskStatus) string {
	switch status {
	case coordinator.TaskActive:
		return "●"
	case coordinator.TaskBlocked:
		return "◐"
	case coordinator.TaskIdleChecking:
		return "○"
	case coordinator.TaskComplete:
		return "✓"
	case coordinator.TaskEscalated:
		return "!"
	default:
		return "·"
	}
}

// shortSessionID returns the leading eight characters of a session ID,
// enough to tell sessions apart at a glance.
func shortSessionID(sessionID string) string {
	if len(sessionID) > 8 {
		return sessionID[:8]
	}
	return sessionID
}

// ListRenderer handles the table-style rendering of session rows
// within a given width.
type ListRenderer struct {
	theme Theme
	width int
}

// NewListRenderer creates a ListRenderer for the given width.
func NewListRenderer(theme Theme, width int) ListRenderer {
	return ListRenderer{theme: theme, width: width}
}

// RenderRow renders a single session as a formatted table row. The
// selected flag controls whether the row gets highlight styling. The
// match's LabelPositions contains rune indices in the task label that
// matched the current fuzzy filter query; those characters are
// highlighted with the search highlight background.
//
// Row layout: indent + icon + " " + short ID + agent + label [+ " ↻N"]
//
// A row with a queued confirmation shows ▲ in place of the status
// icon; auto-resolved decision counts append as a ↻N suffix:
//
//	▲ a1b2c3d4 claude    Fix connection pooling leak
//	● 9f8e7d6c codex     Implement retry backoff ↻3
func (renderer ListRenderer) RenderRow(match FilterMatch, selected bool) string {
	row := match.Row
	labelWidth := renderer.width - maxLeftWidth - columnWidthSessionID - columnWidthAgent
	if labelWidth < 10 {
		labelWidth = 10
	}

	// Reserve space for the auto-resolved indicator when present.
	hasAutoResolved := row.Task.AutoResolvedCount > 0
	if hasAutoResolved {
		labelWidth -= autoResolvedIndicatorWidth
	}

	// Sessions spawned without a label fall back to the task text.
	label := row.Task.Label
	positions := match.LabelPositions
	if label == "" {
		label = firstLine(row.Task.OriginalTask)
		positions = nil
	}
	displayed := label
	if lipgloss.Width(displayed) > labelWidth {
		displayed = truncateString(displayed, labelWidth-1) + "…"
	}

	if selected {
		return renderer.renderSelectedRow(row, displayed, positions, hasAutoResolved)
	}
	return renderer.renderNormalRow(row, displayed, positions, hasAutoResolved)
}

// renderNormalRow renders a row with per-component foreground colors.
// No background color (default terminal background). positions
// contains rune indices in the original label that should be
// highlighted.
func (renderer ListRenderer) renderNormalRow(row Row, displayed string, positions []int, hasAutoResolved bool) string {
	task := row.Task

	var iconPart string
	if row.Pending != nil {
		iconPart = " " + lipgloss.NewStyle().
			Foreground(renderer.theme.PendingAccent).
			Bold(true).
			Render("▲") + " "
	} else {
		iconPart = " " + lipgloss.NewStyle().
			Foreground(renderer.theme.TaskStatusColor(task.Status)).
			Render(statusIconString(task.Status)) + " "
	}

	idStyle := lipgloss.NewStyle().
		Width(columnWidthSessionID).
		Foreground(renderer.theme.TaskStatusColor(task.Status))

	agentStyle := lipgloss.NewStyle().
		Width(columnWidthAgent).
		Foreground(renderer.theme.FaintText)

	labelStyle := lipgloss.NewStyle().
		Foreground(renderer.theme.NormalText)

	var labelRendered string
	if len(positions) > 0 {
		highlightStyle := lipgloss.NewStyle().
			Foreground(renderer.theme.NormalText).
			Background(renderer.theme.SearchHighlightBackground)
		labelRendered = highlightLabel(displayed, task.Label, positions, labelStyle, highlightStyle)
	} else {
		labelRendered = labelStyle.Render(displayed)
	}

	rendered := iconPart +
		idStyle.Render(shortSessionID(task.SessionID)) +
		agentStyle.Render(truncateString(task.AgentType, columnWidthAgent-1)) +
		labelRendered

	if hasAutoResolved {
		rendered += renderer.renderAutoResolvedIndicator(task.AutoResolvedCount, false)
	}

	return lipgloss.NewStyle().Width(renderer.width).MaxWidth(renderer.width).Render(rendered)
}

// renderSelectedRow renders the selected row with a highlight
// background. All text uses the selected foreground color. positions
// contains rune indices in the original label that should be
// highlighted (with bold+underline on the selection bg).
func (renderer ListRenderer) renderSelectedRow(row Row, displayed string, positions []int, hasAutoResolved bool) string {
	task := row.Task
	baseStyle := lipgloss.NewStyle().
		Background(renderer.theme.SelectedBackground).
		Foreground(renderer.theme.SelectedForeground)

	icon := statusIconString(task.Status)
	if row.Pending != nil {
		icon = "▲"
	}

	var labelRendered string
	if len(positions) > 0 {
		// On a selected row the background is already the selection
		// color, so a different background tint would be subtle.
		// Use bold+underline to make matches pop against the
		// selection highlight.
		highlightStyle := baseStyle.Bold(true).Underline(true)
		labelRendered = highlightLabel(displayed, task.Label, positions, baseStyle, highlightStyle)
	} else {
		labelRendered = baseStyle.Render(displayed)
	}

	rendered := " " + baseStyle.Bold(true).Render(icon) + " " +
		baseStyle.Width(columnWidthSessionID).Render(shortSessionID(task.SessionID)) +
		baseStyle.Width(columnWidthAgent).Render(truncateString(task.AgentType, columnWidthAgent-1)) +
		labelRendered

	if hasAutoResolved {
		rendered += renderer.renderAutoResolvedIndicator(task.AutoResolvedCount, true)
	}

	return baseStyle.Width(renderer.width).MaxWidth(renderer.width).Render(rendered)
}

// renderAutoResolvedIndicator returns a styled " ↻N" suffix counting
// decisions the coordinator applied without operator involvement. The
// color warms once the count reaches 5 so heavily self-driving
// sessions stand out for review.
func (renderer ListRenderer) renderAutoResolvedIndicator(count int, selected bool) string {
	if selected {
		// Selected rows use uniform foreground; indicator rendered
		// in the same style as the rest of the row.
		return fmt.Sprintf(" ↻%d", count)
	}
	color := renderer.theme.FaintText
	if count >= 5 {
		color = renderer.theme.PendingAccent
	}
	return " " + lipgloss.NewStyle().Foreground(color).Render(fmt.Sprintf("↻%d", count))
}

// highlightLabel renders a label with character-level highlighting at
// the given rune positions. Positions index into the original label
// text (before truncation). Characters at matched positions use
// highlightStyle; all others use baseStyle. Consecutive runs of
// same-style characters are batched into a single Render call to keep
// ANSI output compact.
func highlightLabel(displayed string, originalLabel string, positions []int, baseStyle, highlightStyle lipgloss.Style) string {
	if len(positions) == 0 {
		return baseStyle.Render(displayed)
	}

	// Build a set of matched rune indices for O(1) lookup.
	positionSet := make(map[int]bool, len(positions))
	for _, position := range positions {
		positionSet[position] = true
	}

	labelLength := len([]rune(originalLabel))
	displayedRunes := []rune(displayed)

	var result strings.Builder
	runStart := 0
	isHighlighted := runStart < labelLength && positionSet[0]

	for index := 1; index <= len(displayedRunes); index++ {
		// Characters past the original label length (the truncation
		// ellipsis) are never highlighted.
		currentHighlighted := index < labelLength && positionSet[index]
		if currentHighlighted != isHighlighted || index == len(displayedRunes) {
			chunk := string(displayedRunes[runStart:index])
			if isHighlighted {
				result.WriteString(highlightStyle.Render(chunk))
			} else {
				result.WriteString(baseStyle.Render(chunk))
			}
			runStart = index
			isHighlighted = currentHighlighted
		}
	}

	return result.String()
}

// firstLine returns text up to the first newline.
func firstLine(text string) string {
	if index := strings.IndexByte(text, '\n'); index >= 0 {
		return text[:index]
	}
	return text
}

// truncateString truncates a string to maxWidth visual characters.
// Handles multi-byte characters correctly via lipgloss width
// measurement.
func truncateString(text string, maxWidth int) string {
	if lipgloss.Width(text) <= maxWidth {
		return text
	}
	// Truncate by runes until we fit.
	runes := []rune(text)
	for length := len(runes) - 1; length >= 0; length-- {
		candidate := string(runes[:length])
		if lipgloss.Width(candidate) <= maxWidth {
			return candidate
		}
	}
	return ""
}
