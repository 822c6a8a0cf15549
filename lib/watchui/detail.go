// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package watchui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/bureau-foundation/foreman/lib/coordinator"
	"github.com/bureau-foundation/foreman/lib/tui"
)

// detailHeaderLines is the fixed number of lines consumed by the
// detail pane header. This is constant so the scrollable body never
// shifts vertically when switching sessions.
//
// Layout:
//
//	Line 1: STATUS  agent  session-id            ▲ 45s  ↻3  idle ×2
//	Line 2: workdir / uptime / last update (condensed)
//	Line 3: label line 1
//	Line 4: label line 2 (or blank)
//	Line 5: separator
//
// Line 1 includes right-aligned signal indicators when there is
// enough horizontal space after the status and identifiers.
const detailHeaderLines = 5

// promptExcerptLines caps how many terminal excerpt lines a queued
// confirmation shows before eliding the rest.
const promptExcerptLines = 8

// historyDisplayLimit caps how many decision entries the history
// section shows, newest first.
const historyDisplayLimit = 20

// DetailRenderer builds the content for the detail pane. Produces a
// fixed header (rendered outside the viewport) and scrollable body
// (set into the viewport).
type DetailRenderer struct {
	theme Theme
	width int
}

// NewDetailRenderer creates a DetailRenderer for the given width.
func NewDetailRenderer(theme Theme, width int) DetailRenderer {
	return DetailRenderer{theme: theme, width: width}
}

// RenderHeader produces the fixed header lines for a session. Always
// exactly [detailHeaderLines] lines tall regardless of content.
func (renderer DetailRenderer) RenderHeader(row Row, now time.Time) string {
	line1 := renderer.renderMetaLine(row, now)
	line2 := renderer.renderRuntimeLine(row.Task, now)

	label := row.Task.Label
	if label == "" {
		label = firstLine(row.Task.OriginalTask)
	}
	labelLine1, labelLine2 := renderer.renderLabelLines(label)

	separator := lipgloss.NewStyle().
		Foreground(renderer.theme.BorderColor).
		Width(renderer.width).
		Render(strings.Repeat("─", renderer.width))

	return strings.Join([]string{line1, line2, labelLine1, labelLine2, separator}, "\n")
}

// renderMetaLine builds the first header line: status, agent type,
// full session ID, and right-aligned signal indicators.
func (renderer DetailRenderer) renderMetaLine(row Row, now time.Time) string {
	task := row.Task

	statusStyle := lipgloss.NewStyle().
		Foreground(renderer.theme.TaskStatusColor(task.Status)).
		Bold(true)
	faintStyle := lipgloss.NewStyle().
		Foreground(renderer.theme.FaintText)

	leftPortion := statusStyle.Render(strings.ToUpper(string(task.Status))) + "  " +
		faintStyle.Render(task.AgentType) + "  " +
		faintStyle.Render(task.SessionID)

	// Right-align signal indicators if there is enough space.
	signals := renderer.renderSignalIndicators(row, now)
	if signals != "" {
		leftWidth := lipgloss.Width(leftPortion)
		signalsWidth := lipgloss.Width(signals)
		gap := renderer.width - leftWidth - signalsWidth
		if gap >= 2 {
			leftPortion += strings.Repeat(" ", gap) + signals
		}
	}

	return lipgloss.NewStyle().Width(renderer.width).MaxWidth(renderer.width).Render(leftPortion)
}

// renderSignalIndicators builds compact right-aligned indicators for
// the header meta line. Format: "▲ 45s  ↻3  idle ×2".
//
//   - ▲ age: a confirmation has been waiting this long. Accent color.
//   - ↻N: auto-resolved prompt count. Faint below 5, accent from 5.
//   - idle ×N: consecutive idle checks without session activity.
func (renderer DetailRenderer) renderSignalIndicators(row Row, now time.Time) string {
	var indicators []string

	if row.Pending != nil {
		style := lipgloss.NewStyle().Foreground(renderer.theme.PendingAccent).Bold(true)
		indicators = append(indicators, style.Render("▲ "+humanDuration(now.Sub(row.Pending.CreatedAt))))
	}

	if row.Task.AutoResolvedCount > 0 {
		color := renderer.theme.FaintText
		if row.Task.AutoResolvedCount >= 5 {
			color = renderer.theme.PendingAccent
		}
		style := lipgloss.NewStyle().Foreground(color)
		indicators = append(indicators, style.Render(fmt.Sprintf("↻%d", row.Task.AutoResolvedCount)))
	}

	if row.Task.IdleChecks > 0 {
		style := lipgloss.NewStyle().Foreground(renderer.theme.FaintText)
		indicators = append(indicators, style.Render(fmt.Sprintf("idle ×%d", row.Task.IdleChecks)))
	}

	if len(indicators) == 0 {
		return ""
	}
	return strings.Join(indicators, "  ")
}

// renderRuntimeLine builds the second header line: workdir, uptime,
// and time since the last coordination event, condensed onto one line.
func (renderer DetailRenderer) renderRuntimeLine(task coordinator.TaskContext, now time.Time) string {
	metaStyle := lipgloss.NewStyle().Foreground(renderer.theme.FaintText)

	var parts []string
	if task.Workdir != "" {
		parts = append(parts, task.Workdir)
	}
	if !task.CreatedAt.IsZero() {
		parts = append(parts, "up "+humanDuration(now.Sub(task.CreatedAt)))
	}
	if !task.UpdatedAt.IsZero() && task.UpdatedAt.After(task.CreatedAt) {
		parts = append(parts, "upd "+humanDuration(now.Sub(task.UpdatedAt))+" ago")
	}

	line := strings.Join(parts, "  ")
	return metaStyle.Render(lipgloss.NewStyle().Width(renderer.width).MaxWidth(renderer.width).Render(line))
}

// renderLabelLines renders the session label into exactly 2 lines.
// Long labels are truncated with an ellipsis at the end of line 2.
// Short labels leave line 2 blank.
func (renderer DetailRenderer) renderLabelLines(label string) (string, string) {
	labelStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(renderer.theme.HeaderForeground)

	blankLine := lipgloss.NewStyle().Width(renderer.width).Render("")

	if label == "" {
		return blankLine, blankLine
	}

	runes := []rune(label)

	firstLineEnd := findLineBreak(runes, renderer.width)
	if firstLineEnd >= len(runes) {
		return labelStyle.Width(renderer.width).Render(label), blankLine
	}

	line1 := labelStyle.Width(renderer.width).Render(string(runes[:firstLineEnd]))

	remainder := runes[firstLineEnd:]
	// Skip a leading space from the word-break.
	if len(remainder) > 0 && remainder[0] == ' ' {
		remainder = remainder[1:]
	}

	remainderString := string(remainder)
	if lipgloss.Width(remainderString) > renderer.width {
		remainderString = truncateString(remainderString, renderer.width-1) + "…"
	}

	line2 := labelStyle.Width(renderer.width).Render(remainderString)
	return line1, line2
}

// findLineBreak returns the rune index where the first line should
// end, preferring to break at a word boundary.
func findLineBreak(runes []rune, maxWidth int) int {
	lastSpace := -1
	for index := range runes {
		if lipgloss.Width(string(runes[:index+1])) > maxWidth {
			if lastSpace > 0 {
				return lastSpace
			}
			return index
		}
		if runes[index] == ' ' {
			lastSpace = index
		}
	}
	return len(runes)
}

// RenderBody produces the scrollable body content for a session.
// Layout order: queued confirmation, task brief, decision history.
func (renderer DetailRenderer) RenderBody(row Row, now time.Time) string {
	var sections []string

	if row.Pending != nil {
		sections = append(sections, renderer.renderPending(row.Pending, now))
	}

	if row.Task.OriginalTask != "" {
		sections = append(sections, renderer.renderMarkdownSection("Task", row.Task.OriginalTask))
	}

	if len(row.Task.History) > 0 {
		sections = append(sections, renderer.renderHistory(row.Task.History, now))
	}

	return strings.Join(sections, "\n\n")
}

// renderPending renders the queued confirmation block: what the agent
// asked, what the coordinator proposes, and why.
func (renderer DetailRenderer) renderPending(pending *coordinator.PendingConfirmation, now time.Time) string {
	accentStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(renderer.theme.PendingAccent)
	metaStyle := lipgloss.NewStyle().
		Foreground(renderer.theme.FaintText)
	hintStyle := lipgloss.NewStyle().
		Foreground(renderer.theme.HelpText)

	var lines []string
	lines = append(lines, accentStyle.Render("▲ Awaiting Confirmation")+"  "+
		metaStyle.Render(string(pending.Trigger)+" · queued "+humanDuration(now.Sub(pending.CreatedAt))+" ago"))

	if pending.Prompt != "" {
		lines = append(lines, renderer.renderPromptExcerpt(pending.Prompt))
	}

	lines = append(lines, renderer.renderProposedDecision(pending.Decision))

	if pending.Decision.Reasoning != "" {
		reasoning := renderMarkdown(pending.Decision.Reasoning, renderer.theme, renderer.width)
		lines = append(lines, reasoning)
	}

	lines = append(lines, hintStyle.Render("a approve · r reject"))

	return strings.Join(lines, "\n")
}

// renderPromptExcerpt renders captured terminal output as faint
// preformatted lines behind a quote bar, capped at
// [promptExcerptLines] with an elision count.
func (renderer DetailRenderer) renderPromptExcerpt(prompt string) string {
	faintStyle := lipgloss.NewStyle().Foreground(renderer.theme.FaintText)
	barStyle := lipgloss.NewStyle().Foreground(renderer.theme.BorderColor)

	promptLines := strings.Split(strings.TrimRight(prompt, "\n"), "\n")
	elided := 0
	if len(promptLines) > promptExcerptLines {
		elided = len(promptLines) - promptExcerptLines
		promptLines = promptLines[len(promptLines)-promptExcerptLines:]
	}

	contentWidth := renderer.width - 2
	if contentWidth < 10 {
		contentWidth = 10
	}

	var rendered []string
	if elided > 0 {
		rendered = append(rendered, barStyle.Render("│ ")+faintStyle.Render(fmt.Sprintf("… %d earlier lines", elided)))
	}
	for _, line := range promptLines {
		rendered = append(rendered, barStyle.Render("│ ")+faintStyle.Render(ansi.Truncate(line, contentWidth, "…")))
	}
	return strings.Join(rendered, "\n")
}

// renderProposedDecision renders the coordinator's proposed action as
// a single "→" line.
func (renderer DetailRenderer) renderProposedDecision(decision coordinator.Decision) string {
	actionStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(renderer.actionColor(decision.Action))
	textStyle := lipgloss.NewStyle().
		Foreground(renderer.theme.NormalText)

	line := "→ " + actionStyle.Render(string(decision.Action))
	switch {
	case decision.UseKeys:
		line += textStyle.Render(": " + strings.Join(decision.Keys, " "))
	case decision.Response != "":
		line += textStyle.Render(": " + decision.Response)
	}
	return lipgloss.NewStyle().Width(renderer.width).Render(line)
}

// renderHistory renders the decision history section, newest first,
// capped at [historyDisplayLimit] entries.
func (renderer DetailRenderer) renderHistory(history []coordinator.DecisionEntry, now time.Time) string {
	headerStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(renderer.theme.NormalText)
	metaStyle := lipgloss.NewStyle().
		Foreground(renderer.theme.FaintText)

	var lines []string
	shown := 0
	for index := len(history) - 1; index >= 0 && shown < historyDisplayLimit; index-- {
		lines = append(lines, renderer.renderHistoryEntry(history[index], now))
		shown++
	}
	if remaining := len(history) - shown; remaining > 0 {
		lines = append(lines, metaStyle.Render(fmt.Sprintf("… %d earlier decisions", remaining)))
	}

	return headerStyle.Render("Decisions") + "\n" + strings.Join(lines, "\n")
}

// renderHistoryEntry renders one decision: a summary line plus the
// response and reasoning, indented and wrapped underneath.
func (renderer DetailRenderer) renderHistoryEntry(entry coordinator.DecisionEntry, now time.Time) string {
	metaStyle := lipgloss.NewStyle().
		Foreground(renderer.theme.FaintText)
	actionStyle := lipgloss.NewStyle().
		Foreground(renderer.actionColor(entry.Action))
	outcomeStyle := lipgloss.NewStyle().
		Foreground(renderer.outcomeColor(entry.Outcome))

	summary := metaStyle.Render(humanDuration(now.Sub(entry.Time))+" ago") + "  " +
		metaStyle.Render(string(entry.Trigger)) + " → " +
		actionStyle.Render(string(entry.Action)) + " " +
		outcomeStyle.Render("("+string(entry.Outcome)+")")

	lines := []string{summary}

	contentWidth := renderer.width - 2
	if contentWidth < 10 {
		contentWidth = 10
	}

	if entry.Response != "" {
		responseStyle := lipgloss.NewStyle().Foreground(renderer.theme.NormalText)
		lines = append(lines, "  "+responseStyle.Render(ansi.Truncate("↳ "+firstLine(entry.Response), contentWidth, "…")))
	}

	if entry.Reasoning != "" {
		wrapped := ansi.Wrap(metaStyle.Render(entry.Reasoning), contentWidth, wrapBreakpoints)
		for _, line := range strings.Split(wrapped, "\n") {
			lines = append(lines, "  "+line)
		}
	}

	return strings.Join(lines, "\n")
}

// actionColor maps a decision action to its display color.
func (renderer DetailRenderer) actionColor(action coordinator.Action) lipgloss.Color {
	switch action {
	case coordinator.ActionRespond:
		return renderer.theme.TaskActive
	case coordinator.ActionEscalate:
		return renderer.theme.TaskEscalated
	case coordinator.ActionComplete:
		return renderer.theme.TaskComplete
	}
	return renderer.theme.FaintText
}

// outcomeColor maps a decision outcome to its display color.
func (renderer DetailRenderer) outcomeColor(outcome coordinator.Outcome) lipgloss.Color {
	switch outcome {
	case coordinator.OutcomeRejected, coordinator.OutcomeDropped, coordinator.OutcomeFailed:
		return renderer.theme.TaskBlocked
	case coordinator.OutcomeQueued:
		return renderer.theme.PendingAccent
	case coordinator.OutcomeForced:
		return renderer.theme.TaskEscalated
	}
	return renderer.theme.FaintText
}

// renderMarkdownSection renders a titled section with markdown body.
func (renderer DetailRenderer) renderMarkdownSection(title, body string) string {
	headerStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(renderer.theme.NormalText)

	rendered := strings.TrimRight(renderMarkdown(body, renderer.theme, renderer.width), "\n")
	return headerStyle.Render(title) + "\n" + rendered
}

// humanDuration renders a duration in a compact single-unit form:
// "12s", "5m", "3h", "2d".
func humanDuration(duration time.Duration) string {
	if duration < 0 {
		duration = 0
	}
	switch {
	case duration < time.Minute:
		return fmt.Sprintf("%ds", int(duration.Seconds()))
	case duration < time.Hour:
		return fmt.Sprintf("%dm", int(duration.Minutes()))
	case duration < 24*time.Hour:
		return fmt.Sprintf("%dh", int(duration.Hours()))
	}
	return fmt.Sprintf("%dd", int(duration.Hours()/24))
}

// DetailPane is the right-hand pane: a fixed session header above a
// scrollable body holding the confirmation block, task brief, and
// decision history.
type DetailPane struct {
	theme  Theme
	width  int
	height int

	hasRow bool
	row    Row

	// Pre-rendered header string, set by SetContent and rebuild.
	header string

	// renderTime is the time snapshot used for relative ages. Set by
	// SetContent, reused by rebuild so a resize doesn't change the
	// displayed ages.
	renderTime time.Time

	viewport viewport.Model
}

// NewDetailPane creates an empty detail pane.
func NewDetailPane(theme Theme) DetailPane {
	return DetailPane{theme: theme}
}

// bodyHeight returns the number of lines available for the scrollable
// viewport body (total height minus the fixed header).
func (pane DetailPane) bodyHeight() int {
	result := pane.height - detailHeaderLines
	if result < 1 {
		result = 1
	}
	return result
}

// contentWidth returns the usable width for text content (total width
// minus the left padding column and right scrollbar column).
func (pane DetailPane) contentWidth() int {
	return pane.width - 2
}

// SetSize updates the detail pane dimensions. If the width changed
// and a session is displayed, the content is re-rendered at the new
// width so markdown wrapping stays correct.
func (pane *DetailPane) SetSize(width, height int) {
	previousWidth := pane.width
	pane.width = width
	pane.height = height
	pane.viewport.Width = pane.contentWidth()
	pane.viewport.Height = pane.bodyHeight()

	if pane.hasRow && width != previousWidth {
		previousOffset := pane.viewport.YOffset
		pane.rebuild()
		pane.clampOffset(previousOffset)
	}
}

// SetContent updates the detail pane for a session row. Feed events
// re-render the selected session continuously, so the scroll position
// is preserved when the session is unchanged and reset to the top
// when the selection moves to a different session.
func (pane *DetailPane) SetContent(row Row, now time.Time) {
	sameSession := pane.hasRow && pane.row.Task.SessionID == row.Task.SessionID
	previousOffset := pane.viewport.YOffset

	pane.hasRow = true
	pane.row = row
	pane.renderTime = now
	pane.rebuild()

	if sameSession {
		pane.clampOffset(previousOffset)
	} else {
		pane.viewport.GotoTop()
	}
}

// Clear removes the detail pane content.
func (pane *DetailPane) Clear() {
	pane.hasRow = false
	pane.row = Row{}
	pane.header = ""
	pane.viewport.SetContent("")
}

// rebuild regenerates the header and body at the current width.
func (pane *DetailPane) rebuild() {
	contentWidth := pane.contentWidth()
	renderer := NewDetailRenderer(pane.theme, contentWidth)
	pane.header = renderer.RenderHeader(pane.row, pane.renderTime)

	body := renderer.RenderBody(pane.row, pane.renderTime)
	// Wrap body to contentWidth so no line exceeds the viewport
	// width. Section renderers already truncate their own lines, but
	// markdown sections can produce long unbroken words.
	body = lipgloss.NewStyle().Width(contentWidth).Render(body)
	pane.viewport.SetContent(body)
}

// clampOffset restores a scroll offset, clamped to the current
// content height.
func (pane *DetailPane) clampOffset(offset int) {
	maxOffset := pane.viewport.TotalLineCount() - pane.viewport.Height
	if maxOffset < 0 {
		maxOffset = 0
	}
	if offset > maxOffset {
		offset = maxOffset
	}
	pane.viewport.SetYOffset(offset)
}

// View renders the detail pane as a docked panel with a fixed header,
// scrollable body, left padding, and a right scrollbar.
func (pane DetailPane) View(focused bool) string {
	contentWidth := pane.contentWidth()

	if !pane.hasRow {
		emptyStyle := lipgloss.NewStyle().
			Foreground(pane.theme.FaintText)

		contentStyle := lipgloss.NewStyle().
			PaddingLeft(1).
			Width(pane.width - 1).
			Height(pane.height)

		content := contentStyle.Render(
			lipgloss.Place(
				contentWidth, pane.height,
				lipgloss.Center, lipgloss.Center,
				emptyStyle.Render("Select a session to view details"),
			),
		)

		scrollbar := tui.RenderScrollbar(
			pane.theme, pane.height,
			0, pane.height, 0,
			focused,
		)
		return lipgloss.JoinHorizontal(lipgloss.Top, content, scrollbar)
	}

	// Build the content column as exactly pane.height lines: fixed
	// header (detailHeaderLines) + scrollable body (remainder).
	paddingStyle := lipgloss.NewStyle().
		PaddingLeft(1).
		Width(pane.width - 1)

	headerView := paddingStyle.Height(detailHeaderLines).Render(pane.header)
	bodyView := paddingStyle.Height(pane.bodyHeight()).Render(pane.viewport.View())
	content := headerView + "\n" + bodyView

	// Scrollbar: blank column for the header rows, actual scrollbar
	// for the body rows. This way the scrollbar only covers the
	// region it actually scrolls.
	headerColumn := lipgloss.NewStyle().
		Width(1).
		Height(detailHeaderLines).
		Render("")
	bodyScrollbar := tui.RenderScrollbar(
		pane.theme, pane.bodyHeight(),
		pane.viewport.TotalLineCount(), pane.viewport.Height, pane.viewport.YOffset,
		focused,
	)
	scrollColumn := headerColumn + "\n" + bodyScrollbar

	return lipgloss.JoinHorizontal(lipgloss.Top, content, scrollColumn)
}

// ScrollUp scrolls the detail pane up by half a page.
func (pane *DetailPane) ScrollUp() {
	pane.viewport.HalfViewUp()
}

// ScrollDown scrolls the detail pane down by half a page.
func (pane *DetailPane) ScrollDown() {
	pane.viewport.HalfViewDown()
}
