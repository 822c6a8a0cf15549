// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package watchui

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/bureau-foundation/foreman/lib/coordinator"
	"github.com/bureau-foundation/foreman/lib/tui"
)

// FocusRegion identifies which surface has keyboard focus.
type FocusRegion int

const (
	// FocusList means navigation keys move the session list cursor.
	FocusList FocusRegion = iota
	// FocusDetail means navigation keys scroll the detail viewport.
	FocusDetail
	// FocusFilter means keystrokes go to the filter input.
	FocusFilter
	// FocusDropdown means the supervision dropdown is active. All
	// keyboard input routes to the dropdown until the user selects a
	// level or dismisses it.
	FocusDropdown
	// FocusCompose means the message compose modal is active. All
	// keyboard input routes to the textarea inside the modal. Ctrl+D
	// submits, Escape cancels.
	FocusCompose
)

// Split ratio bounds and step size.
const (
	splitRatioMin  = 0.20
	splitRatioMax  = 0.80
	splitRatioStep = 0.05
)

// Header layout: app name, then the supervision level. The dropdown
// anchors under the level text so selecting feels like editing it in
// place.
const (
	headerAppName          = " foreman "
	headerSupervisionLabel = " supervision: "
)

// actionTimeout bounds the daemon calls behind approve, reject,
// supervision changes, and message sends. The HTTP client itself
// carries no timeout.
const actionTimeout = 10 * time.Second

// actionErrorFadeDelay is how long a failed action's error stays
// visible in the help bar.
const actionErrorFadeDelay = 4 * time.Second

// clockTickInterval drives the periodic re-render that keeps relative
// timestamps and the staleness indicator current.
const clockTickInterval = time.Second

// sourceEventMsg wraps a Source Event for delivery through the
// bubbletea message loop.
type sourceEventMsg struct {
	event Event
}

// heatTickMsg is sent periodically to drive the heat decay animation.
// While any rows are hot, a new tick is scheduled after each one.
type heatTickMsg struct{}

// clockTickMsg is sent once per second to refresh relative timestamps.
type clockTickMsg struct{}

// actionResultMsg is sent when an asynchronous operator action
// completes. On success, err is nil and the event feed delivers the
// resulting state change. On error, err is displayed in the help bar.
type actionResultMsg struct {
	verb string
	err  error
}

// actionErrorFadeMsg is sent after a delay to clear the action error
// notice from the help bar.
type actionErrorFadeMsg struct{}

// Model is the top-level bubbletea model for the coordination
// dashboard.
type Model struct {
	source Source
	actor  Actor // Nil when the source is read-only.
	theme  Theme
	keys   KeyMap

	// Terminal dimensions (set by WindowSizeMsg).
	width  int
	height int
	ready  bool

	filter FilterModel

	// List state. state is the folded coordination data, rows pairs
	// each task with its pending confirmation, and matches is rows
	// after filtering.
	state        State
	rows         []Row
	matches      []FilterMatch
	cursor       int
	scrollOffset int
	selectedID   string // Stable focus: track selection by session ID.

	// Two-pane layout.
	focusRegion FocusRegion
	priorFocus  FocusRegion // Saved focus when an overlay takes over input.
	splitRatio  float64     // Fraction of width for the list pane.
	detailPane  DetailPane  // Right pane: scrollable task detail.

	// Operator action state. Active when the source implements Actor.
	activeDropdown *tui.DropdownOverlay // Non-nil when the supervision dropdown is visible.
	composeModal   *tui.ComposeModal    // Non-nil when the compose modal is visible.
	composeTarget  string               // Session the compose modal sends to.
	actionError    string               // Briefly displayed in the help bar after a failed action.
	showHelp       bool                 // True while the key reference overlay is visible.

	// Log notice from TUILogHandler, shown briefly in the help bar.
	logNotice string
	logLevel  slog.Level

	// Live update animation.
	heatTracker  *tui.HeatTracker // Tracks recently-changed sessions for glow animation.
	eventChannel <-chan Event     // Source event subscription; nil if no live updates.
	tickRunning  bool             // True when the heat animation tick timer is active.
}

// NewModel creates a Model connected to the given coordination data
// source. Operator actions (approve, reject, supervision, message)
// are enabled when the source also implements [Actor].
func NewModel(source Source) Model {
	actor, _ := source.(Actor)

	model := Model{
		source:       source,
		actor:        actor,
		theme:        DefaultTheme,
		keys:         DefaultKeyMap,
		state:        source.State(),
		splitRatio:   0.50,
		detailPane:   NewDetailPane(DefaultTheme),
		heatTracker:  tui.NewHeatTracker(),
		eventChannel: source.Subscribe(),
	}

	model.rebuildRows()

	if len(model.matches) > 0 {
		model.selectedID = model.matches[0].Row.Task.SessionID
	}

	return model
}

// Init implements tea.Model. Starts the clock tick and, when the
// source delivers live updates, the event listener.
func (model Model) Init() tea.Cmd {
	commands := []tea.Cmd{scheduleClockTick()}
	if model.eventChannel != nil {
		commands = append(commands, listenForSourceEvent(model.eventChannel))
	}
	return tea.Batch(commands...)
}

// listenForSourceEvent returns a tea.Cmd that blocks until an event
// arrives on the source channel, then delivers it as a sourceEventMsg.
func listenForSourceEvent(channel <-chan Event) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-channel
		if !ok {
			return nil
		}
		return sourceEventMsg{event: event}
	}
}

// scheduleHeatTick returns a tea.Cmd that sends a heatTickMsg after
// the animation tick interval.
func scheduleHeatTick() tea.Cmd {
	return tea.Tick(tui.HeatTickInterval, func(time.Time) tea.Msg {
		return heatTickMsg{}
	})
}

// scheduleClockTick returns a tea.Cmd that sends a clockTickMsg after
// one second. Relative timestamps ("queued 45s ago") and the
// staleness indicator drift without a periodic re-render.
func scheduleClockTick() tea.Cmd {
	return tea.Tick(clockTickInterval, func(time.Time) tea.Msg {
		return clockTickMsg{}
	})
}

// Update implements tea.Model. Routes keyboard events based on the
// current focus region and handles layout changes.
func (model Model) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch message := message.(type) {
	case tea.KeyMsg:
		// Overlays and the filter capture all input while active.
		if model.showHelp {
			return model.handleHelpKeys(message)
		}
		if model.focusRegion == FocusFilter {
			return model.handleFilterKeys(message)
		}
		if model.focusRegion == FocusDropdown {
			return model.handleDropdownKeys(message)
		}
		if model.focusRegion == FocusCompose {
			return model.handleComposeKeys(message)
		}

		switch {
		case key.Matches(message, model.keys.Quit):
			return model, tea.Quit

		case key.Matches(message, model.keys.FocusToggle):
			if model.focusRegion == FocusList {
				model.focusRegion = FocusDetail
			} else {
				model.focusRegion = FocusList
			}

		case key.Matches(message, model.keys.SplitGrow):
			model.splitRatio += splitRatioStep
			if model.splitRatio > splitRatioMax {
				model.splitRatio = splitRatioMax
			}
			model.updatePaneSizes()

		case key.Matches(message, model.keys.SplitShrink):
			model.splitRatio -= splitRatioStep
			if model.splitRatio < splitRatioMin {
				model.splitRatio = splitRatioMin
			}
			model.updatePaneSizes()

		case key.Matches(message, model.keys.FilterActivate):
			model.priorFocus = model.focusRegion
			model.focusRegion = FocusFilter
			model.filter.Active = true
			// Reset list position to the top so the user sees results
			// from the beginning as they type.
			model.cursor = 0
			model.scrollOffset = 0

		case key.Matches(message, model.keys.FilterClear):
			if model.filter.Input != "" {
				model.filter.Clear()
				model.applyFilter()
			}

		case key.Matches(message, model.keys.Approve):
			return model.confirmSelected(true)

		case key.Matches(message, model.keys.Reject):
			return model.confirmSelected(false)

		case key.Matches(message, model.keys.Supervision):
			model.openSupervisionDropdown()

		case key.Matches(message, model.keys.Compose):
			return model.openComposeModal()

		case key.Matches(message, model.keys.Help):
			model.showHelp = true

		default:
			if model.focusRegion == FocusList {
				model.handleListKeys(message)
			} else {
				model.handleDetailKeys(message)
			}
		}

	case tea.WindowSizeMsg:
		model.width = message.Width
		model.height = message.Height
		model.ready = true
		model.updatePaneSizes()
		model.syncDetailPane()

	case sourceEventMsg:
		return model.handleSourceEvent(message)

	case heatTickMsg:
		return model.handleHeatTick()

	case clockTickMsg:
		// Re-render the detail pane so its relative timestamps stay
		// current, then schedule the next tick.
		model.syncDetailPane()
		return model, scheduleClockTick()

	case actionResultMsg:
		if message.err != nil {
			model.actionError = fmt.Sprintf("%s: %s", message.verb, message.err)
			return model, tea.Tick(actionErrorFadeDelay, func(time.Time) tea.Msg {
				return actionErrorFadeMsg{}
			})
		}

	case actionErrorFadeMsg:
		model.actionError = ""

	case logRecordMsg:
		model.logNotice = message.Summary
		model.logLevel = message.Level
		return model, tea.Tick(logRecordFadeDelay, func(time.Time) tea.Msg {
			return logRecordFadeMsg{}
		})

	case logRecordFadeMsg:
		model.logNotice = ""
	}
	return model, nil
}

// contentStartY returns the Y coordinate where the content area
// begins. The top chrome line is always exactly 1 row: either the
// status header or the filter bar. The filter bar replaces the header
// rather than pushing content down.
func (model Model) contentStartY() int {
	return 1
}

// visibleHeight returns the number of list rows that fit between the
// chrome elements: the top line plus the bottom separator (1) and
// help bar (1).
func (model Model) visibleHeight() int {
	return model.height - model.contentStartY() - 2
}

// listWidth returns the width of the list pane in columns.
func (model Model) listWidth() int {
	return int(float64(model.width) * model.splitRatio)
}

// updatePaneSizes recalculates pane dimensions after a resize or
// split ratio change.
func (model *Model) updatePaneSizes() {
	contentHeight := model.visibleHeight()
	// 1 column for the vertical divider between panes.
	detailWidth := model.width - model.listWidth() - 1
	if detailWidth < 10 {
		detailWidth = 10
	}
	model.detailPane.SetSize(detailWidth, contentHeight)
}

// rebuildRows reconstructs the displayed rows from the current state
// and re-applies the filter.
func (model *Model) rebuildRows() {
	model.rows = buildRows(model.state)
	model.matches = model.filter.ApplyFuzzy(model.rows)
}

// refreshFromSource reloads state from the source and rebuilds the
// row list, preserving the selection where possible.
func (model *Model) refreshFromSource() {
	model.state = model.source.State()
	model.rebuildRows()
	model.restoreSelection()
	model.ensureCursorVisible()
	model.syncDetailPane()
}

// applyFilter re-filters the current rows without reloading from the
// source.
func (model *Model) applyFilter() {
	model.matches = model.filter.ApplyFuzzy(model.rows)

	// When actively filtering, snap to the top of the list so the
	// highest-scored matches are visible as the user types. Without
	// this, the scroll offset from the pre-filter list persists and
	// the user sees an arbitrary slice of filtered results.
	if model.filter.Input != "" {
		model.cursor = 0
		model.scrollOffset = 0
		if len(model.matches) > 0 {
			model.selectedID = model.matches[0].Row.Task.SessionID
		}
	} else {
		model.restoreSelection()
	}
	model.ensureCursorVisible()
	model.syncDetailPane()
}

// restoreSelection attempts to find the previously selected session
// in the rebuilt row list and move the cursor there. If not found,
// clamps the cursor to a valid position.
func (model *Model) restoreSelection() {
	if model.selectedID == "" {
		model.cursor = 0
		return
	}

	for index, match := range model.matches {
		if match.Row.Task.SessionID == model.selectedID {
			model.cursor = index
			return
		}
	}

	// Selected session is no longer in the list. Clamp cursor.
	model.cursor = model.clampedIndex(model.cursor)
}

// clampedIndex returns position clamped to valid row bounds.
func (model *Model) clampedIndex(position int) int {
	if len(model.matches) == 0 {
		return 0
	}
	if position < 0 {
		return 0
	}
	if position >= len(model.matches) {
		return len(model.matches) - 1
	}
	return position
}

// ensureCursorVisible adjusts scrollOffset so the cursor is within
// the visible window.
func (model *Model) ensureCursorVisible() {
	visible := model.visibleHeight()
	if visible <= 0 {
		return
	}

	// Clamp scrollOffset so we never scroll past the end of the list.
	// This handles refreshes where the new list is shorter than the
	// old scrollOffset.
	maxOffset := len(model.matches) - visible
	if maxOffset < 0 {
		maxOffset = 0
	}
	if model.scrollOffset > maxOffset {
		model.scrollOffset = maxOffset
	}

	// Ensure the cursor is within the visible window.
	if model.cursor < model.scrollOffset {
		model.scrollOffset = model.cursor
	}
	if model.cursor >= model.scrollOffset+visible {
		model.scrollOffset = model.cursor - visible + 1
	}
}

// selectedRow returns the row under the cursor.
func (model Model) selectedRow() (Row, bool) {
	if model.cursor < 0 || model.cursor >= len(model.matches) {
		return Row{}, false
	}
	return model.matches[model.cursor].Row, true
}

// syncDetailPane updates the detail pane content to reflect the
// currently selected session.
func (model *Model) syncDetailPane() {
	if model.cursor < 0 || model.cursor >= len(model.matches) {
		model.detailPane.Clear()
		return
	}

	row := model.matches[model.cursor].Row
	model.selectedID = row.Task.SessionID
	model.detailPane.SetContent(row, time.Now())
}

// handleListKeys processes navigation keys when the list has focus.
func (model *Model) handleListKeys(message tea.KeyMsg) {
	prevCursor := model.cursor

	switch {
	case key.Matches(message, model.keys.Up):
		if model.cursor > 0 {
			model.cursor--
		}

	case key.Matches(message, model.keys.Down):
		if model.cursor < len(model.matches)-1 {
			model.cursor++
		}

	case key.Matches(message, model.keys.PageUp):
		target := model.cursor - model.visibleHeight()
		if target < 0 {
			target = 0
		}
		model.cursor = model.clampedIndex(target)

	case key.Matches(message, model.keys.PageDown):
		target := model.cursor + model.visibleHeight()
		if len(model.matches) > 0 && target >= len(model.matches) {
			target = len(model.matches) - 1
		}
		model.cursor = model.clampedIndex(target)

	case key.Matches(message, model.keys.Home):
		model.cursor = 0

	case key.Matches(message, model.keys.End):
		if len(model.matches) > 0 {
			model.cursor = len(model.matches) - 1
		}
	}

	model.ensureCursorVisible()

	// Update detail pane if selection changed.
	if model.cursor != prevCursor {
		model.syncDetailPane()
	}
}

// handleDetailKeys processes navigation keys when the detail pane has
// focus.
func (model *Model) handleDetailKeys(message tea.KeyMsg) {
	switch {
	case key.Matches(message, model.keys.Up):
		model.detailPane.viewport.LineUp(1)
	case key.Matches(message, model.keys.Down):
		model.detailPane.viewport.LineDown(1)
	case key.Matches(message, model.keys.PageUp):
		model.detailPane.ScrollUp()
	case key.Matches(message, model.keys.PageDown):
		model.detailPane.ScrollDown()
	case key.Matches(message, model.keys.Home):
		model.detailPane.viewport.GotoTop()
	case key.Matches(message, model.keys.End):
		model.detailPane.viewport.GotoBottom()
	}
}

// handleFilterKeys processes keystrokes when the filter input has focus.
func (model Model) handleFilterKeys(message tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(message, model.keys.Quit):
		// ctrl+c always quits, even in filter mode.
		if message.Type == tea.KeyCtrlC {
			return model, tea.Quit
		}
		// 'q' is a regular character in filter mode.
		model.filter.HandleRune('q')
		model.applyFilter()
		return model, nil

	case key.Matches(message, model.keys.FilterClear):
		// Esc: if there's filter text, clear it; if already empty,
		// exit filter mode.
		if model.filter.Input != "" {
			model.filter.Clear()
			model.applyFilter()
		} else {
			model.filter.Active = false
			model.focusRegion = model.priorFocus
		}
		return model, nil

	case message.Type == tea.KeyEnter:
		// Confirm filter and return focus to the list.
		model.filter.Active = false
		model.focusRegion = FocusList
		return model, nil

	case message.Type == tea.KeyBackspace:
		if model.filter.HandleBackspace() {
			model.applyFilter()
		}
		return model, nil

	case message.Type == tea.KeyRunes || message.Type == tea.KeySpace:
		for _, character := range message.Runes {
			model.filter.HandleRune(character)
		}
		model.applyFilter()
		return model, nil
	}

	return model, nil
}

// confirmSelected dispatches an approve or reject for the selected
// session's pending confirmation. Does nothing when the source is
// read-only or the selected session has nothing queued.
func (model Model) confirmSelected(approved bool) (tea.Model, tea.Cmd) {
	if model.actor == nil {
		return model, nil
	}
	row, ok := model.selectedRow()
	if !ok || row.Pending == nil {
		return model, nil
	}

	verb := "approve"
	if !approved {
		verb = "reject"
	}
	sessionID := row.Task.SessionID
	actor := model.actor
	return model, func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()
		err := actor.Confirm(ctx, sessionID, approved)
		return actionResultMsg{verb: verb, err: err}
	}
}

// openSupervisionDropdown opens the supervision level selector under
// the header. Does nothing when the source is read-only.
func (model *Model) openSupervisionDropdown() {
	if model.actor == nil {
		return
	}

	options := []tui.DropdownOption{
		{Label: "autonomous", Value: string(coordinator.SupervisionAutonomous)},
		{Label: "confirm", Value: string(coordinator.SupervisionConfirm)},
		{Label: "notify", Value: string(coordinator.SupervisionNotify)},
	}

	// Pre-select the current level.
	cursor := 0
	for index, option := range options {
		if option.Value == string(model.state.Supervision) {
			cursor = index
			break
		}
	}

	model.activeDropdown = &tui.DropdownOverlay{
		Options: options,
		Cursor:  cursor,
		AnchorX: len(headerAppName) + len(headerSupervisionLabel),
		AnchorY: 1, // Directly below the header line.
	}
	model.priorFocus = model.focusRegion
	model.focusRegion = FocusDropdown
}

// handleDropdownKeys processes keyboard input while the supervision
// dropdown is active. Up/down navigate, enter selects, escape
// dismisses. All other keys are consumed to keep them from reaching
// the underlying panes.
func (model Model) handleDropdownKeys(message tea.KeyMsg) (tea.Model, tea.Cmd) {
	if model.activeDropdown == nil {
		model.focusRegion = FocusList
		return model, nil
	}

	switch {
	case key.Matches(message, model.keys.Quit):
		if message.Type == tea.KeyCtrlC {
			return model, tea.Quit
		}
		// 'q' dismisses the dropdown rather than quitting.
		model.dismissDropdown()

	case key.Matches(message, model.keys.FilterClear):
		// Escape dismisses the dropdown.
		model.dismissDropdown()

	case key.Matches(message, model.keys.Up):
		model.activeDropdown.MoveUp()

	case key.Matches(message, model.keys.Down):
		model.activeDropdown.MoveDown()

	case message.Type == tea.KeyEnter:
		selected := model.activeDropdown.Selected()
		model.dismissDropdown()
		return model.applySupervision(coordinator.Supervision(selected.Value))
	}

	return model, nil
}

// dismissDropdown closes the dropdown overlay and restores the focus
// it interrupted.
func (model *Model) dismissDropdown() {
	model.activeDropdown = nil
	model.focusRegion = model.priorFocus
}

// applySupervision dispatches a supervision level change. Selecting
// the current level is a no-op.
func (model Model) applySupervision(level coordinator.Supervision) (tea.Model, tea.Cmd) {
	if model.actor == nil || level == model.state.Supervision {
		return model, nil
	}

	actor := model.actor
	return model, func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()
		err := actor.SetSupervision(ctx, level)
		return actionResultMsg{verb: "supervision", err: err}
	}
}

// openComposeModal opens the message compose modal for the currently
// selected session. Does nothing when nothing is selected or the
// source is read-only.
func (model Model) openComposeModal() (tea.Model, tea.Cmd) {
	if model.actor == nil {
		return model, nil
	}
	row, ok := model.selectedRow()
	if !ok {
		return model, nil
	}

	title := "Send to " + row.Task.SessionID
	if row.Task.Label != "" {
		title = "Send to " + row.Task.Label
	}

	model.composeModal = tui.NewComposeModal(title, model.theme)
	model.composeTarget = row.Task.SessionID
	model.priorFocus = model.focusRegion
	model.focusRegion = FocusCompose
	return model, nil
}

// handleComposeKeys processes keyboard input while the compose modal
// is active. Ctrl+D submits the message, Escape cancels. All other
// input goes to the textarea.
func (model Model) handleComposeKeys(message tea.KeyMsg) (tea.Model, tea.Cmd) {
	if model.composeModal == nil {
		model.focusRegion = FocusList
		return model, nil
	}

	switch {
	case message.Type == tea.KeyCtrlC:
		return model, tea.Quit

	case message.Type == tea.KeyEsc:
		model.closeComposeModal()
		return model, nil

	case message.Type == tea.KeyCtrlD:
		text := strings.TrimSpace(model.composeModal.Value())
		sessionID := model.composeTarget
		model.closeComposeModal()

		if text == "" {
			return model, nil
		}

		actor := model.actor
		return model, func() tea.Msg {
			ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
			defer cancel()
			err := actor.Send(ctx, sessionID, text)
			return actionResultMsg{verb: "send", err: err}
		}

	default:
		// Forward to the textarea.
		model.composeModal.Update(message)
		return model, nil
	}
}

// closeComposeModal discards the compose modal and restores the focus
// it interrupted.
func (model *Model) closeComposeModal() {
	model.composeModal = nil
	model.composeTarget = ""
	model.focusRegion = model.priorFocus
}

// handleHelpKeys processes keyboard input while the key reference
// overlay is visible. Any key dismisses it; ctrl+c still quits.
func (model Model) handleHelpKeys(message tea.KeyMsg) (tea.Model, tea.Cmd) {
	if message.Type == tea.KeyCtrlC {
		return model, tea.Quit
	}
	model.showHelp = false
	return model, nil
}

// handleSourceEvent processes a live event from the source. Ignites
// the heat tracker for the affected session, refreshes the view, and
// schedules the animation tick if not already running.
func (model Model) handleSourceEvent(message sourceEventMsg) (tea.Model, tea.Cmd) {
	event := message.event
	now := time.Now()

	// Ignite heat for the changed session. Source-level events
	// (snapshot, connection) carry no session and get no glow.
	if event.SessionID != "" {
		kind := tui.HeatUpdate
		if event.Kind == string(coordinator.FeedPendingResolved) {
			kind = tui.HeatResolve
		}
		model.heatTracker.Ignite(event.SessionID, kind, now)
	}

	// Refresh the view from the source (which already folded the
	// change into its state before dispatching the event).
	model.refreshFromSource()

	// Always re-listen for the next event, and start the heat tick if
	// something is glowing and the timer isn't already running.
	commands := []tea.Cmd{listenForSourceEvent(model.eventChannel)}
	if !model.tickRunning && model.heatTracker.HasHot(now) {
		model.tickRunning = true
		commands = append(commands, scheduleHeatTick())
	}

	return model, tea.Batch(commands...)
}

// handleHeatTick processes a heat animation tick. If any rows are
// still hot, schedules another tick; otherwise stops the timer.
func (model Model) handleHeatTick() (tea.Model, tea.Cmd) {
	now := time.Now()
	if model.heatTracker.HasHot(now) {
		return model, scheduleHeatTick()
	}
	model.tickRunning = false
	return model, nil
}

// View implements tea.Model. Renders the full dashboard frame with
// two panes.
func (model Model) View() string {
	if !model.ready {
		return "Loading..."
	}

	if len(model.matches) == 0 && model.filter.Input == "" {
		return model.renderEmpty()
	}

	var sections []string

	// Top chrome line: either the status header or the filter bar.
	// The filter bar replaces the header so the layout doesn't shift.
	filterView := model.filter.View(model.theme, model.width)
	if filterView != "" {
		sections = append(sections, filterView)
	} else {
		sections = append(sections, model.renderHeader())
	}

	// Two-pane content area with vertical divider.
	listView := model.renderListPane()
	divider := model.renderDivider()
	detailFocused := model.focusRegion == FocusDetail
	detailView := model.detailPane.View(detailFocused)
	contentArea := lipgloss.JoinHorizontal(lipgloss.Top, listView, divider, detailView)
	sections = append(sections, contentArea)

	// Bottom separator.
	separator := lipgloss.NewStyle().
		Foreground(model.theme.BorderColor).
		Render(strings.Repeat("─", model.width))
	sections = append(sections, separator)

	// Help bar.
	sections = append(sections, model.renderHelp())

	output := strings.Join(sections, "\n")

	// Overlay the supervision dropdown if active.
	if model.activeDropdown != nil {
		dropdownLines := model.activeDropdown.Render(model.theme)
		output = tui.SpliceOverlay(output, dropdownLines,
			model.activeDropdown.AnchorX, model.activeDropdown.AnchorY)
	}

	// Overlay the compose modal if active.
	if model.composeModal != nil {
		modalLines, anchorX, anchorY := model.composeModal.Render(model.width, model.height)
		output = tui.SpliceOverlay(output, modalLines, anchorX, anchorY)
	}

	// Overlay the key reference if active.
	if model.showHelp {
		helpLines := model.renderHelpOverlay()
		overlayWidth := 0
		if len(helpLines) > 0 {
			overlayWidth = ansi.StringWidth(helpLines[0])
		}
		anchorX := (model.width - overlayWidth) / 2
		anchorY := (model.height - len(helpLines)) / 2
		if anchorX < 0 {
			anchorX = 0
		}
		if anchorY < 0 {
			anchorY = 0
		}
		output = tui.SpliceOverlay(output, helpLines, anchorX, anchorY)
	}

	return output
}

// renderHeader renders the top status line: app name, supervision
// level, and right-aligned counters with the connection state. The
// gap is filled with rule characters so the line reads as chrome.
func (model Model) renderHeader() string {
	sep := lipgloss.NewStyle().Foreground(model.theme.BorderColor).Render("─")

	appStyle := lipgloss.NewStyle().
		Foreground(model.theme.HeaderForeground).
		Bold(true)
	labelStyle := lipgloss.NewStyle().Foreground(model.theme.FaintText)
	levelStyle := lipgloss.NewStyle().
		Foreground(model.supervisionColor()).
		Bold(true)

	level := string(model.state.Supervision)
	if level == "" {
		level = "unknown"
	}

	leftParts := appStyle.Render(headerAppName) +
		labelStyle.Render(headerSupervisionLabel) +
		levelStyle.Render(level) + " "
	cursor := len(headerAppName) + len(headerSupervisionLabel) + len(level) + 1

	// Counters and connection state on the right.
	tasksText := fmt.Sprintf("%d tasks", len(model.state.Tasks))
	pendingText := fmt.Sprintf("%d pending", len(model.state.Pending))
	connectionText, connectionColor := model.connectionStatus(time.Now())

	pendingStyle := labelStyle
	if len(model.state.Pending) > 0 {
		pendingStyle = lipgloss.NewStyle().
			Foreground(model.theme.PendingAccent).
			Bold(true)
	}
	connectionStyle := lipgloss.NewStyle().Foreground(connectionColor)

	rightRendered := labelStyle.Render(tasksText) + "  " +
		pendingStyle.Render(pendingText) + "  " +
		connectionStyle.Render(connectionText)
	rightWidth := lipgloss.Width(tasksText) + 2 +
		lipgloss.Width(pendingText) + 2 +
		lipgloss.Width(connectionText)

	rightPortion := " " + rightRendered + " " + sep

	fillCount := model.width - cursor - rightWidth - 3
	if fillCount < 1 {
		fillCount = 1
	}
	fill := strings.Repeat(sep, fillCount)

	return leftParts + fill + rightPortion
}

// supervisionColor maps the current supervision level to its header
// accent.
func (model Model) supervisionColor() lipgloss.Color {
	switch model.state.Supervision {
	case coordinator.SupervisionAutonomous:
		return model.theme.TaskActive
	case coordinator.SupervisionConfirm:
		return model.theme.PendingAccent
	case coordinator.SupervisionNotify:
		return model.theme.TaskEscalated
	default:
		return model.theme.FaintText
	}
}

// connectionStatus returns the display label and color for the feed
// connection. While reconnecting, the label carries how stale the
// displayed state is.
func (model Model) connectionStatus(now time.Time) (string, lipgloss.Color) {
	switch model.source.ConnectionState() {
	case ConnectionLive:
		return "live", model.theme.TaskActive
	case ConnectionReconnecting:
		label := "reconnecting"
		if last := model.source.LastActivity(); !last.IsZero() {
			label = "reconnecting, stale " + humanDuration(now.Sub(last))
		}
		return label, model.theme.TaskBlocked
	default:
		return "connecting", model.theme.FaintText
	}
}

// renderListPane renders the session list with scrollbar and heat
// tinting.
func (model Model) renderListPane() string {
	listWidth := model.listWidth()

	// Always reserve 1 column for the scrollbar so content stays at a
	// fixed position regardless of focus state.
	focused := model.focusRegion == FocusList
	rowWidth := listWidth - 1

	renderer := NewListRenderer(model.theme, rowWidth)

	visible := model.visibleHeight()
	if visible < 0 {
		visible = 0
	}

	now := time.Now()
	var rows []string
	for index := model.scrollOffset; index < model.scrollOffset+visible && index < len(model.matches); index++ {
		match := model.matches[index]
		selected := index == model.cursor
		row := renderer.RenderRow(match, selected)

		// Apply heat tint for recently-changed sessions (selection
		// highlight takes priority so we skip hot styling there).
		if !selected {
			sessionID := match.Row.Task.SessionID
			if heat := model.heatTracker.Heat(sessionID, now); heat > 0 {
				accentColor := model.theme.HotAccentUpdate
				if model.heatTracker.Kind(sessionID) == tui.HeatResolve {
					accentColor = model.theme.HotAccentResolve
				}
				row = lipgloss.NewStyle().
					Background(accentColor).
					Width(rowWidth).
					MaxWidth(rowWidth).
					Render(row)
			}
		}
		rows = append(rows, row)
	}

	// Pad empty rows.
	rendered := len(rows)
	if rendered < visible {
		emptyStyle := lipgloss.NewStyle().Width(rowWidth)
		for padding := rendered; padding < visible; padding++ {
			rows = append(rows, emptyStyle.Render(""))
		}
	}

	// Right scrollbar: shows scroll position and focus state.
	scrollbar := tui.RenderScrollbar(
		model.theme, visible,
		len(model.matches), visible, model.scrollOffset,
		focused,
	)

	contentStyle := lipgloss.NewStyle().
		Width(rowWidth).
		Height(visible)

	return lipgloss.JoinHorizontal(lipgloss.Top,
		contentStyle.Render(strings.Join(rows, "\n")),
		scrollbar,
	)
}

// renderDivider renders the single-column vertical divider between
// the list and detail panes.
func (model Model) renderDivider() string {
	visible := model.visibleHeight()
	if visible < 0 {
		visible = 0
	}

	dividerStyle := lipgloss.NewStyle().
		Foreground(model.theme.BorderColor)

	lines := make([]string, visible)
	for index := range lines {
		lines[index] = "│"
	}

	return dividerStyle.Width(1).Height(visible).Render(strings.Join(lines, "\n"))
}

// renderEmpty renders the full-screen empty state shown before any
// coordinated sessions exist.
func (model Model) renderEmpty() string {
	text := "No coordinated sessions."
	if model.source.ConnectionState() == ConnectionConnecting {
		text = "Connecting to the daemon..."
	}

	style := lipgloss.NewStyle().Foreground(model.theme.FaintText)
	return lipgloss.Place(
		model.width, model.height,
		lipgloss.Center, lipgloss.Center,
		style.Render(text),
	)
}

// renderHelp renders the bottom help bar with key hints and position.
func (model Model) renderHelp() string {
	style := lipgloss.NewStyle().Foreground(model.theme.HelpText)

	focusIndicator := "LIST"
	switch model.focusRegion {
	case FocusDetail:
		focusIndicator = "DETAIL"
	case FocusFilter:
		focusIndicator = "FILTER"
	case FocusDropdown:
		focusIndicator = "SELECT"
	case FocusCompose:
		focusIndicator = "COMPOSE"
	}

	help := fmt.Sprintf(" [%s] q quit  ↑↓ navigate  Tab focus  ]/[ resize  / filter",
		focusIndicator)
	if model.actor != nil {
		help += "  a/r approve/reject  s supervision  m message"
	}
	help += "  ? keys"

	if len(model.matches) > model.visibleHeight() {
		position := ""
		if model.scrollOffset == 0 {
			position = "top"
		} else if model.scrollOffset+model.visibleHeight() >= len(model.matches) {
			position = "bottom"
		} else {
			percent := float64(model.scrollOffset) / float64(len(model.matches)-model.visibleHeight()) * 100
			position = fmt.Sprintf("%d%%", int(percent))
		}
		help += fmt.Sprintf("  [%s] %d/%d", position, model.cursor+1, len(model.matches))
	} else if len(model.matches) > 0 {
		help += fmt.Sprintf("  %d/%d", model.cursor+1, len(model.matches))
	}

	// Show the action error when an operator action failed.
	if model.actionError != "" {
		errorStyle := lipgloss.NewStyle().
			Foreground(model.theme.TaskBlocked).
			Bold(true)
		help += "  " + errorStyle.Render("Error: "+model.actionError)
	}

	// Show the most recent warning or error from the log stream.
	if model.logNotice != "" {
		noticeColor := model.theme.PendingAccent
		if model.logLevel >= slog.LevelError {
			noticeColor = model.theme.TaskBlocked
		}
		noticeStyle := lipgloss.NewStyle().
			Foreground(noticeColor).
			Bold(true)
		help += "  " + noticeStyle.Render(model.logNotice)
	}

	return style.Render(help)
}

// renderHelpOverlay builds the centered key reference box shown when
// the user presses '?'.
func (model Model) renderHelpOverlay() []string {
	bindings := []key.Binding{
		model.keys.Up,
		model.keys.Down,
		model.keys.PageUp,
		model.keys.PageDown,
		model.keys.Home,
		model.keys.End,
		model.keys.FocusToggle,
		model.keys.SplitGrow,
		model.keys.SplitShrink,
		model.keys.FilterActivate,
	}
	if model.actor != nil {
		bindings = append(bindings,
			model.keys.Approve,
			model.keys.Reject,
			model.keys.Supervision,
			model.keys.Compose,
		)
	}
	bindings = append(bindings, model.keys.Quit)

	keyColumnWidth := 0
	for _, binding := range bindings {
		if width := ansi.StringWidth(binding.Help().Key); width > keyColumnWidth {
			keyColumnWidth = width
		}
	}

	title := "Keys"
	innerWidth := len(title)
	rows := make([]string, 0, len(bindings))
	for _, binding := range bindings {
		help := binding.Help()
		pad := keyColumnWidth - ansi.StringWidth(help.Key)
		if pad < 0 {
			pad = 0
		}
		row := help.Key + strings.Repeat(" ", pad) + "  " + help.Desc
		if width := ansi.StringWidth(row); width > innerWidth {
			innerWidth = width
		}
		rows = append(rows, row)
	}

	backgroundStyle := lipgloss.NewStyle().
		Background(model.theme.OverlayBackground).
		Foreground(model.theme.OverlayForeground)
	titleStyle := lipgloss.NewStyle().
		Background(model.theme.OverlayBackground).
		Foreground(model.theme.HeaderForeground).
		Bold(true)

	totalWidth := innerWidth + 2
	lines := make([]string, 0, len(rows)+2)
	lines = append(lines, tui.PadOverlayLine(titleStyle.Render(title), innerWidth, totalWidth, backgroundStyle))
	lines = append(lines, tui.PadOverlayLine("", innerWidth, totalWidth, backgroundStyle))
	for _, row := range rows {
		lines = append(lines, tui.PadOverlayLine(backgroundStyle.Render(row), innerWidth, totalWidth, backgroundStyle))
	}
	return lines
}
