// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package watchui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/bureau-foundation/foreman/lib/coordinator"
)

// fakeSource is a read-only Source backed by a State the test mutates
// directly. Events are dispatched by the test, not by the fake.
type fakeSource struct {
	state      State
	connection string
	lastSeen   time.Time
	events     chan Event
}

func newFakeSource() *fakeSource {
	source := &fakeSource{
		connection: ConnectionLive,
		events:     make(chan Event, 16),
	}
	source.state.Apply(Update{Snapshot: testSnapshot()})
	return source
}

func (source *fakeSource) State() State            { return source.state }
func (source *fakeSource) ConnectionState() string { return source.connection }
func (source *fakeSource) LastActivity() time.Time { return source.lastSeen }
func (source *fakeSource) Subscribe() <-chan Event { return source.events }

type confirmCall struct {
	sessionID string
	approved  bool
}

type sendCall struct {
	sessionID string
	text      string
}

// fakeActorSource records operator actions. When fail is set, every
// action returns it.
type fakeActorSource struct {
	fakeSource
	fail        error
	confirmed   []confirmCall
	supervision []coordinator.Supervision
	sent        []sendCall
}

func newFakeActorSource() *fakeActorSource {
	return &fakeActorSource{fakeSource: *newFakeSource()}
}

func (source *fakeActorSource) Confirm(_ context.Context, sessionID string, approved bool) error {
	source.confirmed = append(source.confirmed, confirmCall{sessionID, approved})
	return source.fail
}

func (source *fakeActorSource) SetSupervision(_ context.Context, level coordinator.Supervision) error {
	source.supervision = append(source.supervision, level)
	return source.fail
}

func (source *fakeActorSource) Send(_ context.Context, sessionID, text string) error {
	source.sent = append(source.sent, sendCall{sessionID, text})
	return source.fail
}

func TestNewModel(t *testing.T) {
	model := NewModel(newFakeSource())

	// The pending confirmation puts refactor-auth at the top of the
	// attention ordering; fix-flaky-tests (active, no pending) follows.
	if len(model.matches) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(model.matches))
	}
	if model.matches[0].Row.Task.SessionID != "refactor-auth" {
		t.Errorf("first row should be refactor-auth, got %s", model.matches[0].Row.Task.SessionID)
	}
	if model.matches[0].Row.Pending == nil {
		t.Error("first row should carry its pending confirmation")
	}
	if model.matches[1].Row.Task.SessionID != "fix-flaky-tests" {
		t.Errorf("second row should be fix-flaky-tests, got %s", model.matches[1].Row.Task.SessionID)
	}

	if model.selectedID != "refactor-auth" {
		t.Errorf("initial selection should be the top row, got %q", model.selectedID)
	}

	// A plain Source gets no operator actions.
	if model.actor != nil {
		t.Error("read-only source should leave actor nil")
	}
}

func TestNewModelActorDetection(t *testing.T) {
	model := NewModel(newFakeActorSource())
	if model.actor == nil {
		t.Error("source implementing Actor should enable operator actions")
	}
}

func TestModelView(t *testing.T) {
	model := NewModel(newFakeSource())

	// Before receiving WindowSizeMsg, View returns loading text.
	if view := model.View(); view != "Loading..." {
		t.Errorf("expected 'Loading...' before WindowSizeMsg, got %q", view)
	}

	updated, _ := model.Update(tea.WindowSizeMsg{Width: 160, Height: 40})
	model = updated.(Model)

	view := model.View()

	if !strings.Contains(view, "foreman") {
		t.Error("view should contain the app name")
	}
	if !strings.Contains(view, "confirm") {
		t.Error("view should contain the supervision level")
	}
	if !strings.Contains(view, "2 tasks") || !strings.Contains(view, "1 pending") {
		t.Error("view should contain the task and pending counters")
	}
	if !strings.Contains(view, "live") {
		t.Error("view should contain the connection state")
	}
	if !strings.Contains(view, "Fix the flaky integration tests") {
		t.Error("view should contain the first task label")
	}
	if !strings.Contains(view, "Refactor the auth middleware") {
		t.Error("view should contain the second task label")
	}
	if !strings.Contains(view, "▲") {
		t.Error("view should contain the pending attention marker")
	}
	if !strings.Contains(view, "BLOCKED") {
		t.Error("detail pane should show the selected session's status")
	}
	if !strings.Contains(view, "[LIST]") || !strings.Contains(view, "q quit") {
		t.Error("view should contain the help bar")
	}
	if !strings.Contains(view, "1/2") {
		t.Error("view should contain the cursor position")
	}

	// Operator action hints are hidden for a read-only source.
	if strings.Contains(view, "approve/reject") {
		t.Error("read-only view should not offer operator actions")
	}
}

func TestModelViewActorHelp(t *testing.T) {
	model := NewModel(newFakeActorSource())
	updated, _ := model.Update(tea.WindowSizeMsg{Width: 160, Height: 40})
	model = updated.(Model)

	view := model.View()
	if !strings.Contains(view, "a/r approve/reject  s supervision  m message") {
		t.Error("actor-backed view should offer operator actions in the help bar")
	}
}

func TestModelNavigation(t *testing.T) {
	model := NewModel(newFakeSource())
	updated, _ := model.Update(tea.WindowSizeMsg{Width: 120, Height: 30})
	model = updated.(Model)

	if model.cursor != 0 {
		t.Errorf("initial cursor should be 0, got %d", model.cursor)
	}

	updated, _ = model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'j'}})
	model = updated.(Model)
	if model.cursor != 1 {
		t.Errorf("cursor after j should be 1, got %d", model.cursor)
	}
	if model.selectedID != "fix-flaky-tests" {
		t.Errorf("selection should follow the cursor, got %q", model.selectedID)
	}

	// Down at the last row stays put.
	updated, _ = model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'j'}})
	model = updated.(Model)
	if model.cursor != 1 {
		t.Errorf("cursor should stop at the last row, got %d", model.cursor)
	}

	updated, _ = model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'k'}})
	model = updated.(Model)
	if model.cursor != 0 {
		t.Errorf("cursor after k should be 0, got %d", model.cursor)
	}
	if model.selectedID != "refactor-auth" {
		t.Errorf("selection should follow the cursor back up, got %q", model.selectedID)
	}

	// Up at the first row stays put.
	updated, _ = model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'k'}})
	model = updated.(Model)
	if model.cursor != 0 {
		t.Errorf("cursor should stop at the first row, got %d", model.cursor)
	}

	// G jumps to the end, g back to the top.
	updated, _ = model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'G'}})
	model = updated.(Model)
	if model.cursor != 1 {
		t.Errorf("cursor after G should be at the last row, got %d", model.cursor)
	}
	updated, _ = model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'g'}})
	model = updated.(Model)
	if model.cursor != 0 {
		t.Errorf("cursor after g should be at the first row, got %d", model.cursor)
	}
}

func TestModelQuit(t *testing.T) {
	model := NewModel(newFakeSource())

	_, command := model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if command == nil {
		t.Fatal("q key should return a command")
	}
	if _, isQuit := command().(tea.QuitMsg); !isQuit {
		t.Error("q key should produce a QuitMsg")
	}
}

func TestModelEmptyState(t *testing.T) {
	source := &fakeSource{
		connection: ConnectionLive,
		events:     make(chan Event, 16),
	}
	model := NewModel(source)
	updated, _ := model.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	model = updated.(Model)

	if view := model.View(); !strings.Contains(view, "No coordinated sessions.") {
		t.Error("empty view should say there are no sessions")
	}

	// Before the first connection completes, the empty state explains
	// the dashboard is still connecting.
	source.connection = ConnectionConnecting
	if view := model.View(); !strings.Contains(view, "Connecting to the daemon...") {
		t.Error("empty view should show the connecting state")
	}
}

func TestModelFocusToggle(t *testing.T) {
	model := NewModel(newFakeSource())
	updated, _ := model.Update(tea.WindowSizeMsg{Width: 120, Height: 30})
	model = updated.(Model)

	if model.focusRegion != FocusList {
		t.Fatalf("initial focus should be the list, got %v", model.focusRegion)
	}

	updated, _ = model.Update(tea.KeyMsg{Type: tea.KeyTab})
	model = updated.(Model)
	if model.focusRegion != FocusDetail {
		t.Errorf("tab should move focus to the detail pane, got %v", model.focusRegion)
	}
	if !strings.Contains(model.View(), "[DETAIL]") {
		t.Error("help bar should show the detail focus indicator")
	}

	updated, _ = model.Update(tea.KeyMsg{Type: tea.KeyTab})
	model = updated.(Model)
	if model.focusRegion != FocusList {
		t.Errorf("tab should move focus back to the list, got %v", model.focusRegion)
	}
}

func TestModelSplitResize(t *testing.T) {
	model := NewModel(newFakeSource())
	updated, _ := model.Update(tea.WindowSizeMsg{Width: 160, Height: 40})
	model = updated.(Model)

	updated, _ = model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{']'}})
	model = updated.(Model)
	if model.splitRatio <= 0.50 {
		t.Errorf("] should grow the list pane, ratio = %v", model.splitRatio)
	}

	// Repeated shrinks clamp at the minimum.
	for range 10 {
		updated, _ = model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'['}})
		model = updated.(Model)
	}
	if model.splitRatio != splitRatioMin {
		t.Errorf("split ratio should clamp at %v, got %v", splitRatioMin, model.splitRatio)
	}

	// Repeated grows clamp at the maximum.
	for range 15 {
		updated, _ = model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{']'}})
		model = updated.(Model)
	}
	if model.splitRatio != splitRatioMax {
		t.Errorf("split ratio should clamp at %v, got %v", splitRatioMax, model.splitRatio)
	}
}

func TestModelFilter(t *testing.T) {
	model := NewModel(newFakeSource())
	updated, _ := model.Update(tea.WindowSizeMsg{Width: 120, Height: 30})
	model = updated.(Model)

	updated, _ = model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'/'}})
	model = updated.(Model)
	if model.focusRegion != FocusFilter {
		t.Fatalf("/ should enter filter mode, got focus %v", model.focusRegion)
	}
	if !model.filter.Active {
		t.Error("filter should be active after /")
	}

	// Type "au": only the auth refactor matches.
	for _, character := range "au" {
		updated, _ = model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{character}})
		model = updated.(Model)
	}
	if model.filter.Input != "au" {
		t.Errorf("filter input = %q, want au", model.filter.Input)
	}
	if len(model.matches) != 1 {
		t.Fatalf("expected 1 match for 'au', got %d", len(model.matches))
	}
	if model.matches[0].Row.Task.SessionID != "refactor-auth" {
		t.Errorf("match should be refactor-auth, got %s", model.matches[0].Row.Task.SessionID)
	}
	if model.selectedID != "refactor-auth" {
		t.Errorf("filtering should select the top match, got %q", model.selectedID)
	}

	// Backspace widens the filter again: "a" matches both labels.
	updated, _ = model.Update(tea.KeyMsg{Type: tea.KeyBackspace})
	model = updated.(Model)
	if model.filter.Input != "a" {
		t.Errorf("filter input after backspace = %q, want a", model.filter.Input)
	}
	if len(model.matches) != 2 {
		t.Errorf("expected 2 matches for 'a', got %d", len(model.matches))
	}
}

func TestModelFilterEscape(t *testing.T) {
	model := NewModel(newFakeSource())
	updated, _ := model.Update(tea.WindowSizeMsg{Width: 120, Height: 30})
	model = updated.(Model)

	updated, _ = model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'/'}})
	model = updated.(Model)
	for _, character := range "au" {
		updated, _ = model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{character}})
		model = updated.(Model)
	}
	if len(model.matches) != 1 {
		t.Fatalf("expected 1 match before escape, got %d", len(model.matches))
	}

	// First escape clears the text and restores the full list.
	updated, _ = model.Update(tea.KeyMsg{Type: tea.KeyEsc})
	model = updated.(Model)
	if model.filter.Input != "" {
		t.Errorf("escape should clear the filter text, got %q", model.filter.Input)
	}
	if len(model.matches) != 2 {
		t.Errorf("expected full list after clearing, got %d matches", len(model.matches))
	}

	// Second escape leaves filter mode.
	updated, _ = model.Update(tea.KeyMsg{Type: tea.KeyEsc})
	model = updated.(Model)
	if model.focusRegion != FocusList {
		t.Errorf("second escape should return focus to the list, got %v", model.focusRegion)
	}
}

func TestModelFilterEnterConfirms(t *testing.T) {
	model := NewModel(newFakeSource())
	updated, _ := model.Update(tea.WindowSizeMsg{Width: 120, Height: 30})
	model = updated.(Model)

	updated, _ = model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'/'}})
	model = updated.(Model)
	for _, character := range "au" {
		updated, _ = model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{character}})
		model = updated.(Model)
	}

	// Enter keeps the filter applied but returns focus to the list.
	updated, _ = model.Update(tea.KeyMsg{Type: tea.KeyEnter})
	model = updated.(Model)
	if model.focusRegion != FocusList {
		t.Errorf("enter should return focus to the list, got %v", model.focusRegion)
	}
	if model.filter.Input != "au" {
		t.Errorf("enter should keep the filter text, got %q", model.filter.Input)
	}
	if len(model.matches) != 1 {
		t.Errorf("filter should stay applied after enter, got %d matches", len(model.matches))
	}
}

func TestModelFilterTypesQ(t *testing.T) {
	model := NewModel(newFakeSource())
	updated, _ := model.Update(tea.WindowSizeMsg{Width: 120, Height: 30})
	model = updated.(Model)

	updated, _ = model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'/'}})
	model = updated.(Model)

	// 'q' is a regular character in filter mode, not quit.
	updated, command := model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	model = updated.(Model)
	if command != nil {
		t.Error("q in filter mode should not quit")
	}
	if model.filter.Input != "q" {
		t.Errorf("q should be typed into the filter, got %q", model.filter.Input)
	}

	// Ctrl+C still quits.
	_, command = model.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if command == nil {
		t.Fatal("ctrl+c in filter mode should return a command")
	}
	if _, isQuit := command().(tea.QuitMsg); !isQuit {
		t.Error("ctrl+c in filter mode should quit")
	}
}

func TestModelApprove(t *testing.T) {
	source := newFakeActorSource()
	model := NewModel(source)
	updated, _ := model.Update(tea.WindowSizeMsg{Width: 120, Height: 30})
	model = updated.(Model)

	// The cursor starts on refactor-auth, which has the pending
	// confirmation.
	_, command := model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'a'}})
	if command == nil {
		t.Fatal("a on a pending row should return a command")
	}

	message := command()
	result, ok := message.(actionResultMsg)
	if !ok {
		t.Fatalf("expected actionResultMsg, got %T", message)
	}
	if result.verb != "approve" || result.err != nil {
		t.Errorf("result = %q/%v, want approve with no error", result.verb, result.err)
	}

	if len(source.confirmed) != 1 {
		t.Fatalf("expected 1 confirm call, got %d", len(source.confirmed))
	}
	if call := source.confirmed[0]; call.sessionID != "refactor-auth" || !call.approved {
		t.Errorf("confirm call = %+v, want refactor-auth approved", call)
	}
}

func TestModelReject(t *testing.T) {
	source := newFakeActorSource()
	model := NewModel(source)
	updated, _ := model.Update(tea.WindowSizeMsg{Width: 120, Height: 30})
	model = updated.(Model)

	_, command := model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'r'}})
	if command == nil {
		t.Fatal("r on a pending row should return a command")
	}

	result, ok := command().(actionResultMsg)
	if !ok || result.verb != "reject" {
		t.Fatalf("expected a reject result, got %v %v", ok, result.verb)
	}

	if len(source.confirmed) != 1 {
		t.Fatalf("expected 1 confirm call, got %d", len(source.confirmed))
	}
	if call := source.confirmed[0]; call.sessionID != "refactor-auth" || call.approved {
		t.Errorf("confirm call = %+v, want refactor-auth rejected", call)
	}
}

func TestModelApproveReadOnly(t *testing.T) {
	model := NewModel(newFakeSource())
	updated, _ := model.Update(tea.WindowSizeMsg{Width: 120, Height: 30})
	model = updated.(Model)

	if _, command := model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'a'}}); command != nil {
		t.Error("approve should be a no-op without an actor")
	}
}

func TestModelApproveNoPending(t *testing.T) {
	source := newFakeActorSource()
	model := NewModel(source)
	updated, _ := model.Update(tea.WindowSizeMsg{Width: 120, Height: 30})
	model = updated.(Model)

	// Move to fix-flaky-tests, which has nothing queued.
	updated, _ = model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'j'}})
	model = updated.(Model)

	if _, command := model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'a'}}); command != nil {
		t.Error("approve should be a no-op without a pending confirmation")
	}
	if len(source.confirmed) != 0 {
		t.Errorf("no confirm calls expected, got %d", len(source.confirmed))
	}
}

func TestModelSupervisionDropdown(t *testing.T) {
	source := newFakeActorSource()
	model := NewModel(source)
	updated, _ := model.Update(tea.WindowSizeMsg{Width: 120, Height: 30})
	model = updated.(Model)

	updated, _ = model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'s'}})
	model = updated.(Model)
	if model.activeDropdown == nil {
		t.Fatal("s should open the supervision dropdown")
	}
	if model.focusRegion != FocusDropdown {
		t.Errorf("focus should move to the dropdown, got %v", model.focusRegion)
	}
	// The current level (confirm) is pre-selected.
	if model.activeDropdown.Cursor != 1 {
		t.Errorf("dropdown cursor = %d, want 1 (confirm)", model.activeDropdown.Cursor)
	}

	// Move to notify and select it.
	updated, _ = model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'j'}})
	model = updated.(Model)
	updated, command := model.Update(tea.KeyMsg{Type: tea.KeyEnter})
	model = updated.(Model)

	if model.activeDropdown != nil {
		t.Error("selection should close the dropdown")
	}
	if model.focusRegion != FocusList {
		t.Errorf("focus should return to the list, got %v", model.focusRegion)
	}
	if command == nil {
		t.Fatal("selecting a different level should return a command")
	}
	result, ok := command().(actionResultMsg)
	if !ok || result.verb != "supervision" || result.err != nil {
		t.Fatalf("expected a supervision result, got %T %v", result, result.err)
	}
	if len(source.supervision) != 1 || source.supervision[0] != coordinator.SupervisionNotify {
		t.Errorf("supervision calls = %v, want [notify]", source.supervision)
	}
}

func TestModelSupervisionDropdownDismiss(t *testing.T) {
	source := newFakeActorSource()
	model := NewModel(source)
	updated, _ := model.Update(tea.WindowSizeMsg{Width: 120, Height: 30})
	model = updated.(Model)

	updated, _ = model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'s'}})
	model = updated.(Model)
	updated, _ = model.Update(tea.KeyMsg{Type: tea.KeyEsc})
	model = updated.(Model)

	if model.activeDropdown != nil {
		t.Error("escape should dismiss the dropdown")
	}
	if model.focusRegion != FocusList {
		t.Errorf("focus should return to the list, got %v", model.focusRegion)
	}
	if len(source.supervision) != 0 {
		t.Errorf("dismissing should not change supervision, got %v", source.supervision)
	}
}

func TestModelSupervisionDropdownCurrentLevel(t *testing.T) {
	source := newFakeActorSource()
	model := NewModel(source)
	updated, _ := model.Update(tea.WindowSizeMsg{Width: 120, Height: 30})
	model = updated.(Model)

	updated, _ = model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'s'}})
	model = updated.(Model)

	// Selecting the already-active level is a no-op.
	updated, command := model.Update(tea.KeyMsg{Type: tea.KeyEnter})
	model = updated.(Model)
	if command != nil {
		t.Error("re-selecting the current level should not call the daemon")
	}
	if model.activeDropdown != nil {
		t.Error("dropdown should close after selection")
	}
	if len(source.supervision) != 0 {
		t.Errorf("no supervision calls expected, got %v", source.supervision)
	}
}

func TestModelSupervisionReadOnly(t *testing.T) {
	model := NewModel(newFakeSource())
	updated, _ := model.Update(tea.WindowSizeMsg{Width: 120, Height: 30})
	model = updated.(Model)

	updated, _ = model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'s'}})
	model = updated.(Model)
	if model.activeDropdown != nil {
		t.Error("supervision dropdown should not open without an actor")
	}
	if model.focusRegion != FocusList {
		t.Errorf("focus should stay on the list, got %v", model.focusRegion)
	}
}

func TestModelCompose(t *testing.T) {
	source := newFakeActorSource()
	model := NewModel(source)
	updated, _ := model.Update(tea.WindowSizeMsg{Width: 120, Height: 30})
	model = updated.(Model)

	updated, _ = model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'m'}})
	model = updated.(Model)
	if model.composeModal == nil {
		t.Fatal("m should open the compose modal")
	}
	if model.focusRegion != FocusCompose {
		t.Errorf("focus should move to the modal, got %v", model.focusRegion)
	}
	if model.composeTarget != "refactor-auth" {
		t.Errorf("compose target = %q, want refactor-auth", model.composeTarget)
	}
	if model.composeModal.Title != "Send to Refactor the auth middleware" {
		t.Errorf("modal title = %q", model.composeModal.Title)
	}

	// Type a message and submit with Ctrl+D.
	updated, _ = model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("status update please")})
	model = updated.(Model)
	updated, command := model.Update(tea.KeyMsg{Type: tea.KeyCtrlD})
	model = updated.(Model)

	if model.composeModal != nil {
		t.Error("submit should close the modal")
	}
	if model.focusRegion != FocusList {
		t.Errorf("focus should return to the list, got %v", model.focusRegion)
	}
	if command == nil {
		t.Fatal("submit with text should return a command")
	}
	result, ok := command().(actionResultMsg)
	if !ok || result.verb != "send" || result.err != nil {
		t.Fatalf("expected a send result, got %T %v", result, result.err)
	}
	if len(source.sent) != 1 {
		t.Fatalf("expected 1 send call, got %d", len(source.sent))
	}
	if call := source.sent[0]; call.sessionID != "refactor-auth" || call.text != "status update please" {
		t.Errorf("send call = %+v", call)
	}
}

func TestModelComposeCancel(t *testing.T) {
	source := newFakeActorSource()
	model := NewModel(source)
	updated, _ := model.Update(tea.WindowSizeMsg{Width: 120, Height: 30})
	model = updated.(Model)

	updated, _ = model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'m'}})
	model = updated.(Model)
	updated, _ = model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("draft")})
	model = updated.(Model)
	updated, _ = model.Update(tea.KeyMsg{Type: tea.KeyEsc})
	model = updated.(Model)

	if model.composeModal != nil {
		t.Error("escape should discard the modal")
	}
	if model.focusRegion != FocusList {
		t.Errorf("focus should return to the list, got %v", model.focusRegion)
	}
	if len(source.sent) != 0 {
		t.Errorf("cancel should not send, got %v", source.sent)
	}
}

func TestModelComposeEmptySubmit(t *testing.T) {
	source := newFakeActorSource()
	model := NewModel(source)
	updated, _ := model.Update(tea.WindowSizeMsg{Width: 120, Height: 30})
	model = updated.(Model)

	updated, _ = model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'m'}})
	model = updated.(Model)
	updated, command := model.Update(tea.KeyMsg{Type: tea.KeyCtrlD})
	model = updated.(Model)

	if command != nil {
		t.Error("submitting an empty message should not send")
	}
	if model.composeModal != nil {
		t.Error("empty submit should still close the modal")
	}
	if len(source.sent) != 0 {
		t.Errorf("no send calls expected, got %v", source.sent)
	}
}

func TestModelComposeReadOnly(t *testing.T) {
	model := NewModel(newFakeSource())
	updated, _ := model.Update(tea.WindowSizeMsg{Width: 120, Height: 30})
	model = updated.(Model)

	updated, _ = model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'m'}})
	model = updated.(Model)
	if model.composeModal != nil {
		t.Error("compose modal should not open without an actor")
	}
}

func TestModelHelpOverlay(t *testing.T) {
	model := NewModel(newFakeSource())
	updated, _ := model.Update(tea.WindowSizeMsg{Width: 120, Height: 30})
	model = updated.(Model)

	updated, _ = model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'?'}})
	model = updated.(Model)
	if !model.showHelp {
		t.Fatal("? should show the key reference overlay")
	}
	if !strings.Contains(model.View(), "Keys") {
		t.Error("overlay should render the key reference")
	}

	// Any key dismisses the overlay.
	updated, _ = model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'x'}})
	model = updated.(Model)
	if model.showHelp {
		t.Error("any key should dismiss the overlay")
	}

	// Ctrl+C still quits while the overlay is up.
	updated, _ = model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'?'}})
	model = updated.(Model)
	_, command := model.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if command == nil {
		t.Fatal("ctrl+c should return a command from the overlay")
	}
	if _, isQuit := command().(tea.QuitMsg); !isQuit {
		t.Error("ctrl+c should quit from the overlay")
	}
}

func TestModelSourceEventRefresh(t *testing.T) {
	source := newFakeSource()
	model := NewModel(source)
	updated, _ := model.Update(tea.WindowSizeMsg{Width: 120, Height: 30})
	model = updated.(Model)

	// The source folds the change into its state before dispatching
	// the event; mirror that ordering here.
	task := coordinator.TaskContext{
		SessionID: "brand-new",
		AgentType: "codex",
		Label:     "Write the migration script",
		Status:    coordinator.TaskActive,
		CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	source.state.Apply(Update{Event: &coordinator.FeedEvent{
		Type:      coordinator.FeedTask,
		SessionID: task.SessionID,
		Task:      &task,
	}})

	updated, command := model.Update(sourceEventMsg{event: Event{
		Kind:      string(coordinator.FeedTask),
		SessionID: "brand-new",
	}})
	model = updated.(Model)

	if command == nil {
		t.Fatal("source event should re-arm the listener")
	}
	if len(model.matches) != 3 {
		t.Fatalf("expected 3 rows after the event, got %d", len(model.matches))
	}
	if model.matches[2].Row.Task.SessionID != "brand-new" {
		t.Errorf("newest active task should sort last, got %s", model.matches[2].Row.Task.SessionID)
	}

	// The selection survives the refresh.
	if model.selectedID != "refactor-auth" || model.cursor != 0 {
		t.Errorf("selection should be preserved, got %q at %d", model.selectedID, model.cursor)
	}

	// The changed session is glowing, so the animation tick starts.
	if !model.tickRunning {
		t.Error("heat animation tick should be running after a session event")
	}
}

func TestModelActionError(t *testing.T) {
	source := newFakeActorSource()
	source.fail = errors.New("daemon unreachable")
	model := NewModel(source)
	updated, _ := model.Update(tea.WindowSizeMsg{Width: 160, Height: 40})
	model = updated.(Model)

	_, command := model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'a'}})
	if command == nil {
		t.Fatal("approve should return a command")
	}
	result, ok := command().(actionResultMsg)
	if !ok || result.err == nil {
		t.Fatalf("expected a failed result, got %T %v", result, result.err)
	}

	updated, fade := model.Update(result)
	model = updated.(Model)
	if model.actionError != "approve: daemon unreachable" {
		t.Errorf("action error = %q", model.actionError)
	}
	if fade == nil {
		t.Error("a failed action should schedule the error fade")
	}
	if !strings.Contains(model.View(), "Error: approve: daemon unreachable") {
		t.Error("help bar should show the action error")
	}

	updated, _ = model.Update(actionErrorFadeMsg{})
	model = updated.(Model)
	if model.actionError != "" {
		t.Errorf("fade should clear the error, got %q", model.actionError)
	}
}

func TestModelClockTick(t *testing.T) {
	model := NewModel(newFakeSource())
	updated, _ := model.Update(tea.WindowSizeMsg{Width: 120, Height: 30})
	model = updated.(Model)

	_, command := model.Update(clockTickMsg{})
	if command == nil {
		t.Error("clock tick should reschedule itself")
	}
}
