// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/textarea"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
)

// ComposeModal is a centered overlay for entering multi-line text,
// backed by a bubbles textarea. The owning model routes key messages
// to Update while the modal is open and reads Value on submit.
type ComposeModal struct {
	// Title identifies what the text is for, shown in the modal
	// header (e.g., "Send to fix-flaky-tests").
	Title string

	input textarea.Model
	theme Theme
}

// NewComposeModal creates a focused, empty compose modal.
func NewComposeModal(title string, theme Theme) *ComposeModal {
	input := textarea.New()
	input.Placeholder = "Type a message..."
	input.Prompt = ""
	input.ShowLineNumbers = false
	input.CharLimit = 0
	input.Focus()

	return &ComposeModal{
		Title: title,
		input: input,
		theme: theme,
	}
}

// Init returns the cursor blink command for the textarea. Run it when
// the modal opens.
func (modal *ComposeModal) Init() tea.Cmd {
	return textarea.Blink
}

// Value returns the current text content.
func (modal *ComposeModal) Value() string {
	return modal.input.Value()
}

// Update forwards a message to the textarea.
func (modal *ComposeModal) Update(message tea.Msg) tea.Cmd {
	var command tea.Cmd
	modal.input, command = modal.input.Update(message)
	return command
}

// Modal chrome overhead: 2 columns border + 2 columns padding = 4
// columns horizontal; 2 lines border + 1 title + 1 footer = 4 lines
// vertical. The inner text area gets the remainder.
const (
	composeChromeWidth  = 4
	composeChromeHeight = 4
	// Minimum inner text area: 30 columns wide, 5 lines tall. Below
	// this the editor is too cramped to be useful.
	composeMinInnerWidth  = 30
	composeMinInnerHeight = 5
	// Margin between the modal edge and the screen edge, so the user
	// can see the underlying view is still there. Collapses to 0 on
	// very small screens.
	composeMargin = 2
)

// Render produces the modal overlay lines for splicing onto the view.
// Returns the rendered lines and the anchor position (top-left corner
// in screen coordinates).
func (modal *ComposeModal) Render(screenWidth, screenHeight int) ([]string, int, int) {
	// Size the modal to fill the screen minus a margin, but never
	// smaller than the minimum inner area plus chrome. On very small
	// screens the margin shrinks to zero before the inner area does.
	modalWidth := screenWidth - composeMargin*2
	modalHeight := screenHeight - composeMargin*2

	minWidth := composeMinInnerWidth + composeChromeWidth
	minHeight := composeMinInnerHeight + composeChromeHeight
	if modalWidth < minWidth {
		modalWidth = minWidth
	}
	if modalHeight < minHeight {
		modalHeight = minHeight
	}
	// Clamp to screen bounds so the overlay doesn't extend past the
	// terminal edges even when the minimum exceeds the screen.
	if modalWidth > screenWidth {
		modalWidth = screenWidth
	}
	if modalHeight > screenHeight {
		modalHeight = screenHeight
	}

	innerWidth := modalWidth - composeChromeWidth
	innerHeight := modalHeight - composeChromeHeight

	modal.input.SetWidth(innerWidth)
	modal.input.SetHeight(innerHeight)

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(modal.theme.HeaderForeground)
	footerStyle := lipgloss.NewStyle().
		Foreground(modal.theme.FaintText)

	title := titleStyle.Render(modal.Title)
	if titleWidth := ansi.StringWidth(title); titleWidth < innerWidth {
		title += strings.Repeat(" ", innerWidth-titleWidth)
	}

	footer := footerStyle.Render("Ctrl+D send  Esc cancel")
	if footerWidth := ansi.StringWidth(footer); footerWidth < innerWidth {
		footer += strings.Repeat(" ", innerWidth-footerWidth)
	}

	borderStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(modal.theme.BorderColor).
		Padding(0, 1)

	inner := title + "\n" + modal.input.View() + "\n" + footer
	rendered := borderStyle.Render(inner)

	// Split into lines and compute the anchor for centering.
	resultLines := strings.Split(rendered, "\n")
	renderedWidth := 0
	if len(resultLines) > 0 {
		renderedWidth = ansi.StringWidth(resultLines[0])
	}

	anchorX := (screenWidth - renderedWidth) / 2
	anchorY := (screenHeight - len(resultLines)) / 2
	if anchorX < 0 {
		anchorX = 0
	}
	if anchorY < 0 {
		anchorY = 0
	}

	return resultLines, anchorX, anchorY
}
