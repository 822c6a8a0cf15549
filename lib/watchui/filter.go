// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package watchui

import (
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/junegunn/fzf/src/util"

	"github.com/bureau-foundation/foreman/lib/tui"
)

// FilterModel narrows the session list client-side. The task label is
// matched fuzzily (fzf scoring, matched characters highlighted in the
// list); the session ID, agent type, status, and workdir fall back to
// case-insensitive substring matching so an operator can type a bare
// agent name or status word.
type FilterModel struct {
	// Input is the current filter query text.
	Input string

	// Active is true when the filter input has keyboard focus
	// (the user pressed / to start typing).
	Active bool

	// slab is scratch space reused across fuzzy match calls.
	slab *util.Slab
}

// FilterMatch pairs a row with its match outcome. LabelPositions holds
// the rune indices of the label characters the fuzzy matcher hit,
// empty for substring-fallback matches.
type FilterMatch struct {
	Row            Row
	Score          int
	LabelPositions []int
}

// ApplyFuzzy filters and ranks rows against the current query. An
// empty query returns every row in its incoming order with zero
// scores. Otherwise label matches rank by fzf score; rows that only
// match on a fallback field rank below any label match. The sort is
// stable, so equal scores keep the caller's ordering.
func (filter *FilterModel) ApplyFuzzy(rows []Row) []FilterMatch {
	matches := make([]FilterMatch, 0, len(rows))
	if filter.Input == "" {
		for _, row := range rows {
			matches = append(matches, FilterMatch{Row: row})
		}
		return matches
	}

	if filter.slab == nil {
		filter.slab = tui.NewSlab()
	}
	pattern := []rune(filter.Input)
	query := strings.ToLower(filter.Input)

	for _, row := range rows {
		result := fuzzyMatch(row.Task.Label, pattern, filter.slab)
		if result.Score > 0 {
			matches = append(matches, FilterMatch{
				Row:            row,
				Score:          result.Score,
				LabelPositions: result.Positions,
			})
			continue
		}
		if rowFieldContains(row, query) {
			// Score 1 keeps fallback matches visible but below any
			// real label match (fzf scores start in the tens).
			matches = append(matches, FilterMatch{Row: row, Score: 1})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	return matches
}

func rowFieldContains(row Row, query string) bool {
	if strings.Contains(strings.ToLower(row.Task.SessionID), query) {
		return true
	}
	if strings.Contains(strings.ToLower(row.Task.AgentType), query) {
		return true
	}
	if strings.Contains(strings.ToLower(string(row.Task.Status)), query) {
		return true
	}
	return strings.Contains(strings.ToLower(row.Task.Workdir), query)
}

// HandleRune processes a character typed while the filter is active.
// Returns true if the input changed.
func (filter *FilterModel) HandleRune(character rune) bool {
	filter.Input += string(character)
	return true
}

// HandleBackspace removes the last character from the filter input.
// Returns true if the input changed.
func (filter *FilterModel) HandleBackspace() bool {
	if len(filter.Input) == 0 {
		return false
	}
	runes := []rune(filter.Input)
	filter.Input = string(runes[:len(runes)-1])
	return true
}

// Clear resets the filter input and deactivates it.
func (filter *FilterModel) Clear() {
	filter.Input = ""
	filter.Active = false
}

// View renders the filter bar. When active, shows the input with a
// cursor. When inactive with text, shows the filter text. When
// inactive with no text, returns empty string (hidden).
func (filter *FilterModel) View(theme Theme, width int) string {
	if !filter.Active && filter.Input == "" {
		return ""
	}

	style := lipgloss.NewStyle().
		Foreground(theme.NormalText).
		Width(width)

	if filter.Active {
		cursor := lipgloss.NewStyle().
			Foreground(theme.HeaderForeground).
			Bold(true).
			Render("▎")
		return style.Render(" / " + filter.Input + cursor)
	}

	// Inactive but has text — show the filter as a subtle indicator.
	dimStyle := lipgloss.NewStyle().
		Foreground(theme.FaintText).
		Width(width)
	return dimStyle.Render(" filter: " + filter.Input)
}
