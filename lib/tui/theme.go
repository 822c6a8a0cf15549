// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/bureau-foundation/foreman/lib/coordinator"
	"github.com/bureau-foundation/foreman/lib/session"
)

// Theme defines the color palette and visual properties for foreman's
// terminal UIs. All colors use lipgloss ANSI 256-color codes for broad
// terminal compatibility.
//
// The fields cover both universal chrome (text, selection, borders)
// and the two semantic families the dashboard renders: session
// lifecycle states and coordination task states.
type Theme struct {
	// Text colors.
	NormalText lipgloss.Color
	FaintText  lipgloss.Color

	// Selected row.
	SelectedBackground lipgloss.Color
	SelectedForeground lipgloss.Color

	// Session lifecycle colors.
	SessionSpawning lipgloss.Color
	SessionReady    lipgloss.Color
	SessionBusy     lipgloss.Color
	SessionBlocked  lipgloss.Color
	SessionStopped  lipgloss.Color
	SessionError    lipgloss.Color

	// Coordination task colors.
	TaskActive       lipgloss.Color
	TaskBlocked      lipgloss.Color
	TaskIdleChecking lipgloss.Color
	TaskComplete     lipgloss.Color
	TaskEscalated    lipgloss.Color

	// PendingAccent marks rows and banners waiting on operator
	// confirmation.
	PendingAccent lipgloss.Color

	// UI chrome.
	HeaderForeground lipgloss.Color
	BorderColor      lipgloss.Color
	HelpText         lipgloss.Color

	// Animation accents: background tint for recently-changed rows.
	// HotAccentUpdate is used for tasks that changed; HotAccentResolve
	// for confirmations that were applied, rejected, or dropped.
	HotAccentUpdate  lipgloss.Color
	HotAccentResolve lipgloss.Color

	// Filter match highlighting.
	SearchHighlightBackground lipgloss.Color

	// Inline links in rendered markdown.
	LinkForeground lipgloss.Color

	// Floating overlays (dropdown, compose modal, help).
	OverlayForeground lipgloss.Color
	OverlayBackground lipgloss.Color
}

// SessionStatusColor returns the color for a session lifecycle status.
// Unknown values return FaintText.
func (theme Theme) SessionStatusColor(status session.Status) lipgloss.Color {
	switch status {
	case session.StatusSpawning:
		return theme.SessionSpawning
	case session.StatusReady:
		return theme.SessionReady
	case session.StatusBusy:
		return theme.SessionBusy
	case session.StatusBlocked:
		return theme.SessionBlocked
	case session.StatusStopped:
		return theme.SessionStopped
	case session.StatusError:
		return theme.SessionError
	default:
		return theme.FaintText
	}
}

// TaskStatusColor returns the color for a coordination task status.
// Unknown values return FaintText.
func (theme Theme) TaskStatusColor(status coordinator.TaskStatus) lipgloss.Color {
	switch status {
	case coordinator.TaskActive:
		return theme.TaskActive
	case coordinator.TaskBlocked:
		return theme.TaskBlocked
	case coordinator.TaskIdleChecking:
		return theme.TaskIdleChecking
	case coordinator.TaskComplete:
		return theme.TaskComplete
	case coordinator.TaskEscalated:
		return theme.TaskEscalated
	default:
		return theme.FaintText
	}
}

// DefaultTheme is the built-in dark-terminal color scheme. Designed for
// 256-color terminals with a dark background (the common case for
// development environments and tmux sessions).
var DefaultTheme = Theme{
	NormalText: lipgloss.Color("252"),
	FaintText:  lipgloss.Color("245"),

	SelectedBackground: lipgloss.Color("236"),
	SelectedForeground: lipgloss.Color("255"),

	SessionSpawning: lipgloss.Color("208"), // orange: still coming up
	SessionReady:    lipgloss.Color("114"), // green
	SessionBusy:     lipgloss.Color("220"), // yellow/amber
	SessionBlocked:  lipgloss.Color("196"), // red
	SessionStopped:  lipgloss.Color("245"), // gray
	SessionError:    lipgloss.Color("160"), // dark red

	TaskActive:       lipgloss.Color("114"), // green
	TaskBlocked:      lipgloss.Color("196"), // red
	TaskIdleChecking: lipgloss.Color("220"), // yellow/amber
	TaskComplete:     lipgloss.Color("245"), // gray
	TaskEscalated:    lipgloss.Color("141"), // light purple

	PendingAccent: lipgloss.Color("220"), // amber: needs an operator

	HeaderForeground: lipgloss.Color("255"),
	BorderColor:      lipgloss.Color("240"),
	HelpText:         lipgloss.Color("241"),

	HotAccentUpdate:  lipgloss.Color("58"), // dark amber background tint
	HotAccentResolve: lipgloss.Color("52"), // dark red background tint

	SearchHighlightBackground: lipgloss.Color("58"), // dark amber (matches HotAccentUpdate)

	LinkForeground: lipgloss.Color("75"), // blue

	OverlayForeground: lipgloss.Color("252"), // same as NormalText
	OverlayBackground: lipgloss.Color("237"), // slightly lighter than terminal background
}
