// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package tui provides shared terminal user interface components for
// foreman's interactive dashboard. Built on bubbletea (Elm
// architecture), these components handle common patterns: the
// session/task color theme, dropdown and compose-modal overlays,
// change-heat animation, scrollbars, and ANSI-aware overlay splicing.
//
// The dashboard in lib/watchui imports this package; it owns the data
// source, layout, and domain rendering while this package keeps the
// look and overlay mechanics in one place.
package tui
