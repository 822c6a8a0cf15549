// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package tui

import (
	"time"
)

// HeatDecayDuration is how long a row glows after a change event.
// Heat starts at 1.0 and decays linearly to 0.0 over this duration.
const HeatDecayDuration = 5 * time.Second

// HeatTickInterval is the re-render interval while any rows are hot.
// 100ms gives ~10fps animation for smooth color decay.
const HeatTickInterval = 100 * time.Millisecond

// HeatKind distinguishes change types for accent color selection.
type HeatKind int

const (
	// HeatUpdate marks a task or confirmation that changed (amber glow).
	HeatUpdate HeatKind = iota
	// HeatResolve marks a confirmation that was applied, rejected, or
	// dropped (red glow).
	HeatResolve
)

// ignition records when and how a row was last changed.
type ignition struct {
	at   time.Time
	kind HeatKind
}

// HeatTracker maps row IDs to ignition timestamps for animated change
// highlighting. Each change "ignites" a row, which then decays from
// full intensity to zero over [HeatDecayDuration].
type HeatTracker struct {
	ignitions map[string]ignition
}

// NewHeatTracker creates an empty heat tracker.
func NewHeatTracker() *HeatTracker {
	return &HeatTracker{
		ignitions: make(map[string]ignition),
	}
}

// Ignite records a change event for a row. Resets the decay timer if
// the row was already hot.
func (tracker *HeatTracker) Ignite(rowID string, kind HeatKind, now time.Time) {
	tracker.ignitions[rowID] = ignition{at: now, kind: kind}
}

// Heat returns the current intensity for a row: 1.0 at ignition,
// linearly decaying to 0.0 over [HeatDecayDuration]. Returns 0.0 for
// rows that were never ignited or have fully decayed.
func (tracker *HeatTracker) Heat(rowID string, now time.Time) float64 {
	entry, exists := tracker.ignitions[rowID]
	if !exists {
		return 0.0
	}
	elapsed := now.Sub(entry.at)
	if elapsed >= HeatDecayDuration {
		return 0.0
	}
	return 1.0 - float64(elapsed)/float64(HeatDecayDuration)
}

// Kind returns the heat kind for a row. Only meaningful when Heat()
// returns > 0.
func (tracker *HeatTracker) Kind(rowID string) HeatKind {
	entry, exists := tracker.ignitions[rowID]
	if !exists {
		return HeatUpdate
	}
	return entry.kind
}

// HasHot returns true if any tracked row still has heat > 0, meaning
// the tick timer should keep running for animation.
func (tracker *HeatTracker) HasHot(now time.Time) bool {
	for rowID, entry := range tracker.ignitions {
		if now.Sub(entry.at) < HeatDecayDuration {
			return true
		}
		// Garbage-collect fully decayed entries.
		delete(tracker.ignitions, rowID)
	}
	return false
}
