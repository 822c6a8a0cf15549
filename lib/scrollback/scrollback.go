// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package scrollback provides the bounded rolling output buffer kept
// for every session. It is the single source that both the stall
// classifier and the capture-since-marker path read from: one mutex
// orders appends, eviction, and captures, so a capture holding a
// marker either sees every line written after it or is told the
// window was truncated.
package scrollback

import (
	"strings"
	"sync"
)

// DefaultMaxLines is the default retained line count. A couple of
// thousand lines covers several turns of agent output while keeping
// classifier prompts and captures bounded.
const DefaultMaxLines = 2000

// Buffer is a fixed-capacity line buffer with absolute line sequence
// numbers. The first line ever appended has sequence 0; eviction
// advances the oldest retained sequence without disturbing numbering.
// All methods are safe for concurrent use.
type Buffer struct {
	mu    sync.Mutex
	lines []string
	// first is the absolute sequence number of lines[0].
	first uint64
	// next is the absolute sequence number the next appended line
	// will get. next - first == len(lines).
	next uint64
	max  int
}

// New creates a buffer retaining at most maxLines lines. A maxLines
// of zero or below falls back to DefaultMaxLines.
func New(maxLines int) *Buffer {
	if maxLines <= 0 {
		maxLines = DefaultMaxLines
	}
	return &Buffer{max: maxLines}
}

// Append adds lines to the buffer, evicting the oldest retained lines
// once the capacity is exceeded.
func (b *Buffer) Append(lines ...string) {
	if len(lines) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lines = append(b.lines, lines...)
	b.next += uint64(len(lines))
	if overflow := len(b.lines) - b.max; overflow > 0 {
		// Copy rather than re-slice so evicted lines are released.
		kept := make([]string, b.max)
		copy(kept, b.lines[overflow:])
		b.lines = kept
		b.first += uint64(overflow)
	}
}

// Mark returns the marker for "everything appended after this point".
// Pass it to Since later to capture the output produced in between.
func (b *Buffer) Mark() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.next
}

// Since returns the text of every retained line at or after marker,
// joined with newlines. truncated reports that eviction has already
// discarded lines the marker covered, in which case the returned text
// starts at the oldest retained line.
func (b *Buffer) Since(marker uint64) (text string, truncated bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if marker >= b.next {
		return "", false
	}
	start := marker
	if start < b.first {
		start = b.first
		truncated = true
	}
	return strings.Join(b.lines[start-b.first:], "\n"), truncated
}

// Tail returns the last n retained lines (fewer if the buffer holds
// fewer), oldest first.
func (b *Buffer) Tail(n int) []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	if n <= 0 || len(b.lines) == 0 {
		return nil
	}
	if n > len(b.lines) {
		n = len(b.lines)
	}
	tail := make([]string, n)
	copy(tail, b.lines[len(b.lines)-n:])
	return tail
}

// TailText returns the last n lines joined with newlines.
func (b *Buffer) TailText(n int) string {
	return strings.Join(b.Tail(n), "\n")
}

// Len returns the number of retained lines.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.lines)
}

// Text returns the entire retained window joined with newlines.
func (b *Buffer) Text() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.Join(b.lines, "\n")
}
