// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package tui

import (
	"unicode"

	"github.com/junegunn/fzf/src/algo"
	"github.com/junegunn/fzf/src/util"
)

// FuzzyResult is the outcome of a fuzzy match: the fzf score plus the
// rune positions of the matched characters, for highlighting. A score
// of zero means no match.
type FuzzyResult struct {
	Score     int
	Positions []int
}

// NewSlab allocates a reusable scratch slab for [FuzzyMatch]. Reusing
// one slab across calls avoids per-match allocations. Nil is also
// accepted by FuzzyMatch and allocates per call.
func NewSlab() *util.Slab {
	return util.MakeSlab(100*1024, 2048)
}

// FuzzyMatch scores a single text against a pattern using fzf's
// FuzzyMatchV2 algorithm. Matching is case-insensitive: the pattern
// is lowercased here and the algorithm folds the text side, so the
// returned positions index runes of the original text. An empty
// pattern matches nothing.
func FuzzyMatch(text string, pattern []rune, slab *util.Slab) FuzzyResult {
	if len(pattern) == 0 {
		return FuzzyResult{}
	}
	lowered := make([]rune, len(pattern))
	for index, r := range pattern {
		lowered[index] = unicode.ToLower(r)
	}
	chars := util.ToChars([]byte(text))
	result, positions := algo.FuzzyMatchV2(false, true, true, &chars, lowered, true, slab)
	if result.Score <= 0 {
		return FuzzyResult{}
	}
	match := FuzzyResult{Score: result.Score}
	if positions != nil {
		match.Positions = *positions
	}
	return match
}
