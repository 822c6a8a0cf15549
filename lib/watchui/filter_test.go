// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package watchui

import (
	"testing"

	"github.com/bureau-foundation/foreman/lib/coordinator"
)

func TestFuzzyMatchBasic(t *testing.T) {
	result := fuzzyMatch("Fix connection pooling leak", []rune("pooling"), nil)
	if result.Score <= 0 {
		t.Fatal("expected positive score for substring match")
	}
	if len(result.Positions) == 0 {
		t.Fatal("expected non-empty match positions")
	}
}

func TestFuzzyMatchNonContiguous(t *testing.T) {
	// "plk" should match "pooling leak" — p from pooling, l from
	// pooling/leak, k from leak.
	result := fuzzyMatch("pooling leak", []rune("plk"), nil)
	if result.Score <= 0 {
		t.Fatal("expected positive score for non-contiguous fuzzy match")
	}
}

func TestFuzzyMatchNoMatch(t *testing.T) {
	result := fuzzyMatch("Fix connection pooling leak", []rune("xyz"), nil)
	if result.Score != 0 {
		t.Errorf("expected zero score for no match, got %d", result.Score)
	}
	if len(result.Positions) != 0 {
		t.Errorf("expected empty positions for no match, got %v", result.Positions)
	}
}

func TestFuzzyMatchCaseInsensitive(t *testing.T) {
	// Pattern is lowercase, text has uppercase "Pooling". Our wrapper
	// lowercases both sides, so this should match.
	result := fuzzyMatch("Fix Connection Pooling", []rune("pooling"), nil)
	if result.Score <= 0 {
		t.Fatalf("expected case-insensitive match, got score=%d", result.Score)
	}
}

func TestFuzzyMatchCaseInsensitiveAllCaps(t *testing.T) {
	// All-caps text with lowercase pattern.
	result := fuzzyMatch("PTY SERVER CONFIG", []rune("pty"), nil)
	if result.Score <= 0 {
		t.Fatalf("expected match for 'pty' in 'PTY SERVER CONFIG', got score=%d", result.Score)
	}
}

func TestFuzzyMatchEmptyPattern(t *testing.T) {
	result := fuzzyMatch("anything", []rune{}, nil)
	if result.Score != 0 {
		t.Errorf("expected zero score for empty pattern, got %d", result.Score)
	}
}

// filterRows builds a small fixed session list for filter tests. The
// labels, agents, statuses, and workdirs are chosen so each query in
// the tests below hits exactly the rows it names.
func filterRows() []Row {
	return []Row{
		{Task: coordinator.TaskContext{
			SessionID: "fix-pool-7f3a",
			AgentType: "claude",
			Label:     "Fix connection pooling leak",
			Status:    coordinator.TaskActive,
			Workdir:   "/srv/checkout/backoff-lab",
		}},
		{Task: coordinator.TaskContext{
			SessionID: "retry-91c2",
			AgentType: "codex",
			Label:     "Implement retry backoff",
			Status:    coordinator.TaskBlocked,
			Workdir:   "/srv/checkout/transport",
		}},
		{Task: coordinator.TaskContext{
			SessionID: "ci-4b8d",
			AgentType: "claude",
			Label:     "Update CI pipeline config",
			Status:    coordinator.TaskComplete,
			Workdir:   "/srv/checkout/infra",
		}},
	}
}

func TestApplyFuzzyEmptyFilter(t *testing.T) {
	rows := filterRows()

	filter := FilterModel{Input: ""}
	results := filter.ApplyFuzzy(rows)

	if len(results) != len(rows) {
		t.Fatalf("empty filter should return all %d rows, got %d", len(rows), len(results))
	}

	for i, result := range results {
		if result.Score != 0 {
			t.Errorf("row %s should have zero score with empty filter, got %d", result.Row.Task.SessionID, result.Score)
		}
		if len(result.LabelPositions) != 0 {
			t.Errorf("row %s should have no label positions with empty filter", result.Row.Task.SessionID)
		}
		if result.Row.Task.SessionID != rows[i].Task.SessionID {
			t.Errorf("empty filter should preserve order: position %d is %s, want %s",
				i, result.Row.Task.SessionID, rows[i].Task.SessionID)
		}
	}
}

func TestApplyFuzzyMatchesLabel(t *testing.T) {
	filter := FilterModel{Input: "pooling"}
	results := filter.ApplyFuzzy(filterRows())

	found := false
	for _, result := range results {
		if result.Row.Task.SessionID == "fix-pool-7f3a" {
			found = true
			if result.Score <= 0 {
				t.Error("expected positive score for matching row")
			}
			if len(result.LabelPositions) == 0 {
				t.Error("expected label positions for matching row")
			}
		}
	}
	if !found {
		t.Error("fix-pool-7f3a should appear in fuzzy results for 'pooling'")
	}
}

func TestApplyFuzzyNonContiguousMatch(t *testing.T) {
	// "cnpl" should match "connection pooling" via fuzzy matching.
	filter := FilterModel{Input: "cnpl"}
	results := filter.ApplyFuzzy(filterRows())

	found := false
	for _, result := range results {
		if result.Row.Task.SessionID == "fix-pool-7f3a" {
			found = true
			break
		}
	}
	if !found {
		t.Error("fix-pool-7f3a should match fuzzy query 'cnpl' against 'Fix connection pooling leak'")
	}
}

func TestApplyFuzzySortedByScore(t *testing.T) {
	// The scattered row comes first so the sort has to move the exact
	// substring match ahead of it.
	rows := []Row{
		{Task: coordinator.TaskContext{
			SessionID: "scattered",
			Label:     "p-something o-other l-long i-inner n-nope g-gone",
			Status:    coordinator.TaskActive,
		}},
		{Task: coordinator.TaskContext{
			SessionID: "exact",
			Label:     "pooling is great",
			Status:    coordinator.TaskActive,
		}},
	}

	filter := FilterModel{Input: "pooling"}
	results := filter.ApplyFuzzy(rows)

	if len(results) < 1 {
		t.Fatal("expected at least one result")
	}
	if results[0].Row.Task.SessionID != "exact" {
		t.Errorf("expected exact to be first (best score), got %s", results[0].Row.Task.SessionID)
	}
}

func TestApplyFuzzyLabelPositions(t *testing.T) {
	rows := []Row{
		{Task: coordinator.TaskContext{
			SessionID: "hello-1",
			Label:     "hello world",
			Status:    coordinator.TaskActive,
		}},
	}

	filter := FilterModel{Input: "hw"}
	results := filter.ApplyFuzzy(rows)

	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}

	positions := results[0].LabelPositions
	if len(positions) == 0 {
		t.Fatal("expected label match positions")
	}

	// The positions should be valid indices into "hello world".
	label := "hello world"
	for _, position := range positions {
		if position < 0 || position >= len([]rune(label)) {
			t.Errorf("position %d out of bounds for label %q", position, label)
		}
	}
}

func TestApplyFuzzyFallbackSessionID(t *testing.T) {
	filter := FilterModel{Input: "7f3a"}
	results := filter.ApplyFuzzy(filterRows())

	if len(results) != 1 {
		t.Fatalf("expected 1 result for session ID query, got %d", len(results))
	}
	if results[0].Row.Task.SessionID != "fix-pool-7f3a" {
		t.Errorf("expected fix-pool-7f3a, got %s", results[0].Row.Task.SessionID)
	}
	if results[0].Score != 1 {
		t.Errorf("fallback match should score 1, got %d", results[0].Score)
	}
}

func TestApplyFuzzyFallbackAgentType(t *testing.T) {
	filter := FilterModel{Input: "codex"}
	results := filter.ApplyFuzzy(filterRows())

	if len(results) != 1 {
		t.Fatalf("expected 1 result for agent query, got %d", len(results))
	}
	if results[0].Row.Task.SessionID != "retry-91c2" {
		t.Errorf("expected retry-91c2, got %s", results[0].Row.Task.SessionID)
	}
	if len(results[0].LabelPositions) != 0 {
		t.Error("fallback match should carry no label positions")
	}
}

func TestApplyFuzzyFallbackStatus(t *testing.T) {
	filter := FilterModel{Input: "blocked"}
	results := filter.ApplyFuzzy(filterRows())

	if len(results) != 1 {
		t.Fatalf("expected 1 result for status query, got %d", len(results))
	}
	if results[0].Row.Task.SessionID != "retry-91c2" {
		t.Errorf("expected retry-91c2, got %s", results[0].Row.Task.SessionID)
	}
}

func TestApplyFuzzyFallbackWorkdir(t *testing.T) {
	filter := FilterModel{Input: "transport"}
	results := filter.ApplyFuzzy(filterRows())

	if len(results) != 1 {
		t.Fatalf("expected 1 result for workdir query, got %d", len(results))
	}
	if results[0].Row.Task.SessionID != "retry-91c2" {
		t.Errorf("expected retry-91c2, got %s", results[0].Row.Task.SessionID)
	}
}

func TestApplyFuzzyLabelOutranksFallback(t *testing.T) {
	// "backoff" matches the retry row's label directly and the pooling
	// row's workdir only by substring; the label match must sort first.
	filter := FilterModel{Input: "backoff"}
	results := filter.ApplyFuzzy(filterRows())

	if len(results) != 2 {
		t.Fatalf("expected 2 results for 'backoff', got %d", len(results))
	}
	if results[0].Row.Task.SessionID != "retry-91c2" {
		t.Errorf("label match should rank first, got %s", results[0].Row.Task.SessionID)
	}
	if results[1].Row.Task.SessionID != "fix-pool-7f3a" {
		t.Errorf("fallback match should rank second, got %s", results[1].Row.Task.SessionID)
	}
	if results[1].Score != 1 {
		t.Errorf("fallback match should score 1, got %d", results[1].Score)
	}
}

func TestApplyFuzzyNoMatch(t *testing.T) {
	filter := FilterModel{Input: "xyz-nonexistent"}
	results := filter.ApplyFuzzy(filterRows())

	if len(results) != 0 {
		t.Errorf("expected no results for 'xyz-nonexistent', got %d", len(results))
	}
}

func TestFilterHandleRune(t *testing.T) {
	filter := FilterModel{}
	filter.HandleRune('a')
	filter.HandleRune('b')
	if filter.Input != "ab" {
		t.Errorf("expected 'ab', got %q", filter.Input)
	}
}

func TestFilterHandleBackspace(t *testing.T) {
	filter := FilterModel{Input: "abc"}
	changed := filter.HandleBackspace()
	if !changed {
		t.Error("backspace should return true when there's text")
	}
	if filter.Input != "ab" {
		t.Errorf("expected 'ab' after backspace, got %q", filter.Input)
	}

	// Backspace on empty.
	filter.Input = ""
	changed = filter.HandleBackspace()
	if changed {
		t.Error("backspace on empty should return false")
	}
}

func TestFilterClear(t *testing.T) {
	filter := FilterModel{Input: "test", Active: true}
	filter.Clear()
	if filter.Input != "" {
		t.Errorf("expected empty input after clear, got %q", filter.Input)
	}
	if filter.Active {
		t.Error("filter should be inactive after clear")
	}
}
