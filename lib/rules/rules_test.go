// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package rules_test

import (
	"strings"
	"sync"
	"testing"

	"github.com/bureau-foundation/foreman/lib/rules"
)

func TestFirstMatchWinsInRegistrationOrder(t *testing.T) {
	engine, err := rules.NewEngine(
		rules.Rule{Pattern: `trust this folder`, Type: "trust", Keys: []string{"Enter"}, Description: "first"},
		rules.Rule{Pattern: `trust`, Type: "trust", Response: "yes", Description: "second"},
	)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	match := engine.Match("Do you trust this folder? (y/n)")
	if match == nil {
		t.Fatal("expected a match")
	}
	if match.Rule.Description != "first" {
		t.Fatalf("matched rule %q, want %q", match.Rule.Description, "first")
	}
	if match.Text != "trust this folder" {
		t.Fatalf("matched text %q, want %q", match.Text, "trust this folder")
	}
}

func TestOnceRuleFiresExactlyOnce(t *testing.T) {
	engine, err := rules.NewEngine(
		rules.Rule{Pattern: `Enter API key:`, Type: "auth", Response: "sk-test-123", Once: true},
		rules.Rule{Pattern: `Enter API key:`, Type: "auth-fallback", Keys: []string{"Escape"}},
	)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	first := engine.Match("Enter API key: _")
	if first == nil || first.Rule.Type != "auth" {
		t.Fatalf("first match = %+v, want the once rule", first)
	}
	if engine.Len() != 1 {
		t.Fatalf("active rules after once firing = %d, want 1", engine.Len())
	}

	// The same prompt text appearing again must fall through to the
	// next rule, never re-fire the consumed one.
	second := engine.Match("Enter API key: _")
	if second == nil || second.Rule.Type != "auth-fallback" {
		t.Fatalf("second match = %+v, want the fallback rule", second)
	}
}

func TestOnceRuleUnderConcurrentMatch(t *testing.T) {
	engine, err := rules.NewEngine(
		rules.Rule{Pattern: `password:`, Type: "auth", Response: "hunter2", Once: true},
	)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	const attempts = 32
	results := make(chan *rules.Match, attempts)
	var start sync.WaitGroup
	start.Add(1)
	var done sync.WaitGroup
	for i := 0; i < attempts; i++ {
		done.Add(1)
		go func() {
			defer done.Done()
			start.Wait()
			results <- engine.Match("password: ")
		}()
	}
	start.Done()
	done.Wait()
	close(results)

	fired := 0
	for match := range results {
		if match != nil {
			fired++
		}
	}
	if fired != 1 {
		t.Fatalf("once rule fired %d times under concurrency, want 1", fired)
	}
}

func TestNoMatchReturnsNil(t *testing.T) {
	engine, err := rules.NewEngine(
		rules.Rule{Pattern: `continue\?`, Type: "confirm", Keys: []string{"Enter"}},
	)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	if match := engine.Match("compiling lib/session..."); match != nil {
		t.Fatalf("unexpected match: %+v", match)
	}
}

func TestAddAppendsAfterExistingRules(t *testing.T) {
	engine, err := rules.NewEngine(
		rules.Rule{Pattern: `proceed`, Type: "a", Response: "y", Description: "original"},
	)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	if err := engine.Add(rules.Rule{Pattern: `proceed`, Type: "b", Response: "n", Description: "added"}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	match := engine.Match("proceed?")
	if match == nil || match.Rule.Description != "original" {
		t.Fatalf("match = %+v, want the originally registered rule", match)
	}
	if engine.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", engine.Len())
	}
}

func TestValidateRejectsMalformedRules(t *testing.T) {
	cases := []struct {
		name string
		rule rules.Rule
		want string
	}{
		{
			name: "missing pattern",
			rule: rules.Rule{Response: "y"},
			want: "pattern is required",
		},
		{
			name: "invalid pattern",
			rule: rules.Rule{Pattern: `(unclosed`, Response: "y"},
			want: "invalid pattern",
		},
		{
			name: "neither response nor keys",
			rule: rules.Rule{Pattern: `ok`},
			want: "exactly one of",
		},
		{
			name: "both response and keys",
			rule: rules.Rule{Pattern: `ok`, Response: "y", Keys: []string{"Enter"}},
			want: "exactly one of",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.rule.Validate()
			if err == nil {
				t.Fatal("Validate() = nil, want error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("Validate() = %q, want substring %q", err, tc.want)
			}
		})
	}
}

func TestAddIsAtomicOnError(t *testing.T) {
	engine, err := rules.NewEngine()
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	addErr := engine.Add(
		rules.Rule{Pattern: `fine`, Response: "y"},
		rules.Rule{Pattern: `(broken`, Response: "y"},
	)
	if addErr == nil {
		t.Fatal("Add with an invalid rule succeeded")
	}
	if engine.Len() != 0 {
		t.Fatalf("Len() = %d after failed Add, want 0", engine.Len())
	}
}

func TestActiveSnapshotReflectsOnceRemoval(t *testing.T) {
	engine, err := rules.NewEngine(
		rules.Rule{Pattern: `one`, Response: "1", Once: true, Description: "ephemeral"},
		rules.Rule{Pattern: `two`, Response: "2", Description: "durable"},
	)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	if engine.Match("one") == nil {
		t.Fatal("expected the once rule to fire")
	}
	active := engine.Active()
	if len(active) != 1 || active[0].Description != "durable" {
		t.Fatalf("Active() = %+v, want only the durable rule", active)
	}
}
