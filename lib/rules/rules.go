// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package rules implements the auto-response rule engine. Rules map
// known interactive prompts (trust dialogs, theme pickers,
// authentication requests) to automatic replies so sessions clear them
// without escalating.
//
// Rules are session-scoped: the session manager builds one Engine per
// session at spawn time, so a credential rule loaded for one session
// can never match output from another. A rule flagged Once is removed
// from the active set the moment it fires. This is a deliberate
// disclosure control: a rule that types a secret must not be
// re-triggerable by crafted terminal output echoing the prompt again.
package rules

import (
	"fmt"
	"regexp"
	"sync"
)

// Rule is one prompt-to-reply mapping. Exactly one of Response or
// Keys must be set: Response is sent as literal text (with a trailing
// newline, via the session's send path), Keys as a raw key sequence
// (for prompts driven by arrow keys or bare Enter).
type Rule struct {
	// Pattern is the regular expression matched against the retained
	// output window.
	Pattern string `yaml:"pattern" json:"pattern"`

	// Type is a free-form category tag ("trust-prompt", "auth",
	// "theme", ...) recorded with every firing.
	Type string `yaml:"type" json:"type"`

	// Response is the literal text reply.
	Response string `yaml:"response,omitempty" json:"response,omitempty"`

	// Keys is the key-sequence reply (key names in the terminal
	// transport's vocabulary, e.g. "Enter", "Down").
	Keys []string `yaml:"keys,omitempty" json:"keys,omitempty"`

	// Description says what the rule clears, for operators reading
	// session history.
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// Safe marks rules whose reply contains nothing sensitive.
	// Informational only; it does not change matching.
	Safe bool `yaml:"safe,omitempty" json:"safe,omitempty"`

	// Once limits the rule to a single firing per session.
	Once bool `yaml:"once,omitempty" json:"once,omitempty"`
}

// Validate checks the rule is well formed without compiling it into
// an engine.
func (r Rule) Validate() error {
	if r.Pattern == "" {
		return fmt.Errorf("rule %q: pattern is required", r.Description)
	}
	if _, err := regexp.Compile(r.Pattern); err != nil {
		return fmt.Errorf("rule %q: invalid pattern: %w", r.Description, err)
	}
	hasResponse := r.Response != ""
	hasKeys := len(r.Keys) > 0
	if hasResponse == hasKeys {
		return fmt.Errorf("rule %q: exactly one of response or keys must be set", r.Description)
	}
	return nil
}

// Match is the result of a rule firing.
type Match struct {
	// Rule is a copy of the fired rule.
	Rule Rule

	// Text is the substring of the window the pattern matched.
	Text string
}

// Engine holds one session's active rule set. Matching scans rules in
// registration order; the first whose pattern matches anywhere in the
// window wins. Safe for concurrent use, though the session manager
// drives each engine from a single pipeline goroutine.
type Engine struct {
	mu     sync.Mutex
	active []compiledRule
}

type compiledRule struct {
	rule    Rule
	pattern *regexp.Regexp
}

// NewEngine compiles the given rules into an engine. Rules fire in
// the order given here; later Add calls append after them.
func NewEngine(initial ...Rule) (*Engine, error) {
	engine := &Engine{}
	if err := engine.Add(initial...); err != nil {
		return nil, err
	}
	return engine, nil
}

// Add appends rules to the active set. On error no rule from this
// call is added.
func (e *Engine) Add(additions ...Rule) error {
	compiled := make([]compiledRule, 0, len(additions))
	for _, rule := range additions {
		if err := rule.Validate(); err != nil {
			return err
		}
		pattern, err := regexp.Compile(rule.Pattern)
		if err != nil {
			return fmt.Errorf("rule %q: %w", rule.Description, err)
		}
		compiled = append(compiled, compiledRule{rule: rule, pattern: pattern})
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.active = append(e.active, compiled...)
	return nil
}

// Match scans the active rules against window and returns the first
// match, or nil. A fired Once rule is removed from the active set
// under the engine lock before Match returns, so it can never fire a
// second time even under concurrent calls.
func (e *Engine) Match(window string) *Match {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i, candidate := range e.active {
		loc := candidate.pattern.FindStringIndex(window)
		if loc == nil {
			continue
		}
		if candidate.rule.Once {
			e.active = append(e.active[:i], e.active[i+1:]...)
		}
		return &Match{
			Rule: candidate.rule,
			Text: window[loc[0]:loc[1]],
		}
	}
	return nil
}

// Active returns a snapshot of the rules still eligible to fire, in
// match order.
func (e *Engine) Active() []Rule {
	e.mu.Lock()
	defer e.mu.Unlock()

	snapshot := make([]Rule, len(e.active))
	for i, candidate := range e.active {
		snapshot[i] = candidate.rule
	}
	return snapshot
}

// Len returns the number of rules still eligible to fire.
func (e *Engine) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.active)
}
