// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"strings"
	"testing"

	"github.com/bureau-foundation/foreman/cmd/foreman/cli"
)

// TestCommandTreeShape walks the full production command tree and
// validates the structural invariants the dispatcher relies on: every
// command below the root carries a name and a summary, sibling names
// are unique, and every leaf has a Run function.
func TestCommandTreeShape(t *testing.T) {
	root := Root()
	if root.Name != "foreman" {
		t.Errorf("root name = %q, want foreman", root.Name)
	}

	walkCommands(root, nil, func(command *cli.Command, path []string) {
		joined := strings.Join(path, " ")
		if command != root {
			if command.Name == "" {
				t.Errorf("%s: command without a name", joined)
			}
			if command.Summary == "" {
				t.Errorf("%s: command without a summary", joined)
			}
		}
		if command.Run == nil && len(command.Subcommands) == 0 {
			t.Errorf("%s: leaf command without a Run function", joined)
		}

		seen := make(map[string]bool, len(command.Subcommands))
		for _, sub := range command.Subcommands {
			if seen[sub.Name] {
				t.Errorf("%s: duplicate subcommand %q", joined, sub.Name)
			}
			seen[sub.Name] = true
		}
	})
}

// TestCommandTreeFlags builds every command's flag set once. Flag
// construction panics on bad struct tags, so this catches a broken
// params struct at test time instead of on first use.
func TestCommandTreeFlags(t *testing.T) {
	walkCommands(Root(), nil, func(command *cli.Command, path []string) {
		if command.Flags == nil {
			return
		}
		if flagSet := command.Flags(); flagSet == nil {
			t.Errorf("%s: Flags() returned nil", strings.Join(path, " "))
		}
	})
}

// walkCommands recursively visits every command in the tree, calling
// visit for each node with the accumulated command path.
func walkCommands(command *cli.Command, path []string, visit func(*cli.Command, []string)) {
	current := make([]string, len(path)+1)
	copy(current, path)
	current[len(path)] = command.Name
	visit(command, current)
	for _, sub := range command.Subcommands {
		walkCommands(sub, current, visit)
	}
}
