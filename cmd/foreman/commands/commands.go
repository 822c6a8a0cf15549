// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands builds the complete foreman CLI command tree. It
// exists apart from main so tests can construct and walk the full
// tree without running a binary.
package commands

import (
	"fmt"

	archivecmd "github.com/bureau-foundation/foreman/cmd/foreman/archive"
	"github.com/bureau-foundation/foreman/cmd/foreman/cli"
	credentialcmd "github.com/bureau-foundation/foreman/cmd/foreman/credential"
	sessionscmd "github.com/bureau-foundation/foreman/cmd/foreman/sessions"
	swarmcmd "github.com/bureau-foundation/foreman/cmd/foreman/swarm"
	watchcmd "github.com/bureau-foundation/foreman/cmd/foreman/watch"
	"github.com/bureau-foundation/foreman/lib/version"
)

// Root builds and returns the complete foreman CLI command tree.
func Root() *cli.Command {
	return &cli.Command{
		Name: "foreman",
		Description: `Foreman: coding-agent swarm orchestration.

Spawn coding agents in managed terminal sessions, keep them moving
with auto-response rules and an LLM coordinator, and supervise the
whole swarm from one dashboard.`,
		Subcommands: []*cli.Command{
			sessionscmd.SpawnCommand(),
			sessionscmd.ListCommand(),
			sessionscmd.SendCommand(),
			sessionscmd.KeysCommand(),
			sessionscmd.StopCommand(),
			swarmcmd.StatusCommand(),
			swarmcmd.PendingCommand(),
			swarmcmd.ConfirmCommand(),
			swarmcmd.SupervisionCommand(),
			watchcmd.Command(),
			archivecmd.Command(),
			credentialcmd.Command(),
			{
				Name:    "version",
				Summary: "Print version information",
				Run: func(args []string) error {
					fmt.Printf("foreman %s\n", version.Full())
					return nil
				},
			},
		},
		Examples: []cli.Example{
			{
				Description: "Spawn a claude agent on a task",
				Command:     `foreman spawn claude --label lexer --task "Fix the lexer fuzz crashes"`,
			},
			{
				Description: "See every session and its status",
				Command:     "foreman sessions",
			},
			{
				Description: "Open the live dashboard",
				Command:     "foreman watch",
			},
			{
				Description: "Approve the confirmation a session is blocked on",
				Command:     "foreman confirm 01J8X2M3N4P5Q6R7S8T9V0W1X2",
			},
			{
				Description: "Let the coordinator act without approval",
				Command:     "foreman supervision set autonomous",
			},
		},
	}
}
