// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sessions

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/foreman/cmd/foreman/cli"
	"github.com/bureau-foundation/foreman/cmd/foreman/client"
)

type sendParams struct {
	client.Connection
}

// SendCommand returns the "send" command.
func SendCommand() *cli.Command {
	var params sendParams

	return &cli.Command{
		Name:    "send",
		Summary: "Type text into a session and press Enter",
		Description: `Deliver text to the agent's terminal as if typed, followed by
Enter. Multiple arguments are joined with single spaces, so quoting the
whole message is optional unless it contains shell metacharacters.`,
		Usage: "foreman send <session-id> <text>...",
		Examples: []cli.Example{
			{
				Description: "Answer a question the agent asked",
				Command:     "foreman send 01J9ZB8QK3 use the streaming parser",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("send", &params)
		},
		Run: func(args []string) error {
			if len(args) < 2 {
				return fmt.Errorf("expected a session ID and text to send")
			}
			ctx, cancel := callContext()
			defer cancel()
			return params.Client().Send(ctx, args[0], strings.Join(args[1:], " "))
		},
	}
}

type keysParams struct {
	client.Connection
}

// KeysCommand returns the "keys" command.
func KeysCommand() *cli.Command {
	var params keysParams

	return &cli.Command{
		Name:    "keys",
		Summary: "Send key presses to a session",
		Description: `Send named keys to the agent's terminal without appending Enter.
Key names follow tmux conventions: Enter, Escape, Tab, Up, Down, C-c,
and so on. Literal text works too; use send for whole messages.`,
		Usage: "foreman keys <session-id> <key>...",
		Examples: []cli.Example{
			{
				Description: "Accept a menu selection",
				Command:     "foreman keys 01J9ZB8QK3 Down Down Enter",
			},
			{
				Description: "Interrupt the agent",
				Command:     "foreman keys 01J9ZB8QK3 Escape",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("keys", &params)
		},
		Run: func(args []string) error {
			if len(args) < 2 {
				return fmt.Errorf("expected a session ID and at least one key")
			}
			ctx, cancel := callContext()
			defer cancel()
			return params.Client().Keys(ctx, args[0], args[1:])
		},
	}
}
