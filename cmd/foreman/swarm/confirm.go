// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package swarm

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/foreman/cmd/foreman/cli"
	"github.com/bureau-foundation/foreman/cmd/foreman/client"
	"github.com/bureau-foundation/foreman/lib/coordinator"
)

type confirmParams struct {
	client.Connection
	cli.JSONOutput
	Reject   bool     `flag:"reject" desc:"discard the queued decision instead of applying it"`
	Response string   `flag:"response" desc:"replace the queued decision's input with this text"`
	Keys     []string `flag:"keys" desc:"replace the queued decision's input with these key presses"`
}

// ConfirmCommand returns the "confirm" command.
func ConfirmCommand() *cli.Command {
	var params confirmParams

	return &cli.Command{
		Name:    "confirm",
		Summary: "Approve or reject a queued decision",
		Description: `Resolve a pending confirmation for a session. Plain confirm
applies the decision as the coordinator queued it. --reject discards
it and the task stays blocked for the next decision round. --response
or --keys approves but substitutes your input for the model's.`,
		Usage: "foreman confirm <session-id> [flags]",
		Examples: []cli.Example{
			{
				Description: "Apply the queued decision",
				Command:     "foreman confirm 01J9ZB8QK3",
			},
			{
				Description: "Reject it",
				Command:     "foreman confirm 01J9ZB8QK3 --reject",
			},
			{
				Description: "Approve with a different answer",
				Command:     "foreman confirm 01J9ZB8QK3 --response 'keep the old API'",
			},
			{
				Description: "Approve with key presses instead",
				Command:     "foreman confirm 01J9ZB8QK3 --keys Down,Enter",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("confirm", &params)
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("expected exactly one session ID argument, got %d", len(args))
			}
			return runConfirm(&params, args[0])
		},
	}
}

func runConfirm(params *confirmParams, sessionID string) error {
	if params.Reject && (params.Response != "" || len(params.Keys) > 0) {
		return fmt.Errorf("--reject cannot be combined with an override")
	}
	if params.Response != "" && len(params.Keys) > 0 {
		return fmt.Errorf("--response and --keys are mutually exclusive")
	}

	var override *coordinator.Override
	if params.Response != "" {
		override = &coordinator.Override{Response: params.Response}
	} else if len(params.Keys) > 0 {
		override = &coordinator.Override{UseKeys: true, Keys: params.Keys}
	}

	ctx, cancel := callContext()
	defer cancel()

	result, err := params.Client().Confirm(ctx, sessionID, !params.Reject, override)
	if err != nil {
		return err
	}

	if done, err := params.EmitJSON(result); done {
		return err
	}

	switch result.Status {
	case "applied":
		fmt.Fprintf(os.Stderr, "Applied the decision for session %s\n", result.SessionID)
	case "rejected":
		fmt.Fprintf(os.Stderr, "Rejected the decision for session %s\n", result.SessionID)
	default:
		fmt.Fprintf(os.Stderr, "%s: %s\n", result.SessionID, result.Status)
	}
	return nil
}
