// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package swarm

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/foreman/cmd/foreman/cli"
	"github.com/bureau-foundation/foreman/cmd/foreman/client"
)

type pendingParams struct {
	client.Connection
	cli.JSONOutput
}

// PendingCommand returns the "pending" command.
func PendingCommand() *cli.Command {
	var params pendingParams

	return &cli.Command{
		Name:    "pending",
		Summary: "List decisions waiting for confirmation",
		Description: `Under confirm supervision the coordinator queues every decision
instead of applying it. This lists the queue; approve or reject entries
with 'foreman confirm'.`,
		Usage: "foreman pending [flags]",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("pending", &params)
		},
		Run: func(args []string) error {
			if len(args) != 0 {
				return fmt.Errorf("pending takes no arguments")
			}
			return runPending(&params)
		},
	}
}

func runPending(params *pendingParams) error {
	ctx, cancel := callContext()
	defer cancel()

	pending, err := params.Client().Pending(ctx)
	if err != nil {
		return err
	}

	if done, err := params.EmitJSON(pending); done {
		return err
	}

	if len(pending) == 0 {
		fmt.Fprintf(os.Stderr, "Nothing pending.\n")
		return nil
	}

	now := time.Now()
	for i, confirmation := range pending {
		if i > 0 {
			fmt.Fprintf(os.Stderr, "\n")
		}
		decision := confirmation.Decision
		fmt.Fprintf(os.Stderr, "Session %s (%s, waiting %s)\n",
			confirmation.SessionID,
			confirmation.Task.Label,
			formatAge(now.Sub(confirmation.CreatedAt)),
		)
		fmt.Fprintf(os.Stderr, "  Trigger:    %s\n", confirmation.Trigger)
		if confirmation.Prompt != "" {
			fmt.Fprintf(os.Stderr, "  Prompt:     %s\n", indentContinuation(confirmation.Prompt))
		}
		fmt.Fprintf(os.Stderr, "  Action:     %s\n", decision.Action)
		if decision.UseKeys {
			fmt.Fprintf(os.Stderr, "  Keys:       %s\n", strings.Join(decision.Keys, " "))
		} else if decision.Response != "" {
			fmt.Fprintf(os.Stderr, "  Response:   %s\n", indentContinuation(decision.Response))
		}
		fmt.Fprintf(os.Stderr, "  Reasoning:  %s\n", indentContinuation(decision.Reasoning))
		fmt.Fprintf(os.Stderr, "\n  foreman confirm %s\n", confirmation.SessionID)
	}
	return nil
}

// indentContinuation keeps multi-line values aligned under their
// label column.
func indentContinuation(text string) string {
	return strings.ReplaceAll(strings.TrimRight(text, "\n"), "\n", "\n              ")
}
