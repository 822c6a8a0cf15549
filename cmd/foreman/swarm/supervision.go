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
	"github.com/bureau-foundation/foreman/lib/httpapi"
)

// SupervisionCommand returns the "supervision" parent command with its
// subcommands.
func SupervisionCommand() *cli.Command {
	return &cli.Command{
		Name:    "supervision",
		Summary: "Show or change the supervision level",
		Description: `The supervision level controls what the coordinator does with its
decisions:

  autonomous  apply decisions immediately
  confirm     queue every decision for human approval first
  notify      apply immediately, mark history entries for auditing

Raising to confirm leaves already-applied decisions alone; lowering
from confirm applies nothing retroactively, but queued decisions stay
queued until confirmed or rejected.`,
		Subcommands: []*cli.Command{
			supervisionGetCommand(),
			supervisionSetCommand(),
		},
		Examples: []cli.Example{
			{
				Description: "Show the current level",
				Command:     "foreman supervision get",
			},
			{
				Description: "Require confirmation for every decision",
				Command:     "foreman supervision set confirm",
			},
		},
	}
}

type supervisionGetParams struct {
	client.Connection
	cli.JSONOutput
}

func supervisionGetCommand() *cli.Command {
	var params supervisionGetParams

	return &cli.Command{
		Name:    "get",
		Summary: "Show the current supervision level",
		Usage:   "foreman supervision get [flags]",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("get", &params)
		},
		Run: func(args []string) error {
			if len(args) != 0 {
				return fmt.Errorf("get takes no arguments")
			}
			ctx, cancel := callContext()
			defer cancel()

			level, err := params.Client().Supervision(ctx)
			if err != nil {
				return err
			}
			if done, err := params.EmitJSON(httpapi.SupervisionPayload{Level: level}); done {
				return err
			}
			fmt.Fprintf(os.Stderr, "%s\n", level)
			return nil
		},
	}
}

type supervisionSetParams struct {
	client.Connection
}

func supervisionSetCommand() *cli.Command {
	var params supervisionSetParams

	return &cli.Command{
		Name:    "set",
		Summary: "Change the supervision level",
		Usage:   "foreman supervision set <autonomous|confirm|notify>",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("set", &params)
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("expected exactly one level argument (autonomous, confirm, or notify)")
			}
			level, err := coordinator.ParseSupervision(args[0])
			if err != nil {
				return err
			}
			ctx, cancel := callContext()
			defer cancel()

			if err := params.Client().SetSupervision(ctx, string(level)); err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "Supervision level set to %s\n", level)
			return nil
		},
	}
}
