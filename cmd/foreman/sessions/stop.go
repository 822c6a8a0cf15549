// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sessions

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/foreman/cmd/foreman/cli"
	"github.com/bureau-foundation/foreman/cmd/foreman/client"
)

type stopParams struct {
	client.Connection
	Reason string `flag:"reason" desc:"stop reason recorded in the session archive"`
}

// StopCommand returns the "stop" command.
func StopCommand() *cli.Command {
	var params stopParams

	return &cli.Command{
		Name:    "stop",
		Summary: "Stop a session",
		Description: `Terminate a session's agent process and release its terminal.
The transcript and task history are archived before the session is
removed. Stopping an already-stopped session is not an error.`,
		Usage: "foreman stop <session-id> [flags]",
		Examples: []cli.Example{
			{
				Description: "Stop a session with a reason",
				Command:     "foreman stop 01J9ZB8QK3 --reason 'task superseded'",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("stop", &params)
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("expected exactly one session ID argument, got %d", len(args))
			}
			ctx, cancel := callContext()
			defer cancel()
			if err := params.Client().Stop(ctx, args[0], params.Reason); err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "Stopped session %s\n", args[0])
			return nil
		},
	}
}
