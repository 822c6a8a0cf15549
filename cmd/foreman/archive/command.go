// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"github.com/bureau-foundation/foreman/cmd/foreman/cli"
)

// Command returns the "archive" parent command with its subcommands.
func Command() *cli.Command {
	return &cli.Command{
		Name:    "archive",
		Summary: "Browse archived session records",
		Description: `Every stopped session leaves a record: identity, transcript, stop
reason, and the coordinator's decision history. Records live in the
archive directory as compressed (optionally sealed) files with a JSON
index, and these commands read them straight from disk. The daemon
does not need to be running.`,
		Subcommands: []*cli.Command{
			listCommand(),
			showCommand(),
		},
		Examples: []cli.Example{
			{
				Description: "List archived sessions",
				Command:     "foreman archive list",
			},
			{
				Description: "Read a finished session's transcript",
				Command:     "foreman archive show 01J9ZB8QK3 --transcript",
			},
		},
	}
}
