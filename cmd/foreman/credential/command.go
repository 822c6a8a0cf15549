// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package credential

import (
	"github.com/bureau-foundation/foreman/cmd/foreman/cli"
)

// Command returns the "credentials" parent command with its
// subcommands.
func Command() *cli.Command {
	return &cli.Command{
		Name:    "credentials",
		Summary: "Manage sealed credential bundles",
		Description: `Credentials the coordinator may type into agent terminals (login
tokens, API keys) live in an age-encrypted bundle on disk. The daemon
decrypts it at startup with its identity file and arms each requested
credential as a single-use auto-response rule, so values reach exactly
one prompt and never appear in config files or logs.

"init" generates the daemon's identity. "seal" encrypts a plaintext
YAML bundle to one or more identities. Point the daemon at both files
via credentials.bundle and credentials.identity in its config.`,
		Subcommands: []*cli.Command{
			initCommand(),
			sealCommand(),
		},
		Examples: []cli.Example{
			{
				Description: "Generate the daemon identity",
				Command:     "foreman credentials init --out ~/.cache/foreman/identity.age",
			},
			{
				Description: "Seal a bundle to that identity",
				Command:     "foreman credentials seal --in plain.yaml --recipient age1... --out bundle.age",
			},
		},
	}
}
