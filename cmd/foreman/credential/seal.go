// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package credential

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/foreman/cmd/foreman/cli"
	"github.com/bureau-foundation/foreman/lib/sealed"
	"github.com/bureau-foundation/foreman/lib/secret"
)

type sealParams struct {
	In         string   `flag:"in,i" desc:"plaintext bundle YAML to seal"`
	Out        string   `flag:"out,o" desc:"sealed bundle file to write"`
	Recipients []string `flag:"recipient,r" desc:"age public key to seal to (repeatable)"`
}

func sealCommand() *cli.Command {
	var params sealParams

	return &cli.Command{
		Name:    "seal",
		Summary: "Encrypt a credential bundle",
		Description: `Validate a plaintext bundle and encrypt it to the given age
recipients. The plaintext is YAML mapping credential names to their
value and the prompt pattern that identifies where the value belongs:

  github:
    value: ghp_xxxxxxxxxxxx
    prompt_pattern: 'Enter GitHub token:'
    description: read-only CI token

Validation runs before sealing, so a broken pattern fails here rather
than at daemon startup. Delete the plaintext file once sealed.`,
		Usage: "foreman credentials seal --in <file> --recipient <age1...> --out <file>",
		Examples: []cli.Example{
			{
				Description: "Seal to two identities",
				Command:     "foreman credentials seal --in plain.yaml -r age1abc... -r age1def... --out bundle.age",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("seal", &params)
		},
		Run: func(args []string) error {
			if len(args) != 0 {
				return fmt.Errorf("seal takes no arguments")
			}
			if params.In == "" || params.Out == "" {
				return fmt.Errorf("--in and --out are required")
			}
			if len(params.Recipients) == 0 {
				return fmt.Errorf("at least one --recipient is required")
			}
			return runSeal(&params)
		},
	}
}

func runSeal(params *sealParams) error {
	for _, recipient := range params.Recipients {
		if err := sealed.ParsePublicKey(recipient); err != nil {
			return fmt.Errorf("recipient %q: %w", recipient, err)
		}
	}

	plaintext, err := os.ReadFile(params.In)
	if err != nil {
		return fmt.Errorf("reading bundle: %w", err)
	}
	armored, err := sealed.SealBundle(plaintext, params.Recipients)
	secret.Zero(plaintext)
	if err != nil {
		return err
	}

	if err := os.WriteFile(params.Out, []byte(armored), 0o600); err != nil {
		return fmt.Errorf("writing sealed bundle: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Sealed %s to %d recipient(s) at %s\n",
		params.In, len(params.Recipients), params.Out)
	fmt.Fprintf(os.Stderr, "Remember to delete the plaintext file.\n")
	return nil
}
