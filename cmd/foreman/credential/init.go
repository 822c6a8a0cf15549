// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package credential

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/foreman/cmd/foreman/cli"
	"github.com/bureau-foundation/foreman/lib/sealed"
)

type initParams struct {
	Out string `flag:"out,o" desc:"identity file to create (mode 0600, never overwritten)"`
}

func initCommand() *cli.Command {
	var params initParams

	return &cli.Command{
		Name:    "init",
		Summary: "Generate an age identity for the daemon",
		Description: `Generate an x25519 keypair and write it to an identity file in
age-keygen format. The public key is printed to stdout; pass it to
'credentials seal --recipient' when sealing bundles. The private key
never leaves the file.`,
		Usage: "foreman credentials init --out <file>",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("init", &params)
		},
		Run: func(args []string) error {
			if len(args) != 0 {
				return fmt.Errorf("init takes no arguments")
			}
			if params.Out == "" {
				return fmt.Errorf("--out is required")
			}
			return runInit(&params)
		},
	}
}

func runInit(params *initParams) error {
	keypair, err := sealed.GenerateKeypair()
	if err != nil {
		return err
	}
	defer keypair.Close()

	if err := sealed.WriteIdentityFile(params.Out, keypair, time.Now()); err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "Wrote identity to %s\n", params.Out)
	fmt.Fprintf(os.Stderr, "Public key (use as --recipient when sealing):\n")
	fmt.Fprintf(os.Stdout, "%s\n", keypair.PublicKey)
	return nil
}
