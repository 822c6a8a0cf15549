// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Foreman is the operator CLI for the foreman daemon. It spawns and
// manages agent sessions (spawn, sessions, send, keys, stop), works
// the coordination queue (status, pending, confirm, supervision),
// opens the live dashboard (watch), and reads archived transcripts
// (archive). Credential bundles are prepared offline with the
// credentials subcommands.
package main

import (
	"fmt"
	"os"

	"github.com/bureau-foundation/foreman/cmd/foreman/commands"
)

func main() {
	if err := commands.Root().Execute(os.Args[1:]); err != nil {
		// Commands that print their own output return an ExitError
		// carrying the desired code; no redundant "error:" line for
		// those.
		if coder, ok := err.(interface{ ExitCode() int }); ok {
			os.Exit(coder.ExitCode())
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
