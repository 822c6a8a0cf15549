// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package swarm implements the coordination commands: status, pending,
// confirm, and supervision. They operate on the coordinator half of
// the daemon, where the session commands operate on terminals.
//
// All commands honor --address / FOREMAN_ADDRESS for the daemon API
// endpoint. Human-readable output goes to stderr; --json output goes
// to stdout.
package swarm
