// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sessions implements the session-lifecycle CLI commands:
// spawn, send, keys, stop, and the sessions listing.
//
// All commands talk to the daemon's HTTP API. The daemon address
// comes from --address or the FOREMAN_ADDRESS environment variable;
// human-readable output goes to stderr and --json output to stdout,
// so scripted callers can pipe structured results without stripping
// formatting.
package sessions
