// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package client talks to the foreman daemon's HTTP API on behalf of
// CLI commands.
//
// [Connection] is the flag-binding half: embed it in a command's
// params struct and it contributes the --address flag (defaulting to
// the FOREMAN_ADDRESS environment variable, then the daemon's default
// listen address). [Connection.Client] turns the parsed flags into a
// [Client].
//
// [Client] wraps every daemon route with a typed method. Request and
// response bodies reuse the daemon's own wire structs (lib/httpapi
// request types, lib/session and lib/coordinator payloads), so the
// two sides cannot drift apart. Errors from the daemon decode into
// [APIError] with the HTTP status preserved; [IsNotFound] covers the
// common 404 check.
//
// [Client.Events] opens the daemon's server-sent coordination feed
// and returns an [EventStream] whose Next method yields the opening
// snapshot followed by incremental feed events.
package client
