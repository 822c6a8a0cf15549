// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package credential implements the credentials commands: generating
// an age identity and sealing credential bundles to it. The daemon
// opens the sealed bundle at startup and arms credentials as
// single-use auto-response rules; these commands are how operators
// produce those files without secrets touching shell history.
package credential
