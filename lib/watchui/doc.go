// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package watchui implements the interactive coordination dashboard:
// a bubbletea TUI showing every coordinated session, its task state,
// decision history, and queued confirmations, updating live from the
// daemon's coordination feed.
//
// The model reads through the [Source] interface and hears about
// changes on a subscription channel; sources that also implement
// [Actor] enable the operator action keys (approve, reject,
// supervision, send). The daemon-backed implementation lives in
// cmd/foreman/watch; tests drive the model with an in-memory source.
package watchui
