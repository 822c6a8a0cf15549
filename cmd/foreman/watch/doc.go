// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package watch implements the "foreman watch" command: the live
// dashboard over the daemon's coordination feed.
//
// The dashboard's bubbletea model lives in lib/watchui and knows
// nothing about HTTP. This package supplies its data source by
// adapting the daemon client's event stream ([FeedSource]) and owns
// the program lifecycle around it: flag parsing, log routing into the
// TUI, and reconnection with backoff.
package watch
