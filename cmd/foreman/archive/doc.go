// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package archive implements the archive commands: listing and reading
// session records. They read the archive directory on disk rather than
// going through the daemon, so records of a stopped daemon stay
// reachable.
//
// The directory and key come from --archives and --key-file when set,
// otherwise from the daemon config (--config, then FOREMAN_CONFIG,
// then the built-in default paths).
package archive
