// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for the foreman
// daemon.
//
// Configuration is loaded from a single file specified by either the
// FOREMAN_CONFIG environment variable (via [Load]) or a --config flag
// (via [LoadFile]). There are no fallbacks, no ~/.config discovery,
// and no automatic file search. This ensures deterministic, auditable
// configuration with no hidden overrides.
//
// Variable expansion is performed on path fields after loading:
// ${HOME}, ${FOREMAN_ROOT}, and ${VAR:-default} patterns are
// expanded. No other environment variable overrides config values;
// the one environment read the daemon performs at runtime is the
// provider API key named by [ProviderConfig].APIKeyEnv.
//
// Key exports:
//
//   - [Config] -- master struct, one section per subsystem
//   - [Default] -- returns a Config with single-machine defaults
//   - [Load] and [LoadFile] -- the two entry points for loading
package config
