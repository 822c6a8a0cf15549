// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"fmt"
	"os"

	"github.com/bureau-foundation/foreman/lib/archive"
	"github.com/bureau-foundation/foreman/lib/config"
	"github.com/bureau-foundation/foreman/lib/secret"
)

// storeAccess carries the flags that locate the archive store. It is
// embedded in every archive command's params.
type storeAccess struct {
	Archives string `flag:"archives" desc:"archive directory (overrides the config)"`
	KeyFile  string `flag:"key-file" desc:"archive key file for sealed records (overrides the config)"`
	Config   string `flag:"config" desc:"daemon config file (defaults to FOREMAN_CONFIG, then built-in paths)"`
}

// open resolves the archive location and opens the store. The caller
// closes it; Close wipes the loaded key.
func (a *storeAccess) open() (*archive.Store, error) {
	archives := a.Archives
	keyFile := a.KeyFile

	if archives == "" {
		cfg, err := a.loadConfig()
		if err != nil {
			return nil, err
		}
		archives = cfg.Paths.Archives
		if keyFile == "" {
			keyFile = cfg.Archive.KeyFile
		}
	}

	var key *secret.Buffer
	if keyFile != "" {
		loaded, err := archive.LoadKey(keyFile)
		if err != nil {
			return nil, fmt.Errorf("loading archive key: %w", err)
		}
		key = loaded
	}
	return archive.NewStore(archives, key)
}

func (a *storeAccess) loadConfig() (*config.Config, error) {
	if a.Config != "" {
		return config.LoadFile(a.Config)
	}
	if os.Getenv("FOREMAN_CONFIG") != "" {
		return config.Load()
	}
	return config.Default(), nil
}
