// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sealed

import (
	"fmt"
	"os"
	"time"

	"filippo.io/age"

	"github.com/bureau-foundation/foreman/lib/secret"
)

// Keypair holds an age x25519 keypair. The private key is stored in a
// secret.Buffer (mmap-backed, locked against swap, excluded from core
// dumps). The public key is a plain string, safe to publish.
//
// The caller must call Close when the keypair is no longer needed.
type Keypair struct {
	// PrivateKey is the secret key in AGE-SECRET-KEY-1... format,
	// stored in mmap memory outside the Go heap. Must never be
	// logged or included in CLI arguments.
	PrivateKey *secret.Buffer

	// PublicKey is the corresponding public key in age1... format.
	PublicKey string
}

// Close releases the private key memory. Idempotent.
func (k *Keypair) Close() error {
	if k.PrivateKey != nil {
		return k.PrivateKey.Close()
	}
	return nil
}

// GenerateKeypair generates a new age x25519 keypair with the private
// key in a secret.Buffer. The caller must Close the returned Keypair.
func GenerateKeypair() (*Keypair, error) {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, fmt.Errorf("generating age keypair: %w", err)
	}

	// Move the key into mmap-backed memory immediately. The string
	// returned by the age library is on the heap and will be GC'd;
	// the mmap buffer is the durable copy.
	privateKey, err := secret.NewFromBytes([]byte(identity.String()))
	if err != nil {
		return nil, fmt.Errorf("protecting private key: %w", err)
	}

	return &Keypair{
		PrivateKey: privateKey,
		PublicKey:  identity.Recipient().String(),
	}, nil
}

// WriteIdentityFile writes the keypair to path in the age-keygen file
// format: two comment lines (creation time, public key) followed by
// the private key. The file is created with mode 0600 and never
// overwrites an existing file.
func WriteIdentityFile(path string, keypair *Keypair, now time.Time) error {
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("creating identity file: %w", err)
	}

	content := make([]byte, 0, 256)
	content = fmt.Appendf(content, "# created: %s\n# public key: %s\n",
		now.Format(time.RFC3339), keypair.PublicKey)
	content = append(content, keypair.PrivateKey.Bytes()...)
	content = append(content, '\n')

	_, writeErr := file.Write(content)
	secret.Zero(content)
	closeErr := file.Close()

	if writeErr != nil {
		return fmt.Errorf("writing identity file: %w", writeErr)
	}
	if closeErr != nil {
		return fmt.Errorf("closing identity file: %w", closeErr)
	}
	return nil
}

// ParsePublicKey validates an age public key string. Useful for
// checking recipient arguments before sealing.
func ParsePublicKey(publicKey string) error {
	if _, err := age.ParseX25519Recipient(publicKey); err != nil {
		return fmt.Errorf("invalid age public key: %w", err)
	}
	return nil
}
