// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sealed

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strings"

	"filippo.io/age"
	"filippo.io/age/armor"
	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/foreman/lib/rules"
	"github.com/bureau-foundation/foreman/lib/secret"
)

// bundleEntry is the wire form of one credential in the plaintext
// bundle YAML.
type bundleEntry struct {
	// Value is the credential itself.
	Value string `yaml:"value"`

	// PromptPattern is the regular expression that identifies the
	// terminal prompt asking for this credential.
	PromptPattern string `yaml:"prompt_pattern"`

	// Description says what the credential unlocks, for operators
	// reading session history.
	Description string `yaml:"description,omitempty"`
}

// Credential is one opened credential. Value lives in an mmap-backed
// buffer until the bundle is closed.
type Credential struct {
	Name          string
	Value         *secret.Buffer
	PromptPattern string
	Description   string
}

// Bundle is an opened credential bundle. Close releases every value
// buffer.
type Bundle struct {
	credentials map[string]*Credential
}

// SealBundle validates a plaintext bundle and encrypts it to the given
// age recipients, returning the armored ciphertext. The plaintext is a
// YAML map from credential name to value, prompt_pattern Go regular
// expression, and optional description:
//
//	github:
//	  value: ghp_xxxxxxxxxxxx
//	  prompt_pattern: 'Enter GitHub token:'
//	  description: read-only CI token
//
// The caller keeps ownership of plaintext and should zero it after
// sealing.
func SealBundle(plaintext []byte, recipientKeys []string) (string, error) {
	if _, err := parsePlaintext(plaintext); err != nil {
		return "", err
	}
	if len(recipientKeys) == 0 {
		return "", fmt.Errorf("at least one recipient is required")
	}

	recipients := make([]age.Recipient, 0, len(recipientKeys))
	for _, key := range recipientKeys {
		recipient, err := age.ParseX25519Recipient(key)
		if err != nil {
			return "", fmt.Errorf("parsing recipient key %q: %w", key, err)
		}
		recipients = append(recipients, recipient)
	}

	var sealedBuffer bytes.Buffer
	armorWriter := armor.NewWriter(&sealedBuffer)
	encryptWriter, err := age.Encrypt(armorWriter, recipients...)
	if err != nil {
		return "", fmt.Errorf("creating age encryptor: %w", err)
	}
	if _, err := encryptWriter.Write(plaintext); err != nil {
		return "", fmt.Errorf("writing plaintext to age encryptor: %w", err)
	}
	if err := encryptWriter.Close(); err != nil {
		return "", fmt.Errorf("finalizing age encryption: %w", err)
	}
	if err := armorWriter.Close(); err != nil {
		return "", fmt.Errorf("finalizing armor: %w", err)
	}

	return sealedBuffer.String(), nil
}

// OpenBundle decrypts the bundle at path with the identity file at
// identityPath and indexes its credentials. Both armored and binary
// age files are accepted. The caller must Close the returned bundle.
func OpenBundle(path, identityPath string) (*Bundle, error) {
	identityBuffer, err := secret.ReadFromPath(identityPath)
	if err != nil {
		return nil, fmt.Errorf("reading identity file %s: %w", identityPath, err)
	}
	defer identityBuffer.Close()

	identities, err := age.ParseIdentities(bytes.NewReader(identityBuffer.Bytes()))
	if err != nil {
		return nil, fmt.Errorf("parsing identity file %s: %w", identityPath, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading bundle %s: %w", path, err)
	}

	var source io.Reader = bytes.NewReader(data)
	if bytes.HasPrefix(bytes.TrimSpace(data), []byte(armor.Header)) {
		source = armor.NewReader(source)
	}
	decryptReader, err := age.Decrypt(source, identities...)
	if err != nil {
		return nil, fmt.Errorf("decrypting bundle %s: %w", path, err)
	}
	plaintext, err := io.ReadAll(decryptReader)
	if err != nil {
		return nil, fmt.Errorf("reading decrypted bundle: %w", err)
	}
	defer secret.Zero(plaintext)

	entries, err := parsePlaintext(plaintext)
	if err != nil {
		return nil, fmt.Errorf("bundle %s: %w", path, err)
	}

	bundle := &Bundle{credentials: make(map[string]*Credential, len(entries))}
	for name, entry := range entries {
		value, err := secret.NewFromBytes([]byte(entry.Value))
		if err != nil {
			bundle.Close()
			return nil, fmt.Errorf("protecting credential %q: %w", name, err)
		}
		bundle.credentials[name] = &Credential{
			Name:          name,
			Value:         value,
			PromptPattern: entry.PromptPattern,
			Description:   entry.Description,
		}
	}
	return bundle, nil
}

// parsePlaintext decodes and validates the plaintext bundle YAML.
func parsePlaintext(plaintext []byte) (map[string]bundleEntry, error) {
	var entries map[string]bundleEntry
	if err := yaml.Unmarshal(plaintext, &entries); err != nil {
		return nil, fmt.Errorf("parsing bundle YAML: %w", err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("bundle has no credentials")
	}
	for name, entry := range entries {
		if entry.Value == "" {
			return nil, fmt.Errorf("credential %q: value is required", name)
		}
		if entry.PromptPattern == "" {
			return nil, fmt.Errorf("credential %q: prompt_pattern is required", name)
		}
		if _, err := regexp.Compile(entry.PromptPattern); err != nil {
			return nil, fmt.Errorf("credential %q: prompt_pattern does not compile: %v", name, err)
		}
	}
	return entries, nil
}

// Names returns the credential names in the bundle, sorted.
func (b *Bundle) Names() []string {
	names := make([]string, 0, len(b.credentials))
	for name := range b.credentials {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Get returns a credential by name.
func (b *Bundle) Get(name string) (*Credential, bool) {
	credential, ok := b.credentials[name]
	return credential, ok
}

// Rules converts the named credentials into single-use auto-response
// rules: when the session shows the credential's prompt, the value is
// typed once, and the rule is spent. An unknown name is an error so a
// spawn request cannot silently proceed without a credential it asked
// for.
func (b *Bundle) Rules(names []string) ([]rules.Rule, error) {
	ruleSet := make([]rules.Rule, 0, len(names))
	for _, name := range names {
		credential, ok := b.credentials[name]
		if !ok {
			return nil, fmt.Errorf("credential %q not in bundle (have: %s)",
				name, strings.Join(b.Names(), ", "))
		}
		description := credential.Description
		if description == "" {
			description = "credential " + name
		}
		ruleSet = append(ruleSet, rules.Rule{
			Pattern:     credential.PromptPattern,
			Type:        "credential",
			Response:    credential.Value.String(),
			Description: description,
			Once:        true,
		})
	}
	return ruleSet, nil
}

// Close releases every credential value buffer. Idempotent.
func (b *Bundle) Close() error {
	var errs []error
	for _, credential := range b.credentials {
		if credential.Value != nil {
			if err := credential.Value.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
