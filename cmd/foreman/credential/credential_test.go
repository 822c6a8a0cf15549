// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package credential

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bureau-foundation/foreman/lib/sealed"
)

// runInitCommand runs "credentials init" against a temp path and
// returns the identity path and the public key read back from the
// identity file.
func runInitCommand(t *testing.T) (identityPath, publicKey string) {
	t.Helper()
	identityPath = filepath.Join(t.TempDir(), "identity.age")

	cmd := initCommand()
	if err := cmd.Flags().Parse([]string{"--out", identityPath}); err != nil {
		t.Fatalf("flag parse: %v", err)
	}
	if err := cmd.Run(nil); err != nil {
		t.Fatalf("init: %v", err)
	}

	content, err := os.ReadFile(identityPath)
	if err != nil {
		t.Fatalf("reading identity: %v", err)
	}
	for _, line := range strings.Split(string(content), "\n") {
		if after, found := strings.CutPrefix(line, "# public key: "); found {
			publicKey = after
		}
	}
	if publicKey == "" {
		t.Fatalf("identity file has no public key comment:\n%s", content)
	}
	return identityPath, publicKey
}

func TestInitWritesIdentity(t *testing.T) {
	t.Parallel()

	identityPath, publicKey := runInitCommand(t)

	info, err := os.Stat(identityPath)
	if err != nil {
		t.Fatalf("stat identity: %v", err)
	}
	if mode := info.Mode().Perm(); mode != 0o600 {
		t.Errorf("identity mode = %o, want 0600", mode)
	}
	if err := sealed.ParsePublicKey(publicKey); err != nil {
		t.Errorf("recorded public key invalid: %v", err)
	}
}

func TestInitRefusesOverwrite(t *testing.T) {
	t.Parallel()

	identityPath, _ := runInitCommand(t)

	cmd := initCommand()
	if err := cmd.Flags().Parse([]string{"--out", identityPath}); err != nil {
		t.Fatalf("flag parse: %v", err)
	}
	if err := cmd.Run(nil); err == nil {
		t.Fatal("expected error overwriting an existing identity")
	}
}

func TestSealRoundTrip(t *testing.T) {
	t.Parallel()

	identityPath, publicKey := runInitCommand(t)

	dir := t.TempDir()
	plainPath := filepath.Join(dir, "plain.yaml")
	sealedPath := filepath.Join(dir, "bundle.age")
	plaintext := `
github:
  value: ghp_secret123
  prompt_pattern: 'Enter GitHub token:'
  description: CI token
openai:
  value: sk-secret456
  prompt_pattern: 'Paste your API key'
`
	if err := os.WriteFile(plainPath, []byte(plaintext), 0o600); err != nil {
		t.Fatal(err)
	}

	cmd := sealCommand()
	if err := cmd.Flags().Parse([]string{"--in", plainPath, "--out", sealedPath, "--recipient", publicKey}); err != nil {
		t.Fatalf("flag parse: %v", err)
	}
	if err := cmd.Run(nil); err != nil {
		t.Fatalf("seal: %v", err)
	}

	bundle, err := sealed.OpenBundle(sealedPath, identityPath)
	if err != nil {
		t.Fatalf("opening sealed bundle: %v", err)
	}
	defer bundle.Close()

	names := bundle.Names()
	if len(names) != 2 || names[0] != "github" || names[1] != "openai" {
		t.Errorf("names = %v, want [github openai]", names)
	}
	credential, ok := bundle.Get("github")
	if !ok {
		t.Fatal("github credential missing")
	}
	if credential.Value.String() != "ghp_secret123" {
		t.Errorf("value = %q, want ghp_secret123", credential.Value.String())
	}
}

func TestSealRejectsBadRecipient(t *testing.T) {
	t.Parallel()

	plainPath := filepath.Join(t.TempDir(), "plain.yaml")
	if err := os.WriteFile(plainPath, []byte("a:\n  value: v\n  prompt_pattern: p\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	cmd := sealCommand()
	if err := cmd.Flags().Parse([]string{"--in", plainPath, "--out", plainPath + ".age", "--recipient", "not-a-key"}); err != nil {
		t.Fatalf("flag parse: %v", err)
	}
	if err := cmd.Run(nil); err == nil {
		t.Fatal("expected error for invalid recipient")
	}
}

func TestSealRejectsInvalidBundle(t *testing.T) {
	t.Parallel()

	_, publicKey := runInitCommand(t)

	plainPath := filepath.Join(t.TempDir(), "plain.yaml")
	// Missing prompt_pattern fails validation before sealing.
	if err := os.WriteFile(plainPath, []byte("a:\n  value: v\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	cmd := sealCommand()
	if err := cmd.Flags().Parse([]string{"--in", plainPath, "--out", plainPath + ".age", "--recipient", publicKey}); err != nil {
		t.Fatalf("flag parse: %v", err)
	}
	if err := cmd.Run(nil); err == nil {
		t.Fatal("expected error for bundle without prompt_pattern")
	}
}

func TestSealRequiresFlags(t *testing.T) {
	t.Parallel()

	cmd := sealCommand()
	cmd.Flags()
	if err := cmd.Run(nil); err == nil {
		t.Error("expected error without --in/--out")
	}
}
