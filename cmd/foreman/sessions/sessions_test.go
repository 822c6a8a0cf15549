// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sessions

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bureau-foundation/foreman/lib/httpapi"
	"github.com/bureau-foundation/foreman/lib/session"
)

func TestParseEnvEntries(t *testing.T) {
	t.Parallel()

	env, err := parseEnvEntries([]string{"FOO=bar", "TOKEN=a=b=c", "EMPTY="})
	if err != nil {
		t.Fatalf("parseEnvEntries: %v", err)
	}
	if env["FOO"] != "bar" {
		t.Errorf("FOO = %q, want %q", env["FOO"], "bar")
	}
	if env["TOKEN"] != "a=b=c" {
		t.Errorf("TOKEN = %q, want %q (value may contain '=')", env["TOKEN"], "a=b=c")
	}
	if value, ok := env["EMPTY"]; !ok || value != "" {
		t.Errorf("EMPTY = %q, %v, want empty string present", value, ok)
	}

	if env, err := parseEnvEntries(nil); err != nil || env != nil {
		t.Errorf("parseEnvEntries(nil) = %v, %v, want nil, nil", env, err)
	}

	for _, bad := range []string{"NOVALUE", "=bar"} {
		if _, err := parseEnvEntries([]string{bad}); err == nil {
			t.Errorf("parseEnvEntries(%q) succeeded, want error", bad)
		}
	}
}

func TestLoadRulesFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "rules.yaml")
	content := `
- pattern: "Do you trust the files"
  type: trust-prompt
  keys: [Enter]
  description: accept the trust prompt
- pattern: "\\? for shortcuts"
  type: ready
  response: continue
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	loaded, err := loadRulesFile(path)
	if err != nil {
		t.Fatalf("loadRulesFile: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("loaded %d rules, want 2", len(loaded))
	}
	if loaded[0].Type != "trust-prompt" || len(loaded[0].Keys) != 1 {
		t.Errorf("first rule = %+v, want trust-prompt with one key", loaded[0])
	}
}

func TestLoadRulesFileRejectsBadPattern(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "rules.yaml")
	content := `
- pattern: "([unclosed"
  type: broken
  keys: [Enter]
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := loadRulesFile(path); err == nil {
		t.Fatal("expected error for invalid pattern")
	}
}

func TestLoadRulesFileMissing(t *testing.T) {
	t.Parallel()

	if _, err := loadRulesFile(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestSpawnValidatesArguments(t *testing.T) {
	t.Parallel()

	cmd := SpawnCommand()
	cmd.Flags()

	if err := cmd.Run(nil); err == nil {
		t.Error("expected error for missing agent type")
	}
	if err := cmd.Run([]string{"claude"}); err == nil || !strings.Contains(err.Error(), "--workdir") {
		t.Errorf("Run without --workdir = %v, want workdir error", err)
	}
}

func TestSpawnSendsRequest(t *testing.T) {
	t.Parallel()

	var received httpapi.SpawnRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/sessions" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decoding spawn request: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(session.Session{
			ID:        "01TEST",
			AgentType: received.AgentType,
			Name:      "claude-1",
			Workdir:   received.Workdir,
			Status:    session.StatusSpawning,
			CreatedAt: time.Now(),
		})
	}))
	defer server.Close()

	cmd := SpawnCommand()
	flagSet := cmd.Flags()
	err := flagSet.Parse([]string{
		"--address", server.URL,
		"--workdir", "/tmp/repo",
		"--task", "fix the lexer",
		"--label", "lexer",
		"--env", "CI=1",
		"--env", "HOME=/tmp",
	})
	if err != nil {
		t.Fatalf("flag parse: %v", err)
	}
	if err := cmd.Run([]string{"claude"}); err != nil {
		t.Fatalf("spawn: %v", err)
	}

	if received.AgentType != "claude" {
		t.Errorf("agent type = %q, want claude", received.AgentType)
	}
	if received.Workdir != "/tmp/repo" {
		t.Errorf("workdir = %q, want /tmp/repo", received.Workdir)
	}
	if received.InitialTask != "fix the lexer" || received.Label != "lexer" {
		t.Errorf("task/label = %q/%q", received.InitialTask, received.Label)
	}
	if received.Env["CI"] != "1" || received.Env["HOME"] != "/tmp" {
		t.Errorf("env = %v, want CI=1 HOME=/tmp", received.Env)
	}
}

func TestSpawnReadsMemoryFile(t *testing.T) {
	t.Parallel()

	memory := filepath.Join(t.TempDir(), "memory.md")
	if err := os.WriteFile(memory, []byte("# Conventions\nuse tabs\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	var received httpapi.SpawnRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&received)
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(session.Session{ID: "01TEST"})
	}))
	defer server.Close()

	cmd := SpawnCommand()
	flagSet := cmd.Flags()
	if err := flagSet.Parse([]string{"--address", server.URL, "--workdir", "/tmp", "--memory-file", memory}); err != nil {
		t.Fatalf("flag parse: %v", err)
	}
	if err := cmd.Run([]string{"codex"}); err != nil {
		t.Fatalf("spawn: %v", err)
	}
	if !strings.Contains(received.MemoryContent, "use tabs") {
		t.Errorf("memory content = %q, want file content", received.MemoryContent)
	}
}

func TestSendJoinsArguments(t *testing.T) {
	t.Parallel()

	var received httpapi.SendRequest
	var path string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		json.NewDecoder(r.Body).Decode(&received)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	cmd := SendCommand()
	if err := cmd.Flags().Parse([]string{"--address", server.URL}); err != nil {
		t.Fatalf("flag parse: %v", err)
	}
	if err := cmd.Run([]string{"01TEST", "use", "the", "streaming", "parser"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if path != "/api/sessions/01TEST/send" {
		t.Errorf("path = %q", path)
	}
	if received.Text != "use the streaming parser" {
		t.Errorf("text = %q, want joined arguments", received.Text)
	}
}

func TestKeysSendsSequence(t *testing.T) {
	t.Parallel()

	var received httpapi.KeysRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&received)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	cmd := KeysCommand()
	if err := cmd.Flags().Parse([]string{"--address", server.URL}); err != nil {
		t.Fatalf("flag parse: %v", err)
	}
	if err := cmd.Run([]string{"01TEST", "Down", "Down", "Enter"}); err != nil {
		t.Fatalf("keys: %v", err)
	}
	want := []string{"Down", "Down", "Enter"}
	if len(received.Keys) != len(want) {
		t.Fatalf("keys = %v, want %v", received.Keys, want)
	}
	for i := range want {
		if received.Keys[i] != want[i] {
			t.Errorf("keys[%d] = %q, want %q", i, received.Keys[i], want[i])
		}
	}
}

func TestSendValidatesArguments(t *testing.T) {
	t.Parallel()

	cmd := SendCommand()
	cmd.Flags()
	if err := cmd.Run([]string{"01TEST"}); err == nil {
		t.Error("expected error for send without text")
	}

	keys := KeysCommand()
	keys.Flags()
	if err := keys.Run([]string{"01TEST"}); err == nil {
		t.Error("expected error for keys without a key")
	}
}

func TestStopSendsReason(t *testing.T) {
	t.Parallel()

	var method, path, reason string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		path = r.URL.Path
		reason = r.URL.Query().Get("reason")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	cmd := StopCommand()
	if err := cmd.Flags().Parse([]string{"--address", server.URL, "--reason", "task superseded"}); err != nil {
		t.Fatalf("flag parse: %v", err)
	}
	if err := cmd.Run([]string{"01TEST"}); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if method != http.MethodDelete || path != "/api/sessions/01TEST" {
		t.Errorf("request = %s %s", method, path)
	}
	if reason != "task superseded" {
		t.Errorf("reason = %q", reason)
	}
}

func TestSessionsListPassesFilters(t *testing.T) {
	t.Parallel()

	var agentType, status string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		agentType = r.URL.Query().Get("agentType")
		status = r.URL.Query().Get("status")
		json.NewEncoder(w).Encode([]session.Session{})
	}))
	defer server.Close()

	cmd := ListCommand()
	if err := cmd.Flags().Parse([]string{"--address", server.URL, "--agent", "claude", "--status", "busy"}); err != nil {
		t.Fatalf("flag parse: %v", err)
	}
	if err := cmd.Run(nil); err != nil {
		t.Fatalf("sessions: %v", err)
	}
	if agentType != "claude" || status != "busy" {
		t.Errorf("filters = %q/%q, want claude/busy", agentType, status)
	}
}

func TestFormatAge(t *testing.T) {
	t.Parallel()

	cases := []struct {
		duration time.Duration
		want     string
	}{
		{12 * time.Second, "12s"},
		{3*time.Minute + 5*time.Second, "3m 5s"},
		{2*time.Hour + 40*time.Minute, "2h 40m"},
		{50*time.Hour + 12*time.Minute, "2d 2h"},
		{-5 * time.Second, "0s"},
	}
	for _, c := range cases {
		if got := formatAge(c.duration); got != c.want {
			t.Errorf("formatAge(%v) = %q, want %q", c.duration, got, c.want)
		}
	}
}

func TestTruncateLine(t *testing.T) {
	t.Parallel()

	if got := truncateLine("short", 10); got != "short" {
		t.Errorf("truncateLine(short) = %q", got)
	}
	got := truncateLine("a reasoning string that goes on and on", 10)
	if len([]rune(got)) != 10 {
		t.Errorf("truncated length = %d runes, want 10", len([]rune(got)))
	}
	if !strings.HasSuffix(got, "…") {
		t.Errorf("truncated %q should end with ellipsis", got)
	}
}
