// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package swarm

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bureau-foundation/foreman/cmd/foreman/cli"
	"github.com/bureau-foundation/foreman/lib/coordinator"
	"github.com/bureau-foundation/foreman/lib/httpapi"
)

func TestStatusFetches(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/status" {
			t.Errorf("path = %q", r.URL.Path)
		}
		json.NewEncoder(w).Encode(coordinator.Status{
			Supervision: coordinator.SupervisionConfirm,
			TaskCount:   1,
			Tasks: []coordinator.TaskContext{
				{
					SessionID: "01TEST",
					Label:     "lexer",
					Status:    coordinator.TaskActive,
					UpdatedAt: time.Now(),
				},
			},
			PendingConfirmations: 0,
		})
	}))
	defer server.Close()

	cmd := StatusCommand()
	if err := cmd.Flags().Parse([]string{"--address", server.URL}); err != nil {
		t.Fatalf("flag parse: %v", err)
	}
	if err := cmd.Run(nil); err != nil {
		t.Fatalf("status: %v", err)
	}
	if err := cmd.Run([]string{"extra"}); err == nil {
		t.Error("expected error for extra arguments")
	}
}

func TestPendingEmpty(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]coordinator.PendingConfirmation{})
	}))
	defer server.Close()

	cmd := PendingCommand()
	if err := cmd.Flags().Parse([]string{"--address", server.URL}); err != nil {
		t.Fatalf("flag parse: %v", err)
	}
	if err := cmd.Run(nil); err != nil {
		t.Fatalf("pending: %v", err)
	}
}

func TestPendingLists(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]coordinator.PendingConfirmation{
			{
				SessionID: "01TEST",
				Trigger:   coordinator.TriggerBlocked,
				Prompt:    "Allow network access?\n1. Yes\n2. No",
				Decision: coordinator.Decision{
					Action:    coordinator.ActionRespond,
					UseKeys:   true,
					Keys:      []string{"Enter"},
					Reasoning: "standard trust prompt",
				},
				Task:      coordinator.TaskContext{Label: "lexer"},
				CreatedAt: time.Now().Add(-time.Minute),
			},
		})
	}))
	defer server.Close()

	cmd := PendingCommand()
	if err := cmd.Flags().Parse([]string{"--address", server.URL}); err != nil {
		t.Fatalf("flag parse: %v", err)
	}
	if err := cmd.Run(nil); err != nil {
		t.Fatalf("pending: %v", err)
	}
}

func TestConfirmApprove(t *testing.T) {
	t.Parallel()

	var received httpapi.ConfirmRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/confirm/01TEST" {
			t.Errorf("path = %q", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&received)
		json.NewEncoder(w).Encode(map[string]string{"status": "applied", "sessionId": "01TEST"})
	}))
	defer server.Close()

	cmd := ConfirmCommand()
	if err := cmd.Flags().Parse([]string{"--address", server.URL}); err != nil {
		t.Fatalf("flag parse: %v", err)
	}
	if err := cmd.Run([]string{"01TEST"}); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if !received.Approved {
		t.Error("approved = false, want true")
	}
	if received.Override != nil {
		t.Errorf("override = %+v, want nil", received.Override)
	}
}

func TestConfirmReject(t *testing.T) {
	t.Parallel()

	var received httpapi.ConfirmRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&received)
		json.NewEncoder(w).Encode(map[string]string{"status": "rejected", "sessionId": "01TEST"})
	}))
	defer server.Close()

	cmd := ConfirmCommand()
	if err := cmd.Flags().Parse([]string{"--address", server.URL, "--reject"}); err != nil {
		t.Fatalf("flag parse: %v", err)
	}
	if err := cmd.Run([]string{"01TEST"}); err != nil {
		t.Fatalf("confirm --reject: %v", err)
	}
	if received.Approved {
		t.Error("approved = true, want false")
	}
}

func TestConfirmOverride(t *testing.T) {
	t.Parallel()

	var received httpapi.ConfirmRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&received)
		json.NewEncoder(w).Encode(map[string]string{"status": "applied", "sessionId": "01TEST"})
	}))
	defer server.Close()

	cmd := ConfirmCommand()
	if err := cmd.Flags().Parse([]string{"--address", server.URL, "--keys", "Down,Enter"}); err != nil {
		t.Fatalf("flag parse: %v", err)
	}
	if err := cmd.Run([]string{"01TEST"}); err != nil {
		t.Fatalf("confirm --keys: %v", err)
	}
	if received.Override == nil {
		t.Fatal("override missing")
	}
	if !received.Override.UseKeys || len(received.Override.Keys) != 2 {
		t.Errorf("override = %+v, want two keys", received.Override)
	}
}

func TestConfirmValidatesFlags(t *testing.T) {
	t.Parallel()

	cmd := ConfirmCommand()
	if err := cmd.Flags().Parse([]string{"--reject", "--response", "yes"}); err != nil {
		t.Fatalf("flag parse: %v", err)
	}
	if err := cmd.Run([]string{"01TEST"}); err == nil {
		t.Error("expected error for --reject with --response")
	}

	cmd = ConfirmCommand()
	if err := cmd.Flags().Parse([]string{"--response", "yes", "--keys", "Enter"}); err != nil {
		t.Fatalf("flag parse: %v", err)
	}
	if err := cmd.Run([]string{"01TEST"}); err == nil {
		t.Error("expected error for --response with --keys")
	}
}

func TestSupervisionSet(t *testing.T) {
	t.Parallel()

	var received httpapi.SupervisionPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/supervision" {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&received)
		json.NewEncoder(w).Encode(received)
	}))
	defer server.Close()

	parent := SupervisionCommand()
	var set *cli.Command
	for _, sub := range parent.Subcommands {
		if sub.Name == "set" {
			set = sub
		}
	}
	if set == nil {
		t.Fatal("set subcommand missing")
	}
	if err := set.Flags().Parse([]string{"--address", server.URL}); err != nil {
		t.Fatalf("flag parse: %v", err)
	}
	if err := set.Run([]string{"notify"}); err != nil {
		t.Fatalf("set: %v", err)
	}
	if received.Level != "notify" {
		t.Errorf("level = %q, want notify", received.Level)
	}
}

func TestSupervisionSetRejectsUnknownLevel(t *testing.T) {
	t.Parallel()

	parent := SupervisionCommand()
	for _, sub := range parent.Subcommands {
		if sub.Name != "set" {
			continue
		}
		sub.Flags()
		if err := sub.Run([]string{"sometimes"}); err == nil {
			t.Error("expected error for unknown level")
		}
		return
	}
	t.Fatal("set subcommand missing")
}

func TestIndentContinuation(t *testing.T) {
	t.Parallel()

	got := indentContinuation("line one\nline two\n")
	if strings.HasSuffix(got, "\n") {
		t.Errorf("trailing newline survived: %q", got)
	}
	if !strings.Contains(got, "\n              line two") {
		t.Errorf("continuation not indented: %q", got)
	}
}
