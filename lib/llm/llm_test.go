// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAnthropicComplete(t *testing.T) {
	t.Parallel()

	var captured anthropicRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("path = %q, want /v1/messages", r.URL.Path)
		}
		if got := r.Header.Get("x-api-key"); got != "sk-test" {
			t.Errorf("x-api-key = %q", got)
		}
		if got := r.Header.Get("anthropic-version"); got != anthropicVersion {
			t.Errorf("anthropic-version = %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "msg_01",
			"model": "claude-sonnet-4-5",
			"stop_reason": "end_turn",
			"content": [
				{"type": "text", "text": "part one "},
				{"type": "text", "text": "part two"}
			],
			"usage": {"input_tokens": 120, "output_tokens": 8}
		}`))
	}))
	defer server.Close()

	provider := NewAnthropic(server.Client(), server.URL, "sk-test")
	response, err := provider.Complete(context.Background(), Request{
		Model:     "claude-sonnet-4-5",
		MaxTokens: 512,
		System:    "You supervise coding agents.",
		Messages: []Message{
			{Role: RoleUser, Content: "classify this output"},
		},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}

	if response.Text != "part one part two" {
		t.Errorf("Text = %q, want joined blocks", response.Text)
	}
	if response.StopReason != StopReasonEndTurn {
		t.Errorf("StopReason = %q", response.StopReason)
	}
	if response.Usage.InputTokens != 120 || response.Usage.OutputTokens != 8 {
		t.Errorf("Usage = %+v", response.Usage)
	}

	if captured.System != "You supervise coding agents." {
		t.Errorf("wire system = %q", captured.System)
	}
	if captured.MaxTokens != 512 {
		t.Errorf("wire max_tokens = %d", captured.MaxTokens)
	}
	if len(captured.Messages) != 1 || captured.Messages[0].Role != "user" {
		t.Errorf("wire messages = %+v", captured.Messages)
	}
}

func TestOpenAIComplete(t *testing.T) {
	t.Parallel()

	var captured openaiRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %q, want /v1/chat/completions", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("Authorization = %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"model": "gpt-4o-mini",
			"choices": [
				{"message": {"content": "{\"action\":\"respond\"}"}, "finish_reason": "stop"}
			],
			"usage": {"prompt_tokens": 90, "completion_tokens": 12}
		}`))
	}))
	defer server.Close()

	provider := NewOpenAI(server.Client(), server.URL, "sk-test")
	response, err := provider.Complete(context.Background(), Request{
		Model:     "gpt-4o-mini",
		MaxTokens: 256,
		System:    "system text",
		Messages: []Message{
			{Role: RoleUser, Content: "decide"},
		},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}

	if response.Text != `{"action":"respond"}` {
		t.Errorf("Text = %q", response.Text)
	}
	if response.StopReason != StopReasonEndTurn {
		t.Errorf("StopReason = %q", response.StopReason)
	}

	// The system prompt rides as the first wire message.
	if len(captured.Messages) != 2 || captured.Messages[0].Role != "system" {
		t.Fatalf("wire messages = %+v", captured.Messages)
	}
}

func TestProviderErrorParsing(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error": {"type": "rate_limit_error", "message": "slow down"}}`))
	}))
	defer server.Close()

	provider := NewAnthropic(server.Client(), server.URL, "sk-test")
	_, err := provider.Complete(context.Background(), Request{Model: "m", MaxTokens: 16})
	if err == nil {
		t.Fatal("expected error")
	}

	var providerError *ProviderError
	if !errors.As(err, &providerError) {
		t.Fatalf("error type = %T, want *ProviderError", err)
	}
	if !providerError.IsRateLimited() {
		t.Error("IsRateLimited() = false for 429")
	}
	if providerError.IsOverloaded() {
		t.Error("IsOverloaded() = true for 429")
	}
	if providerError.Type != "rate_limit_error" {
		t.Errorf("Type = %q", providerError.Type)
	}
}

func TestProviderErrorUnstructuredBody(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream unavailable"))
	}))
	defer server.Close()

	provider := NewOpenAI(server.Client(), server.URL, "sk-test")
	_, err := provider.Complete(context.Background(), Request{Model: "m"})

	var providerError *ProviderError
	if !errors.As(err, &providerError) {
		t.Fatalf("error type = %T, want *ProviderError", err)
	}
	if providerError.StatusCode != http.StatusBadGateway {
		t.Errorf("StatusCode = %d", providerError.StatusCode)
	}
	if providerError.Message != "upstream unavailable" {
		t.Errorf("Message = %q", providerError.Message)
	}
}
