// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package stall

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/bureau-foundation/foreman/lib/llm"
)

// scriptedProvider returns canned completions and records the
// requests it served.
type scriptedProvider struct {
	answers  []string
	err      error
	requests []llm.Request
}

func (provider *scriptedProvider) Complete(ctx context.Context, request llm.Request) (*llm.Response, error) {
	provider.requests = append(provider.requests, request)
	if provider.err != nil {
		return nil, provider.err
	}
	answer := provider.answers[0]
	if len(provider.answers) > 1 {
		provider.answers = provider.answers[1:]
	}
	return &llm.Response{Text: answer, StopReason: llm.StopReasonEndTurn}, nil
}

func newTestClassifier(provider llm.Provider) *LLMClassifier {
	return NewLLMClassifier(LLMClassifierConfig{
		Provider:    provider,
		Model:       "test-model",
		OutputLimit: 64,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func TestClassifyParsesVerdict(t *testing.T) {
	provider := &scriptedProvider{answers: []string{
		`Looking at the prompt, the agent is stuck. {"state": "awaiting-input", "detail": "shell prompt with a question"}`,
	}}
	classifier := newTestClassifier(provider)

	classification, err := classifier.Classify(context.Background(), "sess-1", "Continue? (y/n)", 5*time.Second)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if classification == nil {
		t.Fatal("Classify() = nil, want a verdict")
	}
	if classification.State != StateAwaitingInput {
		t.Errorf("State = %q", classification.State)
	}
	if classification.Detail != "shell prompt with a question" {
		t.Errorf("Detail = %q", classification.Detail)
	}

	request := provider.requests[0]
	if !strings.Contains(request.Messages[0].Content, "sess-1") {
		t.Error("prompt does not name the session")
	}
	if !strings.Contains(request.Messages[0].Content, "Continue? (y/n)") {
		t.Error("prompt does not include the output tail")
	}
}

func TestClassifyNormalizesStateSpelling(t *testing.T) {
	provider := &scriptedProvider{answers: []string{`{"state": "Awaiting_Input"}`}}
	classifier := newTestClassifier(provider)

	classification, err := classifier.Classify(context.Background(), "s", "out", time.Second)
	if err != nil || classification == nil {
		t.Fatalf("Classify = (%v, %v)", classification, err)
	}
	if classification.State != StateAwaitingInput {
		t.Errorf("State = %q", classification.State)
	}
}

func TestClassifyInconclusiveAnswers(t *testing.T) {
	cases := []struct {
		name   string
		answer string
	}{
		{"explicit unknown", `{"state": "unknown"}`},
		{"no json at all", "the agent appears to be compiling"},
		{"malformed json", `{"state": working}`},
		{"unrecognized state", `{"state": "sleeping"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			provider := &scriptedProvider{answers: []string{tc.answer}}
			classifier := newTestClassifier(provider)

			classification, err := classifier.Classify(context.Background(), "s", "out", time.Second)
			if err != nil {
				t.Fatalf("Classify: %v", err)
			}
			if classification != nil {
				t.Fatalf("Classify() = %+v, want nil for inconclusive answer", classification)
			}
		})
	}
}

func TestClassifyPropagatesProviderError(t *testing.T) {
	provider := &scriptedProvider{err: errors.New("connection refused")}
	classifier := newTestClassifier(provider)

	_, err := classifier.Classify(context.Background(), "s", "out", time.Second)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "connection refused") {
		t.Errorf("error = %v", err)
	}
}

func TestClassifyBoundsOutputTail(t *testing.T) {
	provider := &scriptedProvider{answers: []string{`{"state": "working"}`}}
	classifier := newTestClassifier(provider)

	long := strings.Repeat("spam line\n", 100) + "final line"
	if _, err := classifier.Classify(context.Background(), "s", long, time.Second); err != nil {
		t.Fatalf("Classify: %v", err)
	}

	prompt := provider.requests[0].Messages[0].Content
	if !strings.Contains(prompt, "final line") {
		t.Error("prompt lost the newest output")
	}
	if strings.Count(prompt, "spam line") > 8 {
		t.Errorf("prompt carries %d spam lines, tail bound not applied", strings.Count(prompt, "spam line"))
	}
}

func TestClassifyHistoryIsReplayedAndBounded(t *testing.T) {
	provider := &scriptedProvider{answers: []string{
		`{"state": "working", "detail": "first"}`,
		`{"state": "working", "detail": "second"}`,
		`{"state": "working", "detail": "third"}`,
		`{"state": "working", "detail": "fourth"}`,
		`{"state": "working", "detail": "fifth"}`,
	}}
	classifier := newTestClassifier(provider)

	for i := 0; i < 5; i++ {
		if _, err := classifier.Classify(context.Background(), "s", "out", time.Second); err != nil {
			t.Fatalf("Classify %d: %v", i, err)
		}
	}

	// The fifth prompt sees at most HistoryLimit (3) prior entries,
	// the oldest dropped.
	lastPrompt := provider.requests[4].Messages[0].Content
	if strings.Contains(lastPrompt, "first") {
		t.Error("oldest history entry not evicted")
	}
	for _, want := range []string{"second", "third", "fourth"} {
		if !strings.Contains(lastPrompt, want) {
			t.Errorf("history entry %q missing from prompt", want)
		}
	}
}

func TestForgetDropsHistory(t *testing.T) {
	provider := &scriptedProvider{answers: []string{
		`{"state": "working", "detail": "remembered"}`,
		`{"state": "working", "detail": "fresh"}`,
	}}
	classifier := newTestClassifier(provider)

	if _, err := classifier.Classify(context.Background(), "s", "out", time.Second); err != nil {
		t.Fatalf("Classify: %v", err)
	}
	classifier.Forget("s")
	if _, err := classifier.Classify(context.Background(), "s", "out", time.Second); err != nil {
		t.Fatalf("Classify: %v", err)
	}

	secondPrompt := provider.requests[1].Messages[0].Content
	if strings.Contains(secondPrompt, "remembered") {
		t.Error("history survived Forget")
	}
}
