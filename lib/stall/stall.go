// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package stall decides what a quiet session is doing. When a busy
// session stops producing output for longer than the configured
// timeout, the session manager asks a Classifier whether the agent is
// still working (long build, deep reasoning) or silently waiting for
// input that no pattern rule recognized. An inconclusive answer means
// keep waiting; the manager will ask again on the next quiet period.
package stall

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/bureau-foundation/foreman/lib/llm"
)

// State is the classifier's verdict about a quiet session.
type State string

const (
	// StateWorking means the agent is making progress without
	// printing anything.
	StateWorking State = "working"

	// StateAwaitingInput means the agent is waiting for the operator
	// and will sit forever unless someone responds.
	StateAwaitingInput State = "awaiting-input"
)

// Classification is a conclusive classifier answer.
type Classification struct {
	// State is the verdict.
	State State

	// Detail is the classifier's short explanation, recorded in the
	// session trace.
	Detail string
}

// Classifier inspects a quiet session's recent output. A nil
// Classification with a nil error means "inconclusive, keep waiting".
type Classifier interface {
	Classify(ctx context.Context, sessionID, recentOutput string, stallDuration time.Duration) (*Classification, error)

	// Forget drops any per-session state. Called on session teardown.
	Forget(sessionID string)
}

// LLMClassifierConfig configures an LLM-backed classifier.
type LLMClassifierConfig struct {
	// Provider serves the reasoning calls.
	Provider llm.Provider

	// Model is the provider's model identifier.
	Model string

	// MaxTokens caps the classification response. Defaults to 256.
	MaxTokens int

	// OutputLimit bounds how many trailing bytes of session output go
	// into the prompt. Defaults to 4096.
	OutputLimit int

	// HistoryLimit bounds how many past classifications per session
	// are replayed into the prompt. Defaults to 3.
	HistoryLimit int

	// Logger receives classification traces. Required.
	Logger *slog.Logger
}

// LLMClassifier delegates classification to an LLM. Prompt input is
// bounded on both axes (output tail and history depth) so the cost
// and latency of each call stay predictable regardless of how noisy
// the session has been.
type LLMClassifier struct {
	provider     llm.Provider
	model        string
	maxTokens    int
	outputLimit  int
	historyLimit int
	logger       *slog.Logger

	mu      sync.Mutex
	history map[string][]historyEntry
}

type historyEntry struct {
	when   time.Time
	state  State
	detail string
}

// NewLLMClassifier builds a classifier from config, applying
// defaults for unset limits.
func NewLLMClassifier(config LLMClassifierConfig) *LLMClassifier {
	if config.MaxTokens <= 0 {
		config.MaxTokens = 256
	}
	if config.OutputLimit <= 0 {
		config.OutputLimit = 4096
	}
	if config.HistoryLimit <= 0 {
		config.HistoryLimit = 3
	}
	return &LLMClassifier{
		provider:     config.Provider,
		model:        config.Model,
		maxTokens:    config.MaxTokens,
		outputLimit:  config.OutputLimit,
		historyLimit: config.HistoryLimit,
		logger:       config.Logger,
		history:      make(map[string][]historyEntry),
	}
}

const classifierSystemPrompt = `You monitor unattended coding-agent terminal sessions. A session has produced no output for a while and you must decide what it is doing.

Answer with a single JSON object and nothing else:
{"state": "working" | "awaiting-input", "detail": "<one short sentence>"}

"working" means the agent is busy (compiling, running tests, thinking) and should be left alone. "awaiting-input" means the agent is waiting for a human and will never continue on its own. If the output is genuinely ambiguous, answer {"state": "unknown"}.`

// Classify sends the bounded output tail and the session's recent
// classification history to the model and parses the verdict. Returns
// (nil, nil) when the model's answer is missing, malformed, or
// explicitly unknown.
func (classifier *LLMClassifier) Classify(ctx context.Context, sessionID, recentOutput string, stallDuration time.Duration) (*Classification, error) {
	tail := tailBytes(recentOutput, classifier.outputLimit)

	var prompt strings.Builder
	fmt.Fprintf(&prompt, "Session %s has been silent for %s.\n", sessionID, stallDuration.Round(time.Second))

	if past := classifier.snapshotHistory(sessionID); len(past) > 0 {
		prompt.WriteString("\nPrevious classifications of this session:\n")
		for _, entry := range past {
			fmt.Fprintf(&prompt, "- %s: %s (%s)\n", entry.when.Format(time.TimeOnly), entry.state, entry.detail)
		}
	}

	prompt.WriteString("\nMost recent terminal output:\n")
	prompt.WriteString(tail)

	response, err := classifier.provider.Complete(ctx, llm.Request{
		Model:     classifier.model,
		MaxTokens: classifier.maxTokens,
		System:    classifierSystemPrompt,
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: prompt.String()},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("stall classification for %s: %w", sessionID, err)
	}

	classification := parseClassification(response.Text)
	if classification == nil {
		classifier.logger.Debug("inconclusive stall classification",
			"session_id", sessionID,
			"answer", response.Text)
		return nil, nil
	}

	classifier.record(sessionID, *classification)
	classifier.logger.Info("stall classified",
		"session_id", sessionID,
		"state", classification.State,
		"detail", classification.Detail)
	return classification, nil
}

// Forget drops the session's classification history.
func (classifier *LLMClassifier) Forget(sessionID string) {
	classifier.mu.Lock()
	defer classifier.mu.Unlock()
	delete(classifier.history, sessionID)
}

func (classifier *LLMClassifier) snapshotHistory(sessionID string) []historyEntry {
	classifier.mu.Lock()
	defer classifier.mu.Unlock()
	return append([]historyEntry(nil), classifier.history[sessionID]...)
}

func (classifier *LLMClassifier) record(sessionID string, classification Classification) {
	classifier.mu.Lock()
	defer classifier.mu.Unlock()

	entries := append(classifier.history[sessionID], historyEntry{
		when:   time.Now(),
		state:  classification.State,
		detail: classification.Detail,
	})
	if len(entries) > classifier.historyLimit {
		entries = entries[len(entries)-classifier.historyLimit:]
	}
	classifier.history[sessionID] = entries
}

// parseClassification extracts the verdict from a model answer.
// Returns nil for anything that is not a clear working/awaiting-input
// statement.
func parseClassification(answer string) *Classification {
	object, found := llm.FirstJSONObject(answer)
	if !found {
		return nil
	}

	var wire struct {
		State  string `json:"state"`
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(object, &wire); err != nil {
		return nil
	}

	switch strings.ToLower(strings.ReplaceAll(strings.TrimSpace(wire.State), "_", "-")) {
	case "working":
		return &Classification{State: StateWorking, Detail: wire.Detail}
	case "awaiting-input", "awaiting input", "blocked":
		return &Classification{State: StateAwaitingInput, Detail: wire.Detail}
	default:
		return nil
	}
}

// tailBytes returns at most limit trailing bytes of text, cut at a
// line boundary when truncation happened.
func tailBytes(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	tail := text[len(text)-limit:]
	if newline := strings.IndexByte(tail, '\n'); newline >= 0 && newline < len(tail)-1 {
		tail = tail[newline+1:]
	}
	return tail
}
