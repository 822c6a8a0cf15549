// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package coordinator

import (
	"fmt"
	"strings"
	"time"
)

// PromptConfig is the operator-tunable text of coordination prompts.
// The boundary between acting autonomously and escalating lives here
// as prompt content, not parser logic: the parser knows only the four
// actions, and operators adjust the judgment per deployment. Empty
// fields fall back to the defaults below.
type PromptConfig struct {
	// System is the system prompt for every reasoning call. It must
	// describe the JSON decision object, because ParseDecision only
	// accepts that shape.
	System string `yaml:"system"`

	// BlockedGuidance follows a blocked prompt's situation report.
	BlockedGuidance string `yaml:"blocked_guidance"`

	// IdleGuidance follows an idle check's situation report.
	IdleGuidance string `yaml:"idle_guidance"`

	// TurnCompleteGuidance follows a finished turn's situation report.
	TurnCompleteGuidance string `yaml:"turn_complete_guidance"`

	// PullRequestCaveat is appended to every turn-complete prompt: a
	// turn that just created an external artifact must not be declared
	// complete until a later turn has verified it.
	PullRequestCaveat string `yaml:"pull_request_caveat"`

	// EscalationGuidance closes every prompt.
	EscalationGuidance string `yaml:"escalation_guidance"`
}

const defaultSystemPrompt = `You coordinate unattended coding agents working in terminal sessions. When an agent blocks on a prompt, goes quiet, or finishes a turn, you decide what happens next.

Answer with a single JSON object and nothing else:
{"action": "respond" | "escalate" | "ignore" | "complete", "response": "<text to type into the terminal>", "useKeys": true, "keys": ["Down", "Enter"], "reasoning": "<one short sentence>"}

"respond" types the response text into the agent's terminal, or presses the listed keys when useKeys is true. "escalate" hands the session to a human operator. "ignore" leaves the session alone for now. "complete" marks the task done and stops the session.`

const defaultBlockedGuidance = `Choose "respond" only when the blocked prompt has a clearly safe answer that serves the assigned task. Menu-style prompts need useKeys with the exact key presses, not typed text.`

const defaultIdleGuidance = `The session has gone quiet. Choose "respond" to nudge the agent with a concrete next instruction, "ignore" to keep waiting, or "complete" if the output above shows the assigned task is already done.`

const defaultTurnCompleteGuidance = `The agent finished a turn and is idle at its prompt. A finished turn is not a finished task: prefer "respond" with the next concrete instruction (run the tests, fix what failed, continue the remaining work). Choose "complete" only when the captured response shows the whole assigned task is verifiably done.`

const defaultPullRequestCaveat = `If this turn created a pull request or pushed anything external, do not choose "complete" on this turn: respond with an instruction to verify the result (CI status, review the diff) and decide completion on a later turn.`

const defaultEscalationGuidance = `Escalate anything irreversible, anything touching credentials, money, or production systems, and anything you cannot resolve from the visible output. When in doubt, escalate instead of guessing.`

func (config PromptConfig) withDefaults() PromptConfig {
	if config.System == "" {
		config.System = defaultSystemPrompt
	}
	if config.BlockedGuidance == "" {
		config.BlockedGuidance = defaultBlockedGuidance
	}
	if config.IdleGuidance == "" {
		config.IdleGuidance = defaultIdleGuidance
	}
	if config.TurnCompleteGuidance == "" {
		config.TurnCompleteGuidance = defaultTurnCompleteGuidance
	}
	if config.PullRequestCaveat == "" {
		config.PullRequestCaveat = defaultPullRequestCaveat
	}
	if config.EscalationGuidance == "" {
		config.EscalationGuidance = defaultEscalationGuidance
	}
	return config
}

// promptInput carries everything buildPrompt needs. Task is a
// point-in-time copy; the builder only reads it.
type promptInput struct {
	Task    TaskContext
	Trigger TriggerKind

	// PromptText is the blocked prompt's text (TriggerBlocked).
	PromptText string

	// Captured is the turn's captured response (TriggerTurnComplete).
	Captured string

	// Quiet, IdleCheck, and IdleMax describe the idle situation
	// (TriggerIdle).
	Quiet     time.Duration
	IdleCheck int
	IdleMax   int

	// OutputTail is the bounded tail of terminal output.
	OutputTail string

	// HistoryWindow bounds how many recent decisions are replayed.
	HistoryWindow int
}

// capturedLimit bounds how much of a captured turn response goes into
// a turn-complete prompt.
const capturedLimit = 4096

// buildPrompt renders the user message for one reasoning call: task
// identity, recent decision history, the terminal output tail, the
// situation that triggered the call, and the configured guidance.
func buildPrompt(config PromptConfig, input promptInput) string {
	task := input.Task

	var b strings.Builder
	fmt.Fprintf(&b, "Agent session %s (%s)", task.SessionID, task.AgentType)
	if task.Label != "" {
		fmt.Fprintf(&b, ", label %q", task.Label)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "Working directory: %s\n", task.Workdir)
	fmt.Fprintf(&b, "Assigned task: %s\n", task.OriginalTask)

	if history := lastEntries(task.History, input.HistoryWindow); len(history) > 0 {
		b.WriteString("\nRecent decisions, oldest first:\n")
		for _, entry := range history {
			fmt.Fprintf(&b, "- [%s] %s", entry.Trigger, entry.Action)
			if entry.Response != "" {
				fmt.Fprintf(&b, " %q", entry.Response)
			}
			if entry.Reasoning != "" {
				fmt.Fprintf(&b, ": %s", entry.Reasoning)
			}
			b.WriteString("\n")
		}
	}

	b.WriteString("\nTerminal output tail:\n")
	writeBlock(&b, input.OutputTail)

	switch input.Trigger {
	case TriggerBlocked:
		b.WriteString("\nThe agent is blocked on this prompt:\n")
		writeBlock(&b, input.PromptText)
		b.WriteString("\n")
		b.WriteString(config.BlockedGuidance)
	case TriggerIdle:
		fmt.Fprintf(&b, "\nNo session activity for %s. This is idle check %d of %d.\n\n",
			input.Quiet.Round(time.Second), input.IdleCheck, input.IdleMax)
		b.WriteString(config.IdleGuidance)
	case TriggerTurnComplete:
		b.WriteString("\nThe turn's captured response:\n")
		writeBlock(&b, tailBytes(input.Captured, capturedLimit))
		b.WriteString("\n")
		b.WriteString(config.TurnCompleteGuidance)
		b.WriteString("\n\n")
		b.WriteString(config.PullRequestCaveat)
	}

	b.WriteString("\n\n")
	b.WriteString(config.EscalationGuidance)
	return b.String()
}

// lastEntries returns the trailing n entries of history.
func lastEntries(history []DecisionEntry, n int) []DecisionEntry {
	if len(history) <= n {
		return history
	}
	return history[len(history)-n:]
}

// writeBlock writes text with a guaranteed trailing newline, or a
// placeholder when there is nothing to show.
func writeBlock(b *strings.Builder, text string) {
	if text == "" {
		b.WriteString("(none)\n")
		return
	}
	b.WriteString(text)
	if !strings.HasSuffix(text, "\n") {
		b.WriteString("\n")
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
