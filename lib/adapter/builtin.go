// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package adapter

// builtinManifests define the adapters compiled into the binary.
// Custom tools extend the set through LoadDir.
var builtinManifests = []Manifest{
	{
		Type:       "claude",
		Command:    []string{"claude"},
		MemoryFile: "CLAUDE.md",
		WorkspaceFiles: []WorkspaceFile{
			{Path: "CLAUDE.md", Purpose: "memory"},
			{Path: ".claude/settings.local.json", Purpose: "permissions"},
		},
		ReadyPatterns: []string{
			`\? for shortcuts`,
			`(?m)^\s*>\s*$`,
		},
		PromptPatterns: []PromptManifest{
			{Kind: "trust", Pattern: `Do you trust the files in this folder\?`},
			{Kind: "permission", Pattern: `(Do you want to [^\n]+\?)`},
			{Kind: "permission", Pattern: `(Allow [^\n]+\?)\s*\n\s*.*1\.\s*Yes`},
			{Kind: "menu", Pattern: `❯\s+\d+\.\s`},
		},
		LoginPatterns: []LoginManifest{
			{
				Pattern:      `Select login method|Paste code here if prompted`,
				Instructions: "Open the shown URL in a browser, complete the sign-in, and paste the code into the session.",
			},
			{
				Pattern:      `Invalid API key|Please run /login`,
				Instructions: "The stored credentials were rejected. Run the tool's login flow or inject a fresh API key.",
			},
		},
		TurnCompletePatterns: []string{
			`\? for shortcuts`,
		},
		ApprovalPresets: map[ApprovalPreset]map[string]string{
			ApprovalManual: {
				".claude/settings.local.json": `{"permissions": {"defaultMode": "default"}}` + "\n",
			},
			ApprovalAcceptEdits: {
				".claude/settings.local.json": `{"permissions": {"defaultMode": "acceptEdits"}}` + "\n",
			},
			ApprovalFull: {
				".claude/settings.local.json": `{"permissions": {"defaultMode": "bypassPermissions"}}` + "\n",
			},
		},
	},
	{
		Type:       "codex",
		Command:    []string{"codex"},
		MemoryFile: "AGENTS.md",
		WorkspaceFiles: []WorkspaceFile{
			{Path: "AGENTS.md", Purpose: "memory"},
			{Path: ".codex/config.toml", Purpose: "permissions"},
		},
		ReadyPatterns: []string{
			`(?i)ctrl\+?c to (quit|exit)`,
			`(?m)^›\s*$`,
		},
		PromptPatterns: []PromptManifest{
			{Kind: "permission", Pattern: `(Allow command\?[^\n]*)`},
			{Kind: "permission", Pattern: `(?i)press y to approve`},
			{Kind: "question", Pattern: `(Apply this patch\?[^\n]*)`},
		},
		LoginPatterns: []LoginManifest{
			{
				Pattern:      `Sign in with ChatGPT|auth\.openai\.com`,
				Instructions: "Open the shown URL in a browser and complete the ChatGPT sign-in for this workspace.",
			},
		},
		TurnCompletePatterns: []string{
			`(?i)ctrl\+?c to (quit|exit)`,
		},
		ApprovalPresets: map[ApprovalPreset]map[string]string{
			ApprovalManual: {
				".codex/config.toml": "approval_policy = \"untrusted\"\n",
			},
			ApprovalAcceptEdits: {
				".codex/config.toml": "approval_policy = \"on-failure\"\n",
			},
			ApprovalFull: {
				".codex/config.toml": "approval_policy = \"never\"\nsandbox_mode = \"workspace-write\"\n",
			},
		},
	},
}
