// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package adapter describes the agent programs foreman knows how to
// drive. An Adapter is a per-agent-type capability bundle: how to
// launch the tool, how to recognize its idle prompt, its blocking
// prompts, and its login flow in terminal output, where its memory
// file lives, and what permission files each approval preset expands
// to.
//
// Adapters are data, not code. Each one is compiled from a Manifest
// (authored in Go for the built-in claude and codex adapters, or
// loaded from JSONC files on disk for custom tools) into a set of
// compiled patterns. Detection methods are pure functions over the
// retained output window; the session manager decides when to call
// them and in what precedence.
package adapter

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// ApprovalPreset selects a permission posture for a spawned agent.
// Each adapter maps presets to concrete permission-file contents for
// its tool.
type ApprovalPreset string

const (
	// ApprovalManual leaves the tool's own confirmation prompts in
	// place; the coordinator answers them.
	ApprovalManual ApprovalPreset = "manual"

	// ApprovalAcceptEdits pre-approves file edits but still prompts
	// for command execution.
	ApprovalAcceptEdits ApprovalPreset = "accept-edits"

	// ApprovalFull pre-approves everything the tool can ask about.
	ApprovalFull ApprovalPreset = "full-auto"
)

// Prompt describes a blocking prompt detected in terminal output.
type Prompt struct {
	// Kind categorizes the prompt ("permission", "menu", "question").
	Kind string `json:"kind"`

	// Text is the prompt text the detection pattern captured.
	Text string `json:"text"`
}

// Login describes a detected authentication flow.
type Login struct {
	// Instructions is operator-facing guidance for completing the
	// login, taken from the matching pattern's manifest entry.
	Instructions string `json:"instructions"`

	// URL is the authentication URL extracted from the output window,
	// empty if none was visible.
	URL string `json:"url"`
}

// WorkspaceFile names a file the adapter reads from or writes into
// the session's working directory.
type WorkspaceFile struct {
	// Path is relative to the session workdir.
	Path string `json:"path"`

	// Purpose says what the file is for ("memory", "permissions").
	Purpose string `json:"purpose"`
}

// Adapter is a compiled capability bundle for one agent type. Build
// one with Manifest.Compile; the zero value is not usable.
type Adapter struct {
	agentType      string
	command        []string
	env            map[string]string
	memoryFile     string
	workspaceFiles []WorkspaceFile
	approvalFiles  map[ApprovalPreset]map[string]string

	ready        []*regexp.Regexp
	prompts      []promptPattern
	logins       []loginPattern
	turnComplete []*regexp.Regexp
	urlPattern   *regexp.Regexp
}

type promptPattern struct {
	kind    string
	pattern *regexp.Regexp
}

type loginPattern struct {
	instructions string
	pattern      *regexp.Regexp
}

// Type returns the agent-type key this adapter is registered under.
func (a *Adapter) Type() string { return a.agentType }

// Command returns the argv used to launch the tool. The caller must
// not modify the returned slice.
func (a *Adapter) Command() []string { return a.command }

// Env returns environment overrides applied at launch, merged over
// the session's own overrides (session wins).
func (a *Adapter) Env() map[string]string { return a.env }

// MemoryFile returns the workdir-relative path of the tool's memory
// file, empty if the tool has none.
func (a *Adapter) MemoryFile() string { return a.memoryFile }

// WorkspaceFiles returns the files this adapter touches in a session
// workdir.
func (a *Adapter) WorkspaceFiles() []WorkspaceFile { return a.workspaceFiles }

// Ready reports whether the window shows the tool's idle prompt.
func (a *Adapter) Ready(window string) bool {
	return anyMatch(a.ready, window)
}

// TurnComplete reports whether the window shows the tool finishing a
// turn and returning to its idle prompt.
func (a *Adapter) TurnComplete(window string) bool {
	return anyMatch(a.turnComplete, window)
}

// DetectPrompt scans the window for a blocking prompt. Returns nil
// when no prompt pattern matches. The prompt text is the pattern's
// first capture group when it has one, otherwise the full match.
func (a *Adapter) DetectPrompt(window string) *Prompt {
	for _, candidate := range a.prompts {
		groups := candidate.pattern.FindStringSubmatch(window)
		if groups == nil {
			continue
		}
		text := groups[0]
		if len(groups) > 1 && groups[1] != "" {
			text = groups[1]
		}
		return &Prompt{Kind: candidate.kind, Text: strings.TrimSpace(text)}
	}
	return nil
}

// DetectLogin scans the window for an authentication flow. Returns
// nil when no login pattern matches. When a login is detected the
// adapter's URL pattern is run over the window to extract the
// authentication URL, if one is visible.
func (a *Adapter) DetectLogin(window string) *Login {
	for _, candidate := range a.logins {
		if !candidate.pattern.MatchString(window) {
			continue
		}
		login := &Login{Instructions: candidate.instructions}
		if a.urlPattern != nil {
			if url := a.urlPattern.FindString(window); url != "" {
				login.URL = url
			}
		}
		return login
	}
	return nil
}

// ApprovalFiles returns the workdir-relative file contents for the
// given preset. An empty preset returns no files. Unknown presets are
// an error naming the presets the adapter defines.
func (a *Adapter) ApprovalFiles(preset ApprovalPreset) (map[string]string, error) {
	if preset == "" {
		return nil, nil
	}
	files, ok := a.approvalFiles[preset]
	if !ok {
		known := make([]string, 0, len(a.approvalFiles))
		for name := range a.approvalFiles {
			known = append(known, string(name))
		}
		sort.Strings(known)
		return nil, fmt.Errorf("agent type %q has no approval preset %q (known: %s)",
			a.agentType, preset, strings.Join(known, ", "))
	}
	return files, nil
}

// WriteBootFiles writes the memory file and approval-preset files
// into workdir. The session manager calls this before the agent
// process starts so the tool reads them at boot. Passing empty
// memoryContent skips the memory file; an empty preset skips the
// permission files.
func (a *Adapter) WriteBootFiles(workdir, memoryContent string, preset ApprovalPreset) error {
	if memoryContent != "" {
		if a.memoryFile == "" {
			return fmt.Errorf("agent type %q has no memory file", a.agentType)
		}
		if err := writeWorkspaceFile(workdir, a.memoryFile, memoryContent); err != nil {
			return fmt.Errorf("writing memory file: %w", err)
		}
	}

	approvalFiles, err := a.ApprovalFiles(preset)
	if err != nil {
		return err
	}
	for relative, content := range approvalFiles {
		if err := writeWorkspaceFile(workdir, relative, content); err != nil {
			return fmt.Errorf("writing approval files: %w", err)
		}
	}
	return nil
}

func writeWorkspaceFile(workdir, relative, content string) error {
	target := filepath.Join(workdir, relative)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	return os.WriteFile(target, []byte(content), 0o644)
}

func anyMatch(patterns []*regexp.Regexp, window string) bool {
	for _, pattern := range patterns {
		if pattern.MatchString(window) {
			return true
		}
	}
	return false
}
