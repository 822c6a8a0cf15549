// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package adapter

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/tidwall/jsonc"
)

// defaultURLPattern extracts authentication URLs from login output
// when a manifest does not supply its own.
const defaultURLPattern = `https?://[^\s"'<>]+`

// Manifest is the authorable form of an Adapter. Built-in adapters
// are Go literals of this type; custom adapters are JSONC files (JSON
// extended with // comments, /* block comments */, and trailing
// commas) loaded from a manifest directory.
type Manifest struct {
	// Type is the agent-type key ("claude", "codex", ...).
	Type string `json:"type"`

	// Command is the argv used to launch the tool.
	Command []string `json:"command"`

	// Env is environment overrides applied at launch.
	Env map[string]string `json:"env,omitempty"`

	// MemoryFile is the workdir-relative path of the tool's memory
	// file, empty if the tool has none.
	MemoryFile string `json:"memoryFile,omitempty"`

	// WorkspaceFiles lists files the tool reads or writes in the
	// session workdir, beyond the memory file.
	WorkspaceFiles []WorkspaceFile `json:"workspaceFiles,omitempty"`

	// ReadyPatterns match the tool's idle prompt.
	ReadyPatterns []string `json:"readyPatterns"`

	// PromptPatterns match blocking prompts. A pattern's first
	// capture group, when present, is reported as the prompt text.
	PromptPatterns []PromptManifest `json:"promptPatterns,omitempty"`

	// LoginPatterns match authentication flows.
	LoginPatterns []LoginManifest `json:"loginPatterns,omitempty"`

	// TurnCompletePatterns match the tool finishing a turn.
	TurnCompletePatterns []string `json:"turnCompletePatterns,omitempty"`

	// URLPattern overrides the default URL extractor used by login
	// detection.
	URLPattern string `json:"urlPattern,omitempty"`

	// ApprovalPresets maps preset names to workdir-relative file
	// contents written before the tool starts.
	ApprovalPresets map[ApprovalPreset]map[string]string `json:"approvalPresets,omitempty"`
}

// PromptManifest is one blocking-prompt pattern in a Manifest.
type PromptManifest struct {
	Kind    string `json:"kind"`
	Pattern string `json:"pattern"`
}

// LoginManifest is one authentication-flow pattern in a Manifest.
type LoginManifest struct {
	Pattern      string `json:"pattern"`
	Instructions string `json:"instructions"`
}

// Compile validates the manifest and compiles its patterns into an
// Adapter.
func (m *Manifest) Compile() (*Adapter, error) {
	if m.Type == "" {
		return nil, fmt.Errorf("adapter manifest: type is required")
	}
	if len(m.Command) == 0 {
		return nil, fmt.Errorf("adapter %q: command is required", m.Type)
	}
	if len(m.ReadyPatterns) == 0 {
		return nil, fmt.Errorf("adapter %q: at least one ready pattern is required", m.Type)
	}

	compiled := &Adapter{
		agentType:      m.Type,
		command:        append([]string(nil), m.Command...),
		env:            m.Env,
		memoryFile:     m.MemoryFile,
		workspaceFiles: append([]WorkspaceFile(nil), m.WorkspaceFiles...),
		approvalFiles:  m.ApprovalPresets,
	}

	var err error
	if compiled.ready, err = compileAll(m.Type, "ready", m.ReadyPatterns); err != nil {
		return nil, err
	}
	if compiled.turnComplete, err = compileAll(m.Type, "turn-complete", m.TurnCompletePatterns); err != nil {
		return nil, err
	}
	for _, prompt := range m.PromptPatterns {
		pattern, err := regexp.Compile(prompt.Pattern)
		if err != nil {
			return nil, fmt.Errorf("adapter %q: prompt pattern %q: %w", m.Type, prompt.Pattern, err)
		}
		compiled.prompts = append(compiled.prompts, promptPattern{kind: prompt.Kind, pattern: pattern})
	}
	for _, login := range m.LoginPatterns {
		pattern, err := regexp.Compile(login.Pattern)
		if err != nil {
			return nil, fmt.Errorf("adapter %q: login pattern %q: %w", m.Type, login.Pattern, err)
		}
		compiled.logins = append(compiled.logins, loginPattern{instructions: login.Instructions, pattern: pattern})
	}

	urlPattern := m.URLPattern
	if urlPattern == "" {
		urlPattern = defaultURLPattern
	}
	if compiled.urlPattern, err = regexp.Compile(urlPattern); err != nil {
		return nil, fmt.Errorf("adapter %q: url pattern %q: %w", m.Type, urlPattern, err)
	}

	return compiled, nil
}

func compileAll(agentType, role string, patterns []string) ([]*regexp.Regexp, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, raw := range patterns {
		pattern, err := regexp.Compile(raw)
		if err != nil {
			return nil, fmt.Errorf("adapter %q: %s pattern %q: %w", agentType, role, raw, err)
		}
		compiled = append(compiled, pattern)
	}
	return compiled, nil
}

// Parse strips JSONC comments and trailing commas from data, then
// unmarshals the result into a Manifest.
func Parse(data []byte) (*Manifest, error) {
	stripped := jsonc.ToJSON(data)

	var manifest Manifest
	if err := json.Unmarshal(stripped, &manifest); err != nil {
		return nil, fmt.Errorf("parsing adapter manifest: %w", err)
	}
	return &manifest, nil
}

// ReadFile reads a JSONC adapter manifest from disk.
func ReadFile(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	manifest, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return manifest, nil
}

// LoadDir compiles every .json and .jsonc manifest in dir and
// registers the results. A missing directory is not an error; a
// malformed manifest is.
func LoadDir(registry *Registry, dir string) error {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading adapter directory %s: %w", dir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		extension := strings.ToLower(filepath.Ext(entry.Name()))
		if extension != ".json" && extension != ".jsonc" {
			continue
		}
		manifest, err := ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return err
		}
		compiled, err := manifest.Compile()
		if err != nil {
			return fmt.Errorf("%s: %w", entry.Name(), err)
		}
		if err := registry.Register(compiled); err != nil {
			return fmt.Errorf("%s: %w", entry.Name(), err)
		}
	}
	return nil
}
