// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sessions

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/foreman/cmd/foreman/cli"
	"github.com/bureau-foundation/foreman/cmd/foreman/client"
	"github.com/bureau-foundation/foreman/lib/httpapi"
	"github.com/bureau-foundation/foreman/lib/rules"
)

// spawnParams holds the parameters for the spawn command.
type spawnParams struct {
	client.Connection
	cli.JSONOutput
	Workdir     string   `flag:"workdir" desc:"working directory for the agent (required)"`
	Name        string   `flag:"name" desc:"session name (defaults to a generated one)"`
	Env         []string `flag:"env" desc:"extra environment entries as KEY=VALUE"`
	Task        string   `flag:"task" desc:"initial task; a session with a task is coordinated automatically"`
	Label       string   `flag:"label" desc:"task label on the coordination feed (defaults to the session name)"`
	MemoryFile  string   `flag:"memory-file" desc:"file whose content becomes the agent's memory file"`
	Approval    string   `flag:"approval" desc:"approval preset written before the agent boots"`
	Credentials []string `flag:"credential" desc:"sealed credential names to arm as single-use rules"`
	RulesFile   string   `flag:"rules-file" desc:"YAML file with extra auto-response rules"`
}

// SpawnCommand returns the "spawn" command.
func SpawnCommand() *cli.Command {
	var params spawnParams

	return &cli.Command{
		Name:    "spawn",
		Summary: "Spawn an agent session",
		Description: `Start a coding agent in a fresh terminal session.

The agent type selects the launch configuration (command, environment,
readiness patterns): "claude" and "codex" are built in, and the daemon
may load more from its adapter manifest directory.

With --task, the session is placed under coordination immediately: the
task is delivered once the agent is ready, and the coordinator answers
its prompts and watches its progress from then on. Without --task, the
session just runs; interact with it via send, keys, and stop.`,
		Usage: "foreman spawn <agent-type> --workdir <dir> [flags]",
		Examples: []cli.Example{
			{
				Description: "Spawn a claude session on a repository",
				Command:     "foreman spawn claude --workdir ~/src/parser",
			},
			{
				Description: "Spawn with an initial task under coordination",
				Command:     "foreman spawn claude --workdir ~/src/parser --task 'fix the lexer fuzz crash' --label lexer-crash",
			},
			{
				Description: "Arm a sealed credential for the login prompt",
				Command:     "foreman spawn codex --workdir ~/src/api --credential openai-login",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("spawn", &params)
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("expected exactly one agent type argument, got %d", len(args))
			}
			if params.Workdir == "" {
				return fmt.Errorf("--workdir is required")
			}
			return runSpawn(&params, args[0])
		},
	}
}

func runSpawn(params *spawnParams, agentType string) error {
	env, err := parseEnvEntries(params.Env)
	if err != nil {
		return err
	}

	request := httpapi.SpawnRequest{
		AgentType:      agentType,
		Name:           params.Name,
		Workdir:        params.Workdir,
		Env:            env,
		InitialTask:    params.Task,
		Label:          params.Label,
		ApprovalPreset: params.Approval,
		Credentials:    params.Credentials,
	}

	if params.MemoryFile != "" {
		content, err := os.ReadFile(params.MemoryFile)
		if err != nil {
			return fmt.Errorf("reading memory file: %w", err)
		}
		request.MemoryContent = string(content)
	}

	if params.RulesFile != "" {
		loaded, err := loadRulesFile(params.RulesFile)
		if err != nil {
			return err
		}
		request.Rules = loaded
	}

	ctx, cancel := callContext()
	defer cancel()

	spawned, err := params.Client().Spawn(ctx, request)
	if err != nil {
		return err
	}

	if done, err := params.EmitJSON(spawned); done {
		return err
	}

	fmt.Fprintf(os.Stderr, "Spawned session %s\n", spawned.ID)
	fmt.Fprintf(os.Stderr, "  Agent:    %s\n", spawned.AgentType)
	fmt.Fprintf(os.Stderr, "  Name:     %s\n", spawned.Name)
	fmt.Fprintf(os.Stderr, "  Workdir:  %s\n", spawned.Workdir)
	fmt.Fprintf(os.Stderr, "  Status:   %s\n", spawned.Status)
	if params.Task != "" {
		fmt.Fprintf(os.Stderr, "\nThe session is coordinated; follow it with 'foreman watch'.\n")
	}
	return nil
}

// parseEnvEntries converts KEY=VALUE strings into a map.
func parseEnvEntries(entries []string) (map[string]string, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	env := make(map[string]string, len(entries))
	for _, entry := range entries {
		key, value, found := strings.Cut(entry, "=")
		if !found || key == "" {
			return nil, fmt.Errorf("invalid --env entry %q: expected KEY=VALUE", entry)
		}
		env[key] = value
	}
	return env, nil
}

// loadRulesFile reads a YAML list of auto-response rules and compiles
// them locally, so a bad pattern fails here with a file name instead
// of as a daemon 400.
func loadRulesFile(path string) ([]rules.Rule, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rules file: %w", err)
	}
	var loaded []rules.Rule
	if err := yaml.Unmarshal(content, &loaded); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if _, err := rules.NewEngine(loaded...); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return loaded, nil
}

// callContext returns a context with a timeout covering one daemon
// API call. Spawn is the slowest: it returns once the process is
// started, not when the agent becomes ready.
func callContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}
