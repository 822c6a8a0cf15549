// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/foreman/lib/coordinator"
	"github.com/bureau-foundation/foreman/lib/rules"
)

// Strategy kinds for [StrategyConfig].Kind.
const (
	// StrategyInProcess runs agent terminals inside the daemon.
	StrategyInProcess = "in-process"
	// StrategyWorker runs agent terminals in a foreman-worker
	// subprocess, so a terminal-layer crash cannot take the daemon
	// (and its decision history) down with it.
	StrategyWorker = "worker"
)

// Provider kinds for [ProviderConfig].Kind.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
)

// Duration is a time.Duration that unmarshals from YAML duration
// strings ("90s", "5m").
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be a string like \"30s\"")
	}
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the standard library representation.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the master configuration for the foreman daemon.
type Config struct {
	// Listen configures the HTTP control surface.
	Listen ListenConfig `yaml:"listen"`

	// Paths configures directory locations.
	Paths PathsConfig `yaml:"paths"`

	// Tmux configures the private tmux server that hosts agent
	// terminals.
	Tmux TmuxConfig `yaml:"tmux"`

	// Strategy selects where agent terminals live.
	Strategy StrategyConfig `yaml:"strategy"`

	// Session configures per-session timing and buffering.
	Session SessionConfig `yaml:"session"`

	// Coordinator configures the decision loop.
	Coordinator CoordinatorConfig `yaml:"coordinator"`

	// Provider configures the reasoning model endpoint.
	Provider ProviderConfig `yaml:"provider"`

	// Rules configures auto-response rule sets.
	Rules RulesConfig `yaml:"rules"`

	// Credentials configures the sealed credential bundle.
	Credentials CredentialsConfig `yaml:"credentials"`

	// Archive configures session record archiving.
	Archive ArchiveConfig `yaml:"archive"`
}

// ListenConfig configures the HTTP control surface.
type ListenConfig struct {
	// Address is the listen address for the HTTP API.
	Address string `yaml:"address"`

	// HeartbeatInterval is the cadence of SSE keepalive comments.
	HeartbeatInterval Duration `yaml:"heartbeat_interval"`

	// ShutdownTimeout bounds the graceful HTTP drain at exit.
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

// PathsConfig configures directory locations.
type PathsConfig struct {
	// Root is the base directory for foreman data.
	Root string `yaml:"root"`

	// State is where runtime state lives: the tmux socket and the
	// output pipe directory. Never world-writable; the tmux side of
	// pipe-pane runs with the daemon's privileges.
	State string `yaml:"state"`

	// Archives is where session records are stored.
	Archives string `yaml:"archives"`

	// Adapters is the directory of agent adapter manifests loaded on
	// top of the built-in claude and codex adapters. Missing is fine;
	// the built-ins always register.
	Adapters string `yaml:"adapters"`
}

// TmuxConfig configures the private tmux server.
type TmuxConfig struct {
	// Socket is the tmux server socket path. A dedicated socket keeps
	// agent sessions out of the operator's own tmux server.
	Socket string `yaml:"socket"`

	// ConfigFile is an optional tmux configuration file. Empty uses
	// tmux -f /dev/null so operator dotfiles cannot leak in.
	ConfigFile string `yaml:"config_file"`

	// KillOnExit kills the tmux server when the daemon shuts down.
	// Leave it on unless the socket is shared with something else.
	KillOnExit bool `yaml:"kill_on_exit"`
}

// StrategyConfig selects where agent terminals live.
type StrategyConfig struct {
	// Kind is "in-process" or "worker".
	Kind string `yaml:"kind"`

	// WorkerBinary is the foreman-worker executable, resolved through
	// PATH when not absolute. Only used when Kind is "worker".
	WorkerBinary string `yaml:"worker_binary"`
}

// SessionConfig configures per-session timing and buffering.
type SessionConfig struct {
	// ScrollbackLines bounds each session's retained output window.
	ScrollbackLines int `yaml:"scrollback_lines"`

	// SettleDelay is the pause between a session's first ready
	// transition and the deferred initial task send.
	SettleDelay Duration `yaml:"settle_delay"`

	// CompleteSettle is the quiet period a turn-complete signature
	// must survive before the turn is declared finished.
	CompleteSettle Duration `yaml:"complete_settle"`

	// StallTimeout is the quiet period after which a busy session is
	// handed to the stall classifier.
	StallTimeout Duration `yaml:"stall_timeout"`

	// StallWindow bounds how many trailing bytes of session output go
	// into each classification prompt.
	StallWindow int `yaml:"stall_window"`

	// StopGrace is how long Stop waits after the termination signal
	// before killing the process outright.
	StopGrace Duration `yaml:"stop_grace"`
}

// CoordinatorConfig configures the decision loop.
type CoordinatorConfig struct {
	// Supervision is the starting supervision level: autonomous,
	// confirm, or notify.
	Supervision string `yaml:"supervision"`

	// IdleInterval is how long a task must be quiet before its first
	// idle check.
	IdleInterval Duration `yaml:"idle_interval"`

	// IdleGrowth multiplies the interval after each consecutive idle
	// check.
	IdleGrowth float64 `yaml:"idle_growth"`

	// MaxIdleChecks bounds consecutive idle checks; reaching it
	// forces an escalation.
	MaxIdleChecks int `yaml:"max_idle_checks"`

	// HistoryWindow is how many recent decisions are replayed into
	// each prompt.
	HistoryWindow int `yaml:"history_window"`

	// OutputTailLines is how many terminal lines go into each prompt.
	OutputTailLines int `yaml:"output_tail_lines"`

	// DecisionTimeout bounds each reasoning call.
	DecisionTimeout Duration `yaml:"decision_timeout"`

	// Prompts overrides the default prompt text blocks. Empty fields
	// keep the built-in text.
	Prompts coordinator.PromptConfig `yaml:"prompts"`
}

// ProviderConfig configures the reasoning model endpoint. The same
// provider serves coordinator decisions and stall classification.
type ProviderConfig struct {
	// Kind is "anthropic" or "openai".
	Kind string `yaml:"kind"`

	// Model is the model identifier sent with every request.
	Model string `yaml:"model"`

	// BaseURL overrides the provider's public endpoint, for proxies
	// and self-hosted openai-compatible servers. Empty uses the
	// provider default.
	BaseURL string `yaml:"base_url"`

	// APIKeyEnv names the environment variable holding the API key.
	// The key itself never appears in the config file. Empty sends no
	// key, which suits local endpoints.
	APIKeyEnv string `yaml:"api_key_env"`

	// MaxTokens caps each reasoning response.
	MaxTokens int `yaml:"max_tokens"`
}

// RulesConfig configures auto-response rule sets loaded into every
// session at spawn.
type RulesConfig struct {
	// Base applies to every session regardless of agent type.
	Base []rules.Rule `yaml:"base"`

	// Agents maps an agent type to extra rules for sessions of that
	// type, registered after Base.
	Agents map[string][]rules.Rule `yaml:"agents"`
}

// CredentialsConfig configures the sealed credential bundle. Both
// fields are set or both are empty.
type CredentialsConfig struct {
	// Bundle is the path to the age-encrypted credential bundle.
	Bundle string `yaml:"bundle"`

	// Identity is the path to the age identity that opens it.
	Identity string `yaml:"identity"`
}

// ArchiveConfig configures session record archiving.
type ArchiveConfig struct {
	// KeyFile is a path to a 32-byte key; when set, archived records
	// are encrypted at rest. Empty stores records unencrypted.
	KeyFile string `yaml:"key_file"`
}

// Default returns the default configuration. These defaults are a
// base for the loaded file, chosen for a single operator machine:
// loopback listen, everything under ~/.cache/foreman, in-process
// terminals.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	defaultRoot := filepath.Join(homeDir, ".cache", "foreman")

	return &Config{
		Listen: ListenConfig{
			Address:           "127.0.0.1:7663",
			HeartbeatInterval: Duration(30 * time.Second),
			ShutdownTimeout:   Duration(10 * time.Second),
		},
		Paths: PathsConfig{
			Root:     defaultRoot,
			State:    filepath.Join(defaultRoot, "state"),
			Archives: filepath.Join(defaultRoot, "archives"),
			Adapters: filepath.Join(defaultRoot, "adapters"),
		},
		Tmux: TmuxConfig{
			Socket:     filepath.Join(defaultRoot, "state", "tmux.sock"),
			KillOnExit: true,
		},
		Strategy: StrategyConfig{
			Kind:         StrategyInProcess,
			WorkerBinary: "foreman-worker",
		},
		Session: SessionConfig{
			ScrollbackLines: 2000,
			SettleDelay:     Duration(time.Second),
			CompleteSettle:  Duration(time.Second),
			StallTimeout:    Duration(4 * time.Second),
			StallWindow:     4096,
			StopGrace:       Duration(5 * time.Second),
		},
		Coordinator: CoordinatorConfig{
			Supervision:     string(coordinator.SupervisionAutonomous),
			IdleInterval:    Duration(2 * time.Minute),
			IdleGrowth:      1.5,
			MaxIdleChecks:   5,
			HistoryWindow:   5,
			OutputTailLines: 60,
			DecisionTimeout: Duration(60 * time.Second),
		},
		Provider: ProviderConfig{
			Kind:      ProviderAnthropic,
			APIKeyEnv: "ANTHROPIC_API_KEY",
			MaxTokens: 1024,
		},
	}
}

// Load loads configuration from the FOREMAN_CONFIG environment
// variable.
//
// This is the only way to load configuration without an explicit
// path. There are no fallbacks: if FOREMAN_CONFIG is not set, this
// fails.
func Load() (*Config, error) {
	configPath := os.Getenv("FOREMAN_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("FOREMAN_CONFIG environment variable not set; " +
			"set it to the path of your foreman.yaml config file, or use --config flag")
	}

	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path.
//
// The config file is the single source of truth. Environment
// variables do not override config values. The only expansion
// performed is ${HOME} and similar path variables for portability.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	cfg.expandVariables()

	return cfg, nil
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in path
// fields.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"FOREMAN_ROOT": c.Paths.Root,
		"HOME":         os.Getenv("HOME"),
	}

	c.Paths.Root = expandVars(c.Paths.Root, vars)
	vars["FOREMAN_ROOT"] = c.Paths.Root // Update for dependent paths.

	c.Paths.State = expandVars(c.Paths.State, vars)
	c.Paths.Archives = expandVars(c.Paths.Archives, vars)
	c.Paths.Adapters = expandVars(c.Paths.Adapters, vars)
	c.Tmux.Socket = expandVars(c.Tmux.Socket, vars)
	c.Tmux.ConfigFile = expandVars(c.Tmux.ConfigFile, vars)
	c.Strategy.WorkerBinary = expandVars(c.Strategy.WorkerBinary, vars)
	c.Credentials.Bundle = expandVars(c.Credentials.Bundle, vars)
	c.Credentials.Identity = expandVars(c.Credentials.Identity, vars)
	c.Archive.KeyFile = expandVars(c.Archive.KeyFile, vars)
}

// expandVars expands ${VAR} and ${VAR:-default} patterns.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		// Check provided vars first, then environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Listen.Address == "" {
		errs = append(errs, fmt.Errorf("listen.address is required"))
	}
	if c.Paths.Root == "" {
		errs = append(errs, fmt.Errorf("paths.root is required"))
	}
	if c.Paths.State == "" {
		errs = append(errs, fmt.Errorf("paths.state is required"))
	}
	if c.Paths.Archives == "" {
		errs = append(errs, fmt.Errorf("paths.archives is required"))
	}
	if c.Tmux.Socket == "" {
		errs = append(errs, fmt.Errorf("tmux.socket is required"))
	}

	switch c.Strategy.Kind {
	case StrategyInProcess:
	case StrategyWorker:
		if c.Strategy.WorkerBinary == "" {
			errs = append(errs, fmt.Errorf("strategy.worker_binary is required for the worker strategy"))
		}
	default:
		errs = append(errs, fmt.Errorf("strategy.kind must be %q or %q, got %q",
			StrategyInProcess, StrategyWorker, c.Strategy.Kind))
	}

	if _, err := coordinator.ParseSupervision(c.Coordinator.Supervision); err != nil {
		errs = append(errs, fmt.Errorf("coordinator.supervision: %v", err))
	}
	if c.Coordinator.IdleGrowth != 0 && c.Coordinator.IdleGrowth < 1 {
		errs = append(errs, fmt.Errorf("coordinator.idle_growth must be at least 1, got %g", c.Coordinator.IdleGrowth))
	}

	switch c.Provider.Kind {
	case ProviderAnthropic, ProviderOpenAI:
	default:
		errs = append(errs, fmt.Errorf("provider.kind must be %q or %q, got %q",
			ProviderAnthropic, ProviderOpenAI, c.Provider.Kind))
	}
	if c.Provider.Model == "" {
		errs = append(errs, fmt.Errorf("provider.model is required"))
	}

	// Compile every configured rule set so a bad pattern fails at
	// startup, not at the first spawn that would use it.
	if _, err := rules.NewEngine(c.Rules.Base...); err != nil {
		errs = append(errs, fmt.Errorf("rules.base: %v", err))
	}
	for agentType, set := range c.Rules.Agents {
		if _, err := rules.NewEngine(set...); err != nil {
			errs = append(errs, fmt.Errorf("rules.agents.%s: %v", agentType, err))
		}
	}

	if (c.Credentials.Bundle == "") != (c.Credentials.Identity == "") {
		errs = append(errs, fmt.Errorf("credentials.bundle and credentials.identity must be set together"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// EnsurePaths creates the configured directories if they don't exist.
func (c *Config) EnsurePaths() error {
	paths := []string{
		c.Paths.Root,
		c.Paths.State,
		c.Paths.Archives,
	}

	for _, path := range paths {
		if path == "" {
			continue
		}
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
	}

	return nil
}
