// Package config loads HELIX's operator-wide configuration: settings
// that belong to the machine running the orchestrator, not to any one
// project. Project-local files (phases.yaml, ADRs, status.yaml,
// baseline.json) are handled by their own packages.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
)

// AgentConfig describes how to invoke the external coding-agent CLI.
type AgentConfig struct {
	// Binary is the path to the agent executable.
	Binary string `toml:"binary"`

	// NonInteractiveFlags are appended to force batch/print mode and
	// accept risky operations, per the agent CLI contract (spec §6).
	NonInteractiveFlags []string `toml:"non_interactive_flags"`

	// LineBufferShim optionally wraps Binary with a line-buffering
	// helper (e.g. "stdbuf -oL") so streamed stdout/stderr arrive
	// line-at-a-time regardless of the child's own buffering.
	LineBufferShim string `toml:"line_buffer_shim"`

	// ModelEnvVar is the environment variable used to pass the selected
	// model identifier to the child process.
	ModelEnvVar string `toml:"model_env_var"`

	// CredentialEnvVars maps a provider name (as referenced by a phase's
	// config.model, e.g. "anthropic") to the ambient environment
	// variable holding its API key.
	CredentialEnvVars map[string]string `toml:"credential_env_vars"`

	// VenvPath, if set, has its bin/ directory prepended to PATH ahead
	// of the system PATH.
	VenvPath string `toml:"venv_path"`

	// DefaultTimeout bounds a single phase invocation.
	DefaultTimeout time.Duration `toml:"default_timeout"`
}

// EscalationConfig configures the two-stage escalation state machine.
type EscalationConfig struct {
	// ModelChain is the ascending sequence of models tried by stage-1's
	// model_switch action. The last entry is sticky.
	ModelChain []string `toml:"model_chain"`

	Stage1Ceiling int `toml:"stage1_ceiling"`
	Stage2Ceiling int `toml:"stage2_ceiling"`
}

// ControlSystemConfig locates a twin or production system's control
// script and health endpoint, per the control-script contract (spec
// §6).
type ControlSystemConfig struct {
	Root               string `toml:"root"`
	ControlScript      string `toml:"control_script"`
	HealthURL          string `toml:"health_url"`
	GitRemote          string `toml:"git_remote"`
	BaselineBranch     string `toml:"baseline_branch"`
	RestartGraceSecs   int    `toml:"restart_grace_seconds"`
}

// EvolutionConfig groups the twin and production system locations used
// by the self-evolution pipeline (C12-C14).
type EvolutionConfig struct {
	Twin       ControlSystemConfig `toml:"twin"`
	Production ControlSystemConfig `toml:"production"`
	TagPrefix  string              `toml:"tag_prefix"`
}

// Config is the top-level operator configuration, loaded from
// ~/.helix/config.toml.
type Config struct {
	Agent      AgentConfig      `toml:"agent"`
	Escalation EscalationConfig `toml:"escalation"`
	Evolution  EvolutionConfig  `toml:"evolution"`
}

// Default returns sensible defaults used to seed a fresh config file.
func Default() Config {
	return Config{
		Agent: AgentConfig{
			Binary:              "claude",
			NonInteractiveFlags: []string{"--print", "--dangerously-skip-permissions"},
			ModelEnvVar:         "HELIX_AGENT_MODEL",
			CredentialEnvVars: map[string]string{
				"anthropic": "ANTHROPIC_API_KEY",
				"openai":    "OPENAI_API_KEY",
			},
			DefaultTimeout: 20 * time.Minute,
		},
		Escalation: EscalationConfig{
			ModelChain:    []string{"haiku", "sonnet", "opus"},
			Stage1Ceiling: 3,
			Stage2Ceiling: 2,
		},
		Evolution: EvolutionConfig{
			TagPrefix: "helix-pre-integration",
		},
	}
}

var (
	global     Config
	globalOnce sync.Once
	globalErr  error
)

// Global returns the process-wide Config, loading it from
// ~/.helix/config.toml on first call (creating a default file if
// missing). Mirrors the single-load singleton pattern used by HELIX's
// project-local config loaders.
func Global() (Config, error) {
	globalOnce.Do(func() {
		global, globalErr = loadDefaultPath()
	})
	return global, globalErr
}

func loadDefaultPath() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, fmt.Errorf("resolve home directory: %w", err)
	}
	return Load(filepath.Join(home, ".helix", "config.toml"))
}

// Load reads Config from path, creating it with defaults if it does not
// exist.
func Load(path string) (Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := writeDefault(path); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode config %s: %w", path, err)
	}
	return cfg, nil
}

func writeDefault(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create config file: %w", err)
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(Default())
}
