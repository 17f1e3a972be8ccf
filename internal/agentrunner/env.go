package agentrunner

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/awnumar/memguard"

	"github.com/helix-run/helix/internal/config"
)

// resolveProvider maps a model identifier to the provider whose
// credential should be selected. Models are named "<provider>/<name>"
// or a bare name, in which case "anthropic" is assumed.
func resolveProvider(model string) string {
	if model == "" {
		return "anthropic"
	}
	if provider, _, ok := strings.Cut(model, "/"); ok {
		return provider
	}
	return "anthropic"
}

// buildEnv assembles the child process environment: ambient env,
// overlaid with the venv PATH prefix, the provider credential selected
// for model, the model identifier itself, then caller overrides last
// (spec §4.5).
func buildEnv(cfg config.AgentConfig, model string, overrides map[string]string) []string {
	env := os.Environ()

	if cfg.VenvPath != "" {
		env = overlayVar(env, "PATH", filepath.Join(cfg.VenvPath, "bin")+string(os.PathListSeparator)+os.Getenv("PATH"))
	}

	provider := resolveProvider(model)
	if varName, ok := cfg.CredentialEnvVars[provider]; ok {
		if value := os.Getenv(varName); value != "" {
			env = overlayVar(env, varName, secureCopy(value))
		}
	}

	if cfg.ModelEnvVar != "" && model != "" {
		env = overlayVar(env, cfg.ModelEnvVar, model)
	}

	for k, v := range overrides {
		env = overlayVar(env, k, v)
	}

	return env
}

// secureCopy holds value in a locked buffer just long enough to produce
// a copy for the environment slice, then wipes the locked buffer. The
// resulting Go string is handed to exec.Cmd immediately after, matching
// the narrow protection window used elsewhere for credentials.
func secureCopy(value string) string {
	buf := memguard.NewBufferFromBytes([]byte(value))
	defer buf.Destroy()
	return string(buf.Bytes())
}

// overlayVar replaces the entry for key in env, or appends it if absent.
func overlayVar(env []string, key, value string) []string {
	prefix := key + "="
	for i, kv := range env {
		if strings.HasPrefix(kv, prefix) {
			env[i] = prefix + value
			return env
		}
	}
	return append(env, fmt.Sprintf("%s=%s", key, value))
}
