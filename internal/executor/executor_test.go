package executor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/helix-run/helix/internal/agentrunner"
	"github.com/helix-run/helix/internal/cmdrunner"
	"github.com/helix-run/helix/internal/config"
	"github.com/helix-run/helix/internal/phase"
)

type fakeRunner struct {
	result cmdrunner.Result
	err    error
}

func (f *fakeRunner) Run(ctx context.Context, spec cmdrunner.Spec) (cmdrunner.Result, error) {
	return f.result, f.err
}

func baseConfig() config.AgentConfig {
	return config.AgentConfig{
		Binary:              "claude",
		NonInteractiveFlags: []string{"--print"},
		ModelEnvVar:         "HELIX_AGENT_MODEL",
		CredentialEnvVars:   map[string]string{"anthropic": "ANTHROPIC_API_KEY"},
		DefaultTimeout:      time.Minute,
	}
}

func TestExecute_SuccessCreatesDirsAndRunsAgent(t *testing.T) {
	dir := t.TempDir()
	fake := &fakeRunner{result: cmdrunner.Result{Success: true, ExitCode: 0, Stdout: "ok"}}
	agent := agentrunner.New(baseConfig(), fake)
	e := New(agent)

	res := e.Execute(context.Background(), Request{
		PhaseDir: dir,
		Phase:    phase.PhaseConfig{ID: "develop", Type: phase.TypeDevelopment},
	})

	require.True(t, res.Success)
	require.DirExists(t, filepath.Join(dir, "input"))
	require.DirExists(t, filepath.Join(dir, "output"))
	require.NotNil(t, res.AgentResult)
	require.Equal(t, "ok", res.AgentResult.Stdout)
}

func TestExecute_AgentFailureIsReported(t *testing.T) {
	dir := t.TempDir()
	fake := &fakeRunner{result: cmdrunner.Result{Success: false, ExitCode: 1, Stderr: "boom"}}
	agent := agentrunner.New(baseConfig(), fake)
	e := New(agent)

	res := e.Execute(context.Background(), Request{
		PhaseDir: dir,
		Phase:    phase.PhaseConfig{ID: "develop", Type: phase.TypeDevelopment},
	})

	require.False(t, res.Success)
	require.NotEmpty(t, res.Error)
}

func TestExecute_DryRunSkipsAgentAndSucceeds(t *testing.T) {
	dir := t.TempDir()
	fake := &fakeRunner{result: cmdrunner.Result{Success: false}} // would fail if actually invoked
	agent := agentrunner.New(baseConfig(), fake)
	e := New(agent)

	res := e.Execute(context.Background(), Request{
		PhaseDir: dir,
		Phase:    phase.PhaseConfig{ID: "develop", Type: phase.TypeDevelopment},
		DryRun:   true,
	})

	require.True(t, res.Success)
	require.NotNil(t, res.AgentResult)
}

func TestExecute_DetectsPlanWhenDecomposeFlagSet(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "output"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "output", planFileName), []byte("phases: []"), 0o644))

	fake := &fakeRunner{result: cmdrunner.Result{Success: true}}
	agent := agentrunner.New(baseConfig(), fake)
	e := New(agent)

	res := e.Execute(context.Background(), Request{
		PhaseDir: dir,
		Phase: phase.PhaseConfig{
			ID:     "consult",
			Type:   phase.TypeConsultant,
			Config: phase.Config{"decompose": true},
		},
	})

	require.True(t, res.Success)
	require.True(t, res.HasPlan)
	require.Equal(t, filepath.Join(dir, "output", planFileName), res.PlanPath)
}

func TestExecute_NoPlanWhenDecomposeFlagUnset(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "output"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "output", planFileName), []byte("phases: []"), 0o644))

	fake := &fakeRunner{result: cmdrunner.Result{Success: true}}
	agent := agentrunner.New(baseConfig(), fake)
	e := New(agent)

	res := e.Execute(context.Background(), Request{
		PhaseDir: dir,
		Phase:    phase.PhaseConfig{ID: "develop", Type: phase.TypeDevelopment},
	})

	require.True(t, res.Success)
	require.False(t, res.HasPlan)
}
