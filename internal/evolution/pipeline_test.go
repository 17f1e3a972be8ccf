package evolution

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/helix-run/helix/internal/agentrunner"
	"github.com/helix-run/helix/internal/cmdrunner"
	hconfig "github.com/helix-run/helix/internal/config"
	"github.com/helix-run/helix/internal/dataflow"
	"github.com/helix-run/helix/internal/escalation"
	"github.com/helix-run/helix/internal/executor"
	"github.com/helix-run/helix/internal/gate"
	"github.com/helix-run/helix/internal/jobbus"
	"github.com/helix-run/helix/internal/orchestrator"
	"github.com/helix-run/helix/internal/phase"
	"github.com/helix-run/helix/internal/status"
	"github.com/helix-run/helix/internal/verify"
)

// multiplexRunner dispatches by the invoked binary name so one fake can
// stand in for the agent CLI, git, a control script, and a test
// command within the same pipeline run.
type multiplexRunner struct {
	testOutput string
}

func (m *multiplexRunner) Run(ctx context.Context, spec cmdrunner.Spec) (cmdrunner.Result, error) {
	switch spec.Name {
	case "sh":
		return cmdrunner.Result{Success: true, Stdout: m.testOutput}, nil
	default: // "claude" (agent), "git", "control.sh"
		return cmdrunner.Result{Success: true}, nil
	}
}

func newTestPipeline(t *testing.T, healthURL string, testOutput string, autoIntegrate bool) (*Pipeline, string, string) {
	t.Helper()
	projectDir := t.TempDir()
	evoDir := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(projectDir, "phases.yaml"), []byte(`
phases:
  - id: develop
    name: Develop
    type: development
`), 0o644))

	runner := &multiplexRunner{testOutput: testOutput}
	agent := agentrunner.New(hconfig.AgentConfig{Binary: "claude", NonInteractiveFlags: []string{"--print"}, ModelEnvVar: "HELIX_AGENT_MODEL"}, runner)
	orch := orchestrator.New(
		phase.NewLoader(""),
		status.NewStore(),
		dataflow.New(),
		nil,
		executor.New(agent),
		verify.New(runner),
		gate.New(runner),
		escalation.New(hconfig.EscalationConfig{ModelChain: []string{"m1"}, Stage1Ceiling: 1, Stage2Ceiling: 1}),
		jobbus.New(),
	)

	evoCfg := hconfig.EvolutionConfig{
		Twin:       hconfig.ControlSystemConfig{Root: t.TempDir(), ControlScript: "control.sh", HealthURL: healthURL},
		Production: hconfig.ControlSystemConfig{Root: t.TempDir(), ControlScript: "control.sh", HealthURL: healthURL},
		TagPrefix:  "helix-pre-integration",
	}

	evo := &Project{Dir: evoDir, Name: "evo-1", Status: StatusPending, AutoIntegrate: autoIntegrate}
	require.NoError(t, SaveProject(evo))
	require.NoError(t, os.MkdirAll(filepath.Join(evoDir, "new"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(evoDir, "new", "feature.go"), []byte("package feature"), 0o644))

	p := New(orch, status.NewStore(), jobbus.New(), runner, evoCfg, "pytest")
	return p, projectDir, evoDir
}

func TestRun_StopsAfterValidationWithoutAutoIntegrate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }))
	defer srv.Close()

	p, projectDir, evoDir := newTestPipeline(t, srv.URL, "t1 PASS\n", false)

	outcome, err := p.Run(context.Background(), RunOptions{ProjectDir: projectDir, ProjectID: "proj", ProjectName: "Proj", EvolutionDir: evoDir})
	require.NoError(t, err)
	require.Equal(t, StatusReady, outcome.Status)
	require.True(t, outcome.Validation.Passed)

	got, err := os.ReadFile(filepath.Join(evoDir, "new", "feature.go"))
	require.NoError(t, err)
	require.Equal(t, "package feature", string(got))
}

func TestRun_IntegratesWhenAutoIntegrateIsOn(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }))
	defer srv.Close()

	p, projectDir, evoDir := newTestPipeline(t, srv.URL, "t1 PASS\n", true)

	outcome, err := p.Run(context.Background(), RunOptions{ProjectDir: projectDir, ProjectID: "proj", ProjectName: "Proj", EvolutionDir: evoDir})
	require.NoError(t, err)
	require.Equal(t, StatusIntegrated, outcome.Status)
}

func TestRun_FailsValidationOnRegression(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }))
	defer srv.Close()

	p, projectDir, evoDir := newTestPipeline(t, srv.URL, "tests/unrelated.py::t1 FAIL\n", false)

	outcome, err := p.Run(context.Background(), RunOptions{ProjectDir: projectDir, ProjectID: "proj", ProjectName: "Proj", EvolutionDir: evoDir})
	require.Error(t, err)
	require.Equal(t, StatusFailed, outcome.Status)
	require.False(t, outcome.Validation.Passed)
}

func TestRun_FailsWhenHealthNeverRecovers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusServiceUnavailable) }))
	defer srv.Close()

	p, projectDir, evoDir := newTestPipeline(t, srv.URL, "t1 PASS\n", false)

	_, err := p.Run(context.Background(), RunOptions{ProjectDir: projectDir, ProjectID: "proj", ProjectName: "Proj", EvolutionDir: evoDir})
	require.Error(t, err)
}
