package evolution

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/helix-run/helix/internal/cmdrunner"
	"github.com/helix-run/helix/internal/config"
)

type fakeRunner struct {
	calls []cmdrunner.Spec
}

func (f *fakeRunner) Run(ctx context.Context, spec cmdrunner.Spec) (cmdrunner.Result, error) {
	f.calls = append(f.calls, spec)
	return cmdrunner.Result{Success: true}, nil
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestDeploy_CopiesNewAndModifiedIntoTwinRoot(t *testing.T) {
	projectDir := t.TempDir()
	twinDir := t.TempDir()

	p := &Project{Dir: projectDir, Name: "evo-1", Status: StatusReady}
	writeFile(t, filepath.Join(p.NewDir(), "pkg", "added.go"), "package pkg")
	writeFile(t, filepath.Join(p.ModifiedDir(), "main.go"), "package main")

	d := NewDeployer(config.ControlSystemConfig{Root: twinDir}, &fakeRunner{})
	require.NoError(t, d.Deploy(p))

	got, err := os.ReadFile(filepath.Join(twinDir, "pkg", "added.go"))
	require.NoError(t, err)
	require.Equal(t, "package pkg", string(got))

	got, err = os.ReadFile(filepath.Join(twinDir, "main.go"))
	require.NoError(t, err)
	require.Equal(t, "package main", string(got))

	require.Equal(t, StatusDeployed, p.Status)

	reloaded, err := LoadProject(projectDir)
	require.NoError(t, err)
	require.Equal(t, StatusDeployed, reloaded.Status)
}

func TestDeploy_MissingNewOrModifiedIsNoOp(t *testing.T) {
	projectDir := t.TempDir()
	twinDir := t.TempDir()
	p := &Project{Dir: projectDir, Name: "evo-1"}

	d := NewDeployer(config.ControlSystemConfig{Root: twinDir}, &fakeRunner{})
	require.NoError(t, d.Deploy(p))
}

func TestRestartTestSystem_SucceedsOnHealthyEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	runner := &fakeRunner{}
	d := NewDeployer(config.ControlSystemConfig{
		Root:          t.TempDir(),
		ControlScript: "control.sh",
		HealthURL:     srv.URL,
	}, runner)

	require.NoError(t, d.RestartTestSystem(context.Background()))
	require.Len(t, runner.calls, 1)
	require.Equal(t, []string{"restart"}, runner.calls[0].Args)
}

func TestRestartTestSystem_FailsWhenHealthNeverRecovers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	d := NewDeployer(config.ControlSystemConfig{
		Root:          t.TempDir(),
		ControlScript: "control.sh",
		HealthURL:     srv.URL,
	}, &fakeRunner{})

	err := d.RestartTestSystem(context.Background())
	require.Error(t, err)
}
