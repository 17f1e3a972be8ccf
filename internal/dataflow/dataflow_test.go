package dataflow

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/helix-run/helix/internal/phase"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestPreparePhaseInputs_WholeOutputDirCopiedWhenNoPatterns(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "phases", "develop", "output", "src", "foo.py"), "print(1)")
	writeFile(t, filepath.Join(dir, "phases", "develop", "output", "README.md"), "hello")

	m := New()
	p := phase.PhaseConfig{ID: "review", InputFrom: []phase.InputRef{{PhaseID: "develop"}}}
	require.NoError(t, m.PreparePhaseInputs(dir, p))

	got, err := os.ReadFile(filepath.Join(dir, "phases", "review", "input", "src", "foo.py"))
	require.NoError(t, err)
	require.Equal(t, "print(1)", string(got))

	got, err = os.ReadFile(filepath.Join(dir, "phases", "review", "input", "README.md"))
	require.NoError(t, err)
	require.Equal(t, "hello", string(got))
}

func TestPreparePhaseInputs_GlobFiltersSubset(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "phases", "develop", "output", "src", "foo.py"), "print(1)")
	writeFile(t, filepath.Join(dir, "phases", "develop", "output", "docs", "guide.md"), "guide")
	writeFile(t, filepath.Join(dir, "phases", "develop", "output", "notes.txt"), "notes")

	m := New()
	p := phase.PhaseConfig{
		ID:        "review",
		InputFrom: []phase.InputRef{{PhaseID: "develop", Patterns: []string{"src/*.py", "docs/**"}}},
	}
	require.NoError(t, m.PreparePhaseInputs(dir, p))

	_, err := os.Stat(filepath.Join(dir, "phases", "review", "input", "src", "foo.py"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "phases", "review", "input", "docs", "guide.md"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "phases", "review", "input", "notes.txt"))
	require.True(t, os.IsNotExist(err))
}

func TestPreparePhaseInputs_MissingSourceIsSilentNoOp(t *testing.T) {
	dir := t.TempDir()
	m := New()
	p := phase.PhaseConfig{ID: "review", InputFrom: []phase.InputRef{{PhaseID: "develop"}}}
	require.NoError(t, m.PreparePhaseInputs(dir, p))

	entries, err := os.ReadDir(filepath.Join(dir, "phases", "review", "input"))
	require.NoError(t, err)
	require.Len(t, entries, 0)
}

func TestPreparePhaseInputs_NoInputFromCopiesProjectFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "ADR-001-foo.md"), "# ADR")
	writeFile(t, filepath.Join(dir, "phases.yaml"), "phases: []")

	m := New()
	p := phase.PhaseConfig{ID: "develop"}
	require.NoError(t, m.PreparePhaseInputs(dir, p))

	_, err := os.Stat(filepath.Join(dir, "phases", "develop", "input", "ADR-001-foo.md"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "phases", "develop", "input", "phases.yaml"))
	require.NoError(t, err)
}

func TestPreparePhaseInputs_NeverOverwritesExistingProjectFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "phases.yaml"), "phases: []")
	writeFile(t, filepath.Join(dir, "phases", "develop", "input", "phases.yaml"), "already here")

	m := New()
	p := phase.PhaseConfig{ID: "develop"}
	require.NoError(t, m.PreparePhaseInputs(dir, p))

	got, err := os.ReadFile(filepath.Join(dir, "phases", "develop", "input", "phases.yaml"))
	require.NoError(t, err)
	require.Equal(t, "already here", string(got))
}

func TestCollectOutputs_MergesAllPhaseOutputs(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "phases", "develop", "output", "src", "foo.py"), "a")
	writeFile(t, filepath.Join(dir, "phases", "review", "output", "notes.md"), "b")

	dest := t.TempDir()
	m := New()
	require.NoError(t, m.CollectOutputs(dir, dest, ""))

	_, err := os.Stat(filepath.Join(dest, "src", "foo.py"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dest, "notes.md"))
	require.NoError(t, err)
}

func TestCollectOutputs_FilteredToSinglePhase(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "phases", "develop", "output", "src", "foo.py"), "a")
	writeFile(t, filepath.Join(dir, "phases", "review", "output", "notes.md"), "b")

	dest := t.TempDir()
	m := New()
	require.NoError(t, m.CollectOutputs(dir, dest, "develop"))

	_, err := os.Stat(filepath.Join(dest, "src", "foo.py"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dest, "notes.md"))
	require.True(t, os.IsNotExist(err))
}
