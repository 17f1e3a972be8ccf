package phase

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writePhases(t *testing.T, dir, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, phasesFileName), []byte(content), 0o644))
}

func TestLoad_OrderedAndValidated(t *testing.T) {
	dir := t.TempDir()
	writePhases(t, dir, `
phases:
  - id: develop
    name: Develop
    type: development
    output: [src/foo.py]
  - id: review
    name: Review
    type: review
    input_from: [develop]
    quality_gate:
      type: files_exist
      files: [src/foo.py]
`)

	phases, err := NewLoader("").Load(dir)
	require.NoError(t, err)
	require.Len(t, phases, 2)
	require.Equal(t, "develop", phases[0].ID)
	require.Equal(t, "review", phases[1].ID)
	require.Equal(t, "develop", phases[1].InputFrom[0].PhaseID)
}

func TestLoad_ForwardReferenceRejected(t *testing.T) {
	dir := t.TempDir()
	writePhases(t, dir, `
phases:
  - id: review
    type: review
    input_from: [develop]
  - id: develop
    type: development
`)

	_, err := NewLoader("").Load(dir)
	require.Error(t, err)
}

func TestLoad_InvalidTypeRejected(t *testing.T) {
	dir := t.TempDir()
	writePhases(t, dir, `
phases:
  - id: a
    type: not-a-real-type
`)
	_, err := NewLoader("").Load(dir)
	require.Error(t, err)
}

func TestLoad_InputFromWithGlobs(t *testing.T) {
	dir := t.TempDir()
	writePhases(t, dir, `
phases:
  - id: develop
    type: development
  - id: review
    type: review
    input_from:
      - develop: ["*.py", "docs/**"]
`)

	phases, err := NewLoader("").Load(dir)
	require.NoError(t, err)
	require.Equal(t, []string{"*.py", "docs/**"}, phases[1].InputFrom[0].Patterns)
}

func TestLoad_MergesProjectTypeTemplate(t *testing.T) {
	templateDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(templateDir, "webapp.yaml"), []byte(`
phases:
  - id: develop
    name: Default Develop
    type: development
    config:
      model: sonnet
    output: [src/app.py]
`), 0o644))

	projectDir := t.TempDir()
	writePhases(t, projectDir, `
project_type: webapp
phases:
  - id: develop
    config:
      decompose: true
`)

	phases, err := NewLoader(templateDir).Load(projectDir)
	require.NoError(t, err)
	require.Len(t, phases, 1)
	require.Equal(t, "Default Develop", phases[0].Name)
	require.Equal(t, []string{"src/app.py"}, phases[0].Output)
	require.Equal(t, "sonnet", phases[0].Config.Model())
	require.True(t, phases[0].Config.Decompose())
}

func TestLoad_DuplicateIDRejected(t *testing.T) {
	dir := t.TempDir()
	writePhases(t, dir, `
phases:
  - id: a
    type: development
  - id: a
    type: review
`)
	_, err := NewLoader("").Load(dir)
	require.Error(t, err)
}

func TestLoad_GateFieldRequirements(t *testing.T) {
	dir := t.TempDir()
	writePhases(t, dir, `
phases:
  - id: a
    type: development
    quality_gate:
      type: files_exist
`)
	_, err := NewLoader("").Load(dir)
	require.Error(t, err)
}
