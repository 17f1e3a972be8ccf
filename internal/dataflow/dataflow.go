// Package dataflow implements the Data-Flow Manager (C3): copying prior
// phases' outputs into the next phase's input directory per declared
// input_from patterns, and collecting a project's outputs into an
// external destination (used by the evolution pipeline's deploy step).
package dataflow

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/helix-run/helix/internal/phase"
)

// Manager is the Data-Flow Manager (C3).
type Manager struct{}

func New() *Manager { return &Manager{} }

// projectFiles returns the ADR file(s), phases.yaml, and optional
// spec.yaml at the root of projectDir (spec §4.3).
func projectFiles(projectDir string) ([]string, error) {
	var files []string

	adrs, err := filepath.Glob(filepath.Join(projectDir, "ADR-*.md"))
	if err != nil {
		return nil, fmt.Errorf("glob ADR files: %w", err)
	}
	files = append(files, adrs...)

	for _, name := range []string{"phases.yaml", "spec.yaml"} {
		p := filepath.Join(projectDir, name)
		if _, err := os.Stat(p); err == nil {
			files = append(files, p)
		}
	}
	return files, nil
}

// copyProjectFiles copies project files into destDir, never overwriting
// an existing file of the same name (spec §4.3).
func copyProjectFiles(projectDir, destDir string) error {
	files, err := projectFiles(projectDir)
	if err != nil {
		return err
	}
	for _, src := range files {
		dest := filepath.Join(destDir, filepath.Base(src))
		if _, err := os.Stat(dest); err == nil {
			continue // never overwrite
		}
		if err := copyFile(src, dest); err != nil {
			return fmt.Errorf("copy project file %s: %w", src, err)
		}
	}
	return nil
}

// PreparePhaseInputs populates phases/<id>/input/ for p, per spec §4.3.
func (m *Manager) PreparePhaseInputs(projectDir string, p phase.PhaseConfig) error {
	inputDir := filepath.Join(projectDir, "phases", p.ID, "input")
	if err := os.MkdirAll(inputDir, 0o755); err != nil {
		return fmt.Errorf("create input dir: %w", err)
	}

	if len(p.InputFrom) == 0 {
		return copyProjectFiles(projectDir, inputDir)
	}

	for _, ref := range p.InputFrom {
		srcOutput := filepath.Join(projectDir, "phases", ref.PhaseID, "output")
		if _, err := os.Stat(srcOutput); os.IsNotExist(err) {
			// Missing source output is a silent no-op; its absence is a
			// gate/verification failure later, not a data-flow error.
			continue
		}

		if ref.Patterns == nil {
			if err := copyTreeReplacing(srcOutput, inputDir); err != nil {
				return fmt.Errorf("copy output of %s into %s input: %w", ref.PhaseID, p.ID, err)
			}
			continue
		}

		if err := copyMatchingGlobs(srcOutput, inputDir, ref.Patterns); err != nil {
			return fmt.Errorf("copy globbed output of %s into %s input: %w", ref.PhaseID, p.ID, err)
		}
	}

	return copyProjectFiles(projectDir, inputDir)
}

// CollectOutputs mirrors PreparePhaseInputs' copy semantics into an
// external destination directory, optionally filtered to a single
// phase id. Used by the evolution Deployer/Integrator.
func (m *Manager) CollectOutputs(projectDir, destDir string, phaseFilter string) error {
	phasesDir := filepath.Join(projectDir, "phases")
	entries, err := os.ReadDir(phasesDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read phases dir: %w", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if phaseFilter != "" && entry.Name() != phaseFilter {
			continue
		}
		outputDir := filepath.Join(phasesDir, entry.Name(), "output")
		if _, err := os.Stat(outputDir); os.IsNotExist(err) {
			continue
		}
		if err := copyTreeMerging(outputDir, destDir); err != nil {
			return fmt.Errorf("collect outputs of %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// copyTreeReplacing copies src into dest recursively; existing
// destination directories that collide with a source directory are
// replaced (spec §4.3: "existing destination directories are
// replaced").
func copyTreeReplacing(src, dest string) error {
	return filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dest, rel)

		if d.IsDir() {
			if rel != "." {
				if err := os.RemoveAll(target); err != nil {
					return err
				}
			}
			return os.MkdirAll(target, 0o755)
		}
		return copyFile(path, target)
	})
}

// copyTreeMerging copies src into dest recursively without removing
// any pre-existing destination content (directory-merge semantics, used
// by CollectOutputs).
func copyTreeMerging(src, dest string) error {
	return filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dest, rel)

		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		return copyFile(path, target)
	})
}

// copyMatchingGlobs copies only the entries under src matching any of
// patterns, preserving relative paths (spec §4.3).
func copyMatchingGlobs(src, dest string, patterns []string) error {
	return filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		matched := false
		for _, pattern := range patterns {
			ok, err := doublestar.Match(pattern, rel)
			if err != nil {
				return fmt.Errorf("invalid glob pattern %q: %w", pattern, err)
			}
			if ok {
				matched = true
				break
			}
		}
		if !matched {
			return nil
		}

		target := filepath.Join(dest, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		return copyFile(path, target)
	})
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode())
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}
