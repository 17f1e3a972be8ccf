package status

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/helix-run/helix/internal/herrors"
)

const statusFileName = "status.yaml"

// Store is the Status Store (C2). It owns status.yaml inside a project
// directory and guarantees atomic, durable writes.
type Store struct{}

// NewStore returns a Store. Store is stateless; every method re-reads
// or re-writes the file on disk, per spec §4.2 ("the in-memory object
// is a cache that must be re-read after external edits").
func NewStore() *Store { return &Store{} }

func path(projectDir string) string {
	return filepath.Join(projectDir, statusFileName)
}

// Load reads status.yaml, returning (nil, nil) if the file doesn't
// exist (treated as pending per spec §4.2).
func (s *Store) Load(projectDir string) (*ProjectStatus, error) {
	data, err := os.ReadFile(path(projectDir))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read status file: %w", err)
	}

	var st ProjectStatus
	if err := yaml.Unmarshal(data, &st); err != nil {
		return nil, herrors.Wrap(herrors.ErrMalformedSpec, "parse status file: %v", err)
	}
	if st.Phases == nil {
		st.Phases = map[string]*PhaseStatus{}
	}
	return &st, nil
}

// LoadOrCreate returns the persisted status, or a fresh pending status
// scoped to projectID if none exists yet.
func (s *Store) LoadOrCreate(projectDir, projectID string) (*ProjectStatus, error) {
	st, err := s.Load(projectDir)
	if err != nil {
		return nil, err
	}
	if st != nil {
		return st, nil
	}
	return &ProjectStatus{
		ProjectID: projectID,
		Status:    StatePending,
		Phases:    map[string]*PhaseStatus{},
	}, nil
}

// Save atomically persists st: write to a sibling temp file in the same
// directory, fsync, rename into place (spec §4.2 / §9). A reader can
// never observe a partially-written file.
func (s *Store) Save(projectDir string, st *ProjectStatus) error {
	st.recomputeCompletedPhases()

	data, err := yaml.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal status: %w", err)
	}

	final := path(projectDir)
	tmp, err := os.CreateTemp(projectDir, ".status-*.yaml.tmp")
	if err != nil {
		return fmt.Errorf("create temp status file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once the rename below succeeds

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp status file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("fsync temp status file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp status file: %w", err)
	}

	if err := os.Rename(tmpPath, final); err != nil {
		return fmt.Errorf("rename status file into place: %w", err)
	}

	if dir, err := os.Open(projectDir); err == nil {
		_ = dir.Sync() // best-effort: not all filesystems support dir fsync
		dir.Close()
	}

	return nil
}

// Delete removes status.yaml, returning false if it was already absent.
func (s *Store) Delete(projectDir string) (bool, error) {
	err := os.Remove(path(projectDir))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("delete status file: %w", err)
	}
	return true, nil
}

func now() time.Time { return time.Now().UTC() }

// MarkStarted transitions phase id to running, persisting the change.
func (s *Store) MarkStarted(projectDir string, st *ProjectStatus, id string) error {
	p := st.EnsurePhase(id)
	p.Status = StateRunning
	t := now()
	p.StartedAt = &t
	p.Error = ""
	if st.Status == StatePending {
		st.Status = StateRunning
		if st.StartedAt == nil {
			st.StartedAt = &t
		}
	}
	return s.Save(projectDir, st)
}

// MarkCompleted transitions phase id to completed, persisting the
// change. Once completed, a phase remains completed across resumes
// unless explicitly reset (spec §3).
func (s *Store) MarkCompleted(projectDir string, st *ProjectStatus, id string) error {
	p := st.EnsurePhase(id)
	p.Status = StateCompleted
	t := now()
	p.CompletedAt = &t
	p.Error = ""
	return s.Save(projectDir, st)
}

// MarkFailed transitions phase id to failed, persisting the change.
// Failure is terminal only after the caller has exhausted its retry
// ceiling (spec §3) -- this method just records the terminal state.
func (s *Store) MarkFailed(projectDir string, st *ProjectStatus, id string, cause error) error {
	p := st.EnsurePhase(id)
	p.Status = StateFailed
	t := now()
	p.CompletedAt = &t
	if cause != nil {
		p.Error = cause.Error()
	}
	return s.Save(projectDir, st)
}

// IncrementRetries bumps phase id's retry counter, transitions it back
// to running (spec §3), persists, and returns the new count.
func (s *Store) IncrementRetries(projectDir string, st *ProjectStatus, id string) (int, error) {
	p := st.EnsurePhase(id)
	p.Retries++
	p.Status = StateRunning
	if err := s.Save(projectDir, st); err != nil {
		return p.Retries, err
	}
	return p.Retries, nil
}

// Reset clears the persisted status for id back to pending, used by
// `--reset`.
func (s *Store) Reset(projectDir string, st *ProjectStatus, id string) error {
	p := st.EnsurePhase(id)
	p.Status = StatePending
	p.StartedAt = nil
	p.CompletedAt = nil
	p.Retries = 0
	p.Error = ""
	return s.Save(projectDir, st)
}
