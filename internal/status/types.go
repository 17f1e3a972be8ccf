// Package status implements the Status Store (C2): durable,
// atomically-written per-project state, and the resume cursor used by
// the Orchestrator Runner.
package status

import "time"

// State is a project or phase lifecycle state (spec §3).
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// PhaseStatus is the persisted record for one phase (spec §3).
type PhaseStatus struct {
	PhaseID     string     `yaml:"phase_id" json:"phase_id"`
	Status      State      `yaml:"status" json:"status"`
	StartedAt   *time.Time `yaml:"started_at" json:"started_at"`
	CompletedAt *time.Time `yaml:"completed_at" json:"completed_at"`
	Retries     int        `yaml:"retries" json:"retries"`
	Error       string     `yaml:"error,omitempty" json:"error,omitempty"`
}

// ProjectStatus is the persisted record for one project run (spec §3).
type ProjectStatus struct {
	ProjectID       string                 `yaml:"project_id" json:"project_id"`
	Status          State                  `yaml:"status" json:"status"`
	TotalPhases     int                    `yaml:"total_phases" json:"total_phases"`
	CompletedPhases int                    `yaml:"completed_phases" json:"completed_phases"`
	StartedAt       *time.Time             `yaml:"started_at" json:"started_at"`
	CompletedAt     *time.Time             `yaml:"completed_at" json:"completed_at"`
	Error           string                 `yaml:"error,omitempty" json:"error,omitempty"`
	Phases          map[string]*PhaseStatus `yaml:"phases" json:"phases"`
}

// IsComplete reports whether id is marked completed.
func (s *ProjectStatus) IsComplete(id string) bool {
	p, ok := s.Phases[id]
	return ok && p.Status == StateCompleted
}

// IsFailed reports whether id is marked failed.
func (s *ProjectStatus) IsFailed(id string) bool {
	p, ok := s.Phases[id]
	return ok && p.Status == StateFailed
}

// recomputeCompletedPhases keeps CompletedPhases in sync with
// Phases, per the invariant in spec §3.
func (s *ProjectStatus) recomputeCompletedPhases() {
	count := 0
	for _, p := range s.Phases {
		if p.Status == StateCompleted {
			count++
		}
	}
	s.CompletedPhases = count
}

// EnsurePhase returns the PhaseStatus for id, creating a pending one if
// absent. TotalPhases grows to cover new ids but never shrinks (spec
// §3).
func (s *ProjectStatus) EnsurePhase(id string) *PhaseStatus {
	if s.Phases == nil {
		s.Phases = map[string]*PhaseStatus{}
	}
	p, ok := s.Phases[id]
	if !ok {
		p = &PhaseStatus{PhaseID: id, Status: StatePending}
		s.Phases[id] = p
		s.TotalPhases++
	}
	return p
}
