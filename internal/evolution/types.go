// Package evolution implements the self-evolution pipeline (C12-C14):
// deploy a project's produced files into an isolated twin of production,
// validate them against a test baseline, and on success integrate them
// back with git-tagged rollback.
package evolution

import "time"

// ProjectStatus is an EvolutionProject's lifecycle state (spec §3),
// distinct from status.ProjectStatus's phase-execution states.
type ProjectStatus string

const (
	StatusPending    ProjectStatus = "pending"
	StatusDeveloping ProjectStatus = "developing"
	StatusReady      ProjectStatus = "ready"
	StatusDeployed   ProjectStatus = "deployed"
	StatusValidating ProjectStatus = "validating"
	StatusIntegrated ProjectStatus = "integrated"
	StatusFailed     ProjectStatus = "failed"
)

// Project is an EvolutionProject: a specialised project living under a
// dedicated evolution area, carrying new/modified files in addition to
// the usual ADR + phases.yaml (spec §3).
type Project struct {
	Dir    string        `json:"-"`
	Name   string        `json:"name"`
	Status ProjectStatus `json:"status"`

	// AutoIntegrate, when set, lets run_evolution_pipeline proceed
	// straight from a passing validation into integration (spec
	// §4.12 step 6).
	AutoIntegrate bool `json:"auto_integrate"`
}

// NewDir, ModifiedDir return the project's file-mirror directories
// (spec §3: "new/ ... modified/").
func (p *Project) NewDir() string      { return p.Dir + "/new" }
func (p *Project) ModifiedDir() string { return p.Dir + "/modified" }

// Baseline is a snapshot of test health at a known commit, used by the
// Validator to ignore pre-existing failures (spec §3).
type Baseline struct {
	Timestamp   time.Time `json:"timestamp"`
	CommitSHA   string    `json:"commit_sha"`
	TotalTests  int       `json:"total_tests"`
	PassedTests int       `json:"passed_tests"`
	FailedTests []string  `json:"failed_tests"`
}
