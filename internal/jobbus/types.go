// Package jobbus implements the Job & Event Bus (C11): one record per
// run (project execution or evolution pipeline), fanning its events out
// to any number of streaming subscribers with per-subscriber
// backpressure.
package jobbus

import "time"

// Status is a job's lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// EventType tags a PhaseEvent (spec §3).
type EventType string

const (
	EventJobStarted         EventType = "job_started"
	EventPhaseStart         EventType = "phase_start"
	EventPhaseSkipped       EventType = "phase_skipped"
	EventOutput             EventType = "output"
	EventPhaseRetry         EventType = "phase_retry"
	EventVerificationFailed EventType = "verification_failed"
	EventVerificationPassed EventType = "verification_passed"
	EventPhaseEnd           EventType = "phase_end"
	EventJobCompleted       EventType = "job_completed"
	EventJobFailed          EventType = "job_failed"
	EventJobCancelled       EventType = "job_cancelled"
	EventKeepalive          EventType = "keepalive"

	// Evolution pipeline events (spec §4.12).
	EventPipelineStarted   EventType = "pipeline_started"
	EventStepStarted       EventType = "step_started"
	EventStepCompleted     EventType = "step_completed"
	EventStepFailed        EventType = "step_failed"
	EventStepSkipped       EventType = "step_skipped"
	EventPipelineCompleted EventType = "pipeline_completed"
	EventPipelineFailed    EventType = "pipeline_failed"
	EventPipelineError     EventType = "pipeline_error"
)

var terminalEvents = map[EventType]bool{
	EventJobCompleted: true, EventJobFailed: true, EventJobCancelled: true,
	EventPipelineCompleted: true, EventPipelineFailed: true,
}

// PhaseEvent is one entry in a job's event stream (spec §3).
type PhaseEvent struct {
	Type      EventType      `json:"event_type"`
	PhaseID   string         `json:"phase_id,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// PhaseRecord is one phase's live/historical entry on a Job, separate
// from the persisted status.PhaseStatus (spec §3: "the former is
// live/observational; the latter is persistent").
type PhaseRecord struct {
	PhaseID     string     `json:"phase_id"`
	Name        string     `json:"name,omitempty"`
	Status      Status     `json:"status"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Duration    string     `json:"duration,omitempty"`
	Outputs     []string   `json:"outputs,omitempty"`
}

// Job is a single run instance (spec §3).
type Job struct {
	ID           string        `json:"id"`
	ProjectPath  string        `json:"project_path"`
	Status       Status        `json:"status"`
	CreatedAt    time.Time     `json:"created_at"`
	StartedAt    *time.Time    `json:"started_at,omitempty"`
	CompletedAt  *time.Time    `json:"completed_at,omitempty"`
	CurrentPhase string        `json:"current_phase,omitempty"`
	Phases       []PhaseRecord `json:"phases"`
	Error        string        `json:"error,omitempty"`

	subscribers map[string]chan PhaseEvent
	cancel      func()
}
