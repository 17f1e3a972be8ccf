// Package orchestrator implements the Orchestrator Runner (C10): the
// main dequeue loop that drives one project's phases through the Data-
// Flow Manager, Template Renderer, Phase Executor, Quality Gate
// Evaluator, Post-Phase Verifier, and Escalation Engine, persisting
// progress to the Status Store and emitting events to the Job Bus.
package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/helix-run/helix/internal/adr"
	"github.com/helix-run/helix/internal/dataflow"
	"github.com/helix-run/helix/internal/escalation"
	"github.com/helix-run/helix/internal/executor"
	"github.com/helix-run/helix/internal/gate"
	"github.com/helix-run/helix/internal/herrors"
	"github.com/helix-run/helix/internal/jobbus"
	"github.com/helix-run/helix/internal/phase"
	"github.com/helix-run/helix/internal/status"
	"github.com/helix-run/helix/internal/template"
	"github.com/helix-run/helix/internal/verify"
)

// defaultVerificationRetryCeiling bounds the tight agent/verify retry
// loop before a failure is escalated (spec §4.10: "default 2").
const defaultVerificationRetryCeiling = 2

// defaultHumanReviewPollAttempts, multiplied by humanReviewPollInterval,
// sets the total time the Orchestrator waits for a stage-2 human response
// before treating the phase as blocked and aborting it.
const defaultHumanReviewPollAttempts = 3

const humanReviewPollInterval = 2 * time.Second

// Orchestrator is the Orchestrator Runner (C10).
type Orchestrator struct {
	phaseLoader *phase.Loader
	statusStore *status.Store
	dataflow    *dataflow.Manager
	templates   *template.Renderer
	executor    *executor.Executor
	verifier    *verify.Verifier
	gate        *gate.Evaluator
	escalation  *escalation.Engine
	bus         *jobbus.Bus

	verificationRetryCeiling int
}

// New wires one Orchestrator from its component dependencies.
func New(
	phaseLoader *phase.Loader,
	statusStore *status.Store,
	dataflowMgr *dataflow.Manager,
	templates *template.Renderer,
	exec *executor.Executor,
	verifier *verify.Verifier,
	gateEval *gate.Evaluator,
	escalationEngine *escalation.Engine,
	bus *jobbus.Bus,
) *Orchestrator {
	return &Orchestrator{
		phaseLoader:              phaseLoader,
		statusStore:              statusStore,
		dataflow:                 dataflowMgr,
		templates:                templates,
		executor:                 exec,
		verifier:                 verifier,
		gate:                     gateEval,
		escalation:               escalationEngine,
		bus:                      bus,
		verificationRetryCeiling: defaultVerificationRetryCeiling,
	}
}

// RunOptions parameterizes one Run call.
type RunOptions struct {
	ProjectDir  string
	ProjectID   string
	ProjectName string

	// JobID, if set, is used to emit events onto an existing Job.
	// Run creates one via the Bus if empty.
	JobID string

	Resume        bool
	DryRun        bool
	PhaseFilter   string // if set, run exactly this phase id
	ModelOverride string
}

// Run drives project_dir's phases to completion or failure (spec
// §4.10).
func (o *Orchestrator) Run(ctx context.Context, opts RunOptions) (*status.ProjectStatus, error) {
	jobID := opts.JobID
	if jobID == "" && o.bus != nil {
		jobID = o.bus.CreateJob(opts.ProjectDir).ID
	}

	st, err := o.statusStore.LoadOrCreate(opts.ProjectDir, opts.ProjectID)
	if err != nil {
		return nil, err
	}
	if st.Status == status.StateCompleted && !opts.Resume {
		return st, nil
	}

	phases, err := o.phaseLoader.Load(opts.ProjectDir)
	if err != nil {
		return nil, err
	}
	if opts.PhaseFilter != "" {
		phases = filterPhases(phases, opts.PhaseFilter)
	}

	st.Status = status.StateRunning
	if err := o.statusStore.Save(opts.ProjectDir, st); err != nil {
		return nil, err
	}
	o.emit(jobID, jobbus.PhaseEvent{Type: jobbus.EventJobStarted})
	if o.bus != nil {
		o.bus.UpdateStatus(jobID, jobbus.StatusRunning, "")
	}

	doc, _ := adr.Load(opts.ProjectDir) // an ADR is optional context, never fatal

	deque := append([]phase.PhaseConfig{}, phases...)
	for len(deque) > 0 {
		if err := ctx.Err(); err != nil {
			return o.failRun(opts.ProjectDir, st, jobID, err)
		}

		p := deque[0]
		deque = deque[1:]

		if opts.Resume && st.IsComplete(p.ID) {
			o.emit(jobID, jobbus.PhaseEvent{Type: jobbus.EventPhaseSkipped, PhaseID: p.ID})
			continue
		}

		if err := o.statusStore.MarkStarted(opts.ProjectDir, st, p.ID); err != nil {
			return nil, err
		}
		if o.bus != nil {
			o.bus.StartPhase(jobID, p.ID, p.Name)
		}
		o.emit(jobID, jobbus.PhaseEvent{Type: jobbus.EventPhaseStart, PhaseID: p.ID})

		outcome, planEntries, runErr := o.runPhase(ctx, opts, jobID, st, doc, p)
		if runErr != nil {
			return nil, runErr
		}

		if outcome.success {
			if err := o.statusStore.MarkCompleted(opts.ProjectDir, st, p.ID); err != nil {
				return nil, err
			}
			if o.bus != nil {
				o.bus.RecordPhaseResult(jobID, p.ID, jobbus.StatusCompleted, outcome.duration, nil)
			}
			o.emit(jobID, jobbus.PhaseEvent{Type: jobbus.EventPhaseEnd, PhaseID: p.ID, Data: map[string]any{"success": true}})

			if len(planEntries) > 0 {
				completed := completedIDs(st)
				newPhases, err := expandPlan(planEntries, completed)
				if err != nil {
					_ = o.statusStore.MarkFailed(opts.ProjectDir, st, p.ID, err)
					return o.failRun(opts.ProjectDir, st, jobID, err)
				}
				deque = append(newPhases, deque...)
				st.TotalPhases += len(newPhases)
			}
			continue
		}

		if err := o.statusStore.MarkFailed(opts.ProjectDir, st, p.ID, outcome.err); err != nil {
			return nil, err
		}
		if o.bus != nil {
			o.bus.RecordPhaseResult(jobID, p.ID, jobbus.StatusFailed, outcome.duration, nil)
		}
		o.emit(jobID, jobbus.PhaseEvent{Type: jobbus.EventPhaseEnd, PhaseID: p.ID, Data: map[string]any{"success": false}})
		return o.failRun(opts.ProjectDir, st, jobID, outcome.err)
	}

	st.Status = status.StateCompleted
	now := time.Now().UTC()
	st.CompletedAt = &now
	if err := o.statusStore.Save(opts.ProjectDir, st); err != nil {
		return nil, err
	}
	if o.bus != nil {
		o.bus.UpdateStatus(jobID, jobbus.StatusCompleted, "")
	}
	o.emit(jobID, jobbus.PhaseEvent{Type: jobbus.EventJobCompleted})
	return st, nil
}

func (o *Orchestrator) failRun(projectDir string, st *status.ProjectStatus, jobID string, cause error) (*status.ProjectStatus, error) {
	st.Status = status.StateFailed
	now := time.Now().UTC()
	st.CompletedAt = &now
	if cause != nil {
		st.Error = cause.Error()
	}
	_ = o.statusStore.Save(projectDir, st)
	if o.bus != nil {
		msg := ""
		if cause != nil {
			msg = cause.Error()
		}
		o.bus.UpdateStatus(jobID, jobbus.StatusFailed, msg)
	}
	o.emit(jobID, jobbus.PhaseEvent{Type: jobbus.EventJobFailed, Data: map[string]any{"error": errString(cause)}})
	return st, cause
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func (o *Orchestrator) emit(jobID string, event jobbus.PhaseEvent) {
	if o.bus == nil || jobID == "" {
		return
	}
	o.bus.Emit(jobID, event)
}

// phaseOutcome is runPhase's internal verdict, translated by Run into
// status transitions and events.
type phaseOutcome struct {
	success  bool
	duration time.Duration
	err      error
}

// runPhase drives one phase through data-flow prep, template
// rendering, execution, verification, and gating, consulting the
// Escalation Engine on any failure (spec §4.8-§4.10).
func (o *Orchestrator) runPhase(ctx context.Context, opts RunOptions, jobID string, st *status.ProjectStatus, doc *adr.Document, p phase.PhaseConfig) (phaseOutcome, []planEntry, error) {
	phaseDir := filepath.Join(opts.ProjectDir, "phases", p.ID)
	outputDir := filepath.Join(phaseDir, "output")
	if err := os.MkdirAll(phaseDir, 0o755); err != nil {
		return phaseOutcome{}, nil, fmt.Errorf("create phase dir: %w", err)
	}

	if err := o.dataflow.PreparePhaseInputs(opts.ProjectDir, p); err != nil {
		return phaseOutcome{}, nil, fmt.Errorf("prepare phase inputs: %w", err)
	}
	if o.templates != nil {
		if _, err := o.templates.RenderPhase(opts.ProjectDir, opts.ProjectID, opts.ProjectName, doc, p); err != nil {
			return phaseOutcome{}, nil, fmt.Errorf("render phase template: %w", err)
		}
	}

	escState, err := escalation.Load(phaseDir)
	if err != nil {
		return phaseOutcome{}, nil, fmt.Errorf("load escalation state: %w", err)
	}

	model := opts.ModelOverride
	if model == "" {
		model = p.Config.Model()
	}
	verificationAttempt := 0

	for {
		if err := ctx.Err(); err != nil {
			return phaseOutcome{err: err}, nil, nil
		}

		started := time.Now()
		execReq := executor.Request{
			PhaseDir: phaseDir,
			Phase:    withModel(p, model),
			DryRun:   opts.DryRun,
		}
		execRes := o.executor.Execute(ctx, execReq)

		var failure *escalation.FailureRecord
		var planEntries []planEntry

		switch {
		case !execRes.Success:
			failure = &escalation.FailureRecord{Reason: execRes.Error}

		case len(p.Output) > 0:
			verRes := o.verifier.Verify(ctx, p.ID, outputDir, p.Output)
			if !verRes.Success {
				verificationAttempt++
				_ = verify.WriteRetryFile(phaseDir, verRes, verificationAttempt)
				o.emit(jobID, jobbus.PhaseEvent{Type: jobbus.EventVerificationFailed, PhaseID: p.ID, Data: map[string]any{"missing_files": verRes.MissingFiles}})
				if verificationAttempt <= o.verificationRetryCeiling {
					o.recordRetry(opts, jobID, st, p.ID)
					continue
				}
				failure = &escalation.FailureRecord{Reason: "verification failed", MissingFiles: verRes.MissingFiles, SyntaxErrors: verRes.SyntaxErrors}
			} else {
				o.emit(jobID, jobbus.PhaseEvent{Type: jobbus.EventVerificationPassed, PhaseID: p.ID})
			}
		}

		if failure == nil && p.QualityGate != nil {
			gateRes, err := o.gate.Evaluate(ctx, outputDir, p.QualityGate)
			if err != nil {
				failure = &escalation.FailureRecord{Reason: err.Error()}
			} else if !gateRes.Passed {
				failure = &escalation.FailureRecord{Reason: gateRes.Message}
			}
		}

		if failure == nil {
			if execRes.HasPlan {
				entries, err := loadPlan(execRes.PlanPath)
				if err != nil {
					return phaseOutcome{err: err}, nil, nil
				}
				planEntries = entries
			}
			return phaseOutcome{success: true, duration: time.Since(started)}, planEntries, nil
		}

		action, err := o.escalation.RecordFailure(phaseDir, escState, *failure)
		if err != nil {
			return phaseOutcome{err: err}, nil, nil
		}
		if saveErr := escalation.Save(phaseDir, escState); saveErr != nil {
			return phaseOutcome{err: saveErr}, nil, nil
		}

		switch action.Kind {
		case escalation.ActionRetry, escalation.ActionProvideHints:
			o.recordRetry(opts, jobID, st, p.ID)
			continue
		case escalation.ActionModelSwitch:
			model = action.Model
			o.recordRetry(opts, jobID, st, p.ID)
			continue
		case escalation.ActionHumanReview:
			decision := o.pollHumanReview(phaseDir)
			switch decision {
			case "retry", "manual_fix":
				o.recordRetry(opts, jobID, st, p.ID)
				continue
			case "skip":
				return phaseOutcome{success: true, duration: time.Since(started)}, nil, nil
			default:
				return phaseOutcome{success: false, duration: time.Since(started), err: herrors.Wrap(herrors.ErrHumanReviewRequested, "phase %s blocked on human review", p.ID)}, nil, nil
			}
		default: // ActionAbort
			return phaseOutcome{success: false, duration: time.Since(started), err: fmt.Errorf("%s: %w", failure.Reason, herrors.ErrGateFailure)}, nil, nil
		}
	}
}

// recordRetry bumps the phase's persisted retry counter and emits
// phase_retry, best-effort (a failure to persist here is not fatal to
// the retry itself).
func (o *Orchestrator) recordRetry(opts RunOptions, jobID string, st *status.ProjectStatus, phaseID string) {
	retries, err := o.statusStore.IncrementRetries(opts.ProjectDir, st, phaseID)
	if err != nil {
		return
	}
	o.emit(jobID, jobbus.PhaseEvent{Type: jobbus.EventPhaseRetry, PhaseID: phaseID, Data: map[string]any{"retries": retries}})
}

// pollHumanReview waits for a stage-2 human response, returning its
// decision or "" if none arrived before the bounded wait elapses.
func (o *Orchestrator) pollHumanReview(phaseDir string) string {
	resp, err := escalation.WaitForHumanResponse(phaseDir, defaultHumanReviewPollAttempts*humanReviewPollInterval)
	if err != nil || resp == nil {
		return ""
	}
	return resp.Decision
}

func withModel(p phase.PhaseConfig, model string) phase.PhaseConfig {
	if model == "" {
		return p
	}
	cfg := phase.Config{}
	for k, v := range p.Config {
		cfg[k] = v
	}
	cfg["model"] = model
	p.Config = cfg
	return p
}

func completedIDs(st *status.ProjectStatus) map[string]bool {
	out := make(map[string]bool, len(st.Phases))
	for id, p := range st.Phases {
		if p.Status == status.StateCompleted {
			out[id] = true
		}
	}
	return out
}

func filterPhases(phases []phase.PhaseConfig, id string) []phase.PhaseConfig {
	for _, p := range phases {
		if p.ID == id {
			return []phase.PhaseConfig{p}
		}
	}
	return nil
}
