// Package executor implements the Phase Executor (C9): running one
// phase's agent invocation and detecting whether it produced a plan to
// decompose, without making any retry or gate decisions itself (those
// live in the Orchestrator, C6, and C8).
package executor

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/helix-run/helix/internal/agentrunner"
	"github.com/helix-run/helix/internal/cmdrunner"
	"github.com/helix-run/helix/internal/phase"
)

const planFileName = "plan.yaml"

// Result is the outcome of executing one phase (spec §4.9).
type Result struct {
	Success     bool
	StartedAt   time.Time
	CompletedAt time.Time
	Duration    time.Duration
	AgentResult *agentrunner.Result
	Error       string

	HasPlan  bool
	PlanPath string
}

// Executor is the Phase Executor.
type Executor struct {
	agent *agentrunner.Runner
}

func New(agent *agentrunner.Runner) *Executor {
	return &Executor{agent: agent}
}

// Request bundles execute's parameters (spec §4.9's contract).
type Request struct {
	PhaseDir string
	Phase    phase.PhaseConfig
	Timeout  time.Duration
	DryRun   bool
	OnLine   cmdrunner.LineSink // non-nil selects streaming mode
}

// Execute runs one phase to completion: ensuring its directories exist,
// invoking the agent (or simulating it in dry-run mode), and detecting
// a decomposition plan in its output.
func (e *Executor) Execute(ctx context.Context, req Request) Result {
	started := time.Now().UTC()

	if err := ensureDirs(req.PhaseDir); err != nil {
		return Result{
			Success:     false,
			StartedAt:   started,
			CompletedAt: time.Now().UTC(),
			Error:       err.Error(),
		}
	}

	if req.DryRun {
		return e.executeDryRun(req, started)
	}

	runReq := agentrunner.RunRequest{
		PhaseDir: req.PhaseDir,
		Model:    req.Phase.Config.Model(),
		Timeout:  req.Timeout,
	}

	var agentResult agentrunner.Result
	var err error
	if req.OnLine != nil {
		agentResult, err = e.agent.RunStreaming(ctx, runReq, req.OnLine)
	} else {
		agentResult, err = e.agent.Run(ctx, runReq)
	}
	completed := time.Now().UTC()

	if err != nil {
		return Result{
			Success:     false,
			StartedAt:   started,
			CompletedAt: completed,
			Duration:    completed.Sub(started),
			AgentResult: &agentResult,
			Error:       err.Error(),
		}
	}

	result := Result{
		Success:     agentResult.Success,
		StartedAt:   started,
		CompletedAt: completed,
		Duration:    completed.Sub(started),
		AgentResult: &agentResult,
	}
	if !agentResult.Success {
		result.Error = agentResult.Error
		if result.Error == "" {
			result.Error = "agent exited with a non-zero status"
		}
		return result
	}

	if req.Phase.Config.Decompose() {
		planPath := filepath.Join(req.PhaseDir, "output", planFileName)
		if _, statErr := os.Stat(planPath); statErr == nil {
			result.HasPlan = true
			result.PlanPath = planPath
		}
	}

	return result
}

// executeDryRun simulates a phase run without invoking the agent (spec
// §4.9: "sleep briefly and return success with a synthetic agent
// result").
func (e *Executor) executeDryRun(req Request, started time.Time) Result {
	time.Sleep(50 * time.Millisecond)
	completed := time.Now().UTC()
	return Result{
		Success:     true,
		StartedAt:   started,
		CompletedAt: completed,
		Duration:    completed.Sub(started),
		AgentResult: &agentrunner.Result{
			Success: true,
			Stdout:  "dry run: phase " + req.Phase.ID + " skipped",
		},
	}
}

func ensureDirs(phaseDir string) error {
	for _, sub := range []string{"input", "output"} {
		if err := os.MkdirAll(filepath.Join(phaseDir, sub), 0o755); err != nil {
			return err
		}
	}
	return nil
}
