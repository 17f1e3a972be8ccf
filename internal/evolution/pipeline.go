package evolution

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/helix-run/helix/internal/adr"
	"github.com/helix-run/helix/internal/cmdrunner"
	"github.com/helix-run/helix/internal/config"
	"github.com/helix-run/helix/internal/herrors"
	"github.com/helix-run/helix/internal/jobbus"
	"github.com/helix-run/helix/internal/orchestrator"
	"github.com/helix-run/helix/internal/status"
)

// Pipeline composes the Orchestrator with the Deployer, Validator, and
// Integrator into run_evolution_pipeline (spec §4.12).
type Pipeline struct {
	orchestrator *orchestrator.Orchestrator
	statusStore  *status.Store
	deployer     *Deployer
	validator    *Validator
	integrator   *Integrator
	bus          *jobbus.Bus

	testCommand string
}

// New wires a Pipeline from its component dependencies plus the
// evolution-specific operator config (twin/production locations, tag
// prefix).
func New(
	orch *orchestrator.Orchestrator,
	statusStore *status.Store,
	bus *jobbus.Bus,
	runner cmdrunner.Runner,
	evoCfg config.EvolutionConfig,
	testCommand string,
) *Pipeline {
	return &Pipeline{
		orchestrator: orch,
		statusStore:  statusStore,
		deployer:     NewDeployer(evoCfg.Twin, runner),
		validator:    NewValidator(runner),
		integrator:   NewIntegrator(evoCfg.Production, evoCfg.TagPrefix, runner),
		bus:          bus,
		testCommand:  testCommand,
	}
}

// RunOptions parameterizes one pipeline run.
type RunOptions struct {
	ProjectDir    string
	ProjectID     string
	ProjectName   string
	EvolutionDir  string // EvolutionProject directory (spec.yaml, new/, modified/, status.json)
	BaselinePath  string // optional baseline.json; "" skips baseline comparison
	PermSkipsPath string // optional .permanent_skips file
}

// Outcome is the pipeline's final report.
type Outcome struct {
	Status     ProjectStatus
	Validation *Result
	Message    string
}

// Run executes run_evolution_pipeline (spec §4.12 steps 1-6): execute
// the project's remaining phases, deploy to the twin, validate, and
// integrate when validation passes and auto_integrate is on.
func (p *Pipeline) Run(ctx context.Context, opts RunOptions) (Outcome, error) {
	evo, err := LoadProject(opts.EvolutionDir)
	if err != nil {
		return Outcome{}, err
	}

	jobID := ""
	if p.bus != nil {
		jobID = p.bus.CreateJob(opts.ProjectDir).ID
		p.bus.UpdateStatus(jobID, jobbus.StatusRunning, "")
	}
	p.emit(jobID, jobbus.EventPipelineStarted, "")

	// Step 1: compute pending phases; skip the execute step entirely if
	// the project already has none outstanding.
	st, err := p.statusStore.Load(opts.ProjectDir)
	if err != nil {
		return p.fail(jobID, evo, err)
	}
	pending := st == nil || st.CompletedPhases < st.TotalPhases || st.Status != status.StateCompleted

	if !pending {
		p.emit(jobID, jobbus.EventStepSkipped, "execute")
	} else {
		p.emit(jobID, jobbus.EventStepStarted, "execute")
		evo.Status = StatusDeveloping
		_ = SaveProject(evo)

		if _, err := p.orchestrator.Run(ctx, orchestrator.RunOptions{
			ProjectDir:  opts.ProjectDir,
			ProjectID:   opts.ProjectID,
			ProjectName: opts.ProjectName,
			JobID:       jobID,
			Resume:      true,
		}); err != nil {
			p.emit(jobID, jobbus.EventStepFailed, "execute")
			return p.fail(jobID, evo, err)
		}
		p.emit(jobID, jobbus.EventStepCompleted, "execute")
	}

	evo.Status = StatusReady
	_ = SaveProject(evo)

	// Step 4: full deploy.
	p.emit(jobID, jobbus.EventStepStarted, "deploy")
	if err := p.deployer.FullDeploy(ctx, evo); err != nil {
		p.emit(jobID, jobbus.EventStepFailed, "deploy")
		return p.fail(jobID, evo, err)
	}
	p.emit(jobID, jobbus.EventStepCompleted, "deploy")

	// Step 5: validate.
	evo.Status = StatusValidating
	_ = SaveProject(evo)
	p.emit(jobID, jobbus.EventStepStarted, "validate")

	result, err := p.validate(ctx, opts)
	if err != nil {
		p.emit(jobID, jobbus.EventStepFailed, "validate")
		return p.fail(jobID, evo, err)
	}
	if p.bus != nil && jobID != "" {
		p.bus.Emit(jobID, jobbus.PhaseEvent{
			Type: jobbus.EventStepCompleted,
			Data: map[string]any{"step": "validate", "passed": result.Passed, "regressions": result.Regressions, "new_test_failures": result.NewTestFailures},
		})
	}

	if !result.Passed {
		evo.Status = StatusFailed
		_ = SaveProject(evo)
		msg := fmt.Sprintf("validation failed: %d regression(s), %d new test failure(s)", len(result.Regressions), len(result.NewTestFailures))
		p.emit(jobID, jobbus.EventPipelineFailed, msg)
		if p.bus != nil {
			p.bus.UpdateStatus(jobID, jobbus.StatusFailed, msg)
		}
		return Outcome{Status: StatusFailed, Validation: &result, Message: msg}, herrors.Wrap(herrors.ErrGateFailure, "%s", msg)
	}

	if !evo.AutoIntegrate {
		evo.Status = StatusReady
		_ = SaveProject(evo)
		p.emit(jobID, jobbus.EventPipelineCompleted, "")
		if p.bus != nil {
			p.bus.UpdateStatus(jobID, jobbus.StatusCompleted, "")
		}
		return Outcome{Status: StatusReady, Validation: &result, Message: "validation passed; call integrate to complete"}, nil
	}

	// Step 6: full integration.
	p.emit(jobID, jobbus.EventStepStarted, "integrate")
	if err := p.integrator.FullIntegration(ctx, evo); err != nil {
		p.emit(jobID, jobbus.EventStepFailed, "integrate")
		return p.fail(jobID, evo, err)
	}
	p.emit(jobID, jobbus.EventStepCompleted, "integrate")

	p.emit(jobID, jobbus.EventPipelineCompleted, "")
	if p.bus != nil {
		p.bus.UpdateStatus(jobID, jobbus.StatusCompleted, "")
	}
	return Outcome{Status: StatusIntegrated, Validation: &result, Message: "integrated"}, nil
}

func (p *Pipeline) validate(ctx context.Context, opts RunOptions) (Result, error) {
	run, err := p.validator.RunTests(ctx, opts.ProjectDir, p.testCommand)
	if err != nil {
		return Result{}, err
	}

	var baseline *Baseline
	if opts.BaselinePath != "" {
		baseline, err = LoadBaseline(opts.BaselinePath)
		if err != nil {
			return Result{}, err
		}
	}

	var permSkips map[string]bool
	if opts.PermSkipsPath != "" {
		permSkips, err = LoadPermanentSkips(opts.PermSkipsPath)
		if err != nil {
			return Result{}, err
		}
	}

	var adrTestFiles []string
	if doc, err := adr.Load(opts.ProjectDir); err == nil {
		adrTestFiles = testFiles(doc)
	}

	return Evaluate(run.Failed, run.Total, run.Passed, baseline, permSkips, adrTestFiles), nil
}

// testFiles picks out the ADR's declared files that look like tests,
// the closest available signal to the spec's optional "adr_test_files"
// validator input since the ADR schema has no dedicated field for it.
func testFiles(doc *adr.Document) []string {
	var out []string
	for _, f := range append(append([]string{}, doc.Files.Create...), doc.Files.Modify...) {
		base := filepath.Base(f)
		if strings.Contains(base, "test") {
			out = append(out, f)
		}
	}
	return out
}

func (p *Pipeline) emit(jobID string, eventType jobbus.EventType, step string) {
	if p.bus == nil || jobID == "" {
		return
	}
	data := map[string]any{}
	if step != "" {
		data["step"] = step
	}
	p.bus.Emit(jobID, jobbus.PhaseEvent{Type: eventType, Data: data, Timestamp: time.Now().UTC()})
}

func (p *Pipeline) fail(jobID string, evo *Project, cause error) (Outcome, error) {
	evo.Status = StatusFailed
	_ = SaveProject(evo)
	msg := cause.Error()
	p.emit(jobID, jobbus.EventPipelineFailed, "")
	if p.bus != nil {
		p.bus.UpdateStatus(jobID, jobbus.StatusFailed, msg)
	}
	return Outcome{Status: StatusFailed, Message: msg}, cause
}
