// Package gate implements the Quality Gate Evaluator (C6): pass/fail
// checks run against a phase's output after the Post-Phase Verifier has
// passed it and before the Escalation Engine sees the result. Gates are
// data only; no control-flow decisions live here.
package gate

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/helix-run/helix/internal/cmdrunner"
	"github.com/helix-run/helix/internal/phase"
)

// testsPassCeiling bounds how long a tests_pass command may run (spec
// §4.6: "a fixed ceiling, ≈5 minutes").
const testsPassCeiling = 5 * time.Minute

// Result is the outcome of one gate evaluation (spec §4.6).
type Result struct {
	Passed   bool
	GateType phase.GateType
	Message  string
	Details  map[string]any
}

// Evaluator is the Quality Gate Evaluator.
type Evaluator struct {
	runner cmdrunner.Runner
}

func New(runner cmdrunner.Runner) *Evaluator {
	if runner == nil {
		runner = cmdrunner.NewExec()
	}
	return &Evaluator{runner: runner}
}

// Evaluate dispatches to the variant named by gate.Type.
func (e *Evaluator) Evaluate(ctx context.Context, phaseDir string, g *phase.QualityGate) (Result, error) {
	if g == nil {
		return Result{Passed: true, Message: "no quality gate declared"}, nil
	}

	switch g.Type {
	case phase.GateFilesExist:
		return e.evaluateFilesExist(phaseDir, g.Files), nil
	case phase.GateSyntaxCheck:
		return e.evaluateSyntaxCheck(ctx, phaseDir, g.Language), nil
	case phase.GateTestsPass:
		return e.evaluateTestsPass(ctx, phaseDir, g.Command), nil
	case phase.GateReviewApproved:
		return e.evaluateReviewApproved(phaseDir, g.File), nil
	default:
		return Result{}, fmt.Errorf("unknown quality gate type %q", g.Type)
	}
}

func (e *Evaluator) evaluateFilesExist(phaseDir string, files []string) Result {
	var missing []string
	for _, f := range files {
		if _, err := os.Stat(filepath.Join(phaseDir, f)); err != nil {
			missing = append(missing, f)
		}
	}
	if len(missing) == 0 {
		return Result{Passed: true, GateType: phase.GateFilesExist, Message: "all declared files exist"}
	}
	return Result{
		Passed:   false,
		GateType: phase.GateFilesExist,
		Message:  fmt.Sprintf("%d declared file(s) missing", len(missing)),
		Details:  map[string]any{"missing": missing},
	}
}

type syntaxChecker struct {
	name string
	args []string
}

// syntaxCheckers maps a gate language to the toolchain invocation that
// performs a no-emit / dry-run syntax check (spec §4.6). Python is run
// like the others, as a `python3 -m py_compile` subprocess.
var syntaxCheckers = map[string]syntaxChecker{
	"python":     {name: "python3", args: []string{"-m", "py_compile"}},
	"typescript": {name: "tsc", args: []string{"--noEmit"}},
	"javascript": {name: "node", args: []string{"--check"}},
	"go":         {name: "go", args: []string{"build", "-o", os.DevNull, "./..."}},
	"rust":       {name: "cargo", args: []string{"check"}},
}

func (e *Evaluator) evaluateSyntaxCheck(ctx context.Context, phaseDir, language string) Result {
	checker, ok := syntaxCheckers[language]
	if !ok {
		return Result{
			Passed:   true,
			GateType: phase.GateSyntaxCheck,
			Message:  fmt.Sprintf("language %q has no syntax checker; passing informationally", language),
		}
	}

	args := checker.args
	if language == "python" || language == "typescript" || language == "javascript" {
		files, err := sourceFiles(phaseDir, extensionFor(language))
		if err != nil {
			return Result{Passed: false, GateType: phase.GateSyntaxCheck, Message: err.Error()}
		}
		if len(files) == 0 {
			return Result{Passed: true, GateType: phase.GateSyntaxCheck, Message: "no source files to check"}
		}
		args = append(append([]string{}, args...), files...)
	}

	outcome, err := e.runner.Run(ctx, cmdrunner.Spec{Dir: phaseDir, Name: checker.name, Args: args})
	if err != nil {
		return Result{
			Passed:   false,
			GateType: phase.GateSyntaxCheck,
			Message:  fmt.Sprintf("toolchain %q is unavailable: %v", checker.name, err),
		}
	}
	if !outcome.Success {
		return Result{
			Passed:   false,
			GateType: phase.GateSyntaxCheck,
			Message:  fmt.Sprintf("%s syntax check failed", language),
			Details:  map[string]any{"stdout": outcome.Stdout, "stderr": outcome.Stderr},
		}
	}
	return Result{Passed: true, GateType: phase.GateSyntaxCheck, Message: fmt.Sprintf("%s syntax check passed", language)}
}

func extensionFor(language string) string {
	switch language {
	case "python":
		return ".py"
	case "typescript":
		return ".ts"
	case "javascript":
		return ".js"
	default:
		return ""
	}
}

func sourceFiles(dir, ext string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && filepath.Ext(path) == ext {
			rel, relErr := filepath.Rel(dir, path)
			if relErr != nil {
				return relErr
			}
			files = append(files, rel)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk phase dir for %s files: %w", ext, err)
	}
	return files, nil
}

func (e *Evaluator) evaluateTestsPass(ctx context.Context, phaseDir, command string) Result {
	ctx, cancel := context.WithTimeout(ctx, testsPassCeiling)
	defer cancel()

	outcome, err := e.runner.Run(ctx, cmdrunner.Spec{Dir: phaseDir, Name: "sh", Args: []string{"-c", command}})
	if err != nil {
		return Result{Passed: false, GateType: phase.GateTestsPass, Message: err.Error()}
	}
	if !outcome.Success {
		return Result{
			Passed:   false,
			GateType: phase.GateTestsPass,
			Message:  fmt.Sprintf("test command exited %d", outcome.ExitCode),
			Details:  map[string]any{"stdout": outcome.Stdout, "stderr": outcome.Stderr},
		}
	}
	return Result{Passed: true, GateType: phase.GateTestsPass, Message: "tests passed"}
}

// reviewFile is the JSON shape read by review_approved (spec §4.6,
// extended per §6 with approver/comment for human-in-the-loop gates).
type reviewFile struct {
	Approved   bool   `json:"approved"`
	ApprovedBy string `json:"approved_by,omitempty"`
	Comment    string `json:"comment,omitempty"`
}

func (e *Evaluator) evaluateReviewApproved(phaseDir, file string) Result {
	data, err := os.ReadFile(filepath.Join(phaseDir, file))
	if err != nil {
		return Result{Passed: false, GateType: phase.GateReviewApproved, Message: fmt.Sprintf("review file %s not found", file)}
	}

	var rf reviewFile
	if err := json.Unmarshal(data, &rf); err != nil {
		return Result{Passed: false, GateType: phase.GateReviewApproved, Message: fmt.Sprintf("review file %s is not valid JSON: %v", file, err)}
	}

	details := map[string]any{}
	if rf.ApprovedBy != "" {
		details["approved_by"] = rf.ApprovedBy
	}
	if rf.Comment != "" {
		details["comment"] = rf.Comment
	}

	if rf.Approved {
		return Result{Passed: true, GateType: phase.GateReviewApproved, Message: "review approved", Details: details}
	}
	return Result{Passed: false, GateType: phase.GateReviewApproved, Message: "review not approved", Details: details}
}
