// Package agentrunner implements the Agent Runner (C5): spawning the
// external coding-agent CLI against one phase directory, buffered or
// streaming, and recovering whatever structured output it reported.
package agentrunner

import (
	"context"
	"fmt"
	"strings"

	"github.com/helix-run/helix/internal/cmdrunner"
	"github.com/helix-run/helix/internal/config"
)

// Runner is the Agent Runner.
type Runner struct {
	cfg    config.AgentConfig
	runner cmdrunner.Runner
}

func New(cfg config.AgentConfig, runner cmdrunner.Runner) *Runner {
	if runner == nil {
		runner = cmdrunner.NewExec()
	}
	return &Runner{cfg: cfg, runner: runner}
}

// Run invokes the agent in buffered mode: the full transcript is only
// available once the child has exited.
func (r *Runner) Run(ctx context.Context, req RunRequest) (Result, error) {
	return r.run(ctx, req, nil)
}

// RunStreaming invokes the agent, calling onLine for every full line as
// it arrives on stdout or stderr.
func (r *Runner) RunStreaming(ctx context.Context, req RunRequest, onLine cmdrunner.LineSink) (Result, error) {
	return r.run(ctx, req, onLine)
}

func (r *Runner) run(ctx context.Context, req RunRequest, onLine cmdrunner.LineSink) (Result, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = r.cfg.DefaultTimeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	name, args := r.commandLine()
	prompt := resolvePrompt(req.PhaseDir, req.Prompt)
	env := buildEnv(r.cfg, req.Model, req.EnvOverrides)

	outcome, err := r.runner.Run(ctx, cmdrunner.Spec{
		Dir:    req.PhaseDir,
		Env:    env,
		Name:   name,
		Args:   args,
		Stdin:  prompt,
		OnLine: onLine,
	})
	if err != nil {
		return Result{Success: false, Error: err.Error()}, nil
	}

	result := Result{
		Success:  outcome.Success,
		ExitCode: outcome.ExitCode,
		Stdout:   outcome.Stdout,
		Stderr:   outcome.Stderr,
		Duration: outcome.Duration,
	}
	if !outcome.Success && outcome.ExitCode == -1 {
		result.Error = describeFailure(ctx, outcome)
	}

	result.StructuredOutput = parseStructuredOutput(req.PhaseDir, outcome.Stdout)
	result.TokensUsed, result.EstimatedCostUSD = extractAccounting(result.StructuredOutput)

	return result, nil
}

// commandLine builds the argv for the configured agent binary, appending
// its non-interactive flags and an optional line-buffering shim.
func (r *Runner) commandLine() (string, []string) {
	if r.cfg.LineBufferShim == "" {
		return r.cfg.Binary, r.cfg.NonInteractiveFlags
	}
	shim := strings.Fields(r.cfg.LineBufferShim)
	args := append(append([]string{}, shim[1:]...), r.cfg.Binary)
	args = append(args, r.cfg.NonInteractiveFlags...)
	return shim[0], args
}

func describeFailure(ctx context.Context, outcome cmdrunner.Result) string {
	if ctx.Err() == context.DeadlineExceeded {
		return fmt.Sprintf("agent timed out after %s", outcome.Duration)
	}
	if ctx.Err() == context.Canceled {
		return "agent invocation cancelled"
	}
	return "agent process exited abnormally"
}
