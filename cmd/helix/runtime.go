package main

import (
	"github.com/helix-run/helix/internal/agentrunner"
	"github.com/helix-run/helix/internal/cmdrunner"
	"github.com/helix-run/helix/internal/config"
	"github.com/helix-run/helix/internal/dataflow"
	"github.com/helix-run/helix/internal/escalation"
	"github.com/helix-run/helix/internal/executor"
	"github.com/helix-run/helix/internal/gate"
	"github.com/helix-run/helix/internal/jobbus"
	"github.com/helix-run/helix/internal/orchestrator"
	"github.com/helix-run/helix/internal/phase"
	"github.com/helix-run/helix/internal/status"
	"github.com/helix-run/helix/internal/template"
	"github.com/helix-run/helix/internal/verify"
)

// buildLocalOrchestrator wires a one-shot, in-process Orchestrator from
// the operator's ~/.helix/config.toml, for use when --server is not
// given.
func buildLocalOrchestrator() (*orchestrator.Orchestrator, *jobbus.Bus, error) {
	cfg, err := config.Global()
	if err != nil {
		return nil, nil, err
	}
	diag.Debug("loaded operator config", "agent_binary", cfg.Agent.Binary)

	runner := cmdrunner.NewExec()
	bus := jobbus.New()
	orch := orchestrator.New(
		phase.NewLoader(""),
		status.NewStore(),
		dataflow.New(),
		template.New(""),
		executor.New(agentrunner.New(cfg.Agent, runner)),
		verify.New(runner),
		gate.New(runner),
		escalation.New(cfg.Escalation),
		bus,
	)
	return orch, bus, nil
}
