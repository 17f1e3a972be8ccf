package evolution

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/helix-run/helix/internal/cmdrunner"
	"github.com/helix-run/helix/internal/config"
	"github.com/helix-run/helix/internal/vcs"
)

// Integrator is the Evolution Integrator (C14): snapshots production
// via a git tag, copies validated artifacts in, commits, restarts, and
// can roll back to the snapshot on failure.
type Integrator struct {
	prod        config.ControlSystemConfig
	tagPrefix   string
	runner      cmdrunner.Runner
	git         *vcs.Git
	client      *http.Client
	recordedTag string
}

// NewIntegrator returns an Integrator bound to prod. A nil runner
// defaults to the real subprocess-backed Runner.
func NewIntegrator(prod config.ControlSystemConfig, tagPrefix string, runner cmdrunner.Runner) *Integrator {
	if runner == nil {
		runner = cmdrunner.NewExec()
	}
	return &Integrator{
		prod:      prod,
		tagPrefix: tagPrefix,
		runner:    runner,
		git:       vcs.New(prod.Root, runner),
		client:    &http.Client{Timeout: 5 * time.Second},
	}
}

// PreIntegrationBackup stashes any uncommitted changes and records an
// annotated tag over the production tree's current state (spec §4.12).
func (i *Integrator) PreIntegrationBackup(ctx context.Context) (string, error) {
	if err := i.git.StashPush(ctx, "helix pre-integration backup"); err != nil {
		return "", err
	}
	tag := fmt.Sprintf("%s-%d", i.tagPrefix, time.Now().UTC().Unix())
	if err := i.git.TagAnnotated(ctx, tag, "HELIX pre-integration snapshot"); err != nil {
		return "", err
	}
	i.recordedTag = tag
	return tag, nil
}

// Integrate copies a project's new/modified mirrors into the
// production tree (same semantics as Deployer.Deploy), then stages and
// commits (spec §4.12).
func (i *Integrator) Integrate(ctx context.Context, p *Project) error {
	for _, src := range []string{p.NewDir(), p.ModifiedDir()} {
		if err := copyTreeInto(src, i.prod.Root); err != nil {
			return err
		}
	}
	if err := i.git.AddAll(ctx); err != nil {
		return err
	}
	if err := i.git.Commit(ctx, fmt.Sprintf("Integration: %s", p.Name)); err != nil {
		return err
	}
	p.Status = StatusIntegrated
	return SaveProject(p)
}

// PostIntegrationRestart invokes the production control script and
// health-checks it.
func (i *Integrator) PostIntegrationRestart(ctx context.Context) error {
	return restartAndHealthCheck(ctx, i.runner, i.client, i.prod)
}

// Rollback restores production to the recorded tag, or to the most
// recent tag matching the configured prefix if none was recorded in
// this process (e.g. a separate `helix` invocation is rolling back),
// then restarts and health-checks (spec §4.12: "explicit rollback is
// always safe to call").
func (i *Integrator) Rollback(ctx context.Context) error {
	tag := i.recordedTag
	if tag == "" {
		found, err := i.git.LatestTag(ctx, i.tagPrefix+"-*")
		if err != nil {
			return err
		}
		tag = found
	}
	if err := i.git.ResetHard(ctx, tag); err != nil {
		return err
	}
	return restartAndHealthCheck(ctx, i.runner, i.client, i.prod)
}

// FullIntegration runs backup -> integrate -> restart, rolling back and
// returning the failure if any step fails (spec §4.12).
func (i *Integrator) FullIntegration(ctx context.Context, p *Project) error {
	if _, err := i.PreIntegrationBackup(ctx); err != nil {
		return err
	}
	if err := i.Integrate(ctx, p); err != nil {
		_ = i.Rollback(ctx)
		return err
	}
	if err := i.PostIntegrationRestart(ctx); err != nil {
		_ = i.Rollback(ctx)
		return err
	}
	return nil
}
