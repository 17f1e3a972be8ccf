package evolution

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/helix-run/helix/internal/cmdrunner"
	"github.com/helix-run/helix/internal/config"
	"github.com/helix-run/helix/internal/herrors"
	"github.com/helix-run/helix/internal/vcs"
)

// healthPollInterval and healthPollAttempts bound how long full_deploy
// and full_integration wait for a control-script restart to come back
// healthy (spec §4.12: "wait a few seconds; poll a /health endpoint").
const (
	healthPollInterval = 500 * time.Millisecond
	healthPollAttempts = 10
)

// Deployer is the Evolution Deployer (C12): syncs a project's produced
// files into a twin working tree, restarts it, and health-checks it.
type Deployer struct {
	twin   config.ControlSystemConfig
	runner cmdrunner.Runner
	git    *vcs.Git
	client *http.Client
}

// NewDeployer returns a Deployer bound to twin. A nil runner defaults
// to the real subprocess-backed Runner.
func NewDeployer(twin config.ControlSystemConfig, runner cmdrunner.Runner) *Deployer {
	if runner == nil {
		runner = cmdrunner.NewExec()
	}
	return &Deployer{
		twin:   twin,
		runner: runner,
		git:    vcs.New(twin.Root, runner),
		client: &http.Client{Timeout: 5 * time.Second},
	}
}

// PreDeploySync fetches and hard-resets the twin tree to the production
// baseline branch (spec §4.12: "errors abort").
func (d *Deployer) PreDeploySync(ctx context.Context) error {
	if err := d.git.Fetch(ctx, d.twin.GitRemote); err != nil {
		return err
	}
	return d.git.ResetHard(ctx, "origin/"+d.twin.BaselineBranch)
}

// Deploy copies every relative path under project's new/ and modified/
// mirrors into the identical relative path inside the twin root,
// creating parent directories as needed and failing fast on the first
// I/O error (spec §4.12). On success the project is marked deployed.
func (d *Deployer) Deploy(p *Project) error {
	for _, src := range []string{p.NewDir(), p.ModifiedDir()} {
		if err := copyTreeInto(src, d.twin.Root); err != nil {
			return herrors.Wrap(herrors.ErrExternalTool, "deploy %s: %v", src, err)
		}
	}
	p.Status = StatusDeployed
	return SaveProject(p)
}

// RestartTestSystem invokes the twin's control script with "restart",
// waits, then polls /health until it reports 200 or the poll budget is
// exhausted (spec §4.12).
func (d *Deployer) RestartTestSystem(ctx context.Context) error {
	return restartAndHealthCheck(ctx, d.runner, d.client, d.twin)
}

// Rollback hard-resets the twin to its baseline branch, restarts it,
// and health-checks it.
func (d *Deployer) Rollback(ctx context.Context) error {
	if err := d.git.ResetHard(ctx, "origin/"+d.twin.BaselineBranch); err != nil {
		return err
	}
	return d.RestartTestSystem(ctx)
}

// FullDeploy runs sync -> deploy -> restart -> health; any failure
// triggers a rollback attempt before returning the original failure
// (spec §4.12: "full_deploy ... any failure triggers rollback").
func (d *Deployer) FullDeploy(ctx context.Context, p *Project) error {
	if err := d.PreDeploySync(ctx); err != nil {
		return err
	}
	if err := d.Deploy(p); err != nil {
		_ = d.Rollback(ctx)
		return err
	}
	if err := d.RestartTestSystem(ctx); err != nil {
		_ = d.Rollback(ctx)
		return err
	}
	return nil
}

// restartAndHealthCheck is shared by the Deployer and Integrator: both
// drive the same control-script + /health contract (spec §6) against
// different trees.
func restartAndHealthCheck(ctx context.Context, runner cmdrunner.Runner, client *http.Client, sys config.ControlSystemConfig) error {
	res, err := runner.Run(ctx, cmdrunner.Spec{
		Dir:  sys.Root,
		Name: sys.ControlScript,
		Args: []string{"restart"},
	})
	if err != nil || !res.Success {
		return herrors.Wrap(herrors.ErrExternalTool, "control script restart failed: %v (exit %d)", err, res.ExitCode)
	}

	grace := time.Duration(sys.RestartGraceSecs) * time.Second
	if grace > 0 {
		select {
		case <-time.After(grace):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	var lastErr error
	for attempt := 0; attempt < healthPollAttempts; attempt++ {
		if err := pollHealth(ctx, client, sys.HealthURL); err == nil {
			return nil
		} else {
			lastErr = err
		}
		select {
		case <-time.After(healthPollInterval):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return herrors.Wrap(herrors.ErrExternalTool, "health check never succeeded: %v", lastErr)
}

func pollHealth(ctx context.Context, client *http.Client, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build health request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health endpoint returned %d", resp.StatusCode)
	}
	return nil
}

// copyTreeInto copies every file under src to the identical relative
// path inside dest, creating parent directories as needed. A missing
// src is a silent no-op (a project may declare only new/ or only
// modified/).
func copyTreeInto(src, dest string) error {
	if _, err := os.Stat(src); os.IsNotExist(err) {
		return nil
	}
	return filepath.WalkDir(src, func(path string, entry os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		target := filepath.Join(dest, rel)
		if entry.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		return copyFile(path, target)
	})
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	info, err := in.Stat()
	if err != nil {
		return err
	}
	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode())
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}
