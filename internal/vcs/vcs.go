// Package vcs wraps the git operations the evolution pipeline needs
// against the twin and production trees (spec §6's VCS contract). Every
// invocation goes through cmdrunner.Runner so tests can fake git
// without a real repository.
package vcs

import (
	"context"
	"fmt"
	"strings"

	"github.com/helix-run/helix/internal/cmdrunner"
	"github.com/helix-run/helix/internal/herrors"
)

// Git invokes git against one working tree.
type Git struct {
	Dir    string
	runner cmdrunner.Runner
}

// New returns a Git bound to dir. A nil runner defaults to the real
// subprocess-backed Runner.
func New(dir string, runner cmdrunner.Runner) *Git {
	if runner == nil {
		runner = cmdrunner.NewExec()
	}
	return &Git{Dir: dir, runner: runner}
}

func (g *Git) run(ctx context.Context, op string, args ...string) (cmdrunner.Result, error) {
	res, err := g.runner.Run(ctx, cmdrunner.Spec{Dir: g.Dir, Name: "git", Args: args})
	if err != nil {
		return res, herrors.Wrap(herrors.ErrExternalTool, "git %s: %v", op, err)
	}
	if !res.Success {
		return res, herrors.Wrap(herrors.ErrExternalTool, "git %s: exit %d: %s", op, res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	return res, nil
}

// Fetch runs `git fetch <remote>`.
func (g *Git) Fetch(ctx context.Context, remote string) error {
	_, err := g.run(ctx, "fetch", "fetch", remote)
	return err
}

// ResetHard runs `git reset --hard <ref>`.
func (g *Git) ResetHard(ctx context.Context, ref string) error {
	_, err := g.run(ctx, "reset --hard", "reset", "--hard", ref)
	return err
}

// StashPush runs `git stash push -m <message>`. Returns nil if there
// was nothing to stash (git exits non-zero-but-benign in some versions
// for an empty worktree; callers treat that as a no-op, not a failure).
func (g *Git) StashPush(ctx context.Context, message string) error {
	res, err := g.runner.Run(ctx, cmdrunner.Spec{Dir: g.Dir, Name: "git", Args: []string{"stash", "push", "-m", message}})
	if err != nil {
		return herrors.Wrap(herrors.ErrExternalTool, "git stash push: %v", err)
	}
	if !res.Success && !strings.Contains(res.Stdout, "No local changes") {
		return herrors.Wrap(herrors.ErrExternalTool, "git stash push: exit %d: %s", res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	return nil
}

// TagAnnotated runs `git tag -a <name> -m <message>`.
func (g *Git) TagAnnotated(ctx context.Context, name, message string) error {
	_, err := g.run(ctx, "tag -a", "tag", "-a", name, "-m", message)
	return err
}

// TagList runs `git tag -l <pattern>` and returns the matching tags in
// git's default lexical order (not creation order).
func (g *Git) TagList(ctx context.Context, pattern string) ([]string, error) {
	res, err := g.run(ctx, "tag -l", "tag", "-l", pattern)
	if err != nil {
		return nil, err
	}
	return splitLines(res.Stdout), nil
}

// AddAll runs `git add -A`.
func (g *Git) AddAll(ctx context.Context) error {
	_, err := g.run(ctx, "add -A", "add", "-A")
	return err
}

// Commit runs `git commit -m <message>`. A commit with nothing staged
// is not an error for the evolution pipeline (deploy/integrate may be a
// no-op copy).
func (g *Git) Commit(ctx context.Context, message string) error {
	res, err := g.runner.Run(ctx, cmdrunner.Spec{Dir: g.Dir, Name: "git", Args: []string{"commit", "-m", message}})
	if err != nil {
		return herrors.Wrap(herrors.ErrExternalTool, "git commit: %v", err)
	}
	if !res.Success && !strings.Contains(res.Stdout, "nothing to commit") {
		return herrors.Wrap(herrors.ErrExternalTool, "git commit: exit %d: %s", res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	return nil
}

// Clean runs `git clean -fd`.
func (g *Git) Clean(ctx context.Context) error {
	_, err := g.run(ctx, "clean -fd", "clean", "-fd")
	return err
}

// RevParseShort runs `git rev-parse --short HEAD`.
func (g *Git) RevParseShort(ctx context.Context) (string, error) {
	res, err := g.run(ctx, "rev-parse --short HEAD", "rev-parse", "--short", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(res.Stdout), nil
}

// StatusPorcelain runs `git status --porcelain` and reports whether the
// tree has any uncommitted changes.
func (g *Git) StatusPorcelain(ctx context.Context) (dirty bool, output string, err error) {
	res, runErr := g.run(ctx, "status --porcelain", "status", "--porcelain")
	if runErr != nil {
		return false, "", runErr
	}
	return strings.TrimSpace(res.Stdout) != "", res.Stdout, nil
}

func splitLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

// LatestTag returns the lexically-last tag matching pattern, or an
// error wrapping herrors.ErrExternalTool if none exist -- used by
// Integrator.Rollback when no tag was recorded in-process (spec
// §4.12: "search for the latest tag matching the prefix").
func (g *Git) LatestTag(ctx context.Context, pattern string) (string, error) {
	tags, err := g.TagList(ctx, pattern)
	if err != nil {
		return "", err
	}
	if len(tags) == 0 {
		return "", fmt.Errorf("no tag matches pattern %q", pattern)
	}
	return tags[len(tags)-1], nil
}
