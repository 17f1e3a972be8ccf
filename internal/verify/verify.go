// Package verify implements the Post-Phase Verifier (C7): checking a
// phase's declared outputs actually landed on disk before the
// Escalation Engine decides whether to retry.
package verify

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/helix-run/helix/internal/cmdrunner"
)

// Result is the outcome of verifying one phase's outputs (spec §4.7).
type Result struct {
	Success      bool
	MissingFiles []string
	SyntaxErrors []string
	FoundFiles   []string
	Message      string
}

// Verifier is the Post-Phase Verifier.
type Verifier struct {
	runner cmdrunner.Runner
}

func New(runner cmdrunner.Runner) *Verifier {
	if runner == nil {
		runner = cmdrunner.NewExec()
	}
	return &Verifier{runner: runner}
}

// Verify checks expectedFiles (which may contain globs) against
// phaseDir, deduplicating glob matches, then runs a best-effort syntax
// check on the files it can identify by extension.
func (v *Verifier) Verify(ctx context.Context, phaseID, phaseDir string, expectedFiles []string) Result {
	resolved, missing := v.resolveExpected(phaseDir, expectedFiles)

	var syntaxErrors []string
	for _, rel := range resolved {
		if msg, checked := v.bestEffortSyntaxCheck(ctx, phaseDir, rel); checked && msg != "" {
			syntaxErrors = append(syntaxErrors, fmt.Sprintf("%s: %s", rel, msg))
		}
	}

	success := len(missing) == 0 && len(syntaxErrors) == 0
	return Result{
		Success:      success,
		MissingFiles: missing,
		SyntaxErrors: syntaxErrors,
		FoundFiles:   resolved,
		Message:      summarize(phaseID, resolved, missing, syntaxErrors),
	}
}

// resolveExpected expands each expectedFiles entry (literal path or
// glob) against phaseDir, returning the deduplicated, sorted set of
// paths that exist and the sorted set of entries that matched nothing.
func (v *Verifier) resolveExpected(phaseDir string, expectedFiles []string) (found []string, missing []string) {
	seen := map[string]bool{}

	for _, pattern := range expectedFiles {
		if !strings.ContainsAny(pattern, "*?[") {
			if _, err := os.Stat(filepath.Join(phaseDir, pattern)); err == nil {
				if !seen[pattern] {
					seen[pattern] = true
					found = append(found, pattern)
				}
			} else {
				missing = append(missing, pattern)
			}
			continue
		}

		matches, _ := doublestar.Glob(os.DirFS(phaseDir), pattern)
		if len(matches) == 0 {
			missing = append(missing, pattern)
			continue
		}
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				found = append(found, m)
			}
		}
	}

	sort.Strings(found)
	sort.Strings(missing)
	return found, missing
}

var syntaxByExt = map[string]struct {
	name string
	args []string
}{
	".py": {"python3", []string{"-m", "py_compile"}},
	".js": {"node", []string{"--check"}},
	".ts": {"tsc", []string{"--noEmit"}},
}

// bestEffortSyntaxCheck runs a syntax check for rel if its extension is
// recognized and the toolchain is available; checked is false when
// neither condition holds, meaning the file was not judged at all.
func (v *Verifier) bestEffortSyntaxCheck(ctx context.Context, phaseDir, rel string) (message string, checked bool) {
	checker, ok := syntaxByExt[filepath.Ext(rel)]
	if !ok {
		return "", false
	}

	args := append(append([]string{}, checker.args...), rel)
	outcome, err := v.runner.Run(ctx, cmdrunner.Spec{Dir: phaseDir, Name: checker.name, Args: args})
	if err != nil {
		return "", false // toolchain unavailable: best-effort, not a failure
	}
	if !outcome.Success {
		return strings.TrimSpace(outcome.Stderr), true
	}
	return "", true
}

func summarize(phaseID string, found, missing, syntaxErrors []string) string {
	if len(missing) == 0 && len(syntaxErrors) == 0 {
		return fmt.Sprintf("phase %s: all %d declared output(s) present and well-formed", phaseID, len(found))
	}
	var parts []string
	if len(missing) > 0 {
		parts = append(parts, fmt.Sprintf("%d missing file(s): %s", len(missing), strings.Join(missing, ", ")))
	}
	if len(syntaxErrors) > 0 {
		parts = append(parts, fmt.Sprintf("%d syntax error(s)", len(syntaxErrors)))
	}
	return fmt.Sprintf("phase %s verification failed: %s", phaseID, strings.Join(parts, "; "))
}

const retryFileName = "VERIFICATION_FEEDBACK.md"

// WriteRetryFile writes a short text file under phaseDir describing
// what's wrong, readable by the next agent invocation (spec §4.7).
func WriteRetryFile(phaseDir string, result Result, retryNumber int) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Verification feedback (retry %d)\n\n", retryNumber)

	if len(result.MissingFiles) > 0 {
		sb.WriteString("## Missing files\n\n")
		for _, f := range result.MissingFiles {
			fmt.Fprintf(&sb, "- %s\n", f)
		}
		sb.WriteString("\n")
	}
	if len(result.SyntaxErrors) > 0 {
		sb.WriteString("## Syntax errors\n\n")
		for _, e := range result.SyntaxErrors {
			fmt.Fprintf(&sb, "- %s\n", e)
		}
		sb.WriteString("\n")
	}
	sb.WriteString(result.Message + "\n")

	if err := os.MkdirAll(phaseDir, 0o755); err != nil {
		return fmt.Errorf("create phase dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(phaseDir, retryFileName), []byte(sb.String()), 0o644); err != nil {
		return fmt.Errorf("write retry file: %w", err)
	}
	return nil
}
