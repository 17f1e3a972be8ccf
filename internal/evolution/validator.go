package evolution

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/helix-run/helix/internal/cmdrunner"
)

const testCommandCeiling = 10 * time.Minute

// Validator is the Evolution Validator (C13): runs tests against the
// twin and classifies results against a baseline to decide pass/fail.
type Validator struct {
	runner cmdrunner.Runner
}

func NewValidator(runner cmdrunner.Runner) *Validator {
	if runner == nil {
		runner = cmdrunner.NewExec()
	}
	return &Validator{runner: runner}
}

// TestRun is the raw outcome of driving a test command: total/passed
// counts and the set of failing test-node identifiers.
type TestRun struct {
	Total  int
	Passed int
	Failed []string
}

// testResultLine matches one "<node-id> <PASS|FAIL>" line, the simple
// wire format the twin's test command is expected to emit per node
// (spec §4.12 leaves the exact test-runner output format to the
// integration; this is HELIX's own normalized contract for it).
var testResultLine = regexp.MustCompile(`^(\S+)\s+(PASS|FAIL)\s*$`)

// RunTests drives command against dir and parses its per-node result
// lines into a TestRun.
func (v *Validator) RunTests(ctx context.Context, dir, command string) (TestRun, error) {
	ctx, cancel := context.WithTimeout(ctx, testCommandCeiling)
	defer cancel()

	res, err := v.runner.Run(ctx, cmdrunner.Spec{Dir: dir, Name: "sh", Args: []string{"-c", command}})
	if err != nil {
		return TestRun{}, fmt.Errorf("run test command: %w", err)
	}

	var run TestRun
	for _, line := range strings.Split(res.Stdout, "\n") {
		m := testResultLine.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		run.Total++
		if m[2] == "PASS" {
			run.Passed++
		} else {
			run.Failed = append(run.Failed, m[1])
		}
	}
	sort.Strings(run.Failed)
	return run, nil
}

// LoadPermanentSkips parses a .permanent_skips file: `path::nodeid[:
// reason]` lines, one per line, blank lines, `#`-comments, and any
// line without a `::` node separator ignored. This format is not
// specified by spec.md beyond naming the file; it is carried over
// verbatim from the original Python Validator.
func LoadPermanentSkips(path string) (map[string]bool, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return map[string]bool{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open permanent skips file: %w", err)
	}
	defer f.Close()

	skips := map[string]bool{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || !strings.Contains(line, "::") {
			continue
		}
		nodeID, _, _ := strings.Cut(line, ": ")
		skips[strings.TrimSpace(nodeID)] = true
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan permanent skips file: %w", err)
	}
	return skips, nil
}

// Result is the Validator's classification of a test run against a
// baseline (spec §4.12 / §8 property 9-10).
type Result struct {
	Passed          bool     `json:"passed"`
	Total           int      `json:"total"`
	PassedCount     int      `json:"passed_count"`
	Regressions     []string `json:"regressions"`
	NewTestFailures []string `json:"new_test_failures"`
	PreExisting     []string `json:"pre_existing"`
	Ignored         []string `json:"ignored"`
}

// Evaluate classifies currentFailures against baseline per spec §4.12:
//
//	pre_existing        = current ∩ baseline.failed
//	new_failures        = current − baseline.failed
//	new_test_failures   = new_failures whose file is among adrTestFiles
//	regressions         = new_failures − new_test_failures
//	blocking            = regressions ∪ new_test_failures; passes iff empty
//	ignored             = pre_existing ∪ permanentSkips present in current
//
// Evaluate is a pure function of its inputs (property 10) and every
// list field is returned sorted (property 10); the three classification
// sets are pairwise disjoint and their union is exactly currentFailures
// (property 9).
func Evaluate(currentFailures []string, total, passed int, baseline *Baseline, permanentSkips map[string]bool, adrTestFiles []string) Result {
	baselineFailed := map[string]bool{}
	if baseline != nil {
		for _, f := range baseline.FailedTests {
			baselineFailed[f] = true
		}
	}
	normalizedFiles := make(map[string]bool, len(adrTestFiles))
	for _, f := range adrTestFiles {
		normalizedFiles[normalizeTestFile(f)] = true
	}

	var preExisting, newFailures []string
	for _, f := range currentFailures {
		if baselineFailed[f] {
			preExisting = append(preExisting, f)
		} else {
			newFailures = append(newFailures, f)
		}
	}

	var newTestFailures, regressions []string
	for _, f := range newFailures {
		if normalizedFiles[normalizeTestFile(testNodeFile(f))] {
			newTestFailures = append(newTestFailures, f)
		} else {
			regressions = append(regressions, f)
		}
	}

	var ignored []string
	ignoredSet := map[string]bool{}
	for _, f := range currentFailures {
		if baselineFailed[f] || permanentSkips[f] {
			if !ignoredSet[f] {
				ignored = append(ignored, f)
				ignoredSet[f] = true
			}
		}
	}

	result := Result{
		Passed:          len(regressions) == 0 && len(newTestFailures) == 0,
		Total:           total,
		PassedCount:     passed,
		Regressions:     sortedOrEmpty(regressions),
		NewTestFailures: sortedOrEmpty(newTestFailures),
		PreExisting:     sortedOrEmpty(preExisting),
		Ignored:         sortedOrEmpty(ignored),
	}
	return result
}

func sortedOrEmpty(s []string) []string {
	out := append([]string(nil), s...)
	sort.Strings(out)
	return out
}

// testNodeFile extracts the file component of a "path::nodeid" test
// node identifier; a bare path with no "::" is its own file component.
func testNodeFile(nodeID string) string {
	file, _, _ := strings.Cut(nodeID, "::")
	return file
}

// normalizeTestFile strips a leading "./" so matching is independent of
// how a path was spelled (spec §9: "the spec requires normalisation to
// a canonical form").
func normalizeTestFile(path string) string {
	return filepath.ToSlash(strings.TrimPrefix(filepath.ToSlash(path), "./"))
}
