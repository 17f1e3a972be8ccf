package evolution

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/helix-run/helix/internal/cmdrunner"
)

type scriptedRunner struct {
	result cmdrunner.Result
	err    error
}

func (s *scriptedRunner) Run(ctx context.Context, spec cmdrunner.Spec) (cmdrunner.Result, error) {
	return s.result, s.err
}

func TestRunTests_ParsesPassAndFailLines(t *testing.T) {
	runner := &scriptedRunner{result: cmdrunner.Result{Success: true, Stdout: "tests/a.py::t1 PASS\ntests/b.py::t2 FAIL\ntests/c.py::t3 FAIL\n"}}
	v := NewValidator(runner)

	run, err := v.RunTests(context.Background(), "/twin", "pytest")
	require.NoError(t, err)
	require.Equal(t, 3, run.Total)
	require.Equal(t, 1, run.Passed)
	require.Equal(t, []string{"tests/b.py::t2", "tests/c.py::t3"}, run.Failed)
}

func TestLoadPermanentSkips_ParsesNodeIDAndReasonForms(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".permanent_skips")
	require.NoError(t, os.WriteFile(path, []byte("# comment\ntests/flaky.py::t1\ntests/flaky.py::t2: known flaky\n\n"), 0o644))

	skips, err := LoadPermanentSkips(path)
	require.NoError(t, err)
	require.True(t, skips["tests/flaky.py::t1"])
	require.True(t, skips["tests/flaky.py::t2"])
	require.Len(t, skips, 2)
}

func TestLoadPermanentSkips_MissingFileIsEmpty(t *testing.T) {
	skips, err := LoadPermanentSkips(filepath.Join(t.TempDir(), ".permanent_skips"))
	require.NoError(t, err)
	require.Empty(t, skips)
}

// S6 from spec.md §8.
func TestEvaluate_PreExistingFailuresAreIgnoredAndPass(t *testing.T) {
	baseline := &Baseline{CommitSHA: "abc12345", TotalTests: 453, PassedTests: 450, FailedTests: []string{"T1", "T2", "T3"}}

	result := Evaluate([]string{"T1", "T2", "T3"}, 511, 508, baseline, nil, []string{"tests/new/feature.py"})

	require.True(t, result.Passed)
	require.Equal(t, []string{"T1", "T2", "T3"}, result.Ignored)
	require.Empty(t, result.Regressions)
	require.Empty(t, result.NewTestFailures)
}

func TestEvaluate_NewFailureInADRTestFileIsNewTestFailureNotRegression(t *testing.T) {
	baseline := &Baseline{FailedTests: []string{}}

	result := Evaluate([]string{"tests/new/feature.py::test_x"}, 10, 9, baseline, nil, []string{"./tests/new/feature.py"})

	require.False(t, result.Passed)
	require.Equal(t, []string{"tests/new/feature.py::test_x"}, result.NewTestFailures)
	require.Empty(t, result.Regressions)
}

func TestEvaluate_NewFailureOutsideADRFilesIsRegression(t *testing.T) {
	baseline := &Baseline{FailedTests: []string{}}

	result := Evaluate([]string{"tests/unrelated.py::test_y"}, 10, 9, baseline, nil, []string{"tests/new/feature.py"})

	require.False(t, result.Passed)
	require.Equal(t, []string{"tests/unrelated.py::test_y"}, result.Regressions)
	require.Empty(t, result.NewTestFailures)
}

func TestEvaluate_PermanentSkipIsIgnoredEvenWhenNotInBaseline(t *testing.T) {
	result := Evaluate([]string{"tests/flaky.py::t1"}, 10, 9, nil, map[string]bool{"tests/flaky.py::t1": true}, nil)

	require.Equal(t, []string{"tests/flaky.py::t1"}, result.Ignored)
	require.Empty(t, result.Regressions)
}

func TestEvaluate_ClassificationSetsArePairwiseDisjointAndCoverCurrent(t *testing.T) {
	baseline := &Baseline{FailedTests: []string{"T1"}}
	current := []string{"T1", "T2", "T3"}

	result := Evaluate(current, 10, 7, baseline, nil, []string{"t2file"})

	union := map[string]bool{}
	for _, f := range result.Regressions {
		require.False(t, union[f])
		union[f] = true
	}
	for _, f := range result.NewTestFailures {
		require.False(t, union[f])
		union[f] = true
	}
	for _, f := range result.PreExisting {
		require.False(t, union[f])
		union[f] = true
	}
	require.Len(t, union, len(current))
}
