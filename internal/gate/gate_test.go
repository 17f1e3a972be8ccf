package gate

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/helix-run/helix/internal/cmdrunner"
	"github.com/helix-run/helix/internal/phase"
)

type fakeRunner struct {
	result cmdrunner.Result
	err    error
	spec   cmdrunner.Spec
}

func (f *fakeRunner) Run(ctx context.Context, spec cmdrunner.Spec) (cmdrunner.Result, error) {
	f.spec = spec
	return f.result, f.err
}

func TestEvaluate_NilGatePasses(t *testing.T) {
	e := New(nil)
	res, err := e.Evaluate(context.Background(), t.TempDir(), nil)
	require.NoError(t, err)
	require.True(t, res.Passed)
}

func TestEvaluate_FilesExist_Passes(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("x"), 0o644))

	e := New(nil)
	res, err := e.Evaluate(context.Background(), dir, &phase.QualityGate{Type: phase.GateFilesExist, Files: []string{"a.txt"}})
	require.NoError(t, err)
	require.True(t, res.Passed)
}

func TestEvaluate_FilesExist_ReportsMissing(t *testing.T) {
	dir := t.TempDir()
	e := New(nil)
	res, err := e.Evaluate(context.Background(), dir, &phase.QualityGate{Type: phase.GateFilesExist, Files: []string{"missing.txt"}})
	require.NoError(t, err)
	require.False(t, res.Passed)
	require.Equal(t, []string{"missing.txt"}, res.Details["missing"])
}

func TestEvaluate_SyntaxCheck_UnsupportedLanguagePassesInformationally(t *testing.T) {
	e := New(nil)
	res, err := e.Evaluate(context.Background(), t.TempDir(), &phase.QualityGate{Type: phase.GateSyntaxCheck, Language: "cobol"})
	require.NoError(t, err)
	require.True(t, res.Passed)
}

func TestEvaluate_SyntaxCheck_GoBuildsViaToolchain(t *testing.T) {
	fake := &fakeRunner{result: cmdrunner.Result{Success: true}}
	e := New(fake)
	res, err := e.Evaluate(context.Background(), t.TempDir(), &phase.QualityGate{Type: phase.GateSyntaxCheck, Language: "go"})
	require.NoError(t, err)
	require.True(t, res.Passed)
	require.Equal(t, "go", fake.spec.Name)
}

func TestEvaluate_SyntaxCheck_FailureIsReported(t *testing.T) {
	fake := &fakeRunner{result: cmdrunner.Result{Success: false, Stderr: "syntax error"}}
	e := New(fake)
	res, err := e.Evaluate(context.Background(), t.TempDir(), &phase.QualityGate{Type: phase.GateSyntaxCheck, Language: "go"})
	require.NoError(t, err)
	require.False(t, res.Passed)
}

func TestEvaluate_TestsPass_NonZeroExitFails(t *testing.T) {
	fake := &fakeRunner{result: cmdrunner.Result{Success: false, ExitCode: 1}}
	e := New(fake)
	res, err := e.Evaluate(context.Background(), t.TempDir(), &phase.QualityGate{Type: phase.GateTestsPass, Command: "pytest"})
	require.NoError(t, err)
	require.False(t, res.Passed)
}

func TestEvaluate_TestsPass_Success(t *testing.T) {
	fake := &fakeRunner{result: cmdrunner.Result{Success: true}}
	e := New(fake)
	res, err := e.Evaluate(context.Background(), t.TempDir(), &phase.QualityGate{Type: phase.GateTestsPass, Command: "pytest"})
	require.NoError(t, err)
	require.True(t, res.Passed)
	require.Equal(t, []string{"-c", "pytest"}, fake.spec.Args)
}

func TestEvaluate_ReviewApproved_True(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "review.json"), []byte(`{"approved": true, "approved_by": "alice"}`), 0o644))

	e := New(nil)
	res, err := e.Evaluate(context.Background(), dir, &phase.QualityGate{Type: phase.GateReviewApproved, File: "review.json"})
	require.NoError(t, err)
	require.True(t, res.Passed)
	require.Equal(t, "alice", res.Details["approved_by"])
}

func TestEvaluate_ReviewApproved_MissingFileFails(t *testing.T) {
	e := New(nil)
	res, err := e.Evaluate(context.Background(), t.TempDir(), &phase.QualityGate{Type: phase.GateReviewApproved, File: "review.json"})
	require.NoError(t, err)
	require.False(t, res.Passed)
}
