package escalation

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/helix-run/helix/internal/config"
)

func testConfig() config.EscalationConfig {
	return config.EscalationConfig{
		ModelChain:    []string{"haiku", "sonnet", "opus"},
		Stage1Ceiling: 3,
		Stage2Ceiling: 2,
	}
}

func TestRecordFailure_Stage1Sequence(t *testing.T) {
	dir := t.TempDir()
	e := New(testConfig())
	st := &State{Stage: StageNone}

	a1, err := e.RecordFailure(dir, st, FailureRecord{Reason: "missing file"})
	require.NoError(t, err)
	require.Equal(t, ActionRetry, a1.Kind)
	require.Equal(t, Stage1, st.Stage)

	a2, err := e.RecordFailure(dir, st, FailureRecord{Reason: "missing file"})
	require.NoError(t, err)
	require.Equal(t, ActionModelSwitch, a2.Kind)
	require.Equal(t, "sonnet", a2.Model)

	a3, err := e.RecordFailure(dir, st, FailureRecord{Reason: "missing file", MissingFiles: []string{"x.py"}})
	require.NoError(t, err)
	require.Equal(t, ActionProvideHints, a3.Kind)
	require.Contains(t, a3.Hints[0], "x.py")
}

func TestRecordFailure_EscalatesToStage2AfterCeiling(t *testing.T) {
	dir := t.TempDir()
	e := New(testConfig())
	st := &State{Stage: StageNone}

	for i := 0; i < 3; i++ {
		_, err := e.RecordFailure(dir, st, FailureRecord{Reason: "fail"})
		require.NoError(t, err)
	}
	require.Equal(t, Stage1, st.Stage)

	action, err := e.RecordFailure(dir, st, FailureRecord{Reason: "fail"})
	require.NoError(t, err)
	require.Equal(t, ActionHumanReview, action.Kind)
	require.Equal(t, Stage2, st.Stage)
	require.FileExists(t, action.ReviewRequestPath)
}

func TestRecordFailure_AbortsAfterStage2Ceiling(t *testing.T) {
	dir := t.TempDir()
	e := New(testConfig())
	st := &State{Stage: StageNone}

	for i := 0; i < 5; i++ { // 3 to exhaust stage1, 2 to exhaust stage2
		_, err := e.RecordFailure(dir, st, FailureRecord{Reason: "fail"})
		require.NoError(t, err)
	}
	require.Equal(t, Stage2, st.Stage)

	action, err := e.RecordFailure(dir, st, FailureRecord{Reason: "fail"})
	require.NoError(t, err)
	require.Equal(t, ActionAbort, action.Kind)
	require.Equal(t, StageAborted, st.Stage)
}

func TestRecordFailure_MonotonicityInvariant(t *testing.T) {
	dir := t.TempDir()
	e := New(testConfig())
	st := &State{Stage: StageNone}

	prevLevel := st.Stage.Level()
	prevTotal := st.TotalAttempts
	for i := 0; i < 8; i++ {
		_, err := e.RecordFailure(dir, st, FailureRecord{Reason: "fail"})
		require.NoError(t, err)
		require.Greater(t, st.TotalAttempts, prevTotal)
		require.GreaterOrEqual(t, st.Stage.Level(), prevLevel)
		prevTotal = st.TotalAttempts
		prevLevel = st.Stage.Level()
	}
}

func TestModelChain_StickyAtLastEntry(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig()
	cfg.Stage1Ceiling = 10
	e := New(cfg)
	st := &State{Stage: StageNone}

	var lastModel string
	for i := 0; i < 6; i++ {
		action, err := e.RecordFailure(dir, st, FailureRecord{Reason: "fail"})
		require.NoError(t, err)
		if action.Kind == ActionModelSwitch {
			lastModel = action.Model
		}
	}
	require.Equal(t, "opus", lastModel)
}

func TestSaveLoad_RoundTrips(t *testing.T) {
	dir := t.TempDir()
	st := &State{Stage: Stage1, AttemptCount: 2, TotalAttempts: 2}
	require.NoError(t, Save(dir, st))

	loaded, err := Load(dir)
	require.NoError(t, err)
	require.Equal(t, Stage1, loaded.Stage)
	require.Equal(t, 2, loaded.AttemptCount)
}

func TestLoad_MissingFileIsFreshNoneState(t *testing.T) {
	loaded, err := Load(t.TempDir())
	require.NoError(t, err)
	require.Equal(t, StageNone, loaded.Stage)
}

func TestPollHumanResponse_MissingIsNil(t *testing.T) {
	resp, err := PollHumanResponse(t.TempDir())
	require.NoError(t, err)
	require.Nil(t, resp)
}

func TestPollHumanResponse_ReadsDecision(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "escalation"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "escalation", "human-response.json"), []byte(`{"decision": "retry"}`), 0o644))

	resp, err := PollHumanResponse(dir)
	require.NoError(t, err)
	require.Equal(t, "retry", resp.Decision)
}
