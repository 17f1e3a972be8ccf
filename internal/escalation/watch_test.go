package escalation

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWaitForHumanResponse_ReturnsImmediatelyIfAlreadyWritten(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "escalation"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "escalation", "human-response.json"), []byte(`{"decision": "skip"}`), 0o644))

	resp, err := WaitForHumanResponse(dir, time.Second)
	require.NoError(t, err)
	require.Equal(t, "skip", resp.Decision)
}

func TestWaitForHumanResponse_WakesOnLateWrite(t *testing.T) {
	dir := t.TempDir()

	go func() {
		time.Sleep(50 * time.Millisecond)
		escalationDir := filepath.Join(dir, "escalation")
		_ = os.MkdirAll(escalationDir, 0o755)
		_ = os.WriteFile(filepath.Join(escalationDir, "human-response.json"), []byte(`{"decision": "manual_fix"}`), 0o644)
	}()

	resp, err := WaitForHumanResponse(dir, 5*time.Second)
	require.NoError(t, err)
	require.NotNil(t, resp)
	require.Equal(t, "manual_fix", resp.Decision)
}

func TestWaitForHumanResponse_TimesOut(t *testing.T) {
	resp, err := WaitForHumanResponse(t.TempDir(), 100*time.Millisecond)
	require.NoError(t, err)
	require.Nil(t, resp)
}
