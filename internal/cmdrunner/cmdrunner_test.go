package cmdrunner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestExec_Run_SuccessCapturesOutput(t *testing.T) {
	r := NewExec()
	res, err := r.Run(context.Background(), Spec{
		Name: "sh",
		Args: []string{"-c", "echo out; echo err 1>&2"},
	})
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Equal(t, 0, res.ExitCode)
	require.Equal(t, "out", res.Stdout)
	require.Equal(t, "err", res.Stderr)
}

func TestExec_Run_NonZeroExit(t *testing.T) {
	r := NewExec()
	res, err := r.Run(context.Background(), Spec{Name: "sh", Args: []string{"-c", "exit 3"}})
	require.NoError(t, err)
	require.False(t, res.Success)
	require.Equal(t, 3, res.ExitCode)
}

func TestExec_Run_StdinIsDelivered(t *testing.T) {
	r := NewExec()
	res, err := r.Run(context.Background(), Spec{
		Name:  "sh",
		Args:  []string{"-c", "cat"},
		Stdin: "hello from the caller",
	})
	require.NoError(t, err)
	require.Equal(t, "hello from the caller", res.Stdout)
}

func TestExec_Run_TimeoutKillsChild(t *testing.T) {
	r := NewExec()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	res, err := r.Run(ctx, Spec{Name: "sh", Args: []string{"-c", "sleep 5"}})
	require.NoError(t, err)
	require.False(t, res.Success)
}

func TestExec_Run_OnLineCallbackFires(t *testing.T) {
	r := NewExec()
	var lines []string
	res, err := r.Run(context.Background(), Spec{
		Name:   "sh",
		Args:   []string{"-c", "echo a; echo b"},
		OnLine: func(stream, line string) { lines = append(lines, line) },
	})
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Equal(t, []string{"a", "b"}, lines)
}
