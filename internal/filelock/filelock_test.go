package filelock

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAcquire_SucceedsOnFreshTree(t *testing.T) {
	dir := t.TempDir()
	lock, err := Acquire(dir)
	require.NoError(t, err)
	require.FileExists(t, filepath.Join(dir, lockFileName))
	require.NoError(t, lock.Release())
	require.NoFileExists(t, filepath.Join(dir, lockFileName))
}

func TestAcquire_FailsWhileHeldByLiveProcess(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, lockFileName), []byte("1\n"), 0o644))

	_, err := Acquire(dir)
	require.ErrorIs(t, err, ErrLocked)
}

func TestAcquire_BreaksStaleLock(t *testing.T) {
	dir := t.TempDir()
	// PID far beyond any plausible live process; treated as stale.
	require.NoError(t, os.WriteFile(filepath.Join(dir, lockFileName), []byte("999999999\n"), 0o644))

	lock, err := Acquire(dir)
	require.NoError(t, err)
	require.NoError(t, lock.Release())
}

func TestRelease_IsIdempotent(t *testing.T) {
	dir := t.TempDir()
	lock, err := Acquire(dir)
	require.NoError(t, err)
	require.NoError(t, lock.Release())
	require.NoError(t, lock.Release())
}
