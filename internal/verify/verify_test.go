package verify

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestVerify_AllOutputsPresent(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "src", "foo.txt"), "x")

	v := New(nil)
	res := v.Verify(context.Background(), "develop", dir, []string{"src/foo.txt"})
	require.True(t, res.Success)
	require.Empty(t, res.MissingFiles)
	require.Equal(t, []string{"src/foo.txt"}, res.FoundFiles)
}

func TestVerify_MissingFileReported(t *testing.T) {
	dir := t.TempDir()
	v := New(nil)
	res := v.Verify(context.Background(), "develop", dir, []string{"src/foo.txt"})
	require.False(t, res.Success)
	require.Equal(t, []string{"src/foo.txt"}, res.MissingFiles)
}

func TestVerify_GlobExpansionDeduplicates(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "src", "a.txt"), "x")
	writeFile(t, filepath.Join(dir, "src", "b.txt"), "x")

	v := New(nil)
	res := v.Verify(context.Background(), "develop", dir, []string{"src/*.txt", "src/a.txt"})
	require.True(t, res.Success)
	require.Equal(t, []string{"src/a.txt", "src/b.txt"}, res.FoundFiles)
}

func TestVerify_GlobWithNoMatchesIsMissing(t *testing.T) {
	dir := t.TempDir()
	v := New(nil)
	res := v.Verify(context.Background(), "develop", dir, []string{"src/*.txt"})
	require.False(t, res.Success)
	require.Equal(t, []string{"src/*.txt"}, res.MissingFiles)
}

func TestWriteRetryFile_ContainsMissingFiles(t *testing.T) {
	dir := t.TempDir()
	result := Result{MissingFiles: []string{"src/foo.py"}, Message: "phase develop verification failed"}
	require.NoError(t, WriteRetryFile(dir, result, 1))

	data, err := os.ReadFile(filepath.Join(dir, retryFileName))
	require.NoError(t, err)
	require.Contains(t, string(data), "src/foo.py")
	require.Contains(t, string(data), "retry 1")
}
