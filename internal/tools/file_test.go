package tools

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "credentials.json")

	require.False(t, FileExists(path))
	exists, err := PathExists(path)
	require.NoError(t, err)
	require.False(t, exists)

	require.NoError(t, WriteFileAtomic(path, []byte(`{"token":"a"}`), 0600))
	require.NoError(t, WriteFileAtomic(path, []byte(`{"token":"b"}`), 0600))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, `{"token":"b"}`, string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp files must not be left behind")

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0600), info.Mode().Perm())
}
