package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLocalStorageSaveOpenRoundTrip(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	name, err := store.Save("roster_20250310.csv", []byte("Name,Email\n"))
	require.NoError(t, err)

	file, err := store.Open(name)
	require.NoError(t, err)
	defer file.Close()

	info, err := file.Stat()
	require.NoError(t, err)
	require.Greater(t, info.Size(), int64(0))
}

func TestLocalStorageOpenConfinedToBaseDir(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStorage(filepath.Join(dir, "exports"))
	require.NoError(t, err)

	outside := filepath.Join(dir, "secret.txt")
	require.NoError(t, os.WriteFile(outside, []byte("nope"), 0o600))

	_, err = store.Open(outside)
	require.Error(t, err)

	_, err = store.Open(filepath.Join("..", "secret.txt"))
	require.Error(t, err)

	require.Error(t, store.Delete(filepath.Join("..", "secret.txt")))
	_, statErr := os.Stat(outside)
	require.NoError(t, statErr)
}
