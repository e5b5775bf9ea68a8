package storage

import (
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStorageBasicOperations(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	store, err := New(root)
	require.NoError(t, err)

	require.NoError(t, store.WriteFile("/avatars/u-1.jpg", []byte("first")))
	require.NoError(t, store.WriteFile("/avatars/u-1.jpg", []byte("second")))

	info, err := store.Stat("/avatars/u-1.jpg")
	require.NoError(t, err)
	require.False(t, info.IsDir())
	require.Equal(t, int64(len("second")), info.Size())

	reader, err := store.OpenForRead("/avatars/u-1.jpg")
	require.NoError(t, err)
	content, err := io.ReadAll(reader)
	require.NoError(t, err)
	require.NoError(t, reader.Close())
	require.Equal(t, "second", string(content))

	entries, err := os.ReadDir(store.RootAbs() + "/avatars")
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp files must not be left behind")

	require.NoError(t, store.Remove("/avatars/u-1.jpg"))
	require.NoError(t, store.Remove("/avatars/u-1.jpg"))
	_, err = store.Stat("/avatars/u-1.jpg")
	require.True(t, os.IsNotExist(err))
}

func TestStorageRejectsTraversal(t *testing.T) {
	t.Parallel()

	store, err := New(t.TempDir())
	require.NoError(t, err)

	require.Error(t, store.WriteFile("../escape.jpg", []byte("x")))
	_, err = store.OpenForRead("/a/../../etc/passwd")
	require.Error(t, err)
}
