package enclave

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMkdirRmdir(t *testing.T) {
	files, dirs := newTestStores(t)

	require.NoError(t, dirs.Mkdir("p"))
	assert.True(t, dirs.IsDirectory("p"))
	assert.True(t, dirs.IsDirectory("/p/"))

	var storeErr *StoreError

	// Duplicate
	err := dirs.Mkdir("p")
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, ErrIsDirectory, storeErr.Code)

	// File of the same name
	require.NoError(t, files.Create("f"))
	err = dirs.Mkdir("f")
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, ErrNotDirectory, storeErr.Code)

	// Missing parent
	err = dirs.Mkdir("missing/child")
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, ErrNotDirectory, storeErr.Code)

	// Nested creation parent-first
	require.NoError(t, dirs.Mkdir("p/q"))
	require.NoError(t, dirs.Mkdir("p/q/r"))

	require.NoError(t, dirs.Rmdir("p/q/r"))
	require.NoError(t, dirs.Rmdir("p/q"))
	require.NoError(t, dirs.Rmdir("p"))
	assert.False(t, dirs.IsDirectory("p"))
}

func TestRmdirErrors(t *testing.T) {
	files, dirs := newTestStores(t)

	var storeErr *StoreError

	err := dirs.Rmdir("absent")
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, ErrNotFound, storeErr.Code)

	err = dirs.Rmdir("")
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, ErrInvalidArgument, storeErr.Code)

	// Not empty: contains a file
	require.NoError(t, dirs.Mkdir("p"))
	require.NoError(t, files.Create("p/x"))
	err = dirs.Rmdir("p")
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, ErrNotEmpty, storeErr.Code)

	// Not empty: contains a subdirectory
	require.NoError(t, dirs.Mkdir("q"))
	require.NoError(t, dirs.Mkdir("q/sub"))
	err = dirs.Rmdir("q")
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, ErrNotEmpty, storeErr.Code)
}

func TestDirectoryScenario(t *testing.T) {
	files, dirs := newTestStores(t)

	require.NoError(t, dirs.Mkdir("p"))
	require.NoError(t, files.Create("p/x"))

	entries, err := dirs.Readdir("p")
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, entries)

	var storeErr *StoreError
	err = dirs.Rmdir("p")
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, ErrNotEmpty, storeErr.Code)

	require.NoError(t, files.Unlink("p/x"))
	require.NoError(t, dirs.Rmdir("p"))
}

func TestReaddir(t *testing.T) {
	files, dirs := newTestStores(t)

	require.NoError(t, dirs.Mkdir("d"))
	require.NoError(t, dirs.Mkdir("d/sub"))
	require.NoError(t, files.Create("d/b"))
	require.NoError(t, files.Create("d/a"))
	require.NoError(t, files.Create("top"))

	entries, err := dirs.Readdir("d")
	require.NoError(t, err)
	assert.Equal(t, []string{"sub", "a", "b"}, entries)

	root, err := dirs.Readdir("")
	require.NoError(t, err)
	assert.Equal(t, []string{"d", "top"}, root)

	// Listings are stable within a mount.
	again, err := dirs.Readdir("d")
	require.NoError(t, err)
	assert.Equal(t, entries, again)

	_, err = dirs.Readdir("top")
	var storeErr *StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, ErrNotFound, storeErr.Code)
}

func TestLoadFromFiles(t *testing.T) {
	_, dirs := newTestStores(t)

	dirs.LoadFromFiles([]string{
		"a/b/c/file1",
		"a/file2",
		"top",
	})

	for _, dir := range []string{"a", "a/b", "a/b/c"} {
		assert.True(t, dirs.IsDirectory(dir), "expected directory %s", dir)
	}
	assert.False(t, dirs.IsDirectory("top"))
	assert.False(t, dirs.IsDirectory("a/b/c/file1"))
}
