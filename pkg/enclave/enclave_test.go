package enclave

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	persistFs "github.com/dburihabwa/sgx-fs/pkg/persist/fs"
)

func newTestEnclave(t *testing.T) *Enclave {
	t.Helper()
	enc, err := New(Config{BlockSize: testBlockSize, Sealer: newTestSealer(t)})
	require.NoError(t, err)
	return enc
}

func TestEnclaveRequiresSealer(t *testing.T) {
	_, err := New(Config{BlockSize: testBlockSize})
	assert.Error(t, err)
}

func TestOperationsRejectedOutsideServing(t *testing.T) {
	enc := newTestEnclave(t)
	require.Equal(t, StateUnmounted, enc.State())

	var storeErr *StoreError
	err := enc.Create("a")
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, ErrIOError, storeErr.Code)

	_, err = enc.Read("a", 0, 1)
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, ErrIOError, storeErr.Code)

	assert.False(t, enc.IsDirectory(""))
}

func TestMountStateMachine(t *testing.T) {
	ctx := context.Background()
	enc := newTestEnclave(t)

	require.NoError(t, enc.Mount(ctx, nil))
	assert.Equal(t, StateServing, enc.State())

	// Double mount is rejected.
	err := enc.Mount(ctx, nil)
	assert.Error(t, err)

	require.NoError(t, enc.Unmount(ctx, nil))
	assert.Equal(t, StateUnmounted, enc.State())

	// Unmount twice is rejected.
	err = enc.Unmount(ctx, nil)
	assert.Error(t, err)

	// A fresh mount serves an empty filesystem again.
	require.NoError(t, enc.Mount(ctx, nil))
	entries, err := enc.Readdir("")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestEnclaveIDsAreUnique(t *testing.T) {
	first := newTestEnclave(t)
	second := newTestEnclave(t)
	assert.NotEqual(t, first.ID(), second.ID())
}

// populate replays the write/truncate scenarios used for the round-trip
// checks.
func populate(t *testing.T, enc *Enclave) {
	t.Helper()

	require.NoError(t, enc.Create("a"))
	_, err := enc.Write("a", 0, []byte("hello"))
	require.NoError(t, err)

	require.NoError(t, enc.Create("b"))
	_, err = enc.Write("b", 0, bytes.Repeat([]byte("A"), 30))
	require.NoError(t, err)

	require.NoError(t, enc.Create("c"))
	require.NoError(t, enc.Truncate("c", 20))
	require.NoError(t, enc.Truncate("c", 5))

	require.NoError(t, enc.Create("d"))
	_, err = enc.Write("d", 0, bytes.Repeat([]byte("X"), 16))
	require.NoError(t, err)
	_, err = enc.Write("d", 4, []byte("YYY"))
	require.NoError(t, err)

	require.NoError(t, enc.Mkdir("p"))
	require.NoError(t, enc.Create("p/nested"))
	_, err = enc.Write("p/nested", 0, []byte("deep"))
	require.NoError(t, err)

	require.NoError(t, enc.Create("empty"))
}

func TestDumpRestoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	root := filepath.Join(t.TempDir(), "dump")

	store, err := persistFs.NewFSStore(ctx, root)
	require.NoError(t, err)

	enc := newTestEnclave(t)
	require.NoError(t, enc.Mount(ctx, store))
	populate(t, enc)

	expected := map[string][]byte{}
	for _, path := range []string{"a", "b", "c", "d", "p/nested", "empty"} {
		size, err := enc.FileSize(path)
		require.NoError(t, err)
		data, err := enc.Read(path, 0, size)
		require.NoError(t, err)
		expected[path] = data
	}

	require.NoError(t, enc.Unmount(ctx, store))

	// A fresh instance with the same sealing key restores everything.
	restored := newTestEnclave(t)
	require.NoError(t, restored.Mount(ctx, store))

	for path, want := range expected {
		size, err := restored.FileSize(path)
		require.NoError(t, err, "file %s", path)
		assert.Equal(t, int64(len(want)), size, "file %s size", path)

		data, err := restored.Read(path, 0, size)
		require.NoError(t, err, "file %s", path)
		assert.Equal(t, want, data, "file %s content", path)
	}

	// Directory structure is rebuilt from file paths.
	assert.True(t, restored.IsDirectory("p"))
	entries, err := restored.Readdir("p")
	require.NoError(t, err)
	assert.Equal(t, []string{"nested"}, entries)
}

func TestMissingDumpRootRestoresEmpty(t *testing.T) {
	ctx := context.Background()
	store, err := persistFs.NewFSStore(ctx, filepath.Join(t.TempDir(), "never-dumped"))
	require.NoError(t, err)

	enc := newTestEnclave(t)
	require.NoError(t, enc.Mount(ctx, store))

	entries, err := enc.Readdir("")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestTamperedDumpDetectedOnRead(t *testing.T) {
	ctx := context.Background()
	root := filepath.Join(t.TempDir(), "dump")

	store, err := persistFs.NewFSStore(ctx, root)
	require.NoError(t, err)

	enc := newTestEnclave(t)
	require.NoError(t, enc.Mount(ctx, store))
	require.NoError(t, enc.Create("victim"))
	_, err = enc.Write("victim", 0, bytes.Repeat([]byte("S"), 20))
	require.NoError(t, err)
	require.NoError(t, enc.Unmount(ctx, store))

	// Flip one ciphertext byte of the persisted file.
	dumped := filepath.Join(root, "victim")
	data, err := os.ReadFile(dumped)
	require.NoError(t, err)
	data[len(data)-1] ^= 0x01
	require.NoError(t, os.WriteFile(dumped, data, 0600))

	// Restore succeeds: tampering surfaces on first unseal, not before.
	restored := newTestEnclave(t)
	require.NoError(t, restored.Mount(ctx, store))

	// The first (intact) block decrypts; the tampered tail fails.
	partial, readErr := restored.Read("victim", 0, 20)
	var storeErr *StoreError
	require.ErrorAs(t, readErr, &storeErr)
	assert.Equal(t, ErrIntegrity, storeErr.Code)
	assert.Equal(t, bytes.Repeat([]byte("S"), 16), partial)
}
