package fs

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dburihabwa/sgx-fs/pkg/persist"
	persisttesting "github.com/dburihabwa/sgx-fs/pkg/persist/testing"
)

// TestFSStore runs the shared persistence suite against the directory
// tree backend.
func TestFSStore(t *testing.T) {
	suite := &persisttesting.StoreTestSuite{
		NewStore: func(t *testing.T) persist.Store {
			store, err := NewFSStore(context.Background(), filepath.Join(t.TempDir(), "dump"))
			require.NoError(t, err)
			return store
		},
	}
	suite.Run(t)
}

func TestFSStoreRequiresRoot(t *testing.T) {
	_, err := NewFSStore(context.Background(), "")
	assert.Error(t, err)
}

func TestFSStoreMirrorsPathsOnHost(t *testing.T) {
	ctx := context.Background()
	root := filepath.Join(t.TempDir(), "dump")

	store, err := NewFSStore(ctx, root)
	require.NoError(t, err)

	require.NoError(t, store.Dump(ctx, map[string][][]byte{
		"docs/report": {[]byte{
			// One fabricated block: header declaring a 1-byte payload.
			0, 0, 0, 1, 1,
			0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
			0xAA,
			0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
		}},
	}))

	// The enclave namespace is mirrored one-to-one under the dump root.
	info, err := os.Stat(filepath.Join(root, "docs", "report"))
	require.NoError(t, err)
	assert.True(t, info.Mode().IsRegular())
}

func TestFSStoreRejectsTruncatedDump(t *testing.T) {
	ctx := context.Background()
	root := filepath.Join(t.TempDir(), "dump")

	store, err := NewFSStore(ctx, root)
	require.NoError(t, err)

	// A persisted file whose bytes cannot tile into whole blocks.
	require.NoError(t, os.MkdirAll(root, 0700))
	require.NoError(t, os.WriteFile(filepath.Join(root, "broken"), []byte{0, 0, 0, 9, 1, 2}, 0600))

	_, err = store.Restore(ctx)
	assert.ErrorIs(t, err, persist.ErrCorruptDump)
}
