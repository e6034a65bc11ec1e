package testing

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dburihabwa/sgx-fs/pkg/persist"
	"github.com/dburihabwa/sgx-fs/pkg/sealing"
)

// StoreTestSuite exercises the persistence contract shared by every
// backend: snapshots round-trip exactly, a second dump replaces the
// first, and an untouched store restores an empty filesystem. Backends
// run it from their own package tests.
//
// Usage:
//
//	func TestFSStore(t *testing.T) {
//	    suite := &testing.StoreTestSuite{
//	        NewStore: func(t *testing.T) persist.Store {
//	            store, err := fs.NewFSStore(context.Background(), t.TempDir())
//	            require.NoError(t, err)
//	            return store
//	        },
//	    }
//	    suite.Run(t)
//	}
type StoreTestSuite struct {
	// NewStore creates a fresh, empty store for each subtest.
	NewStore func(t *testing.T) persist.Store
}

// Run executes the full suite.
func (suite *StoreTestSuite) Run(t *testing.T) {
	t.Run("RestoreEmpty", suite.testRestoreEmpty)
	t.Run("RoundTrip", suite.testRoundTrip)
	t.Run("EmptyFileSurvives", suite.testEmptyFileSurvives)
	t.Run("SecondDumpReplacesFirst", suite.testSecondDumpReplacesFirst)
	t.Run("NestedPaths", suite.testNestedPaths)
}

// sealBlocks produces a valid sealed-block sequence for test snapshots.
// Real block framing matters here: backends that concatenate blocks must
// re-split them by their headers.
func sealBlocks(t *testing.T, blockSize int, content []byte) [][]byte {
	t.Helper()

	key := make([]byte, sealing.KeySize)
	for i := range key {
		key[i] = byte(i * 3)
	}
	sealer, err := sealing.NewSealer(sealing.CipherAuto, sealing.StaticKeyProvider(key))
	require.NoError(t, err)

	var blocks [][]byte
	for offset := 0; offset < len(content); offset += blockSize {
		end := offset + blockSize
		if end > len(content) {
			end = len(content)
		}
		block, err := sealer.Seal(content[offset:end])
		require.NoError(t, err)
		blocks = append(blocks, block)
	}
	return blocks
}

// requireSnapshotsEqual compares two snapshots block by block.
func requireSnapshotsEqual(t *testing.T, want, got map[string][][]byte) {
	t.Helper()

	require.Len(t, got, len(want))
	for path, wantBlocks := range want {
		gotBlocks, exists := got[path]
		require.True(t, exists, "file %s missing after restore", path)
		require.Len(t, gotBlocks, len(wantBlocks), "file %s block count", path)
		for i := range wantBlocks {
			assert.Equal(t, wantBlocks[i], gotBlocks[i], "file %s block %d", path, i)
		}
	}
}

func (suite *StoreTestSuite) testRestoreEmpty(t *testing.T) {
	store := suite.NewStore(t)

	files, err := store.Restore(context.Background())
	require.NoError(t, err)
	assert.Empty(t, files)
}

func (suite *StoreTestSuite) testRoundTrip(t *testing.T) {
	store := suite.NewStore(t)
	ctx := context.Background()

	snapshot := map[string][][]byte{
		"single":     sealBlocks(t, 16, []byte("one block")),
		"multi":      sealBlocks(t, 16, bytes.Repeat([]byte("M"), 50)),
		"exact":      sealBlocks(t, 16, bytes.Repeat([]byte("E"), 32)),
		"dir/inner":  sealBlocks(t, 16, []byte("nested content")),
		"dir/second": sealBlocks(t, 16, bytes.Repeat([]byte("Z"), 17)),
	}

	require.NoError(t, store.Dump(ctx, snapshot))

	restored, err := store.Restore(ctx)
	require.NoError(t, err)
	requireSnapshotsEqual(t, snapshot, restored)
}

func (suite *StoreTestSuite) testEmptyFileSurvives(t *testing.T) {
	store := suite.NewStore(t)
	ctx := context.Background()

	snapshot := map[string][][]byte{
		"empty": {},
		"full":  sealBlocks(t, 16, []byte("data")),
	}

	require.NoError(t, store.Dump(ctx, snapshot))

	restored, err := store.Restore(ctx)
	require.NoError(t, err)
	require.Contains(t, restored, "empty")
	assert.Empty(t, restored["empty"])
}

func (suite *StoreTestSuite) testSecondDumpReplacesFirst(t *testing.T) {
	store := suite.NewStore(t)
	ctx := context.Background()

	first := map[string][][]byte{
		"stays": sealBlocks(t, 16, []byte("generation one")),
		"goes":  sealBlocks(t, 16, []byte("unlinked before the second dump")),
	}
	require.NoError(t, store.Dump(ctx, first))

	second := map[string][][]byte{
		"stays": sealBlocks(t, 16, []byte("generation two, different length")),
	}
	require.NoError(t, store.Dump(ctx, second))

	restored, err := store.Restore(ctx)
	require.NoError(t, err)
	requireSnapshotsEqual(t, second, restored)
	assert.NotContains(t, restored, "goes")
}

func (suite *StoreTestSuite) testNestedPaths(t *testing.T) {
	store := suite.NewStore(t)
	ctx := context.Background()

	snapshot := map[string][][]byte{
		"a/b/c/d/deep": sealBlocks(t, 16, bytes.Repeat([]byte("D"), 40)),
		"a/shallow":    sealBlocks(t, 16, []byte("s")),
	}

	require.NoError(t, store.Dump(ctx, snapshot))

	restored, err := store.Restore(ctx)
	require.NoError(t, err)
	requireSnapshotsEqual(t, snapshot, restored)
}
