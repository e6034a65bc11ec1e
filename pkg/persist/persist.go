package persist

import (
	"context"
	"errors"
)

// Store persists a sealed-block snapshot across mounts and restores it.
//
// The snapshot maps normalized file paths to ordered sealed-block
// sequences, exactly as the file store holds them. Implementations never
// see plaintext: sealed blocks are self-authenticating and may freely
// cross the trust boundary, so a store runs entirely on the untrusted
// side (a host directory tree, a key-value database, an object store).
//
// Contract:
//   - Dump replaces any previously persisted state with the snapshot.
//   - Restore returns the most recently dumped snapshot, preserving file
//     paths, block counts, and per-block bytes.
//   - Restore on a store that has never been dumped to (or whose backing
//     location is missing) returns an empty snapshot, not an error.
//   - Empty directories are not represented; the directory index is
//     rebuilt from restored file paths.
//
// Tampering with persisted blocks is not detected here: a tampered block
// restores fine and fails tag verification on first unseal.
type Store interface {
	// Dump writes the snapshot, replacing previous state.
	Dump(ctx context.Context, files map[string][][]byte) error

	// Restore reads back the persisted snapshot.
	Restore(ctx context.Context) (map[string][][]byte, error)
}

// ErrCorruptDump indicates persisted state that cannot be split back into
// sealed blocks (truncated files, impossible header lengths). Restore
// fails rather than returning a partial filesystem.
var ErrCorruptDump = errors.New("persisted state is corrupt")
