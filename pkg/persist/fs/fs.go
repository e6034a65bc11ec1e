// Package fs persists the sealed-block snapshot as a host directory tree:
// one regular file per enclave file at the same relative path, whose
// contents are the file's sealed blocks back to back. This mirrors the
// enclave namespace onto the host, so names and sizes are visible there;
// only the block payloads are opaque.
package fs

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/dburihabwa/sgx-fs/internal/logger"
	"github.com/dburihabwa/sgx-fs/pkg/persist"
)

// FSStore dumps to and restores from a directory on the host filesystem.
type FSStore struct {
	root string
}

// NewFSStore creates a store rooted at the given host directory. The
// directory does not need to exist yet; Dump creates it and Restore
// treats a missing root as an empty filesystem.
func NewFSStore(ctx context.Context, root string) (*FSStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if root == "" {
		return nil, fmt.Errorf("fs store: root path is required")
	}
	return &FSStore{root: root}, nil
}

// Dump replaces the dump root with the snapshot. Parent directories are
// created as needed; empty enclave directories are not represented.
func (s *FSStore) Dump(ctx context.Context, files map[string][][]byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	// Drop the previous generation so unlinked files do not resurrect
	// on the next mount.
	if err := os.RemoveAll(s.root); err != nil {
		return fmt.Errorf("failed to clear dump root %s: %w", s.root, err)
	}
	if err := os.MkdirAll(s.root, 0700); err != nil {
		return fmt.Errorf("failed to create dump root %s: %w", s.root, err)
	}

	for path, blocks := range files {
		if err := ctx.Err(); err != nil {
			return err
		}

		target := filepath.Join(s.root, filepath.FromSlash(path))
		if err := os.MkdirAll(filepath.Dir(target), 0700); err != nil {
			return fmt.Errorf("failed to create parent of %s: %w", path, err)
		}
		if err := os.WriteFile(target, persist.JoinBlocks(blocks), 0600); err != nil {
			return fmt.Errorf("failed to dump %s: %w", path, err)
		}
	}

	logger.Debug("Dumped %d files to %s", len(files), s.root)
	return nil
}

// Restore walks the dump root and re-splits every regular file into its
// sealed blocks. A missing dump root restores an empty filesystem.
func (s *FSStore) Restore(ctx context.Context) (map[string][][]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	files := make(map[string][][]byte)

	if _, err := os.Stat(s.root); os.IsNotExist(err) {
		logger.Debug("Dump root %s does not exist, restoring empty filesystem", s.root)
		return files, nil
	}

	err := filepath.WalkDir(s.root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if !entry.Type().IsRegular() {
			return nil
		}

		relative, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		name := strings.Trim(filepath.ToSlash(relative), "/")

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", name, err)
		}
		blocks, err := persist.SplitBlocks(data)
		if err != nil {
			return fmt.Errorf("restoring %s: %w", name, err)
		}
		files[name] = blocks
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Debug("Restored %d files from %s", len(files), s.root)
	return files, nil
}

var _ persist.Store = (*FSStore)(nil)
