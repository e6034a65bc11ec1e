package enclave

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/dburihabwa/sgx-fs/internal/logger"
	"github.com/dburihabwa/sgx-fs/pkg/persist"
	"github.com/dburihabwa/sgx-fs/pkg/sealing"
)

// State tracks the mount lifecycle of an enclave instance.
type State int

const (
	// StateUnmounted: no filesystem state is held.
	StateUnmounted State = iota

	// StateInitializing: restore in progress; operations are rejected.
	StateInitializing

	// StateServing: the filesystem accepts operations.
	StateServing

	// StateDraining: dump in progress; operations are rejected.
	StateDraining
)

func (s State) String() string {
	switch s {
	case StateUnmounted:
		return "unmounted"
	case StateInitializing:
		return "initializing"
	case StateServing:
		return "serving"
	case StateDraining:
		return "draining"
	default:
		return "unknown"
	}
}

// Config carries the construction parameters of an enclave instance.
type Config struct {
	// BlockSize is the plaintext capacity of a block. Zero selects
	// DefaultBlockSize.
	BlockSize int

	// Sealer is the block codec. Required.
	Sealer sealing.Sealer
}

// Enclave is one mounted instance of the filesystem: the file store, the
// directory index, and the mount state machine, behind a single handle the
// dispatcher carries. There is no process-wide state; dropping the handle
// after unmount drops the filesystem.
//
// Operations are not internally synchronized: the trusted-call boundary
// serializes every crossing, and the enclave relies on that contract.
type Enclave struct {
	id    uuid.UUID
	state State
	files *FileStore
	dirs  *DirectoryIndex
}

// New creates an unmounted enclave instance.
func New(cfg Config) (*Enclave, error) {
	if cfg.Sealer == nil {
		return nil, fmt.Errorf("enclave: sealer is required")
	}

	files := NewFileStore(cfg.BlockSize, cfg.Sealer)
	dirs := NewDirectoryIndex(files)
	files.directories = dirs

	return &Enclave{
		id:    uuid.New(),
		state: StateUnmounted,
		files: files,
		dirs:  dirs,
	}, nil
}

// ID returns the instance identifier, assigned at construction.
func (e *Enclave) ID() uuid.UUID {
	return e.id
}

// State returns the current lifecycle state.
func (e *Enclave) State() State {
	return e.state
}

// BlockSize returns the plaintext capacity of a block.
func (e *Enclave) BlockSize() int {
	return e.files.BlockSize()
}

// Mount restores persisted state from the store (nil means start empty)
// and begins serving.
func (e *Enclave) Mount(ctx context.Context, store persist.Store) error {
	if e.state != StateUnmounted {
		return &StoreError{
			Code:    ErrIOError,
			Message: fmt.Sprintf("cannot mount from state %s", e.state),
		}
	}
	e.state = StateInitializing

	if store != nil {
		restored, err := store.Restore(ctx)
		if err != nil {
			e.state = StateUnmounted
			return &StoreError{
				Code:    ErrIOError,
				Message: fmt.Sprintf("restore failed: %v", err),
			}
		}
		if err := e.files.Load(restored); err != nil {
			e.state = StateUnmounted
			return err
		}
		e.dirs.LoadFromFiles(e.files.Paths())
		logger.Info("Enclave %s restored %d files", e.id, len(restored))
	}

	e.state = StateServing
	return nil
}

// Unmount dumps the filesystem to the store (nil discards it) and returns
// the instance to the unmounted state. The in-memory state is dropped
// regardless of the dump outcome; a dump failure is reported after the
// fact so the host can refuse a clean exit.
func (e *Enclave) Unmount(ctx context.Context, store persist.Store) error {
	if e.state != StateServing {
		return &StoreError{
			Code:    ErrIOError,
			Message: fmt.Sprintf("cannot unmount from state %s", e.state),
		}
	}
	e.state = StateDraining

	var dumpErr error
	if store != nil {
		snapshot := e.files.Files()
		if err := store.Dump(ctx, snapshot); err != nil {
			dumpErr = &StoreError{
				Code:    ErrIOError,
				Message: fmt.Sprintf("dump failed: %v", err),
			}
		} else {
			logger.Info("Enclave %s dumped %d files", e.id, len(snapshot))
		}
	}

	e.files.files = make(map[string][][]byte)
	e.dirs.dirs = make(map[string]struct{})
	e.state = StateUnmounted
	return dumpErr
}

// ensureServing gates every filesystem operation on the state machine.
func (e *Enclave) ensureServing() error {
	if e.state != StateServing {
		return &StoreError{
			Code:    ErrIOError,
			Message: fmt.Sprintf("enclave is %s, not serving", e.state),
		}
	}
	return nil
}

// Create inserts an empty file at path.
func (e *Enclave) Create(path string) error {
	if err := e.ensureServing(); err != nil {
		return err
	}
	return e.files.Create(path)
}

// Unlink removes the file at path.
func (e *Enclave) Unlink(path string) error {
	if err := e.ensureServing(); err != nil {
		return err
	}
	return e.files.Unlink(path)
}

// Read returns up to size bytes of the file at path starting at offset.
func (e *Enclave) Read(path string, offset, size int64) ([]byte, error) {
	if err := e.ensureServing(); err != nil {
		return nil, err
	}
	return e.files.Read(path, offset, size)
}

// Write stores data into the file at path starting at offset.
func (e *Enclave) Write(path string, offset int64, data []byte) (int, error) {
	if err := e.ensureServing(); err != nil {
		return 0, err
	}
	return e.files.Write(path, offset, data)
}

// Truncate resizes the file at path.
func (e *Enclave) Truncate(path string, length int64) error {
	if err := e.ensureServing(); err != nil {
		return err
	}
	return e.files.Truncate(path, length)
}

// FileSize returns the logical size of the file at path.
func (e *Enclave) FileSize(path string) (int64, error) {
	if err := e.ensureServing(); err != nil {
		return 0, err
	}
	return e.files.FileSize(path)
}

// IsFile reports whether path names a file.
func (e *Enclave) IsFile(path string) bool {
	return e.state == StateServing && e.files.IsFile(path)
}

// IsDirectory reports whether path names a directory.
func (e *Enclave) IsDirectory(path string) bool {
	return e.state == StateServing && e.dirs.IsDirectory(path)
}

// Exists reports whether path names either a file or a directory.
func (e *Enclave) Exists(path string) bool {
	return e.IsFile(path) || e.IsDirectory(path)
}

// Mkdir inserts a directory at path.
func (e *Enclave) Mkdir(path string) error {
	if err := e.ensureServing(); err != nil {
		return err
	}
	return e.dirs.Mkdir(path)
}

// Rmdir removes the empty directory at path.
func (e *Enclave) Rmdir(path string) error {
	if err := e.ensureServing(); err != nil {
		return err
	}
	return e.dirs.Rmdir(path)
}

// Readdir lists the entries directly inside path.
func (e *Enclave) Readdir(path string) ([]string, error) {
	if err := e.ensureServing(); err != nil {
		return nil, err
	}
	return e.dirs.Readdir(path)
}

// NumberOfEntries counts the files directly inside the given directory.
func (e *Enclave) NumberOfEntries(directory string) (int, error) {
	if err := e.ensureServing(); err != nil {
		return 0, err
	}
	return e.files.NumberOfEntries(directory)
}
