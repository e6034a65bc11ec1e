package enclave

import (
	"errors"
	"fmt"
	"sort"

	"github.com/dburihabwa/sgx-fs/pkg/sealing"
)

// DefaultBlockSize is the plaintext capacity of a block unless configured
// otherwise.
const DefaultBlockSize = 4096

// FileStore maps normalized file paths to ordered sequences of sealed
// blocks. All partial-block read/write/truncate logic lives here; every
// block access round-trips through the sealer so plaintext only ever exists
// in request-scoped buffers, which are zeroed before release.
//
// Block invariants, maintained by every mutating operation:
//   - every block except the last carries exactly blockSize payload bytes;
//   - the last block carries between 1 and blockSize payload bytes;
//   - an empty file has no blocks at all.
//
// Sealed blocks are immutable once created: updates seal a fresh block and
// replace the slot, so a snapshot taken by the persistence layer stays
// valid without copying block contents. No block is shared between files.
//
// The store is not safe for concurrent use; callers serialize access (the
// trusted-call boundary holds a single mutex around every crossing).
type FileStore struct {
	blockSize   int
	sealer      sealing.Sealer
	files       map[string][][]byte
	directories interface{ IsDirectory(path string) bool }
}

// NewFileStore creates an empty file store. The directory index is attached
// by the enclave after both sides exist.
func NewFileStore(blockSize int, sealer sealing.Sealer) *FileStore {
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}
	return &FileStore{
		blockSize: blockSize,
		sealer:    sealer,
		files:     make(map[string][][]byte),
	}
}

// BlockSize returns the plaintext capacity of a single block.
func (s *FileStore) BlockSize() int {
	return s.blockSize
}

// Create inserts an empty file at path.
func (s *FileStore) Create(path string) error {
	cleaned := CleanPath(path)
	if err := ValidatePath(cleaned); err != nil {
		return err
	}
	if cleaned == "" {
		return &StoreError{
			Code:    ErrInvalidArgument,
			Message: "cannot create a file at the root path",
		}
	}
	if parent := ParentDirectory(cleaned); parent != "" && !s.directories.IsDirectory(parent) {
		return &StoreError{
			Code:    ErrNotDirectory,
			Message: "parent is not a directory",
			Path:    cleaned,
		}
	}
	if s.directories.IsDirectory(cleaned) {
		return &StoreError{
			Code:    ErrIsDirectory,
			Message: "path names a directory",
			Path:    cleaned,
		}
	}
	if _, exists := s.files[cleaned]; exists {
		return &StoreError{
			Code:    ErrAlreadyExists,
			Message: "file already exists",
			Path:    cleaned,
		}
	}

	s.files[cleaned] = [][]byte{}
	return nil
}

// Unlink removes the file at path and releases its blocks.
func (s *FileStore) Unlink(path string) error {
	cleaned := CleanPath(path)
	if parent := ParentDirectory(cleaned); parent != "" && !s.directories.IsDirectory(parent) {
		return &StoreError{
			Code:    ErrNotDirectory,
			Message: "parent is not a directory",
			Path:    cleaned,
		}
	}
	if s.directories.IsDirectory(cleaned) {
		return &StoreError{
			Code:    ErrIsDirectory,
			Message: "path names a directory",
			Path:    cleaned,
		}
	}
	if _, exists := s.files[cleaned]; !exists {
		return &StoreError{
			Code:    ErrNotFound,
			Message: "file not found",
			Path:    cleaned,
		}
	}

	delete(s.files, cleaned)
	return nil
}

// Read unseals and copies up to size bytes starting at offset. Reads past
// end of file return fewer bytes, down to none; that is not an error. An
// integrity failure terminates the read: the bytes decrypted before the
// failing block are returned together with the error, which the caller
// must not mask.
func (s *FileStore) Read(path string, offset, size int64) ([]byte, error) {
	cleaned := CleanPath(path)
	blocks, exists := s.files[cleaned]
	if !exists {
		return nil, &StoreError{
			Code:    ErrNotFound,
			Message: "file not found",
			Path:    cleaned,
		}
	}
	if offset < 0 || size < 0 {
		return nil, &StoreError{
			Code:    ErrInvalidArgument,
			Message: fmt.Sprintf("invalid read range: offset=%d size=%d", offset, size),
			Path:    cleaned,
		}
	}

	first := int(offset / int64(s.blockSize))
	if first >= len(blocks) || size == 0 {
		return []byte{}, nil
	}

	intra := int(offset % int64(s.blockSize))
	out := make([]byte, 0, size)

	for index := first; index < len(blocks) && int64(len(out)) < size; index++ {
		plaintext, err := s.sealer.Unseal(blocks[index])
		if err != nil {
			return out, s.sealingError(err, cleaned)
		}
		if intra >= len(plaintext) {
			// Offset falls beyond the short tail block.
			wipe(plaintext)
			break
		}
		remaining := size - int64(len(out))
		available := len(plaintext) - intra
		n := available
		if int64(n) > remaining {
			n = int(remaining)
		}
		out = append(out, plaintext[intra:intra+n]...)
		wipe(plaintext)
		intra = 0
	}

	return out, nil
}

// Write overwrites or extends the file with data starting at offset.
// Blocks overlapping the write are unsealed, modified, and re-sealed in
// place; data beyond the current block list is sealed into fresh blocks.
// A write starting past end of file is rejected: callers grow the file
// with Truncate first (the kernel bridge issues that truncate itself).
func (s *FileStore) Write(path string, offset int64, data []byte) (int, error) {
	cleaned := CleanPath(path)
	blocks, exists := s.files[cleaned]
	if !exists {
		return 0, &StoreError{
			Code:    ErrNotFound,
			Message: "file not found",
			Path:    cleaned,
		}
	}
	if offset < 0 {
		return 0, &StoreError{
			Code:    ErrInvalidArgument,
			Message: fmt.Sprintf("negative write offset: %d", offset),
			Path:    cleaned,
		}
	}

	size, err := s.sizeOf(blocks, cleaned)
	if err != nil {
		return 0, err
	}
	if offset > size {
		return 0, &StoreError{
			Code:    ErrInvalidArgument,
			Message: fmt.Sprintf("write at offset %d past end of file (size %d)", offset, size),
			Path:    cleaned,
		}
	}
	if len(data) == 0 {
		return 0, nil
	}

	first := int(offset / int64(s.blockSize))
	intra := int(offset % int64(s.blockSize))
	written := 0

	// Overlap phase: rewrite the blocks the range touches.
	for index := first; index < len(blocks) && written < len(data); index++ {
		plaintext, err := s.sealer.Unseal(blocks[index])
		if err != nil {
			return written, s.sealingError(err, cleaned)
		}

		chunk := len(data) - written
		if chunk > s.blockSize-intra {
			chunk = s.blockSize - intra
		}
		if needed := intra + chunk; len(plaintext) < needed {
			plaintext = append(plaintext, make([]byte, needed-len(plaintext))...)
		}
		copy(plaintext[intra:intra+chunk], data[written:written+chunk])

		resealed, err := s.sealer.Seal(plaintext)
		wipe(plaintext)
		if err != nil {
			return written, s.sealingError(err, cleaned)
		}
		blocks[index] = resealed

		written += chunk
		intra = 0
	}

	// Append phase: the only path that creates new blocks.
	for written < len(data) {
		chunk := len(data) - written
		if chunk > s.blockSize {
			chunk = s.blockSize
		}
		block, err := s.sealer.Seal(data[written : written+chunk])
		if err != nil {
			return written, s.sealingError(err, cleaned)
		}
		blocks = append(blocks, block)
		written += chunk
	}

	s.files[cleaned] = blocks
	return written, nil
}

// Truncate resizes the file to length bytes. Growing seals fresh zero
// blocks; shrinking releases whole blocks and re-seals a trimmed tail.
// Truncating to the current size re-seals nothing.
func (s *FileStore) Truncate(path string, length int64) error {
	cleaned := CleanPath(path)
	blocks, exists := s.files[cleaned]
	if !exists {
		return &StoreError{
			Code:    ErrNotFound,
			Message: "file not found",
			Path:    cleaned,
		}
	}
	if length < 0 {
		return &StoreError{
			Code:    ErrInvalidArgument,
			Message: fmt.Sprintf("negative truncate length: %d", length),
			Path:    cleaned,
		}
	}

	size, err := s.sizeOf(blocks, cleaned)
	if err != nil {
		return err
	}
	if length == size {
		return nil
	}

	if length > size {
		blocks, err = s.grow(blocks, size, length, cleaned)
	} else {
		blocks, err = s.shrink(blocks, length, cleaned)
	}
	if err != nil {
		return err
	}

	s.files[cleaned] = blocks
	return nil
}

// grow extends the block list with sealed zeros up to length bytes.
func (s *FileStore) grow(blocks [][]byte, size, length int64, path string) ([][]byte, error) {
	// Fill the existing tail block to capacity (or to the target when it
	// lands inside the same block).
	if count := len(blocks); count > 0 {
		payload, err := sealing.PayloadSize(blocks[count-1])
		if err != nil {
			return blocks, s.sealingError(err, path)
		}
		if payload < s.blockSize {
			target := payload + int(length-size)
			if target > s.blockSize {
				target = s.blockSize
			}
			plaintext, err := s.sealer.Unseal(blocks[count-1])
			if err != nil {
				return blocks, s.sealingError(err, path)
			}
			plaintext = append(plaintext, make([]byte, target-payload)...)
			resealed, err := s.sealer.Seal(plaintext)
			wipe(plaintext)
			if err != nil {
				return blocks, s.sealingError(err, path)
			}
			blocks[count-1] = resealed
			size += int64(target - payload)
		}
	}

	// Whole zero blocks, then the zero tail.
	zeros := make([]byte, s.blockSize)
	for length-size >= int64(s.blockSize) {
		block, err := s.sealer.Seal(zeros)
		if err != nil {
			return blocks, s.sealingError(err, path)
		}
		blocks = append(blocks, block)
		size += int64(s.blockSize)
	}
	if tail := length - size; tail > 0 {
		block, err := s.sealer.Seal(zeros[:tail])
		if err != nil {
			return blocks, s.sealingError(err, path)
		}
		blocks = append(blocks, block)
	}

	return blocks, nil
}

// shrink drops blocks beyond the new length and trims the tail block.
func (s *FileStore) shrink(blocks [][]byte, length int64, path string) ([][]byte, error) {
	if length == 0 {
		return [][]byte{}, nil
	}

	keep := int((length + int64(s.blockSize) - 1) / int64(s.blockSize))
	blocks = blocks[:keep]

	tail := int(length % int64(s.blockSize))
	if tail == 0 {
		return blocks, nil
	}

	plaintext, err := s.sealer.Unseal(blocks[keep-1])
	if err != nil {
		return blocks, s.sealingError(err, path)
	}
	resealed, err := s.sealer.Seal(plaintext[:tail])
	wipe(plaintext)
	if err != nil {
		return blocks, s.sealingError(err, path)
	}
	blocks[keep-1] = resealed

	return blocks, nil
}

// FileSize returns the logical size of the file at path.
func (s *FileStore) FileSize(path string) (int64, error) {
	cleaned := CleanPath(path)
	blocks, exists := s.files[cleaned]
	if !exists {
		return 0, &StoreError{
			Code:    ErrNotFound,
			Message: "file not found",
			Path:    cleaned,
		}
	}
	return s.sizeOf(blocks, cleaned)
}

// sizeOf computes the logical size from the block headers alone.
func (s *FileStore) sizeOf(blocks [][]byte, path string) (int64, error) {
	if len(blocks) == 0 {
		return 0, nil
	}
	tail, err := sealing.PayloadSize(blocks[len(blocks)-1])
	if err != nil {
		return 0, s.sealingError(err, path)
	}
	return int64(len(blocks)-1)*int64(s.blockSize) + int64(tail), nil
}

// IsFile reports whether path names a file.
func (s *FileStore) IsFile(path string) bool {
	_, exists := s.files[CleanPath(path)]
	return exists
}

// NumberOfEntries counts the files directly inside the given directory.
func (s *FileStore) NumberOfEntries(directory string) (int, error) {
	cleaned := CleanPath(directory)
	if !s.directories.IsDirectory(cleaned) {
		return 0, &StoreError{
			Code:    ErrNotFound,
			Message: "directory not found",
			Path:    cleaned,
		}
	}
	count := 0
	for path := range s.files {
		if IsInDirectory(cleaned, path) {
			count++
		}
	}
	return count, nil
}

// FilesIn returns the names of the files directly inside directory,
// relative to it, in sorted order.
func (s *FileStore) FilesIn(directory string) []string {
	cleaned := CleanPath(directory)
	var names []string
	for path := range s.files {
		if IsInDirectory(cleaned, path) {
			names = append(names, RelativePath(cleaned, path))
		}
	}
	sort.Strings(names)
	return names
}

// Files returns a snapshot of the block sequences keyed by path. The outer
// structures are copies; the sealed blocks themselves are shared, which is
// safe because blocks are never mutated after creation.
func (s *FileStore) Files() map[string][][]byte {
	snapshot := make(map[string][][]byte, len(s.files))
	for path, blocks := range s.files {
		copied := make([][]byte, len(blocks))
		copy(copied, blocks)
		snapshot[path] = copied
	}
	return snapshot
}

// Load replaces the store contents with restored block sequences, checking
// the block invariants of every file before accepting them.
func (s *FileStore) Load(files map[string][][]byte) error {
	validated := make(map[string][][]byte, len(files))
	for path, blocks := range files {
		cleaned := CleanPath(path)
		if err := ValidatePath(cleaned); err != nil {
			return err
		}
		if cleaned == "" {
			return &StoreError{
				Code:    ErrInvalidArgument,
				Message: "restored file with empty path",
			}
		}
		for index, block := range blocks {
			payload, err := sealing.PayloadSize(block)
			if err != nil {
				return s.sealingError(err, cleaned)
			}
			if index < len(blocks)-1 && payload != s.blockSize {
				return &StoreError{
					Code:    ErrIntegrity,
					Message: fmt.Sprintf("restored block %d carries %d bytes, want %d", index, payload, s.blockSize),
					Path:    cleaned,
				}
			}
			if payload > s.blockSize {
				return &StoreError{
					Code:    ErrIntegrity,
					Message: fmt.Sprintf("restored block %d carries %d bytes, exceeding the block size %d", index, payload, s.blockSize),
					Path:    cleaned,
				}
			}
			if payload == 0 {
				return &StoreError{
					Code:    ErrIntegrity,
					Message: fmt.Sprintf("restored block %d carries no payload", index),
					Path:    cleaned,
				}
			}
		}
		validated[cleaned] = blocks
	}
	s.files = validated
	return nil
}

// Paths returns every file path in the store, sorted.
func (s *FileStore) Paths() []string {
	paths := make([]string, 0, len(s.files))
	for path := range s.files {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

// sealingError converts a codec failure into the store taxonomy.
func (s *FileStore) sealingError(err error, path string) error {
	code := ErrIOError
	switch {
	case errors.Is(err, sealing.ErrIntegrityCheckFailed):
		code = ErrIntegrity
	case errors.Is(err, sealing.ErrKeyUnavailable):
		code = ErrSealingPolicy
	}
	return &StoreError{
		Code:    code,
		Message: err.Error(),
		Path:    path,
	}
}

// wipe zeroes a plaintext buffer before it is released.
func wipe(buffer []byte) {
	for i := range buffer {
		buffer[i] = 0
	}
}
