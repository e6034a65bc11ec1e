// Package bridge presents the POSIX-style entry points consumed by the
// kernel bridge. The dispatcher is a thin, stateless façade: it normalizes
// paths, delegates to the enclave, and translates the error taxonomy into
// the numeric status codes the bridge expects. All filesystem state lives
// behind the enclave handle.
package bridge

import (
	"time"

	"github.com/dburihabwa/sgx-fs/internal/logger"
	"github.com/dburihabwa/sgx-fs/pkg/enclave"
)

// Entry kinds reported by GetAttr.
const (
	KindRegular   uint32 = 1
	KindDirectory uint32 = 2
)

// ModeRegularFile is the regular-file type bit Create requires in its mode
// argument (S_IFREG).
const ModeRegularFile = 0100000

// modeTypeMask extracts the file type bits from a mode (S_IFMT).
const modeTypeMask = 0170000

// Attr is the synthesized attribute set for one entry. The enclave tracks
// no ownership or timestamps, so uid/gid and times are filled in from the
// mount context, the way the host side always presented them.
type Attr struct {
	Kind  uint32
	Size  uint64
	Nlink uint32
	UID   uint32
	GID   uint32
	Perm  uint32
	Mtime int64
}

// Options configures attribute synthesis.
type Options struct {
	// UID and GID stamped on every entry.
	UID uint32
	GID uint32

	// ReadOnly masks the write bits out of synthesized permissions.
	ReadOnly bool
}

// Dispatcher translates bridge operations into enclave calls.
type Dispatcher struct {
	enclave   *enclave.Enclave
	options   Options
	mountTime time.Time
}

// NewDispatcher wraps an enclave handle.
func NewDispatcher(enc *enclave.Enclave, options Options) *Dispatcher {
	return &Dispatcher{
		enclave:   enc,
		options:   options,
		mountTime: time.Now(),
	}
}

// BlockSize exposes the enclave block size for bridge-level IO sizing.
func (d *Dispatcher) BlockSize() int {
	return d.enclave.BlockSize()
}

// GetAttr returns the synthesized attributes of path. The root always
// stats as a directory.
func (d *Dispatcher) GetAttr(path string) (Attr, Status) {
	cleaned := enclave.CleanPath(path)

	perm := uint32(0777)
	if d.options.ReadOnly {
		perm = 0555
	}
	attr := Attr{
		UID:   d.options.UID,
		GID:   d.options.GID,
		Perm:  perm,
		Mtime: d.mountTime.Unix(),
	}

	if d.enclave.IsDirectory(cleaned) {
		attr.Kind = KindDirectory
		attr.Nlink = 2
		attr.Size = uint64(d.enclave.BlockSize())
		return attr, StatusOK
	}

	size, err := d.enclave.FileSize(cleaned)
	if err != nil {
		logger.Debug("getattr(%s): %v", cleaned, err)
		return Attr{}, translateError(err)
	}
	attr.Kind = KindRegular
	attr.Nlink = 1
	attr.Size = uint64(size)
	return attr, StatusOK
}

// Readdir lists the entries of a directory, without dot entries.
func (d *Dispatcher) Readdir(path string) ([]string, Status) {
	entries, err := d.enclave.Readdir(path)
	if err != nil {
		logger.Debug("readdir(%s): %v", path, err)
		return nil, translateError(err)
	}
	return entries, StatusOK
}

// Access reports whether path exists. Open, opendir, and access all land
// here; the enclave enforces no permissions beyond existence.
func (d *Dispatcher) Access(path string) Status {
	if !d.enclave.Exists(path) {
		return StatusNoEnt
	}
	return StatusOK
}

// Create inserts an empty file. The mode must carry the regular-file type
// bit; the enclave stores no other mode information.
func (d *Dispatcher) Create(path string, mode uint32) Status {
	if mode&modeTypeMask != ModeRegularFile {
		logger.Debug("create(%s): non-regular mode %o rejected", path, mode)
		return StatusInval
	}
	if err := d.enclave.Create(path); err != nil {
		logger.Debug("create(%s): %v", path, err)
		return translateError(err)
	}
	return StatusOK
}

// Read returns up to size bytes from offset. Reads past end of file
// return no bytes and StatusOK. On an integrity failure the bytes
// decrypted before the failing block accompany a non-OK status; the
// failure is never masked as a short read.
func (d *Dispatcher) Read(path string, offset, size int64) ([]byte, Status) {
	data, err := d.enclave.Read(path, offset, size)
	if err != nil {
		logger.Warn("read(%s, %d, %d) failed after %d bytes: %v", path, offset, size, len(data), err)
		return data, translateError(err)
	}
	return data, StatusOK
}

// Write stores data at offset and returns the bytes written.
func (d *Dispatcher) Write(path string, offset int64, data []byte) (int, Status) {
	written, err := d.enclave.Write(path, offset, data)
	if err != nil {
		logger.Warn("write(%s, %d, %d) failed after %d bytes: %v", path, offset, len(data), written, err)
		return written, translateError(err)
	}
	return written, StatusOK
}

// Unlink removes a file.
func (d *Dispatcher) Unlink(path string) Status {
	if err := d.enclave.Unlink(path); err != nil {
		logger.Debug("unlink(%s): %v", path, err)
		return translateError(err)
	}
	return StatusOK
}

// Truncate resizes a file.
func (d *Dispatcher) Truncate(path string, length int64) Status {
	if err := d.enclave.Truncate(path, length); err != nil {
		logger.Debug("truncate(%s, %d): %v", path, length, err)
		return translateError(err)
	}
	return StatusOK
}

// Mkdir inserts a directory.
func (d *Dispatcher) Mkdir(path string) Status {
	if err := d.enclave.Mkdir(path); err != nil {
		logger.Debug("mkdir(%s): %v", path, err)
		return translateError(err)
	}
	return StatusOK
}

// Rmdir removes an empty directory.
func (d *Dispatcher) Rmdir(path string) Status {
	if err := d.enclave.Rmdir(path); err != nil {
		logger.Debug("rmdir(%s): %v", path, err)
		return translateError(err)
	}
	return StatusOK
}

// Unsupported covers the bridge entries that are recognized but not
// implemented: rename, link, symlink, chmod, chown, utime, xattr, bmap.
func (d *Dispatcher) Unsupported(operation string) Status {
	logger.Debug("%s: operation not supported", operation)
	return StatusNotSupp
}
