package bridge

import (
	"errors"

	"github.com/dburihabwa/sgx-fs/pkg/enclave"
)

// Status is the numeric result code handed back to the kernel bridge.
// Values follow the conventional errno numbering so the adapter can pass
// them through unchanged.
type Status uint32

const (
	StatusOK       Status = 0
	StatusNoEnt    Status = 2  // no such file or directory
	StatusIO       Status = 5  // I/O error (integrity, sealing policy, state)
	StatusExist    Status = 17 // file exists
	StatusNotDir   Status = 20 // not a directory
	StatusIsDir    Status = 21 // is a directory
	StatusInval    Status = 22 // invalid argument
	StatusNotEmpty Status = 39 // directory not empty
	StatusNotSupp  Status = 95 // operation not supported
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusNoEnt:
		return "ENOENT"
	case StatusIO:
		return "EIO"
	case StatusExist:
		return "EEXIST"
	case StatusNotDir:
		return "ENOTDIR"
	case StatusIsDir:
		return "EISDIR"
	case StatusInval:
		return "EINVAL"
	case StatusNotEmpty:
		return "ENOTEMPTY"
	case StatusNotSupp:
		return "ENOTSUP"
	default:
		return "UNKNOWN"
	}
}

// translateError maps the store taxonomy onto bridge status codes. Every
// unrecognized error collapses to EIO rather than being dropped.
func translateError(err error) Status {
	if err == nil {
		return StatusOK
	}

	var storeErr *enclave.StoreError
	if !errors.As(err, &storeErr) {
		return StatusIO
	}

	switch storeErr.Code {
	case enclave.ErrNotFound:
		return StatusNoEnt
	case enclave.ErrAlreadyExists:
		return StatusExist
	case enclave.ErrIsDirectory:
		return StatusIsDir
	case enclave.ErrNotDirectory:
		return StatusNotDir
	case enclave.ErrNotEmpty:
		return StatusNotEmpty
	case enclave.ErrInvalidArgument:
		return StatusInval
	case enclave.ErrIntegrity, enclave.ErrSealingPolicy, enclave.ErrIOError:
		return StatusIO
	case enclave.ErrNotSupported:
		return StatusNotSupp
	default:
		return StatusIO
	}
}
