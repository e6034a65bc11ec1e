// Package fuse adapts the kernel's FUSE interface onto the trusted-call
// transport. The adapter holds no filesystem state of its own: every
// callback becomes a typed call on the transport client, and the kernel's
// dot entries, handle bookkeeping, and write-past-EOF convention (truncate
// first, then write) are handled here, outside the trusted boundary.
package fuse

import (
	"context"
	"fmt"
	"os"
	"syscall"
	"time"

	gofs "github.com/hanwen/go-fuse/v2/fs"
	gofuse "github.com/hanwen/go-fuse/v2/fuse"

	"github.com/dburihabwa/sgx-fs/internal/logger"
	"github.com/dburihabwa/sgx-fs/pkg/bridge"
	"github.com/dburihabwa/sgx-fs/pkg/bridge/transport"
)

// Options configures the FUSE mount.
type Options struct {
	// Mountpoint is the directory where the filesystem is mounted.
	// Required; created if missing.
	Mountpoint string

	// Client is the trusted-call client. Required.
	Client *transport.Client

	// FSName is the filesystem name shown in mount tables.
	FSName string

	// AllowOther permits other users to access the mount. Requires
	// user_allow_other in /etc/fuse.conf.
	AllowOther bool

	// ReadOnly mounts the filesystem read-only.
	ReadOnly bool
}

// Mount mounts the filesystem and returns the serving FUSE server. The
// caller waits on the server and unmounts it to stop serving.
func Mount(options Options) (*gofuse.Server, error) {
	if options.Mountpoint == "" {
		return nil, fmt.Errorf("mountpoint is required")
	}
	if options.Client == nil {
		return nil, fmt.Errorf("transport client is required")
	}
	if options.FSName == "" {
		options.FSName = "sgxfs"
	}

	if err := os.MkdirAll(options.Mountpoint, 0755); err != nil {
		return nil, fmt.Errorf("failed to create mountpoint %s: %w", options.Mountpoint, err)
	}

	root := &node{client: options.Client, path: ""}

	mountOptions := gofuse.MountOptions{
		FsName:     options.FSName,
		Name:       "sgxfs",
		AllowOther: options.AllowOther,
	}
	if options.ReadOnly {
		mountOptions.Options = append(mountOptions.Options, "ro")
	}

	timeout := time.Second
	server, err := gofs.Mount(options.Mountpoint, root, &gofs.Options{
		EntryTimeout: &timeout,
		AttrTimeout:  &timeout,
		MountOptions: mountOptions,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to mount at %s: %w", options.Mountpoint, err)
	}

	logger.Info("Filesystem mounted at %s", options.Mountpoint)
	return server, nil
}

// statusToErrno maps bridge status codes onto kernel errnos.
func statusToErrno(status bridge.Status) syscall.Errno {
	if status == bridge.StatusOK {
		return 0
	}
	return syscall.Errno(status)
}

// node is one entry of the mounted tree, identified by its normalized
// path. Nodes are cheap: they carry no data, only the path used on the
// next crossing.
type node struct {
	gofs.Inode
	client *transport.Client
	path   string
}

var (
	_ gofs.NodeGetattrer = (*node)(nil)
	_ gofs.NodeLookuper  = (*node)(nil)
	_ gofs.NodeReaddirer = (*node)(nil)
	_ gofs.NodeCreater   = (*node)(nil)
	_ gofs.NodeOpener    = (*node)(nil)
	_ gofs.NodeSetattrer = (*node)(nil)
	_ gofs.NodeUnlinker  = (*node)(nil)
	_ gofs.NodeMkdirer   = (*node)(nil)
	_ gofs.NodeRmdirer   = (*node)(nil)
	_ gofs.NodeRenamer   = (*node)(nil)
)

// childPath joins a child name onto this node's path.
func (n *node) childPath(name string) string {
	if n.path == "" {
		return name
	}
	return n.path + "/" + name
}

// fillAttr copies bridge attributes into a kernel attribute struct.
func fillAttr(attr bridge.Attr, out *gofuse.Attr) {
	switch attr.Kind {
	case bridge.KindDirectory:
		out.Mode = syscall.S_IFDIR | attr.Perm
	default:
		out.Mode = syscall.S_IFREG | attr.Perm
	}
	out.Size = attr.Size
	out.Nlink = attr.Nlink
	out.Uid = attr.UID
	out.Gid = attr.GID
	out.Atime = uint64(attr.Mtime)
	out.Mtime = uint64(attr.Mtime)
	out.Ctime = uint64(attr.Mtime)
}

func (n *node) Getattr(ctx context.Context, f gofs.FileHandle, out *gofuse.AttrOut) syscall.Errno {
	attr, status, err := n.client.GetAttr(n.path)
	if err != nil {
		logger.Error("getattr(%s): transport failure: %v", n.path, err)
		return syscall.EIO
	}
	if status != bridge.StatusOK {
		return statusToErrno(status)
	}
	fillAttr(attr, &out.Attr)
	return 0
}

func (n *node) Lookup(ctx context.Context, name string, out *gofuse.EntryOut) (*gofs.Inode, syscall.Errno) {
	child := n.childPath(name)
	attr, status, err := n.client.GetAttr(child)
	if err != nil {
		logger.Error("lookup(%s): transport failure: %v", child, err)
		return nil, syscall.EIO
	}
	if status != bridge.StatusOK {
		return nil, statusToErrno(status)
	}

	mode := uint32(syscall.S_IFREG)
	if attr.Kind == bridge.KindDirectory {
		mode = syscall.S_IFDIR
	}
	inode := n.NewInode(ctx, &node{client: n.client, path: child}, gofs.StableAttr{Mode: mode})
	fillAttr(attr, &out.Attr)
	return inode, 0
}

func (n *node) Readdir(ctx context.Context) (gofs.DirStream, syscall.Errno) {
	names, status, err := n.client.Readdir(n.path)
	if err != nil {
		logger.Error("readdir(%s): transport failure: %v", n.path, err)
		return nil, syscall.EIO
	}
	if status != bridge.StatusOK {
		return nil, statusToErrno(status)
	}

	entries := make([]gofuse.DirEntry, 0, len(names))
	for _, name := range names {
		mode := uint32(syscall.S_IFREG)
		if attr, status, err := n.client.GetAttr(n.childPath(name)); err == nil &&
			status == bridge.StatusOK && attr.Kind == bridge.KindDirectory {
			mode = syscall.S_IFDIR
		}
		entries = append(entries, gofuse.DirEntry{Name: name, Mode: mode})
	}
	return gofs.NewListDirStream(entries), 0
}

func (n *node) Create(ctx context.Context, name string, flags uint32, mode uint32, out *gofuse.EntryOut) (*gofs.Inode, gofs.FileHandle, uint32, syscall.Errno) {
	child := n.childPath(name)
	status, err := n.client.Create(child, mode|bridge.ModeRegularFile)
	if err != nil {
		logger.Error("create(%s): transport failure: %v", child, err)
		return nil, nil, 0, syscall.EIO
	}
	if status != bridge.StatusOK {
		return nil, nil, 0, statusToErrno(status)
	}

	attr, status, err := n.client.GetAttr(child)
	if err != nil || status != bridge.StatusOK {
		return nil, nil, 0, syscall.EIO
	}
	inode := n.NewInode(ctx, &node{client: n.client, path: child}, gofs.StableAttr{Mode: syscall.S_IFREG})
	fillAttr(attr, &out.Attr)
	return inode, &fileHandle{client: n.client, path: child}, 0, 0
}

func (n *node) Open(ctx context.Context, flags uint32) (gofs.FileHandle, uint32, syscall.Errno) {
	status, err := n.client.Access(n.path)
	if err != nil {
		logger.Error("open(%s): transport failure: %v", n.path, err)
		return nil, 0, syscall.EIO
	}
	if status != bridge.StatusOK {
		return nil, 0, statusToErrno(status)
	}
	return &fileHandle{client: n.client, path: n.path}, 0, 0
}

func (n *node) Setattr(ctx context.Context, f gofs.FileHandle, in *gofuse.SetAttrIn, out *gofuse.AttrOut) syscall.Errno {
	if size, ok := in.GetSize(); ok {
		status, err := n.client.Truncate(n.path, int64(size))
		if err != nil {
			logger.Error("truncate(%s, %d): transport failure: %v", n.path, size, err)
			return syscall.EIO
		}
		if status != bridge.StatusOK {
			return statusToErrno(status)
		}
	}
	// Mode, ownership, and time changes are accepted and discarded: the
	// enclave synthesizes those attributes.
	return n.Getattr(ctx, f, out)
}

func (n *node) Unlink(ctx context.Context, name string) syscall.Errno {
	status, err := n.client.Unlink(n.childPath(name))
	if err != nil {
		logger.Error("unlink(%s): transport failure: %v", n.childPath(name), err)
		return syscall.EIO
	}
	return statusToErrno(status)
}

func (n *node) Mkdir(ctx context.Context, name string, mode uint32, out *gofuse.EntryOut) (*gofs.Inode, syscall.Errno) {
	child := n.childPath(name)
	status, err := n.client.Mkdir(child)
	if err != nil {
		logger.Error("mkdir(%s): transport failure: %v", child, err)
		return nil, syscall.EIO
	}
	if status != bridge.StatusOK {
		return nil, statusToErrno(status)
	}

	attr, status, err := n.client.GetAttr(child)
	if err != nil || status != bridge.StatusOK {
		return nil, syscall.EIO
	}
	inode := n.NewInode(ctx, &node{client: n.client, path: child}, gofs.StableAttr{Mode: syscall.S_IFDIR})
	fillAttr(attr, &out.Attr)
	return inode, 0
}

func (n *node) Rmdir(ctx context.Context, name string) syscall.Errno {
	status, err := n.client.Rmdir(n.childPath(name))
	if err != nil {
		logger.Error("rmdir(%s): transport failure: %v", n.childPath(name), err)
		return syscall.EIO
	}
	return statusToErrno(status)
}

// Rename is recognized but not implemented.
func (n *node) Rename(ctx context.Context, name string, newParent gofs.InodeEmbedder, newName string, flags uint32) syscall.Errno {
	return syscall.ENOTSUP
}

// fileHandle performs reads and writes for one open file.
type fileHandle struct {
	client *transport.Client
	path   string
}

var (
	_ gofs.FileReader = (*fileHandle)(nil)
	_ gofs.FileWriter = (*fileHandle)(nil)
)

func (h *fileHandle) Read(ctx context.Context, dest []byte, off int64) (gofuse.ReadResult, syscall.Errno) {
	data, status, err := h.client.Read(h.path, off, int64(len(dest)))
	if err != nil {
		logger.Error("read(%s): transport failure: %v", h.path, err)
		return nil, syscall.EIO
	}
	if status != bridge.StatusOK {
		// Partial decrypted data cannot be returned through the
		// kernel alongside an error; the failure wins.
		return nil, statusToErrno(status)
	}
	return gofuse.ReadResultData(data), 0
}

func (h *fileHandle) Write(ctx context.Context, data []byte, off int64) (uint32, syscall.Errno) {
	// The block store does not sparse-extend: a write starting past end
	// of file is preceded by a truncate that grows the file to the
	// write offset.
	attr, status, err := h.client.GetAttr(h.path)
	if err != nil {
		logger.Error("write(%s): transport failure: %v", h.path, err)
		return 0, syscall.EIO
	}
	if status != bridge.StatusOK {
		return 0, statusToErrno(status)
	}
	if uint64(off) > attr.Size {
		status, err := h.client.Truncate(h.path, off)
		if err != nil {
			logger.Error("write(%s): truncate to %d failed: %v", h.path, off, err)
			return 0, syscall.EIO
		}
		if status != bridge.StatusOK {
			return 0, statusToErrno(status)
		}
	}

	written, status, err := h.client.Write(h.path, off, data)
	if err != nil {
		logger.Error("write(%s): transport failure: %v", h.path, err)
		return 0, syscall.EIO
	}
	if status != bridge.StatusOK {
		return uint32(written), statusToErrno(status)
	}
	return uint32(written), 0
}
