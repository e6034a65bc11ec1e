// Package transport realizes the trusted-call boundary between the
// untrusted host and the enclave dispatcher. Every operation is a
// synchronous call whose arguments and results are primitive-typed fields
// plus length-tagged byte buffers, framed with XDR — the same shape a
// generated enclave call interface would produce. A single mutex inside
// the boundary serializes every crossing; the core never sees concurrent
// operations.
//
// Directory listings cross the boundary as one opaque buffer holding the
// entry names separated by the byte 0x1C, with the entry count carried in
// a separate field. Path normalization rejects names containing the
// separator, so the encoding is unambiguous.
package transport

import (
	"bytes"
	"fmt"
	"sync"

	xdr "github.com/rasky/go-xdr/xdr2"

	"github.com/dburihabwa/sgx-fs/pkg/bridge"
	"github.com/dburihabwa/sgx-fs/pkg/enclave"
)

// OpCode identifies a trusted call.
type OpCode uint32

const (
	OpGetAttr OpCode = iota + 1
	OpReaddir
	OpAccess
	OpCreate
	OpRead
	OpWrite
	OpUnlink
	OpTruncate
	OpMkdir
	OpRmdir
)

// ============================================================================
// Wire Messages
// ============================================================================

type pathRequest struct {
	Path string
}

type statusResponse struct {
	Status uint32
}

type getAttrResponse struct {
	Status uint32
	Kind   uint32
	Size   uint64
	Nlink  uint32
	UID    uint32
	GID    uint32
	Perm   uint32
	Mtime  int64
}

type readdirResponse struct {
	Status uint32
	Count  uint32
	// Entries holds the names back to back, separated by 0x1C.
	Entries []byte
}

type createRequest struct {
	Path string
	Mode uint32
}

type readRequest struct {
	Path   string
	Offset int64
	Size   int64
}

type readResponse struct {
	Status uint32
	Data   []byte
}

type writeRequest struct {
	Path   string
	Offset int64
	Data   []byte
}

type writeResponse struct {
	Status  uint32
	Written uint32
}

type truncateRequest struct {
	Path   string
	Length int64
}

// EncodeEntries joins directory entry names with the 0x1C separator. Every
// entry, including the last, is terminated by the separator, matching how
// the listing is unpacked on the untrusted side.
func EncodeEntries(entries []string) []byte {
	var buffer bytes.Buffer
	for _, entry := range entries {
		buffer.WriteString(entry)
		buffer.WriteByte(enclave.EntrySeparator)
	}
	return buffer.Bytes()
}

// DecodeEntries splits a separator-encoded listing back into names,
// checking the advertised count.
func DecodeEntries(encoded []byte, count uint32) ([]string, error) {
	if len(encoded) == 0 {
		if count != 0 {
			return nil, fmt.Errorf("listing advertises %d entries but carries none", count)
		}
		return []string{}, nil
	}
	if encoded[len(encoded)-1] != enclave.EntrySeparator {
		return nil, fmt.Errorf("listing does not end with the entry separator")
	}

	parts := bytes.Split(encoded[:len(encoded)-1], []byte{enclave.EntrySeparator})
	if uint32(len(parts)) != count {
		return nil, fmt.Errorf("listing advertises %d entries but carries %d", count, len(parts))
	}

	entries := make([]string, len(parts))
	for i, part := range parts {
		entries[i] = string(part)
	}
	return entries, nil
}

// ============================================================================
// Boundary (trusted side)
// ============================================================================

// Boundary is the trusted endpoint: it unmarshals each call, dispatches
// it, and marshals the response. The mutex is the system's single point
// of serialization — hosts may be multi-threaded, but every crossing
// takes this lock.
type Boundary struct {
	mu         sync.Mutex
	dispatcher *bridge.Dispatcher
}

// NewBoundary wraps a dispatcher.
func NewBoundary(dispatcher *bridge.Dispatcher) *Boundary {
	return &Boundary{dispatcher: dispatcher}
}

// Call executes one trusted call. Transport-level failures (malformed
// frames) are errors; operation outcomes ride in the response status.
func (b *Boundary) Call(op OpCode, request []byte) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch op {
	case OpGetAttr:
		var req pathRequest
		if err := unmarshal(request, &req); err != nil {
			return nil, err
		}
		attr, status := b.dispatcher.GetAttr(req.Path)
		return marshal(&getAttrResponse{
			Status: uint32(status),
			Kind:   attr.Kind,
			Size:   attr.Size,
			Nlink:  attr.Nlink,
			UID:    attr.UID,
			GID:    attr.GID,
			Perm:   attr.Perm,
			Mtime:  attr.Mtime,
		})

	case OpReaddir:
		var req pathRequest
		if err := unmarshal(request, &req); err != nil {
			return nil, err
		}
		entries, status := b.dispatcher.Readdir(req.Path)
		return marshal(&readdirResponse{
			Status:  uint32(status),
			Count:   uint32(len(entries)),
			Entries: EncodeEntries(entries),
		})

	case OpAccess:
		var req pathRequest
		if err := unmarshal(request, &req); err != nil {
			return nil, err
		}
		return marshal(&statusResponse{Status: uint32(b.dispatcher.Access(req.Path))})

	case OpCreate:
		var req createRequest
		if err := unmarshal(request, &req); err != nil {
			return nil, err
		}
		return marshal(&statusResponse{Status: uint32(b.dispatcher.Create(req.Path, req.Mode))})

	case OpRead:
		var req readRequest
		if err := unmarshal(request, &req); err != nil {
			return nil, err
		}
		data, status := b.dispatcher.Read(req.Path, req.Offset, req.Size)
		response, err := marshal(&readResponse{Status: uint32(status), Data: data})
		// The response frame now owns the only plaintext copy that
		// leaves the boundary; the working buffer is wiped before the
		// call returns.
		for i := range data {
			data[i] = 0
		}
		return response, err

	case OpWrite:
		var req writeRequest
		if err := unmarshal(request, &req); err != nil {
			return nil, err
		}
		written, status := b.dispatcher.Write(req.Path, req.Offset, req.Data)
		for i := range req.Data {
			req.Data[i] = 0
		}
		return marshal(&writeResponse{Status: uint32(status), Written: uint32(written)})

	case OpUnlink:
		var req pathRequest
		if err := unmarshal(request, &req); err != nil {
			return nil, err
		}
		return marshal(&statusResponse{Status: uint32(b.dispatcher.Unlink(req.Path))})

	case OpTruncate:
		var req truncateRequest
		if err := unmarshal(request, &req); err != nil {
			return nil, err
		}
		return marshal(&statusResponse{Status: uint32(b.dispatcher.Truncate(req.Path, req.Length))})

	case OpMkdir:
		var req pathRequest
		if err := unmarshal(request, &req); err != nil {
			return nil, err
		}
		return marshal(&statusResponse{Status: uint32(b.dispatcher.Mkdir(req.Path))})

	case OpRmdir:
		var req pathRequest
		if err := unmarshal(request, &req); err != nil {
			return nil, err
		}
		return marshal(&statusResponse{Status: uint32(b.dispatcher.Rmdir(req.Path))})

	default:
		return nil, fmt.Errorf("unknown operation code %d", op)
	}
}

func marshal(value any) ([]byte, error) {
	var buffer bytes.Buffer
	if _, err := xdr.Marshal(&buffer, value); err != nil {
		return nil, fmt.Errorf("failed to marshal trusted-call frame: %w", err)
	}
	return buffer.Bytes(), nil
}

func unmarshal(data []byte, value any) error {
	if _, err := xdr.Unmarshal(bytes.NewReader(data), value); err != nil {
		return fmt.Errorf("failed to unmarshal trusted-call frame: %w", err)
	}
	return nil
}

// ============================================================================
// Client (untrusted side)
// ============================================================================

// Client is the untrusted endpoint: typed wrappers that marshal each call
// onto the boundary and unpack the response. The kernel bridge adapter
// talks to the filesystem exclusively through a Client.
type Client struct {
	boundary *Boundary
}

// NewClient connects to a boundary.
func NewClient(boundary *Boundary) *Client {
	return &Client{boundary: boundary}
}

func (c *Client) call(op OpCode, request, response any) error {
	frame, err := marshal(request)
	if err != nil {
		return err
	}
	reply, err := c.boundary.Call(op, frame)
	if err != nil {
		return err
	}
	return unmarshal(reply, response)
}

// GetAttr fetches synthesized attributes.
func (c *Client) GetAttr(path string) (bridge.Attr, bridge.Status, error) {
	var resp getAttrResponse
	if err := c.call(OpGetAttr, &pathRequest{Path: path}, &resp); err != nil {
		return bridge.Attr{}, bridge.StatusIO, err
	}
	return bridge.Attr{
		Kind:  resp.Kind,
		Size:  resp.Size,
		Nlink: resp.Nlink,
		UID:   resp.UID,
		GID:   resp.GID,
		Perm:  resp.Perm,
		Mtime: resp.Mtime,
	}, bridge.Status(resp.Status), nil
}

// Readdir fetches and decodes a directory listing.
func (c *Client) Readdir(path string) ([]string, bridge.Status, error) {
	var resp readdirResponse
	if err := c.call(OpReaddir, &pathRequest{Path: path}, &resp); err != nil {
		return nil, bridge.StatusIO, err
	}
	if bridge.Status(resp.Status) != bridge.StatusOK {
		return nil, bridge.Status(resp.Status), nil
	}
	entries, err := DecodeEntries(resp.Entries, resp.Count)
	if err != nil {
		return nil, bridge.StatusIO, err
	}
	return entries, bridge.StatusOK, nil
}

// Access checks for existence.
func (c *Client) Access(path string) (bridge.Status, error) {
	var resp statusResponse
	if err := c.call(OpAccess, &pathRequest{Path: path}, &resp); err != nil {
		return bridge.StatusIO, err
	}
	return bridge.Status(resp.Status), nil
}

// Create makes an empty file.
func (c *Client) Create(path string, mode uint32) (bridge.Status, error) {
	var resp statusResponse
	if err := c.call(OpCreate, &createRequest{Path: path, Mode: mode}, &resp); err != nil {
		return bridge.StatusIO, err
	}
	return bridge.Status(resp.Status), nil
}

// Read fetches up to size bytes from offset.
func (c *Client) Read(path string, offset, size int64) ([]byte, bridge.Status, error) {
	var resp readResponse
	if err := c.call(OpRead, &readRequest{Path: path, Offset: offset, Size: size}, &resp); err != nil {
		return nil, bridge.StatusIO, err
	}
	return resp.Data, bridge.Status(resp.Status), nil
}

// Write stores data at offset.
func (c *Client) Write(path string, offset int64, data []byte) (int, bridge.Status, error) {
	var resp writeResponse
	if err := c.call(OpWrite, &writeRequest{Path: path, Offset: offset, Data: data}, &resp); err != nil {
		return 0, bridge.StatusIO, err
	}
	return int(resp.Written), bridge.Status(resp.Status), nil
}

// Unlink removes a file.
func (c *Client) Unlink(path string) (bridge.Status, error) {
	var resp statusResponse
	if err := c.call(OpUnlink, &pathRequest{Path: path}, &resp); err != nil {
		return bridge.StatusIO, err
	}
	return bridge.Status(resp.Status), nil
}

// Truncate resizes a file.
func (c *Client) Truncate(path string, length int64) (bridge.Status, error) {
	var resp statusResponse
	if err := c.call(OpTruncate, &truncateRequest{Path: path, Length: length}, &resp); err != nil {
		return bridge.StatusIO, err
	}
	return bridge.Status(resp.Status), nil
}

// Mkdir makes a directory.
func (c *Client) Mkdir(path string) (bridge.Status, error) {
	var resp statusResponse
	if err := c.call(OpMkdir, &pathRequest{Path: path}, &resp); err != nil {
		return bridge.StatusIO, err
	}
	return bridge.Status(resp.Status), nil
}

// Rmdir removes an empty directory.
func (c *Client) Rmdir(path string) (bridge.Status, error) {
	var resp statusResponse
	if err := c.call(OpRmdir, &pathRequest{Path: path}, &resp); err != nil {
		return bridge.StatusIO, err
	}
	return bridge.Status(resp.Status), nil
}
