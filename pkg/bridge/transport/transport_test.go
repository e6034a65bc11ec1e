package transport

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dburihabwa/sgx-fs/pkg/bridge"
	"github.com/dburihabwa/sgx-fs/pkg/enclave"
	"github.com/dburihabwa/sgx-fs/pkg/sealing"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()

	key := make([]byte, sealing.KeySize)
	sealer, err := sealing.NewSealer(sealing.CipherAuto, sealing.StaticKeyProvider(key))
	require.NoError(t, err)

	enc, err := enclave.New(enclave.Config{BlockSize: 16, Sealer: sealer})
	require.NoError(t, err)
	require.NoError(t, enc.Mount(context.Background(), nil))

	dispatcher := bridge.NewDispatcher(enc, bridge.Options{UID: 1000, GID: 1000})
	return NewClient(NewBoundary(dispatcher))
}

func TestFullOperationFlow(t *testing.T) {
	client := newTestClient(t)

	status, err := client.Mkdir("/docs")
	require.NoError(t, err)
	require.Equal(t, bridge.StatusOK, status)

	status, err = client.Create("/docs/note", bridge.ModeRegularFile|0644)
	require.NoError(t, err)
	require.Equal(t, bridge.StatusOK, status)

	written, status, err := client.Write("/docs/note", 0, []byte("hello across the boundary"))
	require.NoError(t, err)
	require.Equal(t, bridge.StatusOK, status)
	assert.Equal(t, 25, written)

	data, status, err := client.Read("/docs/note", 6, 6)
	require.NoError(t, err)
	require.Equal(t, bridge.StatusOK, status)
	assert.Equal(t, []byte("across"), data)

	attr, status, err := client.GetAttr("/docs/note")
	require.NoError(t, err)
	require.Equal(t, bridge.StatusOK, status)
	assert.Equal(t, bridge.KindRegular, attr.Kind)
	assert.Equal(t, uint64(25), attr.Size)
	assert.Equal(t, uint32(1000), attr.UID)

	entries, status, err := client.Readdir("/docs")
	require.NoError(t, err)
	require.Equal(t, bridge.StatusOK, status)
	assert.Equal(t, []string{"note"}, entries)

	status, err = client.Truncate("/docs/note", 5)
	require.NoError(t, err)
	require.Equal(t, bridge.StatusOK, status)

	data, status, err = client.Read("/docs/note", 0, 100)
	require.NoError(t, err)
	require.Equal(t, bridge.StatusOK, status)
	assert.Equal(t, []byte("hello"), data)

	status, err = client.Unlink("/docs/note")
	require.NoError(t, err)
	require.Equal(t, bridge.StatusOK, status)

	status, err = client.Rmdir("/docs")
	require.NoError(t, err)
	require.Equal(t, bridge.StatusOK, status)
}

func TestStatusesCrossTheBoundary(t *testing.T) {
	client := newTestClient(t)

	status, err := client.Access("/missing")
	require.NoError(t, err)
	assert.Equal(t, bridge.StatusNoEnt, status)

	status, err = client.Create("/dir-mode", 0040000)
	require.NoError(t, err)
	assert.Equal(t, bridge.StatusInval, status)

	_, status, err = client.Readdir("/missing")
	require.NoError(t, err)
	assert.Equal(t, bridge.StatusNoEnt, status)
}

func TestEntryEncoding(t *testing.T) {
	entries := []string{"alpha", "beta", "a name with spaces"}

	encoded := EncodeEntries(entries)
	decoded, err := DecodeEntries(encoded, uint32(len(entries)))
	require.NoError(t, err)
	assert.Equal(t, entries, decoded)
}

func TestEntryEncodingEmpty(t *testing.T) {
	decoded, err := DecodeEntries(EncodeEntries(nil), 0)
	require.NoError(t, err)
	assert.Empty(t, decoded)
}

func TestEntryDecodingRejectsBadCount(t *testing.T) {
	encoded := EncodeEntries([]string{"one", "two"})

	_, err := DecodeEntries(encoded, 3)
	assert.Error(t, err)

	_, err = DecodeEntries(nil, 1)
	assert.Error(t, err)

	_, err = DecodeEntries([]byte("unterminated"), 1)
	assert.Error(t, err)
}

func TestSeparatorRejectedInPaths(t *testing.T) {
	client := newTestClient(t)

	// A name carrying the entry separator can never appear in a
	// listing, so its creation is refused outright.
	status, err := client.Create("/bad\x1cname", bridge.ModeRegularFile)
	require.NoError(t, err)
	assert.Equal(t, bridge.StatusInval, status)
}

func TestUnknownOpCodeIsTransportError(t *testing.T) {
	client := newTestClient(t)

	_, err := client.boundary.Call(OpCode(999), nil)
	assert.Error(t, err)
}
