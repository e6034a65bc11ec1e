package sealing

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, data, 0600))
}

func testKey() StaticKeyProvider {
	key := make([]byte, KeySize)
	for i := range key {
		key[i] = byte(i)
	}
	return StaticKeyProvider(key)
}

func newTestSealer(t *testing.T, suite CipherSuite) *AEADSealer {
	t.Helper()
	sealer, err := NewSealer(suite, testKey())
	require.NoError(t, err)
	return sealer
}

func TestSealUnsealRoundTrip(t *testing.T) {
	sealer := newTestSealer(t, CipherAuto)

	sizes := []int{1, 15, 16, 17, 4095, 4096, 65536}
	for _, size := range sizes {
		plaintext := bytes.Repeat([]byte{0xAB}, size)

		sealed, err := sealer.Seal(plaintext)
		require.NoError(t, err, "seal %d bytes", size)
		assert.Equal(t, SealedSize(size), len(sealed), "sealed size for %d bytes", size)

		unsealed, err := sealer.Unseal(sealed)
		require.NoError(t, err, "unseal %d bytes", size)
		assert.Equal(t, plaintext, unsealed)
	}
}

func TestSealIsRandomized(t *testing.T) {
	sealer := newTestSealer(t, CipherAuto)
	plaintext := []byte("the same plaintext")

	first, err := sealer.Seal(plaintext)
	require.NoError(t, err)
	second, err := sealer.Seal(plaintext)
	require.NoError(t, err)

	assert.Equal(t, len(first), len(second), "sealed length must be deterministic")
	assert.NotEqual(t, first, second, "ciphertext must differ between seals")
}

func TestPayloadSizeWithoutUnsealing(t *testing.T) {
	sealer := newTestSealer(t, CipherAuto)

	sealed, err := sealer.Seal(make([]byte, 1234))
	require.NoError(t, err)

	size, err := PayloadSize(sealed)
	require.NoError(t, err)
	assert.Equal(t, 1234, size)
}

func TestPayloadSizeRejectsGarbage(t *testing.T) {
	_, err := PayloadSize([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrIntegrityCheckFailed)

	// A header declaring a zero payload is impossible by construction.
	zeroHeader := make([]byte, HeaderSize)
	_, err = PayloadSize(zeroHeader)
	assert.ErrorIs(t, err, ErrIntegrityCheckFailed)
}

func TestUnsealDetectsTampering(t *testing.T) {
	sealer := newTestSealer(t, CipherAuto)

	sealed, err := sealer.Seal([]byte("confidential block content"))
	require.NoError(t, err)

	for _, offset := range []int{headerPrefixLen, len(sealed) - 1} {
		tampered := append([]byte(nil), sealed...)
		tampered[offset] ^= 0x01

		_, err := sealer.Unseal(tampered)
		assert.ErrorIs(t, err, ErrIntegrityCheckFailed, "flip at offset %d", offset)
	}
}

func TestUnsealDetectsTruncation(t *testing.T) {
	sealer := newTestSealer(t, CipherAuto)

	sealed, err := sealer.Seal([]byte("confidential block content"))
	require.NoError(t, err)

	_, err = sealer.Unseal(sealed[:len(sealed)-4])
	assert.ErrorIs(t, err, ErrIntegrityCheckFailed)
}

func TestUnsealWithWrongKeyFails(t *testing.T) {
	sealer := newTestSealer(t, CipherAuto)
	sealed, err := sealer.Seal([]byte("secret"))
	require.NoError(t, err)

	otherKey := make([]byte, KeySize)
	otherSealer, err := NewSealer(CipherAuto, StaticKeyProvider(otherKey))
	require.NoError(t, err)

	_, err = otherSealer.Unseal(sealed)
	assert.ErrorIs(t, err, ErrIntegrityCheckFailed)
}

func TestSealEmptyPayloadRejected(t *testing.T) {
	sealer := newTestSealer(t, CipherAuto)

	_, err := sealer.Seal(nil)
	assert.ErrorIs(t, err, ErrEmptyPayload)

	_, err = sealer.Seal([]byte{})
	assert.ErrorIs(t, err, ErrEmptyPayload)
}

func TestCrossSuiteUnseal(t *testing.T) {
	// The suite byte in the header selects the engine on unseal, so a
	// sealer configured for one suite opens blocks sealed under the
	// other as long as the key matches.
	aes := newTestSealer(t, CipherAES256GCM)
	chacha := newTestSealer(t, CipherChaCha20Poly1305)

	plaintext := []byte("suite crossing")

	sealedAES, err := aes.Seal(plaintext)
	require.NoError(t, err)
	sealedChaCha, err := chacha.Seal(plaintext)
	require.NoError(t, err)

	fromChaCha, err := chacha.Unseal(sealedAES)
	require.NoError(t, err)
	assert.Equal(t, plaintext, fromChaCha)

	fromAES, err := aes.Unseal(sealedChaCha)
	require.NoError(t, err)
	assert.Equal(t, plaintext, fromAES)
}

func TestParseCipherSuite(t *testing.T) {
	tests := []struct {
		name    string
		want    CipherSuite
		wantErr bool
	}{
		{"", CipherAuto, false},
		{"auto", CipherAuto, false},
		{"aes-256-gcm", CipherAES256GCM, false},
		{"chacha20-poly1305", CipherChaCha20Poly1305, false},
		{"rot13", 0, true},
	}

	for _, tt := range tests {
		suite, err := ParseCipherSuite(tt.name)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrUnsupportedCipher, "suite %q", tt.name)
			continue
		}
		require.NoError(t, err, "suite %q", tt.name)
		assert.Equal(t, tt.want, suite, "suite %q", tt.name)
	}
}

func TestFileKeyProvider(t *testing.T) {
	dir := t.TempDir()

	t.Run("MissingFile", func(t *testing.T) {
		provider := &FileKeyProvider{Path: filepath.Join(dir, "missing")}
		_, err := provider.SealingKey()
		assert.ErrorIs(t, err, ErrKeyUnavailable)
	})

	t.Run("WrongSize", func(t *testing.T) {
		path := filepath.Join(dir, "short")
		writeFile(t, path, []byte("too short"))
		provider := &FileKeyProvider{Path: path}
		_, err := provider.SealingKey()
		assert.ErrorIs(t, err, ErrKeyUnavailable)
	})

	t.Run("Valid", func(t *testing.T) {
		path := filepath.Join(dir, "key")
		want := bytes.Repeat([]byte{0x42}, KeySize)
		writeFile(t, path, want)
		provider := &FileKeyProvider{Path: path}
		key, err := provider.SealingKey()
		require.NoError(t, err)
		assert.Equal(t, want, key)
	})
}

func TestSealerConstructionFailsWithoutKey(t *testing.T) {
	_, err := NewSealer(CipherAuto, StaticKeyProvider(nil))
	assert.ErrorIs(t, err, ErrKeyUnavailable)
}
