package sealing

import (
	"errors"
	"fmt"
	"os"
)

// ============================================================================
// Sealing Errors
// ============================================================================

// These errors provide a consistent way to indicate sealing failures across
// the codec. The file store checks for them with errors.Is and maps them to
// its own error taxonomy before they reach the bridge.
var (
	// ErrIntegrityCheckFailed indicates the authenticated tag did not
	// verify, or the sealed blob is structurally corrupt. Data protected
	// by the block must be treated as unreadable.
	ErrIntegrityCheckFailed = errors.New("sealed block integrity check failed")

	// ErrKeyUnavailable indicates the sealing key cannot be obtained,
	// e.g. the platform state has advanced past the sealing policy.
	ErrKeyUnavailable = errors.New("sealing key unavailable")

	// ErrUnsupportedCipher indicates an unknown cipher suite identifier.
	ErrUnsupportedCipher = errors.New("unsupported cipher suite")

	// ErrEmptyPayload indicates an attempt to seal a zero-length buffer.
	// Blocks never carry an empty payload; empty files carry no blocks.
	ErrEmptyPayload = errors.New("cannot seal empty payload")

	// ErrPayloadTooLarge indicates the plaintext exceeds the maximum
	// payload a single sealed block may carry.
	ErrPayloadTooLarge = errors.New("payload exceeds maximum block size")
)

// ============================================================================
// Cipher Suites
// ============================================================================

// CipherSuite identifies the AEAD construction used to seal a block. The
// suite is recorded in every sealed block header so that blocks sealed
// under either suite unseal correctly after a configuration change.
type CipherSuite byte

const (
	// CipherAuto selects a suite at sealer construction (currently
	// AES-256-GCM).
	CipherAuto CipherSuite = 0

	// CipherAES256GCM seals with AES-256 in Galois/Counter Mode.
	CipherAES256GCM CipherSuite = 1

	// CipherChaCha20Poly1305 seals with ChaCha20-Poly1305.
	CipherChaCha20Poly1305 CipherSuite = 2
)

// ParseCipherSuite maps a configuration string to a CipherSuite.
func ParseCipherSuite(name string) (CipherSuite, error) {
	switch name {
	case "", "auto":
		return CipherAuto, nil
	case "aes-256-gcm":
		return CipherAES256GCM, nil
	case "chacha20-poly1305":
		return CipherChaCha20Poly1305, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedCipher, name)
	}
}

// ============================================================================
// Sealer Interface
// ============================================================================

// Sealer wraps a plaintext buffer into a self-describing, integrity
// protected sealed block, and back. Both operations are pure: a sealer
// holds key material but no per-block state.
//
// Sealed blocks are safe to hand to untrusted storage; plaintext returned
// by Unseal must stay inside the trusted boundary and be zeroed by the
// caller once copied out of.
type Sealer interface {
	// Seal encrypts plaintext (0 < len ≤ MaxPayloadSize) into a sealed
	// block of exactly HeaderSize+len(plaintext) bytes. Ciphertext is
	// randomized: sealing the same plaintext twice yields different
	// bytes of the same length.
	Seal(plaintext []byte) ([]byte, error)

	// Unseal authenticates and decrypts a sealed block, returning its
	// payload. Fails with ErrIntegrityCheckFailed on tampering or
	// corruption.
	Unseal(sealed []byte) ([]byte, error)
}

// ============================================================================
// Key Providers
// ============================================================================

// KeySize is the sealing key length in bytes (both suites take 256-bit keys).
const KeySize = 32

// KeyProvider supplies the sealing key. A failure models the platform
// refusing to derive the key (PolicyError in the operation taxonomy).
type KeyProvider interface {
	SealingKey() ([]byte, error)
}

// FileKeyProvider reads the sealing key from a file on the trusted side.
type FileKeyProvider struct {
	Path string
}

func (p *FileKeyProvider) SealingKey() ([]byte, error) {
	key, err := os.ReadFile(p.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", ErrKeyUnavailable, p.Path, err)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: key file %s holds %d bytes, want %d",
			ErrKeyUnavailable, p.Path, len(key), KeySize)
	}
	return key, nil
}

// StaticKeyProvider returns a fixed key. Intended for tests.
type StaticKeyProvider []byte

func (p StaticKeyProvider) SealingKey() ([]byte, error) {
	if len(p) != KeySize {
		return nil, fmt.Errorf("%w: static key holds %d bytes, want %d",
			ErrKeyUnavailable, len(p), KeySize)
	}
	return []byte(p), nil
}
