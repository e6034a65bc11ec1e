package sealing

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
)

// Sealed block layout:
//
//	┌──────────────────────────────────────┐
//	│ payload size (uint32, big-endian)    │
//	│ cipher suite (1 byte)                │
//	│ nonce (12 bytes)                     │
//	├──────────────────────────────────────┤
//	│ ciphertext (payload size bytes)      │
//	│ authentication tag (16 bytes)        │
//	└──────────────────────────────────────┘
//
// The tag is produced by the AEAD as the trailing bytes of the ciphertext;
// accounting for it in HeaderSize keeps the identity
// len(sealed) == HeaderSize + payloadSize.
const (
	payloadSizeLen = 4
	suiteLen       = 1

	// NonceSize is the AEAD nonce length (identical for both suites).
	NonceSize = 12

	// TagSize is the AEAD authentication tag length.
	TagSize = 16

	// headerPrefixLen is the cleartext prefix before the ciphertext.
	headerPrefixLen = payloadSizeLen + suiteLen + NonceSize

	// HeaderSize is the fixed per-block overhead: a sealed block is
	// always HeaderSize + payload bytes long.
	HeaderSize = headerPrefixLen + TagSize

	// MaxPayloadSize bounds a single block's plaintext (16 MiB). The
	// file store's block size is far below this; the bound protects the
	// header decoder against corrupt length fields.
	MaxPayloadSize = 16 * 1024 * 1024
)

// SealedSize returns the serialized size of a block carrying payloadSize
// plaintext bytes.
func SealedSize(payloadSize int) int {
	return HeaderSize + payloadSize
}

// PayloadSize reads the plaintext length from a sealed block header without
// unsealing it. The untrusted side uses this to compute file sizes and to
// re-split concatenated blocks on restore.
func PayloadSize(sealed []byte) (int, error) {
	if len(sealed) < HeaderSize {
		return 0, fmt.Errorf("%w: sealed block of %d bytes shorter than header",
			ErrIntegrityCheckFailed, len(sealed))
	}
	size := int(binary.BigEndian.Uint32(sealed[:payloadSizeLen]))
	if size == 0 || size > MaxPayloadSize {
		return 0, fmt.Errorf("%w: header declares payload of %d bytes",
			ErrIntegrityCheckFailed, size)
	}
	return size, nil
}

// AEADSealer is the Sealer implementation over the AEAD cipher engines. It
// seals under one suite but unseals blocks of either, dispatching on the
// suite byte each block carries.
type AEADSealer struct {
	suite   CipherSuite
	engines map[CipherSuite]cipherEngine
}

// NewSealer builds a sealer for the given suite with the key obtained from
// the provider. CipherAuto resolves to AES-256-GCM. A provider failure
// surfaces as ErrKeyUnavailable.
func NewSealer(suite CipherSuite, keys KeyProvider) (*AEADSealer, error) {
	if suite == CipherAuto {
		suite = CipherAES256GCM
	}

	key, err := keys.SealingKey()
	if err != nil {
		return nil, err
	}

	engines := make(map[CipherSuite]cipherEngine, 2)
	for _, s := range []CipherSuite{CipherAES256GCM, CipherChaCha20Poly1305} {
		engine, err := newCipherEngine(s, key)
		if err != nil {
			return nil, err
		}
		engines[s] = engine
	}

	if _, ok := engines[suite]; !ok {
		return nil, fmt.Errorf("%w: 0x%02x", ErrUnsupportedCipher, byte(suite))
	}

	return &AEADSealer{suite: suite, engines: engines}, nil
}

// Seal encrypts plaintext into a fresh sealed block.
func (s *AEADSealer) Seal(plaintext []byte) ([]byte, error) {
	if len(plaintext) == 0 {
		return nil, ErrEmptyPayload
	}
	if len(plaintext) > MaxPayloadSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(plaintext))
	}

	sealed := make([]byte, headerPrefixLen, SealedSize(len(plaintext)))
	binary.BigEndian.PutUint32(sealed[:payloadSizeLen], uint32(len(plaintext)))
	sealed[payloadSizeLen] = byte(s.suite)

	nonce := sealed[payloadSizeLen+suiteLen : headerPrefixLen]
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext, err := s.engines[s.suite].Encrypt(nonce, plaintext)
	if err != nil {
		return nil, err
	}

	return append(sealed, ciphertext...), nil
}

// Unseal authenticates and decrypts a sealed block.
func (s *AEADSealer) Unseal(sealed []byte) ([]byte, error) {
	size, err := PayloadSize(sealed)
	if err != nil {
		return nil, err
	}
	if len(sealed) != SealedSize(size) {
		return nil, fmt.Errorf("%w: sealed block is %d bytes, header declares %d",
			ErrIntegrityCheckFailed, len(sealed), SealedSize(size))
	}

	suite := CipherSuite(sealed[payloadSizeLen])
	engine, ok := s.engines[suite]
	if !ok {
		// An unknown suite byte means the header was altered or damaged.
		return nil, fmt.Errorf("%w: %w: 0x%02x",
			ErrIntegrityCheckFailed, ErrUnsupportedCipher, byte(suite))
	}

	nonce := sealed[payloadSizeLen+suiteLen : headerPrefixLen]
	plaintext, err := engine.Decrypt(nonce, sealed[headerPrefixLen:])
	if err != nil {
		return nil, err
	}
	return plaintext, nil
}

var _ Sealer = (*AEADSealer)(nil)
