package sealing

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// cipherEngine is the AEAD primitive behind a cipher suite. Both supported
// suites use 12-byte nonces and 16-byte tags, which keeps the sealed block
// header layout suite-independent.
type cipherEngine interface {
	// Encrypt seals plaintext under the given nonce.
	Encrypt(nonce, plaintext []byte) ([]byte, error)

	// Decrypt opens ciphertext under the given nonce.
	Decrypt(nonce, ciphertext []byte) ([]byte, error)
}

// aesGCMEngine implements cipherEngine using AES-256-GCM.
type aesGCMEngine struct {
	aead cipher.AEAD
}

func newAESGCMEngine(key []byte) (*aesGCMEngine, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("AES-256-GCM requires a %d-byte key, got %d bytes", KeySize, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &aesGCMEngine{aead: aead}, nil
}

func (e *aesGCMEngine) Encrypt(nonce, plaintext []byte) ([]byte, error) {
	if len(nonce) != e.aead.NonceSize() {
		return nil, fmt.Errorf("nonce must be %d bytes, got %d", e.aead.NonceSize(), len(nonce))
	}
	return e.aead.Seal(nil, nonce, plaintext, nil), nil
}

func (e *aesGCMEngine) Decrypt(nonce, ciphertext []byte) ([]byte, error) {
	if len(nonce) != e.aead.NonceSize() {
		return nil, fmt.Errorf("nonce must be %d bytes, got %d", e.aead.NonceSize(), len(nonce))
	}
	plaintext, err := e.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrIntegrityCheckFailed
	}
	return plaintext, nil
}

// chaCha20Poly1305Engine implements cipherEngine using ChaCha20-Poly1305.
type chaCha20Poly1305Engine struct {
	aead cipher.AEAD
}

func newChaCha20Poly1305Engine(key []byte) (*chaCha20Poly1305Engine, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("ChaCha20-Poly1305 requires a %d-byte key, got %d bytes",
			chacha20poly1305.KeySize, len(key))
	}

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create ChaCha20-Poly1305 cipher: %w", err)
	}

	return &chaCha20Poly1305Engine{aead: aead}, nil
}

func (e *chaCha20Poly1305Engine) Encrypt(nonce, plaintext []byte) ([]byte, error) {
	if len(nonce) != e.aead.NonceSize() {
		return nil, fmt.Errorf("nonce must be %d bytes, got %d", e.aead.NonceSize(), len(nonce))
	}
	return e.aead.Seal(nil, nonce, plaintext, nil), nil
}

func (e *chaCha20Poly1305Engine) Decrypt(nonce, ciphertext []byte) ([]byte, error) {
	if len(nonce) != e.aead.NonceSize() {
		return nil, fmt.Errorf("nonce must be %d bytes, got %d", e.aead.NonceSize(), len(nonce))
	}
	plaintext, err := e.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrIntegrityCheckFailed
	}
	return plaintext, nil
}

// newCipherEngine creates the engine for a resolved (non-auto) suite.
func newCipherEngine(suite CipherSuite, key []byte) (cipherEngine, error) {
	switch suite {
	case CipherAES256GCM:
		return newAESGCMEngine(key)
	case CipherChaCha20Poly1305:
		return newChaCha20Poly1305Engine(key)
	default:
		return nil, fmt.Errorf("%w: 0x%02x", ErrUnsupportedCipher, byte(suite))
	}
}
