// Package aead provides the authenticated encryption layer for msgvault.
//
// Snapshot envelopes are sealed with AES-256-GCM (96-bit nonce, 128-bit tag)
// and carry their nonce explicitly. Staged data at rest uses a nonce-prefixed
// framing and may pick ChaCha20-Poly1305 on hardware without AES
// acceleration.
package aead

import (
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"io"
	"runtime"
)

// Algorithm identifies the AEAD algorithm.
type Algorithm string

const (
	AlgAESGCM   Algorithm = "aes-gcm"
	AlgChaCha20 Algorithm = "chacha20-poly1305"
)

// Cipher provides authenticated encryption.
type Cipher interface {
	// Algorithm returns the cipher algorithm.
	Algorithm() Algorithm

	// Seal encrypts plaintext, generating a random nonce and prepending it
	// to the returned ciphertext.
	Seal(plaintext, additionalData []byte) ([]byte, error)

	// Open decrypts a nonce-prefixed ciphertext produced by Seal.
	Open(sealed, additionalData []byte) ([]byte, error)

	// OpenWithNonce decrypts ciphertext||tag with an externally supplied
	// nonce, as snapshot envelopes carry the nonce out of band.
	OpenWithNonce(nonce, ciphertext, additionalData []byte) ([]byte, error)

	// NonceSize returns the nonce size in bytes.
	NonceSize() int

	// Overhead returns the authentication tag size in bytes.
	Overhead() int
}

// New creates a cipher of the preferred algorithm for this hardware:
// AES-GCM where AES instructions are available, ChaCha20-Poly1305 otherwise.
func New(key []byte) (Cipher, error) {
	if hasAESAcceleration() {
		return NewAESGCM(key)
	}
	return NewChaCha20(key)
}

// NewWithAlgorithm creates a cipher of the specified algorithm.
func NewWithAlgorithm(key []byte, alg Algorithm) (Cipher, error) {
	switch alg {
	case AlgAESGCM:
		return NewAESGCM(key)
	case AlgChaCha20:
		return NewChaCha20(key)
	default:
		return nil, errors.New("unknown aead algorithm: " + string(alg))
	}
}

// hasAESAcceleration reports whether Go's crypto/aes uses hardware AES on
// this architecture.
func hasAESAcceleration() bool {
	switch runtime.GOARCH {
	case "amd64", "arm64":
		return true
	default:
		return false
	}
}

type baseCipher struct {
	aead cipher.AEAD
}

func (c *baseCipher) NonceSize() int {
	return c.aead.NonceSize()
}

func (c *baseCipher) Overhead() int {
	return c.aead.Overhead()
}

func (c *baseCipher) seal(plaintext, additionalData []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return c.aead.Seal(nonce, nonce, plaintext, additionalData), nil
}

func (c *baseCipher) open(sealed, additionalData []byte) ([]byte, error) {
	if len(sealed) < c.aead.NonceSize() {
		return nil, errors.New("sealed data too short")
	}
	nonce := sealed[:c.aead.NonceSize()]
	return c.aead.Open(nil, nonce, sealed[c.aead.NonceSize():], additionalData)
}

func (c *baseCipher) openWithNonce(nonce, ciphertext, additionalData []byte) ([]byte, error) {
	if len(nonce) != c.aead.NonceSize() {
		return nil, errors.New("wrong nonce size")
	}
	if len(ciphertext) < c.aead.Overhead() {
		return nil, errors.New("ciphertext shorter than authentication tag")
	}
	return c.aead.Open(nil, nonce, ciphertext, additionalData)
}
