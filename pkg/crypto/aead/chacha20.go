package aead

import (
	"errors"

	"golang.org/x/crypto/chacha20poly1305"
)

// ChaCha20 implements ChaCha20-Poly1305 authenticated encryption.
type ChaCha20 struct {
	baseCipher
}

// NewChaCha20 creates a new ChaCha20-Poly1305 cipher.
//
// Key must be exactly 32 bytes.
func NewChaCha20(key []byte) (*ChaCha20, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, errors.New("invalid key size for ChaCha20-Poly1305: must be 32 bytes")
	}

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}

	return &ChaCha20{baseCipher: baseCipher{aead: aead}}, nil
}

// Algorithm returns the cipher algorithm.
func (c *ChaCha20) Algorithm() Algorithm {
	return AlgChaCha20
}

// Seal encrypts plaintext with a random prepended nonce.
func (c *ChaCha20) Seal(plaintext, additionalData []byte) ([]byte, error) {
	return c.seal(plaintext, additionalData)
}

// Open decrypts a nonce-prefixed ciphertext.
func (c *ChaCha20) Open(sealed, additionalData []byte) ([]byte, error) {
	return c.open(sealed, additionalData)
}

// OpenWithNonce decrypts ciphertext||tag with an explicit nonce.
func (c *ChaCha20) OpenWithNonce(nonce, ciphertext, additionalData []byte) ([]byte, error) {
	return c.openWithNonce(nonce, ciphertext, additionalData)
}
