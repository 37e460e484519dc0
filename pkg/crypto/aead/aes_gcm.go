package aead

import (
	"crypto/aes"
	"crypto/cipher"
	"errors"
)

// AESGCM implements AES-GCM authenticated encryption.
type AESGCM struct {
	baseCipher
}

// NewAESGCM creates a new AES-GCM cipher.
//
// Key must be 16, 24, or 32 bytes for AES-128, AES-192, or AES-256.
// Snapshot content keys are always 32 bytes.
func NewAESGCM(key []byte) (*AESGCM, error) {
	switch len(key) {
	case 16, 24, 32:
	default:
		return nil, errors.New("invalid key size for AES-GCM: must be 16, 24, or 32 bytes")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	return &AESGCM{baseCipher: baseCipher{aead: aead}}, nil
}

// Algorithm returns the cipher algorithm.
func (c *AESGCM) Algorithm() Algorithm {
	return AlgAESGCM
}

// Seal encrypts plaintext with a random prepended nonce.
func (c *AESGCM) Seal(plaintext, additionalData []byte) ([]byte, error) {
	return c.seal(plaintext, additionalData)
}

// Open decrypts a nonce-prefixed ciphertext.
func (c *AESGCM) Open(sealed, additionalData []byte) ([]byte, error) {
	return c.open(sealed, additionalData)
}

// OpenWithNonce decrypts ciphertext||tag with an explicit nonce.
func (c *AESGCM) OpenWithNonce(nonce, ciphertext, additionalData []byte) ([]byte, error) {
	return c.openWithNonce(nonce, ciphertext, additionalData)
}
