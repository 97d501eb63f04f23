// Package secretbox seals small secrets with AES-256-GCM for storage at
// rest. Each sealed value carries its random nonce as a prefix, so a
// single ciphertext blob is all that needs to be persisted.
package secretbox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
)

// KeyLen is the required key length in bytes (AES-256).
const KeyLen = 32

// ErrInvalidKey indicates the key is not a valid AES-256 key.
var ErrInvalidKey = errors.New("secretbox: key must be 32 bytes")

// ErrCiphertextTooShort indicates a sealed blob shorter than a nonce.
var ErrCiphertextTooShort = errors.New("secretbox: ciphertext too short")

// Box seals and opens secrets with a fixed symmetric key.
type Box struct {
	aead cipher.AEAD
}

// New constructs a Box from 32 bytes of key material.
func New(key []byte) (*Box, error) {
	if len(key) != KeyLen {
		return nil, ErrInvalidKey
	}
	block, errCipher := aes.NewCipher(key)
	if errCipher != nil {
		return nil, fmt.Errorf("secretbox: new cipher: %w", errCipher)
	}
	aead, errGCM := cipher.NewGCM(block)
	if errGCM != nil {
		return nil, fmt.Errorf("secretbox: new gcm: %w", errGCM)
	}
	return &Box{aead: aead}, nil
}

// Seal encrypts the plaintext and returns nonce || ciphertext.
func (b *Box) Seal(plaintext string) ([]byte, error) {
	nonce := make([]byte, b.aead.NonceSize())
	if _, errRead := rand.Read(nonce); errRead != nil {
		return nil, fmt.Errorf("secretbox: nonce: %w", errRead)
	}
	return b.aead.Seal(nonce, nonce, []byte(plaintext), nil), nil
}

// Open decrypts a blob produced by Seal.
func (b *Box) Open(sealed []byte) (string, error) {
	nonceSize := b.aead.NonceSize()
	if len(sealed) < nonceSize {
		return "", ErrCiphertextTooShort
	}
	plaintext, errOpen := b.aead.Open(nil, sealed[:nonceSize], sealed[nonceSize:], nil)
	if errOpen != nil {
		return "", fmt.Errorf("secretbox: open: %w", errOpen)
	}
	return string(plaintext), nil
}
