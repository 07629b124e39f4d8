// Package secrets encrypts third-party refresh tokens at rest. Tokens are
// stored as base64("iv") + ":" + base64("tag") + ":" + base64("ciphertext")
// so a leaked table dump exposes nothing without the key, which lives only
// in SSM.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

const (
	keySize   = 32
	ivSize    = 12
	tagSize   = 16
	separator = ":"
)

// ErrMalformed is returned for any ciphertext that does not parse as the
// expected triple. Decryption fails closed: no partial output, no detail
// about which piece was wrong.
var ErrMalformed = errors.New("malformed encrypted value")

// Cipher encrypts and decrypts short secrets with a fixed 256-bit key.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher builds a Cipher from a raw 32-byte key.
func NewCipher(key []byte) (*Cipher, error) {
	if len(key) != keySize {
		return nil, fmt.Errorf("encryption key must be %d bytes, got %d", keySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("init aes: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("init gcm: %w", err)
	}
	return &Cipher{aead: aead}, nil
}

// NewCipherFromBase64 builds a Cipher from a base64-encoded key, the form
// the key takes in SSM.
func NewCipherFromBase64(encoded string) (*Cipher, error) {
	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return nil, fmt.Errorf("decode encryption key: %w", err)
	}
	return NewCipher(key)
}

// Encrypt seals a plaintext with a fresh random IV.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	iv := make([]byte, ivSize)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("generate iv: %w", err)
	}

	sealed := c.aead.Seal(nil, iv, []byte(plaintext), nil)
	// Seal appends the tag; store it as its own segment.
	ciphertext := sealed[:len(sealed)-tagSize]
	tag := sealed[len(sealed)-tagSize:]

	return strings.Join([]string{
		base64.StdEncoding.EncodeToString(iv),
		base64.StdEncoding.EncodeToString(tag),
		base64.StdEncoding.EncodeToString(ciphertext),
	}, separator), nil
}

// Decrypt opens a value produced by Encrypt. Any structural defect or
// authentication failure returns ErrMalformed.
func (c *Cipher) Decrypt(encrypted string) (string, error) {
	parts := strings.Split(encrypted, separator)
	if len(parts) != 3 {
		return "", ErrMalformed
	}

	iv, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil || len(iv) != ivSize {
		return "", ErrMalformed
	}
	tag, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil || len(tag) != tagSize {
		return "", ErrMalformed
	}
	ciphertext, err := base64.StdEncoding.DecodeString(parts[2])
	if err != nil {
		return "", ErrMalformed
	}

	plaintext, err := c.aead.Open(nil, iv, append(ciphertext, tag...), nil)
	if err != nil {
		return "", ErrMalformed
	}
	return string(plaintext), nil
}
