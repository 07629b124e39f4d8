package secrets

import (
	"bytes"
	"encoding/base64"
	"errors"
	"strings"
	"testing"
)

func testCipher(t *testing.T) *Cipher {
	t.Helper()
	key := bytes.Repeat([]byte{0x42}, 32)
	c, err := NewCipher(key)
	if err != nil {
		t.Fatalf("NewCipher: %v", err)
	}
	return c
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	c := testCipher(t)

	for _, plaintext := range []string{
		"refresh-token-abc123",
		"",
		"token with spaces and 日本語",
	} {
		encrypted, err := c.Encrypt(plaintext)
		if err != nil {
			t.Fatalf("Encrypt(%q): %v", plaintext, err)
		}
		got, err := c.Decrypt(encrypted)
		if err != nil {
			t.Fatalf("Decrypt: %v", err)
		}
		if got != plaintext {
			t.Errorf("round trip = %q, want %q", got, plaintext)
		}
	}
}

func TestEncryptFormat(t *testing.T) {
	c := testCipher(t)
	encrypted, err := c.Encrypt("secret")
	if err != nil {
		t.Fatal(err)
	}

	parts := strings.Split(encrypted, ":")
	if len(parts) != 3 {
		t.Fatalf("encrypted value has %d segments, want 3", len(parts))
	}
	iv, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil || len(iv) != 12 {
		t.Errorf("iv segment invalid: %v, %d bytes", err, len(iv))
	}
	tag, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil || len(tag) != 16 {
		t.Errorf("tag segment invalid: %v, %d bytes", err, len(tag))
	}
}

func TestEncryptUsesFreshIVs(t *testing.T) {
	c := testCipher(t)
	a, _ := c.Encrypt("same plaintext")
	b, _ := c.Encrypt("same plaintext")
	if a == b {
		t.Error("two encryptions of the same plaintext must differ")
	}
}

func TestDecryptFailsClosed(t *testing.T) {
	c := testCipher(t)
	valid, err := c.Encrypt("secret")
	if err != nil {
		t.Fatal(err)
	}
	parts := strings.Split(valid, ":")

	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"no separators", "not-an-encrypted-value"},
		{"two segments", parts[0] + ":" + parts[1]},
		{"four segments", valid + ":extra"},
		{"bad base64 iv", "!!!:" + parts[1] + ":" + parts[2]},
		{"short iv", base64.StdEncoding.EncodeToString([]byte("short")) + ":" + parts[1] + ":" + parts[2]},
		{"short tag", parts[0] + ":" + base64.StdEncoding.EncodeToString([]byte("short")) + ":" + parts[2]},
		{"tampered ciphertext", parts[0] + ":" + parts[1] + ":" + base64.StdEncoding.EncodeToString([]byte("tampered-data"))},
		{"swapped segments", parts[2] + ":" + parts[1] + ":" + parts[0]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.Decrypt(tt.input)
			if !errors.Is(err, ErrMalformed) {
				t.Errorf("error = %v, want ErrMalformed", err)
			}
			if got != "" {
				t.Errorf("decrypt must not leak partial output, got %q", got)
			}
		})
	}
}

func TestDecryptWrongKey(t *testing.T) {
	c := testCipher(t)
	encrypted, err := c.Encrypt("secret")
	if err != nil {
		t.Fatal(err)
	}

	other, err := NewCipher(bytes.Repeat([]byte{0x24}, 32))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := other.Decrypt(encrypted); !errors.Is(err, ErrMalformed) {
		t.Errorf("error = %v, want ErrMalformed", err)
	}
}

func TestNewCipherRejectsBadKeys(t *testing.T) {
	if _, err := NewCipher([]byte("too short")); err == nil {
		t.Error("short key should be rejected")
	}
	if _, err := NewCipherFromBase64("not base64!!!"); err == nil {
		t.Error("invalid base64 key should be rejected")
	}
	encoded := base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{1}, 32))
	if _, err := NewCipherFromBase64(encoded); err != nil {
		t.Errorf("valid base64 key rejected: %v", err)
	}
}
