// Package cipher implements field-level encryption for tenant secrets: PBKDF2 key
// derivation from the vault password and an authenticated, versioned XChaCha20-Poly1305
// envelope for individual field values.
//
// A stored field is text:
//
//	enc:v1:<base64url([version 0x01][nonce: 24 bytes][ciphertext+tag])>
//
// The version byte is authenticated as additional data, so rewriting it fails decryption.
// Values without the enc: tag are legacy plaintext; IsEncrypted tells them apart by
// inspection alone.
package cipher

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/pbkdf2"

	"trust-access-layer/backend/internal/apperror"
)

const (
	// KeySize is the derived key length in bytes.
	KeySize = chacha20poly1305.KeySize
	// SaltSize is the length of a freshly generated vault salt.
	SaltSize = 32
	// DefaultIterations is the PBKDF2 iteration count for new vaults.
	DefaultIterations = 600000
	// MinIterations is the lowest iteration count accepted from configuration or storage.
	MinIterations = 100000

	// EnvelopeVersion is the first byte of every raw envelope.
	EnvelopeVersion byte = 0x01
	// Overhead is version + nonce + Poly1305 tag.
	Overhead = 1 + chacha20poly1305.NonceSizeX + chacha20poly1305.Overhead

	tagPrefix = "enc:"
	v1Prefix  = "enc:v1:"
)

// ErrDecrypt is the single error returned for every decryption failure. Wrong key, truncated
// input, bad encoding, tampering and unknown versions are indistinguishable to the caller.
var ErrDecrypt = apperror.New(apperror.KindAuthenticationFailure, "unable to decrypt field")

// NewSalt returns SaltSize random bytes.
func NewSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("generating salt: %w", err)
	}
	return salt, nil
}

// DeriveKey derives a KeySize key from password and salt with PBKDF2-HMAC-SHA256.
// Deterministic for identical inputs. iterations below MinIterations are raised to it.
func DeriveKey(password, salt []byte, iterations int) []byte {
	if iterations < MinIterations {
		iterations = MinIterations
	}
	return pbkdf2.Key(password, salt, iterations, KeySize, sha256.New)
}

// EncryptField seals plaintext under key. Empty plaintext yields empty output so unset
// fields never gain spurious ciphertext. Each call draws a fresh random nonce.
func EncryptField(plaintext string, key []byte) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return "", apperror.Internal(fmt.Errorf("creating XChaCha20-Poly1305 cipher: %w", err))
	}
	var nonce [chacha20poly1305.NonceSizeX]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", apperror.Internal(fmt.Errorf("generating random nonce: %w", err))
	}

	raw := make([]byte, 1+len(nonce), Overhead+len(plaintext))
	raw[0] = EnvelopeVersion
	copy(raw[1:], nonce[:])
	raw = aead.Seal(raw, nonce[:], []byte(plaintext), []byte{EnvelopeVersion})

	return v1Prefix + base64.RawURLEncoding.EncodeToString(raw), nil
}

// DecryptField opens a value produced by EncryptField. Empty input yields empty output.
// Any failure returns ErrDecrypt.
func DecryptField(ciphertext string, key []byte) (string, error) {
	if ciphertext == "" {
		return "", nil
	}
	encoded, ok := strings.CutPrefix(ciphertext, v1Prefix)
	if !ok {
		return "", ErrDecrypt
	}
	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil || len(raw) < Overhead || raw[0] != EnvelopeVersion {
		return "", ErrDecrypt
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return "", ErrDecrypt
	}
	nonce := raw[1 : 1+chacha20poly1305.NonceSizeX]
	plaintext, err := aead.Open(nil, nonce, raw[1+chacha20poly1305.NonceSizeX:], raw[:1])
	if err != nil {
		return "", ErrDecrypt
	}
	return string(plaintext), nil
}

// IsEncrypted reports whether value carries the envelope tag. It never attempts decryption.
func IsEncrypted(value string) bool {
	return strings.HasPrefix(value, tagPrefix)
}
