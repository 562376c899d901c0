// Package crypto implements the vault primitives: salt generation,
// password-based key derivation and authenticated encryption of auth blobs.
//
// Keys are always exactly 32 bytes. Ciphertext layout is
// base64(nonce || ciphertext+tag) with a random 24-byte XChaCha20-Poly1305
// nonce, so a valid payload is never shorter than 25 bytes once decoded.
package crypto

import (
	"encoding/base64"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"

	apperrors "github.com/githubbzxs/codex-switch/pkg/errors"
	"github.com/githubbzxs/codex-switch/pkg/securerandom"
)

const (
	// KeyLength is the master key size in bytes.
	KeyLength = 32

	saltLength = 16

	// Argon2id parameters: one pass over 19 MiB of memory with two lanes.
	argonTime    = 1
	argonMemory  = 19 * 1024
	argonThreads = 2
)

// saltEncoding is the canonical text form for salts: standard base64
// without padding, matching the PHC salt string alphabet.
var saltEncoding = base64.RawStdEncoding

// GenerateSalt returns a fresh random salt in its canonical text form.
func GenerateSalt() (string, error) {
	raw, err := securerandom.Bytes(saltLength)
	if err != nil {
		return "", err
	}
	return saltEncoding.EncodeToString(raw), nil
}

// DeriveKey stretches the master password into a 32-byte key using Argon2id
// with the stored salt. The same password and salt always yield the same key.
func DeriveKey(masterPassword, salt string) ([]byte, error) {
	rawSalt, err := saltEncoding.DecodeString(salt)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.DecryptError, "vault salt is malformed", err)
	}
	key := argon2.IDKey([]byte(masterPassword), rawSalt, argonTime, argonMemory, argonThreads, KeyLength)
	return key, nil
}

// EncryptToBase64 seals plaintext under key and returns
// base64(nonce || ciphertext+tag).
func EncryptToBase64(key, plaintext []byte) (string, error) {
	if len(key) != KeyLength {
		return "", apperrors.Newf(apperrors.KeySizeError, "encryption key must be %d bytes, got %d", KeyLength, len(key))
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return "", apperrors.Wrap(apperrors.KeySizeError, "initializing cipher", err)
	}
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if err := securerandom.Fill(nonce); err != nil {
		return "", err
	}
	payload := aead.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(payload), nil
}

// DecryptFromBase64 reverses EncryptToBase64. Any tampering, truncation or
// wrong key fails with a DecryptError.
func DecryptFromBase64(key []byte, payloadBase64 string) ([]byte, error) {
	if len(key) != KeyLength {
		return nil, apperrors.Newf(apperrors.KeySizeError, "decryption key must be %d bytes, got %d", KeyLength, len(key))
	}
	payload, err := base64.StdEncoding.DecodeString(payloadBase64)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.DecryptError, "ciphertext is not valid base64", err)
	}
	if len(payload) < chacha20poly1305.NonceSizeX+1 {
		return nil, apperrors.New(apperrors.DecryptError, "ciphertext payload is truncated")
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KeySizeError, "initializing cipher", err)
	}
	nonce, ciphertext := payload[:chacha20poly1305.NonceSizeX], payload[chacha20poly1305.NonceSizeX:]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, apperrors.New(apperrors.DecryptError, "decryption failed, wrong master password or tampered payload")
	}
	return plaintext, nil
}

// Zeroize overwrites a secret buffer in place. Call it on every key or
// plaintext copy before it goes out of scope.
func Zeroize(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
