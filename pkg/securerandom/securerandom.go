// Package securerandom provides cryptographically secure random generation
package securerandom

import (
	crand "crypto/rand"
	"encoding/hex"
	"fmt"
)

// Bytes generates cryptographically secure random bytes
func Bytes(byteLen int) ([]byte, error) {
	b := make([]byte, byteLen)
	if _, err := crand.Read(b); err != nil {
		return nil, fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return b, nil
}

// Fill fills a byte slice with cryptographically secure random bytes
func Fill(b []byte) error {
	if _, err := crand.Read(b); err != nil {
		return fmt.Errorf("failed to fill random bytes: %w", err)
	}
	return nil
}

// ID generates a cryptographically secure random ID of the specified byte length
// Returns a hex-encoded string (2x the byte length)
func ID(byteLen int) (string, error) {
	b, err := Bytes(byteLen)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
