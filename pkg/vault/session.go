// Package vault manages the in-memory master key lifetime and the account
// import pipeline. The key never touches the store unencrypted and every
// buffer holding it is overwritten on the way out.
package vault

import (
	"sync"

	"github.com/githubbzxs/codex-switch/pkg/crypto"
	apperrors "github.com/githubbzxs/codex-switch/pkg/errors"
)

// Session holds the optional 32-byte master key behind a mutex.
type Session struct {
	mu  sync.Mutex
	key []byte
}

// SetKey installs a new key, zeroizing any previous one first.
func (s *Session) SetKey(key []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.key != nil {
		crypto.Zeroize(s.key)
	}
	s.key = key
}

// Lock zeroizes and drops the key.
func (s *Session) Lock() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.key != nil {
		crypto.Zeroize(s.key)
		s.key = nil
	}
}

// IsUnlocked reports whether a key is loaded.
func (s *Session) IsUnlocked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.key != nil
}

// Key returns a copy of the master key. The caller owns the copy and must
// zeroize it when done.
func (s *Session) Key() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.key == nil {
		return nil, apperrors.New(apperrors.VaultLocked, "vault is locked, unlock it with the master password first")
	}
	out := make([]byte, len(s.key))
	copy(out, s.key)
	return out, nil
}
