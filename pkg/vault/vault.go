package vault

import (
	"github.com/githubbzxs/codex-switch/pkg/crypto"
	apperrors "github.com/githubbzxs/codex-switch/pkg/errors"
	"github.com/githubbzxs/codex-switch/pkg/store"
)

// Vault binds the in-memory session to the persisted salt.
type Vault struct {
	session Session
	store   *store.Store
}

// New creates a vault over the given store.
func New(s *store.Store) *Vault {
	return &Vault{store: s}
}

// Init generates and persists a salt, derives the key and unlocks. Returns
// false without error when the vault already has a salt.
func (v *Vault) Init(masterPassword string) (bool, error) {
	settings, err := v.store.GetVaultSettings()
	if err != nil {
		return false, err
	}
	if settings.Salt != nil {
		return false, nil
	}
	salt, err := crypto.GenerateSalt()
	if err != nil {
		return false, err
	}
	if err := v.store.SetVaultSalt(salt); err != nil {
		return false, err
	}
	key, err := crypto.DeriveKey(masterPassword, salt)
	if err != nil {
		return false, err
	}
	v.session.SetKey(key)
	return true, nil
}

// Unlock rederives the key from the stored salt. The password itself is not
// verified here; a wrong one surfaces later as a DecryptError.
func (v *Vault) Unlock(masterPassword string) error {
	settings, err := v.store.GetVaultSettings()
	if err != nil {
		return err
	}
	if settings.Salt == nil {
		return apperrors.New(apperrors.VaultUninitialized, "vault has no master password yet, initialize it first")
	}
	key, err := crypto.DeriveKey(masterPassword, *settings.Salt)
	if err != nil {
		return err
	}
	v.session.SetKey(key)
	return nil
}

// Lock zeroizes and drops the in-memory key.
func (v *Vault) Lock() {
	v.session.Lock()
}

// IsUnlocked reports whether the key is loaded.
func (v *Vault) IsUnlocked() bool {
	return v.session.IsUnlocked()
}

// IsInitialized reports whether a salt has been persisted.
func (v *Vault) IsInitialized() (bool, error) {
	settings, err := v.store.GetVaultSettings()
	if err != nil {
		return false, err
	}
	return settings.Salt != nil, nil
}

// Key returns a copy of the master key, or VaultLocked.
func (v *Vault) Key() ([]byte, error) {
	return v.session.Key()
}
