package vault

import (
	"strings"

	"github.com/githubbzxs/codex-switch/pkg/codex"
	"github.com/githubbzxs/codex-switch/pkg/crypto"
	apperrors "github.com/githubbzxs/codex-switch/pkg/errors"
	"github.com/githubbzxs/codex-switch/pkg/store"
)

// ImportAuthJSON runs the shared import pipeline: fingerprint, dedup checks,
// encrypt under the vault key, insert. previousFingerprint guards the login
// flow against re-importing the identity that was already signed in.
func (v *Vault) ImportAuthJSON(name string, tags []string, previousFingerprint string, auth *codex.AuthJSON) (*store.Account, error) {
	key, err := v.Key()
	if err != nil {
		return nil, err
	}
	defer crypto.Zeroize(key)

	fingerprint, err := codex.ComputeFingerprint(auth)
	if err != nil {
		return nil, err
	}

	if previousFingerprint != "" && previousFingerprint == fingerprint {
		return nil, apperrors.New(apperrors.SameIdentityError,
			"login finished but the signed-in account is unchanged, switch accounts in the browser and retry")
	}

	existing, err := v.store.FindAccountByFingerprint(fingerprint)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, apperrors.New(apperrors.DuplicateAccountError, "this account is already imported")
	}

	plaintext, err := auth.Pretty()
	if err != nil {
		return nil, err
	}
	encrypted, err := crypto.EncryptToBase64(key, []byte(plaintext))
	if err != nil {
		return nil, err
	}

	account, err := v.store.CreateAccount(EnsureName(name, auth), UniqueTags(tags), encrypted, fingerprint)
	if err != nil {
		if apperrors.HasCode(err, apperrors.DuplicateFingerprint) {
			return nil, apperrors.New(apperrors.DuplicateAccountError, "this account is already imported")
		}
		return nil, err
	}
	return account, nil
}

// EnsureName picks a display name: the trimmed user input, else the email,
// else the account id, else a generated placeholder.
func EnsureName(name string, auth *codex.AuthJSON) string {
	if trimmed := strings.TrimSpace(name); trimmed != "" {
		return trimmed
	}
	if email := auth.StringField("email"); email != "" {
		return email
	}
	if accountID := auth.StringField("account_id"); accountID != "" {
		return accountID
	}
	suffix := "0000"
	if fingerprint, err := codex.ComputeFingerprint(auth); err == nil {
		if _, hash, found := strings.Cut(fingerprint, ":"); found && len(hash) >= 4 {
			suffix = hash[:4]
		}
	}
	return "未命名账号-" + suffix
}

// UniqueTags trims, drops empties and deduplicates while preserving order.
func UniqueTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		trimmed := strings.TrimSpace(tag)
		if trimmed == "" || seen[trimmed] {
			continue
		}
		seen[trimmed] = true
		out = append(out, trimmed)
	}
	return out
}
