// Package codex owns every interaction with the Codex CLI: its auth file,
// snapshots of it, the running processes and the login subcommand.
package codex

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	apperrors "github.com/githubbzxs/codex-switch/pkg/errors"
)

// AuthJSON is the parsed auth file. Raw preserves the original document so
// passthrough fields survive snapshot and restore untouched.
type AuthJSON struct {
	Raw   string
	Value map[string]any
}

// AuthPath returns the live CLI auth file location, ~/.codex/auth.json.
func AuthPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", apperrors.Wrap(apperrors.AuthFileMissing, "locating home directory", err)
	}
	return filepath.Join(home, ".codex", "auth.json"), nil
}

// ReadAndValidateAuthFile reads path and validates it as a Codex auth file.
func ReadAndValidateAuthFile(path string) (*AuthJSON, error) {
	text, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.Newf(apperrors.AuthFileMissing, "auth file not found: %s", path)
		}
		return nil, apperrors.Wrap(apperrors.AuthFileMissing, "reading auth file", err)
	}
	return ValidateAuthJSON(string(text))
}

// ValidateAuthJSON accepts a document iff it is a JSON object whose "type"
// equals "codex" (trimmed, case-insensitive) and whose "access_token" is a
// non-empty string.
func ValidateAuthJSON(text string) (*AuthJSON, error) {
	var value map[string]any
	if err := json.Unmarshal([]byte(text), &value); err != nil {
		return nil, apperrors.Wrap(apperrors.AuthSchemaError, "auth file is not valid JSON", err)
	}
	authType, _ := value["type"].(string)
	if !strings.EqualFold(strings.TrimSpace(authType), "codex") {
		return nil, apperrors.New(apperrors.AuthSchemaError, `auth file "type" must be "codex"`)
	}
	token, _ := value["access_token"].(string)
	if token == "" {
		return nil, apperrors.New(apperrors.AuthSchemaError, `auth file is missing "access_token"`)
	}
	return &AuthJSON{Raw: text, Value: value}, nil
}

// StringField returns a trimmed top-level string field, empty when absent.
func (a *AuthJSON) StringField(key string) string {
	s, _ := a.Value[key].(string)
	return strings.TrimSpace(s)
}

// AccessToken returns the access token.
func (a *AuthJSON) AccessToken() string {
	return a.StringField("access_token")
}

// Pretty renders the document with stable indentation for storage.
func (a *AuthJSON) Pretty() (string, error) {
	out, err := json.MarshalIndent(a.Value, "", "  ")
	if err != nil {
		return "", apperrors.Wrap(apperrors.AuthSchemaError, "rendering auth JSON", err)
	}
	return string(out), nil
}

// ComputeFingerprint derives the deterministic dedup identifier. Seed
// preference: account_id, then lowercased email, then access_token.
func ComputeFingerprint(auth *AuthJSON) (string, error) {
	var prefix, seed string
	switch {
	case auth.StringField("account_id") != "":
		prefix, seed = "account", auth.StringField("account_id")
	case auth.StringField("email") != "":
		prefix, seed = "email", strings.ToLower(auth.StringField("email"))
	case auth.AccessToken() != "":
		prefix, seed = "token", auth.AccessToken()
	default:
		return "", apperrors.New(apperrors.FingerprintError, "auth file carries no identity field to fingerprint")
	}
	digest := sha256.Sum256([]byte(prefix + ":" + seed))
	return fmt.Sprintf("%s:%s", prefix, hex.EncodeToString(digest[:])[:16]), nil
}
