package store

import (
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/google/uuid"

	apperrors "github.com/githubbzxs/codex-switch/pkg/errors"
)

const accountColumns = `id, name, tags_json, auth_fingerprint, created_at, updated_at, last_used_at`

// CreateAccount inserts a new account row. The fingerprint must be unique
// across the accounts table.
func (s *Store) CreateAccount(name string, tags []string, encryptedBlob, fingerprint string) (*Account, error) {
	id := uuid.NewString()
	timestamp := Now()
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.StoreError, "serializing account tags", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO accounts(id, name, tags_json, encrypted_auth_blob, auth_fingerprint, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, strings.TrimSpace(name), string(tagsJSON), encryptedBlob, fingerprint, timestamp, timestamp,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, apperrors.New(apperrors.DuplicateFingerprint, "an account with this auth fingerprint already exists")
		}
		return nil, apperrors.Wrap(apperrors.StoreError, "inserting account", err)
	}
	account, err := s.GetAccount(id)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, apperrors.New(apperrors.StoreError, "account missing after insert")
	}
	return account, nil
}

// GetAccount returns the account with the given id, or nil when absent.
func (s *Store) GetAccount(id string) (*Account, error) {
	row := s.db.QueryRow(`SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id)
	account, err := scanAccount(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.StoreError, "reading account", err)
	}
	return account, nil
}

// GetAccountSecret returns the account plus its encrypted auth blob, or nil.
func (s *Store) GetAccountSecret(id string) (*AccountSecret, error) {
	row := s.db.QueryRow(
		`SELECT `+accountColumns+`, encrypted_auth_blob FROM accounts WHERE id = ?`, id,
	)
	var secret AccountSecret
	var tagsJSON string
	err := row.Scan(
		&secret.Account.ID, &secret.Account.Name, &tagsJSON, &secret.Account.AuthFingerprint,
		&secret.Account.CreatedAt, &secret.Account.UpdatedAt, &nullStr{&secret.Account.LastUsedAt},
		&secret.EncryptedAuthBlob,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.StoreError, "reading account secret", err)
	}
	secret.Account.Tags = parseTags(tagsJSON)
	return &secret, nil
}

// FindAccountByFingerprint returns the account with the given fingerprint,
// or nil when absent.
func (s *Store) FindAccountByFingerprint(fingerprint string) (*Account, error) {
	row := s.db.QueryRow(`SELECT `+accountColumns+` FROM accounts WHERE auth_fingerprint = ?`, fingerprint)
	account, err := scanAccount(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.StoreError, "finding account by fingerprint", err)
	}
	return account, nil
}

// ListAccounts returns all accounts ordered by most recently updated.
func (s *Store) ListAccounts() ([]Account, error) {
	rows, err := s.db.Query(`SELECT ` + accountColumns + ` FROM accounts ORDER BY updated_at DESC`)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.StoreError, "listing accounts", err)
	}
	defer rows.Close()

	var accounts []Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.StoreError, "scanning account", err)
		}
		accounts = append(accounts, *account)
	}
	return accounts, rows.Err()
}

// UpdateAccountMeta renames an account and replaces its tags.
func (s *Store) UpdateAccountMeta(id, name string, tags []string) error {
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return apperrors.Wrap(apperrors.StoreError, "serializing account tags", err)
	}
	_, err = s.db.Exec(
		`UPDATE accounts SET name = ?, tags_json = ?, updated_at = ? WHERE id = ?`,
		strings.TrimSpace(name), string(tagsJSON), Now(), id,
	)
	return apperrors.Wrap(apperrors.StoreError, "updating account", err)
}

// DeleteAccount hard-deletes an account. Quota snapshots and switch history
// referencing it are kept as audit.
func (s *Store) DeleteAccount(id string) error {
	_, err := s.db.Exec(`DELETE FROM accounts WHERE id = ?`, id)
	return apperrors.Wrap(apperrors.StoreError, "deleting account", err)
}

// MarkAccountUsed stamps last_used_at and updated_at.
func (s *Store) MarkAccountUsed(id string) error {
	now := Now()
	_, err := s.db.Exec(
		`UPDATE accounts SET last_used_at = ?, updated_at = ? WHERE id = ?`,
		now, now, id,
	)
	return apperrors.Wrap(apperrors.StoreError, "marking account used", err)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*Account, error) {
	var account Account
	var tagsJSON string
	err := row.Scan(
		&account.ID, &account.Name, &tagsJSON, &account.AuthFingerprint,
		&account.CreatedAt, &account.UpdatedAt, &nullStr{&account.LastUsedAt},
	)
	if err != nil {
		return nil, err
	}
	account.Tags = parseTags(tagsJSON)
	return &account, nil
}

func parseTags(tagsJSON string) []string {
	var tags []string
	if err := json.Unmarshal([]byte(tagsJSON), &tags); err != nil || tags == nil {
		return []string{}
	}
	return tags
}
