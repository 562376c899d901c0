// Package store provides durable typed access to accounts, switch history,
// quota snapshots and vault settings, backed by a single SQLite database
// with write-ahead logging.
package store

import (
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"

	apperrors "github.com/githubbzxs/codex-switch/pkg/errors"
)

const settingsSingletonID = 1

const schema = `
CREATE TABLE IF NOT EXISTS app_settings (
  id INTEGER PRIMARY KEY CHECK (id = 1),
  vault_salt TEXT,
  default_account_id TEXT,
  cli_restart_mode TEXT NOT NULL DEFAULT 'force',
  quota_timeout_ms INTEGER NOT NULL DEFAULT 5000,
  quota_cache_ttl_seconds INTEGER NOT NULL DEFAULT 180,
  quota_max_concurrency INTEGER NOT NULL DEFAULT 3,
  updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS accounts (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  tags_json TEXT NOT NULL,
  encrypted_auth_blob TEXT NOT NULL,
  auth_fingerprint TEXT NOT NULL UNIQUE,
  created_at TEXT NOT NULL,
  updated_at TEXT NOT NULL,
  last_used_at TEXT
);

CREATE TABLE IF NOT EXISTS switch_history (
  id TEXT PRIMARY KEY,
  from_account_id TEXT,
  to_account_id TEXT NOT NULL,
  snapshot_path TEXT,
  result TEXT NOT NULL,
  error_message TEXT,
  created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS quota_snapshots (
  id TEXT PRIMARY KEY,
  account_id TEXT NOT NULL,
  mode TEXT NOT NULL,
  remaining_value REAL,
  remaining_unit TEXT,
  quota_state TEXT NOT NULL,
  reset_at TEXT,
  source TEXT NOT NULL,
  confidence INTEGER NOT NULL,
  reason TEXT,
  created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_quota_snapshots_account_created_at
  ON quota_snapshots(account_id, created_at DESC);
`

// Store owns the database file and the snapshots directory.
type Store struct {
	BaseDir      string
	DBPath       string
	SnapshotsDir string

	db *sql.DB
}

// New creates a store rooted at baseDir. Call Init before use.
func New(baseDir string) *Store {
	return &Store{
		BaseDir:      baseDir,
		DBPath:       filepath.Join(baseDir, "codex-switch.db"),
		SnapshotsDir: filepath.Join(baseDir, "snapshots"),
	}
}

// Init creates the directories, opens the database, enables WAL and applies
// the schema. Idempotent and never destructive.
func (s *Store) Init() error {
	if err := os.MkdirAll(s.BaseDir, 0700); err != nil {
		return apperrors.Wrap(apperrors.StoreError, "creating data directory", err)
	}
	if err := os.MkdirAll(s.SnapshotsDir, 0700); err != nil {
		return apperrors.Wrap(apperrors.StoreError, "creating snapshots directory", err)
	}

	if s.db == nil {
		db, err := sql.Open("sqlite3", s.DBPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=1")
		if err != nil {
			return apperrors.Wrap(apperrors.StoreError, "opening database", err)
		}
		if err := db.Ping(); err != nil {
			db.Close()
			return apperrors.Wrap(apperrors.StoreError, "connecting to database", err)
		}
		s.db = db
	}

	if _, err := s.db.Exec(schema); err != nil {
		return apperrors.Wrap(apperrors.StoreError, "initializing schema", err)
	}
	_, err := s.db.Exec(
		`INSERT INTO app_settings(id, updated_at) VALUES (?, ?) ON CONFLICT(id) DO NOTHING`,
		settingsSingletonID, Now(),
	)
	return apperrors.Wrap(apperrors.StoreError, "initializing settings row", err)
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// SchemaOK reports whether the database answers a trivial query against the
// expected tables.
func (s *Store) SchemaOK() bool {
	if s.db == nil {
		return false
	}
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM app_settings WHERE id = ?`, settingsSingletonID).Scan(&n)
	return err == nil && n == 1
}

// GetVaultSettings reads the singleton settings row.
func (s *Store) GetVaultSettings() (*VaultSettings, error) {
	var settings VaultSettings
	var restartMode sql.NullString
	err := s.db.QueryRow(
		`SELECT vault_salt, default_account_id, cli_restart_mode FROM app_settings WHERE id = ?`,
		settingsSingletonID,
	).Scan(&nullStr{&settings.Salt}, &nullStr{&settings.DefaultAccountID}, &restartMode)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.StoreError, "reading vault settings", err)
	}
	settings.CLIRestartMode = restartMode.String
	return &settings, nil
}

// SetVaultSalt records the salt generated during vault initialization.
func (s *Store) SetVaultSalt(salt string) error {
	_, err := s.db.Exec(
		`UPDATE app_settings SET vault_salt = ?, updated_at = ? WHERE id = ?`,
		salt, Now(), settingsSingletonID,
	)
	return apperrors.Wrap(apperrors.StoreError, "writing vault salt", err)
}

// GetQuotaPolicy reads the quota refresh tuning.
func (s *Store) GetQuotaPolicy() (QuotaPolicy, error) {
	var p QuotaPolicy
	err := s.db.QueryRow(
		`SELECT quota_timeout_ms, quota_cache_ttl_seconds, quota_max_concurrency
		 FROM app_settings WHERE id = ?`, settingsSingletonID,
	).Scan(&p.TimeoutMs, &p.CacheTTLSeconds, &p.MaxConcurrency)
	if err != nil {
		return p, apperrors.Wrap(apperrors.StoreError, "reading quota policy", err)
	}
	return p, nil
}

// SetQuotaPolicy updates the quota refresh tuning. Clamping is the caller's
// responsibility.
func (s *Store) SetQuotaPolicy(timeoutMs, cacheTTLSeconds int64, maxConcurrency int) error {
	_, err := s.db.Exec(
		`UPDATE app_settings
		 SET quota_timeout_ms = ?, quota_cache_ttl_seconds = ?, quota_max_concurrency = ?, updated_at = ?
		 WHERE id = ?`,
		timeoutMs, cacheTTLSeconds, maxConcurrency, Now(), settingsSingletonID,
	)
	return apperrors.Wrap(apperrors.StoreError, "updating quota policy", err)
}

// Now returns the current UTC time in RFC-3339 form with nanosecond
// precision (trailing zeros of the fraction are dropped), the canonical
// timestamp format for every table.
func Now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// isUniqueViolation reports whether err is a UNIQUE constraint failure.
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}

// nullStr scans a nullable TEXT column into a *string-of-pointer.
type nullStr struct {
	dest **string
}

func (n *nullStr) Scan(value any) error {
	if value == nil {
		*n.dest = nil
		return nil
	}
	switch v := value.(type) {
	case string:
		s := v
		*n.dest = &s
	case []byte:
		s := string(v)
		*n.dest = &s
	default:
		*n.dest = nil
	}
	return nil
}
