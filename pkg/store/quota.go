package store

import (
	"database/sql"

	"github.com/google/uuid"

	apperrors "github.com/githubbzxs/codex-switch/pkg/errors"
)

const quotaColumns = `id, account_id, mode, remaining_value, remaining_unit, quota_state, reset_at, source, confidence, reason, created_at`

// SaveQuotaSnapshot inserts one observation and returns the stored row.
func (s *Store) SaveQuotaSnapshot(params QuotaSnapshotParams) (*QuotaSnapshot, error) {
	id := uuid.NewString()
	_, err := s.db.Exec(
		`INSERT INTO quota_snapshots(id, account_id, mode, remaining_value, remaining_unit, quota_state, reset_at, source, confidence, reason, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, params.AccountID, params.Mode, params.RemainingValue, params.RemainingUnit,
		params.QuotaState, params.ResetAt, params.Source, params.Confidence, params.Reason, Now(),
	)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.StoreError, "inserting quota snapshot", err)
	}
	snapshot, err := s.GetQuotaSnapshot(id)
	if err != nil {
		return nil, err
	}
	if snapshot == nil {
		return nil, apperrors.New(apperrors.StoreError, "quota snapshot missing after insert")
	}
	return snapshot, nil
}

// GetQuotaSnapshot returns one snapshot by id, or nil when absent.
func (s *Store) GetQuotaSnapshot(id string) (*QuotaSnapshot, error) {
	row := s.db.QueryRow(`SELECT `+quotaColumns+` FROM quota_snapshots WHERE id = ?`, id)
	snapshot, err := scanQuotaSnapshot(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.StoreError, "reading quota snapshot", err)
	}
	return snapshot, nil
}

// ListQuotaSnapshots returns an account's snapshots, newest first.
func (s *Store) ListQuotaSnapshots(accountID string, limit int) ([]QuotaSnapshot, error) {
	rows, err := s.db.Query(
		`SELECT `+quotaColumns+` FROM quota_snapshots
		 WHERE account_id = ? ORDER BY created_at DESC LIMIT ?`,
		accountID, limit,
	)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.StoreError, "listing quota snapshots", err)
	}
	defer rows.Close()
	return collectQuotaSnapshots(rows)
}

// LatestQuotaByAccount returns the newest snapshot for an account, or nil.
func (s *Store) LatestQuotaByAccount(accountID string) (*QuotaSnapshot, error) {
	row := s.db.QueryRow(
		`SELECT `+quotaColumns+` FROM quota_snapshots
		 WHERE account_id = ? ORDER BY created_at DESC LIMIT 1`,
		accountID,
	)
	snapshot, err := scanQuotaSnapshot(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.StoreError, "reading latest quota snapshot", err)
	}
	return snapshot, nil
}

// ListLatestQuotaSnapshots returns the newest snapshot per account.
func (s *Store) ListLatestQuotaSnapshots() ([]QuotaSnapshot, error) {
	rows, err := s.db.Query(
		`SELECT q.id, q.account_id, q.mode, q.remaining_value, q.remaining_unit, q.quota_state, q.reset_at, q.source, q.confidence, q.reason, q.created_at
		 FROM quota_snapshots q
		 JOIN (
		   SELECT account_id, MAX(created_at) AS max_created_at
		   FROM quota_snapshots
		   GROUP BY account_id
		 ) l ON q.account_id = l.account_id AND q.created_at = l.max_created_at`,
	)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.StoreError, "listing latest quota snapshots", err)
	}
	defer rows.Close()
	return collectQuotaSnapshots(rows)
}

func collectQuotaSnapshots(rows *sql.Rows) ([]QuotaSnapshot, error) {
	var snapshots []QuotaSnapshot
	for rows.Next() {
		snapshot, err := scanQuotaSnapshot(rows)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.StoreError, "scanning quota snapshot", err)
		}
		snapshots = append(snapshots, *snapshot)
	}
	return snapshots, rows.Err()
}

func scanQuotaSnapshot(row rowScanner) (*QuotaSnapshot, error) {
	var snapshot QuotaSnapshot
	var remaining sql.NullFloat64
	err := row.Scan(
		&snapshot.ID, &snapshot.AccountID, &snapshot.Mode, &remaining,
		&nullStr{&snapshot.RemainingUnit}, &snapshot.QuotaState, &nullStr{&snapshot.ResetAt},
		&snapshot.Source, &snapshot.Confidence, &nullStr{&snapshot.Reason}, &snapshot.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if remaining.Valid {
		snapshot.RemainingValue = &remaining.Float64
	}
	return &snapshot, nil
}
