package store

import (
	"database/sql"

	"github.com/google/uuid"

	apperrors "github.com/githubbzxs/codex-switch/pkg/errors"
)

const historyColumns = `id, from_account_id, to_account_id, snapshot_path, result, error_message, created_at`

// CreateSwitchHistory appends one audit row and returns its id.
func (s *Store) CreateSwitchHistory(fromAccountID *string, toAccountID string, snapshotPath *string, result string, errorMessage *string) (string, error) {
	id := uuid.NewString()
	_, err := s.db.Exec(
		`INSERT INTO switch_history(id, from_account_id, to_account_id, snapshot_path, result, error_message, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, fromAccountID, toAccountID, snapshotPath, result, errorMessage, Now(),
	)
	if err != nil {
		return "", apperrors.Wrap(apperrors.StoreError, "inserting switch history", err)
	}
	return id, nil
}

// ListSwitchHistory returns history rows in reverse chronological order.
func (s *Store) ListSwitchHistory(limit int) ([]SwitchHistory, error) {
	rows, err := s.db.Query(
		`SELECT `+historyColumns+` FROM switch_history ORDER BY created_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.StoreError, "listing switch history", err)
	}
	defer rows.Close()

	var entries []SwitchHistory
	for rows.Next() {
		entry, err := scanHistory(rows)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.StoreError, "scanning switch history", err)
		}
		entries = append(entries, *entry)
	}
	return entries, rows.Err()
}

// GetSwitchHistory returns one history row by id, or nil when absent.
func (s *Store) GetSwitchHistory(id string) (*SwitchHistory, error) {
	row := s.db.QueryRow(`SELECT `+historyColumns+` FROM switch_history WHERE id = ?`, id)
	entry, err := scanHistory(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.StoreError, "reading switch history", err)
	}
	return entry, nil
}

// GetCurrentAccountID is the to_account_id of the most recent history row,
// or nil when no switch has happened yet.
func (s *Store) GetCurrentAccountID() (*string, error) {
	entries, err := s.ListSwitchHistory(1)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	id := entries[0].ToAccountID
	return &id, nil
}

func scanHistory(row rowScanner) (*SwitchHistory, error) {
	var entry SwitchHistory
	err := row.Scan(
		&entry.ID, &nullStr{&entry.FromAccountID}, &entry.ToAccountID,
		&nullStr{&entry.SnapshotPath}, &entry.Result, &nullStr{&entry.ErrorMessage},
		&entry.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}
