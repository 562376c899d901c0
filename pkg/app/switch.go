package app

import (
	"fmt"
	"os"

	"github.com/githubbzxs/codex-switch/pkg/codex"
	"github.com/githubbzxs/codex-switch/pkg/crypto"
	apperrors "github.com/githubbzxs/codex-switch/pkg/errors"
	"github.com/githubbzxs/codex-switch/pkg/metrics"
	"github.com/githubbzxs/codex-switch/pkg/store"
)

// SwitchAccount replaces the live auth file with the target account's
// decrypted blob. The write is preceded by a snapshot and followed by a
// history row; a failed write is reported in the result, not raised.
func (a *App) SwitchAccount(id string, forceRestart bool) (*SwitchResult, error) {
	secret, err := a.Store.GetAccountSecret(id)
	if err != nil {
		return nil, err
	}
	if secret == nil {
		return nil, apperrors.New(apperrors.AccountNotFound, "target account does not exist")
	}

	fromAccountID, err := a.Store.GetCurrentAccountID()
	if err != nil {
		return nil, err
	}

	key, err := a.Vault.Key()
	if err != nil {
		return nil, err
	}
	decrypted, err := crypto.DecryptFromBase64(key, secret.EncryptedAuthBlob)
	crypto.Zeroize(key)
	if err != nil {
		return nil, err
	}
	authText := string(decrypted)
	crypto.Zeroize(decrypted)
	if _, err := codex.ValidateAuthJSON(authText); err != nil {
		return nil, err
	}

	authPath, err := a.authPath()
	if err != nil {
		return nil, err
	}
	snapshotPath, err := codex.CreateSnapshot(authPath, a.Store.SnapshotsDir)
	if err != nil {
		return nil, err
	}
	var snapshotRef *string
	if snapshotPath != "" {
		snapshotRef = &snapshotPath
	}

	if writeErr := codex.AtomicWrite(authPath, authText); writeErr != nil {
		message := writeErr.Error()
		historyID, err := a.Store.CreateSwitchHistory(fromAccountID, secret.Account.ID, snapshotRef, store.SwitchResultFailed, &message)
		if err != nil {
			return nil, err
		}
		metrics.RecordSwitch(store.SwitchResultFailed)
		if a.Log != nil {
			a.Log.Warn("account switch failed", "history_id", historyID, "error", message)
		}
		return &SwitchResult{
			Success:      false,
			HistoryID:    historyID,
			SnapshotPath: snapshotRef,
			Message:      fmt.Sprintf("switch failed: %s", message),
		}, nil
	}

	killed := 0
	if forceRestart {
		killed = a.killProcs()
		_ = a.restartCodex()
	}

	if err := a.Store.MarkAccountUsed(secret.Account.ID); err != nil {
		return nil, err
	}
	historyID, err := a.Store.CreateSwitchHistory(fromAccountID, secret.Account.ID, snapshotRef, store.SwitchResultSuccess, nil)
	if err != nil {
		return nil, err
	}
	metrics.RecordSwitch(store.SwitchResultSuccess)

	message := "switch complete"
	if forceRestart {
		message = fmt.Sprintf("switch complete, %d codex process(es) handled", killed)
	}
	return &SwitchResult{
		Success:      true,
		HistoryID:    historyID,
		SnapshotPath: snapshotRef,
		Message:      message,
	}, nil
}

// RollbackToHistory replays the snapshot recorded by an earlier switch and
// appends a rolled_back history row.
func (a *App) RollbackToHistory(historyID string) (*SwitchResult, error) {
	history, err := a.Store.GetSwitchHistory(historyID)
	if err != nil {
		return nil, err
	}
	if history == nil {
		return nil, apperrors.New(apperrors.SnapshotMissing, "history entry does not exist")
	}
	if history.SnapshotPath == nil {
		return nil, apperrors.New(apperrors.SnapshotMissing, "this history entry has no snapshot to roll back to")
	}
	snapshotPath := *history.SnapshotPath
	raw, err := os.ReadFile(snapshotPath)
	if err != nil {
		return nil, apperrors.Newf(apperrors.SnapshotMissing, "snapshot file is gone: %s", snapshotPath)
	}
	content := string(raw)
	if _, err := codex.ValidateAuthJSON(content); err != nil {
		return nil, err
	}

	authPath, err := a.authPath()
	if err != nil {
		return nil, err
	}
	currentSnapshot, err := codex.CreateSnapshot(authPath, a.Store.SnapshotsDir)
	if err != nil {
		return nil, err
	}
	var currentRef *string
	if currentSnapshot != "" {
		currentRef = &currentSnapshot
	}

	if err := codex.AtomicWrite(authPath, content); err != nil {
		return nil, err
	}

	killed := a.killProcs()
	_ = a.restartCodex()

	createdID, err := a.Store.CreateSwitchHistory(history.FromAccountID, history.ToAccountID, currentRef, store.SwitchResultRolledBack, nil)
	if err != nil {
		return nil, err
	}
	metrics.RecordSwitch(store.SwitchResultRolledBack)

	return &SwitchResult{
		Success:      true,
		HistoryID:    createdID,
		SnapshotPath: &snapshotPath,
		Message:      fmt.Sprintf("rollback complete, %d codex process(es) handled", killed),
	}, nil
}
