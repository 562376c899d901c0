// Package app is the command facade: it wires the vault, store, auth-file
// and quota subsystems into the operations the UI invokes.
package app

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/githubbzxs/codex-switch/pkg/codex"
	apperrors "github.com/githubbzxs/codex-switch/pkg/errors"
	"github.com/githubbzxs/codex-switch/pkg/logger"
	"github.com/githubbzxs/codex-switch/pkg/metrics"
	"github.com/githubbzxs/codex-switch/pkg/quota"
	"github.com/githubbzxs/codex-switch/pkg/store"
	"github.com/githubbzxs/codex-switch/pkg/vault"
)

const (
	defaultHistoryLimit  = 100
	defaultSnapshotLimit = 50
)

// App carries the shared state every command operates on. The process
// control and auth path hooks exist so tests can run without a real CLI.
type App struct {
	Store        *store.Store
	Vault        *vault.Vault
	Refresher    *quota.Refresher
	Log          *logger.Logger
	LoginTimeout time.Duration

	authPath     func() (string, error)
	countProcs   func() int
	killProcs    func() int
	restartCodex func() error
	runLogin     func(time.Duration) error
}

// New initializes the application state over baseDir.
func New(baseDir string, log *logger.Logger) (*App, error) {
	s := store.New(baseDir)
	if err := s.Init(); err != nil {
		return nil, err
	}
	v := vault.New(s)
	return &App{
		Store: s,
		Vault: v,
		Refresher: &quota.Refresher{
			Store:  s,
			Vault:  v,
			Prober: quota.NewProber(),
			Log:    log,
		},
		Log:          log,
		LoginTimeout: 900 * time.Second,
		authPath:     codex.AuthPath,
		countProcs:   codex.CountCodexProcesses,
		killProcs:    codex.KillCodexProcesses,
		restartCodex: codex.RestartCodex,
		runLogin:     codex.RunLogin,
	}, nil
}

// Close releases the store.
func (a *App) Close() error {
	return a.Store.Close()
}

// InitVault sets the master password when the vault is uninitialized.
func (a *App) InitVault(masterPassword string) (*SimpleStatus, error) {
	trimmed := strings.TrimSpace(masterPassword)
	if len(trimmed) < 8 {
		return nil, apperrors.New(apperrors.WeakPassword, "master password must be at least 8 characters")
	}
	initialized, err := a.Vault.Init(trimmed)
	if err != nil {
		return nil, err
	}
	if !initialized {
		return &SimpleStatus{OK: false, Message: "vault already exists, unlock it instead"}, nil
	}
	return &SimpleStatus{OK: true, Message: "vault initialized and unlocked"}, nil
}

// UnlockVault loads the key derived from the stored salt.
func (a *App) UnlockVault(masterPassword string) (*SimpleStatus, error) {
	if err := a.Vault.Unlock(strings.TrimSpace(masterPassword)); err != nil {
		return nil, err
	}
	return &SimpleStatus{OK: true, Message: "vault unlocked"}, nil
}

// LockVault zeroizes and drops the key.
func (a *App) LockVault() (*SimpleStatus, error) {
	a.Vault.Lock()
	return &SimpleStatus{OK: true, Message: "vault locked"}, nil
}

// VaultStatus reports whether the vault is unlocked.
func (a *App) VaultStatus() (*SimpleStatus, error) {
	if a.Vault.IsUnlocked() {
		return &SimpleStatus{OK: true, Message: "unlocked"}, nil
	}
	return &SimpleStatus{OK: false, Message: "locked"}, nil
}

// CreateAccountFromImport imports the current CLI auth file.
func (a *App) CreateAccountFromImport(name string, tags []string) (*store.Account, error) {
	path, err := a.authPath()
	if err != nil {
		return nil, err
	}
	auth, err := codex.ReadAndValidateAuthFile(path)
	if err != nil {
		return nil, err
	}
	return a.Vault.ImportAuthJSON(name, tags, "", auth)
}

// CreateAccountFromAuthFile imports a user-chosen auth file.
func (a *App) CreateAccountFromAuthFile(path, name string, tags []string) (*store.Account, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, apperrors.New(apperrors.AuthFileMissing, "auth file path is empty")
	}
	auth, err := codex.ReadAndValidateAuthFile(trimmed)
	if err != nil {
		return nil, err
	}
	return a.Vault.ImportAuthJSON(name, tags, "", auth)
}

// CreateAccountFromLogin drives an interactive CLI login, waits for the
// refreshed auth file and imports it. The pre-login identity is remembered
// so logging into the same account again is rejected.
func (a *App) CreateAccountFromLogin(ctx context.Context, name string, tags []string) (*store.Account, error) {
	if !a.Vault.IsUnlocked() {
		return nil, apperrors.New(apperrors.VaultLocked, "unlock the vault before adding an account via login")
	}

	path, err := a.authPath()
	if err != nil {
		return nil, err
	}
	var previousText *string
	previousFingerprint := ""
	if raw, err := os.ReadFile(path); err == nil {
		text := string(raw)
		previousText = &text
		if auth, err := codex.ValidateAuthJSON(text); err == nil {
			if fingerprint, err := codex.ComputeFingerprint(auth); err == nil {
				previousFingerprint = fingerprint
			}
		}
	}

	if err := a.runLogin(a.LoginTimeout); err != nil {
		metrics.RecordLogin("failed")
		return nil, err
	}
	metrics.RecordLogin("success")

	auth, err := codex.WaitForUpdatedAuthFile(previousText)
	if err != nil {
		return nil, err
	}
	return a.Vault.ImportAuthJSON(name, tags, previousFingerprint, auth)
}

// ListAccounts lists all accounts, most recently updated first.
func (a *App) ListAccounts() ([]store.Account, error) {
	return a.Store.ListAccounts()
}

// UpdateAccountMeta renames an account and replaces its tags.
func (a *App) UpdateAccountMeta(id, name string, tags []string) (*SimpleStatus, error) {
	if err := a.Store.UpdateAccountMeta(strings.TrimSpace(id), name, vault.UniqueTags(tags)); err != nil {
		return nil, err
	}
	return &SimpleStatus{OK: true, Message: "account updated"}, nil
}

// DeleteAccount removes an account. History and quota snapshots stay as
// audit.
func (a *App) DeleteAccount(id string) (*SimpleStatus, error) {
	if err := a.Store.DeleteAccount(strings.TrimSpace(id)); err != nil {
		return nil, err
	}
	return &SimpleStatus{OK: true, Message: "account deleted"}, nil
}

// ListSwitchHistory returns the audit trail, newest first.
func (a *App) ListSwitchHistory(limit *int) ([]store.SwitchHistory, error) {
	n := defaultHistoryLimit
	if limit != nil && *limit > 0 {
		n = *limit
	}
	return a.Store.ListSwitchHistory(n)
}

// GetRuntimeDiagnostics reports paths, schema health and CLI process count.
func (a *App) GetRuntimeDiagnostics() (*RuntimeDiagnostics, error) {
	path, err := a.authPath()
	if err != nil {
		return nil, err
	}
	_, statErr := os.Stat(path)
	exists := statErr == nil
	schemaOK := false
	if exists {
		_, validateErr := codex.ReadAndValidateAuthFile(path)
		schemaOK = validateErr == nil
	}

	restartMode := ""
	if settings, err := a.Store.GetVaultSettings(); err == nil {
		restartMode = settings.CLIRestartMode
	}

	return &RuntimeDiagnostics{
		CodexAuthPath:   path,
		CodexAuthExists: exists,
		AppDataDir:      a.Store.BaseDir,
		DBPath:          a.Store.DBPath,
		SchemaOK:        schemaOK,
		ProcessCount:    a.countProcs(),
		CLIRestartMode:  restartMode,
	}, nil
}

// GetCodexCliStatus reports whether any CLI process is running.
func (a *App) GetCodexCliStatus() (*CodexCliStatus, error) {
	count := a.countProcs()
	return &CodexCliStatus{
		IsRunning:    count > 0,
		ProcessCount: count,
		CheckedAt:    store.Now(),
	}, nil
}
