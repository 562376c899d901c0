package app

import "github.com/githubbzxs/codex-switch/pkg/store"

// SimpleStatus is the result shape for plain mutation commands.
type SimpleStatus struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

// SwitchResult reports the outcome of a switch or rollback. Failures inside
// the switch protocol are encoded here instead of raised.
type SwitchResult struct {
	Success      bool    `json:"success"`
	HistoryID    string  `json:"history_id"`
	SnapshotPath *string `json:"snapshot_path,omitempty"`
	Message      string  `json:"message"`
}

// RuntimeDiagnostics is the read-only observability surface.
type RuntimeDiagnostics struct {
	CodexAuthPath   string `json:"codex_auth_path"`
	CodexAuthExists bool   `json:"codex_auth_exists"`
	AppDataDir      string `json:"app_data_dir"`
	DBPath          string `json:"db_path"`
	SchemaOK        bool   `json:"schema_ok"`
	ProcessCount    int    `json:"process_count"`
	CLIRestartMode  string `json:"cli_restart_mode"`
}

// CodexCliStatus reports whether the CLI is currently running.
type CodexCliStatus struct {
	IsRunning    bool   `json:"is_running"`
	ProcessCount int    `json:"process_count"`
	CheckedAt    string `json:"checked_at"`
}

// QuotaDashboardItem joins an account with its latest quota snapshot.
type QuotaDashboardItem struct {
	Account  store.Account        `json:"account"`
	Snapshot *store.QuotaSnapshot `json:"snapshot,omitempty"`
}
