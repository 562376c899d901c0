package store

// Account is one imported authentication identity. The encrypted auth blob
// is deliberately absent; fetch it via GetAccountSecret when needed.
type Account struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Tags            []string `json:"tags"`
	AuthFingerprint string   `json:"auth_fingerprint"`
	CreatedAt       string   `json:"created_at"`
	UpdatedAt       string   `json:"updated_at"`
	LastUsedAt      *string  `json:"last_used_at,omitempty"`
}

// AccountSecret pairs an account with its encrypted auth blob.
type AccountSecret struct {
	Account           Account
	EncryptedAuthBlob string
}

// VaultSettings is the singleton settings row.
type VaultSettings struct {
	Salt             *string
	DefaultAccountID *string
	CLIRestartMode   string
}

// SwitchHistory is one append-only audit row for a switch or rollback.
type SwitchHistory struct {
	ID            string  `json:"id"`
	FromAccountID *string `json:"from_account_id,omitempty"`
	ToAccountID   string  `json:"to_account_id"`
	SnapshotPath  *string `json:"snapshot_path,omitempty"`
	Result        string  `json:"result"`
	ErrorMessage  *string `json:"error_message,omitempty"`
	CreatedAt     string  `json:"created_at"`
}

// Switch history result tags.
const (
	SwitchResultSuccess    = "success"
	SwitchResultFailed     = "failed"
	SwitchResultRolledBack = "rolled_back"
)

// QuotaSnapshot is one stored quota observation for an account.
type QuotaSnapshot struct {
	ID             string   `json:"id"`
	AccountID      string   `json:"account_id"`
	Mode           string   `json:"mode"`
	RemainingValue *float64 `json:"remaining_value,omitempty"`
	RemainingUnit  *string  `json:"remaining_unit,omitempty"`
	QuotaState     string   `json:"quota_state"`
	ResetAt        *string  `json:"reset_at,omitempty"`
	Source         string   `json:"source"`
	Confidence     int64    `json:"confidence"`
	Reason         *string  `json:"reason,omitempty"`
	CreatedAt      string   `json:"created_at"`
}

// QuotaSnapshotParams carries the fields of a snapshot to be inserted.
type QuotaSnapshotParams struct {
	AccountID      string
	Mode           string
	RemainingValue *float64
	RemainingUnit  *string
	QuotaState     string
	ResetAt        *string
	Source         string
	Confidence     int64
	Reason         *string
}

// QuotaPolicy is the refresh tuning stored in settings.
type QuotaPolicy struct {
	TimeoutMs       int64 `json:"timeout_ms"`
	CacheTTLSeconds int64 `json:"cache_ttl_seconds"`
	MaxConcurrency  int   `json:"max_concurrency"`
}
