package app

import (
	"context"
	"sort"
	"strings"

	"github.com/githubbzxs/codex-switch/pkg/store"
)

// RefreshQuota probes one account (or all) and returns the stored snapshots.
func (a *App) RefreshQuota(ctx context.Context, accountID string, force bool) ([]store.QuotaSnapshot, error) {
	return a.Refresher.Refresh(ctx, accountID, force)
}

// GetQuotaDashboard joins every account with its latest snapshot, sorted by
// state severity: available, near_limit, exhausted, unknown.
func (a *App) GetQuotaDashboard() ([]QuotaDashboardItem, error) {
	accounts, err := a.Store.ListAccounts()
	if err != nil {
		return nil, err
	}
	latest, err := a.Store.ListLatestQuotaSnapshots()
	if err != nil {
		return nil, err
	}
	byAccount := make(map[string]store.QuotaSnapshot, len(latest))
	for _, snapshot := range latest {
		byAccount[snapshot.AccountID] = snapshot
	}

	items := make([]QuotaDashboardItem, 0, len(accounts))
	for _, account := range accounts {
		item := QuotaDashboardItem{Account: account}
		if snapshot, ok := byAccount[account.ID]; ok {
			item.Snapshot = &snapshot
		}
		items = append(items, item)
	}

	sort.SliceStable(items, func(i, j int) bool {
		return stateRank(items[i].Snapshot) < stateRank(items[j].Snapshot)
	})
	return items, nil
}

func stateRank(snapshot *store.QuotaSnapshot) int {
	if snapshot == nil {
		return 3
	}
	switch snapshot.QuotaState {
	case "available":
		return 0
	case "near_limit":
		return 1
	case "exhausted":
		return 2
	default:
		return 3
	}
}

// ListQuotaSnapshots returns one account's observation history.
func (a *App) ListQuotaSnapshots(accountID string, limit *int) ([]store.QuotaSnapshot, error) {
	n := defaultSnapshotLimit
	if limit != nil && *limit > 0 {
		n = *limit
	}
	return a.Store.ListQuotaSnapshots(strings.TrimSpace(accountID), n)
}

// SetQuotaRefreshPolicy clamps and persists the refresh tuning.
func (a *App) SetQuotaRefreshPolicy(policy store.QuotaPolicy) (*SimpleStatus, error) {
	timeoutMs := clampInt64(policy.TimeoutMs, 1000, 30000)
	ttlSeconds := clampInt64(policy.CacheTTLSeconds, 30, 3600)
	maxConcurrency := clampInt(policy.MaxConcurrency, 1, 8)
	if err := a.Store.SetQuotaPolicy(timeoutMs, ttlSeconds, maxConcurrency); err != nil {
		return nil, err
	}
	return &SimpleStatus{OK: true, Message: "quota refresh policy updated"}, nil
}

// GetQuotaRefreshPolicy reads the current tuning.
func (a *App) GetQuotaRefreshPolicy() (store.QuotaPolicy, error) {
	return a.Store.GetQuotaPolicy()
}

func clampInt64(value, min, max int64) int64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

func clampInt(value, min, max int) int {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
