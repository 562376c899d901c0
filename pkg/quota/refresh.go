package quota

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/githubbzxs/codex-switch/pkg/crypto"
	apperrors "github.com/githubbzxs/codex-switch/pkg/errors"
	"github.com/githubbzxs/codex-switch/pkg/logger"
	"github.com/githubbzxs/codex-switch/pkg/metrics"
	"github.com/githubbzxs/codex-switch/pkg/store"
	"github.com/githubbzxs/codex-switch/pkg/vault"
)

// Refresher runs scheduled quota observations over stored accounts.
type Refresher struct {
	Store  *store.Store
	Vault  *vault.Vault
	Prober *Prober
	Log    *logger.Logger
}

// Refresh probes one account (accountID non-empty) or every account. With
// force false a snapshot younger than the cache TTL is reused unchanged.
// Returned snapshots follow the account order.
func (r *Refresher) Refresh(ctx context.Context, accountID string, force bool) ([]store.QuotaSnapshot, error) {
	policy, err := r.Store.GetQuotaPolicy()
	if err != nil {
		return nil, err
	}

	single := strings.TrimSpace(accountID) != ""
	secrets, err := r.collectSecrets(strings.TrimSpace(accountID))
	if err != nil {
		return nil, err
	}

	key, err := r.Vault.Key()
	if err != nil {
		return nil, err
	}
	defer crypto.Zeroize(key)

	results := make([]*store.QuotaSnapshot, len(secrets))
	errs := make([]error, len(secrets))

	group, groupCtx := errgroup.WithContext(ctx)
	limit := policy.MaxConcurrency
	if limit < 1 {
		limit = 1
	}
	group.SetLimit(limit)

	for index, secret := range secrets {
		index, secret := index, secret
		group.Go(func() error {
			snapshot, err := r.refreshOne(groupCtx, key, secret, policy, force, single)
			results[index] = snapshot
			errs[index] = err
			return nil
		})
	}
	_ = group.Wait()

	snapshots := make([]store.QuotaSnapshot, 0, len(secrets))
	for index := range secrets {
		if errs[index] != nil {
			return nil, errs[index]
		}
		if results[index] != nil {
			snapshots = append(snapshots, *results[index])
		}
	}
	return snapshots, nil
}

func (r *Refresher) collectSecrets(accountID string) ([]store.AccountSecret, error) {
	if accountID != "" {
		secret, err := r.Store.GetAccountSecret(accountID)
		if err != nil {
			return nil, err
		}
		if secret == nil {
			return nil, apperrors.New(apperrors.AccountNotFound, "target account does not exist")
		}
		return []store.AccountSecret{*secret}, nil
	}

	accounts, err := r.Store.ListAccounts()
	if err != nil {
		return nil, err
	}
	secrets := make([]store.AccountSecret, 0, len(accounts))
	for _, account := range accounts {
		secret, err := r.Store.GetAccountSecret(account.ID)
		if err != nil {
			return nil, err
		}
		if secret != nil {
			secrets = append(secrets, *secret)
		}
	}
	return secrets, nil
}

func (r *Refresher) refreshOne(ctx context.Context, key []byte, secret store.AccountSecret, policy store.QuotaPolicy, force, single bool) (*store.QuotaSnapshot, error) {
	if !force {
		if cached, err := r.cachedSnapshot(secret.Account.ID, policy.CacheTTLSeconds); err != nil {
			return nil, err
		} else if cached != nil {
			metrics.RecordCacheHit()
			return cached, nil
		}
	}

	result, err := r.probeAccount(ctx, key, secret, policy)
	if err != nil {
		if single {
			return nil, err
		}
		// Batch refreshes degrade per-account failures to an unknown
		// observation so one bad account does not hide the rest.
		reason := "missing_access_token"
		if !apperrors.HasCode(err, apperrors.MissingAccessToken) {
			reason = "probe_failed"
		}
		result = unavailable(reason, SourceMerged)
	}

	saved, err := r.Store.SaveQuotaSnapshot(store.QuotaSnapshotParams{
		AccountID:      secret.Account.ID,
		Mode:           result.Mode,
		RemainingValue: result.RemainingValue,
		RemainingUnit:  result.RemainingUnit,
		QuotaState:     result.QuotaState,
		ResetAt:        result.ResetAt,
		Source:         result.Source,
		Confidence:     result.Confidence,
		Reason:         result.Reason,
	})
	if err != nil {
		return nil, err
	}
	metrics.RecordProbe(saved.Source, saved.QuotaState)
	return saved, nil
}

// cachedSnapshot returns the latest stored snapshot when it is still inside
// the TTL window. A snapshot from the future counts as stale forever.
func (r *Refresher) cachedSnapshot(accountID string, ttlSeconds int64) (*store.QuotaSnapshot, error) {
	latest, err := r.Store.LatestQuotaByAccount(accountID)
	if err != nil || latest == nil {
		return nil, err
	}
	createdAt, err := time.Parse(time.RFC3339Nano, latest.CreatedAt)
	if err != nil {
		return nil, nil
	}
	age := time.Since(createdAt)
	if age >= 0 && age <= time.Duration(ttlSeconds)*time.Second {
		return latest, nil
	}
	return nil, nil
}

func (r *Refresher) probeAccount(ctx context.Context, key []byte, secret store.AccountSecret, policy store.QuotaPolicy) (Result, error) {
	plaintext, err := crypto.DecryptFromBase64(key, secret.EncryptedAuthBlob)
	if err != nil {
		return Result{}, err
	}
	defer crypto.Zeroize(plaintext)

	var auth map[string]any
	if err := json.Unmarshal(plaintext, &auth); err != nil {
		return Result{}, apperrors.Wrap(apperrors.AuthSchemaError, "stored auth blob is not valid JSON", err)
	}
	accessToken, _ := auth["access_token"].(string)
	if strings.TrimSpace(accessToken) == "" {
		return Result{}, apperrors.New(apperrors.MissingAccessToken, "this account has no access_token, quota cannot be probed")
	}
	chatgptAccountID, _ := auth["account_id"].(string)

	result := r.Prober.Probe(ctx, accessToken, strings.TrimSpace(chatgptAccountID), time.Duration(policy.TimeoutMs)*time.Millisecond)
	if r.Log != nil {
		r.Log.Debug("quota probe finished",
			"account_id", secret.Account.ID,
			"source", result.Source,
			"state", result.QuotaState,
		)
	}
	return result, nil
}
