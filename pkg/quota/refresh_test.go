package quota

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/githubbzxs/codex-switch/pkg/codex"
	"github.com/githubbzxs/codex-switch/pkg/crypto"
	apperrors "github.com/githubbzxs/codex-switch/pkg/errors"
	"github.com/githubbzxs/codex-switch/pkg/store"
	"github.com/githubbzxs/codex-switch/pkg/vault"
)

type refreshFixture struct {
	store     *store.Store
	vault     *vault.Vault
	refresher *Refresher
	apiCalls  *atomic.Int64
}

func newRefreshFixture(t *testing.T, apiHandler http.HandlerFunc) *refreshFixture {
	t.Helper()
	s := store.New(t.TempDir())
	if err := s.Init(); err != nil {
		t.Fatalf("store init: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	v := vault.New(s)
	if _, err := v.Init("passphrase-1"); err != nil {
		t.Fatalf("vault init: %v", err)
	}

	var apiCalls atomic.Int64
	counted := func(w http.ResponseWriter, r *http.Request) {
		apiCalls.Add(1)
		apiHandler(w, r)
	}
	api := httptest.NewServer(http.HandlerFunc(counted))
	t.Cleanup(api.Close)
	web := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(web.Close)

	prober := &Prober{
		APIEndpoints: []string{api.URL + "/backend-api/usage"},
		WebEndpoints: []string{web.URL + "/codex"},
	}
	return &refreshFixture{
		store:     s,
		vault:     v,
		refresher: &Refresher{Store: s, Vault: v, Prober: prober},
		apiCalls:  &apiCalls,
	}
}

func (f *refreshFixture) importAccount(t *testing.T, name, authText string) *store.Account {
	t.Helper()
	auth, err := codex.ValidateAuthJSON(authText)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	account, err := f.vault.ImportAuthJSON(name, nil, "", auth)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	return account
}

func TestRefreshStoresSnapshot(t *testing.T) {
	f := newRefreshFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"remaining": 12}`))
	})
	account := f.importAccount(t, "a", `{"type":"codex","access_token":"tok","account_id":"acc-A"}`)

	snapshots, err := f.refresher.Refresh(context.Background(), account.ID, true)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if len(snapshots) != 1 {
		t.Fatalf("snapshots = %d", len(snapshots))
	}
	snap := snapshots[0]
	if snap.Mode != ModeExact || *snap.RemainingValue != 12 || snap.QuotaState != StateAvailable {
		t.Fatalf("snapshot = %+v", snap)
	}

	stored, err := f.store.LatestQuotaByAccount(account.ID)
	if err != nil || stored == nil {
		t.Fatalf("stored = %v, err %v", stored, err)
	}
	if stored.ID != snap.ID {
		t.Fatal("returned snapshot not persisted")
	}
}

func TestRefreshRateLimitedStoresExhausted(t *testing.T) {
	f := newRefreshFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	account := f.importAccount(t, "a", `{"type":"codex","access_token":"tok","account_id":"acc-A"}`)

	snapshots, err := f.refresher.Refresh(context.Background(), account.ID, true)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	snap := snapshots[0]
	if snap.QuotaState != StateExhausted || snap.Source != SourceAPI || snap.Confidence != 95 {
		t.Fatalf("snapshot = %+v", snap)
	}
}

func TestRefreshCacheReuse(t *testing.T) {
	f := newRefreshFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"remaining": 5}`))
	})
	account := f.importAccount(t, "a", `{"type":"codex","access_token":"tok","account_id":"acc-A"}`)

	if err := f.store.SetQuotaPolicy(5000, 300, 3); err != nil {
		t.Fatalf("policy: %v", err)
	}

	first, err := f.refresher.Refresh(context.Background(), account.ID, false)
	if err != nil {
		t.Fatalf("first refresh: %v", err)
	}
	second, err := f.refresher.Refresh(context.Background(), account.ID, false)
	if err != nil {
		t.Fatalf("second refresh: %v", err)
	}

	if f.apiCalls.Load() != 1 {
		t.Fatalf("network probes = %d, want exactly 1 with warm cache", f.apiCalls.Load())
	}
	if first[0].ID != second[0].ID {
		t.Fatal("second refresh did not reuse the cached snapshot")
	}
}

func TestRefreshForceBypassesCache(t *testing.T) {
	f := newRefreshFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"remaining": 5}`))
	})
	account := f.importAccount(t, "a", `{"type":"codex","access_token":"tok","account_id":"acc-A"}`)

	if _, err := f.refresher.Refresh(context.Background(), account.ID, false); err != nil {
		t.Fatalf("first refresh: %v", err)
	}
	if _, err := f.refresher.Refresh(context.Background(), account.ID, true); err != nil {
		t.Fatalf("forced refresh: %v", err)
	}
	if f.apiCalls.Load() != 2 {
		t.Fatalf("network probes = %d, want 2 with force", f.apiCalls.Load())
	}
}

func TestRefreshAllAccounts(t *testing.T) {
	f := newRefreshFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"remaining": 5}`))
	})
	f.importAccount(t, "a", `{"type":"codex","access_token":"tok","account_id":"acc-A"}`)
	f.importAccount(t, "b", `{"type":"codex","access_token":"tok","account_id":"acc-B"}`)

	snapshots, err := f.refresher.Refresh(context.Background(), "", true)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if len(snapshots) != 2 {
		t.Fatalf("snapshots = %d, want 2", len(snapshots))
	}
}

func TestRefreshBatchDegradesMissingToken(t *testing.T) {
	f := newRefreshFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"remaining": 5}`))
	})
	good := f.importAccount(t, "good", `{"type":"codex","access_token":"tok","account_id":"acc-A"}`)

	// Import validation requires a non-empty access_token, so a blob without
	// one is written through the store directly.
	key, err := f.vault.Key()
	if err != nil {
		t.Fatalf("key: %v", err)
	}
	blob := encryptForTest(t, key, `{"type":"codex","account_id":"acc-B"}`)
	if _, err := f.store.CreateAccount("broken", nil, blob, "account:ffffffffffffffff"); err != nil {
		t.Fatalf("create broken account: %v", err)
	}

	snapshots, err := f.refresher.Refresh(context.Background(), "", true)
	if err != nil {
		t.Fatalf("batch refresh: %v", err)
	}
	if len(snapshots) != 2 {
		t.Fatalf("snapshots = %d, want 2", len(snapshots))
	}

	byAccount := map[string]store.QuotaSnapshot{}
	for _, snap := range snapshots {
		byAccount[snap.AccountID] = snap
	}
	if byAccount[good.ID].Mode != ModeExact {
		t.Fatalf("good account snapshot = %+v", byAccount[good.ID])
	}
	broken, err := f.store.FindAccountByFingerprint("account:ffffffffffffffff")
	if err != nil || broken == nil {
		t.Fatalf("find broken: %v", err)
	}
	snap := byAccount[broken.ID]
	if snap.QuotaState != StateUnknown || snap.Reason == nil || *snap.Reason != "missing_access_token" {
		t.Fatalf("broken account snapshot = %+v", snap)
	}
}

func TestRefreshSingleMissingTokenFails(t *testing.T) {
	f := newRefreshFixture(t, func(w http.ResponseWriter, r *http.Request) {})
	key, err := f.vault.Key()
	if err != nil {
		t.Fatalf("key: %v", err)
	}
	blob := encryptForTest(t, key, `{"type":"codex","account_id":"acc-B"}`)
	account, err := f.store.CreateAccount("broken", nil, blob, "account:eeeeeeeeeeeeeeee")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	_, err = f.refresher.Refresh(context.Background(), account.ID, true)
	if apperrors.CodeOf(err) != apperrors.MissingAccessToken {
		t.Fatalf("want MissingAccessToken, got %v", err)
	}
}

func TestRefreshUnknownAccount(t *testing.T) {
	f := newRefreshFixture(t, func(w http.ResponseWriter, r *http.Request) {})
	_, err := f.refresher.Refresh(context.Background(), "missing-id", true)
	if apperrors.CodeOf(err) != apperrors.AccountNotFound {
		t.Fatalf("want AccountNotFound, got %v", err)
	}
}

func TestRefreshRequiresUnlockedVault(t *testing.T) {
	f := newRefreshFixture(t, func(w http.ResponseWriter, r *http.Request) {})
	f.importAccount(t, "a", `{"type":"codex","access_token":"tok","account_id":"acc-A"}`)
	f.vault.Lock()

	_, err := f.refresher.Refresh(context.Background(), "", true)
	if apperrors.CodeOf(err) != apperrors.VaultLocked {
		t.Fatalf("want VaultLocked, got %v", err)
	}
}

func TestCachedSnapshotAgeWindow(t *testing.T) {
	f := newRefreshFixture(t, func(w http.ResponseWriter, r *http.Request) {})
	account := f.importAccount(t, "a", `{"type":"codex","access_token":"tok","account_id":"acc-A"}`)

	if _, err := f.store.SaveQuotaSnapshot(store.QuotaSnapshotParams{
		AccountID: account.ID, Mode: ModeState, QuotaState: StateUnknown, Source: SourceMerged, Confidence: 20,
	}); err != nil {
		t.Fatalf("seed snapshot: %v", err)
	}

	cached, err := f.refresher.cachedSnapshot(account.ID, 30)
	if err != nil {
		t.Fatalf("cachedSnapshot: %v", err)
	}
	if cached == nil {
		t.Fatal("fresh snapshot should be served from cache")
	}

	time.Sleep(1100 * time.Millisecond)
	stale, err := f.refresher.cachedSnapshot(account.ID, 1)
	if err != nil {
		t.Fatalf("cachedSnapshot: %v", err)
	}
	if stale != nil {
		t.Fatal("snapshot older than the TTL served from cache")
	}
}

func TestCachedSnapshotMissingAccount(t *testing.T) {
	f := newRefreshFixture(t, func(w http.ResponseWriter, r *http.Request) {})
	if cached, err := f.refresher.cachedSnapshot("no-such-account", 1<<30); err != nil || cached != nil {
		t.Fatalf("cached = %v, err %v, want nil for account without snapshots", cached, err)
	}
}

func encryptForTest(t *testing.T, key []byte, plaintext string) string {
	t.Helper()
	blob, err := crypto.EncryptToBase64(key, []byte(plaintext))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	return blob
}

