package vault

import (
	"testing"

	"github.com/githubbzxs/codex-switch/pkg/codex"
	"github.com/githubbzxs/codex-switch/pkg/crypto"
	apperrors "github.com/githubbzxs/codex-switch/pkg/errors"
	"github.com/githubbzxs/codex-switch/pkg/store"
)

func newTestVault(t *testing.T) (*Vault, *store.Store) {
	t.Helper()
	s := store.New(t.TempDir())
	if err := s.Init(); err != nil {
		t.Fatalf("store init: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return New(s), s
}

func TestInitUnlocksAndIsIdempotent(t *testing.T) {
	v, _ := newTestVault(t)

	initialized, err := v.Init("passphrase-1")
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if !initialized {
		t.Fatal("first init should report true")
	}
	if !v.IsUnlocked() {
		t.Fatal("vault locked after init")
	}

	again, err := v.Init("different-password")
	if err != nil {
		t.Fatalf("second init: %v", err)
	}
	if again {
		t.Fatal("second init should report false")
	}
}

func TestUnlockBeforeInitFails(t *testing.T) {
	v, _ := newTestVault(t)
	err := v.Unlock("passphrase-1")
	if apperrors.CodeOf(err) != apperrors.VaultUninitialized {
		t.Fatalf("want VaultUninitialized, got %v", err)
	}
}

func TestLockDropsKey(t *testing.T) {
	v, _ := newTestVault(t)
	if _, err := v.Init("passphrase-1"); err != nil {
		t.Fatalf("init: %v", err)
	}
	v.Lock()
	if v.IsUnlocked() {
		t.Fatal("vault still unlocked after Lock")
	}
	if _, err := v.Key(); apperrors.CodeOf(err) != apperrors.VaultLocked {
		t.Fatalf("want VaultLocked, got %v", err)
	}
}

func TestUnlockRederivesSameKey(t *testing.T) {
	v, _ := newTestVault(t)
	if _, err := v.Init("passphrase-1"); err != nil {
		t.Fatalf("init: %v", err)
	}
	first, err := v.Key()
	if err != nil {
		t.Fatalf("key: %v", err)
	}

	v.Lock()
	if err := v.Unlock("passphrase-1"); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	second, err := v.Key()
	if err != nil {
		t.Fatalf("key: %v", err)
	}
	if string(first) != string(second) {
		t.Fatal("unlock with same password produced a different key")
	}
}

func TestWrongPasswordDetectedOnDecrypt(t *testing.T) {
	v, _ := newTestVault(t)
	if _, err := v.Init("passphrase-1"); err != nil {
		t.Fatalf("init: %v", err)
	}
	key, _ := v.Key()
	encrypted, err := crypto.EncryptToBase64(key, []byte("secret"))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	// Unlock succeeds even with the wrong password.
	if err := v.Unlock("wrong-password"); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	wrongKey, _ := v.Key()
	if _, err := crypto.DecryptFromBase64(wrongKey, encrypted); apperrors.CodeOf(err) != apperrors.DecryptError {
		t.Fatalf("want DecryptError with wrong password, got %v", err)
	}
}

func mustAuth(t *testing.T, text string) *codex.AuthJSON {
	t.Helper()
	auth, err := codex.ValidateAuthJSON(text)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	return auth
}

func TestImportRoundTrip(t *testing.T) {
	v, s := newTestVault(t)
	if _, err := v.Init("passphrase-1"); err != nil {
		t.Fatalf("init: %v", err)
	}

	auth := mustAuth(t, `{"type":"codex","access_token":"tok","account_id":"acc-A"}`)
	account, err := v.ImportAuthJSON("Work", []string{"eu", "eu", " team "}, "", auth)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if account.Name != "Work" {
		t.Fatalf("name = %q", account.Name)
	}
	if len(account.Tags) != 2 {
		t.Fatalf("tags = %v", account.Tags)
	}

	secret, err := s.GetAccountSecret(account.ID)
	if err != nil || secret == nil {
		t.Fatalf("secret: %v %v", secret, err)
	}
	key, _ := v.Key()
	plaintext, err := crypto.DecryptFromBase64(key, secret.EncryptedAuthBlob)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if _, err := codex.ValidateAuthJSON(string(plaintext)); err != nil {
		t.Fatalf("stored blob does not validate: %v", err)
	}
}

func TestImportDuplicateRejected(t *testing.T) {
	v, _ := newTestVault(t)
	if _, err := v.Init("passphrase-1"); err != nil {
		t.Fatalf("init: %v", err)
	}

	auth := mustAuth(t, `{"type":"codex","access_token":"tok","account_id":"acc-A"}`)
	if _, err := v.ImportAuthJSON("first", nil, "", auth); err != nil {
		t.Fatalf("first import: %v", err)
	}

	// Same identity with a different token still dedupes on the fingerprint.
	same := mustAuth(t, `{"type":"codex","access_token":"other","account_id":"acc-A"}`)
	_, err := v.ImportAuthJSON("second", nil, "", same)
	if apperrors.CodeOf(err) != apperrors.DuplicateAccountError {
		t.Fatalf("want DuplicateAccountError, got %v", err)
	}
}

func TestImportSameIdentityGuard(t *testing.T) {
	v, _ := newTestVault(t)
	if _, err := v.Init("passphrase-1"); err != nil {
		t.Fatalf("init: %v", err)
	}

	auth := mustAuth(t, `{"type":"codex","access_token":"tok","account_id":"acc-A"}`)
	fingerprint, err := codex.ComputeFingerprint(auth)
	if err != nil {
		t.Fatalf("fingerprint: %v", err)
	}
	_, err = v.ImportAuthJSON("name", nil, fingerprint, auth)
	if apperrors.CodeOf(err) != apperrors.SameIdentityError {
		t.Fatalf("want SameIdentityError, got %v", err)
	}
}

func TestImportRequiresUnlockedVault(t *testing.T) {
	v, _ := newTestVault(t)
	auth := mustAuth(t, `{"type":"codex","access_token":"tok"}`)
	_, err := v.ImportAuthJSON("name", nil, "", auth)
	if apperrors.CodeOf(err) != apperrors.VaultLocked {
		t.Fatalf("want VaultLocked, got %v", err)
	}
}

func TestEnsureNameFallbacks(t *testing.T) {
	withEmail := mustAuth(t, `{"type":"codex","access_token":"t","email":"user@example.com","account_id":"acc"}`)
	if got := EnsureName("  ", withEmail); got != "user@example.com" {
		t.Fatalf("EnsureName = %q, want email", got)
	}

	withAccount := mustAuth(t, `{"type":"codex","access_token":"t","account_id":"acc-9"}`)
	if got := EnsureName("", withAccount); got != "acc-9" {
		t.Fatalf("EnsureName = %q, want account id", got)
	}

	tokenOnly := mustAuth(t, `{"type":"codex","access_token":"t"}`)
	got := EnsureName("", tokenOnly)
	if len(got) == 0 || got == "未命名账号-0000" {
		t.Fatalf("EnsureName = %q, want fingerprint-derived suffix", got)
	}
	if got[:len("未命名账号-")] != "未命名账号-" {
		t.Fatalf("EnsureName = %q, want placeholder prefix", got)
	}

	if got := EnsureName("  Custom  ", withEmail); got != "Custom" {
		t.Fatalf("EnsureName = %q, want trimmed user input", got)
	}
}

func TestUniqueTagsOrderPreserving(t *testing.T) {
	got := UniqueTags([]string{" b ", "a", "b", "", "a ", "c"})
	want := []string{"b", "a", "c"}
	if len(got) != len(want) {
		t.Fatalf("tags = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("tags = %v, want %v", got, want)
		}
	}
}
