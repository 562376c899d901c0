package codex

import (
	"strings"
	"testing"

	apperrors "github.com/githubbzxs/codex-switch/pkg/errors"
)

func TestValidateAuthJSONAcceptsPaddedType(t *testing.T) {
	auth, err := ValidateAuthJSON(`{"type":"  CoDeX  ", "access_token":"x", "extra":42}`)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if auth.AccessToken() != "x" {
		t.Fatalf("token = %q", auth.AccessToken())
	}
}

func TestValidateAuthJSONRejections(t *testing.T) {
	cases := []struct {
		name string
		text string
	}{
		{"missing type", `{"access_token":"x"}`},
		{"wrong type", `{"type":"chatgpt", "access_token":"x"}`},
		{"missing token", `{"type":"codex"}`},
		{"empty token", `{"type":"codex", "access_token":""}`},
		{"not json", `nope`},
		{"not an object", `["codex"]`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ValidateAuthJSON(tc.text); apperrors.CodeOf(err) != apperrors.AuthSchemaError {
				t.Fatalf("want AuthSchemaError, got %v", err)
			}
		})
	}
}

func mustAuth(t *testing.T, text string) *AuthJSON {
	t.Helper()
	auth, err := ValidateAuthJSON(text)
	if err != nil {
		t.Fatalf("validate %s: %v", text, err)
	}
	return auth
}

func TestFingerprintPrefersAccountID(t *testing.T) {
	auth := mustAuth(t, `{"type":"codex","access_token":"t","account_id":"acc-A","email":"a@b.c"}`)
	fp, err := ComputeFingerprint(auth)
	if err != nil {
		t.Fatalf("fingerprint: %v", err)
	}
	if !strings.HasPrefix(fp, "account:") {
		t.Fatalf("fingerprint = %q, want account: prefix", fp)
	}
	if len(fp) != len("account:")+16 {
		t.Fatalf("fingerprint length = %d", len(fp))
	}
}

func TestFingerprintStability(t *testing.T) {
	first := mustAuth(t, `{"type":"codex","access_token":"t1","account_id":"acc-A"}`)
	second := mustAuth(t, `{"type":"codex","access_token":"completely-different","account_id":"acc-A","email":"x@y.z"}`)

	fp1, _ := ComputeFingerprint(first)
	fp2, _ := ComputeFingerprint(second)
	if fp1 != fp2 {
		t.Fatalf("same account_id produced different fingerprints: %q vs %q", fp1, fp2)
	}

	other := mustAuth(t, `{"type":"codex","access_token":"t1","account_id":"acc-B"}`)
	fp3, _ := ComputeFingerprint(other)
	if fp1 == fp3 {
		t.Fatal("different account ids produced the same fingerprint")
	}
}

func TestFingerprintEmailCaseInsensitive(t *testing.T) {
	lower := mustAuth(t, `{"type":"codex","access_token":"t","email":"user@example.com"}`)
	upper := mustAuth(t, `{"type":"codex","access_token":"t","email":"USER@Example.COM"}`)

	fpLower, _ := ComputeFingerprint(lower)
	fpUpper, _ := ComputeFingerprint(upper)
	if fpLower != fpUpper {
		t.Fatalf("email fingerprints differ by case: %q vs %q", fpLower, fpUpper)
	}
	if !strings.HasPrefix(fpLower, "email:") {
		t.Fatalf("fingerprint = %q, want email: prefix", fpLower)
	}
}

func TestFingerprintFallsBackToToken(t *testing.T) {
	auth := mustAuth(t, `{"type":"codex","access_token":"tok-only"}`)
	fp, err := ComputeFingerprint(auth)
	if err != nil {
		t.Fatalf("fingerprint: %v", err)
	}
	if !strings.HasPrefix(fp, "token:") {
		t.Fatalf("fingerprint = %q, want token: prefix", fp)
	}
}

func TestFingerprintErrorWithoutSeed(t *testing.T) {
	// Bypass validation to model an auth value with no identity fields.
	auth := &AuthJSON{Value: map[string]any{"type": "codex"}}
	if _, err := ComputeFingerprint(auth); apperrors.CodeOf(err) != apperrors.FingerprintError {
		t.Fatalf("want FingerprintError, got %v", err)
	}
}

func TestPrettyPreservesPassthroughFields(t *testing.T) {
	auth := mustAuth(t, `{"type":"codex","access_token":"t","custom":{"nested":true}}`)
	pretty, err := auth.Pretty()
	if err != nil {
		t.Fatalf("pretty: %v", err)
	}
	if !strings.Contains(pretty, `"nested": true`) {
		t.Fatalf("pretty output dropped passthrough field: %s", pretty)
	}
}
