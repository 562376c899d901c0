package quota

import (
	"net/http"
	"testing"
)

func TestStateFromValue(t *testing.T) {
	cases := map[float64]string{
		-1:  StateExhausted,
		0:   StateExhausted,
		0.5: StateNearLimit,
		3:   StateNearLimit,
		3.1: StateAvailable,
		100: StateAvailable,
	}
	for value, want := range cases {
		if got := stateFromValue(value); got != want {
			t.Fatalf("stateFromValue(%v) = %q, want %q", value, got, want)
		}
	}
}

func TestNormalizeState(t *testing.T) {
	// Marker sets are matched by substring in order (exhausted, near_limit,
	// available); the first set with a match decides.
	cases := map[string]string{
		"exhausted":   StateExhausted,
		"LIMIT":       StateExhausted,
		"deny":        StateExhausted,
		"blocked":     StateExhausted,
		"near_limit":  StateExhausted, // contains "limit"
		"warning":     StateNearLimit,
		"low":         StateNearLimit,
		"throttled":   StateNearLimit,
		"ok":          StateAvailable,
		"allowed":     StateNearLimit, // contains "low"
		"available":   StateAvailable,
		"active":      StateAvailable,
		"weird":       "",
		"":            "",
	}
	for raw, want := range cases {
		if got := normalizeState(raw); got != want {
			t.Fatalf("normalizeState(%q) = %q, want %q", raw, got, want)
		}
	}
}

func TestExtractFromHeadersRemainingDirect(t *testing.T) {
	h := http.Header{}
	h.Set("X-Codex-Remaining", "42.5")
	h.Set("X-Codex-Unit", "requests")
	h.Set("X-Codex-Reset-At", "2026-08-01T00:00:00Z")

	result := extractFromHeaders(h, SourceAPI)
	if result == nil {
		t.Fatal("no result")
	}
	if result.Mode != ModeExact || result.Confidence != 96 {
		t.Fatalf("result = %+v", result)
	}
	if result.RemainingValue == nil || *result.RemainingValue != 42.5 {
		t.Fatalf("remaining = %v", result.RemainingValue)
	}
	if result.QuotaState != StateAvailable {
		t.Fatalf("state = %q", result.QuotaState)
	}
	if result.RemainingUnit == nil || *result.RemainingUnit != "requests" {
		t.Fatalf("unit = %v", result.RemainingUnit)
	}
	if result.ResetAt == nil || *result.ResetAt != "2026-08-01T00:00:00Z" {
		t.Fatalf("reset = %v", result.ResetAt)
	}
}

func TestExtractFromHeadersLimitUsedMath(t *testing.T) {
	h := http.Header{}
	h.Set("X-Codex-Limit", "100")
	h.Set("X-Codex-Used", "97")

	result := extractFromHeaders(h, SourceAPI)
	if result == nil {
		t.Fatal("no result")
	}
	if result.RemainingValue == nil || *result.RemainingValue != 3.0 {
		t.Fatalf("remaining = %v, want 3.0", result.RemainingValue)
	}
	if result.QuotaState != StateNearLimit {
		t.Fatalf("state = %q, want near_limit", result.QuotaState)
	}
}

func TestExtractFromHeadersUsedExceedsLimitClampsToZero(t *testing.T) {
	h := http.Header{}
	h.Set("X-Codex-Limit", "10")
	h.Set("X-Codex-Used", "15")

	result := extractFromHeaders(h, SourceAPI)
	if result == nil || result.RemainingValue == nil || *result.RemainingValue != 0 {
		t.Fatalf("result = %+v, want remaining 0", result)
	}
	if result.QuotaState != StateExhausted {
		t.Fatalf("state = %q", result.QuotaState)
	}
}

func TestExtractFromHeadersStateOnly(t *testing.T) {
	h := http.Header{}
	h.Set("X-Codex-State", "throttled")

	result := extractFromHeaders(h, SourceWeb)
	if result == nil {
		t.Fatal("no result")
	}
	if result.Mode != ModeState || result.Confidence != 80 {
		t.Fatalf("result = %+v", result)
	}
	if result.QuotaState != StateNearLimit {
		t.Fatalf("state = %q", result.QuotaState)
	}
}

func TestExtractFromHeadersHeaderStateOverridesValueState(t *testing.T) {
	h := http.Header{}
	h.Set("X-Codex-Remaining", "50")
	h.Set("X-Codex-State", "low")

	result := extractFromHeaders(h, SourceAPI)
	if result == nil || result.QuotaState != StateNearLimit {
		t.Fatalf("result = %+v, want header state to win", result)
	}
}

func TestExtractFromHeadersNoSignal(t *testing.T) {
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	if result := extractFromHeaders(h, SourceAPI); result != nil {
		t.Fatalf("result = %+v, want nil", result)
	}
}

func TestExtractFromJSONRemainingPath(t *testing.T) {
	body := []byte(`{"usage":{"codex":{"remaining_requests": 7, "total": 100}}, "unit": "messages", "reset_at": "soon"}`)
	result := extractFromJSON(body, SourceAPI)
	if result == nil {
		t.Fatal("no result")
	}
	if result.Mode != ModeExact || result.Confidence != 88 {
		t.Fatalf("result = %+v", result)
	}
	if *result.RemainingValue != 7 {
		t.Fatalf("remaining = %v", *result.RemainingValue)
	}
	if result.RemainingUnit == nil || *result.RemainingUnit != "messages" {
		t.Fatalf("unit = %v", result.RemainingUnit)
	}
	if result.ResetAt == nil || *result.ResetAt != "soon" {
		t.Fatalf("reset = %v", result.ResetAt)
	}
}

func TestExtractFromJSONQuotaFallbackPath(t *testing.T) {
	body := []byte(`{"limits":{"quota_left": 0}}`)
	result := extractFromJSON(body, SourceAPI)
	if result == nil {
		t.Fatal("no result")
	}
	if *result.RemainingValue != 0 || result.QuotaState != StateExhausted {
		t.Fatalf("result = %+v", result)
	}
}

func TestExtractFromJSONBooleanFlag(t *testing.T) {
	body := []byte(`{"status":{"limit_reached": true}}`)
	result := extractFromJSON(body, SourceAPI)
	if result == nil {
		t.Fatal("no result")
	}
	if result.Mode != ModeState || result.QuotaState != StateExhausted || result.Confidence != 75 {
		t.Fatalf("result = %+v", result)
	}
}

func TestExtractFromJSONNoSignal(t *testing.T) {
	if result := extractFromJSON([]byte(`{"hello":"world"}`), SourceAPI); result != nil {
		t.Fatalf("result = %+v, want nil", result)
	}
	if result := extractFromJSON([]byte(`not json`), SourceAPI); result != nil {
		t.Fatalf("result = %+v, want nil for bad json", result)
	}
}

func TestExtractFromHTMLNumber(t *testing.T) {
	body := []byte(`<div>Codex quota remaining: <b>12.5</b> today</div>`)
	result := extractFromHTML(body)
	if result == nil {
		t.Fatal("no result")
	}
	if result.Mode != ModeExact || result.Confidence != 60 {
		t.Fatalf("result = %+v", result)
	}
	if *result.RemainingValue != 12.5 {
		t.Fatalf("remaining = %v", *result.RemainingValue)
	}
	if result.RemainingUnit == nil || *result.RemainingUnit != "units" {
		t.Fatalf("unit = %v", result.RemainingUnit)
	}
}

func TestExtractFromHTMLExhaustedPhrase(t *testing.T) {
	body := []byte(`<p>You've reached your usage limit for today.</p>`)
	result := extractFromHTML(body)
	if result == nil {
		t.Fatal("no result")
	}
	if result.Mode != ModeState || result.QuotaState != StateExhausted || result.Confidence != 55 {
		t.Fatalf("result = %+v", result)
	}
}

func TestExtractFromHTMLNoSignal(t *testing.T) {
	if result := extractFromHTML([]byte(`<html><body>welcome</body></html>`)); result != nil {
		t.Fatalf("result = %+v, want nil", result)
	}
}

func TestMergePrefersExactFromAPI(t *testing.T) {
	remaining := 5.0
	api := Result{Mode: ModeExact, RemainingValue: &remaining, QuotaState: StateAvailable, Source: SourceAPI, Confidence: 88}
	web := unavailable("parse_failed", SourceWeb)

	merged := mergeResults(api, web)
	if merged.Source != SourceAPI || merged.Mode != ModeExact {
		t.Fatalf("merged = %+v", merged)
	}
}

func TestMergePrefersKnownState(t *testing.T) {
	api := unavailable("endpoint_not_found", SourceAPI)
	reason := "state_only"
	web := Result{Mode: ModeState, QuotaState: StateExhausted, Source: SourceWeb, Confidence: 55, Reason: &reason}

	merged := mergeResults(api, web)
	if merged.Source != SourceWeb || merged.QuotaState != StateExhausted {
		t.Fatalf("merged = %+v", merged)
	}
}

func TestMergeBothUnknownJoinsReasons(t *testing.T) {
	api := unavailable("endpoint_not_found", SourceAPI)
	web := unavailable("parse_failed", SourceWeb)

	merged := mergeResults(api, web)
	if merged.Source != SourceMerged || merged.QuotaState != StateUnknown {
		t.Fatalf("merged = %+v", merged)
	}
	if merged.Reason == nil || *merged.Reason != "api:endpoint_not_found|web:parse_failed" {
		t.Fatalf("reason = %v", merged.Reason)
	}
}
