package quota

import (
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Upstream header families, matched case-insensitively by prefix.
const (
	headerRemainingPrefix = "x-codex-remaining"
	headerLimitPrefix     = "x-codex-limit"
	headerUsedPrefix      = "x-codex-used"
	headerUnitPrefix      = "x-codex-unit"
	headerResetPrefix     = "x-codex-reset"
	headerStatePrefix     = "x-codex-state"
)

var htmlQuotaPattern = regexp.MustCompile(`(?i)(remaining|quota)\D{0,20}([0-9]+(?:\.[0-9]+)?)`)

var htmlExhaustedPhrases = []string{
	"limit reached",
	"quota exceeded",
	"you've reached your usage limit",
}

// stateFromValue classifies a numeric remaining value.
func stateFromValue(value float64) string {
	switch {
	case value <= 0:
		return StateExhausted
	case value <= 3:
		return StateNearLimit
	default:
		return StateAvailable
	}
}

// normalizeState maps a free-form upstream state label onto our states.
// Returns "" when the label is unrecognized.
func normalizeState(raw string) string {
	lower := strings.ToLower(raw)
	for _, marker := range []string{"exhaust", "limit", "deny", "blocked"} {
		if strings.Contains(lower, marker) {
			return StateExhausted
		}
	}
	for _, marker := range []string{"near", "warn", "low", "throttle"} {
		if strings.Contains(lower, marker) {
			return StateNearLimit
		}
	}
	for _, marker := range []string{"ok", "allow", "available", "active"} {
		if strings.Contains(lower, marker) {
			return StateAvailable
		}
	}
	return ""
}

// firstHeaderValue finds the lexically first header whose name carries the
// prefix, case-insensitively. Sorting keeps "first match wins" stable.
func firstHeaderValue(h http.Header, prefix string) string {
	names := make([]string, 0, len(h))
	for name := range h {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if strings.HasPrefix(strings.ToLower(name), prefix) {
			if value := strings.TrimSpace(h.Get(name)); value != "" {
				return value
			}
		}
	}
	return ""
}

func firstHeaderNumber(h http.Header, prefix string) (float64, bool) {
	raw := firstHeaderValue(h, prefix)
	if raw == "" {
		return 0, false
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return value, true
}

// extractFromHeaders inspects X-Codex-* response headers. A remaining
// number (direct or limit-used) yields an exact result; a bare state header
// yields a state result.
func extractFromHeaders(h http.Header, source string) *Result {
	remaining, haveRemaining := firstHeaderNumber(h, headerRemainingPrefix)
	if !haveRemaining {
		limit, haveLimit := firstHeaderNumber(h, headerLimitPrefix)
		used, haveUsed := firstHeaderNumber(h, headerUsedPrefix)
		if haveLimit && haveUsed {
			remaining = limit - used
			if remaining < 0 {
				remaining = 0
			}
			haveRemaining = true
		}
	}

	var unit, reset *string
	if value := firstHeaderValue(h, headerUnitPrefix); value != "" {
		unit = &value
	}
	if value := firstHeaderValue(h, headerResetPrefix); value != "" {
		reset = &value
	}

	if haveRemaining {
		state := stateFromValue(remaining)
		if raw := firstHeaderValue(h, headerStatePrefix); raw != "" {
			if normalized := normalizeState(raw); normalized != "" {
				state = normalized
			}
		}
		return &Result{
			Mode:           ModeExact,
			RemainingValue: &remaining,
			RemainingUnit:  unit,
			QuotaState:     state,
			ResetAt:        reset,
			Source:         source,
			Confidence:     96,
		}
	}

	if raw := firstHeaderValue(h, headerStatePrefix); raw != "" {
		if normalized := normalizeState(raw); normalized != "" {
			return &Result{
				Mode:          ModeState,
				RemainingUnit: unit,
				QuotaState:    normalized,
				ResetAt:       reset,
				Source:        source,
				Confidence:    80,
			}
		}
	}
	return nil
}

// extractFromJSON walks a shape-unstable JSON body depth-first, collecting
// numeric leaves, and picks the first whose dotted path mentions
// "remaining", else "quota". Boolean exhaustion flags are the fallback.
func extractFromJSON(body []byte, source string) *Result {
	var value any
	if err := json.Unmarshal(body, &value); err != nil {
		return nil
	}

	var numbers []pathNumber
	collectNumbers("", value, &numbers)

	remaining := findNumberByPath(numbers, "remaining")
	if remaining == nil {
		remaining = findNumberByPath(numbers, "quota")
	}
	if remaining != nil {
		return &Result{
			Mode:           ModeExact,
			RemainingValue: remaining,
			RemainingUnit:  findTextByKeys(value, []string{"unit", "quota_unit", "remaining_unit"}),
			QuotaState:     stateFromValue(*remaining),
			ResetAt:        findTextByKeys(value, []string{"reset_at", "resetAt", "next_reset"}),
			Source:         source,
			Confidence:     88,
		}
	}

	if findTrueFlag(value, []string{"quota_exhausted", "limit_reached", "exhausted"}) {
		reason := "state_only"
		return &Result{
			Mode:       ModeState,
			QuotaState: StateExhausted,
			ResetAt:    findTextByKeys(value, []string{"reset_at", "resetAt", "next_reset"}),
			Source:     source,
			Confidence: 75,
			Reason:     &reason,
		}
	}
	return nil
}

// extractFromHTML scans a quota page for a nearby number, else for the
// known exhaustion phrases.
func extractFromHTML(body []byte) *Result {
	html := string(body)
	if match := htmlQuotaPattern.FindStringSubmatch(html); match != nil {
		value, err := strconv.ParseFloat(match[2], 64)
		if err == nil {
			unit := "units"
			return &Result{
				Mode:           ModeExact,
				RemainingValue: &value,
				RemainingUnit:  &unit,
				QuotaState:     stateFromValue(value),
				Source:         SourceWeb,
				Confidence:     60,
			}
		}
	}

	lower := strings.ToLower(html)
	for _, phrase := range htmlExhaustedPhrases {
		if strings.Contains(lower, phrase) {
			reason := "state_only"
			return &Result{
				Mode:       ModeState,
				QuotaState: StateExhausted,
				Source:     SourceWeb,
				Confidence: 55,
				Reason:     &reason,
			}
		}
	}
	return nil
}

type pathNumber struct {
	path  string
	value float64
}

func collectNumbers(prefix string, value any, out *[]pathNumber) {
	switch v := value.(type) {
	case map[string]any:
		// Sort keys so "first candidate" is deterministic across runs.
		keys := make([]string, 0, len(v))
		for key := range v {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			path := key
			if prefix != "" {
				path = prefix + "." + key
			}
			collectNumbers(path, v[key], out)
		}
	case []any:
		for index, child := range v {
			collectNumbers(fmt.Sprintf("%s[%d]", prefix, index), child, out)
		}
	case float64:
		*out = append(*out, pathNumber{path: prefix, value: v})
	}
}

func findNumberByPath(numbers []pathNumber, needle string) *float64 {
	for _, candidate := range numbers {
		if strings.Contains(strings.ToLower(candidate.path), needle) {
			value := candidate.value
			return &value
		}
	}
	return nil
}

func findTextByKeys(value any, keys []string) *string {
	for _, key := range keys {
		if found := findTextByKey(value, key); found != nil {
			return found
		}
	}
	return nil
}

func findTextByKey(value any, target string) *string {
	switch v := value.(type) {
	case map[string]any:
		keys := make([]string, 0, len(v))
		for key := range v {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			if strings.EqualFold(key, target) {
				if text, ok := v[key].(string); ok {
					return &text
				}
			}
			if found := findTextByKey(v[key], target); found != nil {
				return found
			}
		}
	case []any:
		for _, child := range v {
			if found := findTextByKey(child, target); found != nil {
				return found
			}
		}
	}
	return nil
}

func findTrueFlag(value any, targets []string) bool {
	switch v := value.(type) {
	case map[string]any:
		for key, child := range v {
			for _, target := range targets {
				if strings.EqualFold(key, target) {
					if flag, ok := child.(bool); ok && flag {
						return true
					}
				}
			}
			if findTrueFlag(child, targets) {
				return true
			}
		}
	case []any:
		for _, child := range v {
			if findTrueFlag(child, targets) {
				return true
			}
		}
	}
	return false
}
