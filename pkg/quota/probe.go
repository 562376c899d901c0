// Package quota observes remaining quota for stored accounts by probing the
// upstream API and web endpoints concurrently. A probe never fails: every
// upstream problem degrades to a well-typed unknown result with a reason.
package quota

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Result mode and state values.
const (
	ModeExact = "exact"
	ModeState = "state"

	StateAvailable = "available"
	StateNearLimit = "near_limit"
	StateExhausted = "exhausted"
	StateUnknown   = "unknown"

	SourceAPI    = "api"
	SourceWeb    = "web"
	SourceMerged = "merged"
)

var apiDomains = []string{"chatgpt.com", "chat.openai.com"}

var apiPaths = []string{
	"/backend-api/api/codex/usage",
	"/backend-api/wham/usage",
	"/backend-api/codex/usage",
	"/backend-api/usage",
}

const (
	requestVersion    = "0.98.0"
	requestUserAgent  = "codex-switch/0.1.0"
	requestOriginator = "codex_switch"
)

// Result is one probe observation.
type Result struct {
	Mode           string
	RemainingValue *float64
	RemainingUnit  *string
	QuotaState     string
	ResetAt        *string
	Source         string
	Confidence     int64
	Reason         *string
}

func unavailable(reason, source string) Result {
	return Result{
		Mode:       ModeState,
		QuotaState: StateUnknown,
		Source:     source,
		Confidence: 20,
		Reason:     &reason,
	}
}

// Prober issues HTTP probes. Endpoint lists are overridable for tests.
type Prober struct {
	APIEndpoints []string
	WebEndpoints []string
	Transport    http.RoundTripper
}

// NewProber returns a prober wired to the production endpoint set.
func NewProber() *Prober {
	p := &Prober{}
	for _, domain := range apiDomains {
		for _, path := range apiPaths {
			p.APIEndpoints = append(p.APIEndpoints, "https://"+domain+path)
		}
	}
	for _, domain := range apiDomains {
		p.WebEndpoints = append(p.WebEndpoints, "https://"+domain+"/codex")
	}
	return p
}

// Probe runs the api and web families in parallel and merges per policy:
// any exact result wins (api first by stable order), else the first result
// with a known state, else a merged unknown.
func (p *Prober) Probe(ctx context.Context, accessToken, chatgptAccountID string, timeout time.Duration) Result {
	client := &http.Client{Timeout: timeout, Transport: p.Transport}

	var apiResult, webResult Result
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		apiResult = p.probeFamily(groupCtx, client, p.APIEndpoints, SourceAPI, accessToken, chatgptAccountID)
		return nil
	})
	group.Go(func() error {
		webResult = p.probeFamily(groupCtx, client, p.WebEndpoints, SourceWeb, accessToken, chatgptAccountID)
		return nil
	})
	_ = group.Wait()

	return mergeResults(apiResult, webResult)
}

func mergeResults(api, web Result) Result {
	for _, candidate := range []Result{api, web} {
		if candidate.Mode == ModeExact {
			return candidate
		}
	}
	for _, candidate := range []Result{api, web} {
		if candidate.QuotaState != StateUnknown {
			return candidate
		}
	}
	reason := fmt.Sprintf("api:%s|web:%s", reasonOrUnknown(api), reasonOrUnknown(web))
	merged := unavailable(reason, SourceMerged)
	return merged
}

func reasonOrUnknown(r Result) string {
	if r.Reason != nil {
		return *r.Reason
	}
	return "unknown"
}

// probeFamily walks one endpoint list until an endpoint yields data.
func (p *Prober) probeFamily(ctx context.Context, client *http.Client, endpoints []string, source, accessToken, chatgptAccountID string) Result {
	lastReason := "source_unavailable"
	for _, endpoint := range endpoints {
		resp, err := p.request(ctx, client, endpoint, source, accessToken, chatgptAccountID)
		if err != nil {
			lastReason = "network_error"
			continue
		}

		status := resp.StatusCode
		switch {
		case status == http.StatusUnauthorized:
			resp.Body.Close()
			return unavailable(fmt.Sprintf("auth_expired@401:%s", endpoint), source)
		case status == http.StatusTooManyRequests && source == SourceAPI:
			resp.Body.Close()
			reason := fmt.Sprintf("rate_limited@429:%s", endpoint)
			return Result{
				Mode:       ModeState,
				QuotaState: StateExhausted,
				Source:     source,
				Confidence: 95,
				Reason:     &reason,
			}
		case status < 200 || status > 299:
			resp.Body.Close()
			lastReason = reasonFromStatus(status)
			continue
		}

		if result := extractFromHeaders(resp.Header, source); result != nil {
			resp.Body.Close()
			return *result
		}

		body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
		resp.Body.Close()
		if err != nil {
			lastReason = "network_error"
			continue
		}

		var result *Result
		if source == SourceAPI {
			result = extractFromJSON(body, source)
		} else {
			result = extractFromHTML(body)
		}
		if result != nil {
			return *result
		}
		lastReason = "parse_failed"
	}
	return unavailable(lastReason, source)
}

func (p *Prober) request(ctx context.Context, client *http.Client, endpoint, source, accessToken, chatgptAccountID string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Version", requestVersion)
	req.Header.Set("Openai-Beta", "responses=experimental")
	req.Header.Set("Session_id", uuid.NewString())
	req.Header.Set("User-Agent", requestUserAgent)
	req.Header.Set("Originator", requestOriginator)
	req.Header.Set("Connection", "Keep-Alive")
	if source == SourceAPI {
		req.Header.Set("Accept", "application/json")
	} else {
		req.Header.Set("Accept", "text/html,application/xhtml+xml")
	}
	if chatgptAccountID != "" {
		req.Header.Set("Chatgpt-Account-Id", chatgptAccountID)
	}
	return client.Do(req)
}

func reasonFromStatus(status int) string {
	switch {
	case status >= 300 && status < 400:
		return "endpoint_redirected"
	case status == http.StatusNotFound:
		return "endpoint_not_found"
	case status == http.StatusForbidden:
		return "auth_forbidden"
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return "upstream_timeout"
	case status == http.StatusInternalServerError || status == http.StatusBadGateway || status == http.StatusServiceUnavailable:
		return "upstream_unavailable"
	case status >= 400 && status < 500:
		return "client_error"
	default:
		return "server_error"
	}
}
