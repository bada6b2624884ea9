// Package api talks to the two remote usage endpoints: the OAuth bearer
// endpoint on api.anthropic.com and the cookie-authenticated org endpoint on
// claude.ai. Every failure mode (network error, non-2xx, malformed body)
// collapses to a nil snapshot; only the log line tells them apart.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/janekbaraniewski/claudeusage/internal/core"
)

const (
	defaultAPIBase = "https://api.anthropic.com"
	defaultWebBase = "https://claude.ai/api"

	oauthBetaHeader = "oauth-2025-04-20"
	requestTimeout  = 15 * time.Second

	browserUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"
)

type mode int

const (
	modeBearer mode = iota
	modeCookie
)

// Client is one remote usage adapter. A client is either bearer-mode or
// cookie-mode for its whole lifetime; the orchestrator builds a fresh one
// each cycle from whatever credential source won.
type Client struct {
	mode       mode
	token      string
	sessionKey string

	apiBase string
	webBase string
	http    *http.Client
	log     zerolog.Logger
}

// NewBearerClient builds a client for the direct OAuth usage endpoint. No org
// lookup is needed in this mode.
func NewBearerClient(accessToken string, log zerolog.Logger) *Client {
	return &Client{
		mode:    modeBearer,
		token:   accessToken,
		apiBase: defaultAPIBase,
		webBase: defaultWebBase,
		http:    &http.Client{Timeout: requestTimeout},
		log:     log,
	}
}

// NewCookieClient builds a client for the claude.ai org-scoped endpoint,
// authenticated by the sessionKey cookie.
func NewCookieClient(sessionKey string, log zerolog.Logger) *Client {
	return &Client{
		mode:       modeCookie,
		sessionKey: sessionKey,
		apiBase:    defaultAPIBase,
		webBase:    defaultWebBase,
		http:       &http.Client{Timeout: requestTimeout},
		log:        log,
	}
}

// SetBaseURLs redirects both endpoints (tests).
func (c *Client) SetBaseURLs(apiBase, webBase string) {
	c.apiBase = apiBase
	c.webBase = webBase
}

// GetOrgID resolves the organization id for cookie mode by introspecting the
// session: the first membership's organization UUID, else the personal
// account UUID. Empty string on any failure.
func (c *Client) GetOrgID(ctx context.Context) string {
	if c.mode != modeCookie {
		return ""
	}

	body, ok := c.get(ctx, c.webBase+"/auth/session", "org-id lookup")
	if !ok {
		return ""
	}

	var sess sessionResponse
	if err := json.Unmarshal(body, &sess); err != nil {
		c.log.Warn().Err(err).Msg("org-id lookup: malformed session body")
		return ""
	}

	orgID := ""
	if len(sess.Account.Memberships) > 0 {
		orgID = sess.Account.Memberships[0].Organization.UUID
	}
	if orgID == "" {
		orgID = sess.Account.UUID
	}

	c.log.Debug().Str("org_id", orgID).Msg("org-id lookup: resolved")
	return orgID
}

// FetchBearerUsage calls the direct usage endpoint. planHint fills the plan
// field since the bearer response does not carry one; an empty hint defaults
// to "pro".
func (c *Client) FetchBearerUsage(ctx context.Context, planHint string) *core.UsageSnapshot {
	if c.mode != modeBearer {
		return nil
	}

	body, ok := c.get(ctx, c.apiBase+"/api/oauth/usage", "bearer usage")
	if !ok {
		return nil
	}

	usage, ok := decodeUsage(body)
	if !ok {
		c.log.Warn().Str("body", truncate(string(body), 200)).Msg("bearer usage: malformed body")
		return nil
	}

	snap := buildSnapshot(usage, core.NormalizePlan(planHint, core.PlanPro))
	return &snap
}

// FetchOrgUsage calls the org-scoped usage endpoint (cookie mode). The plan
// label is whatever the server reports, normalized.
func (c *Client) FetchOrgUsage(ctx context.Context, orgID string) *core.UsageSnapshot {
	if c.mode != modeCookie || orgID == "" {
		return nil
	}

	body, ok := c.get(ctx, fmt.Sprintf("%s/organizations/%s/usage", c.webBase, orgID), "org usage")
	if !ok {
		return nil
	}

	usage, ok := decodeUsage(body)
	if !ok {
		c.log.Warn().Str("body", truncate(string(body), 200)).Msg("org usage: malformed body")
		return nil
	}

	snap := buildSnapshot(usage, core.NormalizePlan(usage.Plan, core.PlanFree))
	return &snap
}

func buildSnapshot(usage usageResponse, plan string) core.UsageSnapshot {
	snap := core.UsageSnapshot{Plan: plan}
	if w := usage.FiveHour; w != nil {
		snap.FiveHourPct = core.ClampPct(int(w.Utilization))
		snap.FiveHourResetAt = parseResetAt(w.ResetsAt)
	}
	if w := usage.SevenDay; w != nil {
		snap.WeeklyPct = core.ClampPct(int(w.Utilization))
		snap.WeeklyResetAt = parseResetAt(w.ResetsAt)
	}
	return snap
}

// get performs one GET with the mode's auth headers and returns the body only
// for 2xx responses. All failures log with status and truncated body.
func (c *Client) get(ctx context.Context, url, what string) ([]byte, bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		c.log.Warn().Err(err).Str("what", what).Msg("building request")
		return nil, false
	}

	switch c.mode {
	case modeBearer:
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("anthropic-beta", oauthBetaHeader)
	case modeCookie:
		req.AddCookie(&http.Cookie{Name: "sessionKey", Value: c.sessionKey})
		req.Header.Set("User-Agent", browserUA)
		req.Header.Set("Accept", "application/json, text/plain, */*")
		req.Header.Set("Accept-Language", "en-US,en;q=0.9")
		req.Header.Set("Origin", "https://claude.ai")
		req.Header.Set("Referer", "https://claude.ai/")
		req.Header.Set("anthropic-client-platform", "web_claude_ai")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn().Err(err).Str("what", what).Msg("request failed")
		return nil, false
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		c.log.Warn().Err(err).Str("what", what).Msg("reading response")
		return nil, false
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.log.Warn().
			Int("status", resp.StatusCode).
			Str("what", what).
			Str("body", truncate(string(body), 300)).
			Msg("non-2xx response")
		return nil, false
	}

	return body, true
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
