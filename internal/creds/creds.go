// Package creds reads and refreshes the Claude Code OAuth credential that
// lives in ~/.claude/.credentials.json. The file is shared with the Claude
// Code CLI, which may rewrite it at any time, so it is re-read fresh at the
// start of every poll cycle and only ever rewritten whole.
package creds

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

const (
	defaultRefreshURL = "https://claude.ai/api/auth/token/refresh"
	refreshTimeout    = 15 * time.Second

	// expirySlack refreshes tokens slightly before they lapse so an in-flight
	// usage call never races the expiry boundary.
	expirySlack = 5 * time.Minute

	// EnvToken overrides the credential file with a raw access token. Tokens
	// from this source carry no expiry and are never refreshed.
	EnvToken = "CLAUDE_CODE_OAUTH_TOKEN"
)

// Credential is the OAuth credential as resolved for one cycle.
type Credential struct {
	AccessToken      string
	RefreshToken     string
	ExpiresAt        int64 // epoch milliseconds; 0 = unknown/never
	SubscriptionType string
	RateLimitTier    string

	fromEnv bool
}

type credentialsFile struct {
	ClaudeAiOauth *oauthSection `json:"claudeAiOauth"`
}

type oauthSection struct {
	AccessToken      string `json:"accessToken"`
	RefreshToken     string `json:"refreshToken"`
	ExpiresAt        int64  `json:"expiresAt"`
	SubscriptionType string `json:"subscriptionType"`
	RateLimitTier    string `json:"rateLimitTier"`
}

type refreshResponse struct {
	AccessToken string `json:"accessToken"`
	ExpiresAt   int64  `json:"expiresAt"`
}

type Store struct {
	path       string
	refreshURL string
	http       *http.Client
	log        zerolog.Logger
}

func NewStore(log zerolog.Logger) *Store {
	home, _ := os.UserHomeDir()
	return NewStoreAt(filepath.Join(home, ".claude", ".credentials.json"), log)
}

func NewStoreAt(path string, log zerolog.Logger) *Store {
	return &Store{
		path:       path,
		refreshURL: defaultRefreshURL,
		http:       &http.Client{Timeout: refreshTimeout},
		log:        log,
	}
}

// SetRefreshURL points token refresh at a different endpoint (tests).
func (s *Store) SetRefreshURL(url string) { s.refreshURL = url }

func (s *Store) Path() string { return s.path }

// Read resolves the credential for this cycle: the env token if set, else the
// credential file. Absent or unparsable sources yield nil, never an error;
// a missing credential just means the bearer tier is skipped.
func (s *Store) Read() *Credential {
	if token := os.Getenv(EnvToken); token != "" {
		return &Credential{AccessToken: token, fromEnv: true}
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil
	}

	var f credentialsFile
	if err := json.Unmarshal(data, &f); err != nil || f.ClaudeAiOauth == nil {
		return nil
	}

	oauth := f.ClaudeAiOauth
	if oauth.AccessToken == "" {
		return nil
	}

	sub := oauth.SubscriptionType
	if sub == "" {
		sub = "free"
	}

	return &Credential{
		AccessToken:      oauth.AccessToken,
		RefreshToken:     oauth.RefreshToken,
		ExpiresAt:        oauth.ExpiresAt,
		SubscriptionType: sub,
		RateLimitTier:    oauth.RateLimitTier,
	}
}

// IsExpired reports whether the token is within the refresh slack of its
// expiry. Env tokens never expire from our point of view.
func (s *Store) IsExpired(c *Credential) bool {
	return isExpiredAt(c, time.Now())
}

func isExpiredAt(c *Credential, now time.Time) bool {
	if c == nil {
		return true
	}
	if c.fromEnv {
		return false
	}
	expiry := time.UnixMilli(c.ExpiresAt)
	return !now.Before(expiry.Add(-expirySlack))
}

// Refresh exchanges the refresh token for a new access token and persists it
// back into the credential file in place, preserving every other field. On
// any failure it returns nil and leaves the file untouched; it never retries.
func (s *Store) Refresh(ctx context.Context, expired *Credential) *Credential {
	if expired == nil || expired.RefreshToken == "" {
		s.log.Debug().Msg("token refresh: no refresh token available")
		return nil
	}

	payload, _ := json.Marshal(map[string]string{"refresh_token": expired.RefreshToken})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.refreshURL, bytes.NewReader(payload))
	if err != nil {
		return nil
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Origin", "https://claude.ai")
	req.Header.Set("Referer", "https://claude.ai/")

	resp, err := s.http.Do(req)
	if err != nil {
		s.log.Warn().Err(err).Msg("token refresh: request failed")
		return nil
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		s.log.Warn().
			Int("status", resp.StatusCode).
			Str("body", truncate(string(body), 200)).
			Msg("token refresh: non-2xx response")
		return nil
	}

	var refreshed refreshResponse
	if err := json.Unmarshal(body, &refreshed); err != nil || refreshed.AccessToken == "" || refreshed.ExpiresAt == 0 {
		s.log.Warn().Msg("token refresh: response missing accessToken or expiresAt")
		return nil
	}

	if err := s.rewriteFile(refreshed.AccessToken, refreshed.ExpiresAt); err != nil {
		s.log.Warn().Err(err).Msg("token refresh: could not persist new token")
		// The new token is still valid for this cycle even if the write failed.
	}

	s.log.Info().Msg("token refresh: success, credentials updated on disk")

	return &Credential{
		AccessToken:      refreshed.AccessToken,
		RefreshToken:     expired.RefreshToken,
		ExpiresAt:        refreshed.ExpiresAt,
		SubscriptionType: expired.SubscriptionType,
		RateLimitTier:    expired.RateLimitTier,
	}
}

// rewriteFile updates accessToken/expiresAt inside claudeAiOauth while
// keeping all sibling fields (scopes and anything future versions add)
// exactly as they were. Whole-file rewrite, no partial updates.
func (s *Store) rewriteFile(accessToken string, expiresAt int64) error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("reading credentials file: %w", err)
	}

	var root map[string]json.RawMessage
	if err := json.Unmarshal(data, &root); err != nil {
		return fmt.Errorf("parsing credentials file: %w", err)
	}

	var oauth map[string]any
	if raw, ok := root["claudeAiOauth"]; ok {
		if err := json.Unmarshal(raw, &oauth); err != nil {
			return fmt.Errorf("parsing claudeAiOauth section: %w", err)
		}
	} else {
		return fmt.Errorf("credentials file has no claudeAiOauth section")
	}

	oauth["accessToken"] = accessToken
	oauth["expiresAt"] = expiresAt

	updated, err := json.Marshal(oauth)
	if err != nil {
		return fmt.Errorf("marshaling claudeAiOauth section: %w", err)
	}
	root["claudeAiOauth"] = updated

	out, err := json.MarshalIndent(root, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling credentials file: %w", err)
	}

	if err := os.WriteFile(s.path, out, 0o600); err != nil {
		return fmt.Errorf("writing credentials file: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
