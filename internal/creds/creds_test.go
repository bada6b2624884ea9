package creds

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCredFile(t *testing.T, dir string, oauth map[string]any) string {
	t.Helper()
	path := filepath.Join(dir, ".credentials.json")
	data, err := json.MarshalIndent(map[string]any{"claudeAiOauth": oauth}, "", "  ")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestRead_MissingFile(t *testing.T) {
	s := NewStoreAt(filepath.Join(t.TempDir(), "nope.json"), zerolog.Nop())
	assert.Nil(t, s.Read())
}

func TestRead_MalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".credentials.json")
	require.NoError(t, os.WriteFile(path, []byte("{broken"), 0o600))

	s := NewStoreAt(path, zerolog.Nop())
	assert.Nil(t, s.Read())
}

func TestRead_ValidFile(t *testing.T) {
	path := writeCredFile(t, t.TempDir(), map[string]any{
		"accessToken":      "tok-abc",
		"refreshToken":     "ref-xyz",
		"expiresAt":        int64(1800000000000),
		"subscriptionType": "max",
		"rateLimitTier":    "default_claude_max_20x",
	})

	c := NewStoreAt(path, zerolog.Nop()).Read()
	require.NotNil(t, c)
	assert.Equal(t, "tok-abc", c.AccessToken)
	assert.Equal(t, "ref-xyz", c.RefreshToken)
	assert.Equal(t, "max", c.SubscriptionType)
	assert.Equal(t, "default_claude_max_20x", c.RateLimitTier)
}

func TestRead_EmptyTokenYieldsNil(t *testing.T) {
	path := writeCredFile(t, t.TempDir(), map[string]any{
		"accessToken": "",
		"expiresAt":   int64(1800000000000),
	})
	assert.Nil(t, NewStoreAt(path, zerolog.Nop()).Read())
}

func TestRead_EnvTokenWins(t *testing.T) {
	t.Setenv(EnvToken, "raw-env-token")

	s := NewStoreAt(filepath.Join(t.TempDir(), "nope.json"), zerolog.Nop())
	c := s.Read()
	require.NotNil(t, c)
	assert.Equal(t, "raw-env-token", c.AccessToken)
	assert.False(t, s.IsExpired(c), "env tokens never expire")
}

func TestIsExpired(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	fresh := &Credential{ExpiresAt: now.Add(time.Hour).UnixMilli()}
	assert.False(t, isExpiredAt(fresh, now))

	// Inside the 5-minute slack counts as expired.
	nearly := &Credential{ExpiresAt: now.Add(4 * time.Minute).UnixMilli()}
	assert.True(t, isExpiredAt(nearly, now))

	past := &Credential{ExpiresAt: now.Add(-time.Hour).UnixMilli()}
	assert.True(t, isExpiredAt(past, now))

	assert.True(t, isExpiredAt(nil, now))
}

func TestRefresh_SuccessRewritesFileInPlace(t *testing.T) {
	path := writeCredFile(t, t.TempDir(), map[string]any{
		"accessToken":      "old-token",
		"refreshToken":     "ref-xyz",
		"expiresAt":        int64(1000),
		"subscriptionType": "pro",
		"rateLimitTier":    "default",
		"scopes":           []string{"user:inference", "user:profile"},
	})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "ref-xyz", body["refresh_token"])
		json.NewEncoder(w).Encode(map[string]any{
			"accessToken": "new-token",
			"expiresAt":   int64(2000),
		})
	}))
	defer srv.Close()

	s := NewStoreAt(path, zerolog.Nop())
	s.SetRefreshURL(srv.URL)

	old := s.Read()
	require.NotNil(t, old)

	got := s.Refresh(context.Background(), old)
	require.NotNil(t, got)
	assert.Equal(t, "new-token", got.AccessToken)
	assert.Equal(t, int64(2000), got.ExpiresAt)
	assert.Equal(t, "ref-xyz", got.RefreshToken, "refresh token carried over")
	assert.Equal(t, "pro", got.SubscriptionType, "tier labels carried over")

	// File rewritten in place, sibling fields preserved.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var f struct {
		ClaudeAiOauth map[string]any `json:"claudeAiOauth"`
	}
	require.NoError(t, json.Unmarshal(data, &f))
	assert.Equal(t, "new-token", f.ClaudeAiOauth["accessToken"])
	assert.Equal(t, float64(2000), f.ClaudeAiOauth["expiresAt"])
	assert.Equal(t, "ref-xyz", f.ClaudeAiOauth["refreshToken"])
	assert.NotNil(t, f.ClaudeAiOauth["scopes"], "unknown sibling fields must survive the rewrite")
}

func TestRefresh_FailuresLeaveFileUntouched(t *testing.T) {
	cases := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"non-2xx", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "challenge", http.StatusForbidden)
		}},
		{"missing fields", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"accessToken": ""}`))
		}},
		{"malformed body", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("not json"))
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeCredFile(t, t.TempDir(), map[string]any{
				"accessToken":  "old-token",
				"refreshToken": "ref-xyz",
				"expiresAt":    int64(1000),
			})
			before, err := os.ReadFile(path)
			require.NoError(t, err)

			srv := httptest.NewServer(tc.handler)
			defer srv.Close()

			s := NewStoreAt(path, zerolog.Nop())
			s.SetRefreshURL(srv.URL)

			assert.Nil(t, s.Refresh(context.Background(), s.Read()))

			after, err := os.ReadFile(path)
			require.NoError(t, err)
			assert.Equal(t, before, after)
		})
	}
}

func TestRefresh_NoRefreshToken(t *testing.T) {
	s := NewStoreAt(filepath.Join(t.TempDir(), "x.json"), zerolog.Nop())
	assert.Nil(t, s.Refresh(context.Background(), &Credential{AccessToken: "tok"}))
	assert.Nil(t, s.Refresh(context.Background(), nil))
}
