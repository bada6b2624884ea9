package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchBearerUsage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/oauth/usage", r.URL.Path)
		assert.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))
		assert.Equal(t, oauthBetaHeader, r.Header.Get("anthropic-beta"))
		w.Write([]byte(`{
			"five_hour": {"utilization": 42.6, "resets_at": "2026-03-01T17:00:00Z"},
			"seven_day": {"utilization": "81%", "resets_at": "2026-03-04T00:00:00Z"}
		}`))
	}))
	defer srv.Close()

	c := NewBearerClient("tok-123", zerolog.Nop())
	c.SetBaseURLs(srv.URL, srv.URL)

	snap := c.FetchBearerUsage(context.Background(), "max")
	require.NotNil(t, snap)
	assert.Equal(t, 43, snap.FiveHourPct)
	assert.Equal(t, 81, snap.WeeklyPct)
	assert.Equal(t, "max", snap.Plan)
	require.NotNil(t, snap.FiveHourResetAt)
	assert.Equal(t, 17, snap.FiveHourResetAt.UTC().Hour())
}

func TestFetchBearerUsage_PlanHintDefault(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"five_hour": {"utilization": 10}, "seven_day": {"utilization": 5}}`))
	}))
	defer srv.Close()

	c := NewBearerClient("tok", zerolog.Nop())
	c.SetBaseURLs(srv.URL, srv.URL)

	snap := c.FetchBearerUsage(context.Background(), "")
	require.NotNil(t, snap)
	assert.Equal(t, "pro", snap.Plan, "bearer mode defaults to pro when no hint")
	assert.Nil(t, snap.FiveHourResetAt, "absent resets_at stays nil")
}

func TestFetchBearerUsage_Failures(t *testing.T) {
	cases := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"non-2xx", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "blocked", http.StatusForbidden)
		}},
		{"malformed body", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("<html>challenge</html>"))
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(tc.handler)
			defer srv.Close()

			c := NewBearerClient("tok", zerolog.Nop())
			c.SetBaseURLs(srv.URL, srv.URL)
			assert.Nil(t, c.FetchBearerUsage(context.Background(), "pro"))
		})
	}
}

func TestGetOrgID_MembershipFirst(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/session", r.URL.Path)
		cookie, err := r.Cookie("sessionKey")
		require.NoError(t, err)
		assert.Equal(t, "sk-ant-sid01-abc", cookie.Value)
		w.Write([]byte(`{
			"account": {
				"uuid": "personal-uuid",
				"memberships": [{"organization": {"uuid": "org-uuid"}}]
			}
		}`))
	}))
	defer srv.Close()

	c := NewCookieClient("sk-ant-sid01-abc", zerolog.Nop())
	c.SetBaseURLs(srv.URL, srv.URL)

	assert.Equal(t, "org-uuid", c.GetOrgID(context.Background()))
}

func TestGetOrgID_PersonalFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"account": {"uuid": "personal-uuid", "memberships": []}}`))
	}))
	defer srv.Close()

	c := NewCookieClient("sk", zerolog.Nop())
	c.SetBaseURLs(srv.URL, srv.URL)

	assert.Equal(t, "personal-uuid", c.GetOrgID(context.Background()))
}

func TestGetOrgID_Failure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewCookieClient("sk", zerolog.Nop())
	c.SetBaseURLs(srv.URL, srv.URL)

	assert.Equal(t, "", c.GetOrgID(context.Background()))
}

func TestFetchOrgUsage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/organizations/org-uuid/usage", r.URL.Path)
		assert.Equal(t, "web_claude_ai", r.Header.Get("anthropic-client-platform"))
		w.Write([]byte(`{
			"five_hour": {"utilization": 130, "resets_at": "2026-03-01T17:00:00Z"},
			"seven_day": {"utilization": 55},
			"plan": "Claude Max"
		}`))
	}))
	defer srv.Close()

	c := NewCookieClient("sk", zerolog.Nop())
	c.SetBaseURLs(srv.URL, srv.URL)

	snap := c.FetchOrgUsage(context.Background(), "org-uuid")
	require.NotNil(t, snap)
	assert.Equal(t, 100, snap.FiveHourPct, "percentages clamp to [0,100]")
	assert.Equal(t, 55, snap.WeeklyPct)
	assert.Equal(t, "max", snap.Plan)
}

func TestFetchOrgUsage_PlanAbsentPassesThroughServerDefault(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"five_hour": {"utilization": 1}, "seven_day": {"utilization": 2}}`))
	}))
	defer srv.Close()

	c := NewCookieClient("sk", zerolog.Nop())
	c.SetBaseURLs(srv.URL, srv.URL)

	snap := c.FetchOrgUsage(context.Background(), "org-uuid")
	require.NotNil(t, snap)
	assert.Equal(t, "free", snap.Plan)
}

func TestModeExclusivity(t *testing.T) {
	bearer := NewBearerClient("tok", zerolog.Nop())
	assert.Equal(t, "", bearer.GetOrgID(context.Background()), "bearer client never does org lookup")
	assert.Nil(t, bearer.FetchOrgUsage(context.Background(), "org"))

	cookie := NewCookieClient("sk", zerolog.Nop())
	assert.Nil(t, cookie.FetchBearerUsage(context.Background(), "pro"))
	assert.Nil(t, cookie.FetchOrgUsage(context.Background(), ""), "empty org id is a failure")
}
