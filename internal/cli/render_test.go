package cli

import (
	"strings"
	"testing"
	"time"

	"github.com/janekbaraniewski/claudeusage/internal/core"
)

func TestFormatTokens(t *testing.T) {
	cases := []struct {
		n    int64
		want string
	}{
		{0, "0"},
		{999, "999"},
		{1500, "1.5k"},
		{2_400_000, "2.4M"},
	}
	for _, tc := range cases {
		if got := formatTokens(tc.n); got != tc.want {
			t.Errorf("formatTokens(%d) = %q, want %q", tc.n, got, tc.want)
		}
	}
}

func TestRenderStatus_Unavailable(t *testing.T) {
	res := core.Unavailable(core.ReasonBlocked, time.Now())
	out := RenderStatus(res, false)
	if !strings.Contains(out, "API blocked") {
		t.Errorf("blocked result should surface its message, got %q", out)
	}
}

func TestRenderStatus_UsedVsRemaining(t *testing.T) {
	snap := &core.UsageSnapshot{FiveHourPct: 70, WeeklyPct: 30, Plan: "pro", TodayMessages: 5, TodayTokens: 1000}
	res := core.Ok(snap, time.Now())

	used := RenderStatus(res, false)
	if !strings.Contains(used, "70% used") {
		t.Errorf("used mode output missing percentage: %q", used)
	}

	remaining := RenderStatus(res, true)
	if !strings.Contains(remaining, "30% left") {
		t.Errorf("remaining mode output missing inverted percentage: %q", remaining)
	}
}

func TestRenderStatus_LocalOnlyBanner(t *testing.T) {
	snap := &core.UsageSnapshot{Plan: "pro", IsLocalOnly: true, TodayMessages: 1}
	out := RenderStatus(core.Ok(snap, time.Now()), false)
	if !strings.Contains(out, "local estimates only") {
		t.Error("local-only snapshot should carry the banner")
	}
}

func TestRenderHistory(t *testing.T) {
	if out := RenderHistory(nil); !strings.Contains(out, "no history") {
		t.Errorf("empty history output = %q", out)
	}

	points := []core.HistoryPoint{
		{Timestamp: time.Now(), FiveHourPct: 0, WeeklyPct: 100},
		{Timestamp: time.Now(), FiveHourPct: 100, WeeklyPct: 0},
	}
	out := RenderHistory(points)
	if !strings.Contains(out, "2 samples") {
		t.Errorf("history output missing sample count: %q", out)
	}
	if !strings.Contains(out, "▁") || !strings.Contains(out, "█") {
		t.Errorf("sparkline should span the rune range for 0 and 100: %q", out)
	}
}
