package core

import "testing"

func TestClampPct(t *testing.T) {
	cases := []struct {
		in   int
		want int
	}{
		{-5, 0},
		{0, 0},
		{42, 42},
		{100, 100},
		{140, 100},
	}
	for _, tc := range cases {
		if got := ClampPct(tc.in); got != tc.want {
			t.Errorf("ClampPct(%d) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestRemainingPct(t *testing.T) {
	if got := RemainingPct(42); got != 58 {
		t.Errorf("RemainingPct(42) = %d, want 58", got)
	}
	if got := RemainingPct(130); got != 0 {
		t.Errorf("RemainingPct(130) = %d, want 0 (clamped)", got)
	}
	if got := RemainingPct(-3); got != 100 {
		t.Errorf("RemainingPct(-3) = %d, want 100 (clamped)", got)
	}
}

func TestNormalizePlan(t *testing.T) {
	cases := []struct {
		raw      string
		fallback string
		want     string
	}{
		{"Claude Max 20x", "free", "max"},
		{"claude_pro", "free", "pro"},
		{"FREE", "pro", "free"},
		{"team", "free", "team"},
		{"Enterprise", "free", "enterprise"},
		{"", "pro", "pro"},
		{"  ", "free", "free"},
	}
	for _, tc := range cases {
		if got := NormalizePlan(tc.raw, tc.fallback); got != tc.want {
			t.Errorf("NormalizePlan(%q, %q) = %q, want %q", tc.raw, tc.fallback, got, tc.want)
		}
	}
}

func TestResultMessage(t *testing.T) {
	if msg := (Result{Unavailable: ReasonBlocked}).Message(); msg == "" {
		t.Error("blocked result should carry a message")
	}
	if msg := (Result{Unavailable: ReasonNoData}).Message(); msg == "" {
		t.Error("no-data result should carry a message")
	}
	ok := Result{Snapshot: &UsageSnapshot{}}
	if !ok.OK() {
		t.Error("result with snapshot should be OK")
	}
	if ok.Message() != "" {
		t.Error("ok result should have no unavailable message")
	}
}
