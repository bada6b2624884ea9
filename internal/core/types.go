package core

import "time"

const (
	PlanFree = "free"
	PlanPro  = "pro"
	PlanMax  = "max"
)

// UsageSnapshot is one fully-resolved usage report for a poll cycle. It is
// value-semantic: built once per cycle, copied for overlays, never mutated
// through a shared reference.
type UsageSnapshot struct {
	FiveHourPct     int        `json:"five_hour_pct"`
	FiveHourResetAt *time.Time `json:"five_hour_reset_at,omitempty"`
	WeeklyPct       int        `json:"weekly_pct"`
	WeeklyResetAt   *time.Time `json:"weekly_reset_at,omitempty"`

	TodayMessages int    `json:"today_messages"`
	TodayTokens   int64  `json:"today_tokens"`
	Plan          string `json:"plan"`

	// IsLocalOnly is true when no remote call succeeded and everything below
	// was derived from local session logs.
	IsLocalOnly    bool  `json:"is_local_only"`
	WeeklyMessages int   `json:"weekly_messages"`
	WeeklyTokens   int64 `json:"weekly_tokens"`

	TodayInputTokens      int64 `json:"today_input_tokens,omitempty"`
	TodayOutputTokens     int64 `json:"today_output_tokens,omitempty"`
	TodayCacheReadTokens  int64 `json:"today_cache_read_tokens,omitempty"`
	TodayCacheWriteTokens int64 `json:"today_cache_write_tokens,omitempty"`

	TodayCostUSD          float64 `json:"today_cost_usd,omitempty"`
	BurnRateTokensPerHour float64 `json:"burn_rate_tokens_per_hour,omitempty"`
	BurnRateCostPerHour   float64 `json:"burn_rate_cost_per_hour,omitempty"`

	ModelTokensToday     map[string]int64 `json:"model_tokens_today,omitempty"`
	ProjectMessagesToday map[string]int   `json:"project_messages_today,omitempty"`
	TodayFirstMessageAt  *time.Time       `json:"today_first_message_at,omitempty"`
}

// HistoryPoint is one sample of the two rate-limit windows, recorded after
// each remote-sourced cycle.
type HistoryPoint struct {
	Timestamp   time.Time `json:"timestamp"`
	FiveHourPct int       `json:"five_hour_pct"`
	WeeklyPct   int       `json:"weekly_pct"`
}

// NotificationEvent is emitted when a usage window first crosses a configured
// threshold upward.
type NotificationEvent struct {
	Window    string // "five_hour" or "weekly"
	Threshold int
	Pct       int
}
