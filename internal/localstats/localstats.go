// Package localstats derives usage entirely from Claude Code's on-disk
// session logs, with no network dependency. The primary source is the
// ~/.claude/projects tree of append-only JSONL conversation files; when that
// holds nothing it falls back to the coarser stats-cache.json daily summary.
// A nil snapshot means "no data", which is distinct from observed zero usage.
package localstats

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/janekbaraniewski/claudeusage/internal/core"
)

const (
	// maxProjects bounds the per-project breakdown to the busiest projects.
	maxProjects = 10

	// minBurnSpan guards the burn-rate division against sparse data: below
	// this observed span the rate is reported as zero.
	minBurnSpan = 3 * time.Minute

	maxLineSize = 10 * 1024 * 1024
)

type jsonlEntry struct {
	Type      string    `json:"type"`
	Timestamp string    `json:"timestamp"`
	Message   *jsonlMsg `json:"message,omitempty"`
}

type jsonlMsg struct {
	Model string      `json:"model"`
	Usage *jsonlUsage `json:"usage,omitempty"`
}

type jsonlUsage struct {
	InputTokens              int64 `json:"input_tokens"`
	OutputTokens             int64 `json:"output_tokens"`
	CacheReadInputTokens     int64 `json:"cache_read_input_tokens"`
	CacheCreationInputTokens int64 `json:"cache_creation_input_tokens"`
}

type statsCache struct {
	DailyActivity []struct {
		Date         string `json:"date"`
		MessageCount int    `json:"messageCount"`
	} `json:"dailyActivity"`
	DailyModelTokens []struct {
		Date          string           `json:"date"`
		TokensByModel map[string]int64 `json:"tokensByModel"`
	} `json:"dailyModelTokens"`
}

// PlanSource supplies the subscription tier label for local-only snapshots,
// typically the credential file's subscriptionType.
type PlanSource func() string

type Aggregator struct {
	claudeDir string
	plan      PlanSource
	log       zerolog.Logger

	now func() time.Time
}

func New(plan PlanSource, log zerolog.Logger) *Aggregator {
	home, _ := os.UserHomeDir()
	return NewAt(filepath.Join(home, ".claude"), plan, log)
}

func NewAt(claudeDir string, plan PlanSource, log zerolog.Logger) *Aggregator {
	return &Aggregator{
		claudeDir: claudeDir,
		plan:      plan,
		log:       log,
		now:       time.Now,
	}
}

// Snapshot scans the session logs and returns a local-only usage snapshot,
// or nil when no usage data exists at all.
func (a *Aggregator) Snapshot() *core.UsageSnapshot {
	snap := a.scanSessionFiles()

	if snap.TodayMessages == 0 && snap.WeeklyMessages == 0 {
		if cached := a.readStatsCache(); cached != nil {
			snap = *cached
		}
	}

	if snap.TodayMessages == 0 && snap.TodayTokens == 0 &&
		snap.WeeklyMessages == 0 && snap.WeeklyTokens == 0 {
		return nil
	}

	snap.Plan = core.NormalizePlan(a.planLabel(), core.PlanPro)

	a.log.Debug().
		Int("today_messages", snap.TodayMessages).
		Int64("today_tokens", snap.TodayTokens).
		Int("weekly_messages", snap.WeeklyMessages).
		Float64("today_cost_usd", snap.TodayCostUSD).
		Str("plan", snap.Plan).
		Msg("local stats resolved")

	return &snap
}

func (a *Aggregator) planLabel() string {
	if a.plan == nil {
		return ""
	}
	return a.plan()
}

// scanState accumulates per-record side effects across all session files in
// one scan. today/weekAgo are UTC date boundaries.
type scanState struct {
	today   time.Time
	weekAgo time.Time

	snap          core.UsageSnapshot
	modelTokens   map[string]int64
	projectCounts map[string]int
	firstMsgAt    *time.Time
	lastMsgAt     *time.Time
}

// scanSessionFiles walks ~/.claude/projects/**/*.jsonl and aggregates every
// assistant record dated within the 7-day window ending today (UTC dates).
func (a *Aggregator) scanSessionFiles() core.UsageSnapshot {
	now := a.now().UTC()
	today := now.Truncate(24 * time.Hour)

	st := &scanState{
		today:         today,
		weekAgo:       today.AddDate(0, 0, -6),
		snap:          core.UsageSnapshot{IsLocalOnly: true},
		modelTokens:   make(map[string]int64),
		projectCounts: make(map[string]int),
	}

	projectsDir := filepath.Join(a.claudeDir, "projects")
	if _, err := os.Stat(projectsDir); err != nil {
		return st.snap
	}

	_ = filepath.Walk(projectsDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() || !strings.HasSuffix(path, ".jsonl") {
			return nil
		}
		// A file untouched for over a week cannot hold records inside the
		// window; skip it before opening.
		if info.ModTime().UTC().Truncate(24 * time.Hour).Before(st.weekAgo) {
			return nil
		}

		project := projectNameFromSlug(filepath.Base(filepath.Dir(path)))
		st.scanFile(path, project)
		return nil
	})

	if st.snap.TodayMessages > 1 && st.firstMsgAt != nil && st.lastMsgAt != nil {
		elapsed := st.lastMsgAt.Sub(*st.firstMsgAt)
		if elapsed > minBurnSpan {
			hours := elapsed.Hours()
			st.snap.BurnRateTokensPerHour = float64(st.snap.TodayTokens) / hours
			st.snap.BurnRateCostPerHour = st.snap.TodayCostUSD / hours
		}
	}

	if len(st.modelTokens) > 0 {
		st.snap.ModelTokensToday = st.modelTokens
	}
	if len(st.projectCounts) > 0 {
		st.snap.ProjectMessagesToday = topProjects(st.projectCounts, maxProjects)
	}
	st.snap.TodayFirstMessageAt = st.firstMsgAt

	return st.snap
}

var (
	filterAssistant = []byte(`"assistant"`)
	filterUsage     = []byte(`"output_tokens"`)
)

func (st *scanState) scanFile(path, project string) {
	f, err := os.Open(path)
	if err != nil {
		return // skip unreadable files
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 256*1024), maxLineSize)

	for scanner.Scan() {
		line := scanner.Bytes()
		// Substring pre-filter before the JSON parse; purely a performance
		// gate, correctness is decided by the parsed fields below.
		if !bytes.Contains(line, filterAssistant) || !bytes.Contains(line, filterUsage) {
			continue
		}

		var entry jsonlEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			continue // skip malformed lines
		}
		if entry.Type != "assistant" || entry.Message == nil || entry.Message.Usage == nil {
			continue
		}

		ts, ok := parseTimestamp(entry.Timestamp)
		if !ok {
			continue
		}
		st.addRecord(ts.UTC(), entry.Message.Model, entry.Message.Usage, project)
	}
}

func (st *scanState) addRecord(ts time.Time, model string, u *jsonlUsage, project string) {
	entryDate := ts.Truncate(24 * time.Hour)
	if entryDate.Before(st.weekAgo) || entryDate.After(st.today) {
		return
	}

	total := u.InputTokens + u.OutputTokens + u.CacheReadInputTokens + u.CacheCreationInputTokens

	st.snap.WeeklyMessages++
	st.snap.WeeklyTokens += total

	if !entryDate.Equal(st.today) {
		return
	}

	st.snap.TodayMessages++
	st.snap.TodayTokens += total
	st.snap.TodayInputTokens += u.InputTokens
	st.snap.TodayOutputTokens += u.OutputTokens
	st.snap.TodayCacheReadTokens += u.CacheReadInputTokens
	st.snap.TodayCacheWriteTokens += u.CacheCreationInputTokens

	normalized := normalizeModelName(model)
	st.snap.TodayCostUSD += estimateCost(normalized,
		u.InputTokens, u.OutputTokens, u.CacheReadInputTokens, u.CacheCreationInputTokens)
	st.modelTokens[normalized] += total
	st.projectCounts[project]++

	if st.firstMsgAt == nil || ts.Before(*st.firstMsgAt) {
		t := ts
		st.firstMsgAt = &t
	}
	if st.lastMsgAt == nil || ts.After(*st.lastMsgAt) {
		t := ts
		st.lastMsgAt = &t
	}
}

func parseTimestamp(raw string) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, false
	}
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return ts, true
	}
	if ts, err := time.Parse("2006-01-02T15:04:05.000Z", raw); err == nil {
		return ts, true
	}
	return time.Time{}, false
}

// topProjects keeps the n busiest projects by message count, ties broken by
// name for stable output.
func topProjects(counts map[string]int, n int) map[string]int {
	type pc struct {
		name  string
		count int
	}
	pairs := lo.MapToSlice(counts, func(name string, count int) pc {
		return pc{name, count}
	})
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].count != pairs[j].count {
			return pairs[i].count > pairs[j].count
		}
		return pairs[i].name < pairs[j].name
	})
	if len(pairs) > n {
		pairs = pairs[:n]
	}
	return lo.SliceToMap(pairs, func(p pc) (string, int) {
		return p.name, p.count
	})
}

// readStatsCache sums the pre-aggregated daily summary over the same
// today/7-day windows. Used only when the session scan found nothing.
func (a *Aggregator) readStatsCache() *core.UsageSnapshot {
	data, err := os.ReadFile(filepath.Join(a.claudeDir, "stats-cache.json"))
	if err != nil {
		return nil
	}

	var cache statsCache
	if err := json.Unmarshal(data, &cache); err != nil {
		a.log.Debug().Err(err).Msg("stats cache unreadable")
		return nil
	}

	now := a.now().UTC()
	today := now.Format("2006-01-02")
	weekAgo := now.AddDate(0, 0, -6).Format("2006-01-02")

	snap := core.UsageSnapshot{IsLocalOnly: true}

	for _, day := range cache.DailyActivity {
		if day.Date == today {
			snap.TodayMessages = day.MessageCount
		}
		if day.Date >= weekAgo && day.Date <= today {
			snap.WeeklyMessages += day.MessageCount
		}
	}

	for _, day := range cache.DailyModelTokens {
		dayTotal := lo.Sum(lo.Values(day.TokensByModel))
		if day.Date == today {
			snap.TodayTokens = dayTotal
		}
		if day.Date >= weekAgo && day.Date <= today {
			snap.WeeklyTokens += dayTotal
		}
	}

	if snap.TodayMessages == 0 && snap.WeeklyMessages == 0 {
		return nil
	}
	return &snap
}
