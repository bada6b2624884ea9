// Package cli renders cycle results and history for the terminal. Pure
// formatting; all data comes in as core values.
package cli

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/janekbaraniewski/claudeusage/internal/core"
)

const gaugeWidth = 20

// RenderStatus formats one cycle result as a multi-line status block.
// showRemaining flips the gauges from "used" to "remaining".
func RenderStatus(res core.Result, showRemaining bool) string {
	if !res.OK() {
		return errorStyle.Render(res.Message())
	}
	snap := res.Snapshot

	var b strings.Builder

	b.WriteString(planBadgeStyle.Render("Claude "+strings.ToUpper(snap.Plan)) + "\n")
	if snap.IsLocalOnly {
		b.WriteString(localOnlyStyle.Render("local estimates only (API unreachable)") + "\n")
	}
	b.WriteString("\n")

	b.WriteString(renderWindow("5-hour ", snap.FiveHourPct, snap.FiveHourResetAt, showRemaining))
	b.WriteString(renderWindow("Weekly ", snap.WeeklyPct, snap.WeeklyResetAt, showRemaining))

	b.WriteString("\n")
	b.WriteString(labelStyle.Render("Today  ") +
		textStyle.Render(fmt.Sprintf("%d messages, %s tokens",
			snap.TodayMessages, formatTokens(snap.TodayTokens))) + "\n")
	if snap.TodayCostUSD > 0 {
		b.WriteString(labelStyle.Render("Cost   ") +
			textStyle.Render(fmt.Sprintf("$%.2f est.", snap.TodayCostUSD)) + "\n")
	}
	if snap.BurnRateTokensPerHour > 0 {
		b.WriteString(labelStyle.Render("Burn   ") +
			textStyle.Render(fmt.Sprintf("%s tok/h ($%.2f/h)",
				formatTokens(int64(snap.BurnRateTokensPerHour)), snap.BurnRateCostPerHour)) + "\n")
	}

	if len(snap.ModelTokensToday) > 0 {
		b.WriteString("\n" + labelStyle.Render("Models") + "\n")
		for _, line := range sortedBreakdown(snap.ModelTokensToday) {
			b.WriteString("  " + line + "\n")
		}
	}

	return b.String()
}

func renderWindow(label string, pct int, resetAt *time.Time, showRemaining bool) string {
	shown := pct
	suffix := "used"
	if showRemaining {
		shown = core.RemainingPct(pct)
		suffix = "left"
	}

	line := labelStyle.Render(label) + renderGauge(pct) +
		lipgloss.NewStyle().Bold(true).Foreground(pctColor(pct)).
			Render(fmt.Sprintf(" %3d%% %s", shown, suffix))
	if resetAt != nil {
		line += dimStyle.Render("  resets " + resetAt.Local().Format("Mon 15:04"))
	}
	return line + "\n"
}

// renderGauge draws a fixed-width usage bar colored by utilization.
func renderGauge(pct int) string {
	pct = core.ClampPct(pct)
	filled := pct * gaugeWidth / 100

	fill := lipgloss.NewStyle().Foreground(pctColor(pct))
	track := lipgloss.NewStyle().Foreground(colorSurface)
	return fill.Render(strings.Repeat("━", filled)) +
		track.Render(strings.Repeat("━", gaugeWidth-filled))
}

func sortedBreakdown(tokens map[string]int64) []string {
	type entry struct {
		model  string
		tokens int64
	}
	entries := make([]entry, 0, len(tokens))
	for m, tok := range tokens {
		entries = append(entries, entry{m, tok})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].tokens != entries[j].tokens {
			return entries[i].tokens > entries[j].tokens
		}
		return entries[i].model < entries[j].model
	})

	lines := make([]string, len(entries))
	for i, e := range entries {
		lines[i] = subtextStyle.Render(fmt.Sprintf("%-22s %8s", e.model, formatTokens(e.tokens)))
	}
	return lines
}

var sparkRunes = []rune("▁▂▃▄▅▆▇█")

// RenderHistory draws the retained samples as two one-line sparklines.
func RenderHistory(points []core.HistoryPoint) string {
	if len(points) == 0 {
		return dimStyle.Render("no history yet")
	}

	var b strings.Builder
	b.WriteString(labelStyle.Render("5-hour ") + sparkline(points, func(p core.HistoryPoint) int {
		return p.FiveHourPct
	}) + "\n")
	b.WriteString(labelStyle.Render("Weekly ") + sparkline(points, func(p core.HistoryPoint) int {
		return p.WeeklyPct
	}) + "\n")

	first := points[0]
	last := points[len(points)-1]
	b.WriteString(dimStyle.Render(fmt.Sprintf("%s – %s, %d samples",
		first.Timestamp.Local().Format("15:04"),
		last.Timestamp.Local().Format("15:04"),
		len(points))))
	return b.String()
}

func sparkline(points []core.HistoryPoint, pct func(core.HistoryPoint) int) string {
	var b strings.Builder
	for _, p := range points {
		v := core.ClampPct(pct(p))
		idx := v * (len(sparkRunes) - 1) / 100
		b.WriteString(lipgloss.NewStyle().Foreground(pctColor(v)).Render(string(sparkRunes[idx])))
	}
	return b.String()
}

func formatTokens(n int64) string {
	switch {
	case n >= 1_000_000:
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	case n >= 1_000:
		return fmt.Sprintf("%.1fk", float64(n)/1_000)
	default:
		return fmt.Sprintf("%d", n)
	}
}
