package core

import "strings"

// ClampPct bounds a percentage to [0,100] before it reaches any display or
// threshold arithmetic.
func ClampPct(pct int) int {
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}

// RemainingPct is the "remaining" rendering of a used percentage.
func RemainingPct(used int) int {
	return 100 - ClampPct(used)
}

// NormalizePlan maps a raw plan label from the API or credential file onto the
// well-known tiers by substring match. Unrecognized labels pass through
// lowercased; an empty label yields the fallback.
func NormalizePlan(raw, fallback string) string {
	lower := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case lower == "":
		return fallback
	case strings.Contains(lower, PlanMax):
		return PlanMax
	case strings.Contains(lower, PlanPro):
		return PlanPro
	case strings.Contains(lower, PlanFree):
		return PlanFree
	default:
		return lower
	}
}
