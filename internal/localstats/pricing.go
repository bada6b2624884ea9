package localstats

import (
	"strconv"
	"strings"
)

// pricing is USD per million tokens for each of the four token kinds.
// Approximate published API rates, baked in for offline cost estimates;
// subscription usage is not actually billed this way.
type pricing struct {
	InputPerMillion      float64
	OutputPerMillion     float64
	CacheReadPerMillion  float64
	CacheWritePerMillion float64
}

var modelPricing = map[string]pricing{
	"claude-opus-4":     {15.00, 75.00, 1.50, 18.75},
	"claude-opus-4-5":   {15.00, 75.00, 1.50, 18.75},
	"claude-sonnet-3-5": {3.00, 15.00, 0.30, 3.75},
	"claude-sonnet-4":   {3.00, 15.00, 0.30, 3.75},
	"claude-sonnet-4-5": {3.00, 15.00, 0.30, 3.75},
	"claude-sonnet-4-6": {3.00, 15.00, 0.30, 3.75},
	"claude-haiku-3":    {0.25, 1.25, 0.03, 0.30},
	"claude-haiku-3-5":  {0.80, 4.00, 0.08, 1.00},
	"claude-haiku-4-5":  {0.80, 4.00, 0.08, 1.00},
}

// defaultPricing is the mid-tier (sonnet) rate used for unknown models.
var defaultPricing = pricing{3.00, 15.00, 0.30, 3.75}

func findPricing(normalizedModel string) pricing {
	if p, ok := modelPricing[normalizedModel]; ok {
		return p
	}
	return defaultPricing
}

func estimateCost(normalizedModel string, input, output, cacheRead, cacheWrite int64) float64 {
	p := findPricing(normalizedModel)
	return float64(input)*p.InputPerMillion/1_000_000 +
		float64(output)*p.OutputPerMillion/1_000_000 +
		float64(cacheRead)*p.CacheReadPerMillion/1_000_000 +
		float64(cacheWrite)*p.CacheWritePerMillion/1_000_000
}

// normalizeModelName strips a trailing 8-digit date segment from a
// dash-delimited model id and lowercases it:
// claude-sonnet-4-5-20260101 → claude-sonnet-4-5.
func normalizeModelName(raw string) string {
	parts := strings.Split(raw, "-")
	if last := parts[len(parts)-1]; len(last) == 8 {
		if _, err := strconv.ParseInt(last, 10, 64); err == nil {
			raw = strings.Join(parts[:len(parts)-1], "-")
		}
	}
	return strings.ToLower(raw)
}

// projectNameFromSlug converts a path-encoded project slug
// (C--Users--foo--my-project) to its display name (my-project). Claude Code
// encodes path separators as "--", so the last segment is the project folder.
func projectNameFromSlug(slug string) string {
	if slug == "" {
		return "Unknown"
	}
	parts := strings.Split(slug, "--")
	if last := parts[len(parts)-1]; last != "" {
		return last
	}
	return slug
}
