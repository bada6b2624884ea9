// Package notify turns usage snapshots into threshold-crossing events. It is
// a pure edge detector: it decides WHEN a notification is due, and leaves the
// delivery (desktop popup, log line, status bar) to the caller.
package notify

import (
	"sort"

	"github.com/rs/zerolog"

	"github.com/janekbaraniewski/claudeusage/internal/core"
)

const (
	WindowFiveHour = "five_hour"
	WindowWeekly   = "weekly"
)

type key struct {
	window    string
	threshold int
}

// Notifier tracks which (window, threshold) pairs are armed. A pair fires
// once when utilization reaches the threshold, then stays silent until
// utilization drops back below it.
type Notifier struct {
	thresholds []int
	fiveHour   bool
	weekly     bool
	log        zerolog.Logger

	fired map[key]bool
}

func New(thresholds []int, fiveHour, weekly bool, log zerolog.Logger) *Notifier {
	sorted := append([]int(nil), thresholds...)
	sort.Ints(sorted)
	return &Notifier{
		thresholds: sorted,
		fiveHour:   fiveHour,
		weekly:     weekly,
		log:        log,
		fired:      make(map[key]bool),
	}
}

// Check evaluates one snapshot and returns the events that became due since
// the previous call, in ascending threshold order per window.
func (n *Notifier) Check(snap *core.UsageSnapshot) []core.NotificationEvent {
	if snap == nil {
		return nil
	}

	var events []core.NotificationEvent
	if n.fiveHour {
		events = append(events, n.checkWindow(WindowFiveHour, snap.FiveHourPct)...)
	}
	if n.weekly {
		events = append(events, n.checkWindow(WindowWeekly, snap.WeeklyPct)...)
	}
	return events
}

func (n *Notifier) checkWindow(window string, pct int) []core.NotificationEvent {
	var events []core.NotificationEvent
	for _, th := range n.thresholds {
		k := key{window, th}
		if pct >= th {
			if !n.fired[k] {
				n.fired[k] = true
				n.log.Info().Str("window", window).Int("threshold", th).Int("pct", pct).
					Msg("usage threshold crossed")
				events = append(events, core.NotificationEvent{
					Window:    window,
					Threshold: th,
					Pct:       pct,
				})
			}
		} else {
			// Re-arm once utilization falls back under the threshold, so the
			// next crossing in a fresh window fires again.
			delete(n.fired, k)
		}
	}
	return events
}

// Reset clears all fired state, re-arming every threshold.
func (n *Notifier) Reset() {
	n.fired = make(map[key]bool)
}
