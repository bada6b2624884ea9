// Package history persists a short rolling window of utilization samples so
// sparkline views survive restarts. The file is a plain JSON array, rewritten
// whole on every append; at 24 points the cost is negligible.
package history

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/janekbaraniewski/claudeusage/internal/core"
)

// maxPoints bounds the retained window. At the default 60s poll interval
// this covers the last 24 minutes.
const maxPoints = 24

type Log struct {
	path string
	log  zerolog.Logger

	mu     sync.Mutex
	points []core.HistoryPoint
	loaded bool
}

func New(path string, log zerolog.Logger) *Log {
	return &Log{path: path, log: log}
}

// Append records one sample and persists the trimmed window. Persistence
// failures are logged and swallowed; history is best-effort.
func (l *Log) Append(ts time.Time, fiveHourPct, weeklyPct int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.loadLocked()
	l.points = append(l.points, core.HistoryPoint{
		Timestamp:   ts,
		FiveHourPct: fiveHourPct,
		WeeklyPct:   weeklyPct,
	})
	if len(l.points) > maxPoints {
		l.points = l.points[len(l.points)-maxPoints:]
	}

	if err := l.saveLocked(); err != nil {
		l.log.Warn().Err(err).Str("path", l.path).Msg("failed to persist history")
	}
}

// Points returns the retained samples, oldest first.
func (l *Log) Points() []core.HistoryPoint {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.loadLocked()
	out := make([]core.HistoryPoint, len(l.points))
	copy(out, l.points)
	return out
}

func (l *Log) loadLocked() {
	if l.loaded {
		return
	}
	l.loaded = true

	data, err := os.ReadFile(l.path)
	if err != nil {
		return // first run
	}
	if err := json.Unmarshal(data, &l.points); err != nil {
		// A corrupt file starts the window over rather than wedging polling.
		l.log.Warn().Err(err).Str("path", l.path).Msg("history file corrupt, starting fresh")
		l.points = nil
	}
	if len(l.points) > maxPoints {
		l.points = l.points[len(l.points)-maxPoints:]
	}
}

func (l *Log) saveLocked() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(l.points, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(l.path, append(data, '\n'), 0o644)
}
