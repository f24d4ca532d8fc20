// Package retention implements the metrics retention janitor. It periodically
// flushes the in-memory metrics log to disk and purges archive files older
// than the configured window, so long-running gateways never accumulate
// unbounded metric history.
//
// The janitor runs as a background goroutine and respects context
// cancellation for graceful shutdown. Purge failures are logged and retried
// on the next cycle.
package retention

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/modelmux/modelmux/internal/metrics"
)

// DefaultInterval is how often a retention cycle runs.
const DefaultInterval = time.Hour

// DefaultMaxArchiveAge is how long archived metric files are kept.
const DefaultMaxArchiveAge = 30 * 24 * time.Hour

// CycleStats tracks what happened in a single retention cycle.
type CycleStats struct {
	FilesPurged int
	Errors      []error
}

// Janitor periodically flushes the recorder and purges expired archives.
type Janitor struct {
	recorder      *metrics.Recorder
	dir           string
	interval      time.Duration
	maxArchiveAge time.Duration
}

// NewJanitor builds a janitor over the recorder's archive directory.
// Zero interval or age fall back to the defaults.
func NewJanitor(recorder *metrics.Recorder, dir string, interval, maxArchiveAge time.Duration) *Janitor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if maxArchiveAge <= 0 {
		maxArchiveAge = DefaultMaxArchiveAge
	}
	return &Janitor{
		recorder:      recorder,
		dir:           dir,
		interval:      interval,
		maxArchiveAge: maxArchiveAge,
	}
}

// Run blocks until ctx is cancelled, executing one cycle per interval.
func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	log.Info().
		Dur("interval", j.interval).
		Dur("max_archive_age", j.maxArchiveAge).
		Msg("Metrics retention janitor started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Metrics retention janitor stopped")
			return
		case <-ticker.C:
			stats := j.Cycle()
			if stats.FilesPurged > 0 || len(stats.Errors) > 0 {
				log.Info().
					Int("purged", stats.FilesPurged).
					Int("errors", len(stats.Errors)).
					Msg("Retention cycle complete")
			}
		}
	}
}

// Cycle flushes pending metrics and removes archive files whose modification
// time is older than the retention window.
func (j *Janitor) Cycle() CycleStats {
	var stats CycleStats

	j.recorder.Flush()
	cutoff := time.Now().Add(-j.maxArchiveAge)

	modelDirs, err := os.ReadDir(j.dir)
	if err != nil {
		if !os.IsNotExist(err) {
			stats.Errors = append(stats.Errors, err)
		}
		return stats
	}

	for _, md := range modelDirs {
		if !md.IsDir() {
			continue
		}
		dir := filepath.Join(j.dir, md.Name())
		entries, err := os.ReadDir(dir)
		if err != nil {
			stats.Errors = append(stats.Errors, err)
			continue
		}
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
				continue
			}
			info, err := e.Info()
			if err != nil {
				continue
			}
			if info.ModTime().After(cutoff) {
				continue
			}
			path := filepath.Join(dir, e.Name())
			if err := os.Remove(path); err != nil {
				stats.Errors = append(stats.Errors, err)
				continue
			}
			stats.FilesPurged++
		}
	}
	return stats
}
