// Package metrics keeps a bounded in-memory log of per-model call records,
// archiving overflow to disk and serving time-windowed stats queries.
package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"github.com/modelmux/modelmux/pkg/models"
)

const (
	archiveTimeLayout = "20060102150405"
	archiveWorkers    = 4
)

// Recorder is the process-wide metrics log manager. All in-memory state is
// serialized through one mutex; disk I/O runs on a bounded worker pool so it
// never blocks the request path.
type Recorder struct {
	dir             string
	maxLogLength    int
	maxArchiveFiles int

	mu   sync.Mutex
	logs map[string][]models.ModelMetrics

	sem *semaphore.Weighted
	wg  sync.WaitGroup
}

func NewRecorder(dir string, maxLogLength, maxArchiveFiles int) *Recorder {
	return &Recorder{
		dir:             dir,
		maxLogLength:    maxLogLength,
		maxArchiveFiles: maxArchiveFiles,
		logs:            make(map[string][]models.ModelMetrics),
		sem:             semaphore.NewWeighted(archiveWorkers),
	}
}

// AddLog appends one record. If the total in-memory count now exceeds the
// configured bound, every non-empty key is snapshotted and archived.
func (r *Recorder) AddLog(key string, m models.ModelMetrics) {
	r.mu.Lock()
	r.logs[key] = append(r.logs[key], m)
	total := 0
	for _, recs := range r.logs {
		total += len(recs)
	}
	var snapshot map[string][]models.ModelMetrics
	if total > r.maxLogLength {
		snapshot = r.logs
		r.logs = make(map[string][]models.ModelMetrics)
	}
	r.mu.Unlock()

	if snapshot == nil {
		return
	}
	for k, recs := range snapshot {
		r.archiveAsync(k, recs)
	}
}

// Flush archives all in-memory records and waits for pending disk work.
func (r *Recorder) Flush() {
	r.mu.Lock()
	snapshot := r.logs
	r.logs = make(map[string][]models.ModelMetrics)
	r.mu.Unlock()

	for k, recs := range snapshot {
		r.archiveAsync(k, recs)
	}
	r.wg.Wait()
}

func (r *Recorder) archiveAsync(key string, recs []models.ModelMetrics) {
	if len(recs) == 0 {
		return
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.sem.Acquire(context.Background(), 1); err != nil {
			return
		}
		defer r.sem.Release(1)
		if err := r.archive(key, recs); err != nil {
			log.Error().Err(err).Str("model", key).Msg("Failed to archive metrics")
		}
	}()
}

// archive writes one sorted batch to disk and prunes old files for the key.
func (r *Recorder) archive(key string, recs []models.ModelMetrics) error {
	sort.Slice(recs, func(i, j int) bool {
		return recs[i].CallStartTime.Before(recs[j].CallStartTime)
	})

	dir := filepath.Join(r.dir, sanitizeKey(key))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create archive dir: %w", err)
	}
	name := fmt.Sprintf("%s-%s.json",
		recs[0].CallStartTime.Format(archiveTimeLayout),
		recs[len(recs)-1].CallStartTime.Format(archiveTimeLayout))

	data, err := json.Marshal(recs)
	if err != nil {
		return fmt.Errorf("encode archive: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		return fmt.Errorf("write archive: %w", err)
	}
	return r.prune(dir)
}

// prune keeps at most maxArchiveFiles, newest by mtime.
func (r *Recorder) prune(dir string) error {
	files, err := archiveFilesByMtime(dir)
	if err != nil {
		return err
	}
	for _, f := range files[min(len(files), r.maxArchiveFiles):] {
		if err := os.Remove(f.path); err != nil {
			log.Warn().Err(err).Str("file", f.path).Msg("Failed to prune metrics archive")
		}
	}
	return nil
}

// Stats are the aggregates computed over one GetLogs result set.
type Stats struct {
	TotalRequests          int         `json:"total_requests"`
	PercentSuccess         float64     `json:"percent_success"`
	AverageInternalRetries float64     `json:"average_internal_retries"`
	StatusCounter          map[int]int `json:"status_counter"`
	CallDuration           Aggregate   `json:"call_duration"`
	TokensPerSecond        Aggregate   `json:"tokens_per_second"`
}

// Aggregate summarizes one numeric series.
type Aggregate struct {
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	Max    float64 `json:"max"`
	Min    float64 `json:"min"`
	StdDev float64 `json:"std_dev"`
}

// GetLogs returns up to limit records for key within the inclusive window,
// newest first, backfilling from disk archives when memory cannot satisfy
// the limit, plus aggregates over the returned slice.
func (r *Recorder) GetLogs(key string, start, end *time.Time, limit int) (Stats, []models.ModelMetrics, error) {
	r.mu.Lock()
	inMem := make([]models.ModelMetrics, 0, len(r.logs[key]))
	for _, m := range r.logs[key] {
		if inWindow(m, start, end) {
			inMem = append(inMem, m)
		}
	}
	r.mu.Unlock()

	sortDesc(inMem)
	records := inMem

	if len(records) < limit {
		archived, err := r.readArchives(key, start, end, limit-len(records))
		if err != nil {
			return Stats{}, nil, err
		}
		records = append(records, archived...)
	}

	sortDesc(records)
	if len(records) > limit {
		records = records[:limit]
	}
	return computeStats(records), records, nil
}

// readArchives pulls windowed records from this key's archive files,
// most-recent-first by mtime, stopping once the deficit is covered.
func (r *Recorder) readArchives(key string, start, end *time.Time, deficit int) ([]models.ModelMetrics, error) {
	dir := filepath.Join(r.dir, sanitizeKey(key))
	files, err := archiveFilesByMtime(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var out []models.ModelMetrics
	for _, f := range files {
		if len(out) >= deficit {
			break
		}
		data, err := os.ReadFile(f.path)
		if err != nil {
			log.Warn().Err(err).Str("file", f.path).Msg("Failed to read metrics archive")
			continue
		}
		var recs []models.ModelMetrics
		if err := json.Unmarshal(data, &recs); err != nil {
			log.Warn().Err(err).Str("file", f.path).Msg("Corrupt metrics archive skipped")
			continue
		}
		for _, m := range recs {
			if inWindow(m, start, end) {
				out = append(out, m)
			}
		}
	}
	return out, nil
}

type archiveFile struct {
	path  string
	mtime time.Time
}

func archiveFilesByMtime(dir string) ([]archiveFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	files := make([]archiveFile, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, archiveFile{path: filepath.Join(dir, e.Name()), mtime: info.ModTime()})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].mtime.After(files[j].mtime) })
	return files, nil
}

func computeStats(recs []models.ModelMetrics) Stats {
	s := Stats{
		TotalRequests: len(recs),
		StatusCounter: map[int]int{},
	}
	if len(recs) == 0 {
		return s
	}
	durations := make([]float64, 0, len(recs))
	speeds := make([]float64, 0, len(recs))
	success := 0
	retries := 0
	for _, m := range recs {
		durations = append(durations, m.CallDuration)
		speeds = append(speeds, m.TokensPerSecond)
		retries += m.InternalRetries
		if m.StatusCode != nil {
			s.StatusCounter[*m.StatusCode]++
			if *m.StatusCode >= 200 && *m.StatusCode < 300 {
				success++
			}
		}
	}
	s.PercentSuccess = 100 * float64(success) / float64(len(recs))
	s.AverageInternalRetries = float64(retries) / float64(len(recs))
	s.CallDuration = aggregate(durations)
	s.TokensPerSecond = aggregate(speeds)
	return s
}

func aggregate(values []float64) Aggregate {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}
	n := len(sorted)
	mean := sum / float64(n)

	var median float64
	if n%2 == 1 {
		median = sorted[n/2]
	} else {
		median = (sorted[n/2-1] + sorted[n/2]) / 2
	}

	// Sample standard deviation; a single observation has none.
	var stddev float64
	if n > 1 {
		var sq float64
		for _, v := range sorted {
			sq += (v - mean) * (v - mean)
		}
		stddev = math.Sqrt(sq / float64(n-1))
	}

	return Aggregate{
		Mean:   mean,
		Median: median,
		Max:    sorted[n-1],
		Min:    sorted[0],
		StdDev: stddev,
	}
}

func inWindow(m models.ModelMetrics, start, end *time.Time) bool {
	if start != nil && m.CallStartTime.Before(*start) {
		return false
	}
	if end != nil && m.CallStartTime.After(*end) {
		return false
	}
	return true
}

func sortDesc(recs []models.ModelMetrics) {
	sort.Slice(recs, func(i, j int) bool {
		return recs[i].CallStartTime.After(recs[j].CallStartTime)
	})
}

var keySanitizer = strings.NewReplacer(
	"/", "_", "\\", "_", ":", "_", "*", "_", "?", "_",
	"\"", "_", "<", "_", ">", "_", "|", "_",
)

func sanitizeKey(key string) string { return keySanitizer.Replace(key) }
