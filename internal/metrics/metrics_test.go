package metrics_test

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/modelmux/modelmux/internal/metrics"
	"github.com/modelmux/modelmux/pkg/models"
)

const modelKey = "AWS/claude-3-haiku"

func record(start time.Time, status int, duration, tps float64, retries int) models.ModelMetrics {
	return models.ModelMetrics{
		TotalTokens:     100,
		CallStartTime:   start,
		CallEndTime:     start.Add(time.Duration(duration * float64(time.Second))),
		CallDuration:    duration,
		TokensPerSecond: tps,
		StatusCode:      &status,
		InternalRetries: retries,
	}
}

func archiveFiles(t *testing.T, dir, key string) []string {
	t.Helper()
	entries, err := os.ReadDir(filepath.Join(dir, key))
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestAddLogArchivesOnOverflow(t *testing.T) {
	dir := t.TempDir()
	r := metrics.NewRecorder(dir, 5, 10)

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 6; i++ {
		r.AddLog(modelKey, record(base.Add(time.Duration(i)*time.Minute), 200, 1.5, 60, 0))
	}
	r.Flush()

	// The slash in the key is not filesystem-safe, so the archive directory
	// uses the sanitized form.
	files := archiveFiles(t, dir, "AWS_claude-3-haiku")
	if len(files) != 1 {
		t.Fatalf("archive file count = %d, want 1 (%v)", len(files), files)
	}
	wantName := fmt.Sprintf("%s-%s.json",
		base.Format("20060102150405"),
		base.Add(5*time.Minute).Format("20060102150405"))
	if files[0] != wantName {
		t.Errorf("archive name = %q, want %q", files[0], wantName)
	}

	data, err := os.ReadFile(filepath.Join(dir, "AWS_claude-3-haiku", files[0]))
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	var recs []models.ModelMetrics
	if err := json.Unmarshal(data, &recs); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if len(recs) != 6 {
		t.Fatalf("archived record count = %d, want 6", len(recs))
	}
	for i := 1; i < len(recs); i++ {
		if recs[i].CallStartTime.Before(recs[i-1].CallStartTime) {
			t.Fatal("archived records are not sorted ascending by call_start_time")
		}
	}

	// Memory was drained, so the query is served entirely from disk.
	stats, got, err := r.GetLogs(modelKey, nil, nil, 10)
	if err != nil {
		t.Fatalf("GetLogs() error = %v", err)
	}
	if len(got) != 6 {
		t.Fatalf("GetLogs() count = %d, want 6", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].CallStartTime.After(got[i-1].CallStartTime) {
			t.Fatal("GetLogs() records are not sorted descending by call_start_time")
		}
	}
	if stats.TotalRequests != 6 {
		t.Errorf("TotalRequests = %d, want 6", stats.TotalRequests)
	}
	if stats.PercentSuccess != 100 {
		t.Errorf("PercentSuccess = %v, want 100", stats.PercentSuccess)
	}
}

func TestGetLogsMergesMemoryAndArchive(t *testing.T) {
	dir := t.TempDir()
	r := metrics.NewRecorder(dir, 100, 10)
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		r.AddLog(modelKey, record(base.Add(time.Duration(i)*time.Minute), 200, 1, 10, 0))
	}
	r.Flush()
	for i := 3; i < 5; i++ {
		r.AddLog(modelKey, record(base.Add(time.Duration(i)*time.Minute), 200, 1, 10, 0))
	}

	_, got, err := r.GetLogs(modelKey, nil, nil, 10)
	if err != nil {
		t.Fatalf("GetLogs() error = %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("GetLogs() count = %d, want 5", len(got))
	}
	if !got[0].CallStartTime.Equal(base.Add(4 * time.Minute)) {
		t.Errorf("newest record start = %v, want %v", got[0].CallStartTime, base.Add(4*time.Minute))
	}
	if !got[4].CallStartTime.Equal(base) {
		t.Errorf("oldest record start = %v, want %v", got[4].CallStartTime, base)
	}
}

func TestGetLogsWindowAndLimit(t *testing.T) {
	r := metrics.NewRecorder(t.TempDir(), 100, 10)
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 10; i++ {
		r.AddLog(modelKey, record(base.Add(time.Duration(i)*time.Hour), 200, 1, 10, 0))
	}

	start := base.Add(2 * time.Hour)
	end := base.Add(6 * time.Hour)
	_, got, err := r.GetLogs(modelKey, &start, &end, 100)
	if err != nil {
		t.Fatalf("GetLogs() error = %v", err)
	}
	// The window is inclusive on both ends.
	if len(got) != 5 {
		t.Fatalf("windowed count = %d, want 5", len(got))
	}
	for _, m := range got {
		if m.CallStartTime.Before(start) || m.CallStartTime.After(end) {
			t.Errorf("record at %v outside window [%v, %v]", m.CallStartTime, start, end)
		}
	}

	_, got, err = r.GetLogs(modelKey, nil, nil, 3)
	if err != nil {
		t.Fatalf("GetLogs() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("limited count = %d, want 3", len(got))
	}
	if !got[0].CallStartTime.Equal(base.Add(9 * time.Hour)) {
		t.Errorf("limit kept %v, want the newest records", got[0].CallStartTime)
	}
}

func TestGetLogsUnknownKey(t *testing.T) {
	r := metrics.NewRecorder(t.TempDir(), 100, 10)
	stats, got, err := r.GetLogs("OPENAI/gpt-4o", nil, nil, 10)
	if err != nil {
		t.Fatalf("GetLogs() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("count = %d, want 0", len(got))
	}
	if stats.TotalRequests != 0 {
		t.Errorf("TotalRequests = %d, want 0", stats.TotalRequests)
	}
}

func TestPruneKeepsNewestArchives(t *testing.T) {
	dir := t.TempDir()
	r := metrics.NewRecorder(dir, 100, 2)
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	for batch := 0; batch < 4; batch++ {
		r.AddLog(modelKey, record(base.Add(time.Duration(batch)*time.Hour), 200, 1, 10, 0))
		r.Flush()
		time.Sleep(10 * time.Millisecond) // distinct mtimes
	}

	files := archiveFiles(t, dir, "AWS_claude-3-haiku")
	if len(files) != 2 {
		t.Fatalf("archive file count = %d, want 2 after prune (%v)", len(files), files)
	}
}

func TestStatsAggregates(t *testing.T) {
	r := metrics.NewRecorder(t.TempDir(), 100, 10)
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	r.AddLog(modelKey, record(base, 200, 1.0, 10, 0))
	r.AddLog(modelKey, record(base.Add(time.Minute), 200, 2.0, 20, 1))
	r.AddLog(modelKey, record(base.Add(2*time.Minute), 429, 3.0, 0, 5))
	r.AddLog(modelKey, record(base.Add(3*time.Minute), 500, 4.0, 0, 0))

	stats, _, err := r.GetLogs(modelKey, nil, nil, 100)
	if err != nil {
		t.Fatalf("GetLogs() error = %v", err)
	}
	if stats.TotalRequests != 4 {
		t.Fatalf("TotalRequests = %d, want 4", stats.TotalRequests)
	}
	if stats.PercentSuccess != 50 {
		t.Errorf("PercentSuccess = %v, want 50", stats.PercentSuccess)
	}
	if stats.AverageInternalRetries != 1.5 {
		t.Errorf("AverageInternalRetries = %v, want 1.5", stats.AverageInternalRetries)
	}
	if stats.StatusCounter[200] != 2 || stats.StatusCounter[429] != 1 || stats.StatusCounter[500] != 1 {
		t.Errorf("StatusCounter = %v", stats.StatusCounter)
	}

	d := stats.CallDuration
	if d.Mean != 2.5 || d.Median != 2.5 || d.Min != 1 || d.Max != 4 {
		t.Errorf("CallDuration = %+v", d)
	}
	// Sample standard deviation of {1,2,3,4}.
	if math.Abs(d.StdDev-math.Sqrt(5.0/3.0)) > 1e-9 {
		t.Errorf("StdDev = %v, want %v", d.StdDev, math.Sqrt(5.0/3.0))
	}
}

func TestStatsSingleObservation(t *testing.T) {
	r := metrics.NewRecorder(t.TempDir(), 100, 10)
	r.AddLog(modelKey, record(time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC), 200, 2.0, 50, 0))

	stats, _, err := r.GetLogs(modelKey, nil, nil, 10)
	if err != nil {
		t.Fatalf("GetLogs() error = %v", err)
	}
	if stats.CallDuration.StdDev != 0 {
		t.Errorf("StdDev = %v, want 0 for a single observation", stats.CallDuration.StdDev)
	}
	if stats.CallDuration.Mean != 2 || stats.CallDuration.Median != 2 {
		t.Errorf("CallDuration = %+v", stats.CallDuration)
	}
}
