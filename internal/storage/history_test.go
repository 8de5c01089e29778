package storage

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"oidbs/internal/metrics"
)

func testReport(id string, startedAt time.Time) *metrics.Report {
	agg := metrics.NewAggregator()
	acc := metrics.NewAccumulator()
	acc.Record(metrics.Sample{Kind: metrics.OpPublish, Outcome: metrics.OutcomeOK, Latency: 5 * time.Millisecond})
	agg.Merge(acc)
	return agg.Report(id, "pstations", "ingest", startedAt, time.Second, 4, 0, false)
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveAndGet(t *testing.T) {
	s := openTestStore(t)

	started := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	item := HistoryItem{ID: "run1", SavedAt: time.Now(), Report: testReport("run1", started)}
	if err := s.Save(item); err != nil {
		t.Fatal(err)
	}

	got, err := s.Get("run1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Report.RunID != "run1" || got.Report.TotalOps != 1 {
		t.Errorf("loaded report = %+v", got.Report)
	}
	if !got.Report.StartedAt.Equal(started) {
		t.Errorf("StartedAt = %v, want %v", got.Report.StartedAt, started)
	}

	if _, err := s.Get("missing"); err == nil {
		t.Error("Get() found a run that was never saved")
	}
}

func TestListNewestFirst(t *testing.T) {
	s := openTestStore(t)

	base := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		id := fmt.Sprintf("run%d", i)
		item := HistoryItem{ID: id, SavedAt: time.Now(), Report: testReport(id, base.Add(time.Duration(i)*time.Minute))}
		if err := s.Save(item); err != nil {
			t.Fatal(err)
		}
	}

	items := s.List()
	if len(items) != 3 {
		t.Fatalf("List() = %d items, want 3", len(items))
	}
	for i, want := range []string{"run2", "run1", "run0"} {
		if items[i].ID != want {
			t.Errorf("List()[%d] = %s, want %s", i, items[i].ID, want)
		}
	}
}

func TestRetentionCap(t *testing.T) {
	s := openTestStore(t)

	base := time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC)
	for i := 0; i < maxHistory+10; i++ {
		id := fmt.Sprintf("run%03d", i)
		item := HistoryItem{ID: id, SavedAt: time.Now(), Report: testReport(id, base.Add(time.Duration(i)*time.Second))}
		if err := s.Save(item); err != nil {
			t.Fatal(err)
		}
	}

	items := s.List()
	if len(items) != maxHistory {
		t.Fatalf("List() = %d items after overflow, want %d", len(items), maxHistory)
	}
	// The oldest runs are the ones pruned.
	if items[len(items)-1].ID != "run010" {
		t.Errorf("oldest kept run = %s, want run010", items[len(items)-1].ID)
	}
}

func TestReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	item := HistoryItem{ID: "persisted", SavedAt: time.Now(), Report: testReport("persisted", time.Now())}
	if err := s.Save(item); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	s2, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s2.Close()
	if _, err := s2.Get("persisted"); err != nil {
		t.Errorf("saved run lost across reopen: %v", err)
	}
}
