// Package cli runs a benchmark headless: a single-line progress readout
// on stderr-friendly terminals, the final report on stdout, and optional
// JSON export plus history persistence.
package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"oidbs/internal/bench"
	"oidbs/internal/metrics"
	"oidbs/internal/model"
	"oidbs/internal/storage"
)

type Options struct {
	// Out, when set, writes the report JSON to this path.
	Out string
	// NoHistory skips persisting the run.
	NoHistory bool
	// HistoryPath overrides the default history database location.
	HistoryPath string
}

// Run executes the configured benchmark and blocks until the report is
// printed. The returned error covers setup failures and aborted runs.
func Run(ctx context.Context, cfg bench.RunConfig, reg *model.Registry, opts Options) error {
	o, err := bench.New(cfg, reg)
	if err != nil {
		return err
	}

	printHeader(cfg, o.RunID())

	if o.NeedsSchemaSetup() {
		fmt.Printf("🔧 Setting up schema for model %s...\n", o.ModelName())
		if err := o.SetupSchema(ctx); err != nil {
			return err
		}
	}

	done := make(chan struct{})
	var report *metrics.Report
	var runErr error
	go func() {
		report, runErr = o.Run(ctx)
		close(done)
	}()

	startTime := time.Now()
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

monitor:
	for {
		select {
		case <-done:
			break monitor
		case <-ticker.C:
			printProgress(o, cfg, time.Since(startTime))
		}
	}

	if report == nil {
		return runErr
	}

	fmt.Print(report.Render())

	if opts.Out != "" {
		if err := report.WriteJSON(opts.Out); err != nil {
			fmt.Printf("⚠️  Could not write %s: %v\n", opts.Out, err)
		} else {
			fmt.Printf("💾 Report saved to %s\n", opts.Out)
		}
	}
	if !opts.NoHistory {
		SaveHistory(opts.HistoryPath, report)
	}

	if runErr != nil {
		return runErr
	}
	if report.Aborted {
		return fmt.Errorf("run %s aborted: %d of %d devices failed",
			report.RunID, report.DevicesFailed, report.DevicesRequested)
	}
	return nil
}

func printHeader(cfg bench.RunConfig, runID string) {
	fmt.Printf("\n🚀 STARTING BENCHMARK  [%s]\n", runID)
	fmt.Printf("======================================================================\n")
	fmt.Printf("Model      : %s\n", cfg.Model)
	fmt.Printf("Workload   : %s\n", cfg.Workload)
	switch cfg.Workload {
	case bench.WorkloadQuery:
		fmt.Printf("Endpoint   : %s\n", cfg.QueryEndpoint)
	default:
		fmt.Printf("Endpoint   : %s\n", cfg.IngestEndpoint)
	}
	fmt.Printf("Devices    : %d\n", cfg.Devices)
	switch {
	case cfg.Duration > 0:
		fmt.Printf("Duration   : %s\n", cfg.Duration)
	case cfg.Records > 0:
		fmt.Printf("Records    : %d (%d rows/publish)\n", cfg.Records, cfg.RowsPerPublish)
	}
	fmt.Printf("======================================================================\n\n")
}

func printProgress(o *bench.Orchestrator, cfg bench.RunConfig, elapsed time.Duration) {
	snap := o.Aggregator().Snapshot()

	rate := 0.0
	if elapsed.Seconds() > 0 {
		rate = float64(snap.Total) / elapsed.Seconds()
	}

	pct, bounded := progress(cfg, snap, elapsed)
	if bounded {
		fmt.Printf("\r%s %3.0f%% | %s | Dev: %3d | Ops/s: %.1f | OK: %d | Err: %d   ",
			progressBar(pct, 20), pct*100,
			elapsed.Round(time.Second),
			o.ActiveDevices(),
			rate,
			snap.OK,
			snap.Protocol+snap.Connection+snap.Fatal,
		)
		return
	}
	fmt.Printf("\r[%s] %s | Dev: %3d | Ops/s: %.1f | OK: %d | Err: %d   ",
		o.State(),
		elapsed.Round(time.Second),
		o.ActiveDevices(),
		rate,
		snap.OK,
		snap.Protocol+snap.Connection+snap.Fatal,
	)
}

// progress estimates completion. Duration-bounded runs track wall clock;
// record-bounded ingest tracks publish count. Import runs are unbounded
// from here, their total line count is not known up front.
func progress(cfg bench.RunConfig, snap metrics.Snapshot, elapsed time.Duration) (float64, bool) {
	switch {
	case cfg.Duration > 0:
		pct := elapsed.Seconds() / cfg.Duration.Seconds()
		if pct > 1.0 {
			pct = 1.0
		}
		return pct, true
	case cfg.Workload == bench.WorkloadIngest && cfg.Records > 0:
		expected := (cfg.Records + int64(cfg.RowsPerPublish) - 1) / int64(cfg.RowsPerPublish)
		if expected <= 0 {
			return 0, false
		}
		pct := float64(snap.Publishes) / float64(expected)
		if pct > 1.0 {
			pct = 1.0
		}
		return pct, true
	}
	return 0, false
}

func progressBar(pct float64, width int) string {
	filled := int(pct * float64(width))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	return "[" + strings.Repeat("█", filled) + strings.Repeat("-", width-filled) + "]"
}

// SaveHistory persists a finished report, warning instead of failing when
// the history database is unavailable.
func SaveHistory(path string, report *metrics.Report) {
	store, err := storage.Open(path)
	if err != nil {
		fmt.Printf("⚠️  History unavailable: %v\n", err)
		return
	}
	defer store.Close()
	item := storage.HistoryItem{
		ID:      report.RunID,
		SavedAt: time.Now(),
		Report:  report,
	}
	if err := store.Save(item); err != nil {
		fmt.Printf("⚠️  Could not save run to history: %v\n", err)
	}
}
