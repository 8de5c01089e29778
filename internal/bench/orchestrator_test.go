package bench

import (
	"context"
	"os"
	"testing"
	"time"

	"oidbs/internal/adapter"
	"oidbs/internal/dummy"
	"oidbs/internal/gen"
	"oidbs/internal/model"
)

func TestMain(m *testing.M) {
	adapter.RegisterIngestor("dummy", dummy.Ingestor{})
	adapter.RegisterQuerier("dummy", dummy.Querier{})
	os.Exit(m.Run())
}

func newRegistry(t *testing.T) *model.Registry {
	t.Helper()
	reg := model.NewRegistry()
	// Keep the fleet small so record targets stay in the same key space.
	if err := reg.Configure("pstations", map[string]int64{
		"num_stations": 100, "num_sensors": 10,
	}); err != nil {
		t.Fatal(err)
	}
	return reg
}

func TestQueryScenario(t *testing.T) {
	o, err := New(RunConfig{
		Model:         "pstations",
		Workload:      WorkloadQuery,
		QueryEndpoint: "dummy://?latency=10ms",
		Devices:       10,
		Duration:      300 * time.Millisecond,
	}, newRegistry(t))
	if err != nil {
		t.Fatal(err)
	}
	if o.State() != StateIdle {
		t.Errorf("State() = %v before run, want idle", o.State())
	}

	report, err := o.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if o.State() != StateReported {
		t.Errorf("State() = %v after clean run, want reported", o.State())
	}
	if report.Aborted {
		t.Fatal("clean run reported aborted")
	}
	if report.TotalFailures() != 0 {
		t.Errorf("failures = %v on a clean target", report.Failures)
	}
	// 10 devices at ~10ms per query for 300ms: roughly 300 ops. Leave a
	// wide margin for scheduling noise.
	if report.Queries < 50 {
		t.Errorf("only %d queries in 300ms across 10 devices", report.Queries)
	}
	if report.Publishes != 0 {
		t.Errorf("query run produced %d publishes", report.Publishes)
	}
	if report.Latency.P50 < 5 || report.Latency.P50 > 100 {
		t.Errorf("P50 = %.2f ms, expected around the simulated 10ms", report.Latency.P50)
	}
}

func TestIngestRecordTarget(t *testing.T) {
	o, err := New(RunConfig{
		Model:          "pstations",
		Workload:       WorkloadIngest,
		IngestEndpoint: "dummy://?latency=1ms",
		Devices:        4,
		Records:        1000,
		RowsPerPublish: 10,
	}, newRegistry(t))
	if err != nil {
		t.Fatal(err)
	}
	report, err := o.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	// 1000 records over 4 devices, 10 per publish: exactly 100 publishes.
	if report.Publishes != 100 {
		t.Errorf("publishes = %d, want 100", report.Publishes)
	}
	if report.Succeeded != 100 || report.TotalFailures() != 0 {
		t.Errorf("succeeded = %d failures = %v, want 100/none", report.Succeeded, report.Failures)
	}
	if report.Aborted || report.IncompleteShutdown != 0 {
		t.Errorf("unexpected report flags: %+v", report)
	}
}

func TestRejectEveryThird(t *testing.T) {
	o, err := New(RunConfig{
		Model:          "pstations",
		Workload:       WorkloadIngest,
		IngestEndpoint: "dummy://?latency=1ms&reject_every=3",
		Devices:        2,
		Records:        120,
		RowsPerPublish: 10,
	}, newRegistry(t))
	if err != nil {
		t.Fatal(err)
	}
	report, err := o.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	// 6 publishes per device; the 3rd and 6th on each connection are
	// rejected. Rejections are failed samples, not resets, so the run
	// completes.
	if report.Aborted {
		t.Fatal("protocol rejections aborted the run")
	}
	if report.Publishes != 12 {
		t.Errorf("publishes = %d, want 12", report.Publishes)
	}
	if got := report.Failures["protocol"]; got != 4 {
		t.Errorf("protocol failures = %d, want 4", got)
	}
	if report.Succeeded != 8 {
		t.Errorf("succeeded = %d, want 8", report.Succeeded)
	}
}

func TestAuthFailureAborts(t *testing.T) {
	o, err := New(RunConfig{
		Model:          "pstations",
		Workload:       WorkloadIngest,
		IngestEndpoint: "dummy://?fail_auth=true",
		Devices:        4,
		Records:        100,
		RowsPerPublish: 10,
	}, newRegistry(t))
	if err != nil {
		t.Fatal(err)
	}
	report, err := o.Run(context.Background())
	if report == nil {
		t.Fatal("aborted run must still produce a partial report")
	}
	if err != nil {
		t.Fatal(err)
	}
	if !report.Aborted {
		t.Error("run with no connectable device did not abort")
	}
	if o.State() != StateAborted {
		t.Errorf("State() = %v, want aborted", o.State())
	}
	if report.DevicesFailed < 2 {
		t.Errorf("DevicesFailed = %d, want at least the abort threshold", report.DevicesFailed)
	}
}

func TestImportScenario(t *testing.T) {
	reg := newRegistry(t)
	m, err := reg.Lookup("pstations")
	if err != nil {
		t.Fatal(err)
	}
	dataDir := t.TempDir()
	if _, err := gen.WriteDataset(m, gen.DatasetConfig{
		OutDir: dataDir, Workers: 4, Rows: 100, Format: "csv",
	}); err != nil {
		t.Fatal(err)
	}

	o, err := New(RunConfig{
		Model:          "pstations",
		Workload:       WorkloadImport,
		IngestEndpoint: "dummy://?latency=1ms",
		QueryEndpoint:  "dummy://",
		DataDir:        dataDir,
		Devices:        3,
		RowsPerPublish: 10,
		SetupSchema:    true,
	}, reg)
	if err != nil {
		t.Fatal(err)
	}

	if !o.NeedsSchemaSetup() {
		t.Error("NeedsSchemaSetup() = false with SetupSchema set")
	}
	if err := o.SetupSchema(context.Background()); err != nil {
		t.Fatal(err)
	}

	report, err := o.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	// 4 shards of 25 lines round-robin over 3 devices: 50, 25 and 25
	// lines, batched by 10: 5 + 3 + 3 publishes.
	if report.Publishes != 11 {
		t.Errorf("publishes = %d, want 11", report.Publishes)
	}
	if report.TotalFailures() != 0 || report.Aborted {
		t.Errorf("unexpected failures: %+v", report)
	}
}

func TestConfigValidation(t *testing.T) {
	reg := newRegistry(t)
	cases := []struct {
		name string
		cfg  RunConfig
	}{
		{"unknown model", RunConfig{Model: "nope", Workload: WorkloadQuery, QueryEndpoint: "dummy://"}},
		{"unknown workload", RunConfig{Model: "pstations", Workload: "replicate"}},
		{"unknown scheme", RunConfig{Model: "pstations", Workload: WorkloadQuery, QueryEndpoint: "bogus://x"}},
		{"ingest without bound", RunConfig{Model: "pstations", Workload: WorkloadIngest, IngestEndpoint: "dummy://"}},
		{"import without dataset", RunConfig{Model: "pstations", Workload: WorkloadImport, IngestEndpoint: "dummy://"}},
		{"schema setup without querier", RunConfig{Model: "pstations", Workload: WorkloadImport,
			IngestEndpoint: "dummy://", DataDir: "x", SetupSchema: true, QueryEndpoint: "bogus://x"}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if _, err := New(c.cfg, reg); err == nil {
				t.Errorf("New() accepted invalid config %+v", c.cfg)
			}
		})
	}
}

func TestStateString(t *testing.T) {
	states := map[State]string{
		StateIdle:       "idle",
		StateConnecting: "connecting",
		StateRunning:    "running",
		StateDraining:   "draining",
		StateReported:   "reported",
		StateAborted:    "aborted",
	}
	for s, want := range states {
		if s.String() != want {
			t.Errorf("State(%d).String() = %q, want %q", s, s.String(), want)
		}
	}
}
