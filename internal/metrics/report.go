package metrics

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
)

// Percentiles summarizes the success latency distribution in
// milliseconds. Derived from the merged histogram, so memory stays bounded
// no matter how long the run was.
type Percentiles struct {
	P50 float64 `json:"p50_ms"`
	P90 float64 `json:"p90_ms"`
	P95 float64 `json:"p95_ms"`
	P99 float64 `json:"p99_ms"`
	Max float64 `json:"max_ms"`
}

// Report is the only durable artifact of a run. Built once at drain time;
// immutable afterwards.
type Report struct {
	RunID     string    `json:"run_id"`
	Model     string    `json:"model"`
	Workload  string    `json:"workload"`
	StartedAt time.Time `json:"started_at"`
	ElapsedMs int64     `json:"elapsed_ms"`

	DevicesRequested int `json:"devices_requested"`
	DevicesFailed    int `json:"devices_failed"`

	TotalOps  uint64 `json:"total_ops"`
	Publishes uint64 `json:"publishes"`
	Queries   uint64 `json:"queries"`
	Succeeded uint64 `json:"succeeded"`

	// Failures by error class, plus devices abandoned at shutdown.
	Failures           map[string]uint64 `json:"failures"`
	IncompleteShutdown uint64            `json:"incomplete_shutdown"`

	OpsPerSec float64     `json:"ops_per_sec"`
	Latency   Percentiles `json:"latency"`

	Aborted bool `json:"aborted"`
}

// Report builds the final report from everything merged so far.
func (g *Aggregator) Report(runID, modelName, workload string, startedAt time.Time, elapsed time.Duration, devicesRequested, devicesFailed int, aborted bool) *Report {
	g.mu.Lock()
	defer g.mu.Unlock()

	total := g.ops[OpPublish] + g.ops[OpQuery]
	r := &Report{
		RunID:            runID,
		Model:            modelName,
		Workload:         workload,
		StartedAt:        startedAt,
		ElapsedMs:        elapsed.Milliseconds(),
		DevicesRequested: devicesRequested,
		DevicesFailed:    devicesFailed,
		TotalOps:         total,
		Publishes:        g.ops[OpPublish],
		Queries:          g.ops[OpQuery],
		Succeeded:        g.outcomes[OutcomeOK],
		Failures: map[string]uint64{
			OutcomeProtocol.String():   g.outcomes[OutcomeProtocol],
			OutcomeConnection.String(): g.outcomes[OutcomeConnection],
			OutcomeFatal.String():      g.outcomes[OutcomeFatal],
		},
		IncompleteShutdown: g.incomplete,
		Latency: Percentiles{
			P50: float64(g.hist.ValueAtQuantile(50)) / 1000.0,
			P90: float64(g.hist.ValueAtQuantile(90)) / 1000.0,
			P95: float64(g.hist.ValueAtQuantile(95)) / 1000.0,
			P99: float64(g.hist.ValueAtQuantile(99)) / 1000.0,
			Max: float64(g.hist.Max()) / 1000.0,
		},
		Aborted: aborted,
	}
	if elapsed > 0 {
		r.OpsPerSec = float64(total) / elapsed.Seconds()
	}
	return r
}

// TotalFailures sums all failure classes.
func (r *Report) TotalFailures() uint64 {
	var n uint64
	for _, c := range r.Failures {
		n += c
	}
	return n
}

// Render formats the report for terminal display.
func (r *Report) Render() string {
	var b strings.Builder
	line := strings.Repeat("=", 70)

	fmt.Fprintf(&b, "\n📊 BENCHMARK REPORT  [%s]\n", r.RunID)
	b.WriteString(line + "\n")
	fmt.Fprintf(&b, "Model / Workload : %s / %s\n", r.Model, r.Workload)
	fmt.Fprintf(&b, "Elapsed          : %s\n", time.Duration(r.ElapsedMs)*time.Millisecond)
	fmt.Fprintf(&b, "Devices          : %d requested, %d failed\n", r.DevicesRequested, r.DevicesFailed)
	fmt.Fprintf(&b, "Operations       : %d (publish: %d, query: %d)\n", r.TotalOps, r.Publishes, r.Queries)
	fmt.Fprintf(&b, "Succeeded        : %d\n", r.Succeeded)
	fmt.Fprintf(&b, "Throughput       : %.2f ops/sec\n", r.OpsPerSec)
	fmt.Fprintf(&b, "\n⏱️  LATENCY (ms) [success only]\n")
	fmt.Fprintf(&b, "   P50 : %.2f\n", r.Latency.P50)
	fmt.Fprintf(&b, "   P90 : %.2f\n", r.Latency.P90)
	fmt.Fprintf(&b, "   P95 : %.2f\n", r.Latency.P95)
	fmt.Fprintf(&b, "   P99 : %.2f\n", r.Latency.P99)
	fmt.Fprintf(&b, "   Max : %.2f\n", r.Latency.Max)
	if r.TotalFailures() > 0 || r.IncompleteShutdown > 0 {
		fmt.Fprintf(&b, "\n❌ FAILURES\n")
		for _, class := range []Outcome{OutcomeProtocol, OutcomeConnection, OutcomeFatal} {
			if n := r.Failures[class.String()]; n > 0 {
				fmt.Fprintf(&b, "   %-10s : %d\n", class, n)
			}
		}
		if r.IncompleteShutdown > 0 {
			fmt.Fprintf(&b, "   %-10s : %d\n", "incomplete", r.IncompleteShutdown)
		}
	}
	if r.Aborted {
		b.WriteString("\n⚠️  RUN ABORTED (partial results above)\n")
	}
	b.WriteString(line + "\n")
	return b.String()
}

// WriteJSON exports the report for machine consumption.
func (r *Report) WriteJSON(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
