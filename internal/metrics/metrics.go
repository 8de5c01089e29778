// Package metrics collects per-device samples and merges them into the
// final run report. Devices accumulate locally and flush in batches, so
// the shared aggregator is touched orders of magnitude less often than
// once per operation.
package metrics

import (
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// OpKind is the kind of operation a sample measures.
type OpKind uint8

const (
	OpPublish OpKind = iota
	OpQuery
	numOpKinds
)

func (k OpKind) String() string {
	switch k {
	case OpPublish:
		return "publish"
	case OpQuery:
		return "query"
	}
	return "unknown"
}

// Outcome classifies a sample.
type Outcome uint8

const (
	OutcomeOK Outcome = iota
	OutcomeProtocol
	OutcomeConnection
	OutcomeFatal
	numOutcomes
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeProtocol:
		return "protocol"
	case OutcomeConnection:
		return "connection"
	case OutcomeFatal:
		return "fatal"
	}
	return "unknown"
}

// Sample is one timed operation attempt. Produced by a Device, consumed
// exactly once by the aggregator via an Accumulator flush.
type Sample struct {
	Kind    OpKind
	Outcome Outcome
	Latency time.Duration
	At      time.Time
}

// latency histogram bounds: 1µs to 10min, 3 significant figures.
func newHistogram() *hdrhistogram.Histogram {
	return hdrhistogram.New(1, int64(10*time.Minute/time.Microsecond), 3)
}

// Accumulator is a single Device's local sample sink. No locking: exactly
// one goroutine writes it, and flushing hands the data to the aggregator
// under the aggregator's lock.
type Accumulator struct {
	ops      [numOpKinds]uint64
	outcomes [numOutcomes]uint64
	hist     *hdrhistogram.Histogram
}

func NewAccumulator() *Accumulator {
	return &Accumulator{hist: newHistogram()}
}

// Record adds one sample. Latency is recorded for successful operations
// only; failures are counted by class.
func (a *Accumulator) Record(s Sample) {
	a.ops[s.Kind]++
	a.outcomes[s.Outcome]++
	if s.Outcome == OutcomeOK {
		// RecordValue only fails above the histogram's max trackable
		// value; saturate instead of losing the sample.
		if err := a.hist.RecordValue(s.Latency.Microseconds()); err != nil {
			a.hist.RecordValue(a.hist.HighestTrackableValue())
		}
	}
}

// Pending reports how many samples were recorded since the last reset.
func (a *Accumulator) Pending() uint64 {
	var n uint64
	for _, c := range a.outcomes {
		n += c
	}
	return n
}

func (a *Accumulator) reset() {
	a.ops = [numOpKinds]uint64{}
	a.outcomes = [numOutcomes]uint64{}
	a.hist.Reset()
}

// Aggregator merges Accumulators from all Devices. The merge is
// commutative and associative (counter addition and histogram merge), so
// flush order across Devices cannot affect the report.
type Aggregator struct {
	mu         sync.Mutex
	ops        [numOpKinds]uint64
	outcomes   [numOutcomes]uint64
	hist       *hdrhistogram.Histogram
	incomplete uint64
}

func NewAggregator() *Aggregator {
	return &Aggregator{hist: newHistogram()}
}

// Merge folds a device accumulator in and resets it for reuse.
func (g *Aggregator) Merge(a *Accumulator) {
	g.mu.Lock()
	for i, c := range a.ops {
		g.ops[i] += c
	}
	for i, c := range a.outcomes {
		g.outcomes[i] += c
	}
	g.hist.Merge(a.hist)
	g.mu.Unlock()
	a.reset()
}

// AddIncompleteShutdown counts Devices that did not release their
// connection within the shutdown timeout.
func (g *Aggregator) AddIncompleteShutdown(n uint64) {
	g.mu.Lock()
	g.incomplete += n
	g.mu.Unlock()
}

// Snapshot is a cheap copy for live display; sent over a channel with
// non-blocking sends so a stalled UI can never slow a Device down.
type Snapshot struct {
	Total      uint64
	Publishes  uint64
	Queries    uint64
	OK         uint64
	Protocol   uint64
	Connection uint64
	Fatal      uint64
	P50Ms      float64
	P90Ms      float64
	P99Ms      float64
	MaxMs      float64
}

func (g *Aggregator) Snapshot() Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	return Snapshot{
		Total:      g.ops[OpPublish] + g.ops[OpQuery],
		Publishes:  g.ops[OpPublish],
		Queries:    g.ops[OpQuery],
		OK:         g.outcomes[OutcomeOK],
		Protocol:   g.outcomes[OutcomeProtocol],
		Connection: g.outcomes[OutcomeConnection],
		Fatal:      g.outcomes[OutcomeFatal],
		P50Ms:      float64(g.hist.ValueAtQuantile(50)) / 1000.0,
		P90Ms:      float64(g.hist.ValueAtQuantile(90)) / 1000.0,
		P99Ms:      float64(g.hist.ValueAtQuantile(99)) / 1000.0,
		MaxMs:      float64(g.hist.Max()) / 1000.0,
	}
}
