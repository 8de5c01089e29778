// Package bench is the run orchestrator: it sequences registry lookup,
// workload construction, the scheduler run and the final report, and
// tracks the run lifecycle state machine.
package bench

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"oidbs/internal/device"
	"oidbs/internal/gen"
	"oidbs/internal/metrics"
	"oidbs/internal/model"
	"oidbs/internal/sched"
)

// State is the run lifecycle. Aborted is terminal but still produces a
// partial report.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateRunning
	StateDraining
	StateReported
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateReported:
		return "reported"
	case StateAborted:
		return "aborted"
	}
	return "unknown"
}

type Orchestrator struct {
	cfg   RunConfig
	res   *resolved
	agg   *metrics.Aggregator
	sch   *sched.Scheduler
	state atomic.Int32
	runID string
}

// New validates cfg against the registry and prepares a run. All
// configuration errors surface here, before any connection is opened.
func New(cfg RunConfig, reg *model.Registry) (*Orchestrator, error) {
	cfg = cfg.withDefaults()
	res, err := cfg.resolve(reg)
	if err != nil {
		return nil, err
	}
	o := &Orchestrator{
		cfg:   cfg,
		res:   res,
		agg:   metrics.NewAggregator(),
		runID: uuid.NewString()[:8],
	}

	factory, err := o.workloadFactory()
	if err != nil {
		return nil, err
	}
	o.sch = sched.New(sched.Config{
		Devices:         cfg.Devices,
		Stagger:         cfg.Stagger,
		Duration:        cfg.Duration,
		ShutdownTimeout: cfg.ShutdownTimeout,
		AbortRatio:      cfg.AbortRatio,
		Device:          cfg.deviceConfig(),
		Notify:          o.onPhase,
	}, o.agg, factory)
	return o, nil
}

func (o *Orchestrator) RunID() string                   { return o.runID }
func (o *Orchestrator) ModelName() string               { return o.res.model.Name }
func (o *Orchestrator) Aggregator() *metrics.Aggregator { return o.agg }
func (o *Orchestrator) ActiveDevices() int              { return o.sch.Active() }

// NeedsSchemaSetup reports whether SetupSchema will do anything.
func (o *Orchestrator) NeedsSchemaSetup() bool { return o.cfg.SetupSchema }

// SetupSchema runs the model DDL against the query endpoint, one statement
// per round trip. Called before an import run when requested.
func (o *Orchestrator) SetupSchema(ctx context.Context) error {
	if !o.cfg.SetupSchema {
		return nil
	}
	conn, err := o.res.querier.Connect(ctx, o.res.queryURL)
	if err != nil {
		return fmt.Errorf("schema setup: %w", err)
	}
	defer conn.Close()
	for _, stmt := range splitStatements(o.res.model.Schema) {
		if _, err := conn.Execute(ctx, stmt); err != nil {
			return fmt.Errorf("schema setup: %w", err)
		}
	}
	return nil
}

func splitStatements(ddl string) []string {
	var out []string
	for _, s := range strings.Split(ddl, ";") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func (o *Orchestrator) State() State {
	return State(o.state.Load())
}

func (o *Orchestrator) setState(s State) {
	o.state.Store(int32(s))
}

func (o *Orchestrator) onPhase(p sched.Phase) {
	switch p {
	case sched.PhaseRamp:
		o.setState(StateConnecting)
	case sched.PhaseSteady:
		o.setState(StateRunning)
	case sched.PhaseDrain:
		o.setState(StateDraining)
	}
}

// Run drives the run to completion and always returns a report once
// devices have started, partial if the run aborted.
func (o *Orchestrator) Run(ctx context.Context) (*metrics.Report, error) {
	startedAt := time.Now()
	res, err := o.sch.Run(ctx)
	elapsed := time.Since(startedAt)

	aborted := res.Aborted
	report := o.agg.Report(o.runID, o.res.model.Name, o.cfg.Workload,
		startedAt, elapsed, o.cfg.Devices, res.DevicesFailed, aborted)
	if aborted {
		o.setState(StateAborted)
	} else {
		o.setState(StateReported)
	}
	if err != nil {
		return report, err
	}
	return report, nil
}

// workloadFactory builds per-device workloads. Ingest partitions the row
// space across devices; import partitions shard files round-robin; query
// devices are stateless rotations over the catalog.
func (o *Orchestrator) workloadFactory() (sched.WorkloadFactory, error) {
	cfg, res := o.cfg, o.res
	timeout := timeoutPolicy{connectTimeout: cfg.ConnectTimeout}
	switch cfg.Workload {
	case WorkloadQuery:
		return func(id int) (device.Workload, error) {
			return &queryWorkload{
				querier:  res.querier,
				endpoint: res.queryURL,
				queries:  res.model.Queries,
				timeout:  timeout,
			}, nil
		}, nil

	case WorkloadIngest:
		var ranges []gen.Range
		if cfg.Records > 0 {
			ranges = gen.Partition(cfg.Records, cfg.Devices)
		}
		return func(id int) (device.Workload, error) {
			var r gen.Range
			if ranges != nil {
				if id >= len(ranges) {
					// Replacement device past the planned partitions; its
					// share was already consumed, nothing left to assign.
					r = gen.Range{Start: cfg.Records, Count: 0}
				} else {
					r = ranges[id]
				}
			} else {
				// Duration-bounded: give each device its own unbounded,
				// non-overlapping row region.
				r = gen.Unbounded(int64(id) * (1 << 40))
			}
			stream, err := gen.Generate(res.model, r)
			if err != nil {
				return nil, err
			}
			return &ingestWorkload{
				ingestor: res.ingestor,
				endpoint: res.ingestURL,
				clientID: fmt.Sprintf("oidbs-%s-%d", o.runID, id),
				topic:    res.model.Topic(),
				stream:   stream,
				batch:    cfg.RowsPerPublish,
				timeout:  timeout,
			}, nil
		}, nil

	case WorkloadImport:
		files, err := gen.Shards(cfg.DataDir, res.model.Name)
		if err != nil {
			return nil, err
		}
		return func(id int) (device.Workload, error) {
			var mine []string
			for i := id % cfg.Devices; i < len(files); i += cfg.Devices {
				mine = append(mine, files[i])
			}
			return &importWorkload{
				ingestor: res.ingestor,
				endpoint: res.ingestURL,
				clientID: fmt.Sprintf("oidbs-%s-%d", o.runID, id),
				topic:    res.model.Topic(),
				files:    mine,
				batch:    cfg.RowsPerPublish,
				timeout:  timeout,
			}, nil
		}, nil
	}
	return nil, fmt.Errorf("unknown workload %q", cfg.Workload)
}
