package sched

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"oidbs/internal/adapter"
	"oidbs/internal/device"
	"oidbs/internal/metrics"
)

// finiteWorkload performs n successful publishes and finishes.
type finiteWorkload struct {
	n    int
	done int
}

func (w *finiteWorkload) Connect(ctx context.Context) error { return nil }
func (w *finiteWorkload) Step(ctx context.Context) (metrics.OpKind, error) {
	if w.done >= w.n {
		return metrics.OpPublish, io.EOF
	}
	w.done++
	return metrics.OpPublish, nil
}
func (w *finiteWorkload) Close() error { return nil }

// refusedWorkload never manages to connect.
type refusedWorkload struct{}

func (refusedWorkload) Connect(ctx context.Context) error {
	return adapter.Errf(adapter.Fatal, "not authorized")
}
func (refusedWorkload) Step(ctx context.Context) (metrics.OpKind, error) {
	return metrics.OpPublish, nil
}
func (refusedWorkload) Close() error { return nil }

// stuckWorkload ignores cancellation mid-step, simulating a hung driver.
type stuckWorkload struct{}

func (stuckWorkload) Connect(ctx context.Context) error { return nil }
func (stuckWorkload) Step(ctx context.Context) (metrics.OpKind, error) {
	time.Sleep(500 * time.Millisecond)
	return metrics.OpPublish, nil
}
func (stuckWorkload) Close() error { return nil }

func fastDevice() device.Config {
	return device.Config{ConnectRetries: 1, ConnectBackoff: time.Millisecond, MaxResets: 1, FlushEvery: 8}
}

func TestAllDevicesRunToCompletion(t *testing.T) {
	agg := metrics.NewAggregator()
	var started int32
	s := New(Config{
		Devices: 10,
		Device:  fastDevice(),
	}, agg, func(id int) (device.Workload, error) {
		atomic.AddInt32(&started, 1)
		return &finiteWorkload{n: 20}, nil
	})

	res, err := s.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Started != 10 || int(started) != 10 {
		t.Errorf("started %d devices (factory saw %d), want 10", res.Started, started)
	}
	if res.Aborted || res.DevicesFailed != 0 || res.Incomplete != 0 {
		t.Errorf("unexpected result %+v", res)
	}
	if s.Active() != 0 {
		t.Errorf("Active() = %d after drain, want 0", s.Active())
	}

	// Every operation of every device is accounted for exactly once.
	snap := agg.Snapshot()
	if snap.Total != 200 || snap.OK != 200 {
		t.Errorf("aggregate = %d/%d, want 200/200", snap.Total, snap.OK)
	}
}

func TestPhaseNotifications(t *testing.T) {
	var phases []Phase
	s := New(Config{
		Devices: 2,
		Device:  fastDevice(),
		Notify:  func(p Phase) { phases = append(phases, p) },
	}, metrics.NewAggregator(), func(id int) (device.Workload, error) {
		return &finiteWorkload{n: 1}, nil
	})
	if _, err := s.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	want := []Phase{PhaseRamp, PhaseSteady, PhaseDrain}
	if len(phases) != len(want) {
		t.Fatalf("phases = %v, want %v", phases, want)
	}
	for i := range want {
		if phases[i] != want[i] {
			t.Fatalf("phases = %v, want %v", phases, want)
		}
	}
}

func TestAbortRatio(t *testing.T) {
	s := New(Config{
		Devices:    10,
		AbortRatio: 0.3,
		Device:     fastDevice(),
	}, metrics.NewAggregator(), func(id int) (device.Workload, error) {
		return refusedWorkload{}, nil
	})

	res, err := s.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !res.Aborted {
		t.Fatal("run with every device failing did not abort")
	}
	if res.DevicesFailed < 3 {
		t.Errorf("aborted after %d failures, threshold is 3", res.DevicesFailed)
	}
}

// slowRefusedWorkload fails each connect attempt after a short delay, so
// replacement churn stays bounded within the test window.
type slowRefusedWorkload struct{}

func (slowRefusedWorkload) Connect(ctx context.Context) error {
	time.Sleep(10 * time.Millisecond)
	return adapter.Errf(adapter.Fatal, "not authorized")
}
func (slowRefusedWorkload) Step(ctx context.Context) (metrics.OpKind, error) {
	return metrics.OpPublish, nil
}
func (slowRefusedWorkload) Close() error { return nil }

func TestFailedDevicesAreReplacedInDurationMode(t *testing.T) {
	s := New(Config{
		Devices:    2,
		Duration:   100 * time.Millisecond,
		AbortRatio: 100, // out of reach, this run measures replacement
		Device:     fastDevice(),
	}, metrics.NewAggregator(), func(id int) (device.Workload, error) {
		return slowRefusedWorkload{}, nil
	})

	res, err := s.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Aborted {
		t.Fatal("run aborted below the failure threshold")
	}
	if res.Started <= 2 {
		t.Errorf("started %d devices, want replacements beyond the initial 2", res.Started)
	}
}

func TestDurationElapsesDuringStaggeredRamp(t *testing.T) {
	// Stagger times device count exceeds the run duration, so the deadline
	// fires while devices are still being launched. The run must stop then,
	// not wait for workloads that would never finish on their own.
	s := New(Config{
		Devices:         5,
		Stagger:         100 * time.Millisecond,
		Duration:        150 * time.Millisecond,
		ShutdownTimeout: time.Second,
		Device:          fastDevice(),
	}, metrics.NewAggregator(), func(id int) (device.Workload, error) {
		return &finiteWorkload{n: 1 << 30}, nil
	})

	start := time.Now()
	res, err := s.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("run took %s past a 150ms duration", elapsed)
	}
	if res.Aborted || res.DevicesFailed != 0 {
		t.Errorf("unexpected result %+v", res)
	}
	if res.Started >= 5 {
		t.Errorf("started %d devices, the ramp should stop at the deadline", res.Started)
	}
}

func TestReplacementFactoryErrorSurfaces(t *testing.T) {
	var calls int32
	s := New(Config{
		Devices:    1,
		Duration:   time.Second,
		AbortRatio: 100, // out of reach, the factory error must end the run
		Device:     fastDevice(),
	}, metrics.NewAggregator(), func(id int) (device.Workload, error) {
		if atomic.AddInt32(&calls, 1) > 1 {
			return nil, fmt.Errorf("no workload for replacement %d", id)
		}
		return refusedWorkload{}, nil
	})

	res, err := s.Run(context.Background())
	if err == nil {
		t.Fatal("replacement factory error did not surface from Run")
	}
	if res.Aborted {
		t.Error("configuration error reported as a failure-ratio abort")
	}
}

func TestDrainTimeoutCountsStragglers(t *testing.T) {
	agg := metrics.NewAggregator()
	s := New(Config{
		Devices:         1,
		Duration:        20 * time.Millisecond,
		ShutdownTimeout: 50 * time.Millisecond,
		Device:          fastDevice(),
	}, agg, func(id int) (device.Workload, error) {
		return stuckWorkload{}, nil
	})

	res, err := s.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Incomplete != 1 {
		t.Errorf("Incomplete = %d, want 1 abandoned device", res.Incomplete)
	}
	r := agg.Report("x", "m", "ingest", time.Now(), time.Second, 1, 0, false)
	if r.IncompleteShutdown != 1 {
		t.Errorf("report IncompleteShutdown = %d, want 1", r.IncompleteShutdown)
	}
}

func TestFactoryErrorStopsRun(t *testing.T) {
	s := New(Config{
		Devices: 4,
		Device:  fastDevice(),
	}, metrics.NewAggregator(), func(id int) (device.Workload, error) {
		if id == 2 {
			return nil, fmt.Errorf("no shard for device %d", id)
		}
		return &finiteWorkload{n: 1}, nil
	})

	if _, err := s.Run(context.Background()); err == nil {
		t.Fatal("factory error did not surface from Run")
	}
	if s.Active() != 0 {
		t.Errorf("Active() = %d after failed run, want 0", s.Active())
	}
}

func TestCancellationStopsPromptly(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := New(Config{
		Devices: 5,
		Device:  fastDevice(),
	}, metrics.NewAggregator(), func(id int) (device.Workload, error) {
		// Effectively unbounded; only cancellation can end this run.
		return &finiteWorkload{n: 1 << 30}, nil
	})

	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	res, err := s.Run(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("cancellation took %s", elapsed)
	}
	if res.Aborted {
		t.Error("cancellation must not count as an abort")
	}
	if res.DevicesFailed != 0 {
		t.Errorf("cancelled devices counted as failed: %d", res.DevicesFailed)
	}
}

func TestRejectsNonPositiveDeviceCount(t *testing.T) {
	s := New(Config{Devices: 0}, metrics.NewAggregator(), func(id int) (device.Workload, error) {
		return &finiteWorkload{}, nil
	})
	if _, err := s.Run(context.Background()); err == nil {
		t.Error("Run() accepted zero devices")
	}
}
