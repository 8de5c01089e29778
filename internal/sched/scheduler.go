// Package sched realizes the configured concurrency level as a set of
// live Devices and manages their shared lifecycle: ramp-up, steady-state
// replacement, failure-ratio abort and bounded drain.
//
// Scheduling is preemptive: every Device runs on its own goroutine and
// blocks on real I/O, backed by OS threads via the runtime. There is no
// shared event loop a slow connection could stall.
package sched

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"oidbs/internal/device"
	"oidbs/internal/metrics"
)

// Phase notifications let the orchestrator track the run state machine
// without polling.
type Phase int

const (
	PhaseRamp Phase = iota
	PhaseSteady
	PhaseDrain
)

type Config struct {
	// Devices is the target concurrency.
	Devices int
	// Stagger is the fixed inter-start delay during ramp-up; 0 starts all
	// devices at once.
	Stagger time.Duration
	// Duration bounds the run by wall clock. 0 runs until every workload
	// is exhausted.
	Duration time.Duration
	// ShutdownTimeout bounds the drain; devices still holding their
	// connection after it are abandoned and reported, not waited for.
	ShutdownTimeout time.Duration
	// AbortRatio aborts the whole run once failed devices exceed this
	// fraction of the target concurrency.
	AbortRatio float64
	// Device is the per-device policy.
	Device device.Config
	// Notify, when set, receives phase transitions.
	Notify func(Phase)
}

func (c Config) withDefaults() Config {
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
	if c.AbortRatio <= 0 {
		c.AbortRatio = 0.5
	}
	return c
}

// WorkloadFactory builds the workload for one device slot. Called once per
// started device, including replacements, with a fresh sequential id.
type WorkloadFactory func(id int) (device.Workload, error)

// Result is what the scheduler hands back to the orchestrator at drain.
type Result struct {
	Aborted       bool
	DevicesFailed int
	Started       int
	Incomplete    int
}

type Scheduler struct {
	cfg     Config
	agg     *metrics.Aggregator
	factory WorkloadFactory

	active int64 // atomic; externally observable device count
}

func New(cfg Config, agg *metrics.Aggregator, factory WorkloadFactory) *Scheduler {
	return &Scheduler{cfg: cfg.withDefaults(), agg: agg, factory: factory}
}

// Active returns the number of devices currently holding a connection or
// running their loop.
func (s *Scheduler) Active() int {
	return int(atomic.LoadInt64(&s.active))
}

// Run executes the full device lifecycle and blocks until drain finishes.
func (s *Scheduler) Run(ctx context.Context) (Result, error) {
	if s.cfg.Devices <= 0 {
		return Result{}, fmt.Errorf("device count must be positive, got %d", s.cfg.Devices)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if s.cfg.Duration > 0 {
		// Level-triggered stop condition: a deadline that elapses during a
		// long staggered ramp still ends the run before the steady loop.
		var expire context.CancelFunc
		runCtx, expire = context.WithTimeout(runCtx, s.cfg.Duration)
		defer expire()
	}

	// Exits are buffered so a device can always report and terminate even
	// when the control loop has moved on to draining.
	exits := make(chan device.Exit, s.cfg.Devices)
	var wg sync.WaitGroup
	nextID := 0
	running := 0
	res := Result{}

	launch := func() error {
		wl, err := s.factory(nextID)
		if err != nil {
			return err
		}
		d := device.New(nextID, wl, s.agg, s.cfg.Device)
		nextID++
		running++
		res.Started++
		wg.Add(1)
		atomic.AddInt64(&s.active, 1)
		go func() {
			e := d.Run(runCtx)
			atomic.AddInt64(&s.active, -1)
			select {
			case exits <- e:
			default:
				// Buffer full can only happen after drain started
				// replacing reads with the drain select below; the exit
				// is still accounted for through the waitgroup.
			}
			wg.Done()
		}()
		return nil
	}

	s.notify(PhaseRamp)
	abortAfter := int(s.cfg.AbortRatio * float64(s.cfg.Devices))
	if abortAfter < 1 {
		abortAfter = 1
	}

	// Factory errors are configuration-level: stop launching, drain what
	// already started and surface the error, never a failure-ratio abort.
	var runErr error

ramp:
	for i := 0; i < s.cfg.Devices; i++ {
		if err := launch(); err != nil {
			runErr = err
			break ramp
		}
		if s.cfg.Stagger > 0 && i < s.cfg.Devices-1 {
			select {
			case <-time.After(s.cfg.Stagger):
			case e := <-exits:
				running--
				if s.handleExit(e, &res) >= abortAfter {
					res.Aborted = true
					break ramp
				}
			case <-runCtx.Done():
				break ramp
			}
		}
	}

	if runErr == nil && !res.Aborted && runCtx.Err() == nil {
		s.notify(PhaseSteady)
	steady:
		for running > 0 {
			select {
			case e := <-exits:
				running--
				if s.handleExit(e, &res) >= abortAfter {
					res.Aborted = true
					break steady
				}
				// Keep concurrency at target while the stop condition has
				// not been reached. Only duration-bounded runs replace:
				// finite workloads that completed have nothing left to do.
				if e.Kind == device.ExitFailed && s.cfg.Duration > 0 {
					if err := launch(); err != nil {
						runErr = err
						break steady
					}
				}
			case <-runCtx.Done():
				break steady
			}
		}
	}

	s.notify(PhaseDrain)
	cancel()
	res.Incomplete = s.drain(&wg, exits)
	if res.Incomplete > 0 {
		s.agg.AddIncompleteShutdown(uint64(res.Incomplete))
	}
	return res, runErr
}

// handleExit updates failure accounting and returns the failed-device
// count for the abort check.
func (s *Scheduler) handleExit(e device.Exit, res *Result) int {
	if e.Kind == device.ExitFailed {
		res.DevicesFailed++
	}
	return res.DevicesFailed
}

// drain waits for all devices to finish, bounded by the shutdown timeout.
// Returns how many devices were abandoned still active.
func (s *Scheduler) drain(wg *sync.WaitGroup, exits chan device.Exit) int {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	timer := time.NewTimer(s.cfg.ShutdownTimeout)
	defer timer.Stop()
	for {
		select {
		case <-done:
			return 0
		case <-exits:
			// Discard; accounting already happened in the control loop or
			// does not matter past the stop condition.
		case <-timer.C:
			return s.Active()
		}
	}
}

func (s *Scheduler) notify(p Phase) {
	if s.cfg.Notify != nil {
		s.cfg.Notify(p)
	}
}
