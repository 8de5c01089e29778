// Package device implements the unit of concurrency: one simulated IoT
// endpoint bound to exactly one physical connection, run on its own
// goroutine so its blocking I/O can never stall another device.
package device

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"

	"oidbs/internal/adapter"
	"oidbs/internal/metrics"
)

// Workload binds a device to its operation stream and target connection.
// Connect may be called again after a reconnect; Step returns io.EOF once
// the device's quota is exhausted.
type Workload interface {
	Connect(ctx context.Context) error
	Step(ctx context.Context) (metrics.OpKind, error)
	Close() error
}

// Config is per-device policy. All knobs are operator-tunable; zero values
// take the defaults.
type Config struct {
	ConnectRetries int           // attempts before the device fails
	ConnectBackoff time.Duration // linear backoff between attempts
	MaxResets      int           // connection resets tolerated before failing
	FlushEvery     int           // samples accumulated between aggregator flushes
}

func (c Config) withDefaults() Config {
	if c.ConnectRetries <= 0 {
		c.ConnectRetries = 3
	}
	if c.ConnectBackoff <= 0 {
		c.ConnectBackoff = 200 * time.Millisecond
	}
	if c.MaxResets <= 0 {
		c.MaxResets = 3
	}
	if c.FlushEvery <= 0 {
		c.FlushEvery = 256
	}
	return c
}

// ExitKind says why a device's run loop returned.
type ExitKind int

const (
	// ExitDone: the workload quota is exhausted.
	ExitDone ExitKind = iota
	// ExitFailed: connect retries exhausted, too many resets, or a fatal
	// protocol error.
	ExitFailed
	// ExitCancelled: the run-level stop signal fired.
	ExitCancelled
)

type Exit struct {
	ID   int
	Kind ExitKind
	Err  error
}

type Device struct {
	ID  int
	UID string

	wl  Workload
	cfg Config
	agg *metrics.Aggregator
	acc *metrics.Accumulator
}

func New(id int, wl Workload, agg *metrics.Aggregator, cfg Config) *Device {
	return &Device{
		ID:  id,
		UID: uuid.NewString(),
		wl:  wl,
		cfg: cfg.withDefaults(),
		agg: agg,
		acc: metrics.NewAccumulator(),
	}
}

// Run drives the device until quota exhaustion, cancellation or failure.
// The connection is released and pending samples flushed on every exit
// path.
func (d *Device) Run(ctx context.Context) Exit {
	defer func() {
		d.wl.Close()
		d.flush()
	}()

	if err := d.connect(ctx); err != nil {
		if ctx.Err() != nil {
			return Exit{ID: d.ID, Kind: ExitCancelled, Err: ctx.Err()}
		}
		return Exit{ID: d.ID, Kind: ExitFailed, Err: err}
	}

	resets := 0
	sinceFlush := 0
	for {
		select {
		case <-ctx.Done():
			return Exit{ID: d.ID, Kind: ExitCancelled, Err: ctx.Err()}
		default:
		}

		start := time.Now()
		kind, err := d.wl.Step(ctx)
		latency := time.Since(start)

		if errors.Is(err, io.EOF) {
			return Exit{ID: d.ID, Kind: ExitDone}
		}
		if err != nil && ctx.Err() != nil {
			return Exit{ID: d.ID, Kind: ExitCancelled, Err: ctx.Err()}
		}

		sample := metrics.Sample{Kind: kind, Latency: latency, At: start}
		switch {
		case err == nil:
			sample.Outcome = metrics.OutcomeOK
		case adapter.ClassOf(err) == adapter.Protocol:
			// Retrying a rejected payload unmodified cannot change the
			// outcome; count it and move on.
			sample.Outcome = metrics.OutcomeProtocol
		case adapter.ClassOf(err) == adapter.Transient:
			sample.Outcome = metrics.OutcomeConnection
		default:
			sample.Outcome = metrics.OutcomeFatal
		}
		d.acc.Record(sample)
		sinceFlush++
		if sinceFlush >= d.cfg.FlushEvery {
			d.flush()
			sinceFlush = 0
		}

		if sample.Outcome == metrics.OutcomeFatal {
			return Exit{ID: d.ID, Kind: ExitFailed, Err: err}
		}
		if sample.Outcome == metrics.OutcomeConnection {
			resets++
			if resets > d.cfg.MaxResets {
				return Exit{ID: d.ID, Kind: ExitFailed, Err: err}
			}
			d.wl.Close()
			if rerr := d.connect(ctx); rerr != nil {
				if ctx.Err() != nil {
					return Exit{ID: d.ID, Kind: ExitCancelled, Err: ctx.Err()}
				}
				return Exit{ID: d.ID, Kind: ExitFailed, Err: rerr}
			}
		}
	}
}

// connect dials with bounded retry and linear backoff. A fatal adapter
// error (bad credentials) aborts immediately, no retry can help.
func (d *Device) connect(ctx context.Context) error {
	var lastErr error
	for attempt := 1; attempt <= d.cfg.ConnectRetries; attempt++ {
		err := d.wl.Connect(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if adapter.ClassOf(err) == adapter.Fatal {
			return err
		}
		if attempt < d.cfg.ConnectRetries {
			select {
			case <-time.After(time.Duration(attempt) * d.cfg.ConnectBackoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return lastErr
}

func (d *Device) flush() {
	if d.acc.Pending() > 0 {
		d.agg.Merge(d.acc)
	}
}
