// Package dummy is an in-process synthetic target speaking both adapter
// contracts. It exists for smoke-testing the bench engine itself without a
// live database: dummy://?latency=10ms&reject_every=3&reset_after=100.
package dummy

import (
	"context"
	"math/rand/v2"
	"net/url"
	"strconv"
	"time"

	"oidbs/internal/adapter"
)

// Options are parsed from the endpoint's query parameters.
type Options struct {
	// Latency is the simulated round-trip time; Jitter adds up to that
	// much uniformly on top.
	Latency time.Duration
	Jitter  time.Duration
	// RejectEvery makes every Nth operation fail with a protocol error.
	RejectEvery int
	// ResetAfter injects a connection reset after N operations on one
	// connection. 0 disables.
	ResetAfter int
	// FailAuth refuses every connection attempt with a fatal error.
	FailAuth bool
	// Rows is the row count reported for successful queries.
	Rows int64
}

func ParseOptions(endpoint *url.URL) (Options, error) {
	o := Options{Latency: 10 * time.Millisecond, Rows: 1}
	q := endpoint.Query()
	var err error
	if v := q.Get("latency"); v != "" {
		if o.Latency, err = time.ParseDuration(v); err != nil {
			return o, adapter.Errf(adapter.Fatal, "dummy latency: %v", err)
		}
	}
	if v := q.Get("jitter"); v != "" {
		if o.Jitter, err = time.ParseDuration(v); err != nil {
			return o, adapter.Errf(adapter.Fatal, "dummy jitter: %v", err)
		}
	}
	if v := q.Get("reject_every"); v != "" {
		if o.RejectEvery, err = strconv.Atoi(v); err != nil {
			return o, adapter.Errf(adapter.Fatal, "dummy reject_every: %v", err)
		}
	}
	if v := q.Get("reset_after"); v != "" {
		if o.ResetAfter, err = strconv.Atoi(v); err != nil {
			return o, adapter.Errf(adapter.Fatal, "dummy reset_after: %v", err)
		}
	}
	if v := q.Get("rows"); v != "" {
		if o.Rows, err = strconv.ParseInt(v, 10, 64); err != nil {
			return o, adapter.Errf(adapter.Fatal, "dummy rows: %v", err)
		}
	}
	o.FailAuth = q.Get("fail_auth") == "true"
	return o, nil
}

type Ingestor struct{}

func (Ingestor) Connect(ctx context.Context, endpoint *url.URL, clientID string) (adapter.IngestConn, error) {
	o, err := ParseOptions(endpoint)
	if err != nil {
		return nil, err
	}
	if o.FailAuth {
		return nil, adapter.Errf(adapter.Fatal, "dummy: not authorized")
	}
	return &conn{opts: o}, nil
}

type Querier struct{}

func (Querier) Connect(ctx context.Context, endpoint *url.URL) (adapter.QueryConn, error) {
	o, err := ParseOptions(endpoint)
	if err != nil {
		return nil, err
	}
	if o.FailAuth {
		return nil, adapter.Errf(adapter.Fatal, "dummy: not authorized")
	}
	return &conn{opts: o}, nil
}

// conn serves both contracts; ops counts operations on this connection
// only, so reset/reject cadences restart on reconnect like they would on a
// fresh socket.
type conn struct {
	opts   Options
	ops    int
	closed bool
}

func (c *conn) step(ctx context.Context) error {
	if c.closed {
		return adapter.Errf(adapter.Transient, "dummy: use of closed connection")
	}
	c.ops++
	d := c.opts.Latency
	if c.opts.Jitter > 0 {
		d += time.Duration(rand.Int64N(int64(c.opts.Jitter)))
	}
	if d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return adapter.Errf(adapter.Transient, "dummy: %v", ctx.Err())
		}
	}
	if c.opts.ResetAfter > 0 && c.ops > c.opts.ResetAfter {
		c.closed = true
		return adapter.Errf(adapter.Transient, "dummy: connection reset by peer")
	}
	if c.opts.RejectEvery > 0 && c.ops%c.opts.RejectEvery == 0 {
		return adapter.Errf(adapter.Protocol, "dummy: payload rejected")
	}
	return nil
}

func (c *conn) Publish(ctx context.Context, topic string, payload []byte) error {
	return c.step(ctx)
}

func (c *conn) Execute(ctx context.Context, sql string) (int64, error) {
	if err := c.step(ctx); err != nil {
		return 0, err
	}
	return c.opts.Rows, nil
}

func (c *conn) Close() error {
	c.closed = true
	return nil
}
