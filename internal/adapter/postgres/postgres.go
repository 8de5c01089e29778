// Package postgres runs benchmark queries over the PostgreSQL wire
// protocol via pgx. Both plain PostgreSQL/TimescaleDB and IoT databases
// exposing a pg-compatible endpoint are reachable through it.
package postgres

import (
	"context"
	"errors"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"oidbs/internal/adapter"
)

const closeTimeout = 5 * time.Second

// Querier implements adapter.Querier. One pgx.Conn per Device; no pooling,
// a pool would break the one-physical-connection-per-Device invariant.
type Querier struct{}

func (Querier) Connect(ctx context.Context, endpoint *url.URL) (adapter.QueryConn, error) {
	cfg, err := pgx.ParseConfig(endpoint.String())
	if err != nil {
		return nil, adapter.Errf(adapter.Fatal, "parse postgres endpoint: %v", err)
	}
	c, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		return nil, adapter.Errf(classify(err), "postgres connect: %v", err)
	}
	return &conn{c: c}, nil
}

type conn struct {
	c *pgx.Conn
}

func (q *conn) Execute(ctx context.Context, sql string) (int64, error) {
	rows, err := q.c.Query(ctx, sql)
	if err != nil {
		return 0, adapter.Errf(classify(err), "query: %v", err)
	}
	var n int64
	for rows.Next() {
		n++
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, adapter.Errf(classify(err), "query: %v", err)
	}
	return n, nil
}

func (q *conn) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	return q.c.Close(ctx)
}

// classify maps pg wire errors onto the adapter taxonomy by SQLSTATE
// class: 28 (auth) is fatal, 08 (connection) is transient, syntax and data
// errors are protocol errors.
func classify(err error) adapter.Class {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case strings.HasPrefix(pgErr.Code, "28"):
			return adapter.Fatal
		case strings.HasPrefix(pgErr.Code, "08"):
			return adapter.Transient
		default:
			return adapter.Protocol
		}
	}
	var ne net.Error
	if errors.As(err, &ne) || errors.Is(err, context.DeadlineExceeded) {
		return adapter.Transient
	}
	if pgconn.Timeout(err) {
		return adapter.Transient
	}
	return adapter.Transient
}
