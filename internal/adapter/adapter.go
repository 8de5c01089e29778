// Package adapter defines the protocol adapter contracts the bench engine
// drives targets through. The core never inspects protocol bytes; each
// target system plugs in behind these interfaces, keyed by endpoint URI
// scheme.
package adapter

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// IngestConn is one physical connection to an ingestion endpoint. It is
// owned by exactly one Device and must never be shared.
type IngestConn interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Close() error
}

// Ingestor dials ingestion connections. clientID distinguishes the Devices
// of one run on the broker side.
type Ingestor interface {
	Connect(ctx context.Context, endpoint *url.URL, clientID string) (IngestConn, error)
}

// QueryConn is one physical connection to a SQL query endpoint. Execute
// returns only the row count; result decoding is not the benchmark's job.
type QueryConn interface {
	Execute(ctx context.Context, sql string) (rows int64, err error)
	Close() error
}

// Querier dials query connections.
type Querier interface {
	Connect(ctx context.Context, endpoint *url.URL) (QueryConn, error)
}

var (
	ingestors = map[string]Ingestor{}
	queriers  = map[string]Querier{}
)

// RegisterIngestor binds a URI scheme to an ingestion adapter. Called at
// startup, before any run; not safe for concurrent use.
func RegisterIngestor(scheme string, a Ingestor) {
	ingestors[scheme] = a
}

// RegisterQuerier binds a URI scheme to a query adapter.
func RegisterQuerier(scheme string, a Querier) {
	queriers[scheme] = a
}

// IngestorFor resolves an ingestion endpoint URI to its adapter. An unknown
// scheme or unparsable URI is a configuration error.
func IngestorFor(endpoint string) (Ingestor, *url.URL, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid ingestion endpoint %q: %w", endpoint, err)
	}
	a, ok := ingestors[u.Scheme]
	if !ok {
		return nil, nil, fmt.Errorf("no ingestion adapter for scheme %q (have: %s)",
			u.Scheme, schemes(ingestors))
	}
	return a, u, nil
}

// QuerierFor resolves a query endpoint URI to its adapter.
func QuerierFor(endpoint string) (Querier, *url.URL, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid query endpoint %q: %w", endpoint, err)
	}
	a, ok := queriers[u.Scheme]
	if !ok {
		return nil, nil, fmt.Errorf("no query adapter for scheme %q (have: %s)",
			u.Scheme, schemes(queriers))
	}
	return a, u, nil
}

func schemes[T any](m map[string]T) string {
	s := make([]string, 0, len(m))
	for k := range m {
		s = append(s, k)
	}
	sort.Strings(s)
	return strings.Join(s, ", ")
}
