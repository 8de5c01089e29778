package bench

import (
	"fmt"
	"net/url"
	"time"

	"oidbs/internal/adapter"
	"oidbs/internal/device"
	"oidbs/internal/model"
)

// Workload kinds for a run.
const (
	WorkloadQuery  = "query"  // drive the model's query catalog
	WorkloadIngest = "ingest" // publish generator output directly
	WorkloadImport = "import" // publish a materialized dataset
)

// RunConfig is constructed once per invocation and read-only thereafter.
type RunConfig struct {
	Model    string
	Workload string

	IngestEndpoint string
	QueryEndpoint  string
	DataDir        string // dataset root for import

	Devices  int
	Duration time.Duration
	// Records caps the total published records for ingest runs; 0 means
	// duration-bounded.
	Records int64
	// RowsPerPublish batches that many CSV lines into one publish.
	RowsPerPublish int

	Stagger         time.Duration
	ShutdownTimeout time.Duration
	ConnectTimeout  time.Duration
	ConnectRetries  int
	ConnectBackoff  time.Duration
	MaxResets       int
	AbortRatio      float64
	FlushEvery      int

	// SetupSchema runs the model DDL against the query endpoint before
	// importing.
	SetupSchema bool
}

func (c RunConfig) withDefaults() RunConfig {
	if c.Devices <= 0 {
		c.Devices = 1
	}
	if c.RowsPerPublish <= 0 {
		c.RowsPerPublish = 1
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
	return c
}

func (c RunConfig) deviceConfig() device.Config {
	return device.Config{
		ConnectRetries: c.ConnectRetries,
		ConnectBackoff: c.ConnectBackoff,
		MaxResets:      c.MaxResets,
		FlushEvery:     c.FlushEvery,
	}
}

// resolve validates the config against the registry and resolves the
// endpoints to adapters. All configuration errors surface here, before any
// device starts.
func (c RunConfig) resolve(reg *model.Registry) (*resolved, error) {
	m, err := reg.Lookup(c.Model)
	if err != nil {
		return nil, err
	}
	r := &resolved{model: m}
	switch c.Workload {
	case WorkloadQuery:
		if len(m.Queries) == 0 {
			return nil, fmt.Errorf("model %s has no query catalog", m.Name)
		}
		r.querier, r.queryURL, err = adapter.QuerierFor(c.QueryEndpoint)
		if err != nil {
			return nil, err
		}
	case WorkloadIngest:
		if !m.CanGenerate() {
			return nil, fmt.Errorf("model %s has no generation spec", m.Name)
		}
		r.ingestor, r.ingestURL, err = adapter.IngestorFor(c.IngestEndpoint)
		if err != nil {
			return nil, err
		}
		if c.Duration <= 0 && c.Records <= 0 {
			return nil, fmt.Errorf("ingest workload needs a duration or a record target")
		}
	case WorkloadImport:
		if c.DataDir == "" {
			return nil, fmt.Errorf("import workload needs a dataset directory")
		}
		r.ingestor, r.ingestURL, err = adapter.IngestorFor(c.IngestEndpoint)
		if err != nil {
			return nil, err
		}
		if c.SetupSchema {
			r.querier, r.queryURL, err = adapter.QuerierFor(c.QueryEndpoint)
			if err != nil {
				return nil, fmt.Errorf("schema setup: %w", err)
			}
		}
	default:
		return nil, fmt.Errorf("unknown workload %q", c.Workload)
	}
	return r, nil
}

type resolved struct {
	model     *model.Model
	ingestor  adapter.Ingestor
	ingestURL *url.URL
	querier   adapter.Querier
	queryURL  *url.URL
}
