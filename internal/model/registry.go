package model

import (
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Registry is the process-wide catalog of benchmark models. It is built
// once at startup and never mutated while a run is in flight.
type Registry struct {
	models map[string]*Model
}

// NewRegistry returns a registry preloaded with the built-in models.
func NewRegistry() *Registry {
	r := &Registry{models: map[string]*Model{}}
	// Built-ins are constructed from code, so a failure here is a bug.
	for _, m := range []*Model{
		PStations(DefaultPStationsParams()),
		CoinMiner(DefaultCoinMinerParams()),
	} {
		if err := r.add(m); err != nil {
			panic(err)
		}
	}
	return r
}

func (r *Registry) add(m *Model) error {
	if err := m.validate(); err != nil {
		return err
	}
	if _, dup := r.models[m.Name]; dup {
		return fmt.Errorf("duplicate model %q", m.Name)
	}
	r.models[m.Name] = m
	return nil
}

// Lookup returns the named model. Unknown names are configuration errors.
func (r *Registry) Lookup(name string) (*Model, error) {
	m, ok := r.models[name]
	if !ok {
		return nil, fmt.Errorf("unknown model %q (available: %s)", name, strings.Join(r.Names(), ", "))
	}
	return m, nil
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.models))
	for n := range r.models {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// LoadDir registers every model found under root. Each model is a directory
// containing a schema.sql and an optional queries.txt with "desc: sql"
// lines. Malformed input fails here, never mid-run.
func (r *Registry) LoadDir(root string) error {
	entries, err := os.ReadDir(root)
	if err != nil {
		return fmt.Errorf("read models dir: %w", err)
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(root, e.Name())
		schema, err := os.ReadFile(filepath.Join(dir, "schema.sql"))
		if err != nil {
			return fmt.Errorf("model %s: %w", e.Name(), err)
		}
		m := &Model{Name: e.Name(), Schema: string(schema)}
		m.Database, m.Table = ExtractTable(m.Schema)
		if qs, err := os.ReadFile(filepath.Join(dir, "queries.txt")); err == nil {
			m.Queries, err = ParseCatalog(string(qs))
			if err != nil {
				return fmt.Errorf("model %s: %w", e.Name(), err)
			}
		} else if !os.IsNotExist(err) {
			return fmt.Errorf("model %s: %w", e.Name(), err)
		}
		if err := r.add(m); err != nil {
			return err
		}
	}
	return nil
}

// ExtractTable pulls "db", "tab" out of a "create table db.tab (..." DDL
// statement. Both are empty when the statement does not qualify the table.
func ExtractTable(schema string) (database, table string) {
	lower := strings.ToLower(schema)
	idx := strings.Index(lower, "create table")
	if idx < 0 {
		return "", ""
	}
	rest := schema[idx+len("create table"):]
	paren := strings.IndexByte(rest, '(')
	if paren < 0 {
		return "", ""
	}
	name := strings.TrimSpace(rest[:paren])
	parts := strings.Split(name, ".")
	if len(parts) != 2 {
		return "", ""
	}
	return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
}

// ParseCatalog parses a query catalog of "description: sql" lines.
func ParseCatalog(text string) ([]Query, error) {
	var queries []Query
	for ln, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		idx := strings.IndexByte(line, ':')
		if idx < 0 {
			return nil, fmt.Errorf("query catalog line %d: missing \"desc: sql\" separator", ln+1)
		}
		q := Query{Desc: strings.TrimSpace(line[:idx]), SQL: strings.TrimSpace(line[idx+1:])}
		if q.Desc == "" || q.SQL == "" {
			return nil, fmt.Errorf("query catalog line %d: empty description or sql", ln+1)
		}
		queries = append(queries, q)
	}
	return queries, nil
}

// defaultEpoch anchors built-in timestamp columns; a fixed epoch keeps
// generated datasets byte-stable across runs.
var defaultEpoch = time.Date(2021, 1, 1, 0, 0, 1, 0, time.UTC)

const defaultSeed = 666666

// PStationsParams sizes the power-station fleet model.
type PStationsParams struct {
	Stations int64
	Sensors  int64
	Seed     uint64
	Epoch    time.Time
	Stride   time.Duration
}

func DefaultPStationsParams() PStationsParams {
	return PStationsParams{
		Stations: 5000,
		Sensors:  200,
		Seed:     defaultSeed,
		Epoch:    defaultEpoch,
		Stride:   time.Second,
	}
}

// PStations models a continuous power-station telemetry feed: every
// timestamp step each of Stations stations reports all of its Sensors
// sensors. sensor_kind cycles through 20 kinds and scales the value range.
func PStations(p PStationsParams) *Model {
	grid := p.Stations * p.Sensors
	cols := []ColumnSpec{
		{Column{"station_id", TypeInteger}, Dist{Kind: DistSeq, Period: p.Sensors, Card: p.Stations}},
		{Column{"sensor_id", TypeInteger}, Dist{Kind: DistSeq, Period: 1, Card: p.Sensors}},
		{Column{"sensor_kind", TypeInteger}, Dist{Kind: DistDerived, Derive: func(_ *rand.Rand, _ int64, prior []Value) Value {
			return Value{Type: TypeInteger, I: prior[1].I % 20}
		}}},
		{Column{"sensor_value", TypeFloat}, Dist{Kind: DistDerived, Derive: func(rng *rand.Rand, _ int64, prior []Value) Value {
			scale := float64(int64(1) << uint(prior[2].I))
			lo, hi := 10.0*scale, 50.0*scale
			return Value{Type: TypeFloat, F: float64(float32(lo + rng.Float64()*(hi-lo)))}
		}}},
		{Column{"ts", TypeTimestamp}, Dist{Kind: DistTimestamp, Period: grid, Stride: p.Stride}},
	}
	m := &Model{
		Name: "pstations",
		Spec: GenSpec{Seed: p.Seed, Epoch: p.Epoch, RowsPerStep: grid, Columns: cols},
		Schema: `create table benchmark.pstations
(
    station_id integer,
    sensor_id integer,
    sensor_kind integer,
    sensor_value real,
    ts timestamp
);`,
		Queries: []Query{
			{"point lookup", "select sensor_value from benchmark.pstations where station_id = 100 and sensor_id = 7 limit 1"},
			{"count all", "select count(sensor_value) from benchmark.pstations"},
			{"station scan", "select count(*) from benchmark.pstations where station_id = 2000"},
			{"kind average", "select sensor_kind, avg(sensor_value) from benchmark.pstations group by sensor_kind"},
			{"window max", "select max(sensor_value) from benchmark.pstations where ts >= '2021-01-01 00:00:01' and ts < '2021-01-01 00:01:01'"},
		},
	}
	for _, cs := range cols {
		m.Columns = append(m.Columns, cs.Column)
	}
	m.Database, m.Table = ExtractTable(m.Schema)
	return m
}

// CoinMinerParams sizes the mining-rig fleet model.
type CoinMinerParams struct {
	Miners int64
	Seed   uint64
	Epoch  time.Time
	Stride time.Duration
}

func DefaultCoinMinerParams() CoinMinerParams {
	return CoinMinerParams{
		Miners: 10000,
		Seed:   defaultSeed,
		Epoch:  defaultEpoch,
		Stride: 10 * time.Second,
	}
}

// CoinMiner models a fleet of mining rigs reporting status every stride.
func CoinMiner(p CoinMinerParams) *Model {
	firmware := []string{"1.0.2", "1.1.0", "2.0.1", "2.1.0"}
	locations := []string{"us-east", "us-west", "eu-central", "ap-south", "sa-east"}
	status := []string{"ok", "degraded", "offline"}
	cols := []ColumnSpec{
		{Column{"id", TypeInteger}, Dist{Kind: DistSeq, Period: 1, Card: p.Miners}},
		{Column{"name", TypeString}, Dist{Kind: DistDerived, Derive: func(_ *rand.Rand, _ int64, prior []Value) Value {
			return Value{Type: TypeString, S: fmt.Sprintf("miner-%06d", prior[0].I)}
		}}},
		{Column{"firmware_version", TypeEnum}, Dist{Kind: DistEnum, Values: firmware}},
		{Column{"location", TypeEnum}, Dist{Kind: DistEnum, Values: locations}},
		{Column{"pox", TypeInteger}, Dist{Kind: DistUniformInt, Lo: 0, Hi: 1 << 20}},
		{Column{"pox_status", TypeEnum}, Dist{Kind: DistEnum, Values: status}},
		{Column{"ts", TypeTimestamp}, Dist{Kind: DistTimestamp, Period: p.Miners, Stride: p.Stride}},
		{Column{"coins", TypeInteger}, Dist{Kind: DistUniformInt, Lo: 0, Hi: 100000}},
		{Column{"cpu_usage", TypeInteger}, Dist{Kind: DistUniformInt, Lo: 0, Hi: 101}},
		{Column{"mem_usage", TypeInteger}, Dist{Kind: DistUniformInt, Lo: 0, Hi: 1 << 16}},
	}
	m := &Model{
		Name: "coinminer",
		Spec: GenSpec{Seed: p.Seed, Epoch: p.Epoch, RowsPerStep: p.Miners, Columns: cols},
		Schema: `create table benchmark.coinminer
(
    id bigint,
    name varchar(64),
    firmware_version varchar(16),
    location varchar(32),
    pox integer,
    pox_status varchar(16),
    ts timestamp,
    coins integer,
    cpu_usage integer,
    mem_usage integer
);`,
		Queries: []Query{
			{"count all", "select count(id) from benchmark.coinminer"},
			{"degraded miners", "select count(*) from benchmark.coinminer where pox_status = 'degraded'"},
			{"hot rigs", "select count(*) from benchmark.coinminer where cpu_usage > 90"},
			{"coins by location", "select location, sum(coins) from benchmark.coinminer group by location"},
		},
	}
	for _, cs := range cols {
		m.Columns = append(m.Columns, cs.Column)
	}
	m.Database, m.Table = ExtractTable(m.Schema)
	return m
}

// Configure rebuilds a built-in model with operator-supplied parameters
// (num_stations, num_sensors, num_miners, seed). Must be called before any
// run starts; the registry is read-only afterwards.
func (r *Registry) Configure(name string, params map[string]int64) error {
	if len(params) == 0 {
		return nil
	}
	switch name {
	case "pstations":
		p := DefaultPStationsParams()
		if v, ok := params["num_stations"]; ok {
			p.Stations = v
		}
		if v, ok := params["num_sensors"]; ok {
			p.Sensors = v
		}
		if v, ok := params["seed"]; ok {
			p.Seed = uint64(v)
		}
		if p.Stations <= 0 || p.Sensors <= 0 {
			return fmt.Errorf("pstations: num_stations and num_sensors must be positive")
		}
		m := PStations(p)
		if err := m.validate(); err != nil {
			return err
		}
		r.models[name] = m
	case "coinminer":
		p := DefaultCoinMinerParams()
		if v, ok := params["num_miners"]; ok {
			p.Miners = v
		}
		if v, ok := params["seed"]; ok {
			p.Seed = uint64(v)
		}
		if p.Miners <= 0 {
			return fmt.Errorf("coinminer: num_miners must be positive")
		}
		m := CoinMiner(p)
		if err := m.validate(); err != nil {
			return err
		}
		r.models[name] = m
	default:
		return fmt.Errorf("model %q does not accept parameters", name)
	}
	return nil
}
