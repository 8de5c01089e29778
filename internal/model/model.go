package model

import (
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"
)

// ColumnType is the semantic type of a schema column.
type ColumnType int

const (
	TypeInteger ColumnType = iota
	TypeFloat
	TypeString
	TypeTimestamp
	TypeEnum
)

func (t ColumnType) String() string {
	switch t {
	case TypeInteger:
		return "integer"
	case TypeFloat:
		return "float"
	case TypeString:
		return "string"
	case TypeTimestamp:
		return "timestamp"
	case TypeEnum:
		return "enum"
	}
	return "unknown"
}

type Column struct {
	Name string
	Type ColumnType
}

// Value is a single generated cell. A small tagged union keeps the hot
// generation path free of interface boxing.
type Value struct {
	Type ColumnType
	I    int64
	F    float64
	S    string
	T    time.Time
}

const TimeLayout = "2006-01-02 15:04:05"

func (v Value) String() string {
	switch v.Type {
	case TypeInteger:
		return strconv.FormatInt(v.I, 10)
	case TypeFloat:
		return strconv.FormatFloat(v.F, 'g', -1, 32)
	case TypeString, TypeEnum:
		return v.S
	case TypeTimestamp:
		return v.T.Format(TimeLayout)
	}
	return ""
}

// Record is one row conforming to a model's schema. Row is the global row
// index it was generated from; identifying key columns derive from it, so
// disjoint generation ranges can never collide.
type Record struct {
	Row    int64
	Values []Value
}

// CSV renders the record as one comma-separated line without a trailing
// newline, the format the ingestion endpoints consume.
func (r Record) CSV() string {
	var b strings.Builder
	for i, v := range r.Values {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(v.String())
	}
	return b.String()
}

// AppendJSON appends the record as a single JSON object line.
func (r Record) AppendJSON(dst []byte, cols []Column) []byte {
	dst = append(dst, '{')
	for i, v := range r.Values {
		if i > 0 {
			dst = append(dst, ',')
		}
		dst = append(dst, '"')
		dst = append(dst, cols[i].Name...)
		dst = append(dst, '"', ':')
		switch v.Type {
		case TypeString, TypeEnum, TypeTimestamp:
			dst = strconv.AppendQuote(dst, v.String())
		default:
			dst = append(dst, v.String()...)
		}
	}
	dst = append(dst, '}')
	return dst
}

// DistKind selects how a column's values are drawn.
type DistKind int

const (
	// DistSeq derives the value from the row index: (row/Period) % Card.
	// Card == 0 means the counter never wraps. Key columns use this so that
	// two disjoint row ranges can never emit the same key.
	DistSeq DistKind = iota
	// DistUniformInt draws uniformly from [Lo, Hi).
	DistUniformInt
	// DistUniformFloat draws uniformly from [LoF, HiF).
	DistUniformFloat
	// DistEnum picks one of Values.
	DistEnum
	// DistTimestamp is Epoch + (row/Period) * Stride.
	DistTimestamp
	// DistDerived computes the value from the row index and the columns
	// generated before it.
	DistDerived
)

// Dist is the declared distribution for one column of a generation spec.
type Dist struct {
	Kind   DistKind
	Period int64
	Card   int64
	Lo, Hi int64
	LoF    float64
	HiF    float64
	Values []string
	Stride time.Duration
	Derive func(rng *rand.Rand, row int64, prior []Value) Value
}

type ColumnSpec struct {
	Column Column
	Dist   Dist
}

// GenSpec declares how records for a model are synthesized. RowsPerStep is
// the number of rows sharing one timestamp step (one "scan" of the device
// fleet in the IoT models).
type GenSpec struct {
	Seed        uint64
	Epoch       time.Time
	RowsPerStep int64
	Columns     []ColumnSpec
}

// Validate fails fast on malformed specs so generation can never die
// mid-stream.
func (s GenSpec) Validate() error {
	if len(s.Columns) == 0 {
		return fmt.Errorf("generation spec has no columns")
	}
	if s.RowsPerStep <= 0 {
		return fmt.Errorf("rows per step must be positive, got %d", s.RowsPerStep)
	}
	for _, cs := range s.Columns {
		d := cs.Dist
		name := cs.Column.Name
		switch d.Kind {
		case DistSeq:
			if d.Period <= 0 {
				return fmt.Errorf("column %s: sequence period must be positive", name)
			}
			if d.Card < 0 {
				return fmt.Errorf("column %s: sequence cardinality must not be negative", name)
			}
		case DistUniformInt:
			if d.Lo >= d.Hi {
				return fmt.Errorf("column %s: empty integer range [%d, %d)", name, d.Lo, d.Hi)
			}
		case DistUniformFloat:
			if d.LoF >= d.HiF {
				return fmt.Errorf("column %s: empty float range [%g, %g)", name, d.LoF, d.HiF)
			}
		case DistEnum:
			if len(d.Values) == 0 {
				return fmt.Errorf("column %s: empty enumeration", name)
			}
		case DistTimestamp:
			if d.Period <= 0 || d.Stride <= 0 {
				return fmt.Errorf("column %s: timestamp stride and period must be positive", name)
			}
		case DistDerived:
			if d.Derive == nil {
				return fmt.Errorf("column %s: derived column without derive function", name)
			}
		default:
			return fmt.Errorf("column %s: unknown distribution kind %d", name, d.Kind)
		}
	}
	return nil
}

// Query is one named entry of a model's query catalog.
type Query struct {
	Desc string
	SQL  string
}

// Model bundles a table schema, a generation spec and a query catalog.
// Immutable once registered.
type Model struct {
	Name     string
	Columns  []Column
	Spec     GenSpec
	Schema   string
	Database string
	Table    string
	Queries  []Query
}

// Topic is the publish topic the ingestion endpoints route to the model's
// table: /<database>/<table>.
func (m *Model) Topic() string {
	return "/" + m.Database + "/" + m.Table
}

// CanGenerate reports whether the model carries a generation spec. Models
// loaded from external directories may only ship a schema and a query
// catalog; those can be imported and benched but not synthesized.
func (m *Model) CanGenerate() bool {
	return len(m.Spec.Columns) > 0
}

func (m *Model) validate() error {
	if m.Name == "" {
		return fmt.Errorf("model without a name")
	}
	if m.CanGenerate() {
		if len(m.Columns) != len(m.Spec.Columns) {
			return fmt.Errorf("model %s: schema has %d columns but generation spec has %d",
				m.Name, len(m.Columns), len(m.Spec.Columns))
		}
		if err := m.Spec.Validate(); err != nil {
			return fmt.Errorf("model %s: %w", m.Name, err)
		}
	}
	if m.Database == "" || m.Table == "" {
		return fmt.Errorf("model %s: schema does not declare a database.table", m.Name)
	}
	return nil
}
