package gen

import (
	"fmt"
	"math/rand/v2"
	"time"

	"oidbs/internal/model"
)

// Range is a half-open window [Start, Start+Count) of the global row index
// space. Count < 0 streams forever (duration-bounded runs).
type Range struct {
	Start int64
	Count int64
}

// Unbounded streams from Start with no end.
func Unbounded(start int64) Range {
	return Range{Start: start, Count: -1}
}

// Partition splits total rows into n contiguous ranges. The first
// total%n ranges carry one extra row, so the union covers exactly
// [0, total) with no gaps or overlaps.
func Partition(total int64, n int) []Range {
	if n <= 0 {
		return nil
	}
	ranges := make([]Range, 0, n)
	base := total / int64(n)
	extra := total % int64(n)
	start := int64(0)
	for i := 0; i < n; i++ {
		count := base
		if int64(i) < extra {
			count++
		}
		ranges = append(ranges, Range{Start: start, Count: count})
		start += count
	}
	return ranges
}

// Stream lazily yields the records of one range. A Stream is consumed
// forward-only by a single Device; re-invoking Generate with the same range
// reproduces the same records.
type Stream struct {
	m    *model.Model
	next int64
	end  int64 // -1 when unbounded
}

// Generate returns the record stream for m over r. Deterministic: the same
// (model spec, range) always yields identical records.
func Generate(m *model.Model, r Range) (*Stream, error) {
	if !m.CanGenerate() {
		return nil, fmt.Errorf("model %s has no generation spec", m.Name)
	}
	end := int64(-1)
	if r.Count >= 0 {
		end = r.Start + r.Count
	}
	return &Stream{m: m, next: r.Start, end: end}, nil
}

// Next returns the next record, or false when the range is exhausted.
func (s *Stream) Next() (model.Record, bool) {
	if s.end >= 0 && s.next >= s.end {
		return model.Record{}, false
	}
	rec := Row(s.m, s.next)
	s.next++
	return rec, true
}

// Remaining returns how many rows are left, or -1 for unbounded streams.
func (s *Stream) Remaining() int64 {
	if s.end < 0 {
		return -1
	}
	return s.end - s.next
}

// Row materializes the record at global row index. Each row gets its own
// rng seeded from (spec seed, row), so rows are independent of generation
// order and of which Device produced them.
func Row(m *model.Model, row int64) model.Record {
	spec := m.Spec
	rng := rand.New(rand.NewPCG(spec.Seed, uint64(row)))
	values := make([]model.Value, len(spec.Columns))
	for i, cs := range spec.Columns {
		d := cs.Dist
		switch d.Kind {
		case model.DistSeq:
			v := row / d.Period
			if d.Card > 0 {
				v %= d.Card
			}
			values[i] = model.Value{Type: model.TypeInteger, I: v}
		case model.DistUniformInt:
			values[i] = model.Value{Type: model.TypeInteger, I: d.Lo + rng.Int64N(d.Hi-d.Lo)}
		case model.DistUniformFloat:
			values[i] = model.Value{Type: model.TypeFloat, F: d.LoF + rng.Float64()*(d.HiF-d.LoF)}
		case model.DistEnum:
			values[i] = model.Value{Type: model.TypeEnum, S: d.Values[rng.IntN(len(d.Values))]}
		case model.DistTimestamp:
			step := row / d.Period
			values[i] = model.Value{Type: model.TypeTimestamp, T: spec.Epoch.Add(time.Duration(step) * d.Stride)}
		case model.DistDerived:
			values[i] = d.Derive(rng, row, values[:i])
		}
	}
	return model.Record{Row: row, Values: values}
}
