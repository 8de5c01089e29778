package gen

import (
	"fmt"
	"testing"

	"oidbs/internal/model"
)

func testModel(t *testing.T) *model.Model {
	t.Helper()
	m, err := model.NewRegistry().Lookup("pstations")
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func collect(t *testing.T, m *model.Model, r Range) []model.Record {
	t.Helper()
	s, err := Generate(m, r)
	if err != nil {
		t.Fatal(err)
	}
	var recs []model.Record
	for {
		rec, ok := s.Next()
		if !ok {
			return recs
		}
		recs = append(recs, rec)
	}
}

func TestGenerateDeterministic(t *testing.T) {
	m := testModel(t)
	r := Range{Start: 123, Count: 500}

	a := collect(t, m, r)
	b := collect(t, m, r)
	if len(a) != 500 || len(b) != 500 {
		t.Fatalf("got %d and %d records, want 500", len(a), len(b))
	}
	for i := range a {
		if a[i].CSV() != b[i].CSV() {
			t.Fatalf("row %d differs between runs:\n%s\n%s", i, a[i].CSV(), b[i].CSV())
		}
	}
}

func TestGenerateOrderIndependent(t *testing.T) {
	m := testModel(t)

	// A row's content depends only on its global index, not on the range
	// it was produced through.
	whole := collect(t, m, Range{Start: 0, Count: 100})
	tail := collect(t, m, Range{Start: 60, Count: 40})
	for i, rec := range tail {
		if rec.CSV() != whole[60+i].CSV() {
			t.Fatalf("row %d: split range yields %s, whole range yields %s",
				60+i, rec.CSV(), whole[60+i].CSV())
		}
	}
}

func TestPartitionExact(t *testing.T) {
	ranges := Partition(1000, 4)
	if len(ranges) != 4 {
		t.Fatalf("got %d ranges, want 4", len(ranges))
	}
	var total int64
	next := int64(0)
	for i, r := range ranges {
		if r.Start != next {
			t.Errorf("range %d starts at %d, want %d", i, r.Start, next)
		}
		if r.Count != 250 {
			t.Errorf("range %d has %d rows, want 250", i, r.Count)
		}
		next = r.Start + r.Count
		total += r.Count
	}
	if total != 1000 {
		t.Errorf("partitions cover %d rows, want 1000", total)
	}
}

func TestPartitionRemainder(t *testing.T) {
	ranges := Partition(10, 3)
	counts := []int64{4, 3, 3}
	next := int64(0)
	for i, r := range ranges {
		if r.Count != counts[i] || r.Start != next {
			t.Errorf("range %d = %+v, want start %d count %d", i, r, next, counts[i])
		}
		next += counts[i]
	}
}

func TestDisjointRangesDisjointKeys(t *testing.T) {
	m := testModel(t)

	// Identifying key = (station_id, sensor_id, ts); derived from the row
	// index, so disjoint ranges must never collide.
	seen := map[string]int64{}
	for _, r := range Partition(4000, 4) {
		for _, rec := range collect(t, m, r) {
			key := fmt.Sprintf("%d|%d|%s",
				rec.Values[0].I, rec.Values[1].I, rec.Values[4].String())
			if prev, dup := seen[key]; dup {
				t.Fatalf("key %s produced by rows %d and %d", key, prev, rec.Row)
			}
			seen[key] = rec.Row
		}
	}
	if len(seen) != 4000 {
		t.Errorf("got %d distinct keys, want 4000", len(seen))
	}
}

func TestPStationsSemantics(t *testing.T) {
	m := testModel(t)

	for _, rec := range collect(t, m, Range{Start: 0, Count: 2000}) {
		stationID := rec.Values[0].I
		sensorID := rec.Values[1].I
		kind := rec.Values[2].I
		value := rec.Values[3].F

		if kind != sensorID%20 {
			t.Fatalf("row %d: sensor_kind = %d, want sensor_id %% 20 = %d",
				rec.Row, kind, sensorID%20)
		}
		scale := float64(int64(1) << uint(kind))
		lo, hi := 10.0*scale, 50.0*scale
		// Values are rounded to float32 precision, so hi itself can appear.
		if value < lo || value > hi {
			t.Fatalf("row %d: sensor_value %g outside [%g, %g]", rec.Row, value, lo, hi)
		}
		if stationID < 0 || stationID >= 5000 {
			t.Fatalf("row %d: station_id %d out of range", rec.Row, stationID)
		}
	}
}

func TestUnboundedStream(t *testing.T) {
	m := testModel(t)
	s, err := Generate(m, Unbounded(1 << 40))
	if err != nil {
		t.Fatal(err)
	}
	if s.Remaining() != -1 {
		t.Errorf("Remaining() = %d for unbounded stream, want -1", s.Remaining())
	}
	for i := 0; i < 1000; i++ {
		rec, ok := s.Next()
		if !ok {
			t.Fatal("unbounded stream ended")
		}
		if rec.Row != int64(1<<40)+int64(i) {
			t.Fatalf("row index %d, want %d", rec.Row, int64(1<<40)+int64(i))
		}
	}
}

func TestGenerateNeedsSpec(t *testing.T) {
	m := &model.Model{Name: "external"}
	if _, err := Generate(m, Range{Count: 1}); err == nil {
		t.Error("Generate() accepted a model without a generation spec")
	}
}
