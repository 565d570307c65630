package timeseries

import (
	"fmt"
	"iter"
	"sort"
	"time"

	"github.com/signalsfoundry/flightdata-analyzer/model"
)

// Store is the canonical, read-only representation of one mission's
// telemetry: records sorted by strictly increasing timestamp, with every
// column present for every record. A Store is built once by a validation
// pass and never mutated afterwards, so it is safe to share across
// concurrent readers.
//
// An empty Store is a valid zero-length mission.
type Store struct {
	times     []time.Time
	positions []model.Position
	columns   []string
	series    map[string][]model.Value
}

// New builds a Store from parallel slices. times must be strictly
// increasing; positions and every series must have the same length as times.
// The Store takes ownership of the provided slices.
func New(times []time.Time, positions []model.Position, series map[string][]model.Value) (*Store, error) {
	if len(positions) != len(times) {
		return nil, fmt.Errorf("timeseries: %d positions for %d timestamps", len(positions), len(times))
	}
	for i := 1; i < len(times); i++ {
		if !times[i].After(times[i-1]) {
			return nil, fmt.Errorf("timeseries: timestamps not strictly increasing at index %d (%v then %v)",
				i, times[i-1], times[i])
		}
	}

	columns := make([]string, 0, len(series))
	for col, vals := range series {
		if len(vals) != len(times) {
			return nil, fmt.Errorf("timeseries: column %q has %d values for %d timestamps", col, len(vals), len(times))
		}
		columns = append(columns, col)
	}
	sort.Strings(columns)

	if series == nil {
		series = make(map[string][]model.Value)
	}
	return &Store{
		times:     times,
		positions: positions,
		columns:   columns,
		series:    series,
	}, nil
}

// Empty returns a zero-length store.
func Empty() *Store {
	s, _ := New(nil, nil, nil)
	return s
}

// Len returns the number of records.
func (s *Store) Len() int { return len(s.times) }

// Columns returns the sorted non-core column names.
func (s *Store) Columns() []string {
	return append([]string(nil), s.columns...)
}

// HasColumn reports whether the store carries the named column.
func (s *Store) HasColumn(column string) bool {
	_, ok := s.series[column]
	return ok
}

// TimeAt returns the timestamp at index i.
func (s *Store) TimeAt(i int) time.Time { return s.times[i] }

// PositionAt returns the position fix at index i.
func (s *Store) PositionAt(i int) model.Position { return s.positions[i] }

// Value returns the named column's value at index i.
func (s *Store) Value(column string, i int) (model.Value, bool) {
	vals, ok := s.series[column]
	if !ok || i < 0 || i >= len(vals) {
		return model.Value{}, false
	}
	return vals[i], true
}

// RecordAt assembles the full record at index i. The returned Fields map is
// a fresh copy; callers may modify it freely.
func (s *Store) RecordAt(i int) (model.Record, bool) {
	if i < 0 || i >= len(s.times) {
		return model.Record{}, false
	}
	fields := make(map[string]model.Value, len(s.columns))
	for _, col := range s.columns {
		fields[col] = s.series[col][i]
	}
	return model.Record{
		Timestamp: s.times[i],
		Position:  s.positions[i],
		Fields:    fields,
	}, true
}

// TimeRange returns the first and last timestamps. ok is false for the
// empty store.
func (s *Store) TimeRange() (min, max time.Time, ok bool) {
	if len(s.times) == 0 {
		return time.Time{}, time.Time{}, false
	}
	return s.times[0], s.times[len(s.times)-1], true
}

// NearestIndex resolves t to the index of the record with the largest
// timestamp at or before t. Queries before the first record clamp to index
// 0 and queries past the last record clamp to the last index, so the result
// is always a valid index while ok is true. ok is false only for the empty
// store.
func (s *Store) NearestIndex(t time.Time) (int, bool) {
	if len(s.times) == 0 {
		return 0, false
	}
	i := sort.Search(len(s.times), func(i int) bool { return s.times[i].After(t) })
	if i == 0 {
		return 0, true
	}
	return i - 1, true
}

// ValueSeries returns a lazy (timestamp, value) sequence for the named
// column in timestamp order. Redacted values are passed through unfiltered;
// callers decide their treatment. The sequence is restartable: every range
// over it iterates from the start. An unknown column yields an empty
// sequence.
func (s *Store) ValueSeries(column string) iter.Seq2[time.Time, model.Value] {
	vals := s.series[column]
	return func(yield func(time.Time, model.Value) bool) {
		for i, v := range vals {
			if !yield(s.times[i], v) {
				return
			}
		}
	}
}
