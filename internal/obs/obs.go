// Package obs defines the observation table that every pipeline stage
// consumes and produces: rows of (station, UTC timestamp) pairs with an
// open-ended set of numeric variable columns, plus optional per-value
// imputation provenance.
package obs

import (
	"database/sql"
	"sort"
	"time"
)

// Station identifies a physical sensor site by name.
type Station string

// Kind classifies a variable for aggregation. The loader assigns kinds from
// the canonical registry; downstream stages switch on Kind and never inspect
// column names.
type Kind int

const (
	KindGeneral   Kind = iota // arithmetic mean
	KindGust                  // maximum
	KindRain                  // sum
	KindDirection             // circular mean
)

// Flag records how a value was obtained.
type Flag int8

const (
	FlagOriginal       Flag = 0
	FlagInterpolated   Flag = 1
	FlagNeighborFilled Flag = 2
	FlagDerived        Flag = 3
)

// Value is an optional numeric reading. Valid=false means missing.
type Value = sql.NullFloat64

// Float wraps a present value.
func Float(v float64) Value {
	return Value{Float64: v, Valid: true}
}

// Series is one variable column, parallel to the table's rows.
// Flags is nil until the imputation engine adds provenance.
type Series struct {
	Name   string
	Kind   Kind
	Values []Value
	Flags  []Flag
}

// MissingCount returns the number of missing values.
func (s *Series) MissingCount() int {
	n := 0
	for _, v := range s.Values {
		if !v.Valid {
			n++
		}
	}
	return n
}

// HasFlags reports whether the series carries provenance.
func (s *Series) HasFlags() bool {
	return s.Flags != nil
}

func (s *Series) clone(n int) *Series {
	out := &Series{Name: s.Name, Kind: s.Kind, Values: make([]Value, n)}
	copy(out.Values, s.Values)
	if s.Flags != nil {
		out.Flags = make([]Flag, n)
		copy(out.Flags, s.Flags)
	}
	return out
}

// Table holds observations row-aligned across all columns: row i is the
// reading of every variable at Stations[i]/Times[i]. Timestamps are UTC.
type Table struct {
	Times    []time.Time
	Stations []Station
	Series   []*Series
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{}
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.Times)
}

// Clone returns a deep copy. Stages that transform a table clone it first;
// a table handed to the next stage is never aliased.
func (t *Table) Clone() *Table {
	n := t.Len()
	out := &Table{
		Times:    make([]time.Time, n),
		Stations: make([]Station, n),
		Series:   make([]*Series, len(t.Series)),
	}
	copy(out.Times, t.Times)
	copy(out.Stations, t.Stations)
	for i, s := range t.Series {
		out.Series[i] = s.clone(n)
	}
	return out
}

// SeriesByName returns the named column, or nil.
func (t *Table) SeriesByName(name string) *Series {
	for _, s := range t.Series {
		if s.Name == name {
			return s
		}
	}
	return nil
}

// AddSeries appends a new column sized to the current row count, with every
// value missing, and returns it. Adding a duplicate name returns the
// existing column.
func (t *Table) AddSeries(name string, kind Kind) *Series {
	if s := t.SeriesByName(name); s != nil {
		return s
	}
	s := &Series{Name: name, Kind: kind, Values: make([]Value, t.Len())}
	t.Series = append(t.Series, s)
	return s
}

// AppendRow adds a row with every variable missing and returns its index.
func (t *Table) AppendRow(ts time.Time, station Station) int {
	t.Times = append(t.Times, ts.UTC())
	t.Stations = append(t.Stations, station)
	for _, s := range t.Series {
		s.Values = append(s.Values, Value{})
		if s.Flags != nil {
			s.Flags = append(s.Flags, FlagOriginal)
		}
	}
	return t.Len() - 1
}

// StationList returns the distinct stations in first-appearance order.
func (t *Table) StationList() []Station {
	seen := make(map[Station]bool)
	var out []Station
	for _, st := range t.Stations {
		if !seen[st] {
			seen[st] = true
			out = append(out, st)
		}
	}
	return out
}

// StationRows returns the row indices belonging to station, in table order.
func (t *Table) StationRows(station Station) []int {
	var rows []int
	for i, st := range t.Stations {
		if st == station {
			rows = append(rows, i)
		}
	}
	return rows
}

// SortByStationTime stably sorts rows by (station, timestamp) in place.
// The imputation engine and the aggregators require this ordering.
func (t *Table) SortByStationTime() {
	n := t.Len()
	perm := make([]int, n)
	for i := range perm {
		perm[i] = i
	}
	sort.SliceStable(perm, func(a, b int) bool {
		i, j := perm[a], perm[b]
		if t.Stations[i] != t.Stations[j] {
			return t.Stations[i] < t.Stations[j]
		}
		return t.Times[i].Before(t.Times[j])
	})
	t.applyPerm(perm)
}

// SortByTime stably sorts rows by timestamp only.
func (t *Table) SortByTime() {
	n := t.Len()
	perm := make([]int, n)
	for i := range perm {
		perm[i] = i
	}
	sort.SliceStable(perm, func(a, b int) bool {
		return t.Times[perm[a]].Before(t.Times[perm[b]])
	})
	t.applyPerm(perm)
}

// applyPerm rebuilds the table using the given row indices. perm may be
// shorter than the current row count, which drops the omitted rows.
func (t *Table) applyPerm(perm []int) {
	n := len(perm)
	times := make([]time.Time, n)
	stations := make([]Station, n)
	for i, p := range perm {
		times[i] = t.Times[p]
		stations[i] = t.Stations[p]
	}
	t.Times = times
	t.Stations = stations
	for _, s := range t.Series {
		values := make([]Value, n)
		for i, p := range perm {
			values[i] = s.Values[p]
		}
		s.Values = values
		if s.Flags != nil {
			flags := make([]Flag, n)
			for i, p := range perm {
				flags[i] = s.Flags[p]
			}
			s.Flags = flags
		}
	}
}

// DropRows removes the rows whose indices are marked true in drop,
// preserving order.
func (t *Table) DropRows(drop []bool) {
	n := t.Len()
	keep := make([]int, 0, n)
	for i := 0; i < n; i++ {
		if !drop[i] {
			keep = append(keep, i)
		}
	}
	if len(keep) == n {
		return
	}
	t.applyPerm(keep)
}
