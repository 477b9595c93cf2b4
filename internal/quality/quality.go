// Package quality scores observation tables: missingness, imputation
// provenance counts and descriptive statistics per station and variable.
// Scoring never modifies the table and can run between any two stages.
package quality

import (
	"math"
	"sort"

	"github.com/lox/stanhopewx/internal/obs"
)

// AllStations labels the per-variable roll-up computed over every station.
const AllStations obs.Station = "ALL_STATIONS"

// Record is one quality-report row for a (station, variable) pair.
type Record struct {
	Station           obs.Station
	Column            string
	TotalRows         int
	MissingCount      int
	MissingPercent    float64
	OriginalCount     int
	InterpolatedCount int
	FilledCount       int
	CalculatedCount   int
	TotalImputed      int
	ImputationPercent float64
	Mean              obs.Value
	Median            obs.Value
	Min               obs.Value
	Max               obs.Value
	Q1                obs.Value
	Q3                obs.Value
	IQR               obs.Value
}

// Score produces one Record per (station, variable), stations in sorted
// order and variables in column order, followed by an AllStations roll-up
// per variable. Provenance counts come from the flag column when the
// variable has one; otherwise every present value counts as original.
func Score(t *obs.Table) []Record {
	stations := t.StationList()
	sort.Slice(stations, func(i, j int) bool { return stations[i] < stations[j] })

	var records []Record
	for _, station := range stations {
		rows := t.StationRows(station)
		for _, s := range t.Series {
			records = append(records, score(station, s, rows))
		}
	}

	all := make([]int, t.Len())
	for i := range all {
		all[i] = i
	}
	for _, s := range t.Series {
		records = append(records, score(AllStations, s, all))
	}
	return records
}

func score(station obs.Station, s *obs.Series, rows []int) Record {
	r := Record{Station: station, Column: s.Name, TotalRows: len(rows)}

	for _, i := range rows {
		if !s.Values[i].Valid {
			r.MissingCount++
		}
	}
	r.MissingPercent = round2(pct(r.MissingCount, r.TotalRows))

	if s.HasFlags() {
		for _, i := range rows {
			switch s.Flags[i] {
			case obs.FlagOriginal:
				r.OriginalCount++
			case obs.FlagInterpolated:
				r.InterpolatedCount++
			case obs.FlagNeighborFilled:
				r.FilledCount++
			case obs.FlagDerived:
				r.CalculatedCount++
			}
		}
		r.TotalImputed = r.InterpolatedCount + r.FilledCount + r.CalculatedCount
	} else {
		r.OriginalCount = r.TotalRows - r.MissingCount
	}
	r.ImputationPercent = round2(pct(r.TotalImputed, r.TotalRows))

	vals := make([]float64, 0, len(rows))
	for _, i := range rows {
		if s.Values[i].Valid {
			vals = append(vals, s.Values[i].Float64)
		}
	}
	r.Mean, r.Median, r.Min, r.Max, r.Q1, r.Q3, r.IQR = describe(vals)
	return r
}

// describe computes the report statistics over present values, every one of
// them missing when vals is empty.
func describe(vals []float64) (mean, median, minV, maxV, q1, q3, iqr obs.Value) {
	if len(vals) == 0 {
		return
	}
	sorted := make([]float64, len(vals))
	copy(sorted, vals)
	sort.Float64s(sorted)

	sum := 0.0
	for _, v := range sorted {
		sum += v
	}
	rawQ1 := quantile(sorted, 0.25)
	rawQ3 := quantile(sorted, 0.75)

	mean = obs.Float(round2(sum / float64(len(sorted))))
	median = obs.Float(round2(quantile(sorted, 0.5)))
	minV = obs.Float(round2(sorted[0]))
	maxV = obs.Float(round2(sorted[len(sorted)-1]))
	q1 = obs.Float(round2(rawQ1))
	q3 = obs.Float(round2(rawQ3))
	iqr = obs.Float(round2(rawQ3 - rawQ1))
	return
}

// quantile linearly interpolates at position q*(n-1) of an ascending slice.
func quantile(sorted []float64, q float64) float64 {
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	if lo >= len(sorted)-1 {
		return sorted[len(sorted)-1]
	}
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[lo+1]-sorted[lo])*frac
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func pct(part, whole int) float64 {
	if whole == 0 {
		return 0
	}
	return float64(part) / float64(whole) * 100
}
