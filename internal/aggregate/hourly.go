// Package aggregate collapses cleaned observation tables into hourly and
// daily summaries. Aggregation is chosen by each column's Kind: totals are
// summed, gusts take the maximum, wind directions average on the circle,
// everything else takes the arithmetic mean.
package aggregate

import (
	"time"

	"github.com/lox/stanhopewx/internal/obs"
)

// maxHourlyOffset is how far past the hour a reading may land and still
// count toward that hour's bucket.
const maxHourlyOffset = 30 * time.Minute

// Hourly collapses sub-hourly readings into one row per (station, hour).
// Readings more than thirty minutes past the hour are dropped rather than
// bucketed: a 10:45 reading describes neither 10:00 nor 11:00 well.
// Provenance flags do not survive aggregation. The input is not modified.
func Hourly(t *obs.Table) *obs.Table {
	work := t.Clone()
	work.SortByStationTime()

	out := obs.NewTable()
	for _, s := range work.Series {
		out.AddSeries(s.Name, s.Kind)
	}

	for start := 0; start < work.Len(); {
		station := work.Stations[start]
		bucket := work.Times[start].Truncate(time.Hour)
		end := start
		for end < work.Len() && work.Stations[end] == station &&
			work.Times[end].Truncate(time.Hour).Equal(bucket) {
			end++
		}

		rows := make([]int, 0, end-start)
		for i := start; i < end; i++ {
			if work.Times[i].Sub(bucket) <= maxHourlyOffset {
				rows = append(rows, i)
			}
		}
		if len(rows) > 0 {
			row := out.AppendRow(bucket, station)
			for ci, s := range work.Series {
				out.Series[ci].Values[row] = reduce(s.Kind, presentAt(s, rows))
			}
		}
		start = end
	}
	return out
}
