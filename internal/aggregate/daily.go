package aggregate

import (
	"time"

	"github.com/lox/stanhopewx/internal/obs"
)

// Daily summarizes observations per (station, UTC calendar date). Gust, rain
// and direction columns keep a single column under the hourly rules; every
// other variable expands to three columns carrying the day's minimum,
// maximum and mean. The input is not modified.
func Daily(t *obs.Table) *obs.Table {
	work := t.Clone()
	work.SortByStationTime()

	out := obs.NewTable()
	for _, s := range work.Series {
		switch s.Kind {
		case obs.KindGust, obs.KindRain, obs.KindDirection:
			out.AddSeries(s.Name, s.Kind)
		default:
			out.AddSeries(s.Name+"_min", obs.KindGeneral)
			out.AddSeries(s.Name+"_max", obs.KindGeneral)
			out.AddSeries(s.Name+"_mean", obs.KindGeneral)
		}
	}

	for start := 0; start < work.Len(); {
		station := work.Stations[start]
		day := dayOf(work.Times[start])
		end := start
		for end < work.Len() && work.Stations[end] == station &&
			dayOf(work.Times[end]).Equal(day) {
			end++
		}

		rows := make([]int, end-start)
		for i := range rows {
			rows[i] = start + i
		}
		row := out.AppendRow(day, station)
		for _, s := range work.Series {
			vals := presentAt(s, rows)
			switch s.Kind {
			case obs.KindGust, obs.KindRain, obs.KindDirection:
				out.SeriesByName(s.Name).Values[row] = reduce(s.Kind, vals)
			default:
				lo, hi, mean := rangeStats(vals)
				out.SeriesByName(s.Name+"_min").Values[row] = lo
				out.SeriesByName(s.Name+"_max").Values[row] = hi
				out.SeriesByName(s.Name+"_mean").Values[row] = mean
			}
		}
		start = end
	}
	return out
}

func dayOf(ts time.Time) time.Time {
	y, m, d := ts.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
