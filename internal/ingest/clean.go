package ingest

import (
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/lox/stanhopewx/internal/metrics"
	"github.com/lox/stanhopewx/internal/obs"
)

// tableDropColumns are station-log channels outside the pipeline's scope.
var tableDropColumns = map[string]bool{
	"Hmdx":                true,
	"Wind Chill":          true,
	"Day":                 true,
	"Water Pressure":      true,
	"Diff Pressure":       true,
	"Barometric Pressure": true,
	"Water Temperature":   true,
	"Water Level":         true,
	"Solar Radiation":     true,
}

// timeLayouts are tried in order; ECCC writes minute resolution, sensor
// exports vary.
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02 15:04:05",
	"2006/01/02 15:04",
}

// BuildTable merges normalized frames into one typed observation table:
// timestamps assembled and parsed (bad rows dropped), cells coerced to
// numbers (unparseable cells become missing), junk columns dropped, rows
// with no values dropped, exact duplicates removed keeping the first, and
// single-valued columns removed. Rows come out sorted by (station, time).
func BuildTable(frames []Frame) *obs.Table {
	t := obs.NewTable()
	for _, f := range frames {
		appendFrame(t, f)
	}

	dropEmptyRows(t)
	dedupeRows(t)
	dropConstantSeries(t)
	t.SortByStationTime()

	for _, st := range t.StationList() {
		metrics.RowsIngestedTotal.WithLabelValues(string(st)).Add(float64(len(t.StationRows(st))))
	}
	log.Printf("ingest: built table: %d rows, %d variables, %d stations",
		t.Len(), len(t.Series), len(t.StationList()))
	return t
}

func appendFrame(t *obs.Table, f Frame) {
	utcIdx, rawIdx := -1, -1
	dateIdx, timeIdx := -1, -1
	var varCols []int
	for j, name := range f.Columns {
		lower := strings.ToLower(name)
		switch {
		case name == timeColumn:
			utcIdx = j
		case name == rawTimeColumn:
			rawIdx = j
		case name == stationColumn:
			// the frame's station field is authoritative
		case tableDropColumns[name]:
		case dateIdx < 0 && strings.Contains(lower, "date"):
			dateIdx = j
		case timeIdx < 0 && strings.Contains(lower, "time"):
			timeIdx = j
		default:
			varCols = append(varCols, j)
		}
	}

	for _, j := range varCols {
		t.AddSeries(f.Columns[j], obs.Lookup(f.Columns[j]).Kind)
	}

	dropped := 0
	for _, row := range f.Rows {
		ts, ok := rowTime(row, utcIdx, rawIdx, dateIdx, timeIdx)
		if !ok {
			dropped++
			continue
		}
		ri := t.AppendRow(ts, f.Station)
		for _, j := range varCols {
			if v, ok := parseCell(row[j]); ok {
				t.SeriesByName(f.Columns[j]).Values[ri] = obs.Float(v)
			}
		}
	}
	if dropped > 0 {
		log.Printf("ingest: %s: dropped %d rows without a parseable timestamp", f.Station, dropped)
	}
}

// rowTime coalesces the timestamp sources in priority order: an explicit
// UTC column, the archive's combined column, then a separate date+time pair.
func rowTime(row []string, utcIdx, rawIdx, dateIdx, timeIdx int) (time.Time, bool) {
	if utcIdx >= 0 {
		if ts, err := parseTime(row[utcIdx]); err == nil {
			return ts, true
		}
	}
	if rawIdx >= 0 {
		if ts, err := parseTime(row[rawIdx]); err == nil {
			return ts, true
		}
	}
	if dateIdx >= 0 && timeIdx >= 0 {
		if ts, err := parseTime(row[dateIdx] + " " + row[timeIdx]); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", s)
}

// parseCell coerces a cell to a number. Blank cells, sensor error markers
// and anything else unparseable read as missing.
func parseCell(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// dropEmptyRows removes rows where every variable is missing.
func dropEmptyRows(t *obs.Table) {
	if t.Len() == 0 || len(t.Series) == 0 {
		return
	}
	drop := make([]bool, t.Len())
	removed := 0
	for i := 0; i < t.Len(); i++ {
		empty := true
		for _, s := range t.Series {
			if s.Values[i].Valid {
				empty = false
				break
			}
		}
		if empty {
			drop[i] = true
			removed++
		}
	}
	if removed > 0 {
		t.DropRows(drop)
		log.Printf("ingest: dropped %d rows with no values", removed)
	}
}

// dedupeRows removes rows identical to an earlier row across station,
// timestamp and every variable, keeping the first occurrence.
func dedupeRows(t *obs.Table) {
	seen := make(map[string]bool, t.Len())
	drop := make([]bool, t.Len())
	byStation := make(map[obs.Station]int)
	removed := 0

	var b strings.Builder
	for i := 0; i < t.Len(); i++ {
		b.Reset()
		fmt.Fprintf(&b, "%s|%d", t.Stations[i], t.Times[i].UnixNano())
		for _, s := range t.Series {
			if s.Values[i].Valid {
				fmt.Fprintf(&b, "|%g", s.Values[i].Float64)
			} else {
				b.WriteString("|x")
			}
		}
		key := b.String()
		if seen[key] {
			drop[i] = true
			byStation[t.Stations[i]]++
			removed++
		}
		seen[key] = true
	}

	if removed == 0 {
		log.Printf("ingest: no duplicate rows")
		return
	}
	log.Printf("ingest: removing %d duplicate rows (keeping first occurrence)", removed)
	for st, n := range byStation {
		log.Printf("ingest: %s: %d duplicate rows", st, n)
	}
	t.DropRows(drop)
}

// dropConstantSeries removes variables with at most one distinct present
// value across the whole table.
func dropConstantSeries(t *obs.Table) {
	keep := t.Series[:0]
	for _, s := range t.Series {
		distinct := make(map[float64]bool)
		for _, v := range s.Values {
			if v.Valid {
				distinct[v.Float64] = true
				if len(distinct) > 1 {
					break
				}
			}
		}
		if len(distinct) > 1 {
			keep = append(keep, s)
		} else {
			log.Printf("ingest: dropping constant column %s", s.Name)
		}
	}
	t.Series = keep
}
