package quality

import (
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/lox/stanhopewx/internal/obs"
)

// StationCount pairs a station with its row count.
type StationCount struct {
	Station obs.Station
	Rows    int
}

// MissingColumn pairs a variable with its missing percentage.
type MissingColumn struct {
	Column  string
	Percent float64
}

// Summary is a coarse stage snapshot of a table, cheap enough to take
// between every pipeline stage.
type Summary struct {
	Rows     int
	Columns  int
	Stations []StationCount // descending by row count
	Start    time.Time
	End      time.Time
	// TopMissing lists up to five variables with missing values,
	// worst first.
	TopMissing    []MissingColumn
	DuplicateRows int
}

// Summarize takes a snapshot of t.
func Summarize(t *obs.Table) Summary {
	s := Summary{Rows: t.Len(), Columns: len(t.Series)}

	counts := make(map[obs.Station]int)
	for _, st := range t.Stations {
		counts[st]++
	}
	for st, n := range counts {
		s.Stations = append(s.Stations, StationCount{Station: st, Rows: n})
	}
	sort.Slice(s.Stations, func(i, j int) bool {
		if s.Stations[i].Rows != s.Stations[j].Rows {
			return s.Stations[i].Rows > s.Stations[j].Rows
		}
		return s.Stations[i].Station < s.Stations[j].Station
	})

	for i, ts := range t.Times {
		if i == 0 || ts.Before(s.Start) {
			s.Start = ts
		}
		if i == 0 || ts.After(s.End) {
			s.End = ts
		}
	}

	var missing []MissingColumn
	for _, series := range t.Series {
		if n := series.MissingCount(); n > 0 {
			missing = append(missing, MissingColumn{
				Column:  series.Name,
				Percent: pct(n, t.Len()),
			})
		}
	}
	sort.Slice(missing, func(i, j int) bool {
		if missing[i].Percent != missing[j].Percent {
			return missing[i].Percent > missing[j].Percent
		}
		return missing[i].Column < missing[j].Column
	})
	if len(missing) > 5 {
		missing = missing[:5]
	}
	s.TopMissing = missing

	s.DuplicateRows = countDuplicates(t)
	return s
}

// LogSummary writes a stage snapshot to the log.
func LogSummary(stage string, t *obs.Table) {
	s := Summarize(t)
	log.Printf("quality: %s: %d rows, %d variables, %d stations", stage, s.Rows, s.Columns, len(s.Stations))
	for _, sc := range s.Stations {
		log.Printf("quality: %s: station %s: %d rows", stage, sc.Station, sc.Rows)
	}
	if !s.Start.IsZero() {
		log.Printf("quality: %s: range %s to %s", stage,
			s.Start.Format(time.RFC3339), s.End.Format(time.RFC3339))
	}
	for _, mc := range s.TopMissing {
		log.Printf("quality: %s: missing %s: %.1f%%", stage, mc.Column, mc.Percent)
	}
	if s.DuplicateRows > 0 {
		log.Printf("quality: %s: %d duplicate rows", stage, s.DuplicateRows)
	}
}

// countDuplicates counts rows identical to an earlier row across station,
// timestamp and every variable.
func countDuplicates(t *obs.Table) int {
	seen := make(map[string]bool, t.Len())
	dups := 0
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
			dups++
		}
		seen[key] = true
	}
	return dups
}
