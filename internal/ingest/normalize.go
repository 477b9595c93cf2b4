package ingest

import (
	"strings"
	"unicode"

	"github.com/lox/stanhopewx/internal/obs"
)

// Header names with meaning to table assembly rather than to the registry.
const (
	timeColumn    = "Datetime_UTC"
	rawTimeColumn = "Date/Time"
	stationColumn = "station"
)

// junkPatterns match sensor-housekeeping channels that never carry weather.
var junkPatterns = []string{"serial", "battery", "solar"}

// canonical maps lowercased trimmed headers to canonical variable names.
// Every vendor spells wind and precipitation differently.
var canonical = map[string]string{
	"wind gust  speed":   obs.VarWindGust,
	"wind gust speed":    obs.VarWindGust,
	"gust speed":         obs.VarWindGust,
	"avg wind speed":     obs.VarWindSpeed,
	"average wind speed": obs.VarWindSpeed,
	"wind spd":           obs.VarWindSpeed,
	"windspd":            obs.VarWindSpeed,
	"accumulated rain":   obs.VarPrecipitation,
	"precip. amount":     obs.VarPrecipitation,
	"temp":               obs.VarTemperature,
	"wind dir":           obs.VarWindDirection,
	"rel hum":            obs.VarRh,
	"date/time":          rawTimeColumn,
	"station":            stationColumn,
}

// NormalizeHeader canonicalizes one raw CSV header: units and suffixes are
// cut at the first parenthesis or underscore, known vendor spellings map to
// registry names, anything containing "dew" is the dew point, and the rest
// is title-cased as an open variable.
func NormalizeHeader(raw string) string {
	if strings.EqualFold(strings.TrimSpace(raw), timeColumn) {
		return timeColumn
	}
	name := raw
	if i := strings.IndexAny(name, "(_"); i >= 0 {
		name = name[:i]
	}
	name = strings.TrimSpace(name)
	lower := strings.ToLower(name)
	if strings.Contains(lower, "dew") {
		return obs.VarDew
	}
	if c, ok := canonical[lower]; ok {
		return c
	}
	return titleCase(name)
}

func isJunkColumn(name string) bool {
	lower := strings.ToLower(name)
	for _, p := range junkPatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// titleCase upper-cases the first letter after any non-letter and
// lower-cases the rest.
func titleCase(s string) string {
	out := []rune(s)
	prevLetter := false
	for i, r := range out {
		if unicode.IsLetter(r) {
			if prevLetter {
				out[i] = unicode.ToLower(r)
			} else {
				out[i] = unicode.ToUpper(r)
			}
			prevLetter = true
		} else {
			prevLetter = false
		}
	}
	return string(out)
}

// Normalize rewrites a frame's headers to canonical names, drops junk
// columns, merges duplicate headers (first non-empty cell per row wins) and
// removes columns with at most one distinct value.
func Normalize(f Frame) Frame {
	out := Frame{Station: f.Station}

	// dest maps each source column to an output column, -1 when dropped.
	dest := make([]int, len(f.Columns))
	index := make(map[string]int)
	for i, raw := range f.Columns {
		name := NormalizeHeader(raw)
		if isJunkColumn(name) {
			dest[i] = -1
			continue
		}
		if j, ok := index[name]; ok {
			dest[i] = j
			continue
		}
		index[name] = len(out.Columns)
		dest[i] = len(out.Columns)
		out.Columns = append(out.Columns, name)
	}

	out.Rows = make([][]string, len(f.Rows))
	for r, row := range f.Rows {
		cells := make([]string, len(out.Columns))
		for i, cell := range row {
			j := dest[i]
			if j < 0 {
				continue
			}
			if cells[j] == "" {
				cells[j] = strings.TrimSpace(cell)
			}
		}
		out.Rows[r] = cells
	}

	return dropConstantColumns(out)
}

// dropConstantColumns removes columns carrying at most one distinct
// non-empty value. Sensor exports pad rows with firmware versions and
// station labels that only waste memory downstream.
func dropConstantColumns(f Frame) Frame {
	keep := make([]int, 0, len(f.Columns))
	for j, name := range f.Columns {
		if name == stationColumn {
			keep = append(keep, j)
			continue
		}
		distinct := make(map[string]bool)
		for _, row := range f.Rows {
			if row[j] != "" {
				distinct[row[j]] = true
				if len(distinct) > 1 {
					break
				}
			}
		}
		if len(distinct) > 1 {
			keep = append(keep, j)
		}
	}
	if len(keep) == len(f.Columns) {
		return f
	}

	out := Frame{Station: f.Station, Columns: make([]string, len(keep)), Rows: make([][]string, len(f.Rows))}
	for i, j := range keep {
		out.Columns[i] = f.Columns[j]
	}
	for r, row := range f.Rows {
		cells := make([]string, len(keep))
		for i, j := range keep {
			cells[i] = row[j]
		}
		out.Rows[r] = cells
	}
	return out
}
