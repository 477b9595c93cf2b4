// Package csvio reads and writes the pipeline's CSV surfaces: observation
// tables (raw annotated, hourly, daily) and the quality report.
package csvio

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/lox/stanhopewx/internal/obs"
	"github.com/lox/stanhopewx/internal/quality"
)

// Column headers shared by every table file.
const (
	TimeColumn    = "Datetime_UTC"
	StationColumn = "station"
	flagSuffix    = "_imputed"
)

const dateLayout = "2006-01-02"

// WriteTable writes t with RFC 3339 timestamps. Variables come first in
// column order; provenance columns follow for every flagged variable.
// Missing values are empty cells.
func WriteTable(w io.Writer, t *obs.Table) error {
	return writeTable(w, t, time.RFC3339)
}

// WriteDailyTable writes t with date-only timestamps.
func WriteDailyTable(w io.Writer, t *obs.Table) error {
	return writeTable(w, t, dateLayout)
}

func writeTable(w io.Writer, t *obs.Table, layout string) error {
	cw := csv.NewWriter(w)

	header := []string{TimeColumn, StationColumn}
	for _, s := range t.Series {
		header = append(header, s.Name)
	}
	for _, s := range t.Series {
		if s.HasFlags() {
			header = append(header, s.Name+flagSuffix)
		}
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	row := make([]string, 0, len(header))
	for i := 0; i < t.Len(); i++ {
		row = row[:0]
		row = append(row, t.Times[i].Format(layout), string(t.Stations[i]))
		for _, s := range t.Series {
			row = append(row, formatValue(s.Values[i]))
		}
		for _, s := range t.Series {
			if s.HasFlags() {
				row = append(row, strconv.Itoa(int(s.Flags[i])))
			}
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write row %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadTable parses a table written by WriteTable. Unparseable cells read
// back as missing values.
func ReadTable(r io.Reader) (*obs.Table, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err == io.EOF {
		return obs.NewTable(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	timeIdx, stationIdx := -1, -1
	varIdx := make(map[string]int)
	flagIdx := make(map[string]int)
	for i, name := range header {
		switch {
		case name == TimeColumn:
			timeIdx = i
		case name == StationColumn:
			stationIdx = i
		case len(name) > len(flagSuffix) && name[len(name)-len(flagSuffix):] == flagSuffix:
			flagIdx[name[:len(name)-len(flagSuffix)]] = i
		default:
			varIdx[name] = i
		}
	}
	if timeIdx < 0 || stationIdx < 0 {
		return nil, fmt.Errorf("missing %s or %s column", TimeColumn, StationColumn)
	}

	t := obs.NewTable()
	for i, name := range header {
		if i == timeIdx || i == stationIdx || trimFlag(name) != name {
			continue
		}
		s := t.AddSeries(name, obs.Lookup(name).Kind)
		if _, ok := flagIdx[name]; ok {
			s.Flags = []obs.Flag{}
		}
	}

	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		ts, err := parseTime(rec[timeIdx])
		if err != nil {
			continue
		}
		row := t.AppendRow(ts, obs.Station(rec[stationIdx]))
		for name, ci := range varIdx {
			s := t.SeriesByName(name)
			if v, err := strconv.ParseFloat(rec[ci], 64); err == nil {
				s.Values[row] = obs.Float(v)
			}
			if fi, ok := flagIdx[name]; ok {
				if f, err := strconv.Atoi(rec[fi]); err == nil {
					s.Flags[row] = obs.Flag(f)
				}
			}
		}
	}
	return t, nil
}

func trimFlag(name string) string {
	if len(name) > len(flagSuffix) && name[len(name)-len(flagSuffix):] == flagSuffix {
		return name[:len(name)-len(flagSuffix)]
	}
	return name
}

func parseTime(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts, nil
	}
	return time.Parse(dateLayout, s)
}

// qualityHeader matches the report's published column contract.
var qualityHeader = []string{
	"station", "column", "total_rows", "missing_count", "missing_percent",
	"original_data_count", "interpolated_count", "forward_backward_filled_count",
	"calculated_count", "total_imputed_count", "imputation_percent",
	"mean", "median", "min", "max", "q1", "q3", "iqr",
}

// WriteQuality writes quality records in report order.
func WriteQuality(w io.Writer, records []quality.Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(qualityHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, r := range records {
		row := []string{
			string(r.Station),
			r.Column,
			strconv.Itoa(r.TotalRows),
			strconv.Itoa(r.MissingCount),
			formatFloat(r.MissingPercent),
			strconv.Itoa(r.OriginalCount),
			strconv.Itoa(r.InterpolatedCount),
			strconv.Itoa(r.FilledCount),
			strconv.Itoa(r.CalculatedCount),
			strconv.Itoa(r.TotalImputed),
			formatFloat(r.ImputationPercent),
			formatValue(r.Mean),
			formatValue(r.Median),
			formatValue(r.Min),
			formatValue(r.Max),
			formatValue(r.Q1),
			formatValue(r.Q3),
			formatValue(r.IQR),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write record %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatValue(v obs.Value) string {
	if !v.Valid {
		return ""
	}
	return formatFloat(v.Float64)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
