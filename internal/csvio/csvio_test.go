package csvio

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/lox/stanhopewx/internal/obs"
	"github.com/lox/stanhopewx/internal/quality"
)

var base = time.Date(2024, 2, 10, 12, 0, 0, 0, time.UTC)

func sampleTable() *obs.Table {
	t := obs.NewTable()
	temp := t.AddSeries(obs.VarTemperature, obs.KindGeneral)
	rain := t.AddSeries(obs.VarRain, obs.KindRain)
	temp.Flags = []obs.Flag{}

	row := t.AppendRow(base, "stanhope")
	temp.Values[row] = obs.Float(-3.25)
	rain.Values[row] = obs.Float(0)

	row = t.AppendRow(base.Add(time.Hour), "stanhope")
	temp.Flags[row] = obs.FlagInterpolated
	// temperature left missing, rain present
	rain.Values[row] = obs.Float(1.5)
	return t
}

func TestWriteTable(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteTable(&buf, sampleTable()); err != nil {
		t.Fatal(err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("lines = %d, want 3", len(lines))
	}
	wantHeader := "Datetime_UTC,station,Temperature,Rain,Temperature_imputed"
	if lines[0] != wantHeader {
		t.Errorf("header = %q, want %q", lines[0], wantHeader)
	}
	if lines[1] != "2024-02-10T12:00:00Z,stanhope,-3.25,0,0" {
		t.Errorf("row 1 = %q", lines[1])
	}
	if lines[2] != "2024-02-10T13:00:00Z,stanhope,,1.5,1" {
		t.Errorf("row 2 = %q", lines[2])
	}
}

func TestTableRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	orig := sampleTable()
	if err := WriteTable(&buf, orig); err != nil {
		t.Fatal(err)
	}

	got, err := ReadTable(&buf)
	if err != nil {
		t.Fatal(err)
	}

	if got.Len() != 2 {
		t.Fatalf("Len = %d, want 2", got.Len())
	}
	if got.Stations[0] != "stanhope" || !got.Times[1].Equal(base.Add(time.Hour)) {
		t.Errorf("row identity = %s %v", got.Stations[0], got.Times[1])
	}

	temp := got.SeriesByName(obs.VarTemperature)
	if temp == nil || !temp.HasFlags() {
		t.Fatal("Temperature column or its flags missing after round trip")
	}
	if !temp.Values[0].Valid || temp.Values[0].Float64 != -3.25 {
		t.Errorf("Temperature[0] = %+v, want -3.25", temp.Values[0])
	}
	if temp.Values[1].Valid {
		t.Errorf("Temperature[1] = %v, want missing", temp.Values[1].Float64)
	}
	if temp.Flags[1] != obs.FlagInterpolated {
		t.Errorf("Temperature flag[1] = %d, want %d", temp.Flags[1], obs.FlagInterpolated)
	}

	rain := got.SeriesByName(obs.VarRain)
	if rain == nil || rain.HasFlags() {
		t.Fatal("Rain column wrong after round trip")
	}
	if rain.Kind != obs.KindRain {
		t.Errorf("Rain kind = %d, want %d", rain.Kind, obs.KindRain)
	}
}

func TestWriteDailyTableUsesDateLayout(t *testing.T) {
	tbl := obs.NewTable()
	s := tbl.AddSeries("Temperature_mean", obs.KindGeneral)
	row := tbl.AppendRow(time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC), "stanhope")
	s.Values[row] = obs.Float(4.5)

	var buf bytes.Buffer
	if err := WriteDailyTable(&buf, tbl); err != nil {
		t.Fatal(err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if lines[1] != "2024-02-10,stanhope,4.5" {
		t.Errorf("row = %q", lines[1])
	}
}

func TestReadTableLenientCells(t *testing.T) {
	in := "Datetime_UTC,station,Temperature\n" +
		"2024-02-10T12:00:00Z,stanhope,ERROR\n" +
		"not-a-time,stanhope,5\n" +
		"2024-02-10T13:00:00Z,stanhope,7\n"

	got, err := ReadTable(strings.NewReader(in))
	if err != nil {
		t.Fatal(err)
	}

	// The bad timestamp row is dropped; the unparseable cell reads as missing.
	if got.Len() != 2 {
		t.Fatalf("Len = %d, want 2", got.Len())
	}
	temp := got.SeriesByName(obs.VarTemperature)
	if temp.Values[0].Valid {
		t.Error("ERROR cell parsed as a value")
	}
	if !temp.Values[1].Valid || temp.Values[1].Float64 != 7 {
		t.Errorf("Temperature[1] = %+v, want 7", temp.Values[1])
	}
}

func TestReadTableEmptyInput(t *testing.T) {
	got, err := ReadTable(strings.NewReader(""))
	if err != nil {
		t.Fatal(err)
	}
	if got.Len() != 0 {
		t.Errorf("Len = %d, want 0", got.Len())
	}
}

func TestWriteQuality(t *testing.T) {
	records := []quality.Record{
		{
			Station: "stanhope", Column: obs.VarTemperature,
			TotalRows: 100, MissingCount: 5, MissingPercent: 5,
			OriginalCount: 95, InterpolatedCount: 3, FilledCount: 1,
			CalculatedCount: 0, TotalImputed: 4, ImputationPercent: 4,
			Mean: obs.Float(10.25), Median: obs.Float(10), Min: obs.Float(-5),
			Max: obs.Float(25), Q1: obs.Float(5), Q3: obs.Float(15.5),
			IQR: obs.Float(10.5),
		},
		{Station: quality.AllStations, Column: obs.VarRain, TotalRows: 100, MissingCount: 100, MissingPercent: 100},
	}

	var buf bytes.Buffer
	if err := WriteQuality(&buf, records); err != nil {
		t.Fatal(err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	wantHeader := "station,column,total_rows,missing_count,missing_percent," +
		"original_data_count,interpolated_count,forward_backward_filled_count," +
		"calculated_count,total_imputed_count,imputation_percent," +
		"mean,median,min,max,q1,q3,iqr"
	if lines[0] != wantHeader {
		t.Errorf("header = %q", lines[0])
	}
	if lines[1] != "stanhope,Temperature,100,5,5,95,3,1,0,4,4,10.25,10,-5,25,5,15.5,10.5" {
		t.Errorf("row 1 = %q", lines[1])
	}
	// A group with no data leaves every statistic cell empty.
	if lines[2] != "ALL_STATIONS,Rain,100,100,100,0,0,0,0,0,0,,,,,,," {
		t.Errorf("row 2 = %q", lines[2])
	}
}
