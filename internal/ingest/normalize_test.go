package ingest

import (
	"reflect"
	"testing"
)

func TestNormalizeHeader(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"Temp (°C)", "Temperature"},
		{"Dew Point Temp (°C)", "Dew"},
		{"dewpoint", "Dew"},
		{"Rel Hum (%)", "Rh"},
		{"Wind Dir (10s deg)", "Wind Direction"},
		{"Wind Spd (km/h)", "Wind Speed"},
		{"WindSpd", "Wind Speed"},
		{"Avg Wind Speed (km/h)", "Wind Speed"},
		{"Gust Speed (km/h)", "Wind Gust Speed"},
		{"WIND GUST  SPEED", "Wind Gust Speed"},
		{"Precip. Amount (mm)", "Precipitation"},
		{"Accumulated Rain (mm)", "Precipitation"},
		{"Rain (mm)", "Rain"},
		{"Date/Time (LST)", "Date/Time"},
		{"Datetime_UTC", "Datetime_UTC"},
		{"datetime_utc", "Datetime_UTC"},
		{"Station", "station"},
		{"Stn Press (kPa)", "Stn Press"},
		{"hmdx", "Hmdx"},
		{"WIND CHILL", "Wind Chill"},
		{"pressure_hpa", "Pressure"},
	}

	for _, tt := range tests {
		if got := NormalizeHeader(tt.raw); got != tt.want {
			t.Errorf("NormalizeHeader(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestTitleCase(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"wind speed", "Wind Speed"},
		{"TEMP", "Temp"},
		{"rel. hum", "Rel. Hum"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := titleCase(tt.in); got != tt.want {
			t.Errorf("titleCase(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeMergesDuplicateColumns(t *testing.T) {
	f := Frame{
		Station: "stanhope",
		Columns: []string{"station", "Temp (°C)", "Temperature"},
		Rows: [][]string{
			{"stanhope", "20", "99"},
			{"stanhope", "", "21"},
		},
	}

	got := Normalize(f)

	wantCols := []string{"station", "Temperature"}
	if !reflect.DeepEqual(got.Columns, wantCols) {
		t.Fatalf("Columns = %v, want %v", got.Columns, wantCols)
	}
	wantRows := [][]string{
		{"stanhope", "20"},
		{"stanhope", "21"},
	}
	if !reflect.DeepEqual(got.Rows, wantRows) {
		t.Errorf("Rows = %v, want %v", got.Rows, wantRows)
	}
	if got.Station != "stanhope" {
		t.Errorf("Station = %q, want stanhope", got.Station)
	}
}

func TestNormalizeDropsJunkColumns(t *testing.T) {
	f := Frame{
		Columns: []string{"Datetime_UTC", "Battery Voltage (V)", "Serial Number", "Solar Radiation (W/m2)", "Temp (°C)"},
		Rows: [][]string{
			{"2024-01-01T00:00:00Z", "3.3", "A1", "500", "1"},
			{"2024-01-01T01:00:00Z", "3.2", "A1", "400", "2"},
		},
	}

	got := Normalize(f)

	wantCols := []string{"Datetime_UTC", "Temperature"}
	if !reflect.DeepEqual(got.Columns, wantCols) {
		t.Fatalf("Columns = %v, want %v", got.Columns, wantCols)
	}
	wantRows := [][]string{
		{"2024-01-01T00:00:00Z", "1"},
		{"2024-01-01T01:00:00Z", "2"},
	}
	if !reflect.DeepEqual(got.Rows, wantRows) {
		t.Errorf("Rows = %v, want %v", got.Rows, wantRows)
	}
}

func TestNormalizeDropsConstantColumns(t *testing.T) {
	f := Frame{
		Columns: []string{"station", "Temp (°C)", "Firmware", "Notes"},
		Rows: [][]string{
			{"ridge", "1", "v2", ""},
			{"ridge", "2", "v2", ""},
		},
	}

	got := Normalize(f)

	// station is exempt even when constant; Firmware has one distinct value
	// and Notes has none.
	wantCols := []string{"station", "Temperature"}
	if !reflect.DeepEqual(got.Columns, wantCols) {
		t.Fatalf("Columns = %v, want %v", got.Columns, wantCols)
	}
}

func TestNormalizeTrimsCellWhitespace(t *testing.T) {
	f := Frame{
		Columns: []string{"Temp (°C)", "Rain (mm)"},
		Rows: [][]string{
			{" 1.5 ", "0"},
			{"2.5", " 4 "},
		},
	}

	got := Normalize(f)

	wantRows := [][]string{
		{"1.5", "0"},
		{"2.5", "4"},
	}
	if !reflect.DeepEqual(got.Rows, wantRows) {
		t.Errorf("Rows = %v, want %v", got.Rows, wantRows)
	}
}
