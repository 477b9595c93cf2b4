package ingest

import (
	"testing"
	"time"

	"github.com/lox/stanhopewx/internal/obs"
)

func TestBuildTableCoalescesTimestamps(t *testing.T) {
	frames := []Frame{
		{Station: "alpha", Columns: []string{"Datetime_UTC", "Temperature"},
			Rows: [][]string{{"2024-06-01T10:00:00Z", "1"}, {"2024-06-01T11:00:00Z", "2"}}},
		{Station: "bravo", Columns: []string{"Date/Time", "Temperature"},
			Rows: [][]string{{"2024-06-01 10:00:00", "3"}, {"2024-06-01 11:00:00", "4"}}},
		{Station: "charlie", Columns: []string{"Date", "Time", "Temperature"},
			Rows: [][]string{{"2024-06-01", "10:00", "5"}, {"2024-06-01", "11:00", "6"}}},
	}

	tbl := BuildTable(frames)

	if tbl.Len() != 6 {
		t.Fatalf("Len() = %d, want 6", tbl.Len())
	}
	if len(tbl.Series) != 1 || tbl.Series[0].Name != "Temperature" {
		t.Fatalf("series = %v, want only Temperature", tbl.Series)
	}

	want := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	temp := tbl.SeriesByName("Temperature")
	for i, wantVal := range map[int]float64{0: 1, 2: 3, 4: 5} {
		if !tbl.Times[i].Equal(want) {
			t.Errorf("Times[%d] = %v, want %v", i, tbl.Times[i], want)
		}
		if !temp.Values[i].Valid || temp.Values[i].Float64 != wantVal {
			t.Errorf("Temperature[%d] = %v, want %v", i, temp.Values[i], wantVal)
		}
	}
}

func TestBuildTableDropsBadTimestampRows(t *testing.T) {
	frames := []Frame{
		{Station: "alpha", Columns: []string{"Datetime_UTC", "Temperature"},
			Rows: [][]string{
				{"2024-06-01T10:00:00Z", "1"},
				{"ERROR", "2"},
				{"2024-06-01T12:00:00Z", "3"},
			}},
	}

	tbl := BuildTable(frames)

	if tbl.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", tbl.Len())
	}
	temp := tbl.SeriesByName("Temperature")
	if temp.Values[0].Float64 != 1 || temp.Values[1].Float64 != 3 {
		t.Errorf("Temperature = %v, want [1 3]", temp.Values)
	}
}

func TestBuildTableCoercesCells(t *testing.T) {
	frames := []Frame{
		{Station: "alpha", Columns: []string{"Datetime_UTC", "Temperature", "Rain"},
			Rows: [][]string{
				{"2024-06-01T10:00:00Z", "3.5", "0"},
				{"2024-06-01T11:00:00Z", "ERROR", "1.2"},
				{"2024-06-01T12:00:00Z", "4", ""},
			}},
	}

	tbl := BuildTable(frames)

	temp := tbl.SeriesByName("Temperature")
	rain := tbl.SeriesByName("Rain")
	if !temp.Values[0].Valid || temp.Values[0].Float64 != 3.5 {
		t.Errorf("Temperature[0] = %v, want 3.5", temp.Values[0])
	}
	if temp.Values[1].Valid {
		t.Errorf("Temperature[1] = %v, want missing", temp.Values[1])
	}
	if !rain.Values[1].Valid || rain.Values[1].Float64 != 1.2 {
		t.Errorf("Rain[1] = %v, want 1.2", rain.Values[1])
	}
	if rain.Values[2].Valid {
		t.Errorf("Rain[2] = %v, want missing", rain.Values[2])
	}
}

func TestBuildTableDropsScopedColumns(t *testing.T) {
	frames := []Frame{
		{Station: "alpha", Columns: []string{"Datetime_UTC", "Hmdx", "Wind Chill", "station", "Temperature"},
			Rows: [][]string{
				{"2024-06-01T10:00:00Z", "30", "-5", "ignored", "1"},
				{"2024-06-01T11:00:00Z", "31", "-6", "ignored", "2"},
			}},
	}

	tbl := BuildTable(frames)

	if s := tbl.SeriesByName("Hmdx"); s != nil {
		t.Error("Hmdx should be dropped")
	}
	if s := tbl.SeriesByName("Wind Chill"); s != nil {
		t.Error("Wind Chill should be dropped")
	}
	if s := tbl.SeriesByName("Temperature"); s == nil {
		t.Error("Temperature missing")
	}
	// the frame's station field wins over any station column in the data
	for i := 0; i < tbl.Len(); i++ {
		if tbl.Stations[i] != obs.Station("alpha") {
			t.Fatalf("Stations[%d] = %q, want alpha", i, tbl.Stations[i])
		}
	}
}

func TestBuildTableDropsRowsWithNoValues(t *testing.T) {
	frames := []Frame{
		{Station: "alpha", Columns: []string{"Datetime_UTC", "Temperature", "Rain"},
			Rows: [][]string{
				{"2024-06-01T10:00:00Z", "1", "0"},
				{"2024-06-01T11:00:00Z", "", ""},
				{"2024-06-01T12:00:00Z", "2", "1"},
			}},
	}

	tbl := BuildTable(frames)

	if tbl.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", tbl.Len())
	}
}

func TestBuildTableRemovesDuplicateRows(t *testing.T) {
	frames := []Frame{
		{Station: "alpha", Columns: []string{"Datetime_UTC", "Temperature"},
			Rows: [][]string{
				{"2024-06-01T10:00:00Z", "1"},
				{"2024-06-01T10:00:00Z", "1"},
				{"2024-06-01T11:00:00Z", "2"},
			}},
		// same timestamp and value on another station is not a duplicate
		{Station: "bravo", Columns: []string{"Datetime_UTC", "Temperature"},
			Rows: [][]string{{"2024-06-01T10:00:00Z", "1"}}},
	}

	tbl := BuildTable(frames)

	if tbl.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", tbl.Len())
	}
	if len(tbl.StationRows("alpha")) != 2 {
		t.Errorf("alpha rows = %d, want 2", len(tbl.StationRows("alpha")))
	}
	if len(tbl.StationRows("bravo")) != 1 {
		t.Errorf("bravo rows = %d, want 1", len(tbl.StationRows("bravo")))
	}
}

func TestBuildTableDropsConstantVariables(t *testing.T) {
	frames := []Frame{
		{Station: "alpha", Columns: []string{"Datetime_UTC", "Temperature", "Quality Code", "Status"},
			Rows: [][]string{
				{"2024-06-01T10:00:00Z", "1", "9", ""},
				{"2024-06-01T11:00:00Z", "2", "9", ""},
			}},
	}

	tbl := BuildTable(frames)

	if s := tbl.SeriesByName("Quality Code"); s != nil {
		t.Error("single-valued Quality Code should be dropped")
	}
	if s := tbl.SeriesByName("Status"); s != nil {
		t.Error("empty Status should be dropped")
	}
	if s := tbl.SeriesByName("Temperature"); s == nil {
		t.Error("Temperature missing")
	}
}

func TestBuildTableSortsByStationThenTime(t *testing.T) {
	frames := []Frame{
		{Station: "bravo", Columns: []string{"Datetime_UTC", "Temperature"},
			Rows: [][]string{
				{"2024-06-01T11:00:00Z", "3"},
				{"2024-06-01T10:00:00Z", "2"},
			}},
		{Station: "alpha", Columns: []string{"Datetime_UTC", "Temperature"},
			Rows: [][]string{{"2024-06-01T10:00:00Z", "1"}}},
	}

	tbl := BuildTable(frames)

	wantStations := []obs.Station{"alpha", "bravo", "bravo"}
	for i, want := range wantStations {
		if tbl.Stations[i] != want {
			t.Fatalf("Stations[%d] = %q, want %q", i, tbl.Stations[i], want)
		}
	}
	if !tbl.Times[1].Before(tbl.Times[2]) {
		t.Errorf("bravo rows not time-sorted: %v then %v", tbl.Times[1], tbl.Times[2])
	}
}

func TestBuildTableEmpty(t *testing.T) {
	tbl := BuildTable(nil)
	if tbl.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", tbl.Len())
	}
	if len(tbl.Series) != 0 {
		t.Errorf("series = %v, want none", tbl.Series)
	}
}
