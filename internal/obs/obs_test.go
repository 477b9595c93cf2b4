package obs

import (
	"testing"
	"time"
)

func ts(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestSortByStationTime(t *testing.T) {
	tbl := NewTable()
	temp := tbl.AddSeries(VarTemperature, KindGeneral)

	rows := []struct {
		station Station
		at      string
		val     float64
	}{
		{"B", "2024-01-01T02:00:00Z", 2},
		{"A", "2024-01-01T01:00:00Z", 1},
		{"B", "2024-01-01T01:00:00Z", 3},
		{"A", "2024-01-01T00:00:00Z", 4},
	}
	for _, r := range rows {
		i := tbl.AppendRow(ts(r.at), r.station)
		temp.Values[i] = Float(r.val)
	}

	tbl.SortByStationTime()

	wantStations := []Station{"A", "A", "B", "B"}
	wantVals := []float64{4, 1, 3, 2}
	for i := range wantStations {
		if tbl.Stations[i] != wantStations[i] {
			t.Errorf("Stations[%d] = %q, want %q", i, tbl.Stations[i], wantStations[i])
		}
		if temp.Values[i].Float64 != wantVals[i] {
			t.Errorf("Values[%d] = %v, want %v", i, temp.Values[i].Float64, wantVals[i])
		}
	}
}

func TestCloneIsIndependent(t *testing.T) {
	tbl := NewTable()
	temp := tbl.AddSeries(VarTemperature, KindGeneral)
	i := tbl.AppendRow(ts("2024-01-01T00:00:00Z"), "A")
	temp.Values[i] = Float(10)

	clone := tbl.Clone()
	clone.SeriesByName(VarTemperature).Values[0] = Float(99)
	clone.Stations[0] = "B"

	if temp.Values[0].Float64 != 10 {
		t.Errorf("original value changed to %v after clone mutation", temp.Values[0].Float64)
	}
	if tbl.Stations[0] != "A" {
		t.Errorf("original station changed to %q after clone mutation", tbl.Stations[0])
	}
}

func TestAddSeriesSizing(t *testing.T) {
	tbl := NewTable()
	tbl.AppendRow(ts("2024-01-01T00:00:00Z"), "A")
	tbl.AppendRow(ts("2024-01-01T01:00:00Z"), "A")

	s := tbl.AddSeries(VarRain, KindRain)
	if len(s.Values) != 2 {
		t.Fatalf("len(Values) = %d, want 2", len(s.Values))
	}
	if s.Values[0].Valid || s.Values[1].Valid {
		t.Error("new series values should start missing")
	}

	// Re-adding returns the same column.
	again := tbl.AddSeries(VarRain, KindRain)
	if again != s {
		t.Error("AddSeries created a duplicate column")
	}
}

func TestAppendRowExtendsFlags(t *testing.T) {
	tbl := NewTable()
	s := tbl.AddSeries(VarTemperature, KindGeneral)
	tbl.AppendRow(ts("2024-01-01T00:00:00Z"), "A")
	s.Flags = make([]Flag, 1)

	tbl.AppendRow(ts("2024-01-01T01:00:00Z"), "A")
	if len(s.Flags) != 2 {
		t.Fatalf("len(Flags) = %d, want 2", len(s.Flags))
	}
	if s.Flags[1] != FlagOriginal {
		t.Errorf("Flags[1] = %d, want FlagOriginal", s.Flags[1])
	}
}

func TestDropRows(t *testing.T) {
	tbl := NewTable()
	temp := tbl.AddSeries(VarTemperature, KindGeneral)
	for i, st := range []Station{"A", "B", "C"} {
		row := tbl.AppendRow(ts("2024-01-01T00:00:00Z").Add(time.Duration(i)*time.Hour), st)
		temp.Values[row] = Float(float64(i))
	}

	tbl.DropRows([]bool{false, true, false})

	if tbl.Len() != 2 {
		t.Fatalf("Len = %d, want 2", tbl.Len())
	}
	if tbl.Stations[0] != "A" || tbl.Stations[1] != "C" {
		t.Errorf("stations = %v, want [A C]", tbl.Stations)
	}
	if temp.Values[1].Float64 != 2 {
		t.Errorf("Values[1] = %v, want 2", temp.Values[1].Float64)
	}
}

func TestStationList(t *testing.T) {
	tbl := NewTable()
	for _, st := range []Station{"B", "A", "B", "C", "A"} {
		tbl.AppendRow(ts("2024-01-01T00:00:00Z"), st)
	}
	got := tbl.StationList()
	want := []Station{"B", "A", "C"}
	if len(got) != len(want) {
		t.Fatalf("StationList = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("StationList[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestLookup(t *testing.T) {
	tests := []struct {
		name       string
		wantKind   Kind
		persistent bool
		derive     DeriveRule
	}{
		{VarTemperature, KindGeneral, true, DeriveNone},
		{VarRh, KindGeneral, true, DeriveMagnus},
		{VarWindGust, KindGust, false, DeriveWindGust},
		{VarWindDirection, KindDirection, false, DeriveNone},
		{VarRain, KindRain, false, DeriveZero},
		{VarPrecipitation, KindRain, false, DeriveNone},
		{"Pressure", KindGeneral, false, DeriveNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := Lookup(tt.name)
			if spec.Kind != tt.wantKind {
				t.Errorf("Kind = %v, want %v", spec.Kind, tt.wantKind)
			}
			if spec.Persistent != tt.persistent {
				t.Errorf("Persistent = %v, want %v", spec.Persistent, tt.persistent)
			}
			if spec.Derive != tt.derive {
				t.Errorf("Derive = %v, want %v", spec.Derive, tt.derive)
			}
		})
	}
}

func TestCanonicalRankOrdersDeriveInputsFirst(t *testing.T) {
	if CanonicalRank(VarTemperature) >= CanonicalRank(VarRh) {
		t.Error("Temperature should rank before Rh")
	}
	if CanonicalRank(VarDew) >= CanonicalRank(VarRh) {
		t.Error("Dew should rank before Rh")
	}
	if CanonicalRank(VarWindSpeed) >= CanonicalRank(VarWindGust) {
		t.Error("Wind Speed should rank before Wind Gust Speed")
	}
	if CanonicalRank("Pressure") != len(registry) {
		t.Errorf("unknown rank = %d, want %d", CanonicalRank("Pressure"), len(registry))
	}
}
