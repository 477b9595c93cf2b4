package obs

// Canonical variable names produced by header normalization. The set is
// open: unknown variables flow through the pipeline with default behavior.
const (
	VarTemperature   = "Temperature"
	VarDew           = "Dew"
	VarRh            = "Rh"
	VarWindSpeed     = "Wind Speed"
	VarWindGust      = "Wind Gust Speed"
	VarWindDirection = "Wind Direction"
	VarRain          = "Rain"
	VarPrecipitation = "Precipitation"
)

// DeriveRule selects the tier-3 derivation for a variable.
type DeriveRule int

const (
	DeriveNone     DeriveRule = iota
	DeriveZero                // missing rain means no rain fell
	DeriveWindGust            // gust falls back to the concurrent wind speed
	DeriveMagnus              // Rh from Temperature + Dew via Magnus-Tetens
)

// VariableSpec describes how the pipeline treats a canonical variable.
type VariableSpec struct {
	Name string
	Kind Kind
	// Persistent variables vary slowly; only these are eligible for
	// bounded forward/backward filling.
	Persistent bool
	Derive     DeriveRule
}

// registry order is load-bearing: derivation inputs (Temperature, Dew,
// Wind Speed) sort ahead of the variables derived from them (Rh,
// Wind Gust Speed), so tier 3 sees already-imputed sources.
var registry = []VariableSpec{
	{Name: VarTemperature, Kind: KindGeneral, Persistent: true},
	{Name: VarDew, Kind: KindGeneral, Persistent: true},
	{Name: VarWindSpeed, Kind: KindGeneral, Persistent: true},
	{Name: VarRh, Kind: KindGeneral, Persistent: true, Derive: DeriveMagnus},
	{Name: VarWindGust, Kind: KindGust, Derive: DeriveWindGust},
	{Name: VarWindDirection, Kind: KindDirection},
	{Name: VarRain, Kind: KindRain, Derive: DeriveZero},
	{Name: VarPrecipitation, Kind: KindRain},
}

// Lookup returns the spec for a canonical variable name. Unknown names get
// default treatment: general aggregation, no fill allow-list, no derivation.
func Lookup(name string) VariableSpec {
	for _, spec := range registry {
		if spec.Name == name {
			return spec
		}
	}
	return VariableSpec{Name: name, Kind: KindGeneral}
}

// CanonicalRank orders columns for processing: registry variables first in
// registry order, everything else after in its existing order.
func CanonicalRank(name string) int {
	for i, spec := range registry {
		if spec.Name == name {
			return i
		}
	}
	return len(registry)
}
