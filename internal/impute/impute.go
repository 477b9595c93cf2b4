// Package impute fills gaps in observation tables with a tiered strategy:
// time-weighted interpolation for short gaps, bounded neighbor filling for
// variables that persist, then variable-specific derivations. Every filled
// value is tagged with its provenance, and values are validated against
// physical bounds at the end.
//
// Stations missing too large a share of a variable are excluded from filling
// for that variable: heavy missingness usually means a dead sensor, and
// inventing a year of readings helps nobody. Bounds still apply to them.
package impute

import (
	"log"
	"math"
	"time"

	"github.com/lox/stanhopewx/internal/obs"
)

// Bounds constrains a variable to a physically plausible range.
type Bounds struct {
	Min, Max float64
	// Clip pulls out-of-range values into range instead of nulling them.
	Clip bool
	// ResetFlag forces provenance back to original when a value is nulled.
	ResetFlag bool
}

// Config carries the tunable imputation policy.
type Config struct {
	// InterpolateLimit is the maximum time distance from a surrounding
	// known value for tier-1 interpolation to fill a gap row.
	InterpolateLimit time.Duration
	// ForwardFillLimit and BackfillLimit bound tier-2 neighbor filling
	// by elapsed time since (or until) the nearest present value.
	ForwardFillLimit time.Duration
	BackfillLimit    time.Duration
	// SkipThresholdPct excludes a (station, variable) pair from tiers 1-3
	// when its missing percentage is at or above this value.
	SkipThresholdPct float64
	// Bounds maps variable names to their physical plausibility range.
	Bounds map[string]Bounds
}

// DefaultConfig returns the production policy: 3h interpolation window,
// 6h/3h neighbor fills, 25% skip threshold, and PEI-reasonable bounds.
func DefaultConfig() Config {
	return Config{
		InterpolateLimit: 3 * time.Hour,
		ForwardFillLimit: 6 * time.Hour,
		BackfillLimit:    3 * time.Hour,
		SkipThresholdPct: 25.0,
		Bounds: map[string]Bounds{
			obs.VarTemperature: {Min: -40, Max: 40},
			obs.VarRh:          {Min: 0, Max: 100, Clip: true},
			obs.VarDew:         {Min: -60, Max: 50, ResetFlag: true},
		},
	}
}

// VariableStats reports what imputation did to one variable.
type VariableStats struct {
	Variable        string
	TotalRows       int
	OriginalMissing int
	OriginalPct     float64
	Tier1Filled     int
	Tier2Filled     int
	Tier3Filled     int
	TotalFilled     int
	FinalMissing    int
	FinalPct        float64
	// ImputationRate is the percentage of originally missing values that
	// were recovered.
	ImputationRate   float64
	BoundsViolations int
	SkippedStations  []obs.Station
}

// Result aggregates imputation statistics across all variables.
type Result struct {
	PerVariable     []VariableStats
	OriginalMissing int
	Tier1Filled     int
	Tier2Filled     int
	Tier3Filled     int
	TotalFilled     int
	Remaining       int
}

// block is one station's contiguous row range [start, end) in a
// station-time sorted table.
type block struct {
	station obs.Station
	start   int
	end     int
}

// Apply runs tiered imputation over a copy of t and returns the annotated
// table with per-variable statistics. The input table is not modified.
// Variables with no missing values pass through untouched, without a
// provenance column and without bounds validation.
func Apply(t *obs.Table, cfg Config) (*obs.Table, Result) {
	out := t.Clone()
	out.SortByStationTime()
	blocks := stationBlocks(out)

	var res Result
	for _, s := range seriesInProcessingOrder(out) {
		stats, ok := imputeSeries(out, s, blocks, cfg)
		if !ok {
			continue
		}
		res.PerVariable = append(res.PerVariable, stats)
		res.OriginalMissing += stats.OriginalMissing
		res.Tier1Filled += stats.Tier1Filled
		res.Tier2Filled += stats.Tier2Filled
		res.Tier3Filled += stats.Tier3Filled
		res.TotalFilled += stats.TotalFilled
		res.Remaining += stats.FinalMissing
	}
	return out, res
}

// seriesInProcessingOrder returns the table's columns ordered so that
// derivation inputs are imputed before the variables derived from them.
// The table's own column order is left alone.
func seriesInProcessingOrder(t *obs.Table) []*obs.Series {
	ordered := make([]*obs.Series, len(t.Series))
	copy(ordered, t.Series)
	for i := 1; i < len(ordered); i++ {
		for j := i; j > 0 && obs.CanonicalRank(ordered[j].Name) < obs.CanonicalRank(ordered[j-1].Name); j-- {
			ordered[j], ordered[j-1] = ordered[j-1], ordered[j]
		}
	}
	return ordered
}

func imputeSeries(t *obs.Table, s *obs.Series, blocks []block, cfg Config) (VariableStats, bool) {
	n := t.Len()
	originalMissing := s.MissingCount()
	if originalMissing == 0 {
		return VariableStats{}, false
	}
	originalPct := pct(originalMissing, n)
	log.Printf("impute: %s: %d missing (%.1f%%)", s.Name, originalMissing, originalPct)

	// Provenance column: original everywhere, interpolated preset on every
	// missing value. Later tiers overwrite the preset for values they claim.
	s.Flags = make([]obs.Flag, n)
	for i, v := range s.Values {
		if !v.Valid {
			s.Flags[i] = obs.FlagInterpolated
		}
	}

	// Eligibility: decide per station whether this variable gets filled.
	var imputable []block
	var skipped []obs.Station
	for _, b := range blocks {
		missing := 0
		for i := b.start; i < b.end; i++ {
			if !s.Values[i].Valid {
				missing++
			}
		}
		missingPct := pct(missing, b.end-b.start)
		if missingPct >= cfg.SkipThresholdPct {
			skipped = append(skipped, b.station)
			log.Printf("impute: %s: skipping %s: %.1f%% missing (>=%.0f%%)", s.Name, b.station, missingPct, cfg.SkipThresholdPct)
			continue
		}
		imputable = append(imputable, b)
	}

	// Tier 1: time-weighted linear interpolation of short interior gaps.
	for _, b := range imputable {
		interpolateBlock(s, t.Times, b, cfg.InterpolateLimit)
	}
	afterTier1 := s.MissingCount()
	tier1 := originalMissing - afterTier1
	log.Printf("impute: %s: tier 1 interpolation filled %d", s.Name, tier1)

	// Tier 2: bounded forward/backward fill, persistence variables only.
	spec := obs.Lookup(s.Name)
	afterTier2 := afterTier1
	tier2 := 0
	if spec.Persistent {
		for i, v := range s.Values {
			if !v.Valid {
				s.Flags[i] = obs.FlagNeighborFilled
			}
		}
		for _, b := range imputable {
			forwardFill(s, t.Times, b, cfg.ForwardFillLimit)
			backwardFill(s, t.Times, b, cfg.BackfillLimit)
		}
		afterTier2 = s.MissingCount()
		tier2 = afterTier1 - afterTier2
		log.Printf("impute: %s: tier 2 neighbor fill filled %d", s.Name, tier2)
	}

	// Tier 3: variable-specific derivation for whatever is still missing.
	derive(t, s, spec, imputable)
	afterTier3 := s.MissingCount()
	tier3 := afterTier2 - afterTier3
	if spec.Derive != obs.DeriveNone {
		log.Printf("impute: %s: tier 3 derivation filled %d", s.Name, tier3)
	}

	// Bounds validation applies to every station, skipped ones included.
	violations := 0
	if b, ok := cfg.Bounds[s.Name]; ok {
		violations = applyBounds(s, b)
		if violations > 0 {
			log.Printf("impute: %s: %d values outside [%v, %v]", s.Name, violations, b.Min, b.Max)
		}
	}

	finalMissing := s.MissingCount()
	totalFilled := originalMissing - finalMissing
	stats := VariableStats{
		Variable:         s.Name,
		TotalRows:        n,
		OriginalMissing:  originalMissing,
		OriginalPct:      originalPct,
		Tier1Filled:      tier1,
		Tier2Filled:      tier2,
		Tier3Filled:      tier3,
		TotalFilled:      totalFilled,
		FinalMissing:     finalMissing,
		FinalPct:         pct(finalMissing, n),
		ImputationRate:   pct(totalFilled, originalMissing),
		BoundsViolations: violations,
		SkippedStations:  skipped,
	}
	log.Printf("impute: %s: %d -> %d missing (%.1f%% imputed, %d stations skipped)",
		s.Name, originalMissing, finalMissing, stats.ImputationRate, len(skipped))
	return stats, true
}

// interpolateBlock fills interior gaps of one station. A missing row is
// filled only when both surrounding known values exist and the row lies
// within limit of at least one of them; the fill is the time-weighted line
// between the anchors. Leading and trailing gaps have a single anchor and
// are left for tier 2.
func interpolateBlock(s *obs.Series, times []time.Time, b block, limit time.Duration) {
	prev := -1
	for i := b.start; i < b.end; i++ {
		if !s.Values[i].Valid {
			continue
		}
		if prev >= 0 && i-prev > 1 {
			fillGap(s, times, prev, i, limit)
		}
		prev = i
	}
}

func fillGap(s *obs.Series, times []time.Time, lo, hi int, limit time.Duration) {
	t0, t1 := times[lo], times[hi]
	v0, v1 := s.Values[lo].Float64, s.Values[hi].Float64
	span := t1.Sub(t0).Seconds()
	for k := lo + 1; k < hi; k++ {
		fromPrev := times[k].Sub(t0)
		toNext := t1.Sub(times[k])
		if fromPrev > limit && toNext > limit {
			continue
		}
		if span <= 0 {
			s.Values[k] = obs.Float(v0)
			continue
		}
		frac := fromPrev.Seconds() / span
		s.Values[k] = obs.Float(v0 + (v1-v0)*frac)
	}
}

// forwardFill copies the most recent present value into missing rows within
// limit of it. Presence is snapshotted at entry, so a filled row never
// extends the reach of its source.
func forwardFill(s *obs.Series, times []time.Time, b block, limit time.Duration) {
	valid := snapshotValid(s, b)
	last := -1
	for i := b.start; i < b.end; i++ {
		if valid[i-b.start] {
			last = i
			continue
		}
		if last >= 0 && times[i].Sub(times[last]) <= limit {
			s.Values[i] = s.Values[last]
		}
	}
}

func backwardFill(s *obs.Series, times []time.Time, b block, limit time.Duration) {
	valid := snapshotValid(s, b)
	next := -1
	for i := b.end - 1; i >= b.start; i-- {
		if valid[i-b.start] {
			next = i
			continue
		}
		if next >= 0 && times[next].Sub(times[i]) <= limit {
			s.Values[i] = s.Values[next]
		}
	}
}

func snapshotValid(s *obs.Series, b block) []bool {
	valid := make([]bool, b.end-b.start)
	for i := b.start; i < b.end; i++ {
		valid[i-b.start] = s.Values[i].Valid
	}
	return valid
}

func derive(t *obs.Table, s *obs.Series, spec obs.VariableSpec, imputable []block) {
	switch spec.Derive {
	case obs.DeriveZero:
		for _, b := range imputable {
			for i := b.start; i < b.end; i++ {
				if !s.Values[i].Valid {
					s.Flags[i] = obs.FlagDerived
					s.Values[i] = obs.Float(0)
				}
			}
		}

	case obs.DeriveWindGust:
		wind := t.SeriesByName(obs.VarWindSpeed)
		if wind == nil {
			return
		}
		for _, b := range imputable {
			for i := b.start; i < b.end; i++ {
				if !s.Values[i].Valid && wind.Values[i].Valid {
					s.Flags[i] = obs.FlagDerived
					s.Values[i] = wind.Values[i]
				}
			}
		}

	case obs.DeriveMagnus:
		temp := t.SeriesByName(obs.VarTemperature)
		dew := t.SeriesByName(obs.VarDew)
		if temp == nil || dew == nil {
			return
		}
		for _, b := range imputable {
			for i := b.start; i < b.end; i++ {
				if s.Values[i].Valid || !temp.Values[i].Valid || !dew.Values[i].Valid {
					continue
				}
				s.Flags[i] = obs.FlagDerived
				if rh, ok := magnusRh(temp.Values[i].Float64, dew.Values[i].Float64); ok {
					s.Values[i] = obs.Float(rh)
				}
			}
		}
	}
}

// Magnus-Tetens saturation vapor pressure constants.
const (
	magnusA = 17.625
	magnusB = 243.04
)

// magnusRh derives relative humidity from temperature and dew point in
// Celsius, clipped to [0, 100]. ok is false when the arithmetic degenerates.
func magnusRh(temp, dew float64) (float64, bool) {
	eDew := math.Exp(magnusA * dew / (magnusB + dew))
	eTemp := math.Exp(magnusA * temp / (magnusB + temp))
	rh := 100 * eDew / eTemp
	if math.IsNaN(rh) {
		return 0, false
	}
	return math.Min(math.Max(rh, 0), 100), true
}

func applyBounds(s *obs.Series, b Bounds) int {
	violations := 0
	for i, v := range s.Values {
		if !v.Valid || (v.Float64 >= b.Min && v.Float64 <= b.Max) {
			continue
		}
		violations++
		if b.Clip {
			s.Values[i] = obs.Float(math.Min(math.Max(v.Float64, b.Min), b.Max))
			continue
		}
		s.Values[i] = obs.Value{}
		if b.ResetFlag {
			s.Flags[i] = obs.FlagOriginal
		}
	}
	return violations
}

func stationBlocks(t *obs.Table) []block {
	var blocks []block
	for i := 0; i < t.Len(); {
		j := i
		for j < t.Len() && t.Stations[j] == t.Stations[i] {
			j++
		}
		blocks = append(blocks, block{station: t.Stations[i], start: i, end: j})
		i = j
	}
	return blocks
}

func pct(part, whole int) float64 {
	if whole == 0 {
		return 0
	}
	return float64(part) / float64(whole) * 100
}
