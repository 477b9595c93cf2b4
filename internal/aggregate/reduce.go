package aggregate

import (
	"math"

	"github.com/lox/stanhopewx/internal/circstat"
	"github.com/lox/stanhopewx/internal/obs"
)

// presentAt collects the non-missing values of s at the given row indices.
func presentAt(s *obs.Series, rows []int) []float64 {
	vals := make([]float64, 0, len(rows))
	for _, i := range rows {
		if s.Values[i].Valid {
			vals = append(vals, s.Values[i].Float64)
		}
	}
	return vals
}

// reduce folds a group's present values into a single reading. A group with
// nothing present sums to zero but has no maximum, mean or direction.
func reduce(kind obs.Kind, vals []float64) obs.Value {
	switch kind {
	case obs.KindRain:
		sum := 0.0
		for _, v := range vals {
			sum += v
		}
		return obs.Float(round2(sum))

	case obs.KindGust:
		if len(vals) == 0 {
			return obs.Value{}
		}
		peak := vals[0]
		for _, v := range vals[1:] {
			if v > peak {
				peak = v
			}
		}
		return obs.Float(round2(peak))

	case obs.KindDirection:
		mean, ok := circstat.Mean(vals)
		if !ok {
			return obs.Value{}
		}
		return obs.Float(round2(mean))

	default:
		if len(vals) == 0 {
			return obs.Value{}
		}
		sum := 0.0
		for _, v := range vals {
			sum += v
		}
		return obs.Float(round2(sum / float64(len(vals))))
	}
}

// rangeStats returns the minimum, maximum and mean of vals, all missing when
// vals is empty.
func rangeStats(vals []float64) (lo, hi, mean obs.Value) {
	if len(vals) == 0 {
		return obs.Value{}, obs.Value{}, obs.Value{}
	}
	minV, maxV, sum := vals[0], vals[0], 0.0
	for _, v := range vals {
		if v < minV {
			minV = v
		}
		if v > maxV {
			maxV = v
		}
		sum += v
	}
	return obs.Float(round2(minV)), obs.Float(round2(maxV)),
		obs.Float(round2(sum / float64(len(vals))))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
