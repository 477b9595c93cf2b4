// Package circstat provides statistics for angular quantities such as wind
// direction, where values wrap at 360 degrees and the arithmetic mean gives
// nonsense (the average of 350 and 10 is roughly 0, not 180).
package circstat

import "math"

// Mean returns the circular mean of angles given in degrees, normalized to
// [0, 360). ok is false when angles is empty.
func Mean(angles []float64) (mean float64, ok bool) {
	if len(angles) == 0 {
		return 0, false
	}

	var sumSin, sumCos float64
	for _, a := range angles {
		rad := a * math.Pi / 180
		sumSin += math.Sin(rad)
		sumCos += math.Cos(rad)
	}

	n := float64(len(angles))
	deg := math.Atan2(sumSin/n, sumCos/n) * 180 / math.Pi
	if deg < 0 {
		deg += 360
	}
	return deg, true
}
