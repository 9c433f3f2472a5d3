package engine

import (
	"math"
	"time"
)

// DefaultDampingWindow is how long after sunrise and before sunset the
// attenuation ramp extends when the run doesn't configure one.
const DefaultDampingWindow = 90 * time.Minute

// DampingFactors returns a multiplicative factor per sample for net AC power.
// Inside the morning window the factor ramps smoothly (half cosine) from the
// configured morning value at the sunrise instant up to 1.0 at the window's
// outer edge; the evening window mirrors this toward sunset. Outside the
// windows the factor is exactly 1, so midday values are bit-for-bit
// unchanged. With both factors at 1 the result is the identity.
//
// Sunrise is the first sample with positive sun elevation, sunset the last;
// a series with no daylight gets all ones.
func DampingFactors(times []time.Time, elevations []float64, morning, evening float64, window time.Duration) []float64 {
	factors := make([]float64, len(times))
	for i := range factors {
		factors[i] = 1
	}
	if (morning >= 1 && evening >= 1) || window <= 0 {
		return factors
	}

	sunrise, sunset, ok := daylightBounds(times, elevations)
	if !ok {
		return factors
	}

	for i, t := range times {
		f := 1.0
		if morning < 1 && !t.Before(sunrise) && !t.After(sunrise.Add(window)) {
			x := float64(t.Sub(sunrise)) / float64(window)
			f *= cosineRamp(morning, x)
		}
		if evening < 1 && !t.After(sunset) && !t.Before(sunset.Add(-window)) {
			x := float64(sunset.Sub(t)) / float64(window)
			f *= cosineRamp(evening, x)
		}
		factors[i] = f
	}
	return factors
}

// cosineRamp interpolates from `from` at x=0 to 1.0 at x=1 with zero slope at
// both ends, avoiding a discontinuity at the window edge.
func cosineRamp(from, x float64) float64 {
	if x <= 0 {
		return from
	}
	if x >= 1 {
		return 1
	}
	return from + (1-from)*(1-math.Cos(math.Pi*x))/2
}

func daylightBounds(times []time.Time, elevations []float64) (sunrise, sunset time.Time, ok bool) {
	first, last := -1, -1
	for i, e := range elevations {
		if e > 0 {
			if first < 0 {
				first = i
			}
			last = i
		}
	}
	if first < 0 {
		return time.Time{}, time.Time{}, false
	}
	return times[first], times[last], true
}
