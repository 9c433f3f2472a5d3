package solar

import (
	"math"
	"time"
)

// ClearSky holds modeled cloud-free irradiance components in W/m².
type ClearSky struct {
	GHI float64
	DNI float64
	DHI float64
}

// extraterrestrial returns top-of-atmosphere normal irradiance for a day of
// year, adjusted for Earth-Sun distance.
func extraterrestrial(t time.Time) float64 {
	n := float64(t.UTC().YearDay())
	return solarConstant * (1 + 0.033*math.Cos(degToRad(360.0*(n-3)/365.0)))
}

// ClearSkyIrradiance estimates clear-sky GHI/DNI/DHI with the Ineichen-Perez
// model using a fixed Linke turbidity of 2 (typical clear continental air).
// Altitude is in meters; it raises DNI through reduced atmospheric depth.
func ClearSkyIrradiance(t time.Time, pos Position, altitudeM float64) ClearSky {
	if pos.Zenith >= 90 {
		return ClearSky{}
	}

	g0 := extraterrestrial(t)
	const (
		turbidity  = 2.0
		dniScale   = 0.7
		extinction = 0.027
	)
	// Kasten-Young relative air mass.
	am := 1.0 / (math.Cos(degToRad(pos.Zenith)) + 0.50572*math.Pow(96.07995-pos.Zenith, -1.6364))
	dni := g0 * dniScale * math.Exp(-extinction*am*turbidity*math.Exp(-altitudeM/8000.0))

	// Seasonal diffuse fraction.
	n := float64(t.UTC().YearDay())
	fh := 0.1 + 0.05*math.Sin(math.Pi*(n-100)/365.0)
	dhi := fh * g0 * math.Sin(degToRad(pos.Zenith))

	ghi := dni*math.Cos(degToRad(pos.Zenith)) + dhi
	return ClearSky{GHI: math.Max(0, ghi), DNI: math.Max(0, dni), DHI: math.Max(0, dhi)}
}

// ClearSkySeries evaluates the clear-sky model over a time index.
func ClearSkySeries(times []time.Time, positions []Position, altitudeM float64) []ClearSky {
	out := make([]ClearSky, len(times))
	for i := range times {
		out[i] = ClearSkyIrradiance(times[i], positions[i], altitudeM)
	}
	return out
}
