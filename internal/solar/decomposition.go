package solar

import (
	"math"
	"time"
)

// FillDNIDHI ensures direct/diffuse components exist, deriving them from GHI
// and solar zenith with the Erbs correlation when either input is absent
// (NaN). Present values pass through with negatives clipped to zero.
// Returns the filled series and whether any decomposition happened.
func FillDNIDHI(times []time.Time, ghi, dni, dhi []float64, positions []Position) (outDNI, outDHI []float64, filled bool) {
	n := len(ghi)
	outDNI = make([]float64, n)
	outDHI = make([]float64, n)

	for i := 0; i < n; i++ {
		haveDNI := i < len(dni) && !math.IsNaN(dni[i])
		haveDHI := i < len(dhi) && !math.IsNaN(dhi[i])
		if haveDNI && haveDHI {
			outDNI[i] = math.Max(0, dni[i])
			outDHI[i] = math.Max(0, dhi[i])
			continue
		}

		filled = true
		d, df := erbs(times[i], math.Max(0, ghi[i]), positions[i].Zenith)
		if haveDNI {
			outDNI[i] = math.Max(0, dni[i])
		} else {
			outDNI[i] = d
		}
		if haveDHI {
			outDHI[i] = math.Max(0, dhi[i])
		} else {
			outDHI[i] = df
		}
	}
	return outDNI, outDHI, filled
}

// erbs decomposes GHI into (DNI, DHI) via the Erbs diffuse-fraction
// correlation on the clearness index.
func erbs(t time.Time, ghi, zenithDeg float64) (dniW, dhiW float64) {
	cosZ := math.Cos(degToRad(zenithDeg))
	if ghi <= 0 || cosZ <= 0.01 {
		return 0, math.Max(0, ghi)
	}

	kt := ghi / (extraterrestrial(t) * cosZ)
	kt = math.Max(0, math.Min(kt, 1))

	var df float64
	switch {
	case kt <= 0.22:
		df = 1 - 0.09*kt
	case kt <= 0.8:
		df = 0.9511 - 0.1604*kt + 4.388*kt*kt - 16.638*kt*kt*kt + 12.336*kt*kt*kt*kt
	default:
		df = 0.165
	}

	dhi := df * ghi
	dni := (ghi - dhi) / cosZ
	return math.Max(0, dni), math.Max(0, dhi)
}
