package solar

import "math"

const (
	tempRefC = 25.0
	// etaInvRef is the PVWatts reference inverter efficiency the nominal
	// efficiency is normalized against.
	etaInvRef = 0.9637
)

// PVWattsDC computes DC power (W) from effective irradiance (W/m²) and cell
// temperature with the PVWatts DC model:
//
//	pdc = G/1000 * pdc0 * (1 + gamma*(Tcell - 25))
func PVWattsDC(effectiveIrradiance, tempCellC []float64, pdc0W, gammaPdc float64) []float64 {
	out := make([]float64, len(effectiveIrradiance))
	for i := range effectiveIrradiance {
		g := math.Max(0, effectiveIrradiance[i])
		p := g / 1000.0 * pdc0W * (1 + gammaPdc*(tempCellC[i]-tempRefC))
		out[i] = math.Max(0, p)
	}
	return out
}

// PVWattsACPoint converts one DC power sample to AC with the PVWatts inverter
// model. pdc0InvW is the inverter's DC input limit; output clips at the AC
// rating pac0 = etaInvNom * pdc0InvW.
func PVWattsACPoint(pdcW, pdc0InvW, etaInvNom float64) float64 {
	if pdcW <= 0 || pdc0InvW <= 0 {
		return 0
	}
	pac0 := etaInvNom * pdc0InvW
	zeta := pdcW / pdc0InvW
	if zeta >= 1 {
		return pac0
	}
	eta := etaInvNom / etaInvRef * (-0.0162*zeta - 0.0059/zeta + 0.9858)
	pac := eta * pdcW
	if pac > pac0 {
		return pac0
	}
	return math.Max(0, pac)
}

// PVWattsAC applies the inverter model across a series.
func PVWattsAC(pdcW []float64, pdc0InvW, etaInvNom float64) []float64 {
	out := make([]float64, len(pdcW))
	for i, p := range pdcW {
		out[i] = PVWattsACPoint(p, pdc0InvW, etaInvNom)
	}
	return out
}

// ApplyLosses scales AC power by lump-sum system losses given in percent.
func ApplyLosses(pacW []float64, lossesPercent float64) []float64 {
	factor := math.Max(0, 1-lossesPercent/100.0)
	out := make([]float64, len(pacW))
	for i, p := range pacW {
		out[i] = p * factor
	}
	return out
}
