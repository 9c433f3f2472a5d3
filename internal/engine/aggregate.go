package engine

// DailyRollup summarizes one array's simulated day. Site and global totals
// are recomputed from the base series, never by re-aggregating these rounded
// values.
type DailyRollup struct {
	EnergyKWh    float64 `json:"energy_kwh"`
	PeakKW       float64 `json:"peak_kw"`
	POAKWhM2     float64 `json:"poa_kwh_per_m2"`
	MaxCellTempC float64 `json:"max_cell_temp_c"`
}

// SiteRollup sums a site's member arrays from their base power series.
type SiteRollup struct {
	EnergyKWh float64 `json:"energy_kwh"`
	PeakKW    float64 `json:"peak_kw"`
}

// IntegrateKWh integrates instantaneous power (W) over true per-interval
// widths. A fixed-step shortcut would silently mis-integrate on
// daylight-saving boundary days and around missing samples.
func IntegrateKWh(powerW, hours []float64) float64 {
	var sum float64
	for i := range powerW {
		sum += powerW[i] * hours[i]
	}
	return sum / 1000
}

// Aggregate builds one array's daily rollup from its finished series.
func Aggregate(powerW, poaGlobal, cellTempC, hours []float64) DailyRollup {
	r := DailyRollup{
		EnergyKWh: IntegrateKWh(powerW, hours),
		POAKWhM2:  IntegrateKWh(poaGlobal, hours),
	}
	for _, p := range powerW {
		if p/1000 > r.PeakKW {
			r.PeakKW = p / 1000
		}
	}
	for i, tc := range cellTempC {
		if i == 0 || tc > r.MaxCellTempC {
			r.MaxCellTempC = tc
		}
	}
	return r
}

// AggregateSite sums member-array power series sample by sample and rolls the
// site total up from that combined series.
func AggregateSite(powers [][]float64, hours []float64) SiteRollup {
	var out SiteRollup
	if len(powers) == 0 {
		return out
	}
	combined := make([]float64, len(powers[0]))
	for _, p := range powers {
		for i := range p {
			combined[i] += p[i]
		}
	}
	out.EnergyKWh = IntegrateKWh(combined, hours)
	for _, p := range combined {
		if p/1000 > out.PeakKW {
			out.PeakKW = p / 1000
		}
	}
	return out
}

// Climatology ratio bounds: a simulated daily POA more than 60% below or
// above the reference total is treated as implausible input.
const (
	qcRatioMin = 0.6
	qcRatioMax = 1.6
)

// ClimatologyClamp compares the day's POA total against an optional
// climatology reference and returns the factor that pulls an out-of-bounds
// ratio back to the nearest bound. Returns 1 when no reference is configured
// or the ratio is plausible.
func ClimatologyClamp(poaKWhM2, refKWhM2 float64) float64 {
	if refKWhM2 <= 0 || poaKWhM2 <= 0 {
		return 1
	}
	ratio := poaKWhM2 / refKWhM2
	switch {
	case ratio > qcRatioMax:
		return qcRatioMax / ratio
	case ratio < qcRatioMin:
		return qcRatioMin / ratio
	}
	return 1
}
