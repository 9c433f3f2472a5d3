package solar

import (
	"fmt"
	"math"
	"sort"
)

// sapmParams are the SAPM module/cell temperature coefficients per mounting
// configuration.
type sapmParams struct {
	a      float64
	b      float64
	deltaT float64
}

var sapmMountings = map[string]sapmParams{
	"open_rack_glass_glass":        {a: -3.47, b: -0.0594, deltaT: 3},
	"close_mount_glass_glass":      {a: -2.98, b: -0.0471, deltaT: 1},
	"open_rack_glass_polymer":      {a: -3.56, b: -0.075, deltaT: 3},
	"insulated_back_glass_polymer": {a: -2.81, b: -0.0455, deltaT: 0},
}

// MountingNames lists the supported SAPM mounting keys, sorted.
func MountingNames() []string {
	names := make([]string, 0, len(sapmMountings))
	for k := range sapmMountings {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// CellTemperature estimates per-timestep cell temperature (°C) with the SAPM
// model from POA irradiance, ambient temperature and wind speed (m/s).
func CellTemperature(poaGlobal, tempAirC, windMS []float64, mounting string) ([]float64, error) {
	params, ok := sapmMountings[mounting]
	if !ok {
		return nil, fmt.Errorf("unsupported mounting configuration %q; choose from %v", mounting, MountingNames())
	}

	out := make([]float64, len(poaGlobal))
	for i := range poaGlobal {
		poa := math.Max(0, poaGlobal[i])
		moduleT := poa*math.Exp(params.a+params.b*windMS[i]) + tempAirC[i]
		out[i] = moduleT + poa/1000.0*params.deltaT
	}
	return out, nil
}
