package weather

import (
	"context"
	"fmt"
	"math"
	"time"

	"solar_forecast/internal/solar"
)

// CloudToClearness maps fractional cloud cover [0,1] to a clearness index
// applied to clear-sky irradiance: kt = 1 - 0.75 * C^3.4, clamped to [0,1].
func CloudToClearness(cloudFraction float64) float64 {
	c := math.Max(0, math.Min(1, cloudFraction))
	kt := 1 - 0.75*math.Pow(c, 3.4)
	return math.Max(0, math.Min(1, kt))
}

// CloudScaled derives irradiance from cloud cover: it fetches cloud cover,
// temperature and wind from a base provider, computes an Ineichen clear-sky
// baseline, and scales GHI/DNI/DHI by the cloud-derived clearness factor.
// Useful when a provider's radiation fields are missing or distrusted.
type CloudScaled struct {
	Base Provider
}

func (c *CloudScaled) Forecast(ctx context.Context, locations []Location, day time.Time, step time.Duration) (map[string]Series, error) {
	base, err := c.Base.Forecast(ctx, locations, day, step)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]Location, len(locations))
	for _, loc := range locations {
		byID[loc.ID] = loc
	}

	results := make(map[string]Series, len(base))
	for id, series := range base {
		loc, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("base provider returned unknown location %q", id)
		}
		if len(series.CloudCover) != len(series.Times) {
			return nil, fmt.Errorf("site %s: base provider missing cloud cover for cloud-scaled mode", id)
		}

		positions := solar.Positions(series.Times, loc.Lat, loc.Lon)
		scaled := Series{
			Times:      series.Times,
			GHI:        make([]float64, series.Len()),
			DNI:        make([]float64, series.Len()),
			DHI:        make([]float64, series.Len()),
			TempAirC:   series.TempAirC,
			WindMS:     series.WindMS,
			CloudCover: series.CloudCover,
		}
		for i := range series.Times {
			kt := CloudToClearness(series.CloudCover[i] / 100.0)
			cs := solar.ClearSkyIrradiance(series.Times[i], positions[i], loc.ElevationM)
			scaled.GHI[i] = cs.GHI * kt
			scaled.DNI[i] = cs.DNI * kt
			scaled.DHI[i] = cs.DHI * kt
		}
		results[id] = scaled
	}
	return results, nil
}
