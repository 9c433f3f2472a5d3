package weather

import (
	"context"
	"fmt"
	"math"
	"time"
)

// Composite serves a primary forecast with gaps filled from a secondary
// climatology provider, typically PVGIS TMY. Both providers are always
// called; the secondary covers NaN samples and negative irradiance in the
// primary output. Fills happen only inside the secondary series' time span,
// so climatology never bleeds across days it doesn't cover; a gap the
// secondary cannot fill is an error, not a silent NaN.
type Composite struct {
	Primary   Provider
	Secondary Provider
}

func (c *Composite) Forecast(ctx context.Context, locations []Location, day time.Time, step time.Duration) (map[string]Series, error) {
	primary, err := c.Primary.Forecast(ctx, locations, day, step)
	if err != nil {
		return nil, err
	}
	// Secondary sources are hourly climatology regardless of the run step.
	secondary, err := c.Secondary.Forecast(ctx, locations, day, time.Hour)
	if err != nil {
		return nil, err
	}

	out := make(map[string]Series, len(locations))
	for _, loc := range locations {
		prim, ok := primary[loc.ID]
		if !ok {
			return nil, fmt.Errorf("composite: primary returned no series for site %s", loc.ID)
		}
		merged, err := fillFromSecondary(prim, secondary[loc.ID])
		if err != nil {
			return nil, fmt.Errorf("site %s: %w", loc.ID, err)
		}
		out[loc.ID] = merged
	}
	return out, nil
}

// fillFromSecondary replaces NaN samples (and negative irradiance) in the
// primary with the secondary value at the latest timestamp not after the
// primary sample. Temperature and wind are filled on NaN only; negative
// temperatures are valid data.
func fillFromSecondary(prim, sec Series) (Series, error) {
	out := Series{
		Times:      prim.Times,
		GHI:        append([]float64(nil), prim.GHI...),
		DNI:        append([]float64(nil), prim.DNI...),
		DHI:        append([]float64(nil), prim.DHI...),
		TempAirC:   append([]float64(nil), prim.TempAirC...),
		WindMS:     append([]float64(nil), prim.WindMS...),
		CloudCover: prim.CloudCover,
	}

	cols := []struct {
		name       string
		dst        []float64
		src        []float64
		irradiance bool
	}{
		{"ghi", out.GHI, sec.GHI, true},
		{"dni", out.DNI, sec.DNI, true},
		{"dhi", out.DHI, sec.DHI, true},
		{"temp_air_c", out.TempAirC, sec.TempAirC, false},
		{"wind_ms", out.WindMS, sec.WindMS, false},
	}

	for _, col := range cols {
		for i, v := range col.dst {
			if !math.IsNaN(v) && !(col.irradiance && v < 0) {
				continue
			}
			if idx, ok := lookupAtOrBefore(sec.Times, prim.Times[i]); ok {
				col.dst[i] = col.src[idx]
			}
		}
		missing := 0
		for _, v := range col.dst {
			if math.IsNaN(v) {
				missing++
			}
		}
		if missing > 0 {
			return Series{}, fmt.Errorf("composite: secondary data missing for %s at %d timestamps", col.name, missing)
		}
		if col.irradiance {
			for i, v := range col.dst {
				if v < 0 {
					col.dst[i] = 0
				}
			}
		}
	}
	return out, nil
}

// lookupAtOrBefore returns the index of the latest sample not after t,
// restricted to the series' span.
func lookupAtOrBefore(times []time.Time, t time.Time) (int, bool) {
	if len(times) == 0 || t.Before(times[0]) || t.After(times[len(times)-1]) {
		return 0, false
	}
	lo, hi := 0, len(times)-1
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if times[mid].After(t) {
			hi = mid - 1
		} else {
			lo = mid
		}
	}
	return lo, true
}
