package engine

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solar_forecast/internal/debug"
	"solar_forecast/internal/model"
	"solar_forecast/internal/timeseries"
	"solar_forecast/internal/weather"
)

// syntheticProvider serves a clear midsummer day: a sine-shaped GHI bell
// between 05:00 and 19:00, mild temperature, light wind.
type syntheticProvider struct {
	failFor string
}

func (p *syntheticProvider) Forecast(ctx context.Context, locations []weather.Location, day time.Time, step time.Duration) (map[string]weather.Series, error) {
	if len(locations) == 1 && locations[0].ID == p.failFor {
		return nil, errors.New("synthetic fetch failure")
	}
	out := make(map[string]weather.Series, len(locations))
	for _, loc := range locations {
		s := weather.Series{}
		for h := 0; h < 24; h++ {
			ts := day.Add(time.Duration(h) * time.Hour)
			var ghi float64
			if h >= 5 && h <= 19 {
				ghi = 800 * math.Sin(math.Pi*float64(h-5)/14)
			}
			s.Times = append(s.Times, ts)
			s.GHI = append(s.GHI, ghi)
			s.DNI = append(s.DNI, ghi*0.85)
			s.DHI = append(s.DHI, ghi*0.25)
			s.TempAirC = append(s.TempAirC, 20)
			s.WindMS = append(s.WindMS, 2)
		}
		out[loc.ID] = s
	}
	return out, nil
}

func testScenario() model.Scenario {
	return model.Scenario{Sites: []model.Site{{
		ID: "home",
		Location: model.Location{
			Lat: 52.2, Lon: 21.0, TZ: "UTC", ElevationM: 100,
		},
		Arrays: []model.Array{{
			ID: "roof-south", TiltDeg: 35, AzimuthDeg: 180,
			Pdc0W: 5000, GammaPdc: -0.004, DCACRatio: 1.2,
			EtaInvNom: 0.96, LossesPercent: 14,
			TempModel: "open_rack_glass_glass",
			DampingMorning: 1, DampingEvening: 1,
		}},
	}}}
}

func testOptions() Options {
	return Options{
		Day:   time.Date(2025, 6, 21, 0, 0, 0, 0, time.UTC),
		Step:  time.Hour,
		Label: timeseries.LabelCenter,
	}
}

func TestRunProducesDailyForecast(t *testing.T) {
	sink := &debug.List{}
	eng := New(&syntheticProvider{}, sink)

	result, err := eng.Run(context.Background(), testScenario(), testOptions())
	require.NoError(t, err)
	require.Len(t, result.Sites, 1)

	site := result.Sites[0]
	require.NoError(t, site.Err)
	require.Len(t, site.Arrays, 1)

	arr := site.Arrays[0]
	assert.Greater(t, arr.Rollup.EnergyKWh, 1.0)
	assert.Greater(t, arr.Rollup.PeakKW, 0.5)
	assert.Greater(t, arr.Rollup.POAKWhM2, 1.0)
	assert.Greater(t, arr.Rollup.MaxCellTempC, 20.0)

	// Night samples produce no power.
	assert.Equal(t, 0.0, arr.PowerW[0])
	assert.Equal(t, 0.0, arr.PowerW[23])

	// Site and global rollups agree with the single array.
	assert.InDelta(t, arr.Rollup.EnergyKWh, site.Rollup.EnergyKWh, 1e-9)
	assert.InDelta(t, site.Rollup.EnergyKWh, result.TotalEnergyKWh, 1e-9)
}

func TestRunEmitsPipelineStages(t *testing.T) {
	sink := &debug.List{}
	eng := New(&syntheticProvider{}, sink)

	_, err := eng.Run(context.Background(), testScenario(), testOptions())
	require.NoError(t, err)

	for _, stage := range []string{
		"weather_ingest", "solar_position", "poa", "cell_temperature",
		"dc_power", "ac_allocation", "damping", "horizon_mask", "aggregation",
	} {
		assert.NotEmpty(t, sink.Find(stage), "missing stage %s", stage)
	}

	// Zero DC at night triggers the flagged numeric guard on allocation.
	alloc := sink.Find("ac_allocation")
	require.Len(t, alloc, 1)
	assert.Equal(t, "numeric_guard", alloc[0].Payload["flag"])
	assert.Greater(t, alloc[0].Payload["zero_dc_samples"].(int), 0)
}

func TestRunRejectsBadLabel(t *testing.T) {
	eng := New(&syntheticProvider{}, nil)
	opts := testOptions()
	opts.Label = "middle"

	_, err := eng.Run(context.Background(), testScenario(), opts)
	require.Error(t, err)
	var cerr *model.ConfigError
	assert.ErrorAs(t, err, &cerr)
}

func TestRunIsolatesFailingSite(t *testing.T) {
	scenario := testScenario()
	second := scenario.Sites[0]
	second.ID = "cabin"
	scenario.Sites = append(scenario.Sites, second)

	eng := New(&syntheticProvider{failFor: "cabin"}, nil)
	result, err := eng.Run(context.Background(), scenario, testOptions())
	require.NoError(t, err)
	require.Len(t, result.Sites, 2)

	require.NoError(t, result.Sites[0].Err)
	require.Error(t, result.Sites[1].Err)
	var ierr *InputError
	assert.ErrorAs(t, result.Sites[1].Err, &ierr)
	assert.Equal(t, "cabin", ierr.Site)

	// The healthy site still contributes to the global total.
	assert.InDelta(t, result.Sites[0].Rollup.EnergyKWh, result.TotalEnergyKWh, 1e-9)
}

func TestRunActualAdjustmentHalvesFuture(t *testing.T) {
	eng := New(&syntheticProvider{}, nil)
	baseline, err := eng.Run(context.Background(), testScenario(), testOptions())
	require.NoError(t, err)
	base := baseline.Sites[0].Arrays[0]

	now := time.Date(2025, 6, 21, 12, 0, 0, 0, time.UTC)
	predicted := PredictedKWhUpTo(base.PowerW, base.IntervalHours, base.Times, now)
	require.Greater(t, predicted, 0.0)

	actual := predicted / 2
	opts := testOptions()
	opts.ActualKWh = &actual
	opts.Now = now

	adjusted, err := eng.Run(context.Background(), testScenario(), opts)
	require.NoError(t, err)
	site := adjusted.Sites[0]
	require.NotNil(t, site.Adjustment)
	assert.True(t, site.Adjustment.Applied)
	assert.InDelta(t, 0.5, site.Adjustment.Scale, 1e-9)

	adj := site.Arrays[0]
	for i := range base.PowerW {
		if base.Times[i].After(now) {
			assert.InDelta(t, base.PowerW[i]*0.5, adj.PowerW[i], 1e-6, "future sample %d", i)
		} else {
			assert.Equal(t, base.PowerW[i], adj.PowerW[i], "past sample %d", i)
		}
	}
}

func TestRunActualZeroIsReset(t *testing.T) {
	eng := New(&syntheticProvider{}, nil)
	baseline, err := eng.Run(context.Background(), testScenario(), testOptions())
	require.NoError(t, err)

	zero := 0.0
	opts := testOptions()
	opts.ActualKWh = &zero
	opts.Now = time.Date(2025, 6, 21, 12, 0, 0, 0, time.UTC)

	result, err := eng.Run(context.Background(), testScenario(), opts)
	require.NoError(t, err)
	site := result.Sites[0]
	require.NotNil(t, site.Adjustment)
	assert.True(t, site.Adjustment.Reset)
	assert.False(t, site.Adjustment.Applied)
	assert.InDelta(t, baseline.Sites[0].Rollup.EnergyKWh, site.Rollup.EnergyKWh, 1e-9)
}

func TestRunLoadWindows(t *testing.T) {
	eng := New(&syntheticProvider{}, nil)
	opts := testOptions()
	opts.LoadWindow = &LoadWindowConfig{BaseLoadW: 100, MinDuration: 30 * time.Minute}

	result, err := eng.Run(context.Background(), testScenario(), opts)
	require.NoError(t, err)
	arr := result.Sites[0].Arrays[0]
	require.NotNil(t, arr.Windows)
	require.NotNil(t, arr.Windows.Best)
	assert.Greater(t, arr.Windows.Best.EnergyWh, 0.0)
	assert.True(t, arr.Windows.Best.End.After(arr.Windows.Best.Start))
}

func TestRunDampingZeroIsStrongestAttenuation(t *testing.T) {
	runWith := func(factor float64) float64 {
		scenario := testScenario()
		scenario.Sites[0].Arrays[0].DampingMorning = factor
		scenario.Sites[0].Arrays[0].DampingEvening = factor
		opts := testOptions()
		opts.DampingWindow = 3 * time.Hour

		eng := New(&syntheticProvider{}, nil)
		result, err := eng.Run(context.Background(), scenario, opts)
		require.NoError(t, err)
		return result.Sites[0].Arrays[0].Rollup.EnergyKWh
	}

	full := runWith(1)
	half := runWith(0.5)
	zero := runWith(0)

	// A configured factor of 0 means full suppression at the sun edges, not
	// "unset": each step down in the factor must cost energy.
	assert.Less(t, half, full)
	assert.Less(t, zero, half)
}

func TestRunLoadWindowsOnPastDayIgnoreWallClock(t *testing.T) {
	eng := New(&syntheticProvider{}, nil)
	opts := testOptions()
	// Wall clock long after the simulated day. With no explicit minimum
	// duration the rest-of-day restriction must not treat every window as
	// already past.
	opts.Now = time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	opts.LoadWindow = &LoadWindowConfig{BaseLoadW: 100, Now: opts.Now}

	result, err := eng.Run(context.Background(), testScenario(), opts)
	require.NoError(t, err)
	arr := result.Sites[0].Arrays[0]
	require.NotNil(t, arr.Windows)
	assert.NotEmpty(t, arr.Windows.All)
	require.NotNil(t, arr.Windows.Earliest)
	assert.True(t, arr.Windows.Earliest.Start.Before(opts.Now))
}

func TestRunSharedGroupNeverExceedsGroupCeiling(t *testing.T) {
	scenario := testScenario()
	a := scenario.Sites[0].Arrays[0]
	a.InverterGroupID = "inv1"
	a.InverterPdc0W = 1200
	b := a
	b.ID = "roof-west"
	b.AzimuthDeg = 250
	scenario.Sites[0].Arrays = []model.Array{a, b}

	eng := New(&syntheticProvider{}, nil)
	result, err := eng.Run(context.Background(), scenario, testOptions())
	require.NoError(t, err)
	site := result.Sites[0]
	require.Len(t, site.Arrays, 2)

	// Combined net AC can never exceed the group's AC ceiling (losses and
	// damping only reduce it further).
	ceiling := 0.96 * 2400
	for i := range site.Arrays[0].PowerW {
		total := site.Arrays[0].PowerW[i] + site.Arrays[1].PowerW[i]
		assert.LessOrEqual(t, total, ceiling+1e-6, "sample %d", i)
	}
}
