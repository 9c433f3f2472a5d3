// Package engine turns per-timestep physical quantities into an auditable
// daily energy forecast: time-label alignment, shared-inverter clipping
// allocation, horizon masking, sunrise/sunset damping, actual-production
// reconciliation and controllable-load window discovery, orchestrated across
// sites and arrays.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"solar_forecast/internal/debug"
	"solar_forecast/internal/model"
	"solar_forecast/internal/solar"
	"solar_forecast/internal/timeseries"
	"solar_forecast/internal/weather"
)

// InputError marks bad weather or time-index data for one site. It is fatal
// for that site only; other sites keep their results.
type InputError struct {
	Site string
	Err  error
}

func (e *InputError) Error() string { return fmt.Sprintf("site %s: %v", e.Site, e.Err) }
func (e *InputError) Unwrap() error { return e.Err }

// Options configure one simulation run.
type Options struct {
	// Day is the calendar day to forecast, interpreted in each site's
	// timezone.
	Day time.Time
	// Step is the nominal sampling step requested from the weather provider.
	Step time.Duration
	// Label states what instant the provider's timestamps mark. Required;
	// never guessed from the data.
	Label timeseries.Label
	// Albedo for ground-reflected irradiance. Zero selects the 0.2 default.
	Albedo float64
	// DampingWindow bounds the sunrise/sunset attenuation ramps. Zero selects
	// DefaultDampingWindow.
	DampingWindow time.Duration
	// ActualKWh is measured cumulative production up to Now. Nil disables
	// reconciliation.
	ActualKWh *float64
	// Now is the cutoff instant for reconciliation and rest-of-day windows.
	Now time.Time
	// LoadWindow enables the controllable-load window search.
	LoadWindow *LoadWindowConfig
}

// ArrayResult is one array's finished forecast: the net AC power series after
// all attenuations, its daily rollup and any load windows.
type ArrayResult struct {
	ArrayID       string           `json:"array_id"`
	Times         []time.Time      `json:"times"`
	PowerW        []float64        `json:"power_w"`
	IntervalHours []float64        `json:"interval_hours"`
	Rollup        DailyRollup      `json:"rollup"`
	Windows       *LoadWindowReport `json:"windows,omitempty"`
}

// SiteResult holds one site's arrays and rollup. Err is set when the site's
// simulation aborted; the other fields are then empty.
type SiteResult struct {
	SiteID     string             `json:"site_id"`
	Arrays     []ArrayResult      `json:"arrays"`
	Rollup     SiteRollup         `json:"rollup"`
	Adjustment *AdjustmentOutcome `json:"adjustment,omitempty"`
	Err        error              `json:"-"`
}

// Result is a whole run: per-site results plus the global energy total.
type Result struct {
	Day            time.Time    `json:"day"`
	Sites          []SiteResult `json:"sites"`
	TotalEnergyKWh float64      `json:"total_energy_kwh"`
}

// Engine coordinates the forecast across N sites and M arrays, fanning out
// per-site and per-array work and funneling audit events through the sink.
type Engine struct {
	provider weather.Provider
	sink     debug.Sink
}

func New(provider weather.Provider, sink debug.Sink) *Engine {
	if sink == nil {
		sink = debug.Null{}
	}
	return &Engine{provider: provider, sink: sink}
}

// Run simulates one day for every site in the scenario. Configuration errors
// abort the whole run before any simulation starts; a failing site is
// isolated and reported in its SiteResult while the others complete.
func (e *Engine) Run(ctx context.Context, scenario model.Scenario, opts Options) (*Result, error) {
	if err := scenario.Validate(); err != nil {
		return nil, err
	}
	if _, err := timeseries.ParseLabel(string(opts.Label)); err != nil {
		return nil, &model.ConfigError{Field: "label", Reason: err.Error()}
	}
	if opts.Step <= 0 {
		opts.Step = time.Hour
	}
	if opts.DampingWindow <= 0 {
		opts.DampingWindow = DefaultDampingWindow
	}

	results := make([]SiteResult, len(scenario.Sites))
	var wg sync.WaitGroup
	for i, site := range scenario.Sites {
		wg.Add(1)
		go func(i int, site model.Site) {
			defer wg.Done()
			res, err := e.runSite(ctx, site, opts)
			if err != nil {
				results[i] = SiteResult{SiteID: site.ID, Err: err}
				return
			}
			results[i] = *res
		}(i, site)
	}
	wg.Wait()

	out := &Result{Day: opts.Day, Sites: results}
	for _, s := range results {
		if s.Err == nil {
			out.TotalEnergyKWh += s.Rollup.EnergyKWh
		}
	}
	return out, nil
}

// arrayPhysics is the per-array output of the parallel physics stage, joined
// at the inverter-group barrier.
type arrayPhysics struct {
	poa  solar.POA
	cell []float64
	dcW  []float64
	err  error
}

func (e *Engine) runSite(ctx context.Context, site model.Site, opts Options) (*SiteResult, error) {
	tz, err := time.LoadLocation(site.Location.TZ)
	if err != nil {
		return nil, &model.ConfigError{Field: "location.tz", Reason: err.Error()}
	}
	dayStart := time.Date(opts.Day.Year(), opts.Day.Month(), opts.Day.Day(), 0, 0, 0, 0, tz)
	dayEnd := dayStart.AddDate(0, 0, 1) // DST-correct: the local day may be 23 or 25 hours

	loc := weather.Location{
		ID:         site.ID,
		Lat:        site.Location.Lat,
		Lon:        site.Location.Lon,
		ElevationM: site.Location.ElevationM,
	}
	fetched, err := e.provider.Forecast(ctx, []weather.Location{loc}, dayStart, opts.Step)
	if err != nil {
		return nil, &InputError{Site: site.ID, Err: err}
	}
	wx, ok := fetched[site.ID]
	if !ok {
		return nil, &InputError{Site: site.ID, Err: errors.New("provider returned no series for site")}
	}
	wx = wx.Slice(dayStart, dayEnd)
	if err := wx.Validate(); err != nil {
		return nil, &InputError{Site: site.ID, Err: err}
	}
	if err := timeseries.CheckMonotonic(wx.Times); err != nil {
		return nil, &InputError{Site: site.ID, Err: err}
	}

	step, err := timeseries.NewStepModel(wx.Times, opts.Step)
	if err != nil {
		return nil, &InputError{Site: site.ID, Err: err}
	}
	hours := step.IntervalHours()

	sink := debug.Scoped{Inner: e.sink, Site: site.ID}
	startTS := wx.Times[0]
	ingest := map[string]any{
		"samples":      wx.Len(),
		"step_seconds": step.StepSeconds(),
	}
	if step.Irregular() {
		ingest["flag"] = "partial_gap"
	}
	sink.Emit("weather_ingest", ingest, startTS, "", "")

	// Label alignment must precede sun-position lookups; transposition is
	// geometry-sensitive at low sun elevation.
	aligned := timeseries.Align(wx.Times, step.StepSeconds(), opts.Label)
	positions := solar.Positions(aligned, site.Location.Lat, site.Location.Lon)
	elevations := make([]float64, len(positions))
	maxElev := 0.0
	for i, p := range positions {
		elevations[i] = p.Elevation
		if p.Elevation > maxElev {
			maxElev = p.Elevation
		}
	}

	dni, dhi, filled := solar.FillDNIDHI(aligned, wx.GHI, wx.DNI, wx.DHI, positions)
	sink.Emit("solar_position", map[string]any{
		"max_elevation_deg":    maxElev,
		"decomposition_filled": filled,
	}, startTS, "", "")

	if hint := labelAdvisory(elevations, wx.GHI); hint != "" {
		sink.Emit("label_advisory", map[string]any{
			"flag":       "advisory",
			"configured": string(opts.Label),
			"hint":       hint,
		}, startTS, "", "")
	}

	// Per-array physics fan-out. Each goroutine owns its slice entry; the
	// sink serializes concurrent emits.
	phys := make([]arrayPhysics, len(site.Arrays))
	var wg sync.WaitGroup
	for idx, arr := range site.Arrays {
		wg.Add(1)
		go func(idx int, arr model.Array) {
			defer wg.Done()
			asink := debug.Scoped{Inner: e.sink, Site: site.ID, Array: arr.ID}

			poa := solar.PlaneOfArray(solar.POAInput{
				TiltDeg:    arr.TiltDeg,
				AzimuthDeg: arr.AzimuthDeg,
				Albedo:     opts.Albedo,
				GHI:        wx.GHI,
				DNI:        dni,
				DHI:        dhi,
				Positions:  positions,
				Horizon:    arr.Horizon,
			})
			asink.Emit("poa", map[string]any{
				"poa_kwh_per_m2": IntegrateKWh(poa.Global, hours),
				"masked_samples": poa.MaskedSamples,
			}, startTS, "", "")

			cell, err := solar.CellTemperature(poa.Global, wx.TempAirC, wx.WindMS, arr.TempModel)
			if err != nil {
				phys[idx].err = &model.ConfigError{Field: "array.temp_model", Reason: err.Error()}
				return
			}
			asink.Emit("cell_temperature", map[string]any{
				"max_cell_temp_c": maxOf(cell),
			}, startTS, "", "")

			dc := solar.PVWattsDC(poa.Global, cell, arr.Pdc0W, arr.GammaPdc)
			asink.Emit("dc_power", map[string]any{
				"peak_dc_w": maxOf(dc),
			}, startTS, "", "")

			phys[idx] = arrayPhysics{poa: poa, cell: cell, dcW: dc}
		}(idx, arr)
	}
	wg.Wait()
	for _, p := range phys {
		if p.err != nil {
			return nil, p.err
		}
	}

	// Join at the inverter-group barrier: all member DC series must exist
	// before the group-level clip.
	acByArray := make([][]float64, len(site.Arrays))
	for _, g := range BuildGroups(site.Arrays) {
		memberDC := make([][]float64, len(g.Members))
		for m, idx := range g.Members {
			memberDC[m] = phys[idx].dcW
		}
		memberAC, groupAC, zeroGuarded := g.Allocate(memberDC)
		for m, idx := range g.Members {
			acByArray[idx] = memberAC[m]
		}

		eta, mixed := g.EtaInvNom()
		payload := map[string]any{
			"group":           g.ID,
			"members":         len(g.Members),
			"pdc0_w":          g.Pdc0W(),
			"eta_inv_nom":     eta,
			"peak_group_ac_w": maxOf(groupAC),
			"zero_dc_samples": zeroGuarded,
		}
		if zeroGuarded > 0 {
			payload["flag"] = "numeric_guard"
		}
		if mixed {
			payload["mixed_eta"] = true
		}
		sink.Emit("ac_allocation", payload, startTS, "", "")
	}

	// Per-array post-processing resumes independently after allocation.
	arrays := make([]ArrayResult, len(site.Arrays))
	for idx, arr := range site.Arrays {
		asink := debug.Scoped{Inner: e.sink, Site: site.ID, Array: arr.ID}
		net := solar.ApplyLosses(acByArray[idx], arr.LossesPercent)

		// A configured factor of 0 is the strongest attenuation, not "unset";
		// the config layer maps absent damping to 1.0 before it gets here.
		factors := DampingFactors(aligned, elevations, arr.DampingMorning, arr.DampingEvening, opts.DampingWindow)
		damped := 0
		for i, f := range factors {
			if f != 1 {
				net[i] *= f
				damped++
			}
		}
		asink.Emit("damping", map[string]any{
			"morning":        arr.DampingMorning,
			"evening":        arr.DampingEvening,
			"window_minutes": opts.DampingWindow.Minutes(),
			"damped_samples": damped,
		}, startTS, "", "")

		asink.Emit("horizon_mask", map[string]any{
			"masked_samples":      phys[idx].poa.MaskedSamples,
			"max_masked_dni_w_m2": phys[idx].poa.MaxMaskedDNI,
		}, startTS, "", "")

		poaTotal := IntegrateKWh(phys[idx].poa.Global, hours)
		if factor := ClimatologyClamp(poaTotal, arr.PVGISPoaKWhM2); factor != 1 {
			for i := range net {
				net[i] *= factor
			}
			asink.Emit("qc_clamp", map[string]any{
				"flag":              "qc_clamp",
				"poa_kwh_per_m2":    poaTotal,
				"reference_kwh_m2":  arr.PVGISPoaKWhM2,
				"applied_factor":    factor,
			}, startTS, "", "")
			poaTotal *= factor
		}

		rollup := Aggregate(net, phys[idx].poa.Global, phys[idx].cell, hours)
		rollup.POAKWhM2 = poaTotal
		asink.Emit("aggregation", map[string]any{
			"energy_kwh":      rollup.EnergyKWh,
			"peak_kw":         rollup.PeakKW,
			"poa_kwh_per_m2":  rollup.POAKWhM2,
			"max_cell_temp_c": rollup.MaxCellTempC,
		}, startTS, "", "")

		arrays[idx] = ArrayResult{
			ArrayID:       arr.ID,
			Times:         aligned,
			PowerW:        net,
			IntervalHours: hours,
			Rollup:        rollup,
		}
	}

	// Actual-production reconciliation, once per run, against the site total.
	var outcome *AdjustmentOutcome
	if opts.ActualKWh != nil {
		var predicted float64
		for _, ar := range arrays {
			predicted += PredictedKWhUpTo(ar.PowerW, hours, ar.Times, opts.Now)
		}
		oc := ComputeScale(predicted, *opts.ActualKWh)
		if oc.Applied {
			for idx := range arrays {
				arrays[idx].PowerW = ApplyAdjustment(arrays[idx].PowerW, arrays[idx].Times, opts.Now, oc.Scale)
				r := Aggregate(arrays[idx].PowerW, phys[idx].poa.Global, phys[idx].cell, hours)
				r.POAKWhM2 = arrays[idx].Rollup.POAKWhM2
				arrays[idx].Rollup = r
			}
		}
		payload := map[string]any{
			"actual_kwh":           oc.ActualKWh,
			"predicted_so_far_kwh": oc.PredictedKWh,
			"scale":                oc.Scale,
			"applied":              oc.Applied,
			"reset":                oc.Reset,
		}
		if oc.Undefined {
			payload["flag"] = "numeric_guard"
		}
		sink.Emit("actual_adjustment", payload, startTS, "", "")
		outcome = &oc
	}

	if opts.LoadWindow != nil {
		lwCfg := *opts.LoadWindow
		// The rest-of-day restriction needs a cutoff inside the simulated
		// day; a wall clock from another day would drop every window.
		if lwCfg.Now.Before(dayStart) || !lwCfg.Now.Before(dayEnd) {
			lwCfg.Now = time.Time{}
		}
		for idx := range arrays {
			report := FindLoadWindows(arrays[idx].Times, arrays[idx].PowerW, hours, lwCfg)
			arrays[idx].Windows = &report
			payload := map[string]any{
				"base_load_w":  opts.LoadWindow.BaseLoadW,
				"window_count": len(report.All),
			}
			if report.Best != nil {
				payload["best_energy_wh"] = report.Best.EnergyWh
				payload["earliest_start"] = report.Earliest.Start.Format(time.RFC3339)
			}
			asink := debug.Scoped{Inner: e.sink, Site: site.ID, Array: arrays[idx].ArrayID}
			asink.Emit("load_window", payload, startTS, "", "")
		}
	}

	powers := make([][]float64, len(arrays))
	for i := range arrays {
		powers[i] = arrays[i].PowerW
	}
	return &SiteResult{
		SiteID:     site.ID,
		Arrays:     arrays,
		Rollup:     AggregateSite(powers, hours),
		Adjustment: outcome,
	}, nil
}

// labelAdvisory compares where the sun first rises against where GHI first
// turns on. A separation of two or more samples hints the configured label
// does not match the provider's convention. Advisory only; the configured
// label is never substituted.
func labelAdvisory(elevations, ghi []float64) string {
	firstSun, firstGHI := -1, -1
	for i := range elevations {
		if firstSun < 0 && elevations[i] > 0 {
			firstSun = i
		}
		if firstGHI < 0 && ghi[i] > 1 {
			firstGHI = i
		}
	}
	if firstSun < 0 || firstGHI < 0 {
		return ""
	}
	if d := firstGHI - firstSun; d >= 2 || d <= -2 {
		return fmt.Sprintf("first nonzero irradiance is %d samples from first positive sun elevation", d)
	}
	return ""
}

func maxOf(values []float64) float64 {
	var m float64
	for _, v := range values {
		if v > m {
			m = v
		}
	}
	return m
}
