package engine

import "time"

// DefaultMinWindowDuration is the qualification floor applied when no
// explicit minimum duration is configured.
const DefaultMinWindowDuration = 15 * time.Minute

// LoadWindowConfig drives the controllable-load window search over a
// finished per-array power series.
type LoadWindowConfig struct {
	// BaseLoadW is the threshold the forecast power must strictly exceed.
	BaseLoadW float64
	// MinDuration qualifies runs. Zero means unset: the 15-minute default
	// floor applies and, when Now is set, results are restricted to
	// rest-of-day windows.
	MinDuration time.Duration
	// RequiredWh trims each window to the shortest prefix covering this much
	// energy. Zero disables trimming.
	RequiredWh float64
	// Now marks an in-progress day. Zero when simulating a future day.
	Now time.Time
}

// LoadWindow is one usable run of forecast power above the base load.
type LoadWindow struct {
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	DurationMin float64   `json:"duration_min"`
	EnergyWh    float64   `json:"energy_wh"`
	// SatisfiesRequired is false when the full run's energy falls short of
	// RequiredWh; the window is still reported rather than omitted.
	SatisfiesRequired bool `json:"satisfies_required"`
}

// LoadWindowReport summarizes the qualifying windows of one array.
type LoadWindowReport struct {
	Earliest *LoadWindow  `json:"earliest,omitempty"`
	Best     *LoadWindow  `json:"best,omitempty"`
	Latest   *LoadWindow  `json:"latest,omitempty"`
	All      []LoadWindow `json:"all,omitempty"`
}

// FindLoadWindows scans a finished power series for maximal contiguous runs
// strictly above the base load. Best is the window with maximum energy, ties
// broken by earliest start.
func FindLoadWindows(times []time.Time, powerW []float64, hours []float64, cfg LoadWindowConfig) LoadWindowReport {
	minDur := cfg.MinDuration
	restOfDay := false
	if minDur <= 0 {
		minDur = DefaultMinWindowDuration
		restOfDay = !cfg.Now.IsZero()
	}

	var all []LoadWindow
	i := 0
	for i < len(powerW) {
		if powerW[i] <= cfg.BaseLoadW {
			i++
			continue
		}
		j := i
		for j+1 < len(powerW) && powerW[j+1] > cfg.BaseLoadW {
			j++
		}
		if w, ok := buildWindow(times, powerW, hours, i, j, minDur, cfg.RequiredWh); ok {
			if !restOfDay || !w.Start.Before(cfg.Now) {
				all = append(all, w)
			}
		}
		i = j + 1
	}

	report := LoadWindowReport{All: all}
	if len(all) == 0 {
		return report
	}
	report.Earliest = &all[0]
	report.Latest = &all[len(all)-1]
	best := 0
	for k := 1; k < len(all); k++ {
		if all[k].EnergyWh > all[best].EnergyWh {
			best = k
		}
	}
	report.Best = &all[best]
	return report
}

// buildWindow qualifies the run [i, j] and applies required-energy prefix
// trimming. Returns ok=false when the run is shorter than the minimum.
func buildWindow(times []time.Time, powerW, hours []float64, i, j int, minDur time.Duration, requiredWh float64) (LoadWindow, bool) {
	var durationH, energyWh float64
	for k := i; k <= j; k++ {
		durationH += hours[k]
		energyWh += powerW[k] * hours[k]
	}
	if durationH*60 < minDur.Minutes() {
		return LoadWindow{}, false
	}

	end := j
	satisfies := true
	if requiredWh > 0 {
		if energyWh < requiredWh {
			satisfies = false
		} else {
			// Shortest prefix from the run's start whose energy covers the
			// requirement.
			var prefix float64
			for k := i; k <= j; k++ {
				prefix += powerW[k] * hours[k]
				if prefix >= requiredWh {
					end = k
					energyWh = prefix
					durationH = 0
					for m := i; m <= k; m++ {
						durationH += hours[m]
					}
					break
				}
			}
		}
	}

	return LoadWindow{
		Start:             times[i],
		End:               times[end].Add(time.Duration(hours[end] * float64(time.Hour))),
		DurationMin:       durationH * 60,
		EnergyWh:          energyWh,
		SatisfiesRequired: satisfies,
	}, true
}
