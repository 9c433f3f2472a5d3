// Package weather fetches and shapes per-site forecast inputs for the
// simulation engine: timezone-aware timestamps plus GHI/DNI/DHI (W/m²), air
// temperature (°C) and wind speed (m/s). Unit conversion is this layer's
// responsibility, not the engine's.
package weather

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrNaiveTimestamp is returned when a source supplies wall-clock timestamps
// with no resolvable timezone. Naive timestamps produce silently wrong sun
// positions, so they are rejected at ingest.
var ErrNaiveTimestamp = errors.New("timestamp has no timezone information")

// Series is one site's weather forecast. All slices share the Times index.
// Missing DNI/DHI samples are NaN; the engine fills them by decomposition.
type Series struct {
	Times      []time.Time
	GHI        []float64
	DNI        []float64
	DHI        []float64
	TempAirC   []float64
	WindMS     []float64
	CloudCover []float64 // percent, only populated when the provider has it
}

// Len returns the number of samples.
func (s Series) Len() int { return len(s.Times) }

// Validate checks the series satisfies the engine's input contract.
func (s Series) Validate() error {
	if len(s.Times) == 0 {
		return errors.New("empty weather series")
	}
	n := len(s.Times)
	for name, col := range map[string][]float64{
		"ghi": s.GHI, "dni": s.DNI, "dhi": s.DHI,
		"temp_air_c": s.TempAirC, "wind_ms": s.WindMS,
	} {
		if len(col) != n {
			return fmt.Errorf("weather column %s has %d samples, want %d", name, len(col), n)
		}
	}
	return nil
}

// Slice returns the subset of samples with start <= t < end.
func (s Series) Slice(start, end time.Time) Series {
	lo, hi := 0, len(s.Times)
	for lo < hi && s.Times[lo].Before(start) {
		lo++
	}
	for hi > lo && !s.Times[hi-1].Before(end) {
		hi--
	}
	out := Series{
		Times:    s.Times[lo:hi],
		GHI:      s.GHI[lo:hi],
		DNI:      s.DNI[lo:hi],
		DHI:      s.DHI[lo:hi],
		TempAirC: s.TempAirC[lo:hi],
		WindMS:   s.WindMS[lo:hi],
	}
	if len(s.CloudCover) == len(s.Times) {
		out.CloudCover = s.CloudCover[lo:hi]
	}
	return out
}

// Location identifies one forecast point for a provider request.
type Location struct {
	ID         string
	Lat        float64
	Lon        float64
	ElevationM float64
}

// Provider fetches a day's forecast for a set of locations, keyed by
// location ID. step is the requested sampling interval.
type Provider interface {
	Forecast(ctx context.Context, locations []Location, day time.Time, step time.Duration) (map[string]Series, error)
}

// nanSlice returns an all-NaN column of length n, marking absent data.
func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
