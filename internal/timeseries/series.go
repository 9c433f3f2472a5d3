// Package timeseries provides the sampling-interval model and timestamp-label
// alignment shared by every simulation stage.
package timeseries

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// ErrInsufficientData is returned when a series is empty, or has a single
// sample and no nominal step to fall back to.
var ErrInsufficientData = errors.New("insufficient data to infer sampling step")

// Label describes what instant a provider's timestamp marks within its
// sampling interval. It is a required, explicit configuration value; provider
// convention cannot be reliably inferred from the data alone.
type Label string

const (
	// LabelStart marks the opening instant of the interval [t, t+step).
	LabelStart Label = "start"
	// LabelCenter marks the interval midpoint; no shift needed.
	LabelCenter Label = "center"
	// LabelEnd marks the closing instant of the interval (t-step, t], the
	// convention of most backward-averaged meteorological APIs.
	LabelEnd Label = "end"
)

// ParseLabel validates a label string from configuration.
func ParseLabel(s string) (Label, error) {
	switch Label(s) {
	case LabelStart, LabelCenter, LabelEnd:
		return Label(s), nil
	}
	return "", fmt.Errorf("unsupported time label %q (want start, center or end)", s)
}

// CheckMonotonic verifies timestamps are strictly increasing.
func CheckMonotonic(times []time.Time) error {
	for i := 1; i < len(times); i++ {
		if !times[i].After(times[i-1]) {
			return fmt.Errorf("time index not strictly increasing at position %d (%s then %s)",
				i, times[i-1].Format(time.RFC3339), times[i].Format(time.RFC3339))
		}
	}
	return nil
}

// StepModel infers the canonical sampling step of a time index and exposes
// true per-interval durations for numeric integration.
type StepModel struct {
	times       []time.Time
	stepSeconds float64
}

// NewStepModel builds a step model from a time index. The canonical step is
// the median of consecutive differences, which stays sane across isolated
// gaps or a single daylight-saving irregular interval. With fewer than two
// samples the caller-supplied nominal step is used instead.
func NewStepModel(times []time.Time, nominal time.Duration) (*StepModel, error) {
	if len(times) == 0 {
		return nil, ErrInsufficientData
	}
	if len(times) == 1 {
		if nominal <= 0 {
			return nil, fmt.Errorf("%w: single sample and no nominal step", ErrInsufficientData)
		}
		return &StepModel{times: times, stepSeconds: nominal.Seconds()}, nil
	}

	deltas := make([]float64, len(times)-1)
	for i := 1; i < len(times); i++ {
		deltas[i-1] = times[i].Sub(times[i-1]).Seconds()
	}
	sort.Float64s(deltas)
	median := deltas[len(deltas)/2]
	if len(deltas)%2 == 0 {
		median = (deltas[len(deltas)/2-1] + deltas[len(deltas)/2]) / 2
	}
	if median <= 0 {
		if nominal <= 0 {
			return nil, fmt.Errorf("%w: degenerate time index", ErrInsufficientData)
		}
		median = nominal.Seconds()
	}
	return &StepModel{times: times, stepSeconds: median}, nil
}

// Len returns the number of samples in the index.
func (m *StepModel) Len() int { return len(m.times) }

// StepSeconds returns the canonical (median) step width.
func (m *StepModel) StepSeconds() float64 { return m.stepSeconds }

// IntervalSeconds returns the duration attributed to sample i: the true
// elapsed time to the next sample, except for the last sample which reuses
// the canonical step (there is no next sample to measure against).
func (m *StepModel) IntervalSeconds(i int) float64 {
	if i < 0 || i >= len(m.times) {
		return 0
	}
	if i == len(m.times)-1 {
		return m.stepSeconds
	}
	return m.times[i+1].Sub(m.times[i]).Seconds()
}

// IntervalHours returns all interval widths in hours, for integration.
func (m *StepModel) IntervalHours() []float64 {
	hours := make([]float64, len(m.times))
	for i := range m.times {
		hours[i] = m.IntervalSeconds(i) / 3600.0
	}
	return hours
}

// Irregular reports whether any measured interval deviates from the canonical
// step by more than one second. Gaps are not fatal; integration proceeds on
// true widths, but callers should surface the condition.
func (m *StepModel) Irregular() bool {
	for i := 0; i < len(m.times)-1; i++ {
		if d := m.IntervalSeconds(i) - m.stepSeconds; d > 1 || d < -1 {
			return true
		}
	}
	return false
}

// Align shifts labeled timestamps to the true physical sampling instant.
// This must happen before any sun-position lookup: transposition is
// geometry-sensitive at low sun elevation, and a half-step label error
// systematically biases morning and evening output.
func Align(times []time.Time, stepSeconds float64, label Label) []time.Time {
	if stepSeconds <= 0 || label == LabelCenter {
		out := make([]time.Time, len(times))
		copy(out, times)
		return out
	}
	half := time.Duration(stepSeconds/2*1e9) * time.Nanosecond
	out := make([]time.Time, len(times))
	for i, t := range times {
		switch label {
		case LabelEnd:
			out[i] = t.Add(-half)
		case LabelStart:
			out[i] = t.Add(half)
		default:
			out[i] = t
		}
	}
	return out
}
