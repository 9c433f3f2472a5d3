package timeseries

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

func hourly(n int) []time.Time {
	times := make([]time.Time, n)
	for i := range times {
		times[i] = base.Add(time.Duration(i) * time.Hour)
	}
	return times
}

func TestNewStepModelEmpty(t *testing.T) {
	_, err := NewStepModel(nil, time.Hour)
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestNewStepModelSingleSample(t *testing.T) {
	m, err := NewStepModel(hourly(1), 15*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 900.0, m.StepSeconds())
	assert.Equal(t, 900.0, m.IntervalSeconds(0))

	_, err = NewStepModel(hourly(1), 0)
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestStepModelMedianRobustToGap(t *testing.T) {
	// Hourly series with one missing sample: 00,01,02,04,05.
	times := []time.Time{
		base, base.Add(1 * time.Hour), base.Add(2 * time.Hour),
		base.Add(4 * time.Hour), base.Add(5 * time.Hour),
	}
	m, err := NewStepModel(times, 0)
	require.NoError(t, err)
	assert.Equal(t, 3600.0, m.StepSeconds())
	assert.True(t, m.Irregular())

	// True width across the gap, canonical width for the last sample.
	assert.Equal(t, 7200.0, m.IntervalSeconds(2))
	assert.Equal(t, 3600.0, m.IntervalSeconds(4))
}

func TestStepModelRegular(t *testing.T) {
	m, err := NewStepModel(hourly(24), 0)
	require.NoError(t, err)
	assert.False(t, m.Irregular())

	hours := m.IntervalHours()
	require.Len(t, hours, 24)
	total := 0.0
	for _, h := range hours {
		total += h
	}
	assert.InDelta(t, 24.0, total, 1e-9)
}

func TestStepModelDSTShortDay(t *testing.T) {
	// 23 hourly samples spanning a spring-forward day integrate to 23 hours.
	loc, err := time.LoadLocation("Europe/Warsaw")
	require.NoError(t, err)
	start := time.Date(2025, 3, 30, 0, 0, 0, 0, loc)
	times := make([]time.Time, 23)
	for i := range times {
		times[i] = start.Add(time.Duration(i) * time.Hour)
	}
	m, err := NewStepModel(times, 0)
	require.NoError(t, err)

	total := 0.0
	for _, h := range m.IntervalHours() {
		total += h
	}
	assert.InDelta(t, 23.0, total, 1e-9)
}

func TestParseLabel(t *testing.T) {
	for _, s := range []string{"start", "center", "end"} {
		l, err := ParseLabel(s)
		require.NoError(t, err)
		assert.Equal(t, Label(s), l)
	}
	_, err := ParseLabel("middle")
	assert.Error(t, err)
}

func TestAlign(t *testing.T) {
	times := hourly(3)

	end := Align(times, 3600, LabelEnd)
	assert.Equal(t, base.Add(-30*time.Minute), end[0])

	start := Align(times, 3600, LabelStart)
	assert.Equal(t, base.Add(30*time.Minute), start[0])

	center := Align(times, 3600, LabelCenter)
	assert.Equal(t, times[0], center[0])

	// Zero step leaves timestamps untouched.
	same := Align(times, 0, LabelEnd)
	assert.Equal(t, times[1], same[1])
}

func TestCheckMonotonic(t *testing.T) {
	assert.NoError(t, CheckMonotonic(hourly(4)))

	times := hourly(4)
	times[2] = times[1]
	assert.Error(t, CheckMonotonic(times))
}
