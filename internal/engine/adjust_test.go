package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeScaleHalvesForecast(t *testing.T) {
	oc := ComputeScale(10, 5)
	assert.True(t, oc.Applied)
	assert.InDelta(t, 0.5, oc.Scale, 1e-9)
	assert.False(t, oc.Reset)
	assert.False(t, oc.Undefined)
}

func TestComputeScaleZeroActualIsReset(t *testing.T) {
	oc := ComputeScale(10, 0)
	assert.False(t, oc.Applied)
	assert.True(t, oc.Reset)
	assert.Equal(t, 1.0, oc.Scale)
}

func TestComputeScaleUndefinedReportedNotDivided(t *testing.T) {
	oc := ComputeScale(0, 3)
	assert.False(t, oc.Applied)
	assert.True(t, oc.Undefined)
	assert.Equal(t, 1.0, oc.Scale)
}

func TestComputeScaleClampedNonNegative(t *testing.T) {
	oc := ComputeScale(10, -2)
	assert.True(t, oc.Applied)
	assert.Equal(t, 0.0, oc.Scale)
}

func TestApplyAdjustmentScalesOnlyFuture(t *testing.T) {
	day := time.Date(2025, 6, 21, 0, 0, 0, 0, time.UTC)
	times := make([]time.Time, 6)
	power := make([]float64, 6)
	hours := make([]float64, 6)
	for i := range times {
		times[i] = day.Add(time.Duration(i) * time.Hour)
		power[i] = 2000
		hours[i] = 1
	}
	now := times[2] // 02:00

	predicted := PredictedKWhUpTo(power, hours, times, now)
	require.InDelta(t, 6.0, predicted, 1e-9) // samples 0..2 inclusive

	adjusted := ApplyAdjustment(power, times, now, 0.5)
	// At or before now: numerically untouched.
	assert.Equal(t, 2000.0, adjusted[0])
	assert.Equal(t, 2000.0, adjusted[2])
	// Strictly after now: a 2 kW interval becomes 1 kW.
	assert.Equal(t, 1000.0, adjusted[3])
	assert.Equal(t, 1000.0, adjusted[5])
	// Input untouched.
	assert.Equal(t, 2000.0, power[3])
}
