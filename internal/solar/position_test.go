package solar

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSolarPositionBasicInvariants(t *testing.T) {
	// Warsaw, summer solstice, near local solar noon.
	noon := time.Date(2025, 6, 21, 11, 0, 0, 0, time.UTC)
	pos := SolarPosition(noon, 52.2, 21.0)

	assert.InDelta(t, 90.0, pos.Zenith+pos.Elevation, 1e-9)
	assert.Greater(t, pos.Elevation, 55.0)
	assert.Less(t, pos.Elevation, 65.0)
	// Sun roughly due south at solar noon in the northern hemisphere.
	assert.InDelta(t, 180.0, pos.Azimuth, 15.0)
}

func TestSolarPositionNight(t *testing.T) {
	midnight := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)
	pos := SolarPosition(midnight, 52.2, 21.0)
	assert.Less(t, pos.Elevation, 0.0)
}

func TestSolarPositionMorningEastOfEvening(t *testing.T) {
	day := time.Date(2025, 6, 21, 0, 0, 0, 0, time.UTC)
	morning := SolarPosition(day.Add(6*time.Hour), 52.2, 21.0)
	evening := SolarPosition(day.Add(16*time.Hour), 52.2, 21.0)

	assert.Less(t, morning.Azimuth, 180.0)
	assert.Greater(t, evening.Azimuth, 180.0)
}

func TestSolarPositionInstantNotWallClock(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Warsaw")
	assert.NoError(t, err)
	utc := time.Date(2025, 6, 21, 10, 0, 0, 0, time.UTC)
	local := utc.In(loc)

	a := SolarPosition(utc, 52.2, 21.0)
	b := SolarPosition(local, 52.2, 21.0)
	assert.InDelta(t, a.Elevation, b.Elevation, 1e-9)
	assert.InDelta(t, a.Azimuth, b.Azimuth, 1e-9)
}

func TestClearSkyConsistency(t *testing.T) {
	noon := time.Date(2025, 6, 21, 11, 0, 0, 0, time.UTC)
	pos := SolarPosition(noon, 52.2, 21.0)
	cs := ClearSkyIrradiance(noon, pos, 100)

	assert.Greater(t, cs.GHI, 500.0)
	assert.Greater(t, cs.DNI, cs.DHI)
	// GHI decomposes exactly into the direct and diffuse parts.
	expected := cs.DNI*math.Cos(degToRad(pos.Zenith)) + cs.DHI
	assert.InDelta(t, expected, cs.GHI, 1e-9)

	night := time.Date(2025, 6, 21, 0, 0, 0, 0, time.UTC)
	nightPos := SolarPosition(night, 52.2, 21.0)
	assert.Equal(t, ClearSky{}, ClearSkyIrradiance(night, nightPos, 100))
}
