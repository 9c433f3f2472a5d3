package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solar_forecast/internal/model"
)

const sampleYAML = `
sites:
  - id: home
    location:
      lat: 52.2
      lon: 21.0
      tz: Europe/Warsaw
      elevation_m: 110
    arrays:
      - id: roof-south
        tilt_deg: 35
        azimuth_deg: 180
        pdc0_w: 5000
        damping: [0.5, 0.8]
        inverter_group: inv1
        inverter_pdc0_w: 2000
      - id: roof-west
        tilt_deg: 20
        azimuth_deg: 250
        pdc0_w: 3000
        eta_inv_nom: 0.97
        losses_percent: 10
        damping: 0.7
        inverter_group: inv1
run:
  timestep_minutes: 15
  label: end
  weather: open-meteo
  damping_window_minutes: 60
  load_window:
    base_load_w: 2000
    min_duration_min: 30
`

func TestParseAppliesDefaults(t *testing.T) {
	c, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)

	sc, err := c.Scenario()
	require.NoError(t, err)
	require.Len(t, sc.Sites, 1)
	require.Len(t, sc.Sites[0].Arrays, 2)

	south := sc.Sites[0].Arrays[0]
	assert.Equal(t, DefaultGammaPdc, south.GammaPdc)
	assert.Equal(t, DefaultDCACRatio, south.DCACRatio)
	assert.Equal(t, DefaultEtaInvNom, south.EtaInvNom)
	assert.Equal(t, float64(DefaultLossesPercent), south.LossesPercent)
	assert.Equal(t, DefaultTempModel, south.TempModel)
	assert.Equal(t, "inv1", south.InverterGroupID)
	assert.Equal(t, 2000.0, south.InverterPdc0W)

	west := sc.Sites[0].Arrays[1]
	assert.Equal(t, 0.97, west.EtaInvNom)
	assert.Equal(t, 10.0, west.LossesPercent)
}

func TestParseDampingForms(t *testing.T) {
	c, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)
	sc, err := c.Scenario()
	require.NoError(t, err)

	// Two values: first morning, second evening.
	south := sc.Sites[0].Arrays[0]
	assert.Equal(t, 0.5, south.DampingMorning)
	assert.Equal(t, 0.8, south.DampingEvening)

	// Scalar applies symmetrically.
	west := sc.Sites[0].Arrays[1]
	assert.Equal(t, 0.7, west.DampingMorning)
	assert.Equal(t, 0.7, west.DampingEvening)
}

func TestParseDampingTooManyValues(t *testing.T) {
	_, err := Parse([]byte(`
sites:
  - id: home
    location: {lat: 52.2, lon: 21.0, tz: UTC}
    arrays:
      - id: a
        tilt_deg: 30
        azimuth_deg: 180
        pdc0_w: 1000
        damping: [0.5, 0.6, 0.7]
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "damping")
}

func TestParseRejectsInvalidScenario(t *testing.T) {
	_, err := Parse([]byte(`
sites:
  - id: home
    location: {lat: 95.0, lon: 21.0, tz: UTC}
    arrays:
      - {id: a, tilt_deg: 30, azimuth_deg: 180, pdc0_w: 1000}
`))
	require.Error(t, err)
	var cerr *model.ConfigError
	assert.ErrorAs(t, err, &cerr)
	assert.Equal(t, "location.lat", cerr.Field)
}

func TestRunConfigDurations(t *testing.T) {
	c, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, 15*time.Minute, c.Run.Timestep())
	assert.Equal(t, time.Hour, c.Run.DampingWindow())
	assert.Equal(t, "end", c.Run.Label)
	require.NotNil(t, c.Run.LoadWindow)
	assert.Equal(t, 2000.0, c.Run.LoadWindow.BaseLoadW)

	var empty RunConfig
	assert.Equal(t, time.Hour, empty.Timestep())
	assert.Equal(t, time.Duration(0), empty.DampingWindow())
}
