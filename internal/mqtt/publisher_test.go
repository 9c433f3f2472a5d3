package mqtt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solar_forecast/internal/engine"
)

func sampleState(generated time.Time, totalKWh float64) State {
	return State{
		GeneratedAt:    generated,
		Date:           "2025-06-21",
		TotalEnergyKWh: totalKWh,
		Sites: []SiteState{{
			ID:             "home",
			TotalEnergyKWh: totalKWh,
			Arrays: []ArrayState{{
				ID: "roof-south", EnergyKWh: totalKWh, PeakKW: 3.1,
			}},
		}},
	}
}

func TestShouldPublishGuards(t *testing.T) {
	base := time.Date(2025, 6, 21, 6, 0, 0, 0, time.UTC)
	remote := sampleState(base, 20)

	// No retained state: always publish.
	assert.True(t, ShouldPublish(sampleState(base.Add(time.Hour), 21), nil))

	// Newer and changed: publish.
	assert.True(t, ShouldPublish(sampleState(base.Add(time.Hour), 21), &remote))

	// Newer but identical payload: skip.
	assert.False(t, ShouldPublish(sampleState(base.Add(time.Hour), 20), &remote))

	// Changed but older: skip.
	assert.False(t, ShouldPublish(sampleState(base.Add(-time.Hour), 21), &remote))

	// Same timestamp: not newer, skip.
	assert.False(t, ShouldPublish(sampleState(base, 21), &remote))
}

func TestCanonicalHashIgnoresGeneratedAt(t *testing.T) {
	a := sampleState(time.Date(2025, 6, 21, 6, 0, 0, 0, time.UTC), 20)
	b := sampleState(time.Date(2025, 6, 21, 9, 0, 0, 0, time.UTC), 20)
	assert.Equal(t, CanonicalHash(a), CanonicalHash(b))

	c := sampleState(a.GeneratedAt, 25)
	assert.NotEqual(t, CanonicalHash(a), CanonicalHash(c))
}

func TestBuildStateSortsAndSkipsFailedSites(t *testing.T) {
	result := &engine.Result{
		Day:            time.Date(2025, 6, 21, 0, 0, 0, 0, time.UTC),
		TotalEnergyKWh: 30,
		Sites: []engine.SiteResult{
			{
				SiteID: "zulu",
				Rollup: engine.SiteRollup{EnergyKWh: 18},
				Arrays: []engine.ArrayResult{
					{ArrayID: "west", Rollup: engine.DailyRollup{EnergyKWh: 8}},
					{ArrayID: "east", Rollup: engine.DailyRollup{EnergyKWh: 10}},
				},
			},
			{SiteID: "broken", Err: assert.AnError},
			{
				SiteID: "alpha",
				Rollup: engine.SiteRollup{EnergyKWh: 12},
				Arrays: []engine.ArrayResult{
					{ArrayID: "roof", Rollup: engine.DailyRollup{EnergyKWh: 12}},
				},
			},
		},
	}

	generated := time.Date(2025, 6, 21, 5, 30, 0, 0, time.UTC)
	s := BuildState(result, generated)

	assert.Equal(t, "2025-06-21", s.Date)
	assert.Equal(t, 30.0, s.TotalEnergyKWh)
	require.Len(t, s.Sites, 2)
	assert.Equal(t, "alpha", s.Sites[0].ID)
	assert.Equal(t, "zulu", s.Sites[1].ID)
	require.Len(t, s.Sites[1].Arrays, 2)
	assert.Equal(t, "east", s.Sites[1].Arrays[0].ID)
	assert.Equal(t, "west", s.Sites[1].Arrays[1].ID)
}

func TestDiscoveryConfigShape(t *testing.T) {
	cfg := Config{BaseTopic: "pv"}
	disc := DiscoveryConfig(cfg)

	assert.Equal(t, "pv_forecast", disc["uniq_id"])
	assert.Equal(t, "pv/forecast", disc["stat_t"])
	assert.Equal(t, "pv/availability", disc["avty_t"])
	assert.Equal(t, "kWh", disc["unit_of_meas"])
	assert.Equal(t, "energy", disc["dev_cla"])
}

func TestConfigTopics(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.Equal(t, "solar_forecast/forecast", cfg.StateTopic())
	assert.Equal(t, "homeassistant/sensor/solar_forecast_forecast/config", cfg.DiscoveryTopic())
	assert.Equal(t, "solar_forecast-publisher", cfg.ClientID)
	assert.Equal(t, 10*time.Second, cfg.ConnectTimeout)
}
