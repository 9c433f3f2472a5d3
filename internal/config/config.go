// Package config loads the YAML scenario and run options and maps them onto
// the validated simulation model.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"solar_forecast/internal/model"
)

// Defaults applied when an array omits optional electrical parameters.
const (
	DefaultGammaPdc      = -0.004
	DefaultDCACRatio     = 1.2
	DefaultEtaInvNom     = 0.96
	DefaultLossesPercent = 14
	DefaultTempModel     = "open_rack_glass_glass"
)

// Config is the on-disk configuration shape (YAML).
type Config struct {
	Sites []SiteConfig `yaml:"sites"`
	Run   RunConfig    `yaml:"run"`
}

type SiteConfig struct {
	ID       string         `yaml:"id"`
	Location LocationConfig `yaml:"location"`
	Arrays   []ArrayConfig  `yaml:"arrays"`
}

type LocationConfig struct {
	Lat        float64 `yaml:"lat"`
	Lon        float64 `yaml:"lon"`
	TZ         string  `yaml:"tz"`
	ElevationM float64 `yaml:"elevation_m"`
}

type ArrayConfig struct {
	ID            string    `yaml:"id"`
	TiltDeg       float64   `yaml:"tilt_deg"`
	AzimuthDeg    float64   `yaml:"azimuth_deg"`
	Pdc0W         float64   `yaml:"pdc0_w"`
	GammaPdc      *float64  `yaml:"gamma_pdc"`
	DCACRatio     float64   `yaml:"dc_ac_ratio"`
	EtaInvNom     float64   `yaml:"eta_inv_nom"`
	LossesPercent *float64  `yaml:"losses_percent"`
	TempModel     string    `yaml:"temp_model"`
	HorizonDeg    []float64 `yaml:"horizon_deg"`

	// Damping accepts a single value (applied to both edges) or a
	// [morning, evening] pair.
	Damping dampingSpec `yaml:"damping"`

	InverterGroup string  `yaml:"inverter_group"`
	InverterPdc0W float64 `yaml:"inverter_pdc0_w"`
	PVGISPoaKWhM2 float64 `yaml:"pvgis_poa_kwh_m2"`
}

type RunConfig struct {
	TimestepMinutes      int     `yaml:"timestep_minutes"`
	Label                string  `yaml:"label"`
	Weather              string  `yaml:"weather"` // open-meteo, cloud-scaled, pvgis, composite or csv
	CSVPath              string  `yaml:"csv_path"`
	PVGISCacheDir        string  `yaml:"pvgis_cache_dir"`
	Albedo               float64 `yaml:"albedo"`
	DampingWindowMinutes int     `yaml:"damping_window_minutes"`

	LoadWindow *LoadWindowConfig `yaml:"load_window"`
}

type LoadWindowConfig struct {
	BaseLoadW      float64 `yaml:"base_load_w"`
	MinDurationMin int     `yaml:"min_duration_min"`
	RequiredWh     float64 `yaml:"required_wh"`
}

// dampingSpec accepts either a YAML scalar or a one/two element sequence.
type dampingSpec []float64

func (d *dampingSpec) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var v float64
		if err := node.Decode(&v); err != nil {
			return fmt.Errorf("damping: %w", err)
		}
		*d = dampingSpec{v}
		return nil
	case yaml.SequenceNode:
		var vs []float64
		if err := node.Decode(&vs); err != nil {
			return fmt.Errorf("damping: %w", err)
		}
		if len(vs) < 1 || len(vs) > 2 {
			return fmt.Errorf("damping: want one or two values, got %d", len(vs))
		}
		*d = vs
		return nil
	}
	return fmt.Errorf("damping: unsupported YAML node")
}

// Morning and evening factors; a single configured value applies to both
// edges, absence means no damping (1.0).
func (d dampingSpec) factors() (morning, evening float64) {
	switch len(d) {
	case 0:
		return 1, 1
	case 1:
		return d[0], d[0]
	}
	return d[0], d[1]
}

// Load reads, defaults and validates a scenario file.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(raw)
}

// Parse decodes YAML bytes and validates the resulting scenario.
func Parse(raw []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("decoding scenario yaml: %w", err)
	}
	if _, err := c.Scenario(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Scenario maps the file shape onto the validated simulation model,
// filling array defaults.
func (c *Config) Scenario() (model.Scenario, error) {
	sc := model.Scenario{Sites: make([]model.Site, 0, len(c.Sites))}
	for _, s := range c.Sites {
		site := model.Site{
			ID: s.ID,
			Location: model.Location{
				Lat:        s.Location.Lat,
				Lon:        s.Location.Lon,
				TZ:         s.Location.TZ,
				ElevationM: s.Location.ElevationM,
			},
		}
		for _, a := range s.Arrays {
			site.Arrays = append(site.Arrays, a.toModel())
		}
		sc.Sites = append(sc.Sites, site)
	}
	if err := sc.Validate(); err != nil {
		return model.Scenario{}, err
	}
	return sc, nil
}

func (a ArrayConfig) toModel() model.Array {
	arr := model.Array{
		ID:              a.ID,
		TiltDeg:         a.TiltDeg,
		AzimuthDeg:      a.AzimuthDeg,
		Pdc0W:           a.Pdc0W,
		GammaPdc:        DefaultGammaPdc,
		DCACRatio:       a.DCACRatio,
		EtaInvNom:       a.EtaInvNom,
		LossesPercent:   DefaultLossesPercent,
		TempModel:       a.TempModel,
		Horizon:         model.HorizonProfile(a.HorizonDeg),
		InverterGroupID: a.InverterGroup,
		InverterPdc0W:   a.InverterPdc0W,
		PVGISPoaKWhM2:   a.PVGISPoaKWhM2,
	}
	if a.GammaPdc != nil {
		arr.GammaPdc = *a.GammaPdc
	}
	if arr.DCACRatio == 0 {
		arr.DCACRatio = DefaultDCACRatio
	}
	if arr.EtaInvNom == 0 {
		arr.EtaInvNom = DefaultEtaInvNom
	}
	if a.LossesPercent != nil {
		arr.LossesPercent = *a.LossesPercent
	}
	if arr.TempModel == "" {
		arr.TempModel = DefaultTempModel
	}
	arr.DampingMorning, arr.DampingEvening = a.Damping.factors()
	return arr
}

// Timestep returns the configured sampling step, defaulting to one hour.
func (r RunConfig) Timestep() time.Duration {
	if r.TimestepMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(r.TimestepMinutes) * time.Minute
}

// DampingWindow returns the configured ramp window; zero means "use the
// engine default".
func (r RunConfig) DampingWindow() time.Duration {
	if r.DampingWindowMinutes <= 0 {
		return 0
	}
	return time.Duration(r.DampingWindowMinutes) * time.Minute
}
