package model

import (
	"fmt"
	"math"
)

// ConfigError reports an invalid scenario parameter. Configuration problems
// are fatal and surface before any simulation starts.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func configErrf(field, format string, args ...any) error {
	return &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// MinHorizonBins is the smallest horizon profile resolution we accept (30° bins).
const MinHorizonBins = 12

// HorizonProfile holds terrain elevation angles (degrees) in equally spaced
// azimuth bins starting at true north (0°), increasing clockwise. The bins
// cover the full circle exactly once.
type HorizonProfile []float64

func (h HorizonProfile) Validate() error {
	if len(h) == 0 {
		return nil
	}
	if len(h) < MinHorizonBins {
		return configErrf("horizon_deg", "need at least %d bins, got %d", MinHorizonBins, len(h))
	}
	for i, v := range h {
		if math.IsNaN(v) || v < 0 || v > 90 {
			return configErrf("horizon_deg", "bin %d elevation %v out of range [0, 90]", i, v)
		}
	}
	return nil
}

// ElevationAt returns the horizon elevation at the given azimuth bearing,
// linearly interpolated between the two bracketing bins with wrap-around at
// 360°.
func (h HorizonProfile) ElevationAt(azimuthDeg float64) float64 {
	if len(h) == 0 {
		return 0
	}
	az := math.Mod(azimuthDeg, 360)
	if az < 0 {
		az += 360
	}
	binWidth := 360.0 / float64(len(h))
	pos := az / binWidth
	lo := int(math.Floor(pos)) % len(h)
	hi := (lo + 1) % len(h)
	frac := pos - math.Floor(pos)
	return h[lo]*(1-frac) + h[hi]*frac
}

// Location is a site's geographic position.
type Location struct {
	Lat        float64
	Lon        float64
	TZ         string
	ElevationM float64
}

func (l Location) Validate() error {
	if l.Lat < -90 || l.Lat > 90 {
		return configErrf("location.lat", "latitude %v outside [-90, 90]", l.Lat)
	}
	if l.Lon < -180 || l.Lon > 180 {
		return configErrf("location.lon", "longitude %v outside [-180, 180]", l.Lon)
	}
	if l.ElevationM < -430 {
		return configErrf("location.elevation_m", "elevation %v below plausible minimum", l.ElevationM)
	}
	return nil
}

// Array is the immutable per-array configuration. Created at config load,
// never mutated during simulation.
type Array struct {
	ID         string
	TiltDeg    float64
	AzimuthDeg float64

	// Pdc0W is the nameplate DC power at standard test conditions.
	Pdc0W         float64
	GammaPdc      float64 // temperature coefficient of power, 1/°C (negative)
	DCACRatio     float64
	EtaInvNom     float64
	LossesPercent float64
	TempModel     string // SAPM mounting key, e.g. open_rack_glass_glass

	Horizon HorizonProfile

	// Damping factors near sunrise/sunset; 1.0 means no attenuation and 0
	// fully suppresses output at the sun edge. Callers building Arrays by
	// hand must set these; the config loader maps absent damping to 1.0.
	DampingMorning float64
	DampingEvening float64

	// InverterGroupID ties arrays sharing a physical inverter. Empty means
	// the array inverts independently (a singleton group).
	InverterGroupID string
	// InverterPdc0W is an explicit inverter DC input limit override for this
	// array's contribution to its group. Zero means derive from
	// Pdc0W / DCACRatio.
	InverterPdc0W float64

	// PVGISPoaKWhM2 is an optional climatology reference used to clamp
	// implausible daily POA totals. Zero disables the check.
	PVGISPoaKWhM2 float64
}

func (a Array) Validate() error {
	if a.ID == "" {
		return configErrf("array.id", "required")
	}
	if a.TiltDeg < 0 || a.TiltDeg > 90 {
		return configErrf("array.tilt_deg", "tilt %v outside [0, 90]", a.TiltDeg)
	}
	if a.AzimuthDeg < -180 || a.AzimuthDeg > 360 {
		return configErrf("array.azimuth_deg", "azimuth %v outside [-180, 360]", a.AzimuthDeg)
	}
	if a.Pdc0W < 0 {
		return configErrf("array.pdc0_w", "must be non-negative, got %v", a.Pdc0W)
	}
	if a.GammaPdc > 0 {
		return configErrf("array.gamma_pdc", "power temperature coefficient must not be positive, got %v", a.GammaPdc)
	}
	if a.DCACRatio <= 0 {
		return configErrf("array.dc_ac_ratio", "must be positive, got %v", a.DCACRatio)
	}
	if a.EtaInvNom <= 0 || a.EtaInvNom > 1 {
		return configErrf("array.eta_inv_nom", "must be in (0, 1], got %v", a.EtaInvNom)
	}
	if a.LossesPercent < 0 || a.LossesPercent > 100 {
		return configErrf("array.losses_percent", "must be in [0, 100], got %v", a.LossesPercent)
	}
	if a.TempModel == "" {
		return configErrf("array.temp_model", "required")
	}
	if a.DampingMorning < 0 || a.DampingMorning > 1 {
		return configErrf("array.damping", "morning factor %v outside [0, 1]", a.DampingMorning)
	}
	if a.DampingEvening < 0 || a.DampingEvening > 1 {
		return configErrf("array.damping", "evening factor %v outside [0, 1]", a.DampingEvening)
	}
	if a.InverterPdc0W < 0 {
		return configErrf("array.inverter_pdc0_w", "must be non-negative, got %v", a.InverterPdc0W)
	}
	return a.Horizon.Validate()
}

// GroupPdc0W is this array's contribution to its inverter group's DC input
// limit: the explicit override when set, otherwise nameplate over DC/AC ratio.
func (a Array) GroupPdc0W() float64 {
	if a.InverterPdc0W > 0 {
		return a.InverterPdc0W
	}
	return a.Pdc0W / a.DCACRatio
}

// Site groups one or more arrays at a single location.
type Site struct {
	ID       string
	Location Location
	Arrays   []Array
}

func (s Site) Validate() error {
	if s.ID == "" {
		return configErrf("site.id", "required")
	}
	if err := s.Location.Validate(); err != nil {
		return fmt.Errorf("site %s: %w", s.ID, err)
	}
	if len(s.Arrays) == 0 {
		return configErrf("site.arrays", "site %s must contain at least one array", s.ID)
	}
	seen := make(map[string]bool, len(s.Arrays))
	for _, a := range s.Arrays {
		if err := a.Validate(); err != nil {
			return fmt.Errorf("site %s: %w", s.ID, err)
		}
		if seen[a.ID] {
			return configErrf("array.id", "duplicate array id %q in site %s", a.ID, s.ID)
		}
		seen[a.ID] = true
	}
	return nil
}

// Scenario is the complete simulation input: all sites and their arrays.
type Scenario struct {
	Sites []Site
}

func (sc Scenario) Validate() error {
	if len(sc.Sites) == 0 {
		return configErrf("sites", "scenario must include at least one site")
	}
	seen := make(map[string]bool, len(sc.Sites))
	for _, s := range sc.Sites {
		if err := s.Validate(); err != nil {
			return err
		}
		if seen[s.ID] {
			return configErrf("site.id", "duplicate site id %q", s.ID)
		}
		seen[s.ID] = true
	}
	return nil
}
