package solar

import (
	"math"

	"solar_forecast/internal/model"
)

// POA holds plane-of-array irradiance components per timestep (W/m²),
// plus the horizon-mask audit counters the engine reports.
type POA struct {
	Global  []float64
	Direct  []float64
	Diffuse []float64
	Ground  []float64

	// MaskedSamples counts timesteps where terrain blocked the direct beam.
	MaskedSamples int
	// MaxMaskedDNI is the largest DNI value that was zeroed by the mask.
	MaxMaskedDNI float64
}

// POAInput bundles the per-array transposition inputs. All slices share one
// time index.
type POAInput struct {
	TiltDeg    float64
	AzimuthDeg float64
	Albedo     float64 // 0 defaults to 0.2

	GHI []float64
	DNI []float64
	DHI []float64

	Positions []Position

	// Horizon is the optional per-array terrain profile. When the sun sits
	// below the interpolated horizon elevation the direct component is zeroed;
	// diffuse and ground-reflected stay untouched because terrain blocks the
	// solar disk, not most of the scattered sky dome.
	Horizon model.HorizonProfile
}

// PlaneOfArray transposes horizontal irradiance onto a tilted surface using
// an isotropic sky-diffuse model, applying the horizon mask to the direct
// component before summation. Negative inputs and float noise are clipped to
// zero for determinism.
func PlaneOfArray(in POAInput) POA {
	n := len(in.Positions)
	out := POA{
		Global:  make([]float64, n),
		Direct:  make([]float64, n),
		Diffuse: make([]float64, n),
		Ground:  make([]float64, n),
	}

	albedo := in.Albedo
	if albedo == 0 {
		albedo = 0.2
	}
	surfaceAz := fixAngle(in.AzimuthDeg)
	tiltRad := degToRad(in.TiltDeg)
	cosTilt := math.Cos(tiltRad)
	sinTilt := math.Sin(tiltRad)

	for i := 0; i < n; i++ {
		pos := in.Positions[i]
		ghi := math.Max(0, in.GHI[i])
		dni := math.Max(0, in.DNI[i])
		dhi := math.Max(0, in.DHI[i])

		zenRad := degToRad(pos.Zenith)
		cosAOI := cosTilt*math.Cos(zenRad) +
			sinTilt*math.Sin(zenRad)*math.Cos(degToRad(pos.Azimuth-surfaceAz))

		direct := dni * math.Max(0, cosAOI)
		if len(in.Horizon) > 0 && direct > 0 {
			if pos.Elevation < in.Horizon.ElevationAt(pos.Azimuth) {
				direct = 0
				out.MaskedSamples++
				if dni > out.MaxMaskedDNI {
					out.MaxMaskedDNI = dni
				}
			}
		}

		diffuse := dhi * (1 + cosTilt) / 2
		ground := ghi * albedo * (1 - cosTilt) / 2

		out.Direct[i] = direct
		out.Diffuse[i] = diffuse
		out.Ground[i] = ground
		out.Global[i] = direct + diffuse + ground
	}
	return out
}
