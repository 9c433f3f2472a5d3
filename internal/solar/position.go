// Package solar provides the pure physics collaborators the simulation
// engine composes: sun position, clear-sky and plane-of-array irradiance,
// cell temperature, and the PVWatts DC/AC power curves. All functions are
// timestep-independent and deterministic.
package solar

import (
	"math"
	"time"
)

const solarConstant = 1361.0 // W/m² at the top of the atmosphere

func degToRad(deg float64) float64 { return deg * (math.Pi / 180.0) }
func radToDeg(rad float64) float64 { return rad * (180.0 / math.Pi) }

// fixAngle normalizes an angle to [0, 360).
func fixAngle(angle float64) float64 {
	a := math.Mod(angle, 360)
	if a < 0 {
		a += 360
	}
	return a
}

// jdFromTime converts a time to Julian Day.
func jdFromTime(t time.Time) float64 {
	return 2440587.5 + float64(t.Unix())/86400.0
}

// equationOfTime returns the difference between apparent and mean solar time
// in minutes.
func equationOfTime(t time.Time) float64 {
	jd := jdFromTime(t)
	T := (jd - 2451545.0) / 36525.0 // Julian centuries since J2000.0

	L0 := fixAngle(280.46646 + T*(36000.76983+T*0.0003032)) // mean longitude
	M := fixAngle(357.52911 + T*(35999.05029-T*0.0001537))  // mean anomaly
	e := 0.016708634 - T*(0.000042037+T*0.0000001267)       // orbital eccentricity
	eps0 := 23 + (26+(21.448-T*(46.815+T*(0.00059-T*0.001813)))/60)/60

	y := math.Tan(degToRad(eps0)/2) * math.Tan(degToRad(eps0)/2)
	return radToDeg(y*math.Sin(degToRad(2*L0))-
		2*e*math.Sin(degToRad(M))+
		4*e*y*math.Sin(degToRad(M))*math.Cos(degToRad(2*L0))-
		0.5*y*y*math.Sin(degToRad(4*L0))-
		1.25*e*e*math.Sin(degToRad(2*M))) * 4
}

// declination returns the solar declination angle in degrees.
func declination(t time.Time) float64 {
	n := t.UTC().YearDay()
	return 23.45 * math.Sin(degToRad(360.0/365.0*float64(n-81)))
}

// hourAngle returns the sun's hour angle in degrees (0 at solar noon,
// negative in the morning).
func hourAngle(t time.Time, lonDeg float64) float64 {
	utc := t.UTC()
	utcMin := float64(utc.Hour()*60+utc.Minute()) + float64(utc.Second())/60.0
	tst := utcMin + 4*lonDeg + equationOfTime(t) // true solar time, minutes
	h := tst/4 - 180
	if h < -180 {
		h += 360
	}
	if h > 180 {
		h -= 360
	}
	return h
}

// Position holds solar angles in degrees. Azimuth is measured from true
// north, increasing clockwise.
type Position struct {
	Zenith    float64
	Elevation float64
	Azimuth   float64
}

// SolarPosition computes the sun's apparent position for one instant. The
// timestamp's absolute instant is what matters; callers are responsible for
// having resolved the provider's wall-clock labels to real zoned times.
func SolarPosition(t time.Time, latDeg, lonDeg float64) Position {
	delta := declination(t)
	h := hourAngle(t, lonDeg)

	latRad := degToRad(latDeg)
	deltaRad := degToRad(delta)
	hRad := degToRad(h)

	cosZ := math.Sin(latRad)*math.Sin(deltaRad) + math.Cos(latRad)*math.Cos(deltaRad)*math.Cos(hRad)
	cosZ = math.Max(-1, math.Min(1, cosZ))
	zenith := radToDeg(math.Acos(cosZ))
	elevation := 90 - zenith

	// Azimuth from north, clockwise. Guard the degenerate zenith.
	sinZ := math.Sin(degToRad(zenith))
	azimuth := 180.0
	if sinZ > 1e-9 {
		cosAz := (math.Sin(deltaRad) - math.Sin(latRad)*cosZ) / (math.Cos(latRad) * sinZ)
		cosAz = math.Max(-1, math.Min(1, cosAz))
		azimuth = radToDeg(math.Acos(cosAz))
		if h > 0 {
			azimuth = 360 - azimuth
		}
	}

	return Position{Zenith: zenith, Elevation: elevation, Azimuth: azimuth}
}

// Positions computes solar positions for a series of instants.
func Positions(times []time.Time, latDeg, lonDeg float64) []Position {
	out := make([]Position, len(times))
	for i, t := range times {
		out[i] = SolarPosition(t, latDeg, lonDeg)
	}
	return out
}
