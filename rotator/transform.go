package rotator

import "math"

// SkyOffset is the angle between the sky elevation reference and the
// gimbal's elevation zero.
const SkyOffset = 90.0

// Limits is the allowed travel of one axis, in degrees.
type Limits struct {
	Min float64 `json:"min" koanf:"min"`
	Max float64 `json:"max" koanf:"max"`
}

// Clip clamps v into the limits.
func (l Limits) Clip(v float64) float64 {
	return Clip(v, l.Min, l.Max)
}

// Valid reports whether Min <= Max.
func (l Limits) Valid() bool {
	return l.Min <= l.Max && !math.IsNaN(l.Min) && !math.IsNaN(l.Max)
}

// Clip clamps v into [lo, hi]. NaN clamps to lo.
func Clip(v, lo, hi float64) float64 {
	switch {
	case math.IsNaN(v), v < lo:
		return lo
	case v > hi:
		return hi
	}
	return v
}

// ToCounts converts degrees to the nearest controller count. Halves round
// to even.
func ToCounts(deg, countsPerDeg float64) int {
	return int(math.RoundToEven(deg * countsPerDeg))
}

// ToDegrees converts controller counts to degrees.
func ToDegrees(counts, countsPerDeg float64) float64 {
	if countsPerDeg == 0 {
		return 0
	}
	return counts / countsPerDeg
}

// SkyToGimbalElevation converts an elevation measured from the sky
// reference into the gimbal frame.
func SkyToGimbalElevation(elSky float64) float64 {
	return elSky - SkyOffset
}

func GimbalToSkyElevation(elGimbal float64) float64 {
	return elGimbal + SkyOffset
}
