// Package units provides shared astronomical unit conversions for
// angles and fluxes.
package units

import "math"

// Angle conversion factors.
const (
	DegPerRad    = 180 / math.Pi
	ArcsecPerDeg = 3600.0
	MasPerArcsec = 1000.0
)

// DegToRad converts degrees to radians.
func DegToRad(deg float64) float64 { return deg / DegPerRad }

// RadToDeg converts radians to degrees.
func RadToDeg(rad float64) float64 { return rad * DegPerRad }

// DegToArcsec converts degrees to arcseconds.
func DegToArcsec(deg float64) float64 { return deg * ArcsecPerDeg }

// ArcsecToDeg converts arcseconds to degrees.
func ArcsecToDeg(arcsec float64) float64 { return arcsec / ArcsecPerDeg }

// ABZeroPoint is the AB magnitude zero point used for flux/magnitude
// conversions. Fluxes are in nanojansky.
const ABZeroPoint = 31.4

// FluxToMag converts a flux in nanojansky to an AB magnitude.
// Non-positive fluxes return NaN; callers should check before use.
func FluxToMag(fluxNJy float64) float64 {
	if fluxNJy <= 0 {
		return math.NaN()
	}
	return ABZeroPoint - 2.5*math.Log10(fluxNJy)
}

// MagToFlux converts an AB magnitude to a flux in nanojansky.
func MagToFlux(mag float64) float64 {
	return math.Pow(10, (ABZeroPoint-mag)/2.5)
}

// MagErr propagates a flux uncertainty to a magnitude uncertainty.
func MagErr(fluxNJy, fluxErr float64) float64 {
	if fluxNJy <= 0 {
		return math.NaN()
	}
	return 2.5 / math.Ln10 * fluxErr / fluxNJy
}
