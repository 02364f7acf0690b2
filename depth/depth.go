// Package depth holds the in-place post processing applied to Z16 depth buffers.
package depth

import "math"

// ScaleTolerance is how close two depth scales must be to be treated as equal.
const ScaleTolerance = 1e-6

// DefaultTargetScale is the published depth unit, one millimeter.
const DefaultTargetScale = 0.001

// ClipThreshold converts a distance in meters to device units. A non-positive distance has no
// threshold.
func ClipThreshold(maxDistance, scale float64) (uint16, bool) {
	if maxDistance <= 0 || scale <= 0 {
		return 0, false
	}
	units := math.Floor(maxDistance/scale + ScaleTolerance)
	if units >= math.MaxUint16 {
		return math.MaxUint16, true
	}
	return uint16(units), true
}

// Clip zeroes every sample beyond maxDistance meters, given the device scale in meters per unit.
// A non-positive maxDistance leaves buf untouched.
func Clip(buf []uint16, maxDistance, scale float64) {
	threshold, ok := ClipThreshold(maxDistance, scale)
	if !ok {
		return
	}
	for i, v := range buf {
		if v > threshold {
			buf[i] = 0
		}
	}
}

// Rescale converts buf from nativeScale to targetScale units in place and reports whether any
// change was made. Scales equal within ScaleTolerance leave buf untouched.
func Rescale(buf []uint16, nativeScale, targetScale float64) bool {
	if targetScale <= 0 || math.Abs(nativeScale-targetScale) < ScaleTolerance {
		return false
	}
	for i, v := range buf {
		scaled := math.Round(float64(v) * nativeScale / targetScale)
		if scaled >= math.MaxUint16 {
			buf[i] = math.MaxUint16
			continue
		}
		buf[i] = uint16(scaled)
	}
	return true
}
