package filters

import (
	"math"

	"go.viam.com/rsnode/device"
)

// rangeValues returns the samples of a depth or disparity frame as floats. Zero is invalid in
// both domains.
func rangeValues(f *device.Frame) ([]float64, bool) {
	switch {
	case f.Profile.Kind != device.Depth:
		return nil, false
	case f.Profile.Format == device.FormatZ16 && f.Depth != nil:
		vals := make([]float64, len(f.Depth))
		for i, v := range f.Depth {
			vals[i] = float64(v)
		}
		return vals, true
	case f.Profile.Format == device.FormatDisparity32 && f.Disparity != nil:
		vals := make([]float64, len(f.Disparity))
		for i, v := range f.Disparity {
			vals[i] = float64(v)
		}
		return vals, true
	}
	return nil, false
}

// withRangeValues returns a copy of f whose payload is vals, encoded in f's format.
func withRangeValues(f *device.Frame, vals []float64) *device.Frame {
	out := f.Derive(f.Profile)
	if f.Profile.Format == device.FormatDisparity32 {
		out.Disparity = make([]float32, len(vals))
		for i, v := range vals {
			out.Disparity[i] = float32(v)
		}
		return out
	}
	out.Depth = make([]uint16, len(vals))
	for i, v := range vals {
		out.Depth[i] = toUint16(v)
	}
	return out
}

func toUint16(v float64) uint16 {
	switch {
	case v <= 0 || math.IsNaN(v):
		return 0
	case v >= math.MaxUint16:
		return math.MaxUint16
	}
	return uint16(math.Round(v))
}
