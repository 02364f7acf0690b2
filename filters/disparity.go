package filters

import (
	"context"

	"github.com/pkg/errors"

	"go.viam.com/rsnode/device"
)

// Registry names of the two disparity transform stages.
const (
	DisparityStartName = "disparity_start"
	DisparityEndName   = "disparity_end"
)

// NewDisparityTransform converts depth to disparity (toDisparity) or back. Smoothing in the
// disparity domain weighs near and far errors evenly. baseline is in meters and depthScale in
// meters per depth unit.
func NewDisparityTransform(toDisparity bool, baseline, depthScale float64) (Filter, error) {
	if baseline <= 0 || depthScale <= 0 {
		return nil, errors.Errorf("disparity transform needs a positive baseline and depth scale, got %v and %v",
			baseline, depthScale)
	}
	name := DisparityEndName
	if toDisparity {
		name = DisparityStartName
	}
	return &perFrame{name: name, fn: func(ctx context.Context, f *device.Frame) (*device.Frame, error) {
		if f.Profile.Kind != device.Depth {
			return nil, nil
		}
		if toDisparity && f.Profile.Format != device.FormatZ16 {
			return nil, nil
		}
		if !toDisparity && f.Profile.Format != device.FormatDisparity32 {
			return nil, nil
		}
		if err := f.Profile.Intrinsics.CheckValid(); err != nil {
			return nil, errors.Wrap(err, "disparity conversion needs the depth focal length")
		}
		// depth[m] * disparity[px] = baseline[m] * fx[px]
		factor := baseline * f.Profile.Intrinsics.Fx / depthScale
		p := f.Profile
		if toDisparity {
			p.Format = device.FormatDisparity32
			out := f.Derive(p)
			out.Disparity = make([]float32, len(f.Depth))
			for i, v := range f.Depth {
				if v != 0 {
					out.Disparity[i] = float32(factor / float64(v))
				}
			}
			return out, nil
		}
		p.Format = device.FormatZ16
		out := f.Derive(p)
		out.Depth = make([]uint16, len(f.Disparity))
		for i, v := range f.Disparity {
			if v > 0 {
				out.Depth[i] = toUint16(factor / float64(v))
			}
		}
		return out, nil
	}}, nil
}
