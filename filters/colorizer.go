package filters

import (
	"context"

	"github.com/lucasb-eyer/go-colorful"

	"go.viam.com/rsnode/device"
)

// ColorizerName is the registry name of the colorizer stage.
const ColorizerName = "colorizer"

// NewColorizer renders depth as an RGB8 frame of the same stream: near samples are red, far ones
// blue, invalid ones black. The range is taken from the valid samples of each frame.
func NewColorizer() Filter {
	return &perFrame{name: ColorizerName, fn: func(ctx context.Context, f *device.Frame) (*device.Frame, error) {
		vals, ok := rangeValues(f)
		if !ok {
			return nil, nil
		}
		// disparity grows toward the camera
		nearIsLow := f.Profile.Format != device.FormatDisparity32

		minV, maxV := 0.0, 0.0
		for _, v := range vals {
			if v == 0 {
				continue
			}
			if minV == 0 || v < minV {
				minV = v
			}
			if v > maxV {
				maxV = v
			}
		}

		p := f.Profile
		p.Format = device.FormatRGB8
		out := f.Derive(p)
		out.Data = make([]byte, len(vals)*3)
		for i, v := range vals {
			if v == 0 {
				continue
			}
			t := 0.0
			if maxV > minV {
				t = (v - minV) / (maxV - minV)
			}
			if !nearIsLow {
				t = 1 - t
			}
			r, g, b := colorful.Hsv(240*t, 1, 1).RGB255()
			out.Data[i*3], out.Data[i*3+1], out.Data[i*3+2] = r, g, b
		}
		return out, nil
	}}
}
