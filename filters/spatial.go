package filters

import (
	"context"
	"math"

	"github.com/pkg/errors"

	"go.viam.com/rsnode/device"
)

// SpatialName is the registry name of the spatial stage.
const SpatialName = "spatial"

// SpatialOptions tune the edge preserving smoother.
type SpatialOptions struct {
	// Alpha is the weight of the current sample, in (0, 1].
	Alpha float64
	// Delta is the step size, in sample units, above which an edge stops smoothing.
	Delta float64
	// Iterations of the four directional passes.
	Iterations int
}

// DefaultSpatialOptions match the device firmware defaults.
func DefaultSpatialOptions() SpatialOptions {
	return SpatialOptions{Alpha: 0.5, Delta: 20, Iterations: 2}
}

// NewSpatial smooths depth or disparity along rows then columns, in both directions, without
// blending across steps larger than Delta.
func NewSpatial(opts SpatialOptions) (Filter, error) {
	if opts.Alpha <= 0 || opts.Alpha > 1 {
		return nil, errors.Errorf("spatial alpha must be within (0, 1], got %v", opts.Alpha)
	}
	if opts.Iterations < 1 {
		opts.Iterations = 1
	}
	return &perFrame{name: SpatialName, fn: func(ctx context.Context, f *device.Frame) (*device.Frame, error) {
		vals, ok := rangeValues(f)
		if !ok {
			return nil, nil
		}
		w, h := f.Width(), f.Height()
		if len(vals) != w*h {
			return nil, errors.Errorf("buffer of %d samples does not match %dx%d", len(vals), w, h)
		}
		for it := 0; it < opts.Iterations; it++ {
			for y := 0; y < h; y++ {
				smoothLine(vals, y*w, 1, w, opts.Alpha, opts.Delta)
				smoothLine(vals, y*w+w-1, -1, w, opts.Alpha, opts.Delta)
			}
			for x := 0; x < w; x++ {
				smoothLine(vals, x, w, h, opts.Alpha, opts.Delta)
				smoothLine(vals, (h-1)*w+x, -w, h, opts.Alpha, opts.Delta)
			}
		}
		return withRangeValues(f, vals), nil
	}}, nil
}

// smoothLine runs a recursive exponential filter over n samples starting at start.
func smoothLine(vals []float64, start, step, n int, alpha, delta float64) {
	prev := vals[start]
	for i, idx := 1, start+step; i < n; i, idx = i+1, idx+step {
		cur := vals[idx]
		if cur != 0 && prev != 0 && math.Abs(cur-prev) < delta {
			cur = alpha*cur + (1-alpha)*prev
			vals[idx] = cur
		}
		prev = cur
	}
}
