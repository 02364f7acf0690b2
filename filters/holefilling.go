package filters

import (
	"context"

	"github.com/pkg/errors"

	"go.viam.com/rsnode/device"
)

// HoleFillingName is the registry name of the hole filling stage.
const HoleFillingName = "hole_filling"

// HoleFillingMode selects the source of a missing sample.
type HoleFillingMode int

// The hole filling modes.
const (
	// FillFromLeft copies the nearest valid sample to the left.
	FillFromLeft HoleFillingMode = iota
	// FarthestFromAround takes the farthest valid 4-neighbor.
	FarthestFromAround
	// NearestFromAround takes the nearest valid 4-neighbor.
	NearestFromAround
)

// NewHoleFilling fills invalid samples of depth or disparity frames.
func NewHoleFilling(mode HoleFillingMode) (Filter, error) {
	if mode < FillFromLeft || mode > NearestFromAround {
		return nil, errors.Errorf("unknown hole filling mode %d", mode)
	}
	return &perFrame{name: HoleFillingName, fn: func(ctx context.Context, f *device.Frame) (*device.Frame, error) {
		vals, ok := rangeValues(f)
		if !ok {
			return nil, nil
		}
		w, h := f.Width(), f.Height()
		if len(vals) != w*h {
			return nil, errors.Errorf("buffer of %d samples does not match %dx%d", len(vals), w, h)
		}
		// larger disparity is nearer
		disparity := f.Profile.Format == device.FormatDisparity32
		if mode == FillFromLeft {
			for y := 0; y < h; y++ {
				var last float64
				for x := 0; x < w; x++ {
					i := y*w + x
					if vals[i] == 0 {
						vals[i] = last
					} else {
						last = vals[i]
					}
				}
			}
			return withRangeValues(f, vals), nil
		}

		src := append([]float64(nil), vals...)
		wantFar := mode == FarthestFromAround
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				i := y*w + x
				if src[i] != 0 {
					continue
				}
				var best float64
				for _, n := range [][2]int{{x - 1, y}, {x + 1, y}, {x, y - 1}, {x, y + 1}} {
					if n[0] < 0 || n[0] >= w || n[1] < 0 || n[1] >= h {
						continue
					}
					v := src[n[1]*w+n[0]]
					if v == 0 {
						continue
					}
					farther := v > best
					if disparity {
						farther = v < best
					}
					if best == 0 || farther == wantFar {
						best = v
					}
				}
				vals[i] = best
			}
		}
		return withRangeValues(f, vals), nil
	}}, nil
}
