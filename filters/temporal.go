package filters

import (
	"context"
	"math"
	"sync"

	"github.com/pkg/errors"

	"go.viam.com/rsnode/device"
)

// TemporalName is the registry name of the temporal stage.
const TemporalName = "temporal"

// TemporalOptions tune the temporal smoother.
type TemporalOptions struct {
	Alpha float64
	Delta float64
	// Persistence keeps the last valid value of a pixel that drops out.
	Persistence bool
}

// DefaultTemporalOptions match the device firmware defaults.
func DefaultTemporalOptions() TemporalOptions {
	return TemporalOptions{Alpha: 0.4, Delta: 20}
}

type temporal struct {
	opts TemporalOptions

	mu      sync.Mutex
	history map[device.StreamIdentity][]float64
}

// NewTemporal blends each depth pixel with its own history. Steps above Delta reset the pixel.
func NewTemporal(opts TemporalOptions) (Filter, error) {
	if opts.Alpha <= 0 || opts.Alpha > 1 {
		return nil, errors.Errorf("temporal alpha must be within (0, 1], got %v", opts.Alpha)
	}
	t := &temporal{opts: opts, history: make(map[device.StreamIdentity][]float64)}
	return &perFrame{name: TemporalName, fn: t.process}, nil
}

func (t *temporal) process(ctx context.Context, f *device.Frame) (*device.Frame, error) {
	vals, ok := rangeValues(f)
	if !ok {
		return nil, nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	prev := t.history[f.Identity()]
	if len(prev) != len(vals) {
		// first frame or a resolution change
		t.history[f.Identity()] = vals
		return withRangeValues(f, vals), nil
	}
	for i, cur := range vals {
		last := prev[i]
		switch {
		case cur == 0:
			if t.opts.Persistence {
				vals[i] = last
			}
		case last != 0 && math.Abs(cur-last) < t.opts.Delta:
			vals[i] = t.opts.Alpha*cur + (1-t.opts.Alpha)*last
		}
	}
	t.history[f.Identity()] = vals
	return withRangeValues(f, vals), nil
}
