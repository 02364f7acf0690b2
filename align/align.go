// Package align reprojects depth frames into the image plane of another stream.
package align

import (
	"context"
	"math"
	"sync"

	"github.com/pkg/errors"
	"go.opencensus.io/trace"

	"go.viam.com/rsnode/device"
	"go.viam.com/rsnode/logging"
)

// ExtrinsicsSource supplies the transform between two streams.
type ExtrinsicsSource interface {
	Extrinsics(from, to device.Profile) (device.Extrinsics, error)
}

// Aligner maps depth into one target stream kind. It remembers the extrinsics of the last
// profile pair it was used with.
type Aligner struct {
	target device.StreamKind
	source ExtrinsicsSource
	scale  float64

	mu         sync.Mutex
	pair       [2]int
	extrinsics device.Extrinsics
	resolved   bool
}

// NewAligner returns an aligner to streams of the target kind. depthScale is meters per unit.
func NewAligner(target device.StreamKind, source ExtrinsicsSource, depthScale float64) *Aligner {
	return &Aligner{target: target, source: source, scale: depthScale}
}

func (a *Aligner) extrinsicsFor(depth, target device.Profile) (device.Extrinsics, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	pair := [2]int{depth.UniqueID, target.UniqueID}
	if a.resolved && a.pair == pair {
		return a.extrinsics, nil
	}
	ex, err := a.source.Extrinsics(depth, target)
	if err != nil {
		return device.Extrinsics{}, err
	}
	a.pair, a.extrinsics, a.resolved = pair, ex, true
	return ex, nil
}

// Align returns a Z16 frame with the resolution and intrinsics of target in which each pixel
// holds the nearest depth sample projecting onto it, in device units.
func (a *Aligner) Align(depth, target *device.Frame) (*device.Frame, error) {
	if target.Profile.Kind != a.target {
		return nil, errors.Errorf("aligner to %s cannot align to %s", a.target, target.Profile.Kind)
	}
	if !depth.IsDepth() {
		return nil, errors.New("alignment source is not a Z16 depth frame")
	}
	if err := depth.Profile.Intrinsics.CheckValid(); err != nil {
		return nil, errors.Wrap(err, "depth")
	}
	if err := target.Profile.Intrinsics.CheckValid(); err != nil {
		return nil, errors.Wrapf(err, "target %s", target.Identity())
	}
	ex, err := a.extrinsicsFor(depth.Profile, target.Profile)
	if err != nil {
		return nil, err
	}

	din, tin := depth.Profile.Intrinsics, target.Profile.Intrinsics
	tw, th := target.Width(), target.Height()
	p := depth.Profile
	p.Width, p.Height = tw, th
	p.Intrinsics = tin
	out := depth.Derive(p)
	out.Depth = make([]uint16, tw*th)

	dw := depth.Width()
	for i, raw := range depth.Depth {
		if raw == 0 {
			continue
		}
		u, v := i%dw, i/dw
		pt := ex.Transform(din.PixelToPoint(float64(u), float64(v), float64(raw)*a.scale))
		x, y := tin.PointToPixel(pt)
		if x < 0 || y < 0 || x >= float64(tw) || y >= float64(th) || math.IsNaN(x) {
			continue
		}
		idx := int(y)*tw + int(x)
		if cur := out.Depth[idx]; cur == 0 || raw < cur {
			out.Depth[idx] = raw
		}
	}
	return out, nil
}

// Cache holds one Aligner per target stream kind, created on first use.
type Cache struct {
	source ExtrinsicsSource
	scale  float64
	logger logging.Logger

	mu       sync.Mutex
	aligners map[device.StreamKind]*Aligner
}

// NewCache returns an empty cache.
func NewCache(source ExtrinsicsSource, depthScale float64, logger logging.Logger) *Cache {
	return &Cache{source: source, scale: depthScale, logger: logger, aligners: make(map[device.StreamKind]*Aligner)}
}

// Aligner returns the aligner for the target kind, allocating it if needed.
func (c *Cache) Aligner(target device.StreamKind) *Aligner {
	c.mu.Lock()
	defer c.mu.Unlock()
	a, ok := c.aligners[target]
	if !ok {
		c.logger.Debugw("allocating aligner", "target", target.String())
		a = NewAligner(target, c.source, c.scale)
		c.aligners[target] = a
	}
	return a
}

// Len is the number of allocated aligners.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.aligners)
}

// Align reprojects the set's depth frame into target's image plane.
func (c *Cache) Align(ctx context.Context, fs *device.FrameSet, target *device.Frame) (*device.Frame, error) {
	_, span := trace.StartSpan(ctx, "align::Cache::Align")
	defer span.End()

	depth := fs.DepthFrame()
	if depth == nil {
		return nil, errors.New("frame set has no depth frame to align")
	}
	return c.Aligner(target.Profile.Kind).Align(depth, target)
}
