// Package filters applies an ordered, runtime-toggleable sequence of processing stages to frame
// sets and reduces the result to one frame per stream for publishing.
//
// Stages never remove frames. A stage adds its output ahead of the frames of its input, so the
// first frame of a given identity in a set is always the most processed one.
package filters

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.opencensus.io/trace"
	"go.uber.org/atomic"

	"go.viam.com/rsnode/device"
	"go.viam.com/rsnode/logging"
)

// ErrUnknownFilter is returned when a stage name is not registered.
var ErrUnknownFilter = errors.New("unknown filter")

// AppliesTo tells whether a stage works frame by frame or needs the whole set.
type AppliesTo int

const (
	// AppliesToImage stages transform individual frames and can run on lone video frames.
	AppliesToImage AppliesTo = iota
	// AppliesToFrameSet stages combine frames of a set.
	AppliesToFrameSet
)

// Filter transforms a frame set into a new one.
type Filter interface {
	Name() string
	AppliesTo() AppliesTo
	// Process returns a set holding any produced frames ahead of all frames of fs.
	Process(ctx context.Context, fs *device.FrameSet) (*device.FrameSet, error)
}

// Stage is a registered filter and its enabled flag.
type Stage struct {
	filter  Filter
	enabled *atomic.Bool
}

// Name of the stage.
func (s *Stage) Name() string { return s.filter.Name() }

// Enabled reports the current flag.
func (s *Stage) Enabled() bool { return s.enabled.Load() }

// Chain is an ordered registry of stages.
type Chain struct {
	logger logging.Logger

	mu     sync.RWMutex
	stages []*Stage
}

// NewChain returns an empty chain.
func NewChain(logger logging.Logger) *Chain {
	return &Chain{logger: logger}
}

// Register appends a stage. Registration order is application order.
func (c *Chain) Register(f Filter, enabled bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, found := lo.Find(c.stages, func(s *Stage) bool { return s.Name() == f.Name() }); found {
		return errors.Errorf("filter %q already registered", f.Name())
	}
	c.stages = append(c.stages, &Stage{filter: f, enabled: atomic.NewBool(enabled)})
	return nil
}

func (c *Chain) stage(name string) (*Stage, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, found := lo.Find(c.stages, func(s *Stage) bool { return s.Name() == name })
	if !found {
		return nil, errors.Wrapf(ErrUnknownFilter, "%q", name)
	}
	return s, nil
}

// SetEnabled toggles a stage. It takes effect from the next frame set.
func (c *Chain) SetEnabled(name string, enabled bool) error {
	s, err := c.stage(name)
	if err != nil {
		return err
	}
	if s.enabled.Swap(enabled) != enabled {
		c.logger.Infow("filter toggled", "filter", name, "enabled", enabled)
	}
	return nil
}

// Enabled reports whether a stage is enabled.
func (c *Chain) Enabled(name string) (bool, error) {
	s, err := c.stage(name)
	if err != nil {
		return false, err
	}
	return s.Enabled(), nil
}

// Names lists the stages in application order.
func (c *Chain) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return lo.Map(c.stages, func(s *Stage, _ int) string { return s.Name() })
}

// Stages returns the registered stages in application order.
func (c *Chain) Stages() []*Stage {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]*Stage(nil), c.stages...)
}

// snapshot returns the stages enabled right now, in order.
func (c *Chain) snapshot(kind AppliesTo) []*Stage {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return lo.Filter(c.stages, func(s *Stage, _ int) bool {
		return s.Enabled() && (kind == AppliesToFrameSet || s.filter.AppliesTo() == kind)
	})
}

// Apply runs every enabled stage over fs in registration order. Enabled flags are read once per
// call. A failing stage aborts the whole call; no partially processed set is returned.
func (c *Chain) Apply(ctx context.Context, fs *device.FrameSet) (*device.FrameSet, error) {
	return c.apply(ctx, fs, AppliesToFrameSet)
}

// ApplyImage runs the enabled frame-by-frame stages over a lone video frame and returns the most
// processed frame of the same identity.
func (c *Chain) ApplyImage(ctx context.Context, f *device.Frame) (*device.Frame, error) {
	out, err := c.apply(ctx, device.NewFrameSet(f), AppliesToImage)
	if err != nil {
		return nil, err
	}
	if processed := out.Find(f.Identity()); processed != nil {
		return processed, nil
	}
	return f, nil
}

func (c *Chain) apply(ctx context.Context, fs *device.FrameSet, kind AppliesTo) (*device.FrameSet, error) {
	ctx, span := trace.StartSpan(ctx, "filters::Chain::Apply")
	defer span.End()

	for _, s := range c.snapshot(kind) {
		out, err := s.filter.Process(ctx, fs)
		if err != nil {
			return nil, errors.Wrapf(err, "filter %q", s.Name())
		}
		if out == nil {
			return nil, errors.Errorf("filter %q returned no frame set", s.Name())
		}
		c.logger.CDebugf(ctx, "applied %s: %d frames", s.Name(), out.Len())
		fs = out
	}
	return fs, nil
}

// Dedup reduces a processed set to the frames to publish: the first point cloud frame and the
// first frame of every other stream identity, in set order.
func Dedup(fs *device.FrameSet) []*device.Frame {
	var (
		out         []*device.Frame
		pointsInSet bool
		seen        = make(map[device.StreamIdentity]struct{}, fs.Len())
	)
	for _, f := range fs.Frames {
		if f.IsPoints() {
			if !pointsInSet {
				pointsInSet = true
				out = append(out, f)
			}
			continue
		}
		if _, ok := seen[f.Identity()]; ok {
			continue
		}
		seen[f.Identity()] = struct{}{}
		out = append(out, f)
	}
	return out
}

// frameFunc transforms one frame. It returns nil for frames it does not handle.
type frameFunc func(ctx context.Context, f *device.Frame) (*device.Frame, error)

// perFrame adapts a frameFunc into a Filter. Only the leading frame of each identity is
// transformed, since later frames of that identity are already superseded.
type perFrame struct {
	name string
	fn   frameFunc
}

func (p *perFrame) Name() string { return p.name }

func (p *perFrame) AppliesTo() AppliesTo { return AppliesToImage }

func (p *perFrame) Process(ctx context.Context, fs *device.FrameSet) (*device.FrameSet, error) {
	var produced []*device.Frame
	seen := make(map[device.StreamIdentity]struct{}, fs.Len())
	for _, f := range fs.Frames {
		if f.IsPoints() {
			continue
		}
		if _, ok := seen[f.Identity()]; ok {
			continue
		}
		seen[f.Identity()] = struct{}{}
		out, err := p.fn(ctx, f)
		if err != nil {
			return nil, errors.Wrapf(err, "stream %s", f.Identity())
		}
		if out != nil {
			produced = append(produced, out)
		}
	}
	if len(produced) == 0 {
		return fs, nil
	}
	return fs.WithLeading(produced...), nil
}
