// Package node wires the device callbacks to the processing pipeline and the publishers.
package node

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.opencensus.io/trace"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"go.viam.com/rsnode/align"
	"go.viam.com/rsnode/calibration"
	"go.viam.com/rsnode/depth"
	"go.viam.com/rsnode/device"
	"go.viam.com/rsnode/filters"
	"go.viam.com/rsnode/framegraph"
	"go.viam.com/rsnode/logging"
	"go.viam.com/rsnode/msgs"
	"go.viam.com/rsnode/router"
	"go.viam.com/rsnode/timebase"
	"go.viam.com/rsnode/transport"
)

const frameErrorLogInterval = time.Second

// Node processes everything a device produces and publishes it.
type Node struct {
	cfg    Config
	dev    device.Device
	pub    transport.Publisher
	clock  clock.Clock
	logger logging.Logger

	profiles []device.Profile
	base     device.Profile

	timeBase    *timebase.TimeBase
	chain       *filters.Chain
	aligners    *align.Cache
	calibration *calibration.Resolver
	router      *router.Router
	frames      *framegraph.Builder
	broadcaster *framegraph.Broadcaster
	imu         *imuPublisher

	clipDistance *atomic.Float64
	alignDepth   *atomic.Bool

	// a failing stream fails every frame; log at most once per interval
	frameErrors rate.Sometimes
}

// New validates cfg and prepares a node for the enabled streams of dev. It publishes the
// per-configuration state: static transforms, inertial calibration and extrinsics.
func New(ctx context.Context, dev device.Device, pub transport.Publisher, clk clock.Clock, cfg Config, logger logging.Logger) (*Node, error) {
	if err := cfg.Validate("node"); err != nil {
		return nil, err
	}
	available := dev.Profiles()
	base, err := framegraph.SelectBaseStream(available)
	if err != nil {
		return nil, err
	}
	logger.Infow("selected base stream", "stream", base.Identity().String())

	profiles := lo.Filter(available, func(p device.Profile, _ int) bool { return cfg.Enabled(p.Identity()) })
	depthScale := dev.DepthScale()

	opts := filters.DefaultOptions(depthScale)
	opts.Extrinsics = dev
	if cfg.DisparityBaselineM > 0 {
		opts.Baseline = cfg.DisparityBaselineM
	}
	chain, err := filters.NewDefaultChain(logger.Sublogger("filters"), opts, cfg.Filters...)
	if err != nil {
		return nil, err
	}

	cal := calibration.NewResolver(dev, dev, cfg.CameraName, logger.Sublogger("calibration"))
	if err := cal.UpdateProfiles(profiles); err != nil {
		return nil, err
	}

	targetScale := cfg.DepthTargetScale
	if targetScale == 0 {
		targetScale = depth.DefaultTargetScale
	}

	n := &Node{
		cfg:          cfg,
		dev:          dev,
		pub:          pub,
		clock:        clk,
		logger:       logger,
		profiles:     profiles,
		base:         base,
		timeBase:     timebase.New(clk, logger.Sublogger("timebase")),
		chain:        chain,
		aligners:     align.NewCache(dev, depthScale, logger.Sublogger("align")),
		calibration:  cal,
		router:       router.New(pub, cal, cfg.CameraName, depthScale, targetScale, logger.Sublogger("router")),
		frames:       framegraph.NewBuilder(dev, cfg.CameraName, logger.Sublogger("framegraph")),
		clipDistance: atomic.NewFloat64(cfg.ClipDistance),
		alignDepth:   atomic.NewBool(cfg.AlignDepth),
		frameErrors:  rate.Sometimes{Interval: frameErrorLogInterval},
	}

	n.imu, err = newImuPublisher(pub, &n.cfg, n.timeBase, logger.Sublogger("imu"))
	if err != nil {
		return nil, err
	}

	if cfg.PublishTF {
		if err := n.frames.BuildAll(profiles, base); err != nil {
			return nil, err
		}
		logger.Debugf("static frames:\n%s", n.frames)
		n.broadcaster = framegraph.NewBroadcaster(n.frames, pub, clk, cfg.TFPublishRate, logger.Sublogger("framegraph"))
		if err := n.broadcaster.Start(); err != nil {
			return nil, err
		}
	}
	if err := n.publishConfigurationState(); err != nil {
		return nil, multierr.Combine(err, n.Close())
	}
	return n, nil
}

// publishConfigurationState sends inertial calibration and depth extrinsics once.
func (n *Node) publishConfigurationState() error {
	now := n.clock.Now()
	var errs error
	var depthProfile *device.Profile
	for i, p := range n.profiles {
		if p.Kind == device.Depth {
			depthProfile = &n.profiles[i]
		}
		if p.Kind.IsMotion() {
			info := n.calibration.ImuInfo(p)
			info.Stamp = now
			errs = multierr.Append(errs, n.publishLatched(transport.ImuInfoTopic(p.Identity()), &info, now))
		}
	}
	if depthProfile == nil {
		return errs
	}
	for _, p := range n.profiles {
		if !p.IsVideo() || p.Kind == device.Depth {
			continue
		}
		ex, err := n.dev.Extrinsics(*depthProfile, p)
		if err != nil {
			n.logger.Warnw("cannot publish extrinsics", "to", p.Identity().String(), "error", err)
			continue
		}
		msg := &msgs.Extrinsics{
			Header:      msgs.Header{Stamp: now, FrameID: "depth_to_" + p.Identity().Name()},
			Rotation:    ex.Rotation,
			Translation: ex.Translation,
		}
		errs = multierr.Append(errs, n.publishLatched(transport.ExtrinsicsTopic(p.Identity()), msg, now))
	}
	return errs
}

func (n *Node) publishLatched(topic transport.Topic, msg interface{}, stamp time.Time) error {
	if latcher, ok := n.pub.(transport.Latcher); ok {
		return latcher.PublishLatched(topic, msg, stamp)
	}
	return n.pub.Publish(topic, msg, stamp)
}

// Base is the stream the static frame tree is anchored to.
func (n *Node) Base() device.Profile {
	return n.base
}

// Profiles lists the enabled streams.
func (n *Node) Profiles() []device.Profile {
	return append([]device.Profile(nil), n.profiles...)
}

// TimeBase is the node's device to host clock mapping.
func (n *Node) TimeBase() *timebase.TimeBase {
	return n.timeBase
}

// Chain is the node's post-processing chain.
func (n *Node) Chain() *filters.Chain {
	return n.chain
}

// Dispatch is the device callback. Samples of disabled streams are ignored.
func (n *Node) Dispatch(ctx context.Context, sample device.Sample) error {
	switch s := sample.(type) {
	case *device.FrameSet:
		return n.handleFrameSet(ctx, s)
	case *device.Frame:
		if !n.cfg.Enabled(s.Identity()) {
			return nil
		}
		switch {
		case s.Profile.Kind.IsMotion():
			return n.imu.handle(s)
		case s.Profile.Kind == device.Pose:
			return n.handlePose(s)
		case s.Profile.IsVideo():
			return n.handleFrame(ctx, s)
		}
		return errors.Errorf("cannot dispatch %s frame", s.Identity())
	}
	return errors.Errorf("unexpected sample type %T", sample)
}

// guardFrame pauses unified inertial output for the duration of a video callback and converts
// a failure or panic into a logged error.
func (n *Node) guardFrame(errp *error) {
	if r := recover(); r != nil {
		*errp = errors.Errorf("panic during frame callback: %v", r)
	}
	if err := *errp; err != nil {
		n.frameErrors.Do(func() {
			n.logger.Errorw("an error has occurred during frame callback", "error", err)
		})
	}
	*errp = multierr.Combine(*errp, n.imu.gate.Resume())
}

func (n *Node) handleFrameSet(ctx context.Context, fs *device.FrameSet) (err error) {
	n.imu.gate.Pause()
	defer n.guardFrame(&err)

	ctx, span := trace.StartSpan(ctx, "node::Node::handleFrameSet")
	defer span.End()

	n.timeBase.EnsureAnchored(fs.DeviceTimestamp(), fs.TimestampDomain())
	stamp := n.timeBase.ToHostTime(fs.DeviceTimestamp())

	fs = device.NewFrameSet(lo.Filter(fs.Frames, func(f *device.Frame, _ int) bool {
		return f.IsPoints() || n.cfg.Enabled(f.Identity())
	})...)
	if fs.Len() == 0 {
		return nil
	}
	if d := fs.DepthFrame(); d != nil {
		depth.Clip(d.Depth, n.clipDistance.Load(), n.dev.DepthScale())
	}
	processed, err := n.chain.Apply(ctx, fs)
	if err != nil {
		return err
	}
	frames := filters.Dedup(processed)
	n.logger.CDebugw(ctx, "publishing frame set", "received", fs.Len(), "processed", processed.Len(), "published", len(frames))
	if err := n.router.PublishFrameSet(ctx, frames, stamp); err != nil {
		return err
	}
	if n.alignDepth.Load() {
		return n.publishAlignedDepth(ctx, frames, stamp)
	}
	return nil
}

// publishAlignedDepth reprojects depth into each other video stream at index 0 or 1 that has
// aligned depth consumers. Targets are aligned in parallel; the first failure is returned.
func (n *Node) publishAlignedDepth(ctx context.Context, frames []*device.Frame, stamp time.Time) error {
	set := device.NewFrameSet(frames...)
	if set.DepthFrame() == nil {
		return nil
	}
	var group errgroup.Group
	for _, f := range frames {
		kind := f.Profile.Kind
		if !f.Profile.IsVideo() || kind == device.Depth || kind == device.Confidence || f.Profile.Index > 1 {
			continue
		}
		id := f.Identity()
		if !n.router.AlignedDepthWanted(id) {
			continue
		}
		f := f
		group.Go(func() error {
			aligned, err := n.aligners.Align(ctx, set, f)
			if err != nil {
				return errors.Wrapf(err, "aligning depth to %s", id)
			}
			return n.router.PublishAlignedDepth(ctx, aligned, id, stamp)
		})
	}
	return group.Wait()
}

func (n *Node) handleFrame(ctx context.Context, f *device.Frame) (err error) {
	n.imu.gate.Pause()
	defer n.guardFrame(&err)

	n.timeBase.EnsureAnchored(f.Timestamp, f.Domain)
	stamp := n.timeBase.ToHostTime(f.Timestamp)
	if f.IsDepth() {
		depth.Clip(f.Depth, n.clipDistance.Load(), n.dev.DepthScale())
	}
	processed, err := n.chain.ApplyImage(ctx, f)
	if err != nil {
		return err
	}
	return n.router.Publish(ctx, processed, stamp)
}

// HandleNotification is the device's notification callback. Firmware errors that only a reset
// recovers from trigger a hardware reset.
func (n *Node) HandleNotification(ctx context.Context, note device.Notification) error {
	if note.Severity < device.SeverityError {
		n.logger.Debugw("device notification", "severity", note.Severity.String(), "description", note.Description)
		return nil
	}
	n.logger.Warnw("device notification", "severity", note.Severity.String(),
		"category", note.Category, "description", note.Description)
	if !note.RequiresReset() {
		return nil
	}
	n.logger.Errorw("performing hardware reset", "description", note.Description)
	return errors.Wrap(n.dev.HardwareReset(ctx), "hardware reset")
}

// Close stops periodic publication and flushes pending inertial output.
func (n *Node) Close() error {
	var errs error
	if n.broadcaster != nil {
		errs = multierr.Append(errs, n.broadcaster.Close())
	}
	if n.imu != nil {
		errs = multierr.Append(errs, n.imu.gate.Close())
	}
	return errs
}
