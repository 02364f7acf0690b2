// Package router publishes processed frames and their calibration to per-stream topics.
package router

import (
	"context"
	"encoding/binary"
	"math"
	"sync"
	"time"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.opencensus.io/trace"
	"go.uber.org/multierr"

	"go.viam.com/rsnode/calibration"
	"go.viam.com/rsnode/depth"
	"go.viam.com/rsnode/device"
	"go.viam.com/rsnode/logging"
	"go.viam.com/rsnode/msgs"
	"go.viam.com/rsnode/transport"
)

// Router publishes frames. It is safe for concurrent use.
type Router struct {
	pub         transport.Publisher
	cal         *calibration.Resolver
	prefix      string
	nativeScale float64
	targetScale float64
	logger      logging.Logger

	mu      sync.Mutex
	staging map[stagingKey][]uint16
}

type stagingKey struct {
	id      device.StreamIdentity
	aligned bool
}

// New returns a router. Depth images are converted from nativeScale to targetScale meters per
// unit before they are published.
func New(
	pub transport.Publisher,
	cal *calibration.Resolver,
	prefix string,
	nativeScale, targetScale float64,
	logger logging.Logger,
) *Router {
	return &Router{
		pub:         pub,
		cal:         cal,
		prefix:      prefix,
		nativeScale: nativeScale,
		targetScale: targetScale,
		logger:      logger,
		staging:     make(map[stagingKey][]uint16),
	}
}

// Publish sends a video frame and the calibration of its stream, both stamped with stamp.
// Nothing is encoded unless one of the two topics has a consumer.
func (r *Router) Publish(ctx context.Context, f *device.Frame, stamp time.Time) error {
	id := f.Identity()
	if f.IsPoints() {
		return r.PublishPointCloud(ctx, f, stamp)
	}
	if !f.Profile.IsVideo() {
		return errors.Errorf("cannot route %s frame as an image", id)
	}
	info, ok := r.cal.Info(id)
	if !ok || info.Width != f.Width() {
		r.logger.Debugw("recalibrating stream", "stream", id.String(), "width", f.Width())
		if err := r.cal.UpdateStream(f.Profile); err != nil {
			return err
		}
		info, _ = r.cal.Info(id)
	}

	imageTopic, infoTopic := transport.ImageTopic(id), transport.InfoTopic(id)
	if r.pub.SubscriberCount(imageTopic) == 0 && r.pub.SubscriberCount(infoTopic) == 0 {
		return nil
	}
	return r.send(f, stagingKey{id: id}, info, imageTopic, infoTopic, stamp)
}

// AlignedDepthWanted reports whether aligned depth for the target stream has consumers on both
// its image and calibration topics.
func (r *Router) AlignedDepthWanted(target device.StreamIdentity) bool {
	return r.pub.SubscriberCount(transport.AlignedDepthImageTopic(target)) > 0 &&
		r.pub.SubscriberCount(transport.AlignedDepthInfoTopic(target)) > 0
}

// PublishAlignedDepth sends depth that was reprojected into target's image plane, together with
// target's calibration.
func (r *Router) PublishAlignedDepth(ctx context.Context, aligned *device.Frame, target device.StreamIdentity, stamp time.Time) error {
	if !aligned.IsDepth() {
		return errors.New("aligned frame is not depth")
	}
	if !r.AlignedDepthWanted(target) {
		return nil
	}
	info, ok := r.cal.Info(target)
	if !ok {
		return errors.Errorf("no calibration for %s", target)
	}
	return r.send(aligned, stagingKey{id: target, aligned: true}, info,
		transport.AlignedDepthImageTopic(target), transport.AlignedDepthInfoTopic(target), stamp)
}

// PublishFrameSet routes every frame of a de-duplicated set.
func (r *Router) PublishFrameSet(ctx context.Context, frames []*device.Frame, stamp time.Time) error {
	ctx, span := trace.StartSpan(ctx, "router::Router::PublishFrameSet")
	defer span.End()

	var errs error
	for _, f := range frames {
		if f.IsPoints() || f.Profile.IsVideo() {
			errs = multierr.Append(errs, r.Publish(ctx, f, stamp))
		}
	}
	return errs
}

// PublishPointCloud sends the valid points of a point frame in the depth optical frame.
func (r *Router) PublishPointCloud(ctx context.Context, f *device.Frame, stamp time.Time) error {
	if !f.IsPoints() {
		return errors.New("frame does not hold points")
	}
	if r.pub.SubscriberCount(transport.TopicPointCloud) == 0 {
		return nil
	}
	msg := &msgs.PointCloud{
		Header: msgs.Header{Stamp: stamp, FrameID: device.DepthStream.OpticalFrameID(r.prefix)},
		Points: make([]r3.Vector, 0, len(f.Points)),
	}
	textured := len(f.Colors) == 3*len(f.Points)
	for i, p := range f.Points {
		if p.Z <= 0 {
			continue
		}
		msg.Points = append(msg.Points, p)
		if textured {
			msg.Colors = append(msg.Colors, [3]uint8{f.Colors[3*i], f.Colors[3*i+1], f.Colors[3*i+2]})
		}
	}
	return r.pub.Publish(transport.TopicPointCloud, msg, stamp)
}

func (r *Router) send(
	f *device.Frame,
	key stagingKey,
	info msgs.CameraInfo,
	imageTopic, infoTopic transport.Topic,
	stamp time.Time,
) error {
	img, err := r.encode(f, key)
	if err != nil {
		return errors.Wrapf(err, "encoding %s", key.id)
	}
	img.Stamp = stamp
	img.FrameID = info.FrameID
	info.Stamp = stamp
	return multierr.Combine(
		r.pub.Publish(infoTopic, &info, stamp),
		r.pub.Publish(imageTopic, img, stamp),
	)
}

func encodingFor(bytesPerPixel int) (string, error) {
	switch bytesPerPixel {
	case 1:
		return msgs.EncodingMono8, nil
	case 2:
		return msgs.EncodingMono16, nil
	case 3:
		return msgs.EncodingRGB8, nil
	case 4:
		return msgs.Encoding32FC1, nil
	default:
		return "", errors.Errorf("unsupported pixel size %d", bytesPerPixel)
	}
}

func (r *Router) encode(f *device.Frame, key stagingKey) (*msgs.Image, error) {
	bpp := f.BytesPerPixel()
	enc, err := encodingFor(bpp)
	if err != nil {
		return nil, err
	}
	w, h := f.Width(), f.Height()
	img := &msgs.Image{Width: w, Height: h, Encoding: enc, Step: w * bpp, Data: make([]byte, w*h*bpp)}

	switch {
	case f.IsDepth():
		if len(f.Depth) != w*h {
			return nil, errors.Errorf("depth buffer holds %d samples, want %d", len(f.Depth), w*h)
		}
		r.mu.Lock()
		buf := r.stagingLocked(key, w*h)
		copy(buf, f.Depth)
		depth.Rescale(buf, r.nativeScale, r.targetScale)
		for i, v := range buf {
			binary.LittleEndian.PutUint16(img.Data[2*i:], v)
		}
		r.mu.Unlock()
	case f.Profile.Format == device.FormatDisparity32:
		if len(f.Disparity) != w*h {
			return nil, errors.Errorf("disparity buffer holds %d samples, want %d", len(f.Disparity), w*h)
		}
		for i, v := range f.Disparity {
			binary.LittleEndian.PutUint32(img.Data[4*i:], math.Float32bits(v))
		}
	default:
		if len(f.Data) != len(img.Data) {
			return nil, errors.Errorf("image buffer holds %d bytes, want %d", len(f.Data), len(img.Data))
		}
		copy(img.Data, f.Data)
	}
	return img, nil
}

// stagingLocked returns the staging buffer for key, reallocated only when its size changes.
// r.mu must be held.
func (r *Router) stagingLocked(key stagingKey, n int) []uint16 {
	buf := r.staging[key]
	if len(buf) != n {
		buf = make([]uint16, n)
		r.staging[key] = buf
	}
	return buf
}
