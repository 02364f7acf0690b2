// Package calibration derives per-stream camera calibration records from device intrinsics
// and extrinsics.
package calibration

import (
	"sync"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/rsnode/device"
	"go.viam.com/rsnode/logging"
	"go.viam.com/rsnode/msgs"
)

// ExtrinsicsSource supplies the transform between two streams.
type ExtrinsicsSource interface {
	Extrinsics(from, to device.Profile) (device.Extrinsics, error)
}

// MotionSource supplies inertial calibration.
type MotionSource interface {
	MotionIntrinsics(p device.Profile) (device.MotionIntrinsics, error)
}

// Resolver keeps one calibration record per video stream.
type Resolver struct {
	extrinsics ExtrinsicsSource
	motion     MotionSource
	prefix     string
	logger     logging.Logger

	mu sync.RWMutex
	// depth projection translation is zeroed while depth and color are both enabled
	colocated bool
	profiles  map[device.StreamIdentity]device.Profile
	records   map[device.StreamIdentity]msgs.CameraInfo
}

// NewResolver returns an empty resolver. prefix names the camera in frame ids.
func NewResolver(extrinsics ExtrinsicsSource, motion MotionSource, prefix string, logger logging.Logger) *Resolver {
	return &Resolver{
		extrinsics: extrinsics,
		motion:     motion,
		prefix:     prefix,
		logger:     logger,
		profiles:   make(map[device.StreamIdentity]device.Profile),
		records:    make(map[device.StreamIdentity]msgs.CameraInfo),
	}
}

// UpdateProfiles rebuilds every record for a new stream configuration.
func (r *Resolver) UpdateProfiles(profiles []device.Profile) error {
	r.mu.Lock()
	r.profiles = make(map[device.StreamIdentity]device.Profile)
	r.records = make(map[device.StreamIdentity]msgs.CameraInfo)
	var depth, color bool
	for _, p := range profiles {
		depth = depth || p.Kind == device.Depth
		color = color || p.Kind == device.Color
	}
	r.colocated = depth && color
	r.mu.Unlock()

	for _, p := range profiles {
		if !p.IsVideo() {
			continue
		}
		if err := r.UpdateStream(p); err != nil {
			return err
		}
	}
	return nil
}

// UpdateStream (re)computes the record of one video stream from its intrinsics. When the
// stream completes a left/right infrared pair, the right record is recomputed as well.
func (r *Resolver) UpdateStream(p device.Profile) error {
	if !p.IsVideo() {
		return errors.Errorf("%s is not a video stream", p.Identity())
	}
	in := p.Intrinsics
	if err := in.CheckValid(); err != nil {
		return errors.Wrapf(err, "calibrating %s", p.Identity())
	}

	info := msgs.CameraInfo{
		Header:          msgs.Header{FrameID: p.Identity().OpticalFrameID(r.prefix)},
		Width:           in.Width,
		Height:          in.Height,
		DistortionModel: msgs.DistortionPlumbBob,
		D:               append([]float64(nil), in.Coeffs[:]...),
		K:               [9]float64{in.Fx, 0, in.Ppx, 0, in.Fy, in.Ppy, 0, 0, 1},
		R:               [9]float64{1, 0, 0, 0, 1, 0, 0, 0, 1},
		P:               [12]float64{in.Fx, 0, in.Ppx, 0, 0, in.Fy, in.Ppy, 0, 0, 0, 1, 0},
	}
	if in.Model == device.ModelKannalaBrandt4 {
		info.DistortionModel = msgs.DistortionEquidistant
	}

	r.mu.Lock()
	if p.Kind == device.Depth && r.colocated {
		info.P[3], info.P[7] = 0, 0
	}
	id := p.Identity()
	r.profiles[id] = p
	r.records[id] = info
	left, hasLeft := r.profiles[device.InfraredLeftStream]
	right, hasRight := r.profiles[device.InfraredRightStream]
	r.mu.Unlock()

	if hasLeft && hasRight && (id == device.InfraredLeftStream || id == device.InfraredRightStream) {
		return r.UpdateStereoPair(left, right)
	}
	return nil
}

// UpdateStereoPair writes the rotation and projection of the right stream using the extrinsics
// from the right stream to the left one. The baseline is taken to be purely horizontal.
func (r *Resolver) UpdateStereoPair(left, right device.Profile) error {
	if err := right.Intrinsics.CheckValid(); err != nil {
		return errors.Wrapf(err, "calibrating %s", right.Identity())
	}
	ex, err := r.extrinsics.Extrinsics(right, left)
	if err != nil {
		return errors.Wrapf(err, "stereo extrinsics %s to %s", right.Identity(), left.Identity())
	}

	in := right.Intrinsics
	k := mat.NewDense(3, 3, []float64{in.Fx, 0, in.Ppx, 0, in.Fy, in.Ppy, 0, 0, 1})
	rot := ex.Rotation
	rt := mat.NewDense(3, 4, []float64{
		rot[0], rot[1], rot[2], ex.Translation[0],
		rot[3], rot[4], rot[5], 0,
		rot[6], rot[7], rot[8], 0,
	})
	var proj mat.Dense
	proj.Mul(k, rt)

	r.mu.Lock()
	defer r.mu.Unlock()
	id := right.Identity()
	info, ok := r.records[id]
	if !ok {
		return errors.Errorf("no calibration for %s", id)
	}
	info.R = rot
	for i := 0; i < 3; i++ {
		for j := 0; j < 4; j++ {
			info.P[i*4+j] = proj.At(i, j)
		}
	}
	r.records[id] = info
	return nil
}

// Info returns a copy of the record of a stream.
func (r *Resolver) Info(id device.StreamIdentity) (msgs.CameraInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.records[id]
	if ok {
		info.D = append([]float64(nil), info.D...)
	}
	return info, ok
}

// ImuInfo returns the calibration of an inertial stream, or an identity calibration if the
// device has none.
func (r *Resolver) ImuInfo(p device.Profile) msgs.ImuInfo {
	mi, err := r.motion.MotionIntrinsics(p)
	if err != nil {
		r.logger.Debugw("motion intrinsics unavailable, using identity", "stream", p.Identity().String(), "error", err)
		mi = device.IdentityMotionIntrinsics()
	}
	info := msgs.ImuInfo{
		Header:         msgs.Header{FrameID: device.ImuOpticalFrameID(r.prefix)},
		NoiseVariances: mi.NoiseVariances,
		BiasVariances:  mi.BiasVariances,
	}
	for i := 0; i < 3; i++ {
		copy(info.Data[i*4:i*4+4], mi.Data[i][:])
	}
	return info
}
