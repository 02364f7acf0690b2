// Package fake implements a synthetic depth camera that produces frames, inertial samples and
// notifications on background workers.
package fake

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.viam.com/utils"

	"go.viam.com/rsnode/device"
	"go.viam.com/rsnode/logging"
)

// Unique ids of the synthetic profiles.
const (
	DepthID = iota + 1
	ColorID
	Infra1ID
	Infra2ID
	GyroID
	AccelID
)

// Callback receives every sample the device produces.
type Callback func(ctx context.Context, sample device.Sample) error

// NotificationCallback receives device notifications.
type NotificationCallback func(ctx context.Context, note device.Notification) error

// Options size the synthetic streams.
type Options struct {
	Width, Height int
	FPS           int
	ImuRate       int
}

// DefaultOptions is a small 30 fps camera with a 200 Hz imu.
func DefaultOptions() Options {
	return Options{Width: 64, Height: 48, FPS: 30, ImuRate: 200}
}

// Device is a fake device.Device.
type Device struct {
	opts   Options
	logger logging.Logger

	mu       sync.RWMutex
	profiles []device.Profile
	// fromDepth maps depth optical coordinates into each profile's coordinates
	fromDepth map[int]device.Extrinsics
	motion    map[int]device.MotionIntrinsics

	resets  atomic.Int32
	workers *utils.StoppableWorkers
	start   time.Time
}

// NewDevice returns a device with depth, color, two infrared and two inertial streams.
func NewDevice(opts Options, logger logging.Logger) *Device {
	w, h := opts.Width, opts.Height
	intrinsics := func(fx float64) *device.Intrinsics {
		return &device.Intrinsics{
			Width: w, Height: h, Fx: fx, Fy: fx, Ppx: float64(w) / 2, Ppy: float64(h) / 2,
			Model: device.ModelBrownConrady,
		}
	}
	video := func(kind device.StreamKind, index int, format device.Format, id int, fx float64) device.Profile {
		return device.Profile{
			Kind: kind, Index: index, Format: format, Width: w, Height: h,
			FPS: opts.FPS, UniqueID: id, Intrinsics: intrinsics(fx),
		}
	}
	shift := func(x float64) device.Extrinsics {
		ex := device.IdentityExtrinsics()
		ex.Translation[0] = x
		return ex
	}

	d := &Device{
		opts:   opts,
		logger: logger,
		profiles: []device.Profile{
			video(device.Depth, 0, device.FormatZ16, DepthID, 0.75*float64(w)),
			video(device.Color, 0, device.FormatRGB8, ColorID, 0.9*float64(w)),
			video(device.Infrared, 1, device.FormatY8, Infra1ID, 0.75*float64(w)),
			video(device.Infrared, 2, device.FormatY8, Infra2ID, 0.75*float64(w)),
			{Kind: device.Gyro, Format: device.FormatMotionXYZ32F, FPS: opts.ImuRate, UniqueID: GyroID},
			{Kind: device.Accel, Format: device.FormatMotionXYZ32F, FPS: opts.ImuRate / 2, UniqueID: AccelID},
		},
		fromDepth: map[int]device.Extrinsics{
			DepthID:  device.IdentityExtrinsics(),
			ColorID:  shift(-0.015),
			Infra1ID: device.IdentityExtrinsics(),
			Infra2ID: shift(-0.05),
			GyroID:   shift(0.005),
			AccelID:  shift(0.005),
		},
		motion: map[int]device.MotionIntrinsics{
			GyroID: {
				Data:           [3][4]float64{{1, 0, 0, 0}, {0, 1, 0, 0}, {0, 0, 1, 0}},
				NoiseVariances: [3]float64{1e-4, 1e-4, 1e-4},
				BiasVariances:  [3]float64{1e-6, 1e-6, 1e-6},
			},
		},
	}
	return d
}

// Profiles implements device.Device.
func (d *Device) Profiles() []device.Profile {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]device.Profile(nil), d.profiles...)
}

// SetExtrinsics overrides the transform from depth to the profile with the given unique id.
func (d *Device) SetExtrinsics(uniqueID int, fromDepth device.Extrinsics) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fromDepth[uniqueID] = fromDepth
}

// RemoveExtrinsics makes the profile uncalibrated.
func (d *Device) RemoveExtrinsics(uniqueID int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.fromDepth, uniqueID)
}

// Extrinsics implements device.Device.
func (d *Device) Extrinsics(from, to device.Profile) (device.Extrinsics, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if from.UniqueID == to.UniqueID {
		return device.IdentityExtrinsics(), nil
	}
	a, okA := d.fromDepth[from.UniqueID]
	b, okB := d.fromDepth[to.UniqueID]
	if !okA || !okB {
		return device.Extrinsics{}, errors.Wrapf(device.ErrExtrinsicsUnavailable, "%s to %s", from.Identity(), to.Identity())
	}
	return a.Inverse().Then(b), nil
}

// MotionIntrinsics implements device.Device.
func (d *Device) MotionIntrinsics(p device.Profile) (device.MotionIntrinsics, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	mi, ok := d.motion[p.UniqueID]
	if !ok {
		return device.MotionIntrinsics{}, errors.Errorf("%s has no motion intrinsics", p.Identity())
	}
	return mi, nil
}

// DepthScale implements device.Device.
func (d *Device) DepthScale() float64 {
	return 0.001
}

// HardwareReset implements device.Device.
func (d *Device) HardwareReset(ctx context.Context) error {
	d.resets.Inc()
	d.logger.Infow("hardware reset", "count", d.resets.Load())
	return nil
}

// Resets is the number of hardware resets performed.
func (d *Device) Resets() int {
	return int(d.resets.Load())
}

func (d *Device) profile(id int) device.Profile {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, p := range d.profiles {
		if p.UniqueID == id {
			return p
		}
	}
	return device.Profile{}
}

// Start begins producing frame sets and inertial samples until Close.
func (d *Device) Start(callback Callback) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.workers != nil {
		return
	}
	d.start = time.Now()
	d.workers = utils.NewBackgroundStoppableWorkers()
	d.workers.Add(func(ctx context.Context) {
		period := time.Second / time.Duration(d.opts.FPS)
		for n := uint64(0); utils.SelectContextOrWait(ctx, period); n++ {
			if err := callback(ctx, d.FrameSet(n, d.elapsedMs())); err != nil {
				d.logger.Debugw("frame set callback failed", "error", err)
			}
		}
	})
	d.workers.Add(func(ctx context.Context) {
		period := time.Second / time.Duration(d.opts.ImuRate)
		for n := uint64(0); utils.SelectContextOrWait(ctx, period); n++ {
			samples := []*device.Frame{d.Motion(device.Gyro, n, d.elapsedMs())}
			if n%2 == 0 {
				samples = append(samples, d.Motion(device.Accel, n/2, d.elapsedMs()))
			}
			for _, s := range samples {
				if err := callback(ctx, s); err != nil {
					d.logger.Debugw("motion callback failed", "error", err)
				}
			}
		}
	})
}

// Notify delivers a notification on a background worker.
func (d *Device) Notify(note device.Notification, callback NotificationCallback) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.workers == nil {
		d.workers = utils.NewBackgroundStoppableWorkers()
	}
	d.workers.Add(func(ctx context.Context) {
		if err := callback(ctx, note); err != nil {
			d.logger.Warnw("notification callback failed", "error", err)
		}
	})
}

func (d *Device) elapsedMs() float64 {
	return float64(time.Since(d.start)) / float64(time.Millisecond)
}

// Close stops every worker.
func (d *Device) Close() error {
	d.mu.Lock()
	workers := d.workers
	d.workers = nil
	d.mu.Unlock()
	if workers != nil {
		workers.Stop()
	}
	return nil
}

// FrameSet synthesizes frame set n: a tilted depth plane, a color gradient and infrared
// images of the same scene.
func (d *Device) FrameSet(n uint64, timestampMs float64) *device.FrameSet {
	w, h := d.opts.Width, d.opts.Height
	frame := func(id int) *device.Frame {
		return &device.Frame{Profile: d.profile(id), Number: n, Timestamp: timestampMs, Domain: device.GlobalTime}
	}

	depthFrame := frame(DepthID)
	depthFrame.Depth = make([]uint16, w*h)
	color := frame(ColorID)
	color.Data = make([]byte, 3*w*h)
	infra1, infra2 := frame(Infra1ID), frame(Infra2ID)
	infra1.Data, infra2.Data = make([]byte, w*h), make([]byte, w*h)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			// one to three meters, moving with the frame number
			depthFrame.Depth[i] = uint16(1000 + (x*2000)/w + int(n%100))
			color.Data[3*i] = byte(255 * x / w)
			color.Data[3*i+1] = byte(255 * y / h)
			color.Data[3*i+2] = byte(n)
			infra1.Data[i] = byte((x + int(n)) % 256)
			infra2.Data[i] = byte((x + int(n) + 2) % 256)
		}
	}
	return device.NewFrameSet(depthFrame, color, infra1, infra2)
}

// Motion synthesizes inertial sample n: a slow rotation about y and gravity along y.
func (d *Device) Motion(kind device.StreamKind, n uint64, timestampMs float64) *device.Frame {
	id := GyroID
	v := r3.Vector{Y: 0.1 * math.Sin(float64(n)/100)}
	if kind == device.Accel {
		id = AccelID
		v = r3.Vector{Y: -9.81}
	}
	return &device.Frame{Profile: d.profile(id), Number: n, Timestamp: timestampMs, Domain: device.GlobalTime, Motion: v}
}
