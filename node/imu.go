package node

import (
	"math"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"go.viam.com/rsnode/backpressure"
	"go.viam.com/rsnode/device"
	"go.viam.com/rsnode/imusync"
	"go.viam.com/rsnode/logging"
	"go.viam.com/rsnode/msgs"
	"go.viam.com/rsnode/timebase"
	"go.viam.com/rsnode/transport"
)

// imuPublisher publishes inertial samples, either per stream or paired into unified readings
// behind a backpressure gate.
type imuPublisher struct {
	pub      transport.Publisher
	cfg      *Config
	timeBase *timebase.TimeBase
	gate     *backpressure.Gate
	logger   logging.Logger

	// mu serializes the synchronizer and keeps unified output in order.
	mu   sync.Mutex
	sync imusync.Synchronizer
}

func newImuPublisher(pub transport.Publisher, cfg *Config, tb *timebase.TimeBase, logger logging.Logger) (*imuPublisher, error) {
	method, err := imusync.ParseMethod(cfg.UniteImuMethod)
	if err != nil {
		return nil, err
	}
	p := &imuPublisher{
		pub:      pub,
		cfg:      cfg,
		timeBase: tb,
		gate:     backpressure.New(pub, transport.TopicImu, cfg.ImuBacklogSize),
		logger:   logger,
	}
	if method != imusync.MethodNone {
		if p.sync, err = imusync.New(method); err != nil {
			return nil, err
		}
	}
	p.gate.SetEnabled(p.sync != nil)
	return p, nil
}

func (p *imuPublisher) handle(f *device.Frame) error {
	anchor := p.timeBase.EnsureAnchored(f.Timestamp, f.Domain)
	if p.sync != nil {
		return p.publishUnified(f, anchor)
	}
	return p.publishSingle(f)
}

func (p *imuPublisher) newImu(frameID string, stamp time.Time) *msgs.Imu {
	return msgs.NewImu(frameID, stamp, p.cfg.LinearAccelCov, p.cfg.AngularVelocityCov)
}

func (p *imuPublisher) publishUnified(f *device.Frame, anchor timebase.Anchor) error {
	if p.gate.SubscriberCount() == 0 {
		return nil
	}
	sample := imusync.NewSample(f.Profile.Kind, f.Motion, (f.Timestamp-anchor.Device)*1e6)

	p.mu.Lock()
	defer p.mu.Unlock()
	var errs error
	for _, r := range p.sync.Add(sample) {
		stamp := anchor.Host.Add(time.Duration(math.Round(r.TimeNs)))
		msg := p.newImu(device.ImuOpticalFrameID(p.cfg.CameraName), stamp)
		msg.AngularVelocity = r.AngularVelocity
		msg.LinearAcceleration = r.LinearAcceleration
		if err := p.gate.Publish(msg, stamp); err != nil {
			if errors.Is(err, backpressure.ErrBacklogFull) {
				p.logger.Errorw("unified imu backlog overflow", "pending", p.gate.Pending())
			}
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

func (p *imuPublisher) publishSingle(f *device.Frame) error {
	id := f.Identity()
	topic := transport.MotionTopic(id)
	if p.pub.SubscriberCount(topic) == 0 {
		return nil
	}
	stamp := p.timeBase.ToHostTime(f.Timestamp)
	msg := p.newImu(id.OpticalFrameID(p.cfg.CameraName), stamp)
	if f.Profile.Kind == device.Gyro {
		msg.AngularVelocity = f.Motion
	} else {
		msg.LinearAcceleration = f.Motion
	}
	return p.pub.Publish(topic, msg, stamp)
}
