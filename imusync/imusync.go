// Package imusync pairs accelerometer and gyroscope samples into unified inertial readings.
//
// Synchronizers own their history and are not safe for concurrent use; callers serialize Add.
package imusync

import (
	"strings"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"go.viam.com/rsnode/device"
)

// Sample is one raw inertial measurement.
type Sample struct {
	Kind   device.StreamKind
	Vector r3.Vector
	// TimeNs is device time in nanoseconds.
	TimeNs float64
	isSet  bool
}

// NewSample returns a set sample.
func NewSample(kind device.StreamKind, v r3.Vector, timeNs float64) Sample {
	return Sample{Kind: kind, Vector: v, TimeNs: timeNs, isSet: true}
}

// IsSet reports whether the sample holds a measurement.
func (s Sample) IsSet() bool {
	return s.isSet
}

// Reading is a gyroscope sample paired with the accelerometer vector at the same instant.
type Reading struct {
	TimeNs             float64
	AngularVelocity    r3.Vector
	LinearAcceleration r3.Vector
}

// Synchronizer turns a stream of samples into readings.
type Synchronizer interface {
	// Add consumes one sample and returns the readings it completes, in gyro arrival order.
	Add(s Sample) []Reading
}

// Method selects a synchronization policy.
type Method string

// The policies.
const (
	MethodNone                Method = ""
	MethodCopy                Method = "copy"
	MethodLinearInterpolation Method = "linear_interpolation"
)

// ErrUnknownMethod is returned for unrecognized policy names.
var ErrUnknownMethod = errors.New("unknown imu synchronization method")

// ParseMethod validates a policy name.
func ParseMethod(name string) (Method, error) {
	switch m := Method(strings.ToLower(strings.TrimSpace(name))); m {
	case MethodNone, MethodCopy, MethodLinearInterpolation:
		return m, nil
	}
	return MethodNone, errors.Wrapf(ErrUnknownMethod, "%q", name)
}

// New constructs a fresh synchronizer for the method. MethodNone has no synchronizer.
func New(m Method) (Synchronizer, error) {
	switch m {
	case MethodCopy:
		return &CopySynchronizer{}, nil
	case MethodLinearInterpolation:
		return &LinearInterpolationSynchronizer{}, nil
	case MethodNone:
		return nil, errors.New("no synchronizer for an unsynchronized imu")
	}
	return nil, errors.Wrapf(ErrUnknownMethod, "%q", m)
}

// CopySynchronizer holds the last accelerometer sample and attaches it to every gyro sample.
type CopySynchronizer struct {
	accel Sample
}

// Add implements Synchronizer.
func (c *CopySynchronizer) Add(s Sample) []Reading {
	switch s.Kind {
	case device.Accel:
		c.accel = s
	case device.Gyro:
		if !c.accel.IsSet() {
			return nil
		}
		return []Reading{{TimeNs: s.TimeNs, AngularVelocity: s.Vector, LinearAcceleration: c.accel.Vector}}
	default:
	}
	return nil
}

// LinearInterpolationSynchronizer emits readings once an accelerometer sample brackets the
// queued gyro samples, interpolating the accelerometer vector at each gyro timestamp.
type LinearInterpolationSynchronizer struct {
	history []Sample
}

// Add implements Synchronizer.
func (l *LinearInterpolationSynchronizer) Add(s Sample) []Reading {
	l.history = append(l.history, s)
	if s.Kind != device.Accel || len(l.history) < 3 {
		return nil
	}

	var (
		accel0, accel1 Sample
		gyros          []Sample
		readings       []Reading
		last           Sample
	)
	for _, cur := range l.history {
		last = cur
		switch {
		case !accel0.IsSet():
			if cur.Kind == device.Accel {
				accel0 = cur
			}
		case cur.Kind == device.Accel:
			accel1 = cur
			span := accel1.TimeNs - accel0.TimeNs
			for _, g := range gyros {
				alpha := 0.0
				if span > 0 {
					alpha = (g.TimeNs - accel0.TimeNs) / span
				}
				readings = append(readings, Reading{
					TimeNs:             g.TimeNs,
					AngularVelocity:    g.Vector,
					LinearAcceleration: lerp(accel0.Vector, accel1.Vector, alpha),
				})
			}
			accel0 = accel1
			gyros = gyros[:0]
		case cur.TimeNs >= accel0.TimeNs:
			gyros = append(gyros, cur)
		}
	}
	l.history = append(l.history[:0], last)
	return readings
}

func lerp(a, b r3.Vector, alpha float64) r3.Vector {
	return a.Mul(1 - alpha).Add(b.Mul(alpha))
}
