package device

import (
	"context"
	"strings"
)

// Device is the capability surface of the camera hardware consumed by the node.
type Device interface {
	// Profiles lists the currently configured streams.
	Profiles() []Profile
	// Extrinsics returns the transform from one stream's frame to another's, or an error wrapping
	// ErrExtrinsicsUnavailable when the pair is not calibrated.
	Extrinsics(from, to Profile) (Extrinsics, error)
	// MotionIntrinsics returns the calibration of an inertial stream.
	MotionIntrinsics(p Profile) (MotionIntrinsics, error)
	// DepthScale is meters per depth unit.
	DepthScale() float64
	// HardwareReset power-cycles the device.
	HardwareReset(ctx context.Context) error
}

// Severity of a device notification.
type Severity int

// The notification severities.
const (
	SeverityDebug Severity = iota
	SeverityInfo
	SeverityWarn
	SeverityError
	SeverityFatal
)

func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarn:
		return "warn"
	case SeverityError:
		return "error"
	case SeverityFatal:
		return "fatal"
	}
	return "unknown"
}

// Notification is an asynchronous event reported by the device.
type Notification struct {
	Severity    Severity
	Category    string
	Description string
	Timestamp   float64
}

// resetTriggers are firmware errors that only a hardware reset recovers from.
var resetTriggers = []string{"RT IC2 Config error", "Left IC2 Config error"}

// RequiresReset reports whether the notification describes a fault that a hardware reset clears.
func (n Notification) RequiresReset() bool {
	if n.Severity < SeverityError {
		return false
	}
	for _, trigger := range resetTriggers {
		if strings.Contains(n.Description, trigger) {
			return true
		}
	}
	return false
}
