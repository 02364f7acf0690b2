// Package device defines the data model exchanged with the camera hardware: stream identities,
// profiles, calibration metadata, frames and the Device capability interface.
package device

import (
	"fmt"

	"github.com/pkg/errors"
)

// StreamKind is the sensor modality of a stream.
type StreamKind int

// The known stream kinds.
const (
	KindUnknown StreamKind = iota
	Color
	Depth
	Confidence
	Infrared
	Gyro
	Accel
	Pose
)

var kindNames = map[StreamKind]string{
	Color:      "color",
	Depth:      "depth",
	Confidence: "confidence",
	Infrared:   "infra",
	Gyro:       "gyro",
	Accel:      "accel",
	Pose:       "pose",
}

func (k StreamKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", int(k))
}

// IsVideo reports whether streams of this kind carry an image plane.
func (k StreamKind) IsVideo() bool {
	switch k {
	case Color, Depth, Confidence, Infrared:
		return true
	case KindUnknown, Gyro, Accel, Pose:
		return false
	}
	return false
}

// IsMotion reports whether streams of this kind carry inertial samples.
func (k StreamKind) IsMotion() bool {
	return k == Gyro || k == Accel
}

// ParseStreamKind maps a kind name back to a StreamKind.
func ParseStreamKind(name string) (StreamKind, error) {
	for k, n := range kindNames {
		if n == name {
			return k, nil
		}
	}
	return KindUnknown, errors.Errorf("unknown stream kind %q", name)
}

// StreamIdentity is the (kind, index) key of one logical sensor channel.
type StreamIdentity struct {
	Kind  StreamKind
	Index int
}

// Well known identities.
var (
	ColorStream         = StreamIdentity{Color, 0}
	DepthStream         = StreamIdentity{Depth, 0}
	ConfidenceStream    = StreamIdentity{Confidence, 0}
	InfraredLeftStream  = StreamIdentity{Infrared, 1}
	InfraredRightStream = StreamIdentity{Infrared, 2}
	GyroStream          = StreamIdentity{Gyro, 0}
	AccelStream         = StreamIdentity{Accel, 0}
	PoseStream          = StreamIdentity{Pose, 0}
)

// Name is the stream name used in topic and frame names, e.g. "depth" or "infra1".
func (id StreamIdentity) Name() string {
	if id.Index > 0 {
		return fmt.Sprintf("%s%d", id.Kind, id.Index)
	}
	return id.Kind.String()
}

func (id StreamIdentity) String() string {
	return fmt.Sprintf("%s(%d)", id.Kind, id.Index)
}

// FrameID is the coordinate frame name of the stream's sensor.
func (id StreamIdentity) FrameID(prefix string) string {
	return fmt.Sprintf("%s_%s_frame", prefix, id.Name())
}

// OpticalFrameID is the coordinate frame name of the stream's optical frame.
func (id StreamIdentity) OpticalFrameID(prefix string) string {
	return fmt.Sprintf("%s_%s_optical_frame", prefix, id.Name())
}

// AlignedDepthFrameID is the virtual frame of depth reprojected into this stream's image plane.
func (id StreamIdentity) AlignedDepthFrameID(prefix string) string {
	return fmt.Sprintf("%s_aligned_depth_to_%s_frame", prefix, id.Name())
}

// BaseFrameID is the device body frame.
func BaseFrameID(prefix string) string {
	return prefix + "_link"
}

// ImuOpticalFrameID is the frame of the unified inertial stream.
func ImuOpticalFrameID(prefix string) string {
	return prefix + "_imu_optical_frame"
}

// OdomFrameID is the fixed world frame of the pose stream.
const OdomFrameID = "odom_frame"
