// Package msgs defines the messages the node publishes.
package msgs

import (
	"time"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

// Image encodings.
const (
	EncodingMono8  = "mono8"
	EncodingMono16 = "16UC1"
	EncodingRGB8   = "rgb8"
	Encoding32FC1  = "32FC1"
)

// Distortion model tags.
const (
	DistortionPlumbBob    = "plumb_bob"
	DistortionEquidistant = "equidistant"
)

// Header is common to every stamped message.
type Header struct {
	Stamp   time.Time `json:"stamp"`
	FrameID string    `json:"frame_id"`
}

// Image is a raw image plane.
type Image struct {
	Header
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Encoding string `json:"encoding"`
	Step     int    `json:"step"`
	Data     []byte `json:"data"`
}

// CameraInfo is the calibration record of one video stream.
type CameraInfo struct {
	Header
	Width           int         `json:"width"`
	Height          int         `json:"height"`
	DistortionModel string      `json:"distortion_model"`
	D               []float64   `json:"d"`
	K               [9]float64  `json:"k"`
	R               [9]float64  `json:"r"`
	P               [12]float64 `json:"p"`
}

// Imu is a unified or single-axis inertial reading.
type Imu struct {
	Header
	Orientation                  quat.Number `json:"orientation"`
	OrientationCovariance        [9]float64  `json:"orientation_covariance"`
	AngularVelocity              r3.Vector   `json:"angular_velocity"`
	AngularVelocityCovariance    [9]float64  `json:"angular_velocity_covariance"`
	LinearAcceleration           r3.Vector   `json:"linear_acceleration"`
	LinearAccelerationCovariance [9]float64  `json:"linear_acceleration_covariance"`
}

// NewImu returns a reading with no orientation estimate and diagonal covariances.
func NewImu(frameID string, stamp time.Time, linearAccelCov, angularVelocityCov float64) *Imu {
	return &Imu{
		Header:                       Header{Stamp: stamp, FrameID: frameID},
		OrientationCovariance:        [9]float64{-1, 0, 0, 0, 0, 0, 0, 0, 0},
		LinearAccelerationCovariance: diagonal3(linearAccelCov),
		AngularVelocityCovariance:    diagonal3(angularVelocityCov),
	}
}

func diagonal3(v float64) [9]float64 {
	return [9]float64{v, 0, 0, 0, v, 0, 0, 0, v}
}

// ImuInfo carries the calibration of an inertial stream.
type ImuInfo struct {
	Header
	Data           [12]float64 `json:"data"`
	NoiseVariances [3]float64  `json:"noise_variances"`
	BiasVariances  [3]float64  `json:"bias_variances"`
}

// Odometry is a pose with velocities in the odom frame.
type Odometry struct {
	Header
	ChildFrameID    string      `json:"child_frame_id"`
	Position        r3.Vector   `json:"position"`
	Orientation     quat.Number `json:"orientation"`
	PoseCovariance  [36]float64 `json:"pose_covariance"`
	LinearVelocity  r3.Vector   `json:"linear_velocity"`
	AngularVelocity r3.Vector   `json:"angular_velocity"`
	TwistCovariance [36]float64 `json:"twist_covariance"`
}

// TransformStamped is one edge of the coordinate frame graph.
type TransformStamped struct {
	Header
	ChildFrameID string      `json:"child_frame_id"`
	Translation  r3.Vector   `json:"translation"`
	Rotation     quat.Number `json:"rotation"`
}

// TransformList is a batch of frame graph edges.
type TransformList struct {
	Transforms []TransformStamped `json:"transforms"`
}

// PointCloud is a set of valid 3D points in one frame.
type PointCloud struct {
	Header
	Points []r3.Vector `json:"points"`
	// Colors holds one RGB triple per point when the cloud is textured.
	Colors [][3]uint8 `json:"colors,omitempty"`
}

// Extrinsics is the transform between two stream frames.
type Extrinsics struct {
	Header
	Rotation    [9]float64 `json:"rotation"`
	Translation [3]float64 `json:"translation"`
}
