// Package transport defines the outbound publishing contract and the topic keys used by the node.
package transport

import (
	"time"

	"go.viam.com/rsnode/device"
)

// Topic addresses one output sink.
type Topic string

// Fixed topics.
const (
	TopicImu        Topic = "imu"
	TopicOdom       Topic = "odom/sample"
	TopicTF         Topic = "tf"
	TopicTFStatic   Topic = "tf_static"
	TopicPointCloud Topic = "depth/color/points"
)

// Publisher delivers messages to the consumers of a topic.
type Publisher interface {
	Publish(topic Topic, msg interface{}, stamp time.Time) error
	// SubscriberCount is the number of live consumers of the topic. It is a cheap read.
	SubscriberCount(topic Topic) int
}

// Latcher is implemented by publishers that can retain the last message of a topic for
// consumers that subscribe later.
type Latcher interface {
	PublishLatched(topic Topic, msg interface{}, stamp time.Time) error
}

// ImageTopic carries the images of a stream.
func ImageTopic(id device.StreamIdentity) Topic {
	return Topic(id.Name() + "/image_raw")
}

// InfoTopic carries the calibration of a stream.
func InfoTopic(id device.StreamIdentity) Topic {
	return Topic(id.Name() + "/camera_info")
}

// AlignedDepthImageTopic carries depth reprojected into the stream's image plane.
func AlignedDepthImageTopic(id device.StreamIdentity) Topic {
	return Topic("aligned_depth_to_" + id.Name() + "/image_raw")
}

// AlignedDepthInfoTopic carries the calibration matching AlignedDepthImageTopic.
func AlignedDepthInfoTopic(id device.StreamIdentity) Topic {
	return Topic("aligned_depth_to_" + id.Name() + "/camera_info")
}

// MotionTopic carries the raw samples of one inertial stream.
func MotionTopic(id device.StreamIdentity) Topic {
	return Topic(id.Name() + "/sample")
}

// ImuInfoTopic carries the calibration of one inertial stream.
func ImuInfoTopic(id device.StreamIdentity) Topic {
	return Topic(id.Name() + "/imu_info")
}

// ExtrinsicsTopic carries the transform from depth to the stream.
func ExtrinsicsTopic(id device.StreamIdentity) Topic {
	return Topic("extrinsics/depth_to_" + id.Name())
}
