package transport

import (
	"testing"

	"go.viam.com/test"

	"go.viam.com/rsnode/device"
)

func TestTopicNames(t *testing.T) {
	test.That(t, ImageTopic(device.DepthStream), test.ShouldEqual, Topic("depth/image_raw"))
	test.That(t, InfoTopic(device.InfraredRightStream), test.ShouldEqual, Topic("infra2/camera_info"))
	test.That(t, AlignedDepthImageTopic(device.ColorStream), test.ShouldEqual, Topic("aligned_depth_to_color/image_raw"))
	test.That(t, AlignedDepthInfoTopic(device.InfraredLeftStream), test.ShouldEqual, Topic("aligned_depth_to_infra1/camera_info"))
	test.That(t, MotionTopic(device.GyroStream), test.ShouldEqual, Topic("gyro/sample"))
	test.That(t, ImuInfoTopic(device.AccelStream), test.ShouldEqual, Topic("accel/imu_info"))
	test.That(t, ExtrinsicsTopic(device.ColorStream), test.ShouldEqual, Topic("extrinsics/depth_to_color"))
}
