package node

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/num/quat"

	"go.viam.com/rsnode/device"
	"go.viam.com/rsnode/msgs"
	"go.viam.com/rsnode/spatialmath"
	"go.viam.com/rsnode/transport"
)

// toBodyAxes converts a vector from the tracking camera's axes to the x forward, y left, z up
// convention.
func toBodyAxes(v r3.Vector) r3.Vector {
	return r3.Vector{X: -v.Z, Y: -v.X, Z: v.Y}
}

func toBodyRotation(q quat.Number) quat.Number {
	return quat.Number{Real: q.Real, Imag: -q.Kmag, Jmag: -q.Imag, Kmag: q.Jmag}
}

// odometryCovariance scales covariances by tracker confidence: each level of confidence
// divides the variance by ten.
func odometryCovariance(linearAccelCov, angularVelocityCov float64, confidence int) [36]float64 {
	covPose := linearAccelCov * math.Pow(10, float64(3-confidence))
	covTwist := angularVelocityCov * math.Pow(10, float64(1-confidence))
	var cov [36]float64
	for i := 0; i < 3; i++ {
		cov[i*7] = covPose
		cov[(i+3)*7] = covTwist
	}
	return cov
}

func (n *Node) handlePose(f *device.Frame) error {
	if f.Pose == nil {
		return errors.New("pose frame has no pose data")
	}
	n.timeBase.EnsureAnchored(f.Timestamp, f.Domain)
	stamp := n.timeBase.ToHostTime(f.Timestamp)
	pose := f.Pose

	position := toBodyAxes(pose.Translation)
	orientation := toBodyRotation(pose.Rotation)
	poseFrame := device.PoseStream.FrameID(n.cfg.CameraName)

	if n.cfg.PublishOdomTF {
		tf := &msgs.TransformList{Transforms: []msgs.TransformStamped{{
			Header:       msgs.Header{Stamp: stamp, FrameID: device.OdomFrameID},
			ChildFrameID: poseFrame,
			Translation:  position,
			Rotation:     orientation,
		}}}
		if err := n.pub.Publish(transport.TopicTF, tf, stamp); err != nil {
			return err
		}
	}

	if n.pub.SubscriberCount(transport.TopicOdom) == 0 {
		return nil
	}
	toOdom := quat.Conj(orientation)
	cov := odometryCovariance(n.cfg.LinearAccelCov, n.cfg.AngularVelocityCov, pose.TrackerConfidence)
	odom := &msgs.Odometry{
		Header:          msgs.Header{Stamp: stamp, FrameID: device.OdomFrameID},
		ChildFrameID:    poseFrame,
		Position:        position,
		Orientation:     orientation,
		PoseCovariance:  cov,
		LinearVelocity:  spatialmath.RotateVector(toOdom, toBodyAxes(pose.Velocity)),
		AngularVelocity: spatialmath.RotateVector(toOdom, toBodyAxes(pose.AngularVelocity)),
		TwistCovariance: cov,
	}
	return n.pub.Publish(transport.TopicOdom, odom, stamp)
}
