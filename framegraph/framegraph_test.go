package framegraph

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.viam.com/rsnode/device"
	"go.viam.com/rsnode/logging"
	"go.viam.com/rsnode/msgs"
	"go.viam.com/rsnode/spatialmath"
	"go.viam.com/rsnode/transport"
	"go.viam.com/rsnode/transport/inmem"
)

type extrinsicsTable struct {
	ex  device.Extrinsics
	err error
}

func (e extrinsicsTable) Extrinsics(from, to device.Profile) (device.Extrinsics, error) {
	return e.ex, e.err
}

var (
	depthProfile = device.Profile{Kind: device.Depth, Format: device.FormatZ16}
	poseProfile  = device.Profile{Kind: device.Pose, Format: device.Format6DOF}
	colorProfile = device.Profile{Kind: device.Color, Format: device.FormatRGB8}
	infraLeft    = device.Profile{Kind: device.Infrared, Index: 1, Format: device.FormatY8}
)

func TestSelectBaseStream(t *testing.T) {
	base, err := SelectBaseStream([]device.Profile{poseProfile})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, base.Kind, test.ShouldEqual, device.Pose)

	base, err = SelectBaseStream([]device.Profile{colorProfile, poseProfile, depthProfile})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, base.Kind, test.ShouldEqual, device.Depth)

	_, err = SelectBaseStream([]device.Profile{colorProfile, infraLeft})
	test.That(t, errors.Is(err, ErrNoBaseStream), test.ShouldBeTrue)
}

func TestBuildEdges(t *testing.T) {
	ex := device.IdentityExtrinsics()
	ex.Translation = [3]float64{0.015, 0, 0}
	b := NewBuilder(extrinsicsTable{ex: ex}, "camera", logging.NewTestLogger(t))

	test.That(t, b.Build(colorProfile, depthProfile), test.ShouldBeNil)
	edges := b.Edges()
	test.That(t, edges, test.ShouldHaveLength, 2)

	test.That(t, edges[0].FrameID, test.ShouldEqual, "camera_depth_frame")
	test.That(t, edges[0].ChildFrameID, test.ShouldEqual, "camera_color_frame")
	// optical x is body -y
	test.That(t, edges[0].Translation, test.ShouldResemble, r3.Vector{X: 0, Y: -0.015, Z: 0})
	test.That(t, spatialmath.QuaternionAlmostEqual(edges[0].Rotation, spatialmath.NewZeroOrientation(), 1e-9), test.ShouldBeTrue)

	test.That(t, edges[1].FrameID, test.ShouldEqual, "camera_color_frame")
	test.That(t, edges[1].ChildFrameID, test.ShouldEqual, "camera_color_optical_frame")
	test.That(t, edges[1].Translation, test.ShouldResemble, r3.Vector{})
	test.That(t, edges[1].Rotation, test.ShouldResemble, spatialmath.OpticalRotation())

	// only index 1 video streams get the aligned depth frame
	test.That(t, b.BuildAll([]device.Profile{depthProfile, infraLeft}, depthProfile), test.ShouldBeNil)
	edges = b.Edges()
	test.That(t, edges, test.ShouldHaveLength, 7)
	test.That(t, edges[0].FrameID, test.ShouldEqual, "camera_link")
	test.That(t, edges[0].ChildFrameID, test.ShouldEqual, "camera_depth_frame")
	test.That(t, edges[5].ChildFrameID, test.ShouldEqual, "camera_aligned_depth_to_infra1_frame")
	test.That(t, edges[6].FrameID, test.ShouldEqual, "camera_aligned_depth_to_infra1_frame")
	test.That(t, edges[6].ChildFrameID, test.ShouldEqual, "camera_infra1_optical_frame")

	rendered := b.String()
	test.That(t, rendered, test.ShouldContainSubstring, "camera_link")
	test.That(t, rendered, test.ShouldContainSubstring, "camera_aligned_depth_to_infra1_frame")
}

func TestBuildExtrinsicsFallback(t *testing.T) {
	logger, logs := logging.NewObservedTestLogger(t)
	b := NewBuilder(extrinsicsTable{err: errors.Wrap(device.ErrExtrinsicsUnavailable, "no calibration")}, "camera", logger)
	test.That(t, b.Build(colorProfile, depthProfile), test.ShouldBeNil)
	edges := b.Edges()
	test.That(t, edges, test.ShouldHaveLength, 2)
	test.That(t, edges[0].Translation, test.ShouldResemble, r3.Vector{})
	test.That(t, logs.FilterMessageSnippet("using identity").Len(), test.ShouldEqual, 1)

	b = NewBuilder(extrinsicsTable{err: errors.New("usb disconnected")}, "camera", logger)
	test.That(t, b.Build(colorProfile, depthProfile), test.ShouldNotBeNil)
	test.That(t, b.Edges(), test.ShouldBeEmpty)
}

func TestBroadcastOnceLatched(t *testing.T) {
	bus := inmem.New()
	clk := clock.NewMock()
	clk.Set(time.Unix(100, 0))
	b := NewBuilder(extrinsicsTable{ex: device.IdentityExtrinsics()}, "camera", logging.NewTestLogger(t))
	test.That(t, b.Build(depthProfile, depthProfile), test.ShouldBeNil)

	caster := NewBroadcaster(b, bus, clk, 0, logging.NewTestLogger(t))
	test.That(t, caster.Start(), test.ShouldBeNil)

	// late subscribers still get the edges
	ch := make(chan inmem.Message, 1)
	_, err := bus.Subscribe(transport.TopicTFStatic, ch)
	test.That(t, err, test.ShouldBeNil)
	msg := <-ch
	list := msg.Value.(*msgs.TransformList)
	test.That(t, list.Transforms, test.ShouldHaveLength, 2)
	test.That(t, list.Transforms[0].Stamp, test.ShouldEqual, time.Unix(100, 0))
	test.That(t, caster.Close(), test.ShouldBeNil)
}

func TestBroadcastPeriodic(t *testing.T) {
	bus := inmem.New()
	ch := make(chan inmem.Message, 16)
	_, err := bus.Subscribe(transport.TopicTF, ch)
	test.That(t, err, test.ShouldBeNil)

	b := NewBuilder(extrinsicsTable{ex: device.IdentityExtrinsics()}, "camera", logging.NewTestLogger(t))
	test.That(t, b.Build(depthProfile, depthProfile), test.ShouldBeNil)
	caster := NewBroadcaster(b, bus, clock.New(), 50, logging.NewTestLogger(t))
	test.That(t, caster.Start(), test.ShouldBeNil)
	test.That(t, caster.Start(), test.ShouldNotBeNil)

	for i := 0; i < 2; i++ {
		select {
		case msg := <-ch:
			test.That(t, msg.Value.(*msgs.TransformList).Transforms, test.ShouldHaveLength, 2)
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for transforms")
		}
	}
	test.That(t, caster.Close(), test.ShouldBeNil)
	test.That(t, caster.Close(), test.ShouldBeNil)
}
