package filters

import (
	"context"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.viam.com/rsnode/device"
)

func process(t *testing.T, f Filter, frames ...*device.Frame) *device.FrameSet {
	t.Helper()
	out, err := f.Process(context.Background(), device.NewFrameSet(frames...))
	test.That(t, err, test.ShouldBeNil)
	return out
}

func TestDecimationDepthMedian(t *testing.T) {
	f, err := NewDecimation(2)
	test.That(t, err, test.ShouldBeNil)
	in := depthFrame(4, 2,
		10, 0, 40, 40,
		30, 20, 40, 0)
	out := process(t, f, in).Frames[0]
	test.That(t, out.Width(), test.ShouldEqual, 2)
	test.That(t, out.Height(), test.ShouldEqual, 1)
	// {10,20,30} and {40,40,40}; zeros are ignored
	test.That(t, out.Depth, test.ShouldResemble, []uint16{20, 40})
	test.That(t, out.Profile.Intrinsics.Fx, test.ShouldEqual, 50.0)
	test.That(t, in.Width(), test.ShouldEqual, 4)

	_, err = NewDecimation(0)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestDecimationImagePlanes(t *testing.T) {
	f, err := NewDecimation(2)
	test.That(t, err, test.ShouldBeNil)

	gray := &device.Frame{
		Profile: device.Profile{Kind: device.Infrared, Index: 1, Format: device.FormatY8, Width: 2, Height: 2},
		Data:    []byte{7, 7, 7, 7},
	}
	rgb := &device.Frame{
		Profile: device.Profile{Kind: device.Color, Format: device.FormatRGB8, Width: 2, Height: 2},
		Data:    []byte{1, 2, 3, 1, 2, 3, 1, 2, 3, 1, 2, 3},
	}
	out := process(t, f, gray, rgb)
	test.That(t, out.Len(), test.ShouldEqual, 4)
	test.That(t, out.Frames[0].Data, test.ShouldResemble, []byte{7})
	test.That(t, out.Frames[1].Data, test.ShouldResemble, []byte{1, 2, 3})
}

func TestDisparityRoundTrip(t *testing.T) {
	start, err := NewDisparityTransform(true, 0.05, 0.001)
	test.That(t, err, test.ShouldBeNil)
	end, err := NewDisparityTransform(false, 0.05, 0.001)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, start.Name(), test.ShouldEqual, DisparityStartName)
	test.That(t, end.Name(), test.ShouldEqual, DisparityEndName)

	in := depthFrame(3, 1, 1000, 0, 2500)
	disp := process(t, start, in)
	test.That(t, disp.Frames[0].Profile.Format, test.ShouldEqual, device.FormatDisparity32)
	// 0.05m * 100px / 1m
	test.That(t, disp.Frames[0].Disparity[0], test.ShouldAlmostEqual, float32(5), 1e-5)
	test.That(t, disp.Frames[0].Disparity[1], test.ShouldEqual, float32(0))

	back := process(t, end, disp.Frames...)
	test.That(t, back.Frames[0].Profile.Format, test.ShouldEqual, device.FormatZ16)
	test.That(t, back.Frames[0].Depth, test.ShouldResemble, []uint16{1000, 0, 2500})

	// a Z16 frame is left alone by the end transform
	untouched := process(t, end, in)
	test.That(t, untouched.Len(), test.ShouldEqual, 1)

	_, err = NewDisparityTransform(true, 0, 0.001)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestSpatialPreservesEdges(t *testing.T) {
	f, err := NewSpatial(SpatialOptions{Alpha: 0.5, Delta: 20, Iterations: 1})
	test.That(t, err, test.ShouldBeNil)
	in := depthFrame(4, 1, 100, 110, 500, 0)
	out := process(t, f, in).Frames[0]

	// 100 and 110 blend, the 500 edge and the hole are kept
	test.That(t, out.Depth[0], test.ShouldBeBetween, uint16(100), uint16(110))
	test.That(t, out.Depth[1], test.ShouldBeBetween, uint16(100), uint16(110))
	test.That(t, out.Depth[2], test.ShouldEqual, uint16(500))
	test.That(t, out.Depth[3], test.ShouldEqual, uint16(0))
	// the input is not modified
	test.That(t, in.Depth, test.ShouldResemble, []uint16{100, 110, 500, 0})
}

func TestTemporal(t *testing.T) {
	f, err := NewTemporal(DefaultTemporalOptions())
	test.That(t, err, test.ShouldBeNil)

	first := process(t, f, depthFrame(3, 1, 100, 100, 100)).Frames[0]
	test.That(t, first.Depth, test.ShouldResemble, []uint16{100, 100, 100})

	second := process(t, f, depthFrame(3, 1, 110, 300, 0)).Frames[0]
	// 0.4*110 + 0.6*100; a jump beyond delta resets; holes stay holes
	test.That(t, second.Depth, test.ShouldResemble, []uint16{104, 300, 0})

	// a resolution change restarts the history
	third := process(t, f, depthFrame(2, 1, 50, 50)).Frames[0]
	test.That(t, third.Depth, test.ShouldResemble, []uint16{50, 50})

	persistent, err := NewTemporal(TemporalOptions{Alpha: 0.4, Delta: 20, Persistence: true})
	test.That(t, err, test.ShouldBeNil)
	process(t, persistent, depthFrame(1, 1, 100))
	held := process(t, persistent, depthFrame(1, 1, 0)).Frames[0]
	test.That(t, held.Depth, test.ShouldResemble, []uint16{100})
}

func TestHoleFilling(t *testing.T) {
	in := func() *device.Frame {
		return depthFrame(3, 3,
			0, 500, 0,
			100, 0, 300,
			0, 200, 0)
	}

	left, err := NewHoleFilling(FillFromLeft)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, process(t, left, in()).Frames[0].Depth, test.ShouldResemble, []uint16{
		0, 500, 500,
		100, 100, 300,
		0, 200, 200,
	})

	far, err := NewHoleFilling(FarthestFromAround)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, process(t, far, in()).Frames[0].Depth[4], test.ShouldEqual, uint16(500))

	near, err := NewHoleFilling(NearestFromAround)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, process(t, near, in()).Frames[0].Depth[4], test.ShouldEqual, uint16(100))

	_, err = NewHoleFilling(HoleFillingMode(7))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestColorizer(t *testing.T) {
	out := process(t, NewColorizer(), depthFrame(3, 1, 100, 0, 200)).Frames[0]
	test.That(t, out.Identity(), test.ShouldResemble, device.DepthStream)
	test.That(t, out.Profile.Format, test.ShouldEqual, device.FormatRGB8)
	test.That(t, out.Data, test.ShouldResemble, []byte{255, 0, 0, 0, 0, 0, 0, 0, 255})
}

type fixedExtrinsics struct {
	ex  device.Extrinsics
	err error
}

func (f fixedExtrinsics) Extrinsics(from, to device.Profile) (device.Extrinsics, error) {
	return f.ex, f.err
}

func TestPointCloud(t *testing.T) {
	f := NewPointCloud(0.001, nil)
	test.That(t, f.AppliesTo(), test.ShouldEqual, AppliesToFrameSet)
	color := &device.Frame{Profile: device.Profile{Kind: device.Color, Format: device.FormatRGB8}}
	out := process(t, f, color, depthFrame(2, 2, 0, 0, 0, 2000))

	test.That(t, out.Len(), test.ShouldEqual, 3)
	points := out.Frames[0]
	test.That(t, points.IsPoints(), test.ShouldBeTrue)
	test.That(t, points.Points, test.ShouldHaveLength, 4)
	test.That(t, points.Points[0], test.ShouldResemble, r3.Vector{})
	// pixel (1,1) with principal point (1,1) is on the optical axis
	test.That(t, points.Points[3], test.ShouldResemble, r3.Vector{X: 0, Y: 0, Z: 2})

	// no depth, no points
	test.That(t, process(t, f, color).Len(), test.ShouldEqual, 1)
}

func TestPointCloudTexture(t *testing.T) {
	depth := depthFrame(2, 2, 0, 0, 0, 2000)
	color := &device.Frame{
		Profile: device.Profile{
			Kind: device.Color, Format: device.FormatRGB8, Width: 2, Height: 2,
			Intrinsics: depth.Profile.Intrinsics,
		},
		Data: []byte{1, 1, 1, 2, 2, 2, 3, 3, 3, 40, 50, 60},
	}

	// the valid point projects onto color pixel (1,1); invalid points stay black
	textured := process(t, NewPointCloud(0.001, fixedExtrinsics{ex: device.IdentityExtrinsics()}), color, depth).Frames[0]
	test.That(t, textured.Colors, test.ShouldResemble, []byte{0, 0, 0, 0, 0, 0, 0, 0, 0, 40, 50, 60})

	// a point projecting outside the color image is black
	shifted := device.IdentityExtrinsics()
	shifted.Translation[0] = 2
	outside := process(t, NewPointCloud(0.001, fixedExtrinsics{ex: shifted}), color, depth).Frames[0]
	test.That(t, outside.Colors, test.ShouldResemble, make([]byte, 12))

	// no color frame or no calibration leaves the cloud untextured
	test.That(t, process(t, NewPointCloud(0.001, fixedExtrinsics{}), depth).Frames[0].Colors, test.ShouldBeNil)
	uncalibrated := fixedExtrinsics{err: errors.Wrap(device.ErrExtrinsicsUnavailable, "color")}
	test.That(t, process(t, NewPointCloud(0.001, uncalibrated), color, depth).Frames[0].Colors, test.ShouldBeNil)

	_, err := NewPointCloud(0.001, fixedExtrinsics{err: errors.New("device gone")}).Process(context.Background(), device.NewFrameSet(color, depth))
	test.That(t, err, test.ShouldNotBeNil)
}
