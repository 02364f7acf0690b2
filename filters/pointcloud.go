package filters

import (
	"context"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"go.viam.com/rsnode/device"
)

// PointCloudName is the registry name of the point cloud stage.
const PointCloudName = "pointcloud"

// ExtrinsicsSource supplies the transform between two streams of a device.
type ExtrinsicsSource interface {
	Extrinsics(from, to device.Profile) (device.Extrinsics, error)
}

type pointCloud struct {
	depthScale float64
	extrinsics ExtrinsicsSource
}

// NewPointCloud deprojects the set's depth frame through its intrinsics into an organized point
// cloud in meters. Invalid depth yields zero points. When extrinsics is not nil and the set holds
// an RGB8 color frame, every point is textured with the color pixel it projects onto.
func NewPointCloud(depthScale float64, extrinsics ExtrinsicsSource) Filter {
	return &pointCloud{depthScale: depthScale, extrinsics: extrinsics}
}

func (pc *pointCloud) Name() string { return PointCloudName }

func (pc *pointCloud) AppliesTo() AppliesTo { return AppliesToFrameSet }

func (pc *pointCloud) Process(ctx context.Context, fs *device.FrameSet) (*device.FrameSet, error) {
	d := fs.DepthFrame()
	if d == nil || d.Profile.Intrinsics.CheckValid() != nil {
		return fs, nil
	}
	w, h := d.Width(), d.Height()
	p := d.Profile
	p.Format = device.FormatXYZ32F
	out := d.Derive(p)
	out.Points = make([]r3.Vector, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			if i >= len(d.Depth) || d.Depth[i] == 0 {
				continue
			}
			out.Points[i] = p.Intrinsics.PixelToPoint(float64(x), float64(y), float64(d.Depth[i])*pc.depthScale)
		}
	}
	colors, err := pc.texture(fs, d.Profile, out.Points)
	if err != nil {
		return nil, err
	}
	out.Colors = colors
	return fs.WithLeading(out), nil
}

// texture samples the color frame at the nearest pixel of each point's projection. Points that
// are invalid or fall outside the color image are black. It returns nil when the set cannot be
// textured.
func (pc *pointCloud) texture(fs *device.FrameSet, depthProfile device.Profile, points []r3.Vector) ([]byte, error) {
	if pc.extrinsics == nil {
		return nil, nil
	}
	color := fs.Find(device.ColorStream)
	if color == nil || color.Profile.Format != device.FormatRGB8 || color.Profile.Intrinsics.CheckValid() != nil {
		return nil, nil
	}
	w, h := color.Width(), color.Height()
	if len(color.Data) < 3*w*h {
		return nil, nil
	}
	ex, err := pc.extrinsics.Extrinsics(depthProfile, color.Profile)
	if errors.Is(err, device.ErrExtrinsicsUnavailable) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "texturing point cloud")
	}

	colors := make([]byte, 3*len(points))
	for i, p := range points {
		if p.Z <= 0 {
			continue
		}
		u, v := color.Profile.Intrinsics.PointToPixel(ex.Transform(p))
		x, y := int(u), int(v)
		if x < 0 || y < 0 || x >= w || y >= h {
			continue
		}
		copy(colors[3*i:3*i+3], color.Data[3*(y*w+x):])
	}
	return colors, nil
}
