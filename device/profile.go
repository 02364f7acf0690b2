package device

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// Format is the pixel or sample encoding of a stream.
type Format int

// The formats produced by the device and by the processing stages.
const (
	FormatAny Format = iota
	FormatZ16
	FormatY8
	FormatRGB8
	FormatDisparity32
	FormatXYZ32F
	FormatMotionXYZ32F
	Format6DOF
)

// BytesPerPixel is the size of one image sample, or 0 for non-image formats.
func (f Format) BytesPerPixel() int {
	switch f {
	case FormatY8:
		return 1
	case FormatZ16:
		return 2
	case FormatRGB8:
		return 3
	case FormatDisparity32:
		return 4
	case FormatAny, FormatXYZ32F, FormatMotionXYZ32F, Format6DOF:
		return 0
	}
	return 0
}

// TimestampDomain tells which clock produced a frame timestamp.
type TimestampDomain int

// The timestamp domains.
const (
	HardwareClock TimestampDomain = iota
	SystemTime
	GlobalTime
)

func (d TimestampDomain) String() string {
	switch d {
	case HardwareClock:
		return "hardware_clock"
	case SystemTime:
		return "system_time"
	case GlobalTime:
		return "global_time"
	}
	return "unknown"
}

// HardwareBacked reports whether timestamps in this domain come from the device clock.
func (d TimestampDomain) HardwareBacked() bool {
	return d != SystemTime
}

// DistortionModel is the lens model reported with intrinsics.
type DistortionModel int

// The lens models.
const (
	ModelNone DistortionModel = iota
	ModelBrownConrady
	ModelInverseBrownConrady
	ModelModifiedBrownConrady
	ModelFTheta
	ModelKannalaBrandt4
)

// Intrinsics are the pinhole parameters of a video stream.
type Intrinsics struct {
	Width  int             `json:"width_px"`
	Height int             `json:"height_px"`
	Fx     float64         `json:"fx"`
	Fy     float64         `json:"fy"`
	Ppx    float64         `json:"ppx"`
	Ppy    float64         `json:"ppy"`
	Model  DistortionModel `json:"model"`
	Coeffs [5]float64      `json:"coeffs"`
}

// ErrNoIntrinsics is returned when a stream does not report intrinsics.
var ErrNoIntrinsics = errors.New("stream intrinsic parameters are not available")

// CheckValid checks that the intrinsics describe a usable projection.
func (in *Intrinsics) CheckValid() error {
	if in == nil {
		return errors.Wrap(ErrNoIntrinsics, "intrinsics do not exist")
	}
	if in.Width == 0 || in.Height == 0 {
		return errors.Wrapf(ErrNoIntrinsics, "invalid size (%d, %d)", in.Width, in.Height)
	}
	if in.Fx <= 0 || in.Fy <= 0 {
		return errors.Wrapf(ErrNoIntrinsics, "invalid focal length (%v, %v)", in.Fx, in.Fy)
	}
	return nil
}

// PixelToPoint deprojects a pixel with depth z into a 3D point in the stream's optical frame.
func (in *Intrinsics) PixelToPoint(x, y, z float64) r3.Vector {
	if in == nil {
		return r3.Vector{}
	}
	return r3.Vector{X: (x - in.Ppx) / in.Fx * z, Y: (y - in.Ppy) / in.Fy * z, Z: z}
}

// PointToPixel projects a point in the optical frame onto the image plane.
func (in *Intrinsics) PointToPixel(p r3.Vector) (float64, float64) {
	if p.Z != 0 {
		return math.Round(p.X/p.Z*in.Fx + in.Ppx), math.Round(p.Y/p.Z*in.Fy + in.Ppy)
	}
	// negative coordinates are filtered out by bounds checks
	return -1, -1
}

// Scaled returns intrinsics for an image downsampled by the given integer factor.
func (in Intrinsics) Scaled(factor int) Intrinsics {
	if factor <= 1 {
		return in
	}
	f := float64(factor)
	in.Width /= factor
	in.Height /= factor
	in.Fx /= f
	in.Fy /= f
	in.Ppx /= f
	in.Ppy /= f
	return in
}

// MotionIntrinsics describe the scale, bias and noise of an inertial stream.
type MotionIntrinsics struct {
	Data           [3][4]float64
	NoiseVariances [3]float64
	BiasVariances  [3]float64
}

// IdentityMotionIntrinsics is used when a device does not report motion intrinsics.
func IdentityMotionIntrinsics() MotionIntrinsics {
	return MotionIntrinsics{Data: [3][4]float64{{1, 0, 0, 0}, {0, 1, 0, 0}, {0, 0, 1, 0}}}
}

// Profile describes one configured stream.
type Profile struct {
	Kind       StreamKind
	Index      int
	Format     Format
	Width      int
	Height     int
	FPS        int
	UniqueID   int
	Intrinsics *Intrinsics
}

// Identity is the routing key of the profile.
func (p Profile) Identity() StreamIdentity {
	return StreamIdentity{Kind: p.Kind, Index: p.Index}
}

// IsVideo reports whether the profile carries images.
func (p Profile) IsVideo() bool {
	return p.Kind.IsVideo()
}
