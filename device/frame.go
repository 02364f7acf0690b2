package device

import (
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

// Sample is anything the device hands to the frame callback: a single Frame or a FrameSet.
type Sample interface {
	// DeviceTimestamp is the capture time in device milliseconds.
	DeviceTimestamp() float64
	// TimestampDomain is the clock that produced DeviceTimestamp.
	TimestampDomain() TimestampDomain
}

// PoseData is a 6-DoF tracking sample in the device's own axis convention.
type PoseData struct {
	Translation         r3.Vector
	Velocity            r3.Vector
	Acceleration        r3.Vector
	Rotation            quat.Number
	AngularVelocity     r3.Vector
	AngularAcceleration r3.Vector
	TrackerConfidence   int
	MapperConfidence    int
}

// Frame is one sample of one stream. Exactly one of the payload fields is set, matching the
// profile format.
type Frame struct {
	Profile   Profile
	Number    uint64
	Timestamp float64
	Domain    TimestampDomain

	// Data holds Y8 and RGB8 planes, row-major.
	Data []byte
	// Depth holds Z16 samples in device units.
	Depth []uint16
	// Disparity holds disparity-domain samples.
	Disparity []float32
	// Points holds reconstructed vertices; zero vectors are invalid points.
	Points []r3.Vector
	// Colors optionally textures Points with one RGB8 triple per point.
	Colors []byte
	Motion r3.Vector
	Pose   *PoseData
}

// DeviceTimestamp implements Sample.
func (f *Frame) DeviceTimestamp() float64 { return f.Timestamp }

// TimestampDomain implements Sample.
func (f *Frame) TimestampDomain() TimestampDomain { return f.Domain }

// Identity is the routing key of the frame.
func (f *Frame) Identity() StreamIdentity {
	return f.Profile.Identity()
}

// IsPoints reports whether the frame is a reconstructed point cloud.
func (f *Frame) IsPoints() bool {
	return f.Profile.Format == FormatXYZ32F
}

// IsDepth reports whether the frame carries Z16 depth.
func (f *Frame) IsDepth() bool {
	return f.Profile.Kind == Depth && f.Profile.Format == FormatZ16
}

// Width of the image plane.
func (f *Frame) Width() int { return f.Profile.Width }

// Height of the image plane.
func (f *Frame) Height() int { return f.Profile.Height }

// BytesPerPixel of the image plane.
func (f *Frame) BytesPerPixel() int { return f.Profile.Format.BytesPerPixel() }

// Derive returns a frame sharing metadata with f but with the given profile and no payload.
func (f *Frame) Derive(p Profile) *Frame {
	return &Frame{Profile: p, Number: f.Number, Timestamp: f.Timestamp, Domain: f.Domain}
}

// FrameSet is an ordered collection of frames captured at one device instant.
type FrameSet struct {
	Frames []*Frame
}

// NewFrameSet groups frames into a set.
func NewFrameSet(frames ...*Frame) *FrameSet {
	return &FrameSet{Frames: frames}
}

// WithLeading returns a new set in which the given frames precede every frame of fs.
// Processing stages use it to add their output so that later lookups prefer it over the
// frames it was computed from.
func (fs *FrameSet) WithLeading(frames ...*Frame) *FrameSet {
	out := make([]*Frame, 0, len(frames)+len(fs.Frames))
	out = append(out, frames...)
	out = append(out, fs.Frames...)
	return &FrameSet{Frames: out}
}

// DeviceTimestamp implements Sample using the first frame of the set.
func (fs *FrameSet) DeviceTimestamp() float64 {
	if len(fs.Frames) == 0 {
		return 0
	}
	return fs.Frames[0].Timestamp
}

// TimestampDomain implements Sample using the first frame of the set.
func (fs *FrameSet) TimestampDomain() TimestampDomain {
	if len(fs.Frames) == 0 {
		return HardwareClock
	}
	return fs.Frames[0].Domain
}

// Find returns the first frame with the given identity, excluding point clouds.
func (fs *FrameSet) Find(id StreamIdentity) *Frame {
	for _, f := range fs.Frames {
		if !f.IsPoints() && f.Identity() == id {
			return f
		}
	}
	return nil
}

// DepthFrame returns the first Z16 depth frame of the set.
func (fs *FrameSet) DepthFrame() *Frame {
	for _, f := range fs.Frames {
		if f.IsDepth() {
			return f
		}
	}
	return nil
}

// Len is the number of frames in the set.
func (fs *FrameSet) Len() int {
	return len(fs.Frames)
}
