package device

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// ErrExtrinsicsUnavailable is returned by a Device that has no calibration between two profiles.
var ErrExtrinsicsUnavailable = errors.New("extrinsics are not available between the requested streams")

// Extrinsics map a point in one stream's frame to another's: p' = R·p + T.
// Rotation is row-major, Translation is in meters.
type Extrinsics struct {
	Rotation    [9]float64 `json:"rotation"`
	Translation [3]float64 `json:"translation"`
}

// IdentityExtrinsics is the transform between co-located frames.
func IdentityExtrinsics() Extrinsics {
	return Extrinsics{Rotation: [9]float64{1, 0, 0, 0, 1, 0, 0, 0, 1}}
}

// Transform applies the extrinsics to a point.
func (e Extrinsics) Transform(p r3.Vector) r3.Vector {
	r := e.Rotation
	return r3.Vector{
		X: r[0]*p.X + r[1]*p.Y + r[2]*p.Z + e.Translation[0],
		Y: r[3]*p.X + r[4]*p.Y + r[5]*p.Z + e.Translation[1],
		Z: r[6]*p.X + r[7]*p.Y + r[8]*p.Z + e.Translation[2],
	}
}

// Inverse returns the transform in the opposite direction.
func (e Extrinsics) Inverse() Extrinsics {
	r := e.Rotation
	inv := Extrinsics{Rotation: [9]float64{r[0], r[3], r[6], r[1], r[4], r[7], r[2], r[5], r[8]}}
	t := e.Translation
	for i := 0; i < 3; i++ {
		inv.Translation[i] = -(inv.Rotation[3*i]*t[0] + inv.Rotation[3*i+1]*t[1] + inv.Rotation[3*i+2]*t[2])
	}
	return inv
}

// Then returns the transform applying e followed by next.
func (e Extrinsics) Then(next Extrinsics) Extrinsics {
	a, b := e.Rotation, next.Rotation
	var out Extrinsics
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out.Rotation[3*i+j] = b[3*i]*a[j] + b[3*i+1]*a[3+j] + b[3*i+2]*a[6+j]
		}
		out.Translation[i] = b[3*i]*e.Translation[0] + b[3*i+1]*e.Translation[1] + b[3*i+2]*e.Translation[2] +
			next.Translation[i]
	}
	return out
}
