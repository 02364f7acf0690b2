// Package spatialmath defines the rotation helpers used to express device geometry as
// coordinate frame transforms.
package spatialmath

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

// NewZeroOrientation returns the quaternion which signifies no rotation.
func NewZeroOrientation() quat.Number {
	return quat.Number{Real: 1}
}

// OpticalRotation rotates a sensor's optical frame (z forward, x right, y down) into its body
// frame (x forward, y left, z up).
func OpticalRotation() quat.Number {
	return quat.Number{Real: 0.5, Imag: -0.5, Jmag: 0.5, Kmag: -0.5}
}

// OpticalTranslation re-expresses an optical-convention translation in body axes.
func OpticalTranslation(t r3.Vector) r3.Vector {
	return r3.Vector{X: t.Z, Y: -t.X, Z: -t.Y}
}

// QuatFromRotationMatrix converts a row-major 3x3 rotation matrix to a unit quaternion.
func QuatFromRotationMatrix(m [9]float64) quat.Number {
	var q quat.Number
	switch tr := m[0] + m[4] + m[8]; {
	case tr > 0:
		s := math.Sqrt(tr+1) * 2
		q = quat.Number{Real: s / 4, Imag: (m[7] - m[5]) / s, Jmag: (m[2] - m[6]) / s, Kmag: (m[3] - m[1]) / s}
	case m[0] > m[4] && m[0] > m[8]:
		s := math.Sqrt(1+m[0]-m[4]-m[8]) * 2
		q = quat.Number{Real: (m[7] - m[5]) / s, Imag: s / 4, Jmag: (m[1] + m[3]) / s, Kmag: (m[2] + m[6]) / s}
	case m[4] > m[8]:
		s := math.Sqrt(1+m[4]-m[0]-m[8]) * 2
		q = quat.Number{Real: (m[2] - m[6]) / s, Imag: (m[1] + m[3]) / s, Jmag: s / 4, Kmag: (m[5] + m[7]) / s}
	default:
		s := math.Sqrt(1+m[8]-m[0]-m[4]) * 2
		q = quat.Number{Real: (m[3] - m[1]) / s, Imag: (m[2] + m[6]) / s, Jmag: (m[5] + m[7]) / s, Kmag: s / 4}
	}
	return Normalize(q)
}

// TransposeRotation returns the transpose of a row-major 3x3 matrix, which for a rotation is
// its inverse.
func TransposeRotation(m [9]float64) [9]float64 {
	return [9]float64{m[0], m[3], m[6], m[1], m[4], m[7], m[2], m[5], m[8]}
}

// Normalize scales q to unit length. The zero quaternion is returned as no rotation.
func Normalize(q quat.Number) quat.Number {
	n := quat.Abs(q)
	if n == 0 {
		return NewZeroOrientation()
	}
	return quat.Scale(1/n, q)
}

// Conjugate expresses the rotation q in the frame reached by rotating by `by`: by·q·by⁻¹.
func Conjugate(q, by quat.Number) quat.Number {
	return quat.Mul(quat.Mul(by, q), quat.Inv(by))
}

// RotateVector applies the rotation q to v.
func RotateVector(q quat.Number, v r3.Vector) r3.Vector {
	p := quat.Mul(quat.Mul(q, quat.Number{Imag: v.X, Jmag: v.Y, Kmag: v.Z}), quat.Inv(q))
	return r3.Vector{X: p.Imag, Y: p.Jmag, Z: p.Kmag}
}

// QuaternionAlmostEqual is an equality test for rotations: q and -q are the same rotation.
func QuaternionAlmostEqual(a, b quat.Number, tol float64) bool {
	near := func(x, y quat.Number) bool {
		return math.Abs(x.Real-y.Real) < tol &&
			math.Abs(x.Imag-y.Imag) < tol &&
			math.Abs(x.Jmag-y.Jmag) < tol &&
			math.Abs(x.Kmag-y.Kmag) < tol
	}
	return near(a, b) || near(a, quat.Scale(-1, b))
}
