package spatialmath

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
	"gonum.org/v1/gonum/num/quat"
)

func vectorAlmostEqual(t *testing.T, got, want r3.Vector) {
	t.Helper()
	test.That(t, got.X, test.ShouldAlmostEqual, want.X)
	test.That(t, got.Y, test.ShouldAlmostEqual, want.Y)
	test.That(t, got.Z, test.ShouldAlmostEqual, want.Z)
}

func TestQuatFromRotationMatrix(t *testing.T) {
	identity := [9]float64{1, 0, 0, 0, 1, 0, 0, 0, 1}
	test.That(t, QuatFromRotationMatrix(identity), test.ShouldResemble, NewZeroOrientation())

	// 90 degrees about z
	rz := [9]float64{0, -1, 0, 1, 0, 0, 0, 0, 1}
	q := QuatFromRotationMatrix(rz)
	want := quat.Number{Real: math.Sqrt2 / 2, Kmag: math.Sqrt2 / 2}
	test.That(t, QuaternionAlmostEqual(q, want, 1e-9), test.ShouldBeTrue)
	vectorAlmostEqual(t, RotateVector(q, r3.Vector{X: 1}), r3.Vector{Y: 1})

	// 180 degrees about x exercises the non-positive trace branch
	rx := [9]float64{1, 0, 0, 0, -1, 0, 0, 0, -1}
	q = QuatFromRotationMatrix(rx)
	test.That(t, QuaternionAlmostEqual(q, quat.Number{Imag: 1}, 1e-9), test.ShouldBeTrue)
	vectorAlmostEqual(t, RotateVector(q, r3.Vector{Y: 1}), r3.Vector{Y: -1})

	// the transpose is the inverse rotation
	back := QuatFromRotationMatrix(TransposeRotation(rz))
	vectorAlmostEqual(t, RotateVector(back, r3.Vector{Y: 1}), r3.Vector{X: 1})
}

func TestOpticalConvention(t *testing.T) {
	opt := OpticalRotation()
	test.That(t, quat.Abs(opt), test.ShouldAlmostEqual, 1.0)
	// optical forward is body forward, optical right is body right (-y), optical down is body down
	vectorAlmostEqual(t, RotateVector(opt, r3.Vector{Z: 1}), r3.Vector{X: 1})
	vectorAlmostEqual(t, RotateVector(opt, r3.Vector{X: 1}), r3.Vector{Y: -1})
	vectorAlmostEqual(t, RotateVector(opt, r3.Vector{Y: 1}), r3.Vector{Z: -1})

	test.That(t, OpticalTranslation(r3.Vector{X: 1, Y: 2, Z: 3}), test.ShouldResemble, r3.Vector{X: 3, Y: -1, Z: -2})
}

func TestConjugate(t *testing.T) {
	opt := OpticalRotation()
	test.That(t, QuaternionAlmostEqual(Conjugate(NewZeroOrientation(), opt), NewZeroOrientation(), 1e-9), test.ShouldBeTrue)

	// a rotation about optical z is a rotation about body x once conjugated
	rz := QuatFromRotationMatrix([9]float64{0, -1, 0, 1, 0, 0, 0, 0, 1})
	body := Conjugate(rz, opt)
	vectorAlmostEqual(t, RotateVector(body, r3.Vector{X: 1}), r3.Vector{X: 1})
}

func TestNormalize(t *testing.T) {
	test.That(t, Normalize(quat.Number{}), test.ShouldResemble, NewZeroOrientation())
	test.That(t, quat.Abs(Normalize(quat.Number{Real: 2, Imag: 2})), test.ShouldAlmostEqual, 1.0)
	test.That(t, QuaternionAlmostEqual(quat.Number{Real: 1}, quat.Number{Real: -1}, 1e-9), test.ShouldBeTrue)
}
