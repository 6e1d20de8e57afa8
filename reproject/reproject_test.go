package reproject

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"github.com/UbiCALab/industrial-calibration/calib"
)

func vecAlmostEqual(t *testing.T, got, want r3.Vector, tol float64) {
	t.Helper()
	test.That(t, got.X, test.ShouldAlmostEqual, want.X, tol)
	test.That(t, got.Y, test.ShouldAlmostEqual, want.Y, tol)
	test.That(t, got.Z, test.ShouldAlmostEqual, want.Z, tol)
}

func TestRotate(t *testing.T) {
	// quarter turn about z
	got := Rotate(r3.Vector{Z: math.Pi / 2}, r3.Vector{X: 1})
	vecAlmostEqual(t, got, r3.Vector{Y: 1}, 1e-12)

	// half turn about x
	got = Rotate(r3.Vector{X: math.Pi}, r3.Vector{Y: 1})
	vecAlmostEqual(t, got, r3.Vector{Y: -1}, 1e-12)

	// identity
	got = Rotate(r3.Vector{}, r3.Vector{X: 1, Y: 2, Z: 3})
	vecAlmostEqual(t, got, r3.Vector{X: 1, Y: 2, Z: 3}, 0)

	// tiny angles fall back to the first-order form
	got = Rotate(r3.Vector{X: 1e-9}, r3.Vector{Y: 1})
	vecAlmostEqual(t, got, r3.Vector{Y: 1, Z: 1e-9}, 1e-15)

	// norm is preserved
	got = Rotate(r3.Vector{X: 0.3, Y: -0.4, Z: 0.9}, r3.Vector{X: 1, Y: 2, Z: 3})
	test.That(t, got.Norm(), test.ShouldAlmostEqual, r3.Vector{X: 1, Y: 2, Z: 3}.Norm(), 1e-12)
}

func TestApply(t *testing.T) {
	pose := calib.Pose{
		Rotation: r3.Vector{Z: math.Pi / 2},
		Position: r3.Vector{X: 1, Y: 2, Z: 3},
	}
	got := Apply(pose, r3.Vector{X: 1})
	vecAlmostEqual(t, got, r3.Vector{X: 1, Y: 3, Z: 3}, 1e-12)
}

func TestProject(t *testing.T) {
	params := calib.CameraParameters{
		FocalLengthX: 500,
		FocalLengthY: 500,
		CenterX:      320,
		CenterY:      240,
	}

	px, err := Project(params, r3.Vector{Z: 2}, false)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, px.X, test.ShouldAlmostEqual, 320)
	test.That(t, px.Y, test.ShouldAlmostEqual, 240)

	px, err = Project(params, r3.Vector{X: 0.2, Y: -0.1, Z: 2}, false)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, px.X, test.ShouldAlmostEqual, 370)
	test.That(t, px.Y, test.ShouldAlmostEqual, 215)

	_, err = Project(params, r3.Vector{X: 1}, false)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "focal plane")
}

func TestProjectDistorted(t *testing.T) {
	params := calib.CameraParameters{
		FocalLengthX: 500,
		FocalLengthY: 500,
		CenterX:      320,
		CenterY:      240,
		DistortionK1: 0.1,
	}

	// x = 0.2, r^2 = 0.04, radial = 1.004
	px, err := Project(params, r3.Vector{X: 0.2, Z: 1}, true)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, px.X, test.ShouldAlmostEqual, 420.4, 1e-9)
	test.That(t, px.Y, test.ShouldAlmostEqual, 240, 1e-9)

	// the same point without distortion
	px, err = Project(params, r3.Vector{X: 0.2, Z: 1}, false)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, px.X, test.ShouldAlmostEqual, 420, 1e-9)
}

func TestProjectTangential(t *testing.T) {
	params := calib.CameraParameters{
		FocalLengthX: 500,
		FocalLengthY: 500,
		CenterX:      320,
		CenterY:      240,
		DistortionP1: 0.01,
		DistortionP2: 0.02,
	}

	// x = 0.2, y = 0.1, r^2 = 0.05
	// xd = 0.2 + 2*0.01*0.02 + 0.02*(0.05+0.08) = 0.2030
	// yd = 0.1 + 0.01*(0.05+0.02) + 2*0.02*0.02 = 0.1015
	px, err := Project(params, r3.Vector{X: 0.2, Y: 0.1, Z: 1}, true)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, px.X, test.ShouldAlmostEqual, 500*0.2030+320, 1e-9)
	test.That(t, px.Y, test.ShouldAlmostEqual, 500*0.1015+240, 1e-9)
}

func TestProjectTargetPoint(t *testing.T) {
	params := calib.CameraParameters{
		FocalLengthX: 500,
		FocalLengthY: 500,
		CenterX:      320,
		CenterY:      240,
	}
	targetPose := calib.Pose{Position: r3.Vector{Z: 2}}

	px, err := ProjectTargetPoint(params, targetPose, r3.Vector{X: 0.1}, false)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, px.X, test.ShouldAlmostEqual, 345)
	test.That(t, px.Y, test.ShouldAlmostEqual, 240)

	_, err = ProjectTargetPoint(params, calib.Pose{Position: r3.Vector{Z: -2}}, r3.Vector{}, false)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "behind the camera")
}
