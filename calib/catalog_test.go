package calib

import (
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
)

func TestCatalogUniqueNames(t *testing.T) {
	catalog := NewCatalog()
	test.That(t, catalog.AddCamera(testCamera("left", false)), test.ShouldBeNil)
	err := catalog.AddCamera(testCamera("left", true))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "not unique")

	test.That(t, catalog.AddTarget(testTarget("checker", false)), test.ShouldBeNil)
	err = catalog.AddTarget(testTarget("checker", true))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "not unique")
}

func TestCatalogOrder(t *testing.T) {
	catalog := NewCatalog()
	for _, name := range []string{"c", "a", "b"} {
		test.That(t, catalog.AddCamera(testCamera(name, false)), test.ShouldBeNil)
		test.That(t, catalog.AddTarget(testTarget("t"+name, false)), test.ShouldBeNil)
	}

	cams := catalog.Cameras()
	test.That(t, cams, test.ShouldHaveLength, 3)
	test.That(t, cams[0].Name, test.ShouldEqual, "c")
	test.That(t, cams[1].Name, test.ShouldEqual, "a")
	test.That(t, cams[2].Name, test.ShouldEqual, "b")

	targets := catalog.Targets()
	test.That(t, targets, test.ShouldHaveLength, 3)
	test.That(t, targets[0].Name, test.ShouldEqual, "tc")
}

func TestCatalogLookup(t *testing.T) {
	catalog := NewCatalog()
	cam := testCamera("left", false)
	test.That(t, catalog.AddCamera(cam), test.ShouldBeNil)

	got, err := catalog.Camera("left")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, got, test.ShouldEqual, cam)

	_, err = catalog.Camera("right")
	test.That(t, IsNotFoundError(err), test.ShouldBeTrue)
	_, err = catalog.Target("checker")
	test.That(t, IsNotFoundError(err), test.ShouldBeTrue)

	bad := testCamera("broken", false)
	bad.Params.FocalLengthX = 0
	err = catalog.AddCamera(bad)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "focal length")
}

func TestTargetPoint(t *testing.T) {
	target := testTarget("checker", false)
	pt, err := target.Point(1)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pt, test.ShouldResemble, r3.Vector{X: 0.1})

	_, err = target.Point(-1)
	test.That(t, IsNotFoundError(err), test.ShouldBeTrue)
	_, err = target.Point(len(target.Points))
	test.That(t, IsNotFoundError(err), test.ShouldBeTrue)
}

func TestTargetCheckValid(t *testing.T) {
	test.That(t, testTarget("checker", false).CheckValid(), test.ShouldBeNil)

	noName := testTarget("", false)
	err := noName.CheckValid()
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "name")

	noPoints := testTarget("empty", false)
	noPoints.Points = nil
	err = noPoints.CheckValid()
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "point")
}

func TestCameraParametersCheckValid(t *testing.T) {
	params := testCamera("left", false).Params
	test.That(t, params.CheckValid(), test.ShouldBeNil)

	bad := params
	bad.FocalLengthX = 0
	test.That(t, bad.CheckValid(), test.ShouldNotBeNil)

	bad = params
	bad.FocalLengthY = -3
	test.That(t, bad.CheckValid(), test.ShouldNotBeNil)

	bad = params
	bad.CenterX = -1
	test.That(t, bad.CheckValid(), test.ShouldNotBeNil)
}

func TestPoseVectorRoundTrip(t *testing.T) {
	pose := Pose{
		Rotation: r3.Vector{X: 0.1, Y: 0.2, Z: 0.3},
		Position: r3.Vector{X: -1, Y: 2, Z: 0.5},
	}
	vec := pose.Vector()
	test.That(t, vec, test.ShouldResemble, []float64{0.1, 0.2, 0.3, -1, 2, 0.5})

	back, err := PoseFromVector(vec)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, back, test.ShouldResemble, pose)

	_, err = PoseFromVector([]float64{1, 2, 3})
	test.That(t, err, test.ShouldNotBeNil)
}
