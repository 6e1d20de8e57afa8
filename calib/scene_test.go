package calib

import (
	"testing"

	"github.com/golang/geo/r2"
	"go.viam.com/test"
)

func TestTriggerCheckValid(t *testing.T) {
	test.That(t, Trigger{Type: TriggerImmediate}.CheckValid(), test.ShouldBeNil)
	test.That(t, Trigger{Type: TriggerPrompt, Message: "move the wrist"}.CheckValid(), test.ShouldBeNil)

	err := Trigger{Type: "telepathic"}.CheckValid()
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "telepathic")
}

func TestROI(t *testing.T) {
	roi := ROI{XMin: 10, XMax: 100, YMin: 20, YMax: 200}
	test.That(t, roi.CheckValid(), test.ShouldBeNil)

	test.That(t, roi.Contains(r2.Point{X: 50, Y: 50}), test.ShouldBeTrue)
	test.That(t, roi.Contains(r2.Point{X: 10, Y: 20}), test.ShouldBeTrue)
	test.That(t, roi.Contains(r2.Point{X: 100, Y: 200}), test.ShouldBeTrue)
	test.That(t, roi.Contains(r2.Point{X: 9.9, Y: 50}), test.ShouldBeFalse)
	test.That(t, roi.Contains(r2.Point{X: 50, Y: 200.1}), test.ShouldBeFalse)

	test.That(t, ROI{XMin: 5, XMax: 5, YMin: 0, YMax: 10}.CheckValid(), test.ShouldNotBeNil)
	test.That(t, ROI{XMin: 0, XMax: 10, YMin: 8, YMax: 2}.CheckValid(), test.ShouldNotBeNil)
}

func TestSceneCommands(t *testing.T) {
	left := testCamera("left", false)
	right := testCamera("right", false)
	checker := testTarget("checker", false)
	roi := ROI{XMin: 0, XMax: 640, YMin: 0, YMax: 480}

	scene := NewScene(0, Trigger{Type: TriggerImmediate})
	test.That(t, scene.AddCommand(ObservationCommand{Camera: left, Target: checker, ROI: roi}), test.ShouldBeNil)
	test.That(t, scene.AddCommand(ObservationCommand{Camera: right, Target: checker, ROI: roi}), test.ShouldBeNil)
	test.That(t, scene.AddCommand(ObservationCommand{Camera: left, Target: checker, ROI: roi}), test.ShouldBeNil)

	test.That(t, scene.Commands(), test.ShouldHaveLength, 3)

	cams := scene.Cameras()
	test.That(t, cams, test.ShouldHaveLength, 2)
	test.That(t, cams[0], test.ShouldEqual, left)
	test.That(t, cams[1], test.ShouldEqual, right)
}

func TestSceneAddCommandErrors(t *testing.T) {
	checker := testTarget("checker", false)
	left := testCamera("left", false)
	roi := ROI{XMin: 0, XMax: 640, YMin: 0, YMax: 480}

	scene := NewScene(0, Trigger{Type: TriggerImmediate})

	err := scene.AddCommand(ObservationCommand{Target: checker, ROI: roi})
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "no camera")

	err = scene.AddCommand(ObservationCommand{Camera: left, ROI: roi})
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "no target")

	err = scene.AddCommand(ObservationCommand{Camera: left, Target: checker, ROI: ROI{XMin: 5, XMax: 1, YMin: 0, YMax: 2}})
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, `"checker"`)
	test.That(t, scene.Commands(), test.ShouldHaveLength, 0)
}
