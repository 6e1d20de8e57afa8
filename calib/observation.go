package calib

import (
	"fmt"

	"github.com/golang/geo/r2"
)

// An Observation is one raw detection reported by a camera observer: a
// known target point seen at an image location.
type Observation struct {
	Target  *Target
	PointID int
	// Image is the detected pixel location.
	Image r2.Point
}

// An ObservationDataPoint is one fully resolved observation, bound to the
// parameter blocks a residual over it will touch. The collector produces
// exactly one per accepted detection; the assembler turns each into exactly
// one residual.
type ObservationDataPoint struct {
	CameraName string
	TargetName string
	SceneID    int
	PointID    int

	Intrinsics *ParameterBlock
	Extrinsics *ParameterBlock
	TargetPose *ParameterBlock
	Point      *ParameterBlock

	// Image is the detected pixel location the residual compares against.
	Image r2.Point
}

func (o *ObservationDataPoint) String() string {
	return fmt.Sprintf("camera %q target %q point %d scene %d at (%.2f, %.2f)",
		o.CameraName, o.TargetName, o.PointID, o.SceneID, o.Image.X, o.Image.Y)
}
