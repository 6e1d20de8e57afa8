package calib

import (
	"fmt"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// Pose is a 6 degree-of-freedom transform parameterized as an angle-axis
// rotation followed by a position. Every extrinsics and target-pose
// parameter block uses this layout.
type Pose struct {
	// Rotation is an angle-axis vector: its direction is the rotation axis
	// and its norm is the rotation angle in radians.
	Rotation r3.Vector
	Position r3.Vector
}

// Vector returns the pose in the 6-scalar block layout [ax ay az x y z].
func (p Pose) Vector() []float64 {
	return []float64{p.Rotation.X, p.Rotation.Y, p.Rotation.Z, p.Position.X, p.Position.Y, p.Position.Z}
}

// PoseFromVector reads a pose back out of the 6-scalar block layout.
func PoseFromVector(v []float64) (Pose, error) {
	if len(v) != PoseSize {
		return Pose{}, errors.Errorf("pose vector must have length of %d. Has length of %d", PoseSize, len(v))
	}
	return Pose{
		Rotation: r3.Vector{X: v[0], Y: v[1], Z: v[2]},
		Position: r3.Vector{X: v[3], Y: v[4], Z: v[5]},
	}, nil
}

func (p Pose) String() string {
	return fmt.Sprintf("aa(%.4f, %.4f, %.4f) pos(%.4f, %.4f, %.4f)",
		p.Rotation.X, p.Rotation.Y, p.Rotation.Z, p.Position.X, p.Position.Y, p.Position.Z)
}

// CameraParameters holds the seed values for one camera's parameter blocks:
// a world-to-camera extrinsic pose and a pinhole model with Brown-Conrady
// distortion (radial k1..k3, tangential p1..p2).
type CameraParameters struct {
	Extrinsics   Pose
	FocalLengthX float64
	FocalLengthY float64
	CenterX      float64
	CenterY      float64
	DistortionK1 float64
	DistortionK2 float64
	DistortionK3 float64
	DistortionP1 float64
	DistortionP2 float64
}

// IntrinsicsVector returns the 9-scalar intrinsics block layout
// [fx fy cx cy k1 k2 k3 p1 p2].
func (p CameraParameters) IntrinsicsVector() []float64 {
	return []float64{
		p.FocalLengthX, p.FocalLengthY,
		p.CenterX, p.CenterY,
		p.DistortionK1, p.DistortionK2, p.DistortionK3,
		p.DistortionP1, p.DistortionP2,
	}
}

// SetIntrinsicsVector overwrites the pinhole and distortion fields from the
// 9-scalar intrinsics block layout.
func (p *CameraParameters) SetIntrinsicsVector(v []float64) error {
	if len(v) != IntrinsicsSize {
		return errors.Errorf("intrinsics vector must have length of %d. Has length of %d", IntrinsicsSize, len(v))
	}
	p.FocalLengthX, p.FocalLengthY = v[0], v[1]
	p.CenterX, p.CenterY = v[2], v[3]
	p.DistortionK1, p.DistortionK2, p.DistortionK3 = v[4], v[5], v[6]
	p.DistortionP1, p.DistortionP2 = v[7], v[8]
	return nil
}

// CheckValid checks if the fields for CameraParameters have valid inputs.
func (p CameraParameters) CheckValid() error {
	if p.FocalLengthX <= 0 {
		return errors.Errorf("invalid focal length fx = %#v", p.FocalLengthX)
	}
	if p.FocalLengthY <= 0 {
		return errors.Errorf("invalid focal length fy = %#v", p.FocalLengthY)
	}
	if p.CenterX < 0 {
		return errors.Errorf("invalid principal point cx = %#v", p.CenterX)
	}
	if p.CenterY < 0 {
		return errors.Errorf("invalid principal point cy = %#v", p.CenterY)
	}
	return nil
}

// Camera is a catalog entry describing one physical camera. Moving cameras
// get one extrinsics block per scene during collection; static cameras share
// a single extrinsics block across every scene. The Observer must be
// attached by the caller before observations are collected.
type Camera struct {
	Name     string
	Moving   bool
	Params   CameraParameters
	Observer CameraObserver
}

func (c *Camera) String() string {
	kind := "static"
	if c.Moving {
		kind = "moving"
	}
	return fmt.Sprintf("%s camera %q", kind, c.Name)
}
