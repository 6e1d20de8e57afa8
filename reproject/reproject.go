// Package reproject implements the pinhole projection model of a
// calibration run and the reprojection-error residuals built over it. A
// residual predicts where a target point should land in a camera image for
// candidate parameter values and reports the pixel difference from the
// detected location; a variant selects which parameter groups the solver
// may adjust and which are baked in as constants.
package reproject

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"github.com/UbiCALab/industrial-calibration/calib"
)

// Below this squared angle the Rodrigues formula degrades numerically and
// the first-order approximation is used instead.
const smallAngle2 = 1e-14

// Rotate applies the rotation encoded by the angle-axis vector aa to p.
// The direction of aa is the rotation axis and its norm is the angle in
// radians.
func Rotate(aa, p r3.Vector) r3.Vector {
	theta2 := aa.Norm2()
	if theta2 <= smallAngle2 {
		return p.Add(aa.Cross(p))
	}
	theta := math.Sqrt(theta2)
	axis := aa.Mul(1 / theta)
	cos := math.Cos(theta)
	sin := math.Sin(theta)
	return p.Mul(cos).
		Add(axis.Cross(p).Mul(sin)).
		Add(axis.Mul(axis.Dot(p) * (1 - cos)))
}

// Apply maps p through the rigid transform pose: rotate, then translate.
func Apply(pose calib.Pose, p r3.Vector) r3.Vector {
	return Rotate(pose.Rotation, p).Add(pose.Position)
}

// Project maps a camera-frame point to pixels through params' pinhole
// model. distort applies the Brown-Conrady coefficients; rectified
// pipelines pass false. Points on the camera's focal plane cannot be
// projected.
func Project(params calib.CameraParameters, p r3.Vector, distort bool) (r2.Point, error) {
	return projectSlice(params.IntrinsicsVector(), p, distort)
}

// ProjectTargetPoint maps one target-local point through the target's pose
// into the world frame, then through the camera's extrinsics and pinhole
// model to pixels. Points at or behind the camera cannot be projected.
func ProjectTargetPoint(params calib.CameraParameters, targetPose calib.Pose, local r3.Vector, distort bool) (r2.Point, error) {
	world := Apply(targetPose, local)
	camFrame := Apply(params.Extrinsics, world)
	if camFrame.Z <= 0 {
		return r2.Point{}, errors.Errorf("point %v is behind the camera", local)
	}
	return Project(params, camFrame, distort)
}

func rotateSlice(aa []float64, p r3.Vector) r3.Vector {
	return Rotate(r3.Vector{X: aa[0], Y: aa[1], Z: aa[2]}, p)
}

// transformSlice maps p through a pose in the [ax ay az x y z] block layout.
func transformSlice(pose []float64, p r3.Vector) r3.Vector {
	rotated := rotateSlice(pose[:3], p)
	return r3.Vector{X: rotated.X + pose[3], Y: rotated.Y + pose[4], Z: rotated.Z + pose[5]}
}

// projectSlice maps a camera-frame point to pixels through intrinsics in
// the [fx fy cx cy k1 k2 k3 p1 p2] block layout.
func projectSlice(intr []float64, p r3.Vector, distort bool) (r2.Point, error) {
	if math.Abs(p.Z) < 1e-12 {
		return r2.Point{}, errors.Errorf("point (%v, %v, %v) lies on the camera's focal plane", p.X, p.Y, p.Z)
	}
	x := p.X / p.Z
	y := p.Y / p.Z
	if distort {
		k1, k2, k3 := intr[4], intr[5], intr[6]
		p1, p2 := intr[7], intr[8]
		rsq := x*x + y*y
		radial := 1 + rsq*(k1+rsq*(k2+rsq*k3))
		xd := x*radial + 2*p1*x*y + p2*(rsq+2*x*x)
		yd := y*radial + p1*(rsq+2*y*y) + 2*p2*x*y
		x, y = xd, yd
	}
	return r2.Point{X: intr[0]*x + intr[2], Y: intr[1]*y + intr[3]}, nil
}
