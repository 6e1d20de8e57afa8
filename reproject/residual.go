package reproject

import (
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"github.com/UbiCALab/industrial-calibration/calib"
)

// ResidualDim is the number of scalars every reprojection residual
// produces: the x and y pixel errors.
const ResidualDim = 2

// A Variant selects which of an observation's parameter groups the solver
// may adjust; the rest are baked into the residual as constants read at
// construction time. Camera extrinsics are variable in every variant.
type Variant string

const (
	// VariantFull leaves intrinsics, extrinsics, target pose, and point
	// position all variable, projecting through the distortion model.
	VariantFull Variant = "full"
	// VariantFixedPoint is VariantFull with point positions fixed.
	VariantFixedPoint Variant = "fixed_point"
	// VariantRectified assumes pre-undistorted imagery: intrinsics and
	// point positions fixed, no distortion terms, extrinsics and target
	// pose variable.
	VariantRectified Variant = "rectified"
	// VariantRectifiedFreePoint is VariantRectified with point positions
	// variable, for refining a target's geometry from rectified imagery.
	VariantRectifiedFreePoint Variant = "rectified_free_point"
	// VariantExtrinsicsOnly fixes everything but the camera extrinsics,
	// for locating cameras against a target whose pose is known a priori.
	VariantExtrinsicsOnly Variant = "extrinsics_only"
)

// CheckValid returns an error if the variant is unknown.
func (v Variant) CheckValid() error {
	switch v {
	case VariantFull, VariantFixedPoint, VariantRectified, VariantRectifiedFreePoint, VariantExtrinsicsOnly:
		return nil
	default:
		return errors.Errorf("unknown residual variant %q", v)
	}
}

// distorted reports whether the variant projects through the Brown-Conrady
// coefficients. Rectified variants assume the imagery was undistorted
// upstream.
func (v Variant) distorted() bool {
	return v == VariantFull || v == VariantFixedPoint
}

// A Residual is one reprojection-error cost term over a single observation
// data point. Exactly one residual must be built per data point.
type Residual struct {
	odp      *calib.ObservationDataPoint
	variant  Variant
	observed r2.Point

	blocks []*calib.ParameterBlock
	// index into Eval's params per group, -1 when the group is baked
	intrIdx, extrIdx, poseIdx, pointIdx int
	// baked constants for the fixed groups
	intr, pose, point []float64
}

// NewResidual builds the reprojection residual for one observation data
// point under the given variant. Fixed parameter groups are copied out of
// their blocks now; variable groups are read from Eval's params at each
// evaluation.
func NewResidual(odp *calib.ObservationDataPoint, variant Variant) (*Residual, error) {
	if err := variant.CheckValid(); err != nil {
		return nil, err
	}
	if odp == nil {
		return nil, errors.New("nil observation data point")
	}
	if odp.Intrinsics == nil || odp.Extrinsics == nil || odp.TargetPose == nil || odp.Point == nil {
		return nil, errors.Errorf("observation of %s is missing parameter blocks", odp)
	}

	r := &Residual{
		odp:      odp,
		variant:  variant,
		observed: odp.Image,
		intrIdx:  -1,
		extrIdx:  -1,
		poseIdx:  -1,
		pointIdx: -1,
	}
	free := func(pb *calib.ParameterBlock) int {
		r.blocks = append(r.blocks, pb)
		return len(r.blocks) - 1
	}
	switch variant {
	case VariantFull:
		r.intrIdx = free(odp.Intrinsics)
		r.extrIdx = free(odp.Extrinsics)
		r.poseIdx = free(odp.TargetPose)
		r.pointIdx = free(odp.Point)
	case VariantFixedPoint:
		r.intrIdx = free(odp.Intrinsics)
		r.extrIdx = free(odp.Extrinsics)
		r.poseIdx = free(odp.TargetPose)
		r.point = odp.Point.Values()
	case VariantRectified:
		r.extrIdx = free(odp.Extrinsics)
		r.poseIdx = free(odp.TargetPose)
		r.intr = odp.Intrinsics.Values()
		r.point = odp.Point.Values()
	case VariantRectifiedFreePoint:
		r.extrIdx = free(odp.Extrinsics)
		r.poseIdx = free(odp.TargetPose)
		r.pointIdx = free(odp.Point)
		r.intr = odp.Intrinsics.Values()
	case VariantExtrinsicsOnly:
		r.extrIdx = free(odp.Extrinsics)
		r.intr = odp.Intrinsics.Values()
		r.pose = odp.TargetPose.Values()
		r.point = odp.Point.Values()
	}
	return r, nil
}

// Variant returns the variant the residual was built with.
func (r *Residual) Variant() Variant { return r.variant }

// Blocks returns the parameter blocks the solver may adjust, in the order
// Eval expects its params.
func (r *Residual) Blocks() []*calib.ParameterBlock {
	out := make([]*calib.ParameterBlock, len(r.blocks))
	copy(out, r.blocks)
	return out
}

// Dim returns the number of scalars Eval writes.
func (r *Residual) Dim() int { return ResidualDim }

// Eval computes the reprojection error for the candidate values in params,
// which must match Blocks element for element, writing the x and y pixel
// errors to dst. It is a pure function of params: repeated calls with the
// same values give the same errors regardless of the blocks' current
// contents.
func (r *Residual) Eval(params [][]float64, dst []float64) error {
	if len(params) != len(r.blocks) {
		return errors.Errorf("residual over %d blocks evaluated with %d parameter groups", len(r.blocks), len(params))
	}
	if len(dst) != ResidualDim {
		return errors.Errorf("residual writes %d scalars, dst holds %d", ResidualDim, len(dst))
	}
	pick := func(idx int, baked []float64) []float64 {
		if idx < 0 {
			return baked
		}
		return params[idx]
	}
	intr := pick(r.intrIdx, r.intr)
	extr := params[r.extrIdx]
	pose := pick(r.poseIdx, r.pose)
	point := pick(r.pointIdx, r.point)

	local := r3.Vector{X: point[0], Y: point[1], Z: point[2]}
	world := transformSlice(pose, local)
	camFrame := transformSlice(extr, world)
	predicted, err := projectSlice(intr, camFrame, r.variant.distorted())
	if err != nil {
		return errors.Wrapf(err, "projecting %s", r.odp)
	}
	dst[0] = predicted.X - r.observed.X
	dst[1] = predicted.Y - r.observed.Y
	return nil
}

// EvalCurrent evaluates the residual at the blocks' current values.
func (r *Residual) EvalCurrent(dst []float64) error {
	params := make([][]float64, len(r.blocks))
	for i, pb := range r.blocks {
		params[i] = pb.Values()
	}
	return r.Eval(params, dst)
}
