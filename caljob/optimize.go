package caljob

import (
	"context"

	"github.com/pkg/errors"

	"github.com/UbiCALab/industrial-calibration/calib"
	"github.com/UbiCALab/industrial-calibration/reproject"
	"github.com/UbiCALab/industrial-calibration/solver"
)

// Optimize assembles exactly one residual per observation data point and
// solves the resulting least squares problem. On success the refined values
// are written back to the catalog and the job moves to StateSolved. A solve
// that fails to converge leaves the collected observations intact so the job
// can be optimized again with different solver options.
func (j *Job) Optimize(ctx context.Context) error {
	if j.state != StateObservationsCollected && j.state != StateSolved {
		return errors.Wrapf(ErrInvalidState, "cannot optimize while %q", j.state)
	}
	if len(j.odps) == 0 {
		return errors.New("no observations were collected, nothing to optimize")
	}

	problem, err := j.buildProblem()
	if err != nil {
		return err
	}
	summary, err := solver.Solve(ctx, problem, j.opts.Solver, j.logger)
	j.summary = summary
	if err != nil {
		return err
	}
	if err := j.applySolution(); err != nil {
		return errors.Wrap(err, "applying solution")
	}
	j.state = StateSolved
	j.logger.Infow("calibration solved",
		"initial_cost", summary.InitialCost,
		"final_cost", summary.FinalCost,
		"iterations", summary.Iterations,
		"residuals", summary.Residuals,
		"parameters", summary.Parameters)
	return nil
}

func (j *Job) buildProblem() (*solver.Problem, error) {
	problem := solver.NewProblem()
	for i := range j.odps {
		odp := &j.odps[i]
		variant := j.opts.Variant
		if j.opts.VariantFor != nil {
			if override := j.opts.VariantFor(odp); override != "" {
				variant = override
			}
		}
		residual, err := reproject.NewResidual(odp, variant)
		if err != nil {
			return nil, errors.Wrapf(err, "building residual for %s", odp)
		}
		if err := problem.AddResidual(residual); err != nil {
			return nil, errors.Wrapf(err, "adding residual for %s", odp)
		}
	}
	return problem, nil
}

// applySolution copies solved block values back onto the catalog entities.
// Moving cameras and targets keep their per scene blocks in the registry;
// only their intrinsics flow back.
func (j *Job) applySolution() error {
	for _, cam := range j.config.Catalog.Cameras() {
		intr, err := j.registry.CameraIntrinsics(cam.Name)
		if calib.IsNotFoundError(err) {
			// never observed in any scene
			continue
		} else if err != nil {
			return err
		}
		if err := cam.Params.SetIntrinsicsVector(intr.Values()); err != nil {
			return err
		}
		if cam.Moving {
			continue
		}
		extr, err := j.registry.StaticCameraExtrinsics(cam.Name)
		if err != nil {
			return err
		}
		pose, err := calib.PoseFromVector(extr.Values())
		if err != nil {
			return err
		}
		cam.Params.Extrinsics = pose
	}
	for _, target := range j.config.Catalog.Targets() {
		if target.Moving {
			continue
		}
		block, err := j.registry.StaticTargetPose(target.Name)
		if calib.IsNotFoundError(err) {
			continue
		} else if err != nil {
			return err
		}
		pose, err := calib.PoseFromVector(block.Values())
		if err != nil {
			return err
		}
		target.Pose = pose
	}
	return nil
}
