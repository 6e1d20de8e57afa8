// Package main runs a calibration job from its definition files, detecting
// target points through simulated observers.
package main

import (
	"context"
	"strconv"

	"github.com/edaniels/golog"
	"go.viam.com/utils"

	"github.com/UbiCALab/industrial-calibration/calib"
	"github.com/UbiCALab/industrial-calibration/calib/fake"
	"github.com/UbiCALab/industrial-calibration/caljob"
	"github.com/UbiCALab/industrial-calibration/reproject"
	"github.com/UbiCALab/industrial-calibration/solver"
)

var logger = golog.NewDevelopmentLogger("calibrate")

func main() {
	utils.ContextualMain(mainWithArgs, logger)
}

// Arguments for the command.
type Arguments struct {
	CamerasFile string    `flag:"0,required,usage=camera definition file"`
	TargetsFile string    `flag:"1,required,usage=target definition file"`
	JobFile     string    `flag:"2,required,usage=job definition file"`
	Variant     string    `flag:"variant,default=rectified,usage=residual variant (full, fixed_point, rectified, rectified_free_point, extrinsics_only)"`
	Solver      string    `flag:"solver,default=levenberg_marquardt,usage=solver family"`
	Noise       sigmaFlag `flag:"noise,default=0,usage=pixel noise sigma for simulated detections"`
	Seed        int       `flag:"seed,default=1,usage=noise sequence seed"`
	Distort     bool      `flag:"distort,usage=simulate detections through the distortion model"`
}

type sigmaFlag float64

func (sf *sigmaFlag) String() string {
	return strconv.FormatFloat(float64(*sf), 'f', -1, 64)
}

func (sf *sigmaFlag) Set(val string) error {
	parsed, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return err
	}
	*sf = sigmaFlag(parsed)
	return nil
}

func mainWithArgs(ctx context.Context, args []string, logger golog.Logger) error {
	var argsParsed Arguments
	if err := utils.ParseFlags(args, &argsParsed); err != nil {
		return err
	}
	variant := reproject.Variant(argsParsed.Variant)
	if err := variant.CheckValid(); err != nil {
		return err
	}
	family := solver.Family(argsParsed.Solver)
	if err := family.CheckValid(); err != nil {
		return err
	}

	opts := caljob.DefaultOptions()
	opts.Variant = variant
	opts.Solver.Family = family
	opts.Solver.LogProgress = true

	job := caljob.NewJob(logger, opts)
	err := job.Load(argsParsed.CamerasFile, argsParsed.TargetsFile, argsParsed.JobFile,
		func(cam *calib.Camera) (calib.CameraObserver, error) {
			return fake.NewObserver(cam.Name, cam.Params, fake.Config{
				PixelNoiseSigma: float64(argsParsed.Noise),
				Seed:            int64(argsParsed.Seed),
				Distort:         argsParsed.Distort,
			}), nil
		})
	if err != nil {
		return err
	}
	if err := job.Run(ctx); err != nil {
		return err
	}

	summary := job.Summary()
	logger.Infow("calibration finished",
		"initial_cost", summary.InitialCost,
		"final_cost", summary.FinalCost,
		"iterations", summary.Iterations,
		"residuals", summary.Residuals,
		"parameters", summary.Parameters,
		"message", summary.Message)
	for _, cam := range job.Config().Catalog.Cameras() {
		logger.Infof("camera %q extrinsics %s", cam.Name, cam.Params.Extrinsics)
	}
	for _, target := range job.Config().Catalog.Targets() {
		logger.Infof("target %q pose %s", target.Name, target.Pose)
	}
	return nil
}
