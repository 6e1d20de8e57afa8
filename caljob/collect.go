package caljob

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/UbiCALab/industrial-calibration/calib"
	"github.com/UbiCALab/industrial-calibration/solver"
)

// A CaptureTimeoutError reports a camera whose triggered capture did not
// settle within the configured window. It is recoverable at the scene level:
// the job can skip the scene and keep collecting.
type CaptureTimeoutError struct {
	Camera  string
	SceneID int
	Timeout time.Duration
}

func (e *CaptureTimeoutError) Error() string {
	return fmt.Sprintf("capture by camera %q in scene %d did not complete within %s",
		e.Camera, e.SceneID, e.Timeout)
}

// IsCaptureTimeoutError returns true if the given error is a capture timeout.
func IsCaptureTimeoutError(err error) bool {
	var timeoutErr *CaptureTimeoutError
	return errors.As(err, &timeoutErr)
}

// CollectObservations captures every configured scene in order and resolves
// the detections into observation data points bound to registry blocks. The
// job must be loaded. A scene whose capture times out is skipped when
// ContinueOnTimeout is set, otherwise collection stops there. Calling it
// again discards everything the previous collection produced and starts
// over.
func (j *Job) CollectObservations(ctx context.Context) error {
	if j.state == StateUnloaded {
		return errors.Wrapf(ErrInvalidState, "cannot collect observations while %q", j.state)
	}
	j.state = StateLoaded
	j.registry.ClearCamerasTargets()
	j.odps = nil
	j.skipped = nil
	j.summary = solver.Summary{}

	for _, scene := range j.config.Scenes {
		odps, err := j.collectScene(ctx, scene)
		switch {
		case err == nil:
			j.odps = append(j.odps, odps...)
		case IsCaptureTimeoutError(err) && j.opts.ContinueOnTimeout:
			j.logger.Warnw("skipping scene after capture timeout",
				"scene", scene.ID, "error", err)
			j.skipped = append(j.skipped, scene.ID)
		default:
			return errors.Wrapf(err, "collecting scene %d", scene.ID)
		}
	}

	j.state = StateObservationsCollected
	j.logger.Infow("observations collected",
		"observations", len(j.odps),
		"blocks", j.registry.NumBlocks(),
		"skipped_scenes", len(j.skipped))
	return nil
}

// collectScene captures one scene. Registry blocks are only registered after
// every camera in the scene has completed its capture, so a timed out scene
// contributes nothing.
func (j *Job) collectScene(ctx context.Context, scene *calib.Scene) ([]calib.ObservationDataPoint, error) {
	cameras := scene.Cameras()
	for _, cam := range cameras {
		cam.Observer.ClearObservations()
		cam.Observer.ClearTargets()
	}
	for _, cmd := range scene.Commands() {
		if err := cmd.Camera.Observer.AddTarget(cmd.Target, cmd.ROI); err != nil {
			return nil, errors.Wrapf(err, "adding target %q to camera %q",
				cmd.Target.Name, cmd.Camera.Name)
		}
	}
	if scene.Trigger.Type == calib.TriggerPrompt {
		if err := j.promptScene(ctx, scene); err != nil {
			return nil, err
		}
	}

	group, groupCtx := errgroup.WithContext(ctx)
	for _, cam := range cameras {
		cam := cam
		group.Go(func() error {
			return j.awaitCapture(groupCtx, cam, scene.ID)
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	var odps []calib.ObservationDataPoint
	for _, cam := range cameras {
		if cam.Moving {
			j.registry.AddMovingCamera(cam, scene.ID)
		} else {
			j.registry.AddStaticCamera(cam)
		}
		intr, err := j.registry.CameraIntrinsics(cam.Name)
		if err != nil {
			return nil, err
		}
		var extr *calib.ParameterBlock
		if cam.Moving {
			extr, err = j.registry.MovingCameraExtrinsics(cam.Name, scene.ID)
		} else {
			extr, err = j.registry.StaticCameraExtrinsics(cam.Name)
		}
		if err != nil {
			return nil, err
		}

		observations, err := cam.Observer.Observations()
		if err != nil {
			return nil, errors.Wrapf(err, "observations from camera %q", cam.Name)
		}
		for _, obs := range observations {
			target := obs.Target
			if target == nil {
				return nil, errors.Errorf("camera %q reported an observation with no target", cam.Name)
			}
			if target.Moving {
				j.registry.AddMovingTarget(target, scene.ID)
			} else {
				j.registry.AddStaticTarget(target)
			}
			var pose *calib.ParameterBlock
			if target.Moving {
				pose, err = j.registry.MovingTargetPose(target.Name, scene.ID)
			} else {
				pose, err = j.registry.StaticTargetPose(target.Name)
			}
			if err != nil {
				return nil, err
			}
			point, err := j.registry.TargetPoint(target.Name, obs.PointID)
			if err != nil {
				return nil, err
			}
			odps = append(odps, calib.ObservationDataPoint{
				CameraName: cam.Name,
				TargetName: target.Name,
				SceneID:    scene.ID,
				PointID:    obs.PointID,
				Intrinsics: intr,
				Extrinsics: extr,
				TargetPose: pose,
				Point:      point,
				Image:      obs.Image,
			})
		}
	}
	return odps, nil
}

func (j *Job) promptScene(ctx context.Context, scene *calib.Scene) error {
	if j.opts.Prompt == nil {
		j.logger.Infow("scene is staged for capture",
			"scene", scene.ID, "message", scene.Trigger.Message)
		return nil
	}
	if err := j.opts.Prompt(ctx, scene.Trigger.Message); err != nil {
		return errors.Wrapf(err, "prompting for scene %d", scene.ID)
	}
	return nil
}

// awaitCapture triggers a camera and waits for the capture to settle,
// retriggering up to CaptureRetries times after a timeout.
func (j *Job) awaitCapture(ctx context.Context, cam *calib.Camera, sceneID int) error {
	for attempt := 0; ; attempt++ {
		if err := cam.Observer.TriggerCapture(ctx); err != nil {
			return errors.Wrapf(err, "triggering camera %q in scene %d", cam.Name, sceneID)
		}
		err := j.waitForCapture(ctx, cam, sceneID)
		if err == nil || !IsCaptureTimeoutError(err) || attempt >= j.opts.CaptureRetries {
			return err
		}
		j.logger.Warnw("capture timed out, retriggering",
			"camera", cam.Name, "scene", sceneID, "attempt", attempt+1)
	}
}

// waitForCapture polls the observer until its capture settles or the window
// elapses. Completion is checked before the deadline so an immediately
// settled capture never waits on the clock.
func (j *Job) waitForCapture(ctx context.Context, cam *calib.Camera, sceneID int) error {
	deadline := j.clock.Now().Add(j.opts.CaptureTimeout)
	for {
		if cam.Observer.CaptureComplete() {
			return nil
		}
		if !j.clock.Now().Before(deadline) {
			return &CaptureTimeoutError{
				Camera:  cam.Name,
				SceneID: sceneID,
				Timeout: j.opts.CaptureTimeout,
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-j.clock.After(j.opts.CapturePollInterval):
		}
	}
}
