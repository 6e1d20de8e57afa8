// Package fake implements a simulated camera observer which detects target
// points by projecting them through known camera parameters.
package fake

import (
	"context"
	"math/rand"
	"sync"

	"github.com/pkg/errors"

	"github.com/UbiCALab/industrial-calibration/calib"
	"github.com/UbiCALab/industrial-calibration/reproject"
)

// Config are the attributes of a fake observer.
type Config struct {
	// PixelNoiseSigma adds zero-mean gaussian noise of this many pixels to
	// every detection.
	PixelNoiseSigma float64
	// Seed makes the noise sequence reproducible.
	Seed int64
	// CompletePolls is how many CaptureComplete checks a triggered capture
	// takes to settle. Zero settles at trigger time.
	CompletePolls int
	// NeverComplete leaves every capture pending, for exercising timeout
	// handling.
	NeverComplete bool
	// Distort projects detections through the camera's distortion
	// coefficients.
	Distort bool
}

type registeredTarget struct {
	target *calib.Target
	roi    calib.ROI
}

// Observer simulates one camera's detector pipeline: every triggered
// capture projects the registered targets' points through the observer's
// own camera parameters and keeps the detections landing inside the
// requested regions. The parameters given at construction are the
// simulation's ground truth and may deliberately differ from the catalog
// seeds a solve starts from.
type Observer struct {
	name   string
	params calib.CameraParameters
	cfg    Config

	mu        sync.Mutex
	rng       *rand.Rand
	targets   []registeredTarget
	poses     map[string]calib.Pose
	triggered bool
	complete  bool
	pollsLeft int
	obs       []calib.Observation
}

// NewObserver returns a fake observer for a camera whose true parameters
// are params.
func NewObserver(name string, params calib.CameraParameters, cfg Config) *Observer {
	//nolint:gosec
	rng := rand.New(rand.NewSource(cfg.Seed))
	return &Observer{
		name:   name,
		params: params,
		cfg:    cfg,
		rng:    rng,
		poses:  map[string]calib.Pose{},
	}
}

// SetTargetPose overrides the pose used to project the named target's
// points, standing in for the target physically moving between scenes.
// Without an override the target's own catalog pose is used.
func (o *Observer) SetTargetPose(targetName string, pose calib.Pose) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.poses[targetName] = pose
}

// ClearObservations drops detections held from a previous scene and any
// pending capture.
func (o *Observer) ClearObservations() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.obs = nil
	o.triggered = false
	o.complete = false
}

// ClearTargets drops the set of targets the observer is looking for.
func (o *Observer) ClearTargets() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.targets = nil
}

// AddTarget instructs the observer to detect t inside roi.
func (o *Observer) AddTarget(t *calib.Target, roi calib.ROI) error {
	if t == nil {
		return errors.New("nil target")
	}
	if err := roi.CheckValid(); err != nil {
		return errors.Wrapf(err, "target %q", t.Name)
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.targets = append(o.targets, registeredTarget{target: t, roi: roi})
	return nil
}

// TriggerCapture starts a capture attempt.
func (o *Observer) TriggerCapture(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.triggered = true
	o.complete = false
	o.pollsLeft = o.cfg.CompletePolls
	if o.cfg.NeverComplete {
		return nil
	}
	if o.pollsLeft <= 0 {
		o.capture()
		o.complete = true
	}
	return nil
}

// CaptureComplete reports whether the last triggered capture has produced
// its detections.
func (o *Observer) CaptureComplete() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.triggered || o.cfg.NeverComplete {
		return false
	}
	if o.complete {
		return true
	}
	o.pollsLeft--
	if o.pollsLeft <= 0 {
		o.capture()
		o.complete = true
	}
	return o.complete
}

// Observations returns the detections of the last completed capture.
func (o *Observer) Observations() ([]calib.Observation, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.complete {
		return nil, errors.Errorf("camera %q has no completed capture to report", o.name)
	}
	out := make([]calib.Observation, len(o.obs))
	copy(out, o.obs)
	return out, nil
}

// capture projects every registered target point and keeps the detections
// inside their regions. Points behind the camera are invisible, not an
// error. Callers must hold mu.
func (o *Observer) capture() {
	o.obs = nil
	for _, rt := range o.targets {
		pose := rt.target.Pose
		if override, ok := o.poses[rt.target.Name]; ok {
			pose = override
		}
		for id, local := range rt.target.Points {
			world := reproject.Apply(pose, local)
			camFrame := reproject.Apply(o.params.Extrinsics, world)
			if camFrame.Z <= 0 {
				continue
			}
			px, err := reproject.Project(o.params, camFrame, o.cfg.Distort)
			if err != nil {
				continue
			}
			if o.cfg.PixelNoiseSigma > 0 {
				px.X += o.rng.NormFloat64() * o.cfg.PixelNoiseSigma
				px.Y += o.rng.NormFloat64() * o.cfg.PixelNoiseSigma
			}
			if !rt.roi.Contains(px) {
				continue
			}
			o.obs = append(o.obs, calib.Observation{Target: rt.target, PointID: id, Image: px})
		}
	}
}
