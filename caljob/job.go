// Package caljob orchestrates a calibration run end to end: it loads camera,
// target, and scene definitions, collects observations through the bound
// camera observers, and refines the shared parameter blocks with a nonlinear
// least squares solve.
//
// A job moves strictly forward through its lifecycle. Collecting again
// rewinds a solved job and starts a fresh run over the same configuration.
package caljob

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"
	"github.com/pkg/errors"

	"github.com/UbiCALab/industrial-calibration/calib"
	"github.com/UbiCALab/industrial-calibration/reproject"
	"github.com/UbiCALab/industrial-calibration/solver"
)

// State is where a job is in its lifecycle.
type State string

const (
	// StateUnloaded means no configuration has been loaded yet.
	StateUnloaded State = "unloaded"
	// StateLoaded means the configuration is resolved and observers are
	// bound, but nothing has been captured.
	StateLoaded State = "loaded"
	// StateObservationsCollected means every runnable scene has been
	// captured and its detections resolved.
	StateObservationsCollected State = "observations_collected"
	// StateSolved means the last optimization succeeded and its values are
	// applied to the catalog.
	StateSolved State = "solved"
)

// ErrInvalidState is returned when a job method is called out of lifecycle
// order.
var ErrInvalidState = errors.New("job is not in a valid state for this call")

// ObserverFactory builds the observer a camera captures through. Load calls
// it once per configured camera.
type ObserverFactory func(cam *calib.Camera) (calib.CameraObserver, error)

// Options configure how a job collects and solves.
type Options struct {
	// Variant selects which parameter groups residuals leave free.
	Variant reproject.Variant
	// VariantFor overrides Variant per observation when it returns a non
	// empty variant. Load wires it to the job file's cost_type entries
	// when left nil.
	VariantFor func(odp *calib.ObservationDataPoint) reproject.Variant
	// Solver configures the least squares solve.
	Solver solver.Options
	// CaptureTimeout bounds how long a triggered capture may take to
	// settle.
	CaptureTimeout time.Duration
	// CapturePollInterval is how often a pending capture is checked.
	CapturePollInterval time.Duration
	// CaptureRetries is how many times a timed out capture is retriggered
	// before its scene gives up.
	CaptureRetries int
	// ContinueOnTimeout skips a scene whose capture timed out instead of
	// failing the whole collection.
	ContinueOnTimeout bool
	// Prompt blocks until the operator confirms a prompted scene is
	// staged. When nil, prompted scenes log the message and proceed.
	Prompt func(ctx context.Context, message string) error
	// Clock is the time source for capture waits. Defaults to the wall
	// clock.
	Clock clock.Clock
}

// DefaultOptions returns the options a job runs with unless told otherwise.
func DefaultOptions() Options {
	return Options{
		Variant:             reproject.VariantRectified,
		Solver:              solver.DefaultOptions(),
		CaptureTimeout:      5 * time.Second,
		CapturePollInterval: 10 * time.Millisecond,
		CaptureRetries:      1,
		ContinueOnTimeout:   true,
	}
}

// A Job is one calibration run: a configuration, the registry of parameter
// blocks built from it, the observations collected so far, and the outcome
// of the last solve. A Job is not safe for concurrent use.
type Job struct {
	logger golog.Logger
	opts   Options
	clock  clock.Clock

	state    State
	config   *Config
	registry *calib.Registry
	odps     []calib.ObservationDataPoint
	skipped  []int
	summary  solver.Summary
}

// NewJob returns an unloaded job.
func NewJob(logger golog.Logger, opts Options) *Job {
	clk := opts.Clock
	if clk == nil {
		clk = clock.New()
	}
	return &Job{
		logger: logger,
		opts:   opts,
		clock:  clk,
		state:  StateUnloaded,
	}
}

// Load reads the definition files, binds an observer to every camera, and
// moves the job to StateLoaded. A failed load leaves the job unloaded.
func (j *Job) Load(camerasPath, targetsPath, jobPath string, factory ObserverFactory) error {
	if factory == nil {
		return errors.New("need an observer factory to load a job")
	}
	config, err := LoadConfig(camerasPath, targetsPath, jobPath)
	if err != nil {
		return err
	}
	for _, cam := range config.Catalog.Cameras() {
		observer, err := factory(cam)
		if err != nil {
			return errors.Wrapf(err, "binding observer for camera %q", cam.Name)
		}
		cam.Observer = observer
	}

	j.config = config
	j.registry = calib.NewRegistry(config.Catalog)
	j.odps = nil
	j.skipped = nil
	j.summary = solver.Summary{}
	if j.opts.VariantFor == nil {
		j.opts.VariantFor = config.VariantFor
	}
	j.state = StateLoaded
	j.logger.Infow("calibration job loaded",
		"cameras", len(config.Catalog.Cameras()),
		"targets", len(config.Catalog.Targets()),
		"scenes", len(config.Scenes))
	return nil
}

// Run collects observations and optimizes, in that order. The run fails if
// either phase fails.
func (j *Job) Run(ctx context.Context) error {
	if err := j.CollectObservations(ctx); err != nil {
		return errors.Wrap(err, "collecting observations")
	}
	if err := j.Optimize(ctx); err != nil {
		return errors.Wrap(err, "optimizing")
	}
	return nil
}

// State returns where the job is in its lifecycle.
func (j *Job) State() State { return j.state }

// Config returns the loaded configuration, or nil before Load.
func (j *Job) Config() *Config { return j.config }

// Registry returns the parameter block registry of the current run, or nil
// before Load.
func (j *Job) Registry() *calib.Registry { return j.registry }

// ObservationDataPoints returns the observations resolved by the last
// collection.
func (j *Job) ObservationDataPoints() []calib.ObservationDataPoint {
	out := make([]calib.ObservationDataPoint, len(j.odps))
	copy(out, j.odps)
	return out
}

// SkippedScenes returns the IDs of scenes skipped after capture timeouts, in
// collection order.
func (j *Job) SkippedScenes() []int {
	out := make([]int, len(j.skipped))
	copy(out, j.skipped)
	return out
}

// Summary reports the outcome of the last solve.
func (j *Job) Summary() solver.Summary { return j.summary }
