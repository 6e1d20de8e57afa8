package caljob

import (
	"os"
	"path/filepath"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"
	"gopkg.in/yaml.v3"

	"github.com/UbiCALab/industrial-calibration/calib"
	"github.com/UbiCALab/industrial-calibration/reproject"
)

// cameraDef is one camera entry of a camera definition file. The pose fields
// seed the camera's extrinsics and the remaining fields its intrinsics.
type cameraDef struct {
	Name         string  `yaml:"camera_name"`
	AngleAxisX   float64 `yaml:"angle_axis_ax"`
	AngleAxisY   float64 `yaml:"angle_axis_ay"`
	AngleAxisZ   float64 `yaml:"angle_axis_az"`
	PositionX    float64 `yaml:"position_x"`
	PositionY    float64 `yaml:"position_y"`
	PositionZ    float64 `yaml:"position_z"`
	FocalLengthX float64 `yaml:"focal_length_x"`
	FocalLengthY float64 `yaml:"focal_length_y"`
	CenterX      float64 `yaml:"center_x"`
	CenterY      float64 `yaml:"center_y"`
	DistortionK1 float64 `yaml:"distortion_k1"`
	DistortionK2 float64 `yaml:"distortion_k2"`
	DistortionK3 float64 `yaml:"distortion_k3"`
	DistortionP1 float64 `yaml:"distortion_p1"`
	DistortionP2 float64 `yaml:"distortion_p2"`
}

// Validate ensures all parts of the camera entry are valid.
func (def *cameraDef) Validate(path string) error {
	if def.Name == "" {
		return goutils.NewConfigValidationFieldRequiredError(path, "camera_name")
	}
	if def.FocalLengthX <= 0 {
		return goutils.NewConfigValidationError(path,
			errors.Errorf("camera %q needs a positive focal_length_x", def.Name))
	}
	if def.FocalLengthY <= 0 {
		return goutils.NewConfigValidationError(path,
			errors.Errorf("camera %q needs a positive focal_length_y", def.Name))
	}
	return nil
}

func (def *cameraDef) camera(moving bool) *calib.Camera {
	return &calib.Camera{
		Name:   def.Name,
		Moving: moving,
		Params: calib.CameraParameters{
			Extrinsics: calib.Pose{
				Rotation: r3.Vector{X: def.AngleAxisX, Y: def.AngleAxisY, Z: def.AngleAxisZ},
				Position: r3.Vector{X: def.PositionX, Y: def.PositionY, Z: def.PositionZ},
			},
			FocalLengthX: def.FocalLengthX,
			FocalLengthY: def.FocalLengthY,
			CenterX:      def.CenterX,
			CenterY:      def.CenterY,
			DistortionK1: def.DistortionK1,
			DistortionK2: def.DistortionK2,
			DistortionK3: def.DistortionK3,
			DistortionP1: def.DistortionP1,
			DistortionP2: def.DistortionP2,
		},
	}
}

// cameraDefs is the top level of a camera definition file.
type cameraDefs struct {
	StaticCameras []cameraDef `yaml:"static_cameras"`
	MovingCameras []cameraDef `yaml:"moving_cameras"`
}

// Validate ensures all parts of the camera file are valid.
func (defs *cameraDefs) Validate(path string) error {
	var err error
	for i := range defs.StaticCameras {
		err = multierr.Append(err, defs.StaticCameras[i].Validate(path))
	}
	for i := range defs.MovingCameras {
		err = multierr.Append(err, defs.MovingCameras[i].Validate(path))
	}
	if len(defs.StaticCameras)+len(defs.MovingCameras) == 0 {
		err = multierr.Append(err, goutils.NewConfigValidationError(path,
			errors.New("need at least one camera")))
	}
	return err
}

// pointDef is one fiducial position in a target's local frame.
type pointDef struct {
	Pnt []float64 `yaml:"pnt"`
}

// targetDef is one target entry of a target definition file.
type targetDef struct {
	Name       string     `yaml:"target_name"`
	AngleAxisX float64    `yaml:"angle_axis_ax"`
	AngleAxisY float64    `yaml:"angle_axis_ay"`
	AngleAxisZ float64    `yaml:"angle_axis_az"`
	PositionX  float64    `yaml:"position_x"`
	PositionY  float64    `yaml:"position_y"`
	PositionZ  float64    `yaml:"position_z"`
	NumPoints  int        `yaml:"num_points"`
	Points     []pointDef `yaml:"points"`
}

// Validate ensures all parts of the target entry are valid.
func (def *targetDef) Validate(path string) error {
	if def.Name == "" {
		return goutils.NewConfigValidationFieldRequiredError(path, "target_name")
	}
	if len(def.Points) == 0 {
		return goutils.NewConfigValidationError(path,
			errors.Errorf("target %q needs at least one point", def.Name))
	}
	if def.NumPoints != len(def.Points) {
		return goutils.NewConfigValidationError(path,
			errors.Errorf("target %q declares num_points %d but lists %d points",
				def.Name, def.NumPoints, len(def.Points)))
	}
	for i, pt := range def.Points {
		if len(pt.Pnt) != 3 {
			return goutils.NewConfigValidationError(path,
				errors.Errorf("target %q point %d needs three coordinates, got %d",
					def.Name, i, len(pt.Pnt)))
		}
	}
	return nil
}

func (def *targetDef) target(moving bool) *calib.Target {
	points := make([]r3.Vector, 0, len(def.Points))
	for _, pt := range def.Points {
		points = append(points, r3.Vector{X: pt.Pnt[0], Y: pt.Pnt[1], Z: pt.Pnt[2]})
	}
	return &calib.Target{
		Name:   def.Name,
		Moving: moving,
		Pose: calib.Pose{
			Rotation: r3.Vector{X: def.AngleAxisX, Y: def.AngleAxisY, Z: def.AngleAxisZ},
			Position: r3.Vector{X: def.PositionX, Y: def.PositionY, Z: def.PositionZ},
		},
		Points: points,
	}
}

// targetDefs is the top level of a target definition file.
type targetDefs struct {
	StaticTargets []targetDef `yaml:"static_targets"`
	MovingTargets []targetDef `yaml:"moving_targets"`
}

// Validate ensures all parts of the target file are valid.
func (defs *targetDefs) Validate(path string) error {
	var err error
	for i := range defs.StaticTargets {
		err = multierr.Append(err, defs.StaticTargets[i].Validate(path))
	}
	for i := range defs.MovingTargets {
		err = multierr.Append(err, defs.MovingTargets[i].Validate(path))
	}
	if len(defs.StaticTargets)+len(defs.MovingTargets) == 0 {
		err = multierr.Append(err, goutils.NewConfigValidationError(path,
			errors.New("need at least one target")))
	}
	return err
}

// observationDef is one camera/target pairing within a scene. An optional
// cost_type picks the residual variant for detections made under it.
type observationDef struct {
	Camera   string  `yaml:"camera"`
	Target   string  `yaml:"target"`
	ROIXMin  float64 `yaml:"roi_x_min"`
	ROIXMax  float64 `yaml:"roi_x_max"`
	ROIYMin  float64 `yaml:"roi_y_min"`
	ROIYMax  float64 `yaml:"roi_y_max"`
	CostType string  `yaml:"cost_type"`
}

// Validate ensures all parts of the observation entry are valid.
func (def *observationDef) Validate(path string) error {
	if def.Camera == "" {
		return goutils.NewConfigValidationFieldRequiredError(path, "camera")
	}
	if def.Target == "" {
		return goutils.NewConfigValidationFieldRequiredError(path, "target")
	}
	if def.CostType != "" {
		if err := reproject.Variant(def.CostType).CheckValid(); err != nil {
			return goutils.NewConfigValidationError(path, err)
		}
	}
	return nil
}

func (def *observationDef) roi() calib.ROI {
	return calib.ROI{
		XMin: def.ROIXMin,
		XMax: def.ROIXMax,
		YMin: def.ROIYMin,
		YMax: def.ROIYMax,
	}
}

// sceneDef is one capture scene of a job definition file.
type sceneDef struct {
	SceneID        int              `yaml:"scene_id"`
	TriggerType    string           `yaml:"trigger_type"`
	TriggerMessage string           `yaml:"trigger_message"`
	Observations   []observationDef `yaml:"observations"`
}

// Validate ensures all parts of the scene entry are valid.
func (def *sceneDef) Validate(path string) error {
	var err error
	if len(def.Observations) == 0 {
		err = multierr.Append(err, goutils.NewConfigValidationError(path,
			errors.Errorf("scene %d needs at least one observation", def.SceneID)))
	}
	for i := range def.Observations {
		err = multierr.Append(err, def.Observations[i].Validate(path))
	}
	return err
}

func (def *sceneDef) trigger() calib.Trigger {
	triggerType := calib.TriggerType(def.TriggerType)
	if def.TriggerType == "" {
		triggerType = calib.TriggerImmediate
	}
	return calib.Trigger{Type: triggerType, Message: def.TriggerMessage}
}

// jobDef is the top level of a job definition file.
type jobDef struct {
	ReferenceFrame string     `yaml:"reference_frame"`
	Scenes         []sceneDef `yaml:"scenes"`
}

// Validate ensures all parts of the job file are valid.
func (def *jobDef) Validate(path string) error {
	var err error
	if len(def.Scenes) == 0 {
		err = multierr.Append(err, goutils.NewConfigValidationError(path,
			errors.New("need at least one scene")))
	}
	seen := map[int]bool{}
	for i := range def.Scenes {
		if seen[def.Scenes[i].SceneID] {
			err = multierr.Append(err, goutils.NewConfigValidationError(path,
				errors.Errorf("scene_id %d is not unique", def.Scenes[i].SceneID)))
		}
		seen[def.Scenes[i].SceneID] = true
		err = multierr.Append(err, def.Scenes[i].Validate(path))
	}
	return err
}

type variantKey struct {
	scene  int
	camera string
	target string
}

// Config is a fully resolved calibration job: the cameras and targets it
// mentions and the scenes to capture, in file order.
type Config struct {
	ReferenceFrame string
	Catalog        *calib.Catalog
	Scenes         []*calib.Scene

	variants map[variantKey]reproject.Variant
}

// VariantFor returns the cost_type variant the job file set for the
// observation's scene, camera, and target, or empty when it set none.
func (c *Config) VariantFor(odp *calib.ObservationDataPoint) reproject.Variant {
	return c.variants[variantKey{
		scene:  odp.SceneID,
		camera: odp.CameraName,
		target: odp.TargetName,
	}]
}

func readYAML(path string, out interface{}) error {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return errors.Wrapf(err, "parsing %s", path)
	}
	return nil
}

// LoadConfig reads the camera, target, and job definition files and resolves
// them into a Config. Scene entries must name cameras and targets defined in
// the first two files.
func LoadConfig(camerasPath, targetsPath, jobPath string) (*Config, error) {
	var cameras cameraDefs
	if err := readYAML(camerasPath, &cameras); err != nil {
		return nil, err
	}
	if err := cameras.Validate(camerasPath); err != nil {
		return nil, err
	}

	var targets targetDefs
	if err := readYAML(targetsPath, &targets); err != nil {
		return nil, err
	}
	if err := targets.Validate(targetsPath); err != nil {
		return nil, err
	}

	var job jobDef
	if err := readYAML(jobPath, &job); err != nil {
		return nil, err
	}
	if err := job.Validate(jobPath); err != nil {
		return nil, err
	}

	catalog := calib.NewCatalog()
	for i := range cameras.StaticCameras {
		if err := catalog.AddCamera(cameras.StaticCameras[i].camera(false)); err != nil {
			return nil, err
		}
	}
	for i := range cameras.MovingCameras {
		if err := catalog.AddCamera(cameras.MovingCameras[i].camera(true)); err != nil {
			return nil, err
		}
	}
	for i := range targets.StaticTargets {
		if err := catalog.AddTarget(targets.StaticTargets[i].target(false)); err != nil {
			return nil, err
		}
	}
	for i := range targets.MovingTargets {
		if err := catalog.AddTarget(targets.MovingTargets[i].target(true)); err != nil {
			return nil, err
		}
	}

	scenes := make([]*calib.Scene, 0, len(job.Scenes))
	variants := map[variantKey]reproject.Variant{}
	for i := range job.Scenes {
		def := &job.Scenes[i]
		scene := calib.NewScene(def.SceneID, def.trigger())
		if err := scene.Trigger.CheckValid(); err != nil {
			return nil, errors.Wrapf(err, "scene %d", def.SceneID)
		}
		for j := range def.Observations {
			obsDef := &def.Observations[j]
			cam, err := catalog.Camera(obsDef.Camera)
			if err != nil {
				return nil, errors.Wrapf(err, "scene %d", def.SceneID)
			}
			target, err := catalog.Target(obsDef.Target)
			if err != nil {
				return nil, errors.Wrapf(err, "scene %d", def.SceneID)
			}
			if err := scene.AddCommand(calib.ObservationCommand{
				Camera: cam,
				Target: target,
				ROI:    obsDef.roi(),
			}); err != nil {
				return nil, errors.Wrapf(err, "scene %d", def.SceneID)
			}
			if obsDef.CostType != "" {
				variants[variantKey{
					scene:  def.SceneID,
					camera: cam.Name,
					target: target.Name,
				}] = reproject.Variant(obsDef.CostType)
			}
		}
		scenes = append(scenes, scene)
	}

	return &Config{
		ReferenceFrame: job.ReferenceFrame,
		Catalog:        catalog,
		Scenes:         scenes,
		variants:       variants,
	}, nil
}
