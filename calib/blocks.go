// Package calib defines the data model of a multi-camera, multi-target
// calibration run and the registry of parameter blocks shared by its
// residuals. A parameter block is one group of optimization variables
// (a camera's intrinsics, a camera's pose in some scene, a target's pose,
// a single target point); the registry guarantees each (role, name, scene)
// key maps to exactly one block no matter how many scenes or observations
// reference it.
package calib

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrNotFound is the base error for lookups of cameras, targets, or
// parameter blocks that were never registered. Hitting it after the
// corresponding Add call indicates a caller ordering bug, not bad input.
var ErrNotFound = errors.New("not found")

// IsNotFoundError reports whether err came from a failed registry or
// catalog lookup.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// BlockRole identifies which parameter group a block carries.
type BlockRole string

// The four block roles of a calibration problem.
const (
	BlockCameraIntrinsics BlockRole = "camera_intrinsics"
	BlockCameraExtrinsics BlockRole = "camera_extrinsics"
	BlockTargetPose       BlockRole = "target_pose"
	BlockTargetPoint      BlockRole = "target_point"
)

// Block sizes in scalars. Intrinsics are [fx fy cx cy k1 k2 k3 p1 p2],
// extrinsics and poses are [ax ay az x y z], points are [x y z].
const (
	IntrinsicsSize = 9
	ExtrinsicsSize = 6
	PoseSize       = 6
	PointSize      = 3
)

// sharedScene keys blocks that are shared across every scene.
const sharedScene = -1

// A ParameterBlock is one owned group of optimization variables. The
// pointer is the block's stable handle: once created for a key it is never
// reallocated, only mutated in place, so solver updates are visible through
// every handle ever issued for it. ClearCamerasTargets invalidates handles.
type ParameterBlock struct {
	role  BlockRole
	name  string
	scene int
	point int
	data  []float64
}

func newParameterBlock(role BlockRole, name string, scene, point int, seed []float64) *ParameterBlock {
	data := make([]float64, len(seed))
	copy(data, seed)
	return &ParameterBlock{role: role, name: name, scene: scene, point: point, data: data}
}

// Role returns which parameter group the block carries.
func (pb *ParameterBlock) Role() BlockRole { return pb.role }

// Name returns the camera or target name the block belongs to.
func (pb *ParameterBlock) Name() string { return pb.name }

// SceneID returns the scene the block is private to, or false when the
// block is shared across scenes.
func (pb *ParameterBlock) SceneID() (int, bool) {
	if pb.scene == sharedScene {
		return 0, false
	}
	return pb.scene, true
}

// PointID returns the target point id for BlockTargetPoint blocks, -1
// otherwise.
func (pb *ParameterBlock) PointID() int { return pb.point }

// Len returns the number of scalars in the block.
func (pb *ParameterBlock) Len() int { return len(pb.data) }

// At returns the i-th scalar.
func (pb *ParameterBlock) At(i int) float64 { return pb.data[i] }

// Values returns a copy of the block's current contents.
func (pb *ParameterBlock) Values() []float64 {
	out := make([]float64, len(pb.data))
	copy(out, pb.data)
	return out
}

// Set overwrites the block's contents in place.
func (pb *ParameterBlock) Set(values []float64) error {
	if len(values) != len(pb.data) {
		return errors.Errorf("parameter block %s has %d scalars, cannot set %d", pb, len(pb.data), len(values))
	}
	copy(pb.data, values)
	return nil
}

func (pb *ParameterBlock) String() string {
	switch {
	case pb.role == BlockTargetPoint:
		return fmt.Sprintf("%s[%s/%d]", pb.role, pb.name, pb.point)
	case pb.scene == sharedScene:
		return fmt.Sprintf("%s[%s]", pb.role, pb.name)
	default:
		return fmt.Sprintf("%s[%s@%d]", pb.role, pb.name, pb.scene)
	}
}

type cameraBlocks struct {
	intrinsics *ParameterBlock
	extrinsics map[int]*ParameterBlock
}

type targetBlocks struct {
	pose   map[int]*ParameterBlock
	points []*ParameterBlock
}

// Registry owns every parameter block of a calibration run. Creation is
// idempotent: lookup-or-create is a single operation keyed by
// (role, entity name, optional scene id), so repeated registration across
// scenes and observations always resolves to the block created first.
// The registry has a single writer (the observation collector) and is
// read-only during assembly and solving, so it is unsynchronized.
type Registry struct {
	catalog *Catalog
	cameras map[string]*cameraBlocks
	targets map[string]*targetBlocks
	order   []*ParameterBlock
}

// NewRegistry returns an empty registry resolving entity names against the
// given catalog.
func NewRegistry(catalog *Catalog) *Registry {
	r := &Registry{catalog: catalog}
	r.ClearCamerasTargets()
	return r
}

// ClearCamerasTargets resets the registry to empty, invalidating every
// previously issued block handle. It must be called at the start of every
// fresh observation pass. The catalog is untouched.
func (r *Registry) ClearCamerasTargets() {
	r.cameras = map[string]*cameraBlocks{}
	r.targets = map[string]*targetBlocks{}
	r.order = nil
}

func (r *Registry) track(pb *ParameterBlock) *ParameterBlock {
	r.order = append(r.order, pb)
	return pb
}

// AddStaticCamera registers cam's intrinsics block and its single shared
// extrinsics block, seeded from the camera parameters. A repeated call for
// the same name is a no-op that keeps the original blocks.
func (r *Registry) AddStaticCamera(cam *Camera) {
	r.addCamera(cam, sharedScene)
}

// AddMovingCamera registers cam's intrinsics block (shared across scenes)
// and an extrinsics block private to sceneID. Repeated calls for the same
// (name, scene) are no-ops.
func (r *Registry) AddMovingCamera(cam *Camera, sceneID int) {
	r.addCamera(cam, sceneID)
}

func (r *Registry) addCamera(cam *Camera, scene int) {
	cb, ok := r.cameras[cam.Name]
	if !ok {
		cb = &cameraBlocks{extrinsics: map[int]*ParameterBlock{}}
		r.cameras[cam.Name] = cb
	}
	if cb.intrinsics == nil {
		cb.intrinsics = r.track(newParameterBlock(
			BlockCameraIntrinsics, cam.Name, sharedScene, -1, cam.Params.IntrinsicsVector()))
	}
	if _, ok := cb.extrinsics[scene]; !ok {
		cb.extrinsics[scene] = r.track(newParameterBlock(
			BlockCameraExtrinsics, cam.Name, scene, -1, cam.Params.Extrinsics.Vector()))
	}
}

// AddStaticTarget registers t's single shared pose block, plus one point
// block per target point the first time the target name is seen. Repeated
// calls are no-ops.
func (r *Registry) AddStaticTarget(t *Target) {
	r.addTarget(t, sharedScene)
}

// AddMovingTarget registers a pose block private to sceneID for t, plus one
// point block per target point the first time the target name is seen.
// Point blocks are never scene-scoped: the geometry is fixed in the
// target's own frame, only its pose varies across scenes.
func (r *Registry) AddMovingTarget(t *Target, sceneID int) {
	r.addTarget(t, sceneID)
}

func (r *Registry) addTarget(t *Target, scene int) {
	tb, ok := r.targets[t.Name]
	if !ok {
		tb = &targetBlocks{pose: map[int]*ParameterBlock{}}
		for id, pt := range t.Points {
			tb.points = append(tb.points, r.track(newParameterBlock(
				BlockTargetPoint, t.Name, sharedScene, id, []float64{pt.X, pt.Y, pt.Z})))
		}
		r.targets[t.Name] = tb
	}
	if _, ok := tb.pose[scene]; !ok {
		tb.pose[scene] = r.track(newParameterBlock(BlockTargetPose, t.Name, scene, -1, t.Pose.Vector()))
	}
}

// CameraIntrinsics returns the intrinsics block for the named camera. The
// same block is returned for every scene: intrinsics are always shared.
func (r *Registry) CameraIntrinsics(name string) (*ParameterBlock, error) {
	cb, ok := r.cameras[name]
	if !ok || cb.intrinsics == nil {
		return nil, errors.Wrapf(ErrNotFound, "no intrinsics block for camera %q", name)
	}
	return cb.intrinsics, nil
}

// StaticCameraExtrinsics returns the shared extrinsics block of a static
// camera.
func (r *Registry) StaticCameraExtrinsics(name string) (*ParameterBlock, error) {
	return r.cameraExtrinsics(name, sharedScene)
}

// MovingCameraExtrinsics returns the extrinsics block a moving camera owns
// in the given scene.
func (r *Registry) MovingCameraExtrinsics(name string, sceneID int) (*ParameterBlock, error) {
	return r.cameraExtrinsics(name, sceneID)
}

func (r *Registry) cameraExtrinsics(name string, scene int) (*ParameterBlock, error) {
	cb, ok := r.cameras[name]
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "no extrinsics block for camera %q", name)
	}
	pb, ok := cb.extrinsics[scene]
	if !ok {
		if scene == sharedScene {
			return nil, errors.Wrapf(ErrNotFound, "no shared extrinsics block for camera %q", name)
		}
		return nil, errors.Wrapf(ErrNotFound, "no extrinsics block for camera %q in scene %d", name, scene)
	}
	return pb, nil
}

// StaticTargetPose returns the shared pose block of a static target.
func (r *Registry) StaticTargetPose(name string) (*ParameterBlock, error) {
	return r.targetPose(name, sharedScene)
}

// MovingTargetPose returns the pose block a moving target owns in the given
// scene.
func (r *Registry) MovingTargetPose(name string, sceneID int) (*ParameterBlock, error) {
	return r.targetPose(name, sceneID)
}

func (r *Registry) targetPose(name string, scene int) (*ParameterBlock, error) {
	tb, ok := r.targets[name]
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "no pose block for target %q", name)
	}
	pb, ok := tb.pose[scene]
	if !ok {
		if scene == sharedScene {
			return nil, errors.Wrapf(ErrNotFound, "no shared pose block for target %q", name)
		}
		return nil, errors.Wrapf(ErrNotFound, "no pose block for target %q in scene %d", name, scene)
	}
	return pb, nil
}

// TargetPoint returns the position block of one target point. Point blocks
// are keyed by (target name, point id) only; the same block is returned no
// matter which scene is being processed.
func (r *Registry) TargetPoint(name string, pointID int) (*ParameterBlock, error) {
	tb, ok := r.targets[name]
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "no point blocks for target %q", name)
	}
	if pointID < 0 || pointID >= len(tb.points) {
		return nil, errors.Wrapf(ErrNotFound, "target %q has no point block with id %d", name, pointID)
	}
	return tb.points[pointID], nil
}

// CameraByName resolves a camera definition from the catalog.
func (r *Registry) CameraByName(name string) (*Camera, error) {
	return r.catalog.Camera(name)
}

// TargetByName resolves a target definition from the catalog.
func (r *Registry) TargetByName(name string) (*Target, error) {
	return r.catalog.Target(name)
}

// Blocks returns every live block in creation order.
func (r *Registry) Blocks() []*ParameterBlock {
	out := make([]*ParameterBlock, len(r.order))
	copy(out, r.order)
	return out
}

// NumBlocks returns the number of live blocks.
func (r *Registry) NumBlocks() int {
	return len(r.order)
}
