package calib

import (
	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
)

// TriggerType names how a scene's captures are initiated.
type TriggerType string

// Supported scene triggers. Immediate scenes fire as soon as the collector
// reaches them; prompt scenes wait for an operator acknowledgement first.
const (
	TriggerImmediate TriggerType = "immediate"
	TriggerPrompt    TriggerType = "prompt"
)

// A Trigger describes when a scene's captures begin.
type Trigger struct {
	Type TriggerType
	// Message is shown to the operator for prompt triggers.
	Message string
}

// CheckValid returns an error if the trigger type is unknown.
func (t Trigger) CheckValid() error {
	switch t.Type {
	case TriggerImmediate, TriggerPrompt:
		return nil
	default:
		return errors.Errorf("unknown trigger type %q", t.Type)
	}
}

// ROI bounds the image region a detection must fall in, in pixels.
type ROI struct {
	XMin float64
	XMax float64
	YMin float64
	YMax float64
}

// CheckValid returns an error if the region is empty or inverted.
func (r ROI) CheckValid() error {
	if r.XMax <= r.XMin {
		return errors.Errorf("roi x range [%v, %v] is empty", r.XMin, r.XMax)
	}
	if r.YMax <= r.YMin {
		return errors.Errorf("roi y range [%v, %v] is empty", r.YMin, r.YMax)
	}
	return nil
}

// Contains reports whether the pixel location p falls inside the region.
func (r ROI) Contains(p r2.Point) bool {
	return p.X >= r.XMin && p.X <= r.XMax && p.Y >= r.YMin && p.Y <= r.YMax
}

// An ObservationCommand pairs one camera with one target it must observe
// during a scene.
type ObservationCommand struct {
	Camera *Camera
	Target *Target
	ROI    ROI
}

// A Scene is one synchronization point of a calibration run: a set of
// camera/target observation commands captured together, under a common
// trigger. Moving cameras and moving targets receive fresh pose blocks per
// scene.
type Scene struct {
	ID      int
	Trigger Trigger

	commands []ObservationCommand
}

// NewScene returns an empty scene with the given id and trigger.
func NewScene(id int, trigger Trigger) *Scene {
	return &Scene{ID: id, Trigger: trigger}
}

// AddCommand appends one camera/target observation command to the scene.
func (s *Scene) AddCommand(cmd ObservationCommand) error {
	if cmd.Camera == nil {
		return errors.New("observation command has no camera")
	}
	if cmd.Target == nil {
		return errors.New("observation command has no target")
	}
	if err := cmd.ROI.CheckValid(); err != nil {
		return errors.Wrapf(err, "observation of target %q by camera %q", cmd.Target.Name, cmd.Camera.Name)
	}
	s.commands = append(s.commands, cmd)
	return nil
}

// Commands returns the scene's observation commands in the order added.
func (s *Scene) Commands() []ObservationCommand {
	out := make([]ObservationCommand, len(s.commands))
	copy(out, s.commands)
	return out
}

// Cameras returns the scene's distinct cameras in order of first
// appearance. A camera observing several targets in one scene still
// captures only once.
func (s *Scene) Cameras() []*Camera {
	var out []*Camera
	seen := map[string]bool{}
	for _, cmd := range s.commands {
		if seen[cmd.Camera.Name] {
			continue
		}
		seen[cmd.Camera.Name] = true
		out = append(out, cmd.Camera)
	}
	return out
}
