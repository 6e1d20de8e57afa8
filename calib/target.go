package calib

import (
	"fmt"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// Target is a catalog entry describing one calibration target: a pose seed
// and an ordered set of 3D points expressed in the target's own frame. The
// point id is the index into Points; point geometry never varies per scene,
// only the pose of a moving target does.
type Target struct {
	Name   string
	Moving bool
	Pose   Pose
	Points []r3.Vector
}

// Point returns the target-frame position of the point with the given id.
func (t *Target) Point(id int) (r3.Vector, error) {
	if id < 0 || id >= len(t.Points) {
		return r3.Vector{}, errors.Wrapf(ErrNotFound, "target %q has no point with id %d", t.Name, id)
	}
	return t.Points[id], nil
}

// CheckValid checks if the fields for Target have valid inputs.
func (t *Target) CheckValid() error {
	if t.Name == "" {
		return errors.New("target has no name")
	}
	if len(t.Points) == 0 {
		return errors.Errorf("target %q has no points", t.Name)
	}
	return nil
}

func (t *Target) String() string {
	kind := "static"
	if t.Moving {
		kind = "moving"
	}
	return fmt.Sprintf("%s target %q (%d points)", kind, t.Name, len(t.Points))
}
