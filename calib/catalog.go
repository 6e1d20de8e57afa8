package calib

import "github.com/pkg/errors"

// Catalog holds the static camera and target definitions loaded by the
// config layer. Entities are keyed by name and listed in insertion order.
// The registry references the catalog for name resolution but never owns
// or clears it: a fresh observation pass drops parameter blocks, not
// entity definitions.
type Catalog struct {
	cameras     map[string]*Camera
	targets     map[string]*Target
	cameraOrder []string
	targetOrder []string
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		cameras: map[string]*Camera{},
		targets: map[string]*Target{},
	}
}

// AddCamera adds a camera definition to the catalog.
func (c *Catalog) AddCamera(cam *Camera) error {
	if cam.Name == "" {
		return errors.New("camera has no name")
	}
	if err := cam.Params.CheckValid(); err != nil {
		return errors.Wrapf(err, "camera %q", cam.Name)
	}
	if _, ok := c.cameras[cam.Name]; ok {
		return errors.Errorf("camera name %q is not unique", cam.Name)
	}
	c.cameras[cam.Name] = cam
	c.cameraOrder = append(c.cameraOrder, cam.Name)
	return nil
}

// AddTarget adds a target definition to the catalog.
func (c *Catalog) AddTarget(t *Target) error {
	if err := t.CheckValid(); err != nil {
		return err
	}
	if _, ok := c.targets[t.Name]; ok {
		return errors.Errorf("target name %q is not unique", t.Name)
	}
	c.targets[t.Name] = t
	c.targetOrder = append(c.targetOrder, t.Name)
	return nil
}

// Camera resolves a camera definition by name.
func (c *Catalog) Camera(name string) (*Camera, error) {
	cam, ok := c.cameras[name]
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "no camera named %q", name)
	}
	return cam, nil
}

// Target resolves a target definition by name.
func (c *Catalog) Target(name string) (*Target, error) {
	t, ok := c.targets[name]
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "no target named %q", name)
	}
	return t, nil
}

// Cameras returns every camera definition in insertion order.
func (c *Catalog) Cameras() []*Camera {
	out := make([]*Camera, 0, len(c.cameraOrder))
	for _, name := range c.cameraOrder {
		out = append(out, c.cameras[name])
	}
	return out
}

// Targets returns every target definition in insertion order.
func (c *Catalog) Targets() []*Target {
	out := make([]*Target, 0, len(c.targetOrder))
	for _, name := range c.targetOrder {
		out = append(out, c.targets[name])
	}
	return out
}
