package calib

import "context"

// A CameraObserver drives one camera through an observation cycle: it is
// told which targets to look for, asked to capture, polled until the
// capture settles, and finally drained of the image-space detections it
// produced. Implementations wrap real detector pipelines or simulations;
// they are not required to be safe for concurrent use by multiple
// collectors.
type CameraObserver interface {
	// ClearObservations drops any detections held from a previous scene.
	ClearObservations()

	// ClearTargets drops the set of targets the observer is looking for.
	ClearTargets()

	// AddTarget instructs the observer to detect t within the given image
	// region of interest.
	AddTarget(t *Target, roi ROI) error

	// TriggerCapture starts an observation attempt. It returns once the
	// attempt is underway; completion is reported by CaptureComplete.
	TriggerCapture(ctx context.Context) error

	// CaptureComplete reports whether the last triggered capture has
	// produced its detections.
	CaptureComplete() bool

	// Observations returns the detections gathered since the last
	// ClearObservations.
	Observations() ([]Observation, error)
}
