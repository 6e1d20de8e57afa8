// Package inject provides dependency injected calibration interfaces for
// testing.
package inject

import (
	"context"

	"github.com/UbiCALab/industrial-calibration/calib"
)

// CameraObserver is an injected camera observer.
type CameraObserver struct {
	calib.CameraObserver
	ClearObservationsFunc func()
	ClearTargetsFunc      func()
	AddTargetFunc         func(t *calib.Target, roi calib.ROI) error
	TriggerCaptureFunc    func(ctx context.Context) error
	CaptureCompleteFunc   func() bool
	ObservationsFunc      func() ([]calib.Observation, error)
}

// ClearObservations calls the injected ClearObservations or the real version.
func (o *CameraObserver) ClearObservations() {
	if o.ClearObservationsFunc == nil {
		o.CameraObserver.ClearObservations()
		return
	}
	o.ClearObservationsFunc()
}

// ClearTargets calls the injected ClearTargets or the real version.
func (o *CameraObserver) ClearTargets() {
	if o.ClearTargetsFunc == nil {
		o.CameraObserver.ClearTargets()
		return
	}
	o.ClearTargetsFunc()
}

// AddTarget calls the injected AddTarget or the real version.
func (o *CameraObserver) AddTarget(t *calib.Target, roi calib.ROI) error {
	if o.AddTargetFunc == nil {
		return o.CameraObserver.AddTarget(t, roi)
	}
	return o.AddTargetFunc(t, roi)
}

// TriggerCapture calls the injected TriggerCapture or the real version.
func (o *CameraObserver) TriggerCapture(ctx context.Context) error {
	if o.TriggerCaptureFunc == nil {
		return o.CameraObserver.TriggerCapture(ctx)
	}
	return o.TriggerCaptureFunc(ctx)
}

// CaptureComplete calls the injected CaptureComplete or the real version.
func (o *CameraObserver) CaptureComplete() bool {
	if o.CaptureCompleteFunc == nil {
		return o.CameraObserver.CaptureComplete()
	}
	return o.CaptureCompleteFunc()
}

// Observations calls the injected Observations or the real version.
func (o *CameraObserver) Observations() ([]calib.Observation, error) {
	if o.ObservationsFunc == nil {
		return o.CameraObserver.Observations()
	}
	return o.ObservationsFunc()
}
