// Package artifact detects artifacts in a stream of samples. Artifacts
// are samples that don't fit the model of the signal, e.g. caused by
// muscle movement or electrode displacement.
package artifact

import (
	"errors"
	"fmt"
	"math"

	"pipelined.dev/bci/stats"
)

// ArtifactThreshold is the width of the error band in standard
// deviations.
const ArtifactThreshold = 2

var (
	// ErrInvalidParameters is returned when detector is constructed
	// with invalid parameters.
	ErrInvalidParameters = errors.New("invalid parameters")
	// ErrInsufficientData is returned when model is fit before the
	// learning set is collected.
	ErrInsufficientData = errors.New("insufficient data")
)

// Detector decides if the next sample is an artifact.
type Detector interface {
	// Detect updates the detector with the next sample and returns true
	// if it is an artifact.
	Detect(next float64) bool
	// Error returns the confusion of the detector. Lower values mean
	// better fit. NaN means the error is not known yet.
	Error() float64
}

// ARDetector detects artifacts using AR model predictions. Sample is an
// artifact if its prediction error lies outside of ArtifactThreshold
// standard deviations of previous errors. Errors of artifacts are not
// added to the error distribution.
type ARDetector struct {
	model          *stats.ARModel
	errorDist      stats.OnlineVariance
	confusionDist  stats.OnlineVariance
	lastPrediction float64
}

// NewARDetector returns detector that uses the model.
func NewARDetector(model *stats.ARModel) (*ARDetector, error) {
	if model == nil {
		return nil, fmt.Errorf("nil ar model: %w", ErrInvalidParameters)
	}
	return &ARDetector{
		model: model,
	}, nil
}

// Detect implements Detector.
func (d *ARDetector) Detect(next float64) bool {
	prediction := d.model.Predict(next)
	err := next - d.lastPrediction
	d.lastPrediction = prediction

	d.confusionDist.Update(err)
	if !d.errorDist.Valid() {
		d.errorDist.Update(err)
		return false
	}

	band := ArtifactThreshold * math.Sqrt(d.errorDist.Variance())
	mean := d.errorDist.Mean()
	if err > mean+band || err < mean-band {
		return true
	}
	d.errorDist.Update(err)
	return false
}

// Error returns variance of all prediction errors, including artifacts.
func (d *ARDetector) Error() float64 {
	return d.confusionDist.Variance()
}

// Model returns the AR model of the detector.
func (d *ARDetector) Model() *stats.ARModel {
	return d.model
}
