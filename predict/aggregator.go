package predict

import (
	"context"
	"fmt"
	"sync"
	"time"

	"pipelined.dev/bci"
	"pipelined.dev/bci/metric"
	"pipelined.dev/bci/pipe"
)

// IDPredict is the training id of aggregator that predicts.
const IDPredict = 0

// Aggregator is a pipeline processor that collects band events with the
// same timestamp into a sample. Complete sample is either added to the
// training data or predicted. Predictions are emitted as
// bci.TrainedEvent.
type Aggregator struct {
	predictor *KNN
	index     map[bci.DataType]int

	current time.Time
	buffer  []bci.Event
	filled  []bool

	mu         sync.Mutex
	trainingID int

	meter *metric.Measure
}

// NewAggregator returns aggregator with k-nearest neighbours predictor.
func NewAggregator(channels, k int, threshold float64, types []bci.DataType, options ...Option) (*Aggregator, error) {
	p, err := NewKNN(channels, k, threshold, types, options...)
	if err != nil {
		return nil, err
	}
	a := &Aggregator{
		predictor:  p,
		index:      p.bandIndex,
		buffer:     make([]bci.Event, len(types)),
		filled:     make([]bool, len(types)),
		trainingID: IDPredict,
	}
	a.meter = metric.Meter(a)
	return a, nil
}

// Predictor returns the predictor of aggregator.
func (a *Aggregator) Predictor() *KNN {
	return a.predictor
}

// StartTraining makes all following samples added to training data with
// label id. Id must be positive.
func (a *Aggregator) StartTraining(id int) error {
	if id <= IDPredict {
		return fmt.Errorf("training id %d: %w", id, ErrInvalidParameters)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.trainingID != IDPredict {
		return fmt.Errorf("training already started: %w", ErrTraining)
	}
	a.trainingID = id
	a.predictor.log.Info("training started: ", id)
	return nil
}

// StopTraining stops the training of label id.
func (a *Aggregator) StopTraining(id int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.trainingID == IDPredict {
		return fmt.Errorf("no training in progress: %w", ErrTraining)
	}
	if a.trainingID != id {
		return fmt.Errorf("stop training of inactive id %d: %w", id, ErrTraining)
	}
	a.trainingID = IDPredict
	a.predictor.log.Info("training stopped: ", id)
	return nil
}

// TrainingID returns the label that is trained now or IDPredict.
func (a *Aggregator) TrainingID() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.trainingID
}

// ClearTrainingData removes all training data of the predictor.
func (a *Aggregator) ClearTrainingData() {
	a.predictor.ClearTrainingData()
}

// Process implements pipe.Processor. Only events of predictor band types
// are used, other items are dropped.
func (a *Aggregator) Process(_ context.Context, item pipe.Item, emit pipe.EmitFunc) (bool, error) {
	e, ok := item.(bci.Event)
	if !ok {
		return true, nil
	}
	i, ok := a.index[e.Type]
	if !ok {
		return true, nil
	}
	if !e.Timestamp.Equal(a.current) {
		if err := a.flush(emit); err != nil {
			return false, err
		}
		a.current = e.Timestamp
	}
	a.buffer[i] = e
	a.filled[i] = true
	return true, nil
}

// flush passes complete buffer to the predictor and resets it.
func (a *Aggregator) flush(emit pipe.EmitFunc) error {
	for _, f := range a.filled {
		if !f {
			return nil
		}
	}
	events := a.buffer
	a.buffer = make([]bci.Event, len(a.buffer))
	for i := range a.filled {
		a.filled[i] = false
	}

	id := a.TrainingID()
	if id != IDPredict {
		a.predictor.AddTrainingData(id, events)
		return nil
	}
	prediction := a.predictor.Predict(events)
	if prediction == NoPrediction {
		return nil
	}
	a.predictor.log.Debug("predicted: ", prediction)
	a.meter.Inc(metric.PredictionCounter)
	return emit(bci.NewTrainedEvent(prediction))
}
