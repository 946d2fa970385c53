// Package sink provides terminal stages that pass pipeline items to
// callbacks.
package sink

import (
	"context"
	"errors"
	"fmt"

	"pipelined.dev/bci"
	"pipelined.dev/bci/metric"
	"pipelined.dev/bci/pipe"
)

// ErrUnexpectedItem is returned when emitter receives item of wrong type.
var ErrUnexpectedItem = errors.New("unexpected item")

// Raw passes received events to the callback.
type Raw struct {
	fn    func(bci.Event)
	meter *metric.Measure
}

// NewRaw returns raw events emitter.
func NewRaw(fn func(bci.Event)) *Raw {
	r := &Raw{fn: fn}
	r.meter = metric.Meter(r)
	return r
}

// Process implements pipe.Processor.
func (r *Raw) Process(_ context.Context, item pipe.Item, _ pipe.EmitFunc) (bool, error) {
	e, ok := item.(bci.Event)
	if !ok {
		return false, fmt.Errorf("raw emitter received %T: %w", item, ErrUnexpectedItem)
	}
	r.fn(e)
	r.meter.Inc(metric.EmitCounter)
	return true, nil
}

// Trained passes received trained events to the callback.
type Trained struct {
	fn    func(bci.TrainedEvent)
	meter *metric.Measure
}

// NewTrained returns trained events emitter.
func NewTrained(fn func(bci.TrainedEvent)) *Trained {
	t := &Trained{fn: fn}
	t.meter = metric.Meter(t)
	return t
}

// Process implements pipe.Processor.
func (t *Trained) Process(_ context.Context, item pipe.Item, _ pipe.EmitFunc) (bool, error) {
	e, ok := item.(bci.TrainedEvent)
	if !ok {
		return false, fmt.Errorf("trained emitter received %T: %w", item, ErrUnexpectedItem)
	}
	t.fn(e)
	t.meter.Inc(metric.EmitCounter)
	return true, nil
}
