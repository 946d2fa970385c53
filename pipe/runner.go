package pipe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"pipelined.dev/bci/metric"
)

// run is the worker loop of the stage. Stages without inputs are
// sources, the processor is called with nil items until it returns
// false. Other stages process items until all inputs are closed.
func (s *Stage) run(ctx context.Context, inputs []*Channel) (err error) {
	defer close(s.done)
	// outputs are closed on any exit so shutdown propagates downstream.
	defer s.closeOutputs()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		err = s.fail(err)
		s.err = err
	}()

	emit := func(item Item) error {
		return s.emit(ctx, item)
	}
	if len(inputs) == 0 {
		s.log.Debug("started as source")
		for ctx.Err() == nil {
			start := time.Now()
			ok, err := s.processor.Process(ctx, nil, emit)
			if err != nil || !ok {
				return err
			}
			s.meter.Processed(start)
		}
		return nil
	}

	s.log.Debug("started with ", len(inputs), " inputs")
	r := newReceiver(inputs)
	for {
		item, err := r.take(ctx)
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		start := time.Now()
		ok, err := s.processor.Process(ctx, item, emit)
		if err != nil || !ok {
			return err
		}
		s.meter.Processed(start)
	}
}

// fail classifies the worker error. Cancellation and closed outputs mean
// the stage was stopped deliberately. Any other error is logged and
// cancels the whole pipeline.
func (s *Stage) fail(err error) error {
	if err == nil ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, ErrClosed) {
		s.log.Debug("exited")
		return nil
	}
	err = &ErrorStage{
		Stage:   s.String(),
		ErrExec: err,
	}
	s.log.Error(err)
	s.meter.Inc(metric.FailureCounter)
	s.cancelCause(err)
	return err
}

func (s *Stage) emit(ctx context.Context, item Item) error {
	for _, o := range s.outputs {
		if err := o.Put(ctx, item); err != nil {
			return err
		}
	}
	s.meter.Inc(metric.EmitCounter)
	return nil
}
