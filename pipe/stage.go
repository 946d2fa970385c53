package pipe

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/xid"

	"pipelined.dev/bci/log"
	"pipelined.dev/bci/metric"
)

// DefaultStopTimeout is how long Stop waits for the worker to exit.
const DefaultStopTimeout = 5 * time.Second

type (
	// EmitFunc writes the item into all outputs of the stage.
	EmitFunc func(Item) error

	// Processor is the logic of a stage. For source stages item is nil.
	// Returning false stops the stage without error.
	Processor interface {
		Process(ctx context.Context, item Item, emit EmitFunc) (bool, error)
	}

	// ProcessorFunc is an adapter to use functions as processors.
	ProcessorFunc func(ctx context.Context, item Item, emit EmitFunc) (bool, error)

	// Starter is a processor that must be started before the first item.
	Starter interface {
		Start(ctx context.Context) error
	}

	// Stopper is a processor that must be stopped when the stage stops.
	Stopper interface {
		Stop() error
	}

	// Scheduler launches stage workers. errgroup.Group satisfies it.
	Scheduler interface {
		Go(func() error)
	}

	// Pipeable is a node of the pipeline graph.
	Pipeable interface {
		ID() string
		SetInput(*Channel) error
		Connect(other Pipeable, mirror bool) error
		Start(ctx context.Context, s Scheduler, cancel context.CancelCauseFunc) error
		Stop() error
	}
)

// Process calls fn.
func (fn ProcessorFunc) Process(ctx context.Context, item Item, emit EmitFunc) (bool, error) {
	return fn(ctx, item, emit)
}

// Stage runs a processor in its own goroutine. It takes items from all
// inputs and emits them to all outputs.
type Stage struct {
	id          string
	name        string
	processor   Processor
	log         log.Logger
	meter       *metric.Measure
	capacity    int
	stopTimeout time.Duration

	mu      sync.Mutex
	state   state
	inputs  []*Channel
	outputs []*Channel
	// output reused by all non-mirrored connections.
	shared *Channel

	cancel      context.CancelFunc
	cancelCause context.CancelCauseFunc
	done        chan struct{}
	err         error
}

// StageOption configures the stage.
type StageOption func(*Stage)

// WithLogger sets logger of the stage.
func WithLogger(l log.Logger) StageOption {
	return func(s *Stage) {
		s.log = log.OrSilent(l)
	}
}

// WithCapacity sets capacity of output channels created by Connect.
func WithCapacity(capacity int) StageOption {
	return func(s *Stage) {
		s.capacity = capacity
	}
}

// WithStopTimeout sets how long Stop waits for the worker.
func WithStopTimeout(d time.Duration) StageOption {
	return func(s *Stage) {
		s.stopTimeout = d
	}
}

// NewStage returns idle stage that runs the processor.
func NewStage(name string, p Processor, options ...StageOption) *Stage {
	s := &Stage{
		id:          xid.New().String(),
		name:        name,
		processor:   p,
		log:         log.Silent,
		capacity:    DefaultCapacity,
		stopTimeout: DefaultStopTimeout,
	}
	for _, option := range options {
		option(s)
	}
	s.log = log.Stage(s.log, name, s.id)
	s.meter = metric.Meter(p)
	return s
}

// ID returns unique id of the stage.
func (s *Stage) ID() string {
	return s.id
}

// Name returns name of the stage.
func (s *Stage) Name() string {
	return s.name
}

// Processor returns the processor executed by the stage.
func (s *Stage) Processor() Processor {
	return s.processor
}

func (s *Stage) String() string {
	return fmt.Sprintf("%s %s", s.name, s.id)
}

// SetInput adds the input channel. Inputs can only be added to idle
// stage.
func (s *Stage) SetInput(c *Channel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != idle {
		return fmt.Errorf("set input of %v in %v state: %w", s, s.state, ErrInvalidState)
	}
	s.inputs = append(s.inputs, c)
	return nil
}

// Connect makes other stage consume outputs of this stage. If mirror is
// true, other stage gets its own channel with all emitted items.
// Otherwise it shares the single output channel with all other
// non-mirrored consumers, each item is received by one of them.
func (s *Stage) Connect(other Pipeable, mirror bool) error {
	if o, ok := other.(*Stage); ok && o == s {
		return fmt.Errorf("connect %v to itself: %w", s, ErrInvalidState)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != idle {
		return fmt.Errorf("connect %v in %v state: %w", s, s.state, ErrInvalidState)
	}
	var c *Channel
	if mirror {
		c = s.newOutput()
	} else {
		if len(s.outputs) > 0 {
			s.log.Warn("possible race condition: ", other.ID(), " is leeching from ", s)
		}
		if s.shared == nil {
			s.shared = s.newOutput()
		}
		c = s.shared
	}
	if err := other.SetInput(c); err != nil {
		return err
	}
	s.outputs = appendOutput(s.outputs, c)
	return nil
}

func (s *Stage) newOutput() *Channel {
	return NewChannel(s.capacity,
		WithChannelName(s.String()),
		WithChannelLogger(s.log),
		WithChannelMeter(s.meter),
	)
}

func appendOutput(outputs []*Channel, c *Channel) []*Channel {
	for _, o := range outputs {
		if o == c {
			return outputs
		}
	}
	return append(outputs, c)
}

// Start launches the worker of the stage. Cancel is called with the
// error if the worker fails.
func (s *Stage) Start(ctx context.Context, sched Scheduler, cancel context.CancelCauseFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != idle {
		return fmt.Errorf("start %v in %v state: %w", s, s.state, ErrInvalidState)
	}
	ctx, s.cancel = context.WithCancel(ctx)
	if cancel == nil {
		cancel = func(error) {}
	}
	s.cancelCause = cancel
	s.done = make(chan struct{})

	if starter, ok := s.processor.(Starter); ok {
		if err := starter.Start(ctx); err != nil {
			s.cancel()
			s.state = stopped
			close(s.done)
			s.closeOutputs()
			return fmt.Errorf("error starting %v: %w", s, err)
		}
	}
	s.state = running
	inputs := s.inputs
	sched.Go(func() error {
		return s.run(ctx, inputs)
	})
	return nil
}

// Stop cancels the stage, closes its outputs and waits for the worker to
// exit. If worker doesn't exit in time, the pipeline is cancelled with
// ErrStopTimeout.
func (s *Stage) Stop() error {
	s.mu.Lock()
	switch s.state {
	case idle:
		s.state = stopped
		s.mu.Unlock()
		s.closeOutputs()
		return nil
	case stopped:
		s.mu.Unlock()
		return fmt.Errorf("stop %v: %w", s, ErrInvalidState)
	}
	s.state = stopped
	s.mu.Unlock()

	s.cancel()
	s.closeOutputs()
	errStop := s.stopHook()

	timer := time.NewTimer(s.stopTimeout)
	defer timer.Stop()
	select {
	case <-s.done:
	case <-timer.C:
		err := &ErrorStage{
			Stage:   s.String(),
			ErrExec: fmt.Errorf("worker didn't exit in %v: %w", s.stopTimeout, ErrStopTimeout),
			ErrStop: errStop,
		}
		s.log.Error(err)
		s.meter.Inc(metric.FailureCounter)
		s.cancelCause(err)
		return err
	}
	if errStop == nil {
		return s.err
	}
	return &ErrorStage{
		Stage:   s.String(),
		ErrExec: s.err,
		ErrStop: errStop,
	}
}

func (s *Stage) stopHook() error {
	if stopper, ok := s.processor.(Stopper); ok {
		return stopper.Stop()
	}
	return nil
}

func (s *Stage) closeOutputs() {
	for _, o := range s.outputs {
		o.Close()
	}
}
