package pipe

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"pipelined.dev/bci/log"
)

// Pipeline runs a set of connected stages. The first failed stage
// cancels all others.
type Pipeline struct {
	stages []Pipeable
	log    log.Logger

	mu      sync.Mutex
	started bool
	ctx     context.Context
	cancel  context.CancelCauseFunc
	group   *errgroup.Group
}

// Option configures the pipeline.
type Option func(*Pipeline)

// WithPipelineLogger sets logger of the pipeline.
func WithPipelineLogger(l log.Logger) Option {
	return func(p *Pipeline) {
		p.log = log.OrSilent(l)
	}
}

// New returns pipeline of connected stages. Stages are stopped in the
// provided order.
func New(stages []Pipeable, options ...Option) *Pipeline {
	p := &Pipeline{
		stages: stages,
		log:    log.Silent,
	}
	for _, option := range options {
		option(p)
	}
	return p
}

// Start starts all stages. If any stage fails to start, already started
// stages are stopped.
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return fmt.Errorf("start pipeline: %w", ErrInvalidState)
	}
	p.started = true
	ctx, p.cancel = context.WithCancelCause(ctx)
	p.group, p.ctx = errgroup.WithContext(ctx)
	for i, s := range p.stages {
		if err := s.Start(p.ctx, p.group, p.cancel); err != nil {
			p.cancel(err)
			for j := i - 1; j >= 0; j-- {
				_ = p.stages[j].Stop()
			}
			return err
		}
	}
	p.log.Info("pipeline started with ", len(p.stages), " stages")
	return nil
}

// Stop stops all stages in order and waits for their workers. It returns
// stop errors of all stages.
func (p *Pipeline) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		return fmt.Errorf("stop pipeline: %w", ErrInvalidState)
	}
	var errs stopErrors
	for _, s := range p.stages {
		if err := s.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	p.cancel(nil)
	p.log.Info("pipeline stopped")
	return errs.ret()
}

// Wait blocks until all stage workers exit and returns the first worker
// error.
func (p *Pipeline) Wait() error {
	p.mu.Lock()
	g := p.group
	p.mu.Unlock()
	if g == nil {
		return fmt.Errorf("wait pipeline: %w", ErrInvalidState)
	}
	return g.Wait()
}

// Done is closed when the pipeline is cancelled.
func (p *Pipeline) Done() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ctx == nil {
		return nil
	}
	return p.ctx.Done()
}

// Err returns the error that cancelled the pipeline. It's nil if the
// pipeline is running or was stopped deliberately.
func (p *Pipeline) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ctx == nil {
		return nil
	}
	err := context.Cause(p.ctx)
	if err == context.Canceled {
		return nil
	}
	return err
}
