package device

import (
	"context"
	"sync"

	"pipelined.dev/bci"
	"pipelined.dev/bci/log"
	"pipelined.dev/bci/pipe"
)

// Producer is the source processor that emits adapter events into the
// pipeline. The adapter is started and stopped together with the stage.
type Producer struct {
	adapter Adapter
	types   []bci.DataType

	mu      sync.Mutex
	pending []bci.Event
	removes []func()

	log log.Logger
}

// ProducerOption configures the producer.
type ProducerOption func(*Producer)

// WithTypes sets event types emitted by producer. Only EEG is emitted
// by default.
func WithTypes(types ...bci.DataType) ProducerOption {
	return func(p *Producer) {
		p.types = append([]bci.DataType(nil), types...)
	}
}

// WithProducerLogger sets logger of the producer.
func WithProducerLogger(l log.Logger) ProducerOption {
	return func(p *Producer) {
		p.log = log.OrSilent(l)
	}
}

// NewProducer returns producer of adapter events.
func NewProducer(a Adapter, options ...ProducerOption) *Producer {
	p := &Producer{
		adapter: a,
		types:   []bci.DataType{bci.EEG},
		log:     log.Silent,
	}
	for _, option := range options {
		option(p)
	}
	return p
}

// Adapter returns the adapter of producer.
func (p *Producer) Adapter() Adapter {
	return p.adapter
}

// Start registers handlers and starts the adapter.
func (p *Producer) Start(ctx context.Context) error {
	p.mu.Lock()
	for _, t := range p.types {
		p.removes = append(p.removes, p.adapter.AddHandler(t, p.add))
	}
	p.mu.Unlock()
	return p.adapter.Start(ctx)
}

// Stop stops the adapter and removes handlers.
func (p *Producer) Stop() error {
	err := p.adapter.Stop()
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, remove := range p.removes {
		remove()
	}
	p.removes = nil
	return err
}

func (p *Producer) add(e bci.Event) {
	p.mu.Lock()
	p.pending = append(p.pending, e)
	p.mu.Unlock()
}

// Process waits for the adapter to queue events, flushes them and emits
// the events of producer types.
func (p *Producer) Process(ctx context.Context, _ pipe.Item, emit pipe.EmitFunc) (bool, error) {
	select {
	case <-ctx.Done():
		return false, nil
	case <-p.adapter.Ready():
	}
	p.adapter.FlushEvents()

	p.mu.Lock()
	events := p.pending
	p.pending = nil
	p.mu.Unlock()
	for _, e := range events {
		if err := emit(e); err != nil {
			return false, err
		}
	}
	return true, nil
}
