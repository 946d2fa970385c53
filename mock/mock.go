// Package mock provides mocks for pipeline stages and allows to execute
// integration tests.
package mock

import (
	"context"
	"sync"
	"time"

	"pipelined.dev/bci/pipe"
)

// Source mocks a source processor. It emits Items if they are set,
// otherwise it emits Limit float64 values. Every emitted value is
// increased by one.
type Source struct {
	counter
	Interval    time.Duration
	Limit       int
	Value       float64
	Items       []pipe.Item
	ErrorOnCall error
	Hooks
}

// Process implements pipe.Processor.
func (m *Source) Process(ctx context.Context, _ pipe.Item, emit pipe.EmitFunc) (bool, error) {
	if m.ErrorOnCall != nil {
		return false, m.ErrorOnCall
	}
	n := m.count()
	var item pipe.Item
	switch {
	case m.Items != nil:
		if n >= len(m.Items) {
			return false, nil
		}
		item = m.Items[n]
	case n >= m.Limit:
		return false, nil
	default:
		item = m.Value + float64(n)
	}
	if m.Interval > 0 {
		t := time.NewTimer(m.Interval)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return false, ctx.Err()
		}
	}
	if err := emit(item); err != nil {
		return false, err
	}
	m.advance()
	return true, nil
}

// Processor mocks a pass-through processor.
type Processor struct {
	counter
	// ErrorOnCall is returned on call with index ErrorAfter.
	ErrorOnCall error
	ErrorAfter  int
	// PanicOnCall causes a panic on the first call.
	PanicOnCall interface{}
	Hooks
}

// Process implements pipe.Processor.
func (m *Processor) Process(_ context.Context, item pipe.Item, emit pipe.EmitFunc) (bool, error) {
	if m.PanicOnCall != nil {
		panic(m.PanicOnCall)
	}
	if m.ErrorOnCall != nil && m.count() >= m.ErrorAfter {
		return false, m.ErrorOnCall
	}
	if err := emit(item); err != nil {
		return false, err
	}
	m.advance()
	return true, nil
}

// Sink collects all received items. It is safe to read items while
// pipeline is running.
type Sink struct {
	counter
	mu          sync.Mutex
	items       []pipe.Item
	Discard     bool
	Delay       time.Duration
	ErrorOnCall error
	Hooks
}

// Process implements pipe.Processor.
func (m *Sink) Process(ctx context.Context, item pipe.Item, _ pipe.EmitFunc) (bool, error) {
	if m.ErrorOnCall != nil {
		return false, m.ErrorOnCall
	}
	if m.Delay > 0 {
		time.Sleep(m.Delay)
	}
	if !m.Discard {
		m.mu.Lock()
		m.items = append(m.items, item)
		m.mu.Unlock()
	}
	m.advance()
	return true, nil
}

// Items returns copy of received items.
func (m *Sink) Items() []pipe.Item {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]pipe.Item(nil), m.items...)
}

// Hooks allows to mock stage hooks. Embedding types implement
// pipe.Starter and pipe.Stopper.
type Hooks struct {
	mu      sync.Mutex
	started bool
	stopped bool

	ErrorOnStart error
	ErrorOnStop  error
}

// Start implements pipe.Starter.
func (h *Hooks) Start(context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.started = true
	return h.ErrorOnStart
}

// Stop implements pipe.Stopper.
func (h *Hooks) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stopped = true
	return h.ErrorOnStop
}

// Started reports if start hook was called.
func (h *Hooks) Started() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.started
}

// Stopped reports if stop hook was called.
func (h *Hooks) Stopped() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stopped
}

// counter counts processed items.
type counter struct {
	mu    sync.Mutex
	items int
}

func (c *counter) advance() {
	c.mu.Lock()
	c.items++
	c.mu.Unlock()
}

func (c *counter) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.items
}

// Count returns number of processed items.
func (c *counter) Count() int {
	return c.count()
}
