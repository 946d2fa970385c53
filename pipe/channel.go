package pipe

import (
	"context"
	"io"
	"reflect"
	"sync"

	"pipelined.dev/bci/log"
	"pipelined.dev/bci/metric"
)

// DefaultCapacity is the capacity of channels created with non-positive
// capacity.
const DefaultCapacity = 1000

// Item is a value carried through the pipeline. The engine never
// inspects items.
type Item interface{}

// Channel is a bounded FIFO connection between stages. Producers block
// while the channel is full. Channel can be closed by its producer while
// other producers are blocked on Put.
type Channel struct {
	name    string
	items   chan Item
	closing chan struct{}
	once    sync.Once
	// Put holds read lock, close of items channel requires write lock.
	mu    sync.RWMutex
	log   log.Logger
	meter *metric.Measure
}

// ChannelOption configures the channel.
type ChannelOption func(*Channel)

// WithChannelName sets name that is used in log messages.
func WithChannelName(name string) ChannelOption {
	return func(c *Channel) {
		c.name = name
	}
}

// WithChannelLogger sets logger for bottleneck warnings.
func WithChannelLogger(l log.Logger) ChannelOption {
	return func(c *Channel) {
		c.log = log.OrSilent(l)
	}
}

// WithChannelMeter sets the measure where bottlenecks are counted.
func WithChannelMeter(m *metric.Measure) ChannelOption {
	return func(c *Channel) {
		c.meter = m
	}
}

// NewChannel returns new channel with provided capacity.
func NewChannel(capacity int, options ...ChannelOption) *Channel {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	c := &Channel{
		name:    "channel",
		items:   make(chan Item, capacity),
		closing: make(chan struct{}),
		log:     log.Silent,
	}
	for _, option := range options {
		option(c)
	}
	return c
}

// Put appends the item to the channel. It blocks while the channel is
// full. ErrClosed is returned if channel was closed and ctx error is
// returned if ctx is done.
func (c *Channel) Put(ctx context.Context, item Item) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	select {
	case <-c.closing:
		return ErrClosed
	default:
	}
	if len(c.items) == cap(c.items) {
		c.log.Warn(c.name, " is bottlenecked, capacity: ", cap(c.items))
		c.meter.Inc(metric.BottleneckCounter)
	}
	select {
	case c.items <- item:
		return nil
	case <-c.closing:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Take returns the next item. io.EOF is returned when the channel is
// closed and drained.
func (c *Channel) Take(ctx context.Context) (Item, error) {
	select {
	case item, ok := <-c.items:
		if !ok {
			return nil, io.EOF
		}
		return item, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close marks that no more items will be put into the channel. Items
// that are already in the channel can still be taken. Close is
// idempotent.
func (c *Channel) Close() {
	c.once.Do(func() {
		close(c.closing)
		c.mu.Lock()
		close(c.items)
		c.mu.Unlock()
	})
}

// Len returns number of items in the channel.
func (c *Channel) Len() int {
	return len(c.items)
}

// Cap returns capacity of the channel.
func (c *Channel) Cap() int {
	return cap(c.items)
}

func (c *Channel) String() string {
	return c.name
}

// TakeAny returns an item from any of the channels. There is no order
// guarantee between channels. io.EOF is returned when all channels are
// closed and drained.
func TakeAny(ctx context.Context, channels ...*Channel) (Item, error) {
	return newReceiver(channels).take(ctx)
}

// receiver selects over dynamic set of channels. Closed channels are
// excluded from subsequent selects.
type receiver struct {
	single *Channel
	cases  []reflect.SelectCase
	open   int
}

func newReceiver(channels []*Channel) *receiver {
	if len(channels) == 1 {
		return &receiver{
			single: channels[0],
			open:   1,
		}
	}
	// first case is reserved for context.
	cases := make([]reflect.SelectCase, 0, len(channels)+1)
	cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv})
	for _, c := range channels {
		cases = append(cases, reflect.SelectCase{
			Dir:  reflect.SelectRecv,
			Chan: reflect.ValueOf(c.items),
		})
	}
	return &receiver{
		cases: cases,
		open:  len(channels),
	}
}

func (r *receiver) take(ctx context.Context) (Item, error) {
	if r.open == 0 {
		return nil, io.EOF
	}
	if r.single != nil {
		item, err := r.single.Take(ctx)
		if err == io.EOF {
			r.open = 0
		}
		return item, err
	}

	r.cases[0].Chan = reflect.ValueOf(ctx.Done())
	for r.open > 0 {
		chosen, v, ok := reflect.Select(r.cases)
		if chosen == 0 {
			return nil, ctx.Err()
		}
		if !ok {
			// zero value case is ignored by select.
			r.cases[chosen].Chan = reflect.Value{}
			r.open--
			continue
		}
		if !v.IsValid() || (v.Kind() == reflect.Interface && v.IsNil()) {
			return nil, nil
		}
		return v.Interface(), nil
	}
	return nil, io.EOF
}
