// Package device connects EEG hardware to the pipeline. Adapters queue
// events received from the device and flush them to registered handlers
// on demand, Producer is the source stage that drives the flushing.
package device

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"pipelined.dev/bci"
	"pipelined.dev/bci/log"
)

var (
	// ErrInvalidParameters is returned when adapter is constructed with
	// invalid parameters.
	ErrInvalidParameters = errors.New("invalid parameters")
	// ErrStarted is returned when adapter is started twice.
	ErrStarted = errors.New("adapter already started")
)

type (
	// Handler receives events flushed by adapter.
	Handler func(bci.Event)

	// Adapter is a source of EEG events. Events are queued by the
	// adapter until FlushEvents is called, then passed to handlers of
	// their type in the order they were received.
	Adapter interface {
		Channels() int
		SampleRate() float64
		Start(context.Context) error
		Stop() error
		AddHandler(bci.DataType, Handler) (remove func())
		FlushEvents()
		Ready() <-chan struct{}
	}
)

// Queue is the thread-safe event queue and handler table of adapter.
// Adapters embed it and call Emit for every event received from the
// device.
type Queue struct {
	channels   int
	sampleRate float64

	mu     sync.Mutex
	events []bci.Event
	ready  chan struct{}

	// flushing serializes flushes to keep the order of events.
	flushing sync.Mutex
	hmu      sync.RWMutex
	handlers map[bci.DataType][]*Handler

	log log.Logger
}

// NewQueue returns queue of adapter with provided number of channels
// and nominal sample rate.
func NewQueue(channels int, sampleRate float64, l log.Logger) (*Queue, error) {
	if channels <= 0 || sampleRate <= 0 {
		return nil, fmt.Errorf("adapter channels: %d sample rate: %v: %w", channels, sampleRate, ErrInvalidParameters)
	}
	return &Queue{
		channels:   channels,
		sampleRate: sampleRate,
		ready:      make(chan struct{}, 1),
		handlers:   make(map[bci.DataType][]*Handler),
		log:        log.OrSilent(l),
	}, nil
}

// Channels returns number of EEG channels.
func (q *Queue) Channels() int {
	return q.channels
}

// SampleRate returns nominal rate of EEG events per second.
func (q *Queue) SampleRate() float64 {
	return q.sampleRate
}

// Ready returns a channel that receives a value when new events are
// queued.
func (q *Queue) Ready() <-chan struct{} {
	return q.ready
}

// AddHandler registers handler for events of the type. Returned func
// removes the handler, it's safe to call it more than once.
func (q *Queue) AddHandler(t bci.DataType, h Handler) func() {
	q.log.Debug("add handler: ", t)
	ref := &h
	q.hmu.Lock()
	q.handlers[t] = append(q.handlers[t], ref)
	q.hmu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			q.hmu.Lock()
			defer q.hmu.Unlock()
			hs := q.handlers[t]
			for i := range hs {
				if hs[i] == ref {
					q.handlers[t] = append(hs[:i:i], hs[i+1:]...)
					return
				}
			}
		})
	}
}

// Emit queues the event and signals readiness.
func (q *Queue) Emit(e bci.Event) {
	q.mu.Lock()
	q.events = append(q.events, e)
	q.mu.Unlock()
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// Len returns the number of queued events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// FlushEvents removes all queued events and passes them to handlers.
func (q *Queue) FlushEvents() {
	q.flushing.Lock()
	defer q.flushing.Unlock()
	q.mu.Lock()
	events := q.events
	q.events = nil
	q.mu.Unlock()

	for _, e := range events {
		q.hmu.RLock()
		hs := q.handlers[e.Type]
		q.hmu.RUnlock()
		for _, h := range hs {
			(*h)(e)
		}
	}
}
