// Package session wires a device adapter and an assembled pipeline
// together. It's the entry point for applications: raw and trained
// events are delivered to registered handlers and training of
// predictors is controlled through the session.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"pipelined.dev/bci"
	"pipelined.dev/bci/assembly"
	"pipelined.dev/bci/device"
	"pipelined.dev/bci/log"
	"pipelined.dev/bci/pipe"
)

// Scope keys reserved for session values. User scope keys must not start
// with ReservedPrefix.
const (
	ReservedPrefix  = "BCI"
	ScopeAdapter    = ReservedPrefix + "Adapter"
	ScopeInstance   = ReservedPrefix + "Instance"
	ScopeChannels   = ReservedPrefix + "Channels"
	ScopeSampleRate = ReservedPrefix + "SampleRate"
)

var (
	// ErrInvalidConfig is returned when session can't be created with
	// provided config.
	ErrInvalidConfig = errors.New("invalid session config")
	// ErrInvalidID is returned for non-positive training ids.
	ErrInvalidID = errors.New("invalid training id")
	// ErrNoPredictor is returned when training is controlled, but the
	// pipeline has no predictors.
	ErrNoPredictor = errors.New("pipeline has no predictor")
	// ErrNilHandler is returned when nil handler is added.
	ErrNilHandler = errors.New("nil handler")
)

type (
	// RawHandler receives raw events.
	RawHandler func(bci.Event)
	// TrainedHandler receives trained events.
	TrainedHandler func(bci.TrainedEvent)

	// Trainer is a stage processor that can be trained.
	Trainer interface {
		StartTraining(id int) error
		StopTraining(id int) error
		ClearTrainingData()
	}
)

// Config of the session.
type Config struct {
	// Adapter provides EEG and contact quality events.
	Adapter device.Adapter
	// Definition of the pipeline. Default definition is used if nil.
	Definition *assembly.Definition
	// Registry of stage types. Default registry is used if nil.
	Registry *assembly.Registry
	// Scope is added to the build scope.
	Scope assembly.Scope
}

// Session runs the pipeline of a single device.
type Session struct {
	adapter    device.Adapter
	channels   int
	sampleRate float64
	graph      *assembly.Graph
	pipeline   *pipe.Pipeline
	trainers   []Trainer
	capacity   int

	removeStatus func()
	status       []float64

	mu         sync.RWMutex
	raw        map[bci.DataType][]*RawHandler
	trained    map[int][]*TrainedHandler
	trainedIDs []int

	closeOnce sync.Once
	closeErr  error

	log log.Logger
}

// Option configures the session.
type Option func(*Session)

// WithLogger sets logger of the session and all its stages.
func WithLogger(l log.Logger) Option {
	return func(s *Session) {
		s.log = log.OrSilent(l)
	}
}

// WithCapacity sets capacity of pipeline connections.
func WithCapacity(capacity int) Option {
	return func(s *Session) {
		s.capacity = capacity
	}
}

// New builds and starts the pipeline. The pipeline runs until ctx is
// done or Close is called.
func New(ctx context.Context, c Config, options ...Option) (*Session, error) {
	if c.Adapter == nil {
		return nil, fmt.Errorf("adapter is required: %w", ErrInvalidConfig)
	}
	if c.Adapter.Channels() <= 0 {
		return nil, fmt.Errorf("adapter channels must be positive: %w", ErrInvalidConfig)
	}
	scope := make(assembly.Scope, len(c.Scope)+4)
	for k, v := range c.Scope {
		if strings.HasPrefix(k, ReservedPrefix) {
			return nil, fmt.Errorf("%s is a reserved scope key: %w", k, ErrInvalidConfig)
		}
		scope[k] = v
	}
	def := c.Definition
	if def == nil {
		def = assembly.Default()
	}
	registry := c.Registry
	if registry == nil {
		registry = assembly.DefaultRegistry()
	}

	s := &Session{
		adapter:    c.Adapter,
		channels:   c.Adapter.Channels(),
		sampleRate: c.Adapter.SampleRate(),
		capacity:   pipe.DefaultCapacity,
		raw:        make(map[bci.DataType][]*RawHandler),
		trained:    make(map[int][]*TrainedHandler),
		log:        log.Silent,
	}
	for _, option := range options {
		option(s)
	}
	s.status = make([]float64, s.channels)
	for i := range s.status {
		s.status[i] = device.QualityNone
	}

	scope[ScopeAdapter] = s.adapter
	scope[ScopeInstance] = s
	scope[ScopeChannels] = s.channels
	scope[ScopeSampleRate] = s.sampleRate
	g, err := assembly.Build(def, registry, scope,
		assembly.WithLogger(s.log),
		assembly.WithCapacity(s.capacity),
	)
	if err != nil {
		return nil, err
	}
	s.graph = g
	for _, k := range g.Keys() {
		st, _ := g.Stage(k)
		if t, ok := st.Processor().(Trainer); ok {
			s.trainers = append(s.trainers, t)
		}
	}
	if len(s.trainers) == 0 {
		s.log.Warn("pipeline has no predictors")
	}

	// contact quality is delivered when the device stage flushes events.
	s.removeStatus = s.adapter.AddHandler(bci.ContactQuality, s.updateStatus)
	s.pipeline = g.Pipeline(pipe.WithPipelineLogger(s.log))
	if err := s.pipeline.Start(ctx); err != nil {
		s.removeStatus()
		return nil, err
	}
	s.log.Info("session started with ", s.channels, " channels at ", s.sampleRate, " Hz")
	return s, nil
}

// Channels returns number of adapter channels.
func (s *Session) Channels() int {
	return s.channels
}

// SampleRate returns nominal sample rate of adapter.
func (s *Session) SampleRate() float64 {
	return s.sampleRate
}

// Graph returns stages of the session.
func (s *Session) Graph() *assembly.Graph {
	return s.graph
}

// StartTraining starts training of all predictors with label id. If any
// predictor fails to start, none of them is left in training.
func (s *Session) StartTraining(id int) error {
	if err := s.checkTraining(id); err != nil {
		return err
	}
	for i, t := range s.trainers {
		if err := t.StartTraining(id); err != nil {
			// started trainers are rolled back.
			for _, started := range s.trainers[:i] {
				if errStop := started.StopTraining(id); errStop != nil {
					s.log.Error("stop training ", id, ": ", errStop)
				}
			}
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, trained := range s.trainedIDs {
		if trained == id {
			return nil
		}
	}
	s.trainedIDs = append(s.trainedIDs, id)
	return nil
}

// StopTraining stops training of label id.
func (s *Session) StopTraining(id int) error {
	if err := s.checkTraining(id); err != nil {
		return err
	}
	for _, t := range s.trainers {
		if err := t.StopTraining(id); err != nil {
			return err
		}
	}
	return nil
}

// ClearTrainingData removes training data of all predictors.
func (s *Session) ClearTrainingData() error {
	if len(s.trainers) == 0 {
		return ErrNoPredictor
	}
	for _, t := range s.trainers {
		t.ClearTrainingData()
	}
	s.mu.Lock()
	s.trainedIDs = nil
	s.mu.Unlock()
	return nil
}

func (s *Session) checkTraining(id int) error {
	if id <= 0 {
		return fmt.Errorf("%d: %w", id, ErrInvalidID)
	}
	if len(s.trainers) == 0 {
		return ErrNoPredictor
	}
	return nil
}

// TrainedIDs returns ids trained since the last clear.
func (s *Session) TrainedIDs() []int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]int(nil), s.trainedIDs...)
}

// ConnectionStatus returns the last reported contact quality per
// channel: 1 is good, 2 is ok and 4 is no contact.
func (s *Session) ConnectionStatus() []float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]float64(nil), s.status...)
}

func (s *Session) updateStatus(e bci.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copy(s.status, e.Data)
}

// AddRawHandler adds handler for raw events of the type. Events are
// delivered only if the pipeline emits them. Returned func removes the
// handler.
func (s *Session) AddRawHandler(t bci.DataType, h RawHandler) (func(), error) {
	if h == nil {
		return nil, ErrNilHandler
	}
	ref := &h
	s.mu.Lock()
	s.raw[t] = append(s.raw[t], ref)
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.raw[t] = remove(s.raw[t], ref)
	}, nil
}

// AddTrainedHandler adds handler that is called when label id is
// predicted. It doesn't check if the id was trained.
func (s *Session) AddTrainedHandler(id int, h TrainedHandler) (func(), error) {
	if id <= 0 {
		return nil, fmt.Errorf("%d: %w", id, ErrInvalidID)
	}
	if h == nil {
		return nil, ErrNilHandler
	}
	ref := &h
	s.mu.Lock()
	s.trained[id] = append(s.trained[id], ref)
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.trained[id] = remove(s.trained[id], ref)
	}, nil
}

func remove[T any](hs []*T, ref *T) []*T {
	for i := range hs {
		if hs[i] == ref {
			return append(hs[:i:i], hs[i+1:]...)
		}
	}
	return hs
}

// EmitRawEvent passes the event to raw handlers.
func (s *Session) EmitRawEvent(e bci.Event) {
	s.mu.RLock()
	hs := s.raw[e.Type]
	s.mu.RUnlock()
	for _, h := range hs {
		s.call(func() { (*h)(e) })
	}
}

// EmitTrainedEvent passes the event to trained handlers.
func (s *Session) EmitTrainedEvent(e bci.TrainedEvent) {
	s.mu.RLock()
	hs := s.trained[e.ID]
	s.mu.RUnlock()
	for _, h := range hs {
		s.call(func() { (*h)(e) })
	}
}

// call runs handler and logs its panic.
func (s *Session) call(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("handler panic: ", r)
		}
	}()
	fn()
}

// Close stops the pipeline. Handlers may receive events until it
// returns.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.pipeline.Stop()
		s.removeStatus()
		s.log.Info("session closed")
	})
	return s.closeErr
}

// Wait blocks until the pipeline is done and returns its first error.
func (s *Session) Wait() error {
	return s.pipeline.Wait()
}

// Done is closed when the pipeline is cancelled.
func (s *Session) Done() <-chan struct{} {
	return s.pipeline.Done()
}

// Err returns the error that cancelled the pipeline.
func (s *Session) Err() error {
	return s.pipeline.Err()
}
