package assembly

import (
	"fmt"

	"pipelined.dev/bci"
	"pipelined.dev/bci/artifact"
	"pipelined.dev/bci/device"
	"pipelined.dev/bci/log"
	"pipelined.dev/bci/pipe"
	"pipelined.dev/bci/predict"
	"pipelined.dev/bci/sink"
)

// Stage types of the default registry.
const (
	TypeDevice         = "device"
	TypeTournament     = "tournament"
	TypePredictor      = "predictor"
	TypeRawEmitter     = "raw-emitter"
	TypeTrainedEmitter = "trained-emitter"
)

type (
	// RawEmitter receives events of raw-emitter stages.
	RawEmitter interface {
		EmitRawEvent(bci.Event)
	}

	// TrainedEmitter receives events of trained-emitter stages.
	TrainedEmitter interface {
		EmitTrainedEvent(bci.TrainedEvent)
	}
)

// DefaultRegistry returns registry with all stage types of the module:
//
//	device:          adapter, emitted types
//	tournament:      channels, sample rate, learning time, size, accepted, initial merits
//	predictor:       channels, k, threshold, band types
//	raw-emitter:     raw emitter
//	trained-emitter: trained emitter
func DefaultRegistry() *Registry {
	r := NewRegistry()
	mustRegister(r, TypeDevice, Schema{Any, Strings}, newDevice)
	mustRegister(r, TypeTournament, Schema{Int, Float, Float, Uint, Uint, Int}, newTournament)
	mustRegister(r, TypePredictor, Schema{Int, Int, Float, Strings}, newPredictor)
	mustRegister(r, TypeRawEmitter, Schema{Any}, newRawEmitter)
	mustRegister(r, TypeTrainedEmitter, Schema{Any}, newTrainedEmitter)
	return r
}

func mustRegister(r *Registry, name string, schema Schema, f Factory) {
	if err := r.Register(name, schema, f); err != nil {
		panic(err)
	}
}

func newDevice(args []interface{}, l log.Logger) (pipe.Processor, error) {
	a, ok := args[0].(device.Adapter)
	if !ok {
		return nil, fmt.Errorf("%T is not a device adapter: %w", args[0], ErrInvalidDefinition)
	}
	types, err := parseTypes(args[1].([]string))
	if err != nil {
		return nil, err
	}
	return device.NewProducer(a, device.WithTypes(types...), device.WithProducerLogger(l)), nil
}

func parseTypes(names []string) ([]bci.DataType, error) {
	types := make([]bci.DataType, 0, len(names))
	for _, name := range names {
		t, err := bci.ParseDataType(name)
		if err != nil {
			return nil, fmt.Errorf("%v: %w", err, ErrInvalidDefinition)
		}
		types = append(types, t)
	}
	return types, nil
}

func newTournament(args []interface{}, l log.Logger) (pipe.Processor, error) {
	return artifact.NewFilter(
		args[0].(int),
		args[1].(float64),
		args[2].(float64),
		int(args[3].(uint)),
		int(args[4].(uint)),
		args[5].(int),
		artifact.WithLogger(l),
	)
}

func newPredictor(args []interface{}, l log.Logger) (pipe.Processor, error) {
	types, err := parseTypes(args[3].([]string))
	if err != nil {
		return nil, err
	}
	return predict.NewAggregator(args[0].(int), args[1].(int), args[2].(float64), types, predict.WithLogger(l))
}

func newRawEmitter(args []interface{}, _ log.Logger) (pipe.Processor, error) {
	e, ok := args[0].(RawEmitter)
	if !ok {
		return nil, fmt.Errorf("%T is not a raw emitter: %w", args[0], ErrInvalidDefinition)
	}
	return sink.NewRaw(e.EmitRawEvent), nil
}

func newTrainedEmitter(args []interface{}, _ log.Logger) (pipe.Processor, error) {
	e, ok := args[0].(TrainedEmitter)
	if !ok {
		return nil, fmt.Errorf("%T is not a trained emitter: %w", args[0], ErrInvalidDefinition)
	}
	return sink.NewTrained(e.EmitTrainedEvent), nil
}

// Graph is a set of connected idle stages.
type Graph struct {
	keys   []string
	stages map[string]*pipe.Stage
}

// Stages returns stages in definition order.
func (g *Graph) Stages() []pipe.Pipeable {
	stages := make([]pipe.Pipeable, 0, len(g.keys))
	for _, k := range g.keys {
		stages = append(stages, g.stages[k])
	}
	return stages
}

// Stage returns the stage with key.
func (g *Graph) Stage(key string) (*pipe.Stage, bool) {
	s, ok := g.stages[key]
	return s, ok
}

// Keys returns stage keys in definition order.
func (g *Graph) Keys() []string {
	return append([]string(nil), g.keys...)
}

// Pipeline returns the pipeline of graph stages.
func (g *Graph) Pipeline(options ...pipe.Option) *pipe.Pipeline {
	return pipe.New(g.Stages(), options...)
}

type config struct {
	logger   log.Logger
	capacity int
}

// Option configures the build.
type Option func(*config)

// WithLogger sets logger of all stages and processors.
func WithLogger(l log.Logger) Option {
	return func(c *config) {
		c.logger = log.OrSilent(l)
	}
}

// WithCapacity sets capacity of connections.
func WithCapacity(capacity int) Option {
	return func(c *config) {
		c.capacity = capacity
	}
}

// Build creates stages of definition with factories from the registry
// and connects them.
func Build(d *Definition, r *Registry, scope Scope, options ...Option) (*Graph, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	c := config{
		logger:   log.Silent,
		capacity: pipe.DefaultCapacity,
	}
	for _, option := range options {
		option(&c)
	}

	g := &Graph{
		keys:   make([]string, 0, len(d.Stages)),
		stages: make(map[string]*pipe.Stage, len(d.Stages)),
	}
	for _, sd := range d.Stages {
		p, err := r.New(sd, scope, c.logger)
		if err != nil {
			return nil, err
		}
		g.keys = append(g.keys, sd.Key)
		g.stages[sd.Key] = pipe.NewStage(sd.Key, p,
			pipe.WithLogger(c.logger),
			pipe.WithCapacity(c.capacity),
		)
	}
	for _, conn := range d.Connections {
		s := g.stages[conn.Key]
		for _, out := range conn.Outputs {
			c.logger.Debug("connecting ", conn.Key, " to ", out, " mirror: ", conn.Mirror)
			if err := s.Connect(g.stages[out], conn.Mirror); err != nil {
				return nil, fmt.Errorf("connect %q to %q: %w", conn.Key, out, err)
			}
		}
	}
	return g, nil
}
