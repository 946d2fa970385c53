package assembly_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"pipelined.dev/bci"
	"pipelined.dev/bci/assembly"
	"pipelined.dev/bci/device"
	"pipelined.dev/bci/log"
	"pipelined.dev/bci/mock"
	"pipelined.dev/bci/pipe"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const valid = `
stages:
  - key: source
    type: source
    args: [10]
  - key: sink
    type: sink
connections:
  - key: source
    outputs: [sink]
`

func TestDecode(t *testing.T) {
	d, err := assembly.Decode(strings.NewReader(valid))
	require.NoError(t, err)
	require.Len(t, d.Stages, 2)
	assert.Equal(t, "source", d.Stages[0].Key)
	assert.Equal(t, []interface{}{10}, d.Stages[0].Args)
	assert.Equal(t, []string{"sink"}, d.Connections[0].Outputs)
	assert.False(t, d.Connections[0].Mirror)

	// json is valid yaml.
	d, err = assembly.Decode(strings.NewReader(`{
		"stages": [{"key": "a", "type": "x", "args": [1.5, "s"]}, {"key": "b", "type": "y"}],
		"connections": [{"key": "a", "mirror": true, "outputs": ["b"]}]
	}`))
	require.NoError(t, err)
	assert.Equal(t, []interface{}{1.5, "s"}, d.Stages[0].Args)
	assert.True(t, d.Connections[0].Mirror)
}

func TestDecodeInvalid(t *testing.T) {
	tests := map[string]string{
		"no stages":    `connections: []`,
		"unknown":      "stages:\n  - {key: a, type: x, class: y}",
		"no key":       "stages:\n  - {type: x}",
		"no type":      "stages:\n  - {key: a}",
		"duplicate":    "stages:\n  - {key: a, type: x}\n  - {key: a, type: y}",
		"no outputs":   "stages:\n  - {key: a, type: x}\nconnections:\n  - {key: a}",
		"empty output": "stages:\n  - {key: a, type: x}\nconnections:\n  - {key: a, outputs: ['']}",
		"unknown key":  "stages:\n  - {key: a, type: x}\nconnections:\n  - {key: b, outputs: [a]}",
		"unknown out":  "stages:\n  - {key: a, type: x}\nconnections:\n  - {key: a, outputs: [b]}",
		"self":         "stages:\n  - {key: a, type: x}\nconnections:\n  - {key: a, outputs: [a]}",
		"dup conn": "stages:\n  - {key: a, type: x}\n  - {key: b, type: x}\n" +
			"connections:\n  - {key: a, outputs: [b]}\n  - {key: a, outputs: [b]}",
		"syntax": "stages: [",
	}
	for name, def := range tests {
		_, err := assembly.Decode(strings.NewReader(def))
		assert.ErrorIs(t, err, assembly.ErrInvalidDefinition, name)
	}
}

func TestRegistry(t *testing.T) {
	r := assembly.NewRegistry()
	var received []interface{}
	factory := func(args []interface{}, _ log.Logger) (pipe.Processor, error) {
		received = args
		return &mock.Processor{}, nil
	}
	require.NoError(t, r.Register("b", assembly.Schema{assembly.Int, assembly.Uint, assembly.Float, assembly.String, assembly.Strings, assembly.Any}, factory))
	require.NoError(t, r.Register("a", nil, factory))
	assert.Error(t, r.Register("a", nil, factory))
	assert.Error(t, r.Register("c", nil, nil))
	assert.Equal(t, []string{"a", "b"}, r.Types())
	schema, ok := r.Schema("b")
	assert.True(t, ok)
	assert.Len(t, schema, 6)
	_, ok = r.Schema("c")
	assert.False(t, ok)

	scope := assembly.Scope{"Channels": 4, "Value": struct{}{}}
	_, err := r.New(assembly.StageDefinition{
		Key:  "stage",
		Type: "b",
		Args: []interface{}{"Channels", 2.0, 3, "str", []interface{}{"x", "y"}, "Value"},
	}, scope, nil)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{4, uint(2), 3.0, "str", []string{"x", "y"}, struct{}{}}, received)

	invalid := [][]interface{}{
		{1.5, 1, 1, "s", []interface{}{}, nil},
		{1, -1, 1, "s", []interface{}{}, nil},
		{1, 1, "x", "s", []interface{}{}, nil},
		{1, 1, 1, 2, []interface{}{}, nil},
		{1, 1, 1, "s", []interface{}{1}, nil},
		{1, 1, 1, "s"},
	}
	for _, args := range invalid {
		_, err := r.New(assembly.StageDefinition{Key: "stage", Type: "b", Args: args}, scope, nil)
		assert.ErrorIs(t, err, assembly.ErrInvalidDefinition, "%v", args)
	}
	_, err = r.New(assembly.StageDefinition{Key: "stage", Type: "unknown"}, scope, nil)
	assert.ErrorIs(t, err, assembly.ErrInvalidDefinition)
}

func TestBuild(t *testing.T) {
	sink := &mock.Sink{}
	r := assembly.NewRegistry()
	require.NoError(t, r.Register("source", assembly.Schema{assembly.Int}, func(args []interface{}, _ log.Logger) (pipe.Processor, error) {
		return &mock.Source{Limit: args[0].(int)}, nil
	}))
	require.NoError(t, r.Register("sink", nil, func([]interface{}, log.Logger) (pipe.Processor, error) {
		return sink, nil
	}))
	d, err := assembly.Decode(strings.NewReader(valid))
	require.NoError(t, err)

	g, err := assembly.Build(d, r, nil, assembly.WithCapacity(2))
	require.NoError(t, err)
	assert.Equal(t, []string{"source", "sink"}, g.Keys())
	s, ok := g.Stage("sink")
	require.True(t, ok)
	assert.Equal(t, sink, s.Processor())
	_, ok = g.Stage("unknown")
	assert.False(t, ok)

	p := g.Pipeline()
	require.NoError(t, p.Start(context.Background()))
	assert.NoError(t, p.Wait())
	assert.NoError(t, p.Stop())
	assert.Equal(t, 10, sink.Count())

	d.Stages[0].Args = []interface{}{"ten"}
	_, err = assembly.Build(d, r, nil)
	assert.ErrorIs(t, err, assembly.ErrInvalidDefinition)
}

type emitter struct {
	mu      sync.Mutex
	raw     map[bci.DataType]int
	trained []bci.TrainedEvent
}

func (e *emitter) EmitRawEvent(evt bci.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.raw[evt.Type]++
}

func (e *emitter) EmitTrainedEvent(evt bci.TrainedEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.trained = append(e.trained, evt)
}

func (e *emitter) count(t bci.DataType) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.raw[t]
}

func TestDefault(t *testing.T) {
	a, err := device.NewSynthetic(2, 500)
	require.NoError(t, err)
	e := &emitter{raw: make(map[bci.DataType]int)}
	scope := assembly.Scope{
		"BCIAdapter":    a,
		"BCIChannels":   a.Channels(),
		"BCISampleRate": a.SampleRate(),
		"BCIInstance":   e,
	}
	g, err := assembly.Build(assembly.Default(), assembly.DefaultRegistry(), scope)
	require.NoError(t, err)
	assert.Equal(t, []string{"device", "artifacts", "raw", "predictor", "trained"}, g.Keys())

	p := g.Pipeline()
	require.NoError(t, p.Start(context.Background()))
	assert.Eventually(t, func() bool {
		return e.count(bci.EEG) >= 100 && e.count(bci.AlphaAbsolute) > 0
	}, 5*time.Second, 10*time.Millisecond)
	assert.NoError(t, p.Stop())
	assert.NoError(t, p.Wait())

	// emitter of wrong type.
	scope["BCIInstance"] = struct{}{}
	_, err = assembly.Build(assembly.Default(), assembly.DefaultRegistry(), scope)
	assert.ErrorIs(t, err, assembly.ErrInvalidDefinition)
}
