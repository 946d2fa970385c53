package session_test

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
	"pipelined.dev/bci/predict"
	"pipelined.dev/bci/session"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestNewInvalid(t *testing.T) {
	ctx := context.Background()
	_, err := session.New(ctx, session.Config{})
	assert.ErrorIs(t, err, session.ErrInvalidConfig)

	a, err := device.NewSynthetic(2, 100)
	require.NoError(t, err)
	_, err = session.New(ctx, session.Config{
		Adapter: a,
		Scope:   assembly.Scope{session.ReservedPrefix + "Custom": 1},
	})
	assert.ErrorIs(t, err, session.ErrInvalidConfig)

	d, err := assembly.Decode(strings.NewReader("stages:\n  - {key: a, type: unknown}"))
	require.NoError(t, err)
	_, err = session.New(ctx, session.Config{Adapter: a, Definition: d})
	assert.ErrorIs(t, err, assembly.ErrInvalidDefinition)
}

func TestNoPredictor(t *testing.T) {
	a, err := device.NewSynthetic(2, 100)
	require.NoError(t, err)
	d, err := assembly.Decode(strings.NewReader(`
stages:
  - {key: device, type: device, args: [BCIAdapter, [EEG]]}
  - {key: raw, type: raw-emitter, args: [BCIInstance]}
connections:
  - {key: device, outputs: [raw]}
`))
	require.NoError(t, err)
	s, err := session.New(context.Background(), session.Config{Adapter: a, Definition: d})
	require.NoError(t, err)
	assert.ErrorIs(t, s.StartTraining(1), session.ErrNoPredictor)
	assert.ErrorIs(t, s.StopTraining(1), session.ErrNoPredictor)
	assert.ErrorIs(t, s.ClearTrainingData(), session.ErrNoPredictor)
	assert.NoError(t, s.Close())
	assert.NoError(t, s.Close())
	assert.NoError(t, s.Wait())
}

func TestStartTrainingRollback(t *testing.T) {
	a, err := device.NewSynthetic(2, 100)
	require.NoError(t, err)
	d, err := assembly.Decode(strings.NewReader(`
stages:
  - {key: device, type: device, args: [BCIAdapter, [ALPHA_ABSOLUTE]]}
  - {key: first, type: predictor, args: [BCIChannels, 3, 0.5, [ALPHA_ABSOLUTE]]}
  - {key: second, type: predictor, args: [BCIChannels, 3, 0.5, [ALPHA_ABSOLUTE]]}
connections:
  - {key: device, mirror: true, outputs: [first, second]}
`))
	require.NoError(t, err)
	s, err := session.New(context.Background(), session.Config{Adapter: a, Definition: d})
	require.NoError(t, err)
	defer s.Close()

	aggregator := func(key string) *predict.Aggregator {
		st, ok := s.Graph().Stage(key)
		require.True(t, ok)
		return st.Processor().(*predict.Aggregator)
	}
	first, second := aggregator("first"), aggregator("second")
	require.NoError(t, second.StartTraining(2))

	assert.ErrorIs(t, s.StartTraining(1), predict.ErrTraining)
	assert.Equal(t, predict.IDPredict, first.TrainingID())
	assert.Equal(t, 2, second.TrainingID())
	assert.Empty(t, s.TrainedIDs())

	require.NoError(t, second.StopTraining(2))
	require.NoError(t, s.StartTraining(1))
	assert.Equal(t, 1, first.TrainingID())
	assert.Equal(t, 1, second.TrainingID())
	assert.Equal(t, []int{1}, s.TrainedIDs())
	require.NoError(t, s.StopTraining(1))
	assert.NoError(t, s.Close())
}

type counter struct {
	mu sync.Mutex
	n  int
}

func (c *counter) inc() {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
}

func (c *counter) get() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

func TestSession(t *testing.T) {
	a, err := device.NewSynthetic(2, 500)
	require.NoError(t, err)
	s, err := session.New(context.Background(), session.Config{Adapter: a})
	require.NoError(t, err)
	assert.Equal(t, 2, s.Channels())
	assert.Equal(t, 500.0, s.SampleRate())

	var eeg, trained counter
	_, err = s.AddRawHandler(bci.EEG, nil)
	assert.ErrorIs(t, err, session.ErrNilHandler)
	_, err = s.AddRawHandler(bci.EEG, func(bci.Event) { eeg.inc() })
	require.NoError(t, err)
	// panics don't affect other handlers.
	removePanic, err := s.AddRawHandler(bci.EEG, func(bci.Event) { panic("handler") })
	require.NoError(t, err)
	_, err = s.AddTrainedHandler(0, func(bci.TrainedEvent) {})
	assert.ErrorIs(t, err, session.ErrInvalidID)
	_, err = s.AddTrainedHandler(1, func(bci.TrainedEvent) { trained.inc() })
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return eeg.get() >= 50
	}, 5*time.Second, 10*time.Millisecond)
	removePanic()
	assert.Equal(t, []float64{device.QualityGood, device.QualityGood}, s.ConnectionStatus())

	assert.ErrorIs(t, s.StartTraining(0), session.ErrInvalidID)
	assert.ErrorIs(t, s.StopTraining(1), predict.ErrTraining)

	st, ok := s.Graph().Stage("predictor")
	require.True(t, ok)
	predictor := st.Processor().(*predict.Aggregator).Predictor()

	require.NoError(t, s.StartTraining(1))
	assert.ErrorIs(t, s.StartTraining(2), predict.ErrTraining)
	assert.Eventually(t, func() bool {
		return predictor.Size() >= 3
	}, 5*time.Second, 10*time.Millisecond)
	require.NoError(t, s.StopTraining(1))
	assert.Equal(t, []int{1}, s.TrainedIDs())

	// only label 1 is trained, so every sample is predicted as 1.
	assert.Eventually(t, func() bool {
		return trained.get() > 0
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, s.ClearTrainingData())
	assert.Empty(t, s.TrainedIDs())
	assert.Equal(t, 0, predictor.Size())

	assert.NoError(t, s.Close())
	assert.NoError(t, s.Wait())
	assert.NoError(t, s.Err())
}

func TestSessionCancel(t *testing.T) {
	a, err := device.NewSynthetic(1, 100)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	s, err := session.New(ctx, session.Config{Adapter: a})
	require.NoError(t, err)
	cancel()
	<-s.Done()
	assert.NoError(t, s.Close())
	assert.NoError(t, s.Wait())
}
