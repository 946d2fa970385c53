package stats_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipelined.dev/bci/stats"
)

func TestOnlineVariance(t *testing.T) {
	var v stats.OnlineVariance
	assert.False(t, v.Valid())
	assert.Equal(t, 0.0, v.Mean())
	assert.True(t, math.IsNaN(v.Variance()))

	v.Update(1)
	assert.False(t, v.Valid())
	assert.Equal(t, 1.0, v.Mean())
	assert.True(t, math.IsNaN(v.Variance()))

	v.Update(1)
	assert.True(t, v.Valid())
	assert.Equal(t, 1.0, v.Mean())
	assert.Equal(t, 0.0, v.Variance())
	assert.Equal(t, 2, v.N())

	var w stats.OnlineVariance
	x := []float64{0, 1, -1, 2, -2}
	for _, xi := range x {
		w.Update(xi)
	}
	expected, err := stats.SampleVariance(x)
	require.NoError(t, err)
	assert.InDelta(t, expected, w.Variance(), threshold)
}

func TestARModelConstructor(t *testing.T) {
	tests := []struct {
		description string
		c           float64
		phi         []float64
	}{
		{"nan", math.NaN(), nil},
		{"negative infinity", math.Inf(-1), []float64{0.5}},
		{"positive infinity", math.Inf(1), []float64{0.5}},
		{"nil coefficients", 0, nil},
		{"empty coefficients", 0, []float64{}},
		{"nan coefficient", 0, []float64{0.5, math.NaN()}},
	}
	for _, test := range tests {
		_, err := stats.NewARModel(test.c, test.phi)
		assert.ErrorIs(t, err, stats.ErrRange, test.description)
	}
	m, err := stats.NewARModel(0, []float64{0.5})
	assert.NoError(t, err)
	assert.Equal(t, 1, m.Order())
}

func TestARModelPredict(t *testing.T) {
	tests := []struct {
		description string
		c           float64
		phi         []float64
		x           []float64
	}{
		{
			description: "ar(1)",
			phi:         []float64{0.5},
			x:           []float64{1, 1, 0.5, 0.25, 0.125, 0.0625},
		},
		{
			description: "ar(2)",
			phi:         []float64{0.3, 0.3},
			x:           []float64{1, 1, 1, 0.6, 0.48, 0.324, 0.2412, 0.16956},
		},
		{
			description: "ar(1) with constant",
			c:           1,
			phi:         []float64{0.5},
			x:           []float64{2, 2, 2, 2},
		},
	}
	for _, test := range tests {
		m, err := stats.NewARModel(test.c, test.phi)
		require.NoError(t, err)
		for i := 0; i < len(test.x)-1; i++ {
			assert.InDelta(t, test.x[i+1], m.Predict(test.x[i]), threshold, "%s step %d", test.description, i)
		}
	}
}

// Newest value is weighted by the first coefficient.
func TestARModelLagOrder(t *testing.T) {
	m, err := stats.NewARModel(0, []float64{1, 0})
	require.NoError(t, err)
	m.Predict(5)
	m.Predict(7)
	assert.Equal(t, 3.0, m.Predict(3))
}

func TestARModelGeometricDecay(t *testing.T) {
	m, err := stats.NewARModel(0, []float64{0.5})
	require.NoError(t, err)
	x := 1.0
	assert.Equal(t, 1.0, m.Predict(x))
	expected := 0.5
	for i := 0; i < 10; i++ {
		x = m.Predict(x)
		assert.InDelta(t, expected, x, threshold)
		expected *= 0.5
	}
}

func TestARModelCoefficientsCopy(t *testing.T) {
	phi := []float64{0.1, 0.2}
	m, err := stats.NewARModel(0.5, phi)
	require.NoError(t, err)
	phi[0] = 100
	assert.Equal(t, []float64{0.1, 0.2}, m.Coefficients())
	assert.Equal(t, 0.5, m.Constant())
	assert.Equal(t, "AR(2){c: 0.5, phi: [0.1 0.2]}", m.String())
}
