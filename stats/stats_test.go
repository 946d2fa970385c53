package stats_test

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipelined.dev/bci/stats"
)

const threshold = 1e-5

func TestSampleMean(t *testing.T) {
	_, err := stats.SampleMean(nil)
	assert.ErrorIs(t, err, stats.ErrRange)
	_, err = stats.SampleMean([]float64{})
	assert.ErrorIs(t, err, stats.ErrRange)

	tests := []struct {
		x        []float64
		expected float64
	}{
		{[]float64{0}, 0},
		{[]float64{0, 1, -1}, 0},
		// significant cancellation
		{[]float64{0, 1e5, -1e5}, 0},
		{[]float64{1, 2, 3, 4}, 2.5},
	}
	for _, test := range tests {
		m, err := stats.SampleMean(test.x)
		assert.NoError(t, err)
		assert.InDelta(t, test.expected, m, threshold)
	}
}

func TestSampleVariance(t *testing.T) {
	for _, x := range [][]float64{nil, {}, {0}} {
		_, err := stats.SampleVariance(x)
		assert.ErrorIs(t, err, stats.ErrRange)
		_, err = stats.SampleVarianceMean(x, 0)
		assert.ErrorIs(t, err, stats.ErrRange)
	}

	x := []float64{0, 1, -1, 2, -2}
	v, err := stats.SampleVariance(x)
	assert.NoError(t, err)
	assert.InDelta(t, 2.5, v, threshold)
	v, err = stats.SampleVarianceMean(x, 0)
	assert.NoError(t, err)
	assert.InDelta(t, 2.5, v, threshold)

	v, err = stats.SampleVariance([]float64{1, 1, 1, 1, 1})
	assert.NoError(t, err)
	assert.Equal(t, 0.0, v)

	s, err := stats.SampleStd(x)
	assert.NoError(t, err)
	assert.InDelta(t, math.Sqrt(2.5), s, threshold)
}

func TestCorrelation(t *testing.T) {
	x := []float64{1, 2, 3, 4}
	y := []float64{2, 4, 6, 8}
	c, err := stats.Corr(x, y)
	assert.NoError(t, err)
	assert.InDelta(t, 1, c, threshold)

	cov, err := stats.SampleCov(x, y)
	assert.NoError(t, err)
	assert.InDelta(t, 10.0/3.0, cov, threshold)

	w := []float64{1, 1, 1, 1}
	wm, err := stats.WeightedMean(x, w)
	assert.NoError(t, err)
	assert.InDelta(t, 2.5, wm, threshold)

	wm, err = stats.WeightedMean(x, []float64{3, 1, 0, 0})
	assert.NoError(t, err)
	assert.InDelta(t, 1.25, wm, threshold)

	// unit weights are plain samples.
	wcov, err := stats.WeightedCovariance(x, y, w)
	assert.NoError(t, err)
	assert.InDelta(t, cov, wcov, threshold)

	wc, err := stats.WeightedCorrelation(x, []float64{8, 6, 4, 2}, w)
	assert.NoError(t, err)
	assert.InDelta(t, -1, wc, threshold)

	_, err = stats.Corr(x, y[:2])
	assert.ErrorIs(t, err, stats.ErrRange)
	_, err = stats.WeightedCorrelation(x, y, w[:1])
	assert.ErrorIs(t, err, stats.ErrRange)
	_, err = stats.WeightedCovariance(x, y[:1], w)
	assert.ErrorIs(t, err, stats.ErrRange)

	// scaling weights doesn't change correlation.
	wc, err = stats.WeightedCorrelation(x, []float64{1, 3, 2, 5}, []float64{1, 2, 3, 4})
	assert.NoError(t, err)
	wc2, err := stats.WeightedCorrelation(x, []float64{1, 3, 2, 5}, []float64{2, 4, 6, 8})
	assert.NoError(t, err)
	assert.InDelta(t, wc, wc2, threshold)
	c, err = stats.Corr([]float64{1, 1, 1}, []float64{1, 2, 3})
	assert.NoError(t, err)
	assert.True(t, math.IsNaN(c))
}

func TestACF(t *testing.T) {
	x := []float64{2, 3, -1, 5, 3, 2}
	expected := []float64{
		-0.505747,
		-0.011494,
		0.034483,
		-0.022989,
		0.005747,
		0,
	}
	acf0, err := stats.ACF(0, x)
	assert.NoError(t, err)
	assert.Equal(t, 1.0, acf0)
	for i := 1; i <= 6; i++ {
		acf, err := stats.ACF(i, x)
		assert.NoError(t, err)
		assert.InDelta(t, expected[i-1], acf, threshold, "lag %d", i)
	}

	_, err = stats.ACF(-1, x)
	assert.ErrorIs(t, err, stats.ErrRange)
	_, err = stats.ACF(1, nil)
	assert.ErrorIs(t, err, stats.ErrRange)
}

func TestPACF(t *testing.T) {
	x := makeSeries(rand.New(rand.NewSource(1)), []float64{0.5}, 10000, 0.25)
	tests := []struct {
		lag      int
		expected float64
	}{
		{1, 0.5},
		{2, 0},
		{3, 0},
		{4, 0},
	}
	for _, test := range tests {
		pacf, err := stats.PACF(test.lag, x)
		assert.NoError(t, err)
		assert.InDelta(t, test.expected, pacf, 0.05, "lag %d", test.lag)
	}
}

func TestFitAR(t *testing.T) {
	tests := []struct {
		phi []float64
	}{
		{[]float64{0.5}},
		{[]float64{0.3, 0.3}},
		{[]float64{0.3, 0.3, 0.3}},
	}
	rnd := rand.New(rand.NewSource(42))
	for _, test := range tests {
		x := makeSeries(rnd, test.phi, 10000, 0.25)
		phi, err := stats.FitAR(len(test.phi), x)
		require.NoError(t, err)
		require.Len(t, phi, len(test.phi))
		for i := range test.phi {
			assert.InDelta(t, test.phi[i], phi[i], 0.05, "phi %v coefficient %d", test.phi, i)
		}
	}

	_, err := stats.FitAR(0, []float64{1, 2, 3})
	assert.ErrorIs(t, err, stats.ErrRange)
	_, err = stats.FitAR(1, []float64{1})
	assert.ErrorIs(t, err, stats.ErrRange)
	_, err = stats.FitAR(2, []float64{1, 1, 1, 1})
	assert.ErrorIs(t, err, stats.ErrSingular)
}

func TestEstimateAROrder(t *testing.T) {
	rnd := rand.New(rand.NewSource(7))
	x := makeSeries(rnd, []float64{0.9}, 2000, 0.25)
	p, err := stats.EstimateAROrder(x, 10)
	assert.NoError(t, err)
	assert.GreaterOrEqual(t, p, 1)
	assert.LessOrEqual(t, p, 10)

	p, err = stats.EstimateAROrder(x, 1)
	assert.NoError(t, err)
	assert.Equal(t, 1, p)

	_, err = stats.EstimateAROrder(x, 0)
	assert.ErrorIs(t, err, stats.ErrRange)
	_, err = stats.EstimateAROrder([]float64{1}, 5)
	assert.ErrorIs(t, err, stats.ErrRange)
}

// Band is taken around the mean of PACF sequence, not around zero. In
// the table cases the PACF tail lies away from zero, a zero-centred band
// would reject it and return a higher order.
func TestEstimateAROrderBand(t *testing.T) {
	x := makeSeries(rand.New(rand.NewSource(3)), []float64{0.8}, 10000, 0.25)
	p, err := stats.EstimateAROrder(x, 5)
	assert.NoError(t, err)
	assert.Equal(t, 1, p)

	tests := []struct {
		x        []float64
		maxOrder int
		expected int
	}{
		// pacf: -0.209, -0.406, -0.266, -0.543; band: [-0.655, -0.057].
		{[]float64{-1, 3, -4, -1, 5, 0, -1, -3, -4, 5}, 4, 1},
		// pacf: -0.148, -0.646, -0.373, -0.128; band: [-0.807, 0.160].
		{[]float64{-3, 1, 0, -3, -5, 1, -1, -3}, 4, 1},
	}
	for _, test := range tests {
		p, err := stats.EstimateAROrder(test.x, test.maxOrder)
		assert.NoError(t, err)
		assert.Equal(t, test.expected, p, "%v", test.x)
	}
}

func TestSummary(t *testing.T) {
	s := stats.Summary([]float64{1, 2, 3})
	assert.Contains(t, s, "n: 3")
	assert.Contains(t, s, "mean: 2")
	assert.Equal(t, "[]float64{n: 0}", stats.Summary(nil))
}

// makeSeries simulates AR process with uniform noise in
// [-noiseFactor/2, noiseFactor/2].
func makeSeries(rnd *rand.Rand, phi []float64, n int, noiseFactor float64) []float64 {
	p := len(phi)
	x := make([]float64, n)
	for i := 0; i < p; i++ {
		x[i] = 1 + noiseFactor*(rnd.Float64()-0.5)
	}
	for i := p; i < n; i++ {
		xi := noiseFactor * (rnd.Float64() - 0.5)
		for j := 0; j < p; j++ {
			xi += x[i-j-1] * phi[j]
		}
		x[i] = xi
	}
	return x
}
