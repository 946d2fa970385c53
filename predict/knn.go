// Package predict classifies EEG band powers with k-nearest neighbours
// trained on labeled recordings.
package predict

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"sync/atomic"

	"pipelined.dev/bci"
	"pipelined.dev/bci/log"
	"pipelined.dev/bci/metric"
	"pipelined.dev/bci/stats"
)

// NoPrediction is returned when predictor can't make a decision.
const NoPrediction = -1

var (
	// ErrInvalidParameters is returned when predictor is constructed or
	// configured with invalid parameters.
	ErrInvalidParameters = errors.New("invalid parameters")
	// ErrTraining is returned when training control is called in
	// invalid state.
	ErrTraining = errors.New("invalid training state")
)

// SimilarityFunc returns similarity of two points of a single channel in
// band space. Values are expected in [-1, 1], higher is more similar.
type SimilarityFunc func(x, y, bandWeights []float64) float64

// Correlation is the default similarity, weighted correlation of band
// powers. Undefined correlation is treated as no correlation.
func Correlation(x, y, bandWeights []float64) float64 {
	c, err := stats.WeightedCorrelation(x, y, bandWeights)
	if err != nil || math.IsNaN(c) {
		return 0
	}
	return c
}

// point is a sample in band space, indexed by channel and band.
type point [][]float64

// trainingSet is an immutable snapshot of training data. Snapshots share
// backing arrays, new points are only appended beyond the length of
// existing snapshots.
type trainingSet struct {
	labels []int
	points []point
}

type weights struct {
	channels []float64
	bands    []float64
}

// KNN predicts labels of band power samples. Training data can be
// changed concurrently with predictions. Prediction that was running
// while training data changed returns NoPrediction.
type KNN struct {
	channels   int
	k          int
	threshold  float64
	bands      []bci.DataType
	bandIndex  map[bci.DataType]int
	similarity SimilarityFunc

	// mu serializes writers.
	mu         sync.Mutex
	data       atomic.Pointer[trainingSet]
	generation atomic.Uint64
	weights    atomic.Pointer[weights]

	log   log.Logger
	meter *metric.Measure
}

// Option configures the predictor.
type Option func(*KNN)

// WithLogger sets logger of the predictor.
func WithLogger(l log.Logger) Option {
	return func(p *KNN) {
		p.log = log.OrSilent(l)
	}
}

// WithSimilarity replaces the similarity function.
func WithSimilarity(fn SimilarityFunc) Option {
	return func(p *KNN) {
		if fn != nil {
			p.similarity = fn
		}
	}
}

// NewKNN returns predictor for events of provided band types. The
// prediction is made only if the share of winner votes exceeds
// threshold.
func NewKNN(channels, k int, threshold float64, bands []bci.DataType, options ...Option) (*KNN, error) {
	if channels <= 0 || k <= 0 || threshold < 0 || threshold >= 1 || len(bands) == 0 {
		return nil, fmt.Errorf("knn channels: %d k: %d threshold: %v bands: %v: %w", channels, k, threshold, bands, ErrInvalidParameters)
	}
	p := &KNN{
		channels:   channels,
		k:          k,
		threshold:  threshold,
		bands:      append([]bci.DataType(nil), bands...),
		bandIndex:  make(map[bci.DataType]int, len(bands)),
		similarity: Correlation,
		log:        log.Silent,
	}
	for i, b := range bands {
		if _, ok := p.bandIndex[b]; ok {
			return nil, fmt.Errorf("duplicate band %v: %w", b, ErrInvalidParameters)
		}
		p.bandIndex[b] = i
	}
	for _, option := range options {
		option(p)
	}
	p.weights.Store(&weights{
		channels: ones(channels),
		bands:    ones(len(bands)),
	})
	p.data.Store(&trainingSet{})
	p.meter = metric.Meter(p)
	return p, nil
}

func ones(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 1
	}
	return w
}

// Bands returns band types used by predictor.
func (p *KNN) Bands() []bci.DataType {
	return append([]bci.DataType(nil), p.bands...)
}

// AddTrainingData adds the sample of events to the training data with
// provided label.
func (p *KNN) AddTrainingData(label int, events []bci.Event) {
	pt := p.transform(events)
	p.mu.Lock()
	defer p.mu.Unlock()
	old := p.data.Load()
	p.data.Store(&trainingSet{
		labels: append(old.labels, label),
		points: append(old.points, pt),
	})
	p.generation.Add(1)
}

// ClearTrainingData removes all training data.
func (p *KNN) ClearTrainingData() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.data.Store(&trainingSet{})
	p.generation.Add(1)
	p.log.Info("training data cleared")
}

// Size returns number of training samples.
func (p *KNN) Size() int {
	return len(p.data.Load().labels)
}

// SetChannelWeights sets weights of channels.
func (p *KNN) SetChannelWeights(w []float64) error {
	if len(w) != p.channels {
		return fmt.Errorf("%d channel weights for %d channels: %w", len(w), p.channels, ErrInvalidParameters)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	old := p.weights.Load()
	p.weights.Store(&weights{
		channels: append([]float64(nil), w...),
		bands:    old.bands,
	})
	return nil
}

// SetBandWeights sets weights of bands.
func (p *KNN) SetBandWeights(w []float64) error {
	if len(w) != len(p.bands) {
		return fmt.Errorf("%d band weights for %d bands: %w", len(w), len(p.bands), ErrInvalidParameters)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	old := p.weights.Load()
	p.weights.Store(&weights{
		channels: old.channels,
		bands:    append([]float64(nil), w...),
	})
	return nil
}

type neighbour struct {
	label      int
	similarity float64
}

// Predict returns the label of the sample of events. NoPrediction is
// returned if there is no training data, the winner doesn't pass the
// threshold or training data was changed during the prediction.
func (p *KNN) Predict(events []bci.Event) int {
	generation := p.generation.Load()
	data := p.data.Load()
	if len(data.points) == 0 {
		return NoPrediction
	}
	w := p.weights.Load()
	x := p.transform(events)

	neighbours := make([]neighbour, 0, len(data.points))
	for i := range data.points {
		if p.generation.Load() != generation {
			return p.abort()
		}
		neighbours = append(neighbours, neighbour{
			label:      data.labels[i],
			similarity: p.distance(x, data.points[i], w),
		})
	}
	if p.generation.Load() != generation {
		return p.abort()
	}
	return p.vote(neighbours)
}

func (p *KNN) abort() int {
	p.log.Debug("training data changed during prediction")
	p.meter.Inc(metric.AbortCounter)
	return NoPrediction
}

// vote returns the label with the largest sum of similarities among k
// most similar neighbours.
func (p *KNN) vote(neighbours []neighbour) int {
	sort.SliceStable(neighbours, func(i, j int) bool {
		return neighbours[i].similarity > neighbours[j].similarity
	})
	if len(neighbours) > p.k {
		neighbours = neighbours[:p.k]
	}

	var sum float64
	votes := make(map[int]float64, len(neighbours))
	order := make([]int, 0, len(neighbours))
	for _, n := range neighbours {
		if _, ok := votes[n.label]; !ok {
			order = append(order, n.label)
		}
		votes[n.label] += n.similarity
		sum += n.similarity
	}
	if sum <= 0 {
		return NoPrediction
	}
	// ties are won by the label of the most similar neighbour.
	winner := order[0]
	for _, label := range order[1:] {
		if votes[label] > votes[winner] {
			winner = label
		}
	}
	if votes[winner]/sum > p.threshold {
		return winner
	}
	return NoPrediction
}

// distance returns mean similarity of channels weighted by channel
// weights. Similarity is shifted to be non-negative.
func (p *KNN) distance(x, y point, w *weights) float64 {
	var d float64
	for c := 0; c < p.channels; c++ {
		d += (p.similarity(x[c], y[c], w.bands) + 1) * w.channels[c] / float64(len(p.bands))
	}
	return d / float64(p.channels)
}

// transform converts events to a point in band space. Events of unknown
// types are ignored.
func (p *KNN) transform(events []bci.Event) point {
	pt := make(point, p.channels)
	for i := range pt {
		pt[i] = make([]float64, len(p.bands))
	}
	for _, e := range events {
		b, ok := p.bandIndex[e.Type]
		if !ok {
			continue
		}
		for c := 0; c < len(e.Data) && c < p.channels; c++ {
			pt[c][b] = e.Data[c]
		}
	}
	return pt
}
