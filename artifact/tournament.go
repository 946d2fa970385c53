package artifact

import (
	"fmt"
	"math"
	"sort"

	"pipelined.dev/bci/log"
	"pipelined.dev/bci/metric"
	"pipelined.dev/bci/stats"
)

// MaxOrder limits the order of AR models fit by tournament.
const MaxOrder = 50

// Tournament is an ensemble of AR detectors competing for the best fit
// of the signal.
//
// First, every competitor is fit on its own learning set of consecutive
// samples. While competitors are being fit, no artifacts are reported.
// Then every sample is detected by all competitors, and the decision is
// made by majority of nAccept competitors with the lowest error. When
// the sample is not an artifact, competitors in the better half gain
// merit and others lose it. Competitor with negative merit is refit on
// the latest learning set. Merits don't change during artifacts, so a
// sustained shift is reported until it ends.
//
// Tournament is not safe for concurrent use.
type Tournament struct {
	learningSetSize int
	nAccept         int
	initialMerits   int

	competitors []Detector
	merits      []int
	// samples holds the latest learning set in its tail.
	samples []float64

	// number of fit competitors and samples since last fit.
	nInitted    int
	lastInitted int

	// scratch buffers for ranking.
	order  []int
	votes  []bool
	errors []float64

	log   log.Logger
	meter *metric.Measure
}

// Option configures the tournament.
type Option func(*Tournament)

// WithLogger sets logger for the tournament.
func WithLogger(l log.Logger) Option {
	return func(t *Tournament) {
		t.log = log.OrSilent(l)
	}
}

// NewTournament returns tournament of size competitors. All parameters
// must be positive and nAccept must not exceed size.
func NewTournament(size, learningSetSize, nAccept, initialMerits int, options ...Option) (*Tournament, error) {
	if size <= 0 || learningSetSize <= 0 || nAccept <= 0 || initialMerits <= 0 || nAccept > size {
		return nil, fmt.Errorf(
			"tournament size: %d learning set size: %d accept: %d merits: %d: %w",
			size, learningSetSize, nAccept, initialMerits, ErrInvalidParameters,
		)
	}
	t := &Tournament{
		learningSetSize: learningSetSize,
		nAccept:         nAccept,
		initialMerits:   initialMerits,
		competitors:     make([]Detector, size),
		merits:          make([]int, size),
		samples:         make([]float64, 0, 2*learningSetSize),
		order:           make([]int, size),
		votes:           make([]bool, size),
		errors:          make([]float64, size),
		log:             log.Silent,
	}
	for _, option := range options {
		option(t)
	}
	t.meter = metric.Meter(t)
	return t, nil
}

// Primed returns true when all competitors are fit.
func (t *Tournament) Primed() bool {
	return t.nInitted == len(t.competitors)
}

// Error returns mean error of competitors. It's NaN until tournament
// is primed.
func (t *Tournament) Error() float64 {
	if !t.Primed() {
		return math.NaN()
	}
	var sum float64
	for _, c := range t.competitors {
		sum += c.Error()
	}
	return sum / float64(len(t.competitors))
}

// Detect implements Detector.
func (t *Tournament) Detect(x float64) bool {
	t.push(x)
	if !t.Primed() {
		t.lastInitted++
		if t.lastInitted == t.learningSetSize {
			t.replace(t.nInitted)
			t.nInitted++
			t.lastInitted = 0
		}
		return false
	}

	for i, c := range t.competitors {
		t.votes[i] = c.Detect(x)
		t.errors[i] = c.Error()
		t.order[i] = i
	}
	sort.SliceStable(t.order, func(a, b int) bool {
		return less(t.errors[t.order[a]], t.errors[t.order[b]])
	})
	if t.consensus() {
		// merits are frozen while artifact lasts.
		t.meter.Inc(metric.ArtifactCounter)
		return true
	}

	midpoint := len(t.competitors) / 2
	for rank, i := range t.order {
		if rank < midpoint {
			t.merits[i]++
		} else {
			t.merits[i]--
		}
		if t.merits[i] < 0 {
			t.replace(i)
		}
	}
	return false
}

// consensus returns majority vote of the best nAccept competitors. On
// tie, the vote of the best competitor wins.
func (t *Tournament) consensus() bool {
	var yes, no int
	for _, i := range t.order[:t.nAccept] {
		if t.votes[i] {
			yes++
		} else {
			no++
		}
	}
	if yes == no {
		return t.votes[t.order[0]]
	}
	return yes > no
}

// replace fits new competitor at position i and resets its merits.
func (t *Tournament) replace(i int) {
	d, err := t.fit()
	if err != nil {
		t.log.Error("failed to replace competitor: ", err)
		return
	}
	t.competitors[i] = d
	t.merits[i] = t.initialMerits
}

// fit returns new detector fit on the latest learning set. If the
// learning set is degenerate, AR(1) model with zero coefficient is used.
func (t *Tournament) fit() (*ARDetector, error) {
	x := t.learningSet()
	if len(x) < t.learningSetSize {
		return nil, fmt.Errorf("fit on %d of %d samples: %w", len(x), t.learningSetSize, ErrInsufficientData)
	}
	model, err := fitModel(x)
	if err != nil {
		t.log.Warn("degenerate learning set, falling back to AR(1): ", err)
		if model, err = stats.NewARModel(0, []float64{0}); err != nil {
			return nil, err
		}
	}
	t.log.Info("created new competitor: ", model)
	t.meter.Inc(metric.RefitCounter)
	return NewARDetector(model)
}

func fitModel(x []float64) (*stats.ARModel, error) {
	maxOrder := MaxOrder
	if maxOrder > len(x)-1 {
		maxOrder = len(x) - 1
	}
	p, err := stats.EstimateAROrder(x, maxOrder)
	if err != nil {
		return nil, err
	}
	phi, err := stats.FitAR(p, x)
	if err != nil {
		return nil, err
	}
	c, err := stats.SampleMean(x)
	if err != nil {
		return nil, err
	}
	return stats.NewARModel(c, phi)
}

// push appends sample to the learning set. Samples are shifted to the
// head of the buffer once it's full.
func (t *Tournament) push(x float64) {
	if len(t.samples) == cap(t.samples) {
		n := copy(t.samples, t.samples[len(t.samples)-t.learningSetSize+1:])
		t.samples = t.samples[:n]
	}
	t.samples = append(t.samples, x)
}

func (t *Tournament) learningSet() []float64 {
	if len(t.samples) <= t.learningSetSize {
		return t.samples
	}
	return t.samples[len(t.samples)-t.learningSetSize:]
}

// less orders errors ascending with NaN last.
func less(a, b float64) bool {
	if math.IsNaN(a) {
		return false
	}
	if math.IsNaN(b) {
		return true
	}
	return a < b
}
