package device

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"pipelined.dev/bci"
	"pipelined.dev/bci/log"
	"pipelined.dev/bci/metric"
)

// Contact quality values reported by headsets.
const (
	QualityGood = 1
	QualityOK   = 2
	QualityNone = 4
)

// BandRate is the number of band power samples per second emitted by
// synthetic adapter.
const BandRate = 10

// Bands are absolute band powers emitted by synthetic adapter.
var Bands = []bci.DataType{
	bci.AlphaAbsolute,
	bci.BetaAbsolute,
	bci.GammaAbsolute,
	bci.DeltaAbsolute,
	bci.ThetaAbsolute,
}

// Synthetic is an adapter that generates EEG of an autoregressive
// process for every channel. It's paced to the nominal sample rate and
// reports contact quality once per second. Absolute band powers are
// emitted BandRate times per second around configurable levels.
// Artifacts can be injected to check the processing.
type Synthetic struct {
	*Queue
	offset float64
	phi    []float64
	noise  float64
	seed   int64

	mu       sync.Mutex
	artifact float64
	left     int
	quality  float64
	levels   []float64
	cancel   context.CancelFunc
	done     chan struct{}

	log   log.Logger
	meter *metric.Measure
}

// SyntheticOption configures synthetic adapter.
type SyntheticOption func(*Synthetic)

// WithProcess sets the generated process: offset is the DC component,
// phi are AR coefficients and noise is the amplitude of uniform noise.
func WithProcess(offset float64, phi []float64, noise float64) SyntheticOption {
	return func(s *Synthetic) {
		s.offset = offset
		s.phi = append([]float64(nil), phi...)
		s.noise = noise
	}
}

// WithSeed sets the seed of the noise.
func WithSeed(seed int64) SyntheticOption {
	return func(s *Synthetic) {
		s.seed = seed
	}
}

// WithAdapterLogger sets logger of the adapter.
func WithAdapterLogger(l log.Logger) SyntheticOption {
	return func(s *Synthetic) {
		s.log = log.OrSilent(l)
	}
}

// NewSynthetic returns synthetic adapter.
func NewSynthetic(channels int, sampleRate float64, options ...SyntheticOption) (*Synthetic, error) {
	s := &Synthetic{
		offset:  800,
		phi:     []float64{0.5},
		noise:   10,
		seed:    1,
		quality: QualityGood,
		levels:  []float64{1, 0.8, 0.3, 1.2, 0.9},
		log:     log.Silent,
	}
	for _, option := range options {
		option(s)
	}
	q, err := NewQueue(channels, sampleRate, s.log)
	if err != nil {
		return nil, err
	}
	s.Queue = q
	s.meter = metric.Meter(s)
	return s, nil
}

// InjectArtifact adds offset to the next samples of all channels.
func (s *Synthetic) InjectArtifact(offset float64, samples int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.artifact = offset
	s.left = samples
}

// SetContactQuality sets the quality reported for all channels.
func (s *Synthetic) SetContactQuality(q float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quality = q
}

// SetBandLevels sets mean powers of Bands.
func (s *Synthetic) SetBandLevels(levels []float64) error {
	if len(levels) != len(Bands) {
		return fmt.Errorf("%d levels for %d bands: %w", len(levels), len(Bands), ErrInvalidParameters)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.levels = append([]float64(nil), levels...)
	return nil
}

// Start starts the generation. It stops when ctx is done or Stop is
// called.
func (s *Synthetic) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil {
		return ErrStarted
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.log.Info("starting synthetic adapter")
	go s.run(ctx, s.done)
	return nil
}

// Stop stops the generation and waits for it to exit.
func (s *Synthetic) Stop() error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()
	if done == nil {
		return nil
	}
	s.log.Info("stopping synthetic adapter")
	cancel()
	<-done
	return nil
}

func (s *Synthetic) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	var (
		rnd       = rand.New(rand.NewSource(s.seed))
		limiter   = rate.NewLimiter(rate.Limit(s.sampleRate), 1)
		histories = make([][]float64, s.channels)
		period    = time.Duration(float64(time.Second) / s.sampleRate)
		perSecond = max(int(s.sampleRate), 1)
		perBand   = max(int(s.sampleRate/BandRate), 1)
		start     = time.Now()
	)
	for i := 0; ; i++ {
		if err := limiter.Wait(ctx); err != nil {
			return
		}
		ts := start.Add(time.Duration(i) * period)
		if i%perSecond == 0 {
			s.Emit(bci.NewEvent(ts, bci.ContactQuality, s.contactQuality()))
		}
		if i%perBand == 0 {
			for b, level := range s.bandLevels() {
				data := make([]float64, s.channels)
				for c := range data {
					data[c] = level * (1 + 0.05*(rnd.Float64()-0.5))
				}
				s.Emit(bci.NewEvent(ts, Bands[b], data))
			}
		}
		artifact := s.nextArtifact()
		data := make([]float64, s.channels)
		for c := range data {
			data[c] = s.offset + next(rnd, s.phi, s.noise, &histories[c]) + artifact
		}
		s.Emit(bci.NewEvent(ts, bci.EEG, data))
		s.meter.Inc(metric.ItemCounter)
	}
}

func (s *Synthetic) contactQuality() []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	data := make([]float64, s.channels)
	for i := range data {
		data[i] = s.quality
	}
	return data
}

func (s *Synthetic) bandLevels() []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.levels
}

func (s *Synthetic) nextArtifact() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.left == 0 {
		return 0
	}
	s.left--
	return s.artifact
}

// next returns the next value of AR process with uniform noise and
// updates its history.
func next(rnd *rand.Rand, phi []float64, noise float64, history *[]float64) float64 {
	h := *history
	x := noise * (rnd.Float64() - 0.5)
	for j := range phi {
		if j < len(h) {
			x += phi[j] * h[len(h)-1-j]
		}
	}
	h = append(h, x)
	if len(h) > len(phi) {
		h = h[len(h)-len(phi):]
	}
	*history = h
	return x
}
