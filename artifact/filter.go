package artifact

import (
	"context"
	"fmt"
	"math"

	"pipelined.dev/bci"
	"pipelined.dev/bci/metric"
	"pipelined.dev/bci/pipe"
)

// Filter is a pipeline processor that drops EEG events with artifacts.
// Every channel has its own tournament. Events of other types are
// passed through.
type Filter struct {
	tournaments []*Tournament
	meter       *metric.Measure
}

// NewFilter returns filter for events with provided number of channels.
// The learning set of each competitor spans learningTime seconds.
func NewFilter(channels int, sampleRate, learningTime float64, size, nAccept, initialMerits int, options ...Option) (*Filter, error) {
	if channels <= 0 {
		return nil, fmt.Errorf("filter of %d channels: %w", channels, ErrInvalidParameters)
	}
	learningSetSize := int(math.Round(learningTime * sampleRate))
	f := &Filter{
		tournaments: make([]*Tournament, channels),
	}
	for i := range f.tournaments {
		t, err := NewTournament(size, learningSetSize, nAccept, initialMerits, options...)
		if err != nil {
			return nil, err
		}
		f.tournaments[i] = t
	}
	f.meter = metric.Meter(f)
	return f, nil
}

// Process implements pipe.Processor. All channels are detected even if
// an artifact was already found in one of them.
func (f *Filter) Process(_ context.Context, item pipe.Item, emit pipe.EmitFunc) (bool, error) {
	e, ok := item.(bci.Event)
	if !ok || e.Type != bci.EEG {
		return true, emit(item)
	}
	if len(e.Data) < len(f.tournaments) {
		return false, fmt.Errorf("event with %d channels, expected %d", len(e.Data), len(f.tournaments))
	}
	var artifact bool
	for i, t := range f.tournaments {
		if t.Detect(e.Data[i]) {
			artifact = true
		}
	}
	if artifact {
		f.meter.Inc(metric.ArtifactCounter)
		return true, nil
	}
	return true, emit(e)
}

// Primed returns true when tournaments of all channels are primed.
func (f *Filter) Primed() bool {
	for _, t := range f.tournaments {
		if !t.Primed() {
			return false
		}
	}
	return true
}
