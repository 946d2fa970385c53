// Package metric exposes prometheus counters of pipeline components.
// Counters are labeled with the component type, so all instances of the
// same stage type share values.
package metric

import (
	"reflect"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

const componentLabel = "component"

const (
	// ItemCounter measures number of processed items.
	ItemCounter = "Items"
	// EmitCounter measures number of emitted items.
	EmitCounter = "Emitted"
	// BottleneckCounter counts puts into full channels.
	BottleneckCounter = "Bottlenecks"
	// FailureCounter counts components failed with error.
	FailureCounter = "Failures"
	// ArtifactCounter counts detected artifacts.
	ArtifactCounter = "Artifacts"
	// RefitCounter counts refitted artifact models.
	RefitCounter = "Refits"
	// PredictionCounter counts emitted predictions.
	PredictionCounter = "Predictions"
	// AbortCounter counts prediction scans aborted by concurrent changes.
	AbortCounter = "Aborted"
	// ComponentCounter counts number of metered components.
	ComponentCounter = "Components"
)

var (
	vecs = map[string]*prometheus.CounterVec{
		ItemCounter:       newCounterVec("items_total", "Number of items processed by component."),
		EmitCounter:       newCounterVec("emitted_total", "Number of items emitted by component."),
		BottleneckCounter: newCounterVec("bottlenecks_total", "Number of puts into full output channels."),
		FailureCounter:    newCounterVec("failures_total", "Number of component failures."),
		ArtifactCounter:   newCounterVec("artifacts_total", "Number of detected artifacts."),
		RefitCounter:      newCounterVec("refits_total", "Number of refitted artifact models."),
		PredictionCounter: newCounterVec("predictions_total", "Number of emitted predictions."),
		AbortCounter:      newCounterVec("aborted_scans_total", "Number of prediction scans aborted by concurrent training changes."),
		ComponentCounter:  newCounterVec("components_total", "Number of metered components."),
	}

	latency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "bci",
		Name:      "process_duration_seconds",
		Help:      "Duration of processing a single item.",
		Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10), // 10µs to ~2.6s
	}, []string{componentLabel})

	components = struct {
		sync.Mutex
		m map[string]struct{}
	}{
		m: make(map[string]struct{}),
	}
)

func newCounterVec(name, help string) *prometheus.CounterVec {
	return promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bci",
		Name:      name,
		Help:      help,
	}, []string{componentLabel})
}

// Measure captures counters of a single component. Nil Measure is a
// valid no-op.
type Measure struct {
	component string
	latency   prometheus.Observer
}

// Meter creates new measure for the component. The label is derived from
// component type.
func Meter(component interface{}) *Measure {
	t := getType(component)
	components.Lock()
	components.m[t] = struct{}{}
	components.Unlock()
	vecs[ComponentCounter].WithLabelValues(t).Inc()
	return &Measure{
		component: t,
		latency:   latency.WithLabelValues(t),
	}
}

// Processed counts processed item and observes time since start.
func (m *Measure) Processed(start time.Time) {
	if m == nil {
		return
	}
	vecs[ItemCounter].WithLabelValues(m.component).Inc()
	m.latency.Observe(time.Since(start).Seconds())
}

// Inc increments counter by one.
func (m *Measure) Inc(counter string) {
	m.Add(counter, 1)
}

// Add adds delta to counter. Unknown counters are ignored.
func (m *Measure) Add(counter string, delta float64) {
	if m == nil {
		return
	}
	if v, ok := vecs[counter]; ok {
		v.WithLabelValues(m.component).Add(delta)
	}
}

// Get metrics values for provided component type.
func Get(component interface{}) map[string]float64 {
	return getCounters(getType(component))
}

// GetAll returns counters for all measured components.
func GetAll() map[string]map[string]float64 {
	m := make(map[string]map[string]float64)
	components.Lock()
	defer components.Unlock()
	for component := range components.m {
		m[component] = getCounters(component)
	}
	return m
}

func getCounters(componentType string) map[string]float64 {
	m := make(map[string]float64, len(vecs))
	for name, v := range vecs {
		m[name] = testutil.ToFloat64(v.WithLabelValues(componentType))
	}
	return m
}

func getType(component interface{}) string {
	if s, ok := component.(string); ok {
		return s
	}
	rt := reflect.TypeOf(component)
	if rt == nil {
		return "nil"
	}
	for rt.Kind() == reflect.Ptr {
		rt = rt.Elem()
	}
	return rt.String()
}
