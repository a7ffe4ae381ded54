package observ

import (
	"net/http"
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics are registered lazily by name so callers don't have to declare
// collectors up front. Label keys are fixed on first use of a name.
type registry struct {
	mu       sync.Mutex
	counters map[string]*prometheus.CounterVec
	gauges   map[string]*prometheus.GaugeVec
	hist     map[string]*prometheus.HistogramVec
	reg      *prometheus.Registry
}

var reg = newRegistry()

func newRegistry() *registry {
	return &registry{
		counters: map[string]*prometheus.CounterVec{},
		gauges:   map[string]*prometheus.GaugeVec{},
		hist:     map[string]*prometheus.HistogramVec{},
		reg:      prometheus.NewRegistry(),
	}
}

// labelKeys returns the sorted label key set so vector registration is stable.
func labelKeys(lbl map[string]string) []string {
	keys := make([]string, 0, len(lbl))
	for k := range lbl {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func IncCounter(name string, labels map[string]string) {
	IncCounterBy(name, labels, 1.0)
}

func IncCounterBy(name string, labels map[string]string, value float64) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	vec, ok := reg.counters[name]
	if !ok {
		vec = prometheus.NewCounterVec(prometheus.CounterOpts{Name: name}, labelKeys(labels))
		reg.reg.MustRegister(vec)
		reg.counters[name] = vec
	}
	vec.With(labels).Add(value)
}

func SetGauge(name string, value float64, labels map[string]string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	vec, ok := reg.gauges[name]
	if !ok {
		vec = prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: name}, labelKeys(labels))
		reg.reg.MustRegister(vec)
		reg.gauges[name] = vec
	}
	vec.With(labels).Set(value)
}

func Observe(name string, value float64, labels map[string]string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	vec, ok := reg.hist[name]
	if !ok {
		vec = prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: name}, labelKeys(labels))
		reg.reg.MustRegister(vec)
		reg.hist[name] = vec
	}
	vec.With(labels).Observe(value)
}

// Handler serves the Prometheus text exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(reg.reg, promhttp.HandlerOpts{})
}
