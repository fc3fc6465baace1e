// Package metrics provides a small in-process metric registry with a
// Prometheus text-format exposition endpoint.
package metrics

import (
	"fmt"
	"math"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

// MetricType represents the type of a metric.
type MetricType string

const (
	MetricTypeCounter MetricType = "counter"
	MetricTypeGauge   MetricType = "gauge"
)

// Sample represents a single metric sample with labels.
type Sample struct {
	Name   string
	Labels map[string]string
	Value  float64
}

// Metric is the interface implemented by all metric types.
type Metric interface {
	Name() string
	Help() string
	Type() MetricType
	Collect() []Sample
}

// value is one labeled series of a counter or gauge.
type value struct {
	labels map[string]string
	bits   uint64
}

func (v *value) load() float64 { return math.Float64frombits(atomic.LoadUint64(&v.bits)) }

func (v *value) add(delta float64) {
	for {
		old := atomic.LoadUint64(&v.bits)
		next := math.Float64bits(math.Float64frombits(old) + delta)
		if atomic.CompareAndSwapUint64(&v.bits, old, next) {
			return
		}
	}
}

// vec holds the labeled series of a metric.
type vec struct {
	name       string
	help       string
	labelNames []string
	mu         sync.RWMutex
	values     map[string]*value
}

func (m *vec) series(labelValues []string) *value {
	if len(labelValues) != len(m.labelNames) {
		panic(fmt.Sprintf("metric %s: expected %d labels, got %d", m.name, len(m.labelNames), len(labelValues)))
	}

	key := strings.Join(labelValues, "\x00")
	m.mu.RLock()
	v, ok := m.values[key]
	m.mu.RUnlock()
	if ok {
		return v
	}

	labels := make(map[string]string, len(m.labelNames))
	for i, name := range m.labelNames {
		labels[name] = labelValues[i]
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok = m.values[key]; !ok {
		v = &value{labels: labels}
		m.values[key] = v
	}
	return v
}

func (m *vec) collect(name string) []Sample {
	m.mu.RLock()
	defer m.mu.RUnlock()

	samples := make([]Sample, 0, len(m.values))
	for _, v := range m.values {
		samples = append(samples, Sample{Name: name, Labels: v.labels, Value: v.load()})
	}
	return samples
}

// Counter is a monotonically increasing metric.
type Counter struct {
	vec
}

// Name returns the metric name.
func (c *Counter) Name() string { return c.name }

// Help returns the help text.
func (c *Counter) Help() string { return c.help }

// Type returns the metric type.
func (c *Counter) Type() MetricType { return MetricTypeCounter }

// Inc increments the series for the given label values by 1.
func (c *Counter) Inc(labelValues ...string) {
	c.series(labelValues).add(1)
}

// Value returns the current value of the series for the given label values.
func (c *Counter) Value(labelValues ...string) float64 {
	return c.series(labelValues).load()
}

// Collect returns all metric samples.
func (c *Counter) Collect() []Sample { return c.collect(c.name) }

// Gauge is a metric that can arbitrarily go up and down.
type Gauge struct {
	vec
}

// Name returns the metric name.
func (g *Gauge) Name() string { return g.name }

// Help returns the help text.
func (g *Gauge) Help() string { return g.help }

// Type returns the metric type.
func (g *Gauge) Type() MetricType { return MetricTypeGauge }

// Inc increments the series for the given label values by 1.
func (g *Gauge) Inc(labelValues ...string) { g.series(labelValues).add(1) }

// Dec decrements the series for the given label values by 1.
func (g *Gauge) Dec(labelValues ...string) { g.series(labelValues).add(-1) }

// Set sets the series for the given label values.
func (g *Gauge) Set(v float64, labelValues ...string) {
	s := g.series(labelValues)
	atomic.StoreUint64(&s.bits, math.Float64bits(v))
}

// Value returns the current value of the series for the given label values.
func (g *Gauge) Value(labelValues ...string) float64 {
	return g.series(labelValues).load()
}

// Collect returns all metric samples.
func (g *Gauge) Collect() []Sample { return g.collect(g.name) }

// Registry holds all registered metrics.
type Registry struct {
	mu      sync.RWMutex
	metrics []Metric
	names   map[string]struct{}
}

// NewRegistry creates a new metric registry.
func NewRegistry() *Registry {
	return &Registry{names: make(map[string]struct{})}
}

// NewCounter creates and registers a new counter.
func (r *Registry) NewCounter(name, help string, labels ...string) *Counter {
	c := &Counter{vec{name: name, help: help, labelNames: labels, values: make(map[string]*value)}}
	r.register(c)
	return c
}

// NewGauge creates and registers a new gauge.
func (r *Registry) NewGauge(name, help string, labels ...string) *Gauge {
	g := &Gauge{vec{name: name, help: help, labelNames: labels, values: make(map[string]*value)}}
	r.register(g)
	return g
}

// register panics on duplicate names since they produce invalid exposition output.
func (r *Registry) register(m Metric) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.names[m.Name()]; exists {
		panic("duplicate metric name: " + m.Name())
	}
	r.names[m.Name()] = struct{}{}
	r.metrics = append(r.metrics, m)
}

// Handler returns an http.Handler that serves the metrics endpoint.
func (r *Registry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		r.mu.RLock()
		metrics := make([]Metric, len(r.metrics))
		copy(metrics, r.metrics)
		r.mu.RUnlock()

		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		for _, m := range metrics {
			writeMetric(w, m)
		}
	})
}

func writeMetric(w http.ResponseWriter, m Metric) {
	samples := m.Collect()
	if len(samples) == 0 {
		return
	}

	_, _ = fmt.Fprintf(w, "# HELP %s %s\n", m.Name(), m.Help())
	_, _ = fmt.Fprintf(w, "# TYPE %s %s\n", m.Name(), m.Type())
	for _, s := range samples {
		if len(s.Labels) == 0 {
			_, _ = fmt.Fprintf(w, "%s %s\n", s.Name, formatFloat(s.Value))
			continue
		}
		_, _ = fmt.Fprintf(w, "%s{%s} %s\n", s.Name, formatLabels(s.Labels), formatFloat(s.Value))
	}
}

func formatLabels(labels map[string]string) string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%q", k, labels[k])
	}
	return strings.Join(parts, ",")
}

func formatFloat(v float64) string {
	if v == float64(int64(v)) {
		return fmt.Sprintf("%.0f", v)
	}
	return fmt.Sprintf("%g", v)
}
