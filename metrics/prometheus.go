// Copyright (c) 2025 The ChampDB developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "champ"

// InitializePrometheusMetrics switches the package to the prometheus
// backend. Once switched it cannot be reset.
func InitializePrometheusMetrics() {
	if _, ok := service.(*prometheusMetrics); !ok {
		service = &prometheusMetrics{registry: prometheus.NewRegistry()}
	}
}

type prometheusMetrics struct {
	registry    *prometheus.Registry
	counters    sync.Map
	counterVecs sync.Map
	gauges      sync.Map
}

func (p *prometheusMetrics) GetOrCreateCountMeter(name string) CountMeter {
	item, ok := p.counters.Load(name)
	if !ok {
		c := prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: name})
		p.registry.MustRegister(c)
		meter := &promCounter{c}
		p.counters.Store(name, meter)
		return meter
	}
	return item.(CountMeter)
}

func (p *prometheusMetrics) GetOrCreateCountVecMeter(name string, labels []string) CountVecMeter {
	item, ok := p.counterVecs.Load(name)
	if !ok {
		c := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: name}, labels)
		p.registry.MustRegister(c)
		meter := &promCounterVec{c}
		p.counterVecs.Store(name, meter)
		return meter
	}
	return item.(CountVecMeter)
}

func (p *prometheusMetrics) GetOrCreateGaugeMeter(name string) GaugeMeter {
	item, ok := p.gauges.Load(name)
	if !ok {
		g := prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: name})
		p.registry.MustRegister(g)
		meter := &promGauge{g}
		p.gauges.Store(name, meter)
		return meter
	}
	return item.(GaugeMeter)
}

func (p *prometheusMetrics) GetOrCreateHandler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

type promCounter struct {
	counter prometheus.Counter
}

func (c *promCounter) Add(v int64) { c.counter.Add(float64(v)) }

type promCounterVec struct {
	vec *prometheus.CounterVec
}

func (c *promCounterVec) AddWithLabel(v int64, labels map[string]string) {
	c.vec.With(labels).Add(float64(v))
}

type promGauge struct {
	gauge prometheus.Gauge
}

func (g *promGauge) Add(v int64) { g.gauge.Add(float64(v)) }
func (g *promGauge) Set(v int64) { g.gauge.Set(float64(v)) }
