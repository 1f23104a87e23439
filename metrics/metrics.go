// Copyright (c) 2025 The ChampDB developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package metrics is a lazy-loading metrics facade. Meters default to no-ops
// so library code can define them package wide; a process that wants real
// measurements calls InitializePrometheusMetrics once at startup.
package metrics

import (
	"net/http"
	"sync"
)

var service Metrics = noopMetrics{}

// Metrics is the interface metric backends implement.
type Metrics interface {
	GetOrCreateCountMeter(name string) CountMeter
	GetOrCreateCountVecMeter(name string, labels []string) CountVecMeter
	GetOrCreateGaugeMeter(name string) GaugeMeter
	GetOrCreateHandler() http.Handler
}

// CountMeter is a monotonically increasing counter.
type CountMeter interface {
	Add(int64)
}

// CountVecMeter is a counter with labels.
type CountVecMeter interface {
	AddWithLabel(int64, map[string]string)
}

// GaugeMeter is a value that can go up and down.
type GaugeMeter interface {
	Add(int64)
	Set(int64)
}

// HTTPHandler returns the handler exposing collected metrics.
func HTTPHandler() http.Handler {
	return service.GetOrCreateHandler()
}

func Counter(name string) CountMeter { return service.GetOrCreateCountMeter(name) }

func CounterVec(name string, labels []string) CountVecMeter {
	return service.GetOrCreateCountVecMeter(name, labels)
}

func Gauge(name string) GaugeMeter { return service.GetOrCreateGaugeMeter(name) }

// LazyLoad defers meter instantiation to first use, so package-level meter
// definitions don't pin the backend before the process picked one.
func LazyLoad[T any](f func() T) func() T {
	var result T
	var once sync.Once
	return func() T {
		once.Do(func() {
			result = f()
		})
		return result
	}
}

func LazyLoadCounter(name string) func() CountMeter {
	return LazyLoad(func() CountMeter { return Counter(name) })
}

func LazyLoadCounterVec(name string, labels []string) func() CountVecMeter {
	return LazyLoad(func() CountVecMeter { return CounterVec(name, labels) })
}

func LazyLoadGauge(name string) func() GaugeMeter {
	return LazyLoad(func() GaugeMeter { return Gauge(name) })
}

type noopMetrics struct{}

func (noopMetrics) GetOrCreateCountMeter(string) CountMeter { return noopMeter{} }

func (noopMetrics) GetOrCreateCountVecMeter(string, []string) CountVecMeter { return noopMeter{} }

func (noopMetrics) GetOrCreateGaugeMeter(string) GaugeMeter { return noopMeter{} }

func (noopMetrics) GetOrCreateHandler() http.Handler { return http.NotFoundHandler() }

type noopMeter struct{}

func (noopMeter) Add(int64) {}

func (noopMeter) Set(int64) {}

func (noopMeter) AddWithLabel(int64, map[string]string) {}
