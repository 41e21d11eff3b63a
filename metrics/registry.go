// Copyright 2024 The qflow Authors
// This file is part of the qflow library.
//
// The qflow library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The qflow library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the qflow library. If not, see <http://www.gnu.org/licenses/>.

package metrics

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
)

// DuplicateMetric is the error returned by Registry.Register when the
// named metric already exists.
type DuplicateMetric string

func (err DuplicateMetric) Error() string {
	return fmt.Sprintf("duplicate metric: %s", string(err))
}

// Registry holds references to a set of named metrics, letting an exporter
// such as metrics/prometheus walk every counter, gauge,
// meter, timer, and histogram registered by any component without each
// component needing to know about the others.
type Registry interface {
	// Each calls the given function for each registered metric.
	Each(func(string, interface{}))

	// Get the metric by the given name or nil if none is registered.
	Get(string) interface{}

	// GetAll metrics in the Registry.
	GetAll() map[string]map[string]interface{}

	// GetOrRegister gets an existing metric or registers the given one.
	// The interface can be the metric to register if not found, or a
	// function returning the metric for lazy instantiation.
	GetOrRegister(string, interface{}) interface{}

	// Register the given metric under the given name.
	Register(string, interface{}) error

	// RunHealthchecks runs all registered healthchecks.
	RunHealthchecks()

	// Unregister the metric with the given name.
	Unregister(string)

	// UnregisterAll unregisters all metrics, including child registries.
	UnregisterAll()
}

// StandardRegistry is the standard implementation of a Registry.
type StandardRegistry struct {
	metrics sync.Map
}

func NewRegistry() Registry {
	return &StandardRegistry{}
}

func (r *StandardRegistry) Each(f func(string, interface{})) {
	names := []string{}
	r.metrics.Range(func(key, value interface{}) bool {
		names = append(names, key.(string))
		return true
	})
	sort.Strings(names)
	for _, name := range names {
		if i, ok := r.metrics.Load(name); ok {
			f(name, i)
		}
	}
}

func (r *StandardRegistry) Get(name string) interface{} {
	item, _ := r.metrics.Load(name)
	return item
}

func (r *StandardRegistry) GetOrRegister(name string, i interface{}) interface{} {
	if metric, ok := r.metrics.Load(name); ok {
		return metric
	}
	if v := reflect.ValueOf(i); v.Kind() == reflect.Func {
		i = v.Call(nil)[0].Interface()
	}
	item, _ := r.metrics.LoadOrStore(name, i)
	return item
}

func (r *StandardRegistry) Register(name string, i interface{}) error {
	if _, ok := r.metrics.Load(name); ok {
		return DuplicateMetric(name)
	}
	if v := reflect.ValueOf(i); v.Kind() == reflect.Func {
		i = v.Call(nil)[0].Interface()
	}
	switch i.(type) {
	case Counter, CounterFloat64, Gauge, GaugeFloat64, GaugeInfo, Healthcheck, Histogram, Meter, Timer, ResettingTimer:
		r.metrics.LoadOrStore(name, i)
	default:
		return fmt.Errorf("metrics: unsupported type %T for %q", i, name)
	}
	return nil
}

func (r *StandardRegistry) RunHealthchecks() {
	r.metrics.Range(func(key, value interface{}) bool {
		if h, ok := value.(Healthcheck); ok {
			h.Check()
		}
		return true
	})
}

func (r *StandardRegistry) GetAll() map[string]map[string]interface{} {
	data := make(map[string]map[string]interface{})
	r.Each(func(name string, i interface{}) {
		values := make(map[string]interface{})
		switch metric := i.(type) {
		case Counter:
			values["count"] = metric.Snapshot().Count()
		case CounterFloat64:
			values["count"] = metric.Snapshot().Count()
		case Gauge:
			values["value"] = metric.Snapshot().Value()
		case GaugeFloat64:
			values["value"] = metric.Snapshot().Value()
		case GaugeInfo:
			values["value"] = metric.Snapshot().Value()
		case Histogram:
			h := metric.Snapshot()
			values["count"] = h.Count()
			values["min"] = h.Min()
			values["max"] = h.Max()
			values["mean"] = h.Mean()
			values["stddev"] = h.StdDev()
		case Meter:
			m := metric.Snapshot()
			values["count"] = m.Count()
			values["rate1"] = m.Rate1()
			values["rate5"] = m.Rate5()
			values["rate15"] = m.Rate15()
			values["ratemean"] = m.RateMean()
		case Timer:
			t := metric.Snapshot()
			values["count"] = t.Count()
			values["min"] = t.Min()
			values["max"] = t.Max()
			values["mean"] = t.Mean()
			values["rate1"] = t.Rate1()
			values["rate5"] = t.Rate5()
			values["rate15"] = t.Rate15()
		}
		data[name] = values
	})
	return data
}

func (r *StandardRegistry) Unregister(name string) {
	if i, loaded := r.metrics.LoadAndDelete(name); loaded {
		stopUnregistered(i)
	}
}

func (r *StandardRegistry) UnregisterAll() {
	r.metrics.Range(func(key, value interface{}) bool {
		stopUnregistered(value)
		r.metrics.Delete(key)
		return true
	})
}

// stopUnregistered releases any background registration (e.g. the meter
// arbiter) a metric holds, so Unregister doesn't leak a stopped metric's
// bookkeeping forever.
func stopUnregistered(i interface{}) {
	if s, ok := i.(interface{ Stop() }); ok {
		s.Stop()
	}
}

// Healthcheck is a deferred check of some condition, e.g. the liveness of
// a downstream dependency, run on demand by RunHealthchecks rather than on
// every metric read.
type Healthcheck interface {
	Check()
	Error() error
	Healthy()
	Unhealthy(error)
}

// PrefixedRegistry prefixes every name passed to it before delegating to
// an underlying Registry, letting a component register "requests" and
// have it show up as e.g. "dispatcher.requests" without every call site
// needing to know its own namespace.
type PrefixedRegistry struct {
	underlying Registry
	prefix     string
}

func NewPrefixedRegistry(prefix string) Registry {
	return &PrefixedRegistry{
		underlying: NewRegistry(),
		prefix:     prefix,
	}
}

func NewPrefixedChildRegistry(parent Registry, prefix string) Registry {
	return &PrefixedRegistry{
		underlying: parent,
		prefix:     prefix,
	}
}

func (r *PrefixedRegistry) Each(fn func(string, interface{})) {
	baseRegistry, prefix := findPrefix(r, "")
	wrappedFn := func(prefixedName string, i interface{}) {
		if strings.HasPrefix(prefixedName, prefix) {
			fn(prefixedName, i)
		}
	}
	baseRegistry.Each(wrappedFn)
}

func (r *PrefixedRegistry) Get(name string) interface{} {
	realName := r.prefix + name
	return r.underlying.Get(realName)
}

func (r *PrefixedRegistry) GetOrRegister(name string, metric interface{}) interface{} {
	realName := r.prefix + name
	return r.underlying.GetOrRegister(realName, metric)
}

func (r *PrefixedRegistry) Register(name string, metric interface{}) error {
	realName := r.prefix + name
	return r.underlying.Register(realName, metric)
}

func (r *PrefixedRegistry) RunHealthchecks() {
	r.underlying.RunHealthchecks()
}

func (r *PrefixedRegistry) GetAll() map[string]map[string]interface{} {
	return r.underlying.GetAll()
}

func (r *PrefixedRegistry) Unregister(name string) {
	realName := r.prefix + name
	r.underlying.Unregister(realName)
}

func (r *PrefixedRegistry) UnregisterAll() {
	r.underlying.UnregisterAll()
}

// findPrefix walks a chain of PrefixedRegistry wrappers down to the
// base (non-prefixed) Registry, accumulating the combined prefix.
func findPrefix(registry Registry, prefix string) (Registry, string) {
	switch r := registry.(type) {
	case *PrefixedRegistry:
		return findPrefix(r.underlying, r.prefix+prefix)
	default:
		return registry, prefix
	}
}

// DefaultRegistry is the default registry used by the package-level
// Register/Unregister/Each/Get/GetOrRegister functions.
var DefaultRegistry = NewRegistry()

func Each(f func(string, interface{})) {
	DefaultRegistry.Each(f)
}

func Get(name string) interface{} {
	return DefaultRegistry.Get(name)
}

func GetOrRegister(name string, i interface{}) interface{} {
	return DefaultRegistry.GetOrRegister(name, i)
}

func Register(name string, i interface{}) error {
	return DefaultRegistry.Register(name, i)
}

func RunHealthchecks() {
	DefaultRegistry.RunHealthchecks()
}

func Unregister(name string) {
	DefaultRegistry.Unregister(name)
}
