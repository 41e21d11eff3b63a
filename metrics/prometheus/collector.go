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

// Package prometheus renders a metrics.Registry in the Prometheus text
// exposition format. It is a small, dependency-free writer rather than a
// wrapper around client_golang: the registry already owns every metric's
// lifecycle (construction, registration, snapshotting), so there is
// nothing left for a full client library to do beyond formatting text.
package prometheus

import (
	"bytes"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/qflow/qflow/metrics"
)

// quantiles rendered for every Histogram/Timer/ResettingTimer, matching the
// summary quantiles operators expect from a Prometheus client library.
var quantiles = []float64{0.5, 0.75, 0.95, 0.99, 0.999, 0.9999}

// Handler renders reg in the Prometheus text exposition format on every
// request. Mount it at /debug/metrics/prometheus the way a scrape target
// expects.
func Handler(reg metrics.Registry) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		c := newCollector()
		reg.Each(func(name string, i interface{}) {
			c.Add(name, i)
		})
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		w.Write(c.buff.Bytes())
	})
}

// collector accumulates rendered metric text in buff. Each Add call is
// independent so the registry can be walked in any order (StandardRegistry
// walks it name-sorted, which keeps output deterministic for tests).
type collector struct {
	buff *bytes.Buffer
}

func newCollector() *collector {
	return &collector{buff: new(bytes.Buffer)}
}

// Add renders a single named metric of any of the types this package
// understands. Unknown types are silently skipped: a registry may hold
// application values (e.g. a Healthcheck) that have no text-format
// representation.
func (c *collector) Add(name string, i interface{}) {
	name = mangleName(name)
	switch m := i.(type) {
	case metrics.Counter:
		c.writeGaugeType(name, "counter")
		c.writeValue(name, m.Snapshot().Count())
	case metrics.CounterFloat64:
		c.writeGaugeType(name, "counter")
		c.writeFloatValue(name, m.Snapshot().Count())
	case metrics.Gauge:
		c.writeGaugeType(name, "gauge")
		c.writeValue(name, m.Snapshot().Value())
	case metrics.GaugeFloat64:
		c.writeGaugeType(name, "gauge")
		c.writeFloatValue(name, m.Snapshot().Value())
	case metrics.GaugeInfo:
		c.writeGaugeType(name, "gauge")
		fmt.Fprintf(c.buff, "%s{%s} 1\n", name, infoLabels(m.Snapshot().Value()))
	case metrics.Histogram:
		c.addSummary(name, m.Snapshot().Percentiles(quantiles), m.Snapshot().Sum(), m.Snapshot().Count())
	case metrics.Meter:
		s := m.Snapshot()
		c.writeGaugeType(name+"_rate_mean", "gauge")
		c.writeFloatValue(name+"_rate_mean", s.RateMean())
		c.writeGaugeType(name+"_rate1", "gauge")
		c.writeFloatValue(name+"_rate1", s.Rate1())
		c.writeGaugeType(name+"_rate5", "gauge")
		c.writeFloatValue(name+"_rate5", s.Rate5())
		c.writeGaugeType(name+"_rate15", "gauge")
		c.writeFloatValue(name+"_rate15", s.Rate15())
		c.writeGaugeType(name+"_count", "counter")
		c.writeValue(name+"_count", s.Count())
	case metrics.Timer:
		s := m.Snapshot()
		c.addSummary(name, s.Percentiles(quantiles), s.Sum(), s.Count())
	case metrics.ResettingTimer:
		s := m.Snapshot()
		c.addSummary(name, s.Percentiles(quantiles), 0, s.Count())
	}
}

func (c *collector) addSummary(name string, percentiles []float64, sum, count int64) {
	c.writeGaugeType(name, "summary")
	for i, q := range quantiles {
		fmt.Fprintf(c.buff, "%s{quantile=\"%s\"} %s\n", name, trimFloat(q), trimFloat(percentiles[i]))
	}
	fmt.Fprintf(c.buff, "%s_sum %d\n", name, sum)
	fmt.Fprintf(c.buff, "%s_count %d\n", name, count)
}

func (c *collector) writeGaugeType(name, kind string) {
	fmt.Fprintf(c.buff, "# TYPE %s %s\n", name, kind)
}

func (c *collector) writeValue(name string, v int64) {
	fmt.Fprintf(c.buff, "%s %d\n", name, v)
}

func (c *collector) writeFloatValue(name string, v float64) {
	fmt.Fprintf(c.buff, "%s %s\n", name, trimFloat(v))
}

// infoLabels renders a GaugeInfoValue's key/value pairs as sorted
// Prometheus labels, so identical info maps always produce identical text.
func infoLabels(v metrics.GaugeInfoValue) string {
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%q", mangleName(k), v[k])
	}
	return strings.Join(parts, ",")
}

// mangleName rewrites a registry name (which may contain '/' separators,
// per the convention used throughout this module's metrics) into a valid
// Prometheus metric name.
func mangleName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// trimFloat renders a float64 with the minimum digits needed for an exact
// round-trip, matching how Prometheus clients format sample values.
func trimFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
