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

// Histogram computes distribution statistics over a Sample; Timer composes
// one with a Meter.
type Histogram interface {
	Clear()
	Count() int64
	Max() int64
	Mean() float64
	Min() int64
	Percentile(float64) float64
	Percentiles([]float64) []float64
	Sample() Sample
	Snapshot() Histogram
	StdDev() float64
	Sum() int64
	Update(int64)
	Variance() float64
}

func NewHistogram(s Sample) Histogram {
	return &StandardHistogram{sample: s}
}

func NewRegisteredHistogram(name string, r Registry, s Sample) Histogram {
	c := NewHistogram(s)
	if r == nil {
		r = DefaultRegistry
	}
	r.Register(name, c)
	return c
}

func GetOrRegisterHistogram(name string, r Registry, s Sample) Histogram {
	if r == nil {
		r = DefaultRegistry
	}
	return r.GetOrRegister(name, func() Histogram { return NewHistogram(s) }).(Histogram)
}

// HistogramSnapshot is a read-only copy of a Histogram.
type HistogramSnapshot struct {
	sample *SampleSnapshot
}

func (h *HistogramSnapshot) Clear()       { panic("Clear called on a HistogramSnapshot") }
func (h *HistogramSnapshot) Count() int64 { return h.sample.Count() }
func (h *HistogramSnapshot) Max() int64   { return h.sample.Max() }
func (h *HistogramSnapshot) Mean() float64 { return h.sample.Mean() }
func (h *HistogramSnapshot) Min() int64   { return h.sample.Min() }
func (h *HistogramSnapshot) Percentile(p float64) float64 {
	return h.sample.Percentile(p)
}
func (h *HistogramSnapshot) Percentiles(ps []float64) []float64 {
	return h.sample.Percentiles(ps)
}
func (h *HistogramSnapshot) Sample() Sample        { return h.sample }
func (h *HistogramSnapshot) Snapshot() Histogram   { return h }
func (h *HistogramSnapshot) StdDev() float64       { return h.sample.StdDev() }
func (h *HistogramSnapshot) Sum() int64            { return h.sample.Sum() }
func (h *HistogramSnapshot) Update(int64)          { panic("Update called on a HistogramSnapshot") }
func (h *HistogramSnapshot) Variance() float64     { return h.sample.Variance() }

// StandardHistogram is the standard implementation of a Histogram, backed
// by a Sample.
type StandardHistogram struct {
	sample Sample
}

func (h *StandardHistogram) Clear()       { h.sample.Clear() }
func (h *StandardHistogram) Count() int64 { return h.sample.Count() }
func (h *StandardHistogram) Max() int64   { return h.sample.Max() }
func (h *StandardHistogram) Mean() float64 { return h.sample.Mean() }
func (h *StandardHistogram) Min() int64   { return h.sample.Min() }
func (h *StandardHistogram) Percentile(p float64) float64 {
	return h.sample.Percentile(p)
}
func (h *StandardHistogram) Percentiles(ps []float64) []float64 {
	return h.sample.Percentiles(ps)
}
func (h *StandardHistogram) Sample() Sample { return h.sample }

func (h *StandardHistogram) Snapshot() Histogram {
	shot := h.sample.Snapshot()
	ss, ok := shot.(*SampleSnapshot)
	if !ok {
		ss = &SampleSnapshot{count: shot.Count(), values: shot.Values()}
	}
	return &HistogramSnapshot{sample: ss}
}

func (h *StandardHistogram) StdDev() float64  { return h.sample.StdDev() }
func (h *StandardHistogram) Sum() int64       { return h.sample.Sum() }
func (h *StandardHistogram) Update(v int64)   { h.sample.Update(v) }
func (h *StandardHistogram) Variance() float64 { return h.sample.Variance() }
