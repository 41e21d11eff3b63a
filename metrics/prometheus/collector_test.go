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

package prometheus

import (
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/qflow/qflow/metrics"
)

func TestMain(m *testing.M) {
	metrics.Enabled = true
	os.Exit(m.Run())
}

// sampleRegistry builds a small, deterministic set of metrics exercising
// every type the collector understands, so TestCollector's golden output
// doesn't depend on timing-sensitive values like meter rates.
func sampleRegistry() metrics.Registry {
	r := metrics.NewRegistry()

	c := metrics.NewCounter()
	c.Inc(7)
	r.Register("requests/total", c)

	g := metrics.NewGauge()
	g.Update(42)
	r.Register("queue/depth", g)

	h := metrics.NewHistogram(metrics.NewUniformSample(1028))
	h.Update(10)
	h.Update(20)
	h.Update(30)
	r.Register("step/duration", h)

	info := metrics.NewGaugeInfo()
	info.Update(metrics.GaugeInfoValue{"subnet": "dao-7", "version": "1.0.0"})
	r.Register("node/info", info)

	return r
}

func TestCollector(t *testing.T) {
	var (
		c    = newCollector()
		want string
	)
	sampleRegistry().Each(func(name string, i interface{}) {
		c.Add(name, i)
	})
	if wantB, err := os.ReadFile("./testdata/prometheus.want"); err != nil {
		t.Fatal(err)
	} else {
		want = string(wantB)
	}
	if have := c.buff.String(); have != want {
		t.Logf("have\n%v", have)
		t.Logf("have vs want:\n%v", findFirstDiffPos(have, want))
		t.Fatalf("unexpected collector output")
	}
}

func findFirstDiffPos(a, b string) string {
	yy := strings.Split(b, "\n")
	for i, x := range strings.Split(a, "\n") {
		if i >= len(yy) {
			return fmt.Sprintf("have:%d: %s\nwant:%d: <EOF>", i, x, i)
		}
		if y := yy[i]; x != y {
			return fmt.Sprintf("have:%d: %s\nwant:%d: %s", i, x, i, y)
		}
	}
	return ""
}
