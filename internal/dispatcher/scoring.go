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

package dispatcher

import "github.com/qflow/qflow/internal/nodearena"

// Weights is the fixed scoring configuration from §4.6: "Weights are a
// fixed configuration." Populated from config's scoring_weights block.
type Weights struct {
	CPU   float64
	Mem   float64
	Net   float64
	Lat   float64
	Err   float64
	Cap   float64
	Queue float64
}

// DefaultWeights is a reasonable starting point when no configuration
// overrides them; every component contributes roughly evenly except the
// queue-depth penalty, which is intentionally the most sensitive term so
// the dispatcher spreads load before other factors dominate.
var DefaultWeights = Weights{
	CPU: 1, Mem: 1, Net: 1, Lat: 1, Err: 1, Cap: 1, Queue: 0.5,
}

// requiredCapabilities is the set of capability flags a step's action
// demands; a node missing any of them fails the capability match and is
// excluded outright (§4.6).
type requiredCapabilities map[string]bool

// score computes §4.6's composite score for one node's current sample:
//
//	score = w_cpu*(1-cpu%) + w_mem*(1-mem%) + w_net*(1-net%) +
//	        w_lat*(1/(1+latency)) + w_err*(1-error_rate) +
//	        w_cap*capability_match - w_queue*queue_depth
//
// capability_match is 1.0 when every required capability is present (the
// exclusion itself happens in eligible, not here); it exists as a term so
// a node that over-satisfies (more optional capabilities) can be
// tie-broken favorably in future extensions. The node's down-weight
// (§4.7, Byzantine tolerance) multiplies the final score.
func score(w Weights, s nodearena.Sample, downWeight float64) float64 {
	v := w.CPU*(1-s.CPUPercent) +
		w.Mem*(1-s.MemPercent) +
		w.Net*(1-s.NetPercent) +
		w.Lat*(1/(1+s.LatencyMS)) +
		w.Err*(1-s.ErrorRate) +
		w.Cap*1.0 -
		w.Queue*float64(s.QueueDepth)
	return v * downWeight
}

// eligible reports whether node r can be considered at all: it must be
// HealthHealthy and must carry every capability in req.
func eligible(r nodearena.Snapshot, req requiredCapabilities) bool {
	if r.Health != nodearena.HealthHealthy {
		return false
	}
	for name := range req {
		if !r.Sample.Capabilities[name] {
			return false
		}
	}
	return true
}
