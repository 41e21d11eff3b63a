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

// Package config loads a node's configuration from a TOML file, in the
// same shape cmd/geth's gethConfig/loadConfig pair uses, with cli flags
// (internal/flags equivalents in cmd/qflownode) able to override any
// field afterward.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// ScoringWeights mirrors §4.6's composite score term weights.
type ScoringWeights struct {
	CPU   float64 `toml:"cpu"`
	Mem   float64 `toml:"mem"`
	Net   float64 `toml:"net"`
	Lat   float64 `toml:"lat"`
	Err   float64 `toml:"err"`
	Cap   float64 `toml:"cap"`
	Queue float64 `toml:"queue"`
}

// AutoscaleThresholds mirrors §4.6's advisory scale_up/scale_down
// crossing points.
type AutoscaleThresholds struct {
	Up   float64 `toml:"up"`
	Down float64 `toml:"down"`
}

// Config is every option §6 recognizes. Durations are authored in the
// file as milliseconds (the spec's own naming convention, e.g.
// lease_ttl_ms) and converted to time.Duration after decoding.
type Config struct {
	NodeID            string   `toml:"node_id"`
	ListenAddr        string   `toml:"listen_addr"`
	PeerBootstrapList []string `toml:"peer_bootstrap_list"`

	// DataDir selects the Pebble-backed KV at that path; empty means an
	// in-memory KV, useful for tests and ephemeral nodes.
	DataDir string `toml:"data_dir"`

	MaxConcurrentSteps int `toml:"max_concurrent_steps"`

	LeaseTTLMS             int64 `toml:"lease_ttl_ms"`
	HeartbeatIntervalMS    int64 `toml:"heartbeat_interval_ms"`
	PartitionThresholdMS   int64 `toml:"partition_threshold_ms"`
	SandboxDefaultTimeoutMS int64 `toml:"sandbox_default_timeout_ms"`

	SandboxMemoryCeilingMB int64 `toml:"sandbox_memory_ceiling_mb"`
	FuelCeiling            int64 `toml:"fuel_ceiling"`

	ScoringWeights      ScoringWeights      `toml:"scoring_weights"`
	AutoscaleThresholds AutoscaleThresholds `toml:"autoscale_thresholds"`

	DedupWindowMS           int64 `toml:"dedup_window_ms"`
	ValidationCacheTTLMS    int64 `toml:"validation_cache_ttl_ms"`
	ByzantineDownweightFactor float64 `toml:"byzantine_downweight_factor"`
}

// Default returns a Config with every option set to a reasonable
// out-of-the-box value, so a node can run from flags alone with no TOML
// file.
func Default() Config {
	return Config{
		ListenAddr:              ":7946",
		MaxConcurrentSteps:      64,
		LeaseTTLMS:              30_000,
		HeartbeatIntervalMS:     5_000,
		PartitionThresholdMS:    15_000,
		SandboxDefaultTimeoutMS: 10_000,
		SandboxMemoryCeilingMB:  256,
		FuelCeiling:             10_000_000,
		ScoringWeights:          ScoringWeights{CPU: 1, Mem: 1, Net: 1, Lat: 1, Err: 1, Cap: 1, Queue: 0.5},
		AutoscaleThresholds:     AutoscaleThresholds{Up: 0.5, Down: 0.1},
		DedupWindowMS:           60_000,
		ValidationCacheTTLMS:    300_000,
		ByzantineDownweightFactor: 0.5,
	}
}

// Load reads and decodes a TOML configuration file on top of Default(),
// the same "decode into a pre-populated defaults struct" idiom
// cmd/geth's loadConfig uses.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("config: decode %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("config: %s: unrecognized keys: %v", path, undecoded)
	}
	return cfg, nil
}

func (c Config) LeaseTTL() time.Duration             { return time.Duration(c.LeaseTTLMS) * time.Millisecond }
func (c Config) HeartbeatInterval() time.Duration    { return time.Duration(c.HeartbeatIntervalMS) * time.Millisecond }
func (c Config) PartitionThreshold() time.Duration   { return time.Duration(c.PartitionThresholdMS) * time.Millisecond }
func (c Config) SandboxDefaultTimeout() time.Duration {
	return time.Duration(c.SandboxDefaultTimeoutMS) * time.Millisecond
}
func (c Config) DedupWindow() time.Duration        { return time.Duration(c.DedupWindowMS) * time.Millisecond }
func (c Config) ValidationCacheTTL() time.Duration { return time.Duration(c.ValidationCacheTTLMS) * time.Millisecond }
