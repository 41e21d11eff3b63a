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

package config

import (
	"testing"
	"time"
)

func TestLoadDecodesAllRecognizedKeys(t *testing.T) {
	cfg, err := Load("testdata/config.toml")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.NodeID != "node-a" {
		t.Fatalf("NodeID = %q, want node-a", cfg.NodeID)
	}
	if len(cfg.PeerBootstrapList) != 2 {
		t.Fatalf("PeerBootstrapList = %v, want 2 entries", cfg.PeerBootstrapList)
	}
	if cfg.LeaseTTL() != 45*time.Second {
		t.Fatalf("LeaseTTL = %v, want 45s", cfg.LeaseTTL())
	}
	if cfg.ScoringWeights.Queue != 0.75 {
		t.Fatalf("ScoringWeights.Queue = %v, want 0.75", cfg.ScoringWeights.Queue)
	}
	if cfg.AutoscaleThresholds.Up != 0.6 {
		t.Fatalf("AutoscaleThresholds.Up = %v, want 0.6", cfg.AutoscaleThresholds.Up)
	}
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.MaxConcurrentSteps != Default().MaxConcurrentSteps {
		t.Fatal("expected default MaxConcurrentSteps when no path given")
	}
}

func TestLoadMissingFileFails(t *testing.T) {
	if _, err := Load("testdata/does-not-exist.toml"); err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}

func TestLoadRejectsUnrecognizedKeys(t *testing.T) {
	if _, err := Load("testdata/unrecognized.toml"); err == nil {
		t.Fatal("expected an error for an unrecognized key")
	}
}
