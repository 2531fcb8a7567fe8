// Copyright 2025 James Ross
package sim

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/flocknet/flocknet/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{
		Strategy: "drop-tail",
		Simulation: config.Simulation{
			DurationSec:      1,
			NumAgents:        3,
			NumServers:       2,
			SnapshotInterval: 0.2,
			SettleDelayMS:    10,
		},
		Traffic: config.Traffic{
			Pattern:   config.Constant,
			RateLps:   200,
			BurstSize: 5,
		},
		Network: config.Network{
			BandwidthBps: 10_000_000,
			PacketSize:   512,
			BufferSize:   64,
		},
		Transport: config.Transport{
			Kind:         "local",
			DialTimeout:  time.Second,
			WriteTimeout: time.Second,
		},
		CircuitBreaker: config.CircuitBreaker{
			FailureThreshold: 0.5,
			Window:           time.Second,
			CooldownPeriod:   time.Second,
			MinSamples:       5,
		},
		Observability: config.Observability{MetricsPort: 9099, LogLevel: "info"},
		ResultsDir:    "./results",
	}
}

func TestRunWithLocalTransportProducesSnapshotsAndSentPackets(t *testing.T) {
	cfg := testConfig()
	s, err := New(cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected construction error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	result, err := s.Run(ctx)
	if err != nil {
		t.Fatalf("unexpected run error: %v", err)
	}
	if len(result.Snapshots) == 0 {
		t.Fatal("expected at least one saved snapshot")
	}
	if result.Final.PacketsSent == 0 {
		t.Fatal("expected agents to have sent at least one packet")
	}
}

func TestRunWithTCPTransportProducesSnapshotsAndSentPackets(t *testing.T) {
	cfg := testConfig()
	cfg.Transport.Kind = "tcp"
	cfg.Transport.BasePort = 18400
	s, err := New(cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected construction error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	result, err := s.Run(ctx)
	if err != nil {
		t.Fatalf("unexpected run error: %v", err)
	}
	if result.Final.PacketsSent == 0 {
		t.Fatal("expected agents to have sent at least one packet over tcp")
	}
}

func TestReadinessFlipsOnceServersPassTheBarrier(t *testing.T) {
	cfg := testConfig()
	s, err := New(cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected construction error: %v", err)
	}
	if err := s.Readiness(context.Background()); err == nil {
		t.Fatal("expected not-ready before the run starts")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := s.Run(ctx); err != nil {
		t.Fatalf("unexpected run error: %v", err)
	}
	if err := s.Readiness(context.Background()); err != nil {
		t.Fatalf("expected ready after the barrier passed, got %v", err)
	}
}

func TestLossAccountingStaysConsistentUnderHeavyDrops(t *testing.T) {
	cfg := testConfig()
	cfg.Network.BufferSize = 1
	cfg.Traffic.RateLps = 2000
	s, err := New(cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected construction error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	result, err := s.Run(ctx)
	if err != nil {
		t.Fatalf("unexpected run error: %v", err)
	}

	final := result.Final
	if final.PacketsDropped == 0 {
		t.Fatal("expected a one-packet buffer under heavy load to drop packets")
	}
	if final.PacketsReceived+final.PacketsDropped > final.PacketsSent {
		t.Fatalf("received %d + dropped %d exceeds sent %d",
			final.PacketsReceived, final.PacketsDropped, final.PacketsSent)
	}
	if final.LossRate < 0 || final.LossRate > 1 {
		t.Fatalf("loss rate %v outside [0, 1]", final.LossRate)
	}
}

func TestPeakPerturbationStaysWithinExpectedBand(t *testing.T) {
	for i := 0; i < 20; i++ {
		f := peakPerturbation(i)
		if f < 0.94 || f > 1.05 {
			t.Fatalf("perturbation factor %v for index %d out of expected band", f, i)
		}
	}
}

func TestPerturbedTrafficLeavesNonPeakPatternsUnchanged(t *testing.T) {
	cfg := testConfig()
	cfg.Traffic.Pattern = config.Constant
	s := &Simulation{cfg: cfg}

	got := s.perturbedTraffic(3)
	if got != cfg.Traffic {
		t.Fatalf("expected unchanged traffic for non-peak pattern, got %+v", got)
	}
}

func TestPerturbedTrafficScalesPeakRatesByAgentIndex(t *testing.T) {
	cfg := testConfig()
	cfg.Traffic.Pattern = config.PeakTraffic
	cfg.Traffic.PeakBaseLps = 100
	cfg.Traffic.PeakRateLps = 1000
	s := &Simulation{cfg: cfg}

	got := s.perturbedTraffic(0)
	factor := peakPerturbation(0)
	if got.PeakBaseLps != 100*factor || got.PeakRateLps != 1000*factor {
		t.Fatalf("expected scaled peak rates, got %+v (factor=%v)", got, factor)
	}
}
