// Copyright 2025 James Ross
package server

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/flocknet/flocknet/internal/metrics"
	"github.com/flocknet/flocknet/internal/packet"
	"github.com/flocknet/flocknet/internal/strategy"
)

func testServer(t *testing.T, stratName string, bufferSize int) *Server {
	t.Helper()
	strat, err := strategy.Create(stratName, bufferSize)
	if err != nil {
		t.Fatalf("failed to create strategy: %v", err)
	}
	return New(0, 100_000_000, bufferSize, strat, metrics.New(), zap.NewNop())
}

func TestEnqueueRespectsDropTailCapacity(t *testing.T) {
	s := testServer(t, "drop-tail", 2)
	if a := s.Enqueue(packet.Packet{ID: 1}); a != strategy.Accept {
		t.Fatalf("expected accept, got %v", a)
	}
	if a := s.Enqueue(packet.Packet{ID: 2}); a != strategy.Accept {
		t.Fatalf("expected accept, got %v", a)
	}
	if a := s.Enqueue(packet.Packet{ID: 3}); a != strategy.Drop {
		t.Fatalf("expected drop at capacity, got %v", a)
	}
	if s.QueueLen() != 2 {
		t.Fatalf("expected queue length 2, got %d", s.QueueLen())
	}
}

func TestDrainerServesOneEnqueuedPacketPerTick(t *testing.T) {
	s := testServer(t, "drop-tail", 10)
	s.Enqueue(packet.New(1, 0, 0, 100, packet.Normal))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx, 1500)

	deadline := time.After(2 * time.Second)
	for s.QueueLen() != 0 {
		select {
		case <-deadline:
			t.Fatal("expected drainer to empty the buffer")
		case <-time.After(time.Millisecond):
		}
	}
}

func TestEnqueueWithSelfManagedStrategyDelegatesStorage(t *testing.T) {
	s := testServer(t, "codel", 10)
	if a := s.Enqueue(packet.New(1, 0, 0, 100, packet.Normal)); a != strategy.Accept {
		t.Fatalf("expected accept, got %v", a)
	}
	if s.QueueLen() != 1 {
		t.Fatalf("expected self-managed queue length 1, got %d", s.QueueLen())
	}
}

func TestNewWiresBandwidthAwareStrategies(t *testing.T) {
	strat, err := strategy.Create("pie", 10)
	if err != nil {
		t.Fatal(err)
	}
	// New must not panic when handed a strategy.BandwidthAware
	// implementation; wiring is verified in more detail at the strategy
	// package level.
	srv := New(0, 1_000_000, 10, strat, metrics.New(), zap.NewNop())
	if srv.strategy.Name() != "pie" {
		t.Fatalf("expected pie strategy, got %s", srv.strategy.Name())
	}
}
