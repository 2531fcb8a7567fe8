// Copyright 2025 James Ross
package transport

import (
	"context"
	"net"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/flocknet/flocknet/internal/config"
	"github.com/flocknet/flocknet/internal/metrics"
	"github.com/flocknet/flocknet/internal/packet"
	"github.com/flocknet/flocknet/internal/server"
	"github.com/flocknet/flocknet/internal/strategy"
)

func newTestServer(t *testing.T, bufferSize int) *server.Server {
	t.Helper()
	strat, err := strategy.Create("drop-tail", bufferSize)
	if err != nil {
		t.Fatal(err)
	}
	return server.New(0, 100_000_000, bufferSize, strat, metrics.New(), zap.NewNop())
}

func TestLocalDeliverEnqueuesOnAddressedServer(t *testing.T) {
	srv := newTestServer(t, 10)
	local := NewLocal([]*server.Server{srv})

	if err := local.Deliver(context.Background(), 0, packet.Packet{ID: 1}); err != nil {
		t.Fatalf("unexpected delivery error: %v", err)
	}
	if srv.QueueLen() != 1 {
		t.Fatalf("expected server queue length 1, got %d", srv.QueueLen())
	}
}

func TestLocalDeliverReturnsErrorOnOutOfRangeIndex(t *testing.T) {
	srv := newTestServer(t, 10)
	local := NewLocal([]*server.Server{srv})

	if err := local.Deliver(context.Background(), 5, packet.Packet{}); err == nil {
		t.Fatal("expected error for out-of-range server index")
	}
}

func TestLocalDeliverCountsStrategyDropOnServerSideOnly(t *testing.T) {
	collector := metrics.New()
	strat, err := strategy.Create("drop-tail", 0)
	if err != nil {
		t.Fatal(err)
	}
	srv := server.New(0, 100_000_000, 0, strat, collector, zap.NewNop())
	local := NewLocal([]*server.Server{srv})

	if err := local.Deliver(context.Background(), 0, packet.Packet{}); err != nil {
		t.Fatalf("expected no transport error for a strategy drop, got %v", err)
	}
	if snap := collector.Snapshot(); snap.PacketsDropped != 1 {
		t.Fatalf("expected the drop counted exactly once, got %d", snap.PacketsDropped)
	}
}

func TestTCPRoundTripsAPacketToAnAcceptor(t *testing.T) {
	srv := newTestServer(t, 10)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to reserve a port: %v", err)
	}
	actualAddr := ln.Addr().String()
	ln.Close()

	listening := make(chan struct{})
	go ListenAndServe(ctx, actualAddr, srv, func() { close(listening) }, zap.NewNop())
	select {
	case <-listening:
	case <-time.After(2 * time.Second):
		t.Fatal("acceptor never started listening")
	}

	cbCfg := config.CircuitBreaker{FailureThreshold: 0.5, Window: time.Second, CooldownPeriod: time.Second, MinSamples: 5}
	tr := NewTCP([]string{actualAddr}, time.Second, time.Second, cbCfg, zap.NewNop())
	defer tr.Close()

	if err := tr.Deliver(ctx, 0, packet.New(1, 0, 0, 64, packet.Normal)); err != nil {
		t.Fatalf("unexpected delivery error: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for srv.QueueLen() == 0 {
		select {
		case <-deadline:
			t.Fatal("expected the acceptor to enqueue the delivered packet")
		case <-time.After(10 * time.Millisecond):
		}
	}
}
