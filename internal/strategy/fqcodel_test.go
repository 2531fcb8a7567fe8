// Copyright 2025 James Ross
package strategy

import (
	"testing"

	"github.com/flocknet/flocknet/internal/packet"
)

func TestFQCoDelRoundRobinsAcrossFlows(t *testing.T) {
	s := NewFQCoDel(100)

	flowA := packet.Packet{SourceAgent: 1}
	flowB := packet.Packet{SourceAgent: 2}

	for i := 0; i < 3; i++ {
		if a := s.Enqueue(flowA); a != Accept {
			t.Fatalf("expected flow A packet accepted, got %v", a)
		}
	}
	if a := s.Enqueue(flowB); a != Accept {
		t.Fatalf("expected flow B packet accepted, got %v", a)
	}

	served, _, ok := s.Dequeue()
	if !ok {
		t.Fatal("expected a packet")
	}
	firstFlow := served.SourceAgent

	served, _, ok = s.Dequeue()
	if !ok {
		t.Fatal("expected a second packet")
	}
	if served.SourceAgent == firstFlow {
		t.Fatalf("expected round robin to serve a different flow next, both served from %d", firstFlow)
	}
}

func TestFQCoDelBoundsTotalAcrossFlows(t *testing.T) {
	s := NewFQCoDel(2)
	s.Enqueue(packet.Packet{SourceAgent: 1})
	s.Enqueue(packet.Packet{SourceAgent: 2})
	if a := s.Enqueue(packet.Packet{SourceAgent: 3}); a != Drop {
		t.Fatalf("expected drop once combined buffer is full, got %v", a)
	}
}

func TestFQCoDelLenTracksEnqueueAndDequeue(t *testing.T) {
	s := NewFQCoDel(10)
	s.Enqueue(packet.Packet{SourceAgent: 1})
	s.Enqueue(packet.Packet{SourceAgent: 1})
	if s.Len() != 2 {
		t.Fatalf("expected len 2, got %d", s.Len())
	}
	s.Dequeue()
	if s.Len() != 1 {
		t.Fatalf("expected len 1 after one dequeue, got %d", s.Len())
	}
}

func TestFQCoDelPruneDropsIdleFlowsOverTime(t *testing.T) {
	s := NewFQCoDel(10)
	s.Enqueue(packet.Packet{SourceAgent: 1})
	s.Dequeue()

	for i := 0; i < fqCodelIdlePrunes+1; i++ {
		s.Update(0, 0)
	}
	if len(s.flows) != 0 {
		t.Fatalf("expected idle flow to be pruned, got %d remaining", len(s.flows))
	}
}

func TestFQCoDelDequeueRemovesExactlyOnePacket(t *testing.T) {
	s := NewFQCoDel(10)
	s.Enqueue(packet.Packet{SourceAgent: 1})
	s.Enqueue(packet.Packet{SourceAgent: 1})
	s.Enqueue(packet.Packet{SourceAgent: 1})

	_, dropped, ok := s.Dequeue()
	if !ok {
		t.Fatal("expected a packet")
	}
	if dropped != 0 {
		t.Fatalf("expected Dequeue to never report its own drops, got %d", dropped)
	}
	if s.Len() != 2 {
		t.Fatalf("expected exactly one packet removed, %d remain", s.Len())
	}
}

func TestFQCoDelResetClearsAllFlows(t *testing.T) {
	s := NewFQCoDel(10)
	s.Enqueue(packet.Packet{SourceAgent: 1})
	s.Reset()
	if s.Len() != 0 || len(s.flows) != 0 {
		t.Fatal("expected reset to clear every flow and the total count")
	}
}
