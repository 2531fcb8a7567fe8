// Copyright 2025 James Ross
package strategy

import (
	"testing"
	"time"

	"github.com/flocknet/flocknet/internal/packet"
)

func agedPacket(id packet.ID, age time.Duration) packet.Packet {
	return packet.Packet{
		ID:              id,
		CreatedAtMicros: time.Now().Add(-age).UnixMicro(),
	}
}

func TestCoDelServesBelowTargetWithoutDropping(t *testing.T) {
	s := NewCoDel(10)
	s.Enqueue(agedPacket(1, time.Millisecond))

	_, dropped, ok := s.Dequeue()
	if !ok {
		t.Fatal("expected a packet to be served")
	}
	if dropped != 0 {
		t.Fatalf("expected no drops below target, got %d", dropped)
	}
}

func TestCoDelEntersDroppingAfterSustainedExcess(t *testing.T) {
	s := NewCoDel(10)
	for i := packet.ID(1); i <= 5; i++ {
		s.Enqueue(agedPacket(i, 6*time.Millisecond))
	}

	// First call above target only arms first_above_time; the head is
	// still served normally.
	_, dropped, ok := s.Dequeue()
	if !ok || dropped != 0 {
		t.Fatalf("expected first excess packet served without dropping, got ok=%v dropped=%d", ok, dropped)
	}

	time.Sleep(codelInterval + 10*time.Millisecond)

	// The interval has now elapsed with sojourn still above target: this
	// call must enter dropping and discard at least one packet before
	// serving the next.
	_, dropped, ok = s.Dequeue()
	if !ok {
		t.Fatal("expected a packet to still be served")
	}
	if dropped < 1 {
		t.Fatalf("expected at least one drop once interval elapses above target, got %d", dropped)
	}
}

func TestCoDelTailDropsOnOverflow(t *testing.T) {
	s := NewCoDel(1)
	if a := s.Enqueue(packet.Packet{}); a != Accept {
		t.Fatalf("expected first packet accepted, got %v", a)
	}
	if a := s.Enqueue(packet.Packet{}); a != Drop {
		t.Fatalf("expected tail drop at capacity, got %v", a)
	}
}

func TestCoDelResetClearsQueueAndControlState(t *testing.T) {
	s := NewCoDel(10)
	s.Enqueue(agedPacket(1, 6*time.Millisecond))
	s.Reset()
	if s.Len() != 0 {
		t.Fatalf("expected empty queue after reset, got len %d", s.Len())
	}
	if _, _, ok := s.Dequeue(); ok {
		t.Fatal("expected no packets to dequeue after reset")
	}
}
