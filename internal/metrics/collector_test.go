// Copyright 2025 James Ross
package metrics

import (
	"testing"
	"time"
)

func TestSnapshotZeroStateHasNoDivideByZero(t *testing.T) {
	c := New()
	s := c.Snapshot()
	if s.LossRate != 0 || s.AvgLatencyMS != 0 || s.ThroughputBPS != 0 {
		t.Fatalf("expected all-zero snapshot on fresh collector, got %+v", s)
	}
}

func TestLossRateBounded(t *testing.T) {
	c := New()
	for i := 0; i < 10; i++ {
		c.PacketSent()
	}
	for i := 0; i < 4; i++ {
		c.PacketDropped()
	}
	s := c.Snapshot()
	if s.LossRate != 0.4 {
		t.Fatalf("expected loss rate 0.4, got %v", s.LossRate)
	}
}

func TestInvalidLatencySampleDiscarded(t *testing.T) {
	c := New()
	c.PacketReceived(31 * time.Second)
	s := c.Snapshot()
	if s.AvgLatencyMS != 0 {
		t.Fatalf("expected anomalous sample to be discarded, got avg %v", s.AvgLatencyMS)
	}
	if s.PacketsReceived != 1 {
		t.Fatalf("expected the packet to still count as received, got %d", s.PacketsReceived)
	}
}

func TestMonotonicSnapshotTimestamps(t *testing.T) {
	c := New()
	c.SaveSnapshot()
	time.Sleep(2 * time.Millisecond)
	c.SaveSnapshot()
	snaps := c.Snapshots()
	if len(snaps) != 2 {
		t.Fatalf("expected 2 snapshots, got %d", len(snaps))
	}
	if snaps[1].ElapsedSeconds <= snaps[0].ElapsedSeconds {
		t.Fatalf("expected strictly increasing elapsed time, got %v then %v", snaps[0].ElapsedSeconds, snaps[1].ElapsedSeconds)
	}
}

func TestQueueLengthReflectsLastRecorded(t *testing.T) {
	c := New()
	c.RecordQueueLength(3)
	c.RecordQueueLength(7)
	if s := c.Snapshot(); s.QueueLength != 7 {
		t.Fatalf("expected last recorded queue length 7, got %d", s.QueueLength)
	}
}
